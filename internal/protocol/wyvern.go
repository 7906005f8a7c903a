package protocol

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"orderbookSync/internal/model"
)

// WyvernV23 decodes Wyvern v2.3 exchange logs. Matches carry no quantity, so
// every fill counts as one unit.
type WyvernV23 struct {
	exchangeABI abi.ABI
	topicToName map[string]string
	addresses   addressSet
}

// NewWyvernV23 builds the adapter for the given exchange addresses.
func NewWyvernV23(addresses []string) (*WyvernV23, error) {
	exchangeABI, err := WyvernV23ABI()
	if err != nil {
		return nil, err
	}
	return &WyvernV23{
		exchangeABI: exchangeABI,
		topicToName: topicNames(exchangeABI, "OrderCancelled", "OrdersMatched", "NonceIncremented"),
		addresses:   newAddressSet(addresses),
	}, nil
}

func (w *WyvernV23) Kind() string { return model.KindWyvernV23 }

func (w *WyvernV23) Handles(log model.RawLog) bool {
	_, ok := w.topicToName[log.Topic0()]
	return ok && w.addresses.contains(log.Address)
}

// ParseBatch decodes logs in order. A log that fails to decode is recorded in
// Result.Failures and skipped.
func (w *WyvernV23) ParseBatch(logs []model.RawLog, backfill bool) *Result {
	res := newResult(w.Kind(), backfill)
	for _, log := range logs {
		if err := w.parse(log, res); err != nil {
			res.addFailure(log, err)
		}
	}
	return res
}

func (w *WyvernV23) parse(log model.RawLog, res *Result) error {
	name, ok := w.topicToName[log.Topic0()]
	if !ok {
		return fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}
	event := w.exchangeABI.Events[name]
	base := log.BaseParams()

	switch name {
	case "OrderCancelled":
		var indexed struct {
			Hash [32]byte
		}
		if err := parseIndexed(event, log.Topics, &indexed); err != nil {
			return err
		}
		hash, err := asHash(indexed.Hash)
		if err != nil {
			return err
		}
		res.addCancel(model.CancelEvent{OrderHash: hash, BaseEventParams: base})
		return nil

	case "OrdersMatched":
		var indexed struct {
			Maker    common.Address
			Taker    common.Address
			Metadata [32]byte
		}
		if err := parseIndexed(event, log.Topics, &indexed); err != nil {
			return err
		}
		values, err := unpackNonIndexed(event, log.Data, 3)
		if err != nil {
			return err
		}
		buyHash, err := asHash(values[0])
		if err != nil {
			return err
		}
		sellHash, err := asHash(values[1])
		if err != nil {
			return err
		}
		price, err := asBigInt(values[2])
		if err != nil {
			return err
		}
		res.addFill(model.FillEvent{
			BuyOrderHash:    nonZeroHash(buyHash),
			SellOrderHash:   nonZeroHash(sellHash),
			Maker:           lowerHex(indexed.Maker),
			Taker:           lowerHex(indexed.Taker),
			Price:           price,
			Amount:          big.NewInt(1),
			BaseEventParams: base,
		})
		return nil

	case "NonceIncremented":
		var indexed struct {
			Maker common.Address
		}
		if err := parseIndexed(event, log.Topics, &indexed); err != nil {
			return err
		}
		values, err := unpackNonIndexed(event, log.Data, 1)
		if err != nil {
			return err
		}
		nonce, err := asBigInt(values[0])
		if err != nil {
			return err
		}
		res.addBulkCancel(model.BulkCancelEvent{
			Maker:           lowerHex(indexed.Maker),
			MinNonce:        nonce,
			BaseEventParams: base,
		})
		return nil

	default:
		return fmt.Errorf("unsupported event name: %s", name)
	}
}

var zeroHash = (common.Hash{}).Hex()

// Private matches leave one side as the zero hash.
func nonZeroHash(hash string) string {
	if hash == zeroHash {
		return ""
	}
	return hash
}
