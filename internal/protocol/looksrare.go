package protocol

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"orderbookSync/internal/model"
)

// LooksRare decodes LooksRare exchange logs.
type LooksRare struct {
	exchangeABI abi.ABI
	topicToName map[string]string
	addresses   addressSet
}

// NewLooksRare builds the adapter for the given exchange addresses.
func NewLooksRare(addresses []string) (*LooksRare, error) {
	exchangeABI, err := LooksRareABI()
	if err != nil {
		return nil, err
	}
	return &LooksRare{
		exchangeABI: exchangeABI,
		topicToName: topicNames(exchangeABI, "CancelAllOrders", "CancelMultipleOrders", "TakerAsk", "TakerBid"),
		addresses:   newAddressSet(addresses),
	}, nil
}

func (l *LooksRare) Kind() string { return model.KindLooksRare }

func (l *LooksRare) Handles(log model.RawLog) bool {
	_, ok := l.topicToName[log.Topic0()]
	return ok && l.addresses.contains(log.Address)
}

func (l *LooksRare) ParseBatch(logs []model.RawLog, backfill bool) *Result {
	res := newResult(l.Kind(), backfill)
	for _, log := range logs {
		if err := l.parse(log, res); err != nil {
			res.addFailure(log, err)
		}
	}
	return res
}

func (l *LooksRare) parse(log model.RawLog, res *Result) error {
	name, ok := l.topicToName[log.Topic0()]
	if !ok {
		return fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}
	event := l.exchangeABI.Events[name]
	base := log.BaseParams()

	switch name {
	case "CancelAllOrders":
		var indexed struct {
			User common.Address
		}
		if err := parseIndexed(event, log.Topics, &indexed); err != nil {
			return err
		}
		values, err := unpackNonIndexed(event, log.Data, 1)
		if err != nil {
			return err
		}
		minNonce, err := asBigInt(values[0])
		if err != nil {
			return err
		}
		res.addBulkCancel(model.BulkCancelEvent{
			Maker:           lowerHex(indexed.User),
			MinNonce:        minNonce,
			BaseEventParams: base,
		})
		return nil

	case "CancelMultipleOrders":
		var indexed struct {
			User common.Address
		}
		if err := parseIndexed(event, log.Topics, &indexed); err != nil {
			return err
		}
		values, err := unpackNonIndexed(event, log.Data, 1)
		if err != nil {
			return err
		}
		nonces, err := asBigIntSlice(values[0])
		if err != nil {
			return err
		}
		res.addNonceCancels(base, lowerHex(indexed.User), nonces)
		return nil

	case "TakerAsk", "TakerBid":
		fill, err := l.decodeTake(event, log)
		if err != nil {
			return err
		}
		fill.BaseEventParams = base
		res.addFill(fill)
		return nil

	default:
		return fmt.Errorf("unsupported event name: %s", name)
	}
}

// decodeTake maps a taker fill onto the maker order. TakerAsk fills a maker
// bid, TakerBid fills a maker ask.
func (l *LooksRare) decodeTake(event abi.Event, log model.RawLog) (model.FillEvent, error) {
	var indexed struct {
		Taker    common.Address
		Maker    common.Address
		Strategy common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.FillEvent{}, err
	}
	values, err := unpackNonIndexed(event, log.Data, 7)
	if err != nil {
		return model.FillEvent{}, err
	}

	orderHash, err := asHash(values[0])
	if err != nil {
		return model.FillEvent{}, err
	}
	collection, err := asAddress(values[3])
	if err != nil {
		return model.FillEvent{}, err
	}
	tokenID, err := asBigInt(values[4])
	if err != nil {
		return model.FillEvent{}, err
	}
	amount, err := asBigInt(values[5])
	if err != nil {
		return model.FillEvent{}, err
	}
	price, err := asBigInt(values[6])
	if err != nil {
		return model.FillEvent{}, err
	}

	fill := model.FillEvent{
		Maker:    lowerHex(indexed.Maker),
		Taker:    lowerHex(indexed.Taker),
		Price:    price,
		Amount:   amount,
		Contract: collection,
		TokenID:  tokenID.String(),
	}
	if event.Name == "TakerAsk" {
		fill.BuyOrderHash = orderHash
	} else {
		fill.SellOrderHash = orderHash
	}
	return fill, nil
}
