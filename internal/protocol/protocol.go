package protocol

import (
	"fmt"
	"math/big"
	"strings"

	"orderbookSync/internal/model"
)

// Protocol turns one marketplace's raw logs into ledger events and the work
// items that follow from them.
type Protocol interface {
	Kind() string
	Handles(log model.RawLog) bool
	ParseBatch(logs []model.RawLog, backfill bool) *Result
}

// Result is the output of parsing one batch of logs for a single protocol.
// Work-item slices stay empty when the batch is a backfill.
type Result struct {
	Kind       string
	Events     model.EventBatch
	OrderInfos []model.OrderInfo
	FillInfos  []model.FillInfo
	NonceInfos []model.NonceInfo
	TokenRefs  []model.TokenRef
	Failures   []model.DecodeError

	backfill bool
}

func newResult(kind string, backfill bool) *Result {
	return &Result{Kind: kind, backfill: backfill}
}

func (r *Result) addCancel(ev model.CancelEvent) {
	ev.OrderKind = r.Kind
	r.Events.Cancels = append(r.Events.Cancels, ev)
	if r.backfill {
		return
	}
	r.OrderInfos = append(r.OrderInfos, model.OrderInfo{Context: ev.Context(), Hash: ev.OrderHash})
}

func (r *Result) addFill(ev model.FillEvent) {
	ev.OrderKind = r.Kind
	r.Events.Fills = append(r.Events.Fills, ev)
	if r.backfill {
		return
	}
	for _, hash := range ev.OrderHashes() {
		r.OrderInfos = append(r.OrderInfos, model.OrderInfo{Context: ev.Context(), Hash: hash})
	}
	r.FillInfos = append(r.FillInfos, model.FillInfo{
		Context:  ev.Context(),
		BuyHash:  ev.BuyOrderHash,
		SellHash: ev.SellOrderHash,
		Block:    ev.BlockNumber,
	})
	if ev.Contract != "" && ev.TokenID != "" {
		r.TokenRefs = append(r.TokenRefs, model.TokenRef{Contract: ev.Contract, TokenID: ev.TokenID})
	}
}

func (r *Result) addBulkCancel(ev model.BulkCancelEvent) {
	ev.OrderKind = r.Kind
	ev.Context = ev.BaseEventParams.Context()
	r.Events.BulkCancels = append(r.Events.BulkCancels, ev)
	if r.backfill {
		return
	}
	r.NonceInfos = append(r.NonceInfos, model.NonceInfo{
		Context:  ev.Context,
		Kind:     r.Kind,
		Maker:    ev.Maker,
		MinNonce: new(big.Int).Set(ev.MinNonce),
	})
}

// addNonceCancels records one event per nonce, each under its own batch index
// nested inside the log's own batch index.
func (r *Result) addNonceCancels(base model.BaseEventParams, maker string, nonces []*big.Int) {
	for i, nonce := range nonces {
		params := base
		params.BatchIndex = nestedBatchIndex(base.BatchIndex, i)
		r.Events.NonceCancels = append(r.Events.NonceCancels, model.NonceCancelEvent{
			OrderKind:       r.Kind,
			Maker:           maker,
			Nonce:           nonce,
			BaseEventParams: params,
		})
	}
	if r.backfill || len(nonces) == 0 {
		return
	}
	r.NonceInfos = append(r.NonceInfos, model.NonceInfo{
		Context: base.Context(),
		Kind:    r.Kind,
		Maker:   maker,
		Nonces:  nonces,
	})
}

// nestedBatchIndex packs a log's batch index and an item position into one
// key: the log's index in the high 32 bits, the position in the low 32.
func nestedBatchIndex(outer uint64, i int) uint64 {
	return outer<<32 | uint64(uint32(i))
}

func (r *Result) addFailure(log model.RawLog, err error) {
	r.Failures = append(r.Failures, model.NewDecodeError(r.Kind, log, err))
}

// addressSet matches log emitters against the configured exchange deployments.
// An empty set matches any emitter.
type addressSet map[string]struct{}

func newAddressSet(addresses []string) addressSet {
	set := make(addressSet, len(addresses))
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr != "" {
			set[addr] = struct{}{}
		}
	}
	return set
}

func (s addressSet) contains(addr string) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[strings.ToLower(addr)]
	return ok
}

// New builds the protocol adapter registered under kind.
func New(kind string, addresses []string) (Protocol, error) {
	switch kind {
	case model.KindWyvernV23:
		return NewWyvernV23(addresses)
	case model.KindLooksRare:
		return NewLooksRare(addresses)
	default:
		return nil, fmt.Errorf("unsupported order kind: %s", kind)
	}
}

// Kinds lists the supported order kinds.
func Kinds() []string {
	return []string{model.KindWyvernV23, model.KindLooksRare}
}
