package model

import (
	"fmt"
	"math/big"
)

// Order kinds understood by the protocol adapters.
const (
	KindWyvernV23 = "wyvern-v2.3"
	KindLooksRare = "looks-rare"
)

// BaseEventParams is the identity and ordering key shared by every ledger event.
// Two events with the same (TxHash, LogIndex, BatchIndex) are the same event.
type BaseEventParams struct {
	Address     string `json:"address"`
	BlockNumber uint64 `json:"block"`
	BlockHash   string `json:"block_hash"`
	TxHash      string `json:"tx_hash"`
	TxIndex     uint64 `json:"tx_index"`
	LogIndex    uint64 `json:"log_index"`
	BatchIndex  uint64 `json:"batch_index"`
	Timestamp   uint64 `json:"timestamp"`
}

// Key identifies the event.
func (p BaseEventParams) Key() string {
	return fmt.Sprintf("%s-%d-%d", p.TxHash, p.LogIndex, p.BatchIndex)
}

// Context is the "txHash-logIndex" string used to key downstream work items.
func (p BaseEventParams) Context() string {
	return fmt.Sprintf("%s-%d", p.TxHash, p.LogIndex)
}

// CancelEvent is an explicit single-order cancellation.
type CancelEvent struct {
	OrderKind string `json:"order_kind"`
	OrderHash string `json:"order_hash"`
	BaseEventParams
}

// FillEvent is a trade execution. Either hash may be empty when the protocol only
// reports the maker side.
type FillEvent struct {
	OrderKind     string   `json:"order_kind"`
	BuyOrderHash  string   `json:"buy_order_hash"`
	SellOrderHash string   `json:"sell_order_hash"`
	Maker         string   `json:"maker"`
	Taker         string   `json:"taker"`
	Price         *big.Int `json:"price"`
	Amount        *big.Int `json:"amount"`
	Contract      string   `json:"contract,omitempty"`
	TokenID       string   `json:"token_id,omitempty"`
	BaseEventParams
}

// OrderHashes returns the non-empty order hashes referenced by the fill.
func (e FillEvent) OrderHashes() []string {
	hashes := make([]string, 0, 2)
	if e.BuyOrderHash != "" {
		hashes = append(hashes, e.BuyOrderHash)
	}
	if e.SellOrderHash != "" && e.SellOrderHash != e.BuyOrderHash {
		hashes = append(hashes, e.SellOrderHash)
	}
	return hashes
}

// BulkCancelEvent invalidates every order of Maker with a nonce below MinNonce.
type BulkCancelEvent struct {
	OrderKind string   `json:"order_kind"`
	Maker     string   `json:"maker"`
	MinNonce  *big.Int `json:"min_nonce"`
	Context   string   `json:"context"`
	BaseEventParams
}

// NonceCancelEvent invalidates the orders of Maker carrying exactly Nonce.
type NonceCancelEvent struct {
	OrderKind string   `json:"order_kind"`
	Maker     string   `json:"maker"`
	Nonce     *big.Int `json:"nonce"`
	BaseEventParams
}

// EventBatch groups the ledger events produced from one batch of logs.
type EventBatch struct {
	Cancels      []CancelEvent
	Fills        []FillEvent
	BulkCancels  []BulkCancelEvent
	NonceCancels []NonceCancelEvent
}

// Len returns the number of events in the batch.
func (b EventBatch) Len() int {
	return len(b.Cancels) + len(b.Fills) + len(b.BulkCancels) + len(b.NonceCancels)
}

// WithKind stamps kind on every event.
func (b EventBatch) WithKind(kind string) EventBatch {
	for i := range b.Cancels {
		b.Cancels[i].OrderKind = kind
	}
	for i := range b.Fills {
		b.Fills[i].OrderKind = kind
	}
	for i := range b.BulkCancels {
		b.BulkCancels[i].OrderKind = kind
	}
	for i := range b.NonceCancels {
		b.NonceCancels[i].OrderKind = kind
	}
	return b
}

// RemovedEvents describes what a reorg removal deleted from the ledger.
type RemovedEvents struct {
	OrderHashes []string
	Makers      []MakerRef
	Count       int
}

// MakerRef identifies the orders of one maker under one protocol.
type MakerRef struct {
	OrderKind string
	Maker     string
}
