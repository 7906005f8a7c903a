package model

import (
	"fmt"
	"math/big"
	"time"
)

// OrderInfo asks for one order to be reconciled.
type OrderInfo struct {
	Context string `json:"context"`
	Hash    string `json:"hash"`
}

// JobID returns the dedupe key for the reconciliation item.
func (i OrderInfo) JobID() string {
	return i.Context + ":" + i.Hash
}

// FillInfo asks for the filled quantity of the referenced orders to be recomputed.
type FillInfo struct {
	Context  string `json:"context"`
	BuyHash  string `json:"buyHash"`
	SellHash string `json:"sellHash"`
	Block    uint64 `json:"block"`
}

// Hashes returns the non-empty distinct order hashes of the fill.
func (i FillInfo) Hashes() []string {
	out := make([]string, 0, 2)
	if i.BuyHash != "" {
		out = append(out, i.BuyHash)
	}
	if i.SellHash != "" && i.SellHash != i.BuyHash {
		out = append(out, i.SellHash)
	}
	return out
}

// NonceInfo carries a maker-wide cancellation to apply to persisted orders.
// A non-nil MinNonce cancels every order below it; otherwise Nonces lists the
// exact nonces that were cancelled.
type NonceInfo struct {
	Context  string     `json:"context"`
	Kind     string     `json:"kind"`
	Maker    string     `json:"maker"`
	MinNonce *big.Int   `json:"minNonce,omitempty"`
	Nonces   []*big.Int `json:"nonces,omitempty"`
}

// SweepCursor is the continuation point of a cursor sweep.
type SweepCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// SweepInfo is the payload of one page of the order resync sweep.
type SweepInfo struct {
	Cursor *SweepCursor `json:"cursor,omitempty"`
}

// TokenRef identifies a token whose attributes should be refreshed.
type TokenRef struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
}

// JobID returns the per-token dedupe key.
func (r TokenRef) JobID() string {
	return fmt.Sprintf("%s:%s", r.Contract, r.TokenID)
}

// OrderUpdate is emitted whenever the reconciler changes an order's status.
type OrderUpdate struct {
	ID             string            `json:"id"`
	Kind           string            `json:"kind"`
	Context        string            `json:"context"`
	Status         FillabilityStatus `json:"status"`
	PreviousStatus FillabilityStatus `json:"previousStatus"`
}

// JobID makes the listener see each transition once per triggering context.
func (u OrderUpdate) JobID() string {
	return fmt.Sprintf("%s:%s:%s", u.ID, u.Status, u.Context)
}
