package model

import (
	"encoding/json"
	"math/big"
	"time"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// FillabilityStatus is the authoritative lifecycle state of an order.
type FillabilityStatus string

const (
	StatusValid     FillabilityStatus = "valid"
	StatusNoBalance FillabilityStatus = "no-balance"
	StatusCancelled FillabilityStatus = "cancelled"
	StatusFilled    FillabilityStatus = "filled"
	StatusExpired   FillabilityStatus = "expired"
)

// Active reports whether the status can still transition to cancelled or filled
// as a side effect of ledger activity.
func (s FillabilityStatus) Active() bool {
	return s == StatusValid || s == StatusNoBalance
}

// ApprovalStatus tracks whether the maker approved the exchange to move the asset.
type ApprovalStatus string

const (
	ApprovalApproved   ApprovalStatus = "approved"
	ApprovalNoApproval ApprovalStatus = "no-approval"
)

// Order is a persisted marketplace order. Status and QuantityRemaining are
// owned by the reconciler.
type Order struct {
	ID                string            `json:"id"`
	Kind              string            `json:"kind"`
	Side              OrderSide         `json:"side"`
	Status            FillabilityStatus `json:"status"`
	Approval          ApprovalStatus    `json:"approval"`
	TokenSetID        string            `json:"token_set_id"`
	Contract          string            `json:"contract"`
	TokenID           string            `json:"token_id,omitempty"`
	Currency          string            `json:"currency"`
	Conduit           string            `json:"conduit"`
	Maker             string            `json:"maker"`
	Taker             string            `json:"taker"`
	Price             *big.Int          `json:"price"`
	Value             *big.Int          `json:"value"`
	Quantity          *big.Int          `json:"quantity"`
	QuantityRemaining *big.Int          `json:"quantity_remaining"`
	ValidFrom         int64             `json:"valid_from"`
	ValidUntil        int64             `json:"valid_until"`
	Nonce             *big.Int          `json:"nonce,omitempty"`
	Source            string            `json:"source"`
	RawData           json.RawMessage   `json:"raw_data,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Expired reports whether the validity window has elapsed at now. A zero
// ValidUntil means the order never expires.
func (o *Order) Expired(now time.Time) bool {
	return o.ValidUntil > 0 && now.Unix() >= o.ValidUntil
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Price = cloneBig(o.Price)
	c.Value = cloneBig(o.Value)
	c.Quantity = cloneBig(o.Quantity)
	c.QuantityRemaining = cloneBig(o.QuantityRemaining)
	c.Nonce = cloneBig(o.Nonce)
	if o.RawData != nil {
		c.RawData = append(json.RawMessage(nil), o.RawData...)
	}
	return &c
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// OrderState is the reconciler-owned subset of an order row.
type OrderState struct {
	Status            FillabilityStatus
	Approval          ApprovalStatus
	QuantityRemaining *big.Int
}
