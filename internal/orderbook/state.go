package orderbook

import (
	"math/big"
	"time"

	"orderbookSync/internal/model"
)

// Facts is everything an order's status depends on, gathered at one instant.
type Facts struct {
	Now            time.Time
	Cancelled      bool
	MinNonce       *big.Int
	NonceCancelled bool
	QuantityFilled *big.Int

	// Balance is the maker's holding of the asset the order spends: token units
	// for sell orders, currency for buy orders. Nil skips the balance check.
	Balance  *big.Int
	Approved bool
}

// ComputeState derives status, approval and remaining quantity. The first
// matching status wins: expired, cancelled, filled, no-balance, valid.
func ComputeState(order *model.Order, f Facts) model.OrderState {
	state := model.OrderState{
		Approval:          model.ApprovalApproved,
		QuantityRemaining: Remaining(order.Quantity, f.QuantityFilled),
	}
	if f.Balance != nil && !f.Approved {
		state.Approval = model.ApprovalNoApproval
	}

	switch {
	case order.Expired(f.Now):
		state.Status = model.StatusExpired
	case f.Cancelled || nonceInvalidated(order.Nonce, f.MinNonce) || f.NonceCancelled:
		state.Status = model.StatusCancelled
	case state.QuantityRemaining.Sign() == 0:
		state.Status = model.StatusFilled
	case f.Balance != nil && (!f.Approved || f.Balance.Cmp(requiredBalance(order)) < 0):
		state.Status = model.StatusNoBalance
	default:
		state.Status = model.StatusValid
	}
	return state
}

// Remaining is quantity minus filled, never below zero.
func Remaining(quantity, filled *big.Int) *big.Int {
	if quantity == nil {
		quantity = big.NewInt(1)
	}
	remaining := new(big.Int).Set(quantity)
	if filled != nil {
		remaining.Sub(remaining, filled)
	}
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return remaining
}

func nonceInvalidated(nonce, minNonce *big.Int) bool {
	if nonce == nil || minNonce == nil {
		return false
	}
	return nonce.Cmp(minNonce) < 0
}

// Sell orders need one unit of the token; buy orders need the full price.
func requiredBalance(order *model.Order) *big.Int {
	if order.Side == model.SideBuy && order.Price != nil {
		return order.Price
	}
	return big.NewInt(1)
}
