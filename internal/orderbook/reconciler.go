package orderbook

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"orderbookSync/internal/model"
)

// Store is the order and ledger state the reconciler reads and writes.
type Store interface {
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	UpdateOrderState(ctx context.Context, id string, state model.OrderState) error
	IsOrderCancelled(ctx context.Context, hash string) (bool, error)
	QuantityFilled(ctx context.Context, hash string) (*big.Int, error)
	MaxBulkCancelNonce(ctx context.Context, kind, maker string) (*big.Int, error)
	IsNonceCancelled(ctx context.Context, kind, maker string, nonce *big.Int) (bool, error)
	CancelOrdersBelowNonce(ctx context.Context, kind, maker string, minNonce *big.Int) ([]model.OrderUpdate, error)
	CancelOrdersWithNonces(ctx context.Context, kind, maker string, nonces []*big.Int) ([]model.OrderUpdate, error)
}

// StateReader answers on-chain balance and approval questions.
type StateReader interface {
	FtBalance(ctx context.Context, currency, owner string) (*big.Int, error)
	NftBalance(ctx context.Context, contract, tokenID, owner string) (*big.Int, error)
	NftApproval(ctx context.Context, contract, owner, operator string) (bool, error)
}

// Config holds chain-level reconciler settings.
type Config struct {
	ChainID uint64
}

// Reconciler recomputes order state from the ledger and chain state.
type Reconciler struct {
	cfg    Config
	store  Store
	state  StateReader
	logger *zap.Logger
	now    func() time.Time
}

// Result is the outcome of one reconciliation.
type Result struct {
	Order   *model.Order
	Update  *model.OrderUpdate
	Missing bool
}

// NewReconciler builds a Reconciler for one chain.
func NewReconciler(cfg Config, store Store, state StateReader, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cfg:    cfg,
		store:  store,
		state:  state,
		logger: logger,
		now:    time.Now,
	}
}

// EffectiveMinNonce is the lowest nonce still valid for maker. Wyvern v2.3 on
// mainnet emits NonceIncremented with the value before the increment.
func (r *Reconciler) EffectiveMinNonce(ctx context.Context, kind, maker string) (*big.Int, error) {
	raw, err := r.store.MaxBulkCancelNonce(ctx, kind, maker)
	if err != nil {
		return nil, fmt.Errorf("max bulk cancel nonce: %w", err)
	}
	return AdjustMinNonce(r.cfg.ChainID, kind, raw), nil
}

// AdjustMinNonce applies the per-deployment correction to a raw stored nonce.
func AdjustMinNonce(chainID uint64, kind string, raw *big.Int) *big.Int {
	out := new(big.Int)
	if raw != nil {
		out.Set(raw)
	}
	if chainID == 1 && kind == model.KindWyvernV23 && raw != nil {
		out.Add(out, big.NewInt(1))
	}
	return out
}

// IsNonceCancelled reports whether maker cancelled this specific nonce.
func (r *Reconciler) IsNonceCancelled(ctx context.Context, kind, maker string, nonce *big.Int) (bool, error) {
	if nonce == nil {
		return false, nil
	}
	return r.store.IsNonceCancelled(ctx, kind, maker, nonce)
}

// IsOrderCancelled reports whether the ledger holds a cancel event for hash.
func (r *Reconciler) IsOrderCancelled(ctx context.Context, hash string) (bool, error) {
	return r.store.IsOrderCancelled(ctx, hash)
}

// QuantityFilled sums the fill amounts recorded for hash.
func (r *Reconciler) QuantityFilled(ctx context.Context, hash string) (*big.Int, error) {
	return r.store.QuantityFilled(ctx, hash)
}

// Reconcile recomputes the order named by info.Hash and persists any change.
// A missing order is reported, not treated as an error.
func (r *Reconciler) Reconcile(ctx context.Context, info model.OrderInfo) (*Result, error) {
	order, err := r.store.GetOrder(ctx, info.Hash)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", info.Hash, err)
	}
	if order == nil {
		r.logger.Debug("reconcile skipped missing order", zap.String("hash", info.Hash))
		return &Result{Missing: true}, nil
	}

	facts, err := r.ledgerFacts(ctx, order)
	if err != nil {
		return nil, err
	}
	state := ComputeState(order, facts)
	if state.Status == model.StatusValid {
		if err := r.balanceFacts(ctx, order, &facts); err != nil {
			return nil, err
		}
		state = ComputeState(order, facts)
	} else {
		state.Approval = order.Approval
	}

	return r.persist(ctx, order, state, info.Context)
}

func (r *Reconciler) ledgerFacts(ctx context.Context, order *model.Order) (Facts, error) {
	facts := Facts{Now: r.now()}

	cancelled, err := r.store.IsOrderCancelled(ctx, order.ID)
	if err != nil {
		return Facts{}, fmt.Errorf("is order cancelled: %w", err)
	}
	facts.Cancelled = cancelled

	if order.Nonce != nil {
		minNonce, err := r.EffectiveMinNonce(ctx, order.Kind, order.Maker)
		if err != nil {
			return Facts{}, err
		}
		facts.MinNonce = minNonce

		nonceCancelled, err := r.store.IsNonceCancelled(ctx, order.Kind, order.Maker, order.Nonce)
		if err != nil {
			return Facts{}, fmt.Errorf("is nonce cancelled: %w", err)
		}
		facts.NonceCancelled = nonceCancelled
	}

	filled, err := r.store.QuantityFilled(ctx, order.ID)
	if err != nil {
		return Facts{}, fmt.Errorf("quantity filled: %w", err)
	}
	facts.QuantityFilled = filled
	return facts, nil
}

func (r *Reconciler) balanceFacts(ctx context.Context, order *model.Order, facts *Facts) error {
	if r.state == nil {
		return nil
	}
	if order.Side == model.SideBuy {
		balance, err := r.state.FtBalance(ctx, order.Currency, order.Maker)
		if err != nil {
			return fmt.Errorf("ft balance: %w", err)
		}
		facts.Balance = balance
		facts.Approved = true
		return nil
	}

	if order.TokenID == "" {
		return nil
	}
	balance, err := r.state.NftBalance(ctx, order.Contract, order.TokenID, order.Maker)
	if err != nil {
		return fmt.Errorf("nft balance: %w", err)
	}
	approved, err := r.state.NftApproval(ctx, order.Contract, order.Maker, order.Conduit)
	if err != nil {
		return fmt.Errorf("nft approval: %w", err)
	}
	facts.Balance = balance
	facts.Approved = approved
	return nil
}

func (r *Reconciler) persist(ctx context.Context, order *model.Order, state model.OrderState, trigger string) (*Result, error) {
	res := &Result{Order: order.Clone()}
	if !stateChanged(order, state) {
		return res, nil
	}

	if err := r.store.UpdateOrderState(ctx, order.ID, state); err != nil {
		return nil, fmt.Errorf("update order %s: %w", order.ID, err)
	}
	res.Order.Status = state.Status
	res.Order.Approval = state.Approval
	res.Order.QuantityRemaining = state.QuantityRemaining

	if state.Status != order.Status {
		res.Update = &model.OrderUpdate{
			ID:             order.ID,
			Kind:           order.Kind,
			Context:        trigger,
			Status:         state.Status,
			PreviousStatus: order.Status,
		}
		r.logger.Info("order status changed",
			zap.String("id", order.ID),
			zap.String("from", string(order.Status)),
			zap.String("to", string(state.Status)),
			zap.String("context", trigger),
		)
	}
	return res, nil
}

func stateChanged(order *model.Order, state model.OrderState) bool {
	if order.Status != state.Status || order.Approval != state.Approval {
		return true
	}
	if order.QuantityRemaining == nil {
		return true
	}
	return order.QuantityRemaining.Cmp(state.QuantityRemaining) != 0
}

// ApplyNonceInfo cancels the maker's open orders invalidated by info and
// returns the follow-up reconciliation items and status transitions. The
// triggering event must already be appended to the ledger.
func (r *Reconciler) ApplyNonceInfo(ctx context.Context, info model.NonceInfo) ([]model.OrderInfo, []model.OrderUpdate, error) {
	var (
		updates []model.OrderUpdate
		err     error
	)
	if info.MinNonce != nil {
		minNonce, err := r.EffectiveMinNonce(ctx, info.Kind, info.Maker)
		if err != nil {
			return nil, nil, err
		}
		updates, err = r.store.CancelOrdersBelowNonce(ctx, info.Kind, info.Maker, minNonce)
		if err != nil {
			return nil, nil, fmt.Errorf("cancel orders below nonce %s: %w", minNonce, err)
		}
	} else if len(info.Nonces) > 0 {
		updates, err = r.store.CancelOrdersWithNonces(ctx, info.Kind, info.Maker, info.Nonces)
		if err != nil {
			return nil, nil, fmt.Errorf("cancel orders with nonces: %w", err)
		}
	}

	infos := make([]model.OrderInfo, 0, len(updates))
	for i := range updates {
		updates[i].Context = info.Context
		infos = append(infos, model.OrderInfo{Context: info.Context, Hash: updates[i].ID})
	}
	if len(updates) > 0 {
		r.logger.Info("nonce cancellation applied",
			zap.String("kind", info.Kind),
			zap.String("maker", info.Maker),
			zap.Int("orders", len(updates)),
		)
	}
	return infos, updates, nil
}
