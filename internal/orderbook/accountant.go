package orderbook

import (
	"context"

	"go.uber.org/zap"

	"orderbookSync/internal/model"
)

// Accountant keeps each order's remaining quantity in line with its recorded
// fills. Status goes through the reconciler so a fill never outranks an
// expiry or a cancel already in the ledger.
type Accountant struct {
	reconciler *Reconciler
	logger     *zap.Logger
}

// NewAccountant builds an Accountant on top of reconciler.
func NewAccountant(reconciler *Reconciler, logger *zap.Logger) *Accountant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Accountant{reconciler: reconciler, logger: logger}
}

// AccountFill recomputes the remaining quantity of every order referenced by
// info. Orders that do not exist yet are skipped; their fills stay in the
// ledger and are picked up when the order is first reconciled.
func (a *Accountant) AccountFill(ctx context.Context, info model.FillInfo) ([]model.OrderUpdate, error) {
	var updates []model.OrderUpdate
	for _, hash := range info.Hashes() {
		res, err := a.reconciler.Reconcile(ctx, model.OrderInfo{Context: info.Context, Hash: hash})
		if err != nil {
			return nil, err
		}
		if res.Missing {
			a.logger.Debug("fill deferred until order exists", zap.String("hash", hash), zap.String("context", info.Context))
			continue
		}
		if res.Update != nil {
			updates = append(updates, *res.Update)
		}
	}
	return updates, nil
}
