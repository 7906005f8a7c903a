package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orderbookSync/internal/model"
	"orderbookSync/internal/orderbook"
	"orderbookSync/internal/queue"
)

// OrderPager pages through orders in (created_at DESC, id DESC) order.
type OrderPager interface {
	OrdersPage(ctx context.Context, cursor *model.SweepCursor, limit int) ([]model.SweepCursor, error)
}

// Config tunes the handlers.
type Config struct {
	SweepPageSize int
}

// Handlers binds the reconciler and accountant to queue work items. Every
// handler is safe to run again for the same item.
type Handlers struct {
	cfg        Config
	queue      queue.Enqueuer
	reconciler *orderbook.Reconciler
	accountant *orderbook.Accountant
	pager      OrderPager
	logger     *zap.Logger
}

func NewHandlers(
	cfg Config,
	enqueuer queue.Enqueuer,
	reconciler *orderbook.Reconciler,
	accountant *orderbook.Accountant,
	pager OrderPager,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SweepPageSize <= 0 {
		cfg.SweepPageSize = 1
	}
	return &Handlers{
		cfg:        cfg,
		queue:      enqueuer,
		reconciler: reconciler,
		accountant: accountant,
		pager:      pager,
		logger:     logger,
	}
}

// Registration ties a queue to its handler and worker count.
type Registration struct {
	Queue       string
	Concurrency int
	Handler     queue.Handler
}

// Registrations lists every queue the worker consumes. The sweep runs on a
// single worker so pages are visited strictly in cursor order.
func (h *Handlers) Registrations() []Registration {
	return []Registration{
		{Queue: QueueOrderUpdatesByHash, Concurrency: 10, Handler: h.ReconcileOrder},
		{Queue: QueueOrderFills, Concurrency: 5, Handler: h.AccountFill},
		{Queue: QueueNonceCancels, Concurrency: 5, Handler: h.ApplyNonce},
		{Queue: QueueOrdersResyncSweep, Concurrency: 1, Handler: h.SweepOrders},
		{Queue: QueueOrderUpdatesByID, Concurrency: 5, Handler: h.OrderUpdated},
	}
}

// ReconcileOrder handles {context, hash} items.
func (h *Handlers) ReconcileOrder(ctx context.Context, job *queue.Job) error {
	var info model.OrderInfo
	if err := job.Decode(&info); err != nil {
		return err
	}
	if info.Hash == "" {
		h.logger.Warn("reconcile item without hash", zap.String("job_id", job.ID))
		return nil
	}
	res, err := h.reconciler.Reconcile(ctx, info)
	if err != nil {
		return err
	}
	if res.Update != nil {
		return EnqueueOrderUpdates(ctx, h.queue, []model.OrderUpdate{*res.Update})
	}
	return nil
}

// AccountFill handles {context, buyHash, sellHash, block} items.
func (h *Handlers) AccountFill(ctx context.Context, job *queue.Job) error {
	var info model.FillInfo
	if err := job.Decode(&info); err != nil {
		return err
	}
	updates, err := h.accountant.AccountFill(ctx, info)
	if err != nil {
		return err
	}
	return EnqueueOrderUpdates(ctx, h.queue, updates)
}

// ApplyNonce handles maker-wide cancellations.
func (h *Handlers) ApplyNonce(ctx context.Context, job *queue.Job) error {
	var info model.NonceInfo
	if err := job.Decode(&info); err != nil {
		return err
	}
	infos, updates, err := h.reconciler.ApplyNonceInfo(ctx, info)
	if err != nil {
		return err
	}
	if err := EnqueueOrderUpdates(ctx, h.queue, updates); err != nil {
		return err
	}
	return EnqueueOrderInfos(ctx, h.queue, infos)
}

// SweepOrders reconciles one page of orders and schedules the next page. The
// sweep ends on the first page shorter than the page size.
func (h *Handlers) SweepOrders(ctx context.Context, job *queue.Job) error {
	var info model.SweepInfo
	if err := job.Decode(&info); err != nil {
		return err
	}

	rows, err := h.pager.OrdersPage(ctx, info.Cursor, h.cfg.SweepPageSize)
	if err != nil {
		return fmt.Errorf("sweep page: %w", err)
	}

	infos := make([]model.OrderInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, model.OrderInfo{Context: sweepContext, Hash: row.ID})
	}
	if err := EnqueueOrderInfos(ctx, h.queue, infos); err != nil {
		return err
	}

	if len(rows) < h.cfg.SweepPageSize {
		h.logger.Info("orders sweep complete", zap.Int("last_page", len(rows)))
		return nil
	}

	last := rows[len(rows)-1]
	next := model.SweepInfo{Cursor: &model.SweepCursor{ID: last.ID, CreatedAt: last.CreatedAt}}
	if _, err := h.queue.Enqueue(ctx, QueueOrdersResyncSweep, next, queue.Options{JobID: sweepContext + ":" + last.ID}); err != nil {
		return fmt.Errorf("enqueue next sweep page: %w", err)
	}
	return nil
}

// OrderUpdated is the listener side of status transitions.
func (h *Handlers) OrderUpdated(_ context.Context, job *queue.Job) error {
	var update model.OrderUpdate
	if err := job.Decode(&update); err != nil {
		return err
	}
	h.logger.Info("order update",
		zap.String("id", update.ID),
		zap.String("kind", update.Kind),
		zap.String("status", string(update.Status)),
		zap.String("previous_status", string(update.PreviousStatus)),
		zap.String("context", update.Context),
	)
	return nil
}
