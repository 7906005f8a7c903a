package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"orderbookSync/internal/model"
)

type pendingReorg struct {
	hashes map[string]struct{}
	makers map[model.MakerRef]struct{}
}

type approval struct {
	block    uint64
	logIndex uint64
	approved bool
}

// Store keeps orders, ledger events and chain state in process memory. It
// satisfies the same contracts as the Postgres store and backs tests and
// dry runs.
type Store struct {
	mu sync.RWMutex

	orders       map[string]*model.Order
	cancels      map[string]model.CancelEvent
	fills        map[string]model.FillEvent
	bulkCancels  map[string]model.BulkCancelEvent
	nonceCancels map[string]model.NonceCancelEvent

	ftBalances  map[string]*big.Int
	nftBalances map[string]*big.Int
	approvals   map[string]approval
	syncState   map[string]uint64

	pendingReorgs map[string]*pendingReorg
}

func NewStore() *Store {
	return &Store{
		orders:       make(map[string]*model.Order),
		cancels:      make(map[string]model.CancelEvent),
		fills:        make(map[string]model.FillEvent),
		bulkCancels:  make(map[string]model.BulkCancelEvent),
		nonceCancels: make(map[string]model.NonceCancelEvent),
		ftBalances:   make(map[string]*big.Int),
		nftBalances:  make(map[string]*big.Int),
		approvals:    make(map[string]approval),
		syncState:    make(map[string]uint64),

		pendingReorgs: make(map[string]*pendingReorg),
	}
}

// SaveOrder inserts an order or replaces it entirely.
func (s *Store) SaveOrder(_ context.Context, order *model.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order id is required")
	}
	c := order.Clone()
	c.ID = strings.ToLower(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.orders[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[strings.ToLower(id)]
	if !ok {
		return nil, nil
	}
	return order.Clone(), nil
}

func (s *Store) UpdateOrderState(_ context.Context, id string, state model.OrderState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[strings.ToLower(id)]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	order.Status = state.Status
	order.Approval = state.Approval
	if state.QuantityRemaining != nil {
		order.QuantityRemaining = new(big.Int).Set(state.QuantityRemaining)
	}
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// OrdersPage returns up to limit orders strictly after cursor in
// (created_at DESC, id DESC) order.
func (s *Store) OrdersPage(_ context.Context, cursor *model.SweepCursor, limit int) ([]model.SweepCursor, error) {
	s.mu.RLock()
	rows := make([]model.SweepCursor, 0, len(s.orders))
	for _, order := range s.orders {
		rows = append(rows, model.SweepCursor{ID: order.ID, CreatedAt: order.CreatedAt})
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return before(rows[j], rows[i]) })

	out := make([]model.SweepCursor, 0, limit)
	for _, row := range rows {
		if cursor != nil && !before(row, *cursor) {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// before reports whether a sorts strictly below b on (created_at, id).
func before(a, b model.SweepCursor) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *Store) OrderIDsByMaker(_ context.Context, kind, maker string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, order := range s.orders {
		if order.Kind == kind && strings.EqualFold(order.Maker, maker) {
			ids = append(ids, order.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CancelOrdersBelowNonce(_ context.Context, kind, maker string, minNonce *big.Int) ([]model.OrderUpdate, error) {
	return s.cancelWhere(kind, maker, func(nonce *big.Int) bool {
		return nonce.Cmp(minNonce) < 0
	}), nil
}

func (s *Store) CancelOrdersWithNonces(_ context.Context, kind, maker string, nonces []*big.Int) ([]model.OrderUpdate, error) {
	return s.cancelWhere(kind, maker, func(nonce *big.Int) bool {
		for _, n := range nonces {
			if nonce.Cmp(n) == 0 {
				return true
			}
		}
		return false
	}), nil
}

func (s *Store) cancelWhere(kind, maker string, match func(*big.Int) bool) []model.OrderUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updates []model.OrderUpdate
	for _, order := range s.orders {
		if order.Kind != kind || !strings.EqualFold(order.Maker, maker) || order.Nonce == nil {
			continue
		}
		if !order.Status.Active() || !match(order.Nonce) {
			continue
		}
		updates = append(updates, model.OrderUpdate{
			ID:             order.ID,
			Kind:           order.Kind,
			Status:         model.StatusCancelled,
			PreviousStatus: order.Status,
		})
		order.Status = model.StatusCancelled
		order.UpdatedAt = time.Now().UTC()
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	return updates
}

// LoadState returns the last processed block recorded under name.
func (s *Store) LoadState(_ context.Context, name string) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, ok := s.syncState[name]
	return block, ok, nil
}

func (s *Store) SaveState(_ context.Context, name string, block uint64) error {
	s.mu.Lock()
	s.syncState[name] = block
	s.mu.Unlock()
	return nil
}
