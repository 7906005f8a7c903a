package memory

import (
	"context"
	"math/big"
	"strings"

	"orderbookSync/internal/model"
)

func (s *Store) InsertEvents(_ context.Context, batch model.EventBatch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, ev := range batch.Cancels {
		if _, ok := s.cancels[ev.Key()]; !ok {
			s.cancels[ev.Key()] = ev
			inserted++
		}
	}
	for _, ev := range batch.Fills {
		if _, ok := s.fills[ev.Key()]; !ok {
			s.fills[ev.Key()] = ev
			inserted++
		}
	}
	for _, ev := range batch.BulkCancels {
		if _, ok := s.bulkCancels[ev.Key()]; !ok {
			s.bulkCancels[ev.Key()] = ev
			inserted++
		}
	}
	for _, ev := range batch.NonceCancels {
		if _, ok := s.nonceCancels[ev.Key()]; !ok {
			s.nonceCancels[ev.Key()] = ev
			inserted++
		}
	}
	return inserted, nil
}

// DeleteEventsByBlock removes the block's events and returns every reference
// still pending for it, including those of earlier unfinished removals.
func (s *Store) DeleteEventsByBlock(_ context.Context, blockHash string) (model.RemovedEvents, error) {
	blockHash = strings.ToLower(blockHash)
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed model.RemovedEvents
	hashes := make(map[string]struct{})
	makers := make(map[model.MakerRef]struct{})

	for key, ev := range s.cancels {
		if strings.EqualFold(ev.BlockHash, blockHash) {
			hashes[ev.OrderHash] = struct{}{}
			delete(s.cancels, key)
			removed.Count++
		}
	}
	for key, ev := range s.fills {
		if strings.EqualFold(ev.BlockHash, blockHash) {
			for _, hash := range ev.OrderHashes() {
				hashes[hash] = struct{}{}
			}
			delete(s.fills, key)
			removed.Count++
		}
	}
	for key, ev := range s.bulkCancels {
		if strings.EqualFold(ev.BlockHash, blockHash) {
			makers[model.MakerRef{OrderKind: ev.OrderKind, Maker: ev.Maker}] = struct{}{}
			delete(s.bulkCancels, key)
			removed.Count++
		}
	}
	for key, ev := range s.nonceCancels {
		if strings.EqualFold(ev.BlockHash, blockHash) {
			makers[model.MakerRef{OrderKind: ev.OrderKind, Maker: ev.Maker}] = struct{}{}
			delete(s.nonceCancels, key)
			removed.Count++
		}
	}

	pending, ok := s.pendingReorgs[blockHash]
	if !ok && len(hashes) == 0 && len(makers) == 0 {
		return removed, nil
	}
	if !ok {
		pending = &pendingReorg{hashes: make(map[string]struct{}), makers: make(map[model.MakerRef]struct{})}
		s.pendingReorgs[blockHash] = pending
	}
	for hash := range hashes {
		pending.hashes[hash] = struct{}{}
	}
	for ref := range makers {
		pending.makers[ref] = struct{}{}
	}

	for hash := range pending.hashes {
		removed.OrderHashes = append(removed.OrderHashes, hash)
	}
	for ref := range pending.makers {
		removed.Makers = append(removed.Makers, ref)
	}
	return removed, nil
}

// ClearPendingReorg forgets the rollback recorded for blockHash.
func (s *Store) ClearPendingReorg(_ context.Context, blockHash string) error {
	s.mu.Lock()
	delete(s.pendingReorgs, strings.ToLower(blockHash))
	s.mu.Unlock()
	return nil
}

func (s *Store) IsOrderCancelled(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.cancels {
		if strings.EqualFold(ev.OrderHash, hash) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) QuantityFilled(_ context.Context, hash string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := new(big.Int)
	for _, ev := range s.fills {
		if !strings.EqualFold(ev.BuyOrderHash, hash) && !strings.EqualFold(ev.SellOrderHash, hash) {
			continue
		}
		if ev.Amount != nil {
			total.Add(total, ev.Amount)
		}
	}
	return total, nil
}

// MaxBulkCancelNonce returns nil when the maker never bulk-cancelled.
func (s *Store) MaxBulkCancelNonce(_ context.Context, kind, maker string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var highest *big.Int
	for _, ev := range s.bulkCancels {
		if ev.OrderKind != kind || !strings.EqualFold(ev.Maker, maker) || ev.MinNonce == nil {
			continue
		}
		if highest == nil || ev.MinNonce.Cmp(highest) > 0 {
			highest = new(big.Int).Set(ev.MinNonce)
		}
	}
	return highest, nil
}

func (s *Store) IsNonceCancelled(_ context.Context, kind, maker string, nonce *big.Int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.nonceCancels {
		if ev.OrderKind == kind && strings.EqualFold(ev.Maker, maker) && ev.Nonce != nil && ev.Nonce.Cmp(nonce) == 0 {
			return true, nil
		}
	}
	return false, nil
}
