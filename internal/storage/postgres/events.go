package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"orderbookSync/internal/model"
)

const (
	pendingOrder = "order"
	pendingMaker = "maker"
)

const (
	insertCancelSQL = `
		INSERT INTO cancel_events (
			tx_hash, log_index, batch_index, order_kind, order_hash,
			address, block, block_hash, tx_index, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (tx_hash, log_index, batch_index) DO NOTHING`

	insertFillSQL = `
		INSERT INTO fill_events (
			tx_hash, log_index, batch_index, order_kind, buy_order_hash, sell_order_hash,
			maker, taker, price, amount, contract, token_id,
			address, block, block_hash, tx_index, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10::numeric,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (tx_hash, log_index, batch_index) DO NOTHING`

	insertBulkCancelSQL = `
		INSERT INTO bulk_cancel_events (
			tx_hash, log_index, batch_index, order_kind, maker, min_nonce,
			address, block, block_hash, tx_index, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11)
		ON CONFLICT (tx_hash, log_index, batch_index) DO NOTHING`

	insertNonceCancelSQL = `
		INSERT INTO nonce_cancel_events (
			tx_hash, log_index, batch_index, order_kind, maker, nonce,
			address, block, block_hash, tx_index, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11)
		ON CONFLICT (tx_hash, log_index, batch_index) DO NOTHING`
)

// InsertEvents appends the batch in one transaction and returns how many
// events were new.
func (s *Store) InsertEvents(ctx context.Context, events model.EventBatch) (int, error) {
	if events.Len() == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, ev := range events.Cancels {
		p := ev.BaseEventParams
		batch.Queue(insertCancelSQL,
			p.TxHash, int64(p.LogIndex), int64(p.BatchIndex), ev.OrderKind, ev.OrderHash,
			p.Address, int64(p.BlockNumber), p.BlockHash, int64(p.TxIndex), int64(p.Timestamp),
		)
	}
	for _, ev := range events.Fills {
		p := ev.BaseEventParams
		batch.Queue(insertFillSQL,
			p.TxHash, int64(p.LogIndex), int64(p.BatchIndex), ev.OrderKind,
			nullable(ev.BuyOrderHash), nullable(ev.SellOrderHash),
			ev.Maker, ev.Taker, numericArg(ev.Price), numericArg(amountOrOne(ev.Amount)),
			nullable(ev.Contract), nullable(ev.TokenID),
			p.Address, int64(p.BlockNumber), p.BlockHash, int64(p.TxIndex), int64(p.Timestamp),
		)
	}
	for _, ev := range events.BulkCancels {
		p := ev.BaseEventParams
		batch.Queue(insertBulkCancelSQL,
			p.TxHash, int64(p.LogIndex), int64(p.BatchIndex), ev.OrderKind, ev.Maker, numericArg(ev.MinNonce),
			p.Address, int64(p.BlockNumber), p.BlockHash, int64(p.TxIndex), int64(p.Timestamp),
		)
	}
	for _, ev := range events.NonceCancels {
		p := ev.BaseEventParams
		batch.Queue(insertNonceCancelSQL,
			p.TxHash, int64(p.LogIndex), int64(p.BatchIndex), ev.OrderKind, ev.Maker, numericArg(ev.Nonce),
			p.Address, int64(p.BlockNumber), p.BlockHash, int64(p.TxIndex), int64(p.Timestamp),
		)
	}

	inserted := 0
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("insert event %d: %w", i, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// DeleteEventsByBlock removes every event of blockHash and reports the orders
// and makers they referenced.
func (s *Store) DeleteEventsByBlock(ctx context.Context, blockHash string) (model.RemovedEvents, error) {
	var removed model.RemovedEvents
	hashes := make(map[string]struct{})
	makers := make(map[model.MakerRef]struct{})

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM cancel_events WHERE block_hash = $1 RETURNING order_hash`, blockHash)
		if err != nil {
			return fmt.Errorf("delete cancel events: %w", err)
		}
		for rows.Next() {
			var hash string
			if err := rows.Scan(&hash); err != nil {
				rows.Close()
				return err
			}
			hashes[hash] = struct{}{}
			removed.Count++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `DELETE FROM fill_events WHERE block_hash = $1 RETURNING buy_order_hash, sell_order_hash`, blockHash)
		if err != nil {
			return fmt.Errorf("delete fill events: %w", err)
		}
		for rows.Next() {
			var buy, sell *string
			if err := rows.Scan(&buy, &sell); err != nil {
				rows.Close()
				return err
			}
			for _, h := range []*string{buy, sell} {
				if h != nil && *h != "" {
					hashes[*h] = struct{}{}
				}
			}
			removed.Count++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, table := range []string{"bulk_cancel_events", "nonce_cancel_events"} {
			rows, err = tx.Query(ctx, `DELETE FROM `+table+` WHERE block_hash = $1 RETURNING order_kind, maker`, blockHash)
			if err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
			for rows.Next() {
				var ref model.MakerRef
				if err := rows.Scan(&ref.OrderKind, &ref.Maker); err != nil {
					rows.Close()
					return err
				}
				makers[ref] = struct{}{}
				removed.Count++
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}

		return recordPendingReorg(ctx, tx, blockHash, hashes, makers)
	})
	if err != nil {
		return model.RemovedEvents{}, err
	}

	for hash := range hashes {
		removed.OrderHashes = append(removed.OrderHashes, hash)
	}
	for ref := range makers {
		removed.Makers = append(removed.Makers, ref)
	}
	return removed, nil
}

// recordPendingReorg adds this removal's references to the block's pending
// rollback and loads everything still pending into hashes and makers, so a
// rollback whose re-enqueue failed is returned again on retry.
func recordPendingReorg(ctx context.Context, tx pgx.Tx, blockHash string, hashes map[string]struct{}, makers map[model.MakerRef]struct{}) error {
	const insert = `
		INSERT INTO reorg_pending (block_hash, ref_type, order_kind, ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`

	batch := &pgx.Batch{}
	for hash := range hashes {
		batch.Queue(insert, blockHash, pendingOrder, "", hash)
	}
	for ref := range makers {
		batch.Queue(insert, blockHash, pendingMaker, ref.OrderKind, ref.Maker)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("record pending reorg: %w", err)
		}
	}

	rows, err := tx.Query(ctx, `SELECT ref_type, order_kind, ref FROM reorg_pending WHERE block_hash = $1`, blockHash)
	if err != nil {
		return fmt.Errorf("load pending reorg: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var refType, kind, ref string
		if err := rows.Scan(&refType, &kind, &ref); err != nil {
			return err
		}
		if refType == pendingMaker {
			makers[model.MakerRef{OrderKind: kind, Maker: ref}] = struct{}{}
		} else {
			hashes[ref] = struct{}{}
		}
	}
	return rows.Err()
}

// ClearPendingReorg drops the pending rollback once its follow-up work is queued.
func (s *Store) ClearPendingReorg(ctx context.Context, blockHash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM reorg_pending WHERE block_hash = $1`, blockHash); err != nil {
		return fmt.Errorf("clear pending reorg %s: %w", blockHash, err)
	}
	return nil
}

func (s *Store) IsOrderCancelled(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cancel_events WHERE order_hash = $1)`, hash).Scan(&exists)
	return exists, err
}

func (s *Store) QuantityFilled(ctx context.Context, hash string) (*big.Int, error) {
	var total *string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM fill_events
		WHERE buy_order_hash = $1 OR sell_order_hash = $1
	`, hash).Scan(&total)
	if err != nil {
		return nil, err
	}
	return parseNumeric(total)
}

// MaxBulkCancelNonce returns nil when the maker never bulk-cancelled.
func (s *Store) MaxBulkCancelNonce(ctx context.Context, kind, maker string) (*big.Int, error) {
	var nonce *string
	err := s.pool.QueryRow(ctx, `
		SELECT MAX(min_nonce)::text FROM bulk_cancel_events
		WHERE order_kind = $1 AND maker = $2
	`, kind, maker).Scan(&nonce)
	if err != nil {
		return nil, err
	}
	return parseNumeric(nonce)
}

func (s *Store) IsNonceCancelled(ctx context.Context, kind, maker string, nonce *big.Int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM nonce_cancel_events
			WHERE order_kind = $1 AND maker = $2 AND nonce = $3::numeric
		)
	`, kind, maker, numericArg(nonce)).Scan(&exists)
	return exists, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func amountOrOne(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(1)
	}
	return v
}
