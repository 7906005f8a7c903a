package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"

	"orderbookSync/internal/model"
)

const orderColumns = `
	id, kind, side, fillability_status, approval_status, token_set_id,
	contract, token_id, currency, conduit, maker, taker,
	price::text, value::text, quantity::text, quantity_remaining::text,
	valid_from, valid_until, nonce::text, source, raw_data, created_at, updated_at`

// SaveOrder inserts an order, or replaces its non-derived fields if it exists.
func (s *Store) SaveOrder(ctx context.Context, o *model.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order id is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (
			id, kind, side, fillability_status, approval_status, token_set_id,
			contract, token_id, currency, conduit, maker, taker,
			price, value, quantity, quantity_remaining,
			valid_from, valid_until, nonce, source, raw_data, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,
			$13::numeric,$14::numeric,$15::numeric,$16::numeric,
			$17,$18,$19::numeric,$20,$21,COALESCE($22, now()),now()
		)
		ON CONFLICT (id) DO UPDATE SET
			token_set_id = EXCLUDED.token_set_id,
			price = EXCLUDED.price,
			value = EXCLUDED.value,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			source = EXCLUDED.source,
			raw_data = EXCLUDED.raw_data,
			updated_at = now()
	`,
		o.ID, o.Kind, string(o.Side), string(o.Status), string(o.Approval), o.TokenSetID,
		o.Contract, nullable(o.TokenID), o.Currency, nullable(o.Conduit), o.Maker, nullable(o.Taker),
		numericArg(o.Price), numericArg(o.Value), numericArg(amountOrOne(o.Quantity)), numericArg(amountOrOne(o.QuantityRemaining)),
		o.ValidFrom, o.ValidUntil, numericArg(o.Nonce), o.Source, rawData(o.RawData), nullableTime(o),
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

// GetOrder returns nil when the order does not exist.
func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) UpdateOrderState(ctx context.Context, id string, state model.OrderState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET
			fillability_status = $2,
			approval_status = $3,
			quantity_remaining = COALESCE($4::numeric, quantity_remaining),
			updated_at = now()
		WHERE id = $1
	`, id, string(state.Status), string(state.Approval), numericArg(state.QuantityRemaining))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}

// OrdersPage returns up to limit orders strictly after cursor in
// (created_at DESC, id DESC) order.
func (s *Store) OrdersPage(ctx context.Context, cursor *model.SweepCursor, limit int) ([]model.SweepCursor, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if cursor == nil {
		rows, err = s.pool.Query(ctx, `
			SELECT id, created_at FROM orders
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, created_at FROM orders
			WHERE (created_at, id) < ($1, $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("orders page: %w", err)
	}
	defer rows.Close()

	out := make([]model.SweepCursor, 0, limit)
	for rows.Next() {
		var c model.SweepCursor
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) OrderIDsByMaker(ctx context.Context, kind, maker string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM orders WHERE kind = $1 AND maker = $2 ORDER BY id`, kind, maker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CancelOrdersBelowNonce(ctx context.Context, kind, maker string, minNonce *big.Int) ([]model.OrderUpdate, error) {
	return s.cancelOrders(ctx, `nonce < $3::numeric`, kind, maker, numericArg(minNonce))
}

func (s *Store) CancelOrdersWithNonces(ctx context.Context, kind, maker string, nonces []*big.Int) ([]model.OrderUpdate, error) {
	values := make([]string, 0, len(nonces))
	for _, n := range nonces {
		values = append(values, n.String())
	}
	return s.cancelOrders(ctx, `nonce = ANY($3::text[]::numeric[])`, kind, maker, values)
}

func (s *Store) cancelOrders(ctx context.Context, noncePredicate string, kind, maker string, nonceArg any) ([]model.OrderUpdate, error) {
	rows, err := s.pool.Query(ctx, `
		WITH target AS (
			SELECT id, fillability_status FROM orders
			WHERE kind = $1 AND maker = $2 AND `+noncePredicate+`
				AND fillability_status IN ('valid', 'no-balance')
			FOR UPDATE
		)
		UPDATE orders o SET fillability_status = 'cancelled', updated_at = now()
		FROM target t
		WHERE o.id = t.id
		RETURNING o.id, o.kind, t.fillability_status
	`, kind, maker, nonceArg)
	if err != nil {
		return nil, fmt.Errorf("cancel orders: %w", err)
	}
	defer rows.Close()

	var updates []model.OrderUpdate
	for rows.Next() {
		var (
			u        model.OrderUpdate
			previous string
		)
		if err := rows.Scan(&u.ID, &u.Kind, &previous); err != nil {
			return nil, err
		}
		u.Status = model.StatusCancelled
		u.PreviousStatus = model.FillabilityStatus(previous)
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                                     model.Order
		side, status, approval                string
		tokenID, conduit, taker               *string
		price, value, quantity, remaining, nc *string
		raw                                   []byte
	)
	err := row.Scan(
		&o.ID, &o.Kind, &side, &status, &approval, &o.TokenSetID,
		&o.Contract, &tokenID, &o.Currency, &conduit, &o.Maker, &taker,
		&price, &value, &quantity, &remaining,
		&o.ValidFrom, &o.ValidUntil, &nc, &o.Source, &raw, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Side = model.OrderSide(side)
	o.Status = model.FillabilityStatus(status)
	o.Approval = model.ApprovalStatus(approval)
	o.TokenID = deref(tokenID)
	o.Conduit = deref(conduit)
	o.Taker = deref(taker)
	o.RawData = raw

	for _, f := range []struct {
		dst **big.Int
		src *string
	}{
		{&o.Price, price}, {&o.Value, value}, {&o.Quantity, quantity},
		{&o.QuantityRemaining, remaining}, {&o.Nonce, nc},
	} {
		v, err := parseNumeric(f.src)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		*f.dst = v
	}
	return &o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func rawData(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func nullableTime(o *model.Order) any {
	if o.CreatedAt.IsZero() {
		return nil
	}
	return o.CreatedAt
}
