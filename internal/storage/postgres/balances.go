package postgres

import (
	"context"
	"errors"
	"math/big"

	"github.com/jackc/pgx/v5"
)

// FtBalance reads the tracked fungible balance, zero when unknown.
func (s *Store) FtBalance(ctx context.Context, currency, owner string) (*big.Int, error) {
	return s.balance(ctx, `SELECT amount::text FROM ft_balances WHERE contract = $1 AND owner = $2`, currency, owner)
}

func (s *Store) NftBalance(ctx context.Context, contract, tokenID, owner string) (*big.Int, error) {
	return s.balance(ctx, `
		SELECT amount::text FROM nft_balances
		WHERE contract = $1 AND token_id = $2::numeric AND owner = $3
	`, contract, tokenID, owner)
}

// NftApproval uses the most recent approval event for the owner/operator pair
// and defaults to not approved.
func (s *Store) NftApproval(ctx context.Context, contract, owner, operator string) (bool, error) {
	var approved bool
	err := s.pool.QueryRow(ctx, `
		SELECT approved FROM nft_approval_events
		WHERE address = $1 AND owner = $2 AND operator = $3
		ORDER BY block DESC, log_index DESC
		LIMIT 1
	`, contract, owner, operator).Scan(&approved)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return approved, nil
}

func (s *Store) balance(ctx context.Context, query string, args ...any) (*big.Int, error) {
	var amount *string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, err
	}
	v, err := parseNumeric(amount)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return new(big.Int), nil
	}
	return v, nil
}
