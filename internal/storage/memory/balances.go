package memory

import (
	"context"
	"math/big"
	"strings"
)

func balanceKey(parts ...string) string {
	for i := range parts {
		parts[i] = strings.ToLower(parts[i])
	}
	return strings.Join(parts, "|")
}

func (s *Store) SetFtBalance(currency, owner string, amount *big.Int) {
	s.mu.Lock()
	s.ftBalances[balanceKey(currency, owner)] = new(big.Int).Set(amount)
	s.mu.Unlock()
}

func (s *Store) SetNftBalance(contract, tokenID, owner string, amount *big.Int) {
	s.mu.Lock()
	s.nftBalances[balanceKey(contract, tokenID, owner)] = new(big.Int).Set(amount)
	s.mu.Unlock()
}

// RecordApproval keeps the approval event with the highest (block, log index).
func (s *Store) RecordApproval(contract, owner, operator string, approved bool, block, logIndex uint64) {
	key := balanceKey(contract, owner, operator)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.approvals[key]
	if ok && (prev.block > block || (prev.block == block && prev.logIndex > logIndex)) {
		return
	}
	s.approvals[key] = approval{block: block, logIndex: logIndex, approved: approved}
}

func (s *Store) FtBalance(_ context.Context, currency, owner string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.ftBalances[balanceKey(currency, owner)]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (s *Store) NftBalance(_ context.Context, contract, tokenID, owner string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.nftBalances[balanceKey(contract, tokenID, owner)]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// NftApproval defaults to not approved when no approval event was recorded.
func (s *Store) NftApproval(_ context.Context, contract, owner, operator string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approvals[balanceKey(contract, owner, operator)].approved, nil
}
