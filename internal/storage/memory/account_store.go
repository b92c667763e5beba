package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// AccountStore is an in-memory implementation of ledger.AccountStore.
// A single mutex serializes every update.
type AccountStore struct {
	mu   sync.RWMutex
	data map[solana.Pubkey]*ledger.Account
	seq  uint64
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[solana.Pubkey]*ledger.Account),
	}
}

// Get returns a copy of the account. Returns ledger.ErrAccountNotFound if absent.
func (s *AccountStore) Get(_ context.Context, addr solana.Pubkey) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, exists := s.data[addr]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	return acc.Clone(), nil
}

// GetMany returns copies of the accounts present at addrs.
func (s *AccountStore) GetMany(ctx context.Context, addrs []solana.Pubkey) (map[solana.Pubkey]*ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[solana.Pubkey]*ledger.Account, len(addrs))
	for _, addr := range addrs {
		if acc, ok := s.data[addr]; ok {
			out[addr] = acc.Clone()
		}
	}
	return out, nil
}

// Update runs fn under the store lock and applies its writes.
func (s *AccountStore) Update(ctx context.Context, addrs []solana.Pubkey, fn ledger.UpdateFunc) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[solana.Pubkey]*ledger.Account, len(addrs))
	for _, addr := range addrs {
		if acc, ok := s.data[addr]; ok {
			snapshot[addr] = acc.Clone()
		}
	}

	writes, err := fn(snapshot)
	if err != nil {
		return 0, err
	}

	// Store copies to prevent external mutation
	for _, acc := range writes {
		s.data[acc.Address] = acc.Clone()
	}
	s.seq++
	return s.seq, nil
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Verify interface compliance at compile time.
var _ ledger.AccountStore = (*AccountStore)(nil)
