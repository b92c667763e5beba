package ledger

import (
	"context"

	"github.com/Alibek10599/token-vault/internal/solana"
)

// UpdateFunc receives the current state of the requested accounts, keyed by
// address; absent accounts are missing from the map. It returns the accounts to
// persist. Returning an error discards every write. Optimistic stores may call
// fn again after a conflict, so fn must not depend on state from an earlier call.
type UpdateFunc func(accounts map[solana.Pubkey]*Account) ([]*Account, error)

// AccountStore persists ledger accounts.
type AccountStore interface {
	// Get returns the account at addr or ErrAccountNotFound.
	Get(ctx context.Context, addr solana.Pubkey) (*Account, error)

	// GetMany reads addrs from one committed state. Absent accounts are
	// missing from the map.
	GetMany(ctx context.Context, addrs []solana.Pubkey) (map[solana.Pubkey]*Account, error)

	// Update runs fn against a consistent snapshot of addrs and commits its writes
	// atomically. Concurrent updates touching a common address are serialized.
	// Returns the commit sequence number assigned to the write set.
	Update(ctx context.Context, addrs []solana.Pubkey, fn UpdateFunc) (uint64, error)
}
