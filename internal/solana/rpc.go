package solana

import "context"

// RPCClient defines the subset of the Solana JSON-RPC HTTP interface used to read accounts.
type RPCClient interface {
	// GetAccountInfo retrieves a single account. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetMultipleAccounts retrieves several accounts in one round trip.
	// The result has one entry per requested key; missing accounts are nil.
	GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*AccountInfo, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
