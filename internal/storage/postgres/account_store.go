package postgres

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// AccountStore implements ledger.AccountStore using PostgreSQL.
//
// Update takes a transaction-scoped advisory lock per address, in ascending
// address order, so updates sharing an address serialize and disjoint updates
// run concurrently.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ ledger.AccountStore = (*AccountStore)(nil)

// Get returns the account at addr or ledger.ErrAccountNotFound.
func (s *AccountStore) Get(ctx context.Context, addr solana.Pubkey) (*ledger.Account, error) {
	query := `
		SELECT address, owner, data
		FROM ledger_accounts
		WHERE address = $1
	`

	acc, err := scanAccount(s.pool.QueryRow(ctx, query, addr[:]))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// GetMany reads addrs in one statement, so every row comes from the same snapshot.
func (s *AccountStore) GetMany(ctx context.Context, addrs []solana.Pubkey) (map[solana.Pubkey]*ledger.Account, error) {
	keys := make([][]byte, len(addrs))
	for i, addr := range addrs {
		keys[i] = addr.Bytes()
	}

	rows, err := s.pool.Query(ctx, `
		SELECT address, owner, data
		FROM ledger_accounts
		WHERE address = ANY($1)
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	return scanAccounts(rows)
}

// Update runs fn inside a transaction holding locks on addrs.
func (s *AccountStore) Update(ctx context.Context, addrs []solana.Pubkey, fn ledger.UpdateFunc) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sorted := sortedUnique(addrs)
	for _, addr := range sorted {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(addr)); err != nil {
			return 0, fmt.Errorf("lock account %s: %w", addr, err)
		}
	}

	keys := make([][]byte, len(sorted))
	for i, addr := range sorted {
		keys[i] = addr.Bytes()
	}

	rows, err := tx.Query(ctx, `
		SELECT address, owner, data
		FROM ledger_accounts
		WHERE address = ANY($1)
	`, keys)
	if err != nil {
		return 0, fmt.Errorf("load accounts: %w", err)
	}
	snapshot, err := scanAccounts(rows)
	if err != nil {
		return 0, err
	}

	writes, err := fn(snapshot)
	if err != nil {
		return 0, err
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('ledger_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}

	batch := &pgx.Batch{}
	for _, acc := range writes {
		batch.Queue(`
			INSERT INTO ledger_accounts (address, owner, data, seq, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (address) DO UPDATE
			SET owner = EXCLUDED.owner,
			    data = EXCLUDED.data,
			    seq = EXCLUDED.seq,
			    updated_at = NOW()
		`, acc.Address[:], acc.Owner[:], acc.Data, seq)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("write accounts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return uint64(seq), nil
}

// lockKey maps an address onto the advisory lock keyspace.
func lockKey(addr solana.Pubkey) int64 {
	return int64(binary.BigEndian.Uint64(addr[:8]))
}

func sortedUnique(addrs []solana.Pubkey) []solana.Pubkey {
	out := make([]solana.Pubkey, 0, len(addrs))
	seen := make(map[solana.Pubkey]bool, len(addrs))
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var addr, owner, data []byte
	if err := row.Scan(&addr, &owner, &data); err != nil {
		return nil, err
	}

	acc := &ledger.Account{Data: data}
	var err error
	if acc.Address, err = solana.PubkeyFromBytes(addr); err != nil {
		return nil, fmt.Errorf("account address: %w", err)
	}
	if acc.Owner, err = solana.PubkeyFromBytes(owner); err != nil {
		return nil, fmt.Errorf("account owner: %w", err)
	}
	if acc.Data == nil {
		acc.Data = []byte{}
	}
	return acc, nil
}

func scanAccounts(rows pgx.Rows) (map[solana.Pubkey]*ledger.Account, error) {
	defer rows.Close()

	accounts := make(map[solana.Pubkey]*ledger.Account)
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts[acc.Address] = acc
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	return accounts, nil
}
