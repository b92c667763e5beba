package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
)

const (
	defaultPrefix     = "tokenvault:"
	defaultMaxRetries = 64
	retryBackoff      = 2 * time.Millisecond
)

// ErrTooManyConflicts is returned when optimistic retries are exhausted.
var ErrTooManyConflicts = errors.New("redis: too many concurrent updates")

// AccountStore implements ledger.AccountStore on Redis using WATCH/MULTI/EXEC.
// Each account is one string value: owner (32 bytes) followed by data.
// Update may invoke its UpdateFunc more than once when a watched key changes.
type AccountStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// Option configures an AccountStore.
type Option func(*AccountStore)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *AccountStore) {
		s.prefix = prefix
	}
}

// WithMaxRetries bounds optimistic retries per Update.
func WithMaxRetries(n int) Option {
	return func(s *AccountStore) {
		s.maxRetries = n
	}
}

// NewAccountStore creates a new Redis account store.
func NewAccountStore(client redis.UniversalClient, opts ...Option) *AccountStore {
	s := &AccountStore{
		client:     client,
		prefix:     defaultPrefix,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time interface check.
var _ ledger.AccountStore = (*AccountStore)(nil)

func (s *AccountStore) accountKey(addr solana.Pubkey) string {
	return s.prefix + "account:" + addr.String()
}

func (s *AccountStore) seqKey() string {
	return s.prefix + "seq"
}

// Get returns the account at addr or ledger.ErrAccountNotFound.
func (s *AccountStore) Get(ctx context.Context, addr solana.Pubkey) (*ledger.Account, error) {
	val, err := s.client.Get(ctx, s.accountKey(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeAccount(addr, val)
}

// mgetter is satisfied by both the client and a WATCH transaction.
type mgetter interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// GetMany reads addrs with a single MGET, which Redis executes atomically.
func (s *AccountStore) GetMany(ctx context.Context, addrs []solana.Pubkey) (map[solana.Pubkey]*ledger.Account, error) {
	return s.mget(ctx, s.client, addrs)
}

func (s *AccountStore) mget(ctx context.Context, c mgetter, addrs []solana.Pubkey) (map[solana.Pubkey]*ledger.Account, error) {
	out := make(map[solana.Pubkey]*ledger.Account, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}

	keys := make([]string, len(addrs))
	for i, addr := range addrs {
		keys[i] = s.accountKey(addr)
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		acc, err := decodeAccount(addrs[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		out[addrs[i]] = acc
	}
	return out, nil
}

// Update watches every key in addrs, runs fn and commits its writes in one
// MULTI/EXEC. A conflicting write by another client restarts the attempt.
func (s *AccountStore) Update(ctx context.Context, addrs []solana.Pubkey, fn ledger.UpdateFunc) (uint64, error) {
	keys := make([]string, len(addrs))
	for i, addr := range addrs {
		keys[i] = s.accountKey(addr)
	}

	var seq uint64
	txf := func(tx *redis.Tx) error {
		snapshot, err := s.mget(ctx, tx, addrs)
		if err != nil {
			return err
		}

		writes, err := fn(snapshot)
		if err != nil {
			return err
		}

		var incr *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, acc := range writes {
				pipe.Set(ctx, s.accountKey(acc.Address), encodeAccount(acc), 0)
			}
			incr = pipe.Incr(ctx, s.seqKey())
			return nil
		})
		if err != nil {
			return err
		}
		seq = uint64(incr.Val())
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		err := s.client.Watch(ctx, txf, keys...)
		if err == nil {
			return seq, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return 0, err
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt+1)):
		}
	}

	return 0, ErrTooManyConflicts
}

func encodeAccount(acc *ledger.Account) []byte {
	buf := make([]byte, 0, solana.PubkeyLength+len(acc.Data))
	buf = append(buf, acc.Owner[:]...)
	return append(buf, acc.Data...)
}

func decodeAccount(addr solana.Pubkey, val []byte) (*ledger.Account, error) {
	if len(val) < solana.PubkeyLength {
		return nil, fmt.Errorf("account %s: corrupt value of %d bytes", addr, len(val))
	}
	acc := &ledger.Account{Address: addr, Data: make([]byte, len(val)-solana.PubkeyLength)}
	copy(acc.Owner[:], val[:solana.PubkeyLength])
	copy(acc.Data, val[solana.PubkeyLength:])
	return acc, nil
}
