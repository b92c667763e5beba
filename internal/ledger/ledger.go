// Package ledger is an account-based execution environment. A transaction
// carries one signed instruction; the ledger verifies signatures, runs the
// addressed program against a locked snapshot of every referenced account and
// commits all writes or none.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Alibek10599/token-vault/internal/solana"
)

// Receipt describes a committed transaction.
type Receipt struct {
	Signature string
	Seq       uint64
	Timestamp time.Time
	Events    []Event
	Logs      []string
}

// Ledger executes transactions against an AccountStore.
type Ledger struct {
	store    AccountStore
	programs map[solana.Pubkey]Program
	clock    func() time.Time
	logger   *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithProgram registers an on-ledger program.
func WithProgram(p Program) Option {
	return func(l *Ledger) {
		l.programs[p.ID()] = p
	}
}

// WithClock overrides the ledger clock.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a ledger over store.
func New(store AccountStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		programs: make(map[solana.Pubkey]Program),
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

// GetAccount reads a committed account.
func (l *Ledger) GetAccount(ctx context.Context, addr solana.Pubkey) (*Account, error) {
	return l.store.Get(ctx, addr)
}

// GetAccounts reads addrs from one committed state. Missing accounts are nil
// entries at their request position.
func (l *Ledger) GetAccounts(ctx context.Context, addrs []solana.Pubkey) ([]*Account, error) {
	found, err := l.store.GetMany(ctx, addrs)
	if err != nil {
		return nil, err
	}
	out := make([]*Account, len(addrs))
	for i, addr := range addrs {
		out[i] = found[addr]
	}
	return out, nil
}

// Now returns the ledger clock.
func (l *Ledger) Now() time.Time {
	return l.clock()
}

// Submit verifies and executes tx atomically.
//
// A program failure returns a *RejectedError. An expired context returns an
// error matching ErrSubmissionTimeout; in that case the transaction may or may
// not have been committed. Submit never retries.
func (l *Ledger) Submit(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if err := tx.Verify(); err != nil {
		return nil, err
	}

	ix := tx.Instruction
	if _, ok := l.programs[ix.ProgramID]; !ok {
		return nil, &RejectedError{Err: fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)}
	}

	sig := tx.ID()
	marker := processedAddress(tx.Signatures[0])
	ixAddrs := referencedAddresses(ix)
	addrs := append(append([]solana.Pubkey(nil), ixAddrs...), marker)

	var exec *execution
	seq, err := l.store.Update(ctx, addrs, func(accounts map[solana.Pubkey]*Account) ([]*Account, error) {
		if _, done := accounts[marker]; done {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
		}

		exec = newExecution(ctx, l.programs, ixAddrs, accounts, l.clock())
		if err := exec.run(ix, 1); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return nil, err
			}
			return nil, &RejectedError{Err: err}
		}

		writes := exec.writes()
		stamp := binary.LittleEndian.AppendUint64(nil, uint64(exec.now.Unix()))
		writes = append(writes, &Account{Address: marker, Owner: SystemProgramID, Data: stamp})
		return writes, nil
	})
	if err != nil {
		var rejected *RejectedError
		switch {
		case errors.As(err, &rejected):
			l.logger.Debug("transaction rejected",
				zap.String("signature", sig),
				zap.Error(rejected.Err),
			)
			return nil, rejected
		case errors.Is(err, ErrAlreadyProcessed):
			return nil, err
		case ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%w: %s: %v", ErrSubmissionTimeout, sig, err)
		default:
			return nil, fmt.Errorf("submit %s: %w", sig, err)
		}
	}

	l.logger.Debug("transaction committed",
		zap.String("signature", sig),
		zap.Uint64("seq", seq),
		zap.Int("events", len(exec.events)),
	)

	return &Receipt{
		Signature: sig,
		Seq:       seq,
		Timestamp: exec.now,
		Events:    exec.events,
		Logs:      exec.logs,
	}, nil
}

// processedAddress is where the ledger records that a signature was committed.
func processedAddress(sig []byte) solana.Pubkey {
	h := sha256.New()
	h.Write([]byte("processed"))
	h.Write(sig)
	var pk solana.Pubkey
	copy(pk[:], h.Sum(nil))
	return pk
}

func referencedAddresses(ix Instruction) []solana.Pubkey {
	seen := make(map[solana.Pubkey]bool, len(ix.Accounts))
	out := make([]solana.Pubkey, 0, len(ix.Accounts)+1)
	for _, m := range ix.Accounts {
		if !seen[m.Pubkey] {
			seen[m.Pubkey] = true
			out = append(out, m.Pubkey)
		}
	}
	return out
}
