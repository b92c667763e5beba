// Package client is the transaction facade over a ledger: it derives the
// accounts of each vault operation, signs and submits the transaction and
// appends committed vault events to the journal.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/observability"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/storage"
	"github.com/Alibek10599/token-vault/internal/vault"
)

// DefaultSubmitTimeout bounds a single submission.
const DefaultSubmitTimeout = 30 * time.Second

var (
	// ErrReadOnly is returned by write operations of a client built with NewReadOnly.
	ErrReadOnly = errors.New("client is read-only")

	// ErrNoJournal is returned by Events when no journal is configured.
	ErrNoJournal = errors.New("no event journal configured")
)

// AccountReader reads committed accounts. ledger.Ledger and remote.AccountReader
// satisfy it. Absent accounts yield ledger.ErrAccountNotFound from GetAccount
// and nil entries from GetAccounts, which reads every address from one state.
type AccountReader interface {
	GetAccount(ctx context.Context, addr solana.Pubkey) (*ledger.Account, error)
	GetAccounts(ctx context.Context, addrs []solana.Pubkey) ([]*ledger.Account, error)
}

var _ Submitter = (*ledger.Ledger)(nil)

// Submitter executes signed transactions.
type Submitter interface {
	AccountReader
	Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error)
}

// Client performs vault and token operations.
type Client struct {
	submitter Submitter
	reader    AccountReader
	programID solana.Pubkey
	journal   storage.EventStore
	logger    *zap.Logger
	metrics   *observability.Metrics
	timeout   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithProgramID sets the vault program address.
func WithProgramID(id solana.Pubkey) Option {
	return func(c *Client) {
		c.programID = id
	}
}

// WithJournal appends committed vault events to store.
func WithJournal(store storage.EventStore) Option {
	return func(c *Client) {
		c.journal = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSubmitTimeout bounds each submission. Zero disables the bound.
func WithSubmitTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client that submits through s.
func New(s Submitter, opts ...Option) *Client {
	c := newClient(s, opts)
	c.submitter = s
	return c
}

// NewReadOnly creates a client that can only read, e.g. from a remote cluster.
func NewReadOnly(r AccountReader, opts ...Option) *Client {
	return newClient(r, opts)
}

func newClient(r AccountReader, opts []Option) *Client {
	c := &Client{
		reader:    r,
		programID: vault.DefaultProgramID,
		logger:    zap.NewNop(),
		metrics:   observability.DefaultMetrics,
		timeout:   DefaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = observability.NewMetrics("", nil)
	}
	return c
}

// ProgramID returns the vault program address.
func (c *Client) ProgramID() solana.Pubkey {
	return c.programID
}

// Result describes a committed operation.
type Result struct {
	*ledger.Receipt

	// Vault is the vault the operation acted on, zero for token operations.
	Vault solana.Pubkey

	// VaultEvents are the decoded vault events emitted by the transaction.
	VaultEvents []*vault.Event
}

// submit signs ix with signers and submits it. op labels logs and metrics.
func (c *Client) submit(ctx context.Context, op string, ix ledger.Instruction, signers ...identity.Signer) (*Result, error) {
	if c.submitter == nil {
		return nil, ErrReadOnly
	}

	tx := ledger.NewTransaction(ix)
	if err := tx.Sign(signers...); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, vault.ErrUnauthorized, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	receipt, err := c.submitter.Submit(ctx, tx)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		status, mapped := classify(err)
		c.metrics.RecordSubmit(op, status, elapsed)
		c.logger.Warn("transaction failed",
			zap.String("op", op),
			zap.String("signature", tx.ID()),
			zap.String("status", status),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", op, mapped)
	}
	c.metrics.RecordSubmit(op, observability.StatusCommitted, elapsed)

	res := &Result{Receipt: receipt}
	for _, ev := range receipt.Events {
		if ev.Program != c.programID {
			continue
		}
		decoded, err := vault.DecodeEvent(ev.Data)
		if err != nil {
			c.logger.Error("undecodable vault event", zap.String("signature", receipt.Signature), zap.Error(err))
			continue
		}
		res.VaultEvents = append(res.VaultEvents, decoded)
	}

	c.logger.Info("transaction committed",
		zap.String("op", op),
		zap.String("signature", receipt.Signature),
		zap.Uint64("seq", receipt.Seq),
	)

	c.appendJournal(ctx, receipt)
	return res, nil
}

// classify maps a submission error to a metrics status and the error returned to callers.
// Signature failures surface as vault.ErrUnauthorized.
func classify(err error) (string, error) {
	switch {
	case errors.Is(err, ledger.ErrMissingSignature), errors.Is(err, ledger.ErrInvalidSignature):
		return observability.StatusRejected, fmt.Errorf("%w: %w", vault.ErrUnauthorized, err)
	case errors.Is(err, ledger.ErrSubmissionRejected), errors.Is(err, ledger.ErrAlreadyProcessed):
		return observability.StatusRejected, err
	case errors.Is(err, ledger.ErrSubmissionTimeout):
		return observability.StatusTimeout, err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return observability.StatusTimeout, fmt.Errorf("%w: %w", ledger.ErrSubmissionTimeout, err)
	default:
		return observability.StatusError, err
	}
}
