package vault

import (
	"fmt"
	"strings"

	"github.com/Alibek10599/token-vault/internal/policy"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// WithdrawPolicy decides who may withdraw from a vault.
type WithdrawPolicy int

const (
	// AuthorityOnly requires the withdrawer to be the vault authority.
	AuthorityOnly WithdrawPolicy = iota
	// AnyHolder lets any signer withdraw within the limit and timelock.
	AnyHolder
)

func (p WithdrawPolicy) String() string {
	switch p {
	case AuthorityOnly:
		return "authority-only"
	case AnyHolder:
		return "any-holder"
	default:
		return fmt.Sprintf("WithdrawPolicy(%d)", int(p))
	}
}

// ParseWithdrawPolicy parses "authority-only" or "any-holder".
func ParseWithdrawPolicy(s string) (WithdrawPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "authority-only", "authority":
		return AuthorityOnly, nil
	case "any-holder", "any":
		return AnyHolder, nil
	default:
		return 0, fmt.Errorf("unknown withdraw policy %q", s)
	}
}

// InitParams are the inputs of Initialize.
type InitParams struct {
	Authority          solana.Pubkey
	TokenMint          solana.Pubkey
	FeeCollector       solana.Pubkey
	Name               string
	FeePercentage      uint16
	WithdrawalTimelock int64
	WithdrawalLimit    uint64
	Bump               uint8
}

// Validate checks the configuration fields.
func (p InitParams) Validate() error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if err := policy.ValidateFeeConfig(p.FeePercentage); err != nil {
		return err
	}
	if p.WithdrawalTimelock < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimelock, p.WithdrawalTimelock)
	}
	if p.WithdrawalLimit == 0 {
		return ErrInvalidWithdrawalLimit
	}
	return nil
}

// NewRecord returns the Active state produced by Initialize at time now.
// A zero FeeCollector defaults to the authority.
func NewRecord(p InitParams, now int64) (*Record, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	feeCollector := p.FeeCollector
	if feeCollector.IsZero() {
		feeCollector = p.Authority
	}
	return &Record{
		Authority:          p.Authority,
		TokenMint:          p.TokenMint,
		FeeCollector:       feeCollector,
		FeePercentage:      p.FeePercentage,
		WithdrawalTimelock: p.WithdrawalTimelock,
		WithdrawalLimit:    p.WithdrawalLimit,
		TotalDeposited:     0,
		Name:               p.Name,
		Bump:               p.Bump,
		CreationTime:       now,
	}, nil
}

// ApplyDeposit adds amount to the running total.
func (r *Record) ApplyDeposit(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if r.TotalDeposited+amount < r.TotalDeposited {
		return fmt.Errorf("%w: total %d + %d", ErrArithmeticOverflow, r.TotalDeposited, amount)
	}
	r.TotalDeposited += amount
	return nil
}

// WithdrawRequest carries the values a withdrawal is validated against.
// CustodyBalance and Now must be read in the same atomic submission.
type WithdrawRequest struct {
	Withdrawer     solana.Pubkey
	Amount         uint64
	Now            int64
	CustodyBalance uint64
	Policy         WithdrawPolicy
}

// Withdrawal is the fee split of an accepted withdrawal.
type Withdrawal struct {
	Amount uint64
	Fee    uint64
	Net    uint64
}

// ApplyWithdraw validates req and subtracts the principal from the total.
// Checks run in order: zero amount, authorization, limit, timelock, balance.
func (r *Record) ApplyWithdraw(req WithdrawRequest) (Withdrawal, error) {
	if req.Amount == 0 {
		return Withdrawal{}, ErrZeroAmount
	}
	if req.Policy == AuthorityOnly && req.Withdrawer != r.Authority {
		return Withdrawal{}, fmt.Errorf("%w: %s is not the vault authority", ErrUnauthorized, req.Withdrawer)
	}
	if !policy.CheckLimit(req.Amount, r.WithdrawalLimit) {
		return Withdrawal{}, fmt.Errorf("%w: %d > %d", ErrExceedsWithdrawalLimit, req.Amount, r.WithdrawalLimit)
	}
	if !policy.CheckTimelock(r.CreationTime, req.Now, r.WithdrawalTimelock) {
		return Withdrawal{}, fmt.Errorf("%w: unlocks at %d, now %d", ErrTimelockNotElapsed, r.UnlockTime(), req.Now)
	}
	if req.CustodyBalance < req.Amount || r.TotalDeposited < req.Amount {
		return Withdrawal{}, fmt.Errorf("%w: custody %d, total %d, requested %d",
			ErrInsufficientVaultBalance, req.CustodyBalance, r.TotalDeposited, req.Amount)
	}

	fee, net := policy.ComputeFee(req.Amount, r.FeePercentage)
	r.TotalDeposited -= req.Amount
	return Withdrawal{Amount: req.Amount, Fee: fee, Net: net}, nil
}
