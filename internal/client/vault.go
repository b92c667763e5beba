package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/token"
	"github.com/Alibek10599/token-vault/internal/vault"
)

// InitOption configures InitializeVault.
type InitOption func(*vault.InitializeVaultAccounts)

// WithFeeCollector routes withdrawal fees to collector instead of the authority.
func WithFeeCollector(collector solana.Pubkey) InitOption {
	return func(a *vault.InitializeVaultAccounts) {
		a.FeeCollector = collector
	}
}

// InitializeVault creates the vault of (authority, mint, name) and its custody
// account. Result.Vault holds the vault address.
func (c *Client) InitializeVault(
	ctx context.Context,
	authority identity.Signer,
	mint solana.Pubkey,
	name string,
	feeBps uint16,
	timelock int64,
	limit uint64,
	opts ...InitOption,
) (*Result, error) {
	addrs, err := vault.DeriveAddresses(c.programID, authority.PublicKey(), mint, name)
	if err != nil {
		return nil, fmt.Errorf("initialize vault: %w", err)
	}

	accounts := vault.InitializeVaultAccounts{
		Authority:         authority.PublicKey(),
		Vault:             addrs.Vault,
		VaultTokenAccount: addrs.Custody,
		TokenMint:         mint,
	}
	for _, opt := range opts {
		opt(&accounts)
	}

	ix := vault.NewInitializeVaultInstruction(c.programID, accounts, vault.InitializeVaultArgs{
		Name:               name,
		FeePercentage:      feeBps,
		WithdrawalTimelock: timelock,
		WithdrawalLimit:    limit,
	})

	res, err := c.submit(ctx, "initialize_vault", ix, authority)
	if err != nil {
		return nil, err
	}
	res.Vault = addrs.Vault

	c.logger.Info("vault initialized",
		zap.String("vault", addrs.Vault.String()),
		zap.String("authority", authority.PublicKey().String()),
		zap.String("mint", mint.String()),
		zap.Uint16("fee_bps", feeBps),
	)
	return res, nil
}

// Deposit transfers amount from the depositor's associated token account into custody.
func (c *Client) Deposit(ctx context.Context, depositor identity.Signer, vaultAddr solana.Pubkey, amount uint64) (*Result, error) {
	if amount == 0 {
		return nil, fmt.Errorf("deposit: %w", vault.ErrZeroAmount)
	}

	rec, err := c.GetVaultInfo(ctx, vaultAddr)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	custody, _, err := vault.FindCustodyAddress(c.programID, vaultAddr)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	source, _, err := token.FindAssociatedTokenAddress(depositor.PublicKey(), rec.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}

	ix := vault.NewDepositInstruction(c.programID, vault.DepositAccounts{
		Depositor:             depositor.PublicKey(),
		Vault:                 vaultAddr,
		VaultTokenAccount:     custody,
		DepositorTokenAccount: source,
	}, amount)

	res, err := c.submit(ctx, "deposit", ix, depositor)
	if err != nil {
		return nil, err
	}
	res.Vault = vaultAddr

	c.logger.Info("deposit committed",
		zap.String("vault", vaultAddr.String()),
		zap.String("signature", res.Signature),
		zap.Uint64("amount", amount),
	)
	return res, nil
}

// Withdraw releases amount from custody: the net to the withdrawer's associated
// token account and the fee to the fee collector's. Missing associated
// accounts are created by the program.
func (c *Client) Withdraw(ctx context.Context, withdrawer identity.Signer, vaultAddr solana.Pubkey, amount uint64) (*Result, error) {
	if amount == 0 {
		return nil, fmt.Errorf("withdraw: %w", vault.ErrZeroAmount)
	}

	rec, err := c.GetVaultInfo(ctx, vaultAddr)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	custody, _, err := vault.FindCustodyAddress(c.programID, vaultAddr)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	dest, _, err := token.FindAssociatedTokenAddress(withdrawer.PublicKey(), rec.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}
	feeDest, _, err := token.FindAssociatedTokenAddress(rec.FeeCollector, rec.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("withdraw: %w", err)
	}

	ix := vault.NewWithdrawInstruction(c.programID, vault.WithdrawAccounts{
		Withdrawer:               withdrawer.PublicKey(),
		Vault:                    vaultAddr,
		VaultTokenAccount:        custody,
		WithdrawerTokenAccount:   dest,
		FeeCollectorTokenAccount: feeDest,
		TokenMint:                rec.TokenMint,
	}, amount)

	res, err := c.submit(ctx, "withdraw", ix, withdrawer)
	if err != nil {
		return nil, err
	}
	res.Vault = vaultAddr

	fields := []zap.Field{
		zap.String("vault", vaultAddr.String()),
		zap.String("signature", res.Signature),
		zap.Uint64("amount", amount),
	}
	for _, ev := range res.VaultEvents {
		if ev.Kind == vault.EventWithdraw {
			fields = append(fields, zap.Uint64("fee", ev.Fee), zap.Uint64("net", ev.Net))
		}
	}
	c.logger.Info("withdrawal committed", fields...)
	return res, nil
}

// GetVaultInfo reads the vault record at vaultAddr.
func (c *Client) GetVaultInfo(ctx context.Context, vaultAddr solana.Pubkey) (*vault.Record, error) {
	acc, err := c.reader.GetAccount(ctx, vaultAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", vault.ErrVaultNotFound, vaultAddr)
		}
		return nil, fmt.Errorf("get vault %s: %w", vaultAddr, err)
	}
	return vault.ParseRecord(acc, c.programID)
}

// CustodyBalance returns the token balance held in custody for vaultAddr.
func (c *Client) CustodyBalance(ctx context.Context, vaultAddr solana.Pubkey) (uint64, error) {
	custody, _, err := vault.FindCustodyAddress(c.programID, vaultAddr)
	if err != nil {
		return 0, err
	}
	return c.TokenBalance(ctx, custody)
}

// AuditReport compares a vault's recorded total with its custody balance.
type AuditReport struct {
	Vault          solana.Pubkey
	Custody        solana.Pubkey
	TotalDeposited uint64
	CustodyBalance uint64
}

// Balanced reports whether custody holds exactly the recorded total.
func (r *AuditReport) Balanced() bool {
	return r.TotalDeposited == r.CustodyBalance
}

// Audit checks that custody holds exactly total_deposited. The vault record and
// the custody account are read together so a concurrent commit cannot split
// them. On mismatch the report is returned together with an error matching
// vault.ErrInvariantViolation.
func (c *Client) Audit(ctx context.Context, vaultAddr solana.Pubkey) (*AuditReport, error) {
	custody, _, err := vault.FindCustodyAddress(c.programID, vaultAddr)
	if err != nil {
		return nil, err
	}
	accs, err := c.reader.GetAccounts(ctx, []solana.Pubkey{vaultAddr, custody})
	if err != nil {
		return nil, fmt.Errorf("audit %s: %w", vaultAddr, err)
	}
	if accs[0] == nil {
		return nil, fmt.Errorf("%w: %s", vault.ErrVaultNotFound, vaultAddr)
	}
	rec, err := vault.ParseRecord(accs[0], c.programID)
	if err != nil {
		return nil, err
	}
	var balance uint64
	if accs[1] != nil {
		tok, err := token.ParseAccount(accs[1])
		if err != nil {
			return nil, err
		}
		balance = tok.Amount
	}

	report := &AuditReport{
		Vault:          vaultAddr,
		Custody:        custody,
		TotalDeposited: rec.TotalDeposited,
		CustodyBalance: balance,
	}
	if !report.Balanced() {
		c.logger.Error("vault invariant violated",
			zap.String("vault", vaultAddr.String()),
			zap.Uint64("total_deposited", rec.TotalDeposited),
			zap.Uint64("custody_balance", balance),
		)
		return report, fmt.Errorf("%w: vault %s total %d, custody %d",
			vault.ErrInvariantViolation, vaultAddr, rec.TotalDeposited, balance)
	}
	return report, nil
}

// Events returns the journaled events of vaultAddr in commit order.
func (c *Client) Events(ctx context.Context, vaultAddr solana.Pubkey) ([]*domain.Event, error) {
	if c.journal == nil {
		return nil, ErrNoJournal
	}
	return c.journal.GetByVault(ctx, vaultAddr.String())
}
