package vault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/storage/memory"
	"github.com/Alibek10599/token-vault/internal/token"
	"github.com/Alibek10599/token-vault/internal/vault"
)

const start = 1_700_000_000

type harness struct {
	t         *testing.T
	ledger    *ledger.Ledger
	now       int64
	programID solana.Pubkey
	authority *identity.Keypair
	mint      *identity.Keypair
}

func newHarness(t *testing.T, opts ...vault.ProgramOption) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		now:       start,
		programID: vault.DefaultProgramID,
		authority: mustKeypair(t),
		mint:      mustKeypair(t),
	}
	h.ledger = ledger.New(memory.NewAccountStore(),
		ledger.WithProgram(token.NewProgram()),
		ledger.WithProgram(vault.NewProgram(h.programID, opts...)),
		ledger.WithClock(func() time.Time { return time.Unix(h.now, 0) }),
	)
	h.mustSubmit(token.NewInitializeMintInstruction(h.mint.PublicKey(), 9, h.authority.PublicKey(), nil), h.mint)
	return h
}

func mustKeypair(t *testing.T) *identity.Keypair {
	t.Helper()
	kp, err := identity.Generate()
	require.NoError(t, err)
	return kp
}

func (h *harness) submit(ix ledger.Instruction, signers ...identity.Signer) (*ledger.Receipt, error) {
	tx := ledger.NewTransaction(ix)
	require.NoError(h.t, tx.Sign(signers...))
	return h.ledger.Submit(context.Background(), tx)
}

func (h *harness) mustSubmit(ix ledger.Instruction, signers ...identity.Signer) *ledger.Receipt {
	h.t.Helper()
	r, err := h.submit(ix, signers...)
	require.NoError(h.t, err)
	return r
}

func (h *harness) ata(owner solana.Pubkey) solana.Pubkey {
	h.t.Helper()
	addr, _, err := token.FindAssociatedTokenAddress(owner, h.mint.PublicKey())
	require.NoError(h.t, err)
	return addr
}

// fund creates owner's associated token account and mints amount into it.
func (h *harness) fund(owner *identity.Keypair, amount uint64) solana.Pubkey {
	h.t.Helper()
	addr := h.ata(owner.PublicKey())
	ix := token.NewInitializeAccountInstruction(addr, h.mint.PublicKey(), owner.PublicKey())
	ix.Accounts = append(ix.Accounts, ledger.AccountMeta{Pubkey: owner.PublicKey(), IsSigner: true})
	h.mustSubmit(ix, owner)
	if amount > 0 {
		h.mustSubmit(token.NewMintToInstruction(h.mint.PublicKey(), addr, h.authority.PublicKey(), amount), h.authority)
	}
	return addr
}

type vaultConfig struct {
	name         string
	feeBps       uint16
	timelock     int64
	limit        uint64
	feeCollector solana.Pubkey
}

func defaultConfig() vaultConfig {
	return vaultConfig{name: "My Token Vault", feeBps: 100, timelock: 86_400, limit: 1_000_000_000}
}

func (h *harness) initialize(cfg vaultConfig) (vault.Addresses, error) {
	addrs, err := vault.DeriveAddresses(h.programID, h.authority.PublicKey(), h.mint.PublicKey(), cfg.name)
	if err != nil {
		return vault.Addresses{}, err
	}
	ix := vault.NewInitializeVaultInstruction(h.programID, vault.InitializeVaultAccounts{
		Authority:         h.authority.PublicKey(),
		Vault:             addrs.Vault,
		VaultTokenAccount: addrs.Custody,
		TokenMint:         h.mint.PublicKey(),
		FeeCollector:      cfg.feeCollector,
	}, vault.InitializeVaultArgs{
		Name:               cfg.name,
		FeePercentage:      cfg.feeBps,
		WithdrawalTimelock: cfg.timelock,
		WithdrawalLimit:    cfg.limit,
	})
	_, err = h.submit(ix, h.authority)
	return addrs, err
}

func (h *harness) deposit(depositor *identity.Keypair, addrs vault.Addresses, amount uint64) error {
	ix := vault.NewDepositInstruction(h.programID, vault.DepositAccounts{
		Depositor:             depositor.PublicKey(),
		Vault:                 addrs.Vault,
		VaultTokenAccount:     addrs.Custody,
		DepositorTokenAccount: h.ata(depositor.PublicKey()),
	}, amount)
	_, err := h.submit(ix, depositor)
	return err
}

func (h *harness) withdraw(withdrawer *identity.Keypair, addrs vault.Addresses, amount uint64) (*ledger.Receipt, error) {
	rec := h.record(addrs)
	ix := vault.NewWithdrawInstruction(h.programID, vault.WithdrawAccounts{
		Withdrawer:               withdrawer.PublicKey(),
		Vault:                    addrs.Vault,
		VaultTokenAccount:        addrs.Custody,
		WithdrawerTokenAccount:   h.ata(withdrawer.PublicKey()),
		FeeCollectorTokenAccount: h.ata(rec.FeeCollector),
		TokenMint:                h.mint.PublicKey(),
	}, amount)
	return h.submit(ix, withdrawer)
}

func (h *harness) record(addrs vault.Addresses) *vault.Record {
	h.t.Helper()
	acc, err := h.ledger.GetAccount(context.Background(), addrs.Vault)
	require.NoError(h.t, err)
	rec, err := vault.ParseRecord(acc, h.programID)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) balance(addr solana.Pubkey) uint64 {
	h.t.Helper()
	acc, err := h.ledger.GetAccount(context.Background(), addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return 0
	}
	require.NoError(h.t, err)
	tok, err := token.ParseAccount(acc)
	require.NoError(h.t, err)
	return tok.Amount
}

func TestProgram_Scenario(t *testing.T) {
	h := newHarness(t)
	h.fund(h.authority, 1_000_000_000)

	addrs, err := h.initialize(defaultConfig())
	require.NoError(t, err)

	rec := h.record(addrs)
	assert.Equal(t, int64(start), rec.CreationTime)
	assert.Equal(t, uint64(0), rec.TotalDeposited)
	assert.Equal(t, h.authority.PublicKey(), rec.FeeCollector)

	require.NoError(t, h.deposit(h.authority, addrs, 1_000_000_000))
	assert.Equal(t, uint64(1_000_000_000), h.record(addrs).TotalDeposited)
	assert.Equal(t, uint64(1_000_000_000), h.balance(addrs.Custody))
	assert.Equal(t, uint64(0), h.balance(h.ata(h.authority.PublicKey())))

	h.now = start + 3_600
	_, err = h.withdraw(h.authority, addrs, 500_000_000)
	require.ErrorIs(t, err, vault.ErrTimelockNotElapsed)
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)
	assert.Equal(t, uint64(1_000_000_000), h.record(addrs).TotalDeposited)

	h.now = start + 86_400
	receipt, err := h.withdraw(h.authority, addrs, 500_000_000)
	require.NoError(t, err)

	assert.Equal(t, uint64(500_000_000), h.record(addrs).TotalDeposited)
	assert.Equal(t, uint64(500_000_000), h.balance(addrs.Custody))
	// Authority is also the fee collector, so it receives net and fee.
	assert.Equal(t, uint64(500_000_000), h.balance(h.ata(h.authority.PublicKey())))

	require.Len(t, receipt.Events, 1)
	ev, err := vault.DecodeEvent(receipt.Events[0].Data)
	require.NoError(t, err)
	assert.Equal(t, vault.EventWithdraw, ev.Kind)
	assert.Equal(t, uint64(5_000_000), ev.Fee)
	assert.Equal(t, uint64(495_000_000), ev.Net)
	assert.Equal(t, uint64(500_000_000), ev.TotalDeposited)
}

func TestProgram_FeeCollectorReceivesFee(t *testing.T) {
	h := newHarness(t)
	collector := mustKeypair(t)
	h.fund(h.authority, 10_000)

	cfg := defaultConfig()
	cfg.feeBps = 550
	cfg.timelock = 0
	cfg.feeCollector = collector.PublicKey()
	addrs, err := h.initialize(cfg)
	require.NoError(t, err)
	assert.Equal(t, collector.PublicKey(), h.record(addrs).FeeCollector)

	require.NoError(t, h.deposit(h.authority, addrs, 10_000))

	// The collector's associated account does not exist yet and is created in
	// the withdrawal transaction.
	_, err = h.ledger.GetAccount(context.Background(), h.ata(collector.PublicKey()))
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = h.withdraw(h.authority, addrs, 10_000)
	require.NoError(t, err)

	assert.Equal(t, uint64(9_450), h.balance(h.ata(h.authority.PublicKey())))
	assert.Equal(t, uint64(550), h.balance(h.ata(collector.PublicKey())))
	assert.Equal(t, uint64(0), h.balance(addrs.Custody))
	assert.Equal(t, uint64(0), h.record(addrs).TotalDeposited)
}

func TestProgram_InitializeTwiceFails(t *testing.T) {
	h := newHarness(t)
	h.fund(h.authority, 100)

	addrs, err := h.initialize(defaultConfig())
	require.NoError(t, err)
	require.NoError(t, h.deposit(h.authority, addrs, 100))

	_, err = h.initialize(defaultConfig())
	assert.ErrorIs(t, err, vault.ErrAlreadyInitialized)
	assert.Equal(t, uint64(100), h.record(addrs).TotalDeposited)
	assert.Equal(t, uint64(100), h.balance(addrs.Custody))

	// A different name is a different vault.
	other := defaultConfig()
	other.name = "Second"
	otherAddrs, err := h.initialize(other)
	require.NoError(t, err)
	assert.NotEqual(t, addrs.Vault, otherAddrs.Vault)
}

func TestProgram_InitializeValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*vaultConfig)
		wantErr error
	}{
		{"fee above 100%", func(c *vaultConfig) { c.feeBps = 10_001 }, vault.ErrInvalidFeeConfig},
		{"negative timelock", func(c *vaultConfig) { c.timelock = -5 }, vault.ErrInvalidTimelock},
		{"zero limit", func(c *vaultConfig) { c.limit = 0 }, vault.ErrInvalidWithdrawalLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			cfg := defaultConfig()
			tt.mutate(&cfg)
			addrs, err := h.initialize(cfg)
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = h.ledger.GetAccount(context.Background(), addrs.Vault)
			assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
		})
	}
}

func TestProgram_InitializeRequiresMint(t *testing.T) {
	h := newHarness(t)
	notAMint := mustKeypair(t).PublicKey()

	addrs, err := vault.DeriveAddresses(h.programID, h.authority.PublicKey(), notAMint, "v")
	require.NoError(t, err)
	ix := vault.NewInitializeVaultInstruction(h.programID, vault.InitializeVaultAccounts{
		Authority:         h.authority.PublicKey(),
		Vault:             addrs.Vault,
		VaultTokenAccount: addrs.Custody,
		TokenMint:         notAMint,
	}, vault.InitializeVaultArgs{Name: "v", WithdrawalLimit: 1})

	_, err = h.submit(ix, h.authority)
	assert.ErrorIs(t, err, vault.ErrInvalidMint)
}

func TestProgram_InitializeAddressMismatch(t *testing.T) {
	h := newHarness(t)
	wrong := mustKeypair(t).PublicKey()

	addrs, err := vault.DeriveAddresses(h.programID, h.authority.PublicKey(), h.mint.PublicKey(), "v")
	require.NoError(t, err)
	ix := vault.NewInitializeVaultInstruction(h.programID, vault.InitializeVaultAccounts{
		Authority:         h.authority.PublicKey(),
		Vault:             wrong,
		VaultTokenAccount: addrs.Custody,
		TokenMint:         h.mint.PublicKey(),
	}, vault.InitializeVaultArgs{Name: "v", WithdrawalLimit: 1})

	_, err = h.submit(ix, h.authority)
	assert.ErrorIs(t, err, vault.ErrAddressMismatch)
}

func TestProgram_DepositErrors(t *testing.T) {
	h := newHarness(t)
	depositor := mustKeypair(t)
	h.fund(depositor, 50)

	addrs, err := h.initialize(defaultConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, h.deposit(depositor, addrs, 0), vault.ErrZeroAmount)
	assert.ErrorIs(t, h.deposit(depositor, addrs, 51), vault.ErrInsufficientFunds)

	missing := vault.Addresses{Vault: mustKeypair(t).PublicKey(), Custody: addrs.Custody}
	assert.ErrorIs(t, h.deposit(depositor, missing, 1), vault.ErrVaultNotFound)

	// Depositor without a token account at all.
	assert.ErrorIs(t, h.deposit(mustKeypair(t), addrs, 1), vault.ErrInsufficientFunds)

	// Any party may deposit.
	require.NoError(t, h.deposit(depositor, addrs, 50))
	assert.Equal(t, uint64(50), h.record(addrs).TotalDeposited)
	assert.Equal(t, uint64(0), h.balance(h.ata(depositor.PublicKey())))
}

func TestProgram_WithdrawTimelockBoundary(t *testing.T) {
	h := newHarness(t)
	h.fund(h.authority, 1_000)

	cfg := defaultConfig()
	cfg.timelock = 100
	addrs, err := h.initialize(cfg)
	require.NoError(t, err)
	require.NoError(t, h.deposit(h.authority, addrs, 1_000))

	h.now = start + 99
	_, err = h.withdraw(h.authority, addrs, 10)
	assert.ErrorIs(t, err, vault.ErrTimelockNotElapsed)

	h.now = start + 100
	_, err = h.withdraw(h.authority, addrs, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(990), h.record(addrs).TotalDeposited)
}

func TestProgram_WithdrawLimitBoundary(t *testing.T) {
	h := newHarness(t)
	h.fund(h.authority, 1_000)

	cfg := defaultConfig()
	cfg.timelock = 0
	cfg.limit = 400
	addrs, err := h.initialize(cfg)
	require.NoError(t, err)
	require.NoError(t, h.deposit(h.authority, addrs, 1_000))

	_, err = h.withdraw(h.authority, addrs, 401)
	assert.ErrorIs(t, err, vault.ErrExceedsWithdrawalLimit)

	_, err = h.withdraw(h.authority, addrs, 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), h.record(addrs).TotalDeposited)
}

func TestProgram_WithdrawInsufficientVaultBalance(t *testing.T) {
	h := newHarness(t)
	h.fund(h.authority, 100)

	cfg := defaultConfig()
	cfg.timelock = 0
	addrs, err := h.initialize(cfg)
	require.NoError(t, err)
	require.NoError(t, h.deposit(h.authority, addrs, 100))

	_, err = h.withdraw(h.authority, addrs, 101)
	assert.ErrorIs(t, err, vault.ErrInsufficientVaultBalance)

	_, err = h.withdraw(h.authority, addrs, 0)
	assert.ErrorIs(t, err, vault.ErrZeroAmount)
}

func TestProgram_WithdrawPolicy(t *testing.T) {
	t.Run("authority only", func(t *testing.T) {
		h := newHarness(t)
		stranger := mustKeypair(t)
		h.fund(h.authority, 100)

		cfg := defaultConfig()
		cfg.timelock = 0
		addrs, err := h.initialize(cfg)
		require.NoError(t, err)
		require.NoError(t, h.deposit(h.authority, addrs, 100))

		_, err = h.withdraw(stranger, addrs, 10)
		assert.ErrorIs(t, err, vault.ErrUnauthorized)
		assert.Equal(t, uint64(100), h.balance(addrs.Custody))
	})

	t.Run("any holder", func(t *testing.T) {
		h := newHarness(t, vault.WithWithdrawPolicy(vault.AnyHolder))
		holder := mustKeypair(t)
		h.fund(h.authority, 100)

		cfg := defaultConfig()
		cfg.timelock = 0
		cfg.feeBps = 1_000
		addrs, err := h.initialize(cfg)
		require.NoError(t, err)
		require.NoError(t, h.deposit(h.authority, addrs, 100))

		_, err = h.withdraw(holder, addrs, 10)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), h.balance(h.ata(holder.PublicKey())))
		assert.Equal(t, uint64(1), h.balance(h.ata(h.authority.PublicKey())))
		assert.Equal(t, uint64(90), h.record(addrs).TotalDeposited)
	})
}

func TestProgram_TotalTracksPrincipal(t *testing.T) {
	h := newHarness(t, vault.WithWithdrawPolicy(vault.AnyHolder))
	alice, bob := mustKeypair(t), mustKeypair(t)
	h.fund(alice, 1_000)
	h.fund(bob, 1_000)

	cfg := defaultConfig()
	cfg.timelock = 0
	cfg.feeBps = 333
	addrs, err := h.initialize(cfg)
	require.NoError(t, err)

	ops := []struct {
		who     *identity.Keypair
		deposit bool
		amount  uint64
	}{
		{alice, true, 300},
		{bob, true, 700},
		{alice, false, 123},
		{bob, false, 77},
		{alice, true, 50},
		{bob, false, 850},
	}

	var expected uint64
	for _, op := range ops {
		if op.deposit {
			require.NoError(t, h.deposit(op.who, addrs, op.amount))
			expected += op.amount
		} else {
			_, err := h.withdraw(op.who, addrs, op.amount)
			require.NoError(t, err)
			expected -= op.amount
		}
		assert.Equal(t, expected, h.record(addrs).TotalDeposited)
		assert.Equal(t, expected, h.balance(addrs.Custody))
	}
	assert.Equal(t, uint64(0), expected)
}

func TestProgram_WithdrawRejectsSubstitutedAccounts(t *testing.T) {
	h := newHarness(t, vault.WithWithdrawPolicy(vault.AnyHolder))
	holder := mustKeypair(t)
	h.fund(h.authority, 1_000)
	holderATA := h.fund(holder, 0)

	cfg := defaultConfig()
	cfg.timelock = 0
	cfg.feeBps = 1_000
	addrs, err := h.initialize(cfg)
	require.NoError(t, err)
	require.NoError(t, h.deposit(h.authority, addrs, 1_000))

	stray := mustKeypair(t).PublicKey()
	tests := []struct {
		name   string
		net    solana.Pubkey
		fee    solana.Pubkey
		wantIs error
	}{
		{"fee routed to withdrawer", holderATA, holderATA, vault.ErrAddressMismatch},
		{"net routed to custody", addrs.Custody, h.ata(h.authority.PublicKey()), vault.ErrAddressMismatch},
		{"fee routed to unknown account", holderATA, stray, vault.ErrAddressMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := vault.NewWithdrawInstruction(h.programID, vault.WithdrawAccounts{
				Withdrawer:               holder.PublicKey(),
				Vault:                    addrs.Vault,
				VaultTokenAccount:        addrs.Custody,
				WithdrawerTokenAccount:   tt.net,
				FeeCollectorTokenAccount: tt.fee,
				TokenMint:                h.mint.PublicKey(),
			}, 100)

			_, err := h.submit(ix, holder)
			assert.ErrorIs(t, err, tt.wantIs)
			assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)

			assert.Equal(t, uint64(1_000), h.balance(addrs.Custody))
			assert.Equal(t, uint64(1_000), h.record(addrs).TotalDeposited)
			assert.Zero(t, h.balance(holderATA))
		})
	}

	// The correct accounts still go through.
	_, err = h.withdraw(holder, addrs, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), h.balance(holderATA))
	assert.Equal(t, uint64(900), h.record(addrs).TotalDeposited)
}

func TestProgram_DepositRejectsForeignSource(t *testing.T) {
	h := newHarness(t)
	thief := mustKeypair(t)
	victimATA := h.fund(h.authority, 1_000)
	h.fund(thief, 0)

	addrs, err := h.initialize(defaultConfig())
	require.NoError(t, err)

	ix := vault.NewDepositInstruction(h.programID, vault.DepositAccounts{
		Depositor:             thief.PublicKey(),
		Vault:                 addrs.Vault,
		VaultTokenAccount:     addrs.Custody,
		DepositorTokenAccount: victimATA,
	}, 500)

	_, err = h.submit(ix, thief)
	assert.ErrorIs(t, err, vault.ErrUnauthorized)
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)

	assert.Equal(t, uint64(1_000), h.balance(victimATA))
	assert.Zero(t, h.balance(addrs.Custody))
	assert.Zero(t, h.record(addrs).TotalDeposited)
}
