package vault

import (
	"bytes"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/token"
)

var (
	initializeVaultDiscriminator = discriminator("global", "initialize_vault")
	depositDiscriminator         = discriminator("global", "deposit")
	withdrawDiscriminator        = discriminator("global", "withdraw")
)

// InitializeVaultArgs are the instruction arguments of InitializeVault.
type InitializeVaultArgs struct {
	Name               string
	FeePercentage      uint16
	WithdrawalTimelock int64
	WithdrawalLimit    uint64
}

// InitializeVaultAccounts lists the accounts of InitializeVault.
// A zero FeeCollector is omitted and the program uses the authority.
type InitializeVaultAccounts struct {
	Authority         solana.Pubkey
	Vault             solana.Pubkey
	VaultTokenAccount solana.Pubkey
	TokenMint         solana.Pubkey
	FeeCollector      solana.Pubkey
}

// DepositAccounts lists the accounts of Deposit.
type DepositAccounts struct {
	Depositor             solana.Pubkey
	Vault                 solana.Pubkey
	VaultTokenAccount     solana.Pubkey
	DepositorTokenAccount solana.Pubkey
}

// WithdrawAccounts lists the accounts of Withdraw.
type WithdrawAccounts struct {
	Withdrawer               solana.Pubkey
	Vault                    solana.Pubkey
	VaultTokenAccount        solana.Pubkey
	WithdrawerTokenAccount   solana.Pubkey
	FeeCollectorTokenAccount solana.Pubkey
	TokenMint                solana.Pubkey
}

// NewInitializeVaultInstruction builds InitializeVault.
// Accounts: authority (signer, writable), vault (writable), vault_token_account
// (writable), token_mint, token_program, [fee_collector].
func NewInitializeVaultInstruction(programID solana.Pubkey, a InitializeVaultAccounts, args InitializeVaultArgs) ledger.Instruction {
	e := &encoder{}
	e.bytes(initializeVaultDiscriminator[:])
	e.str(args.Name)
	e.u16(args.FeePercentage)
	e.i64(args.WithdrawalTimelock)
	e.u64(args.WithdrawalLimit)

	metas := []ledger.AccountMeta{
		{Pubkey: a.Authority, IsSigner: true, IsWritable: true},
		{Pubkey: a.Vault, IsWritable: true},
		{Pubkey: a.VaultTokenAccount, IsWritable: true},
		{Pubkey: a.TokenMint},
		{Pubkey: token.ProgramID},
	}
	if !a.FeeCollector.IsZero() {
		metas = append(metas, ledger.AccountMeta{Pubkey: a.FeeCollector})
	}
	return ledger.Instruction{ProgramID: programID, Accounts: metas, Data: e.buf}
}

// NewDepositInstruction builds Deposit.
// Accounts: depositor (signer), vault (writable), vault_token_account (writable),
// depositor_token_account (writable), token_program.
func NewDepositInstruction(programID solana.Pubkey, a DepositAccounts, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: a.Depositor, IsSigner: true},
			{Pubkey: a.Vault, IsWritable: true},
			{Pubkey: a.VaultTokenAccount, IsWritable: true},
			{Pubkey: a.DepositorTokenAccount, IsWritable: true},
			{Pubkey: token.ProgramID},
		},
		Data: amountData(depositDiscriminator, amount),
	}
}

// NewWithdrawInstruction builds Withdraw.
// Accounts: withdrawer (signer, writable), vault (writable), vault_token_account
// (writable), withdrawer_token_account (writable), fee_collector_token_account
// (writable), token_program, token_mint.
func NewWithdrawInstruction(programID solana.Pubkey, a WithdrawAccounts, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: programID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: a.Withdrawer, IsSigner: true, IsWritable: true},
			{Pubkey: a.Vault, IsWritable: true},
			{Pubkey: a.VaultTokenAccount, IsWritable: true},
			{Pubkey: a.WithdrawerTokenAccount, IsWritable: true},
			{Pubkey: a.FeeCollectorTokenAccount, IsWritable: true},
			{Pubkey: token.ProgramID},
			{Pubkey: a.TokenMint},
		},
		Data: amountData(withdrawDiscriminator, amount),
	}
}

func amountData(disc [8]byte, amount uint64) []byte {
	e := &encoder{buf: make([]byte, 0, 16)}
	e.bytes(disc[:])
	e.u64(amount)
	return e.buf
}

type instructionKind int

const (
	kindInitializeVault instructionKind = iota + 1
	kindDeposit
	kindWithdraw
)

func decodeKind(data []byte) (instructionKind, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("%w: data too short", ErrInvalidInstruction)
	}
	switch {
	case bytes.Equal(data[:8], initializeVaultDiscriminator[:]):
		return kindInitializeVault, nil
	case bytes.Equal(data[:8], depositDiscriminator[:]):
		return kindDeposit, nil
	case bytes.Equal(data[:8], withdrawDiscriminator[:]):
		return kindWithdraw, nil
	default:
		return 0, fmt.Errorf("%w: unknown discriminator %x", ErrInvalidInstruction, data[:8])
	}
}

func decodeInitializeArgs(data []byte) (InitializeVaultArgs, error) {
	d := &decoder{buf: data, off: 8}
	// Oversized names are rejected by Validate with ErrInvalidName.
	args := InitializeVaultArgs{
		Name:               d.str(4 * MaxNameLength),
		FeePercentage:      d.u16(),
		WithdrawalTimelock: d.i64(),
		WithdrawalLimit:    d.u64(),
	}
	if err := d.finish(); err != nil {
		return InitializeVaultArgs{}, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return args, nil
}

func decodeAmount(data []byte) (uint64, error) {
	d := &decoder{buf: data, off: 8}
	amount := d.u64()
	if err := d.finish(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	return amount, nil
}
