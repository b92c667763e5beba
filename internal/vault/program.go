package vault

import (
	"errors"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/token"
)

// Program binds the vault state machine to ledger accounts.
type Program struct {
	id     solana.Pubkey
	policy WithdrawPolicy
}

// ProgramOption configures a Program.
type ProgramOption func(*Program)

// WithWithdrawPolicy sets who may withdraw. Defaults to AuthorityOnly.
func WithWithdrawPolicy(p WithdrawPolicy) ProgramOption {
	return func(prog *Program) {
		prog.policy = p
	}
}

// NewProgram creates the vault program deployed at id.
func NewProgram(id solana.Pubkey, opts ...ProgramOption) *Program {
	p := &Program{id: id, policy: AuthorityOnly}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the program address.
func (p *Program) ID() solana.Pubkey {
	return p.id
}

// Policy returns the withdraw policy.
func (p *Program) Policy() WithdrawPolicy {
	return p.policy
}

// Process dispatches on the instruction discriminator.
func (p *Program) Process(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	kind, err := decodeKind(ix.Data)
	if err != nil {
		return err
	}

	switch kind {
	case kindInitializeVault:
		ic.Logf("Instruction: InitializeVault")
		return p.initialize(ic, ix)
	case kindDeposit:
		ic.Logf("Instruction: Deposit")
		return p.deposit(ic, ix)
	case kindWithdraw:
		ic.Logf("Instruction: Withdraw")
		return p.withdraw(ic, ix)
	}
	return ErrInvalidInstruction
}

func (p *Program) initialize(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	if len(ix.Accounts) < 5 {
		return fmt.Errorf("%w: InitializeVault needs 5 accounts, got %d", ErrInvalidInstruction, len(ix.Accounts))
	}
	args, err := decodeInitializeArgs(ix.Data)
	if err != nil {
		return err
	}

	authority := ix.Accounts[0].Pubkey
	vaultAddr := ix.Accounts[1].Pubkey
	custodyAddr := ix.Accounts[2].Pubkey
	mintAddr := ix.Accounts[3].Pubkey
	feeCollector := authority
	if len(ix.Accounts) > 5 {
		feeCollector = ix.Accounts[5].Pubkey
	}

	if !ic.IsSigner(authority) {
		return fmt.Errorf("%w: authority %s did not sign", ErrUnauthorized, authority)
	}
	if err := p.checkTokenProgram(ix.Accounts[4].Pubkey); err != nil {
		return err
	}

	params := InitParams{
		Authority:          authority,
		TokenMint:          mintAddr,
		FeeCollector:       feeCollector,
		Name:               args.Name,
		FeePercentage:      args.FeePercentage,
		WithdrawalTimelock: args.WithdrawalTimelock,
		WithdrawalLimit:    args.WithdrawalLimit,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	addrs, err := DeriveAddresses(p.id, authority, mintAddr, args.Name)
	if err != nil {
		return err
	}
	if vaultAddr != addrs.Vault {
		return fmt.Errorf("%w: vault %s, expected %s", ErrAddressMismatch, vaultAddr, addrs.Vault)
	}
	if custodyAddr != addrs.Custody {
		return fmt.Errorf("%w: custody %s, expected %s", ErrAddressMismatch, custodyAddr, addrs.Custody)
	}
	if ic.Exists(vaultAddr) || ic.Exists(custodyAddr) {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, vaultAddr)
	}

	mintAcc, err := ic.Account(mintAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if mint, err := token.ParseMint(mintAcc); err != nil || !mint.IsInitialized {
		return fmt.Errorf("%w: %s", ErrInvalidMint, mintAddr)
	}

	params.Bump = addrs.VaultBump
	record, err := NewRecord(params, ic.Now().Unix())
	if err != nil {
		return err
	}
	data, err := record.MarshalBinary()
	if err != nil {
		return err
	}
	if err := ic.Create(vaultAddr, data); err != nil {
		return err
	}

	custodySeeds := append(CustodySeeds(vaultAddr), []byte{addrs.CustodyBump})
	initCustody := token.NewInitializeAccountInstruction(custodyAddr, mintAddr, vaultAddr)
	if err := ic.Invoke(initCustody, custodySeeds); err != nil {
		return fmt.Errorf("create custody account: %w", err)
	}

	ic.Logf("Vault %s created for mint %s", vaultAddr, mintAddr)
	ic.Emit((&Event{
		Kind:           EventInitialize,
		Vault:          vaultAddr,
		Actor:          authority,
		TotalDeposited: 0,
		Timestamp:      record.CreationTime,
	}).Encode())
	return nil
}

func (p *Program) deposit(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	amount, err := decodeAmount(ix.Data)
	if err != nil {
		return err
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if len(ix.Accounts) < 5 {
		return fmt.Errorf("%w: Deposit needs 5 accounts, got %d", ErrInvalidInstruction, len(ix.Accounts))
	}

	depositor := ix.Accounts[0].Pubkey
	vaultAddr := ix.Accounts[1].Pubkey
	custodyAddr := ix.Accounts[2].Pubkey
	sourceAddr := ix.Accounts[3].Pubkey

	record, err := p.loadRecord(ic, vaultAddr)
	if err != nil {
		return err
	}
	if !ic.IsSigner(depositor) {
		return fmt.Errorf("%w: depositor %s did not sign", ErrUnauthorized, depositor)
	}
	if err := p.checkTokenProgram(ix.Accounts[4].Pubkey); err != nil {
		return err
	}
	if _, err := p.loadCustody(ic, vaultAddr, custodyAddr, record); err != nil {
		return err
	}

	source, err := loadTokenAccount(ic, sourceAddr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fmt.Errorf("%w: depositor token account %s does not exist", ErrInsufficientFunds, sourceAddr)
		}
		return err
	}
	if source.Mint != record.TokenMint {
		return fmt.Errorf("%w: depositor account holds %s", ErrMintMismatch, source.Mint)
	}
	if source.Owner != depositor {
		return fmt.Errorf("%w: %s does not own %s", ErrUnauthorized, depositor, sourceAddr)
	}
	if source.Amount < amount {
		return fmt.Errorf("%w: balance %d, deposit %d", ErrInsufficientFunds, source.Amount, amount)
	}

	if err := record.ApplyDeposit(amount); err != nil {
		return err
	}

	if err := ic.Invoke(token.NewTransferInstruction(sourceAddr, custodyAddr, depositor, amount)); err != nil {
		return fmt.Errorf("transfer to custody: %w", err)
	}
	if err := p.storeRecord(ic, vaultAddr, record); err != nil {
		return err
	}

	ic.Logf("Deposited %d into vault %s", amount, vaultAddr)
	ic.Emit((&Event{
		Kind:           EventDeposit,
		Vault:          vaultAddr,
		Actor:          depositor,
		Amount:         amount,
		Net:            amount,
		TotalDeposited: record.TotalDeposited,
		Timestamp:      ic.Now().Unix(),
	}).Encode())
	return nil
}

func (p *Program) withdraw(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	amount, err := decodeAmount(ix.Data)
	if err != nil {
		return err
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	if len(ix.Accounts) < 7 {
		return fmt.Errorf("%w: Withdraw needs 7 accounts, got %d", ErrInvalidInstruction, len(ix.Accounts))
	}

	withdrawer := ix.Accounts[0].Pubkey
	vaultAddr := ix.Accounts[1].Pubkey
	custodyAddr := ix.Accounts[2].Pubkey
	withdrawerAddr := ix.Accounts[3].Pubkey
	feeAddr := ix.Accounts[4].Pubkey
	mintAddr := ix.Accounts[6].Pubkey

	record, err := p.loadRecord(ic, vaultAddr)
	if err != nil {
		return err
	}
	if !ic.IsSigner(withdrawer) {
		return fmt.Errorf("%w: withdrawer %s did not sign", ErrUnauthorized, withdrawer)
	}
	if err := p.checkTokenProgram(ix.Accounts[5].Pubkey); err != nil {
		return err
	}
	if mintAddr != record.TokenMint {
		return fmt.Errorf("%w: mint %s, vault holds %s", ErrMintMismatch, mintAddr, record.TokenMint)
	}
	custody, err := p.loadCustody(ic, vaultAddr, custodyAddr, record)
	if err != nil {
		return err
	}

	w, err := record.ApplyWithdraw(WithdrawRequest{
		Withdrawer:     withdrawer,
		Amount:         amount,
		Now:            ic.Now().Unix(),
		CustodyBalance: custody.Amount,
		Policy:         p.policy,
	})
	if err != nil {
		return err
	}

	vaultSeeds := record.Seeds()
	legs := []struct {
		dest   solana.Pubkey
		owner  solana.Pubkey
		amount uint64
	}{
		{withdrawerAddr, withdrawer, w.Net},
		{feeAddr, record.FeeCollector, w.Fee},
	}
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		if err := ensureTokenAccount(ic, leg.dest, leg.owner, record.TokenMint); err != nil {
			return err
		}
		transfer := token.NewTransferInstruction(custodyAddr, leg.dest, vaultAddr, leg.amount)
		if err := ic.Invoke(transfer, vaultSeeds); err != nil {
			return fmt.Errorf("transfer from custody: %w", err)
		}
	}

	if err := p.storeRecord(ic, vaultAddr, record); err != nil {
		return err
	}

	ic.Logf("Withdrew %d from vault %s (fee %d, net %d)", w.Amount, vaultAddr, w.Fee, w.Net)
	ic.Emit((&Event{
		Kind:           EventWithdraw,
		Vault:          vaultAddr,
		Actor:          withdrawer,
		Amount:         w.Amount,
		Fee:            w.Fee,
		Net:            w.Net,
		TotalDeposited: record.TotalDeposited,
		Timestamp:      ic.Now().Unix(),
	}).Encode())
	return nil
}

func (p *Program) loadRecord(ic *ledger.InvokeContext, addr solana.Pubkey) (*Record, error) {
	acc, err := ic.Account(addr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, addr)
		}
		return nil, err
	}
	return ParseRecord(acc, p.id)
}

func (p *Program) storeRecord(ic *ledger.InvokeContext, addr solana.Pubkey, r *Record) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	return ic.Store(addr, data)
}

// loadCustody checks the custody address and returns its token account.
func (p *Program) loadCustody(ic *ledger.InvokeContext, vaultAddr, custodyAddr solana.Pubkey, r *Record) (*token.Account, error) {
	expected, _, err := FindCustodyAddress(p.id, vaultAddr)
	if err != nil {
		return nil, err
	}
	if custodyAddr != expected {
		return nil, fmt.Errorf("%w: custody %s, expected %s", ErrAddressMismatch, custodyAddr, expected)
	}
	custody, err := loadTokenAccount(ic, custodyAddr)
	if err != nil {
		return nil, fmt.Errorf("load custody: %w", err)
	}
	if custody.Mint != r.TokenMint || custody.Owner != vaultAddr {
		return nil, fmt.Errorf("%w: custody %s has mint %s owner %s", ErrAddressMismatch, custodyAddr, custody.Mint, custody.Owner)
	}
	return custody, nil
}

func (p *Program) checkTokenProgram(addr solana.Pubkey) error {
	if addr != token.ProgramID {
		return fmt.Errorf("%w: token program %s", ErrAddressMismatch, addr)
	}
	return nil
}

func loadTokenAccount(ic *ledger.InvokeContext, addr solana.Pubkey) (*token.Account, error) {
	acc, err := ic.Account(addr)
	if err != nil {
		return nil, err
	}
	return token.ParseAccount(acc)
}

// ensureTokenAccount verifies that addr is a token account of owner for mint,
// creating the associated token account when addr does not exist yet.
func ensureTokenAccount(ic *ledger.InvokeContext, addr, owner, mint solana.Pubkey) error {
	if !ic.Exists(addr) {
		ata, _, err := token.FindAssociatedTokenAddress(owner, mint)
		if err != nil {
			return err
		}
		if addr != ata {
			return fmt.Errorf("%w: token account %s, expected associated account %s", ErrAddressMismatch, addr, ata)
		}
		if err := ic.Invoke(token.NewInitializeAccountInstruction(addr, mint, owner)); err != nil {
			return fmt.Errorf("create associated token account: %w", err)
		}
		return nil
	}

	acc, err := loadTokenAccount(ic, addr)
	if err != nil {
		return err
	}
	if acc.Mint != mint {
		return fmt.Errorf("%w: %s holds %s", ErrMintMismatch, addr, acc.Mint)
	}
	if acc.Owner != owner {
		return fmt.Errorf("%w: %s is owned by %s, expected %s", ErrAddressMismatch, addr, acc.Owner, owner)
	}
	return nil
}

// Verify interface compliance at compile time.
var _ ledger.Program = (*Program)(nil)
