package token

import (
	"fmt"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// Program executes token instructions.
type Program struct{}

// NewProgram creates the token program.
func NewProgram() *Program {
	return &Program{}
}

// ID returns ProgramID.
func (p *Program) ID() solana.Pubkey {
	return ProgramID
}

// Process dispatches on the instruction tag.
func (p *Program) Process(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	if len(ix.Data) == 0 {
		return ErrInvalidInstruction
	}

	switch ix.Data[0] {
	case TagInitializeMint2:
		ic.Logf("Instruction: InitializeMint2")
		return p.initializeMint(ic, ix)
	case TagInitializeAccount3:
		ic.Logf("Instruction: InitializeAccount3")
		return p.initializeAccount(ic, ix)
	case TagTransfer:
		ic.Logf("Instruction: Transfer")
		return p.transfer(ic, ix)
	case TagMintTo:
		ic.Logf("Instruction: MintTo")
		return p.mintTo(ic, ix)
	default:
		return fmt.Errorf("%w: tag %d", ErrInvalidInstruction, ix.Data[0])
	}
}

func (p *Program) initializeMint(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	if len(ix.Accounts) < 1 {
		return fmt.Errorf("%w: InitializeMint2 needs 1 account", ErrInvalidInstruction)
	}
	data := ix.Data
	if len(data) != 35 && len(data) != 67 {
		return fmt.Errorf("%w: InitializeMint2 payload length %d", ErrInvalidInstruction, len(data))
	}

	mintAddr := ix.Accounts[0].Pubkey
	if !ic.IsSigner(mintAddr) {
		return fmt.Errorf("%w: mint %s", ErrMissingSigner, mintAddr)
	}

	authority, err := solana.PubkeyFromBytes(data[2:34])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	mint := &Mint{
		MintAuthority: &authority,
		Decimals:      data[1],
		IsInitialized: true,
	}
	switch data[34] {
	case 0:
	case 1:
		if len(data) != 67 {
			return fmt.Errorf("%w: freeze authority truncated", ErrInvalidInstruction)
		}
		freeze, err := solana.PubkeyFromBytes(data[35:67])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
		}
		mint.FreezeAuthority = &freeze
	default:
		return fmt.Errorf("%w: bad freeze authority option", ErrInvalidInstruction)
	}

	return ic.Create(mintAddr, mint.Encode())
}

func (p *Program) initializeAccount(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	if len(ix.Accounts) < 2 {
		return fmt.Errorf("%w: InitializeAccount3 needs 2 accounts", ErrInvalidInstruction)
	}
	if len(ix.Data) != 33 {
		return fmt.Errorf("%w: InitializeAccount3 payload length %d", ErrInvalidInstruction, len(ix.Data))
	}

	addr := ix.Accounts[0].Pubkey
	mintAddr := ix.Accounts[1].Pubkey
	owner, err := solana.PubkeyFromBytes(ix.Data[1:33])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}

	if _, err := p.loadMint(ic, mintAddr); err != nil {
		return err
	}

	if !ic.IsSigner(addr) {
		ata, _, err := FindAssociatedTokenAddress(owner, mintAddr)
		if err != nil || ata != addr {
			return fmt.Errorf("%w: %s is neither a signer nor the associated account of %s", ErrInvalidAddress, addr, owner)
		}
	}

	acc := &Account{Mint: mintAddr, Owner: owner, State: AccountInitialized}
	return ic.Create(addr, acc.Encode())
}

func (p *Program) transfer(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	if len(ix.Accounts) < 3 {
		return fmt.Errorf("%w: Transfer needs 3 accounts", ErrInvalidInstruction)
	}
	amount, err := decodeAmount(ix.Data)
	if err != nil {
		return err
	}

	srcAddr, dstAddr, owner := ix.Accounts[0].Pubkey, ix.Accounts[1].Pubkey, ix.Accounts[2].Pubkey

	src, err := p.loadAccount(ic, srcAddr)
	if err != nil {
		return err
	}
	dst, err := p.loadAccount(ic, dstAddr)
	if err != nil {
		return err
	}

	if src.State == AccountFrozen || dst.State == AccountFrozen {
		return ErrAccountFrozen
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if src.Owner != owner {
		return fmt.Errorf("%w: %s is not the owner of %s", ErrOwnerMismatch, owner, srcAddr)
	}
	if !ic.IsSigner(owner) {
		return fmt.Errorf("%w: %s", ErrMissingSigner, owner)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}

	// Self transfers only validate.
	if srcAddr == dstAddr {
		return nil
	}

	if dst.Amount+amount < dst.Amount {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount += amount

	if err := ic.Store(srcAddr, src.Encode()); err != nil {
		return err
	}
	return ic.Store(dstAddr, dst.Encode())
}

func (p *Program) mintTo(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	if len(ix.Accounts) < 3 {
		return fmt.Errorf("%w: MintTo needs 3 accounts", ErrInvalidInstruction)
	}
	amount, err := decodeAmount(ix.Data)
	if err != nil {
		return err
	}

	mintAddr, dstAddr, authority := ix.Accounts[0].Pubkey, ix.Accounts[1].Pubkey, ix.Accounts[2].Pubkey

	mint, err := p.loadMint(ic, mintAddr)
	if err != nil {
		return err
	}
	if mint.MintAuthority == nil {
		return ErrFixedSupply
	}
	if *mint.MintAuthority != authority {
		return fmt.Errorf("%w: %s is not the mint authority", ErrOwnerMismatch, authority)
	}
	if !ic.IsSigner(authority) {
		return fmt.Errorf("%w: %s", ErrMissingSigner, authority)
	}

	dst, err := p.loadAccount(ic, dstAddr)
	if err != nil {
		return err
	}
	if dst.Mint != mintAddr {
		return fmt.Errorf("%w: %s", ErrMintMismatch, dstAddr)
	}
	if dst.State == AccountFrozen {
		return ErrAccountFrozen
	}

	if mint.Supply+amount < mint.Supply || dst.Amount+amount < dst.Amount {
		return ErrOverflow
	}
	mint.Supply += amount
	dst.Amount += amount

	if err := ic.Store(mintAddr, mint.Encode()); err != nil {
		return err
	}
	return ic.Store(dstAddr, dst.Encode())
}

func (p *Program) loadMint(ic *ledger.InvokeContext, addr solana.Pubkey) (*Mint, error) {
	acc, err := ic.Account(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if acc.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidMint, addr)
	}
	mint, err := DecodeMint(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if !mint.IsInitialized {
		return nil, fmt.Errorf("%w: %s not initialized", ErrInvalidMint, addr)
	}
	return mint, nil
}

func (p *Program) loadAccount(ic *ledger.InvokeContext, addr solana.Pubkey) (*Account, error) {
	acc, err := ic.Account(addr)
	if err != nil {
		return nil, err
	}
	if acc.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidAccountData, addr)
	}
	tok, err := DecodeAccount(acc.Data)
	if err != nil {
		return nil, err
	}
	if tok.State == AccountUninitialized {
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, addr)
	}
	return tok, nil
}

// Verify interface compliance at compile time.
var _ ledger.Program = (*Program)(nil)
