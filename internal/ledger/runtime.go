package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Alibek10599/token-vault/internal/solana"
)

// MaxInvokeDepth bounds nested cross-program invocations.
const MaxInvokeDepth = 4

// Program is on-ledger logic addressed by its ID.
type Program interface {
	ID() solana.Pubkey
	Process(ic *InvokeContext, ix Instruction) error
}

// Event is structured data emitted by a program during execution.
type Event struct {
	Program solana.Pubkey
	Data    []byte
}

// execution is the state of one transaction while it runs.
type execution struct {
	ctx      context.Context
	programs map[solana.Pubkey]Program
	accounts map[solana.Pubkey]*Account
	loaded   map[solana.Pubkey]bool
	dirty    map[solana.Pubkey]bool
	now      time.Time
	events   []Event
	logs     []string
}

func newExecution(ctx context.Context, programs map[solana.Pubkey]Program, addrs []solana.Pubkey, snapshot map[solana.Pubkey]*Account, now time.Time) *execution {
	e := &execution{
		ctx:      ctx,
		programs: programs,
		accounts: make(map[solana.Pubkey]*Account, len(snapshot)),
		loaded:   make(map[solana.Pubkey]bool, len(addrs)),
		dirty:    make(map[solana.Pubkey]bool),
		now:      now,
	}
	for _, a := range addrs {
		e.loaded[a] = true
	}
	for addr, acc := range snapshot {
		e.accounts[addr] = acc.Clone()
	}
	return e
}

// writes returns modified accounts in address order.
func (e *execution) writes() []*Account {
	out := make([]*Account, 0, len(e.dirty))
	for addr := range e.dirty {
		out = append(out, e.accounts[addr].Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return string(out[i].Address[:]) < string(out[j].Address[:])
	})
	return out
}

// InvokeContext is the view a program has of the ledger while it executes.
// Privileges are scoped to the instruction being processed.
type InvokeContext struct {
	exec     *execution
	program  solana.Pubkey
	signers  map[solana.Pubkey]bool
	writable map[solana.Pubkey]bool
	depth    int
}

func (e *execution) newContext(ix Instruction, depth int) *InvokeContext {
	ic := &InvokeContext{
		exec:     e,
		program:  ix.ProgramID,
		signers:  make(map[solana.Pubkey]bool),
		writable: make(map[solana.Pubkey]bool),
		depth:    depth,
	}
	for _, m := range ix.Accounts {
		if m.IsSigner {
			ic.signers[m.Pubkey] = true
		}
		if m.IsWritable {
			ic.writable[m.Pubkey] = true
		}
	}
	return ic
}

func (e *execution) run(ix Instruction, depth int) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}
	prog, ok := e.programs[ix.ProgramID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)
	}
	for _, m := range ix.Accounts {
		if !e.loaded[m.Pubkey] {
			return fmt.Errorf("%w: %s", ErrAccountNotLoaded, m.Pubkey)
		}
	}

	e.logs = append(e.logs, fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, depth))
	if err := prog.Process(e.newContext(ix, depth), ix); err != nil {
		e.logs = append(e.logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	e.logs = append(e.logs, fmt.Sprintf("Program %s success", ix.ProgramID))
	return nil
}

// Context returns the submission context.
func (ic *InvokeContext) Context() context.Context {
	return ic.exec.ctx
}

// ProgramID returns the executing program.
func (ic *InvokeContext) ProgramID() solana.Pubkey {
	return ic.program
}

// Now returns the ledger clock, fixed for the whole transaction.
func (ic *InvokeContext) Now() time.Time {
	return ic.exec.now
}

// IsSigner reports whether addr signed the current instruction.
func (ic *InvokeContext) IsSigner(addr solana.Pubkey) bool {
	return ic.signers[addr]
}

// IsWritable reports whether addr is writable in the current instruction.
func (ic *InvokeContext) IsWritable(addr solana.Pubkey) bool {
	return ic.writable[addr]
}

// Account returns a copy of the account at addr. The address must be
// referenced by the transaction.
func (ic *InvokeContext) Account(addr solana.Pubkey) (*Account, error) {
	if !ic.exec.loaded[addr] {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotLoaded, addr)
	}
	acc, ok := ic.exec.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return acc.Clone(), nil
}

// Exists reports whether a referenced account holds data.
func (ic *InvokeContext) Exists(addr solana.Pubkey) bool {
	_, ok := ic.exec.accounts[addr]
	return ok
}

// Store replaces the data of an existing account owned by the executing program.
func (ic *InvokeContext) Store(addr solana.Pubkey, data []byte) error {
	cur, ok := ic.exec.accounts[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if cur.Owner != ic.program {
		return fmt.Errorf("%w: %s owned by %s", ErrIllegalOwner, addr, cur.Owner)
	}
	if !ic.writable[addr] {
		return fmt.Errorf("%w: %s", ErrReadonlyAccount, addr)
	}
	next := cur.Clone()
	next.Data = append([]byte(nil), data...)
	ic.exec.accounts[addr] = next
	ic.exec.dirty[addr] = true
	return nil
}

// Create allocates a new account owned by the executing program. Programs are
// responsible for checking that the caller may claim addr.
func (ic *InvokeContext) Create(addr solana.Pubkey, data []byte) error {
	if !ic.exec.loaded[addr] {
		return fmt.Errorf("%w: %s", ErrAccountNotLoaded, addr)
	}
	if _, ok := ic.exec.accounts[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, addr)
	}
	if !ic.writable[addr] {
		return fmt.Errorf("%w: %s", ErrReadonlyAccount, addr)
	}
	ic.exec.accounts[addr] = &Account{
		Address: addr,
		Owner:   ic.program,
		Data:    append([]byte(nil), data...),
	}
	ic.exec.dirty[addr] = true
	return nil
}

// Invoke calls another program. Each seed set is turned into a program derived
// address of the caller, which then counts as a signer of ix.
// Signer and writable privileges cannot exceed the caller's.
func (ic *InvokeContext) Invoke(ix Instruction, signerSeeds ...[][]byte) error {
	if ic.depth >= MaxInvokeDepth {
		return ErrCallDepth
	}

	pdaSigners := make(map[solana.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		pda, err := solana.CreateProgramAddress(seeds, ic.program)
		if err != nil {
			return fmt.Errorf("invoke signer seeds: %w", err)
		}
		pdaSigners[pda] = true
	}

	for _, m := range ix.Accounts {
		if m.IsSigner && !ic.signers[m.Pubkey] && !pdaSigners[m.Pubkey] {
			return fmt.Errorf("%w: signer %s", ErrPrivilegeEscalation, m.Pubkey)
		}
		if m.IsWritable && !ic.writable[m.Pubkey] {
			return fmt.Errorf("%w: writable %s", ErrPrivilegeEscalation, m.Pubkey)
		}
	}

	return ic.exec.run(ix, ic.depth+1)
}

// Emit records program event data in the receipt.
func (ic *InvokeContext) Emit(data []byte) {
	ic.exec.events = append(ic.exec.events, Event{
		Program: ic.program,
		Data:    append([]byte(nil), data...),
	})
}

// Logf appends a program log line.
func (ic *InvokeContext) Logf(format string, args ...interface{}) {
	ic.exec.logs = append(ic.exec.logs, "Program log: "+fmt.Sprintf(format, args...))
}
