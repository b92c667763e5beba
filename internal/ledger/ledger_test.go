package ledger_test

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/storage/memory"
)

var errBoom = errors.New("boom")

const (
	opCreate byte = iota
	opIncrement
	opFail
	opWriteForeign
	opInvokeSigned
	opInvokeUnsigned
)

// counterProgram keeps a u64 counter per account.
type counterProgram struct {
	id     solana.Pubkey
	callee solana.Pubkey
}

func (p *counterProgram) ID() solana.Pubkey { return p.id }

func (p *counterProgram) Process(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	switch ix.Data[0] {
	case opCreate:
		if !ic.IsSigner(ix.Accounts[0].Pubkey) {
			return errors.New("payer must sign")
		}
		return ic.Create(ix.Accounts[1].Pubkey, make([]byte, 8))
	case opIncrement:
		acc, err := ic.Account(ix.Accounts[1].Pubkey)
		if err != nil {
			return err
		}
		n := binary.LittleEndian.Uint64(acc.Data)
		ic.Emit(binary.LittleEndian.AppendUint64(nil, n+1))
		ic.Logf("counter=%d", n+1)
		return ic.Store(acc.Address, binary.LittleEndian.AppendUint64(nil, n+1))
	case opFail:
		if err := ic.Store(ix.Accounts[1].Pubkey, []byte{9, 9, 9, 9, 9, 9, 9, 9}); err != nil {
			return err
		}
		return errBoom
	case opWriteForeign:
		return ic.Store(ix.Accounts[1].Pubkey, []byte{1})
	case opInvokeSigned, opInvokeUnsigned:
		pda, bump, err := solana.FindProgramAddress([][]byte{[]byte("authority")}, p.id)
		if err != nil {
			return err
		}
		inner := ledger.Instruction{
			ProgramID: p.callee,
			Accounts: []ledger.AccountMeta{
				{Pubkey: pda, IsSigner: true},
			},
		}
		if ix.Data[0] == opInvokeUnsigned {
			return ic.Invoke(inner)
		}
		return ic.Invoke(inner, [][]byte{[]byte("authority"), {bump}})
	}
	return errors.New("unknown op")
}

// signerCheckProgram requires its first account to sign.
type signerCheckProgram struct {
	id     solana.Pubkey
	called int
}

func (p *signerCheckProgram) ID() solana.Pubkey { return p.id }

func (p *signerCheckProgram) Process(ic *ledger.InvokeContext, ix ledger.Instruction) error {
	if !ic.IsSigner(ix.Accounts[0].Pubkey) {
		return errors.New("not signed")
	}
	p.called++
	return nil
}

type fixture struct {
	store   *memory.AccountStore
	ledger  *ledger.Ledger
	counter *counterProgram
	callee  *signerCheckProgram
	payer   *identity.Keypair
	now     time.Time
}

func key(s string) solana.Pubkey {
	return solana.Pubkey(sha256.Sum256([]byte(s)))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	payer, err := identity.Generate()
	require.NoError(t, err)

	f := &fixture{
		store:  memory.NewAccountStore(),
		callee: &signerCheckProgram{id: key("callee")},
		payer:  payer,
		now:    time.Unix(1_700_000_000, 0),
	}
	f.counter = &counterProgram{id: key("counter"), callee: f.callee.id}
	f.ledger = ledger.New(f.store,
		ledger.WithProgram(f.counter),
		ledger.WithProgram(f.callee),
		ledger.WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) tx(t *testing.T, op byte, target solana.Pubkey) *ledger.Transaction {
	t.Helper()
	tx := ledger.NewTransaction(ledger.Instruction{
		ProgramID: f.counter.id,
		Accounts: []ledger.AccountMeta{
			{Pubkey: f.payer.PublicKey(), IsSigner: true, IsWritable: true},
			{Pubkey: target, IsWritable: true},
		},
		Data: []byte{op},
	})
	require.NoError(t, tx.Sign(f.payer))
	return tx
}

func (f *fixture) counterValue(t *testing.T, addr solana.Pubkey) uint64 {
	t.Helper()
	acc, err := f.ledger.GetAccount(context.Background(), addr)
	require.NoError(t, err)
	return binary.LittleEndian.Uint64(acc.Data)
}

func TestLedger_SubmitCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := key("target")

	receipt, err := f.ledger.Submit(ctx, f.tx(t, opCreate, target))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.Seq)
	assert.NotEmpty(t, receipt.Signature)
	assert.Equal(t, f.now, receipt.Timestamp)

	acc, err := f.ledger.GetAccount(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, f.counter.id, acc.Owner)

	receipt, err = f.ledger.Submit(ctx, f.tx(t, opIncrement, target))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), receipt.Seq)
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, f.counter.id, receipt.Events[0].Program)
	assert.Contains(t, receipt.Logs, "Program log: counter=1")
	assert.Equal(t, uint64(1), f.counterValue(t, target))
}

func TestLedger_GetAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := key("a"), key("b")

	_, err := f.ledger.Submit(ctx, f.tx(t, opCreate, a))
	require.NoError(t, err)
	_, err = f.ledger.Submit(ctx, f.tx(t, opCreate, b))
	require.NoError(t, err)

	accs, err := f.ledger.GetAccounts(ctx, []solana.Pubkey{b, key("missing"), a})
	require.NoError(t, err)
	require.Len(t, accs, 3)
	assert.Equal(t, b, accs[0].Address)
	assert.Nil(t, accs[1])
	assert.Equal(t, a, accs[2].Address)
}

func TestLedger_SignatureChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx := ledger.NewTransaction(ledger.Instruction{
		ProgramID: f.counter.id,
		Accounts: []ledger.AccountMeta{
			{Pubkey: f.payer.PublicKey(), IsSigner: true},
			{Pubkey: key("target"), IsWritable: true},
		},
		Data: []byte{opCreate},
	})

	_, err := f.ledger.Submit(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrMissingSignature)

	other, err := identity.Generate()
	require.NoError(t, err)
	assert.ErrorIs(t, tx.Sign(other), ledger.ErrMissingSignature)

	require.NoError(t, tx.Sign(f.payer))
	tx.Instruction.Data = []byte{opIncrement}
	_, err = f.ledger.Submit(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrInvalidSignature)
}

func TestLedger_RejectedLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := key("target")

	_, err := f.ledger.Submit(ctx, f.tx(t, opCreate, target))
	require.NoError(t, err)

	_, err = f.ledger.Submit(ctx, f.tx(t, opFail, target))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)
	assert.ErrorIs(t, err, errBoom)

	var rejected *ledger.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, errBoom, rejected.Err)

	assert.Equal(t, uint64(0), f.counterValue(t, target))
}

func TestLedger_ReplayRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := key("target")

	_, err := f.ledger.Submit(ctx, f.tx(t, opCreate, target))
	require.NoError(t, err)

	tx := f.tx(t, opIncrement, target)
	_, err = f.ledger.Submit(ctx, tx)
	require.NoError(t, err)

	_, err = f.ledger.Submit(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	assert.Equal(t, uint64(1), f.counterValue(t, target))

	// Same instruction with a fresh nonce is a new transaction.
	_, err = f.ledger.Submit(ctx, f.tx(t, opIncrement, target))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.counterValue(t, target))
}

func TestLedger_UnknownProgram(t *testing.T) {
	f := newFixture(t)

	tx := ledger.NewTransaction(ledger.Instruction{
		ProgramID: key("nobody"),
		Accounts:  []ledger.AccountMeta{{Pubkey: f.payer.PublicKey(), IsSigner: true}},
	})
	require.NoError(t, tx.Sign(f.payer))

	_, err := f.ledger.Submit(context.Background(), tx)
	assert.ErrorIs(t, err, ledger.ErrSubmissionRejected)
	assert.ErrorIs(t, err, ledger.ErrUnknownProgram)
}

func TestLedger_ContextCancelled(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ledger.Submit(ctx, f.tx(t, opCreate, key("target")))
	assert.ErrorIs(t, err, ledger.ErrSubmissionTimeout)
	assert.NotErrorIs(t, err, ledger.ErrSubmissionRejected)
}

func TestLedger_ForeignWriteRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	foreign := key("foreign")

	_, err := f.store.Update(ctx, []solana.Pubkey{foreign}, func(map[solana.Pubkey]*ledger.Account) ([]*ledger.Account, error) {
		return []*ledger.Account{{Address: foreign, Owner: key("someone else"), Data: []byte{0}}}, nil
	})
	require.NoError(t, err)

	_, err = f.ledger.Submit(ctx, f.tx(t, opWriteForeign, foreign))
	assert.ErrorIs(t, err, ledger.ErrIllegalOwner)
}

func TestLedger_InvokeSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pda, _, err := solana.FindProgramAddress([][]byte{[]byte("authority")}, f.counter.id)
	require.NoError(t, err)

	_, err = f.ledger.Submit(ctx, f.tx(t, opInvokeUnsigned, pda))
	assert.ErrorIs(t, err, ledger.ErrPrivilegeEscalation)
	assert.Equal(t, 0, f.callee.called)

	_, err = f.ledger.Submit(ctx, f.tx(t, opInvokeSigned, pda))
	require.NoError(t, err)
	assert.Equal(t, 1, f.callee.called)
}

func TestLedger_ConcurrentSubmissionsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := key("target")

	_, err := f.ledger.Submit(ctx, f.tx(t, opCreate, target))
	require.NoError(t, err)

	const n = 50
	txs := make([]*ledger.Transaction, n)
	for i := range txs {
		txs[i] = f.tx(t, opIncrement, target)
	}

	var wg sync.WaitGroup
	seqs := make([]uint64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.ledger.Submit(ctx, txs[i])
			errs[i] = err
			if r != nil {
				seqs[i] = r.Seq
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[seqs[i]], "duplicate seq %d", seqs[i])
		seen[seqs[i]] = true
	}
	assert.Equal(t, uint64(n), f.counterValue(t, target))
}

func TestTransaction_MessageCoversNonce(t *testing.T) {
	ix := ledger.Instruction{ProgramID: key("p"), Data: []byte{1}}
	a := ledger.NewTransaction(ix)
	b := ledger.NewTransaction(ix)
	assert.NotEqual(t, a.Message(), b.Message())

	b.Nonce = a.Nonce
	assert.Equal(t, a.Message(), b.Message())
}

func TestTransaction_SignersDeduplicated(t *testing.T) {
	signer := key("s")
	tx := ledger.NewTransaction(ledger.Instruction{
		ProgramID: key("p"),
		Accounts: []ledger.AccountMeta{
			{Pubkey: signer, IsSigner: true},
			{Pubkey: key("x")},
			{Pubkey: signer, IsSigner: true, IsWritable: true},
		},
	})
	assert.Equal(t, []solana.Pubkey{signer}, tx.Signers())
	assert.Empty(t, tx.ID())
}
