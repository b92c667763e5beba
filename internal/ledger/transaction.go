package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// AccountMeta describes how an instruction uses an account.
type AccountMeta struct {
	Pubkey     solana.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program call.
type Instruction struct {
	ProgramID solana.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is a signed instruction. Nonce makes otherwise identical
// transactions produce distinct signatures.
type Transaction struct {
	Instruction Instruction
	Nonce       uuid.UUID
	// Signatures are ordered as Signers().
	Signatures [][]byte
}

// NewTransaction wraps ix with a fresh nonce.
func NewTransaction(ix Instruction) *Transaction {
	return &Transaction{Instruction: ix, Nonce: uuid.New()}
}

// Signers returns signer accounts in first-appearance order without duplicates.
func (tx *Transaction) Signers() []solana.Pubkey {
	seen := make(map[solana.Pubkey]bool)
	var out []solana.Pubkey
	for _, m := range tx.Instruction.Accounts {
		if m.IsSigner && !seen[m.Pubkey] {
			seen[m.Pubkey] = true
			out = append(out, m.Pubkey)
		}
	}
	return out
}

// Message returns the canonical bytes covered by signatures:
// program_id | u16 account count | (pubkey | flags)* | u32 data length | data | nonce.
func (tx *Transaction) Message() []byte {
	ix := tx.Instruction
	buf := make([]byte, 0, 32+2+len(ix.Accounts)*33+4+len(ix.Data)+16)
	buf = append(buf, ix.ProgramID[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ix.Accounts)))
	for _, m := range ix.Accounts {
		var flags byte
		if m.IsSigner {
			flags |= 1
		}
		if m.IsWritable {
			flags |= 2
		}
		buf = append(buf, m.Pubkey[:]...)
		buf = append(buf, flags)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.Data)))
	buf = append(buf, ix.Data...)
	buf = append(buf, tx.Nonce[:]...)
	return buf
}

// Sign signs the message with every required signer. All signers listed by
// Signers() must be supplied; extra signers are an error.
func (tx *Transaction) Sign(signers ...identity.Signer) error {
	byKey := make(map[solana.Pubkey]identity.Signer, len(signers))
	for _, s := range signers {
		byKey[s.PublicKey()] = s
	}

	required := tx.Signers()
	if len(byKey) > len(required) {
		return fmt.Errorf("sign: %d signers supplied, %d required", len(byKey), len(required))
	}

	msg := tx.Message()
	sigs := make([][]byte, len(required))
	for i, pk := range required {
		s, ok := byKey[pk]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSignature, pk)
		}
		sigs[i] = s.Sign(msg)
	}
	tx.Signatures = sigs
	return nil
}

// Verify checks that every signer account carries a valid signature.
func (tx *Transaction) Verify() error {
	required := tx.Signers()
	if len(required) == 0 {
		return fmt.Errorf("%w: transaction has no signers", ErrMissingSignature)
	}
	if len(tx.Signatures) != len(required) {
		return fmt.Errorf("%w: have %d signatures, need %d", ErrMissingSignature, len(tx.Signatures), len(required))
	}

	msg := tx.Message()
	for i, pk := range required {
		if !identity.Verify(pk, msg, tx.Signatures[i]) {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, pk)
		}
	}
	return nil
}

// ID returns the base58 form of the first signature, or "" if unsigned.
func (tx *Transaction) ID() string {
	if len(tx.Signatures) == 0 {
		return ""
	}
	return base58.Encode(tx.Signatures[0])
}
