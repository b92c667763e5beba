package token

import (
	"encoding/binary"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// Instruction tags, numbered as in SPL Token.
const (
	TagTransfer           uint8 = 3
	TagMintTo             uint8 = 7
	TagInitializeAccount3 uint8 = 18
	TagInitializeMint2    uint8 = 20
)

// NewInitializeMintInstruction creates a mint. The mint address must sign.
// Accounts: [mint (writable, signer)].
func NewInitializeMintInstruction(mint solana.Pubkey, decimals uint8, authority solana.Pubkey, freeze *solana.Pubkey) ledger.Instruction {
	data := make([]byte, 0, 1+1+32+36)
	data = append(data, TagInitializeMint2, decimals)
	data = append(data, authority[:]...)
	if freeze != nil {
		data = append(data, 1)
		data = append(data, freeze[:]...)
	} else {
		data = append(data, 0)
	}
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: mint, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// NewInitializeAccountInstruction creates a token account for owner. The
// account must sign unless it is the associated token address of (owner, mint).
// Accounts: [account (writable, signer unless associated), mint].
func NewInitializeAccountInstruction(account, mint, owner solana.Pubkey) ledger.Instruction {
	ata, _, err := FindAssociatedTokenAddress(owner, mint)
	signer := err != nil || ata != account

	data := make([]byte, 0, 33)
	data = append(data, TagInitializeAccount3)
	data = append(data, owner[:]...)
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: account, IsSigner: signer, IsWritable: true},
			{Pubkey: mint},
		},
		Data: data,
	}
}

// NewTransferInstruction moves amount between token accounts of the same mint.
// Accounts: [source (writable), destination (writable), owner (signer)].
func NewTransferInstruction(source, destination, owner solana.Pubkey, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: source, IsWritable: true},
			{Pubkey: destination, IsWritable: true},
			{Pubkey: owner, IsSigner: true},
		},
		Data: amountData(TagTransfer, amount),
	}
}

// NewMintToInstruction mints new tokens into destination.
// Accounts: [mint (writable), destination (writable), mint authority (signer)].
func NewMintToInstruction(mint, destination, authority solana.Pubkey, amount uint64) ledger.Instruction {
	return ledger.Instruction{
		ProgramID: ProgramID,
		Accounts: []ledger.AccountMeta{
			{Pubkey: mint, IsWritable: true},
			{Pubkey: destination, IsWritable: true},
			{Pubkey: authority, IsSigner: true},
		},
		Data: amountData(TagMintTo, amount),
	}
}

func amountData(tag uint8, amount uint64) []byte {
	data := make([]byte, 9)
	data[0] = tag
	binary.LittleEndian.PutUint64(data[1:], amount)
	return data
}

func decodeAmount(data []byte) (uint64, error) {
	if len(data) != 9 {
		return 0, fmt.Errorf("%w: amount payload length %d", ErrInvalidInstruction, len(data))
	}
	return binary.LittleEndian.Uint64(data[1:]), nil
}
