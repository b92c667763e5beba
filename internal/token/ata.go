package token

import (
	"github.com/Alibek10599/token-vault/internal/solana"
)

// Well-known program IDs.
var (
	ProgramID                = solana.MustPubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = solana.MustPubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// FindAssociatedTokenAddress returns the canonical token account of owner for mint.
// Seeds: [owner, token_program_id, mint] under the associated token program.
func FindAssociatedTokenAddress(owner, mint solana.Pubkey) (solana.Pubkey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{owner[:], ProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
}
