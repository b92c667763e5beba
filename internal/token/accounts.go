package token

import (
	"fmt"

	"github.com/Alibek10599/token-vault/internal/ledger"
)

// ParseMint decodes a ledger account as a mint owned by the token program.
func ParseMint(acc *ledger.Account) (*Mint, error) {
	if acc.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidMint, acc.Address)
	}
	return DecodeMint(acc.Data)
}

// ParseAccount decodes a ledger account as a token account owned by the token program.
func ParseAccount(acc *ledger.Account) (*Account, error) {
	if acc.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s not owned by token program", ErrInvalidAccountData, acc.Address)
	}
	return DecodeAccount(acc.Data)
}
