package ledger

import (
	"github.com/Alibek10599/token-vault/internal/solana"
)

// SystemProgramID owns ledger bookkeeping accounts.
var SystemProgramID = solana.Pubkey{}

// Account is a ledger entry. Only Owner may modify Data.
type Account struct {
	Address solana.Pubkey
	Owner   solana.Pubkey
	Data    []byte
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Account{Address: a.Address, Owner: a.Owner, Data: data}
}
