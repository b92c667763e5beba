// Package token implements a fungible token program with SPL Token compatible
// account layouts and instruction encodings.
package token

import (
	"encoding/binary"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/solana"
)

// Account data sizes.
const (
	MintSize    = 82
	AccountSize = 165
)

// AccountState is the state byte of a token account.
type AccountState uint8

const (
	AccountUninitialized AccountState = iota
	AccountInitialized
	AccountFrozen
)

// Mint layout:
// mint_authority COption<Pubkey>(36) | supply u64 | decimals u8 | is_initialized u8 | freeze_authority COption<Pubkey>(36)
type Mint struct {
	MintAuthority   *solana.Pubkey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *solana.Pubkey
}

// Account layout:
// mint(32) | owner(32) | amount u64 | delegate COption<Pubkey>(36) | state u8 |
// is_native COption<u64>(12) | delegated_amount u64 | close_authority COption<Pubkey>(36)
type Account struct {
	Mint   solana.Pubkey
	Owner  solana.Pubkey
	Amount uint64
	State  AccountState
}

// Encode serializes the mint into MintSize bytes.
func (m *Mint) Encode() []byte {
	b := make([]byte, MintSize)
	putOptionKey(b[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(b[36:44], m.Supply)
	b[44] = m.Decimals
	if m.IsInitialized {
		b[45] = 1
	}
	putOptionKey(b[46:82], m.FreezeAuthority)
	return b
}

// DecodeMint parses mint account data.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: mint data length %d", ErrInvalidAccountData, len(data))
	}
	authority, err := optionKey(data[0:36])
	if err != nil {
		return nil, err
	}
	freeze, err := optionKey(data[46:82])
	if err != nil {
		return nil, err
	}
	return &Mint{
		MintAuthority:   authority,
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   data[45] == 1,
		FreezeAuthority: freeze,
	}, nil
}

// Encode serializes the token account into AccountSize bytes.
// Delegate, native and close-authority fields are always empty.
func (a *Account) Encode() []byte {
	b := make([]byte, AccountSize)
	copy(b[0:32], a.Mint[:])
	copy(b[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(b[64:72], a.Amount)
	b[108] = byte(a.State)
	return b
}

// DecodeAccount parses token account data.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("%w: token account data length %d", ErrInvalidAccountData, len(data))
	}
	state := AccountState(data[108])
	if state > AccountFrozen {
		return nil, fmt.Errorf("%w: state %d", ErrInvalidAccountData, state)
	}
	acc := &Account{
		Amount: binary.LittleEndian.Uint64(data[64:72]),
		State:  state,
	}
	copy(acc.Mint[:], data[0:32])
	copy(acc.Owner[:], data[32:64])
	return acc, nil
}

func putOptionKey(b []byte, pk *solana.Pubkey) {
	if pk == nil {
		return
	}
	binary.LittleEndian.PutUint32(b[0:4], 1)
	copy(b[4:36], pk[:])
}

func optionKey(b []byte) (*solana.Pubkey, error) {
	switch binary.LittleEndian.Uint32(b[0:4]) {
	case 0:
		return nil, nil
	case 1:
		var pk solana.Pubkey
		copy(pk[:], b[4:36])
		return &pk, nil
	default:
		return nil, fmt.Errorf("%w: bad option tag", ErrInvalidAccountData)
	}
}
