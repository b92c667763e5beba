package vault

import (
	"bytes"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/policy"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// MaxNameLength is the longest name usable as a derivation seed.
const MaxNameLength = solana.MaxSeedLength

var recordDiscriminator = discriminator("account", "Vault")

// Record is the persisted state of one vault.
//
// Layout: discriminator[8] | authority | token_mint | fee_collector |
// fee_percentage u16 | withdrawal_timelock i64 | withdrawal_limit u64 |
// total_deposited u64 | name (u32 len + bytes) | bump u8 | creation_time i64.
type Record struct {
	Authority          solana.Pubkey
	TokenMint          solana.Pubkey
	FeeCollector       solana.Pubkey
	FeePercentage      uint16
	WithdrawalTimelock int64
	WithdrawalLimit    uint64
	TotalDeposited     uint64
	Name               string
	Bump               uint8
	CreationTime       int64
}

// MarshalBinary encodes the record in its account layout.
func (r *Record) MarshalBinary() ([]byte, error) {
	if len(r.Name) > MaxNameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidName, len(r.Name))
	}
	e := &encoder{buf: make([]byte, 0, 8+32*3+2+8*3+4+len(r.Name)+1+8)}
	e.bytes(recordDiscriminator[:])
	e.pubkey(r.Authority)
	e.pubkey(r.TokenMint)
	e.pubkey(r.FeeCollector)
	e.u16(r.FeePercentage)
	e.i64(r.WithdrawalTimelock)
	e.u64(r.WithdrawalLimit)
	e.u64(r.TotalDeposited)
	e.str(r.Name)
	e.u8(r.Bump)
	e.i64(r.CreationTime)
	return e.buf, nil
}

// UnmarshalBinary decodes account data produced by MarshalBinary.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) < 8 || !bytes.Equal(data[:8], recordDiscriminator[:]) {
		return fmt.Errorf("decode vault: bad discriminator")
	}
	d := &decoder{buf: data, off: 8}
	out := Record{
		Authority:          d.pubkey(),
		TokenMint:          d.pubkey(),
		FeeCollector:       d.pubkey(),
		FeePercentage:      d.u16(),
		WithdrawalTimelock: d.i64(),
		WithdrawalLimit:    d.u64(),
		TotalDeposited:     d.u64(),
		Name:               d.str(MaxNameLength),
		Bump:               d.u8(),
		CreationTime:       d.i64(),
	}
	if err := d.finish(); err != nil {
		return fmt.Errorf("decode vault: %w", err)
	}
	*r = out
	return nil
}

// ParseRecord decodes a ledger account as a vault owned by programID.
// Any account that is not a well-formed vault yields ErrVaultNotFound.
func ParseRecord(acc *ledger.Account, programID solana.Pubkey) (*Record, error) {
	if acc == nil {
		return nil, ErrVaultNotFound
	}
	if acc.Owner != programID {
		return nil, fmt.Errorf("%w: %s owned by %s", ErrVaultNotFound, acc.Address, acc.Owner)
	}
	var r Record
	if err := r.UnmarshalBinary(acc.Data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVaultNotFound, acc.Address, err)
	}
	return &r, nil
}

// UnlockTime is the first unix second at which withdrawals are permitted.
func (r *Record) UnlockTime() int64 {
	return policy.UnlockTime(r.CreationTime, r.WithdrawalTimelock)
}

// Seeds returns the derivation seeds of the vault address including its bump.
func (r *Record) Seeds() [][]byte {
	return append(VaultSeeds(r.Authority, r.TokenMint, r.Name), []byte{r.Bump})
}
