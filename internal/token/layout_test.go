package token

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alibek10599/token-vault/internal/solana"
)

func hashKey(s string) solana.Pubkey {
	return solana.Pubkey(sha256.Sum256([]byte(s)))
}

func TestAccountLayoutOffsets(t *testing.T) {
	acc := &Account{
		Mint:   hashKey("mint"),
		Owner:  hashKey("owner"),
		Amount: 1_000_000_000,
		State:  AccountInitialized,
	}
	data := acc.Encode()
	require.Len(t, data, AccountSize)

	assert.Equal(t, acc.Mint[:], data[0:32])
	assert.Equal(t, acc.Owner[:], data[32:64])
	assert.Equal(t, uint64(1_000_000_000), binary.LittleEndian.Uint64(data[64:72]))
	assert.Equal(t, byte(1), data[108])

	decoded, err := DecodeAccount(data)
	require.NoError(t, err)
	assert.Equal(t, acc, decoded)

	_, err = DecodeAccount(data[:72])
	assert.ErrorIs(t, err, ErrInvalidAccountData)

	data[108] = 7
	_, err = DecodeAccount(data)
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestMintLayoutOffsets(t *testing.T) {
	authority := hashKey("authority")
	mint := &Mint{
		MintAuthority: &authority,
		Supply:        42,
		Decimals:      9,
		IsInitialized: true,
	}
	data := mint.Encode()
	require.Len(t, data, MintSize)

	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, authority[:], data[4:36])
	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(data[36:44]))
	assert.Equal(t, byte(9), data[44])
	assert.Equal(t, byte(1), data[45])
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[46:50]))

	decoded, err := DecodeMint(data)
	require.NoError(t, err)
	assert.Equal(t, mint, decoded)

	data[0] = 5
	_, err = DecodeMint(data)
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	addr, bump, err := FindAssociatedTokenAddress(hashKey("authority"), hashKey("mint"))
	require.NoError(t, err)
	assert.Equal(t, "BmVpPf7kdRq3ZeqxZViGhyzjmtKX96hBjfD4nT9dg933", addr.String())
	assert.Equal(t, uint8(253), bump)

	other, _, err := FindAssociatedTokenAddress(hashKey("mint"), hashKey("authority"))
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)
}

func TestParseUIAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{"1", 9, 1_000_000_000, false},
		{"1.5", 9, 1_500_000_000, false},
		{"0.000000001", 9, 1, false},
		{"0.0000000001", 9, 0, true},
		{"1000", 0, 1000, false},
		{"1.5", 0, 0, true},
		{"-1", 6, 0, true},
		{"abc", 6, 0, true},
		{"18446744073709551615", 0, 18446744073709551615, false},
		{"18446744073709551616", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUIAmount(tt.in, tt.decimals)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToUIAmount(t *testing.T) {
	assert.Equal(t, "1.5", ToUIAmount(1_500_000_000, 9).String())
	assert.Equal(t, "0.000001", ToUIAmount(1, 6).String())
	assert.Equal(t, "18446744073709551615", ToUIAmount(^uint64(0), 0).String())
}
