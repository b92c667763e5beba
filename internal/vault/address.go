package vault

import (
	"fmt"

	"github.com/Alibek10599/token-vault/internal/solana"
)

// DefaultProgramID is the vault program address used when none is configured.
var DefaultProgramID = solana.MustPubkey("8kqR5mYG7HxMSNxz2qT14vuBBNT7rNWyQrbqqYvkDFJm")

// Seed prefixes.
const (
	VaultSeedPrefix   = "vault"
	CustodySeedPrefix = "vault_token_account"
)

// Addresses are the derived locations of one vault.
type Addresses struct {
	Vault       solana.Pubkey
	VaultBump   uint8
	Custody     solana.Pubkey
	CustodyBump uint8
}

// VaultSeeds returns ["vault", authority, mint, name].
func VaultSeeds(authority, mint solana.Pubkey, name string) [][]byte {
	return [][]byte{[]byte(VaultSeedPrefix), authority[:], mint[:], []byte(name)}
}

// CustodySeeds returns ["vault_token_account", vault].
func CustodySeeds(vault solana.Pubkey) [][]byte {
	return [][]byte{[]byte(CustodySeedPrefix), vault[:]}
}

// FindVaultAddress derives the vault record address.
func FindVaultAddress(programID, authority, mint solana.Pubkey, name string) (solana.Pubkey, uint8, error) {
	if err := validateName(name); err != nil {
		return solana.Pubkey{}, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(VaultSeeds(authority, mint, name), programID)
	if err != nil {
		return solana.Pubkey{}, 0, fmt.Errorf("derive vault address: %w", err)
	}
	return addr, bump, nil
}

// FindCustodyAddress derives the custody token account of a vault.
func FindCustodyAddress(programID, vault solana.Pubkey) (solana.Pubkey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(CustodySeeds(vault), programID)
	if err != nil {
		return solana.Pubkey{}, 0, fmt.Errorf("derive custody address: %w", err)
	}
	return addr, bump, nil
}

// DeriveAddresses derives both vault addresses from public seeds.
func DeriveAddresses(programID, authority, mint solana.Pubkey, name string) (Addresses, error) {
	vault, vaultBump, err := FindVaultAddress(programID, authority, mint, name)
	if err != nil {
		return Addresses{}, err
	}
	custody, custodyBump, err := FindCustodyAddress(programID, vault)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{
		Vault:       vault,
		VaultBump:   vaultBump,
		Custody:     custody,
		CustodyBump: custodyBump,
	}, nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidName, len(name), MaxNameLength)
	}
	return nil
}
