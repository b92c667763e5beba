package vault

import (
	"errors"

	"github.com/Alibek10599/token-vault/internal/policy"
)

// Vault errors. Checks fail before any account is modified.
var (
	ErrAlreadyInitialized       = errors.New("vault already initialized")
	ErrVaultNotFound            = errors.New("vault not found")
	ErrInvalidFeeConfig         = policy.ErrInvalidFeeConfig
	ErrZeroAmount               = errors.New("amount must be greater than zero")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrInsufficientVaultBalance = errors.New("insufficient vault balance")
	ErrExceedsWithdrawalLimit   = errors.New("amount exceeds withdrawal limit")
	ErrTimelockNotElapsed       = errors.New("withdrawal timelock has not elapsed")
	ErrUnauthorized             = errors.New("unauthorized")

	ErrInvalidName            = errors.New("invalid vault name")
	ErrInvalidTimelock        = errors.New("withdrawal timelock must not be negative")
	ErrInvalidWithdrawalLimit = errors.New("withdrawal limit must be greater than zero")
	ErrInvalidMint            = errors.New("invalid token mint")
	ErrMintMismatch           = errors.New("token account mint does not match vault")
	ErrAddressMismatch        = errors.New("account address does not match derived address")
	ErrArithmeticOverflow     = errors.New("arithmetic overflow")
	ErrInvariantViolation     = errors.New("custody balance does not match total deposited")
	ErrInvalidInstruction     = errors.New("invalid vault instruction")
)
