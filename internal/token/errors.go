package token

import "errors"

// Token program errors.
var (
	ErrInvalidInstruction = errors.New("invalid token instruction")
	ErrInvalidAccountData = errors.New("invalid token account data")
	ErrNotInitialized     = errors.New("token account not initialized")
	ErrAccountFrozen      = errors.New("token account frozen")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrMintMismatch       = errors.New("account not associated with this mint")
	ErrOwnerMismatch      = errors.New("owner does not match")
	ErrMissingSigner      = errors.New("missing required signer")
	ErrInvalidMint        = errors.New("invalid mint")
	ErrInvalidAddress     = errors.New("account address cannot be claimed")
	ErrFixedSupply        = errors.New("mint has no mint authority")
	ErrOverflow           = errors.New("operation overflowed")
)
