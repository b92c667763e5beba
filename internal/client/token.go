package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/token"
)

// CreateMint initializes a mint at mint's address with the given authority.
func (c *Client) CreateMint(ctx context.Context, mint identity.Signer, authority solana.Pubkey, decimals uint8) (*Result, error) {
	ix := token.NewInitializeMintInstruction(mint.PublicKey(), decimals, authority, nil)
	return c.submit(ctx, "create_mint", ix, mint)
}

// CreateTokenAccount creates the associated token account of (owner, mint).
// payer signs the transaction; owner does not need to.
func (c *Client) CreateTokenAccount(ctx context.Context, payer identity.Signer, owner, mint solana.Pubkey) (solana.Pubkey, *Result, error) {
	ata, _, err := token.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.Pubkey{}, nil, fmt.Errorf("create token account: %w", err)
	}

	ix := token.NewInitializeAccountInstruction(ata, mint, owner)
	ix.Accounts = append(ix.Accounts, ledger.AccountMeta{Pubkey: payer.PublicKey(), IsSigner: true})

	res, err := c.submit(ctx, "create_token_account", ix, payer)
	if err != nil {
		return solana.Pubkey{}, nil, err
	}
	return ata, res, nil
}

// MintTo mints amount into destination. authority must be the mint authority.
func (c *Client) MintTo(ctx context.Context, authority identity.Signer, mint, destination solana.Pubkey, amount uint64) (*Result, error) {
	ix := token.NewMintToInstruction(mint, destination, authority.PublicKey(), amount)
	return c.submit(ctx, "mint_to", ix, authority)
}

// TokenBalance returns the balance of a token account. A missing account has balance zero.
func (c *Client) TokenBalance(ctx context.Context, account solana.Pubkey) (uint64, error) {
	acc, err := c.reader.GetAccount(ctx, account)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get token account %s: %w", account, err)
	}
	tok, err := token.ParseAccount(acc)
	if err != nil {
		return 0, err
	}
	return tok.Amount, nil
}

// GetMint reads a mint.
func (c *Client) GetMint(ctx context.Context, mint solana.Pubkey) (*token.Mint, error) {
	acc, err := c.reader.GetAccount(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint %s: %w", mint, err)
	}
	return token.ParseMint(acc)
}
