package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Alibek10599/token-vault/internal/client"
	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/token"
)

func newKeygenCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing keypair at --keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := identity.LoadKeypair(a.cfg.KeypairPath); err == nil {
					return fmt.Errorf("keypair %s already exists; pass --force to overwrite", a.cfg.KeypairPath)
				}
			}
			kp, err := identity.Generate()
			if err != nil {
				return err
			}
			if err := identity.SaveKeypair(a.cfg.KeypairPath, kp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pubkey: %s\nwritten to %s\n", kp.PublicKey(), a.cfg.KeypairPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing keypair")
	return cmd
}

func newMintCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Create token mints and mint tokens",
	}

	var decimals uint8
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a mint whose authority is the configured keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			authority, err := a.signer()
			if err != nil {
				return err
			}
			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			mint, err := identity.Generate()
			if err != nil {
				return err
			}
			res, err := c.CreateMint(ctx, mint, authority.PublicKey(), decimals)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mint: %s\ndecimals: %d\nsignature: %s\n", mint.PublicKey(), decimals, res.Signature)
			return nil
		},
	}
	create.Flags().Uint8Var(&decimals, "decimals", 9, "Mint decimals")

	to := &cobra.Command{
		Use:   "to MINT OWNER AMOUNT",
		Short: "Mint AMOUNT tokens into the associated account of OWNER",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mint, err := parsePubkeyArg("mint", args[0])
			if err != nil {
				return err
			}
			owner, err := parsePubkeyArg("owner", args[1])
			if err != nil {
				return err
			}
			authority, err := a.signer()
			if err != nil {
				return err
			}
			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			amount, err := a.uiAmount(ctx, c, mint, args[2])
			if err != nil {
				return err
			}
			ata, err := ensureTokenAccount(cmd, c, authority, owner, mint)
			if err != nil {
				return err
			}
			res, err := c.MintTo(ctx, authority, mint, ata, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "minted %s to %s\nsignature: %s\n", args[2], ata, res.Signature)
			return nil
		},
	}

	cmd.AddCommand(create, to)
	return cmd
}

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage associated token accounts",
	}

	var owner string
	create := &cobra.Command{
		Use:   "create MINT",
		Short: "Create the associated token account of --owner (default: keypair) for MINT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mint, err := parsePubkeyArg("mint", args[0])
			if err != nil {
				return err
			}
			payer, err := a.signer()
			if err != nil {
				return err
			}
			holder, err := ownerOrSelf(owner, payer)
			if err != nil {
				return err
			}
			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			ata, res, err := c.CreateTokenAccount(ctx, payer, holder, mint)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account: %s\nsignature: %s\n", ata, res.Signature)
			return nil
		},
	}
	create.Flags().StringVar(&owner, "owner", "", "Account owner")

	var balanceOwner string
	var fromCluster bool
	balance := &cobra.Command{
		Use:   "balance MINT",
		Short: "Show the balance of the associated token account of --owner for MINT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mint, err := parsePubkeyArg("mint", args[0])
			if err != nil {
				return err
			}
			holder, err := a.ownerOrSigner(balanceOwner)
			if err != nil {
				return err
			}
			c, err := a.reader(ctx, fromCluster)
			if err != nil {
				return err
			}
			m, err := c.GetMint(ctx, mint)
			if err != nil {
				return err
			}
			ata, _, err := token.FindAssociatedTokenAddress(holder, mint)
			if err != nil {
				return err
			}
			amount, err := c.TokenBalance(ctx, ata)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account: %s\nbalance: %s\n", ata, token.ToUIAmount(amount, m.Decimals))
			return nil
		},
	}
	balance.Flags().StringVar(&balanceOwner, "owner", "", "Account owner")
	balance.Flags().BoolVar(&fromCluster, "remote", false, "Read from --rpc-endpoint instead of the local ledger")

	cmd.AddCommand(create, balance)
	return cmd
}

// ensureTokenAccount returns the associated account of owner, creating it when absent.
func ensureTokenAccount(cmd *cobra.Command, c *client.Client, payer identity.Signer, owner, mint solana.Pubkey) (solana.Pubkey, error) {
	ata, _, err := c.CreateTokenAccount(cmd.Context(), payer, owner, mint)
	if errors.Is(err, ledger.ErrAccountAlreadyExists) {
		ata, _, err = token.FindAssociatedTokenAddress(owner, mint)
	}
	return ata, err
}

func ownerOrSelf(owner string, self identity.Signer) (solana.Pubkey, error) {
	if owner == "" {
		return self.PublicKey(), nil
	}
	return parsePubkeyArg("owner", owner)
}

// ownerOrSigner parses owner, falling back to the configured keypair.
func (a *app) ownerOrSigner(owner string) (solana.Pubkey, error) {
	if owner != "" {
		return parsePubkeyArg("owner", owner)
	}
	kp, err := a.signer()
	if err != nil {
		return solana.Pubkey{}, err
	}
	return kp.PublicKey(), nil
}
