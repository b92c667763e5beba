package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alibek10599/token-vault/internal/client"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/token"
	"github.com/Alibek10599/token-vault/internal/vault"
	"github.com/Alibek10599/token-vault/internal/verification"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		feeBps       uint16
		timelock     time.Duration
		limit        string
		feeCollector string
	)
	cmd := &cobra.Command{
		Use:   "init MINT NAME",
		Short: "Create a vault for MINT owned by the configured keypair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mint, err := parsePubkeyArg("mint", args[0])
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
			limitUnits, err := a.uiAmount(ctx, c, mint, limit)
			if err != nil {
				return err
			}

			var opts []client.InitOption
			if feeCollector != "" {
				collector, err := parsePubkeyArg("fee-collector", feeCollector)
				if err != nil {
					return err
				}
				opts = append(opts, client.WithFeeCollector(collector))
			}

			res, err := c.InitializeVault(ctx, authority, mint, args[1], feeBps, int64(timelock/time.Second), limitUnits, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vault: %s\nsignature: %s\n", res.Vault, res.Signature)
			return nil
		},
	}
	cmd.Flags().Uint16Var(&feeBps, "fee-bps", 0, "Withdrawal fee in basis points (max 10000)")
	cmd.Flags().DurationVar(&timelock, "timelock", 0, "Delay after creation before withdrawals are allowed")
	cmd.Flags().StringVar(&limit, "limit", "", "Maximum amount per withdrawal in tokens")
	cmd.Flags().StringVar(&feeCollector, "fee-collector", "", "Fee recipient (default: authority)")
	_ = cmd.MarkFlagRequired("limit")
	return cmd
}

func newDepositCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit VAULT AMOUNT",
		Short: "Deposit AMOUNT tokens from the keypair's associated account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transfer(cmd, args, func(c *client.Client, vaultAddr solana.Pubkey, amount uint64) (*client.Result, error) {
				kp, err := a.signer()
				if err != nil {
					return nil, err
				}
				return c.Deposit(cmd.Context(), kp, vaultAddr, amount)
			})
		},
	}
}

func newWithdrawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw VAULT AMOUNT",
		Short: "Withdraw AMOUNT tokens to the keypair's associated account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.transfer(cmd, args, func(c *client.Client, vaultAddr solana.Pubkey, amount uint64) (*client.Result, error) {
				kp, err := a.signer()
				if err != nil {
					return nil, err
				}
				return c.Withdraw(cmd.Context(), kp, vaultAddr, amount)
			})
		},
	}
}

type transferFunc func(c *client.Client, vaultAddr solana.Pubkey, amount uint64) (*client.Result, error)

func (a *app) transfer(cmd *cobra.Command, args []string, fn transferFunc) error {
	ctx := cmd.Context()
	vaultAddr, err := parsePubkeyArg("vault", args[0])
	if err != nil {
		return err
	}
	c, err := a.client(ctx)
	if err != nil {
		return err
	}
	rec, err := c.GetVaultInfo(ctx, vaultAddr)
	if err != nil {
		return err
	}
	mint, err := c.GetMint(ctx, rec.TokenMint)
	if err != nil {
		return err
	}
	amount, err := token.ParseUIAmount(args[1], mint.Decimals)
	if err != nil {
		return err
	}

	res, err := fn(c, vaultAddr, amount)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "signature: %s\n", res.Signature)
	for _, ev := range res.VaultEvents {
		fmt.Fprintf(out, "%s amount=%s fee=%s net=%s total=%s\n",
			ev.Kind,
			token.ToUIAmount(ev.Amount, mint.Decimals),
			token.ToUIAmount(ev.Fee, mint.Decimals),
			token.ToUIAmount(ev.Net, mint.Decimals),
			token.ToUIAmount(ev.TotalDeposited, mint.Decimals),
		)
	}
	return nil
}

func newInfoCmd(a *app) *cobra.Command {
	var fromCluster bool
	cmd := &cobra.Command{
		Use:   "info VAULT",
		Short: "Show vault configuration and totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			vaultAddr, err := parsePubkeyArg("vault", args[0])
			if err != nil {
				return err
			}
			c, err := a.reader(ctx, fromCluster)
			if err != nil {
				return err
			}
			rec, err := c.GetVaultInfo(ctx, vaultAddr)
			if err != nil {
				return err
			}
			mint, err := c.GetMint(ctx, rec.TokenMint)
			if err != nil {
				return err
			}
			printRecord(cmd.OutOrStdout(), vaultAddr, rec, mint.Decimals)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromCluster, "remote", false, "Read from --rpc-endpoint instead of the local ledger")
	return cmd
}

func printRecord(w io.Writer, addr solana.Pubkey, rec *vault.Record, decimals uint8) {
	fmt.Fprintf(w, "vault:           %s\n", addr)
	fmt.Fprintf(w, "name:            %s\n", rec.Name)
	fmt.Fprintf(w, "authority:       %s\n", rec.Authority)
	fmt.Fprintf(w, "mint:            %s\n", rec.TokenMint)
	fmt.Fprintf(w, "fee collector:   %s\n", rec.FeeCollector)
	fmt.Fprintf(w, "fee:             %d bps\n", rec.FeePercentage)
	fmt.Fprintf(w, "timelock:        %s\n", time.Duration(rec.WithdrawalTimelock)*time.Second)
	fmt.Fprintf(w, "unlocks at:      %s\n", time.Unix(rec.UnlockTime(), 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "withdrawal cap:  %s\n", token.ToUIAmount(rec.WithdrawalLimit, decimals))
	fmt.Fprintf(w, "total deposited: %s\n", token.ToUIAmount(rec.TotalDeposited, decimals))
}

func newAuditCmd(a *app) *cobra.Command {
	var fromCluster, withJournal bool
	cmd := &cobra.Command{
		Use:   "audit VAULT",
		Short: "Check that custody holds exactly the recorded total",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			vaultAddr, err := parsePubkeyArg("vault", args[0])
			if err != nil {
				return err
			}
			c, err := a.reader(ctx, fromCluster)
			if err != nil {
				return err
			}
			report, err := c.Audit(ctx, vaultAddr)
			if err != nil && !errors.Is(err, vault.ErrInvariantViolation) {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "custody:         %s\n", report.Custody)
			fmt.Fprintf(out, "total deposited: %d\n", report.TotalDeposited)
			fmt.Fprintf(out, "custody balance: %d\n", report.CustodyBalance)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "balanced")

			if !withJournal {
				return nil
			}
			return a.verifyJournal(cmd, c, vaultAddr)
		},
	}
	cmd.Flags().BoolVar(&fromCluster, "remote", false, "Read from --rpc-endpoint instead of the local ledger")
	cmd.Flags().BoolVar(&withJournal, "journal", false, "Also replay the event journal against the vault record")
	return cmd
}

func (a *app) verifyJournal(cmd *cobra.Command, c *client.Client, vaultAddr solana.Pubkey) error {
	ctx := cmd.Context()
	rec, err := c.GetVaultInfo(ctx, vaultAddr)
	if err != nil {
		return err
	}
	journal, err := a.journal(ctx)
	if err != nil {
		return err
	}
	report, err := verification.NewVerifier(journal).VerifyVault(ctx, vaultAddr.String(), rec)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "journal events:  %d\n", report.Events)
	fmt.Fprintf(out, "replayed total:  %d\n", report.ReplayedTotal)
	for _, p := range report.Problems {
		fmt.Fprintf(out, "problem: %s\n", p)
	}
	for _, d := range report.Divergent {
		for _, f := range d.Divergences {
			fmt.Fprintf(out, "divergence: seq %d %s %s: expected %v, journal has %v\n", d.Seq, d.Kind, f.Field, f.Expected, f.Actual)
		}
	}
	if !report.Match() {
		return fmt.Errorf("journal of %s does not replay onto the vault record", vaultAddr)
	}
	fmt.Fprintln(out, "journal consistent")
	return nil
}
