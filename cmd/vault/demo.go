package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/token"
	"github.com/Alibek10599/token-vault/internal/vault"
	"github.com/Alibek10599/token-vault/internal/verification"
)

const (
	demoDecimals = 9
	demoFeeBps   = 100
	demoTimelock = 24 * time.Hour
	demoLimit    = 1_000_000_000
	demoMinted   = 10_000_000_000
	demoDeposit  = 1_000_000_000
	demoWithdraw = 500_000_000
)

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a full vault lifecycle with throwaway keys",
		Long: "Create a mint and a vault with fresh keys, deposit, attempt an early\n" +
			"withdrawal, move the ledger clock past the timelock, withdraw and audit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			clock := &shiftableClock{}
			c, err := a.client(ctx, ledger.WithClock(clock.now))
			if err != nil {
				return err
			}

			authority, err := identity.Generate()
			if err != nil {
				return err
			}
			mintKey, err := identity.Generate()
			if err != nil {
				return err
			}
			mint := mintKey.PublicKey()
			ui := func(v uint64) string { return token.ToUIAmount(v, demoDecimals).String() }

			if _, err := c.CreateMint(ctx, mintKey, authority.PublicKey(), demoDecimals); err != nil {
				return fmt.Errorf("create mint: %w", err)
			}
			ata, _, err := c.CreateTokenAccount(ctx, authority, authority.PublicKey(), mint)
			if err != nil {
				return fmt.Errorf("create token account: %w", err)
			}
			if _, err := c.MintTo(ctx, authority, mint, ata, demoMinted); err != nil {
				return fmt.Errorf("mint: %w", err)
			}
			fmt.Fprintf(out, "authority %s holds %s of mint %s\n", authority.PublicKey(), ui(demoMinted), mint)

			res, err := c.InitializeVault(ctx, authority, mint, "demo", demoFeeBps, int64(demoTimelock/time.Second), demoLimit)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			vaultAddr := res.Vault
			fmt.Fprintf(out, "vault %s: fee %d bps, timelock %s, limit %s\n", vaultAddr, demoFeeBps, demoTimelock, ui(demoLimit))

			dep, err := c.Deposit(ctx, authority, vaultAddr, demoDeposit)
			if err != nil {
				return fmt.Errorf("deposit: %w", err)
			}
			fmt.Fprintf(out, "deposited %s, total %s\n", ui(demoDeposit), ui(dep.VaultEvents[0].TotalDeposited))

			_, err = c.Withdraw(ctx, authority, vaultAddr, demoWithdraw)
			if !errors.Is(err, vault.ErrTimelockNotElapsed) {
				return fmt.Errorf("early withdrawal: expected timelock rejection, got %v", err)
			}
			fmt.Fprintln(out, "early withdrawal rejected: timelock has not elapsed")

			clock.advance(demoTimelock + time.Second)

			wd, err := c.Withdraw(ctx, authority, vaultAddr, demoWithdraw)
			if err != nil {
				return fmt.Errorf("withdraw: %w", err)
			}
			ev := wd.VaultEvents[0]
			fmt.Fprintf(out, "withdrew %s: fee %s, net %s, total %s\n", ui(ev.Amount), ui(ev.Fee), ui(ev.Net), ui(ev.TotalDeposited))

			report, err := c.Audit(ctx, vaultAddr)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "audit: custody %s holds %s, balanced\n", report.Custody, ui(report.CustodyBalance))

			events, err := c.Events(ctx, vaultAddr)
			if err != nil {
				return err
			}
			rec, err := c.GetVaultInfo(ctx, vaultAddr)
			if err != nil {
				return err
			}
			if replay := verification.Replay(events, rec); !replay.Match() {
				return fmt.Errorf("journal replay diverges: %+v", replay)
			}
			fmt.Fprintf(out, "journal: %d events, replay consistent\n", len(events))
			return nil
		},
	}
}
