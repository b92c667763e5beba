// Command vault operates custodial token vaults: it creates mints and vaults,
// moves tokens in and out of custody, audits custody balances and follows
// vault state on a live cluster.
//
// Settings come from flags, VAULT_* environment variables or --config.
// With the default memory backend every invocation starts from an empty
// ledger; use --backend postgres or --backend redis for persistent state.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Alibek10599/token-vault/internal/config"
	"github.com/Alibek10599/token-vault/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "vault",
		Short:         "Custodial token vault operator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			a.metrics = observability.DefaultMetrics
			return nil
		},
	}
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newKeygenCmd(a),
		newMintCmd(a),
		newAccountCmd(a),
		newInitCmd(a),
		newDepositCmd(a),
		newWithdrawCmd(a),
		newInfoCmd(a),
		newAuditCmd(a),
		newEventsCmd(a),
		newStatsCmd(a),
		newReportCmd(a),
		newWatchCmd(a),
		newMigrateCmd(a),
		newDemoCmd(a),
	)
	return root
}

