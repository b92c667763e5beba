package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Alibek10599/token-vault/internal/client"
	"github.com/Alibek10599/token-vault/internal/reporting"
	chstore "github.com/Alibek10599/token-vault/internal/storage/clickhouse"
	"github.com/Alibek10599/token-vault/internal/verification"
)

func newReportCmd(a *app) *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "report VAULT",
		Short: "Write a Markdown statement and CSV exports for VAULT",
		Long: "Write STATEMENT.md and events.csv for VAULT to --output-dir. When\n" +
			"--clickhouse-dsn is set, daily_flows.csv is written as well.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			audit, err := c.Audit(ctx, vaultAddr)
			if err != nil && audit == nil {
				return err
			}
			events, err := c.Events(ctx, vaultAddr)
			if err != nil && !errors.Is(err, client.ErrNoJournal) {
				return err
			}

			stmt := &reporting.Statement{
				GeneratedAt: time.Now(),
				Vault:       vaultAddr,
				Record:      rec,
				Decimals:    mint.Decimals,
				Custody:     audit.Custody,
				Balance:     audit.CustodyBalance,
				Events:      events,
			}
			if len(events) > 0 {
				stmt.Replay = verification.Replay(events, rec)
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			files := map[string]string{
				"STATEMENT.md": reporting.RenderMarkdown(stmt),
				"events.csv":   reporting.RenderEventsCSV(events),
			}
			if a.cfg.ClickhouseDSN != "" {
				conn, err := a.clickhouse(ctx)
				if err != nil {
					return err
				}
				flows, err := chstore.NewEventStore(conn).DailyFlows(ctx, vaultAddr.String())
				if err != nil {
					return err
				}
				files["daily_flows.csv"] = reporting.RenderFlowsCSV(flows)
			}

			for name, content := range files {
				path := filepath.Join(outputDir, name)
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				a.logger.Info("report written", zap.String("path", path))
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "output", "Directory for report files")
	return cmd
}
