package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Alibek10599/token-vault/internal/storage/migrations"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to PostgreSQL and ClickHouse",
		Long: "Apply embedded migrations to every configured database: PostgreSQL when\n" +
			"--postgres-dsn is set and ClickHouse when --clickhouse-dsn is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.PostgresDSN == "" && a.cfg.ClickhouseDSN == "" {
				return fmt.Errorf("nothing to migrate: set --postgres-dsn or --clickhouse-dsn")
			}

			if a.cfg.PostgresDSN != "" {
				pool, err := a.postgres(ctx)
				if err != nil {
					return err
				}
				if err := migrations.RunPostgresMigrations(ctx, pool, a.logger); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "postgres: up to date")
			}

			if a.cfg.ClickhouseDSN != "" {
				conn, err := migrations.RunClickhouseMigrations(ctx, a.cfg.ClickhouseDSN, a.logger)
				if err != nil {
					return err
				}
				a.closers = append(a.closers, func() { _ = conn.Close() })
				fmt.Fprintln(cmd.OutOrStdout(), "clickhouse: up to date")
			}
			return nil
		},
	}
}
