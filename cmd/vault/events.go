package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alibek10599/token-vault/internal/domain"
	chstore "github.com/Alibek10599/token-vault/internal/storage/clickhouse"
)

func newEventsCmd(a *app) *cobra.Command {
	var (
		signature string
		since     string
		until     string
	)
	cmd := &cobra.Command{
		Use:   "events [VAULT]",
		Short: "List journaled vault events",
		Long: "List journaled vault events of VAULT in commit order, optionally bounded by --since/--until.\n" +
			"With --signature, list the events of one transaction instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			journal, err := a.journal(ctx)
			if err != nil {
				return err
			}

			var events []*domain.Event
			switch {
			case signature != "":
				events, err = journal.GetBySignature(ctx, signature)
			case len(args) == 0:
				return fmt.Errorf("VAULT or --signature is required")
			case since != "" || until != "":
				vaultAddr, perr := parsePubkeyArg("vault", args[0])
				if perr != nil {
					return perr
				}
				start, end, perr := timeRange(since, until)
				if perr != nil {
					return perr
				}
				events, err = journal.GetByTimeRange(ctx, vaultAddr.String(), start, end)
			default:
				vaultAddr, perr := parsePubkeyArg("vault", args[0])
				if perr != nil {
					return perr
				}
				events, err = journal.GetByVault(ctx, vaultAddr.String())
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tTIME\tKIND\tACTOR\tAMOUNT\tFEE\tNET\tTOTAL\tSIGNATURE")
			for _, ev := range events {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					ev.Seq,
					time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339),
					ev.Kind, ev.Actor, ev.Amount, ev.Fee, ev.Net, ev.TotalDeposited, ev.TxSignature,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "Transaction signature")
	cmd.Flags().StringVar(&since, "since", "", "RFC 3339 lower bound (inclusive)")
	cmd.Flags().StringVar(&until, "until", "", "RFC 3339 upper bound (inclusive)")
	return cmd
}

func timeRange(since, until string) (int64, int64, error) {
	start, end := int64(0), time.Now().Unix()
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return 0, 0, fmt.Errorf("--since: %w", err)
		}
		start = t.Unix()
	}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return 0, 0, fmt.Errorf("--until: %w", err)
		}
		end = t.Unix()
	}
	if end < start {
		return 0, 0, fmt.Errorf("--until is before --since")
	}
	return start, end, nil
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats VAULT",
		Short: "Show daily deposit, withdrawal and fee totals from the ClickHouse journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			vaultAddr, err := parsePubkeyArg("vault", args[0])
			if err != nil {
				return err
			}
			conn, err := a.clickhouse(ctx)
			if err != nil {
				return err
			}
			flows, err := chstore.NewEventStore(conn).DailyFlows(ctx, vaultAddr.String())
			if err != nil {
				return err
			}
			if len(flows) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no events journaled for", vaultAddr)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tDEPOSITS\tWITHDRAWALS\tFEES\tEVENTS")
			for _, f := range flows {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
					time.Unix(f.Day, 0).UTC().Format(time.DateOnly),
					f.Deposits, f.Withdrawals, f.Fees, f.EventCount,
				)
			}
			return w.Flush()
		},
	}
}
