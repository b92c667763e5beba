package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/Alibek10599/token-vault/internal/token"
)

// RenderMarkdown renders the statement as Markdown.
func RenderMarkdown(s *Statement) string {
	var sb strings.Builder
	amount := func(v uint64) string { return token.ToUIAmount(v, s.Decimals).String() }
	r := s.Record

	// Header
	sb.WriteString(fmt.Sprintf("# Vault Statement: %s\n\n", r.Name))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", s.GeneratedAt.UTC().Format(time.RFC3339)))

	// Configuration
	sb.WriteString("## Configuration\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Vault | `%s` |\n", s.Vault))
	sb.WriteString(fmt.Sprintf("| Authority | `%s` |\n", r.Authority))
	sb.WriteString(fmt.Sprintf("| Mint | `%s` |\n", r.TokenMint))
	sb.WriteString(fmt.Sprintf("| Fee Collector | `%s` |\n", r.FeeCollector))
	sb.WriteString(fmt.Sprintf("| Fee | %d bps |\n", r.FeePercentage))
	sb.WriteString(fmt.Sprintf("| Withdrawal Limit | %s |\n", amount(r.WithdrawalLimit)))
	sb.WriteString(fmt.Sprintf("| Created | %s |\n", time.Unix(r.CreationTime, 0).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Unlocks | %s |\n", time.Unix(r.UnlockTime(), 0).UTC().Format(time.RFC3339)))
	sb.WriteString("\n")

	// Custody
	sb.WriteString("## Custody\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Custody Account | `%s` |\n", s.Custody))
	sb.WriteString(fmt.Sprintf("| Total Deposited | %s |\n", amount(r.TotalDeposited)))
	sb.WriteString(fmt.Sprintf("| Custody Balance | %s |\n", amount(s.Balance)))
	sb.WriteString("\n")
	if s.Balanced() {
		sb.WriteString("**Balanced.** Custody holds exactly the recorded total.\n\n")
	} else {
		sb.WriteString("**MISMATCH.** Custody balance differs from the recorded total.\n\n")
	}

	// Journal
	sb.WriteString("## Journal\n\n")
	if len(s.Events) == 0 {
		sb.WriteString("No journaled events.\n\n")
	} else {
		t := s.Totals()
		sb.WriteString("| Flow | Count | Amount |\n")
		sb.WriteString("|------|-------|--------|\n")
		sb.WriteString(fmt.Sprintf("| Deposits | %d | %s |\n", t.Deposited, amount(t.Deposits)))
		sb.WriteString(fmt.Sprintf("| Withdrawals | %d | %s |\n", t.Withdrawn, amount(t.Withdrawals)))
		sb.WriteString(fmt.Sprintf("| Fees | - | %s |\n", amount(t.Fees)))
		sb.WriteString("\n")

		sb.WriteString("| Seq | Time | Kind | Actor | Amount | Fee | Total |\n")
		sb.WriteString("|-----|------|------|-------|--------|-----|-------|\n")
		for _, ev := range s.Events {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | `%s` | %s | %s | %s |\n",
				ev.Seq,
				time.Unix(ev.Timestamp, 0).UTC().Format(time.RFC3339),
				ev.Kind,
				ev.Actor,
				amount(ev.Amount),
				amount(ev.Fee),
				amount(ev.TotalDeposited),
			))
		}
		sb.WriteString("\n")
	}

	// Replay verification
	if s.Replay != nil {
		sb.WriteString("## Replay Verification\n\n")
		if s.Replay.Match() {
			sb.WriteString(fmt.Sprintf("All %d events replay onto the vault record.\n\n", s.Replay.Events))
		} else {
			sb.WriteString(fmt.Sprintf("Replayed total %s, record total %s.\n\n", amount(s.Replay.ReplayedTotal), amount(s.Replay.RecordTotal)))
			for _, p := range s.Replay.Problems {
				sb.WriteString(fmt.Sprintf("- %s\n", p))
			}
			for _, d := range s.Replay.Divergent {
				for _, f := range d.Divergences {
					sb.WriteString(fmt.Sprintf("- seq %d %s: %s expected %v, journal has %v\n", d.Seq, d.Kind, f.Field, f.Expected, f.Actual))
				}
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
