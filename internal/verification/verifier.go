// Package verification replays a vault's journaled events and checks them
// against each other and against the vault's current on-ledger record.
package verification

import (
	"context"
	"fmt"
	"sort"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/policy"
	"github.com/Alibek10599/token-vault/internal/storage"
	"github.com/Alibek10599/token-vault/internal/vault"
)

// FieldDivergence represents a mismatch between a journaled and a replayed value.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // replayed value
	Actual   interface{} // journaled value
}

// EventDivergence lists the divergent fields of one journaled event.
type EventDivergence struct {
	EventID     string
	Seq         uint64
	Kind        domain.EventKind
	Divergences []FieldDivergence
}

// Report is the outcome of verifying one vault.
type Report struct {
	Vault         string
	Events        int               // events replayed
	ReplayedTotal uint64            // total after replaying every event
	RecordTotal   uint64            // total_deposited of the vault record
	Divergent     []EventDivergence // events whose journaled values disagree with the replay
	Problems      []string          // stream-level problems, e.g. missing initialize
}

// Match reports whether the journal replays cleanly onto the record.
func (r *Report) Match() bool {
	return len(r.Divergent) == 0 && len(r.Problems) == 0 && r.ReplayedTotal == r.RecordTotal
}

// SortEvents orders events by (seq ASC, event_index ASC), the commit order.
func SortEvents(events []*domain.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Seq != events[j].Seq {
			return events[i].Seq < events[j].Seq
		}
		return events[i].EventIndex < events[j].EventIndex
	})
}

// Replay checks events of one vault against rec. events are sorted in place.
//
// Per event it recomputes the running total and, for withdrawals, the fee
// split at rec's fee rate and the per-withdrawal limit.
func Replay(events []*domain.Event, rec *vault.Record) *Report {
	SortEvents(events)

	report := &Report{Events: len(events), RecordTotal: rec.TotalDeposited}
	if len(events) > 0 {
		report.Vault = events[0].Vault
	}

	var total uint64
	initialized := false
	for i, ev := range events {
		var divs []FieldDivergence
		add := func(field string, expected, actual interface{}) {
			divs = append(divs, FieldDivergence{Field: field, Expected: expected, Actual: actual})
		}

		if ev.Vault != report.Vault {
			add("Vault", report.Vault, ev.Vault)
		}

		switch ev.Kind {
		case domain.EventInitialize:
			if initialized {
				report.Problems = append(report.Problems, fmt.Sprintf("event %s: vault initialized twice", ev.EventID))
			}
			if i != 0 {
				report.Problems = append(report.Problems, fmt.Sprintf("event %s: initialize is not the first event", ev.EventID))
			}
			initialized = true
			total = 0

		case domain.EventDeposit:
			next := total + ev.Amount
			if next < total {
				report.Problems = append(report.Problems, fmt.Sprintf("event %s: total overflows", ev.EventID))
			}
			total = next
			if ev.Fee != 0 {
				add("Fee", uint64(0), ev.Fee)
			}

		case domain.EventWithdraw:
			fee, net := policy.ComputeFee(ev.Amount, rec.FeePercentage)
			if ev.Fee != fee {
				add("Fee", fee, ev.Fee)
			}
			if ev.Net != net {
				add("Net", net, ev.Net)
			}
			if !policy.CheckLimit(ev.Amount, rec.WithdrawalLimit) {
				add("Amount", fmt.Sprintf("<= %d", rec.WithdrawalLimit), ev.Amount)
			}
			if ev.Amount > total {
				report.Problems = append(report.Problems, fmt.Sprintf("event %s: withdraws %d from total %d", ev.EventID, ev.Amount, total))
				total = 0
			} else {
				total -= ev.Amount
			}

		default:
			report.Problems = append(report.Problems, fmt.Sprintf("event %s: unknown kind %q", ev.EventID, ev.Kind))
			continue
		}

		if ev.TotalDeposited != total {
			add("TotalDeposited", total, ev.TotalDeposited)
		}
		if len(divs) > 0 {
			report.Divergent = append(report.Divergent, EventDivergence{
				EventID:     ev.EventID,
				Seq:         ev.Seq,
				Kind:        ev.Kind,
				Divergences: divs,
			})
		}
	}

	if len(events) > 0 && !initialized {
		report.Problems = append(report.Problems, "journal has no initialize event")
	}
	report.ReplayedTotal = total
	return report
}

// Verifier verifies vaults against a journal.
type Verifier struct {
	journal storage.EventStore
}

// NewVerifier creates a verifier reading from journal.
func NewVerifier(journal storage.EventStore) *Verifier {
	return &Verifier{journal: journal}
}

// VerifyVault replays the journaled events of vaultAddr against rec.
func (v *Verifier) VerifyVault(ctx context.Context, vaultAddr string, rec *vault.Record) (*Report, error) {
	events, err := v.journal.GetByVault(ctx, vaultAddr)
	if err != nil {
		return nil, fmt.Errorf("load journal of %s: %w", vaultAddr, err)
	}
	report := Replay(events, rec)
	report.Vault = vaultAddr
	return report, nil
}
