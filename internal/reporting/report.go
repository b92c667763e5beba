// Package reporting renders vault statements as Markdown and journal data as CSV.
package reporting

import (
	"time"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/vault"
	"github.com/Alibek10599/token-vault/internal/verification"
)

// Statement is a point-in-time report on one vault.
type Statement struct {
	GeneratedAt time.Time
	Vault       solana.Pubkey
	Record      *vault.Record
	Decimals    uint8 // mint decimals, used to render token amounts

	// Custody is the custody account and Balance its token balance.
	Custody solana.Pubkey
	Balance uint64

	// Events are the journaled events in commit order. May be empty.
	Events []*domain.Event

	// Replay is the journal verification result, nil when not run.
	Replay *verification.Report
}

// Balanced reports whether custody holds exactly the recorded total.
func (s *Statement) Balanced() bool {
	return s.Balance == s.Record.TotalDeposited
}

// Totals sums journaled flows.
type Totals struct {
	Deposits    uint64
	Withdrawals uint64
	Fees        uint64
	Deposited   int // deposit count
	Withdrawn   int // withdrawal count
}

// Totals sums the statement's journaled events.
func (s *Statement) Totals() Totals {
	var t Totals
	for _, ev := range s.Events {
		switch ev.Kind {
		case domain.EventDeposit:
			t.Deposits += ev.Amount
			t.Deposited++
		case domain.EventWithdraw:
			t.Withdrawals += ev.Amount
			t.Fees += ev.Fee
			t.Withdrawn++
		}
	}
	return t
}
