package reporting

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/solana"
	chstore "github.com/Alibek10599/token-vault/internal/storage/clickhouse"
	"github.com/Alibek10599/token-vault/internal/vault"
	"github.com/Alibek10599/token-vault/internal/verification"
)

func testStatement() *Statement {
	rec := &vault.Record{
		Authority:          solana.Pubkey{1},
		TokenMint:          solana.Pubkey{2},
		FeeCollector:       solana.Pubkey{1},
		FeePercentage:      100,
		WithdrawalTimelock: 86400,
		WithdrawalLimit:    1_000_000_000,
		TotalDeposited:     500_000_000,
		Name:               "treasury",
		CreationTime:       1_700_000_000,
	}
	events := []*domain.Event{
		{EventID: "i", Seq: 1, Kind: domain.EventInitialize, Vault: "v1", Timestamp: 1_700_000_000},
		{EventID: "d", Seq: 2, Kind: domain.EventDeposit, Vault: "v1", Amount: 1_000_000_000, TotalDeposited: 1_000_000_000, Timestamp: 1_700_000_100},
		{EventID: "w", Seq: 3, Kind: domain.EventWithdraw, Vault: "v1", Amount: 500_000_000, Fee: 5_000_000, Net: 495_000_000, TotalDeposited: 500_000_000, Timestamp: 1_700_090_000},
	}
	return &Statement{
		GeneratedAt: time.Unix(1_700_100_000, 0),
		Vault:       solana.Pubkey{9},
		Record:      rec,
		Decimals:    9,
		Custody:     solana.Pubkey{8},
		Balance:     500_000_000,
		Events:      events,
		Replay:      verification.Replay(events, rec),
	}
}

func TestStatement_Totals(t *testing.T) {
	totals := testStatement().Totals()

	assert.Equal(t, Totals{Deposits: 1_000_000_000, Withdrawals: 500_000_000, Fees: 5_000_000, Deposited: 1, Withdrawn: 1}, totals)
}

func TestRenderMarkdown(t *testing.T) {
	s := testStatement()
	md := RenderMarkdown(s)

	assert.True(t, strings.HasPrefix(md, "# Vault Statement: treasury\n"))
	assert.Contains(t, md, "| Fee | 100 bps |")
	assert.Contains(t, md, "| Total Deposited | 0.5 |")
	assert.Contains(t, md, "**Balanced.**")
	assert.Contains(t, md, "| Fees | - | 0.005 |")
	assert.Contains(t, md, "All 3 events replay onto the vault record.")

	s.Balance = 1
	s.Events = nil
	s.Replay = nil
	md = RenderMarkdown(s)
	assert.Contains(t, md, "**MISMATCH.**")
	assert.Contains(t, md, "No journaled events.")
	assert.NotContains(t, md, "Replay Verification")
}

func TestRenderMarkdown_Divergent(t *testing.T) {
	s := testStatement()
	s.Events[2].Fee = 1
	s.Replay = verification.Replay(s.Events, s.Record)

	md := RenderMarkdown(s)
	assert.Contains(t, md, "seq 3 withdraw: Fee expected 5000000, journal has 1")
}

func TestRenderEventsCSV(t *testing.T) {
	csv := RenderEventsCSV(testStatement().Events)
	lines := strings.Split(strings.TrimSpace(csv), "\n")

	assert.Len(t, lines, 4)
	assert.Equal(t, "seq,event_index,timestamp,kind,vault,actor,amount,fee,net,total_deposited,tx_signature,event_id", lines[0])
	assert.Equal(t, "3,0,1700090000,withdraw,v1,,500000000,5000000,495000000,500000000,,w", lines[3])
}

func TestRenderFlowsCSV(t *testing.T) {
	csv := RenderFlowsCSV([]*chstore.DailyFlow{{Day: 1_699_920_000, Deposits: 10, Withdrawals: 4, Fees: 1, EventCount: 3}})

	assert.Equal(t, "day,deposits,withdrawals,fees,event_count\n1699920000,10,4,1,3\n", csv)
}
