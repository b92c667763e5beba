package reporting

import (
	"fmt"
	"strings"

	"github.com/Alibek10599/token-vault/internal/domain"
	chstore "github.com/Alibek10599/token-vault/internal/storage/clickhouse"
)

// RenderEventsCSV renders journaled events as CSV with amounts in base units.
func RenderEventsCSV(events []*domain.Event) string {
	var sb strings.Builder

	// Header
	sb.WriteString("seq,event_index,timestamp,kind,vault,actor,amount,fee,net,total_deposited,tx_signature,event_id\n")

	// Rows
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%s,%s,%s,%d,%d,%d,%d,%s,%s\n",
			e.Seq,
			e.EventIndex,
			e.Timestamp,
			e.Kind,
			e.Vault,
			e.Actor,
			e.Amount,
			e.Fee,
			e.Net,
			e.TotalDeposited,
			e.TxSignature,
			e.EventID,
		))
	}

	return sb.String()
}

// RenderFlowsCSV renders daily flows as CSV with amounts in base units.
func RenderFlowsCSV(flows []*chstore.DailyFlow) string {
	var sb strings.Builder

	sb.WriteString("day,deposits,withdrawals,fees,event_count\n")
	for _, f := range flows {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%d,%d\n", f.Day, f.Deposits, f.Withdrawals, f.Fees, f.EventCount))
	}

	return sb.String()
}
