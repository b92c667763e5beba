package clickhouse

import (
	"context"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// It mirrors the journal for analytics; see DailyFlows.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const selectEvents = `
	SELECT event_id, tx_signature, event_index, seq, kind, vault, actor,
	       amount, fee, net, total_deposited, timestamp
	FROM vault_events FINAL
`

// InsertBulk adds multiple events. Fails entire batch on duplicate event_id.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || e.Vault == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	// MergeTree does not enforce uniqueness; check existing rows explicitly.
	for _, e := range events {
		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO vault_events (
			event_id, tx_signature, event_index, seq, kind, vault, actor,
			amount, fee, net, total_deposited, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID, e.TxSignature, uint32(e.EventIndex), e.Seq, string(e.Kind), e.Vault, e.Actor,
			e.Amount, e.Fee, e.Net, e.TotalDeposited, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByVault retrieves all events for a vault, ordered by (seq, event_index) ASC.
func (s *EventStore) GetByVault(ctx context.Context, vault string) ([]*domain.Event, error) {
	rows, err := s.conn.Query(ctx, selectEvents+`
		WHERE vault = ?
		ORDER BY seq ASC, event_index ASC
	`, vault)
	if err != nil {
		return nil, fmt.Errorf("query by vault: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetBySignature retrieves the events of one transaction, ordered by event_index ASC.
func (s *EventStore) GetBySignature(ctx context.Context, txSignature string) ([]*domain.Event, error) {
	rows, err := s.conn.Query(ctx, selectEvents+`
		WHERE tx_signature = ?
		ORDER BY event_index ASC
	`, txSignature)
	if err != nil {
		return nil, fmt.Errorf("query by signature: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events for a vault within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, vault string, start, end int64) ([]*domain.Event, error) {
	rows, err := s.conn.Query(ctx, selectEvents+`
		WHERE vault = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY seq ASC, event_index ASC
	`, vault, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DailyFlow aggregates one UTC day of vault activity.
type DailyFlow struct {
	Day         int64  // Unix seconds at 00:00 UTC
	Deposits    uint64 // sum of deposit amounts
	Withdrawals uint64 // sum of withdrawal amounts
	Fees        uint64 // sum of withdrawal fees
	EventCount  uint64
}

// DailyFlows returns per-day deposit, withdrawal and fee totals for vault, oldest first.
func (s *EventStore) DailyFlows(ctx context.Context, vault string) ([]*DailyFlow, error) {
	query := `
		SELECT
			toInt64(toUnixTimestamp(toStartOfDay(toDateTime(timestamp, 'UTC')))) AS day,
			sumIf(amount, kind = 'deposit') AS deposits,
			sumIf(amount, kind = 'withdraw') AS withdrawals,
			sum(fee) AS fees,
			count() AS events
		FROM vault_events FINAL
		WHERE vault = ?
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, vault)
	if err != nil {
		return nil, fmt.Errorf("query daily flows: %w", err)
	}
	defer rows.Close()

	var flows []*DailyFlow
	for rows.Next() {
		var f DailyFlow
		if err := rows.Scan(&f.Day, &f.Deposits, &f.Withdrawals, &f.Fees, &f.EventCount); err != nil {
			return nil, fmt.Errorf("scan daily flow row: %w", err)
		}
		flows = append(flows, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily flow rows: %w", err)
	}

	return flows, nil
}

// exists checks if an event with the given id exists.
func (s *EventStore) exists(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT count(*) FROM vault_events WHERE event_id = ?`

	var count uint64
	err := s.conn.QueryRow(ctx, query, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var e domain.Event
		var eventIndex uint32
		var kind string

		err := rows.Scan(
			&e.EventID, &e.TxSignature, &eventIndex, &e.Seq, &kind, &e.Vault, &e.Actor,
			&e.Amount, &e.Fee, &e.Net, &e.TotalDeposited, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.EventIndex = int(eventIndex)
		e.Kind = domain.EventKind(kind)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}
