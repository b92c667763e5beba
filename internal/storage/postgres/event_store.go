package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
// Amounts are stored as NUMERIC(20,0) so the full uint64 range fits.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const selectEvents = `
	SELECT event_id, tx_signature, event_index, seq, kind, vault, actor,
	       amount::text, fee::text, net::text, total_deposited::text, timestamp
	FROM vault_events
`

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO vault_events (
			event_id, tx_signature, event_index, seq, kind, vault, actor,
			amount, fee, net, total_deposited, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12)
	`

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		for _, e := range events {
			if e == nil || e.EventID == "" || e.Vault == "" {
				return storage.ErrInvalidInput
			}
			_, err := tx.Exec(ctx, query,
				e.EventID,
				e.TxSignature,
				e.EventIndex,
				int64(e.Seq),
				string(e.Kind),
				e.Vault,
				e.Actor,
				formatUint(e.Amount),
				formatUint(e.Fee),
				formatUint(e.Net),
				formatUint(e.TotalDeposited),
				e.Timestamp,
			)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert event in bulk: %w", err)
			}
		}
		return nil
	})
}

// GetByVault retrieves all events for a vault, ordered by (seq, event_index) ASC.
func (s *EventStore) GetByVault(ctx context.Context, vault string) ([]*domain.Event, error) {
	rows, err := s.pool.Query(ctx, selectEvents+`
		WHERE vault = $1
		ORDER BY seq ASC, event_index ASC
	`, vault)
	if err != nil {
		return nil, fmt.Errorf("get events by vault: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetBySignature retrieves the events of one transaction, ordered by event_index ASC.
func (s *EventStore) GetBySignature(ctx context.Context, txSignature string) ([]*domain.Event, error) {
	rows, err := s.pool.Query(ctx, selectEvents+`
		WHERE tx_signature = $1
		ORDER BY event_index ASC
	`, txSignature)
	if err != nil {
		return nil, fmt.Errorf("get events by signature: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events for a vault within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(ctx context.Context, vault string, start, end int64) ([]*domain.Event, error) {
	rows, err := s.pool.Query(ctx, selectEvents+`
		WHERE vault = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY seq ASC, event_index ASC
	`, vault, start, end)
	if err != nil {
		return nil, fmt.Errorf("get events by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var e domain.Event
		var seq int64
		var kind string
		var amount, fee, net, total string

		err := rows.Scan(
			&e.EventID,
			&e.TxSignature,
			&e.EventIndex,
			&seq,
			&kind,
			&e.Vault,
			&e.Actor,
			&amount,
			&fee,
			&net,
			&total,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Seq = uint64(seq)
		e.Kind = domain.EventKind(kind)
		if err := parseUints(
			[]string{amount, fee, net, total},
			[]*uint64{&e.Amount, &e.Fee, &e.Net, &e.TotalDeposited},
		); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.EventID, err)
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUints(src []string, dst []*uint64) error {
	for i, s := range src {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse amount %q: %w", s, err)
		}
		*dst[i] = v
	}
	return nil
}
