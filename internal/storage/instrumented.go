package storage

import (
	"context"
	"time"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/observability"
)

// InstrumentedEventStore records query latency and errors of an EventStore.
type InstrumentedEventStore struct {
	next     EventStore
	database string
	metrics  *observability.Metrics
}

// Instrument wraps next. database labels the metrics, e.g. "postgres".
func Instrument(next EventStore, database string, metrics *observability.Metrics) *InstrumentedEventStore {
	return &InstrumentedEventStore{next: next, database: database, metrics: metrics}
}

// Compile-time interface check.
var _ EventStore = (*InstrumentedEventStore)(nil)

func (s *InstrumentedEventStore) observe(op string, start time.Time, err error) {
	s.metrics.RecordDBQuery(s.database, op, time.Since(start).Seconds(), err)
}

func (s *InstrumentedEventStore) InsertBulk(ctx context.Context, events []*domain.Event) (err error) {
	defer func(start time.Time) { s.observe("insert_events", start, err) }(time.Now())
	return s.next.InsertBulk(ctx, events)
}

func (s *InstrumentedEventStore) GetByVault(ctx context.Context, vault string) (events []*domain.Event, err error) {
	defer func(start time.Time) { s.observe("events_by_vault", start, err) }(time.Now())
	return s.next.GetByVault(ctx, vault)
}

func (s *InstrumentedEventStore) GetBySignature(ctx context.Context, txSignature string) (events []*domain.Event, err error) {
	defer func(start time.Time) { s.observe("events_by_signature", start, err) }(time.Now())
	return s.next.GetBySignature(ctx, txSignature)
}

func (s *InstrumentedEventStore) GetByTimeRange(ctx context.Context, vault string, start, end int64) (events []*domain.Event, err error) {
	defer func(t time.Time) { s.observe("events_by_time_range", t, err) }(time.Now())
	return s.next.GetByTimeRange(ctx, vault, start, end)
}
