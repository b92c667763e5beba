package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Event // keyed by event_id
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[string]*domain.Event),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(events))

	// First pass: check for duplicates (existing + intra-batch)
	for _, e := range events {
		if e == nil || e.EventID == "" || e.Vault == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.EventID] = struct{}{}
	}

	// Second pass: insert all
	for _, e := range events {
		copy := *e
		s.data[e.EventID] = &copy
	}

	return nil
}

// GetByVault retrieves all events for a vault, ordered by (seq, event_index) ASC.
func (s *EventStore) GetByVault(_ context.Context, vault string) ([]*domain.Event, error) {
	return s.filter(func(e *domain.Event) bool {
		return e.Vault == vault
	}), nil
}

// GetBySignature retrieves the events of one transaction, ordered by event_index ASC.
func (s *EventStore) GetBySignature(_ context.Context, txSignature string) ([]*domain.Event, error) {
	return s.filter(func(e *domain.Event) bool {
		return e.TxSignature == txSignature
	}), nil
}

// GetByTimeRange retrieves events for a vault within [start, end] (inclusive).
func (s *EventStore) GetByTimeRange(_ context.Context, vault string, start, end int64) ([]*domain.Event, error) {
	return s.filter(func(e *domain.Event) bool {
		return e.Vault == vault && e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

func (s *EventStore) filter(match func(*domain.Event) bool) []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if match(e) {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Seq != result[j].Seq {
			return result[i].Seq < result[j].Seq
		}
		return result[i].EventIndex < result[j].EventIndex
	})

	return result
}

var _ storage.EventStore = (*EventStore)(nil)
