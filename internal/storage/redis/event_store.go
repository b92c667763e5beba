package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/storage"
)

// EventStore implements storage.EventStore on Redis.
//
// Each event is a JSON string under event:<id>. A sorted set per vault, scored
// by commit sequence, and a set per transaction signature index the ids.
// InsertBulk watches every event key so a concurrent insert of the same id
// turns into ErrDuplicateKey on retry.
type EventStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// NewEventStore creates an event store under the default key prefix.
func NewEventStore(client redis.UniversalClient) *EventStore {
	return &EventStore{client: client, prefix: defaultPrefix, maxRetries: defaultMaxRetries}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

func (s *EventStore) eventKey(id string) string {
	return s.prefix + "event:" + id
}

func (s *EventStore) vaultKey(vault string) string {
	return s.prefix + "events:vault:" + vault
}

func (s *EventStore) signatureKey(sig string) string {
	return s.prefix + "events:sig:" + sig
}

// InsertBulk adds events in one MULTI/EXEC. Fails the entire batch on any duplicate event_id.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	keys := make([]string, len(events))
	values := make([][]byte, len(events))
	seen := make(map[string]struct{}, len(events))
	for i, e := range events {
		if e == nil || e.EventID == "" || e.Vault == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[e.EventID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}

		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.EventID, err)
		}
		keys[i] = s.eventKey(e.EventID)
		values[i] = raw
	}

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("redis exists: %w", err)
		}
		if n > 0 {
			return storage.ErrDuplicateKey
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, e := range events {
				pipe.Set(ctx, keys[i], values[i], 0)
				pipe.ZAdd(ctx, s.vaultKey(e.Vault), redis.Z{Score: float64(e.Seq), Member: e.EventID})
				pipe.SAdd(ctx, s.signatureKey(e.TxSignature), e.EventID)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt+1)):
		}
	}
	return ErrTooManyConflicts
}

// GetByVault retrieves all events for a vault, ordered by (seq, event_index) ASC.
func (s *EventStore) GetByVault(ctx context.Context, vault string) ([]*domain.Event, error) {
	ids, err := s.client.ZRange(ctx, s.vaultKey(vault), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return s.load(ctx, ids)
}

// GetBySignature retrieves the events of one transaction, ordered by event_index ASC.
func (s *EventStore) GetBySignature(ctx context.Context, txSignature string) ([]*domain.Event, error) {
	ids, err := s.client.SMembers(ctx, s.signatureKey(txSignature)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	return s.load(ctx, ids)
}

// GetByTimeRange retrieves events for a vault within [start, end] (inclusive, Unix seconds).
func (s *EventStore) GetByTimeRange(ctx context.Context, vault string, start, end int64) ([]*domain.Event, error) {
	all, err := s.GetByVault(ctx, vault)
	if err != nil {
		return nil, err
	}
	var out []*domain.Event
	for _, e := range all {
		if e.Timestamp >= start && e.Timestamp <= end {
			out = append(out, e)
		}
	}
	return out, nil
}

// load fetches ids and sorts them into journal order.
func (s *EventStore) load(ctx context.Context, ids []string) ([]*domain.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.eventKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	events := make([]*domain.Event, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("event %s: indexed but missing", ids[i])
		}
		var e domain.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", ids[i], err)
		}
		events = append(events, &e)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Seq != events[j].Seq {
			return events[i].Seq < events[j].Seq
		}
		return events[i].EventIndex < events[j].EventIndex
	})
	return events, nil
}
