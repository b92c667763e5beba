package storage_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/observability"
	"github.com/Alibek10599/token-vault/internal/storage"
	"github.com/Alibek10599/token-vault/internal/storage/memory"
)

func TestInstrumentedEventStore(t *testing.T) {
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	store := storage.Instrument(memory.NewEventStore(), "memory", metrics)
	ctx := context.Background()

	ev := &domain.Event{EventID: "e1", TxSignature: "s1", Seq: 1, Kind: domain.EventDeposit, Vault: "v1", Amount: 10, Timestamp: 100}
	require.NoError(t, store.InsertBulk(ctx, []*domain.Event{ev}))
	assert.ErrorIs(t, store.InsertBulk(ctx, []*domain.Event{ev}), storage.ErrDuplicateKey)

	events, err := store.GetByVault(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = store.GetBySignature(ctx, "s1")
	require.NoError(t, err)
	_, err = store.GetByTimeRange(ctx, "v1", 0, 200)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DBQueryErrors.WithLabelValues("memory", "insert_events")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.DBQueryErrors.WithLabelValues("memory", "events_by_vault")))
	assert.Equal(t, 4, testutil.CollectAndCount(metrics.DBQueryDuration))
}
