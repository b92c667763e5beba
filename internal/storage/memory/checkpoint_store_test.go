package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Alibek10599/token-vault/internal/storage"
)

func TestCheckpointStore(t *testing.T) {
	store := NewCheckpointStore()
	ctx := context.Background()

	_, err := store.GetCheckpoint(ctx, "v1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := store.SetCheckpoint(ctx, &storage.Checkpoint{Vault: "v1", Slot: 10, TotalDeposited: 100}); err != nil {
		t.Fatalf("SetCheckpoint failed: %v", err)
	}
	if err := store.SetCheckpoint(ctx, &storage.Checkpoint{Vault: "v1", Slot: 12, TotalDeposited: 150}); err != nil {
		t.Fatalf("SetCheckpoint failed: %v", err)
	}

	cp, err := store.GetCheckpoint(ctx, "v1")
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if cp.Slot != 12 || cp.TotalDeposited != 150 {
		t.Errorf("Expected latest checkpoint, got %+v", cp)
	}

	if err := store.SetCheckpoint(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
