package memory

import (
	"context"
	"sync"

	"github.com/Alibek10599/token-vault/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]storage.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[string]storage.Checkpoint),
	}
}

// GetCheckpoint returns the checkpoint for vault.
func (s *CheckpointStore) GetCheckpoint(_ context.Context, vault string) (*storage.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[vault]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cp, nil
}

// SetCheckpoint saves cp.
func (s *CheckpointStore) SetCheckpoint(_ context.Context, cp *storage.Checkpoint) error {
	if cp == nil || cp.Vault == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[cp.Vault] = *cp
	return nil
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)
