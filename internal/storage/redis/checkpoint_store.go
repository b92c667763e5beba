package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Alibek10599/token-vault/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore with one hash per vault.
type CheckpointStore struct {
	client redis.UniversalClient
	prefix string
}

// NewCheckpointStore creates a checkpoint store under the default key prefix.
func NewCheckpointStore(client redis.UniversalClient) *CheckpointStore {
	return &CheckpointStore{client: client, prefix: defaultPrefix}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

func (s *CheckpointStore) key(vault string) string {
	return s.prefix + "checkpoint:" + vault
}

// GetCheckpoint returns the checkpoint for vault.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, vault string) (*storage.Checkpoint, error) {
	fields, err := s.client.HGetAll(ctx, s.key(vault)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}

	slot, err := strconv.ParseInt(fields["slot"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: slot: %w", vault, err)
	}
	total, err := strconv.ParseUint(fields["total_deposited"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: total_deposited: %w", vault, err)
	}
	return &storage.Checkpoint{Vault: vault, Slot: slot, TotalDeposited: total}, nil
}

// SetCheckpoint saves cp.
func (s *CheckpointStore) SetCheckpoint(ctx context.Context, cp *storage.Checkpoint) error {
	if cp == nil || cp.Vault == "" {
		return storage.ErrInvalidInput
	}
	return s.client.HSet(ctx, s.key(cp.Vault),
		"slot", strconv.FormatInt(cp.Slot, 10),
		"total_deposited", strconv.FormatUint(cp.TotalDeposited, 10),
	).Err()
}
