package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Alibek10599/token-vault/internal/storage"
)

// CheckpointStore is a PostgreSQL implementation of storage.CheckpointStore.
// One row per vault in watch_checkpoints.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetCheckpoint returns the checkpoint for vault.
func (s *CheckpointStore) GetCheckpoint(ctx context.Context, vault string) (*storage.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT vault, slot, total_deposited::text
		FROM watch_checkpoints
		WHERE vault = $1
	`, vault)

	var cp storage.Checkpoint
	var total string
	err := row.Scan(&cp.Vault, &cp.Slot, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := parseUints([]string{total}, []*uint64{&cp.TotalDeposited}); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", vault, err)
	}

	return &cp, nil
}

// SetCheckpoint saves cp. Uses upsert to handle initial insert and subsequent updates.
func (s *CheckpointStore) SetCheckpoint(ctx context.Context, cp *storage.Checkpoint) error {
	if cp == nil || cp.Vault == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO watch_checkpoints (vault, slot, total_deposited, updated_at)
		VALUES ($1, $2, $3::numeric, NOW())
		ON CONFLICT (vault) DO UPDATE
		SET slot = EXCLUDED.slot,
		    total_deposited = EXCLUDED.total_deposited,
		    updated_at = NOW()
	`, cp.Vault, cp.Slot, formatUint(cp.TotalDeposited))

	return err
}
