package storage

import (
	"context"

	"github.com/Alibek10599/token-vault/internal/domain"
)

// EventStore provides access to the vault event journal.
type EventStore interface {
	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetByVault retrieves all events for a vault, ordered by (seq, event_index) ASC.
	GetByVault(ctx context.Context, vault string) ([]*domain.Event, error)

	// GetBySignature retrieves the events of one transaction, ordered by event_index ASC.
	GetBySignature(ctx context.Context, txSignature string) ([]*domain.Event, error)

	// GetByTimeRange retrieves events for a vault within [start, end] (inclusive, Unix seconds).
	GetByTimeRange(ctx context.Context, vault string, start, end int64) ([]*domain.Event, error)
}

// Checkpoint is the last vault state observed by a watcher.
type Checkpoint struct {
	Vault          string // vault address
	Slot           int64  // slot of the last applied notification
	TotalDeposited uint64 // vault total at that slot
}

// CheckpointStore persists watcher progress so restarts do not replay stale notifications.
type CheckpointStore interface {
	// GetCheckpoint returns the checkpoint for vault.
	// Returns ErrNotFound if no checkpoint has been saved yet.
	GetCheckpoint(ctx context.Context, vault string) (*Checkpoint, error)

	// SetCheckpoint saves cp, replacing any previous checkpoint for the same vault.
	SetCheckpoint(ctx context.Context, cp *Checkpoint) error
}
