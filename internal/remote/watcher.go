package remote

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Alibek10599/token-vault/internal/observability"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/storage"
	"github.com/Alibek10599/token-vault/internal/vault"
)

// ErrSubscriptionClosed is returned by Watch when the notification stream ends
// before ctx is cancelled.
var ErrSubscriptionClosed = errors.New("vault subscription closed")

// Update is one applied vault notification.
type Update struct {
	Vault solana.Pubkey
	Slot  int64
	// Record is nil when the vault account was closed.
	Record *vault.Record
	// Delta is the change in total deposited since the previous update. It
	// spans the full u64 range in both directions.
	Delta decimal.Decimal
}

// Handler consumes updates in slot order. An error stops the watch.
type Handler func(ctx context.Context, u Update) error

// Watcher follows vault accounts over a WebSocket subscription.
type Watcher struct {
	ws          solana.WSClient
	programID   solana.Pubkey
	checkpoints storage.CheckpointStore
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithCheckpoints persists progress so restarts skip notifications already applied.
func WithCheckpoints(cs storage.CheckpointStore) WatcherOption {
	return func(w *Watcher) { w.checkpoints = cs }
}

// WithWatchMetrics sets the metrics sink.
func WithWatchMetrics(m *observability.Metrics) WatcherOption {
	return func(w *Watcher) { w.metrics = m }
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a watcher for vaults owned by programID.
func NewWatcher(ws solana.WSClient, programID solana.Pubkey, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		ws:        ws,
		programID: programID,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch subscribes to vaultAddr and calls h for every notification newer than
// the last checkpoint. Notifications that do not decode as a vault are counted
// and skipped. Returns nil when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, vaultAddr solana.Pubkey, h Handler) error {
	last, err := w.loadCheckpoint(ctx, vaultAddr)
	if err != nil {
		return err
	}

	ch, err := w.ws.SubscribeAccount(ctx, vaultAddr.String())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", vaultAddr, err)
	}
	w.logger.Info("watching vault",
		zap.String("vault", vaultAddr.String()),
		zap.Int64("from_slot", last.Slot),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case notif, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionClosed
			}
			if err := w.apply(ctx, vaultAddr, last, notif, h); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) apply(ctx context.Context, vaultAddr solana.Pubkey, last *storage.Checkpoint, notif solana.AccountNotification, h Handler) error {
	if notif.Slot <= last.Slot {
		w.recordNotification(notif.Slot, true)
		w.logger.Debug("stale notification skipped",
			zap.String("vault", vaultAddr.String()),
			zap.Int64("slot", notif.Slot),
			zap.Int64("checkpoint_slot", last.Slot),
		)
		return nil
	}

	var rec *vault.Record
	if notif.Account != nil {
		acc, err := toAccount(vaultAddr, notif.Account)
		if err == nil {
			rec, err = vault.ParseRecord(acc, w.programID)
		}
		if err != nil {
			if w.metrics != nil {
				w.metrics.WatchDecodeFailures.Inc()
			}
			w.logger.Warn("undecodable vault notification",
				zap.String("vault", vaultAddr.String()),
				zap.Int64("slot", notif.Slot),
				zap.Error(err),
			)
			return nil
		}
	}

	var total uint64
	if rec != nil {
		total = rec.TotalDeposited
	}
	u := Update{
		Vault:  vaultAddr,
		Slot:   notif.Slot,
		Record: rec,
		Delta:  totalDelta(last.TotalDeposited, total),
	}
	if err := h(ctx, u); err != nil {
		return fmt.Errorf("handle slot %d: %w", notif.Slot, err)
	}
	w.recordNotification(notif.Slot, false)

	last.Slot = notif.Slot
	last.TotalDeposited = total
	if w.checkpoints != nil {
		cp := *last
		if err := w.checkpoints.SetCheckpoint(ctx, &cp); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	return nil
}

func (w *Watcher) loadCheckpoint(ctx context.Context, vaultAddr solana.Pubkey) (*storage.Checkpoint, error) {
	fresh := &storage.Checkpoint{Vault: vaultAddr.String()}
	if w.checkpoints == nil {
		return fresh, nil
	}
	cp, err := w.checkpoints.GetCheckpoint(ctx, vaultAddr.String())
	if errors.Is(err, storage.ErrNotFound) {
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

func (w *Watcher) recordNotification(slot int64, stale bool) {
	if w.metrics != nil {
		w.metrics.RecordNotification(slot, stale)
	}
}

func totalDelta(from, to uint64) decimal.Decimal {
	if to >= from {
		return decimal.NewFromBigInt(new(big.Int).SetUint64(to-from), 0)
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(from-to), 0).Neg()
}
