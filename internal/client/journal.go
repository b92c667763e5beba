package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Alibek10599/token-vault/internal/domain"
	"github.com/Alibek10599/token-vault/internal/idhash"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/storage"
	"github.com/Alibek10599/token-vault/internal/vault"
)

// JournalEvents converts the vault events of a receipt into journal entries.
// EventIndex is the position within all events of the receipt.
func JournalEvents(programID solana.Pubkey, receipt *ledger.Receipt) []*domain.Event {
	var out []*domain.Event
	for i, ev := range receipt.Events {
		if ev.Program != programID {
			continue
		}
		decoded, err := vault.DecodeEvent(ev.Data)
		if err != nil {
			continue
		}
		out = append(out, &domain.Event{
			EventID:        idhash.ComputeEventID(receipt.Signature, i),
			TxSignature:    receipt.Signature,
			EventIndex:     i,
			Seq:            receipt.Seq,
			Kind:           domain.EventKind(decoded.Kind.String()),
			Vault:          decoded.Vault.String(),
			Actor:          decoded.Actor.String(),
			Amount:         decoded.Amount,
			Fee:            decoded.Fee,
			Net:            decoded.Net,
			TotalDeposited: decoded.TotalDeposited,
			Timestamp:      decoded.Timestamp,
		})
	}
	return out
}

// appendJournal records committed events. Failures are logged and counted,
// never returned: the transition is already committed.
func (c *Client) appendJournal(ctx context.Context, receipt *ledger.Receipt) {
	events := JournalEvents(c.programID, receipt)
	for _, e := range events {
		switch e.Kind {
		case domain.EventDeposit:
			c.metrics.RecordDeposit(e.Amount)
		case domain.EventWithdraw:
			c.metrics.RecordWithdraw(e.Amount, e.Fee)
		}
	}

	if c.journal == nil || len(events) == 0 {
		return
	}

	// The submit deadline may already be spent; the journal write gets its own.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.journalTimeout())
	defer cancel()

	if err := c.journal.InsertBulk(jctx, events); err != nil {
		c.metrics.RecordJournal(0, journalErrorType(err))
		c.logger.Error("journal append failed",
			zap.String("signature", receipt.Signature),
			zap.Uint64("seq", receipt.Seq),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
		return
	}
	c.metrics.RecordJournal(len(events), "")
}

func (c *Client) journalTimeout() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	return DefaultSubmitTimeout
}

func journalErrorType(err error) string {
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		return "duplicate"
	case errors.Is(err, storage.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "backend"
	}
}
