package vault

import (
	"bytes"
	"fmt"

	"github.com/Alibek10599/token-vault/internal/solana"
)

var eventDiscriminator = discriminator("event", "VaultEvent")

// EventKind identifies the transition that produced an event.
type EventKind uint8

const (
	EventInitialize EventKind = iota + 1
	EventDeposit
	EventWithdraw
)

func (k EventKind) String() string {
	switch k {
	case EventInitialize:
		return "initialize"
	case EventDeposit:
		return "deposit"
	case EventWithdraw:
		return "withdraw"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is emitted by the vault program on every committed transition.
// For deposits Fee is zero and Net equals Amount.
type Event struct {
	Kind           EventKind
	Vault          solana.Pubkey
	Actor          solana.Pubkey
	Amount         uint64
	Fee            uint64
	Net            uint64
	TotalDeposited uint64
	Timestamp      int64
}

// Encode serializes the event for the receipt.
func (ev *Event) Encode() []byte {
	e := &encoder{buf: make([]byte, 0, 8+1+64+32+8)}
	e.bytes(eventDiscriminator[:])
	e.u8(uint8(ev.Kind))
	e.pubkey(ev.Vault)
	e.pubkey(ev.Actor)
	e.u64(ev.Amount)
	e.u64(ev.Fee)
	e.u64(ev.Net)
	e.u64(ev.TotalDeposited)
	e.i64(ev.Timestamp)
	return e.buf
}

// DecodeEvent parses event data emitted by the vault program.
func DecodeEvent(data []byte) (*Event, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], eventDiscriminator[:]) {
		return nil, fmt.Errorf("decode vault event: bad discriminator")
	}
	d := &decoder{buf: data, off: 8}
	ev := &Event{
		Kind:           EventKind(d.u8()),
		Vault:          d.pubkey(),
		Actor:          d.pubkey(),
		Amount:         d.u64(),
		Fee:            d.u64(),
		Net:            d.u64(),
		TotalDeposited: d.u64(),
		Timestamp:      d.i64(),
	}
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("decode vault event: %w", err)
	}
	if ev.Kind < EventInitialize || ev.Kind > EventWithdraw {
		return nil, fmt.Errorf("decode vault event: unknown kind %d", ev.Kind)
	}
	return ev, nil
}
