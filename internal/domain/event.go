package domain

// EventKind identifies the vault transition recorded by an Event.
type EventKind string

const (
	EventInitialize EventKind = "initialize"
	EventDeposit    EventKind = "deposit"
	EventWithdraw   EventKind = "withdraw"
)

// Event is a committed vault transition, as recorded in the event journal.
// Events are append-only; EventID is unique.
type Event struct {
	EventID        string    // SHA256(tx_signature|event_index)
	TxSignature    string    // base58 transaction signature
	EventIndex     int       // index within the transaction receipt
	Seq            uint64    // ledger commit sequence number
	Kind           EventKind // initialize, deposit or withdraw
	Vault          string    // vault address
	Actor          string    // authority, depositor or withdrawer
	Amount         uint64    // principal in base units
	Fee            uint64    // withdrawal fee, zero otherwise
	Net            uint64    // Amount - Fee
	TotalDeposited uint64    // vault total after the transition
	Timestamp      int64     // ledger time, Unix seconds
}
