package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Canonical event types emitted at the moment a state transition commits.
const (
	TypeOrderCreated    = "escrow.order.created"
	TypeOrderClosed     = "escrow.order.closed"
	TypeOrderCancelled  = "escrow.order.cancelled"
	TypeMoneyBoxCreated = "escrow.moneybox.created"
	TypeMoneyBoxPayment = "escrow.moneybox.payment"
)

// Event is the structured notification emitted by every mutating operation
// once its transaction has committed. The unlock code is present only on
// creation events; this is the channel through which the buyer retrieves it.
type Event struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	OwnerAddress  string    `json:"owner_address"`
	SellerAddress string    `json:"seller_address"`
	Amount        int64     `json:"amount"`
	State         string    `json:"state"`
	UnlockCode    uint64    `json:"unlock_code,omitempty"`
	FromAddress   string    `json:"from,omitempty"` // payer on payment events
	EmittedAt     time.Time `json:"emitted_at"`
}

// Emitter receives commit notifications.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// LogEmitter writes each event as a structured log line.
type LogEmitter struct{}

func (LogEmitter) Emit(e Event) {
	log.Info().
		Str("event", e.Type).
		Str("order_id", e.OrderID).
		Str("owner_address", e.OwnerAddress).
		Str("seller_address", e.SellerAddress).
		Int64("amount", e.Amount).
		Str("state", e.State).
		Msg("escrow event")
}

// Recorder captures emitted events in order, for inspection in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
