package amqp

import (
	"encoding/json"
	"time"
)

// Event types published after a durable ledger write. Consumers must treat
// the event as a hint and re-read the ledger; the message carries ids only.
const (
	EventExpenseCreated  = "expense.created"
	EventExpenseDeleted  = "expense.deleted"
	EventPaymentRecorded = "payment.recorded"
)

// LedgerEvent is the message published for every ledger mutation. It is
// best effort: a lost event only delays export until the reconcile loop
// picks the expense up again.
type LedgerEvent struct {
	Type      string    `json:"type"`
	ExpenseID string    `json:"expense_id"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event of the given type for an expense.
func NewLedgerEvent(eventType, expenseID, userID string) *LedgerEvent {
	return &LedgerEvent{
		Type:      eventType,
		ExpenseID: expenseID,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON parses an event from JSON bytes.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var event LedgerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
