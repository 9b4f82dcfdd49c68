package amqp

import (
	"testing"
	"time"
)

func TestLedgerEventJSON(t *testing.T) {
	event := NewLedgerEvent(EventExpenseCreated, "exp-1", "alice")

	body, err := event.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := LedgerEventFromJSON(body)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Type != EventExpenseCreated || parsed.ExpenseID != "exp-1" || parsed.UserID != "alice" {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
	if parsed.Timestamp.IsZero() || time.Since(parsed.Timestamp) > time.Minute {
		t.Fatalf("unexpected timestamp: %v", parsed.Timestamp)
	}
}

func TestLedgerEventFromJSONInvalid(t *testing.T) {
	if _, err := LedgerEventFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
