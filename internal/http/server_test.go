package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/log"
	"splitledger/internal/services"
)

// fakeLedger returns canned values and records the last call arguments.
type fakeLedger struct {
	lastExpense *core.Expense
	createErr   error
	expenses    []core.Expense
	balance     core.Balance
	groupBals   map[string]core.Balance
	group       *core.Group
	deleted     bool
	err         error

	lastPayment [3]string
}

func (f *fakeLedger) CreateExpense(_ context.Context, e *core.Expense) (string, error) {
	f.lastExpense = e
	if f.createErr != nil {
		return "", f.createErr
	}
	return "exp-1", nil
}

func (f *fakeLedger) RecordPayment(_ context.Context, expenseID, actingUserID, targetUserID string) error {
	f.lastPayment = [3]string{expenseID, actingUserID, targetUserID}
	return f.err
}

func (f *fakeLedger) DeleteExpense(context.Context, string) (bool, error) {
	return f.deleted, f.err
}

func (f *fakeLedger) Balances(context.Context, string) (core.Balance, error) {
	return f.balance, f.err
}

func (f *fakeLedger) ExpensesForUser(context.Context, string) ([]core.Expense, error) {
	return f.expenses, f.err
}

func (f *fakeLedger) ExpensesForGroup(context.Context, string, string) ([]core.Expense, error) {
	return f.expenses, f.err
}

func (f *fakeLedger) GroupBalances(context.Context, string, string) (map[string]core.Balance, error) {
	return f.groupBals, f.err
}

func (f *fakeLedger) CreateGroup(context.Context, string, string, []string) (string, error) {
	return "grp-1", f.err
}

func (f *fakeLedger) Group(context.Context, string, string) (*core.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.group, nil
}

type fakeChat struct {
	sessionID string
	sessions  []services.SessionInfo
	messages  []services.ChatMessage
	err       error

	lastAppend appendMessagesRequest
}

func (f *fakeChat) AppendMessages(_ context.Context, userID, sessionID, title string, messages []services.ChatMessage) (string, error) {
	f.lastAppend = appendMessagesRequest{UserID: userID, SessionID: sessionID, Title: title}
	for _, m := range messages {
		f.lastAppend.Messages = append(f.lastAppend.Messages, chatMessagePayload{Role: m.Role, Content: m.Content})
	}
	if f.err != nil {
		return "", f.err
	}
	if f.sessionID != "" {
		return f.sessionID, nil
	}
	return sessionID, nil
}

func (f *fakeChat) ListSessions(context.Context, string) ([]services.SessionInfo, error) {
	return f.sessions, f.err
}

func (f *fakeChat) GetSession(context.Context, string, string) ([]services.ChatMessage, error) {
	return f.messages, f.err
}

func (f *fakeChat) RenameSession(context.Context, string, string, string) error {
	return f.err
}

func (f *fakeChat) DeleteSession(context.Context, string, string) error {
	return f.err
}

func newTestServer(ledger LedgerService, chat ChatService) *Server {
	return NewServer(":0", ledger, chat, nil, log.New(log.DefaultConfig()))
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateExpenseEndpoint(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestServer(ledger, &fakeChat{})

	body := `{
		"payer_id": "alice",
		"category": "food",
		"amount": "75.00",
		"description": "dinner",
		"split_among": ["alice", "bob", "carol"]
	}`
	rec := doRequest(t, s, http.MethodPost, "/expenses", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["expense_id"] != "exp-1" {
		t.Errorf("expense_id = %q", resp["expense_id"])
	}

	e := ledger.lastExpense
	if e == nil {
		t.Fatal("service never called")
	}
	if e.Amount.Cents != 7500 {
		t.Errorf("amount = %d cents, want 7500", e.Amount.Cents)
	}
	if len(e.Splits) != 3 || e.Splits[0].Amount.Cents != 2500 {
		t.Errorf("unexpected splits: %+v", e.Splits)
	}
}

func TestCreateExpenseExplicitSplits(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestServer(ledger, &fakeChat{})

	body := `{
		"payer_id": "alice",
		"category": "food",
		"amount": "10.00",
		"description": "coffee",
		"splits": [
			{"user_id": "alice", "amount": "4.00"},
			{"user_id": "bob", "amount": "6.00"}
		]
	}`
	rec := doRequest(t, s, http.MethodPost, "/expenses", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := ledger.lastExpense.Splits[1].Amount.Cents; got != 600 {
		t.Errorf("bob's split = %d cents, want 600", got)
	}
}

func TestCreateExpenseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"payer_id":`},
		{"unknown field", `{"payer_id": "a", "amount": "1.00", "typo_field": true}`},
		{"bad amount", `{"payer_id": "a", "category": "c", "amount": "abc", "description": "d", "split_among": ["a"]}`},
		{"both split forms", `{"payer_id": "a", "category": "c", "amount": "1.00", "description": "d",
			"split_among": ["a"], "splits": [{"user_id": "a", "amount": "1.00"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeLedger{}, &fakeChat{})
			rec := doRequest(t, s, http.MethodPost, "/expenses", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateExpenseValidationFromService(t *testing.T) {
	s := newTestServer(&fakeLedger{createErr: core.ErrSplitSumMismatch}, &fakeChat{})
	body := `{"payer_id": "a", "category": "c", "amount": "1.00", "description": "d", "split_among": ["a"]}`
	rec := doRequest(t, s, http.MethodPost, "/expenses", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBalancesEndpoint(t *testing.T) {
	ledger := &fakeLedger{balance: core.Balance{
		YouOwe:    core.Money{Cents: 2500},
		OwedToYou: core.Money{Cents: 0},
		Net:       core.Money{Cents: -2500},
	}}
	s := newTestServer(ledger, &fakeChat{})

	rec := doRequest(t, s, http.MethodGet, "/balances?user_id=bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.YouOweCents != 2500 || resp.NetCents != -2500 {
		t.Errorf("unexpected body: %+v", resp)
	}

	rec = doRequest(t, s, http.MethodGet, "/balances", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: status = %d, want 400", rec.Code)
	}
}

func TestGroupBalancesEndpoint(t *testing.T) {
	ledger := &fakeLedger{groupBals: map[string]core.Balance{
		"alice": {Net: core.Money{Cents: 2500}},
		"bob":   {Net: core.Money{Cents: -2500}},
	}}
	s := newTestServer(ledger, &fakeChat{})

	rec := doRequest(t, s, http.MethodGet, "/balances?user_id=alice&group_id=trip", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]balanceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["alice"].NetCents != 2500 || resp["bob"].NetCents != -2500 {
		t.Errorf("unexpected body: %+v", resp)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", core.ErrNotFound, http.StatusNotFound},
		{"access denied", core.ErrAccessDenied, http.StatusForbidden},
		{"persistence failure", fmt.Errorf("disk error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeLedger{err: tt.err}, &fakeChat{})
			body := `{"expense_id": "e1", "user_id": "bob"}`
			rec := doRequest(t, s, http.MethodPost, "/payments", body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestPaymentsEndpoint(t *testing.T) {
	ledger := &fakeLedger{}
	s := newTestServer(ledger, &fakeChat{})

	body := `{"expense_id": "e1", "user_id": "alice", "target_user_id": "bob"}`
	rec := doRequest(t, s, http.MethodPost, "/payments", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ledger.lastPayment != [3]string{"e1", "alice", "bob"} {
		t.Errorf("payment args = %v", ledger.lastPayment)
	}

	rec = doRequest(t, s, http.MethodPost, "/payments", `{"user_id": "alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing expense_id: status = %d, want 400", rec.Code)
	}
}

func TestDeleteExpenseEndpoint(t *testing.T) {
	s := newTestServer(&fakeLedger{deleted: true}, &fakeChat{})

	rec := doRequest(t, s, http.MethodDelete, "/expenses/exp-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp["deleted"] {
		t.Error("deleted = false, want true")
	}

	rec = doRequest(t, s, http.MethodDelete, "/expenses/", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty id: status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/expenses/exp-1", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on id path: status = %d, want 405", rec.Code)
	}
}

func TestGroupEndpoints(t *testing.T) {
	ledger := &fakeLedger{group: &core.Group{
		ID:        "grp-1",
		Name:      "trip",
		Members:   []string{"alice", "bob"},
		CreatedAt: time.Now().UTC(),
	}}
	s := newTestServer(ledger, &fakeChat{})

	rec := doRequest(t, s, http.MethodPost, "/groups", `{"name": "trip", "creator_id": "alice", "members": ["bob"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/groups/grp-1?user_id=alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var resp groupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "trip" || len(resp.Members) != 2 {
		t.Errorf("unexpected group: %+v", resp)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	chat := &fakeChat{
		sessionID: "sess-1",
		sessions:  []services.SessionInfo{{ID: "sess-1", Title: "dinner"}},
		messages:  []services.ChatMessage{{Role: "user", Content: "hi"}},
	}
	s := newTestServer(&fakeLedger{}, chat)

	body := `{"user_id": "alice", "messages": [{"role": "user", "content": "hi"}]}`
	rec := doRequest(t, s, http.MethodPost, "/history", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("append: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if chat.lastAppend.UserID != "alice" || len(chat.lastAppend.Messages) != 1 {
		t.Errorf("unexpected append call: %+v", chat.lastAppend)
	}

	rec = doRequest(t, s, http.MethodGet, "/history?user_id=alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var sessions []services.SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "sess-1" {
		t.Errorf("unexpected sessions: %+v", sessions)
	}

	rec = doRequest(t, s, http.MethodGet, "/history?user_id=alice&session_id=sess-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPatch, "/history", `{"user_id": "alice", "session_id": "sess-1", "title": "new"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/history?user_id=alice&session_id=sess-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
}

func TestHistoryRenameMissingSession(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeChat{err: core.ErrNotFound})
	rec := doRequest(t, s, http.MethodPatch, "/history", `{"user_id": "alice", "session_id": "gone", "title": "x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeChat{})

	if rec := doRequest(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz: status = %d", rec.Code)
	}

	s = NewServer(":0", &fakeLedger{}, &fakeChat{},
		func(context.Context) error { return fmt.Errorf("db down") },
		log.New(log.DefaultConfig()))
	if rec := doRequest(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing probe: status = %d, want 503", rec.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	s := newTestServer(&fakeLedger{}, &fakeChat{})

	var lastCode int
	for i := 0; i < 61; i++ {
		rec := doRequest(t, s, http.MethodPost, "/payments", `{"expense_id": "e1", "user_id": "bob"}`)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Errorf("status after 61 writes = %d, want 429", lastCode)
	}

	// Reads from the same client stay unthrottled.
	if rec := doRequest(t, s, http.MethodGet, "/balances?user_id=bob", ""); rec.Code != http.StatusOK {
		t.Errorf("read during throttle: status = %d", rec.Code)
	}
}
