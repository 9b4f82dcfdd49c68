package http

import (
	"net/http"
	"strings"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/log"
)

type splitPayload struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

// createExpenseRequest carries amounts as decimal strings ("12.34"); the
// fixed-point conversion happens exactly once, at this boundary.
type createExpenseRequest struct {
	PayerID     string         `json:"payer_id"`
	GroupID     string         `json:"group_id"`
	Category    string         `json:"category"`
	Amount      string         `json:"amount"`
	Description string         `json:"description"`
	Splits      []splitPayload `json:"splits"`
	SplitAmong  []string       `json:"split_among"`
}

type splitResponse struct {
	UserID      string     `json:"user_id"`
	AmountCents int64      `json:"amount_cents"`
	Paid        bool       `json:"paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

type expenseResponse struct {
	ID          string          `json:"id"`
	PayerID     string          `json:"payer_id"`
	GroupID     string          `json:"group_id,omitempty"`
	Category    string          `json:"category"`
	AmountCents int64           `json:"amount_cents"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	Splits      []splitResponse `json:"splits"`
}

type balanceResponse struct {
	YouOweCents    int64 `json:"you_owe_cents"`
	OwedToYouCents int64 `json:"owed_to_you_cents"`
	NetCents       int64 `json:"net_cents"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	resp := expenseResponse{
		ID:          e.ID,
		PayerID:     e.PayerID,
		GroupID:     e.GroupID,
		Category:    e.Category,
		AmountCents: e.Amount.Cents,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		Splits:      make([]splitResponse, len(e.Splits)),
	}
	for i, s := range e.Splits {
		resp.Splits[i] = splitResponse{
			UserID:      s.UserID,
			AmountCents: s.Amount.Cents,
			Paid:        s.Paid,
			PaidAt:      s.PaidAt,
		}
	}
	return resp
}

func toBalanceResponse(b core.Balance) balanceResponse {
	return balanceResponse{
		YouOweCents:    b.YouOwe.Cents,
		OwedToYouCents: b.OwedToYou.Cents,
		NetCents:       b.Net.Cents,
	}
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := requiredQuery(w, r, "user_id")
	if !ok {
		return
	}

	if groupID := strings.TrimSpace(r.URL.Query().Get("group_id")); groupID != "" {
		balances, err := s.ledger.GroupBalances(r.Context(), groupID, userID)
		if err != nil {
			writeServiceError(w, r, s.logger, err)
			return
		}
		out := make(map[string]balanceResponse, len(balances))
		for user, b := range balances {
			out[user] = toBalanceResponse(b)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	balance, err := s.ledger.Balances(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceResponse(balance))
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListExpenses(w, r)
	case http.MethodPost:
		s.handleCreateExpense(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := requiredQuery(w, r, "user_id")
	if !ok {
		return
	}

	var (
		expenses []core.Expense
		err      error
	)
	if groupID := strings.TrimSpace(r.URL.Query().Get("group_id")); groupID != "" {
		expenses, err = s.ledger.ExpensesForGroup(r.Context(), groupID, userID)
	} else {
		expenses, err = s.ledger.ExpensesForUser(r.Context(), userID)
	}
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	out := make([]expenseResponse, len(expenses))
	for i, e := range expenses {
		out[i] = toExpenseResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeBadRequest(w, "invalid amount: "+err.Error())
		return
	}
	amount := core.Money{Cents: cents}

	if len(req.Splits) > 0 && len(req.SplitAmong) > 0 {
		writeBadRequest(w, "provide either splits or split_among, not both")
		return
	}

	var splits []core.Split
	switch {
	case len(req.Splits) > 0:
		splits = make([]core.Split, len(req.Splits))
		for i, sp := range req.Splits {
			spCents, err := core.ParseDecimalToCents(sp.Amount)
			if err != nil {
				writeBadRequest(w, "invalid split amount: "+err.Error())
				return
			}
			splits[i] = core.Split{UserID: strings.TrimSpace(sp.UserID), Amount: core.Money{Cents: spCents}}
		}
	case len(req.SplitAmong) > 0:
		splits = core.SplitEvenly(amount, req.SplitAmong)
	}

	expense := &core.Expense{
		PayerID:     strings.TrimSpace(req.PayerID),
		GroupID:     strings.TrimSpace(req.GroupID),
		Category:    sanitizeInput(req.Category),
		Amount:      amount,
		Description: sanitizeInput(req.Description),
		Splits:      splits,
	}

	id, err := s.ledger.CreateExpense(r.Context(), expense)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"expense_id": id})
}

func (s *Server) handleExpenseByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/expenses/")
	if id == "" || strings.Contains(id, "/") {
		writeBadRequest(w, "invalid expense id")
		return
	}

	deleted, err := s.ledger.DeleteExpense(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

type recordPaymentRequest struct {
	ExpenseID    string `json:"expense_id"`
	UserID       string `json:"user_id"`
	TargetUserID string `json:"target_user_id"`
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.ExpenseID) == "" {
		writeBadRequest(w, "expense_id is required")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeBadRequest(w, "user_id is required")
		return
	}

	err := s.ledger.RecordPayment(r.Context(), req.ExpenseID, req.UserID, strings.TrimSpace(req.TargetUserID))
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Payment accepted",
		log.FieldExpenseID, req.ExpenseID,
		log.FieldUserID, req.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
