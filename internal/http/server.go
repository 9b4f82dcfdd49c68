// Package http exposes the ledger and chat services as a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/log"
	"splitledger/internal/services"
)

// LedgerService is the ledger surface the handlers need. Satisfied by
// *services.LedgerService.
type LedgerService interface {
	CreateExpense(ctx context.Context, e *core.Expense) (string, error)
	RecordPayment(ctx context.Context, expenseID, actingUserID, targetUserID string) error
	DeleteExpense(ctx context.Context, expenseID string) (bool, error)
	Balances(ctx context.Context, userID string) (core.Balance, error)
	ExpensesForUser(ctx context.Context, userID string) ([]core.Expense, error)
	ExpensesForGroup(ctx context.Context, groupID, actingUserID string) ([]core.Expense, error)
	GroupBalances(ctx context.Context, groupID, actingUserID string) (map[string]core.Balance, error)
	CreateGroup(ctx context.Context, name, creatorID string, members []string) (string, error)
	Group(ctx context.Context, groupID, actingUserID string) (*core.Group, error)
}

// ChatService is the conversation surface. Satisfied by *services.ChatService.
type ChatService interface {
	AppendMessages(ctx context.Context, userID, sessionID, title string, messages []services.ChatMessage) (string, error)
	ListSessions(ctx context.Context, userID string) ([]services.SessionInfo, error)
	GetSession(ctx context.Context, userID, sessionID string) ([]services.ChatMessage, error)
	RenameSession(ctx context.Context, userID, sessionID, title string) error
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

type Server struct {
	http.Server

	ledger       LedgerService
	chat         ChatService
	logger       *log.Logger
	rateLimiter  *rateLimiter
	ready        func(ctx context.Context) error
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. ready is the readiness probe (typically the database ping); nil
// means always ready.
func NewServer(addr string, ledger LedgerService, chat ChatService, ready func(ctx context.Context) error, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:      ledger,
		chat:        chat,
		logger:      logger.WithComponent(log.ComponentHTTP),
		rateLimiter: newRateLimiter(),
		ready:       ready,
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/balances", s.withMiddleware(s.handleBalances))
	mux.HandleFunc("/expenses", s.withMiddleware(s.handleExpenses))
	mux.HandleFunc("/expenses/", s.withMiddleware(s.handleExpenseByID))
	mux.HandleFunc("/payments", s.withMiddleware(s.handlePayments))
	mux.HandleFunc("/groups", s.withMiddleware(s.handleGroups))
	mux.HandleFunc("/groups/", s.withMiddleware(s.handleGroupByID))
	mux.HandleFunc("/history", s.withMiddleware(s.handleHistory))

	s.Handler = log.Middleware(logger)(mux)

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds security headers, rate limiting on mutations, and
// request logging with a per-request id.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		reqLogger := log.FromContext(r.Context()).
			WithComponent(log.ComponentHTTP).
			With(log.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), log.LoggerContextKey, reqLogger)
		r = r.WithContext(ctx)

		reqLogger.InfoContext(ctx, "Request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		if isMutation(r.Method) && !s.rateLimiter.allow(clientIP) {
			reqLogger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		reqLogger.InfoContext(ctx, "Request completed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
