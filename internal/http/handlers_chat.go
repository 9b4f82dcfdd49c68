package http

import (
	"net/http"
	"strings"
	"time"

	"splitledger/internal/services"
)

type chatMessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type appendMessagesRequest struct {
	UserID    string               `json:"user_id"`
	SessionID string               `json:"session_id"`
	Title     string               `json:"title"`
	Messages  []chatMessagePayload `json:"messages"`
}

type renameSessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

// handleHistory routes the conversation store. GET without a session_id
// lists sessions; with one it returns that session's messages.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetHistory(w, r)
	case http.MethodPost:
		s.handleAppendMessages(w, r)
	case http.MethodPatch:
		s.handleRenameSession(w, r)
	case http.MethodDelete:
		s.handleDeleteSession(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	}
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requiredQuery(w, r, "user_id")
	if !ok {
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessions, err := s.chat.ListSessions(r.Context(), userID)
		if err != nil {
			writeServiceError(w, r, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sessions)
		return
	}

	messages, err := s.chat.GetSession(r.Context(), userID, sessionID)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleAppendMessages(w http.ResponseWriter, r *http.Request) {
	var req appendMessagesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeBadRequest(w, "user_id is required")
		return
	}

	now := time.Now().UTC()
	messages := make([]services.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = services.ChatMessage{
			Role:      strings.TrimSpace(m.Role),
			Content:   m.Content,
			CreatedAt: now,
		}
	}

	sessionID, err := s.chat.AppendMessages(r.Context(), req.UserID, strings.TrimSpace(req.SessionID), sanitizeInput(req.Title), messages)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req renameSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.SessionID) == "" {
		writeBadRequest(w, "user_id and session_id are required")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeBadRequest(w, "title is required")
		return
	}

	if err := s.chat.RenameSession(r.Context(), req.UserID, req.SessionID, sanitizeInput(req.Title)); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requiredQuery(w, r, "user_id")
	if !ok {
		return
	}
	sessionID, ok := requiredQuery(w, r, "session_id")
	if !ok {
		return
	}

	if err := s.chat.DeleteSession(r.Context(), userID, sessionID); err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
