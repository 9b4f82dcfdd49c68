package http

import (
	"net/http"
	"strings"
	"time"
)

type createGroupRequest struct {
	Name      string   `json:"name"`
	CreatorID string   `json:"creator_id"`
	Members   []string `json:"members"`
}

type groupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req createGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	id, err := s.ledger.CreateGroup(r.Context(), sanitizeInput(req.Name), strings.TrimSpace(req.CreatorID), req.Members)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"group_id": id})
}

func (s *Server) handleGroupByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/groups/")
	if id == "" || strings.Contains(id, "/") {
		writeBadRequest(w, "invalid group id")
		return
	}
	userID, ok := requiredQuery(w, r, "user_id")
	if !ok {
		return
	}

	g, err := s.ledger.Group(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponse{
		ID:        g.ID,
		Name:      g.Name,
		Members:   g.Members,
		CreatedAt: g.CreatedAt,
	})
}
