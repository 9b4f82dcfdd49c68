package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/cache"
	"splitledger/internal/core"
	"splitledger/internal/log"
)

// MaxChatSessions is how many conversations are retained per user. Older
// sessions fall off the index when a new one pushes past the limit.
const MaxChatSessions = 5

// ErrNoMessages is returned when an append carries an empty batch.
var ErrNoMessages = errors.New("no messages to append")

const maxDerivedTitleLen = 50

// ChatMessage is a single turn in a conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo is an index entry for one conversation.
type SessionInfo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	LastUpdated time.Time `json:"last_updated"`
}

// ChatService keeps conversations in the cache only. Nothing here is
// durable: an eviction or a cache restart loses history, and callers see
// that as an empty session rather than an error.
type ChatService struct {
	cache  *cache.Cache
	logger *log.Logger
}

func NewChatService(c *cache.Cache, logger *log.Logger) *ChatService {
	return &ChatService{
		cache:  c,
		logger: logger.WithComponent(log.ComponentChat),
	}
}

// AppendMessages stores the full message history for a session and moves
// the session to the front of the user's index. An empty sessionID starts
// a new conversation; the minted id is returned either way.
//
// The caller passes the complete history, not a delta: the stored value is
// overwritten whole, which keeps a lost write from corrupting the session.
func (s *ChatService) AppendMessages(ctx context.Context, userID, sessionID, title string, messages []ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	blob, err := json.Marshal(messages)
	if err != nil {
		return "", err
	}
	s.cache.Set(ctx, cache.ChatHistoryKey(userID, sessionID), blob, cache.TTLChat)

	sessions := s.loadIndex(ctx, userID)
	entry := SessionInfo{ID: sessionID, Title: title, LastUpdated: time.Now().UTC()}

	kept := make([]SessionInfo, 0, len(sessions)+1)
	for _, sess := range sessions {
		if sess.ID == sessionID {
			if entry.Title == "" {
				entry.Title = sess.Title
			}
			continue
		}
		kept = append(kept, sess)
	}
	if entry.Title == "" {
		entry.Title = deriveTitle(messages)
	}

	sessions = append([]SessionInfo{entry}, kept...)
	if len(sessions) > MaxChatSessions {
		for _, evicted := range sessions[MaxChatSessions:] {
			s.cache.Delete(ctx, cache.ChatHistoryKey(userID, evicted.ID))
			s.logger.DebugContext(ctx, "Chat session evicted",
				log.FieldUserID, userID,
				log.FieldSessionID, evicted.ID)
		}
		sessions = sessions[:MaxChatSessions]
	}
	s.saveIndex(ctx, userID, sessions)

	return sessionID, nil
}

// ListSessions returns the user's sessions, most recently updated first.
// An expired or missing index is an empty list.
func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	return s.loadIndex(ctx, userID), nil
}

// GetSession returns a session's history. A session that expired or was
// evicted comes back empty, never as an error.
func (s *ChatService) GetSession(ctx context.Context, userID, sessionID string) ([]ChatMessage, error) {
	blob, ok := s.cache.Get(ctx, cache.ChatHistoryKey(userID, sessionID))
	if !ok {
		return []ChatMessage{}, nil
	}
	var messages []ChatMessage
	if err := json.Unmarshal(blob, &messages); err != nil {
		s.cache.Delete(ctx, cache.ChatHistoryKey(userID, sessionID))
		return []ChatMessage{}, nil
	}
	return messages, nil
}

// RenameSession updates a session's title without touching its position in
// the index. Renaming a session the index no longer holds is ErrNotFound.
func (s *ChatService) RenameSession(ctx context.Context, userID, sessionID, title string) error {
	sessions := s.loadIndex(ctx, userID)
	for i := range sessions {
		if sessions[i].ID == sessionID {
			sessions[i].Title = title
			s.saveIndex(ctx, userID, sessions)
			return nil
		}
	}
	return core.ErrNotFound
}

// DeleteSession removes a session from the index and drops its history.
// Deleting an unknown session succeeds.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	sessions := s.loadIndex(ctx, userID)
	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.ID != sessionID {
			kept = append(kept, sess)
		}
	}
	if len(kept) != len(sessions) {
		s.saveIndex(ctx, userID, kept)
	}
	s.cache.Delete(ctx, cache.ChatHistoryKey(userID, sessionID))
	return nil
}

func (s *ChatService) loadIndex(ctx context.Context, userID string) []SessionInfo {
	blob, ok := s.cache.Get(ctx, cache.ChatListKey(userID))
	if !ok {
		return []SessionInfo{}
	}
	var sessions []SessionInfo
	if err := json.Unmarshal(blob, &sessions); err != nil {
		s.cache.Delete(ctx, cache.ChatListKey(userID))
		return []SessionInfo{}
	}
	return sessions
}

func (s *ChatService) saveIndex(ctx context.Context, userID string, sessions []SessionInfo) {
	blob, err := json.Marshal(sessions)
	if err != nil {
		return
	}
	s.cache.Set(ctx, cache.ChatListKey(userID), blob, cache.TTLChat)
}

// deriveTitle takes the first message's content, trimmed to one line.
func deriveTitle(messages []ChatMessage) string {
	title := strings.TrimSpace(messages[0].Content)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > maxDerivedTitleLen {
		title = title[:maxDerivedTitleLen]
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}
