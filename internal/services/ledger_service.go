// Package services orchestrates ledger mutations with cache invalidation
// and event publishing, and owns the cache-only chat store.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/amqp"
	"splitledger/internal/cache"
	"splitledger/internal/core"
	"splitledger/internal/log"
)

// LedgerStore is the authoritative store the coordinator writes to.
// Satisfied by *storage.Repository.
type LedgerStore interface {
	CreateExpense(ctx context.Context, e *core.Expense) error
	Expense(ctx context.Context, id string) (*core.Expense, error)
	ExpensesForUser(ctx context.Context, userID string) ([]core.Expense, error)
	ExpensesForGroup(ctx context.Context, groupID string) ([]core.Expense, error)
	RecordPayment(ctx context.Context, expenseID, userID string, paidAt time.Time) error
	DeleteExpense(ctx context.Context, id string) (bool, error)
	CreateGroup(ctx context.Context, g *core.Group) error
	Group(ctx context.Context, id string) (*core.Group, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// EventPublisher publishes ledger mutation events after the durable write.
// Satisfied by *amqp.Client.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

// LedgerService is the write coordinator and the read side of the ledger.
//
// Every mutation follows write-then-invalidate: the durable write commits
// first, then the exact cache keys that could now be stale are deleted. A
// crash between the two leaves at most one stale entry until its TTL
// expires. Reads go through the cache and fall back to the store plus the
// balance engine on a miss; the cache is never authoritative.
type LedgerService struct {
	store     LedgerStore
	cache     *cache.Cache
	publisher EventPublisher // nil when no broker is configured
	logger    *log.Logger
}

func NewLedgerService(store LedgerStore, c *cache.Cache, publisher EventPublisher, logger *log.Logger) *LedgerService {
	return &LedgerService{
		store:     store,
		cache:     c,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
	}
}

// CreateExpense validates and durably writes a new expense with its splits,
// then invalidates derived cache entries and publishes an event. Returns
// the minted expense id.
func (s *LedgerService) CreateExpense(ctx context.Context, e *core.Expense) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	for i := range e.Splits {
		e.Splits[i].ExpenseID = e.ID
	}

	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.GroupID != "" {
		if err := s.requireMember(ctx, e.GroupID, e.PayerID); err != nil {
			return "", err
		}
	}

	if err := s.store.CreateExpense(ctx, e); err != nil {
		return "", fmt.Errorf("create expense: %w", err)
	}

	s.invalidateExpense(ctx, e)
	s.publish(ctx, amqp.EventExpenseCreated, e.ID, e.PayerID)

	s.logger.InfoContext(ctx, "Expense created",
		log.FieldExpenseID, e.ID,
		log.FieldUserID, e.PayerID,
		log.FieldGroupID, e.GroupID,
		log.FieldAmountCents, e.Amount.Cents)
	return e.ID, nil
}

// RecordPayment marks the split of targetUserID (or the acting user's own
// split when target is empty) as paid. Settling someone else's split is
// allowed only for the expense payer.
func (s *LedgerService) RecordPayment(ctx context.Context, expenseID, actingUserID, targetUserID string) error {
	target := targetUserID
	if target == "" {
		target = actingUserID
	}

	e, err := s.store.Expense(ctx, expenseID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrNotFound
		}
		return fmt.Errorf("load expense: %w", err)
	}
	if target != actingUserID && actingUserID != e.PayerID {
		return core.ErrAccessDenied
	}

	if err := s.store.RecordPayment(ctx, expenseID, target, time.Now().UTC()); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrNotFound
		}
		return fmt.Errorf("record payment: %w", err)
	}

	s.invalidateUsers(ctx, e.GroupID, e.PayerID, target)
	s.publish(ctx, amqp.EventPaymentRecorded, e.ID, target)

	s.logger.InfoContext(ctx, "Payment recorded",
		log.FieldExpenseID, expenseID,
		log.FieldUserID, target,
		log.FieldOperation, log.OpPayment)
	return nil
}

// DeleteExpense removes an expense and its splits. Returns false when the
// id did not exist; that is not an error.
func (s *LedgerService) DeleteExpense(ctx context.Context, expenseID string) (bool, error) {
	e, err := s.store.Expense(ctx, expenseID)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load expense: %w", err)
	}

	deleted, err := s.store.DeleteExpense(ctx, expenseID)
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	if !deleted {
		return false, nil
	}

	s.invalidateExpense(ctx, e)
	s.publish(ctx, amqp.EventExpenseDeleted, e.ID, e.PayerID)

	s.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, expenseID)
	return true, nil
}

// Balances returns the user's netted position, served from cache when
// possible. A cache outage only slows the call down.
func (s *LedgerService) Balances(ctx context.Context, userID string) (core.Balance, error) {
	key := cache.BalancesKey(userID)
	if blob, ok := s.cache.Get(ctx, key); ok {
		var b core.Balance
		if err := json.Unmarshal(blob, &b); err == nil {
			s.logger.DebugContext(ctx, "Balance cache hit", log.FieldUserID, userID)
			return b, nil
		}
		// Corrupt entry: drop it and recompute.
		s.cache.Delete(ctx, key)
	}

	expenses, err := s.store.ExpensesForUser(ctx, userID)
	if err != nil {
		return core.Balance{}, fmt.Errorf("load expenses: %w", err)
	}
	b := core.BalancesFor(userID, expenses)

	if blob, err := json.Marshal(b); err == nil {
		s.cache.Set(ctx, key, blob, cache.TTLMedium)
	}
	return b, nil
}

// ExpensesForUser lists the user's expenses newest first, read-through.
func (s *LedgerService) ExpensesForUser(ctx context.Context, userID string) ([]core.Expense, error) {
	key := cache.ExpensesKey(userID)
	if blob, ok := s.cache.Get(ctx, key); ok {
		var expenses []core.Expense
		if err := json.Unmarshal(blob, &expenses); err == nil {
			return expenses, nil
		}
		s.cache.Delete(ctx, key)
	}

	expenses, err := s.store.ExpensesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load expenses: %w", err)
	}
	if blob, err := json.Marshal(expenses); err == nil {
		s.cache.Set(ctx, key, blob, cache.TTLMedium)
	}
	return expenses, nil
}

// ExpensesForGroup lists a group's expenses for a member, read-through.
func (s *LedgerService) ExpensesForGroup(ctx context.Context, groupID, actingUserID string) ([]core.Expense, error) {
	if err := s.requireMember(ctx, groupID, actingUserID); err != nil {
		return nil, err
	}

	key := cache.GroupExpensesKey(groupID)
	if blob, ok := s.cache.Get(ctx, key); ok {
		var expenses []core.Expense
		if err := json.Unmarshal(blob, &expenses); err == nil {
			return expenses, nil
		}
		s.cache.Delete(ctx, key)
	}

	expenses, err := s.store.ExpensesForGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load group expenses: %w", err)
	}
	if blob, err := json.Marshal(expenses); err == nil {
		s.cache.Set(ctx, key, blob, cache.TTLMedium)
	}
	return expenses, nil
}

// GroupBalances returns the per-user breakdown for a group, read-through.
func (s *LedgerService) GroupBalances(ctx context.Context, groupID, actingUserID string) (map[string]core.Balance, error) {
	if err := s.requireMember(ctx, groupID, actingUserID); err != nil {
		return nil, err
	}

	key := cache.GroupBalancesKey(groupID)
	if blob, ok := s.cache.Get(ctx, key); ok {
		var balances map[string]core.Balance
		if err := json.Unmarshal(blob, &balances); err == nil {
			return balances, nil
		}
		s.cache.Delete(ctx, key)
	}

	expenses, err := s.store.ExpensesForGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("load group expenses: %w", err)
	}
	balances := core.GroupBalances(expenses)

	if blob, err := json.Marshal(balances); err == nil {
		s.cache.Set(ctx, key, blob, cache.TTLMedium)
	}
	return balances, nil
}

// CreateGroup durably creates a group. The creator is always a member,
// whether or not the caller listed them. Returns the minted group id.
func (s *LedgerService) CreateGroup(ctx context.Context, name, creatorID string, members []string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", core.ErrEmptyGroupName
	}
	if strings.TrimSpace(creatorID) == "" {
		return "", core.ErrEmptyPayer
	}

	g := &core.Group{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	seen := map[string]struct{}{creatorID: {}}
	g.Members = append(g.Members, creatorID)
	for _, m := range members {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		g.Members = append(g.Members, m)
	}

	if err := s.store.CreateGroup(ctx, g); err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}

	s.logger.InfoContext(ctx, "Group created",
		log.FieldGroupID, g.ID,
		log.FieldUserID, creatorID,
		"members", len(g.Members))
	return g.ID, nil
}

// Group returns a group with its members, for members only.
func (s *LedgerService) Group(ctx context.Context, groupID, actingUserID string) (*core.Group, error) {
	if err := s.requireMember(ctx, groupID, actingUserID); err != nil {
		return nil, err
	}
	g, err := s.store.Group(ctx, groupID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("load group: %w", err)
	}
	return g, nil
}

func (s *LedgerService) requireMember(ctx context.Context, groupID, userID string) error {
	ok, err := s.store.IsMember(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return core.ErrAccessDenied
	}
	return nil
}

// invalidateExpense deletes every cache key that could be stale after the
// given expense was created or removed: the payer's and each participant's
// balance and expense-list keys, plus the group keys when group-scoped.
func (s *LedgerService) invalidateExpense(ctx context.Context, e *core.Expense) {
	users := append([]string{e.PayerID}, e.Participants()...)
	s.invalidateUsers(ctx, e.GroupID, users...)
}

func (s *LedgerService) invalidateUsers(ctx context.Context, groupID string, users ...string) {
	seen := make(map[string]struct{}, len(users))
	for _, user := range users {
		if _, dup := seen[user]; dup {
			continue
		}
		seen[user] = struct{}{}
		s.cache.Delete(ctx, cache.BalancesKey(user))
		s.cache.Delete(ctx, cache.ExpensesKey(user))
	}
	if groupID != "" {
		s.cache.Delete(ctx, cache.GroupExpensesKey(groupID))
		s.cache.Delete(ctx, cache.GroupBalancesKey(groupID))
	}
}

// publish emits a ledger event after a durable commit. Failures are logged
// and dropped: export lag is acceptable, a failed mutation is not.
func (s *LedgerService) publish(ctx context.Context, eventType, expenseID, userID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(eventType, expenseID, userID)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventType, eventType,
			log.FieldExpenseID, expenseID,
			log.FieldError, err)
	}
}
