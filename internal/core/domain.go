package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyPayer       = errors.New("empty payer id")
	ErrEmptySplits      = errors.New("expense has no splits")
	ErrEmptySplitUser   = errors.New("split with empty user id")
	ErrLongDescription  = errors.New("description too long (max 200 characters)")
	ErrSplitSumMismatch = errors.New("split amounts do not reconcile with expense amount")
	ErrEmptyGroupName   = errors.New("empty group name")
	ErrNotFound         = errors.New("not found")
	ErrAccessDenied     = errors.New("access denied")
)

// IsValidation reports whether err belongs to the validation class:
// malformed or incomplete input that was rejected before any write.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrEmptyDescription) ||
		errors.Is(err, ErrEmptyCategory) ||
		errors.Is(err, ErrEmptyPayer) ||
		errors.Is(err, ErrEmptySplits) ||
		errors.Is(err, ErrEmptySplitUser) ||
		errors.Is(err, ErrLongDescription) ||
		errors.Is(err, ErrSplitSumMismatch) ||
		errors.Is(err, ErrEmptyGroupName)
}

type (
	// Expense is an immutable ledger entry. Once created it only ever
	// changes by deletion, which cascades to its splits.
	Expense struct {
		ID          string
		PayerID     string
		GroupID     string // empty for personal expenses
		Category    string
		Amount      Money
		Description string
		CreatedAt   time.Time
		Splits      []Split
	}

	// Split is one participant's owed share of an expense. Paid moves
	// false->true exactly once; there is no unpay operation.
	Split struct {
		ExpenseID string
		UserID    string
		Amount    Money
		Paid      bool
		PaidAt    *time.Time
	}

	// Group is a set of user ids that can own expenses. User accounts
	// themselves are external; only ids are referenced here.
	Group struct {
		ID        string
		Name      string
		Members   []string
		CreatedAt time.Time
	}
)

// Validate checks the expense and its splits before any write. A failure
// here must leave no rows behind, so it runs ahead of the storage layer.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.PayerID) == "" {
		return ErrEmptyPayer
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrLongDescription
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Splits) == 0 {
		return ErrEmptySplits
	}
	var sum int64
	for _, s := range e.Splits {
		if strings.TrimSpace(s.UserID) == "" {
			return ErrEmptySplitUser
		}
		if s.Amount.Cents <= 0 {
			return ErrInvalidAmount
		}
		sum += s.Amount.Cents
	}
	diff := sum - e.Amount.Cents
	if diff < 0 {
		diff = -diff
	}
	if diff > SplitToleranceCents {
		return ErrSplitSumMismatch
	}
	return nil
}

// Split returns the split belonging to userID, or nil if the user does not
// participate in the expense.
func (e Expense) Split(userID string) *Split {
	for i := range e.Splits {
		if e.Splits[i].UserID == userID {
			return &e.Splits[i]
		}
	}
	return nil
}

// Participants returns the user ids of all splits, in split order.
func (e Expense) Participants() []string {
	ids := make([]string, len(e.Splits))
	for i, s := range e.Splits {
		ids[i] = s.UserID
	}
	return ids
}
