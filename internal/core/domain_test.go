package core

import (
	"errors"
	"testing"
)

func validExpense() Expense {
	return Expense{
		PayerID:     "alice",
		Category:    "groceries",
		Amount:      Money{Cents: 3000},
		Description: "weekly shop",
		Splits: []Split{
			{UserID: "alice", Amount: Money{Cents: 1000}},
			{UserID: "bob", Amount: Money{Cents: 1000}},
			{UserID: "carol", Amount: Money{Cents: 1000}},
		},
	}
}

func TestExpenseValidate(t *testing.T) {
	if err := validExpense().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	t.Run("empty payer", func(t *testing.T) {
		e := validExpense()
		e.PayerID = " "
		if err := e.Validate(); !errors.Is(err, ErrEmptyPayer) {
			t.Fatalf("expected ErrEmptyPayer, got %v", err)
		}
	})

	t.Run("zero amount", func(t *testing.T) {
		e := validExpense()
		e.Amount = Money{}
		if err := e.Validate(); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("no splits", func(t *testing.T) {
		e := validExpense()
		e.Splits = nil
		if err := e.Validate(); !errors.Is(err, ErrEmptySplits) {
			t.Fatalf("expected ErrEmptySplits, got %v", err)
		}
	})

	t.Run("split sum off by more than tolerance", func(t *testing.T) {
		e := validExpense()
		e.Splits[2].Amount.Cents = 1050
		if err := e.Validate(); !errors.Is(err, ErrSplitSumMismatch) {
			t.Fatalf("expected ErrSplitSumMismatch, got %v", err)
		}
	})

	t.Run("split sum within tolerance", func(t *testing.T) {
		e := validExpense()
		e.Splits[2].Amount.Cents = 1001
		if err := e.Validate(); err != nil {
			t.Fatalf("one cent off should pass, got %v", err)
		}
	})

	t.Run("negative split amount", func(t *testing.T) {
		e := validExpense()
		e.Splits[0].Amount.Cents = -1000
		if err := e.Validate(); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func TestIsValidation(t *testing.T) {
	for _, err := range []error{
		ErrInvalidAmount, ErrEmptyDescription, ErrEmptyCategory,
		ErrEmptyPayer, ErrEmptySplits, ErrSplitSumMismatch,
	} {
		if !IsValidation(err) {
			t.Fatalf("%v should be a validation error", err)
		}
	}
	if IsValidation(ErrNotFound) || IsValidation(ErrAccessDenied) {
		t.Fatal("not-found and access-denied are not validation errors")
	}
}

func TestExpenseSplitLookup(t *testing.T) {
	e := validExpense()
	if s := e.Split("bob"); s == nil || s.Amount.Cents != 1000 {
		t.Fatalf("expected bob's split, got %+v", s)
	}
	if s := e.Split("mallory"); s != nil {
		t.Fatalf("expected nil for non-participant, got %+v", s)
	}
	if got := e.Participants(); len(got) != 3 || got[0] != "alice" {
		t.Fatalf("unexpected participants %v", got)
	}
}
