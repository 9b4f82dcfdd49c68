package core

import (
	"testing"
	"time"
)

// fourWayDinner is the canonical netting fixture: 100.00 paid by alice,
// split evenly four ways at 25.00 each.
func fourWayDinner() Expense {
	return Expense{
		ID:          "e1",
		PayerID:     "alice",
		GroupID:     "g1",
		Category:    "dining",
		Amount:      Money{Cents: 10000},
		Description: "dinner",
		Splits: []Split{
			{ExpenseID: "e1", UserID: "alice", Amount: Money{Cents: 2500}},
			{ExpenseID: "e1", UserID: "bob", Amount: Money{Cents: 2500}},
			{ExpenseID: "e1", UserID: "carol", Amount: Money{Cents: 2500}},
			{ExpenseID: "e1", UserID: "dave", Amount: Money{Cents: 2500}},
		},
	}
}

func TestBalancesForNetting(t *testing.T) {
	expenses := []Expense{fourWayDinner()}

	a := BalancesFor("alice", expenses)
	if a.OwedToYou.Cents != 7500 || a.YouOwe.Cents != 0 || a.Net.Cents != 7500 {
		t.Fatalf("alice: expected {0, 7500, 7500}, got %+v", a)
	}

	b := BalancesFor("bob", expenses)
	if b.OwedToYou.Cents != 0 || b.YouOwe.Cents != 2500 || b.Net.Cents != -2500 {
		t.Fatalf("bob: expected {2500, 0, -2500}, got %+v", b)
	}
}

func TestBalancesForAfterPayment(t *testing.T) {
	e := fourWayDinner()
	now := time.Now()
	e.Splits[1].Paid = true // bob settled
	e.Splits[1].PaidAt = &now
	expenses := []Expense{e}

	a := BalancesFor("alice", expenses)
	if a.OwedToYou.Cents != 5000 {
		t.Fatalf("alice owed 5000 after bob paid, got %d", a.OwedToYou.Cents)
	}
	b := BalancesFor("bob", expenses)
	if b.YouOwe.Cents != 0 || b.Net.Cents != 0 {
		t.Fatalf("bob should owe nothing after paying, got %+v", b)
	}
}

func TestBalancesForOutsider(t *testing.T) {
	got := BalancesFor("mallory", []Expense{fourWayDinner()})
	if got.YouOwe.Cents != 0 || got.OwedToYou.Cents != 0 || got.Net.Cents != 0 {
		t.Fatalf("non-participant should net zero, got %+v", got)
	}
}

func TestGroupBalances(t *testing.T) {
	expenses := []Expense{
		fourWayDinner(),
		{
			ID:      "e2",
			PayerID: "bob",
			GroupID: "g1",
			Amount:  Money{Cents: 3000},
			Splits: []Split{
				{UserID: "alice", Amount: Money{Cents: 1500}},
				{UserID: "bob", Amount: Money{Cents: 1500}},
			},
		},
	}

	balances := GroupBalances(expenses)
	if len(balances) != 4 {
		t.Fatalf("expected 4 users, got %d", len(balances))
	}
	if got := balances["alice"]; got.OwedToYou.Cents != 7500 || got.YouOwe.Cents != 1500 || got.Net.Cents != 6000 {
		t.Fatalf("alice: %+v", got)
	}
	if got := balances["bob"]; got.OwedToYou.Cents != 1500 || got.YouOwe.Cents != 2500 || got.Net.Cents != -1000 {
		t.Fatalf("bob: %+v", got)
	}
	if got := balances["carol"]; got.Net.Cents != -2500 {
		t.Fatalf("carol: %+v", got)
	}

	// Sum of nets over a closed group is always zero.
	var total int64
	for _, b := range balances {
		total += b.Net.Cents
	}
	if total != 0 {
		t.Fatalf("group nets should sum to zero, got %d", total)
	}
}

func TestSplitEvenly(t *testing.T) {
	t.Run("exact division", func(t *testing.T) {
		splits := SplitEvenly(Money{Cents: 10000}, []string{"a", "b", "c", "d"})
		for _, s := range splits {
			if s.Amount.Cents != 2500 {
				t.Fatalf("expected 2500 each, got %+v", splits)
			}
		}
	})

	t.Run("remainder goes to first users", func(t *testing.T) {
		splits := SplitEvenly(Money{Cents: 100}, []string{"a", "b", "c"})
		want := []int64{34, 33, 33}
		var sum int64
		for i, s := range splits {
			if s.Amount.Cents != want[i] {
				t.Fatalf("split %d: expected %d, got %d", i, want[i], s.Amount.Cents)
			}
			sum += s.Amount.Cents
		}
		if sum != 100 {
			t.Fatalf("shares must reconcile exactly, got %d", sum)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7"}
		first := SplitEvenly(Money{Cents: 9999}, users)
		for i := 0; i < 10; i++ {
			again := SplitEvenly(Money{Cents: 9999}, users)
			for j := range first {
				if first[j].Amount.Cents != again[j].Amount.Cents {
					t.Fatal("remainder distribution must be stable across calls")
				}
			}
		}
	})

	t.Run("no users", func(t *testing.T) {
		if splits := SplitEvenly(Money{Cents: 100}, nil); splits != nil {
			t.Fatalf("expected nil, got %v", splits)
		}
	})
}
