package core

// Balance is a user's netted position derived from unpaid splits.
// Net = OwedToYou - YouOwe; positive means the user is owed money.
type Balance struct {
	YouOwe    Money
	OwedToYou Money
	Net       Money
}

// BalancesFor nets a user's position over the given expenses.
//
// OwedToYou sums the unpaid splits of other users on expenses this user
// paid. YouOwe sums this user's own unpaid splits on expenses paid by
// someone else. A payer's own split never counts either way.
func BalancesFor(userID string, expenses []Expense) Balance {
	var owedToYou, youOwe int64
	for _, e := range expenses {
		if e.PayerID == userID {
			for _, s := range e.Splits {
				if s.UserID != userID && !s.Paid {
					owedToYou += s.Amount.Cents
				}
			}
			continue
		}
		if s := e.Split(userID); s != nil && !s.Paid {
			youOwe += s.Amount.Cents
		}
	}
	return Balance{
		YouOwe:    Money{Cents: youOwe},
		OwedToYou: Money{Cents: owedToYou},
		Net:       Money{Cents: owedToYou - youOwe},
	}
}

// GroupBalances computes the per-user breakdown over a group's expenses
// using the same netting rule as BalancesFor.
func GroupBalances(expenses []Expense) map[string]Balance {
	var owed = make(map[string]int64)
	var owes = make(map[string]int64)
	for _, e := range expenses {
		for _, s := range e.Splits {
			if s.UserID == e.PayerID || s.Paid {
				continue
			}
			owed[e.PayerID] += s.Amount.Cents
			owes[s.UserID] += s.Amount.Cents
		}
	}
	balances := make(map[string]Balance, len(owed)+len(owes))
	for user := range owed {
		balances[user] = Balance{}
	}
	for user := range owes {
		balances[user] = Balance{}
	}
	for user := range balances {
		balances[user] = Balance{
			YouOwe:    Money{Cents: owes[user]},
			OwedToYou: Money{Cents: owed[user]},
			Net:       Money{Cents: owed[user] - owes[user]},
		}
	}
	return balances
}

// SplitEvenly divides amount among the given users, distributing any
// remainder cents to the first users in input order so the shares always
// sum exactly to the amount.
func SplitEvenly(amount Money, userIDs []string) []Split {
	n := int64(len(userIDs))
	if n == 0 {
		return nil
	}
	base := amount.Cents / n
	extra := amount.Cents % n
	splits := make([]Split, len(userIDs))
	for i, id := range userIDs {
		cents := base
		if int64(i) < extra {
			cents++
		}
		splits[i] = Split{UserID: id, Amount: Money{Cents: cents}}
	}
	return splits
}
