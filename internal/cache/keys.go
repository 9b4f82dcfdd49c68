package cache

// Key builders for the flat keyspace. There is no secondary index over
// these names, so every invalidation site must enumerate the exact keys it
// wants gone; pattern deletion is not part of the contract.

func BalancesKey(userID string) string {
	return "balances:" + userID
}

func ExpensesKey(userID string) string {
	return "expenses:" + userID
}

func GroupExpensesKey(groupID string) string {
	return "group_expenses:" + groupID
}

func GroupBalancesKey(groupID string) string {
	return "group_balances:" + groupID
}

func ChatListKey(userID string) string {
	return "chat_list:" + userID
}

func ChatHistoryKey(userID, sessionID string) string {
	return "chat_history:" + userID + ":" + sessionID
}
