// Package export defines the outbound port for pushing committed expenses
// to an external spreadsheet.
package export

import (
	"context"

	"splitledger/internal/core"
)

// ExpenseAppender appends one expense as a row in the export target.
type ExpenseAppender interface {
	Append(ctx context.Context, e core.Expense) error
}
