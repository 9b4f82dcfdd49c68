// Package storage is the authoritative ledger store: durable expenses,
// splits, and group membership backed by SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"splitledger/internal/core"

	_ "modernc.org/sqlite"
)

// Export states for the async spreadsheet export queue.
const (
	exportPending = 0
	exportDone    = 1
	exportError   = 2
)

// Repository is the SQLite-backed ledger store.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the database at dbPath, enables
// foreign keys, and runs migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable. Used as the readiness
// probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateExpense writes the expense row and all of its split rows in one
// transaction. Any failure aborts the whole creation: an expense is never
// observable without its splits.
func (r *Repository) CreateExpense(ctx context.Context, e *core.Expense) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var groupID any
	if e.GroupID != "" {
		groupID = e.GroupID
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, payer_id, group_id, category, amount_cents, description, created_at, export_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PayerID, groupID, e.Category, e.Amount.Cents, e.Description, e.CreatedAt.Unix(), exportPending,
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	for _, s := range e.Splits {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO splits (expense_id, user_id, amount_cents, paid, paid_at)
			 VALUES (?, ?, ?, 0, NULL)`,
			e.ID, s.UserID, s.Amount.Cents,
		)
		if err != nil {
			return fmt.Errorf("insert split for %s: %w", s.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit expense: %w", err)
	}
	return nil
}

// Expense returns one expense with its splits, or core.ErrNotFound.
func (r *Repository) Expense(ctx context.Context, id string) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, payer_id, COALESCE(group_id, ''), category, amount_cents, description, created_at
		 FROM expenses WHERE id = ?`, id)

	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}

	splits, err := r.splitsFor(ctx, []string{e.ID})
	if err != nil {
		return nil, err
	}
	e.Splits = splits[e.ID]
	return e, nil
}

// ExpensesForUser lists expenses the user paid or participates in, newest
// first, each with its splits attached.
func (r *Repository) ExpensesForUser(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT e.id, e.payer_id, COALESCE(e.group_id, ''), e.category, e.amount_cents, e.description, e.created_at
		 FROM expenses e
		 LEFT JOIN splits s ON s.expense_id = e.id
		 WHERE e.payer_id = ? OR s.user_id = ?
		 ORDER BY e.created_at DESC, e.id`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query user expenses: %w", err)
	}
	defer rows.Close()

	return r.collectExpenses(ctx, rows)
}

// ExpensesForGroup lists a group's expenses, newest first, with splits.
func (r *Repository) ExpensesForGroup(ctx context.Context, groupID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payer_id, COALESCE(group_id, ''), category, amount_cents, description, created_at
		 FROM expenses
		 WHERE group_id = ?
		 ORDER BY created_at DESC, id`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("query group expenses: %w", err)
	}
	defer rows.Close()

	return r.collectExpenses(ctx, rows)
}

// RecordPayment marks the split (expenseID, userID) paid. The guarded
// update makes the transition idempotent under concurrent retries: an
// already-paid split is left untouched, paid_at included, and the call
// still succeeds. Only a split that never existed is core.ErrNotFound.
func (r *Repository) RecordPayment(ctx context.Context, expenseID, userID string, paidAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE splits SET paid = 1, paid_at = ?
		 WHERE expense_id = ? AND user_id = ? AND paid = 0`,
		paidAt.Unix(), expenseID, userID)
	if err != nil {
		return fmt.Errorf("update split: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing updated: either already paid (idempotent success) or absent.
	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT 1 FROM splits WHERE expense_id = ? AND user_id = ?`,
		expenseID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check split: %w", err)
	}
	return nil
}

// DeleteExpense removes the expense; splits cascade. Returns false when
// the id did not exist, which is not an error.
func (r *Repository) DeleteExpense(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CreateGroup writes a group and its member list transactionally.
func (r *Repository) CreateGroup(ctx context.Context, g *core.Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_at) VALUES (?, ?, ?)`,
		g.ID, g.Name, g.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	for _, member := range g.Members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`,
			g.ID, member)
		if err != nil {
			return fmt.Errorf("insert member %s: %w", member, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group: %w", err)
	}
	return nil
}

// Group returns a group with its members, or core.ErrNotFound.
func (r *Repository) Group(ctx context.Context, id string) (*core.Group, error) {
	g := &core.Group{}
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	g.CreatedAt = time.Unix(createdAt, 0).UTC()

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id`, id)
	if err != nil {
		return nil, fmt.Errorf("get members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		g.Members = append(g.Members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return g, nil
}

// IsMember reports whether userID belongs to groupID.
func (r *Repository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

// PendingExportExpenses returns up to limit expenses not yet exported,
// oldest first so the export queue drains in creation order.
func (r *Repository) PendingExportExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payer_id, COALESCE(group_id, ''), category, amount_cents, description, created_at
		 FROM expenses
		 WHERE export_state = ?
		 ORDER BY created_at, id
		 LIMIT ?`,
		exportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending exports: %w", err)
	}
	defer rows.Close()

	return r.collectExpenses(ctx, rows)
}

// MarkExported records a successful export of the expense.
func (r *Repository) MarkExported(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_state = ? WHERE id = ?`, exportDone, id); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	return nil
}

// MarkExportError flags the expense so the reconcile loop stops retrying it.
func (r *Repository) MarkExportError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET export_state = ? WHERE id = ?`, exportError, id); err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*core.Expense, error) {
	e := &core.Expense{}
	var createdAt int64
	err := row.Scan(&e.ID, &e.PayerID, &e.GroupID, &e.Category, &e.Amount.Cents, &e.Description, &createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return e, nil
}

func (r *Repository) collectExpenses(ctx context.Context, rows *sql.Rows) ([]core.Expense, error) {
	var expenses []core.Expense
	var ids []string
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, *e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	splits, err := r.splitsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range expenses {
		expenses[i].Splits = splits[expenses[i].ID]
	}
	return expenses, nil
}

// splitsFor loads the splits for the given expense ids in one query.
func (r *Repository) splitsFor(ctx context.Context, expenseIDs []string) (map[string][]core.Split, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(expenseIDs)), ",")
	args := make([]any, len(expenseIDs))
	for i, id := range expenseIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT expense_id, user_id, amount_cents, paid, paid_at
		 FROM splits
		 WHERE expense_id IN (`+placeholders+`)
		 ORDER BY expense_id, user_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query splits: %w", err)
	}
	defer rows.Close()

	splits := make(map[string][]core.Split, len(expenseIDs))
	for rows.Next() {
		var s core.Split
		var paid int
		var paidAt sql.NullInt64
		if err := rows.Scan(&s.ExpenseID, &s.UserID, &s.Amount.Cents, &paid, &paidAt); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		s.Paid = paid != 0
		if paidAt.Valid {
			t := time.Unix(paidAt.Int64, 0).UTC()
			s.PaidAt = &t
		}
		splits[s.ExpenseID] = append(splits[s.ExpenseID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate splits: %w", err)
	}
	return splits, nil
}
