// Package worker drives the background export of committed expenses to the
// configured spreadsheet. Events arriving over AMQP trigger prompt exports;
// a periodic sweep over rows still marked pending catches anything the
// broker lost.
package worker

import (
	"context"
	"errors"
	"fmt"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/export"
	"splitledger/internal/log"
)

// ExportStore is the slice of the repository the worker needs. Satisfied by
// *storage.Repository.
type ExportStore interface {
	Expense(ctx context.Context, id string) (*core.Expense, error)
	PendingExportExpenses(ctx context.Context, limit int) ([]core.Expense, error)
	MarkExported(ctx context.Context, id string) error
	MarkExportError(ctx context.Context, id string) error
}

type ExportWorker struct {
	store     ExportStore
	appender  export.ExpenseAppender
	batchSize int
	logger    *log.Logger
}

func NewExportWorker(store ExportStore, appender export.ExpenseAppender, batchSize int, logger *log.Logger) *ExportWorker {
	return &ExportWorker{
		store:     store,
		appender:  appender,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerEvent processes one event from the queue. Only creations
// carry export work; deletions and payments are acknowledged as-is since
// the export target is append-only.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		log.FieldEventType, event.Type,
		log.FieldExpenseID, event.ExpenseID)

	if event.Type != amqp.EventExpenseCreated {
		return nil
	}

	e, err := w.store.Expense(ctx, event.ExpenseID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before the event was consumed; nothing to export.
			w.logger.WarnContext(ctx, "Expense gone before export", log.FieldExpenseID, event.ExpenseID)
			return nil
		}
		return fmt.Errorf("load expense: %w", err)
	}

	return w.exportExpense(ctx, e)
}

// ProcessPendingExpenses exports rows still marked pending, oldest first.
// This is the backup path for lost or never-published events.
func (w *ExportWorker) ProcessPendingExpenses(ctx context.Context) error {
	pending, err := w.store.PendingExportExpenses(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("load pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "Processing pending expenses", "count", len(pending))

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.exportExpense(ctx, &pending[i]); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export expense",
				log.FieldExpenseID, pending[i].ID,
				log.FieldError, err)
			if err := w.store.MarkExportError(ctx, pending[i].ID); err != nil {
				w.logger.ErrorContext(ctx, "Failed to mark export error",
					log.FieldExpenseID, pending[i].ID,
					log.FieldError, err)
			}
		}
	}
	return nil
}

func (w *ExportWorker) exportExpense(ctx context.Context, e *core.Expense) error {
	if err := w.appender.Append(ctx, *e); err != nil {
		return fmt.Errorf("append expense: %w", err)
	}
	if err := w.store.MarkExported(ctx, e.ID); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	w.logger.InfoContext(ctx, "Expense exported",
		log.FieldExpenseID, e.ID,
		log.FieldOperation, log.OpExport)
	return nil
}
