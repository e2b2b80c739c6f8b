// Package reconciler merges parsed transaction lines into the billing period
// for a card and month without creating duplicates. Dedup is by content
// signature, recomputed from the stored lines at merge time; re-importing an
// identical statement creates nothing and leaves the total unchanged.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/parser"
	"fjacquet/invoice-import/internal/signature"
	"fjacquet/invoice-import/internal/store"
)

// Engine reconciles parsed statements against stored billing periods.
type Engine struct {
	store  store.Store
	logger logging.Logger

	// Per-(card, month) locks serialize concurrent imports targeting the
	// same billing period; the storage unique index is the backstop.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Result describes what one reconciliation run did.
type Result struct {
	Invoice *models.Invoice

	// NewItems are the lines created by this run, in statement order.
	NewItems []*models.InvoiceItem

	// SkippedDuplicates counts candidates whose signature already existed.
	SkippedDuplicates int

	// ClaimedResult reports whether this job now holds the invoice's result
	// reference. A run that lost the claim still completed successfully.
	ClaimedResult bool
}

// New creates a reconciliation engine.
func New(st store.Store, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}
	return &Engine{
		store:  st,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Reconcile merges the parsed lines into the billing period for
// (cardID, yearMonth), creating the period if absent, and then attempts to
// record jobID as the period's result reference. Losing that claim to an
// earlier job is silent.
func (e *Engine) Reconcile(ctx context.Context, jobID string, cardID uint, yearMonth string, statement *parser.ParsedStatement) (*Result, error) {
	unlock := e.lock(cardID, yearMonth)
	defer unlock()

	dueDate := dueDateFor(statement, yearMonth)
	invoice, created, err := e.store.FindOrCreateInvoice(ctx, cardID, yearMonth, dueDate)
	if err != nil {
		return nil, err
	}
	if created {
		e.logger.Info("Created billing period",
			logging.Field{Key: logging.FieldCardID, Value: cardID},
			logging.Field{Key: logging.FieldYearMonth, Value: yearMonth})
	}

	existing, err := e.store.ListInvoiceItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}

	// Signatures are recomputed from stored lines every run rather than
	// cached, so dedup always reflects the current contents of the period.
	seen := make(map[string]struct{}, len(existing))
	for _, item := range existing {
		seen[signature.Compute(item.Description, item.Amount, item.PurchaseDate, item.InstallmentIndex, item.InstallmentTotal)] = struct{}{}
	}

	result := &Result{Invoice: invoice}
	for _, line := range statement.Lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sig := signature.Compute(line.Description, line.Amount, line.PurchaseDate, line.InstallmentIndex, line.InstallmentTotal)
		if _, dup := seen[sig]; dup {
			result.SkippedDuplicates++
			continue
		}

		item := &models.InvoiceItem{
			InvoiceID:        invoice.ID,
			Description:      line.Description,
			Amount:           line.Amount,
			PurchaseDate:     line.PurchaseDate,
			InstallmentIndex: line.InstallmentIndex,
			InstallmentTotal: line.InstallmentTotal,
		}
		if err := e.store.CreateInvoiceItem(ctx, item); err != nil {
			return nil, err
		}
		seen[sig] = struct{}{}
		result.NewItems = append(result.NewItems, item)
	}

	if len(result.NewItems) > 0 {
		total, err := e.recomputeTotal(ctx, invoice.ID)
		if err != nil {
			return nil, err
		}
		invoice.Total = total
	}

	claimed, err := e.store.ClaimInvoiceResult(ctx, jobID, invoice.ID)
	if err != nil {
		return nil, err
	}
	result.ClaimedResult = claimed

	e.logger.Info("Reconciled statement",
		logging.Field{Key: logging.FieldInvoiceID, Value: invoice.ID},
		logging.Field{Key: logging.FieldCount, Value: len(result.NewItems)},
		logging.Field{Key: logging.FieldSkipped, Value: result.SkippedDuplicates})
	return result, nil
}

func (e *Engine) recomputeTotal(ctx context.Context, invoiceID uint) (decimal.Decimal, error) {
	items, err := e.store.ListInvoiceItems(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total, e.store.UpdateInvoiceTotal(ctx, invoiceID, total)
}

func (e *Engine) lock(cardID uint, yearMonth string) func() {
	key := fmt.Sprintf("%d/%s", cardID, yearMonth)
	e.mu.Lock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// dueDateFor picks the due date for a new billing period: the parsed date if
// present, otherwise the 10th of the month after the statement month.
func dueDateFor(statement *parser.ParsedStatement, yearMonth string) time.Time {
	if statement.DueDate != nil {
		return *statement.DueDate
	}
	month, err := time.Parse("2006-01", yearMonth)
	if err != nil {
		month = time.Now()
	}
	return time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 9)
}
