// Package store defines the persistence boundary of the import pipeline and
// its gorm-backed implementation. Engines depend on the Store interface;
// tests use the in-memory MockStore.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/invoice-import/internal/models"
)

// Store is the persistence contract for the pipeline. Every read of related
// data is an explicit call; nothing is lazily fetched behind field access.
type Store interface {
	// GetCard returns the card or a NotFoundError.
	GetCard(ctx context.Context, id uint) (*models.Card, error)

	// CreateJob persists a freshly submitted job.
	CreateJob(ctx context.Context, job *models.ImportJob) error

	// GetJob returns the job or a NotFoundError.
	GetJob(ctx context.Context, id string) (*models.ImportJob, error)

	// GetJobForUser returns the job if it belongs to userID; a job owned by
	// someone else is reported as not found.
	GetJobForUser(ctx context.Context, id string, userID uint) (*models.ImportJob, error)

	// ListJobsForUser returns the user's jobs newest first, optionally
	// filtered by status.
	ListJobsForUser(ctx context.Context, userID uint, status *models.ImportStatus) ([]models.ImportJob, error)

	// MarkProcessing atomically moves a job from pending to processing.
	// It returns false when the job was not pending, which is how double
	// dequeues lose the race.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// UpdateJob persists the job's mutable fields.
	UpdateJob(ctx context.Context, job *models.ImportJob) error

	// ClaimInvoiceResult records jobID as the result reference for the
	// invoice unless another job already holds it. Returns whether the claim
	// succeeded; losing the claim is not an error.
	ClaimInvoiceResult(ctx context.Context, jobID string, invoiceID uint) (bool, error)

	// FindOrCreateInvoice returns the billing period for (card, yearMonth),
	// creating it with a zero total when absent. The bool reports creation.
	FindOrCreateInvoice(ctx context.Context, cardID uint, yearMonth string, dueDate time.Time) (*models.Invoice, bool, error)

	// GetInvoiceByCardMonth returns the billing period or a NotFoundError.
	GetInvoiceByCardMonth(ctx context.Context, cardID uint, yearMonth string) (*models.Invoice, error)

	// UpdateInvoiceTotal sets the accumulated total of a billing period.
	UpdateInvoiceTotal(ctx context.Context, invoiceID uint, total decimal.Decimal) error

	// ListInvoiceItems returns all lines of a billing period.
	ListInvoiceItems(ctx context.Context, invoiceID uint) ([]models.InvoiceItem, error)

	// CreateInvoiceItem persists a new transaction line.
	CreateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error

	// UpdateInvoiceItem persists category changes on a line.
	UpdateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error

	// ListRulesForUser returns all merchant rules owned by the user.
	ListRulesForUser(ctx context.Context, userID uint) ([]models.MerchantRule, error)

	// ConfirmRule increments the confirmation count of the user's rule for
	// the pattern, creating the rule on first confirmation.
	ConfirmRule(ctx context.Context, userID uint, pattern, category string) (*models.MerchantRule, error)
}
