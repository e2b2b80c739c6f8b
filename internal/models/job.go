package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/invoice-import/internal/parsererror"
)

// ImportStatus is the state of an import job. Transitions are monotonic and
// validated by TransitionTo; a job never leaves a terminal state except for
// the explicit manual-review resolution.
type ImportStatus string

const (
	StatusPending      ImportStatus = "pending"
	StatusProcessing   ImportStatus = "processing"
	StatusCompleted    ImportStatus = "completed"
	StatusFailed       ImportStatus = "failed"
	StatusManualReview ImportStatus = "manual_review"
)

// SourceKind describes where a submitted document came from.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourceImage    SourceKind = "image"
	SourceMessage  SourceKind = "message"
	SourceManual   SourceKind = "manual"
)

// importTransitions lists the legal moves of the job state machine.
// manual_review -> completed is the explicit resolution action; nothing else
// leaves a terminal state.
var importTransitions = map[ImportStatus][]ImportStatus{
	StatusPending:      {StatusProcessing},
	StatusProcessing:   {StatusCompleted, StatusFailed, StatusManualReview},
	StatusManualReview: {StatusCompleted},
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s ImportStatus) CanTransitionTo(target ImportStatus) bool {
	for _, allowed := range importTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends processing. ManualReview is
// terminal for the worker even though a resolution action can still move it.
func (s ImportStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusManualReview
}

// ImportJob is one submitted statement document. It is created on submission
// and mutated only by the orchestrator or the worker that owns it.
type ImportJob struct {
	ID     string `gorm:"primaryKey"`
	UserID uint   `gorm:"index"`
	CardID uint

	Status ImportStatus `gorm:"index"`
	Source SourceKind

	OriginalFileName string
	StoredFilePath   string

	// Snapshot of the parser output as JSON, kept for audit and manual review.
	ParsedData []byte `gorm:"type:jsonb"`

	ErrorMessage *string

	// Summary fields extracted by the parser; nil until parsing succeeds.
	TotalAmount        *decimal.Decimal `gorm:"type:numeric"`
	DueDate            *time.Time
	BankName           *string
	CardLastFourDigits *string

	// YearMonth of the billing period the job merged into, recorded so a
	// manual-review resolution can find the invoice again.
	YearMonth *string

	// ResultInvoiceID is the claimed billing-period result reference. At most
	// one job may hold it for a given invoice; it is set only through
	// Store.ClaimInvoiceResult.
	ResultInvoiceID *uint

	ImportedAt  time.Time
	ProcessedAt *time.Time
}

// TransitionTo validates and applies a status change.
func (j *ImportJob) TransitionTo(target ImportStatus) error {
	if !j.Status.CanTransitionTo(target) {
		return &parsererror.StateError{From: string(j.Status), To: string(target)}
	}
	j.Status = target
	return nil
}

// RequiresManualReview reports whether the job is waiting on a human.
func (j *ImportJob) RequiresManualReview() bool {
	return j.Status == StatusManualReview
}

// StatusMessage returns a short human-readable description of the job state
// for the progress query.
func (j *ImportJob) StatusMessage() string {
	switch j.Status {
	case StatusPending:
		return "Import queued for processing"
	case StatusProcessing:
		return "Import is being processed"
	case StatusCompleted:
		return "Import completed"
	case StatusFailed:
		if j.ErrorMessage != nil {
			return "Import failed: " + *j.ErrorMessage
		}
		return "Import failed"
	case StatusManualReview:
		return "Import requires manual review"
	}
	return string(j.Status)
}

// SourceFromFileName infers the source kind of an upload from its extension.
func SourceFromFileName(name string) SourceKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp":
		return SourceImage
	case ".txt", ".eml", ".msg":
		return SourceMessage
	default:
		return SourceDocument
	}
}
