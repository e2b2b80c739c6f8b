// Package importer is the import orchestrator: it accepts statement
// submissions, schedules background processing on a bounded worker pool and
// drives each job through the Pending -> Processing -> terminal state
// machine. Submission only validates, persists and enqueues; all work happens
// on a worker.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fjacquet/invoice-import/internal/categorizer"
	"fjacquet/invoice-import/internal/gate"
	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/parser"
	"fjacquet/invoice-import/internal/parsererror"
	"fjacquet/invoice-import/internal/reconciler"
	"fjacquet/invoice-import/internal/store"

	"github.com/google/uuid"
)

// FileStore is the upload persistence the orchestrator needs; implemented by
// filestore.Store and by in-memory fakes in tests.
type FileStore interface {
	Save(originalName string, data []byte) (string, error)
	Read(path string) ([]byte, error)
}

// Options configures the worker pool.
type Options struct {
	Workers       int
	QueueCapacity int
}

// DefaultOptions matches the documented pool sizing.
func DefaultOptions() Options {
	return Options{Workers: 3, QueueCapacity: 100}
}

// Orchestrator ties the pipeline together.
type Orchestrator struct {
	store       store.Store
	files       FileStore
	parser      parser.StatementParser
	reconciler  *reconciler.Engine
	categorizer *categorizer.Engine
	gate        *gate.Gate
	logger      logging.Logger

	opts  Options
	queue chan string

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// New creates an orchestrator. Start must be called before submissions are
// processed.
func New(st store.Store, files FileStore, sp parser.StatementParser, rec *reconciler.Engine, cat *categorizer.Engine, g *gate.Gate, logger logging.Logger, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultOptions().QueueCapacity
	}
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}
	return &Orchestrator{
		store:       st,
		files:       files,
		parser:      sp,
		reconciler:  rec,
		categorizer: cat,
		gate:        g,
		logger:      logger,
		opts:        opts,
		queue:       make(chan string, opts.QueueCapacity),
	}
}

// Start launches the worker pool. Workers exit when Stop is called or the
// context is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true

	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}
	o.logger.Info("Import workers started",
		logging.Field{Key: logging.FieldCount, Value: o.opts.Workers})
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	o.wg.Wait()
}

// Submit validates the target card, persists a Pending job with the stored
// upload and enqueues it. The call returns as soon as the job is queued;
// progress is observed by polling. A full queue is an explicit rejection:
// the job stays Pending in storage but is not scheduled.
func (o *Orchestrator) Submit(ctx context.Context, userID, cardID uint, originalName string, data []byte) (*models.ImportJob, error) {
	card, err := o.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, &parsererror.ValidationError{Field: "cardId", Reason: "card does not exist"}
	}
	if !card.BelongsTo(userID) {
		return nil, &parsererror.ValidationError{Field: "cardId", Reason: "card does not belong to the requesting user"}
	}

	storedPath, err := o.files.Save(originalName, data)
	if err != nil {
		return nil, &parsererror.StorageError{Operation: "store upload", Err: err}
	}

	job := &models.ImportJob{
		ID:               uuid.NewString(),
		UserID:           userID,
		CardID:           cardID,
		Status:           models.StatusPending,
		Source:           models.SourceFromFileName(originalName),
		OriginalFileName: originalName,
		StoredFilePath:   storedPath,
		ImportedAt:       time.Now(),
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	o.mu.Lock()
	stopped := o.stopped
	o.mu.Unlock()
	if stopped {
		return nil, &parsererror.QueueFullError{Capacity: o.opts.QueueCapacity}
	}

	select {
	case o.queue <- job.ID:
	default:
		o.logger.Warn("Import queue full, rejecting submission",
			logging.Field{Key: logging.FieldJobID, Value: job.ID})
		return nil, &parsererror.QueueFullError{Capacity: o.opts.QueueCapacity}
	}

	o.logger.Info("Import accepted",
		logging.Field{Key: logging.FieldJobID, Value: job.ID},
		logging.Field{Key: logging.FieldUserID, Value: userID},
		logging.Field{Key: logging.FieldSource, Value: job.Source})
	return job, nil
}

// Progress returns the job as seen by its owner; polling is a plain read of
// persisted state.
func (o *Orchestrator) Progress(ctx context.Context, userID uint, jobID string) (*models.ImportJob, error) {
	return o.store.GetJobForUser(ctx, jobID, userID)
}

// List returns the owner's jobs newest first, optionally filtered by status.
func (o *Orchestrator) List(ctx context.Context, userID uint, status *models.ImportStatus) ([]models.ImportJob, error) {
	return o.store.ListJobsForUser(ctx, userID, status)
}

// ResolveManualReview is the explicit way out of ManualReview: a human
// accepted the low-confidence parse, so the stored snapshot is reconciled
// and categorized now and the job completes.
func (o *Orchestrator) ResolveManualReview(ctx context.Context, userID uint, jobID string) (*models.ImportJob, error) {
	job, err := o.store.GetJobForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.StatusManualReview {
		return nil, &parsererror.StateError{From: string(job.Status), To: string(models.StatusCompleted)}
	}

	var statement parser.ParsedStatement
	if err := json.Unmarshal(job.ParsedData, &statement); err != nil {
		return nil, fmt.Errorf("stored parse snapshot is unreadable: %w", err)
	}

	yearMonth := periodOf(&statement)
	if job.YearMonth != nil {
		yearMonth = *job.YearMonth
	}

	result, err := o.reconciler.Reconcile(ctx, job.ID, job.CardID, yearMonth, &statement)
	if err != nil {
		return nil, err
	}
	if _, err := o.categorizer.CategorizeNewItems(ctx, job.UserID, result.NewItems); err != nil {
		return nil, err
	}

	if err := job.TransitionTo(models.StatusCompleted); err != nil {
		return nil, err
	}
	if result.ClaimedResult {
		invoiceID := result.Invoice.ID
		job.ResultInvoiceID = &invoiceID
	}
	now := time.Now()
	job.ProcessedAt = &now

	if err := o.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	o.logger.Info("Manual review resolved",
		logging.Field{Key: logging.FieldJobID, Value: job.ID},
		logging.Field{Key: logging.FieldInvoiceID, Value: result.Invoice.ID})
	return job, nil
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	log := o.logger.WithField("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case jobID, ok := <-o.queue:
			if !ok {
				return
			}
			o.process(ctx, jobID, log)
		}
	}
}

// process runs one job to a terminal state. Failures are recorded on the job;
// nothing escapes to the worker loop.
func (o *Orchestrator) process(ctx context.Context, jobID string, log logging.Logger) {
	claimed, err := o.store.MarkProcessing(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Could not mark job processing",
			logging.Field{Key: logging.FieldJobID, Value: jobID})
		return
	}
	if !claimed {
		// Someone else owns the job, or it is not pending anymore.
		return
	}

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Job vanished after claim",
			logging.Field{Key: logging.FieldJobID, Value: jobID})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while processing import",
				logging.Field{Key: logging.FieldJobID, Value: jobID},
				logging.Field{Key: logging.FieldReason, Value: fmt.Sprint(r)})
			o.markFailed(ctx, job, fmt.Errorf("unexpected error: %v", r))
		}
	}()

	data, err := o.files.Read(job.StoredFilePath)
	if err != nil {
		o.markFailed(ctx, job, err)
		return
	}

	statement, err := o.parser.Parse(ctx, data)
	if err != nil {
		o.markFailed(ctx, job, err)
		return
	}

	o.recordParseResult(job, statement)

	if !o.gate.ShouldFinalize(statement.Confidence) {
		o.finish(ctx, job, models.StatusManualReview, log)
		log.Info("Import routed to manual review",
			logging.Field{Key: logging.FieldJobID, Value: job.ID},
			logging.Field{Key: logging.FieldConfidence, Value: statement.Confidence})
		return
	}

	result, err := o.reconciler.Reconcile(ctx, job.ID, job.CardID, *job.YearMonth, statement)
	if err != nil {
		o.markFailed(ctx, job, err)
		return
	}
	if result.ClaimedResult {
		invoiceID := result.Invoice.ID
		job.ResultInvoiceID = &invoiceID
	}

	autoCategorized, err := o.categorizer.CategorizeNewItems(ctx, job.UserID, result.NewItems)
	if err != nil {
		o.markFailed(ctx, job, err)
		return
	}

	o.finish(ctx, job, models.StatusCompleted, log)
	log.Info("Import completed",
		logging.Field{Key: logging.FieldJobID, Value: job.ID},
		logging.Field{Key: logging.FieldInvoiceID, Value: result.Invoice.ID},
		logging.Field{Key: logging.FieldCount, Value: len(result.NewItems)},
		logging.Field{Key: logging.FieldSkipped, Value: result.SkippedDuplicates},
		logging.Field{Key: "auto_categorized", Value: autoCategorized})
}

// recordParseResult snapshots the parser output and the extracted summary
// fields on the job.
func (o *Orchestrator) recordParseResult(job *models.ImportJob, statement *parser.ParsedStatement) {
	if snapshot, err := json.Marshal(statement); err == nil {
		job.ParsedData = snapshot
	}

	job.TotalAmount = statement.TotalAmount
	job.DueDate = statement.DueDate
	if statement.BankName != "" {
		bank := statement.BankName
		job.BankName = &bank
	}
	if statement.CardLastFour != "" {
		lastFour := statement.CardLastFour
		job.CardLastFourDigits = &lastFour
	}

	yearMonth := periodOf(statement)
	job.YearMonth = &yearMonth
}

func (o *Orchestrator) finish(ctx context.Context, job *models.ImportJob, status models.ImportStatus, log logging.Logger) {
	if err := job.TransitionTo(status); err != nil {
		log.WithError(err).Error("Illegal job transition",
			logging.Field{Key: logging.FieldJobID, Value: job.ID})
		return
	}
	now := time.Now()
	job.ProcessedAt = &now

	if err := o.store.UpdateJob(ctx, job); err != nil {
		log.WithError(err).Error("Could not persist job state",
			logging.Field{Key: logging.FieldJobID, Value: job.ID},
			logging.Field{Key: logging.FieldStatus, Value: status})
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, job *models.ImportJob, cause error) {
	msg := cause.Error()
	job.ErrorMessage = &msg

	o.logger.WithError(cause).Error("Import failed",
		logging.Field{Key: logging.FieldJobID, Value: job.ID})
	o.finish(ctx, job, models.StatusFailed, o.logger)
}

// periodOf derives the billing period of a statement: the month of the due
// date when the parser extracted one, otherwise the current month.
func periodOf(statement *parser.ParsedStatement) string {
	if statement.DueDate != nil {
		return models.YearMonthOf(*statement.DueDate)
	}
	return models.YearMonthOf(time.Now())
}
