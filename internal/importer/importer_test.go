package importer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/invoice-import/internal/categorizer"
	"fjacquet/invoice-import/internal/gate"
	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/parser"
	"fjacquet/invoice-import/internal/parsererror"
	"fjacquet/invoice-import/internal/reconciler"
	"fjacquet/invoice-import/internal/store"
)

// memFiles is an in-memory FileStore for tests.
type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
	n     int
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string][]byte)}
}

func (m *memFiles) Save(originalName string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	path := fmt.Sprintf("mem://%d", m.n)
	m.files[path] = data
	return path, nil
}

func (m *memFiles) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("no such stored file: %s", path)
	}
	return data, nil
}

func goodStatement() *parser.ParsedStatement {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	total := decimal.RequireFromString("605.65")
	return &parser.ParsedStatement{
		BankName:     "Acme Bank",
		CardLastFour: "4242",
		DueDate:      &due,
		TotalAmount:  &total,
		Lines: []parser.ParsedLine{
			{Description: "AMAZON PURCHASE", Amount: decimal.RequireFromString("99.90"), PurchaseDate: date},
			{Description: "iPhone", Amount: decimal.RequireFromString("500.00"), PurchaseDate: date, InstallmentIndex: 1, InstallmentTotal: 12},
			{Description: "NETFLIX.COM 01/24", Amount: decimal.RequireFromString("5.75"), PurchaseDate: date},
		},
		Confidence: 0.95,
	}
}

type fixture struct {
	store        *store.MockStore
	files        *memFiles
	parser       *parser.MockParser
	orchestrator *Orchestrator
}

func newFixture(t *testing.T, p *parser.MockParser, opts Options) *fixture {
	t.Helper()
	st := store.NewMockStore()
	card := models.Card{UserID: 1, LastFour: "4242"}
	card.ID = 7
	st.AddCard(card)
	other := models.Card{UserID: 2, LastFour: "1111"}
	other.ID = 8
	st.AddCard(other)

	log := logging.NewMockLogger()
	files := newMemFiles()
	rec := reconciler.New(st, log)
	cat := categorizer.New(st, log, models.DefaultAutoApplyThreshold, nil)
	o := New(st, files, p, rec, cat, gate.New(gate.DefaultThreshold), log, opts)

	return &fixture{store: st, files: files, parser: p, orchestrator: o}
}

func waitForTerminal(t *testing.T, st *store.MockStore, jobID string) *models.ImportJob {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("job %s never reached a terminal state", jobID)
		case <-time.After(5 * time.Millisecond):
		}
		job, err := st.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status.IsTerminal() {
			return job
		}
	}
}

func TestSubmitRejectsUnknownCard(t *testing.T) {
	f := newFixture(t, &parser.MockParser{Statement: goodStatement()}, DefaultOptions())

	_, err := f.orchestrator.Submit(context.Background(), 1, 999, "statement.csv", []byte("data"))
	require.Error(t, err)

	var vErr *parsererror.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestSubmitRejectsForeignCard(t *testing.T) {
	f := newFixture(t, &parser.MockParser{Statement: goodStatement()}, DefaultOptions())

	_, err := f.orchestrator.Submit(context.Background(), 1, 8, "statement.csv", []byte("data"))
	require.Error(t, err)

	var vErr *parsererror.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestImportRunsToCompletion(t *testing.T) {
	f := newFixture(t, &parser.MockParser{Statement: goodStatement()}, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orchestrator.Start(ctx)
	defer f.orchestrator.Stop()

	job, err := f.orchestrator.Submit(ctx, 1, 7, "statement.csv", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, models.SourceDocument, job.Source)

	done := waitForTerminal(t, f.store, job.ID)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.ProcessedAt)
	require.NotNil(t, done.ResultInvoiceID)
	require.NotNil(t, done.TotalAmount)
	assert.Equal(t, "605.65", done.TotalAmount.StringFixed(2))
	require.NotNil(t, done.BankName)
	assert.Equal(t, "Acme Bank", *done.BankName)
	require.NotNil(t, done.CardLastFourDigits)
	assert.Equal(t, "4242", *done.CardLastFourDigits)
	require.NotNil(t, done.YearMonth)
	assert.Equal(t, "2024-02", *done.YearMonth)
	assert.NotEmpty(t, done.ParsedData)

	items, err := f.store.ListInvoiceItems(ctx, *done.ResultInvoiceID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestAutoCategorizationDuringImport(t *testing.T) {
	f := newFixture(t, &parser.MockParser{Statement: goodStatement()}, DefaultOptions())
	f.store.SeedRule(models.MerchantRule{
		UserID:            1,
		Pattern:           "netflix",
		Category:          "Streaming",
		ConfirmationCount: 3,
		LastConfirmedAt:   time.Now(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orchestrator.Start(ctx)
	defer f.orchestrator.Stop()

	job, err := f.orchestrator.Submit(ctx, 1, 7, "statement.csv", []byte("data"))
	require.NoError(t, err)
	done := waitForTerminal(t, f.store, job.ID)
	require.Equal(t, models.StatusCompleted, done.Status)

	items, err := f.store.ListInvoiceItems(ctx, *done.ResultInvoiceID)
	require.NoError(t, err)

	var netflix *models.InvoiceItem
	for i := range items {
		if items[i].Description == "NETFLIX.COM 01/24" {
			netflix = &items[i]
		}
	}
	require.NotNil(t, netflix)
	assert.Equal(t, "Streaming", netflix.Category)
	assert.Equal(t, models.CategorySourceAutoRule, netflix.CategorySource)
	require.NotNil(t, netflix.RuleID)
}

func TestLowConfidenceGoesToManualReview(t *testing.T) {
	low := goodStatement()
	low.Confidence = 0.5
	f := newFixture(t, &parser.MockParser{Statement: low}, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orchestrator.Start(ctx)
	defer f.orchestrator.Stop()

	job, err := f.orchestrator.Submit(ctx, 1, 7, "statement.csv", []byte("data"))
	require.NoError(t, err)
	done := waitForTerminal(t, f.store, job.ID)

	assert.Equal(t, models.StatusManualReview, done.Status)
	assert.True(t, done.RequiresManualReview())
	assert.Nil(t, done.ResultInvoiceID)
	require.NotNil(t, done.ProcessedAt)
	require.NotNil(t, done.TotalAmount, "summary fields are recorded even for manual review")
	assert.Equal(t, 0, f.store.InvoiceCount(), "no billing period is touched until review is resolved")
}

func TestResolveManualReviewCompletesJob(t *testing.T) {
	low := goodStatement()
	low.Confidence = 0.5
	f := newFixture(t, &parser.MockParser{Statement: low}, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orchestrator.Start(ctx)
	defer f.orchestrator.Stop()

	job, err := f.orchestrator.Submit(ctx, 1, 7, "statement.csv", []byte("data"))
	require.NoError(t, err)
	waitForTerminal(t, f.store, job.ID)

	resolved, err := f.orchestrator.ResolveManualReview(ctx, 1, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, resolved.Status)
	require.NotNil(t, resolved.ResultInvoiceID)

	items, err := f.store.ListInvoiceItems(ctx, *resolved.ResultInvoiceID)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	// Resolving twice is rejected by the state machine.
	_, err = f.orchestrator.ResolveManualReview(ctx, 1, job.ID)
	var sErr *parsererror.StateError
	assert.ErrorAs(t, err, &sErr)
}

func TestParseFailureDoesNotAffectOtherJobs(t *testing.T) {
	p := &parser.MockParser{
		StatementFor: map[string]*parser.ParsedStatement{"good": goodStatement()},
		ErrFor: map[string]error{
			"bad": &parsererror.ParseError{Parser: "mock", Reason: "unreadable document"},
		},
	}
	f := newFixture(t, p, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orchestrator.Start(ctx)
	defer f.orchestrator.Stop()

	badJob, err := f.orchestrator.Submit(ctx, 1, 7, "bad.csv", []byte("bad"))
	require.NoError(t, err)
	goodJob, err := f.orchestrator.Submit(ctx, 2, 8, "good.csv", []byte("good"))
	require.NoError(t, err)

	badDone := waitForTerminal(t, f.store, badJob.ID)
	goodDone := waitForTerminal(t, f.store, goodJob.ID)

	assert.Equal(t, models.StatusFailed, badDone.Status)
	require.NotNil(t, badDone.ErrorMessage)
	assert.Contains(t, *badDone.ErrorMessage, "unreadable document")

	assert.Equal(t, models.StatusCompleted, goodDone.Status)
}

func TestQueueFullIsExplicitRejection(t *testing.T) {
	f := newFixture(t, &parser.MockParser{Statement: goodStatement()}, Options{Workers: 1, QueueCapacity: 1})
	// Workers are deliberately not started, so the queue fills up.
	ctx := context.Background()

	_, err := f.orchestrator.Submit(ctx, 1, 7, "one.csv", []byte("data"))
	require.NoError(t, err)

	_, err = f.orchestrator.Submit(ctx, 1, 7, "two.csv", []byte("data"))
	require.Error(t, err)
	var qErr *parsererror.QueueFullError
	assert.ErrorAs(t, err, &qErr)

	jobs, err := f.orchestrator.List(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, jobs, 2, "the rejected job is persisted and observable")
	for _, job := range jobs {
		assert.Equal(t, models.StatusPending, job.Status)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t, &parser.MockParser{Statement: goodStatement()}, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orchestrator.Start(ctx)
	defer f.orchestrator.Stop()

	job, err := f.orchestrator.Submit(ctx, 1, 7, "statement.csv", []byte("data"))
	require.NoError(t, err)
	waitForTerminal(t, f.store, job.ID)

	completed := models.StatusCompleted
	jobs, err := f.orchestrator.List(ctx, 1, &completed)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	failed := models.StatusFailed
	jobs, err = f.orchestrator.List(ctx, 1, &failed)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestProgressEnforcesOwnership(t *testing.T) {
	f := newFixture(t, &parser.MockParser{Statement: goodStatement()}, DefaultOptions())
	ctx := context.Background()

	job, err := f.orchestrator.Submit(ctx, 1, 7, "statement.csv", []byte("data"))
	require.NoError(t, err)

	_, err = f.orchestrator.Progress(ctx, 2, job.ID)
	require.Error(t, err)
	var nfErr *parsererror.NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}
