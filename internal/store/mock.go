package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/parsererror"
)

// MockStore is an in-memory Store implementation for tests. It mirrors the
// concurrency guarantees of the real store: conditional state transitions,
// atomic invoice find-or-create and single-winner result claims.
type MockStore struct {
	mu sync.Mutex

	cards    map[uint]models.Card
	jobs     map[string]models.ImportJob
	invoices map[uint]models.Invoice
	items    map[uint]models.InvoiceItem
	rules    map[uint]models.MerchantRule
	claims   map[uint]string // invoice id -> job id holding the result reference

	nextInvoiceID uint
	nextItemID    uint
	nextRuleID    uint

	// Error injection for failure-path tests.
	CreateItemErr error
	UpdateJobErr  error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		cards:    make(map[uint]models.Card),
		jobs:     make(map[string]models.ImportJob),
		invoices: make(map[uint]models.Invoice),
		items:    make(map[uint]models.InvoiceItem),
		rules:    make(map[uint]models.MerchantRule),
		claims:   make(map[uint]string),
	}
}

// AddCard seeds a card.
func (m *MockStore) AddCard(card models.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[card.ID] = card
}

func (m *MockStore) GetCard(ctx context.Context, id uint) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[id]
	if !ok {
		return nil, &parsererror.NotFoundError{Resource: "card", ID: fmt.Sprint(id)}
	}
	return &card, nil
}

func (m *MockStore) CreateJob(ctx context.Context, job *models.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *MockStore) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, &parsererror.NotFoundError{Resource: "import", ID: id}
	}
	return &job, nil
}

func (m *MockStore) GetJobForUser(ctx context.Context, id string, userID uint) (*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.UserID != userID {
		return nil, &parsererror.NotFoundError{Resource: "import", ID: id}
	}
	return &job, nil
}

func (m *MockStore) ListJobsForUser(ctx context.Context, userID uint, status *models.ImportStatus) ([]models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []models.ImportJob
	for _, job := range m.jobs {
		if job.UserID != userID {
			continue
		}
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ImportedAt.After(jobs[j].ImportedAt)
	})
	return jobs, nil
}

func (m *MockStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != models.StatusPending {
		return false, nil
	}
	job.Status = models.StatusProcessing
	m.jobs[id] = job
	return true, nil
}

func (m *MockStore) UpdateJob(ctx context.Context, job *models.ImportJob) error {
	if m.UpdateJobErr != nil {
		return m.UpdateJobErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *MockStore) ClaimInvoiceResult(ctx context.Context, jobID string, invoiceID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if holder, ok := m.claims[invoiceID]; ok && holder != jobID {
		return false, nil
	}
	m.claims[invoiceID] = jobID

	if job, ok := m.jobs[jobID]; ok {
		job.ResultInvoiceID = &invoiceID
		m.jobs[jobID] = job
	}
	return true, nil
}

func (m *MockStore) FindOrCreateInvoice(ctx context.Context, cardID uint, yearMonth string, dueDate time.Time) (*models.Invoice, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, invoice := range m.invoices {
		if invoice.CardID == cardID && invoice.YearMonth == yearMonth {
			return &invoice, false, nil
		}
	}

	m.nextInvoiceID++
	invoice := models.Invoice{
		CardID:    cardID,
		YearMonth: yearMonth,
		DueDate:   dueDate,
		Total:     decimal.Zero,
	}
	invoice.ID = m.nextInvoiceID
	m.invoices[invoice.ID] = invoice
	return &invoice, true, nil
}

func (m *MockStore) GetInvoiceByCardMonth(ctx context.Context, cardID uint, yearMonth string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, invoice := range m.invoices {
		if invoice.CardID == cardID && invoice.YearMonth == yearMonth {
			return &invoice, nil
		}
	}
	return nil, &parsererror.NotFoundError{Resource: "invoice", ID: fmt.Sprintf("%d/%s", cardID, yearMonth)}
}

func (m *MockStore) UpdateInvoiceTotal(ctx context.Context, invoiceID uint, total decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	invoice, ok := m.invoices[invoiceID]
	if !ok {
		return &parsererror.NotFoundError{Resource: "invoice", ID: fmt.Sprint(invoiceID)}
	}
	invoice.Total = total
	m.invoices[invoiceID] = invoice
	return nil
}

func (m *MockStore) ListInvoiceItems(ctx context.Context, invoiceID uint) ([]models.InvoiceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []models.InvoiceItem
	for _, item := range m.items {
		if item.InvoiceID == invoiceID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *MockStore) CreateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error {
	if m.CreateItemErr != nil {
		return m.CreateItemErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextItemID++
	item.ID = m.nextItemID
	m.items[item.ID] = *item
	return nil
}

func (m *MockStore) UpdateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return &parsererror.NotFoundError{Resource: "invoice item", ID: fmt.Sprint(item.ID)}
	}
	m.items[item.ID] = *item
	return nil
}

func (m *MockStore) ListRulesForUser(ctx context.Context, userID uint) ([]models.MerchantRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rules []models.MerchantRule
	for _, rule := range m.rules {
		if rule.UserID == userID {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

func (m *MockStore) ConfirmRule(ctx context.Context, userID uint, pattern, category string) (*models.MerchantRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := models.NormalizeMatchKey(pattern)
	for id, rule := range m.rules {
		if rule.UserID == userID && rule.MatchKey == key {
			rule.ConfirmationCount++
			rule.Category = category
			rule.LastConfirmedAt = time.Now()
			m.rules[id] = rule
			return &rule, nil
		}
	}

	m.nextRuleID++
	rule := models.MerchantRule{
		UserID:            userID,
		MatchKey:          key,
		Pattern:           pattern,
		Category:          category,
		ConfirmationCount: 1,
		LastConfirmedAt:   time.Now(),
	}
	rule.ID = m.nextRuleID
	m.rules[rule.ID] = rule
	return &rule, nil
}

// SeedRule inserts a rule directly, for tests that need a preexisting
// confirmation count.
func (m *MockStore) SeedRule(rule models.MerchantRule) models.MerchantRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == 0 {
		m.nextRuleID++
		rule.ID = m.nextRuleID
	}
	if rule.MatchKey == "" {
		rule.MatchKey = models.NormalizeMatchKey(rule.Pattern)
	}
	m.rules[rule.ID] = rule
	return rule
}

// InvoiceCount reports how many billing periods exist, for idempotency tests.
func (m *MockStore) InvoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}
