package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/parsererror"
)

// GormStore implements Store on top of gorm with the postgres driver.
type GormStore struct {
	db *gorm.DB
}

// Open connects to postgres, runs the schema migration and returns the store.
func Open(databaseURL string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Card{},
		&models.ImportJob{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.MerchantRule{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &GormStore{db: db}, nil
}

// NewGormStore wraps an existing gorm.DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetCard(ctx context.Context, id uint) (*models.Card, error) {
	var card models.Card
	err := s.db.WithContext(ctx).First(&card, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &parsererror.NotFoundError{Resource: "card", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, &parsererror.StorageError{Operation: "get card", Err: err}
	}
	return &card, nil
}

func (s *GormStore) CreateJob(ctx context.Context, job *models.ImportJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return &parsererror.StorageError{Operation: "create job", Err: err}
	}
	return nil
}

func (s *GormStore) GetJob(ctx context.Context, id string) (*models.ImportJob, error) {
	var job models.ImportJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &parsererror.NotFoundError{Resource: "import", ID: id}
	}
	if err != nil {
		return nil, &parsererror.StorageError{Operation: "get job", Err: err}
	}
	return &job, nil
}

func (s *GormStore) GetJobForUser(ctx context.Context, id string, userID uint) (*models.ImportJob, error) {
	var job models.ImportJob
	err := s.db.WithContext(ctx).First(&job, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &parsererror.NotFoundError{Resource: "import", ID: id}
	}
	if err != nil {
		return nil, &parsererror.StorageError{Operation: "get job", Err: err}
	}
	return &job, nil
}

func (s *GormStore) ListJobsForUser(ctx context.Context, userID uint, status *models.ImportStatus) ([]models.ImportJob, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("imported_at DESC")
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var jobs []models.ImportJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, &parsererror.StorageError{Operation: "list jobs", Err: err}
	}
	return jobs, nil
}

// MarkProcessing uses a conditional update so exactly one worker wins the
// pending -> processing transition even if a job id is dequeued twice.
func (s *GormStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Update("status", models.StatusProcessing)
	if result.Error != nil {
		return false, &parsererror.StorageError{Operation: "mark processing", Err: result.Error}
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) UpdateJob(ctx context.Context, job *models.ImportJob) error {
	if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
		return &parsererror.StorageError{Operation: "update job", Err: err}
	}
	return nil
}

// ClaimInvoiceResult checks and sets the result reference inside one
// transaction so two jobs finishing at once cannot both claim the invoice.
func (s *GormStore) ClaimInvoiceResult(ctx context.Context, jobID string, invoiceID uint) (bool, error) {
	claimed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ImportJob{}).
			Where("result_invoice_id = ? AND id <> ?", invoiceID, jobID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Model(&models.ImportJob{}).
			Where("id = ?", jobID).
			Update("result_invoice_id", invoiceID).Error; err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, &parsererror.StorageError{Operation: "claim invoice result", Err: err}
	}
	return claimed, nil
}

func (s *GormStore) FindOrCreateInvoice(ctx context.Context, cardID uint, yearMonth string, dueDate time.Time) (*models.Invoice, bool, error) {
	invoice := models.Invoice{
		CardID:    cardID,
		YearMonth: yearMonth,
	}
	result := s.db.WithContext(ctx).
		Where(models.Invoice{CardID: cardID, YearMonth: yearMonth}).
		Attrs(models.Invoice{DueDate: dueDate, Total: decimal.Zero}).
		FirstOrCreate(&invoice)
	if result.Error != nil {
		return nil, false, &parsererror.StorageError{Operation: "find or create invoice", Err: result.Error}
	}
	return &invoice, result.RowsAffected == 1, nil
}

func (s *GormStore) GetInvoiceByCardMonth(ctx context.Context, cardID uint, yearMonth string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.WithContext(ctx).
		First(&invoice, "card_id = ? AND year_month = ?", cardID, yearMonth).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &parsererror.NotFoundError{Resource: "invoice", ID: fmt.Sprintf("%d/%s", cardID, yearMonth)}
	}
	if err != nil {
		return nil, &parsererror.StorageError{Operation: "get invoice", Err: err}
	}
	return &invoice, nil
}

func (s *GormStore) UpdateInvoiceTotal(ctx context.Context, invoiceID uint, total decimal.Decimal) error {
	err := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", invoiceID).
		Update("total", total).Error
	if err != nil {
		return &parsererror.StorageError{Operation: "update invoice total", Err: err}
	}
	return nil
}

func (s *GormStore) ListInvoiceItems(ctx context.Context, invoiceID uint) ([]models.InvoiceItem, error) {
	var items []models.InvoiceItem
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, &parsererror.StorageError{Operation: "list invoice items", Err: err}
	}
	return items, nil
}

func (s *GormStore) CreateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error {
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return &parsererror.StorageError{Operation: "create invoice item", Err: err}
	}
	return nil
}

func (s *GormStore) UpdateInvoiceItem(ctx context.Context, item *models.InvoiceItem) error {
	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		return &parsererror.StorageError{Operation: "update invoice item", Err: err}
	}
	return nil
}

func (s *GormStore) ListRulesForUser(ctx context.Context, userID uint) ([]models.MerchantRule, error) {
	var rules []models.MerchantRule
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rules).Error
	if err != nil {
		return nil, &parsererror.StorageError{Operation: "list rules", Err: err}
	}
	return rules, nil
}

// ConfirmRule upserts inside a transaction: first confirmation creates the
// rule with count 1, later confirmations increment and refresh the category.
func (s *GormStore) ConfirmRule(ctx context.Context, userID uint, pattern, category string) (*models.MerchantRule, error) {
	key := models.NormalizeMatchKey(pattern)
	var rule models.MerchantRule

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND match_key = ?", userID, key).First(&rule).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rule = models.MerchantRule{
				UserID:            userID,
				MatchKey:          key,
				Pattern:           pattern,
				Category:          category,
				ConfirmationCount: 1,
				LastConfirmedAt:   time.Now(),
			}
			return tx.Create(&rule).Error
		}
		if err != nil {
			return err
		}

		rule.ConfirmationCount++
		rule.Category = category
		rule.LastConfirmedAt = time.Now()
		return tx.Save(&rule).Error
	})
	if err != nil {
		return nil, &parsererror.StorageError{Operation: "confirm rule", Err: err}
	}
	return &rule, nil
}
