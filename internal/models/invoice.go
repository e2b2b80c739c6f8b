package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is one billing period: all transaction lines for one card in one
// month. At most one invoice exists per (card, year-month); the unique index
// backs the find-or-create in the reconciliation engine.
type Invoice struct {
	gorm.Model
	CardID    uint   `gorm:"uniqueIndex:idx_invoice_card_month"`
	YearMonth string `gorm:"uniqueIndex:idx_invoice_card_month"` // "2006-01"
	DueDate   time.Time
	Total     decimal.Decimal `gorm:"type:numeric"`
}

// CategorySource records how an invoice item got its category.
type CategorySource string

const (
	CategorySourceNone     CategorySource = ""
	CategorySourceManual   CategorySource = "manual"
	CategorySourceAutoRule CategorySource = "auto_rule"
)

// InvoiceItem is one transaction line inside a billing period. Uniqueness
// within an invoice is enforced by content signature at merge time, not by a
// stored key.
type InvoiceItem struct {
	gorm.Model
	InvoiceID uint `gorm:"index"`

	Description  string
	Amount       decimal.Decimal `gorm:"type:numeric"`
	PurchaseDate time.Time

	// Installment 2 of 10 is a different line than 3 of 10 for the same
	// purchase; both fields participate in the signature.
	InstallmentIndex int
	InstallmentTotal int

	Category          string
	CategorySource    CategorySource
	RuleID            *uint
	SuggestedCategory string
}

// YearMonthOf formats a time as the invoice period key.
func YearMonthOf(t time.Time) string {
	return t.Format("2006-01")
}
