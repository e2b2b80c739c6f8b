// Package parser defines the document parsing contract: the boundary between
// the import pipeline and whatever turns raw statement bytes into structured
// data. The pipeline never extracts text itself; it consumes this interface.
package parser

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ParsedLine is one transaction-line candidate produced by a parser.
type ParsedLine struct {
	Description      string           `json:"description"`
	Amount           decimal.Decimal  `json:"amount"`
	PurchaseDate     time.Time        `json:"purchase_date"`
	InstallmentIndex int              `json:"installment_index"`
	InstallmentTotal int              `json:"installment_total"`
	CategoryGuess    string           `json:"category_guess,omitempty"`

	// Confidence is per-line extraction reliability in [0,1]. It is recorded
	// with the parsed snapshot but never consulted by the confidence gate;
	// only the overall statement confidence gates the outcome.
	Confidence float64 `json:"confidence"`
}

// ParsedStatement is the structured result of parsing one uploaded document.
type ParsedStatement struct {
	BankName     string           `json:"bank_name,omitempty"`
	CardLastFour string           `json:"card_last_four,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	Lines        []ParsedLine     `json:"lines"`

	// Confidence is the overall extraction reliability in [0,1].
	Confidence float64 `json:"confidence"`
}

// StatementParser converts raw document bytes into a ParsedStatement.
// A fatal extraction failure is returned as an error (typically a
// *parsererror.ParseError) and terminates the job; a successful parse with
// low Confidence is not an error and is routed to manual review instead.
type StatementParser interface {
	Parse(ctx context.Context, data []byte) (*ParsedStatement, error)
}
