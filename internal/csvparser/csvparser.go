// Package csvparser implements the document parsing contract for
// machine-readable CSV statement exports. It is the one parser shipped with
// the pipeline: CSV exports are already structured, so no text extraction is
// involved and the confidence reflects only how many rows were readable.
package csvparser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/parser"
	"fjacquet/invoice-import/internal/parsererror"
)

const parserName = "csv-statement"

// statementRow represents a single row in a CSV statement export.
// It uses struct tags for gocsv unmarshaling.
type statementRow struct {
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Date        string `csv:"date"`
	Installment string `csv:"installment"` // "2/12", empty for single payments
	Category    string `csv:"category"`
	DueDate     string `csv:"due_date"`
	Bank        string `csv:"bank"`
	LastFour    string `csv:"card_last_four"`
}

// Parser parses CSV statement exports.
type Parser struct {
	logger logging.Logger
}

// New creates a CSV statement parser.
func New(logger logging.Logger) *Parser {
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}
	return &Parser{logger: logger}
}

// Parse reads a CSV statement export and returns the parsed statement.
// Rows that cannot be converted are skipped and lower the confidence; a file
// that is not CSV at all fails with a ParseError.
func (p *Parser) Parse(ctx context.Context, data []byte) (*parser.ParsedStatement, error) {
	var rows []*statementRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		p.logger.WithError(err).Error("Failed to read CSV statement")
		return nil, &parsererror.ParseError{Parser: parserName, Reason: "unreadable CSV", Err: err}
	}
	if len(rows) == 0 {
		return nil, &parsererror.ParseError{Parser: parserName, Reason: "statement has no rows"}
	}

	statement := &parser.ParsedStatement{}
	total := decimal.Zero
	skipped := 0

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(row.Description) == "" && strings.TrimSpace(row.Amount) == "" {
			continue
		}

		line, err := convertRow(row)
		if err != nil {
			p.logger.WithError(err).Warn("Skipping unparseable statement row",
				logging.Field{Key: "description", Value: row.Description})
			skipped++
			continue
		}

		statement.Lines = append(statement.Lines, *line)
		total = total.Add(line.Amount)

		if statement.BankName == "" {
			statement.BankName = strings.TrimSpace(row.Bank)
		}
		if statement.CardLastFour == "" {
			statement.CardLastFour = strings.TrimSpace(row.LastFour)
		}
		if statement.DueDate == nil && strings.TrimSpace(row.DueDate) != "" {
			if due, err := time.Parse("2006-01-02", strings.TrimSpace(row.DueDate)); err == nil {
				statement.DueDate = &due
			}
		}
	}

	if len(statement.Lines) == 0 {
		return nil, &parsererror.ParseError{Parser: parserName, Reason: "no readable transaction rows"}
	}

	statement.TotalAmount = &total
	statement.Confidence = float64(len(statement.Lines)) / float64(len(statement.Lines)+skipped)
	for i := range statement.Lines {
		statement.Lines[i].Confidence = statement.Confidence
	}

	p.logger.Info("Parsed CSV statement",
		logging.Field{Key: logging.FieldCount, Value: len(statement.Lines)},
		logging.Field{Key: logging.FieldSkipped, Value: skipped},
		logging.Field{Key: logging.FieldConfidence, Value: statement.Confidence})

	return statement, nil
}

func convertRow(row *statementRow) (*parser.ParsedLine, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(row.Amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount '%s': %w", row.Amount, err)
	}

	var purchaseDate time.Time
	if strings.TrimSpace(row.Date) != "" {
		purchaseDate, err = time.Parse("2006-01-02", strings.TrimSpace(row.Date))
		if err != nil {
			return nil, fmt.Errorf("invalid date '%s': %w", row.Date, err)
		}
	}

	index, count, err := parseInstallment(row.Installment)
	if err != nil {
		return nil, err
	}

	return &parser.ParsedLine{
		Description:      strings.TrimSpace(row.Description),
		Amount:           amount,
		PurchaseDate:     purchaseDate,
		InstallmentIndex: index,
		InstallmentTotal: count,
		CategoryGuess:    strings.TrimSpace(row.Category),
	}, nil
}

// parseInstallment reads the "2/12" installment notation. An empty value
// means a single payment.
func parseInstallment(value string) (int, int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, 0, nil
	}

	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid installment '%s'", value)
	}

	index, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid installment index '%s': %w", parts[0], err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid installment count '%s': %w", parts[1], err)
	}
	if index < 1 || count < 1 || index > count {
		return 0, 0, fmt.Errorf("installment '%s' out of range", value)
	}
	return index, count, nil
}

// ValidateFormat reports whether data looks like a CSV statement export with
// the expected header, without fully parsing it.
func ValidateFormat(data []byte) bool {
	idx := bytes.IndexByte(data, '\n')
	header := data
	if idx > 0 {
		header = data[:idx]
	}
	return bytes.Contains(bytes.ToLower(header), []byte("description")) &&
		bytes.Contains(bytes.ToLower(header), []byte("amount"))
}
