package logging

// Standardized field names for structured logging.
// Using the same keys everywhere keeps the pipeline's log output easy to
// filter by job, card or invoice.
const (
	FieldJobID      = "job_id"
	FieldUserID     = "user_id"
	FieldCardID     = "card_id"
	FieldInvoiceID  = "invoice_id"
	FieldRuleID     = "rule_id"
	FieldStatus     = "status"
	FieldSource     = "source"
	FieldFile       = "file_path"
	FieldYearMonth  = "year_month"
	FieldCount      = "count"
	FieldSkipped    = "skipped"
	FieldReason     = "reason"
	FieldOperation  = "operation"
	FieldConfidence = "confidence"
	FieldCategory   = "category"
)
