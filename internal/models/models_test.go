package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/invoice-import/internal/parsererror"
)

func TestImportStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    ImportStatus
		to      ImportStatus
		allowed bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"pending straight to completed", StatusPending, StatusCompleted, false},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing to manual review", StatusProcessing, StatusManualReview, true},
		{"manual review resolution", StatusManualReview, StatusCompleted, true},
		{"manual review cannot fail", StatusManualReview, StatusFailed, false},
		{"completed is final", StatusCompleted, StatusProcessing, false},
		{"failed is final", StatusFailed, StatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTransitionToRejectsIllegalMove(t *testing.T) {
	job := &ImportJob{Status: StatusCompleted}

	err := job.TransitionTo(StatusProcessing)

	require.Error(t, err)
	var stateErr *parsererror.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "completed", stateErr.From)
	assert.Equal(t, "processing", stateErr.To)
	assert.Equal(t, StatusCompleted, job.Status, "status must not change on a rejected transition")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusManualReview.IsTerminal())
}

func TestSourceFromFileName(t *testing.T) {
	tests := []struct {
		name     string
		expected SourceKind
	}{
		{"statement.csv", SourceDocument},
		{"statement.PDF", SourceDocument},
		{"receipt.jpg", SourceImage},
		{"Receipt.PNG", SourceImage},
		{"forwarded.eml", SourceMessage},
		{"notes.txt", SourceMessage},
		{"noextension", SourceDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SourceFromFileName(tt.name))
		})
	}
}

func TestMerchantRuleAutoApply(t *testing.T) {
	rule := &MerchantRule{ConfirmationCount: 2}
	assert.False(t, rule.AutoApply(3))

	rule.ConfirmationCount = 3
	assert.True(t, rule.AutoApply(3))

	// A non-positive threshold falls back to the default.
	rule.ConfirmationCount = DefaultAutoApplyThreshold
	assert.True(t, rule.AutoApply(0))
	rule.ConfirmationCount = DefaultAutoApplyThreshold - 1
	assert.False(t, rule.AutoApply(0))
}

func TestMerchantRuleMatches(t *testing.T) {
	rule := &MerchantRule{Pattern: "Netflix"}

	assert.True(t, rule.Matches("NETFLIX.COM 01/24"))
	assert.True(t, rule.Matches("payment to netflix streaming"))
	assert.False(t, rule.Matches("SPOTIFY AB"))

	empty := &MerchantRule{Pattern: "   "}
	assert.False(t, empty.Matches("anything"))
}

func TestNormalizeMatchKey(t *testing.T) {
	assert.Equal(t, "amazon marketplace", NormalizeMatchKey("AMAZON  Marketplace"))
	assert.Equal(t, "amazon marketplace", NormalizeMatchKey("  amazon\tmarketplace  "))
	assert.Equal(t, "", NormalizeMatchKey("   "))
}

func TestYearMonthOf(t *testing.T) {
	assert.Equal(t, "2024-02", YearMonthOf(time.Date(2024, 2, 10, 15, 4, 5, 0, time.UTC)))
}
