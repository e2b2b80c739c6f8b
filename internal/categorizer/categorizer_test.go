package categorizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/store"
)

func seedItem(t *testing.T, st *store.MockStore, description string) *models.InvoiceItem {
	t.Helper()
	item := &models.InvoiceItem{
		InvoiceID:   1,
		Description: description,
	}
	require.NoError(t, st.CreateInvoiceItem(context.Background(), item))
	return item
}

func TestRuleBelowThresholdDoesNotAutoApply(t *testing.T) {
	st := store.NewMockStore()
	st.SeedRule(models.MerchantRule{
		UserID:            1,
		Pattern:           "netflix",
		Category:          "Streaming",
		ConfirmationCount: 2,
		LastConfirmedAt:   time.Now(),
	})
	engine := New(st, logging.NewMockLogger(), models.DefaultAutoApplyThreshold, nil)

	item := seedItem(t, st, "NETFLIX.COM 03/24")
	applied, err := engine.CategorizeNewItems(context.Background(), 1, []*models.InvoiceItem{item})
	require.NoError(t, err)

	assert.Equal(t, 0, applied)
	assert.Empty(t, item.Category)
	assert.Equal(t, models.CategorySourceNone, item.CategorySource)
	assert.Nil(t, item.RuleID)
	assert.Equal(t, "Streaming", item.SuggestedCategory, "a below-threshold match surfaces as a suggestion")
}

func TestRuleAtThresholdAutoApplies(t *testing.T) {
	st := store.NewMockStore()
	rule := st.SeedRule(models.MerchantRule{
		UserID:            1,
		Pattern:           "netflix",
		Category:          "Streaming",
		ConfirmationCount: 3,
		LastConfirmedAt:   time.Now(),
	})
	engine := New(st, logging.NewMockLogger(), models.DefaultAutoApplyThreshold, nil)

	item := seedItem(t, st, "NETFLIX.COM 03/24")
	applied, err := engine.CategorizeNewItems(context.Background(), 1, []*models.InvoiceItem{item})
	require.NoError(t, err)

	assert.Equal(t, 1, applied)
	assert.Equal(t, "Streaming", item.Category)
	assert.Equal(t, models.CategorySourceAutoRule, item.CategorySource)
	require.NotNil(t, item.RuleID)
	assert.Equal(t, rule.ID, *item.RuleID)
}

func TestRulesNeverMatchAcrossOwners(t *testing.T) {
	st := store.NewMockStore()
	st.SeedRule(models.MerchantRule{
		UserID:            2,
		Pattern:           "netflix",
		Category:          "Streaming",
		ConfirmationCount: 5,
		LastConfirmedAt:   time.Now(),
	})
	engine := New(st, logging.NewMockLogger(), models.DefaultAutoApplyThreshold, nil)

	item := seedItem(t, st, "NETFLIX.COM 03/24")
	applied, err := engine.CategorizeNewItems(context.Background(), 1, []*models.InvoiceItem{item})
	require.NoError(t, err)

	assert.Equal(t, 0, applied)
	assert.Empty(t, item.Category)
}

func TestBestMatchPrefersHigherCountThenRecency(t *testing.T) {
	now := time.Now()
	older := models.MerchantRule{Pattern: "amazon", Category: "Shopping", ConfirmationCount: 4, LastConfirmedAt: now.Add(-time.Hour)}
	stronger := models.MerchantRule{Pattern: "amazon prime", Category: "Streaming", ConfirmationCount: 6, LastConfirmedAt: now.Add(-2 * time.Hour)}
	recent := models.MerchantRule{Pattern: "amazon mktp", Category: "Marketplace", ConfirmationCount: 4, LastConfirmedAt: now}

	best := bestMatch([]models.MerchantRule{older, stronger, recent}, "AMAZON PRIME VIDEO")
	require.NotNil(t, best)
	assert.Equal(t, "Streaming", best.Category)

	best = bestMatch([]models.MerchantRule{older, recent}, "AMAZON MKTP US")
	require.NotNil(t, best)
	assert.Equal(t, "Marketplace", best.Category, "equal counts break by most recent confirmation")
}

func TestCategorizeSkipsItemsWithCategory(t *testing.T) {
	st := store.NewMockStore()
	st.SeedRule(models.MerchantRule{
		UserID:            1,
		Pattern:           "uber",
		Category:          "Transport",
		ConfirmationCount: 9,
		LastConfirmedAt:   time.Now(),
	})
	engine := New(st, logging.NewMockLogger(), models.DefaultAutoApplyThreshold, nil)

	item := seedItem(t, st, "UBER TRIP")
	item.Category = "Travel"
	item.CategorySource = models.CategorySourceManual

	applied, err := engine.CategorizeNewItems(context.Background(), 1, []*models.InvoiceItem{item})
	require.NoError(t, err)

	assert.Equal(t, 0, applied)
	assert.Equal(t, "Travel", item.Category)
	assert.Equal(t, models.CategorySourceManual, item.CategorySource)
}

func TestConfirmCreatesThenIncrements(t *testing.T) {
	st := store.NewMockStore()
	engine := New(st, logging.NewMockLogger(), models.DefaultAutoApplyThreshold, nil)
	ctx := context.Background()

	rule, err := engine.Confirm(ctx, 1, "Spotify AB", "Streaming")
	require.NoError(t, err)
	assert.Equal(t, 1, rule.ConfirmationCount)
	assert.False(t, rule.AutoApply(models.DefaultAutoApplyThreshold))

	// Same merchant with case/whitespace noise hits the same rule.
	rule, err = engine.Confirm(ctx, 1, "spotify  ab", "Streaming")
	require.NoError(t, err)
	assert.Equal(t, 2, rule.ConfirmationCount)

	rule, err = engine.Confirm(ctx, 1, "SPOTIFY AB", "Streaming")
	require.NoError(t, err)
	assert.Equal(t, 3, rule.ConfirmationCount)
	assert.True(t, rule.AutoApply(models.DefaultAutoApplyThreshold))
}

func TestMerchantKey(t *testing.T) {
	assert.Equal(t, "netflix.com", MerchantKey("NETFLIX.COM 03/24"))
	assert.Equal(t, "netflix.com", MerchantKey("  netflix.com"))
	assert.Equal(t, "", MerchantKey("   "))
}

type stubSuggester struct {
	category string
	err      error
}

func (s *stubSuggester) Suggest(ctx context.Context, description string) (string, error) {
	return s.category, s.err
}

func TestSuggesterRecordsSuggestionForUnmatchedMerchant(t *testing.T) {
	st := store.NewMockStore()
	engine := New(st, logging.NewMockLogger(), models.DefaultAutoApplyThreshold, &stubSuggester{category: "Dining"})

	item := seedItem(t, st, "SOME NEW RESTAURANT")
	applied, err := engine.CategorizeNewItems(context.Background(), 1, []*models.InvoiceItem{item})
	require.NoError(t, err)

	assert.Equal(t, 0, applied, "suggestions are never auto-applied")
	assert.Empty(t, item.Category)
	assert.Equal(t, "Dining", item.SuggestedCategory)
}

func TestExtractCategoryFromResponse(t *testing.T) {
	assert.Equal(t, "Dining", extractCategoryFromResponse("Category: Dining\nDescription: food"))
	assert.Equal(t, "Dining", extractCategoryFromResponse("\nDining\n"))
	assert.Equal(t, "", extractCategoryFromResponse(""))
}
