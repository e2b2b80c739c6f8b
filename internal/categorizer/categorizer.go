// Package categorizer assigns categories to newly imported invoice items
// using per-user learned merchant rules. A rule is a raw merchant pattern
// matched case-insensitively as a substring of the line description; once a
// rule has been confirmed often enough it applies automatically, with the
// rule recorded as the category's provenance.
package categorizer

import (
	"context"
	"sort"
	"strings"

	"fjacquet/invoice-import/internal/logging"
	"fjacquet/invoice-import/internal/models"
	"fjacquet/invoice-import/internal/store"
)

// Suggester proposes a category for a description when no rule matched.
// Suggestions are recorded on the item but never applied automatically.
type Suggester interface {
	Suggest(ctx context.Context, description string) (string, error)
}

// Engine is the merchant categorization engine.
type Engine struct {
	store     store.Store
	logger    logging.Logger
	threshold int
	suggester Suggester
}

// New creates an engine. threshold <= 0 falls back to the default auto-apply
// threshold; suggester may be nil.
func New(st store.Store, logger logging.Logger, threshold int, suggester Suggester) *Engine {
	if logger == nil {
		logger = logging.NewLogrusAdapter("info", "text")
	}
	if threshold <= 0 {
		threshold = models.DefaultAutoApplyThreshold
	}
	return &Engine{
		store:     st,
		logger:    logger,
		threshold: threshold,
		suggester: suggester,
	}
}

// CategorizeNewItems runs the owner's rules over freshly created items and
// returns how many lines were auto-categorized. Items that already carry a
// category (a parser guess confirmed elsewhere, or a human assignment) are
// left alone. Rules below the auto-apply threshold leave the category unset;
// the match only surfaces as a suggestion.
func (e *Engine) CategorizeNewItems(ctx context.Context, userID uint, items []*models.InvoiceItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	rules, err := e.store.ListRulesForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, item := range items {
		if item.Category != "" {
			continue
		}

		rule := bestMatch(rules, item.Description)
		if rule == nil {
			e.suggest(ctx, item)
			continue
		}

		if !rule.AutoApply(e.threshold) {
			item.SuggestedCategory = rule.Category
			if err := e.store.UpdateInvoiceItem(ctx, item); err != nil {
				return applied, err
			}
			e.logger.Debug("Rule below auto-apply threshold, suggestion recorded",
				logging.Field{Key: logging.FieldRuleID, Value: rule.ID},
				logging.Field{Key: logging.FieldCount, Value: rule.ConfirmationCount})
			continue
		}

		ruleID := rule.ID
		item.Category = rule.Category
		item.CategorySource = models.CategorySourceAutoRule
		item.RuleID = &ruleID
		if err := e.store.UpdateInvoiceItem(ctx, item); err != nil {
			return applied, err
		}
		applied++

		e.logger.Debug("Auto-categorized invoice item",
			logging.Field{Key: logging.FieldRuleID, Value: rule.ID},
			logging.Field{Key: logging.FieldCategory, Value: rule.Category})
	}

	e.logger.Info("Categorization finished",
		logging.Field{Key: logging.FieldUserID, Value: userID},
		logging.Field{Key: logging.FieldCount, Value: applied})
	return applied, nil
}

// Confirm records a human confirmation of a category for a merchant pattern.
// The first confirmation creates the rule; each one after increments its
// count. This is the external trigger that eventually tips a rule over the
// auto-apply threshold; it never runs during import.
func (e *Engine) Confirm(ctx context.Context, userID uint, pattern, category string) (*models.MerchantRule, error) {
	rule, err := e.store.ConfirmRule(ctx, userID, pattern, category)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Merchant rule confirmed",
		logging.Field{Key: logging.FieldUserID, Value: userID},
		logging.Field{Key: logging.FieldRuleID, Value: rule.ID},
		logging.Field{Key: logging.FieldCount, Value: rule.ConfirmationCount})
	return rule, nil
}

// AutoApplyThreshold returns the configured confirmation threshold.
func (e *Engine) AutoApplyThreshold() int {
	return e.threshold
}

// MerchantKey extracts the normalized merchant key from a line description:
// the leading significant token, lowercased. "NETFLIX.COM 03/24" and
// "netflix.com" key identically.
func MerchantKey(description string) string {
	fields := strings.Fields(strings.ToLower(description))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// bestMatch returns the matching rule with the highest confirmation count,
// breaking ties by the most recent confirmation.
func bestMatch(rules []models.MerchantRule, description string) *models.MerchantRule {
	var matches []models.MerchantRule
	for _, rule := range rules {
		if rule.Matches(description) {
			matches = append(matches, rule)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].ConfirmationCount != matches[j].ConfirmationCount {
			return matches[i].ConfirmationCount > matches[j].ConfirmationCount
		}
		return matches[i].LastConfirmedAt.After(matches[j].LastConfirmedAt)
	})
	return &matches[0]
}

func (e *Engine) suggest(ctx context.Context, item *models.InvoiceItem) {
	if e.suggester == nil {
		return
	}

	category, err := e.suggester.Suggest(ctx, item.Description)
	if err != nil {
		e.logger.WithError(err).Warn("Category suggestion failed",
			logging.Field{Key: "description", Value: item.Description})
		return
	}
	if category == "" {
		return
	}

	item.SuggestedCategory = category
	if err := e.store.UpdateInvoiceItem(ctx, item); err != nil {
		e.logger.WithError(err).Warn("Could not record category suggestion")
	}
}
