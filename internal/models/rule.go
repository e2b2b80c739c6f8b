package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// DefaultAutoApplyThreshold is the number of confirmations after which a
// merchant rule categorizes lines without a human step.
const DefaultAutoApplyThreshold = 3

// MerchantRule is a learned mapping from a merchant description pattern to a
// category for one user. The confirmation count only ever grows; whether the
// rule auto-applies is derived from the count, never stored.
type MerchantRule struct {
	gorm.Model
	UserID uint `gorm:"index:idx_rule_user_key,unique"`

	// MatchKey is the normalized form of Pattern, used as the rule identity
	// so repeated confirmations of the same merchant hit the same rule.
	MatchKey string `gorm:"index:idx_rule_user_key,unique"`

	// Pattern is the raw text the rule was learned from; matching is a
	// case-insensitive substring test of Pattern against descriptions.
	Pattern string

	Category          string
	ConfirmationCount int
	LastConfirmedAt   time.Time
}

// AutoApply reports whether the rule has been confirmed often enough to
// categorize without human confirmation.
func (r *MerchantRule) AutoApply(threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultAutoApplyThreshold
	}
	return r.ConfirmationCount >= threshold
}

// Matches reports whether the rule's pattern occurs in the description,
// ignoring case.
func (r *MerchantRule) Matches(description string) bool {
	if strings.TrimSpace(r.Pattern) == "" {
		return false
	}
	return strings.Contains(strings.ToLower(description), strings.ToLower(r.Pattern))
}

// NormalizeMatchKey lowercases a pattern and collapses whitespace runs so
// "AMAZON  Marketplace" and "amazon marketplace" identify the same rule.
func NormalizeMatchKey(pattern string) string {
	return strings.Join(strings.Fields(strings.ToLower(pattern)), " ")
}
