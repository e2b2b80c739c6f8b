// Package signature computes deterministic content fingerprints for
// transaction lines. The reconciliation engine compares signatures to detect
// lines that were already imported, so two logically identical lines must
// always hash to the same value regardless of case, whitespace or decimal
// precision noise.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const separator = "|"

// Compute returns the 64-character lowercase hex fingerprint of a transaction
// line. A zero purchaseDate is normalized to the current date. Safe for
// concurrent use; no side effects.
func Compute(description string, amount decimal.Decimal, purchaseDate time.Time, installmentIndex, installmentTotal int) string {
	if purchaseDate.IsZero() {
		purchaseDate = time.Now()
	}

	payload := strings.Join([]string{
		normalizeDescription(description),
		amount.StringFixed(2),
		purchaseDate.Format("2006-01-02"),
		fmt.Sprintf("%d", installmentIndex),
		fmt.Sprintf("%d", installmentTotal),
	}, separator)

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// normalizeDescription lowercases and collapses whitespace runs to a single
// space so "AMAZON  PURCHASE" and "amazon purchase" fingerprint identically.
func normalizeDescription(description string) string {
	return strings.Join(strings.Fields(strings.ToLower(description)), " ")
}
