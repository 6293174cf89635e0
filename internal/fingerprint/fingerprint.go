// Package fingerprint derives a stable identity for a transaction row from
// its immutable fields. The same normalized fields always produce the same
// fingerprint, regardless of ingestion order or batch membership.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
)

// minorUnits maps ISO currency codes to their minor-unit exponent where it
// differs from the common case of 2.
var minorUnits = map[string]int{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// New computes the fingerprint of a row. Pure function, no side effects.
// Malformed rows fail with a ValidationError naming the offending field.
func New(row model.TransactionRow) (model.Fingerprint, error) {
	if row.Date.IsZero() {
		return "", common.NewValidationError("date", "missing or unparseable")
	}
	desc := normalizeText(row.Description)
	if desc == "" {
		return "", common.NewValidationError("description", "empty after normalization")
	}
	currency := strings.ToUpper(strings.TrimSpace(row.Currency))
	if len(currency) != 3 {
		return "", common.NewValidationError("currency", "must be a 3-letter ISO code")
	}
	account := strings.TrimSpace(row.AccountID)
	if account == "" {
		return "", common.NewValidationError("account", "empty")
	}
	if math.IsNaN(row.Amount) || math.IsInf(row.Amount, 0) {
		return "", common.NewValidationError("amount", "not a finite number")
	}

	exp, ok := minorUnits[currency]
	if !ok {
		exp = 2
	}

	data := fmt.Sprintf("%s|%.*f|%s|%s|%s",
		row.Date.Format("2006-01-02"),
		exp, roundTo(row.Amount, exp),
		currency,
		desc,
		account)

	sum := sha256.Sum256([]byte(data))
	return model.Fingerprint(fmt.Sprintf("%x", sum)), nil
}

// normalizeText lower-cases and collapses internal whitespace so rows that
// differ only in incidental formatting hash identically.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
