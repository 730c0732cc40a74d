package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// NormalizeCode canonicalises a promotion code: NFKC, trimmed, upper-case, inner spaces removed.
func NormalizeCode(raw string) string {
	folded := norm.NFKC.String(strings.TrimSpace(raw))
	if folded == "" {
		return ""
	}
	return strings.ToUpper(strings.Join(strings.Fields(folded), ""))
}

// SanitizeNotes strips markup from free-form text and collapses surrounding whitespace.
func SanitizeNotes(raw string) string {
	cleaned := strictPolicy.Sanitize(norm.NFC.String(raw))
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// NormalizeName trims and collapses whitespace in personal or product names.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(norm.NFC.String(raw)), " ")
}

// NormalizePhone keeps digits and an optional leading plus sign.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
