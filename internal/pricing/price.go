// Package pricing turns the free-text prices and product names returned by the
// search model into comparable values.
package pricing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numberToken matches the first integer[.fraction] run in a cleaned price.
var numberToken = regexp.MustCompile(`\d+\.?\d*`)

// Normalize extracts a numeric price from arbitrary price text such as
// "$1,234.50", "Approx. 99" or "10-20 USD".
//
// Everything except digits, '.', ',' and '-' is discarded, then the first
// integer[.fraction] token is parsed. Discarded characters still separate
// tokens, so for ranges like "$10–$20" the first number wins.
// Currency symbols are dropped, never converted. The second return value is
// false when the text holds no number.
func Normalize(price string) (float64, bool) {
	if price == "" {
		return 0, false
	}

	cleaned := stripThousands(clean(price))
	tok := numberToken.FindString(cleaned)
	if tok == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(tok, "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SortKey returns the value used to order products by price. Prices without a
// number sort last.
func SortKey(price string) float64 {
	if v, ok := Normalize(price); ok {
		return v
	}
	return math.Inf(1)
}

func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// stripThousands drops commas used as thousands separators ("1,234,567.50")
// so the grouped number parses as a whole. A comma counts as a separator only
// when a digit precedes it and exactly three digits follow it. Other commas
// are left in place and end the numeric token, so "12,99" still reads as 12.
func stripThousands(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ',' && i > 0 && isDigit(s[i-1]) && groupFollows(s, i+1) {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func groupFollows(s string, at int) bool {
	if at+3 > len(s) {
		return false
	}
	for j := at; j < at+3; j++ {
		if !isDigit(s[j]) {
			return false
		}
	}
	return at+3 == len(s) || !isDigit(s[at+3])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
