package pricing

import "strings"

// IdentifierSeparator joins the name and domain parts of a product identifier.
const IdentifierSeparator = "|"

// ProductIdentifier derives the key under which a product's prices are kept:
// the lower-cased, trimmed name and domain joined by "|".
//
// Identity is heuristic. Two different products with the same name on the
// same domain share one history, and the same product reported with different
// wording gets a new one. Callers must reject empty names and domains.
func ProductIdentifier(name, domain string) string {
	return strings.ToLower(strings.TrimSpace(name)) + IdentifierSeparator + strings.ToLower(strings.TrimSpace(domain))
}
