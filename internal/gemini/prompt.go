package gemini

import (
	"fmt"
	"strings"
)

const formatInstruction = `For each product, give its name, an estimated price (for example "$XX.XX", "Approx. YYY" or "Check site for price"), a primary website URL, the country the website mainly serves or is based in (for example "USA", "Germany", "Global") and the domain name taken from the website URL (for example "example.com"). If no direct product page is available, give the most relevant URL from your search results, such as a category page or home page. The website URL must be a full, valid URL. Format the whole response as a JSON array of objects with the keys 'name', 'price', 'website', 'country' and 'domain', all strings. Do not write anything outside the JSON array. If nothing is found or the query is too vague, return an empty JSON array []. Example: [{"name": "Super Widget", "price": "$29.99", "website": "https://example.com/superwidget", "country": "USA", "domain": "example.com"}]`

// buildPrompt assembles the request text. A blank country or "any country"
// means no country focus.
func buildPrompt(query, country string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful product search assistant. Based on the query '%s', find relevant products.", query)

	if c := strings.TrimSpace(country); c != "" && !strings.EqualFold(c, "any country") {
		fmt.Fprintf(&b,
			" Focus your search on products available from websites primarily serving or based in %[1]s."+
				" If results for %[1]s are limited you may broaden the search, but prioritize and clearly mark products relevant to %[1]s.",
			c)
	}

	b.WriteString(" ")
	b.WriteString(formatInstruction)
	return b.String()
}
