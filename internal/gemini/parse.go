package gemini

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"

	"github.com/kalambet/prodfinder/internal/storage"
)

var fence = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?\\s*```$")

// parseResponse pulls the answer text and the grounding sources out of a
// generateContent response body.
func parseResponse(body []byte) (string, []storage.Source) {
	var text strings.Builder
	gjson.GetBytes(body, "candidates.0.content.parts").ForEach(func(_, p gjson.Result) bool {
		if t := p.Get("text"); t.Exists() {
			text.WriteString(t.String())
		}
		return true
	})

	sources := []storage.Source{}
	gjson.GetBytes(body, "candidates.0.groundingMetadata.groundingChunks").ForEach(func(_, chunk gjson.Result) bool {
		uri := chunk.Get("web.uri").String()
		title := chunk.Get("web.title").String()
		if uri != "" && title != "" {
			sources = append(sources, storage.Source{URI: uri, Title: title})
		}
		return true
	})

	return text.String(), sources
}

// parseProducts reads the model's JSON answer. It accepts a bare array, a
// single object or either wrapped in a markdown code fence. Items lacking a
// non-empty name or a string price, country or domain are dropped. Websites
// that are not absolute http(s) URLs are blanked.
func parseProducts(text string) ([]storage.Product, error) {
	raw := strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(raw); m != nil && m[1] != "" {
		raw = strings.TrimSpace(m[1])
	}
	if !gjson.Valid(raw) {
		return nil, errors.New("response is not valid JSON")
	}

	parsed := gjson.Parse(raw)
	var items []gjson.Result
	switch {
	case parsed.IsArray():
		items = parsed.Array()
	case parsed.IsObject():
		items = []gjson.Result{parsed}
	default:
		return nil, fmt.Errorf("unexpected JSON %s", parsed.Type)
	}

	products := make([]storage.Product, 0, len(items))
	for _, item := range items {
		if p, ok := productFrom(item); ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func productFrom(item gjson.Result) (storage.Product, bool) {
	if !item.IsObject() {
		return storage.Product{}, false
	}
	name := item.Get("name")
	if name.Type != gjson.String || strings.TrimSpace(name.Str) == "" {
		return storage.Product{}, false
	}
	for _, key := range []string{"price", "country", "domain"} {
		if item.Get(key).Type != gjson.String {
			return storage.Product{}, false
		}
	}

	p := storage.Product{
		Name:    name.Str,
		Price:   item.Get("price").Str,
		Country: item.Get("country").Str,
		Domain:  item.Get("domain").Str,
	}
	if w := item.Get("website"); w.Type == gjson.String && strings.HasPrefix(w.Str, "http") {
		p.Website = w.Str
	}
	return p, true
}

// applyWebsiteFallback gives products without a website the first source
// whose title mentions the product name. The domain is replaced with that
// source's host, minus "www.", when the host ends in a known public suffix.
func applyWebsiteFallback(products []storage.Product, sources []storage.Source) {
	if len(sources) == 0 {
		return
	}
	for i := range products {
		p := &products[i]
		if p.Website != "" {
			continue
		}
		name := strings.ToLower(p.Name)
		for _, s := range sources {
			if !strings.Contains(strings.ToLower(s.Title), name) {
				continue
			}
			p.Website = s.URI
			if host, ok := hostDomain(s.URI); ok {
				p.Domain = host
			}
			break
		}
	}
}

func hostDomain(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return "", false
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return "", false
	}
	return host, true
}
