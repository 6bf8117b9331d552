package search

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/kalambet/prodfinder/internal/pricing"
	"github.com/kalambet/prodfinder/internal/storage"
)

// SortOrder is how a product list is ordered for display.
type SortOrder string

const (
	OrderDefault   SortOrder = "default"
	OrderPriceAsc  SortOrder = "price_asc"
	OrderPriceDesc SortOrder = "price_desc"
)

// ParseSortOrder validates a sort order name. Empty means OrderDefault.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case "":
		return OrderDefault, nil
	case OrderDefault, OrderPriceAsc, OrderPriceDesc:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want default, price_asc or price_desc)", s)
	}
}

// SortProducts returns a sorted copy of products. OrderDefault keeps the
// model's order. Prices that do not parse count as the highest value, so
// they sink to the bottom ascending and rise to the top descending. Equal
// prices keep their relative order.
func SortProducts(products []storage.Product, order SortOrder) []storage.Product {
	out := slices.Clone(products)
	switch order {
	case OrderPriceAsc:
		slices.SortStableFunc(out, func(a, b storage.Product) int {
			return cmp.Compare(pricing.SortKey(a.Price), pricing.SortKey(b.Price))
		})
	case OrderPriceDesc:
		slices.SortStableFunc(out, func(a, b storage.Product) int {
			return cmp.Compare(pricing.SortKey(b.Price), pricing.SortKey(a.Price))
		})
	}
	return out
}

// FilterProducts keeps products matching country and domain exactly. An
// empty filter matches everything.
func FilterProducts(products []storage.Product, country, domain string) []storage.Product {
	out := make([]storage.Product, 0, len(products))
	for _, p := range products {
		if country != "" && p.Country != country {
			continue
		}
		if domain != "" && p.Domain != domain {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Facets lists the values a result set can be filtered by.
type Facets struct {
	Countries []string `json:"countries"`
	Domains   []string `json:"domains"`
}

// FacetsOf collects the sorted, unique, non-empty countries and domains.
func FacetsOf(products []storage.Product) Facets {
	f := Facets{Countries: []string{}, Domains: []string{}}
	for _, p := range products {
		if p.Country != "" {
			f.Countries = append(f.Countries, p.Country)
		}
		if p.Domain != "" {
			f.Domains = append(f.Domains, p.Domain)
		}
	}
	slices.Sort(f.Countries)
	slices.Sort(f.Domains)
	f.Countries = slices.Compact(f.Countries)
	f.Domains = slices.Compact(f.Domains)
	return f
}

// View is a filter plus ordering applied to a result set.
type View struct {
	Sort    SortOrder
	Country string
	Domain  string
}

// Apply filters then sorts products.
func (v View) Apply(products []storage.Product) []storage.Product {
	return SortProducts(FilterProducts(products, v.Country, v.Domain), v.Sort)
}
