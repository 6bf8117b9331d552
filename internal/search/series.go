package search

import (
	"context"
	"strings"

	"github.com/kalambet/prodfinder/internal/pricing"
)

// Series is a price history shaped for charting: Labels[i] is the day of
// Values[i], oldest first.
type Series struct {
	Identifier string    `json:"identifier"`
	Labels     []string  `json:"labels"`
	Values     []float64 `json:"values"`
}

// HasEnoughData reports whether the series has at least two points, the
// minimum for drawing a trend.
func (s Series) HasEnoughData() bool {
	return len(s.Labels) >= 2
}

// Series loads the price history of one product identifier. Unknown
// identifiers give an empty series.
func (s *Service) Series(ctx context.Context, identifier string) (Series, error) {
	points, err := s.store.PriceSeries(ctx, identifier)
	if err != nil {
		return Series{}, err
	}
	out := Series{
		Identifier: identifier,
		Labels:     make([]string, 0, len(points)),
		Values:     make([]float64, 0, len(points)),
	}
	for _, p := range points {
		out.Labels = append(out.Labels, p.Date)
		out.Values = append(out.Values, p.Price)
	}
	return out, nil
}

// SeriesFor is Series for a product given by name and domain.
func (s *Service) SeriesFor(ctx context.Context, name, domain string) (Series, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(domain) == "" {
		return Series{}, ErrMissingIdentity
	}
	return s.Series(ctx, pricing.ProductIdentifier(name, domain))
}
