package search

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

const whenLayout = "Jan 2, 2006, 3:04 PM"

// HistoryItem is one stored search as shown in a history list.
type HistoryItem struct {
	ID           int64     `json:"id"`
	Term         string    `json:"term"`
	Country      string    `json:"country"`
	Results      int       `json:"results"`
	ResultsLabel string    `json:"results_label"`
	When         string    `json:"when"`
	Ago          string    `json:"ago"`
	Timestamp    time.Time `json:"timestamp"`
}

// History lists stored searches, newest first.
func (s *Service) History(ctx context.Context) ([]HistoryItem, error) {
	entries, err := s.store.ListSearches(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryItem{
			ID:           e.ID,
			Term:         e.SearchTerm,
			Country:      e.SearchCountry,
			Results:      len(e.Products),
			ResultsLabel: ResultsLabel(len(e.Products)),
			When:         e.Timestamp.In(s.loc).Format(whenLayout),
			Ago:          humanize.RelTime(e.Timestamp, now, "ago", "from now"),
			Timestamp:    e.Timestamp,
		})
	}
	return items, nil
}

// ResultsLabel renders a result count as "1 result" or "N results".
func ResultsLabel(n int) string {
	if n == 1 {
		return "1 result"
	}
	return fmt.Sprintf("%d results", n)
}
