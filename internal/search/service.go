// Package search runs product searches and shapes stored history for display.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/prodfinder/internal/gemini"
	"github.com/kalambet/prodfinder/internal/ingest"
	"github.com/kalambet/prodfinder/internal/storage"
)

var (
	// ErrHistoryNotSaved is returned together with a valid Result when the
	// search succeeded but could not be written to search history.
	ErrHistoryNotSaved = errors.New("search history not saved")

	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrMissingIdentity means a product lacks the name or domain needed to
	// look up its price history.
	ErrMissingIdentity = errors.New("product needs a name and a domain")
)

// Finder finds products for a query.
type Finder interface {
	FindProducts(ctx context.Context, query, country string) (gemini.Result, error)
}

// Store is the persistence the service needs.
type Store interface {
	ingest.Enqueuer
	AppendSearch(ctx context.Context, e storage.SearchEntry) (int64, error)
	ListSearches(ctx context.Context) ([]storage.SearchEntry, error)
	GetSearch(ctx context.Context, id int64) (storage.SearchEntry, error)
	ClearSearches(ctx context.Context) error
	PriceSeries(ctx context.Context, identifier string) ([]storage.PricePoint, error)
	TrackedProducts(ctx context.Context, limit int) ([]storage.TrackedProduct, error)
}

// Options tunes a Service. The zero value is valid.
type Options struct {
	// Location is used for display timestamps; nil means time.Local.
	Location *time.Location
	// Now replaces the clock in tests.
	Now    func() time.Time
	Logger *slog.Logger
}

// Result is one search outcome, fresh or recalled from history.
type Result struct {
	HistoryID   int64             `json:"history_id,omitempty"`
	Query       string            `json:"query"`
	Country     string            `json:"country"`
	Products    []storage.Product `json:"products"`
	Sources     []storage.Source  `json:"sources"`
	Facets      Facets            `json:"facets"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Service ties the finder to search and price history.
type Service struct {
	finder Finder
	store  Store
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func New(finder Finder, store Store, opts Options) *Service {
	s := &Service{finder: finder, store: store, loc: opts.Location, now: opts.Now, logger: opts.Logger}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "search")
	return s
}

// Search asks the finder for products, schedules their prices for recording
// and appends the search to history.
//
// Price recording goes through the job queue and never fails the search; an
// enqueue error is only logged. If the history append fails the Result is
// still returned, with an error wrapping ErrHistoryNotSaved.
func (s *Service) Search(ctx context.Context, query, country string) (Result, error) {
	query = strings.TrimSpace(query)
	country = strings.TrimSpace(country)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}

	found, err := s.finder.FindProducts(ctx, query, country)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Query:       query,
		Country:     country,
		Products:    nonNilProducts(found.Products),
		Sources:     nonNilSources(found.Sources),
		CompletedAt: s.now(),
	}
	res.Facets = FacetsOf(res.Products)

	if len(res.Products) > 0 {
		if jobID, err := ingest.Enqueue(ctx, s.store, res.Products, res.CompletedAt); err != nil {
			s.logger.Warn("scheduling price ingest failed", "query", query, "error", err)
		} else {
			s.logger.Debug("price ingest scheduled", "job_id", jobID, "products", len(res.Products))
		}
	}

	id, err := s.store.AppendSearch(ctx, storage.SearchEntry{
		SearchTerm:    query,
		SearchCountry: country,
		Products:      res.Products,
		Sources:       res.Sources,
		Timestamp:     res.CompletedAt,
	})
	if err != nil {
		s.logger.Error("saving search history failed", "query", query, "error", err)
		return res, fmt.Errorf("%w: %w", ErrHistoryNotSaved, err)
	}
	res.HistoryID = id

	s.logger.Info("search completed", "query", query, "country", country,
		"products", len(res.Products), "sources", len(res.Sources), "history_id", id)
	return res, nil
}

// Recall rebuilds the Result of a stored search.
func (s *Service) Recall(ctx context.Context, id int64) (Result, error) {
	e, err := s.store.GetSearch(ctx, id)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		HistoryID:   e.ID,
		Query:       e.SearchTerm,
		Country:     e.SearchCountry,
		Products:    nonNilProducts(e.Products),
		Sources:     nonNilSources(e.Sources),
		CompletedAt: e.Timestamp,
	}
	res.Facets = FacetsOf(res.Products)
	return res, nil
}

// ClearHistory drops all stored searches. Price history is kept.
func (s *Service) ClearHistory(ctx context.Context) error {
	if err := s.store.ClearSearches(ctx); err != nil {
		return fmt.Errorf("clearing search history: %w", err)
	}
	return nil
}

// TrackedProducts lists products with recorded prices.
func (s *Service) TrackedProducts(ctx context.Context, limit int) ([]storage.TrackedProduct, error) {
	return s.store.TrackedProducts(ctx, limit)
}

func nonNilProducts(p []storage.Product) []storage.Product {
	if p == nil {
		return []storage.Product{}
	}
	return p
}

func nonNilSources(s []storage.Source) []storage.Source {
	if s == nil {
		return []storage.Source{}
	}
	return s
}
