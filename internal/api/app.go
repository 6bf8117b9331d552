package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/prodfinder/internal/search"
	"github.com/kalambet/prodfinder/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SearchService is the search and history surface the API exposes.
type SearchService interface {
	Search(ctx context.Context, query, country string) (search.Result, error)
	Recall(ctx context.Context, id int64) (search.Result, error)
	History(ctx context.Context) ([]search.HistoryItem, error)
	ClearHistory(ctx context.Context) error
	Series(ctx context.Context, identifier string) (search.Series, error)
	SeriesFor(ctx context.Context, name, domain string) (search.Series, error)
	TrackedProducts(ctx context.Context, limit int) ([]storage.TrackedProduct, error)
}

type AppDeps struct {
	Service SearchService
	Token   string
	// SearchTimeout bounds one model call; zero means no extra bound.
	SearchTimeout time.Duration
}

type SearchRequest struct {
	Query         string `json:"query"`
	Country       string `json:"country"`
	Sort          string `json:"sort"`
	CountryFilter string `json:"country_filter"`
	DomainFilter  string `json:"domain_filter"`
}

// SearchResponse is a search result with the requested view applied.
// Total counts products before filtering.
type SearchResponse struct {
	search.Result
	Total   int    `json:"total"`
	Warning string `json:"warning,omitempty"`
}

type SeriesResponse struct {
	search.Series
	EnoughData bool `json:"enough_data"`
}

// NewRouter serves /health without auth and everything else behind
// BearerAuth.
func NewRouter(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/search", handleSearch(deps))
		r.Get("/history", handleListHistory(deps))
		r.Get("/history/{id}", handleGetHistory(deps))
		r.Delete("/history", handleClearHistory(deps))
		r.Get("/prices/series", handlePriceSeries(deps))
		r.Get("/prices/products", handleTrackedProducts(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		order, err := search.ParseSortOrder(req.Sort)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		ctx := r.Context()
		if deps.SearchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, deps.SearchTimeout)
			defer cancel()
		}

		res, err := deps.Service.Search(ctx, req.Query, req.Country)
		var warning string
		if errors.Is(err, search.ErrHistoryNotSaved) {
			warning = err.Error()
		} else if err != nil {
			serviceError(w, "search", err)
			return
		}

		writeJSON(w, viewResponse(res, search.View{Sort: order, Country: req.CountryFilter, Domain: req.DomainFilter}, warning))
	}
}

func viewResponse(res search.Result, v search.View, warning string) SearchResponse {
	total := len(res.Products)
	res.Products = v.Apply(res.Products)
	return SearchResponse{Result: res, Total: total, Warning: warning}
}

func handleListHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Service.History(r.Context())
		if err != nil {
			serviceError(w, "failed to list history", err)
			return
		}
		writeJSON(w, items)
	}
}

func handleGetHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid history id")
			return
		}
		order, err := search.ParseSortOrder(r.URL.Query().Get("sort"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		res, err := deps.Service.Recall(r.Context(), id)
		if err != nil {
			serviceError(w, "history entry", err)
			return
		}

		q := r.URL.Query()
		writeJSON(w, viewResponse(res, search.View{Sort: order, Country: q.Get("country_filter"), Domain: q.Get("domain_filter")}, ""))
	}
}

func handleClearHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Service.ClearHistory(r.Context()); err != nil {
			serviceError(w, "failed to clear history", err)
			return
		}
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

func handlePriceSeries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			series search.Series
			err    error
		)
		switch {
		case q.Get("product") != "":
			series, err = deps.Service.Series(r.Context(), q.Get("product"))
		case q.Get("name") != "" || q.Get("domain") != "":
			series, err = deps.Service.SeriesFor(r.Context(), q.Get("name"), q.Get("domain"))
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "product or name and domain are required")
			return
		}
		if err != nil {
			serviceError(w, "failed to load price series", err)
			return
		}

		writeJSON(w, SeriesResponse{Series: series, EnoughData: series.HasEnoughData()})
	}
}

func handleTrackedProducts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)

		products, err := deps.Service.TrackedProducts(r.Context(), limit)
		if err != nil {
			serviceError(w, "failed to list tracked products", err)
			return
		}
		if products == nil {
			products = []storage.TrackedProduct{}
		}
		writeJSON(w, products)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
