package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/prodfinder/internal/gemini"
	"github.com/kalambet/prodfinder/internal/search"
	"github.com/kalambet/prodfinder/internal/storage"
)

const testToken = "test-token-12345"

type stubFinder struct {
	result gemini.Result
	err    error
}

func (f *stubFinder) FindProducts(_ context.Context, _, _ string) (gemini.Result, error) {
	return f.result, f.err
}

var testNow = time.Date(2025, 3, 1, 15, 4, 0, 0, time.UTC)

func testResult() gemini.Result {
	return gemini.Result{
		Products: []storage.Product{
			{Name: "Kettle Pro", Price: "$49.00", Website: "https://shop.example/k", Country: "USA", Domain: "shop.example"},
			{Name: "Kettle Mini", Price: "$19.50", Website: "https://cheap.example/k", Country: "UK", Domain: "cheap.example"},
			{Name: "Kettle Max", Price: "call us", Website: "https://shop.example/m", Country: "USA", Domain: "shop.example"},
		},
		Sources: []storage.Source{{URI: "https://shop.example", Title: "Shop"}},
	}
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestService(finder search.Finder, store search.Store) *search.Service {
	return search.New(finder, store, search.Options{Location: time.UTC, Now: func() time.Time { return testNow }})
}

func setupAppHandler(t *testing.T, token string, finder search.Finder) (http.Handler, *storage.Store) {
	t.Helper()
	store := openTestStore(t)
	handler := NewRouter(AppDeps{
		Service: newTestService(finder, store),
		Token:   token,
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type, body.Error.Message
}

func TestHealth(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestAuth_MissingToken(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/history", "", ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if typ, _ := decodeError(t, rr); typ != "authentication_error" {
		t.Fatalf("expected authentication_error, got %s", typ)
	}
}

func TestAuth_WrongToken(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/history", "", "wrong"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuth_UnconfiguredTokenLocksAPI(t *testing.T) {
	h, _ := setupAppHandler(t, "", &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/history", "", "anything"))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestSearch_Success(t *testing.T) {
	h, store := setupAppHandler(t, testToken, &stubFinder{result: testResult()})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/search", `{"query":"kettle","country":"USA"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.HistoryID == 0 {
		t.Fatal("expected history id")
	}
	if resp.Total != 3 || len(resp.Products) != 3 {
		t.Fatalf("expected 3 products, got total=%d len=%d", resp.Total, len(resp.Products))
	}
	if resp.Products[0].Name != "Kettle Pro" {
		t.Fatalf("default order should be kept, got %s first", resp.Products[0].Name)
	}
	if len(resp.Facets.Domains) != 2 {
		t.Fatalf("expected 2 domain facets, got %v", resp.Facets.Domains)
	}

	entries, err := store.ListSearches(context.Background())
	if err != nil {
		t.Fatalf("ListSearches: %v", err)
	}
	if len(entries) != 1 || entries[0].SearchTerm != "kettle" {
		t.Fatalf("expected one saved search, got %+v", entries)
	}
	n, err := store.PendingJobs(context.Background(), []string{storage.JobPriceIngest})
	if err != nil {
		t.Fatalf("PendingJobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one price ingest job, got %d", n)
	}
}

func TestSearch_SortAndFilter(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{result: testResult()})

	body := `{"query":"kettle","sort":"price_asc","domain_filter":"shop.example"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/search", body, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 3 {
		t.Fatalf("total should count unfiltered products, got %d", resp.Total)
	}
	if len(resp.Products) != 2 {
		t.Fatalf("expected 2 filtered products, got %d", len(resp.Products))
	}
	if resp.Products[0].Name != "Kettle Pro" || resp.Products[1].Name != "Kettle Max" {
		t.Fatalf("unparsable price should sort last, got %s, %s", resp.Products[0].Name, resp.Products[1].Name)
	}
}

func TestSearch_InvalidBody(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/search", `{not json`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/search", `{"query":"   "}`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSearch_UnknownSort(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/search", `{"query":"kettle","sort":"cheapest"}`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSearch_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{"invalid key", fmt.Errorf("generate: %w", gemini.ErrInvalidAPIKey), "upstream_auth_error"},
		{"request failed", fmt.Errorf("generate: %w", gemini.ErrRequestFailed), "api_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store := setupAppHandler(t, testToken, &stubFinder{err: tt.err})

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, authReq(http.MethodPost, "/search", `{"query":"kettle"}`, testToken))

			if rr.Code != http.StatusBadGateway {
				t.Fatalf("expected 502, got %d", rr.Code)
			}
			if typ, _ := decodeError(t, rr); typ != tt.wantType {
				t.Fatalf("expected %s, got %s", tt.wantType, typ)
			}
			entries, _ := store.ListSearches(context.Background())
			if len(entries) != 0 {
				t.Fatalf("failed search should not be saved, got %d entries", len(entries))
			}
		})
	}
}

// failingHistory fails history appends but keeps everything else.
type failingHistory struct {
	*storage.Store
}

func (failingHistory) AppendSearch(context.Context, storage.SearchEntry) (int64, error) {
	return 0, fmt.Errorf("append: %w", storage.ErrUnavailable)
}

func TestSearch_HistoryNotSavedReturnsResults(t *testing.T) {
	store := openTestStore(t)
	h := NewRouter(AppDeps{
		Service: newTestService(&stubFinder{result: testResult()}, failingHistory{store}),
		Token:   testToken,
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/search", `{"query":"kettle"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Products) != 3 {
		t.Fatalf("expected results despite history failure, got %d", len(resp.Products))
	}
	if resp.Warning == "" {
		t.Fatal("expected a warning")
	}
}

func TestHistory_ListAndGet(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{result: testResult()})

	for _, q := range []string{"kettle", "toaster"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodPost, "/search", fmt.Sprintf(`{"query":%q}`, q), testToken))
		if rr.Code != http.StatusOK {
			t.Fatalf("search %q: %d", q, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/history", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var items []search.HistoryItem
	if err := json.NewDecoder(rr.Body).Decode(&items); err != nil {
		t.Fatalf("decoding history: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Term != "toaster" {
		t.Fatalf("expected newest first, got %s", items[0].Term)
	}
	if items[0].ResultsLabel != "3 results" {
		t.Fatalf("unexpected label %q", items[0].ResultsLabel)
	}

	rr = httptest.NewRecorder()
	url := fmt.Sprintf("/history/%d?sort=price_desc&country_filter=USA", items[1].ID)
	h.ServeHTTP(rr, authReq(http.MethodGet, url, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding entry: %v", err)
	}
	if resp.Query != "kettle" {
		t.Fatalf("expected kettle, got %s", resp.Query)
	}
	if len(resp.Products) != 2 || resp.Products[0].Name != "Kettle Max" {
		t.Fatalf("unexpected view: %+v", resp.Products)
	}
}

func TestHistory_GetNotFound(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/history/999", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHistory_GetInvalidID(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/history/abc", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHistory_Clear(t *testing.T) {
	h, store := setupAppHandler(t, testToken, &stubFinder{result: testResult()})
	ctx := context.Background()

	if _, err := store.IngestPrices(ctx, testResult().Products, testNow); err != nil {
		t.Fatalf("IngestPrices: %v", err)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/search", `{"query":"kettle"}`, testToken))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/history", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	entries, _ := store.ListSearches(ctx)
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d", len(entries))
	}
	points, _ := store.PriceSeries(ctx, "kettle pro|shop.example")
	if len(points) != 1 {
		t.Fatalf("clearing history must keep prices, got %d points", len(points))
	}
}

func TestPriceSeries(t *testing.T) {
	h, store := setupAppHandler(t, testToken, &stubFinder{})
	ctx := context.Background()

	for i, price := range []float64{49, 45.5} {
		p := &storage.PricePoint{
			ProductIdentifier: "kettle pro|shop.example",
			Price:             price,
			Date:              fmt.Sprintf("2025-03-0%d", i+1),
		}
		if err := store.InsertPricePoint(ctx, p); err != nil {
			t.Fatalf("InsertPricePoint: %v", err)
		}
	}

	for _, url := range []string{
		"/prices/series?product=kettle+pro%7Cshop.example",
		"/prices/series?name=Kettle%20Pro&domain=Shop.Example",
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, url, "", testToken))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", url, rr.Code, rr.Body.String())
		}
		var resp SeriesResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding series: %v", err)
		}
		if !resp.EnoughData {
			t.Fatalf("%s: expected enough data", url)
		}
		if len(resp.Values) != 2 || resp.Values[0] != 49 || resp.Labels[1] != "2025-03-02" {
			t.Fatalf("%s: unexpected series %+v", url, resp.Series)
		}
	}
}

func TestPriceSeries_Unknown(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/prices/series?product=nothing%7Cnowhere", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp SeriesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding series: %v", err)
	}
	if resp.EnoughData || len(resp.Values) != 0 {
		t.Fatalf("expected empty series, got %+v", resp)
	}
}

func TestPriceSeries_MissingParams(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	for _, url := range []string{"/prices/series", "/prices/series?name=Kettle"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodGet, url, "", testToken))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", url, rr.Code)
		}
	}
}

func TestTrackedProducts(t *testing.T) {
	h, store := setupAppHandler(t, testToken, &stubFinder{})
	if _, err := store.IngestPrices(context.Background(), testResult().Products, testNow); err != nil {
		t.Fatalf("IngestPrices: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/prices/products?limit=1", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var products []storage.TrackedProduct
	if err := json.NewDecoder(rr.Body).Decode(&products); err != nil {
		t.Fatalf("decoding products: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(products))
	}
}

func TestTrackedProducts_EmptyIsArray(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, &stubFinder{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/prices/products", "", testToken))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected [], got %s", rr.Body.String())
	}
}

func TestStorageUnavailable(t *testing.T) {
	store := openTestStore(t)
	h := NewRouter(AppDeps{Service: newTestService(&stubFinder{}, store), Token: testToken})
	store.Close()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/history", "", testToken))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if typ, _ := decodeError(t, rr); typ != "storage_error" {
		t.Fatalf("expected storage_error, got %s", typ)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=-1", 20},
		{"limit=abc", 20},
		{"limit=500", 200},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20, 200); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestServiceError_Unknown(t *testing.T) {
	rr := httptest.NewRecorder()
	serviceError(rr, "thing", errors.New("boom"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
