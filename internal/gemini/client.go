// Package gemini asks a Gemini model with Google Search grounding for
// products matching a free-text query.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/kalambet/prodfinder/internal/storage"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"

	defaultTimeout   = 90 * time.Second
	defaultRetryMax  = 3
	defaultRetryWait = 1 * time.Second
	maxResponseBytes = 8 << 20
)

var (
	// ErrMissingAPIKey is returned by NewClient when no key is configured.
	ErrMissingAPIKey = errors.New("gemini API key is not configured")

	// ErrInvalidAPIKey means the API rejected the configured key.
	ErrInvalidAPIKey = errors.New("the configured Gemini API key is invalid")

	// ErrRequestFailed wraps every other failure to get an answer.
	ErrRequestFailed = errors.New("failed to fetch product information")
)

// Config configures a Client. Only APIKey is required.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	// RequestsPerMinute caps outgoing calls; <= 0 disables the limit.
	RequestsPerMinute int

	Timeout   time.Duration
	RetryMax  int
	RetryWait time.Duration
	Logger    *slog.Logger
}

// Result is what one search returns: the products the model listed and the
// web pages it grounded them on.
type Result struct {
	Products []storage.Product `json:"products"`
	Sources  []storage.Source  `json:"sources"`
}

// Client talks to the generateContent endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient builds a Client. Unset fields fall back to package defaults.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	} else if cfg.RetryMax == 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gemini")

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWait
	rc.RetryWaitMax = cfg.RetryWait * 8
	// Hand the last response back so the API error body can be reported.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = logger

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    rc,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

// FindProducts asks the model for products matching query, optionally
// focused on country. A blank query returns an empty Result without a call.
func (c *Client) FindProducts(ctx context.Context, query, country string) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{Products: []storage.Product{}, Sources: []storage.Source{}}, nil
	}

	body, err := c.generate(ctx, buildPrompt(query, country))
	if err != nil {
		return Result{}, err
	}

	text, sources := parseResponse(body)
	products, err := parseProducts(text)
	if err != nil {
		c.logger.Warn("model returned malformed product JSON", "error", err, "raw", text)
		products = []storage.Product{}
	}
	applyWebsiteFallback(products, sources)

	return Result{Products: products, Sources: sources}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
	Tools    []tool    `json:"tools"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type tool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

func (c *Client) generate(ctx context.Context, prompt string) ([]byte, error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		Tools:    []tool{{GoogleSearch: &struct{}{}}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limiter: %w", ErrRequestFailed, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrRequestFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}
	return body, nil
}
