package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned by single-row price inserts when a sample for
	// the same product and day is already stored. Batch ingestion never
	// returns it; collisions there are counted in IngestResult.Duplicates.
	ErrDuplicate = errors.New("duplicate price point ignored")

	// ErrUnavailable wraps every failure of the storage engine itself,
	// including operations that exceed the store's timeout.
	ErrUnavailable = errors.New("storage unavailable")
)

// Product is one candidate product as reported by the search model.
type Product struct {
	Name    string `json:"name"`
	Price   string `json:"price"`
	Website string `json:"website"`
	Country string `json:"country"`
	Domain  string `json:"domain"`
}

// Source is a web citation the model grounded its answer on.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// PricePoint is one price sample for a product on a calendar day.
type PricePoint struct {
	ID                int64   `json:"id"`
	ProductIdentifier string  `json:"product_identifier"`
	Price             float64 `json:"price"`
	Date              string  `json:"date"` // YYYY-MM-DD
}

// IngestResult reports what happened to a batch of products.
type IngestResult struct {
	Candidates int `json:"candidates"` // records that produced a price point
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"` // already stored for that product and day
	Skipped    int `json:"skipped"`    // no price, name or domain
}

// TrackedProduct summarises the stored history of one product identifier.
type TrackedProduct struct {
	ProductIdentifier string  `json:"product_identifier"`
	Samples           int     `json:"samples"`
	FirstDate         string  `json:"first_date"`
	LastDate          string  `json:"last_date"`
	LastPrice         float64 `json:"last_price"`
}

// SearchEntry is a snapshot of one completed search.
type SearchEntry struct {
	ID            int64     `json:"id"`
	SearchTerm    string    `json:"search_term"`
	SearchCountry string    `json:"search_country"`
	Products      []Product `json:"products"`
	Sources       []Source  `json:"sources"`
	Timestamp     time.Time `json:"timestamp"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// JobPriceIngest is the job type carrying a batch of products to record.
const JobPriceIngest = "price_ingest"
