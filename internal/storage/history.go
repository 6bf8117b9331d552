package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MaxHistoryItems caps the number of stored searches. Older entries are
// evicted when a new search pushes the count past it.
const MaxHistoryItems = 50

// --- Search history ---

// AppendSearch stores a completed search and evicts the oldest entries so at
// most MaxHistoryItems remain. Insert and eviction share one transaction.
// A zero Timestamp is set to now. The assigned id is returned.
func (s *Store) AppendSearch(ctx context.Context, e SearchEntry) (int64, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	products := e.Products
	if products == nil {
		products = []Product{}
	}
	sources := e.Sources
	if sources == nil {
		sources = []Source{}
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		return 0, fmt.Errorf("marshaling products: %w", err)
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return 0, fmt.Errorf("marshaling sources: %w", err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("beginning history transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO search_history (search_term, search_country, products_json, sources_json, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		e.SearchTerm, e.SearchCountry, string(productsJSON), string(sourcesJSON),
		e.Timestamp.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, unavailable("inserting search entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("reading search entry id", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_history`).Scan(&count); err != nil {
		return 0, unavailable("counting search history", err)
	}
	if excess := count - MaxHistoryItems; excess > 0 {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM search_history WHERE id IN (
				SELECT id FROM search_history ORDER BY timestamp ASC, id ASC LIMIT ?
			)`, excess)
		if err != nil {
			return 0, unavailable("evicting old searches", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("committing search entry", err)
	}
	return id, nil
}

// ListSearches returns stored searches, newest first.
func (s *Store) ListSearches(ctx context.Context) ([]SearchEntry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, search_term, search_country, products_json, sources_json, timestamp
		FROM search_history
		ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		return nil, unavailable("querying search history", err)
	}
	defer rows.Close()

	entries := []SearchEntry{}
	for rows.Next() {
		e, err := scanSearchEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("reading search history", err)
	}
	return entries, nil
}

// GetSearch returns one stored search or ErrNotFound.
func (s *Store) GetSearch(ctx context.Context, id int64) (SearchEntry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, search_term, search_country, products_json, sources_json, timestamp
		FROM search_history WHERE id = ?`, id)
	e, err := scanSearchEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SearchEntry{}, ErrNotFound
	}
	return e, err
}

// ClearSearches removes every stored search. Price history is untouched.
func (s *Store) ClearSearches(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM search_history`); err != nil {
		return unavailable("clearing search history", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSearchEntry(sc rowScanner) (SearchEntry, error) {
	var e SearchEntry
	var productsJSON, sourcesJSON, ts string
	if err := sc.Scan(&e.ID, &e.SearchTerm, &e.SearchCountry, &productsJSON, &sourcesJSON, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, unavailable("scanning search entry", err)
	}
	if err := json.Unmarshal([]byte(productsJSON), &e.Products); err != nil {
		return e, fmt.Errorf("decoding products of search %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &e.Sources); err != nil {
		return e, fmt.Errorf("decoding sources of search %d: %w", e.ID, err)
	}
	t, err := time.Parse(timestampLayout, ts)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp of search %d: %w", e.ID, err)
	}
	e.Timestamp = t
	return e, nil
}
