package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/prodfinder/internal/pricing"
)

// --- Price history ---

// IngestPrices records one price sample per product for the day of asOf
// (today when asOf is zero), evaluated in the store's time zone.
//
// Products without a parsable price, a name or a domain are skipped; a
// whitespace-only name or domain counts as missing. All remaining
// candidates are written in one transaction; a candidate whose
// product already has a sample for that day is left out by the
// (product_identifier, date) unique constraint and counted as a duplicate.
// Only storage failures are returned, wrapped in ErrUnavailable.
func (s *Store) IngestPrices(ctx context.Context, products []Product, asOf time.Time) (IngestResult, error) {
	var res IngestResult

	if asOf.IsZero() {
		asOf = time.Now()
	}
	date := asOf.In(s.loc).Format(dateLayout)

	candidates := make([]PricePoint, 0, len(products))
	for _, p := range products {
		price, ok := pricing.Normalize(p.Price)
		if !ok || strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.Domain) == "" {
			res.Skipped++
			continue
		}
		candidates = append(candidates, PricePoint{
			ProductIdentifier: pricing.ProductIdentifier(p.Name, p.Domain),
			Price:             price,
			Date:              date,
		})
	}
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		return res, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, unavailable("beginning ingest transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_points (product_identifier, price, date)
		VALUES (?, ?, ?)
		ON CONFLICT(product_identifier, date) DO NOTHING`)
	if err != nil {
		return res, unavailable("preparing price insert", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range candidates {
		r, err := stmt.ExecContext(ctx, c.ProductIdentifier, c.Price, c.Date)
		if err != nil {
			return res, unavailable(fmt.Sprintf("inserting price for %q", c.ProductIdentifier), err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, unavailable("checking inserted price rows", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return res, unavailable("committing price ingest", err)
	}

	res.Inserted = inserted
	res.Duplicates = len(candidates) - inserted
	return res, nil
}

// InsertPricePoint stores a single sample. Unlike IngestPrices it reports a
// collision with an existing sample for the same product and day as
// ErrDuplicate. The assigned id is written back into p.
func (s *Store) InsertPricePoint(ctx context.Context, p *PricePoint) error {
	if p.ProductIdentifier == "" || p.Date == "" {
		return fmt.Errorf("price point needs an identifier and a date")
	}
	if _, err := time.Parse(dateLayout, p.Date); err != nil {
		return fmt.Errorf("invalid price date %q: %w", p.Date, err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	r, err := s.db.ExecContext(ctx,
		`INSERT INTO price_points (product_identifier, price, date) VALUES (?, ?, ?)`,
		p.ProductIdentifier, p.Price, p.Date,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return unavailable("inserting price point", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return unavailable("reading price point id", err)
	}
	p.ID = id
	return nil
}

// PriceSeries returns every sample for identifier, oldest day first. An
// unknown identifier yields an empty slice and no error.
func (s *Store) PriceSeries(ctx context.Context, identifier string) ([]PricePoint, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_identifier, price, date
		FROM price_points WHERE product_identifier = ?
		ORDER BY date ASC`, identifier,
	)
	if err != nil {
		return nil, unavailable("querying price series", err)
	}
	defer rows.Close()

	points := []PricePoint{}
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.ID, &p.ProductIdentifier, &p.Price, &p.Date); err != nil {
			return nil, unavailable("scanning price point", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("reading price series", err)
	}
	return points, nil
}

// TrackedProducts lists identifiers with stored prices, most recently
// sampled first.
func (s *Store) TrackedProducts(ctx context.Context, limit int) ([]TrackedProduct, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.product_identifier, COUNT(*), MIN(p.date), MAX(p.date),
			(SELECT l.price FROM price_points l
			 WHERE l.product_identifier = p.product_identifier
			 ORDER BY l.date DESC LIMIT 1)
		FROM price_points p
		GROUP BY p.product_identifier
		ORDER BY MAX(p.date) DESC, p.product_identifier ASC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, unavailable("querying tracked products", err)
	}
	defer rows.Close()

	var out []TrackedProduct
	for rows.Next() {
		var t TrackedProduct
		if err := rows.Scan(&t.ProductIdentifier, &t.Samples, &t.FirstDate, &t.LastDate, &t.LastPrice); err != nil {
			return nil, unavailable("scanning tracked product", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("reading tracked products", err)
	}
	return out, nil
}
