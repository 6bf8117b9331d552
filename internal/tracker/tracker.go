// Package tracker re-runs a fixed set of searches on a cron schedule so price
// history keeps growing without manual searches.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/prodfinder/internal/search"
)

const defaultConcurrency = 2

// Query is one tracked search.
type Query struct {
	Text    string `json:"text"`
	Country string `json:"country,omitempty"`
}

func (q Query) String() string {
	if q.Country == "" {
		return q.Text
	}
	return q.Text + "@" + q.Country
}

// ParseQueries reads a comma-separated list of "query" or "query@country"
// items. Blank items are ignored.
func ParseQueries(spec string) ([]Query, error) {
	var out []Query
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		text, country := item, ""
		if i := strings.LastIndex(item, "@"); i >= 0 {
			text, country = strings.TrimSpace(item[:i]), strings.TrimSpace(item[i+1:])
		}
		if text == "" {
			return nil, fmt.Errorf("tracked query %q has no search text", item)
		}
		out = append(out, Query{Text: text, Country: country})
	}
	return out, nil
}

// Searcher runs one search.
type Searcher interface {
	Search(ctx context.Context, query, country string) (search.Result, error)
}

// Summary counts the outcome of one tracking pass.
type Summary struct {
	Succeeded int
	Failed    int
}

// Tracker wraps robfig/cron and runs the tracked queries on each tick.
type Tracker struct {
	cron        *cron.Cron
	searcher    Searcher
	queries     []Query
	schedule    string
	concurrency int
	logger      *slog.Logger
}

// New validates schedule (standard cron syntax or a descriptor such as
// "@daily" or "@every 6h") and returns a stopped Tracker.
func New(searcher Searcher, schedule string, queries []Query, concurrency int) (*Tracker, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid tracker schedule %q: %w", schedule, err)
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger := slog.Default().With("component", "tracker")
	cl := cronLogger{logger}
	return &Tracker{
		cron:        cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		searcher:    searcher,
		queries:     queries,
		schedule:    schedule,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Start registers the tracking job and starts the scheduler.
func (t *Tracker) Start(ctx context.Context) error {
	_, err := t.cron.AddFunc(t.schedule, func() {
		t.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	t.cron.Start()
	t.logger.Info("tracker started", "schedule", t.schedule, "queries", len(t.queries))
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (t *Tracker) Stop() {
	<-t.cron.Stop().Done()
	t.logger.Info("tracker stopped")
}

// RunOnce searches every tracked query, a few at a time. A failing query is
// logged and does not stop the others.
func (t *Tracker) RunOnce(ctx context.Context) Summary {
	if len(t.queries) == 0 {
		t.logger.Info("no tracked queries, nothing to do")
		return Summary{}
	}

	var ok, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(t.concurrency)

	for _, q := range t.queries {
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			res, err := t.searcher.Search(ctx, q.Text, q.Country)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, search.ErrHistoryNotSaved):
				// Prices were still scheduled.
				t.logger.Warn("tracked search not saved to history", "query", q.String(), "error", err)
				ok.Add(1)
			default:
				t.logger.Error("tracked search failed", "query", q.String(), "error", err)
				failed.Add(1)
				return nil
			}
			t.logger.Debug("tracked search done", "query", q.String(), "products", len(res.Products))
			return nil
		})
	}
	g.Wait()

	sum := Summary{Succeeded: int(ok.Load()), Failed: int(failed.Load())}
	t.logger.Info("tracking pass complete", "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum
}

// cronLogger routes robfig/cron logging into slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
