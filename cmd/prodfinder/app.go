package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kalambet/prodfinder/internal/config"
	"github.com/kalambet/prodfinder/internal/gemini"
	"github.com/kalambet/prodfinder/internal/ingest"
	"github.com/kalambet/prodfinder/internal/search"
	"github.com/kalambet/prodfinder/internal/storage"
	"github.com/kalambet/prodfinder/internal/tracker"
)

const workerPollInterval = 500 * time.Millisecond

// app holds the long-lived objects shared by serve and track. The store is
// opened once here and closed by Close.
type app struct {
	cfg     config.Config
	store   *storage.Store
	service *search.Service
	worker  *ingest.Worker
}

func setupLogging(cfg config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))
}

func openApp(cfg config.Config) (*app, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	finder, err := gemini.NewClient(gemini.Config{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		BaseURL:           cfg.Gemini.BaseURL,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		Timeout:           cfg.Gemini.RequestTimeout(),
		Logger:            slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	store, err := storage.OpenWithOptions(cfg.Storage.DataDir, storage.Options{
		OpTimeout: cfg.Storage.Timeout(),
		Location:  time.Local,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	return &app{
		cfg:     cfg,
		store:   store,
		service: search.New(finder, store, search.Options{Location: time.Local}),
		worker:  ingest.NewWorker(store, store, workerPollInterval),
	}, nil
}

// newTracker builds a tracker over the configured queries. It returns nil
// when no queries are tracked. An empty schedule falls back to @daily so
// one-shot passes still work; serve skips scheduling in that case.
func (a *app) newTracker() (*tracker.Tracker, error) {
	queries, err := tracker.ParseQueries(a.cfg.Tracker.Queries)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, nil
	}
	schedule := a.cfg.Tracker.Schedule
	if schedule == "" {
		schedule = "@daily"
	}
	return tracker.New(a.service, schedule, queries, 0)
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
