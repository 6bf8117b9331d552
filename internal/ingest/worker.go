// Package ingest records price samples in the background so a search never
// waits on the price history write.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/prodfinder/internal/storage"
)

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// JobStore abstracts the job queue operations.
type JobStore interface {
	Enqueuer
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	RequeueRunningJobs(ctx context.Context, types []string) (int, error)
}

// bookkeepingTimeout bounds the job status update that follows a job, which
// still runs when the worker's context has been cancelled.
const bookkeepingTimeout = 5 * time.Second

// PriceRecorder writes a batch of products into price history.
type PriceRecorder interface {
	IngestPrices(ctx context.Context, products []storage.Product, asOf time.Time) (storage.IngestResult, error)
}

// Payload is the body of a price_ingest job.
type Payload struct {
	Products []storage.Product `json:"products"`
	AsOf     time.Time         `json:"as_of"`
}

// Enqueue schedules products for price ingestion as of the given moment and
// returns the job id. The sample day is fixed at enqueue time, so a retry
// after midnight still files the prices under the day they were seen.
func Enqueue(ctx context.Context, store Enqueuer, products []storage.Product, asOf time.Time) (string, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	payload, err := json.Marshal(Payload{Products: products, AsOf: asOf})
	if err != nil {
		return "", fmt.Errorf("encoding ingest payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobPriceIngest,
		PayloadJSON: string(payload),
	}
	if err := store.EnqueueJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueueing price ingest: %w", err)
	}
	return job.ID, nil
}

// Worker processes price_ingest jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	prices    PriceRecorder
	poll      time.Duration
	logger    *slog.Logger
	recovered sync.Once
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, prices PriceRecorder, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		prices: prices,
		poll:   pollInterval,
		logger: slog.Default().With("component", "ingest"),
	}
}

// requeueInterrupted puts jobs a previous worker left running back in the
// queue. It runs once per Worker, before the first claim.
func (w *Worker) requeueInterrupted(ctx context.Context) {
	w.recovered.Do(func() {
		n, err := w.store.RequeueRunningJobs(ctx, []string{storage.JobPriceIngest})
		if err != nil {
			w.logger.Error("failed to requeue interrupted jobs", "error", err)
			return
		}
		if n > 0 {
			w.logger.Info("requeued interrupted jobs", "count", n)
		}
	})
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.requeueInterrupted(ctx)
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Drain processes every job that is runnable now and returns. Jobs waiting
// out a retry backoff are left for a later Run or Drain.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	w.requeueInterrupted(ctx)
	processed := 0
	for ctx.Err() == nil {
		done, err := w.RunOnce(ctx)
		if err != nil {
			return processed, err
		}
		if !done {
			break
		}
		processed++
	}
	return processed, ctx.Err()
}

// RunOnce claims and processes a single price_ingest job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{storage.JobPriceIngest})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	procErr := w.processJob(ctx, job)

	// The claimed job must leave the running state even when ctx is done.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if procErr != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", procErr)
		if failErr := w.store.FailJob(bctx, job.ID, procErr.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(bctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	res, err := w.prices.IngestPrices(ctx, payload.Products, payload.AsOf)
	if err != nil {
		return fmt.Errorf("recording prices: %w", err)
	}

	w.logger.Debug("prices recorded",
		"job_id", job.ID,
		"candidates", res.Candidates,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"skipped", res.Skipped,
	)
	return nil
}
