package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"k8s.io/utils/clock"

	"go-ingest-scheduler/internal/fetcher"
	"go-ingest-scheduler/internal/metrics"
	"go-ingest-scheduler/internal/models"
	"go-ingest-scheduler/internal/store"
)

type WorkerService interface {
	HandleBatch(ctx context.Context, r *models.Request) (completed bool)
}

// Worker processes one batch at a time, fetching its ids strictly in order.
type Worker struct {
	store      *store.Store
	fetcher    fetcher.FetcherService
	attempts   uint
	retryDelay time.Duration
	clock      clock.Clock
}

func NewWorker(st *store.Store, fs fetcher.FetcherService, attempts uint, retryDelay time.Duration, clk clock.Clock) *Worker {
	if attempts == 0 {
		attempts = 1
	}
	return &Worker{
		store:      st,
		fetcher:    fs,
		attempts:   attempts,
		retryDelay: retryDelay,
		clock:      clk,
	}
}

// HandleBatch runs the request's first pending batch to completion and
// reports whether every batch of the request is now done.
func (w *Worker) HandleBatch(ctx context.Context, r *models.Request) bool {
	batch, ids, ok := w.store.StartBatch(r)
	if !ok {
		slog.Warn("No pending batch left for request", "requestID", r.ID)
		return true
	}
	slog.Info("Processing batch", "requestID", r.ID, "batchID", batch.ID, "priority", r.Priority, "ids", ids)
	start := w.clock.Now()

	data := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		data = append(data, w.fetchOne(ctx, id))
	}

	completed := w.store.FinishBatch(r, batch, data)
	metrics.RecordBatch(r.Priority.String(), w.clock.Since(start))
	slog.Info("Batch completed", "requestID", r.ID, "batchID", batch.ID)
	return completed
}

// fetchOne never fails: an id that cannot be fetched is recorded with its
// error so the batch can still complete.
func (w *Worker) fetchOne(ctx context.Context, id int64) models.Record {
	var record models.Record
	err := retry.Do(
		func() error {
			var err error
			record, err = w.fetcher.Fetch(ctx, id)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(w.attempts),
		retry.Delay(w.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Fetch attempt failed", "id", id, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		slog.Error("Giving up on id", "id", id, "error", err)
		metrics.RecordFetchFailure()
		return models.Record{ID: id, Error: err.Error()}
	}
	return record
}
