package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"go-ingest-scheduler/internal/metrics"
	"go-ingest-scheduler/internal/models"
	"go-ingest-scheduler/internal/queue"
	"go-ingest-scheduler/internal/store"
)

var ErrStopped = errors.New("scheduler stopped")

type SchedulerService interface {
	Enqueue(r *models.Request) error
	Stop(ctx context.Context) error
}

// Scheduler owns the priority queue, admission into the request store and the
// single processing loop. At most
// one loop runs at a time: it holds the only slot of sem while active and
// gives it back, under mu, once the queue is empty.
type Scheduler struct {
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	queue     *queue.Queue
	store     *store.Store
	worker    WorkerService
	clock     clock.Clock
	rateLimit time.Duration
	sem       *semaphore.Weighted
	stopped   bool
}

func NewScheduler(ctx context.Context, st *store.Store, w WorkerService, clk clock.Clock, rateLimit time.Duration) *Scheduler {
	loopCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:       loopCtx,
		cancel:    cancel,
		queue:     queue.NewQueue(),
		store:     st,
		worker:    w,
		clock:     clk,
		rateLimit: rateLimit,
		sem:       semaphore.NewWeighted(1),
	}
}

// Enqueue stores r, adds it to the queue, re-sorts and starts the loop if it
// is idle, all as one step relative to the loop and to Stop. A rejected
// request is never stored.
func (s *Scheduler) Enqueue(r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.store.Put(r)
	s.queue.Push(r)
	metrics.SetQueueDepth(s.queue.Len())
	slog.Info("Request added to queue", "requestID", r.ID, "priority", r.Priority, "queueLength", s.queue.Len())
	if s.sem.TryAcquire(1) {
		go s.run()
	}
	return nil
}

func (s *Scheduler) run() {
	slog.Info("Starting ingestion processing loop")
	for {
		s.mu.Lock()
		head, ok := s.queue.Head()
		if !ok || s.ctx.Err() != nil {
			s.release()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		// A started batch always runs to completion, even during shutdown.
		completed := s.worker.HandleBatch(context.WithoutCancel(s.ctx), head)

		s.mu.Lock()
		if completed {
			s.queue.Remove(head)
			slog.Info("Ingestion request fully completed, removed from queue", "requestID", head.ID)
		}
		metrics.SetQueueDepth(s.queue.Len())
		if s.queue.Len() == 0 {
			s.release()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Debug("Applying rate limit before next batch", "wait", s.rateLimit)
		select {
		case <-s.clock.After(s.rateLimit):
		case <-s.ctx.Done():
		}
	}
}

// release must be called with mu held.
func (s *Scheduler) release() {
	s.sem.Release(1)
	slog.Info("Ingestion processing loop finished", "queueLength", s.queue.Len())
}

// Running reports whether the processing loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sem.TryAcquire(1) {
		s.sem.Release(1)
		return false
	}
	return true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Pending lists queued request ids in the order they will be served.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.IDs()
}

// Stop refuses further admissions, lets the in-flight batch finish and waits
// for the loop to exit or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	slog.Info("Stopping scheduler...")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	slog.Info("Waiting for in-flight batch to finish...")
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "waiting for processing loop")
	}
	s.sem.Release(1)
	slog.Info("Scheduler stop completed", "unprocessedRequests", s.Len())
	return nil
}
