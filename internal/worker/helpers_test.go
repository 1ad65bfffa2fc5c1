package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"go-ingest-scheduler/internal/batcher"
	"go-ingest-scheduler/internal/fetcher"
	"go-ingest-scheduler/internal/models"
	"go-ingest-scheduler/internal/store"
)

const testRateLimit = 5 * time.Second

// stubFetcher records every call. When release is set, each call blocks until
// it is closed; the first id fetched is announced on started.
type stubFetcher struct {
	mu       sync.Mutex
	calls    []int64
	failures map[int64]int
	started  chan int64
	release  chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, id int64) (models.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	fail := f.failures[id] > 0
	if fail {
		f.failures[id]--
	}
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- id:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return models.Record{}, ctx.Err()
		}
	}
	if fail {
		return models.Record{}, fetcher.ErrFetchFailed
	}
	return models.Record{ID: id, Data: "ok"}, nil
}

func (f *stubFetcher) Calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

// recordingWorker logs which request each processed batch belonged to and
// tracks how many batches ran at once.
type recordingWorker struct {
	inner       WorkerService
	mu          sync.Mutex
	order       []string
	active      int32
	maxParallel int32
}

func (w *recordingWorker) HandleBatch(ctx context.Context, r *models.Request) bool {
	n := atomic.AddInt32(&w.active, 1)
	for {
		peak := atomic.LoadInt32(&w.maxParallel)
		if n <= peak || atomic.CompareAndSwapInt32(&w.maxParallel, peak, n) {
			break
		}
	}
	w.mu.Lock()
	w.order = append(w.order, r.ID)
	w.mu.Unlock()
	defer atomic.AddInt32(&w.active, -1)
	return w.inner.HandleBatch(ctx, r)
}

func (w *recordingWorker) Order() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

type harness struct {
	clock     *clocktesting.FakeClock
	store     *store.Store
	fetcher   *stubFetcher
	worker    *recordingWorker
	scheduler *Scheduler
}

func newHarness(t *testing.T, f *stubFetcher) *harness {
	t.Helper()
	fakeClock := clocktesting.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	st := store.NewStore()
	rw := &recordingWorker{inner: NewWorker(st, f, 3, 0, fakeClock)}
	s := NewScheduler(context.Background(), st, rw, fakeClock, testRateLimit)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return &harness{clock: fakeClock, store: st, fetcher: f, worker: rw, scheduler: s}
}

func (h *harness) submit(t *testing.T, id string, p models.Priority, ids ...int64) *models.Request {
	t.Helper()
	r := &models.Request{
		ID:        id,
		Priority:  p,
		CreatedAt: h.clock.Now(),
		Batches:   batcher.Split(ids, 3),
	}
	require.NoError(t, h.scheduler.Enqueue(r))
	return r
}

// drain steps the fake clock through every rate-limit window until the loop
// goes idle.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		if !h.scheduler.Running() {
			return true
		}
		if h.clock.HasWaiters() {
			h.clock.Step(testRateLimit)
		}
		return false
	}, 5*time.Second, time.Millisecond)
}

func (h *harness) status(t *testing.T, id string) models.StatusView {
	t.Helper()
	view, err := h.store.View(id)
	require.NoError(t, err)
	return view
}
