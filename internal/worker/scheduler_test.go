package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ingest-scheduler/internal/batcher"
	"go-ingest-scheduler/internal/models"
	"go-ingest-scheduler/internal/store"
)

func TestHighPriorityDrainsBeforeLow(t *testing.T) {
	h := newHarness(t, &stubFetcher{})

	h.submit(t, "high", models.PriorityHigh, 1, 2, 3, 4, 5)
	h.submit(t, "low", models.PriorityLow, 1, 2, 3, 4, 5)
	h.drain(t)

	assert.Equal(t, []string{"high", "high", "low", "low"}, h.worker.Order())
	assert.Equal(t, models.StatusDone, h.status(t, "high").Status)
	assert.Equal(t, models.StatusDone, h.status(t, "low").Status)
	assert.Equal(t, 0, h.scheduler.Len())
}

func TestHigherPriorityPreemptsAtBatchBoundary(t *testing.T) {
	f := &stubFetcher{started: make(chan int64, 1), release: make(chan struct{})}
	h := newHarness(t, f)

	h.submit(t, "medium", models.PriorityMedium, 1, 2, 3, 4, 5)
	select {
	case id := <-f.started:
		require.Equal(t, int64(1), id)
	case <-time.After(time.Second):
		t.Fatal("first batch never started")
	}
	medium := h.status(t, "medium")
	assert.Equal(t, models.StatusInProgress, medium.Status)
	assert.Equal(t, models.StatusInProgress, medium.Batches[0].Status)

	h.clock.Step(time.Millisecond)
	h.submit(t, "high", models.PriorityHigh, 6, 7, 8, 9, 10, 11)
	assert.Equal(t, []string{"high", "medium"}, h.scheduler.Pending())

	close(f.release)
	h.drain(t)

	assert.Equal(t, []string{"medium", "high", "high", "medium"}, h.worker.Order())
	assert.Equal(t, []int64{1, 2, 3, 6, 7, 8, 9, 10, 11, 4, 5}, f.Calls())
	assert.Equal(t, models.StatusDone, h.status(t, "medium").Status)
	assert.Equal(t, models.StatusDone, h.status(t, "high").Status)
}

func TestHigherPriorityOvertakesSingleBatchRequest(t *testing.T) {
	f := &stubFetcher{started: make(chan int64, 1), release: make(chan struct{})}
	h := newHarness(t, f)

	h.submit(t, "medium", models.PriorityMedium, 1, 2)
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("first batch never started")
	}

	h.clock.Step(time.Millisecond)
	h.submit(t, "high", models.PriorityHigh, 6, 7, 8, 9)
	assert.Equal(t, []string{"high", "medium"}, h.scheduler.Pending())

	close(f.release)
	h.drain(t)

	assert.Equal(t, []string{"medium", "high", "high"}, h.worker.Order())
	assert.Equal(t, []int64{1, 2, 6, 7, 8, 9}, f.Calls())
	assert.Equal(t, models.StatusDone, h.status(t, "medium").Status)
	assert.Equal(t, models.StatusDone, h.status(t, "high").Status)
	assert.Equal(t, 0, h.scheduler.Len())
}

func TestOlderRequestWinsWithinPriority(t *testing.T) {
	f := &stubFetcher{started: make(chan int64, 1), release: make(chan struct{})}
	h := newHarness(t, f)

	h.submit(t, "blocker", models.PriorityHigh, 100)
	<-f.started
	h.clock.Step(time.Millisecond)
	h.submit(t, "first", models.PriorityMedium, 1)
	h.clock.Step(time.Millisecond)
	h.submit(t, "second", models.PriorityMedium, 2)
	h.clock.Step(time.Millisecond)
	h.submit(t, "low", models.PriorityLow, 3)

	close(f.release)
	h.drain(t)
	assert.Equal(t, []string{"blocker", "first", "second", "low"}, h.worker.Order())
}

func TestRateLimitSeparatesBatches(t *testing.T) {
	f := &stubFetcher{}
	h := newHarness(t, f)

	h.submit(t, "r", models.PriorityHigh, 1, 2, 3, 4, 5, 6)
	require.Eventually(t, h.clock.HasWaiters, time.Second, time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, f.Calls())

	view := h.status(t, "r")
	assert.Equal(t, models.StatusInProgress, view.Status)
	assert.Equal(t, models.StatusDone, view.Batches[0].Status)
	assert.Equal(t, models.StatusPending, view.Batches[1].Status)

	h.clock.Step(testRateLimit - time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, f.Calls())

	h.clock.Step(time.Second)
	require.Eventually(t, func() bool { return !h.scheduler.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, f.Calls())
	assert.False(t, h.clock.HasWaiters(), "loop must not sleep once the queue is empty")
	assert.Equal(t, models.StatusDone, h.status(t, "r").Status)
}

func TestLoopRestartsAfterGoingIdle(t *testing.T) {
	h := newHarness(t, &stubFetcher{})

	h.submit(t, "a", models.PriorityLow, 1)
	h.drain(t)
	assert.False(t, h.scheduler.Running())

	h.submit(t, "b", models.PriorityLow, 2)
	h.drain(t)
	assert.Equal(t, []string{"a", "b"}, h.worker.Order())
	assert.Equal(t, models.StatusDone, h.status(t, "b").Status)
}

func TestConcurrentEnqueueKeepsSingleBatchInFlight(t *testing.T) {
	h := newHarness(t, &stubFetcher{})
	priorities := []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := &models.Request{
				ID:        fmt.Sprintf("r%d", i),
				Priority:  priorities[i%3],
				CreatedAt: h.clock.Now(),
				Batches:   batcher.Split([]int64{int64(i + 1), int64(i + 2), int64(i + 3), int64(i + 4)}, 3),
			}
			assert.NoError(t, h.scheduler.Enqueue(r))
		}(i)
	}
	wg.Wait()
	h.drain(t)

	assert.Len(t, h.worker.Order(), 60)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.worker.maxParallel))
	for i := 0; i < 30; i++ {
		assert.Equal(t, models.StatusDone, h.status(t, fmt.Sprintf("r%d", i)).Status)
	}
}

func TestStopLetsInFlightBatchFinish(t *testing.T) {
	f := &stubFetcher{started: make(chan int64, 1), release: make(chan struct{})}
	h := newHarness(t, f)
	h.submit(t, "r", models.PriorityHigh, 1, 2, 3, 4)
	<-f.started

	stopped := make(chan error, 1)
	go func() { stopped <- h.scheduler.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		h.scheduler.mu.Lock()
		defer h.scheduler.mu.Unlock()
		return h.scheduler.stopped
	}, time.Second, time.Millisecond)
	assert.True(t, errors.Is(h.scheduler.Enqueue(&models.Request{ID: "late"}), ErrStopped))
	select {
	case <-stopped:
		t.Fatal("stop returned while a batch was in flight")
	default:
	}

	close(f.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}

	view := h.status(t, "r")
	assert.Equal(t, models.StatusDone, view.Batches[0].Status)
	assert.Len(t, view.Batches[0].Data, 3)
	assert.Equal(t, models.StatusPending, view.Batches[1].Status)
	assert.False(t, h.scheduler.Running())
}

func TestEnqueueAfterStopIsNeverStored(t *testing.T) {
	h := newHarness(t, &stubFetcher{})
	require.NoError(t, h.scheduler.Stop(context.Background()))

	r := &models.Request{ID: "late", Priority: models.PriorityHigh, Batches: batcher.Split([]int64{1}, 3)}
	assert.True(t, errors.Is(h.scheduler.Enqueue(r), ErrStopped))
	_, err := h.store.View("late")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, 0, h.store.Len())
	assert.Equal(t, 0, h.scheduler.Len())
}

func TestStopTimesOut(t *testing.T) {
	f := &stubFetcher{started: make(chan int64, 1), release: make(chan struct{})}
	h := newHarness(t, f)
	h.submit(t, "r", models.PriorityHigh, 1)
	<-f.started
	defer close(f.release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.scheduler.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
