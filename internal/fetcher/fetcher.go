package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/tjarratt/babble"
	"k8s.io/utils/clock"

	"go-ingest-scheduler/internal/models"
)

var ErrFetchFailed = errors.New("external fetch failed")

// FetcherService retrieves the data for one id from the external source.
// Calls may be slow; implementations must honour ctx cancellation.
type FetcherService interface {
	Fetch(ctx context.Context, id int64) (models.Record, error)
}

// Fetcher simulates the external API with a random latency and an optional
// failure rate.
type Fetcher struct {
	minLatency  time.Duration
	maxLatency  time.Duration
	failureRate float64
	clock       clock.Clock
	babbler     babble.Babbler
}

func NewFetcher(minLatency, maxLatency time.Duration, failureRate float64, clk clock.Clock) *Fetcher {
	if maxLatency < minLatency {
		maxLatency = minLatency
	}
	return &Fetcher{
		minLatency:  minLatency,
		maxLatency:  maxLatency,
		failureRate: failureRate,
		clock:       clk,
		babbler:     newBabbler(),
	}
}

func (f *Fetcher) Fetch(ctx context.Context, id int64) (models.Record, error) {
	slog.Debug("Simulating external data fetch", "id", id)
	latency := f.minLatency
	if spread := f.maxLatency - f.minLatency; spread > 0 {
		latency += time.Duration(rand.Int63n(int64(spread)))
	}
	if latency > 0 {
		select {
		case <-f.clock.After(latency):
		case <-ctx.Done():
			return models.Record{}, ctx.Err()
		}
	}
	if f.failureRate > 0 && rand.Float64() < f.failureRate {
		return models.Record{}, errors.Wrapf(ErrFetchFailed, "id %d", id)
	}
	return models.Record{
		ID:      id,
		Data:    fmt.Sprintf("processed_data_for_%d", id),
		Excerpt: f.babbler.Babble(),
	}, nil
}

var fallbackWords = []string{
	"amber", "basalt", "cobalt", "delta", "ember", "fjord", "granite", "harbor",
	"indigo", "juniper", "kelp", "lagoon", "meadow", "nickel", "orchid", "pylon",
}

// newBabbler uses the system dictionary when there is one.
func newBabbler() (b babble.Babbler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("System dictionary unavailable, using built-in words", "reason", r)
			b = babble.Babbler{Words: fallbackWords}
		}
		b.Count = 2
		b.Separator = " "
	}()
	return babble.NewBabbler()
}
