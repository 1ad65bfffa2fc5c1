package store

import (
	"sync"

	"github.com/pkg/errors"

	"go-ingest-scheduler/internal/models"
)

var ErrNotFound = errors.New("ingestion request not found")

// Store keeps every submitted request for the life of the process. It owns
// the canonical Request values: the scheduler queue holds the same pointers,
// and every batch mutation goes through the store so readers see a
// consistent snapshot.
type Store struct {
	mu       sync.RWMutex
	requests map[string]*models.Request
}

func NewStore() *Store {
	return &Store{requests: make(map[string]*models.Request)}
}

func (s *Store) Put(r *models.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
}

// View returns a copy of the request's current state.
func (s *Store) View(id string) (models.StatusView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return models.StatusView{}, errors.Wrapf(ErrNotFound, "id %q", id)
	}
	return r.View(), nil
}

// StartBatch moves the request's first pending batch to in progress and
// returns it along with a copy of its ids. ok is false when nothing is pending.
func (s *Store) StartBatch(r *models.Request) (batch *models.Batch, ids []int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := r.NextPending()
	if i < 0 {
		return nil, nil, false
	}
	batch = r.Batches[i]
	batch.Status = models.StatusInProgress
	return batch, append([]int64(nil), batch.IDs...), true
}

// FinishBatch records the fetched data, marks the batch done and reports
// whether the whole request has completed.
func (s *Store) FinishBatch(r *models.Request, batch *models.Batch, data []models.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch.ProcessedData = data
	batch.Status = models.StatusDone
	return r.Completed()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}
