package ingest

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"go-ingest-scheduler/internal/batcher"
	"go-ingest-scheduler/internal/metrics"
	"go-ingest-scheduler/internal/models"
	"go-ingest-scheduler/internal/store"
	"go-ingest-scheduler/internal/worker"
)

const MinID = 1

var (
	ErrInvalidInput    = errors.New(`invalid "ids" provided`)
	ErrInvalidPriority = errors.New(`invalid "priority" provided`)
	ErrNotFound        = store.ErrNotFound
)

type IngestService interface {
	Submit(ids []int64, priority string) (string, error)
	GetStatus(id string) (models.StatusView, error)
}

type Service struct {
	store     *store.Store
	scheduler worker.SchedulerService
	clock     clock.Clock
	batchSize int
	maxID     int64
}

func NewService(st *store.Store, sched worker.SchedulerService, clk clock.Clock, batchSize int, maxID int64) *Service {
	return &Service{
		store:     st,
		scheduler: sched,
		clock:     clk,
		batchSize: batchSize,
		maxID:     maxID,
	}
}

// Submit validates the whole submission before touching any state, then
// hands the request to the scheduler, which stores and queues it.
func (s *Service) Submit(ids []int64, priority string) (string, error) {
	if err := s.validateIDs(ids); err != nil {
		metrics.RecordRejected("invalid_ids")
		return "", err
	}
	p, ok := models.ParsePriority(priority)
	if !ok {
		metrics.RecordRejected("invalid_priority")
		return "", errors.Wrapf(ErrInvalidPriority, "%q is not one of HIGH, MEDIUM or LOW", priority)
	}

	r := &models.Request{
		ID:        uuid.NewString(),
		Priority:  p,
		CreatedAt: s.clock.Now(),
		Batches:   batcher.Split(ids, s.batchSize),
	}
	if err := s.scheduler.Enqueue(r); err != nil {
		return "", errors.Wrapf(err, "enqueueing request %s", r.ID)
	}
	metrics.RecordSubmitted(p.String())
	slog.Info("New ingestion request received", "requestID", r.ID, "priority", p, "ids", len(ids), "batches", len(r.Batches))
	return r.ID, nil
}

func (s *Service) validateIDs(ids []int64) error {
	if len(ids) == 0 {
		return errors.Wrap(ErrInvalidInput, "ids must be a non-empty list")
	}
	for i, id := range ids {
		if id < MinID || id > s.maxID {
			return errors.Wrapf(ErrInvalidInput, "id %d at index %d is outside [%d, %d]", id, i, MinID, s.maxID)
		}
	}
	return nil
}

func (s *Service) GetStatus(id string) (models.StatusView, error) {
	return s.store.View(id)
}

// ParseIDs decodes a JSON value that must be a flat array of integral
// numbers. Range checks are left to Submit.
func ParseIDs(raw json.RawMessage) ([]int64, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "ids missing")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, errors.Wrap(ErrInvalidInput, "ids must be an array")
	}
	ids := make([]int64, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || (item[0] != '-' && (item[0] < '0' || item[0] > '9')) {
			return nil, errors.Wrapf(ErrInvalidInput, "element %d is not a number", i)
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return nil, errors.Wrapf(ErrInvalidInput, "element %d is not a number", i)
		}
		id, err := toInteger(n)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidInput, "element %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PriorityText turns the raw priority value into the text Submit validates.
// Absent or null yields "". A non-string value is returned as its JSON text,
// which never names a priority, so Submit still checks ids first and then
// rejects it as an invalid priority.
func PriorityText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

func toInteger(n json.Number) (int64, error) {
	if id, err := n.Int64(); err == nil {
		return id, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return 0, errors.Errorf("%s is out of range", n)
	}
	if f != math.Trunc(f) {
		return 0, errors.Errorf("%s is not an integer", n)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.Errorf("%s is out of range", n)
	}
	return int64(f), nil
}
