package models

import (
	"strings"
	"time"
)

type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

var priorityNames = map[Priority]string{
	PriorityHigh:   "HIGH",
	PriorityMedium: "MEDIUM",
	PriorityLow:    "LOW",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParsePriority matches HIGH, MEDIUM or LOW case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	upper := strings.ToUpper(s)
	for p, name := range priorityNames {
		if name == upper {
			return p, true
		}
	}
	return 0, false
}

// BatchStatus values are the strings exposed on the wire.
type BatchStatus string

const (
	StatusPending    BatchStatus = "yet_to_start"
	StatusInProgress BatchStatus = "triggered"
	StatusDone       BatchStatus = "completed"
)

// Record is the result of fetching a single id from the external source.
type Record struct {
	ID      int64  `json:"id"`
	Data    string `json:"data,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Batch struct {
	ID            string
	IDs           []int64
	Status        BatchStatus
	ProcessedData []Record
}

type Request struct {
	ID        string
	Priority  Priority
	CreatedAt time.Time
	Batches   []*Batch
}

// NextPending returns the index of the first batch still waiting, or -1.
func (r *Request) NextPending() int {
	for i, b := range r.Batches {
		if b.Status == StatusPending {
			return i
		}
	}
	return -1
}

func (r *Request) Completed() bool {
	for _, b := range r.Batches {
		if b.Status != StatusDone {
			return false
		}
	}
	return true
}

// OverallStatus folds batch states into one: all pending is pending, all done
// is done, anything else means work has started.
func (r *Request) OverallStatus() BatchStatus {
	var pending, done int
	for _, b := range r.Batches {
		switch b.Status {
		case StatusPending:
			pending++
		case StatusDone:
			done++
		}
	}
	switch {
	case pending == len(r.Batches):
		return StatusPending
	case done == len(r.Batches):
		return StatusDone
	default:
		return StatusInProgress
	}
}

type BatchView struct {
	BatchID string      `json:"batch_id"`
	IDs     []int64     `json:"ids"`
	Status  BatchStatus `json:"status"`
	Data    []Record    `json:"data,omitempty"`
}

type StatusView struct {
	RequestID string      `json:"ingestion_id"`
	Priority  string      `json:"priority"`
	CreatedAt time.Time   `json:"created_at"`
	Status    BatchStatus `json:"status"`
	Batches   []BatchView `json:"batches"`
}

// View copies the request into a value that is safe to hand out.
func (r *Request) View() StatusView {
	view := StatusView{
		RequestID: r.ID,
		Priority:  r.Priority.String(),
		CreatedAt: r.CreatedAt,
		Status:    r.OverallStatus(),
		Batches:   make([]BatchView, 0, len(r.Batches)),
	}
	for _, b := range r.Batches {
		bv := BatchView{
			BatchID: b.ID,
			IDs:     append([]int64(nil), b.IDs...),
			Status:  b.Status,
		}
		if len(b.ProcessedData) > 0 {
			bv.Data = append([]Record(nil), b.ProcessedData...)
		}
		view.Batches = append(view.Batches, bv)
	}
	return view
}
