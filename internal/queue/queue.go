package queue

import (
	"slices"

	"go-ingest-scheduler/internal/models"
)

// Queue orders pending requests by priority (highest first) then by creation
// time (oldest first). Requests with an equal key keep their insertion order.
//
// Queue is not threadsafe; the scheduler serialises every access under its own lock.
type Queue struct {
	requests []*models.Request
}

func NewQueue() *Queue {
	return &Queue{}
}

func compare(a, b *models.Request) int {
	if a.Priority != b.Priority {
		return int(b.Priority) - int(a.Priority)
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

// Push appends r and re-sorts the whole queue.
func (q *Queue) Push(r *models.Request) {
	q.requests = append(q.requests, r)
	slices.SortStableFunc(q.requests, compare)
}

// Head returns the request that should be worked on next.
func (q *Queue) Head() (*models.Request, bool) {
	if len(q.requests) == 0 {
		return nil, false
	}
	return q.requests[0], true
}

func (q *Queue) PopHead() (*models.Request, bool) {
	if len(q.requests) == 0 {
		return nil, false
	}
	head := q.requests[0]
	q.requests[0] = nil
	q.requests = q.requests[1:]
	return head, true
}

// Remove drops r from the queue. When r is the head this is PopHead; otherwise
// a request admitted while r was being processed has overtaken it.
func (q *Queue) Remove(r *models.Request) bool {
	if head, ok := q.Head(); ok && head == r {
		q.PopHead()
		return true
	}
	i := slices.Index(q.requests, r)
	if i < 0 {
		return false
	}
	q.requests = slices.Delete(q.requests, i, i+1)
	return true
}

func (q *Queue) Len() int {
	return len(q.requests)
}

// IDs lists request ids in processing order.
func (q *Queue) IDs() []string {
	ids := make([]string, 0, len(q.requests))
	for _, r := range q.requests {
		ids = append(ids, r.ID)
	}
	return ids
}
