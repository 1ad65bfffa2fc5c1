package batcher

import (
	"github.com/google/uuid"

	"go-ingest-scheduler/internal/models"
)

// Split partitions ids into consecutive batches of at most size ids each,
// keeping the input order. Every batch starts pending.
func Split(ids []int64, size int) []*models.Batch {
	if size <= 0 {
		size = 1
	}
	batches := make([]*models.Batch, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, &models.Batch{
			ID:     uuid.NewString(),
			IDs:    append([]int64(nil), ids[start:end]...),
			Status: models.StatusPending,
		})
	}
	return batches
}
