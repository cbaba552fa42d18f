// Package queue coordinates the report queue: claiming pending items,
// driving the per-item report pipeline and recording attempt outcomes.
package queue

import (
	"context"
	"time"

	"github.com/croply/fieldreport/internal/domain"
)

// EnqueueRequest describes a new unit of report work.
type EnqueueRequest struct {
	FieldID     int64
	TriggerType domain.TriggerType
	Priority    domain.Priority
	MaxRetries  int
}

// Repository is the persistence interface for the report queue.
type Repository interface {
	// Enqueue inserts a new pending item.
	Enqueue(ctx context.Context, req EnqueueRequest) (*domain.QueueItem, error)

	// ClaimPending atomically flips up to limit pending items to processing
	// and returns them. Concurrent callers never receive the same item.
	// Claim order is priority rank descending, then created_at, then id.
	ClaimPending(ctx context.Context, limit int) ([]domain.QueueItem, error)

	// MarkCompleted finalizes a successfully delivered item.
	MarkCompleted(ctx context.Context, id int64) error

	// MarkRetry records a failed attempt: retry_count is incremented by
	// exactly one and the item returns to pending while retry_count has
	// not yet exceeded max_retries; a failure after retry_count reached
	// max_retries is terminal and moves the item to error. Returns the
	// resulting status.
	MarkRetry(ctx context.Context, id int64, cause error) (domain.QueueStatus, error)

	// MarkError moves an item straight to the terminal error status.
	MarkError(ctx context.Context, id int64, cause error) error

	// Release returns a claimed item to pending without consuming a retry.
	// Used when a batch is interrupted before the item was attempted.
	// Releasing an item that already moved past processing is a no-op;
	// ErrItemNotFound is returned only when no such row exists.
	Release(ctx context.Context, id int64) error

	// GetQueueStats returns per-status depth counts.
	GetQueueStats(ctx context.Context) (*domain.QueueStats, error)

	// RequeueStale returns items stuck in processing longer than olderThan
	// back to pending. Covers crashes between claim and outcome write.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
