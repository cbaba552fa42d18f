// Package postgres provides the PostgreSQL implementation of the report
// queue repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/queue"
)

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL queue repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const itemColumns = `id, field_id, trigger_type, priority, status,
	COALESCE(error_message, ''), retry_count, max_retries, created_at, processed_at`

func scanItem(row pgx.Row) (domain.QueueItem, error) {
	var item domain.QueueItem
	err := row.Scan(
		&item.ID,
		&item.FieldID,
		&item.TriggerType,
		&item.Priority,
		&item.Status,
		&item.ErrorMessage,
		&item.RetryCount,
		&item.MaxRetries,
		&item.CreatedAt,
		&item.ProcessedAt,
	)
	return item, err
}

// Enqueue inserts a new pending item.
func (r *Repository) Enqueue(ctx context.Context, req queue.EnqueueRequest) (*domain.QueueItem, error) {
	query := `
		INSERT INTO report_queue (field_id, trigger_type, priority, max_retries)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRow(ctx, query,
		req.FieldID,
		req.TriggerType,
		req.Priority,
		req.MaxRetries,
	))
	if err != nil {
		return nil, fmt.Errorf("enqueue report: %w", err)
	}
	return &item, nil
}

// ClaimPending atomically moves up to limit pending items to processing.
// The inner SELECT takes row locks with SKIP LOCKED, so two pollers running
// this query concurrently partition the pending set instead of sharing it.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	query := `
		UPDATE report_queue
		SET status = 'processing', claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM report_queue
			WHERE status = 'pending'
			ORDER BY
				CASE priority
					WHEN 'critical' THEN 4
					WHEN 'high' THEN 3
					WHEN 'low' THEN 1
					ELSE 2
				END DESC,
				created_at ASC,
				id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + itemColumns

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.QueueItem, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim pending items: %w", err)
	}

	// RETURNING does not preserve the inner ORDER BY; restore claim order.
	sort.Slice(items, func(i, j int) bool {
		return claimedBefore(items[i], items[j])
	})

	return items, nil
}

func claimedBefore(a, b domain.QueueItem) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// MarkCompleted finalizes a successfully delivered item.
func (r *Repository) MarkCompleted(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `
		UPDATE report_queue
		SET status = 'completed', error_message = NULL, processed_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrItemNotFound
	}
	return nil
}

// MarkRetry records a failed attempt. The status decision rides in the same
// UPDATE as the increment so the transition is atomic.
func (r *Repository) MarkRetry(ctx context.Context, id int64, cause error) (domain.QueueStatus, error) {
	query := `
		UPDATE report_queue
		SET retry_count = retry_count + 1,
		    status = CASE
		        WHEN retry_count + 1 > max_retries THEN 'error'
		        ELSE 'pending'
		    END,
		    error_message = $2,
		    claimed_at = NULL,
		    processed_at = CASE
		        WHEN retry_count + 1 > max_retries THEN NOW()
		        ELSE processed_at
		    END
		WHERE id = $1
		RETURNING status
	`

	var status domain.QueueStatus
	err := r.db.QueryRow(ctx, query, id, truncateError(cause)).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", queue.ErrItemNotFound
		}
		return "", fmt.Errorf("mark retry: %w", err)
	}
	return status, nil
}

// MarkError moves an item straight to the terminal error status.
func (r *Repository) MarkError(ctx context.Context, id int64, cause error) error {
	result, err := r.db.Exec(ctx, `
		UPDATE report_queue
		SET status = 'error', error_message = $2, claimed_at = NULL, processed_at = NOW()
		WHERE id = $1
	`, id, truncateError(cause))
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	if result.RowsAffected() == 0 {
		return queue.ErrItemNotFound
	}
	return nil
}

// Release returns a claimed item to pending without consuming a retry.
// Releasing an item that already moved past processing is a no-op.
func (r *Repository) Release(ctx context.Context, id int64) error {
	result, err := r.db.Exec(ctx, `
		UPDATE report_queue
		SET status = 'pending', claimed_at = NULL
		WHERE id = $1 AND status = 'processing'
	`, id)
	if err != nil {
		return fmt.Errorf("release item: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM report_queue WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("release item: %w", err)
		}
		if !exists {
			return queue.ErrItemNotFound
		}
	}
	return nil
}

// GetQueueStats returns per-status depth counts.
func (r *Repository) GetQueueStats(ctx context.Context) (*domain.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		FROM report_queue
	`

	var stats domain.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Completed,
		&stats.Error,
		&stats.Cancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

// RequeueStale returns items stuck in processing back to pending.
func (r *Repository) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE report_queue
		SET status = 'pending', claimed_at = NULL
		WHERE status = 'processing' AND claimed_at < NOW() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stale items: %w", err)
	}
	return result.RowsAffected(), nil
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}
