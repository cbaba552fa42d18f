// Package postgres provides the PostgreSQL implementation of the delivery
// audit repository.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/croply/fieldreport/internal/delivery"
)

// Repository implements delivery.AuditRepository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL audit repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// RecordDelivery inserts one delivery outcome row.
func (r *Repository) RecordDelivery(ctx context.Context, entry delivery.AuditEntry) error {
	query := `
		INSERT INTO report_log (id, queue_item_id, field_id, recipient_id, status, message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		uuid.New(),
		entry.QueueItemID,
		entry.FieldID,
		entry.RecipientID,
		entry.Status,
		entry.MessageID,
	)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}
