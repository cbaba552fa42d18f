// Package delivery renders composed report documents to HTML and hands them
// to the email gateway, recording each outcome in the audit log.
package delivery

import (
	"context"
	"time"
)

// Audit statuses.
const (
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)

// AuditEntry is one delivery outcome row.
type AuditEntry struct {
	QueueItemID int64
	FieldID     int64
	RecipientID int64
	Status      string
	MessageID   string
	CreatedAt   time.Time
}

// AuditRepository persists delivery outcomes. Writes are best-effort: the
// caller logs and swallows failures.
type AuditRepository interface {
	RecordDelivery(ctx context.Context, entry AuditEntry) error
}
