package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/croply/fieldreport/internal/delivery/email"
	"github.com/croply/fieldreport/internal/pkg/ctxlog"
	"github.com/croply/fieldreport/internal/report"
)

// Sender is the email gateway the adapter delivers through.
type Sender interface {
	Send(ctx context.Context, msg email.Message) (string, error)
	Reset()
}

// Config holds delivery adapter configuration.
type Config struct {
	// SendRetries is the number of additional in-process send attempts
	// after the first failure.
	SendRetries int
	// RetryBackoff is the fixed wait between send attempts.
	RetryBackoff time.Duration
}

// DefaultConfig returns default adapter configuration.
func DefaultConfig() Config {
	return Config{
		SendRetries:  2,
		RetryBackoff: 3 * time.Second,
	}
}

// Adapter renders a document and sends it, retrying transient send faults
// in-process before reporting the attempt failed.
type Adapter struct {
	config   Config
	renderer *Renderer
	sender   Sender
	audit    AuditRepository
}

// NewAdapter creates a delivery adapter. The audit repository may be nil,
// in which case outcomes are only logged.
func NewAdapter(config Config, renderer *Renderer, sender Sender, audit AuditRepository) *Adapter {
	if config.SendRetries < 0 {
		config.SendRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultConfig().RetryBackoff
	}

	return &Adapter{
		config:   config,
		renderer: renderer,
		sender:   sender,
		audit:    audit,
	}
}

// Deliver renders and emails one document. The send is retried up to
// SendRetries additional times with a fixed backoff; a connection-level
// fault resets the transport before the next attempt. Exactly one audit
// row records the final outcome regardless of how many attempts ran.
func (a *Adapter) Deliver(ctx context.Context, doc *report.Document) error {
	logger := ctxlog.FromContext(ctx).With(
		"item_id", doc.Item.ID,
		"field_id", doc.Field.ID,
		"recipient", doc.RecipientEmail,
	)

	html, err := a.renderer.Render(doc)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	msg := email.Message{
		To:      doc.RecipientEmail,
		Subject: fmt.Sprintf("%s report - %s", doc.ReportType, doc.Farm.Name),
		HTML:    html,
	}

	messageID, sendErr := a.sendWithRetries(ctx, logger, msg)

	a.recordAudit(ctx, logger, doc, messageID, sendErr)

	if sendErr != nil {
		return fmt.Errorf("send report email: %w", sendErr)
	}
	return nil
}

func (a *Adapter) sendWithRetries(ctx context.Context, logger *slog.Logger, msg email.Message) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= a.config.SendRetries; attempt++ {
		messageID, err := a.sender.Send(ctx, msg)
		if err == nil {
			return messageID, nil
		}
		lastErr = err

		if email.IsConnectionFault(err) {
			logger.Warn("send hit connection fault, resetting transport", "attempt", attempt+1, "error", err)
			a.sender.Reset()
		} else if !email.IsRetryable(err) {
			logger.Warn("send rejected permanently", "attempt", attempt+1, "error", err)
			break
		} else {
			logger.Warn("send failed", "attempt", attempt+1, "error", err)
		}

		if attempt == a.config.SendRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.config.RetryBackoff):
		}
	}

	return "", lastErr
}

// recordAudit writes the single outcome row. Failures here never fail the
// delivery.
func (a *Adapter) recordAudit(ctx context.Context, logger *slog.Logger, doc *report.Document, messageID string, sendErr error) {
	if a.audit == nil {
		return
	}

	status := AuditStatusSuccess
	if sendErr != nil {
		status = AuditStatusFailed
	}

	entry := AuditEntry{
		QueueItemID: doc.Item.ID,
		FieldID:     doc.Field.ID,
		RecipientID: doc.RecipientID,
		Status:      status,
		MessageID:   messageID,
	}

	if err := a.audit.RecordDelivery(ctx, entry); err != nil {
		logger.Error("failed to write delivery audit row", "error", err)
	}
}
