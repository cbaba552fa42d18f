package delivery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croply/fieldreport/internal/delivery/email"
	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/enrich"
	"github.com/croply/fieldreport/internal/report"
)

type fakeSender struct {
	failures  int
	permanent bool
	calls     int
	resets    int
	lastMsg   email.Message
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (string, error) {
	f.calls++
	f.lastMsg = msg
	if f.calls <= f.failures {
		if f.permanent {
			return "", errors.New("550 mailbox does not exist")
		}
		return "", &net.OpError{Op: "write", Err: errors.New("broken pipe")}
	}
	return "<msg-1@fieldreport>", nil
}

func (f *fakeSender) Reset() { f.resets++ }

type fakeAudit struct {
	entries []AuditEntry
	err     error
}

func (f *fakeAudit) RecordDelivery(_ context.Context, entry AuditEntry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

func testDocument(t *testing.T) *report.Document {
	t.Helper()

	doc, err := report.NewCompositor().Compose(&enrich.ReportContext{
		Item: domain.QueueItem{ID: 11, FieldID: 42, TriggerType: domain.TriggerLossEvent},
		Details: &domain.FieldDetails{
			Field: domain.FieldRecord{ID: 42, Name: "North Block", CropType: "wheat", SizeHectares: 12.5},
			Farm:  domain.Farm{ID: 7, Name: "Mooivlei", Region: "Overberg"},
			Owner: domain.Owner{ID: 3, Name: "P. Botha", Email: "owner@example.com"},
		},
		Analysis:        "the **loss event** needs review",
		Recommendations: "1. Inspect damage 2. Contact insurer",
	})
	require.NoError(t, err)
	return doc
}

func testAdapter(t *testing.T, sender Sender, audit AuditRepository) *Adapter {
	t.Helper()

	renderer, err := NewRenderer()
	require.NoError(t, err)

	cfg := Config{SendRetries: 2, RetryBackoff: time.Millisecond}
	return NewAdapter(cfg, renderer, sender, audit)
}

func TestDeliver_Success(t *testing.T) {
	sender := &fakeSender{}
	audit := &fakeAudit{}
	a := testAdapter(t, sender, audit)

	err := a.Deliver(context.Background(), testDocument(t))
	require.NoError(t, err)

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "owner@example.com", sender.lastMsg.To)
	assert.Equal(t, "Loss event report - Mooivlei", sender.lastMsg.Subject)
	assert.Contains(t, sender.lastMsg.HTML, "<strong>loss event</strong>")

	require.Len(t, audit.entries, 1)
	assert.Equal(t, AuditStatusSuccess, audit.entries[0].Status)
	assert.Equal(t, "<msg-1@fieldreport>", audit.entries[0].MessageID)
}

func TestDeliver_SucceedsOnThirdAttempt(t *testing.T) {
	sender := &fakeSender{failures: 2}
	audit := &fakeAudit{}
	a := testAdapter(t, sender, audit)

	err := a.Deliver(context.Background(), testDocument(t))
	require.NoError(t, err)

	assert.Equal(t, 3, sender.calls)
	// Connection faults reset the transport before retrying.
	assert.Equal(t, 2, sender.resets)

	// One audit row for the whole delivery, not one per attempt.
	require.Len(t, audit.entries, 1)
	assert.Equal(t, AuditStatusSuccess, audit.entries[0].Status)
}

func TestDeliver_ExhaustedRetriesPropagates(t *testing.T) {
	sender := &fakeSender{failures: 10}
	audit := &fakeAudit{}
	a := testAdapter(t, sender, audit)

	err := a.Deliver(context.Background(), testDocument(t))
	require.Error(t, err)

	assert.Equal(t, 3, sender.calls)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, AuditStatusFailed, audit.entries[0].Status)
	assert.Empty(t, audit.entries[0].MessageID)
}

func TestDeliver_PermanentRejectionStopsRetrying(t *testing.T) {
	sender := &fakeSender{failures: 10, permanent: true}
	a := testAdapter(t, sender, &fakeAudit{})

	err := a.Deliver(context.Background(), testDocument(t))
	require.Error(t, err)

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, 0, sender.resets)
}

func TestDeliver_AuditFailureSwallowed(t *testing.T) {
	sender := &fakeSender{}
	audit := &fakeAudit{err: errors.New("audit table gone")}
	a := testAdapter(t, sender, audit)

	err := a.Deliver(context.Background(), testDocument(t))
	assert.NoError(t, err)
}

func TestDeliver_NilAuditRepository(t *testing.T) {
	sender := &fakeSender{}
	a := testAdapter(t, sender, nil)

	err := a.Deliver(context.Background(), testDocument(t))
	assert.NoError(t, err)
}
