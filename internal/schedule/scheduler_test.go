package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/queue"
)

type stubLister struct {
	ids []int64
	err error
}

func (s *stubLister) ListFieldIDs(_ context.Context) ([]int64, error) {
	return s.ids, s.err
}

type stubEnqueuer struct {
	mu       sync.Mutex
	requests []queue.EnqueueRequest
	failOn   int64
}

func (s *stubEnqueuer) Enqueue(_ context.Context, req queue.EnqueueRequest) (*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.FieldID == s.failOn {
		return nil, errors.New("insert failed")
	}
	s.requests = append(s.requests, req)
	return &domain.QueueItem{ID: int64(len(s.requests)), FieldID: req.FieldID}, nil
}

func TestEnqueueAll(t *testing.T) {
	enq := &stubEnqueuer{}
	s := NewScheduler(Config{Spec: "0 6 * * 1", MaxRetries: 3}, &stubLister{ids: []int64{1, 2, 3}}, enq)

	s.enqueueAll(context.Background())

	require.Len(t, enq.requests, 3)
	for _, req := range enq.requests {
		assert.Equal(t, domain.TriggerScheduled, req.TriggerType)
		assert.Equal(t, domain.PriorityLow, req.Priority)
		assert.Equal(t, 3, req.MaxRetries)
	}
}

func TestEnqueueAll_PartialFailureContinues(t *testing.T) {
	enq := &stubEnqueuer{failOn: 2}
	s := NewScheduler(Config{Spec: "0 6 * * 1"}, &stubLister{ids: []int64{1, 2, 3}}, enq)

	s.enqueueAll(context.Background())

	require.Len(t, enq.requests, 2)
	assert.Equal(t, int64(1), enq.requests[0].FieldID)
	assert.Equal(t, int64(3), enq.requests[1].FieldID)
}

func TestEnqueueAll_ListFailure(t *testing.T) {
	enq := &stubEnqueuer{}
	s := NewScheduler(Config{Spec: "0 6 * * 1"}, &stubLister{err: errors.New("db down")}, enq)

	s.enqueueAll(context.Background())

	assert.Empty(t, enq.requests)
}

func TestStartStop(t *testing.T) {
	enq := &stubEnqueuer{}
	s := NewScheduler(Config{Spec: "0 6 * * 1"}, &stubLister{}, enq)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestStart_InvalidSpec(t *testing.T) {
	s := NewScheduler(Config{Spec: "not a cron spec"}, &stubLister{}, &stubEnqueuer{})
	assert.Error(t, s.Start(context.Background()))
}
