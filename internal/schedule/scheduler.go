// Package schedule enqueues periodic review reports on a cron schedule.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/pkg/ctxlog"
	"github.com/croply/fieldreport/internal/queue"
)

// FieldLister provides the ids of fields due for a scheduled review.
type FieldLister interface {
	ListFieldIDs(ctx context.Context) ([]int64, error)
}

// Enqueuer inserts report work into the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (*domain.QueueItem, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Spec is a standard 5-field cron expression.
	Spec string
	// MaxRetries for the enqueued items.
	MaxRetries int
}

// Scheduler enqueues a scheduled-review report for every field on each cron
// firing. Reports go in at low priority so event-driven work claims first.
type Scheduler struct {
	config Config
	cron   *cron.Cron
	lister FieldLister
	queue  Enqueuer
}

// NewScheduler creates a scheduler.
func NewScheduler(config Config, lister FieldLister, enqueuer Enqueuer) *Scheduler {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	return &Scheduler{
		config: config,
		cron:   cron.New(),
		lister: lister,
		queue:  enqueuer,
	}
}

// Start registers the cron entry and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.config.Spec, func() { s.enqueueAll(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	ctxlog.FromContext(ctx).Info("report scheduler started", "spec", s.config.Spec)
	return nil
}

// Stop stops the scheduler and waits for a running enqueue pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) enqueueAll(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	ids, err := s.lister.ListFieldIDs(ctx)
	if err != nil {
		logger.Error("scheduled enqueue: list fields failed", "error", err)
		return
	}

	var enqueued int
	for _, id := range ids {
		_, err := s.queue.Enqueue(ctx, queue.EnqueueRequest{
			FieldID:     id,
			TriggerType: domain.TriggerScheduled,
			Priority:    domain.PriorityLow,
			MaxRetries:  s.config.MaxRetries,
		})
		if err != nil {
			logger.Error("scheduled enqueue failed", "field_id", id, "error", err)
			continue
		}
		enqueued++
	}

	logger.Info("scheduled reports enqueued", "count", enqueued, "fields", len(ids))
}
