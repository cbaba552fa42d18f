package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/enrich"
	"github.com/croply/fieldreport/internal/pkg/ctxlog"
	"github.com/croply/fieldreport/internal/report"
)

// Enricher gathers the report context for one queue item.
type Enricher interface {
	Assemble(ctx context.Context, item domain.QueueItem) (*enrich.ReportContext, error)
}

// Composer turns a report context into a renderable document.
type Composer interface {
	Compose(rc *enrich.ReportContext) (*report.Document, error)
}

// Deliverer sends a composed document to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, doc *report.Document) error
}

// CoordinatorConfig contains coordinator configuration.
type CoordinatorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	ItemThrottle time.Duration
	// StaleAfter must comfortably exceed the worst-case attempt duration:
	// an attempt still running past it gets requeued and delivered twice.
	StaleAfter time.Duration
}

// DefaultCoordinatorConfig returns default coordinator configuration.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		BatchSize:    10,
		PollInterval: 5 * time.Minute,
		ItemThrottle: 1 * time.Second,
		StaleAfter:   30 * time.Minute,
	}
}

// BatchSummary is the outcome of one polling cycle.
type BatchSummary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Coordinator claims pending report work and drives each item through the
// enrich, compose and deliver stages. One claimed batch is processed
// sequentially with a throttle between items.
type Coordinator struct {
	config    CoordinatorConfig
	repo      Repository
	enricher  Enricher
	composer  Composer
	deliverer Deliverer
	limiter   *rate.Limiter

	// Serializes polling cycles so a manual trigger never interleaves with
	// a scheduled one.
	batchMu sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCoordinator creates a queue coordinator.
func NewCoordinator(config CoordinatorConfig, repo Repository, enricher Enricher, composer Composer, deliverer Deliverer) *Coordinator {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultCoordinatorConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultCoordinatorConfig().PollInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = DefaultCoordinatorConfig().StaleAfter
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.ItemThrottle > 0 {
		limiter = rate.NewLimiter(rate.Every(config.ItemThrottle), 1)
	}

	return &Coordinator{
		config:    config,
		repo:      repo,
		enricher:  enricher,
		composer:  composer,
		deliverer: deliverer,
		limiter:   limiter,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling and stale-recovery goroutines.
func (c *Coordinator) Start(ctx context.Context) {
	ctxlog.FromContext(ctx).Info("starting queue coordinator",
		"batch_size", c.config.BatchSize,
		"poll_interval", c.config.PollInterval,
		"stale_after", c.config.StaleAfter,
	)

	c.wg.Add(2)
	go c.pollLoop(ctx)
	go c.staleLoop(ctx)
}

// Stop gracefully stops the coordinator. The in-flight batch finishes first.
func (c *Coordinator) Stop(ctx context.Context) {
	close(c.stopCh)
	c.wg.Wait()
	ctxlog.FromContext(ctx).Info("queue coordinator stopped")
}

func (c *Coordinator) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			summary, err := c.ProcessPendingBatch(ctx)
			if err != nil {
				ctxlog.FromContext(ctx).Error("polling cycle failed", "error", err)
				continue
			}
			if summary.Processed > 0 || summary.Failed > 0 {
				ctxlog.FromContext(ctx).Info("polling cycle finished",
					"processed", summary.Processed,
					"failed", summary.Failed,
				)
			}
		}
	}
}

func (c *Coordinator) staleLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.StaleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			requeued, err := c.repo.RequeueStale(ctx, c.config.StaleAfter)
			if err != nil {
				ctxlog.FromContext(ctx).Error("stale requeue failed", "error", err)
				continue
			}
			if requeued > 0 {
				ctxlog.FromContext(ctx).Warn("requeued stale items", "count", requeued)
			}
		}
	}
}

// ProcessPendingBatch claims and processes one batch of pending items. An
// empty queue returns a zero summary without any state writes.
func (c *Coordinator) ProcessPendingBatch(ctx context.Context) (BatchSummary, error) {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	items, err := c.repo.ClaimPending(ctx, c.config.BatchSize)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("claim batch: %w", err)
	}
	if len(items) == 0 {
		return BatchSummary{}, nil
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("claimed batch", "count", len(items))
	recordItemsClaimed(len(items))

	var summary BatchSummary
	for _, item := range items {
		if err := c.limiter.Wait(ctx); err != nil {
			// Shutdown mid-batch: release the unprocessed remainder.
			c.releaseRemainder(items, summary)
			return summary, err
		}

		if c.attemptItem(ctx, item) {
			summary.Processed++
		} else {
			summary.Failed++
		}
	}

	return summary, nil
}

// releaseRemainder puts claimed-but-unprocessed items back to pending after
// a cancelled batch. Uses a detached context since ctx is already done.
func (c *Coordinator) releaseRemainder(items []domain.QueueItem, summary BatchSummary) {
	done := summary.Processed + summary.Failed

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, item := range items[done:] {
		if err := c.repo.Release(ctx, item.ID); err != nil {
			ctxlog.FromContext(ctx).Error("failed to release claimed item", "item_id", item.ID, "error", err)
		}
	}
}

// attemptItem runs one processing attempt and records its outcome. Returns
// true when the item completed.
func (c *Coordinator) attemptItem(ctx context.Context, item domain.QueueItem) bool {
	start := time.Now()
	logger := ctxlog.FromContext(ctx).With(
		"item_id", item.ID,
		"field_id", item.FieldID,
		"trigger_type", item.TriggerType,
	)

	err := c.runPipeline(ctx, item)
	duration := time.Since(start)
	recordItemDuration(item.TriggerType, duration)

	if err == nil {
		if markErr := c.repo.MarkCompleted(ctx, item.ID); markErr != nil {
			logger.Error("failed to mark completed", "error", markErr)
		}
		recordItemOutcome(item.TriggerType, "completed")
		logger.Info("report delivered", "duration", duration)
		return true
	}

	c.handleAttemptError(ctx, logger, item, err)
	return false
}

func (c *Coordinator) runPipeline(ctx context.Context, item domain.QueueItem) error {
	rc, err := c.enricher.Assemble(ctx, item)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}

	doc, err := c.composer.Compose(rc)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	if err := c.deliverer.Deliver(ctx, doc); err != nil {
		return fmt.Errorf("deliver: %w", err)
	}

	return nil
}

func (c *Coordinator) handleAttemptError(ctx context.Context, logger *slog.Logger, item domain.QueueItem, err error) {
	logger.Warn("attempt failed",
		"attempt", item.RetryCount+1,
		"max_retries", item.MaxRetries,
		"error", err,
	)

	if !isRetryable(err) {
		if markErr := c.repo.MarkError(ctx, item.ID, err); markErr != nil {
			logger.Error("failed to mark error", "error", markErr)
		}
		recordItemOutcome(item.TriggerType, "error")
		return
	}

	status, markErr := c.repo.MarkRetry(ctx, item.ID, err)
	if markErr != nil {
		logger.Error("failed to mark retry", "error", markErr)
		recordItemOutcome(item.TriggerType, "error")
		return
	}

	if status == domain.QueueStatusError {
		recordItemOutcome(item.TriggerType, "error")
		logger.Error("retries exhausted", "error", err)
		return
	}

	recordItemOutcome(item.TriggerType, "retry")
	logger.Info("item returned to queue for retry")
}
