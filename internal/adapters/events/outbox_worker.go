package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/auth-service/internal/ports"
)

type deliveryOutcome int

const (
	outcomePublished deliveryOutcome = iota
	outcomeRetry
	outcomeDeadLettered
)

// OutboxWorker delivers auth events that account writes committed to the outbox.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
	nowFn      func() time.Time
}

func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger:     logger.With("module", "events.outbox_worker", "layer", "adapter"),
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// Run polls until ctx is cancelled. A full batch means a backlog, so the next
// batch is claimed immediately instead of waiting for the ticker.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		claimed, err := w.processOnce(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		if err == nil && claimed == w.batchSize && ctx.Err() == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// processOnce leases one batch, delivers it and reports how many rows it claimed.
func (w *OutboxWorker) processOnce(ctx context.Context) (int, error) {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, w.nowFn().Add(w.claimTTL))
	if err != nil {
		return 0, fmt.Errorf("claim outbox events: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var tally [3]int
	for _, rec := range records {
		tally[w.deliver(ctx, claimToken, rec)]++
	}
	w.logger.InfoContext(ctx, "outbox batch processed",
		"operation", "outbox_process_once",
		"outcome", "success",
		"batch_size", len(records),
		"published_count", tally[outcomePublished],
		"retry_count", tally[outcomeRetry],
		"dead_lettered_count", tally[outcomeDeadLettered],
	)
	return len(records), nil
}

func (w *OutboxWorker) deliver(ctx context.Context, claimToken string, rec ports.OutboxRecord) deliveryOutcome {
	now := w.nowFn()
	if rec.RetryCount >= w.maxRetries {
		w.settle(ctx, rec, w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry budget exhausted before publish", now))
		return outcomeDeadLettered
	}

	err := w.publisher.Publish(ctx, rec.EventType, rec.PartitionKey, rec.Payload)
	if err == nil {
		w.settle(ctx, rec, w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now))
		return outcomePublished
	}

	attempt := rec.RetryCount + 1
	fields := []any{
		"operation", "publish_event",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"attempt", attempt,
		"error", err,
	}
	if attempt >= w.maxRetries {
		w.logger.ErrorContext(ctx, "outbox event dead-lettered", fields...)
		w.settle(ctx, rec, w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now))
		return outcomeDeadLettered
	}
	w.logger.WarnContext(ctx, "outbox publish failed; will retry", fields...)
	w.settle(ctx, rec, w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now))
	return outcomeRetry
}

// settle logs a failed state update; the lease lapses and the event is retried.
func (w *OutboxWorker) settle(ctx context.Context, rec ports.OutboxRecord, err error) {
	if err == nil {
		return
	}
	w.logger.ErrorContext(ctx, "outbox state update failed",
		"operation", "outbox_settle",
		"outcome", "failure",
		"outbox_id", rec.OutboxID,
		"event_type", rec.EventType,
		"error", err,
	)
}
