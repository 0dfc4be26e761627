package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/service"
)

const requeueBatchSize = 100

// RetryStore feeds the requeuer with tasks whose scheduled retry is due.
type RetryStore interface {
	DueForRetry(ctx context.Context, limit int, now time.Time) ([]uuid.UUID, error)
}

// Requeuer re-publishes RETRYING tasks once their backoff has elapsed.
// DueForRetry claims tasks with SKIP LOCKED, so running several replicas
// does not double-publish.
type Requeuer struct {
	store    RetryStore
	bus      service.MessageBus
	logger   *slog.Logger
	interval time.Duration
}

func NewRequeuer(store RetryStore, bus service.MessageBus, logger *slog.Logger, interval time.Duration) *Requeuer {
	return &Requeuer{store: store, bus: bus, logger: logger, interval: interval}
}

func (r *Requeuer) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("retry requeuer is running", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Requeuer) tick(ctx context.Context) {
	ids, err := r.store.DueForRetry(ctx, requeueBatchSize, time.Now())
	if err != nil {
		r.logger.Error("requeuer: failed to claim due tasks", "error", err)
		return
	}
	for _, id := range ids {
		data, err := json.Marshal(model.TaskEnqueued{TaskID: id.String()})
		if err != nil {
			r.logger.Error("requeuer: marshal failed", "task_id", id, "error", err)
			continue
		}
		if err := r.bus.Publish(service.TopicTasks, data); err != nil {
			r.logger.Error("requeuer: publish failed", "task_id", id, "error", err)
			continue
		}
	}
	if len(ids) > 0 {
		r.logger.Info("requeuer: re-published due tasks", "count", len(ids))
	}
}

func (r *Requeuer) Stop(ctx context.Context) error {
	return nil
}
