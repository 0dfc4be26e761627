// Package worker consumes durable tasks from the bus and executes them
// through the service layer's task handlers. Correctness rests on the
// handlers' idempotency tokens, not on exclusion here; the per-pair lock
// only serializes adjustments for one (account holder, campaign) so the
// externally held balance does not see lost updates.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/observability"
	"github.com/piukhq/vela-sub000/internal/service"
	"github.com/piukhq/vela-sub000/internal/taskstore"
)

const queueGroup = "vela_workers"

// lockRetryDelay reschedules a task whose (holder, campaign) lock is held
// by another in-flight worker.
const lockRetryDelay = 5 * time.Second

// TaskStore is the slice of the task store the worker drives transitions
// through.
type TaskStore interface {
	Get(ctx context.Context, id uuid.UUID) (*taskstore.Task, error)
	MarkInProgress(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	Finish(ctx context.Context, id uuid.UUID, status taskstore.Status) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Locker is the scheduling-layer exclusive constraint.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string)
}

type TaskWorker struct {
	store       TaskStore
	locker      Locker
	handlers    map[string]service.TaskHandler
	natsConn    *nats.Conn
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
	now         func() time.Time
}

func NewTaskWorker(store TaskStore, locker Locker, handlers map[string]service.TaskHandler, nc *nats.Conn, logger *slog.Logger, maxAttempts int, baseBackoff time.Duration) *TaskWorker {
	return &TaskWorker{
		store:       store,
		locker:      locker,
		handlers:    handlers,
		natsConn:    nc,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		now:         time.Now,
	}
}

// Run subscribes to the task topic and blocks until ctx is cancelled.
// QueueSubscribe delivers each task id to exactly one worker in the group.
func (w *TaskWorker) Run(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(service.TopicTasks, queueGroup, func(m *nats.Msg) {
		var msg model.TaskEnqueued
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			w.logger.Error("worker: failed to unmarshal task message", "error", err)
			return
		}
		id, err := uuid.Parse(msg.TaskID)
		if err != nil {
			w.logger.Error("worker: invalid task id", "task_id", msg.TaskID, "error", err)
			return
		}
		w.process(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe: %w", err)
	}

	w.logger.Info("task worker is running")

	<-ctx.Done()

	w.logger.Info("worker received shutdown signal, draining subscription...")
	return sub.Drain()
}

func (w *TaskWorker) process(ctx context.Context, id uuid.UUID) {
	task, err := w.store.Get(ctx, id)
	if err != nil {
		w.logger.Error("worker: failed to load task", "task_id", id, "error", err)
		return
	}
	if task.Status.Terminal() {
		// Re-delivered terminal task: nothing to do.
		w.logger.Info("worker: skipping terminal task", "task_id", id, "status", task.Status)
		return
	}

	key := lockKey(task)
	acquired, err := w.locker.Acquire(ctx, key, time.Minute)
	if err != nil {
		w.logger.Error("worker: lock acquire failed", "task_id", id, "error", err)
		return
	}
	if !acquired {
		// Another adjustment for the same holder+campaign is in flight;
		// park the task and let the requeuer re-deliver it.
		if err := w.store.ScheduleRetry(ctx, id, w.now().Add(lockRetryDelay)); err != nil {
			w.logger.Error("worker: failed to reschedule locked task", "task_id", id, "error", err)
		}
		return
	}
	defer w.locker.Release(ctx, key)

	if err := w.store.MarkInProgress(ctx, id); err != nil {
		w.logger.Error("worker: failed to mark task in progress", "task_id", id, "error", err)
		return
	}
	attempts := task.Attempts + 1

	handler, ok := w.handlers[task.Type]
	if !ok {
		w.logger.Error("worker: no handler for task type", "task_id", id, "task_type", task.Type)
		_ = w.store.Finish(ctx, id, taskstore.StatusFailed)
		return
	}

	outcome, execErr := handler.Execute(ctx, task)
	w.apply(ctx, task, attempts, outcome, execErr)
}

func (w *TaskWorker) apply(ctx context.Context, task *taskstore.Task, attempts int, outcome service.Outcome, execErr error) {
	observability.TaskOutcomes.WithLabelValues(task.Type, outcome.String()).Inc()

	var err error
	switch outcome {
	case service.OutcomeCompleted:
		err = w.store.Complete(ctx, task.ID)
	case service.OutcomeCancelled:
		err = w.store.Cancel(ctx, task.ID)
	case service.OutcomeAccountHolderDeleted:
		w.logger.Info("worker: account holder deleted upstream", "task_id", task.ID)
		err = w.store.Finish(ctx, task.ID, taskstore.StatusAccountHolderDeleted)
	case service.OutcomeFailed:
		w.logger.Error("worker: task failed", "task_id", task.ID, "task_type", task.Type, "error", execErr)
		err = w.store.Finish(ctx, task.ID, taskstore.StatusFailed)
	case service.OutcomeRetry:
		if attempts >= w.maxAttempts {
			w.logger.Error("worker: attempt ceiling reached", "task_id", task.ID, "attempts", attempts, "error", execErr)
			err = w.store.Finish(ctx, task.ID, taskstore.StatusFailed)
			break
		}
		delay := Backoff(w.baseBackoff, attempts)
		w.logger.Warn("worker: transient failure, scheduling retry",
			"task_id", task.ID, "attempts", attempts, "delay", delay, "error", execErr)
		err = w.store.ScheduleRetry(ctx, task.ID, w.now().Add(delay))
	}
	if err != nil {
		w.logger.Error("worker: failed to record task outcome", "task_id", task.ID, "outcome", outcome.String(), "error", err)
	}
}

// Backoff is the exponential task-level retry delay for the given attempt
// number (1-based).
func Backoff(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return delay
}

// lockKey serializes reward adjustments per (account holder, campaign);
// every other task type only needs at-most-one execution per task id.
func lockKey(task *taskstore.Task) string {
	if task.Type == model.TaskRewardAdjustment {
		holder := task.Params[model.ParamAccountHolderID]
		campaign := task.Params[model.ParamCampaignSlug]
		if holder != "" && campaign != "" {
			return fmt.Sprintf("vela:lock:adjustment:%s:%s", holder, campaign)
		}
	}
	return "vela:lock:task:" + task.ID.String()
}

// Start implements the infrastructure.Server interface.
func (w *TaskWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *TaskWorker) Stop(ctx context.Context) error {
	return nil
}
