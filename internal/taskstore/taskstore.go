// Package taskstore implements the durable Task Store backing the sagas:
// one row per unit of work, an arena-style parameter map keyed by name,
// and an append-only audit trail. Idempotency tokens live in the parameter
// map and are minted at most once via GetOrSetParam.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusRetrying   Status = "RETRYING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	// StatusAccountHolderDeleted is terminal but distinct from FAILED: the
	// account holder disappeared upstream, which is not a fault of ours.
	StatusAccountHolderDeleted Status = "ACCOUNT_HOLDER_DELETED"
)

// Terminal reports whether no further execution of the task may happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled, StatusAccountHolderDeleted:
		return true
	}
	return false
}

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrMissingParam = errors.New("missing task parameter")
)

type Task struct {
	ID            uuid.UUID
	Type          string
	Status        Status
	Attempts      int
	NextAttemptAt *time.Time
	Params        map[string]string
}

// Param returns a required parameter; a missing one is a task-definition
// bug, not a retryable condition.
func (t *Task) Param(name string) (string, error) {
	v, ok := t.Params[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, name)
	}
	return v, nil
}

// Spec describes a task to be created.
type Spec struct {
	Type   string
	Params map[string]string
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateTask inserts a PENDING task with its parameters in one transaction.
func (s *Store) CreateTask(ctx context.Context, spec Spec) (uuid.UUID, error) {
	id := uuid.New()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin create task: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query, args, err := psql.Insert("tasks").
		Columns("id", "task_type", "status").
		Values(id, spec.Type, StatusPending).
		ToSql()
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return uuid.Nil, fmt.Errorf("insert task: %w", err)
	}

	if len(spec.Params) > 0 {
		insert := psql.Insert("task_params").Columns("task_id", "name", "value")
		for name, value := range spec.Params {
			insert = insert.Values(id, name, value)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return uuid.Nil, err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return uuid.Nil, fmt.Errorf("insert task params: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit create task: %w", err)
	}
	return id, nil
}

// DeleteTasks removes tasks wholesale. Used as compensation when a batch
// enqueue fails after task creation; parameters and audit rows cascade.
func (s *Store) DeleteTasks(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := psql.Delete("tasks").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}
	return nil
}

// Get loads a task and its full parameter map.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	query, args, err := psql.Select("id", "task_type", "status", "attempts", "next_attempt_at").
		From("tasks").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	task := Task{Params: map[string]string{}}
	row := s.db.QueryRow(ctx, query, args...)
	if err := row.Scan(&task.ID, &task.Type, &task.Status, &task.Attempts, &task.NextAttemptAt); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	query, args, err = psql.Select("name", "value").
		From("task_params").
		Where(sq.Eq{"task_id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select task params: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan task param: %w", err)
		}
		task.Params[name] = value
	}
	return &task, rows.Err()
}

// GetOrSetParam returns the stored value for name, minting it with factory
// exactly once. The no-op DO UPDATE makes RETURNING yield the winning value
// under concurrent callers, so a retry always reuses the first token.
func (s *Store) GetOrSetParam(ctx context.Context, taskID uuid.UUID, name string, factory func() string) (string, error) {
	const query = `
		INSERT INTO task_params (task_id, name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id, name) DO UPDATE SET value = task_params.value
		RETURNING value`

	var value string
	if err := s.db.QueryRow(ctx, query, taskID, name, factory()).Scan(&value); err != nil {
		return "", fmt.Errorf("get or set param %s: %w", name, err)
	}
	return value, nil
}

// RecordAudit appends entry to the task's audit trail. Callers append the
// result of each external call before the state transition that depends on
// it, which is what makes crash-resume derivable from persisted state.
func (s *Store) RecordAudit(ctx context.Context, taskID uuid.UUID, entry any) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	query, args, err := psql.Insert("task_audit").
		Columns("task_id", "entry").
		Values(taskID, payload).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// MarkInProgress moves the task to IN_PROGRESS and bumps the attempt counter.
func (s *Store) MarkInProgress(ctx context.Context, id uuid.UUID) error {
	const query = `
		UPDATE tasks
		SET status = $2, attempts = attempts + 1, updated_at = now()
		WHERE id = $1`
	return s.exec(ctx, query, id, StatusInProgress)
}

// Complete marks the task SUCCESS and clears any scheduled retry.
func (s *Store) Complete(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, StatusSuccess)
}

// Cancel marks the task CANCELLED (campaign ended or cancelled mid-flight).
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.finish(ctx, id, StatusCancelled)
}

// Finish records an arbitrary terminal status and clears the retry time.
func (s *Store) Finish(ctx context.Context, id uuid.UUID, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	return s.finish(ctx, id, status)
}

func (s *Store) finish(ctx context.Context, id uuid.UUID, status Status) error {
	const query = `
		UPDATE tasks
		SET status = $2, next_attempt_at = NULL, updated_at = now()
		WHERE id = $1`
	return s.exec(ctx, query, id, status)
}

// ScheduleRetry parks the task as RETRYING until at.
func (s *Store) ScheduleRetry(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `
		UPDATE tasks
		SET status = 'RETRYING', next_attempt_at = $2, updated_at = now()
		WHERE id = $1`
	return s.exec(ctx, query, id, at)
}

// DueForRetry claims up to limit RETRYING tasks whose retry time has
// passed, pushing their next_attempt_at forward so concurrent requeuers do
// not double-publish. Returns the claimed task ids.
func (s *Store) DueForRetry(ctx context.Context, limit int, now time.Time) ([]uuid.UUID, error) {
	const query = `
		UPDATE tasks
		SET next_attempt_at = $2 + interval '1 minute', updated_at = now()
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = 'RETRYING' AND next_attempt_at <= $2
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`

	rows, err := s.db.Query(ctx, query, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim retryable tasks: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}
