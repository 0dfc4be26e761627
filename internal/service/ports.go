// Package service holds the orchestration logic: transaction intake, the
// balance-adjustment saga, the campaign status-change saga, and the
// campaign housekeeping task handlers. Transports and the worker depend on
// the interfaces here, not on concrete repositories or HTTP clients.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/piukhq/vela-sub000/internal/client"
	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/taskstore"
)

type CampaignStore interface {
	Get(ctx context.Context, retailer, slug string) (*model.Campaign, error)
	Active(ctx context.Context, retailer string, at time.Time) ([]model.Campaign, error)
	BySlugs(ctx context.Context, retailer string, slugs []string) ([]model.Campaign, error)
	CountActive(ctx context.Context, retailer string) (int, error)
	SetStatus(ctx context.Context, slug string, status model.CampaignStatus, at time.Time) error
	RecordTransaction(ctx context.Context, tx model.ProcessedTransaction) error
}

type TaskStore interface {
	CreateTask(ctx context.Context, spec taskstore.Spec) (uuid.UUID, error)
	DeleteTasks(ctx context.Context, ids []uuid.UUID) error
	GetOrSetParam(ctx context.Context, taskID uuid.UUID, name string, factory func() string) (string, error)
	RecordAudit(ctx context.Context, taskID uuid.UUID, entry any) error
}

type LedgerClient interface {
	Adjust(ctx context.Context, retailer, accountHolder, campaign string, change int64, isTransaction bool, token string, meta client.AdjustmentMetadata) (int64, error)
	CreateCampaignBalances(ctx context.Context, retailer, campaign, token string) error
	DeleteCampaignBalances(ctx context.Context, retailer, campaign, token string) error
}

type RewardsClient interface {
	Issue(ctx context.Context, retailer, rewardSlug string, req client.AllocationParams, token string) error
	IssuePending(ctx context.Context, retailer, rewardSlug string, req client.AllocationParams, conversionDate time.Time, token string) error
	CancelRewards(ctx context.Context, retailer, rewardSlug, campaign, token string) error
	ConvertPendingRewards(ctx context.Context, retailer, campaign, token string) error
	DeletePendingRewards(ctx context.Context, retailer, campaign, token string) error
}

type MirrorClient interface {
	UpdateStatus(ctx context.Context, retailer, rewardSlug, campaign string, status model.CampaignStatus) error
}

// MessageBus is the task-enqueue port; the NATS transport implements it.
type MessageBus interface {
	Publish(topic string, data []byte) error
}

// Outcome is the classified result of one task execution. The worker maps
// it onto Task Store transitions; the handlers themselves never retry.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeRetry
	OutcomeFailed
	OutcomeCancelled
	OutcomeAccountHolderDeleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeAccountHolderDeleted:
		return "account_holder_deleted"
	}
	return "unknown"
}

// TaskHandler executes one durable task attempt. Implementations must be
// idempotent across re-entry at any point: every externally visible step is
// keyed by a persisted idempotency token.
type TaskHandler interface {
	Execute(ctx context.Context, task *taskstore.Task) (Outcome, error)
}

// terminalOutcome maps an already-terminal task status onto the outcome
// that produced it, so re-delivery is harmless.
func terminalOutcome(status taskstore.Status) Outcome {
	switch status {
	case taskstore.StatusSuccess:
		return OutcomeCompleted
	case taskstore.StatusCancelled:
		return OutcomeCancelled
	case taskstore.StatusAccountHolderDeleted:
		return OutcomeAccountHolderDeleted
	default:
		return OutcomeFailed
	}
}

// outcomeForError translates a classified client error into an Outcome.
// Classification happened once, next to the call; nothing here inspects
// status codes.
func outcomeForError(err error) Outcome {
	switch client.Kind(err) {
	case client.KindTransient:
		return OutcomeRetry
	case client.KindAccountHolderDeleted:
		return OutcomeAccountHolderDeleted
	default:
		// Terminal and integrity failures are final.
		return OutcomeFailed
	}
}
