package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/taskstore"
)

// HousekeepingHandler executes the campaign lifecycle tasks scheduled by
// status transitions: balance creation/teardown, outstanding-reward
// cancellation, and pending-reward conversion or deletion. Each task is a
// single external call keyed by one persisted idempotency token.
type HousekeepingHandler struct {
	tasks   TaskStore
	ledger  LedgerClient
	rewards RewardsClient
	logger  *slog.Logger
	now     func() time.Time
}

func NewHousekeepingHandler(tasks TaskStore, ledger LedgerClient, rewards RewardsClient, logger *slog.Logger) *HousekeepingHandler {
	return &HousekeepingHandler{tasks: tasks, ledger: ledger, rewards: rewards, logger: logger, now: time.Now}
}

func (h *HousekeepingHandler) Execute(ctx context.Context, task *taskstore.Task) (Outcome, error) {
	if task.Status.Terminal() {
		return terminalOutcome(task.Status), nil
	}

	retailer, err := task.Param(model.ParamRetailerSlug)
	if err != nil {
		return OutcomeFailed, err
	}
	campaign, err := task.Param(model.ParamCampaignSlug)
	if err != nil {
		return OutcomeFailed, err
	}

	token, err := h.tasks.GetOrSetParam(ctx, task.ID, model.ParamIdempotencyToken, uuid.NewString)
	if err != nil {
		return OutcomeRetry, err
	}

	switch task.Type {
	case model.TaskCreateBalances:
		err = h.ledger.CreateCampaignBalances(ctx, retailer, campaign, token)
	case model.TaskDeleteBalances:
		err = h.ledger.DeleteCampaignBalances(ctx, retailer, campaign, token)
	case model.TaskCancelRewards:
		var rewardSlug string
		if rewardSlug, err = task.Param(model.ParamRewardSlug); err != nil {
			return OutcomeFailed, err
		}
		err = h.rewards.CancelRewards(ctx, retailer, rewardSlug, campaign, token)
	case model.TaskConvertPendingReward:
		err = h.rewards.ConvertPendingRewards(ctx, retailer, campaign, token)
	case model.TaskDeletePendingReward:
		err = h.rewards.DeletePendingRewards(ctx, retailer, campaign, token)
	default:
		return OutcomeFailed, fmt.Errorf("unknown task type %q", task.Type)
	}
	if err != nil {
		return outcomeForError(err), err
	}

	if err := h.tasks.RecordAudit(ctx, task.ID, auditEntry{Step: task.Type, Token: token, At: h.now()}); err != nil {
		return OutcomeRetry, err
	}
	return OutcomeCompleted, nil
}
