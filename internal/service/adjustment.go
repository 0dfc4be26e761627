package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/piukhq/vela-sub000/internal/client"
	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/observability"
	"github.com/piukhq/vela-sub000/internal/repository"
	"github.com/piukhq/vela-sub000/internal/rules"
	"github.com/piukhq/vela-sub000/internal/taskstore"
)

// AdjustmentSaga executes one reward-adjustment task: pre-allocation
// balance adjustment, reward computation, optional reward allocation, and
// the post-allocation cost deduction. Each external step is keyed by a
// lazily minted, persisted idempotency token, so re-entry after a crash or
// scheduler retry replays tokens instead of minting new ones.
type AdjustmentSaga struct {
	campaigns CampaignStore
	tasks     TaskStore
	ledger    LedgerClient
	rewards   RewardsClient
	logger    *slog.Logger
	now       func() time.Time
}

func NewAdjustmentSaga(campaigns CampaignStore, tasks TaskStore, ledger LedgerClient, rewards RewardsClient, logger *slog.Logger) *AdjustmentSaga {
	return &AdjustmentSaga{
		campaigns: campaigns,
		tasks:     tasks,
		ledger:    ledger,
		rewards:   rewards,
		logger:    logger,
		now:       time.Now,
	}
}

type adjustmentParams struct {
	retailerSlug    string
	campaignSlug    string
	accountHolderID string
	adjustment      int64
	transactionID   string
	transactionTime time.Time
}

func parseAdjustmentParams(task *taskstore.Task) (*adjustmentParams, error) {
	p := &adjustmentParams{}
	var err error
	if p.retailerSlug, err = task.Param(model.ParamRetailerSlug); err != nil {
		return nil, err
	}
	if p.campaignSlug, err = task.Param(model.ParamCampaignSlug); err != nil {
		return nil, err
	}
	if p.accountHolderID, err = task.Param(model.ParamAccountHolderID); err != nil {
		return nil, err
	}
	if p.transactionID, err = task.Param(model.ParamTransactionID); err != nil {
		return nil, err
	}
	raw, err := task.Param(model.ParamAdjustmentAmount)
	if err != nil {
		return nil, err
	}
	if p.adjustment, err = strconv.ParseInt(raw, 10, 64); err != nil {
		return nil, err
	}
	raw, err = task.Param(model.ParamTransactionDatetime)
	if err != nil {
		return nil, err
	}
	if p.transactionTime, err = time.Parse(time.RFC3339, raw); err != nil {
		return nil, err
	}
	return p, nil
}

// auditEntry is appended to the task before the state transition that
// depends on the recorded call, so crash-resume can see what already ran.
type auditEntry struct {
	Step       string    `json:"step"`
	Token      string    `json:"token"`
	At         time.Time `json:"at"`
	NewBalance *int64    `json:"new_balance,omitempty"`
	Units      int       `json:"units,omitempty"`
	CapReached bool      `json:"cap_reached,omitempty"`
}

func (s *AdjustmentSaga) Execute(ctx context.Context, task *taskstore.Task) (Outcome, error) {
	// A re-delivered terminal task is a no-op: no external calls.
	if task.Status.Terminal() {
		return terminalOutcome(task.Status), nil
	}

	p, err := parseAdjustmentParams(task)
	if err != nil {
		// Malformed parameters never heal on retry.
		return OutcomeFailed, err
	}

	// Fresh read on every attempt: a cancellation racing a retry sequence
	// must win before any external call is made.
	campaign, err := s.campaigns.Get(ctx, p.retailerSlug, p.campaignSlug)
	if err != nil {
		if errors.Is(err, repository.ErrCampaignNotFound) {
			return OutcomeFailed, err
		}
		return OutcomeRetry, err
	}
	if campaign.Finished() {
		s.logger.Info("campaign no longer active, cancelling task",
			"task_id", task.ID, "campaign", p.campaignSlug, "status", campaign.Status)
		return OutcomeCancelled, nil
	}
	if campaign.RewardRule == nil {
		return OutcomeFailed, errors.New("active campaign has no reward rule")
	}
	reward := *campaign.RewardRule

	// Step 1: pre-allocation adjustment.
	preToken, err := s.tasks.GetOrSetParam(ctx, task.ID, model.ParamPreAllocationToken, uuid.NewString)
	if err != nil {
		return OutcomeRetry, err
	}
	newBalance, err := s.ledger.Adjust(ctx, p.retailerSlug, p.accountHolderID, p.campaignSlug, p.adjustment, true, preToken, client.AdjustmentMetadata{
		Reason:              "transaction adjustment",
		TransactionID:       p.transactionID,
		TransactionDatetime: p.transactionTime,
	})
	if err != nil {
		return outcomeForError(err), err
	}
	if err := s.tasks.RecordAudit(ctx, task.ID, auditEntry{
		Step: "pre-allocation-adjustment", Token: preToken, At: s.now(), NewBalance: &newBalance,
	}); err != nil {
		return OutcomeRetry, err
	}

	// Step 2: reward computation against the returned balance.
	units, capReached := rules.RewardPayout(reward, newBalance, p.adjustment)
	if units == 0 {
		return OutcomeCompleted, nil
	}
	cost := rules.CostToUser(reward, units, p.adjustment, capReached)

	// Step 3: reward allocation, immediate or pending. The shape is fixed
	// by the rule's allocation window, never re-decided per retry.
	allocToken, err := s.tasks.GetOrSetParam(ctx, task.ID, model.ParamAllocationToken, uuid.NewString)
	if err != nil {
		return OutcomeRetry, err
	}
	alloc := client.AllocationParams{
		AccountHolderID: p.accountHolderID,
		CampaignSlug:    p.campaignSlug,
		Count:           units,
		TotalCostToUser: cost,
	}
	pending := reward.AllocationWindow > 0
	if pending {
		conversionDate := s.now().AddDate(0, 0, reward.AllocationWindow)
		err = s.rewards.IssuePending(ctx, p.retailerSlug, reward.RewardSlug, alloc, conversionDate, allocToken)
	} else {
		err = s.rewards.Issue(ctx, p.retailerSlug, reward.RewardSlug, alloc, allocToken)
	}
	if err != nil {
		return outcomeForError(err), err
	}
	observability.RewardsIssued.WithLabelValues(p.campaignSlug, strconv.FormatBool(pending)).Add(float64(units))
	if err := s.tasks.RecordAudit(ctx, task.ID, auditEntry{
		Step: "reward-allocation", Token: allocToken, At: s.now(), Units: units, CapReached: capReached,
	}); err != nil {
		return OutcomeRetry, err
	}

	// Step 4: post-allocation adjustment deducting the cost to the user.
	// A failure here after a successful allocation leaves the reward issued
	// and the deduction pending; the retry replays the same token.
	postToken, err := s.tasks.GetOrSetParam(ctx, task.ID, model.ParamPostAllocationToken, uuid.NewString)
	if err != nil {
		return OutcomeRetry, err
	}
	if _, err := s.ledger.Adjust(ctx, p.retailerSlug, p.accountHolderID, p.campaignSlug, -cost, false, postToken, client.AdjustmentMetadata{
		Reason:              "reward goal met",
		TransactionID:       p.transactionID,
		TransactionDatetime: p.transactionTime,
	}); err != nil {
		return outcomeForError(err), err
	}
	if err := s.tasks.RecordAudit(ctx, task.ID, auditEntry{
		Step: "post-allocation-adjustment", Token: postToken, At: s.now(),
	}); err != nil {
		return OutcomeRetry, err
	}

	return OutcomeCompleted, nil
}
