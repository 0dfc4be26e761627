package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/observability"
	"github.com/piukhq/vela-sub000/internal/rules"
	"github.com/piukhq/vela-sub000/internal/taskstore"
)

// TopicTasks is the bus topic task ids are published on. Workers consume
// it in a queue group so each task is delivered to exactly one worker.
const TopicTasks = "vela.tasks.created"

var (
	ErrNoActiveCampaigns = errors.New("no active campaigns for retailer")
	ErrInvalidRequest    = errors.New("invalid transaction request")
)

// TransactionService evaluates inbound transactions against the retailer's
// active campaigns and creates one durable reward-adjustment task per
// accepted (transaction, campaign) pair.
type TransactionService struct {
	campaigns CampaignStore
	tasks     TaskStore
	bus       MessageBus
	logger    *slog.Logger
}

func NewTransactionService(campaigns CampaignStore, tasks TaskStore, bus MessageBus, logger *slog.Logger) *TransactionService {
	return &TransactionService{campaigns: campaigns, tasks: tasks, bus: bus, logger: logger}
}

func (s *TransactionService) Process(ctx context.Context, retailer string, req model.TransactionRequest) (*model.TransactionResponse, error) {
	if req.TransactionID == "" || req.AccountHolderID == "" {
		return nil, fmt.Errorf("%w: transaction id and account holder id are required", ErrInvalidRequest)
	}
	if req.Datetime.IsZero() {
		req.Datetime = time.Now()
	}

	campaigns, err := s.campaigns.Active(ctx, retailer, req.Datetime)
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveCampaigns, retailer)
	}

	resp := &model.TransactionResponse{TransactionID: req.TransactionID}
	evaluated := make([]string, 0, len(campaigns))
	type accepted struct {
		campaign   model.Campaign
		adjustment int64
	}
	var wins []accepted

	for _, campaign := range campaigns {
		evaluated = append(evaluated, campaign.Slug)
		decision := model.CampaignDecision{CampaignSlug: campaign.Slug}
		// First accepting earn rule wins; one adjustment per campaign.
		for _, rule := range campaign.EarnRules {
			ok, adjustment := rules.EvaluateEarnRule(req.Amount, campaign.LoyaltyType, rule)
			if ok {
				decision.Accepted = true
				decision.Adjustment = adjustment
				wins = append(wins, accepted{campaign: campaign, adjustment: adjustment})
				observability.AdjustmentsAccepted.WithLabelValues(retailer, campaign.Slug).Inc()
				break
			}
		}
		resp.Decisions = append(resp.Decisions, decision)
	}

	// Record the immutable transaction first; a duplicate id creates no tasks.
	if err := s.campaigns.RecordTransaction(ctx, model.ProcessedTransaction{
		TransactionID:   req.TransactionID,
		AccountHolderID: req.AccountHolderID,
		RetailerSlug:    retailer,
		Amount:          req.Amount,
		Datetime:        req.Datetime,
		CampaignSlugs:   evaluated,
	}); err != nil {
		return nil, err
	}

	var created []uuid.UUID
	for _, win := range wins {
		id, err := s.tasks.CreateTask(ctx, taskstore.Spec{
			Type: model.TaskRewardAdjustment,
			Params: map[string]string{
				model.ParamRetailerSlug:        retailer,
				model.ParamCampaignSlug:        win.campaign.Slug,
				model.ParamAccountHolderID:     req.AccountHolderID,
				model.ParamAdjustmentAmount:    strconv.FormatInt(win.adjustment, 10),
				model.ParamTransactionID:       req.TransactionID,
				model.ParamTransactionDatetime: req.Datetime.Format(time.RFC3339),
			},
		})
		if err != nil {
			if delErr := s.tasks.DeleteTasks(ctx, created); delErr != nil {
				s.logger.Error("failed to delete tasks after create failure", "error", delErr)
			}
			return nil, fmt.Errorf("create adjustment task: %w", err)
		}
		created = append(created, id)
	}

	if err := enqueueTasks(s.bus, created); err != nil {
		if delErr := s.tasks.DeleteTasks(ctx, created); delErr != nil {
			s.logger.Error("failed to delete tasks after enqueue failure", "error", delErr)
		}
		return nil, fmt.Errorf("enqueue adjustment tasks: %w", err)
	}

	return resp, nil
}

// enqueueTasks publishes every created task id. Callers compensate by
// deleting the created tasks if this fails.
func enqueueTasks(bus MessageBus, ids []uuid.UUID) error {
	for _, id := range ids {
		data, err := json.Marshal(model.TaskEnqueued{TaskID: id.String()})
		if err != nil {
			return err
		}
		if err := bus.Publish(TopicTasks, data); err != nil {
			return err
		}
	}
	return nil
}
