package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/rules"
	"github.com/piukhq/vela-sub000/internal/taskstore"
)

var (
	// ErrLastActiveCampaign rejects a batch that would leave the retailer
	// with no ACTIVE campaigns at all.
	ErrLastActiveCampaign = errors.New("retailer must retain at least one active campaign")
	// ErrTaskEnqueue is the batch-level failure after downstream tasks were
	// created but could not be enqueued; the created tasks are deleted.
	ErrTaskEnqueue = errors.New("failed to enqueue downstream tasks")
)

// StatusService drives retailer-level bulk campaign status transitions:
// policy validation per campaign, a mirror call per legal transition, and
// downstream durable task scheduling. The batch applies what is valid and
// reports what is not; campaigns mutated before a mirror failure keep
// their new status.
type StatusService struct {
	campaigns CampaignStore
	tasks     TaskStore
	mirror    MirrorClient
	bus       MessageBus
	logger    *slog.Logger
	now       func() time.Time
}

func NewStatusService(campaigns CampaignStore, tasks TaskStore, mirror MirrorClient, bus MessageBus, logger *slog.Logger) *StatusService {
	return &StatusService{
		campaigns: campaigns,
		tasks:     tasks,
		mirror:    mirror,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *StatusService) ChangeStatus(ctx context.Context, retailer string, req model.StatusChangeRequest) (*model.StatusChangeResponse, error) {
	target := req.RequestedStatus

	found, err := s.campaigns.BySlugs(ctx, retailer, req.CampaignSlugs)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]*model.Campaign, len(found))
	for i := range found {
		bySlug[found[i].Slug] = &found[i]
	}

	var missing, invalid []string
	for _, slug := range req.CampaignSlugs {
		if _, ok := bySlug[slug]; !ok {
			missing = append(missing, slug)
		}
	}

	// Ending or cancelling must not leave the retailer without a single
	// ACTIVE campaign across its whole portfolio. Checked before any
	// mutation; failure rejects the entire batch.
	if target == model.CampaignEnded || target == model.CampaignCancelled {
		activeTotal, err := s.campaigns.CountActive(ctx, retailer)
		if err != nil {
			return nil, err
		}
		leavingActive := 0
		for _, c := range bySlug {
			if c.Status == model.CampaignActive {
				leavingActive++
			}
		}
		if leavingActive > 0 && activeTotal-leavingActive < 1 {
			return &model.StatusChangeResponse{
				Errors: []model.StatusChangeError{{
					Code:          model.ErrCodeInvalidStatusRequested,
					CampaignSlugs: req.CampaignSlugs,
				}},
			}, ErrLastActiveCampaign
		}
	}

	var created []uuid.UUID
	for _, slug := range req.CampaignSlugs {
		campaign, ok := bySlug[slug]
		if !ok {
			continue
		}

		legal := rules.ValidTransition(campaign.Status, target)
		if legal && target == model.CampaignActive {
			legal = rules.IsActivable(campaign)
		}
		if !legal || campaign.RewardRule == nil {
			invalid = append(invalid, slug)
			continue
		}

		// Mirror first: the external copy must accept the transition before
		// any local mutation. A mirror failure aborts the rest of the batch
		// without rolling back campaigns already processed.
		if err := s.mirror.UpdateStatus(ctx, retailer, campaign.RewardRule.RewardSlug, slug, target); err != nil {
			s.deleteCreated(ctx, created)
			return nil, fmt.Errorf("campaign mirror rejected %s: %w", slug, err)
		}

		for _, taskType := range rules.RequiredTasks(target, campaign.RewardRule) {
			id, err := s.tasks.CreateTask(ctx, taskstore.Spec{
				Type: taskType,
				Params: map[string]string{
					model.ParamRetailerSlug: retailer,
					model.ParamCampaignSlug: slug,
					model.ParamRewardSlug:   campaign.RewardRule.RewardSlug,
				},
			})
			if err != nil {
				s.deleteCreated(ctx, created)
				return nil, fmt.Errorf("create downstream task: %w", err)
			}
			created = append(created, id)
		}

		if err := s.campaigns.SetStatus(ctx, slug, target, s.now()); err != nil {
			s.deleteCreated(ctx, created)
			return nil, fmt.Errorf("update campaign %s: %w", slug, err)
		}
		s.logger.Info("campaign status changed", "retailer", retailer, "campaign", slug, "status", target)
	}

	// Enqueue every created task together. This step alone is
	// all-or-nothing: on failure the created tasks are deleted, while the
	// status and mirror changes above stand.
	if err := enqueueTasks(s.bus, created); err != nil {
		s.deleteCreated(ctx, created)
		return nil, fmt.Errorf("%w: %s", ErrTaskEnqueue, err)
	}

	resp := &model.StatusChangeResponse{}
	if len(missing) > 0 {
		resp.Errors = append(resp.Errors, model.StatusChangeError{
			Code: model.ErrCodeNoCampaignFound, CampaignSlugs: missing,
		})
	}
	if len(invalid) > 0 {
		resp.Errors = append(resp.Errors, model.StatusChangeError{
			Code: model.ErrCodeInvalidStatusRequested, CampaignSlugs: invalid,
		})
	}
	return resp, nil
}

func (s *StatusService) deleteCreated(ctx context.Context, ids []uuid.UUID) {
	if err := s.tasks.DeleteTasks(ctx, ids); err != nil {
		s.logger.Error("failed to delete downstream tasks during compensation", "error", err)
	}
}
