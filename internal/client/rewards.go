package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Rewards talks to the reward-allocation service. Immediate and pending
// allocation are two endpoints behind the same business step; the saga
// selects one from the reward rule's allocation window, never per retry.
type Rewards struct {
	baseClient
}

func NewRewards(baseURL string, timeout time.Duration) *Rewards {
	return &Rewards{newBaseClient("rewards", baseURL, timeout)}
}

type allocationRequest struct {
	AccountHolderID string `json:"account_holder_id"`
	CampaignSlug    string `json:"campaign_slug"`
	Count           int    `json:"count"`
	TotalCostToUser int64  `json:"total_cost_to_user"`
}

// Issue allocates count reward units immediately.
func (c *Rewards) Issue(ctx context.Context, retailer, rewardSlug string, req AllocationParams, token string) error {
	path := fmt.Sprintf("/rewards/%s/%s/allocation", retailer, rewardSlug)
	return c.doJSON(ctx, http.MethodPost, path, token, allocationRequest{
		AccountHolderID: req.AccountHolderID,
		CampaignSlug:    req.CampaignSlug,
		Count:           req.Count,
		TotalCostToUser: req.TotalCostToUser,
	}, nil)
}

type pendingAllocationRequest struct {
	RewardSlug      string    `json:"reward_slug"`
	CampaignSlug    string    `json:"campaign_slug"`
	Count           int       `json:"count"`
	TotalCostToUser int64     `json:"total_cost_to_user"`
	ConversionDate  time.Time `json:"conversion_date"`
}

// AllocationParams carries the cost-accounting fields shared by both
// allocation shapes.
type AllocationParams struct {
	AccountHolderID string
	CampaignSlug    string
	Count           int
	TotalCostToUser int64
}

// IssuePending records count reward units maturing at conversionDate.
func (c *Rewards) IssuePending(ctx context.Context, retailer, rewardSlug string, req AllocationParams, conversionDate time.Time, token string) error {
	path := fmt.Sprintf("/accounts/%s/%s/pendingrewardallocation", retailer, req.AccountHolderID)
	return c.doJSON(ctx, http.MethodPost, path, token, pendingAllocationRequest{
		RewardSlug:      rewardSlug,
		CampaignSlug:    req.CampaignSlug,
		Count:           req.Count,
		TotalCostToUser: req.TotalCostToUser,
		ConversionDate:  conversionDate,
	}, nil)
}

// CancelRewards voids all outstanding rewards issued for a cancelled campaign.
func (c *Rewards) CancelRewards(ctx context.Context, retailer, rewardSlug, campaign, token string) error {
	path := fmt.Sprintf("/rewards/%s/%s/status", retailer, rewardSlug)
	body := map[string]string{"status": "cancelled", "campaign_slug": campaign}
	return c.doJSON(ctx, http.MethodPatch, path, token, body, nil)
}

// ConvertPendingRewards materialises pending rewards when a campaign ends.
func (c *Rewards) ConvertPendingRewards(ctx context.Context, retailer, campaign, token string) error {
	path := fmt.Sprintf("/accounts/%s/pendingrewards/%s/conversion", retailer, campaign)
	return c.doJSON(ctx, http.MethodPost, path, token, nil, nil)
}

// DeletePendingRewards discards pending rewards when a campaign is cancelled.
func (c *Rewards) DeletePendingRewards(ctx context.Context, retailer, campaign, token string) error {
	path := fmt.Sprintf("/accounts/%s/pendingrewards/%s", retailer, campaign)
	return c.doJSON(ctx, http.MethodDelete, path, token, nil, nil)
}
