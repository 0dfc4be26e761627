package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/piukhq/vela-sub000/internal/model"
)

// Mirror keeps the reward service's copy of campaign state in step with
// ours during status transitions.
type Mirror struct {
	baseClient
}

func NewMirror(baseURL string, timeout time.Duration) *Mirror {
	return &Mirror{newBaseClient("campaign-mirror", baseURL, timeout)}
}

// UpdateStatus pushes a campaign's new status to the mirror. Any non-2xx
// response aborts the caller's batch, so the classified error is returned
// as-is for surfacing.
func (c *Mirror) UpdateStatus(ctx context.Context, retailer, rewardSlug, campaign string, status model.CampaignStatus) error {
	path := fmt.Sprintf("/%s/%s/campaign", retailer, rewardSlug)
	body := map[string]string{"campaign_slug": campaign, "status": string(status)}
	return c.doJSON(ctx, http.MethodPut, path, "", body, nil)
}
