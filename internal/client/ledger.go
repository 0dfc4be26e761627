package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Ledger talks to the balance service holding per-campaign account balances.
type Ledger struct {
	baseClient
}

func NewLedger(baseURL string, timeout time.Duration) *Ledger {
	return &Ledger{newBaseClient("ledger", baseURL, timeout)}
}

// AdjustmentMetadata travels with every balance change for audit purposes.
type AdjustmentMetadata struct {
	Reason              string    `json:"reason"`
	TransactionID       string    `json:"transaction_id,omitempty"`
	TransactionDatetime time.Time `json:"transaction_datetime,omitempty"`
}

type adjustmentRequest struct {
	BalanceChange    int64              `json:"balance_change"`
	CampaignSlug     string             `json:"campaign_slug"`
	IsTransaction    bool               `json:"is_transaction"`
	ActivityMetadata AdjustmentMetadata `json:"activity_metadata"`
}

type adjustmentResponse struct {
	NewBalance   int64  `json:"new_balance"`
	CampaignSlug string `json:"campaign_slug"`
}

// Adjust applies a signed balance change and returns the new balance. The
// server deduplicates on the idempotency token, so replaying a token is a
// no-op server-side. A response naming a different campaign than requested
// is a data-integrity fault and is never retried.
func (c *Ledger) Adjust(ctx context.Context, retailer, accountHolder, campaign string, change int64, isTransaction bool, token string, meta AdjustmentMetadata) (int64, error) {
	path := fmt.Sprintf("/accounts/%s/%s/adjustments", retailer, accountHolder)
	req := adjustmentRequest{
		BalanceChange:    change,
		CampaignSlug:     campaign,
		IsTransaction:    isTransaction,
		ActivityMetadata: meta,
	}

	var resp adjustmentResponse
	if err := c.doJSON(ctx, http.MethodPost, path, token, req, &resp); err != nil {
		return 0, err
	}
	if resp.CampaignSlug != campaign {
		return 0, &APIError{
			Service: c.service,
			Status:  http.StatusOK,
			Kind:    KindIntegrity,
			Message: fmt.Sprintf("adjustment response for campaign %q, requested %q", resp.CampaignSlug, campaign),
		}
	}
	return resp.NewBalance, nil
}

// CreateCampaignBalances seeds zero balances for a newly activated campaign.
func (c *Ledger) CreateCampaignBalances(ctx context.Context, retailer, campaign, token string) error {
	path := fmt.Sprintf("/accounts/%s/balances", retailer)
	body := map[string]string{"campaign_slug": campaign}
	return c.doJSON(ctx, http.MethodPost, path, token, body, nil)
}

// DeleteCampaignBalances tears down balances for an ended or cancelled campaign.
func (c *Ledger) DeleteCampaignBalances(ctx context.Context, retailer, campaign, token string) error {
	path := fmt.Sprintf("/accounts/%s/balances/%s", retailer, campaign)
	return c.doJSON(ctx, http.MethodDelete, path, token, nil, nil)
}
