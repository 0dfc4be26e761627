package model

import "time"

// TransactionRequest is the inbound shape produced by the API layer.
// Amount is signed: refunds arrive negative.
type TransactionRequest struct {
	TransactionID   string    `json:"id"`
	AccountHolderID string    `json:"account_holder_id"`
	Amount          int64     `json:"amount"`
	Datetime        time.Time `json:"datetime"`
	MID             string    `json:"mid"`
}

// ProcessedTransaction is the immutable record of an accepted transaction.
type ProcessedTransaction struct {
	TransactionID   string
	AccountHolderID string
	RetailerSlug    string
	Amount          int64
	Datetime        time.Time
	CampaignSlugs   []string
}

// CampaignDecision reports the per-campaign outcome of earn-rule evaluation.
type CampaignDecision struct {
	CampaignSlug string `json:"campaign_slug"`
	Accepted     bool   `json:"accepted"`
	Adjustment   int64  `json:"adjustment,omitempty"`
}

type TransactionResponse struct {
	TransactionID string             `json:"transaction_id"`
	Decisions     []CampaignDecision `json:"campaigns"`
}
