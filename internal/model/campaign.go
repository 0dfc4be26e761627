package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignActive    CampaignStatus = "ACTIVE"
	CampaignCancelled CampaignStatus = "CANCELLED"
	CampaignEnded     CampaignStatus = "ENDED"
)

type LoyaltyType string

const (
	// LoyaltyAccumulator accrues a currency-style balance in minor units.
	LoyaltyAccumulator LoyaltyType = "ACCUMULATOR"
	// LoyaltyStamps accrues a count of fixed stamp increments.
	LoyaltyStamps LoyaltyType = "STAMPS"
)

// EarnRule converts a transaction amount into a signed balance adjustment.
// Threshold is the minimum qualifying amount; MaxAmount of 0 means the
// adjustment is unbounded (capping is disabled, not forbidden).
type EarnRule struct {
	ID                  string
	CampaignSlug        string
	Threshold           int64
	Increment           *int64
	IncrementMultiplier float64
	MaxAmount           int64
}

// RewardRule defines the goal balance that triggers a reward issue.
// AllocationWindow of 0 allocates immediately; a positive value records a
// pending reward maturing after that many days. RewardCap, when set,
// bounds reward units payable from a single adjustment (1..10).
type RewardRule struct {
	RewardGoal       int64
	RewardSlug       string
	AllocationWindow int
	RewardCap        *int
}

type Campaign struct {
	Slug         string
	RetailerSlug string
	Name         string
	Status       CampaignStatus
	LoyaltyType  LoyaltyType
	StartDate    *time.Time
	EndDate      *time.Time
	EarnRules    []EarnRule
	RewardRule   *RewardRule
}

// Finished reports whether the campaign has been taken out of service.
// The adjustment saga re-reads this on every attempt so a cancellation
// racing a long retry sequence is observed.
func (c *Campaign) Finished() bool {
	return c.Status == CampaignEnded || c.Status == CampaignCancelled
}
