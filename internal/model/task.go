package model

// Durable task types executed by the worker. One reward-adjustment task is
// created per (transaction, campaign) pair with an accepted adjustment; the
// remaining types are scheduled by campaign status transitions.
const (
	TaskRewardAdjustment     = "reward-adjustment"
	TaskCancelRewards        = "cancel-rewards"
	TaskConvertPendingReward = "convert-pending-rewards"
	TaskDeletePendingReward  = "delete-pending-rewards"
	TaskCreateBalances       = "create-campaign-balances"
	TaskDeleteBalances       = "delete-campaign-balances"
)

// Parameter names shared between task producers and the saga. The three
// token parameters are minted lazily, exactly once, and reused on retry.
const (
	ParamRetailerSlug        = "retailer_slug"
	ParamCampaignSlug        = "campaign_slug"
	ParamAccountHolderID     = "account_holder_id"
	ParamAdjustmentAmount    = "adjustment_amount"
	ParamTransactionID       = "transaction_id"
	ParamTransactionDatetime = "transaction_datetime"
	ParamRewardSlug          = "reward_slug"
	ParamPreAllocationToken  = "pre_allocation_token"
	ParamAllocationToken     = "allocation_token"
	ParamPostAllocationToken = "post_allocation_token"
	ParamIdempotencyToken    = "idempotency_token"
)

// TaskEnqueued is the bus message carrying a durable task to a worker.
type TaskEnqueued struct {
	TaskID string `json:"task_id"`
}
