package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piukhq/vela-sub000/internal/client"
	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/taskstore"
)

func adjustmentTask(t *testing.T) *taskstore.Task {
	t.Helper()
	return &taskstore.Task{
		ID:     uuid.New(),
		Type:   model.TaskRewardAdjustment,
		Status: taskstore.StatusPending,
		Params: map[string]string{
			model.ParamRetailerSlug:        "test-retailer",
			model.ParamCampaignSlug:        "coffee-club",
			model.ParamAccountHolderID:     "holder-1",
			model.ParamAdjustmentAmount:    "500",
			model.ParamTransactionID:       "tx-1",
			model.ParamTransactionDatetime: "2026-08-01T10:00:00Z",
		},
	}
}

func activeCampaign(window int) *model.Campaign {
	return &model.Campaign{
		Slug:         "coffee-club",
		RetailerSlug: "test-retailer",
		Status:       model.CampaignActive,
		LoyaltyType:  model.LoyaltyAccumulator,
		RewardRule: &model.RewardRule{
			RewardGoal:       1000,
			RewardSlug:       "free-coffee",
			AllocationWindow: window,
		},
	}
}

func newTestSaga(campaigns *fakeCampaignStore, tasks *fakeTaskStore, ledger *fakeLedger, rewards *fakeRewards) *AdjustmentSaga {
	s := NewAdjustmentSaga(campaigns, tasks, ledger, rewards, discardLogger())
	s.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestAdjustmentSaga_TerminalTaskIsNoOp(t *testing.T) {
	ledger := &fakeLedger{}
	rewards := &fakeRewards{}
	saga := newTestSaga(&fakeCampaignStore{}, &fakeTaskStore{}, ledger, rewards)

	task := adjustmentTask(t)
	task.Status = taskstore.StatusSuccess

	outcome, err := saga.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Empty(t, ledger.adjusts, "terminal tasks must make no external calls")
	assert.Empty(t, rewards.issued)
}

func TestAdjustmentSaga_FinishedCampaignCancelsBeforeAnyCall(t *testing.T) {
	campaign := activeCampaign(0)
	campaign.Status = model.CampaignEnded
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": campaign}}
	ledger := &fakeLedger{}
	saga := newTestSaga(campaigns, &fakeTaskStore{}, ledger, &fakeRewards{})

	outcome, err := saga.Execute(context.Background(), adjustmentTask(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)
	assert.Empty(t, ledger.adjusts)
}

func TestAdjustmentSaga_HappyPathImmediateAllocation(t *testing.T) {
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": activeCampaign(0)}}
	tasks := &fakeTaskStore{}
	ledger := &fakeLedger{balances: []int64{1200}}
	rewards := &fakeRewards{}
	saga := newTestSaga(campaigns, tasks, ledger, rewards)

	task := adjustmentTask(t)
	outcome, err := saga.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	require.Len(t, ledger.adjusts, 2)
	pre, post := ledger.adjusts[0], ledger.adjusts[1]
	assert.Equal(t, int64(500), pre.change)
	assert.True(t, pre.isTransaction)
	assert.Equal(t, int64(-1000), post.change, "cost to user is units * goal")
	assert.False(t, post.isTransaction)

	require.Len(t, rewards.issued, 1)
	assert.Equal(t, "free-coffee", rewards.issued[0].rewardSlug)
	assert.Equal(t, 1, rewards.issued[0].params.Count)
	assert.Equal(t, int64(1000), rewards.issued[0].params.TotalCostToUser)

	// Three distinct persisted tokens, one per external step.
	params := tasks.params[task.ID]
	tokens := map[string]bool{
		params[model.ParamPreAllocationToken]:  true,
		params[model.ParamAllocationToken]:     true,
		params[model.ParamPostAllocationToken]: true,
	}
	assert.Len(t, tokens, 3)
	assert.NotEqual(t, pre.token, post.token)
	assert.Len(t, tasks.audits, 3)
}

func TestAdjustmentSaga_ReusesPersistedTokensOnRetry(t *testing.T) {
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": activeCampaign(0)}}
	tasks := &fakeTaskStore{}
	ledger := &fakeLedger{balances: []int64{1200}}
	saga := newTestSaga(campaigns, tasks, ledger, &fakeRewards{})

	task := adjustmentTask(t)
	tasks.params = map[uuid.UUID]map[string]string{
		task.ID: {
			model.ParamPreAllocationToken:  "pre-token-from-first-attempt",
			model.ParamAllocationToken:     "alloc-token-from-first-attempt",
			model.ParamPostAllocationToken: "post-token-from-first-attempt",
		},
	}

	outcome, err := saga.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	require.Len(t, ledger.adjusts, 2)
	assert.Equal(t, "pre-token-from-first-attempt", ledger.adjusts[0].token)
	assert.Equal(t, "post-token-from-first-attempt", ledger.adjusts[1].token)
}

func TestAdjustmentSaga_NoRewardWhenGoalNotMet(t *testing.T) {
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": activeCampaign(0)}}
	ledger := &fakeLedger{balances: []int64{700}}
	rewards := &fakeRewards{}
	saga := newTestSaga(campaigns, &fakeTaskStore{}, ledger, rewards)

	outcome, err := saga.Execute(context.Background(), adjustmentTask(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Len(t, ledger.adjusts, 1, "no post-allocation adjustment without a payout")
	assert.Empty(t, rewards.issued)
}

func TestAdjustmentSaga_PendingAllocationUsesConversionDate(t *testing.T) {
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": activeCampaign(14)}}
	ledger := &fakeLedger{balances: []int64{1200}}
	rewards := &fakeRewards{}
	saga := newTestSaga(campaigns, &fakeTaskStore{}, ledger, rewards)

	outcome, err := saga.Execute(context.Background(), adjustmentTask(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	assert.Empty(t, rewards.issued)
	require.Len(t, rewards.pendings, 1)
	want := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, want, rewards.pendings[0].conversionDate)
}

func TestAdjustmentSaga_CappedPayoutCostsRawAdjustment(t *testing.T) {
	cap := 2
	campaign := activeCampaign(0)
	campaign.RewardRule.RewardCap = &cap
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": campaign}}
	ledger := &fakeLedger{balances: []int64{5000}}
	rewards := &fakeRewards{}
	saga := newTestSaga(campaigns, &fakeTaskStore{}, ledger, rewards)

	task := adjustmentTask(t)
	task.Params[model.ParamAdjustmentAmount] = "5000"

	outcome, err := saga.Execute(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	require.Len(t, rewards.issued, 1)
	assert.Equal(t, 2, rewards.issued[0].params.Count)
	assert.Equal(t, int64(5000), rewards.issued[0].params.TotalCostToUser)
	require.Len(t, ledger.adjusts, 2)
	assert.Equal(t, int64(-5000), ledger.adjusts[1].change)
}

func TestAdjustmentSaga_OutcomeClassification(t *testing.T) {
	tests := []struct {
		name string
		err  *client.APIError
		want Outcome
	}{
		{"transient", &client.APIError{Kind: client.KindTransient, Status: 503}, OutcomeRetry},
		{"terminal", &client.APIError{Kind: client.KindTerminal, Status: 422}, OutcomeFailed},
		{"integrity", &client.APIError{Kind: client.KindIntegrity, Status: 200}, OutcomeFailed},
		{"account holder deleted", &client.APIError{Kind: client.KindAccountHolderDeleted, Status: 404}, OutcomeAccountHolderDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": activeCampaign(0)}}
			ledger := &fakeLedger{adjustErr: []error{tt.err}}
			saga := newTestSaga(campaigns, &fakeTaskStore{}, ledger, &fakeRewards{})

			outcome, err := saga.Execute(context.Background(), adjustmentTask(t))
			require.Error(t, err)
			assert.Equal(t, tt.want, outcome)
		})
	}
}

func TestAdjustmentSaga_PostAllocationFailureRetriesWithRewardIssued(t *testing.T) {
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": activeCampaign(0)}}
	ledger := &fakeLedger{
		balances:  []int64{1200},
		adjustErr: []error{nil, &client.APIError{Kind: client.KindTransient, Status: 502}},
	}
	rewards := &fakeRewards{}
	saga := newTestSaga(campaigns, &fakeTaskStore{}, ledger, rewards)

	outcome, err := saga.Execute(context.Background(), adjustmentTask(t))
	require.Error(t, err)
	assert.Equal(t, OutcomeRetry, outcome)
	assert.Len(t, rewards.issued, 1, "allocation succeeded before the deduction failed")
}

func TestAdjustmentSaga_MalformedParamsFail(t *testing.T) {
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{"coffee-club": activeCampaign(0)}}
	saga := newTestSaga(campaigns, &fakeTaskStore{}, &fakeLedger{}, &fakeRewards{})

	task := adjustmentTask(t)
	task.Params[model.ParamAdjustmentAmount] = "not-a-number"

	outcome, err := saga.Execute(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestAdjustmentSaga_UnknownCampaignFails(t *testing.T) {
	campaigns := &fakeCampaignStore{campaigns: map[string]*model.Campaign{}}
	saga := newTestSaga(campaigns, &fakeTaskStore{}, &fakeLedger{}, &fakeRewards{})

	outcome, err := saga.Execute(context.Background(), adjustmentTask(t))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}
