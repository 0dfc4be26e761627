package rules

import "github.com/piukhq/vela-sub000/internal/model"

// Campaign lifecycle transition table. Anything absent here, including
// self-transitions, is illegal.
var campaignTransitions = map[model.CampaignStatus][]model.CampaignStatus{
	model.CampaignDraft:  {model.CampaignActive},
	model.CampaignActive: {model.CampaignCancelled, model.CampaignEnded},
}

// ValidTransition reports whether from -> to is a legal lifecycle move.
func ValidTransition(from, to model.CampaignStatus) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActivable reports whether a campaign may leave DRAFT: the transition
// must be structurally valid and the campaign must own at least one earn
// rule and exactly one reward rule.
func IsActivable(c *model.Campaign) bool {
	if c.Status != model.CampaignDraft {
		return false
	}
	return len(c.EarnRules) >= 1 && c.RewardRule != nil
}

// RequiredTasks lists the downstream durable task types a successful
// transition schedules for the campaign. Pending-reward conversion and
// deletion only apply when the reward rule defers allocation.
func RequiredTasks(to model.CampaignStatus, reward *model.RewardRule) []string {
	deferred := reward != nil && reward.AllocationWindow > 0

	switch to {
	case model.CampaignActive:
		return []string{model.TaskCreateBalances}
	case model.CampaignEnded:
		tasks := []string{model.TaskDeleteBalances}
		if deferred {
			tasks = append(tasks, model.TaskConvertPendingReward)
		}
		return tasks
	case model.CampaignCancelled:
		tasks := []string{model.TaskDeleteBalances, model.TaskCancelRewards}
		if deferred {
			tasks = append(tasks, model.TaskDeletePendingReward)
		}
		return tasks
	}
	return nil
}
