package rules

import "github.com/piukhq/vela-sub000/internal/model"

// RewardPayout returns how many reward units a post-adjustment balance has
// earned and whether the rule's reward cap truncated the payout.
//
// The oversized-adjustment disjunct is deliberate: a single transaction
// larger than rewardCap * rewardGoal must not pay out above the cap even
// when the running balance alone stays within it.
func RewardPayout(rule model.RewardRule, newBalance, adjustment int64) (units int, capReached bool) {
	if rule.RewardGoal <= 0 {
		return 0, false
	}
	if newBalance > 0 {
		units = int(newBalance / rule.RewardGoal)
	}

	if rule.RewardCap != nil {
		cap := *rule.RewardCap
		if units > cap || adjustment > int64(cap)*rule.RewardGoal {
			return cap, true
		}
	}
	return units, false
}

// CostToUser is the balance deducted after a reward allocation. A capped
// payout costs exactly the raw adjustment rather than the uncapped
// theoretical units * goal.
func CostToUser(rule model.RewardRule, units int, adjustment int64, capReached bool) int64 {
	if capReached {
		return adjustment
	}
	return int64(units) * rule.RewardGoal
}
