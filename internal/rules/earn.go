// Package rules holds the pure decision logic for campaigns: earn-rule
// evaluation, reward payout capping, and the campaign lifecycle policy.
// Nothing in this package performs I/O.
package rules

import (
	"math"

	"github.com/piukhq/vela-sub000/internal/model"
)

// EvaluateEarnRule decides whether a signed transaction amount qualifies
// under the rule and returns the signed balance adjustment it earns.
// Refunds (negative amounts) qualify on their magnitude and claw back the
// mirrored adjustment, never more than MaxAmount in absolute value.
//
// The increment multiplier is applied with round-half-away-from-zero
// semantics on the scaled magnitude.
func EvaluateEarnRule(amount int64, loyaltyType model.LoyaltyType, rule model.EarnRule) (accepted bool, adjustment int64) {
	magnitude := amount
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude < rule.Threshold {
		return false, 0
	}

	var base int64
	switch loyaltyType {
	case model.LoyaltyStamps:
		if rule.Increment == nil {
			return false, 0
		}
		base = roundScaled(*rule.Increment, rule.IncrementMultiplier)
	default:
		base = roundScaled(magnitude, rule.IncrementMultiplier)
	}

	// MaxAmount of 0 disables capping entirely.
	if rule.MaxAmount > 0 && base > rule.MaxAmount {
		base = rule.MaxAmount
	}

	if amount < 0 {
		return true, -base
	}
	return true, base
}

func roundScaled(value int64, multiplier float64) int64 {
	if multiplier == 0 {
		multiplier = 1
	}
	return int64(math.Round(float64(value) * multiplier))
}
