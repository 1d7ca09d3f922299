package types

import (
	"math/big"
	"time"
)

// OneDay is the accrual granularity of daily contribution plans.
const OneDay = 24 * time.Hour

// DailyContributionPlan accrues a fixed contribution per whole elapsed day,
// independent of exchanges. A plan terminates when cancelled or when the
// goal is reached.
type DailyContributionPlan struct {
	Enabled       bool
	DailyAmount   *big.Int
	GoalAmount    *big.Int
	CurrentAmount *big.Int
	PenaltyBps    uint16
	EndTime       time.Time
	LastExecution time.Time
}

// Copy returns a deep copy of the plan.
func (p DailyContributionPlan) Copy() DailyContributionPlan {
	clone := p
	if p.DailyAmount != nil {
		clone.DailyAmount = new(big.Int).Set(p.DailyAmount)
	}
	if p.GoalAmount != nil {
		clone.GoalAmount = new(big.Int).Set(p.GoalAmount)
	}
	if p.CurrentAmount != nil {
		clone.CurrentAmount = new(big.Int).Set(p.CurrentAmount)
	}
	return clone
}

// GoalReached reports whether the accumulated amount has met the goal. A
// zero goal means the plan is open ended.
func (p DailyContributionPlan) GoalReached() bool {
	if p.GoalAmount == nil || p.GoalAmount.Sign() == 0 {
		return false
	}
	return p.CurrentAmount != nil && p.CurrentAmount.Cmp(p.GoalAmount) >= 0
}

// ElapsedDays returns the number of whole days since the last execution.
func (p DailyContributionPlan) ElapsedDays(now time.Time) int64 {
	if p.LastExecution.IsZero() || now.Before(p.LastExecution) {
		return 0
	}
	return int64(now.Sub(p.LastExecution) / OneDay)
}

// SkipReason explains why a batch item was not processed. Skips are data,
// not errors: a skipped item never aborts its siblings.
type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipDisabled          SkipReason = "plan_disabled"
	SkipPlanLoadFailed    SkipReason = "plan_load_failed"
	SkipGoalReached       SkipReason = "goal_reached"
	SkipNoElapsedDays     SkipReason = "no_elapsed_days"
	SkipPlanEnded         SkipReason = "plan_ended"
	SkipInsufficientFunds SkipReason = "insufficient_funds"
	SkipTransferFailed    SkipReason = "transfer_failed"
	SkipBudgetExhausted   SkipReason = "budget_exhausted"
)
