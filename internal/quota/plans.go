package quota

import "time"

// Plan names. Every user and API key row carries one of these.
const (
	PlanFree      = "free"
	PlanTrial     = "trial"
	PlanPayPerUse = "pay_per_use"
	PlanPro       = "pro"
	PlanBusiness  = "business"
)

// Unlimited is the sentinel quota for plans with no monthly cap.
const Unlimited = -1

// TrialDuration is how long the trial entitlement granted at registration
// lasts before the account lapses to the free plan.
const TrialDuration = 30 * 24 * time.Hour

var monthlyQuotas = map[string]int{
	PlanFree:      3,
	PlanTrial:     3,
	PlanPayPerUse: Unlimited,
	PlanPro:       100,
	PlanBusiness:  1000,
}

// MonthlyQuota returns the monthly analysis allowance for a plan. Unknown
// plans get the free allowance rather than unlimited.
func MonthlyQuota(plan string) int {
	if q, ok := monthlyQuotas[plan]; ok {
		return q
	}
	return monthlyQuotas[PlanFree]
}

// ValidPlan reports whether plan is a known plan name.
func ValidPlan(plan string) bool {
	_, ok := monthlyQuotas[plan]
	return ok
}
