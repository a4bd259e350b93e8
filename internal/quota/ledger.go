package quota

import (
	"context"
	"time"

	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/common/logging"
	"ats-optimizer/internal/storage"
)

// Ledger tracks monthly usage for the session path. Unlike the api_key path,
// which charges inside a single conditional storage update, the ledger reads
// the account and writes the increment in two steps: a session serves one
// human clicking a button, so a rare double-spend under a racing pair of
// requests is an accepted trade against the cost of locking every account row.
type Ledger struct {
	storage storage.Storage
	logger  logging.Logger

	// now is replaceable in tests to cross month and trial boundaries
	now func() time.Time
}

func NewLedger(store storage.Storage) *Ledger {
	return &Ledger{
		storage: store,
		logger:  logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "quota"}),
		now:     time.Now,
	}
}

// Refresh loads a user and applies any pending plan or window transitions:
// an expired trial lapses to the free plan, and a usage window from an
// earlier month resets to zero. Both transitions are idempotent, so two
// requests racing through Refresh converge on the same state.
func (l *Ledger) Refresh(ctx context.Context, userID string) (*storage.User, error) {
	user, err := l.storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := l.now()

	if user.Plan == PlanTrial && !user.TrialExpiresAt.IsZero() && now.After(user.TrialExpiresAt) {
		if err := l.storage.UpdateUserPlan(ctx, user.ID, PlanFree); err != nil {
			return nil, err
		}
		l.logger.Info("trial expired, account moved to free plan",
			logging.Field{Key: "user_id", Value: user.ID})
		user.Plan = PlanFree
	}

	if !sameMonth(user.LastResetAt, now) {
		if err := l.storage.ResetUserMonthlyUsage(ctx, user.ID, now); err != nil {
			return nil, err
		}
		user.UsedThisMonth = 0
		user.LastResetAt = now
	}

	return user, nil
}

// Admit checks that the user has quota left this month, after applying any
// pending transitions. It does not charge; call Commit once the metered work
// has actually been performed.
func (l *Ledger) Admit(ctx context.Context, userID string) (*storage.User, error) {
	user, err := l.Refresh(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := MonthlyQuota(user.Plan)
	if limit != Unlimited && user.UsedThisMonth >= limit {
		return nil, errors.QuotaExceededError(user.Plan, limit).
			WithContext("used", user.UsedThisMonth)
	}

	return user, nil
}

// Commit charges one unit against the user's monthly usage.
func (l *Ledger) Commit(ctx context.Context, userID string) error {
	return l.storage.IncrementUserUsage(ctx, userID)
}

// Remaining returns how many analyses the user has left this month, or
// Unlimited for uncapped plans.
func Remaining(user *storage.User) int {
	limit := MonthlyQuota(user.Plan)
	if limit == Unlimited {
		return Unlimited
	}
	if remaining := limit - user.UsedThisMonth; remaining > 0 {
		return remaining
	}
	return 0
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}
