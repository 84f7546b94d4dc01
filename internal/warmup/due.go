package warmup

import (
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// IsDue reports whether account should be warmed at now. The daily target
// is drawn from [min,max] on every check, so the cadence drifts from day to
// day. An account that was never warmed is always due.
func IsDue(account *models.Account, now time.Time, r Random, factor float64) bool {
	if account.LastWarmupAt == nil {
		return true
	}

	lo, hi := account.MinDailyActivity, account.MaxDailyActivity
	if lo < 1 {
		lo = 1
	}
	if hi < lo {
		hi = lo
	}
	daily := lo + r.IntN(hi-lo+1)

	interval := time.Duration(factor * float64(24*time.Hour) / float64(daily))
	return now.Sub(*account.LastWarmupAt) >= interval
}
