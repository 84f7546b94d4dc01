package warmup

import (
	"fmt"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// SkipCode is the stable machine-readable reason an account is not warmed.
type SkipCode string

const (
	SkipDeleted         SkipCode = "deleted"
	SkipFrozen          SkipCode = "frozen"
	SkipBannedForever   SkipCode = "banned_forever"
	SkipBannedTemporary SkipCode = "banned_temporary"
	SkipLLMDisabled     SkipCode = "llm_disabled"
	SkipInactive        SkipCode = "inactive"
)

// SkipReason pairs a SkipCode with a human-readable message.
type SkipReason struct {
	Code    SkipCode `json:"code"`
	Message string   `json:"reason"`
}

// SkipError is returned by triggers when an account fails eligibility.
type SkipError struct {
	AccountID int64
	Reason    SkipReason
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("account %d skipped: %s", e.AccountID, e.Reason.Message)
}

// ShouldSkip decides whether account may be warmed at now. Checks run in a
// fixed order and the first match wins. A ban whose unban date has passed
// does not block.
func ShouldSkip(account *models.Account, now time.Time) (bool, SkipReason) {
	switch {
	case account.IsDeleted:
		return true, SkipReason{Code: SkipDeleted, Message: "deleted"}
	case account.IsFrozen:
		return true, SkipReason{Code: SkipFrozen, Message: "frozen"}
	case account.IsBanned && account.UnbanDate == nil:
		return true, SkipReason{Code: SkipBannedForever, Message: "banned forever"}
	case account.IsBanned && account.UnbanDate.After(now):
		return true, SkipReason{
			Code:    SkipBannedTemporary,
			Message: "temporarily banned until " + account.UnbanDate.UTC().Format(time.RFC3339),
		}
	case account.LLMGenerationDisabled:
		return true, SkipReason{Code: SkipLLMDisabled, Message: "LLM generation manually disabled"}
	case !account.IsActive:
		return true, SkipReason{Code: SkipInactive, Message: "not active"}
	}
	return false, SkipReason{}
}
