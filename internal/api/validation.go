package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateCreateAccount validates a registration request, filling in the
// default activity range when both bounds are omitted.
func ValidateCreateAccount(req *models.CreateAccountRequest) error {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return ValidationError{Field: "session_id", Message: "session_id is required"}
	}
	if len(req.SessionID) > 255 {
		return ValidationError{Field: "session_id", Message: "session_id too long (max 255 characters)"}
	}

	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber != "" {
		digits := strings.TrimPrefix(req.PhoneNumber, "+")
		if strings.Trim(digits, "0123456789") != "" || len(digits) < 5 || len(digits) > 15 {
			return ValidationError{Field: "phone_number", Message: "phone_number must be 5-15 digits with an optional leading +"}
		}
	}

	if req.MinDailyActivity == 0 && req.MaxDailyActivity == 0 {
		req.MinDailyActivity = models.DefaultMinDailyActivity
		req.MaxDailyActivity = models.DefaultMaxDailyActivity
	}
	if err := models.ValidateActivityBounds(req.MinDailyActivity, req.MaxDailyActivity); err != nil {
		return ValidationError{Field: "daily_activity", Message: err.Error()}
	}
	return nil
}

// ValidateAccountUpdate checks an update against the account it will be applied to.
func ValidateAccountUpdate(current *models.Account, upd models.AccountUpdate, now time.Time) error {
	minDaily, maxDaily := current.MinDailyActivity, current.MaxDailyActivity
	if upd.MinDailyActivity != nil {
		minDaily = *upd.MinDailyActivity
	}
	if upd.MaxDailyActivity != nil {
		maxDaily = *upd.MaxDailyActivity
	}
	if err := models.ValidateActivityBounds(minDaily, maxDaily); err != nil {
		return ValidationError{Field: "daily_activity", Message: err.Error()}
	}

	if current.IsDeleted && upd.IsDeleted != nil && !*upd.IsDeleted {
		return ValidationError{Field: "is_deleted", Message: "a deleted account cannot be restored"}
	}
	if upd.UnbanDate != nil && upd.ClearUnbanDate {
		return ValidationError{Field: "unban_date", Message: "unban_date and clear_unban_date are mutually exclusive"}
	}
	if upd.UnbanDate != nil && !upd.UnbanDate.After(now) {
		return ValidationError{Field: "unban_date", Message: "unban_date must be in the future"}
	}
	return nil
}
