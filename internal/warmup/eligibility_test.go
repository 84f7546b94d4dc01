package warmup

import (
	"testing"
	"time"

	"github.com/tgwarmup/tgwarmup/internal/models"
)

func TestShouldSkipPriority(t *testing.T) {
	future := baseTime.Add(48 * time.Hour)
	past := baseTime.Add(-time.Hour)

	tests := []struct {
		name    string
		account models.Account
		skip    bool
		code    SkipCode
	}{
		{"eligible", models.Account{IsActive: true}, false, ""},
		{"deleted wins over everything", models.Account{IsDeleted: true, IsFrozen: true, IsBanned: true, LLMGenerationDisabled: true}, true, SkipDeleted},
		{"frozen before ban", models.Account{IsActive: true, IsFrozen: true, IsBanned: true}, true, SkipFrozen},
		{"banned forever", models.Account{IsActive: true, IsBanned: true}, true, SkipBannedForever},
		{"banned until future", models.Account{IsActive: true, IsBanned: true, UnbanDate: &future}, true, SkipBannedTemporary},
		{"expired ban does not block", models.Account{IsActive: true, IsBanned: true, UnbanDate: &past}, false, ""},
		{"ban expiring exactly now does not block", models.Account{IsActive: true, IsBanned: true, UnbanDate: &baseTime}, false, ""},
		{"llm disabled before inactive", models.Account{LLMGenerationDisabled: true}, true, SkipLLMDisabled},
		{"inactive", models.Account{}, true, SkipInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, reason := ShouldSkip(&tt.account, baseTime)
			if skip != tt.skip || reason.Code != tt.code {
				t.Fatalf("ShouldSkip = (%v, %q), want (%v, %q)", skip, reason.Code, tt.skip, tt.code)
			}
			if skip && reason.Message == "" {
				t.Errorf("expected a reason message")
			}
		})
	}
}

func TestShouldSkipBanExpiryIsIdempotent(t *testing.T) {
	unban := baseTime.Add(-24 * time.Hour)
	account := models.Account{IsActive: true, IsBanned: true, UnbanDate: &unban}

	for i := 0; i < 3; i++ {
		if skip, reason := ShouldSkip(&account, baseTime.Add(time.Duration(i)*time.Hour)); skip {
			t.Fatalf("check %d skipped with %q", i, reason.Code)
		}
	}
	if !account.IsBanned || account.UnbanDate == nil {
		t.Fatalf("eligibility check must not mutate the account")
	}
}

func TestSkipErrorMessage(t *testing.T) {
	err := &SkipError{AccountID: 3, Reason: SkipReason{Code: SkipFrozen, Message: "frozen"}}
	if got := err.Error(); got != "account 3 skipped: frozen" {
		t.Fatalf("Error() = %q", got)
	}
}
