package usage

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	cases := []struct {
		name   string
		userID string
		ok     bool
	}{
		{"simple", "u1", true},
		{"max length", strings.Repeat("a", 128), true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"too long", strings.Repeat("a", 129), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUserID(tc.userID)
			if tc.ok && err != nil {
				t.Errorf("ValidateUserID(%q) = %v, want nil", tc.userID, err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrInvalidUser) {
					t.Errorf("ValidateUserID(%q) = %v, want ErrInvalidUser", tc.userID, err)
				}
			}
		})
	}
}

func TestDefaultPolicyValidate(t *testing.T) {
	valid := DefaultPolicy{
		Standard: TierLimits{MonthlyLimit: 10, DailyLimit: 2, RequestsPerHour: 20},
		Premium:  TierLimits{MonthlyLimit: 50, DailyLimit: 10, RequestsPerHour: 100},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid policy rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*DefaultPolicy)
	}{
		{"zero standard monthly", func(p *DefaultPolicy) { p.Standard.MonthlyLimit = 0 }},
		{"negative standard daily", func(p *DefaultPolicy) { p.Standard.DailyLimit = -1 }},
		{"zero standard hourly", func(p *DefaultPolicy) { p.Standard.RequestsPerHour = 0 }},
		{"zero premium monthly", func(p *DefaultPolicy) { p.Premium.MonthlyLimit = 0 }},
		{"negative premium hourly", func(p *DefaultPolicy) { p.Premium.RequestsPerHour = -5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("Validate() = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("sqlite", "insert_event", cause)

	if !errors.Is(err, ErrStorageUnavailable) {
		t.Error("StorageError must match ErrStorageUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("StorageError must unwrap to its cause")
	}

	msg := err.Error()
	for _, want := range []string{"sqlite", "insert_event", "disk full"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
