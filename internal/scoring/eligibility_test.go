package scoring

import (
	"strings"
	"testing"
	"time"

	"github.com/aurum-app/facerank/internal/population"
)

func TestGate_Window(t *testing.T) {
	gate := NewGate(30*24*time.Hour, false)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		record   *population.UserRecord
		eligible bool
	}{
		{"no existing record", nil, true},
		{
			"record 29 days old is rejected",
			&population.UserRecord{UserID: "u", SubmittedAt: now.Add(-29 * 24 * time.Hour)},
			false,
		},
		{
			"record 31 days old is eligible",
			&population.UserRecord{UserID: "u", SubmittedAt: now.Add(-31 * 24 * time.Hour)},
			true,
		},
		{
			"record exactly at window boundary is eligible",
			&population.UserRecord{UserID: "u", SubmittedAt: now.Add(-30 * 24 * time.Hour)},
			true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verdict := gate.Check(tc.record, VerificationFlags{}, now)
			if verdict.Eligible != tc.eligible {
				t.Errorf("eligible = %v, want %v (reason: %q)", verdict.Eligible, tc.eligible, verdict.Reason)
			}
			if !tc.eligible && !strings.Contains(verdict.Reason, "existing valid score") {
				t.Errorf("expected reason to mention existing valid score, got %q", verdict.Reason)
			}
		})
	}
}

func TestGate_Verification(t *testing.T) {
	now := time.Now()

	permissive := NewGate(30*24*time.Hour, false)
	if v := permissive.Check(nil, VerificationFlags{}, now); !v.Eligible {
		t.Errorf("permissive gate must ignore verification flags, got reason %q", v.Reason)
	}

	strict := NewGate(30*24*time.Hour, true)
	tests := []struct {
		name     string
		flags    VerificationFlags
		eligible bool
	}{
		{"both flags missing", VerificationFlags{}, false},
		{"only nft verified", VerificationFlags{NFTVerified: true}, false},
		{"only identity verified", VerificationFlags{IdentityVerified: true}, false},
		{"both verified", VerificationFlags{NFTVerified: true, IdentityVerified: true}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verdict := strict.Check(nil, tc.flags, now)
			if verdict.Eligible != tc.eligible {
				t.Errorf("eligible = %v, want %v", verdict.Eligible, tc.eligible)
			}
			if !tc.eligible && !strings.Contains(verdict.Reason, "verification") {
				t.Errorf("expected verification reason, got %q", verdict.Reason)
			}
		})
	}
}
