package scoring

import (
	"fmt"
	"time"

	"github.com/aurum-app/facerank/internal/population"
)

// VerificationFlags are caller-supplied attestations. The engine never
// verifies them itself; enforcement is a deployment policy toggle.
type VerificationFlags struct {
	NFTVerified      bool
	IdentityVerified bool
}

// Eligibility is the gate's verdict for one submission attempt.
type Eligibility struct {
	Eligible bool
	Reason   string
}

// Gate enforces the one-submission-per-window rule and, when enabled, the
// verification flag requirement.
type Gate struct {
	window              time.Duration
	requireVerification bool
}

func NewGate(window time.Duration, requireVerification bool) *Gate {
	return &Gate{window: window, requireVerification: requireVerification}
}

// Check decides whether a new submission may proceed. The record argument is
// the user's current record, nil when none exists.
func (g *Gate) Check(record *population.UserRecord, flags VerificationFlags, now time.Time) Eligibility {
	if g.requireVerification && (!flags.NFTVerified || !flags.IdentityVerified) {
		return Eligibility{Reason: "verification required"}
	}

	if record != nil {
		age := now.Sub(record.SubmittedAt)
		if age < g.window {
			remaining := g.window - age
			return Eligibility{Reason: fmt.Sprintf(
				"existing valid score, resubmission allowed in %s",
				remaining.Round(time.Hour),
			)}
		}
	}

	return Eligibility{Eligible: true}
}
