package scoring

import (
	"fmt"

	"github.com/aurum-app/facerank/internal/config"
	"github.com/aurum-app/facerank/internal/population"
)

// ValidationResult is the outcome of the quality floor check. Reasons lists
// every violated floor, not just the first one.
type ValidationResult struct {
	Accepted bool
	Reasons  []string
}

// Validator applies configured minimum floors to extraction quality metrics.
// It is pure: no side effects, no dependencies beyond its thresholds.
type Validator struct {
	thresholds config.ThresholdsConfig
}

func NewValidator(thresholds config.ThresholdsConfig) *Validator {
	return &Validator{thresholds: thresholds}
}

// Validate checks every metric against its floor and collects all violations.
func (v *Validator) Validate(m population.QualityMetrics) ValidationResult {
	var reasons []string

	check := func(name string, value, floor float64) {
		if value < floor {
			reasons = append(reasons, fmt.Sprintf("%s %.2f below minimum %.2f", name, value, floor))
		}
	}

	check("quality", m.Quality, v.thresholds.Quality)
	check("frontality", m.Frontality, v.thresholds.Frontality)
	check("symmetry", m.Symmetry, v.thresholds.Symmetry)
	check("resolution", m.Resolution, v.thresholds.Resolution)
	check("confidence", m.Confidence, v.thresholds.Confidence)

	return ValidationResult{Accepted: len(reasons) == 0, Reasons: reasons}
}
