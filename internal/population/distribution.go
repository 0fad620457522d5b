package population

import (
	"math"
	"sort"
)

// quantile returns the q-th quantile (0 <= q <= 1) of a sorted slice using
// linear interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// computeDistribution derives the score distribution from a set of scores.
// The input slice is not modified.
func computeDistribution(scores []float64) ScoreDistribution {
	n := len(scores)
	if n == 0 {
		return ScoreDistribution{}
	}

	sorted := make([]float64, n)
	copy(sorted, scores)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	mean := sum / float64(n)

	var variance float64
	for _, s := range sorted {
		d := s - mean
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(n))

	return ScoreDistribution{
		Mean:   mean,
		StdDev: stdDev,
		P10:    quantile(sorted, 0.10),
		P25:    quantile(sorted, 0.25),
		P50:    quantile(sorted, 0.50),
		P75:    quantile(sorted, 0.75),
		P90:    quantile(sorted, 0.90),
		P95:    quantile(sorted, 0.95),
		P99:    quantile(sorted, 0.99),
	}
}

// percentileOf returns the fraction of raws that are <= raw. The caller's
// own raw value is expected to be present in the sorted slice, so the
// result is always in (0, 1].
func percentileOf(sortedRaws []float64, raw float64) float64 {
	// sort.SearchFloat64s returns the first index with value >= raw; walk
	// forward over equal values to count ties as "less than or equal".
	idx := sort.SearchFloat64s(sortedRaws, raw)
	for idx < len(sortedRaws) && sortedRaws[idx] <= raw {
		idx++
	}
	return float64(idx) / float64(len(sortedRaws))
}
