package population

import (
	"math"
	"sort"
)

// Rescore recomputes the population centroid, every record's raw scalar,
// percentile and score, and returns the centroid with the resulting
// distribution. Records are mutated in place. O(n) in population size by
// design; callers own whatever locking the surrounding store needs.
func Rescore(records []*UserRecord) ([]float32, ScoreDistribution) {
	n := len(records)
	if n == 0 {
		return nil, ScoreDistribution{}
	}

	// Centroid: arithmetic mean of all embeddings.
	acc := make([]float64, EmbeddingDim)
	for _, rec := range records {
		for i, v := range rec.Embedding {
			acc[i] += float64(v)
		}
	}
	centroid := make([]float32, EmbeddingDim)
	for i, v := range acc {
		centroid[i] = float32(v / float64(n))
	}

	// Raw scalar per member, then rank-based percentile.
	sorted := make([]float64, 0, n)
	raws := make([]float64, n)
	for i, rec := range records {
		raw := rawScore(rec.Embedding, centroid)
		raws[i] = raw
		sorted = append(sorted, raw)
	}
	sort.Float64s(sorted)

	scores := make([]float64, 0, n)
	for i, rec := range records {
		p := percentileOf(sorted, raws[i])
		rec.Percentile = p
		rec.Score = math.Round(p * 100)
		scores = append(scores, rec.Score)
	}

	return centroid, computeDistribution(scores)
}
