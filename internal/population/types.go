// Package population owns the set of scored users and the derived score
// distribution. It answers percentile, rank, leaderboard and similarity
// queries over the stored face embeddings.
package population

import (
	"time"
)

// EmbeddingDim is the fixed dimension for face embeddings (512 for ArcFace/ResNet100).
const EmbeddingDim = 512

// QualityMetrics holds the bounded quality scalars produced alongside an
// embedding by a single extraction call. All values are in [0,1].
type QualityMetrics struct {
	Quality    float64 `json:"quality"`
	Frontality float64 `json:"frontality"`
	Symmetry   float64 `json:"symmetry"`
	Resolution float64 `json:"resolution"`
	Confidence float64 `json:"confidence"`
}

// UserRecord is one scored user. A record's Score and Percentile are
// recomputed whenever population membership changes, so they are always
// consistent with the current distribution.
type UserRecord struct {
	UserID      string
	Embedding   []float32
	Metrics     QualityMetrics
	Score       float64 // 0-100, rank-based
	Percentile  float64 // (0,1]
	VibeTags    []string
	SubmittedAt time.Time
}

// ScoreDistribution is the derived statistics snapshot over all stored scores.
type ScoreDistribution struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	P10    float64 `json:"p10"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// SimilarMatch is one neighbor returned by a similarity query.
type SimilarMatch struct {
	UserID     string  `json:"userId"`
	Similarity float64 `json:"similarity"`
}

// Standing is a point-in-time view of one user against the population.
type Standing struct {
	Record     UserRecord
	Rank       int // 1-based leaderboard position
	Population int
}
