package population

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when an embedding does not match EmbeddingDim.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store is the population store contract. Implementations must serialize
// Add with respect to distribution recomputation: a score returned by Add
// reflects a distribution that includes the added record. Read operations
// may run concurrently but never observe a partially updated distribution.
//
// Get returns (nil, nil) when no record exists for the user.
type Store interface {
	// Add inserts or replaces the user's record, recomputes the
	// distribution, and returns the stored record with its new score.
	Add(ctx context.Context, userID string, embedding []float32, metrics QualityMetrics, vibeTags []string) (*UserRecord, error)

	// Get looks up a single record by user ID.
	Get(ctx context.Context, userID string) (*UserRecord, error)

	// GetStanding returns the record together with its rank and the
	// population size. Returns (nil, nil) when no record exists.
	GetStanding(ctx context.Context, userID string) (*Standing, error)

	// Distribution returns the current derived statistics.
	Distribution(ctx context.Context) (ScoreDistribution, error)

	// Leaderboard returns up to limit records ordered by score descending,
	// ties broken by earliest submission time, then user ID.
	Leaderboard(ctx context.Context, limit int) ([]UserRecord, error)

	// Similar returns up to limit users ordered by cosine similarity to the
	// given vector, descending, excluding excludeUserID.
	Similar(ctx context.Context, vector []float32, limit int, excludeUserID string) ([]SimilarMatch, error)

	// Count returns the population size.
	Count(ctx context.Context) (int, error)
}
