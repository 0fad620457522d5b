package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/aurum-app/facerank/internal/population"
)

// Simulate produces a deterministic extraction result for (userID, imageHash).
// The same input always yields bit-identical output, so resubmitting the same
// image cannot be used to fish for a better roll, and tests are reproducible.
// Generated metrics sit comfortably above the default validator floors so
// backend unavailability does not turn into a silent user-facing rejection.
func Simulate(userID, imageHash string) *Result {
	h := fnv.New64a()
	h.Write([]byte(userID))
	h.Write([]byte("|"))
	h.Write([]byte(imageHash))
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec // deterministic by design

	embedding := make([]float32, population.EmbeddingDim)
	var norm float64
	for i := range embedding {
		embedding[i] = float32(rng.NormFloat64())
		norm += float64(embedding[i]) * float64(embedding[i])
	}
	norm = math.Sqrt(norm)
	for i := range embedding {
		embedding[i] = float32(float64(embedding[i]) / norm)
	}

	metrics := population.QualityMetrics{
		Quality:    0.65 + 0.30*rng.Float64(),
		Frontality: 0.55 + 0.40*rng.Float64(),
		Symmetry:   0.45 + 0.45*rng.Float64(),
		Resolution: 0.45 + 0.50*rng.Float64(),
		Confidence: 0.75 + 0.24*rng.Float64(),
	}

	return &Result{
		Embedding: embedding,
		Metrics:   metrics,
		Degraded:  true,
	}
}

// HashImage returns the hex SHA-256 of the image payload, used as the
// deterministic fallback seed component and for logging.
func HashImage(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
