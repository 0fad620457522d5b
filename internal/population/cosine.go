package population

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value in [-1, 1]; invalid or zero vectors yield -1.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return -1.0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return similarity
}

// rawScore maps an embedding's similarity to the population centroid into [0,1].
func rawScore(embedding, centroid []float32) float64 {
	return (CosineSimilarity(embedding, centroid) + 1) / 2
}
