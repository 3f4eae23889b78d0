package vectorindex

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, or 0 for invalid input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	return max(-1, min(1, similarity))
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}
	return 1 - CosineSimilarity(a, b)
}
