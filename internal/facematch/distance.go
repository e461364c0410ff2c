package facematch

import "math"

// EuclideanDistance returns the L2 distance between two embeddings of
// equal length, accumulated in float64.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence maps a distance to [0, 1]: 1 - distance, clamped.
// It does not depend on the tolerance of the query, so callers can
// threshold on it across requests.
func Confidence(distance float64) float64 {
	return min(1, max(0, 1-distance))
}
