package utils

import "math"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := 1.0 / math.Sqrt(sum)
	for i := range x {
		x[i] = float32(float64(x[i]) * norm)
	}
}

// NormalizeByMax divides every value by the maximum value. When the maximum
// is not positive, every value maps to 0.
func NormalizeByMax[K comparable](scores map[K]float64) map[K]float64 {
	out := make(map[K]float64, len(scores))
	maxScore := 0.0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
	}
	for k, s := range scores {
		if maxScore > 0 {
			out[k] = s / maxScore
		} else {
			out[k] = 0
		}
	}
	return out
}

// MaxValue returns the largest value in scores, or 0 for an empty map.
func MaxValue[K comparable](scores map[K]float64) float64 {
	maxScore := 0.0
	first := true
	for _, s := range scores {
		if first || s > maxScore {
			maxScore = s
			first = false
		}
	}
	return maxScore
}
