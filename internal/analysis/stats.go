package analysis

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Epsilon guards both the row normalization denominator and the log argument.
// It changes results on all-zero rows, so it must not be altered.
const Epsilon = 1e-10

// AttentionEntropy row-normalizes m and returns the mean Shannon entropy
// (natural log) of its rows. All-zero rows contribute ~0 instead of NaN.
func AttentionEntropy(m mat.Matrix) float64 {
	r, c := m.Dims()
	if r == 0 {
		return 0
	}

	row := make([]float64, c)
	var total float64
	for i := 0; i < r; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
			sum += row[j]
		}

		denom := sum + Epsilon
		var h float64
		for _, v := range row {
			p := v / denom
			h -= p * math.Log(p+Epsilon)
		}
		total += h
	}
	return total / float64(r)
}

// KeywordAttentionRatio returns the share of the total attention mass of m
// that lands on the key columns listed in keywordIndices. Each occurrence of a
// column index contributes that column's mass once, so duplicates inflate the
// numerator. An empty index list returns exactly 0 without reading m.
//
// Indices outside m's columns panic; callers must pass a matrix aligned with
// the token sequence the indices were computed from.
func KeywordAttentionRatio(m mat.Matrix, keywordIndices []int) float64 {
	if len(keywordIndices) == 0 {
		return 0.0
	}

	r, c := m.Dims()
	var keywordMass float64
	for _, j := range keywordIndices {
		for i := 0; i < r; i++ {
			keywordMass += m.At(i, j)
		}
	}

	var totalMass float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			totalMass += m.At(i, j)
		}
	}
	return keywordMass / (totalMass + Epsilon)
}
