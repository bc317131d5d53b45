package simd

import "math"

// TanhFast is a fast approximation of tanh(x)
func TanhFast(x float64) float64 {
	// For |x| > 4, tanh approaches ±1
	if x > 4 {
		return 1
	}
	if x < -4 {
		return -1
	}

	// Padé approximation: tanh(x) ≈ x * (27 + x^2) / (27 + 9*x^2)
	x2 := x * x
	return x * (27.0 + x2) / (27.0 + 9.0*x2)
}

// GeluFast applies the tanh GELU approximation in-place
func GeluFast(data []float64) {
	const (
		sqrt2overPi = 0.7978845608
		coeff       = 0.044715
	)
	for i, x := range data {
		data[i] = 0.5 * x * (1 + TanhFast(sqrt2overPi*(x+coeff*x*x*x)))
	}
}

// Softmax normalizes a row in-place. Attention probabilities are analyzed
// downstream, so this uses math.Exp rather than a polynomial approximation.
func Softmax(row []float64) {
	if len(row) == 0 {
		return
	}
	max := row[0]
	for _, v := range row {
		if v > max {
			max = v
		}
	}

	var sum float64
	for i, v := range row {
		row[i] = math.Exp(v - max)
		sum += row[i]
	}

	invSum := 1.0 / sum
	for i := range row {
		row[i] *= invSum
	}
}

// VecAdd performs dst += src
func VecAdd(dst, src []float64) {
	// Unrolled loop for better pipelining
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i]
		dst[i+1] += src[i+1]
		dst[i+2] += src[i+2]
		dst[i+3] += src[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] += src[i]
	}
}

// LayerNorm normalizes row to zero mean and unit variance, then applies the
// gamma scale and beta shift. gamma and beta must be at least len(row) long.
func LayerNorm(row, gamma, beta []float64, eps float64) {
	n := float64(len(row))
	var sum float64
	for _, v := range row {
		sum += v
	}
	mean := sum / n

	var varSum float64
	for _, v := range row {
		d := v - mean
		varSum += d * d
	}
	invStd := 1.0 / math.Sqrt(varSum/n+eps)

	for j := range row {
		row[j] = (row[j]-mean)*invStd*gamma[j] + beta[j]
	}
}
