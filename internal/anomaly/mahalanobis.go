package anomaly

import "math"

const dims = 6

type matrix [dims][dims]float64

// covariance computes the sample covariance matrix of fs around mean.
func covariance(fs []Feature, mean Feature) matrix {
	var cov matrix
	n := len(fs)
	if n < 2 {
		return cov
	}
	for _, f := range fs {
		d := f.sub(mean)
		for i := 0; i < dims; i++ {
			for j := 0; j < dims; j++ {
				cov[i][j] += d[i] * d[j]
			}
		}
	}
	for i := 0; i < dims; i++ {
		for j := 0; j < dims; j++ {
			cov[i][j] /= float64(n - 1)
		}
	}
	return cov
}

// mahalanobisDistance computes sqrt((f-mean)^T * Sigma^-1 * (f-mean))
// by solving Sigma * x = (f-mean) via Gaussian elimination with
// partial pivoting, instead of forming an explicit inverse. If Sigma
// is near-singular (|pivot| < 1e-10 at any step) the distance is
// reported as 0 rather than propagating a blown-up or NaN value.
func mahalanobisDistance(f, mean Feature, sigma matrix) float64 {
	d := f.sub(mean)
	x, ok := solve(sigma, d)
	if !ok {
		return 0
	}
	var quad float64
	for i := 0; i < dims; i++ {
		quad += d[i] * x[i]
	}
	if quad < 0 {
		return 0
	}
	return math.Sqrt(quad)
}

// solve returns x such that a*x = b using Gaussian elimination with
// partial pivoting. ok is false when a is near-singular.
func solve(a matrix, b Feature) (Feature, bool) {
	const eps = 1e-10
	var m [dims][dims + 1]float64
	for i := 0; i < dims; i++ {
		for j := 0; j < dims; j++ {
			m[i][j] = a[i][j]
		}
		m[i][dims] = b[i]
	}

	for col := 0; col < dims; col++ {
		pivotRow := col
		maxVal := math.Abs(m[col][col])
		for r := col + 1; r < dims; r++ {
			if v := math.Abs(m[r][col]); v > maxVal {
				maxVal = v
				pivotRow = r
			}
		}
		if maxVal < eps {
			return Feature{}, false
		}
		m[col], m[pivotRow] = m[pivotRow], m[col]

		pivot := m[col][col]
		for r := 0; r < dims; r++ {
			if r == col {
				continue
			}
			factor := m[r][col] / pivot
			for c := col; c <= dims; c++ {
				m[r][c] -= factor * m[col][c]
			}
		}
	}

	var x Feature
	for i := 0; i < dims; i++ {
		x[i] = m[i][dims] / m[i][i]
	}
	return x, true
}
