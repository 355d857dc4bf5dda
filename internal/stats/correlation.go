package stats

import "math"

// Correlation computes the Pearson product-moment correlation
// coefficient between x and y. Returns 0 for mismatched lengths,
// fewer than 2 points, or zero variance in either series.
func Correlation(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}
	mx := sum(x) / float64(n)
	my := sum(y) / float64(n)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// RankCorrelation computes the Spearman rank correlation between x and
// y: Pearson correlation applied to each series' ranks, which is
// robust to non-linear but monotonic relationships and outliers.
func RankCorrelation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	return Correlation(ranks(x), ranks(y))
}

// ranks assigns each element its 1-based rank, averaging ranks across
// ties.
func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < n; i++ {
		j := i
		for j > 0 && xs[idx[j-1]] > xs[idx[j]] {
			idx[j-1], idx[j] = idx[j], idx[j-1]
			j--
		}
	}
	out := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avgRank := float64(i+j)/2 + 1
		for m := i; m <= j; m++ {
			out[idx[m]] = avgRank
		}
		i = j + 1
	}
	return out
}
