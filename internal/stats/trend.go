package stats

import "math"

// Direction classifies a fitted trend's slope sign.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// ChangePoint marks an index in a series where a sliding-window break
// test fired.
type ChangePoint struct {
	Index     int
	DeltaMean float64
	DeltaVar  float64
}

// TrendResult is the outcome of an OLS fit over a metric's buffer.
type TrendResult struct {
	Direction    Direction
	Slope        float64
	RSquared     float64
	Significance float64 // two-sided p-value of the slope t-statistic
	ChangePoints []ChangePoint
}

// Trend fits an OLS line to the buffered values for (marketID, metric)
// against their index as the independent variable, and runs change-
// point detection over the same series.
func (k *Kernel) Trend(marketID string, metric Metric) TrendResult {
	data := k.seriesFor(marketID, metric).snapshot()
	return trendOf(data)
}

func trendOf(data []float64) TrendResult {
	n := len(data)
	if n < 3 {
		return TrendResult{Direction: DirectionFlat}
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	slope, intercept, rSquared := ols(xs, data)

	significance := 1.0
	if se := slopeStdError(xs, data, slope, intercept); se > 0 {
		t := slope / se
		significance = 2 * (1 - normalCDF(math.Abs(t)))
	}

	dir := DirectionFlat
	// A slope is only "directional" when it clears noise: both a
	// minimum magnitude and some fit quality.
	if rSquared > 0.1 {
		if slope > 1e-9 {
			dir = DirectionUp
		} else if slope < -1e-9 {
			dir = DirectionDown
		}
	}

	return TrendResult{
		Direction:    dir,
		Slope:        slope,
		RSquared:     rSquared,
		Significance: significance,
		ChangePoints: detectChangePoints(data),
	}
}

// ols fits y = intercept + slope*x by ordinary least squares, returning
// the R-squared of the fit.
func ols(xs, ys []float64) (slope, intercept, rSquared float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTot, ssRes float64
	for i := range xs {
		pred := intercept + slope*xs[i]
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	if ssTot == 0 {
		return slope, intercept, 0
	}
	rSquared = 1 - ssRes/ssTot
	return slope, intercept, rSquared
}

func slopeStdError(xs, ys []float64, slope, intercept float64) float64 {
	n := len(xs)
	if n < 3 {
		return 0
	}
	var ssRes, sumX, meanX, ssX float64
	for _, x := range xs {
		sumX += x
	}
	meanX = sumX / float64(n)
	for _, x := range xs {
		ssX += (x - meanX) * (x - meanX)
	}
	if ssX == 0 {
		return 0
	}
	for i := range xs {
		pred := intercept + slope*xs[i]
		ssRes += (ys[i] - pred) * (ys[i] - pred)
	}
	mse := ssRes / float64(n-2)
	return math.Sqrt(mse / ssX)
}

// detectChangePoints runs a sliding-window variance/mean break test:
// a change point fires between two adjacent windows when the mean
// shifts by more than 2 pooled-stddevs, or the variance shifts by more
// than 2x the earlier window's variance.
func detectChangePoints(data []float64) []ChangePoint {
	const windowSize = 10
	if len(data) < 2*windowSize {
		return nil
	}
	var points []ChangePoint
	for i := windowSize; i <= len(data)-windowSize; i++ {
		before := data[i-windowSize : i]
		after := data[i : i+windowSize]
		sb := Statistics(before)
		sa := Statistics(after)

		deltaMean := math.Abs(sa.Mean - sb.Mean)
		deltaVar := math.Abs(sa.Variance - sb.Variance)

		pooledStd := math.Sqrt((sb.Variance + sa.Variance) / 2)

		meanBreak := pooledStd > 0 && deltaMean > 2*pooledStd
		varBreak := sb.Variance > 0 && deltaVar > 2*sb.Variance

		if meanBreak || varBreak {
			points = append(points, ChangePoint{
				Index:     i,
				DeltaMean: deltaMean,
				DeltaVar:  deltaVar,
			})
		}
	}
	return points
}

// DetectStructuralBreaks exposes change-point detection directly for
// (marketID, metric) without the rest of the Trend bundle.
func (k *Kernel) DetectStructuralBreaks(marketID string, metric Metric) []ChangePoint {
	return detectChangePoints(k.seriesFor(marketID, metric).snapshot())
}
