package stats

import (
	"math"
	"testing"
	"time"
)

func TestStatisticsBasic(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	s := Statistics(data)
	if math.Abs(s.Mean-5) > 1e-9 {
		t.Fatalf("mean = %v, want 5", s.Mean)
	}
	// sample variance (n-1) for this set is 4.571428...
	if math.Abs(s.Variance-4.571428571428571) > 1e-6 {
		t.Fatalf("variance = %v, want ~4.5714", s.Variance)
	}
	if s.N != 8 {
		t.Fatalf("n = %d, want 8", s.N)
	}
}

func TestStatisticsEmptyAndSmall(t *testing.T) {
	if s := Statistics(nil); s.N != 0 {
		t.Fatalf("expected zero summary for empty input")
	}
	// n<3: skew undefined -> 0
	s := Statistics([]float64{1, 2})
	if s.Skewness != 0 {
		t.Fatalf("skewness = %v, want 0 for n<3", s.Skewness)
	}
	// n<4: kurtosis -> 3
	if s.Kurtosis != 3 {
		t.Fatalf("kurtosis = %v, want 3 for n<4", s.Kurtosis)
	}
}

func TestZScoreInsufficientSample(t *testing.T) {
	k := NewKernel()
	for i := 0; i < 10; i++ {
		k.AddDataPoint("m1", MetricVolume, 100)
	}
	z := k.ZScore("m1", MetricVolume, 500)
	if z.Z != 0 || z.PValue != 1 || z.IsAnomaly {
		t.Fatalf("expected neutral result for n<minSample, got %+v", z)
	}
}

func TestZScoreZeroVariance(t *testing.T) {
	k := NewKernel(WithMinSample(5))
	for i := 0; i < 40; i++ {
		k.AddDataPoint("m1", MetricVolume, 100)
	}
	z := k.ZScore("m1", MetricVolume, 500)
	if z.Z != 0 {
		t.Fatalf("expected z=0 for zero-variance buffer, got %v", z.Z)
	}
}

func TestZScoreDetectsAnomaly(t *testing.T) {
	k := NewKernel(WithMinSample(5))
	for i := 0; i < 50; i++ {
		k.AddDataPoint("m1", MetricVolume, 100+float64(i%3))
	}
	z := k.ZScore("m1", MetricVolume, 10000)
	if !z.IsAnomaly {
		t.Fatalf("expected anomaly for extreme outlier, got %+v", z)
	}
}

func TestTimeAdjustedZScoreFallsBack(t *testing.T) {
	k := NewKernel(WithMinSample(5))
	base := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		k.AddDataPointAt("m1", MetricVolume, 100, base)
	}
	z := k.TimeAdjustedZScore("m1", MetricVolume, 100, base)
	if z.Z != 0 {
		t.Fatalf("expected neutral z for constant series, got %v", z.Z)
	}
}

func TestCorrelationPerfect(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	if c := Correlation(x, y); math.Abs(c-1) > 1e-9 {
		t.Fatalf("correlation = %v, want 1", c)
	}
}

func TestRankCorrelationMonotonic(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{1, 8, 27, 64, 125} // monotonic but non-linear
	if c := RankCorrelation(x, y); math.Abs(c-1) > 1e-9 {
		t.Fatalf("rank correlation = %v, want 1", c)
	}
}

func TestTrendDirection(t *testing.T) {
	data := make([]float64, 50)
	for i := range data {
		data[i] = float64(i)
	}
	tr := trendOf(data)
	if tr.Direction != DirectionUp {
		t.Fatalf("direction = %v, want up", tr.Direction)
	}
	if tr.Slope <= 0 {
		t.Fatalf("slope = %v, want positive", tr.Slope)
	}
}

func TestVolatilityZeroOnShortSeries(t *testing.T) {
	k := NewKernel()
	v := k.Volatility("m1", []float64{1}, nil, nil, nil)
	if v.Historical != 0 {
		t.Fatalf("expected zero volatility for single price")
	}
}
