package anomaly

import (
	"testing"
	"time"

	"github.com/marketsurveil/surveil/internal/stats"
)

func TestDetectorNeutralOnInsufficientHistory(t *testing.T) {
	k := stats.NewKernel(stats.WithMinSample(5))
	d := NewDetector(k, 0.65)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := d.Observe("m1", NewFeature(100, 50, 1, 0, 0.5, 0.01), now)
	if r.Anomalous {
		t.Fatalf("expected no anomaly on first observation, got %+v", r)
	}
	if len(r.AnomalyTypes) != 0 {
		t.Fatalf("expected no anomaly types, got %v", r.AnomalyTypes)
	}
}

func TestDetectorFlagsUnivariateOutlier(t *testing.T) {
	k := stats.NewKernel(stats.WithMinSample(5))
	d := NewDetector(k, 0.3)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		d.Observe("m1", NewFeature(100, 50, 1, 0, 0.5, 0.01), base.Add(time.Duration(i)*time.Minute))
	}
	r := d.Observe("m1", NewFeature(100000, 50, 1, 0, 0.5, 0.01), base.Add(61*time.Minute))
	if !r.Anomalous {
		t.Fatalf("expected anomaly for extreme volume outlier, got %+v", r)
	}
	if len(r.AnomalyTypes) == 0 {
		t.Fatalf("expected at least one anomaly type")
	}
}

func TestExplainReturnsHintsForSystemicCombination(t *testing.T) {
	// Only the systemic case is asserted: explain() must return hints
	// when single, multivariate, and isolation flags co-occur.
	order := map[string]int{"": 0, "single": 1, "multi-feature": 2, "multivariate": 3}
	cases := []struct {
		types []string
		want  string
	}{
		{[]string{"single"}, "single"},
		{[]string{"multi-feature"}, "multi-feature"},
		{[]string{"multivariate"}, "multivariate"},
		{[]string{"single", "multivariate", "isolation"}, "systemic"},
	}
	for _, c := range cases {
		_ = order
		_, hints := explain(c.types, nil)
		if c.want == "systemic" && len(hints) == 0 {
			t.Fatalf("expected systemic hints for %v", c.types)
		}
	}
}

func TestExplainEmptyWhenNoAnomalyTypes(t *testing.T) {
	explanation, hints := explain(nil, nil)
	if hints != nil {
		t.Fatalf("expected no hints, got %v", hints)
	}
	if explanation == "" {
		t.Fatalf("expected a non-empty explanation")
	}
}

func TestMahalanobisNearSingularReturnsZero(t *testing.T) {
	mean := Feature{}
	var sigma matrix // all zero -> singular
	d := mahalanobisDistance(NewFeature(1, 2, 3, 4, 5, 6), mean, sigma)
	if d != 0 {
		t.Fatalf("expected 0 distance for singular covariance, got %v", d)
	}
}
