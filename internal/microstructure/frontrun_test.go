package microstructure

import (
	"testing"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/stats"
)

func TestFrontRunScoreBelowThresholdEmitsNoSignal(t *testing.T) {
	s := NewFrontRunScorer(stats.NewKernel())
	in := FrontRunInput{
		Metrics: EnhancedMicrostructureMetrics{MarketID: "m1", MicroPriceDrift: 0, DepthChangePct: 0, SpreadBps: 50},
		Market:  &domain.Market{MarketID: "m1"},
	}
	result := s.Score(in, time.Now())
	if result.Signal != nil {
		t.Fatalf("expected no signal for near-zero drift/depth-change, got %+v", result)
	}
}

func TestFrontRunScoreStrongSignalAboveThreshold(t *testing.T) {
	k := stats.NewKernel(stats.WithMinSample(3))
	s := NewFrontRunScorer(k)
	a := NewAnalyzer(k)
	m := &domain.Market{MarketID: "m1"}
	now := time.Now()
	for i := 0; i < 40; i++ {
		a.Update(m, book("m1", 0.40, 1000, 0.42, 1000), now.Add(time.Duration(i)*time.Second))
		// Steady-but-jittery baseline volume so the kernel's volume
		// series has real variance for the z-score to work against.
		k.AddDataPointAt("m1", stats.MetricVolume, 100000+float64(i%5)*500, now.Add(time.Duration(i)*time.Second))
	}
	metrics, _ := a.Update(m, book("m1", 0.40, 1000, 0.42, 1000), now.Add(41*time.Second))
	metrics.MicroPriceDrift = 0.5
	metrics.DepthChangePct = 0.9
	metrics.SpreadBps = 2
	metrics.DepthZ.Z = 4
	metrics.ImbalanceZ.Z = 3

	in := FrontRunInput{
		Metrics:           metrics,
		Market:            m,
		CorrelatedMarkets: []string{"m2", "m3"},
		Volume:            500000, // 5x the seeded baseline: a genuinely anomalous volume z
		LocalHour:         23,
	}
	result := s.Score(in, now.Add(42*time.Second))
	if result.Score < 0.5 {
		t.Fatalf("expected score >= 0.5 for extreme inputs, got %v", result.Score)
	}
	if result.Signal == nil {
		t.Fatalf("expected a signal to be emitted")
	}
	if result.TimeToNewsMins < 1 || result.TimeToNewsMins > 30 {
		t.Fatalf("timeToNews out of bounds: %v", result.TimeToNewsMins)
	}
}

func TestValidateLeakEventNoMatchReturnsZeroLead(t *testing.T) {
	s := NewFrontRunScorer(stats.NewKernel())
	lead := s.ValidateLeakEvent("unknown-market", time.Now())
	if lead != 0 {
		t.Fatalf("expected zero lead time with no pending events, got %v", lead)
	}
}
