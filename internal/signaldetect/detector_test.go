package signaldetect

import (
	"testing"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
)

func TestDetectIdempotentOnEmptyInput(t *testing.T) {
	d := NewDetector(DefaultConfig())
	m := &domain.Market{MarketID: "m1"}
	sigs := d.Detect(m, nil, domain.MarketSnapshot{}, time.Now())
	if len(sigs) != 0 {
		t.Fatalf("expected no signals for empty snapshot, got %d", len(sigs))
	}
}

func TestVolumeSpikeFiresAboveMultiplierAndAbsoluteFloor(t *testing.T) {
	d := NewDetector(DefaultConfig())
	m := &domain.Market{MarketID: "m1"}
	history := []domain.MarketSnapshot{
		{Volume24h: 1000}, {Volume24h: 1000}, {Volume24h: 1000},
	}
	current := domain.MarketSnapshot{Volume24h: 10000}
	sigs := d.Detect(m, history, current, time.Now())
	found := false
	for _, s := range sigs {
		if s.Type == domain.SignalVolumeSpike {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected volume_spike signal, got %v", sigs)
	}
}

func TestVolumeSpikeSkipsWhenBelowAbsoluteFloor(t *testing.T) {
	d := NewDetector(DefaultConfig())
	m := &domain.Market{MarketID: "m1"}
	history := []domain.MarketSnapshot{{Volume24h: 10}, {Volume24h: 10}}
	current := domain.MarketSnapshot{Volume24h: 100} // 10x ratio but absolute volume tiny
	sigs := d.Detect(m, history, current, time.Now())
	for _, s := range sigs {
		if s.Type == domain.SignalVolumeSpike {
			t.Fatalf("expected no volume_spike below absolute floor, got %+v", s)
		}
	}
}

func TestNewMarketRequiresEmptyHistoryAndActivityFloor(t *testing.T) {
	d := NewDetector(DefaultConfig())
	m := &domain.Market{MarketID: "m1"}
	current := domain.MarketSnapshot{Volume24h: 600, ActivityScore: 80}
	sigs := d.Detect(m, nil, current, time.Now())
	found := false
	for _, s := range sigs {
		if s.Type == domain.SignalNewMarket {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new_market signal, got %v", sigs)
	}
}

func TestDedupSuppressesWithinWindow(t *testing.T) {
	d := NewDetector(DefaultConfig())
	m := &domain.Market{MarketID: "m1"}
	current := domain.MarketSnapshot{ActivityScore: 90}
	now := time.Now()
	sigs1 := d.Detect(m, nil, current, now)
	sigs2 := d.Detect(m, nil, current, now.Add(time.Minute))
	if len(sigs1) == 0 {
		t.Fatalf("expected first detect pass to emit activity signal")
	}
	for _, s := range sigs2 {
		if s.Type == domain.SignalActivity {
			t.Fatalf("expected dedup to suppress repeat activity signal within window")
		}
	}
}

func TestCorruptedHistoryEntriesSkippedWithoutAborting(t *testing.T) {
	d := NewDetector(DefaultConfig())
	m := &domain.Market{MarketID: "m1"}
	history := []domain.MarketSnapshot{
		{Volume24h: -5}, // corrupted
		{Volume24h: 1000},
		{Volume24h: 1000},
	}
	current := domain.MarketSnapshot{Volume24h: 10000}
	sigs := d.Detect(m, history, current, time.Now())
	if len(sigs) == 0 {
		t.Fatalf("expected detection to still succeed after skipping corrupted entry")
	}
}
