package microstructure

import (
	"testing"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/stats"
)

func book(marketID string, bidPrice, bidSize, askPrice, askSize float64) *domain.OrderBook {
	return &domain.OrderBook{
		MarketID: marketID,
		Bids:     []domain.PriceLevel{{Price: bidPrice, Size: bidSize}},
		Asks:     []domain.PriceLevel{{Price: askPrice, Size: askSize}},
	}
}

func TestUpdateComputesSpreadAndImbalance(t *testing.T) {
	k := stats.NewKernel(stats.WithMinSample(5))
	a := NewAnalyzer(k)
	m := &domain.Market{MarketID: "m1"}

	metrics, _ := a.Update(m, book("m1", 0.40, 100, 0.42, 50), time.Now())
	if metrics.SpreadBps <= 0 {
		t.Fatalf("expected positive spread bps, got %v", metrics.SpreadBps)
	}
	if metrics.Imbalance <= 0 {
		t.Fatalf("expected positive imbalance (more bid size), got %v", metrics.Imbalance)
	}
}

func TestLiquidityVacuumDetectsDepthDropWithStableSpread(t *testing.T) {
	k := stats.NewKernel(stats.WithMinSample(5))
	a := NewAnalyzer(k)
	m := &domain.Market{MarketID: "m1"}
	now := time.Now()

	a.Update(m, book("m1", 0.40, 1000, 0.42, 1000), now)
	metrics, _ := a.Update(m, book("m1", 0.40, 100, 0.42, 100), now.Add(time.Second))
	if !metrics.LiquidityVacuum {
		t.Fatalf("expected liquidity vacuum on >40%% depth drop with stable spread, got %+v", metrics)
	}
}

func TestDedupSuppressesRepeatSignalsWithinWindow(t *testing.T) {
	k := stats.NewKernel(stats.WithMinSample(3))
	a := NewAnalyzer(k)
	m := &domain.Market{MarketID: "m1"}
	now := time.Now()

	for i := 0; i < 40; i++ {
		a.Update(m, book("m1", 0.40, 100, 0.42, 100), now.Add(time.Duration(i)*time.Second))
	}
	_, sig1 := a.Update(m, book("m1", 0.01, 1, 0.99, 1), now.Add(41*time.Second))
	_, sig2 := a.Update(m, book("m1", 0.01, 1, 0.99, 1), now.Add(42*time.Second))
	if sig1 == nil {
		t.Fatalf("expected first extreme update to emit a signal")
	}
	if sig2 != nil {
		t.Fatalf("expected dedup to suppress the immediately following signal")
	}
}

func TestSlopeOfFlatSeriesIsZero(t *testing.T) {
	if s := slopeOf([]float64{5, 5, 5, 5}); s != 0 {
		t.Fatalf("expected zero slope for flat series, got %v", s)
	}
}
