// Package microstructure implements the order-book microstructure
// analyzer and the front-running scorer: threshold checks plus a
// confidence score over full order-book depth/imbalance/micro-price
// analysis.
package microstructure

import (
	"sync"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/ringbuf"
	"github.com/marketsurveil/surveil/internal/stats"
)

const (
	depthWindow       = 720
	microPriceWindow  = 50
	microPriceSlopeN  = 20
	liquidityDropPct  = 0.40
	spreadStablePct   = 0.10
)

// EnhancedMicrostructureMetrics is the per-update bundle the analyzer
// emits downstream to the signal detector, front-running scorer, and
// any dashboard consumer.
type EnhancedMicrostructureMetrics struct {
	MarketID        string
	Timestamp       time.Time
	Depth1          float64
	DepthChangePct  float64
	MicroPrice      float64
	MicroPriceSlope float64
	MicroPriceDrift float64
	Imbalance       float64
	SpreadBps       float64
	SpreadChangePct float64

	DepthZ      stats.ZResult
	SpreadZ     stats.ZResult
	ImbalanceZ  stats.ZResult
	MicroPriceZ stats.ZResult

	LiquidityVacuum bool
}

type hourlyMicroBaseline struct {
	n                  int
	volume, depth      float64
	spread, absImbal   float64
}

type marketState struct {
	mu sync.Mutex

	depthHistory      *ringbuf.Buffer[float64]
	microPriceHistory *ringbuf.Buffer[float64]
	firstDiffHistory  *ringbuf.Buffer[float64]

	lastDepth      float64
	lastDepthSet   bool
	lastSpreadBps  float64
	lastSpreadSet  bool
	lastMicroPrice float64
	lastMicroSet   bool

	hourly [24]hourlyMicroBaseline

	lastSignalAt map[string]time.Time // dedup key -> time
}

func newMarketState() *marketState {
	return &marketState{
		depthHistory:      ringbuf.New[float64](depthWindow),
		microPriceHistory: ringbuf.New[float64](microPriceWindow),
		firstDiffHistory:  ringbuf.New[float64](microPriceWindow),
		lastSignalAt:      make(map[string]time.Time),
	}
}

// Analyzer is the process-wide analyzer: one shared stats.Kernel
// plus per-market ring buffers and time-of-day baselines.
type Analyzer struct {
	kernel *stats.Kernel

	mu     sync.RWMutex
	states map[string]*marketState

	dedupWindow time.Duration
}

// NewAnalyzer constructs an Analyzer bound to a shared kernel.
func NewAnalyzer(kernel *stats.Kernel) *Analyzer {
	return &Analyzer{
		kernel:      kernel,
		states:      make(map[string]*marketState),
		dedupWindow: 5 * time.Minute,
	}
}

func (a *Analyzer) stateFor(marketID string) *marketState {
	a.mu.RLock()
	s, ok := a.states[marketID]
	a.mu.RUnlock()
	if ok {
		return s
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok = a.states[marketID]; ok {
		return s
	}
	s = newMarketState()
	a.states[marketID] = s
	return s
}

// Update processes one order-book snapshot for marketID, returning the
// metrics bundle and, if any z-score or liquidity-vacuum condition
// fired (subject to per-market dedup), a microstructure signal.
func (a *Analyzer) Update(market *domain.Market, ob *domain.OrderBook, t time.Time) (EnhancedMicrostructureMetrics, *domain.Signal) {
	marketID := ob.MarketID
	st := a.stateFor(marketID)

	bidSize, askSize := ob.DepthAtTop(1)
	depth1 := bidSize + askSize

	imbalance := ob.Imbalance(3)

	var spreadBps float64
	if spread, ok := ob.Spread(); ok {
		spreadBps = spread * 10000
	}

	microPrice, _ := ob.MicroPrice(3)

	st.mu.Lock()
	var depthChangePct, spreadChangePct float64
	if st.lastDepthSet && st.lastDepth != 0 {
		depthChangePct = (depth1 - st.lastDepth) / st.lastDepth
	}
	if st.lastSpreadSet && st.lastSpreadBps != 0 {
		spreadChangePct = (spreadBps - st.lastSpreadBps) / st.lastSpreadBps
	}
	st.lastDepth, st.lastDepthSet = depth1, true
	st.lastSpreadBps, st.lastSpreadSet = spreadBps, true

	st.depthHistory.Push(depth1)

	var microSlope, microDrift float64
	if st.lastMicroSet {
		diff := microPrice - st.lastMicroPrice
		st.firstDiffHistory.Push(diff)
	}
	st.lastMicroPrice, st.lastMicroSet = microPrice, true
	st.microPriceHistory.Push(microPrice)

	recent := st.microPriceHistory.Last(microPriceSlopeN)
	if len(recent) >= 3 {
		microSlope = slopeOf(recent)
	}
	diffs := st.firstDiffHistory.All()
	if len(diffs) >= 5 {
		p95 := percentile95(diffs)
		last := diffs[len(diffs)-1]
		if last > p95 {
			microDrift = last - p95
		}
	}

	hr := t.Hour()
	if hr >= 0 && hr < 24 {
		b := &st.hourly[hr]
		b.n++
		b.depth += depth1
		b.spread += spreadBps
		b.absImbal += absFloat(imbalance)
	}
	st.mu.Unlock()

	a.kernel.AddDataPointAt(marketID, stats.MetricDepth, depth1, t)
	a.kernel.AddDataPointAt(marketID, stats.MetricSpread, spreadBps, t)
	a.kernel.AddDataPointAt(marketID, stats.MetricImbalance, imbalance, t)
	a.kernel.AddDataPointAt(marketID, stats.MetricPrice, microPrice, t)

	depthZ := a.kernel.TimeAdjustedZScore(marketID, stats.MetricDepth, depth1, t)
	spreadZ := a.kernel.TimeAdjustedZScore(marketID, stats.MetricSpread, spreadBps, t)
	imbalanceZ := a.kernel.TimeAdjustedZScore(marketID, stats.MetricImbalance, imbalance, t)
	microZ := a.kernel.TimeAdjustedZScore(marketID, stats.MetricPrice, microPrice, t)

	liquidityVacuum := depthChangePct <= -liquidityDropPct && absFloat(spreadChangePct) < spreadStablePct

	metrics := EnhancedMicrostructureMetrics{
		MarketID:        marketID,
		Timestamp:       t,
		Depth1:          depth1,
		DepthChangePct:  depthChangePct,
		MicroPrice:      microPrice,
		MicroPriceSlope: microSlope,
		MicroPriceDrift: microDrift,
		Imbalance:       imbalance,
		SpreadBps:       spreadBps,
		SpreadChangePct: spreadChangePct,
		DepthZ:          depthZ,
		SpreadZ:         spreadZ,
		ImbalanceZ:      imbalanceZ,
		MicroPriceZ:     microZ,
		LiquidityVacuum: liquidityVacuum,
	}

	fired := depthZ.IsAnomaly || spreadZ.IsAnomaly || imbalanceZ.IsAnomaly || microZ.IsAnomaly || liquidityVacuum
	if !fired {
		return metrics, nil
	}
	if a.dedupFired(st, "microstructure", t) {
		return metrics, nil
	}

	meta := domain.Metadata{
		Severity: severityFor(metrics),
		Microstructure: &domain.MicrostructureMeta{
			DepthZ:          depthZ.Z,
			SpreadZ:         spreadZ.Z,
			ImbalanceZ:      imbalanceZ.Z,
			MicroPriceZ:     microZ.Z,
			LiquidityVacuum: liquidityVacuum,
		},
	}
	confidence := confidenceFor(metrics)
	sig, ok := domain.NewSignal(marketID, market, domain.SignalMicrostructure, confidence, t, meta)
	if !ok {
		return metrics, nil
	}
	return metrics, &sig
}

// HourlyBaseline returns the running per-hour averages of depth,
// spread, and |imbalance| accumulated for marketID, plus the sample
// count. The analyzer does not observe trade volume, so no per-hour
// volume average is kept or returned.
func (a *Analyzer) HourlyBaseline(marketID string, hour int) (depth, spread, absImbalance float64, n int) {
	if hour < 0 || hour > 23 {
		return 0, 0, 0, 0
	}
	st := a.stateFor(marketID)
	st.mu.Lock()
	defer st.mu.Unlock()
	b := st.hourly[hour]
	if b.n == 0 {
		return 0, 0, 0, 0
	}
	return b.depth / float64(b.n), b.spread / float64(b.n), b.absImbal / float64(b.n), b.n
}

func (a *Analyzer) dedupFired(st *marketState, key string, t time.Time) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if last, ok := st.lastSignalAt[key]; ok && t.Sub(last) < a.dedupWindow {
		return true
	}
	st.lastSignalAt[key] = t
	return false
}

func severityFor(m EnhancedMicrostructureMetrics) domain.Severity {
	maxZ := maxAbs(m.DepthZ.Z, m.SpreadZ.Z, m.ImbalanceZ.Z, m.MicroPriceZ.Z)
	switch {
	case m.LiquidityVacuum && maxZ > 3:
		return domain.SeverityCritical
	case m.LiquidityVacuum || maxZ > 3:
		return domain.SeverityHigh
	case maxZ > 2.5:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func confidenceFor(m EnhancedMicrostructureMetrics) float64 {
	maxZ := maxAbs(m.DepthZ.Z, m.SpreadZ.Z, m.ImbalanceZ.Z, m.MicroPriceZ.Z)
	c := maxZ / 5.0
	if m.LiquidityVacuum {
		c += 0.2
	}
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	return c
}

func maxAbs(xs ...float64) float64 {
	var m float64
	for _, x := range xs {
		if absFloat(x) > m {
			m = absFloat(x)
		}
	}
	return m
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// slopeOf fits an OLS slope of ys against their natural index order.
func slopeOf(ys []float64) float64 {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// percentile95 returns the 95th percentile of xs via linear
// interpolation, without mutating the caller's slice.
func percentile95(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > v {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = v
	}
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := 0.95 * float64(n-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
