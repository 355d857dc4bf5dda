package microstructure

import (
	"math"
	"sync"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/stats"
)

const (
	frontRunBaseTimeToNewsMin = 5.0
	frontRunValidationWindow  = 2 * time.Hour
	frontRunSpreadEps         = 1.0
)

// FrontRunInput bundles everything the scorer needs for one market's
// evaluation: the latest microstructure bundle from the analyzer, the market
// itself, and cross-market context from the topic clusterer.
type FrontRunInput struct {
	Metrics           EnhancedMicrostructureMetrics
	Market            *domain.Market
	CorrelatedMarkets []string
	ClusterID         string
	Volume            float64
	LocalHour         int // 0-23, caller's local clock
}

// FrontRunResult is the scored outcome of one evaluation.
type FrontRunResult struct {
	Score           float64
	Confidence      float64
	LeakProbability float64
	TimeToNewsMins  float64
	Signal          *domain.Signal
}

type pendingLeakEvent struct {
	marketID  string
	detectedAt time.Time
	score     float64
	validated bool
}

// FrontRunScorer is the process-wide front-running scorer. It reads
// the volume series from the shared kernel for its volume-weight term
// and tracks unvalidated leak events per market so a later
// validateLeakEvent call can score prediction accuracy and feed it
// back into future leakProbability estimates.
type FrontRunScorer struct {
	kernel *stats.Kernel

	mu                 sync.Mutex
	pending            []pendingLeakEvent
	historicalHits     int
	historicalTotal    int
	lastSignalAt       map[string]time.Time
	dedupWindow        time.Duration
}

// NewFrontRunScorer constructs an empty scorer reading volume
// z-scores from kernel.
func NewFrontRunScorer(kernel *stats.Kernel) *FrontRunScorer {
	return &FrontRunScorer{
		kernel:       kernel,
		lastSignalAt: make(map[string]time.Time),
		dedupWindow:  5 * time.Minute,
	}
}

// historicalAccuracyMultiplier returns a [0.5, 1.5]-ish multiplier
// derived from past validateLeakEvent outcomes; 1.0 until enough
// history accumulates.
func (s *FrontRunScorer) historicalAccuracyMultiplier() float64 {
	if s.historicalTotal < 5 {
		return 1.0
	}
	rate := float64(s.historicalHits) / float64(s.historicalTotal)
	// rate in [0,1]; map to [0.5, 1.5] around the neutral point 0.5.
	return 0.5 + rate
}

// Score evaluates in and returns the front-running assessment,
// optionally a signal when score >= 0.5.
func (s *FrontRunScorer) Score(in FrontRunInput, t time.Time) FrontRunResult {
	m := in.Metrics

	var volumeZ stats.ZResult
	if s.kernel != nil {
		volumeZ = s.kernel.TimeAdjustedZScore(m.MarketID, stats.MetricVolume, in.Volume, t)
	}
	zVolume := math.Max(1, volumeZ.Z)
	volumeWeight := zVolume * math.Log10(math.Max(1000, in.Volume)) / 6

	spreadBps := m.SpreadBps
	if spreadBps < frontRunSpreadEps {
		spreadBps = frontRunSpreadEps
	}

	raw := (absFloat(m.MicroPriceDrift) * volumeWeight * absFloat(m.DepthChangePct)) / spreadBps

	maxDepthImbalZ := maxAbs(m.DepthZ.Z, m.ImbalanceZ.Z)
	spreadStable := absFloat(m.SpreadChangePct) < spreadStablePct && maxDepthImbalZ > 2

	bonus := 1.0
	if spreadStable {
		bonus *= 1.2
	}
	crossMarketCount := len(in.CorrelatedMarkets)
	if crossMarketCount > 0 {
		mult := 1 + math.Min(float64(crossMarketCount), 5)*0.1
		if mult > 1.5 {
			mult = 1.5
		}
		bonus *= mult
	}
	offHours := in.LocalHour >= 22 || in.LocalHour <= 5
	if offHours {
		bonus *= 2.0
	}

	adjustedRaw := raw * bonus
	score := math.Tanh(adjustedRaw / 10)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	confidence := clampUnit(0.5*math.Min(1, maxDepthImbalZ/5) + 0.3*math.Min(1, absFloat(m.MicroPriceZ.Z)/5) + 0.2*math.Min(1, float64(crossMarketCount)/5))

	bonusComponent := (bonus - 1.0) / 2.0 // scale the excess bonus into a small additive term
	historicalMult := s.historicalAccuracyMultiplier()
	leakProbability := clampUnit((0.7*score + 0.2*confidence + bonusComponent) * historicalMult)

	timeToNews := frontRunBaseTimeToNewsMin * (1 - score)
	timeToNews /= bonus // stronger bonuses imply more imminent news
	if timeToNews < 1 {
		timeToNews = 1
	}
	if timeToNews > 30 {
		timeToNews = 30
	}

	result := FrontRunResult{
		Score:           score,
		Confidence:      confidence,
		LeakProbability: leakProbability,
		TimeToNewsMins:  timeToNews,
	}

	if score < 0.5 {
		return result
	}
	if s.dedupFired(m.MarketID, t) {
		return result
	}

	severity := domain.SeverityHigh
	if score >= 0.9 {
		severity = domain.SeverityCritical
	} else if score >= 0.8 {
		severity = domain.SeverityHigh
	} else {
		severity = domain.SeverityMedium
	}

	meta := domain.Metadata{
		Severity: severity,
		FrontRunning: &domain.FrontRunningMeta{
			Score:           score,
			Confidence:      confidence,
			LeakProbability: leakProbability,
			TimeToNewsMins:  timeToNews,
			CorrelatedCount: crossMarketCount,
		},
	}
	sig, ok := domain.NewSignal(m.MarketID, in.Market, domain.SignalFrontRunning, confidence, t, meta)
	if ok {
		result.Signal = &sig
		s.recordPending(m.MarketID, t, score)
	}
	return result
}

func (s *FrontRunScorer) dedupFired(marketID string, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSignalAt[marketID]; ok && t.Sub(last) < s.dedupWindow {
		return true
	}
	s.lastSignalAt[marketID] = t
	return false
}

func (s *FrontRunScorer) recordPending(marketID string, t time.Time, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pendingLeakEvent{marketID: marketID, detectedAt: t, score: score})
}

// ValidateLeakEvent marks any unvalidated pending event for marketID
// detected within the validation window before newsTime as validated,
// recording a hit, and updates the running historical-accuracy
// multiplier that feeds future leakProbability calculations. It
// returns the lead time of the earliest matching event, or 0 if none
// matched.
func (s *FrontRunScorer) ValidateLeakEvent(marketID string, newsTime time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var leadTime time.Duration
	matched := false
	for i := range s.pending {
		ev := &s.pending[i]
		if ev.validated || ev.marketID != marketID {
			continue
		}
		if newsTime.Sub(ev.detectedAt) > frontRunValidationWindow || newsTime.Before(ev.detectedAt) {
			continue
		}
		ev.validated = true
		s.historicalHits++
		s.historicalTotal++
		lt := newsTime.Sub(ev.detectedAt)
		if !matched || lt > leadTime {
			leadTime = lt
		}
		matched = true
	}
	if !matched {
		s.historicalTotal++
	}
	return leadTime
}

func clampUnit(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
