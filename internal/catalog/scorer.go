package catalog

import (
	"sync"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
)

// ScoringConfig holds every tunable the opportunity scorer's four
// axes check against. Weights must sum to 1 within ±0.05 — the config
// port rejects updates that violate this (see internal/config).
type ScoringConfig struct {
	VolumeWeight    float64
	EdgeWeight      float64
	CatalystWeight  float64
	QualityWeight   float64

	OptimalVolumeMultiplier    float64
	IlliquidityPenaltyThreshold float64
	EfficiencyPenaltyThreshold  float64

	CategoryEdgeMultiplier map[string]float64
	DefaultEdgeMultiplier  float64

	OptimalDaysToClose float64
	MinDaysToClose     float64
	MaxDaysToClose     float64
	UrgencyDays        float64
	UrgencyMultiplier  float64

	OptimalSpreadBps float64
	MaxAgeDays       float64
}

// DefaultScoringConfig returns the standard axis weights
// (0.30/0.25/0.25/0.20 of the 0..100 scale) and curve shapes.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		VolumeWeight:   0.30,
		EdgeWeight:     0.25,
		CatalystWeight: 0.25,
		QualityWeight:  0.20,

		OptimalVolumeMultiplier:     4.0,
		IlliquidityPenaltyThreshold: 0.5,
		EfficiencyPenaltyThreshold:  50.0,

		CategoryEdgeMultiplier: map[string]float64{
			"politics_elections": 1.2,
			"fed_policy":         1.1,
			"crypto":             0.8,
			"equities":           1.0,
			"geopolitics":        1.3,
			"sports":             0.7,
			"weather_climate":    0.9,
			"entertainment":      0.6,
			"economics":          1.1,
		},
		DefaultEdgeMultiplier: 1.0,

		OptimalDaysToClose: 14,
		MinDaysToClose:     1,
		MaxDaysToClose:     180,
		UrgencyDays:         7,
		UrgencyMultiplier:   1.5,

		OptimalSpreadBps: 50,
		MaxAgeDays:       90,
	}
}

// WeightsValid reports whether the four axis weights sum to 1 within
// ±0.05, the invariant the config port enforces on every update.
func (c ScoringConfig) WeightsValid() bool {
	sum := c.VolumeWeight + c.EdgeWeight + c.CatalystWeight + c.QualityWeight
	return sum >= 0.95 && sum <= 1.05
}

// Scorer is the process-wide opportunity scorer.
type Scorer struct {
	mu  sync.RWMutex
	cfg ScoringConfig
}

// NewScorer constructs a Scorer with cfg.
func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// SetConfig hot-swaps the scoring config. Safe to call concurrently
// with Score — in-flight calls finish against whichever cfg they
// observed. The scorer itself carries no per-market history, so a
// config swap has nothing else to preserve.
func (s *Scorer) SetConfig(cfg ScoringConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Scorer) config() ScoringConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Breakdown is the four sub-scores plus the combined total.
type Breakdown struct {
	VolumeScore   float64
	EdgeScore     float64
	CatalystScore float64
	QualityScore  float64
	TotalScore    float64
}

// volumeThreshold returns the per-category minimum volume a market
// needed to clear the catalog filter; the volume score curve is
// defined relative to this threshold, not an absolute volume level.
type volumeThresholdFn func(category string) float64

// Score evaluates m's four axes and writes the sub-scores and total
// onto m.*Score fields, matching the "mutated by ... the opportunity
// scorer" ownership rule. thresholdFor supplies the category's
// minimum-volume threshold (from the categorizer) that the volume
// curve is centered against; bestBid/bestAsk are the market's
// top-of-book prices (0 if unavailable, which zeroes the spread
// closeness term rather than crashing).
func (s *Scorer) Score(m *domain.Market, thresholdFor volumeThresholdFn, bestBid, bestAsk float64, firstSeen, now time.Time) Breakdown {
	cfg := s.config()

	threshold := thresholdFor(m.Category)
	if threshold <= 0 {
		threshold = 1
	}

	b := Breakdown{
		VolumeScore:   s.volumeScore(cfg, m.Volume, threshold),
		EdgeScore:     s.edgeScore(cfg, m),
		CatalystScore: s.catalystScore(cfg, domain.TimeToClose(m, now)),
		QualityScore:  s.qualityScore(cfg, m, bestBid, bestAsk, firstSeen, now),
	}
	// Each sub-score is normalized to its own [0,1] fraction of axis
	// max (30/25/25/20) before being weighted, so totalScore reaches
	// the full [0,100] range when weights sum to 1 — a sub-score
	// sitting at its own max contributes its full weight share.
	b.TotalScore = 100 * (cfg.VolumeWeight*(b.VolumeScore/30) +
		cfg.EdgeWeight*(b.EdgeScore/25) +
		cfg.CatalystWeight*(b.CatalystScore/25) +
		cfg.QualityWeight*(b.QualityScore/20))

	m.VolumeScore = b.VolumeScore
	m.EdgeScore = b.EdgeScore
	m.CatalystScore = b.CatalystScore
	m.QualityScore = b.QualityScore
	m.OpportunityScore = clamp(b.TotalScore, 0, 100)
	return b
}

// volumeScore peaks at 30 when volume sits at
// optimalVolumeMultiplier*threshold, penalizing illiquid markets below
// illiquidityPenaltyThreshold*threshold and markets so large they are
// already efficient above efficiencyPenaltyThreshold*threshold.
func (s *Scorer) volumeScore(cfg ScoringConfig, volume, threshold float64) float64 {
	illiquidFloor := cfg.IlliquidityPenaltyThreshold * threshold
	if volume < illiquidFloor {
		if illiquidFloor <= 0 {
			return 0
		}
		return 30 * (volume / illiquidFloor) * 0.3 // steep ramp-in below the illiquidity floor
	}

	efficiencyCeiling := cfg.EfficiencyPenaltyThreshold * threshold
	if volume > efficiencyCeiling {
		excess := (volume - efficiencyCeiling) / efficiencyCeiling
		score := 30 * (1 - clamp(excess, 0, 1)*0.6)
		return clamp(score, 0, 30)
	}

	optimal := cfg.OptimalVolumeMultiplier * threshold
	if optimal <= 0 {
		return 0
	}
	distance := absf(volume-optimal) / optimal
	score := 30 * (1 - clamp(distance, 0, 1))
	return clamp(score, 0, 30)
}

// edgeScore blends the category's edge multiplier against the
// market's categoryScore weight, plus up to a 5-point bonus for
// markets with more than five outcomes (richer, harder-to-price
// structures carry more informational edge).
func (s *Scorer) edgeScore(cfg ScoringConfig, m *domain.Market) float64 {
	mult, ok := cfg.CategoryEdgeMultiplier[m.Category]
	if !ok {
		mult = cfg.DefaultEdgeMultiplier
	}
	base := clamp(float64(m.CategoryScore)*mult*3, 0, 20)

	outcomeBonus := 0.0
	if len(m.Outcomes) > 5 {
		outcomeBonus = clamp(float64(len(m.Outcomes)-5), 0, 5)
	}
	return clamp(base+outcomeBonus, 0, 25)
}

// catalystScore peaks at optimalDaysToClose and is zero outside
// [minDaysToClose, maxDaysToClose]; markets closing within
// urgencyDays get an urgency multiplier since the catalyst is
// imminent.
func (s *Scorer) catalystScore(cfg ScoringConfig, timeToClose time.Duration) float64 {
	days := timeToClose.Hours() / 24
	if days < cfg.MinDaysToClose || days > cfg.MaxDaysToClose {
		return 0
	}

	optimal := cfg.OptimalDaysToClose
	span := cfg.MaxDaysToClose - cfg.MinDaysToClose
	if span <= 0 {
		span = 1
	}
	distance := absf(days-optimal) / span
	score := 25 * (1 - clamp(distance, 0, 1))

	if days <= cfg.UrgencyDays {
		score *= cfg.UrgencyMultiplier
	}
	return clamp(score, 0, 25)
}

// qualityScore weights spread closeness to optimalSpreadBps, market
// age closeness to (0, maxAgeDays], and a liquidity depth proxy drawn
// from volume, into a 0..20 composite.
func (s *Scorer) qualityScore(cfg ScoringConfig, m *domain.Market, bestBid, bestAsk float64, firstSeen, now time.Time) float64 {
	spreadComponent := 0.0
	if bestAsk > 0 || bestBid > 0 {
		spreadBps := domain.SpreadBps(bestBid, bestAsk)
		if cfg.OptimalSpreadBps > 0 {
			distance := absf(spreadBps-cfg.OptimalSpreadBps) / cfg.OptimalSpreadBps
			spreadComponent = clamp(1-clamp(distance, 0, 1), 0, 1)
		}
	}

	ageComponent := 0.0
	ageDays := domain.MarketAge(firstSeen, now).Hours() / 24
	if cfg.MaxAgeDays > 0 && ageDays > 0 {
		ageComponent = clamp(1-ageDays/cfg.MaxAgeDays, 0, 1)
	}

	depthComponent := clamp(m.Volume/10000, 0, 1)

	composite := 0.4*spreadComponent + 0.3*ageComponent + 0.3*depthComponent
	return clamp(composite*20, 0, 20)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// AssignTier sets m.Tier from the opportunity score and category
// gate: ACTIVE for markets clearing the high-confidence bar,
// WATCHLIST for moderate-interest markets, IGNORED otherwise. This is
// the third and final mutation step within a scan tick's
// categorize->score->tier sequence.
func AssignTier(m *domain.Market, activeThreshold, watchlistThreshold float64) {
	switch {
	case m.IsBlacklisted:
		m.Tier = domain.TierIgnored
	case m.OpportunityScore >= activeThreshold:
		m.Tier = domain.TierActive
	case m.OpportunityScore >= watchlistThreshold:
		m.Tier = domain.TierWatchlist
	default:
		m.Tier = domain.TierIgnored
	}
}
