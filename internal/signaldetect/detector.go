// Package signaldetect implements the periodic signal detector:
// volume-spike, price-movement, new-market, and activity detection
// over each market's snapshot history.
package signaldetect

import (
	"math"
	"sync"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
)

// Config holds every tunable threshold the detector checks against.
type Config struct {
	VolumeSpikeMultiplier         float64
	MinVolumeThreshold            float64
	PriceMovementThreshold        float64 // percent
	BaselineExpectedChangePercent float64
	NewMarketActivityThreshold    float64
	ActivityThreshold             float64
	DedupWindow                   time.Duration
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		VolumeSpikeMultiplier:         3.0,
		MinVolumeThreshold:            1000,
		PriceMovementThreshold:        10,
		BaselineExpectedChangePercent: 5,
		NewMarketActivityThreshold:    500,
		ActivityThreshold:             70,
		DedupWindow:                   30 * time.Minute,
	}
}

// Detector is the process-wide signal detector: stateless except for the
// per-market, per-signal-type dedup ledger.
type Detector struct {
	mu  sync.Mutex
	cfg Config

	lastEmit map[string]map[domain.SignalType]time.Time
}

// NewDetector constructs a Detector with cfg.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:      cfg,
		lastEmit: make(map[string]map[domain.SignalType]time.Time),
	}
}

// SetConfig hot-swaps the detection thresholds, leaving the per-market
// dedup ledger untouched.
func (d *Detector) SetConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
}

func (d *Detector) config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// Detect evaluates all four detectors for one market against its
// snapshot history (oldest..newest, not including current) and the
// current snapshot, skipping corrupted history entries without
// aborting the pass. Detect is idempotent on a nil/empty history.
func (d *Detector) Detect(market *domain.Market, history []domain.MarketSnapshot, current domain.MarketSnapshot, t time.Time) []domain.Signal {
	cfg := d.config()
	clean := validSnapshots(history)

	var signals []domain.Signal
	if sig, ok := d.volumeSpike(cfg, market, clean, current, t); ok {
		signals = append(signals, sig)
	}
	if sig, ok := d.priceMovement(cfg, market, current, t); ok {
		signals = append(signals, sig)
	}
	if sig, ok := d.newMarket(cfg, market, clean, current, t); ok {
		signals = append(signals, sig)
	}
	if sig, ok := d.activity(cfg, market, current, t); ok {
		signals = append(signals, sig)
	}
	return signals
}

func validSnapshots(history []domain.MarketSnapshot) []domain.MarketSnapshot {
	var out []domain.MarketSnapshot
	for _, s := range history {
		if math.IsNaN(s.Volume24h) || math.IsInf(s.Volume24h, 0) || s.Volume24h < 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (d *Detector) tryEmit(marketID string, typ domain.SignalType, dedupWindow time.Duration, t time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	byType, ok := d.lastEmit[marketID]
	if !ok {
		byType = make(map[domain.SignalType]time.Time)
		d.lastEmit[marketID] = byType
	}
	if last, ok := byType[typ]; ok && t.Sub(last) < dedupWindow {
		return false
	}
	byType[typ] = t
	return true
}

func (d *Detector) volumeSpike(cfg Config, market *domain.Market, history []domain.MarketSnapshot, current domain.MarketSnapshot, t time.Time) (domain.Signal, bool) {
	if len(history) == 0 {
		return domain.Signal{}, false
	}
	var sum float64
	for _, s := range history {
		sum += s.Volume24h
	}
	baseline := sum / float64(len(history))
	if baseline <= 0 {
		return domain.Signal{}, false
	}
	ratio := current.Volume24h / baseline
	if ratio < cfg.VolumeSpikeMultiplier {
		return domain.Signal{}, false
	}
	if current.Volume24h < cfg.MinVolumeThreshold*cfg.VolumeSpikeMultiplier {
		return domain.Signal{}, false
	}
	if !d.tryEmit(market.MarketID, domain.SignalVolumeSpike, cfg.DedupWindow, t) {
		return domain.Signal{}, false
	}

	confidence := clamp01((ratio - cfg.VolumeSpikeMultiplier) / cfg.VolumeSpikeMultiplier)
	meta := domain.Metadata{
		Severity: severityForRatio(ratio, cfg.VolumeSpikeMultiplier),
		VolumeSpike: &domain.VolumeSpikeMeta{
			CurrentVolume:   current.Volume24h,
			BaselineVolume:  baseline,
			SpikeMultiplier: ratio,
		},
	}
	return domain.NewSignal(market.MarketID, market, domain.SignalVolumeSpike, confidence, t, meta)
}

func (d *Detector) priceMovement(cfg Config, market *domain.Market, current domain.MarketSnapshot, t time.Time) (domain.Signal, bool) {
	var maxOutcome string
	var maxDelta float64
	for outcome, delta := range current.PriceChangePct {
		if absf(delta) > absf(maxDelta) {
			maxDelta = delta
			maxOutcome = outcome
		}
	}
	if absf(maxDelta) < cfg.PriceMovementThreshold {
		return domain.Signal{}, false
	}
	if !d.tryEmit(market.MarketID, domain.SignalPriceMovement, cfg.DedupWindow, t) {
		return domain.Signal{}, false
	}

	confidence := clamp01(absf(maxDelta) / (cfg.BaselineExpectedChangePercent * 3))
	meta := domain.Metadata{
		Severity: severityForRatio(absf(maxDelta), cfg.PriceMovementThreshold),
		PriceMovement: &domain.PriceMovementMeta{
			Outcome:          maxOutcome,
			DeltaPct:         maxDelta,
			BaselineExpected: cfg.BaselineExpectedChangePercent,
		},
	}
	return domain.NewSignal(market.MarketID, market, domain.SignalPriceMovement, confidence, t, meta)
}

func (d *Detector) newMarket(cfg Config, market *domain.Market, history []domain.MarketSnapshot, current domain.MarketSnapshot, t time.Time) (domain.Signal, bool) {
	if len(history) != 0 {
		return domain.Signal{}, false
	}
	if current.Volume24h < cfg.NewMarketActivityThreshold {
		return domain.Signal{}, false
	}
	if !d.tryEmit(market.MarketID, domain.SignalNewMarket, cfg.DedupWindow, t) {
		return domain.Signal{}, false
	}

	confidence := clamp01(current.ActivityScore / 100)
	meta := domain.Metadata{
		Severity: domain.SeverityMedium,
		NewMarket: &domain.NewMarketMeta{
			Volume:        current.Volume24h,
			ActivityScore: current.ActivityScore,
		},
	}
	return domain.NewSignal(market.MarketID, market, domain.SignalNewMarket, confidence, t, meta)
}

func (d *Detector) activity(cfg Config, market *domain.Market, current domain.MarketSnapshot, t time.Time) (domain.Signal, bool) {
	if current.ActivityScore < cfg.ActivityThreshold {
		return domain.Signal{}, false
	}
	if !d.tryEmit(market.MarketID, domain.SignalActivity, cfg.DedupWindow, t) {
		return domain.Signal{}, false
	}

	confidence := clamp01(current.ActivityScore / 100)
	meta := domain.Metadata{
		Severity: severityForRatio(current.ActivityScore, cfg.ActivityThreshold),
		Activity: &domain.ActivityMeta{ActivityScore: current.ActivityScore},
	}
	return domain.NewSignal(market.MarketID, market, domain.SignalActivity, confidence, t, meta)
}

func severityForRatio(value, threshold float64) domain.Severity {
	if threshold <= 0 {
		return domain.SeverityLow
	}
	switch ratio := value / threshold; {
	case ratio >= 3:
		return domain.SeverityCritical
	case ratio >= 2:
		return domain.SeverityHigh
	case ratio >= 1.5:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
