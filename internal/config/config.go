// Package config implements the config surface: a read-mostly,
// hot-reloadable snapshot of every threshold the surveillance core's
// components check against, plus named presets and transactional
// validation. An optional TOML file overlays the built-in defaults;
// the Manager is an explicit instance the orchestrator owns and hands
// to every component rather than a process-wide singleton.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/marketsurveil/surveil/internal/alerting"
	"github.com/marketsurveil/surveil/internal/catalog"
	"github.com/marketsurveil/surveil/internal/cluster"
	"github.com/marketsurveil/surveil/internal/ports"
	"github.com/marketsurveil/surveil/internal/signaldetect"
)

// ScanConfig holds the orchestrator's own tunables.
type ScanConfig struct {
	PeriodSecs        int     `toml:"period_secs"`
	MinVolumeFloor    float64 `toml:"min_volume_floor"`
	MaxMarkets        int     `toml:"max_markets"`
	MinMarkets        int     `toml:"min_markets"`
	GraceShutdownSecs int     `toml:"grace_shutdown_secs"`
}

// StatsConfig mirrors the statistical kernel's tunables.
type StatsConfig struct {
	WindowSize int     `toml:"window_size"`
	EWMAAlpha  float64 `toml:"ewma_alpha"`
	MinSample  int     `toml:"min_sample"`
}

// AnomalyConfig mirrors the anomaly detector's tunables.
type AnomalyConfig struct {
	ConsensusThreshold float64 `toml:"consensus_threshold"`
	FeatureWindow      int     `toml:"feature_window"`
}

// MicrostructureConfig mirrors the microstructure analyzer's tunables.
type MicrostructureConfig struct {
	DepthWindow      int     `toml:"depth_window"`
	MicroPriceWindow int     `toml:"micro_price_window"`
	LiquidityDropPct float64 `toml:"liquidity_drop_pct"`
	SpreadStablePct  float64 `toml:"spread_stable_pct"`
}

// ClusterConfig mirrors the clusterer's coordinated-movement threshold. This is
// the "correlation threshold" the config port's validation rule
// names: it must stay in [0,1] since it is compared against a
// fractional price-delta.
type ClusterConfig struct {
	MovementThreshold float64 `toml:"movement_threshold"`
}

// PriorityThresholds ladders adjusted opportunity scores into
// priorities. Invariant enforced by Validate: Medium < High < Critical.
type PriorityThresholds struct {
	Critical float64 `toml:"critical"`
	High     float64 `toml:"high"`
	Medium   float64 `toml:"medium"`
}

// RateLimitConfig is the per-priority hourly cap and cooldown,
// mirrored from internal/alerting.Config.
type RateLimitConfig struct {
	MaxPerHour   map[string]int            `toml:"max_per_hour"`
	CooldownSecs map[string]int            `toml:"cooldown_secs"`
}

// AlertingConfig mirrors the alerting pipeline's tunables.
type AlertingConfig struct {
	Enabled             bool               `toml:"enabled"`
	MinOpportunityScore float64            `toml:"min_opportunity_score"`
	MinCategoryScore    int                `toml:"min_category_score"`
	Priority            PriorityThresholds `toml:"priority"`
	RateLimits          RateLimitConfig    `toml:"rate_limits"`
	WebhookURL          string             `toml:"webhook_url"`
}

// SignalDetectConfig mirrors the signal detector's tunables. VolumeSpikeMultiplier must
// stay > 1.0 per the config port's validation rule.
type SignalDetectConfig struct {
	VolumeSpikeMultiplier         float64 `toml:"volume_spike_multiplier"`
	MinVolumeThreshold            float64 `toml:"min_volume_threshold"`
	PriceMovementThreshold        float64 `toml:"price_movement_threshold"`
	BaselineExpectedChangePercent float64 `toml:"baseline_expected_change_percent"`
	NewMarketActivityThreshold    float64 `toml:"new_market_activity_threshold"`
	ActivityThreshold             float64 `toml:"activity_threshold"`
	DedupWindowSecs               int     `toml:"dedup_window_secs"`
}

// ScoringConfig mirrors the opportunity scorer's axis weights, which must sum to 1±0.05.
type ScoringConfig struct {
	VolumeWeight   float64 `toml:"volume_weight"`
	EdgeWeight     float64 `toml:"edge_weight"`
	CatalystWeight float64 `toml:"catalyst_weight"`
	QualityWeight  float64 `toml:"quality_weight"`
}

// TierConfig holds the opportunity-score cutoffs for ACTIVE/WATCHLIST
// assignment (catalog.AssignTier).
type TierConfig struct {
	ActiveThreshold    float64 `toml:"active_threshold"`
	WatchlistThreshold float64 `toml:"watchlist_threshold"`
}

// VenueConfig holds the endpoints for the external venue adapters.
// Empty URLs select the in-memory reference adapters, which lets the
// process run end-to-end without venue connectivity.
type VenueConfig struct {
	CatalogURL          string `toml:"catalog_url"`
	OrderBookWSURL      string `toml:"orderbook_ws_url"`
	ReconnectDelaySecs  int    `toml:"reconnect_delay_secs"`
}

// StoreConfig selects the persistent-store adapter. An empty RedisAddr
// selects the in-memory store.
type StoreConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// ServerConfig holds the debug/status HTTP surface's bind address and
// CORS allowlist. An empty BindAddress disables the server.
type ServerConfig struct {
	BindAddress string   `toml:"bind_address"`
	CORSOrigins []string `toml:"cors_origins"`
}

// CatalogConfig mirrors the categorizer's per-category volume gate.
type CatalogConfig struct {
	VolumeThresholds map[string]float64 `toml:"volume_thresholds"`
	DefaultMinVolume float64            `toml:"default_min_volume"`
}

// Config is the full snapshot every component reads from at the start
// of an operation. Snapshots are immutable once handed out; Manager
// swaps the pointer wholesale on update.
type Config struct {
	Preset         string               `toml:"preset"`
	Scan           ScanConfig           `toml:"scan"`
	Stats          StatsConfig          `toml:"stats"`
	Anomaly        AnomalyConfig        `toml:"anomaly"`
	Microstructure MicrostructureConfig `toml:"microstructure"`
	Cluster        ClusterConfig        `toml:"cluster"`
	Alerting       AlertingConfig       `toml:"alerting"`
	SignalDetect   SignalDetectConfig   `toml:"signal_detect"`
	Scoring        ScoringConfig        `toml:"scoring"`
	Tier           TierConfig           `toml:"tier"`
	Catalog        CatalogConfig        `toml:"catalog"`
	Server         ServerConfig         `toml:"server"`
	Venue          VenueConfig          `toml:"venue"`
	Store          StoreConfig          `toml:"store"`
}

// Balanced is the default preset.
func Balanced() Config {
	return Config{
		Preset: "balanced",
		Scan: ScanConfig{
			PeriodSecs:        30,
			MinVolumeFloor:    1000,
			MaxMarkets:        500,
			MinMarkets:        2,
			GraceShutdownSecs: 5,
		},
		Stats: StatsConfig{WindowSize: 720, EWMAAlpha: 0.1, MinSample: 30},
		Anomaly: AnomalyConfig{ConsensusThreshold: 0.6, FeatureWindow: 256},
		Microstructure: MicrostructureConfig{
			DepthWindow: 720, MicroPriceWindow: 50,
			LiquidityDropPct: 0.40, SpreadStablePct: 0.10,
		},
		Cluster: ClusterConfig{MovementThreshold: 0.02},
		Alerting: AlertingConfig{
			Enabled:             true,
			MinOpportunityScore: 20,
			MinCategoryScore:    1,
			Priority:            PriorityThresholds{Critical: 80, High: 60, Medium: 40},
			RateLimits: RateLimitConfig{
				MaxPerHour:   map[string]int{"CRITICAL": 20, "HIGH": 40, "MEDIUM": 80, "LOW": 160},
				CooldownSecs: map[string]int{"CRITICAL": 1800, "HIGH": 3600, "MEDIUM": 7200, "LOW": 14400},
			},
		},
		SignalDetect: SignalDetectConfig{
			VolumeSpikeMultiplier: 3.0, MinVolumeThreshold: 1000,
			PriceMovementThreshold: 10, BaselineExpectedChangePercent: 5,
			NewMarketActivityThreshold: 500, ActivityThreshold: 70,
			DedupWindowSecs: 1800,
		},
		Scoring: ScoringConfig{VolumeWeight: 0.30, EdgeWeight: 0.25, CatalystWeight: 0.25, QualityWeight: 0.20},
		Tier:    TierConfig{ActiveThreshold: 60, WatchlistThreshold: 30},
		Catalog: CatalogConfig{VolumeThresholds: catalog.DefaultThresholds(), DefaultMinVolume: 1000},
		Server:  ServerConfig{BindAddress: ":8090", CORSOrigins: []string{"*"}},
		Venue:   VenueConfig{ReconnectDelaySecs: 5},
	}
}

// Conservative raises every bar: fewer, higher-confidence alerts.
func Conservative() Config {
	c := Balanced()
	c.Preset = "conservative"
	c.Alerting.MinOpportunityScore = 40
	c.Alerting.MinCategoryScore = 2
	c.Alerting.Priority = PriorityThresholds{Critical: 88, High: 72, Medium: 55}
	c.Alerting.RateLimits.MaxPerHour = map[string]int{"CRITICAL": 10, "HIGH": 20, "MEDIUM": 40, "LOW": 80}
	c.SignalDetect.VolumeSpikeMultiplier = 4.0
	c.Anomaly.ConsensusThreshold = 0.75
	c.Tier = TierConfig{ActiveThreshold: 75, WatchlistThreshold: 45}
	return c
}

// Aggressive lowers every bar: more, lower-confidence alerts.
func Aggressive() Config {
	c := Balanced()
	c.Preset = "aggressive"
	c.Alerting.MinOpportunityScore = 10
	c.Alerting.MinCategoryScore = 1
	c.Alerting.Priority = PriorityThresholds{Critical: 70, High: 50, Medium: 30}
	c.Alerting.RateLimits.MaxPerHour = map[string]int{"CRITICAL": 40, "HIGH": 80, "MEDIUM": 160, "LOW": 320}
	c.SignalDetect.VolumeSpikeMultiplier = 2.0
	c.Anomaly.ConsensusThreshold = 0.45
	c.Tier = TierConfig{ActiveThreshold: 45, WatchlistThreshold: 20}
	return c
}

// Development shortens every interval for fast local iteration; still
// passes Validate since sliding windows stay >= 60s.
func Development() Config {
	c := Balanced()
	c.Preset = "development"
	c.Scan.PeriodSecs = 10
	c.SignalDetect.DedupWindowSecs = 60
	c.Scan.MinVolumeFloor = 0
	c.Alerting.MinOpportunityScore = 0
	c.Alerting.RateLimits.MaxPerHour = map[string]int{"CRITICAL": 1000, "HIGH": 1000, "MEDIUM": 1000, "LOW": 1000}
	return c
}

var presets = map[string]func() Config{
	"conservative": Conservative,
	"balanced":     Balanced,
	"aggressive":   Aggressive,
	"development":  Development,
}

// FromPreset returns the named preset's snapshot, or an
// UpstreamRejection error for an unknown name.
func FromPreset(name string) (Config, error) {
	build, ok := presets[name]
	if !ok {
		return Config{}, ports.Wrap(ports.KindUpstreamRejection, "config.from_preset", fmt.Errorf("unknown preset %q", name))
	}
	return build(), nil
}

// Validate enforces the config rejection rules: a correlation
// threshold outside [0,1], a priority ordering violation,
// opportunity weights summing outside [0.95,1.05], a volume
// multiplier <= 1.0, a window under 60s, or minMarkets < 2.
func Validate(c Config) error {
	if c.Cluster.MovementThreshold < 0 || c.Cluster.MovementThreshold > 1 {
		return ports.Wrap(ports.KindUpstreamRejection, "config.validate", fmt.Errorf("cluster movement threshold %v outside [0,1]", c.Cluster.MovementThreshold))
	}
	p := c.Alerting.Priority
	if !(p.Medium < p.High && p.High < p.Critical) {
		return ports.Wrap(ports.KindUpstreamRejection, "config.validate", fmt.Errorf("priority ordering violated: medium=%v high=%v critical=%v", p.Medium, p.High, p.Critical))
	}
	sum := c.Scoring.VolumeWeight + c.Scoring.EdgeWeight + c.Scoring.CatalystWeight + c.Scoring.QualityWeight
	if sum < 0.95 || sum > 1.05 {
		return ports.Wrap(ports.KindUpstreamRejection, "config.validate", fmt.Errorf("opportunity weights sum %v outside [0.95,1.05]", sum))
	}
	if c.SignalDetect.VolumeSpikeMultiplier <= 1.0 {
		return ports.Wrap(ports.KindUpstreamRejection, "config.validate", fmt.Errorf("volume multiplier %v must be > 1.0", c.SignalDetect.VolumeSpikeMultiplier))
	}
	if c.SignalDetect.DedupWindowSecs < 60 {
		return ports.Wrap(ports.KindUpstreamRejection, "config.validate", fmt.Errorf("signal window %ds below the 60s minimum", c.SignalDetect.DedupWindowSecs))
	}
	if c.Scan.MinMarkets < 2 {
		return ports.Wrap(ports.KindUpstreamRejection, "config.validate", fmt.Errorf("minMarkets %d below the minimum of 2", c.Scan.MinMarkets))
	}
	return nil
}

// LoadTOMLOverride reads path (if it exists) and TOML-unmarshals it
// onto a copy of base, returning base unchanged if the file is
// absent.
func LoadTOMLOverride(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("read config override %s: %w", path, err)
	}
	out := base
	if err := toml.Unmarshal(data, &out); err != nil {
		return base, fmt.Errorf("parse config override %s: %w", path, err)
	}
	return out, nil
}

// Manager owns the live Config snapshot and the change-subscription
// registry. The orchestrator constructs one and hands the reference
// to every component.
type Manager struct {
	mu          sync.RWMutex
	current     Config
	subscribers map[string]func(any)
}

// NewManager constructs a Manager seeded with initial. initial should
// already satisfy Validate; NewManager does not itself validate so
// callers can seed from a known-good preset without a redundant check.
func NewManager(initial Config) *Manager {
	return &Manager{
		current:     initial,
		subscribers: make(map[string]func(any)),
	}
}

// GetConfig implements ports.ConfigProvider: returns a snapshot copy
// of the current config as `any`, generic over the concrete Config
// type to avoid a ports -> config import cycle.
func (m *Manager) GetConfig() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := m.current
	return snapshot
}

// Current returns a typed snapshot for in-package/in-module callers
// that don't need to go through the ports.ConfigProvider interface.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnConfigChange registers cb under id, invoked after every successful
// Update/ApplyPreset with the new snapshot. Re-registering the same id
// replaces the prior callback.
func (m *Manager) OnConfigChange(id string, cb func(any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[id] = cb
}

// OffConfigChange unregisters id.
func (m *Manager) OffConfigChange(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, id)
}

// Update validates next fully before applying it; on failure the
// prior in-memory snapshot is untouched and the rejection reason is
// returned.
func (m *Manager) Update(next Config) error {
	if err := Validate(next); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = next
	subs := make([]func(any), 0, len(m.subscribers))
	for _, cb := range m.subscribers {
		subs = append(subs, cb)
	}
	m.mu.Unlock()

	snapshot := next
	for _, cb := range subs {
		cb(snapshot)
	}
	return nil
}

// ApplyPreset looks up name in the fixed preset table and applies it
// via Update, under the same transactional validation.
func (m *Manager) ApplyPreset(name string) error {
	build, ok := presets[name]
	if !ok {
		return ports.Wrap(ports.KindUpstreamRejection, "config.apply_preset", fmt.Errorf("unknown preset %q", name))
	}
	return m.Update(build())
}

// AlertManagerConfig projects Config's alerting section into
// alerting.Config, the shape the alert manager actually consumes.
func (c Config) AlertManagerConfig() alerting.Config {
	durations := func(secs map[string]int) map[alerting.Priority]time.Duration {
		out := make(map[alerting.Priority]time.Duration, len(secs))
		for k, v := range secs {
			out[alerting.Priority(k)] = time.Duration(v) * time.Second
		}
		return out
	}
	limits := func(m map[string]int) map[alerting.Priority]int {
		out := make(map[alerting.Priority]int, len(m))
		for k, v := range m {
			out[alerting.Priority(k)] = v
		}
		return out
	}
	return alerting.Config{
		Enabled:             c.Alerting.Enabled,
		MinOpportunityScore: c.Alerting.MinOpportunityScore,
		MinCategoryScore:    c.Alerting.MinCategoryScore,
		HourlyLimits:        limits(c.Alerting.RateLimits.MaxPerHour),
		Cooldowns:           durations(c.Alerting.RateLimits.CooldownSecs),
	}
}

// SignalDetectorConfig projects Config's signal-detect section into
// signaldetect.Config.
func (c Config) SignalDetectorConfig() signaldetect.Config {
	return signaldetect.Config{
		VolumeSpikeMultiplier:         c.SignalDetect.VolumeSpikeMultiplier,
		MinVolumeThreshold:            c.SignalDetect.MinVolumeThreshold,
		PriceMovementThreshold:        c.SignalDetect.PriceMovementThreshold,
		BaselineExpectedChangePercent: c.SignalDetect.BaselineExpectedChangePercent,
		NewMarketActivityThreshold:    c.SignalDetect.NewMarketActivityThreshold,
		ActivityThreshold:             c.SignalDetect.ActivityThreshold,
		DedupWindow:                   time.Duration(c.SignalDetect.DedupWindowSecs) * time.Second,
	}
}

// ScorerConfig projects Config's scoring section into
// catalog.ScoringConfig, grafting the fixed curve-shape tunables from
// catalog.DefaultScoringConfig onto the hot-reloadable weights.
func (c Config) ScorerConfig() catalog.ScoringConfig {
	sc := catalog.DefaultScoringConfig()
	sc.VolumeWeight = c.Scoring.VolumeWeight
	sc.EdgeWeight = c.Scoring.EdgeWeight
	sc.CatalystWeight = c.Scoring.CatalystWeight
	sc.QualityWeight = c.Scoring.QualityWeight
	return sc
}

// ClusterOption projects Config's cluster section into a
// cluster.Option.
func (c Config) ClusterOption() cluster.Option {
	return cluster.WithMovementThreshold(c.Cluster.MovementThreshold)
}
