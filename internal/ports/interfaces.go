package ports

import (
	"context"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
)

// MarketCatalog is the external venue-listing port. The core never
// calls the venue API directly; only the orchestrator holds a
// reference.
type MarketCatalog interface {
	GetMarketsWithMinVolume(ctx context.Context, minVolume float64, maxMarkets int) ([]*domain.Market, error)
	GetMarketByID(ctx context.Context, id string) (*domain.Market, error)
	HealthCheck(ctx context.Context) (healthy bool, details string)
}

// OrderBookStream is the subscribe-style live order-book port. The
// core assumes an at-least-once stream with per-market monotonic
// timestamps and tolerates duplicate consecutive frames; the adapter
// owns reconnect policy.
type OrderBookStream interface {
	Subscribe(ctx context.Context, marketIDs []string) (<-chan *domain.OrderBook, error)
}

// PersistentStore is the signal/backtest persistence port. Failures
// here are logged and counted, never fatal to the scan loop.
type PersistentStore interface {
	SaveSignal(ctx context.Context, signal domain.Signal) error
	GetPriceHistory(ctx context.Context, marketID string, hours int) ([]float64, error)
	SaveBacktestResults(ctx context.Context, result BacktestResult) error
	HealthCheck(ctx context.Context) (healthy bool, details string)
}

// BacktestResult is an opaque bundle the persistent store records;
// its shape is owned by the offline scoring tooling, not this core.
type BacktestResult struct {
	ID        string
	CreatedAt time.Time
	Payload   map[string]any
}

// Webhook accepts a rendered notification payload and reports
// delivery outcome. The core's own retry/backoff wraps calls to this
// port; the adapter just performs one HTTP attempt.
type Webhook interface {
	Send(ctx context.Context, payload NotificationPayload) error
}

// NotificationPayload is the rendered message the formatter hands to
// the webhook port.
type NotificationPayload struct {
	Title       string
	Color       int // RGB packed, per priority
	Fields      []NotificationField
	URL         string
	GeneratedAt time.Time
}

type NotificationField struct {
	Name   string
	Value  string
	Inline bool
}

// SignalTypeStats is the historical performance bundle the
// performance-tracking port returns for CRITICAL/HIGH embed
// enrichment.
type SignalTypeStats struct {
	N                  int
	Accuracy           float64
	WinRate            float64
	AvgPnL1h           float64
	AvgPnL24h          float64
	Sharpe             float64
	KellyFraction      float64
	PosteriorConfidence float64
}

// PerformanceTracker is optional: callers may pass nil and the formatter omits
// the enrichment block.
type PerformanceTracker interface {
	GetSignalTypeStats(ctx context.Context, signalType domain.SignalType) (SignalTypeStats, error)
}

// ConfigProvider is the config port: snapshot reads, change
// subscription, and preset application. Concrete snapshot/preset types
// live in package config to avoid a ports -> config import cycle; this
// interface is defined generically over `any` snapshots so package
// config can implement it without ports depending on config.
type ConfigProvider interface {
	GetConfig() any
	OnConfigChange(id string, cb func(any))
	OffConfigChange(id string)
	ApplyPreset(name string) error
}
