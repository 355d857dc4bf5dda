// Package domain holds the value types shared across the surveillance
// core: markets, order books, trades, and signals. Types here are plain
// data — no behavior that depends on component-owned state lives here,
// so every package can import domain without creating cycles.
package domain

import "time"

// Tier is the monitoring-intensity class assigned to a market.
type Tier string

const (
	TierActive    Tier = "ACTIVE"
	TierWatchlist Tier = "WATCHLIST"
	TierIgnored   Tier = "IGNORED"
)

// Market is a single prediction-market listing as fetched from the
// venue catalog, enriched in-place by the categorizer, scorer, and tier
// assigner during a scan tick.
type Market struct {
	MarketID      string
	Question      string
	Description   string
	Outcomes      []string
	OutcomePrices []float64 // parallel to Outcomes, each in [0,1]
	Volume        float64
	Active        bool
	Closed        bool
	EndDate       time.Time
	Tags          []string

	// Derived fields, populated in order by the categorizer, the
	// opportunity scorer, and the tier assigner within a scan tick.
	Category         string // "" when unassigned
	CategoryScore    int
	IsBlacklisted    bool
	Tier             Tier
	OpportunityScore float64
	VolumeScore      float64
	EdgeScore        float64
	CatalystScore    float64
	QualityScore     float64
}

// Clone returns a deep copy so components never share mutable Market
// state across goroutine boundaries.
func (m *Market) Clone() *Market {
	cp := *m
	cp.Outcomes = append([]string(nil), m.Outcomes...)
	cp.OutcomePrices = append([]float64(nil), m.OutcomePrices...)
	cp.Tags = append([]string(nil), m.Tags...)
	return &cp
}

// SpreadBps returns the top-of-book spread in basis points for a market
// whose outcome prices imply a binary top-of-book (YES price = first
// outcome price). Spread in price space is converted to bps by
// multiplying by 10000 — never normalized by mid-price, since a given
// decimal spread costs the same at any probability level.
func SpreadBps(bestBid, bestAsk float64) float64 {
	return (bestAsk - bestBid) * 10000
}

// MarketAge returns the elapsed time since a market's inferred creation.
// The catalog does not report a creation timestamp, so callers pass the
// earliest snapshot time they have observed for this market.
func MarketAge(firstSeen, now time.Time) time.Duration {
	if firstSeen.IsZero() {
		return 0
	}
	return now.Sub(firstSeen)
}

// TimeToClose returns the duration remaining until a market's EndDate,
// clamped to zero for already-closed markets.
func TimeToClose(m *Market, now time.Time) time.Duration {
	if m.EndDate.IsZero() {
		return 0
	}
	d := m.EndDate.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// MarketSnapshot is one per-market observation taken on a scan tick.
type MarketSnapshot struct {
	MarketID      string
	Timestamp     time.Time
	Volume24h     float64
	Prices        []float64
	PriceChangePct map[string]float64 // outcome -> delta%
	ActivityScore float64             // [0,100], computed by the orchestrator from volume and price change
	VolumeChangePct float64
}
