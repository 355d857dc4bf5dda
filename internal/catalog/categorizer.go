// Package catalog implements market categorization, the blacklist and
// per-category volume gate, and the opportunity scorer. Categories are
// assigned by keyword cascade; the resulting scored assignment is
// consumed by both the opportunity scorer and the alert manager.
package catalog

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/marketsurveil/surveil/internal/domain"
)

// categoryKeywords is the fixed keyword table scored against a
// market's question+description. Order is insertion order; ties
// within a score are broken by this order via a stable scan.
var categoryKeywords = []struct {
	Name     string
	Keywords []string
}{
	{"politics_elections", []string{"election", "president", "senate", "congress", "governor", "primary", "electoral", "ballot", "vote"}},
	{"fed_policy", []string{"federal reserve", "fomc", "interest rate", "rate cut", "rate hike", "jerome powell"}},
	{"crypto", []string{"bitcoin", "btc", "ethereum", "eth", "crypto", "cryptocurrency", "coin"}},
	{"equities", []string{"stock", "s&p", "nasdaq", "dow", "earnings", "ipo"}},
	{"geopolitics", []string{"war", "invasion", "ceasefire", "sanctions", "treaty", "nato"}},
	{"sports", []string{"championship", "playoff", "super bowl", "world cup", "final", "tournament"}},
	{"weather_climate", []string{"hurricane", "storm", "temperature", "climate", "emissions"}},
	{"entertainment", []string{"oscar", "grammy", "box office", "premiere", "award show"}},
	{"economics", []string{"gdp", "inflation", "unemployment", "recession", "cpi", "jobs report"}},
}

// blacklistPhrases are fixed phrases that unconditionally blacklist a
// market regardless of category.
var blacklistPhrases = []string{
	"test market", "do not trade", "internal testing only", "placeholder market",
}

var cryptoWords = []string{"bitcoin", "btc", "ethereum", "eth", "crypto", "cryptocurrency", "coin"}
var pricePatternWords = []string{"price", "reach", "hit", "$", "above", "below", "surpass", "exceed"}
var catalystWords = []string{"etf", "approval", "launch", "mainnet", "fork", "halving", "listing", "sec"}

// phraseBonus is added per keyword that appears as a literal phrase
// (length > 1 word) inside the question text, on top of the
// substring-hit count every keyword already earns.
const phraseBonus = 2

// Assignment is the categorizer's verdict for one market.
type Assignment struct {
	Category      string
	CategoryScore int
	Blacklisted   bool
}

// Categorizer assigns markets to a fixed category table and gates
// them against per-category minimum-volume thresholds. Thresholds are
// hot-reloadable: ApplyThresholds swaps the map under a lock while
// Categorize/FilterByVolume keep running against the prior snapshot
// for in-flight calls.
type Categorizer struct {
	mu         sync.RWMutex
	thresholds map[string]float64
	defaultMin float64
}

// DefaultThresholds mirrors sensible per-category minimum 24h volumes;
// an unlisted category falls back to defaultMin.
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		"politics_elections": 5000,
		"fed_policy":         10000,
		"crypto":             20000,
		"equities":           10000,
		"geopolitics":        5000,
		"sports":             2000,
		"weather_climate":    1000,
		"entertainment":      1000,
		"economics":          10000,
	}
}

// NewCategorizer constructs a Categorizer with the default thresholds
// table and a 1000-volume fallback for uncategorized markets.
func NewCategorizer() *Categorizer {
	return &Categorizer{
		thresholds: DefaultThresholds(),
		defaultMin: 1000,
	}
}

// ApplyThresholds replaces the per-category volume-threshold table
// wholesale. Called by the orchestrator on a hot-config update.
func (c *Categorizer) ApplyThresholds(thresholds map[string]float64, defaultMin float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholds = thresholds
	c.defaultMin = defaultMin
}

func (c *Categorizer) thresholdFor(category string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.thresholds[category]; ok {
		return t
	}
	return c.defaultMin
}

// ThresholdFor exports thresholdFor for callers outside this package —
// the opportunity scorer centers its volume curve on the same
// per-category minimum the volume gate enforces.
func (c *Categorizer) ThresholdFor(category string) float64 {
	return c.thresholdFor(category)
}

// Categorize scores m against every category in the fixed table and
// returns the assignment: the highest-scoring category with score>=1,
// plus the blacklist verdict. A market with no qualifying category
// gets Category="".
func (c *Categorizer) Categorize(m *domain.Market) Assignment {
	text := strings.ToLower(m.Question + " " + m.Description)
	question := strings.ToLower(m.Question)

	bestName := ""
	bestScore := 0
	for _, cat := range categoryKeywords {
		s := scoreCategory(cat.Keywords, text, question)
		if s >= 1 && s > bestScore {
			bestName = cat.Name
			bestScore = s
		}
	}

	return Assignment{
		Category:      bestName,
		CategoryScore: bestScore,
		Blacklisted:   isBlacklisted(text),
	}
}

func scoreCategory(keywords []string, text, question string) int {
	score := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			score++
		}
		if strings.Contains(kw, " ") && strings.Contains(question, kw) {
			score += phraseBonus
		}
	}
	return score
}

func isBlacklisted(text string) bool {
	for _, phrase := range blacklistPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	if !containsAny(text, cryptoWords) {
		return false
	}
	if !containsAny(text, pricePatternWords) {
		return false
	}
	return !containsAny(text, catalystWords)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Apply runs Categorize and writes the assignment's fields onto m
// in-place, matching the data model's "mutated by the categorizer ...
// within a tick" ownership rule.
func (c *Categorizer) Apply(m *domain.Market) {
	a := c.Categorize(m)
	m.Category = a.Category
	m.CategoryScore = a.CategoryScore
	m.IsBlacklisted = a.Blacklisted
}

// FilterByVolume returns the subset of markets that are not
// blacklisted and meet their category's minimum-volume threshold.
// Volume/threshold comparison uses exact decimal arithmetic so a
// market sitting precisely on a threshold boundary is never admitted
// or rejected by floating-point drift.
func (c *Categorizer) FilterByVolume(markets []*domain.Market) []*domain.Market {
	var out []*domain.Market
	for _, m := range markets {
		if m.IsBlacklisted {
			continue
		}
		threshold := c.thresholdFor(m.Category)
		volume := decimal.NewFromFloat(m.Volume)
		min := decimal.NewFromFloat(threshold)
		if volume.GreaterThanOrEqual(min) {
			out = append(out, m)
		}
	}
	return out
}
