package alerting

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marketsurveil/surveil/internal/domain"
)

// Config holds every threshold the alert manager's decision ladder
// checks against.
type Config struct {
	Enabled             bool
	MinOpportunityScore float64
	MinCategoryScore    int
	HourlyLimits        map[Priority]int
	Cooldowns           map[Priority]time.Duration
}

// DefaultConfig returns the standard decision-ladder thresholds.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		MinOpportunityScore: 20,
		MinCategoryScore:    1,
		HourlyLimits: map[Priority]int{
			PriorityCritical: 20,
			PriorityHigh:     40,
			PriorityMedium:   80,
			PriorityLow:      160,
		},
		Cooldowns: map[Priority]time.Duration{
			PriorityCritical: 30 * time.Minute,
			PriorityHigh:     60 * time.Minute,
			PriorityMedium:   120 * time.Minute,
			PriorityLow:      240 * time.Minute,
		},
	}
}

// Decision is the outcome of running a signal through the 8-step
// sequence. Reason is one of: "disabled", "filtered:<cause>",
// "rate_limited", "cooldown", "approved".
type Decision struct {
	Approved      bool
	Priority      Priority
	AdjustedScore float64
	Reason        string
}

// AlertRecord is one persisted delivery attempt, regardless of
// whether the webhook call itself succeeded.
type AlertRecord struct {
	ID        string
	MarketID  string
	Priority  Priority
	Signal    domain.Signal
	Sent      bool
	Timestamp time.Time
}

type hourlyCounter struct {
	count       int
	windowStart time.Time
}

// Manager is the process-wide alert manager.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	hourly   map[Priority]*hourlyCounter
	cooldown map[string]time.Time // key: marketID + "\x00" + priority
	history  map[string][]AlertRecord
}

// NewManager constructs a Manager with cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		hourly:   make(map[Priority]*hourlyCounter),
		cooldown: make(map[string]time.Time),
		history:  make(map[string][]AlertRecord),
	}
}

// SetConfig hot-swaps the decision-ladder thresholds without touching
// the hourly counters, cooldown map, or history — a config change
// rebuilds only the thresholds it governs, running state survives.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

func cooldownKey(marketID string, p Priority) string {
	return marketID + "\x00" + string(p)
}

// Evaluate runs the 8-step sequence for one signal against its
// market's current derived fields, without mutating any state —
// RecordAlert performs the stateful side effects after delivery is
// attempted.
func (m *Manager) Evaluate(signal domain.Signal, market *domain.Market, t time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.cfg

	if !cfg.Enabled {
		return Decision{Approved: false, Priority: PriorityLow, Reason: "disabled"}
	}

	if market.IsBlacklisted {
		return Decision{Approved: false, Reason: "filtered:blacklisted"}
	}
	if market.OpportunityScore < cfg.MinOpportunityScore {
		return Decision{Approved: false, Reason: "filtered:min_opportunity"}
	}
	if market.CategoryScore < cfg.MinCategoryScore {
		return Decision{Approved: false, Reason: "filtered:min_category"}
	}
	if market.Tier == domain.TierIgnored {
		return Decision{Approved: false, Reason: "filtered:tier_ignored"}
	}

	adjustedScore := market.OpportunityScore + tierBoost(market.Tier)
	if adjustedScore > 100 {
		adjustedScore = 100
	}
	if adjustedScore < 0 {
		adjustedScore = 0
	}

	priority := priorityFor(adjustedScore)

	if !priority.atLeast(tierMinimum(market.Tier)) {
		return Decision{Approved: false, Priority: priority, AdjustedScore: adjustedScore, Reason: "filtered:tier_minimum"}
	}

	if m.rateLimitedLocked(priority, t) {
		return Decision{Approved: false, Priority: priority, AdjustedScore: adjustedScore, Reason: "rate_limited"}
	}
	if last, ok := m.cooldown[cooldownKey(market.MarketID, priority)]; ok {
		if t.Sub(last) < cfg.Cooldowns[priority] {
			return Decision{Approved: false, Priority: priority, AdjustedScore: adjustedScore, Reason: "cooldown"}
		}
	}

	return Decision{Approved: true, Priority: priority, AdjustedScore: adjustedScore, Reason: "approved"}
}

func (m *Manager) rateLimitedLocked(p Priority, t time.Time) bool {
	c, ok := m.hourly[p]
	if !ok {
		return false
	}
	if t.Sub(c.windowStart) >= time.Hour {
		return false // window has expired; RecordAlert will reset it
	}
	return c.count >= m.cfg.HourlyLimits[p]
}

// RecordAlert appends to per-market history on every call; the hourly
// counter and the cooldown map advance only when sent is true. Called
// after a delivery attempt regardless of whether the webhook call
// itself succeeded.
func (m *Manager) RecordAlert(marketID string, d Decision, signal domain.Signal, sent bool, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[marketID] = append(m.history[marketID], AlertRecord{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		Priority:  d.Priority,
		Signal:    signal,
		Sent:      sent,
		Timestamp: t,
	})

	if sent {
		c, ok := m.hourly[d.Priority]
		if !ok || t.Sub(c.windowStart) >= time.Hour {
			c = &hourlyCounter{count: 0, windowStart: t}
			m.hourly[d.Priority] = c
		}
		c.count++

		m.cooldown[cooldownKey(marketID, d.Priority)] = t
	}
}

// History returns the retained alert history for marketID.
func (m *Manager) History(marketID string) []AlertRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AlertRecord, len(m.history[marketID]))
	copy(out, m.history[marketID])
	return out
}

// Sweep drops history older than 24h and cooldown entries whose
// elapsed time has exceeded their priority's cooldown. Intended to run
// hourly from the orchestrator's scan loop.
func (m *Manager) Sweep(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for marketID, records := range m.history {
		var kept []AlertRecord
		for _, r := range records {
			if t.Sub(r.Timestamp) < 24*time.Hour {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(m.history, marketID)
		} else {
			m.history[marketID] = kept
		}
	}

	for key, last := range m.cooldown {
		// key is marketID + \x00 + priority; recover the priority suffix.
		p := priorityFromKey(key)
		if t.Sub(last) >= m.cfg.Cooldowns[p] {
			delete(m.cooldown, key)
		}
	}
}

func priorityFromKey(key string) Priority {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == 0 {
			return Priority(key[i+1:])
		}
	}
	return PriorityLow
}
