// Package cluster implements the topic clusterer: fixed keyword
// clusters, market-to-cluster assignment by substring/word-boundary
// scoring, and coordinated cross-market movement detection. Clusters
// are plain Go maps of fixed phrases scored against market text.
package cluster

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
)

// Cluster is a fixed keyword group; membership is computed on demand
// from the current market set, not stored.
type Cluster struct {
	ID       string
	Keywords []string
}

// DefaultClusters mirrors the broad entity groupings a prediction
// market surveillance desk tracks day to day.
var DefaultClusters = []Cluster{
	{ID: "fed_policy", Keywords: []string{"federal reserve", "fed", "interest rate", "fomc", "powell", "rate cut", "rate hike"}},
	{ID: "us_elections", Keywords: []string{"election", "president", "senate", "congress", "governor", "primary", "electoral"}},
	{ID: "crypto_markets", Keywords: []string{"bitcoin", "btc", "ethereum", "eth", "crypto", "cryptocurrency", "coin"}},
	{ID: "equities", Keywords: []string{"stock", "s&p", "nasdaq", "dow", "earnings", "ipo"}},
	{ID: "geopolitics", Keywords: []string{"war", "invasion", "ceasefire", "sanctions", "treaty", "nato"}},
	{ID: "sports", Keywords: []string{"championship", "playoff", "super bowl", "world cup", "final", "tournament"}},
	{ID: "weather_climate", Keywords: []string{"hurricane", "storm", "temperature", "climate", "emissions"}},
}

const scoreThreshold = 1

// Clusterer assigns markets to fixed clusters and detects coordinated
// cross-market movement within a cluster.
type Clusterer struct {
	mu       sync.RWMutex
	clusters []Cluster
	theta    float64 // movement threshold, default 2%
}

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithClusters overrides the default cluster table.
func WithClusters(cs []Cluster) Option {
	return func(c *Clusterer) { c.clusters = cs }
}

// WithMovementThreshold overrides the default 2% coordinated-movement
// threshold.
func WithMovementThreshold(theta float64) Option {
	return func(c *Clusterer) { c.theta = theta }
}

// NewClusterer constructs a Clusterer over DefaultClusters unless
// overridden.
func NewClusterer(opts ...Option) *Clusterer {
	c := &Clusterer{clusters: DefaultClusters, theta: 0.02}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetMovementThreshold hot-swaps the coordinated-movement threshold
// without touching cluster membership.
func (c *Clusterer) SetMovementThreshold(theta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.theta = theta
}

// SetClusters hot-swaps the keyword cluster table.
func (c *Clusterer) SetClusters(cs []Cluster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clusters = cs
}

func (c *Clusterer) snapshot() ([]Cluster, float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clusters, c.theta
}

// score returns the keyword-hit score for one market against one
// cluster: substring hits anywhere in question+description, plus 2x
// exact word-boundary hits within the question alone.
func score(cl Cluster, question, description string) int {
	text := strings.ToLower(question + " " + description)
	q := strings.ToLower(question)
	total := 0
	for _, kw := range cl.Keywords {
		kwLower := strings.ToLower(kw)
		if strings.Contains(text, kwLower) {
			total++
		}
		if wordBoundaryMatch(q, kwLower) {
			total += 2
		}
	}
	return total
}

func wordBoundaryMatch(text, word string) bool {
	pattern := `\b` + regexp.QuoteMeta(word) + `\b`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

// AssignedClusters returns the IDs of every cluster market qualifies
// for: hits >= 1 AND score > scoreThreshold. A market may join
// multiple clusters.
func (c *Clusterer) AssignedClusters(m *domain.Market) []string {
	clusters, _ := c.snapshot()
	var ids []string
	for _, cl := range clusters {
		s := score(cl, m.Question, m.Description)
		if s >= 1 && s > scoreThreshold {
			ids = append(ids, cl.ID)
		}
	}
	return ids
}

// ClusterMembership tracks which markets belong to which clusters for
// a given scan tick, computed fresh each tick rather than persisted.
type ClusterMembership map[string][]string // clusterID -> marketIDs

// BuildMembership assigns every market in markets to its clusters.
func (c *Clusterer) BuildMembership(markets []*domain.Market) ClusterMembership {
	membership := make(ClusterMembership)
	for _, m := range markets {
		for _, id := range c.AssignedClusters(m) {
			membership[id] = append(membership[id], m.MarketID)
		}
	}
	return membership
}

// CorrelatedMarkets returns the union of every cluster marketID
// belongs to, minus marketID itself.
func (mb ClusterMembership) CorrelatedMarkets(marketID string, clusterOf func(string) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, clusterID := range clusterOf(marketID) {
		for _, member := range mb[clusterID] {
			if member == marketID || seen[member] {
				continue
			}
			seen[member] = true
			out = append(out, member)
		}
	}
	return out
}

// CoordinatedMovementResult reports a qualifying coordinated move
// within one cluster.
type CoordinatedMovementResult struct {
	ClusterID        string
	Members          []string
	AvgDeltaPct      float64
	CorrelationScore float64
}

// DetectCoordinatedMovement inspects clusterID's membership against a
// marketID -> priceDeltaPct map, retaining only members whose |delta|
// exceeds theta. Reports a result when at least 2 qualifying members
// share sign.
func (c *Clusterer) DetectCoordinatedMovement(mb ClusterMembership, clusterID string, deltas map[string]float64) (CoordinatedMovementResult, bool) {
	members := mb[clusterID]
	if len(members) == 0 {
		return CoordinatedMovementResult{}, false
	}

	_, theta := c.snapshot()

	var qualifying []string
	var sumDelta float64
	var positives, negatives int
	for _, marketID := range members {
		d, ok := deltas[marketID]
		if !ok || absDelta(d) <= theta {
			continue
		}
		qualifying = append(qualifying, marketID)
		sumDelta += d
		if d > 0 {
			positives++
		} else {
			negatives++
		}
	}

	if len(qualifying) < 2 {
		return CoordinatedMovementResult{}, false
	}
	if positives < 2 && negatives < 2 {
		return CoordinatedMovementResult{}, false
	}

	return CoordinatedMovementResult{
		ClusterID:        clusterID,
		Members:          qualifying,
		AvgDeltaPct:      sumDelta / float64(len(qualifying)),
		CorrelationScore: float64(len(qualifying)) / float64(len(members)),
	}, true
}

// EmitSignal builds the coordinated_cross_market signal for a detected
// result.
func EmitSignal(marketID string, market *domain.Market, result CoordinatedMovementResult, t time.Time) (domain.Signal, bool) {
	confidence := result.CorrelationScore
	meta := domain.Metadata{
		Severity: severityForCorrelation(result.CorrelationScore),
		CoordinatedMovement: &domain.CoordinatedMovementMeta{
			ClusterID:        result.ClusterID,
			Members:          result.Members,
			AvgDeltaPct:      result.AvgDeltaPct,
			CorrelationScore: result.CorrelationScore,
		},
	}
	return domain.NewSignal(marketID, market, domain.SignalCoordinatedMovement, confidence, t, meta)
}

func severityForCorrelation(score float64) domain.Severity {
	switch {
	case score >= 0.75:
		return domain.SeverityCritical
	case score >= 0.5:
		return domain.SeverityHigh
	case score >= 0.25:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func absDelta(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
