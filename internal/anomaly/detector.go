package anomaly

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/ringbuf"
	"github.com/marketsurveil/surveil/internal/stats"
)

const (
	defaultFeatureWindow = 256
	rebuildEvery         = 10
	univariateZThreshold = 2.5
)

var remediationTable = map[string][]string{
	"volume":      {"Cross-check against exchange-wide volume to rule out a reporting glitch.", "Confirm the spike isn't a single large print by reviewing the trade tape."},
	"depth":       {"Check whether liquidity providers pulled quotes ahead of a scheduled event.", "Widen the monitored spread tolerance if this market is known to be thin."},
	"spread":      {"Verify the quote feed isn't stale before treating a wide spread as signal."},
	"imbalance":   {"Compare against correlated markets for the same entity before acting.", "Imbalance alone is weak evidence; require a confirming price move."},
	"micro_price": {"Validate against the simple mid to rule out a one-sided quote artifact."},
	"volatility":  {"Check for a pending catalyst (debate, ruling, data release) that would explain elevated vol."},
	"isolation":   {"The feature combination is unusual even though no single feature stands out; review the raw vector before acting."},
	"multivariate": {"Multiple correlated features moved together; treat as stronger evidence than any single metric."},
	"systemic":     {"Escalate for manual review: several independent anomaly signals fired simultaneously.", "Consider whether this reflects a venue-wide event rather than market-specific activity."},
}

// perMarketState is the owned, mutex-guarded accumulator for one
// market's feature history, rolling covariance, and isolation forest.
type perMarketState struct {
	mu        sync.Mutex
	history   *ringbuf.Buffer[Feature]
	sinceBuild int
	mean      Feature
	sigma     matrix
	forest    *isolationForest
	rng       *rand.Rand
}

// Result is the full anomaly-detection outcome for one observation.
type Result struct {
	Univariate      float64
	MahalanobisNorm float64
	Isolation       float64
	Consensus       float64
	Anomalous       bool
	Severity        domain.Severity
	AnomalyTypes    []string
	Explanation     string
	RemediationHints []string
}

// Detector is the process-wide owner of per-market anomaly state,
// consuming z-scores from a shared stats.Kernel.
type Detector struct {
	kernel *stats.Kernel

	mu        sync.RWMutex
	threshold float64
	states    map[string]*perMarketState
}

// NewDetector constructs a Detector bound to kernel, using threshold as
// the consensus cutoff above which an observation is flagged
// anomalous.
func NewDetector(kernel *stats.Kernel, threshold float64) *Detector {
	if threshold <= 0 {
		threshold = 0.65
	}
	return &Detector{
		kernel:    kernel,
		threshold: threshold,
		states:    make(map[string]*perMarketState),
	}
}

// SetThreshold hot-swaps the consensus cutoff without touching any
// per-market covariance/forest state.
func (d *Detector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		threshold = 0.65
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.threshold = threshold
}

func (d *Detector) thresholdSnapshot() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

func (d *Detector) stateFor(marketID string) *perMarketState {
	d.mu.RLock()
	s, ok := d.states[marketID]
	d.mu.RUnlock()
	if ok {
		return s
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok = d.states[marketID]; ok {
		return s
	}
	s = &perMarketState{
		history: ringbuf.New[Feature](defaultFeatureWindow),
		rng:     rand.New(rand.NewSource(int64(len(marketID)) + 1)),
	}
	d.states[marketID] = s
	return s
}

// Observe feeds one feature vector for marketID at time t and returns
// the consensus anomaly result.
func (d *Detector) Observe(marketID string, f Feature, t time.Time) Result {
	// Feed volume, depth, spread, and imbalance into the shared kernel so
	// every kernel consumer and this detector see the same univariate
	// history; micro-price and its slope are not fed.
	d.kernel.AddDataPointAt(marketID, stats.MetricVolume, f[idxVolume], t)
	d.kernel.AddDataPointAt(marketID, stats.MetricDepth, f[idxDepth], t)
	d.kernel.AddDataPointAt(marketID, stats.MetricSpread, f[idxSpread], t)
	d.kernel.AddDataPointAt(marketID, stats.MetricImbalance, f[idxImbalance], t)

	st := d.stateFor(marketID)
	st.mu.Lock()
	st.history.Push(f)
	st.sinceBuild++
	history := st.history.All()
	rebuild := st.sinceBuild >= rebuildEvery && len(history) >= 2
	if rebuild {
		st.sinceBuild = 0
		st.mean = meanOf(history)
		st.sigma = covariance(history, st.mean)
		st.forest = buildIsolationForest(history, st.rng)
	}
	mean, sigma, forest := st.mean, st.sigma, st.forest
	st.mu.Unlock()

	// Univariate: time-adjusted z-scores per feature.
	zVolume := d.kernel.TimeAdjustedZScore(marketID, stats.MetricVolume, f[idxVolume], t)
	zDepth := d.kernel.TimeAdjustedZScore(marketID, stats.MetricDepth, f[idxDepth], t)
	zSpread := d.kernel.TimeAdjustedZScore(marketID, stats.MetricSpread, f[idxSpread], t)
	zImbalance := d.kernel.TimeAdjustedZScore(marketID, stats.MetricImbalance, f[idxImbalance], t)

	anomalousFeatures := []string{}
	zs := []stats.ZResult{zVolume, zDepth, zSpread, zImbalance}
	names := []string{"volume", "depth", "spread", "imbalance"}
	var maxZ float64
	for i, z := range zs {
		if absf(z.Z) > maxZ {
			maxZ = absf(z.Z)
		}
		if absf(z.Z) > univariateZThreshold {
			anomalousFeatures = append(anomalousFeatures, names[i])
		}
	}
	univariate := clamp01(maxZ / 5.0)

	var mahalanobisNorm float64
	var isolationScore float64
	if len(history) >= 2 {
		dist := mahalanobisDistance(f, mean, sigma)
		// Normalize by dims as a rough chi-square scale so the distance
		// lands near [0,1] for typical in-distribution points.
		mahalanobisNorm = clamp01(dist / (2 * float64(dims)))
		if forest != nil {
			isolationScore = forest.score(f, len(history))
		}
	}

	consensus := 0.4*univariate + 0.35*mahalanobisNorm + 0.25*isolationScore
	anomalous := consensus > d.thresholdSnapshot()

	anomalyTypes := []string{}
	if len(anomalousFeatures) == 1 {
		anomalyTypes = append(anomalyTypes, "single")
	} else if len(anomalousFeatures) >= 2 {
		anomalyTypes = append(anomalyTypes, "multi-feature")
	}
	if mahalanobisNorm > 0.5 {
		anomalyTypes = append(anomalyTypes, "multivariate")
	}
	if isolationScore > 0.6 {
		anomalyTypes = append(anomalyTypes, "isolation")
	}

	severity := domain.SeverityLow
	switch {
	case len(anomalyTypes) >= 3:
		severity = domain.SeverityCritical
	case contains(anomalyTypes, "multivariate"):
		severity = domain.SeverityHigh
	case contains(anomalyTypes, "multi-feature"):
		severity = domain.SeverityMedium
	case contains(anomalyTypes, "single"):
		severity = domain.SeverityLow
	}

	explanation, hints := explain(anomalyTypes, anomalousFeatures)

	return Result{
		Univariate:       univariate,
		MahalanobisNorm:  mahalanobisNorm,
		Isolation:        isolationScore,
		Consensus:        consensus,
		Anomalous:        anomalous,
		Severity:         severity,
		AnomalyTypes:     anomalyTypes,
		Explanation:      explanation,
		RemediationHints: hints,
	}
}

func explain(anomalyTypes, anomalousFeatures []string) (string, []string) {
	if len(anomalyTypes) == 0 {
		return "No anomaly detected: features are within historical norms.", nil
	}
	explanation := fmt.Sprintf("Anomaly types detected: %v.", anomalyTypes)
	if len(anomalousFeatures) > 0 {
		explanation += fmt.Sprintf(" Driven by: %v.", anomalousFeatures)
	}

	var hints []string
	for _, feat := range anomalousFeatures {
		hints = append(hints, remediationTable[feat]...)
	}
	if contains(anomalyTypes, "isolation") {
		hints = append(hints, remediationTable["isolation"]...)
	}
	if contains(anomalyTypes, "multivariate") {
		hints = append(hints, remediationTable["multivariate"]...)
	}
	if len(anomalyTypes) >= 3 {
		hints = append(hints, remediationTable["systemic"]...)
	}
	if len(hints) > 4 {
		hints = hints[:4]
	}
	return explanation, hints
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
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
