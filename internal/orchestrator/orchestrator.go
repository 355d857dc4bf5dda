// Package orchestrator implements the bot orchestrator: the
// single-worker scan loop, the live order-book fan-in, the bounded
// per-priority delivery pipeline, hot config reload, and health
// aggregation that wire every other component together.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketsurveil/surveil/internal/alerting"
	"github.com/marketsurveil/surveil/internal/anomaly"
	"github.com/marketsurveil/surveil/internal/catalog"
	"github.com/marketsurveil/surveil/internal/cluster"
	"github.com/marketsurveil/surveil/internal/config"
	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/metrics"
	"github.com/marketsurveil/surveil/internal/microstructure"
	"github.com/marketsurveil/surveil/internal/ports"
	"github.com/marketsurveil/surveil/internal/ringbuf"
	"github.com/marketsurveil/surveil/internal/signaldetect"
	"github.com/marketsurveil/surveil/internal/stats"
)

const (
	snapshotHistoryDepth = 48 // ~24h of 30min-equivalent history at a generous cap
	deliveryQueueDepth   = 500
	subscriberID         = "orchestrator"
)

// Deps bundles every external collaborator the orchestrator wires
// in. Catalog, Store, and Webhook are required — Initialize reports a
// KindFatal error if any is nil. Tracker is optional and may be left
// nil (the formatter simply omits the historical-performance embed).
type Deps struct {
	Catalog  ports.MarketCatalog
	Stream   ports.OrderBookStream
	Store    ports.PersistentStore
	Webhook  ports.Webhook
	Tracker  ports.PerformanceTracker
	ConfigMgr *config.Manager
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// Orchestrator owns every stateful component instance and the
// goroutines that drive them: the scan loop, the order-book consumer,
// and one delivery worker per alert priority.
type Orchestrator struct {
	deps Deps
	log  *zap.Logger

	kernel       *stats.Kernel
	anomalyDet   *anomaly.Detector
	microAnalyzer *microstructure.Analyzer
	frontRun     *microstructure.FrontRunScorer
	clusterer    *cluster.Clusterer
	categorizer  *catalog.Categorizer
	scorer       *catalog.Scorer
	detector     *signaldetect.Detector
	alertMgr     *alerting.Manager

	mu            sync.RWMutex
	marketsByID   map[string]*domain.Market
	history       map[string]*ringbuf.Buffer[domain.MarketSnapshot]
	firstSeen     map[string]time.Time
	membership    cluster.ClusterMembership
	clusterOf     map[string][]string
	recentSignals *ringbuf.Buffer[domain.Signal]

	scanMu    sync.Mutex // serializes scan ticks; a slow tick is skipped, not queued
	scanEvery atomic64

	limiters map[alerting.Priority]*rate.Limiter
	queues   map[alerting.Priority]chan deliveryItem

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}

	startedAt time.Time
}

// atomic64 holds a time.Duration read/written under a dedicated
// mutex, letting a hot config update resize the scan period without
// racing the running ticker goroutine.
type atomic64 struct {
	mu sync.Mutex
	d  time.Duration
}

func (a *atomic64) set(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.d = d
}

func (a *atomic64) get() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.d
}

type deliveryItem struct {
	market   *domain.Market
	signal   domain.Signal
	decision alerting.Decision
}

// New constructs an Orchestrator wired against deps but does not start
// any goroutines — call Initialize then Start.
func New(deps Deps) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		deps:          deps,
		log:           log,
		recentSignals: ringbuf.New[domain.Signal](1000),
		marketsByID:   make(map[string]*domain.Market),
		history:     make(map[string]*ringbuf.Buffer[domain.MarketSnapshot]),
		firstSeen:   make(map[string]time.Time),
		clusterOf:   make(map[string][]string),
		limiters:    make(map[alerting.Priority]*rate.Limiter),
		queues:      make(map[alerting.Priority]chan deliveryItem),
		done:        make(chan struct{}),
	}
}

// Initialize validates required ports, builds every component
// instance from the config manager's current snapshot, and registers
// the hot-reload subscriber. Returns a KindFatal ports.Error if a
// required port is missing.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if o.deps.Catalog == nil {
		return ports.Wrap(ports.KindFatal, "orchestrator.initialize", fmt.Errorf("market catalog port is required"))
	}
	if o.deps.Store == nil {
		return ports.Wrap(ports.KindFatal, "orchestrator.initialize", fmt.Errorf("persistent store port is required"))
	}
	if o.deps.Webhook == nil {
		return ports.Wrap(ports.KindFatal, "orchestrator.initialize", fmt.Errorf("webhook port is required"))
	}
	if o.deps.ConfigMgr == nil {
		return ports.Wrap(ports.KindFatal, "orchestrator.initialize", fmt.Errorf("config manager is required"))
	}
	if o.deps.Metrics == nil {
		o.deps.Metrics = metrics.NewCollector()
	}

	cfg := o.deps.ConfigMgr.Current()

	o.kernel = stats.NewKernel(
		stats.WithWindow(cfg.Stats.WindowSize),
		stats.WithEWMAAlpha(cfg.Stats.EWMAAlpha),
		stats.WithMinSample(cfg.Stats.MinSample),
	)
	o.anomalyDet = anomaly.NewDetector(o.kernel, cfg.Anomaly.ConsensusThreshold)
	o.microAnalyzer = microstructure.NewAnalyzer(o.kernel)
	o.frontRun = microstructure.NewFrontRunScorer(o.kernel)
	o.clusterer = cluster.NewClusterer(cfg.ClusterOption())
	o.categorizer = catalog.NewCategorizer()
	o.categorizer.ApplyThresholds(cfg.Catalog.VolumeThresholds, cfg.Catalog.DefaultMinVolume)
	o.scorer = catalog.NewScorer(cfg.ScorerConfig())
	o.detector = signaldetect.NewDetector(cfg.SignalDetectorConfig())
	o.alertMgr = alerting.NewManager(cfg.AlertManagerConfig())

	o.scanEvery.set(time.Duration(cfg.Scan.PeriodSecs) * time.Second)
	o.rebuildLimiters(cfg)
	for p := range o.limiters {
		o.queues[p] = make(chan deliveryItem, deliveryQueueDepth)
	}

	o.deps.ConfigMgr.OnConfigChange(subscriberID, o.onConfigChange)

	o.log.Info("orchestrator initialized", zap.Int("scan_period_secs", cfg.Scan.PeriodSecs))
	return nil
}

// rebuildLimiters replaces the per-priority pacing limiters to match
// the current hourly caps, spread evenly across the hour so the
// limiter itself never becomes the bottleneck ahead of the alert
// manager's own hourly counter.
func (o *Orchestrator) rebuildLimiters(cfg config.Config) {
	for priority, perHour := range cfg.Alerting.RateLimits.MaxPerHour {
		p := alerting.Priority(priority)
		ratePerSec := float64(perHour) / 3600.0
		if ratePerSec <= 0 {
			ratePerSec = 0.01
		}
		burst := perHour / 10
		if burst < 1 {
			burst = 1
		}
		o.limiters[p] = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
}

// onConfigChange is invoked by config.Manager after a validated
// Update/ApplyPreset. It rebuilds only the tables each component
// governs, leaving dedup ledgers, cooldown maps, and per-market
// covariance/history untouched.
func (o *Orchestrator) onConfigChange(snapshot any) {
	cfg, ok := snapshot.(config.Config)
	if !ok {
		o.log.Warn("config change callback received unexpected snapshot type")
		return
	}

	o.categorizer.ApplyThresholds(cfg.Catalog.VolumeThresholds, cfg.Catalog.DefaultMinVolume)
	o.scorer.SetConfig(cfg.ScorerConfig())
	o.detector.SetConfig(cfg.SignalDetectorConfig())
	o.alertMgr.SetConfig(cfg.AlertManagerConfig())
	o.clusterer.SetMovementThreshold(cfg.Cluster.MovementThreshold)
	o.anomalyDet.SetThreshold(cfg.Anomaly.ConsensusThreshold)
	o.scanEvery.set(time.Duration(cfg.Scan.PeriodSecs) * time.Second)

	o.mu.Lock()
	o.rebuildLimiters(cfg)
	o.mu.Unlock()

	o.log.Info("config hot-reloaded", zap.String("preset", cfg.Preset))
}

// Start launches the scan loop, the order-book consumer, and one
// delivery worker per priority. Start returns once every goroutine has
// been launched; it does not block for their lifetime.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.startedAt = time.Now()

	for priority, queue := range o.queues {
		o.wg.Add(1)
		go o.deliveryWorker(runCtx, priority, queue)
	}

	if o.deps.Stream != nil {
		o.wg.Add(1)
		go o.runOrderBookConsumer(runCtx)
	}

	o.wg.Add(1)
	go o.runScanLoop(runCtx)

	o.log.Info("orchestrator started")
	return nil
}

// Stop cancels every background goroutine and waits up to
// graceShutdownSecs for delivery queues to drain before returning.
// Idempotent: calls after the first are no-ops.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.cancel == nil {
		return nil
	}
	o.stopOnce.Do(func() {
		cfg := o.deps.ConfigMgr.Current()
		grace := time.Duration(cfg.Scan.GraceShutdownSecs) * time.Second
		if grace <= 0 {
			grace = 5 * time.Second
		}

		o.cancel()

		waitCh := make(chan struct{})
		go func() {
			o.wg.Wait()
			close(waitCh)
		}()

		select {
		case <-waitCh:
			o.log.Info("orchestrator stopped cleanly")
		case <-time.After(grace):
			o.log.Warn("orchestrator shutdown grace period elapsed; some work may be unfinished")
		case <-ctx.Done():
			o.log.Warn("orchestrator shutdown aborted by caller context")
		}

		o.deps.ConfigMgr.OffConfigChange(subscriberID)
		close(o.done)
	})
	return nil
}

// runScanLoop runs one non-overlapping scan tick every scanEvery
// interval. A tick that is still running when the next would start is
// skipped entirely rather than queued: one worker, non-overlapping
// ticks, no queue build-up.
func (o *Orchestrator) runScanLoop(ctx context.Context) {
	defer o.wg.Done()
	timer := time.NewTimer(o.scanEvery.get())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			o.tryScanTick(ctx)
			timer.Reset(o.scanEvery.get())
		}
	}
}

func (o *Orchestrator) tryScanTick(ctx context.Context) {
	if !o.scanMu.TryLock() {
		o.log.Warn("scan tick skipped: previous tick still running")
		return
	}
	defer o.scanMu.Unlock()

	start := time.Now()
	if err := o.scanTick(ctx, start); err != nil {
		o.log.Error("scan tick failed", zap.Error(err))
		o.deps.Metrics.RecordError(start)
	}
	o.deps.Metrics.ScanDuration.WithLabelValues("full").Observe(time.Since(start).Seconds())
}

// scanTick runs the periodic pipeline: fetch -> categorize -> filter
// -> score -> assign tier -> detect signals -> detect coordinated
// cross-market movement -> evaluate and enqueue alerts -> sweep.
func (o *Orchestrator) scanTick(ctx context.Context, now time.Time) error {
	cfg := o.deps.ConfigMgr.Current()

	fetchCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	markets, err := o.deps.Catalog.GetMarketsWithMinVolume(fetchCtx, cfg.Scan.MinVolumeFloor, cfg.Scan.MaxMarkets)
	cancel()
	if err != nil {
		return ports.Wrap(ports.KindTransientIO, "scan_tick.fetch_markets", err)
	}
	if len(markets) < cfg.Scan.MinMarkets {
		o.log.Warn("catalog returned fewer markets than the configured floor",
			zap.Int("got", len(markets)), zap.Int("min", cfg.Scan.MinMarkets))
	}

	for _, m := range markets {
		o.categorizer.Apply(m)
	}
	surviving := o.categorizer.FilterByVolume(markets)

	byID := make(map[string]*domain.Market, len(surviving))
	for _, m := range surviving {
		threshold := o.categorizer.ThresholdFor(m.Category)
		bestBid, bestAsk := o.bestPrices(m)
		firstSeen := o.firstSeenFor(m.MarketID, now)
		o.scorer.Score(m, func(string) float64 { return threshold }, bestBid, bestAsk, firstSeen, now)
		catalog.AssignTier(m, cfg.Tier.ActiveThreshold, cfg.Tier.WatchlistThreshold)
		byID[m.MarketID] = m
	}

	o.mu.Lock()
	o.marketsByID = byID
	o.mu.Unlock()

	o.recordTierGauges(byID)

	membership := o.clusterer.BuildMembership(surviving)
	clusterOf := make(map[string][]string, len(surviving))
	for _, m := range surviving {
		clusterOf[m.MarketID] = o.clusterer.AssignedClusters(m)
	}
	o.mu.Lock()
	o.membership = membership
	o.clusterOf = clusterOf
	o.mu.Unlock()

	deltas := make(map[string]float64, len(surviving))
	for _, m := range surviving {
		snapshot, priceDeltas := o.buildSnapshot(m, now)
		hist := o.historyFor(m.MarketID)
		priorSnapshots := hist.All()
		hist.Push(snapshot)

		for _, sig := range o.detector.Detect(m, priorSnapshots, snapshot, now) {
			o.handleSignal(ctx, m, sig, now)
		}

		deltas[m.MarketID] = dominantSignedDelta(priceDeltas)
	}

	for clusterID := range membership {
		result, ok := o.clusterer.DetectCoordinatedMovement(membership, clusterID, deltas)
		if !ok {
			continue
		}
		for _, marketID := range result.Members {
			m, ok := byID[marketID]
			if !ok {
				continue
			}
			sig, ok := cluster.EmitSignal(marketID, m, result, now)
			if ok {
				o.handleSignal(ctx, m, sig, now)
			}
		}
	}

	o.alertMgr.Sweep(now)
	return nil
}

func (o *Orchestrator) recordTierGauges(byID map[string]*domain.Market) {
	counts := map[domain.Tier]int{domain.TierActive: 0, domain.TierWatchlist: 0, domain.TierIgnored: 0}
	for _, m := range byID {
		counts[m.Tier]++
	}
	for tier, n := range counts {
		o.deps.Metrics.MarketsTracked.WithLabelValues(string(tier)).Set(float64(n))
	}
}

// bestPrices approximates top-of-book bid/ask for the opportunity
// scorer from a market's first implied outcome price, so bid and ask
// are equal; live order-book data from the stream is not used here.
func (o *Orchestrator) bestPrices(m *domain.Market) (bestBid, bestAsk float64) {
	if len(m.OutcomePrices) == 0 {
		return 0, 0
	}
	return m.OutcomePrices[0], m.OutcomePrices[0]
}

func (o *Orchestrator) firstSeenFor(marketID string, now time.Time) time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.firstSeen[marketID]; ok {
		return t
	}
	o.firstSeen[marketID] = now
	return now
}

func (o *Orchestrator) historyFor(marketID string) *ringbuf.Buffer[domain.MarketSnapshot] {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.history[marketID]
	if !ok {
		h = ringbuf.New[domain.MarketSnapshot](snapshotHistoryDepth)
		o.history[marketID] = h
	}
	return h
}

// buildSnapshot derives per-outcome price-change percentages and an
// activity score from the prior snapshot for this market, if any.
// ActivityScore is a blend of volume change and average price
// movement, clamped to [0,100]; it is the only activity score a
// snapshot carries, as the venue catalog does not supply one.
func (o *Orchestrator) buildSnapshot(m *domain.Market, now time.Time) (domain.MarketSnapshot, map[string]float64) {
	hist := o.historyFor(m.MarketID)
	prior, hasPrior := hist.Latest()

	priceChangePct := make(map[string]float64, len(m.Outcomes))
	var volumeChangePct float64
	if hasPrior {
		if prior.Volume24h > 0 {
			volumeChangePct = (m.Volume - prior.Volume24h) / prior.Volume24h * 100
		}
		for i, outcome := range m.Outcomes {
			if i >= len(m.OutcomePrices) || i >= len(prior.Prices) || prior.Prices[i] == 0 {
				continue
			}
			priceChangePct[outcome] = (m.OutcomePrices[i] - prior.Prices[i]) / prior.Prices[i] * 100
		}
	}

	activity := clamp(absf(volumeChangePct)*0.5+avgAbsDelta(priceChangePct)*0.5, 0, 100)

	snapshot := domain.MarketSnapshot{
		MarketID:        m.MarketID,
		Timestamp:       now,
		Volume24h:       m.Volume,
		Prices:          append([]float64(nil), m.OutcomePrices...),
		PriceChangePct:  priceChangePct,
		ActivityScore:   activity,
		VolumeChangePct: volumeChangePct,
	}
	return snapshot, priceChangePct
}

// runOrderBookConsumer subscribes to the live order-book stream for
// every market currently tracked and feeds each update through the
// microstructure analyzer, the anomaly detector, and the front-running
// scorer. The subscription is rebuilt once per scan tick's worth of
// drift is tolerated by re-subscribing on stream error; the adapter
// itself owns reconnect/backoff policy.
func (o *Orchestrator) runOrderBookConsumer(ctx context.Context) {
	defer o.wg.Done()

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ch, err := o.deps.Stream.Subscribe(ctx, o.trackedMarketIDs())
		if err != nil {
			o.log.Warn("order book subscribe failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		o.drainOrderBooks(ctx, ch)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (o *Orchestrator) drainOrderBooks(ctx context.Context, ch <-chan *domain.OrderBook) {
	for {
		select {
		case <-ctx.Done():
			return
		case ob, ok := <-ch:
			if !ok {
				return
			}
			if ob == nil {
				continue
			}
			o.processOrderBook(ctx, ob)
		}
	}
}

func (o *Orchestrator) trackedMarketIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.marketsByID))
	for id := range o.marketsByID {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) processOrderBook(ctx context.Context, ob *domain.OrderBook) {
	o.mu.RLock()
	market, ok := o.marketsByID[ob.MarketID]
	correlated := o.membership.CorrelatedMarkets(ob.MarketID, func(id string) []string { return o.clusterOf[id] })
	clusterIDs := o.clusterOf[ob.MarketID]
	o.mu.RUnlock()
	if !ok {
		o.deps.Metrics.DataShapeErrors.WithLabelValues("order_book_unknown_market").Inc()
		return
	}

	now := ob.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	microMetrics, sig := o.microAnalyzer.Update(market, ob, now)
	if sig != nil {
		o.handleSignal(ctx, market, *sig, now)
	}

	feature := anomaly.NewFeature(market.Volume, microMetrics.Depth1, microMetrics.SpreadBps, microMetrics.Imbalance, microMetrics.MicroPrice, absf(microMetrics.MicroPriceSlope))
	anomalyResult := o.anomalyDet.Observe(ob.MarketID, feature, now)
	if anomalyResult.Anomalous {
		o.deps.Metrics.AnomaliesFlagged.WithLabelValues(string(anomalyResult.Severity)).Inc()
	}

	clusterID := ""
	if len(clusterIDs) > 0 {
		clusterID = clusterIDs[0]
	}
	frIn := microstructure.FrontRunInput{
		Metrics:           microMetrics,
		Market:            market,
		CorrelatedMarkets: correlated,
		ClusterID:         clusterID,
		Volume:            market.Volume,
		LocalHour:         now.UTC().Hour(),
	}
	frResult := o.frontRun.Score(frIn, now)
	if frResult.Signal != nil {
		o.handleSignal(ctx, market, *frResult.Signal, now)
	}
}

// handleSignal evaluates a signal against the alert manager's decision
// ladder and, if approved, enqueues it onto its priority's delivery
// channel (non-blocking; a full queue drops the item and bumps the
// queue_dropped counter).
func (o *Orchestrator) handleSignal(ctx context.Context, market *domain.Market, sig domain.Signal, now time.Time) {
	o.deps.Metrics.SignalsGenerated.WithLabelValues(string(sig.Type)).Inc()

	o.mu.Lock()
	o.recentSignals.Push(sig)
	o.mu.Unlock()

	decision := o.alertMgr.Evaluate(sig, market, now)
	if !decision.Approved {
		switch decision.Reason {
		case "rate_limited":
			o.deps.Metrics.AlertsRateLimited.WithLabelValues(string(decision.Priority)).Inc()
		case "cooldown":
			o.deps.Metrics.AlertsCooldown.WithLabelValues(string(decision.Priority)).Inc()
		default:
			o.deps.Metrics.AlertsFiltered.WithLabelValues(decision.Reason).Inc()
		}
		return
	}

	queue, ok := o.queues[decision.Priority]
	if !ok {
		o.log.Warn("no delivery queue for priority", zap.String("priority", string(decision.Priority)))
		return
	}

	select {
	case queue <- deliveryItem{market: market, signal: sig, decision: decision}:
	default:
		o.deps.Metrics.QueueDropped.WithLabelValues(string(decision.Priority)).Inc()
		o.log.Warn("delivery queue full, dropping alert", zap.String("priority", string(decision.Priority)), zap.String("market_id", market.MarketID))
		o.alertMgr.RecordAlert(market.MarketID, decision, sig, false, now)
	}
}

// deliveryWorker is the one-worker-per-priority pipeline: pace via the
// priority's rate.Limiter, format, deliver with retry, persist, and
// record the outcome back onto the alert manager.
func (o *Orchestrator) deliveryWorker(ctx context.Context, priority alerting.Priority, queue chan deliveryItem) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			o.drainRemaining(queue)
			return
		case item, ok := <-queue:
			if !ok {
				return
			}
			o.deliver(ctx, priority, item)
		}
	}
}

// drainRemaining records the remaining queued items as un-sent so the
// hourly counter and cooldown bookkeeping never advance for alerts
// that were never actually delivered during shutdown.
func (o *Orchestrator) drainRemaining(queue chan deliveryItem) {
	for {
		select {
		case item, ok := <-queue:
			if !ok {
				return
			}
			o.alertMgr.RecordAlert(item.market.MarketID, item.decision, item.signal, false, time.Now())
		default:
			return
		}
	}
}

func (o *Orchestrator) deliver(ctx context.Context, priority alerting.Priority, item deliveryItem) {
	o.mu.RLock()
	limiter := o.limiters[priority]
	o.mu.RUnlock()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return // context cancelled while waiting our turn
		}
	}

	healthScore := o.kernel.MarketHealthScore(item.market.MarketID)
	payload := alerting.FormatAlert(ctx, item.market, item.signal, priority, healthScore, o.deps.Tracker)

	start := time.Now()
	sent := alerting.Deliver(ctx, o.deps.Webhook, payload)
	outcome := "failure"
	if sent {
		outcome = "success"
	}
	o.deps.Metrics.WebhookLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if sent {
		o.deps.Metrics.AlertsSent.WithLabelValues(string(priority)).Inc()
		if err := o.deps.Store.SaveSignal(ctx, item.signal); err != nil {
			o.log.Warn("save signal failed", zap.Error(err), zap.String("market_id", item.market.MarketID))
			o.deps.Metrics.RecordError(time.Now())
		}
	}

	o.alertMgr.RecordAlert(item.market.MarketID, item.decision, item.signal, sent, time.Now())
}

// HealthStatus is the aggregate view Health returns for the debug
// surface and operator tooling.
type HealthStatus struct {
	Overall          metrics.Level
	CatalogHealthy   bool
	CatalogDetails   string
	StoreHealthy     bool
	StoreDetails     string
	AvgMarketHealth  float64
	ErrorsPerMinute  int
	TrackedMarkets   int
	UptimeSeconds    float64
}

// Health aggregates port health checks, the error-rate window, and a
// kernel-derived average market health score into one status for the
// debug HTTP surface and operator CLI.
func (o *Orchestrator) Health(ctx context.Context) HealthStatus {
	catalogHealthy, catalogDetails := o.deps.Catalog.HealthCheck(ctx)
	storeHealthy, storeDetails := o.deps.Store.HealthCheck(ctx)

	o.mu.RLock()
	ids := make([]string, 0, len(o.marketsByID))
	for id := range o.marketsByID {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	var total float64
	for _, id := range ids {
		total += o.kernel.MarketHealthScore(id)
	}
	avg := 100.0 // no tracked markets is idle, not unhealthy
	if len(ids) > 0 {
		avg = total / float64(len(ids))
	}

	errRate := o.deps.Metrics.ErrorsPerMinute()
	o.deps.Metrics.HealthScore.Set(avg)
	o.deps.Metrics.RefreshUptime(time.Now())

	overall := metrics.Check("health_score", avg)
	if errLevel := metrics.Check("error_rate_per_min", float64(errRate)); levelRank(errLevel) > levelRank(overall) {
		overall = errLevel
	}
	if !catalogHealthy || !storeHealthy {
		overall = metrics.LevelCritical
	}

	return HealthStatus{
		Overall:         overall,
		CatalogHealthy:  catalogHealthy,
		CatalogDetails:  catalogDetails,
		StoreHealthy:    storeHealthy,
		StoreDetails:    storeDetails,
		AvgMarketHealth: avg,
		ErrorsPerMinute: errRate,
		TrackedMarkets:  len(ids),
		UptimeSeconds:   time.Since(o.startedAt).Seconds(),
	}
}

// Markets returns a snapshot copy of every market currently tracked,
// for the debug HTTP surface. Order is unspecified.
func (o *Orchestrator) Markets() []*domain.Market {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*domain.Market, 0, len(o.marketsByID))
	for _, m := range o.marketsByID {
		out = append(out, m.Clone())
	}
	return out
}

// Market returns the tracked market with id, or nil if unknown.
func (o *Orchestrator) Market(id string) *domain.Market {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.marketsByID[id]
	if !ok {
		return nil
	}
	return m.Clone()
}

// RecentSignals returns the last signals emitted, oldest first, capped
// at the retention ring's size.
func (o *Orchestrator) RecentSignals() []domain.Signal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.recentSignals.All()
}

// AlertHistory returns the retained alert records for marketID.
func (o *Orchestrator) AlertHistory(marketID string) []alerting.AlertRecord {
	return o.alertMgr.History(marketID)
}

func levelRank(l metrics.Level) int {
	switch l {
	case metrics.LevelCritical:
		return 2
	case metrics.LevelWarn:
		return 1
	default:
		return 0
	}
}

func avgAbsDelta(deltas map[string]float64) float64 {
	if len(deltas) == 0 {
		return 0
	}
	var sum float64
	for _, d := range deltas {
		sum += absf(d)
	}
	return sum / float64(len(deltas))
}

// dominantSignedDelta picks the outcome with the largest absolute
// price move and returns its signed value as a fraction (not a
// percent), matching the scale DetectCoordinatedMovement's theta is
// expressed in. Averaging signed deltas across a market's outcomes
// would cancel toward zero since complementary outcome prices move in
// opposite directions; the dominant outcome's move is what a
// coordinated cross-market swing actually looks like.
func dominantSignedDelta(priceChangePct map[string]float64) float64 {
	var dominant float64
	for _, d := range priceChangePct {
		if absf(d) > absf(dominant) {
			dominant = d
		}
	}
	return dominant / 100
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
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
