package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/marketsurveil/surveil/internal/adapters"
	"github.com/marketsurveil/surveil/internal/config"
	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/metrics"
	"github.com/marketsurveil/surveil/internal/ports"
)

func testMarket(volume float64, endDate time.Time) *domain.Market {
	return &domain.Market{
		MarketID:      "mkt-pres",
		Question:      "Will the Democratic candidate win the presidential election?",
		Description:   "Resolves YES if the Democratic candidate wins.",
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.55, 0.45},
		Volume:        volume,
		Active:        true,
		EndDate:       endDate,
	}
}

type testHarness struct {
	orch    *Orchestrator
	catalog *adapters.MemoryCatalog
	store   *adapters.MemoryStore
	webhook *adapters.LogWebhook
	cfgMgr  *config.Manager
}

func newTestHarness(t *testing.T, markets []*domain.Market) *testHarness {
	t.Helper()

	cfgMgr := config.NewManager(config.Balanced())
	catalog := adapters.NewMemoryCatalog(markets)
	store := adapters.NewMemoryStore()
	webhook := adapters.NewLogWebhook()

	orch := New(Deps{
		Catalog:   catalog,
		Store:     store,
		Webhook:   webhook,
		ConfigMgr: cfgMgr,
		Metrics:   metrics.NewCollector(),
	})
	if err := orch.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return &testHarness{orch: orch, catalog: catalog, store: store, webhook: webhook, cfgMgr: cfgMgr}
}

// drainAndDeliver empties every priority queue through the delivery
// path synchronously, standing in for the per-priority workers Start
// would launch.
func (h *testHarness) drainAndDeliver(ctx context.Context) {
	for priority, queue := range h.orch.queues {
		draining := true
		for draining {
			select {
			case item := <-queue:
				h.orch.deliver(ctx, priority, item)
			default:
				draining = false
			}
		}
	}
}

func TestInitializeRequiresPorts(t *testing.T) {
	orch := New(Deps{ConfigMgr: config.NewManager(config.Balanced())})
	err := orch.Initialize(context.Background())
	if err == nil {
		t.Fatal("expected initialize to fail without required ports")
	}
	if !ports.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestScanTickVolumeSpikeEndToEnd(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	endDate := base.Add(14 * 24 * time.Hour)

	h := newTestHarness(t, []*domain.Market{testMarket(10000, endDate)})

	// Ten baseline ticks at steady volume build snapshot history.
	for i := 0; i < 10; i++ {
		if err := h.orch.scanTick(ctx, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("baseline tick %d: %v", i, err)
		}
	}

	// 5x volume on the next tick.
	h.catalog.Seed([]*domain.Market{testMarket(50000, endDate)})
	spikeAt := base.Add(40 * time.Minute) // outside the dedup window of the earlier ticks
	if err := h.orch.scanTick(ctx, spikeAt); err != nil {
		t.Fatalf("spike tick: %v", err)
	}

	var spikes []domain.Signal
	for _, sig := range h.orch.RecentSignals() {
		if sig.Type == domain.SignalVolumeSpike {
			spikes = append(spikes, sig)
		}
	}
	if len(spikes) != 1 {
		t.Fatalf("expected exactly one volume_spike signal, got %d", len(spikes))
	}

	spike := spikes[0]
	meta := spike.Metadata.VolumeSpike
	if meta == nil {
		t.Fatal("volume_spike signal missing typed metadata")
	}
	if meta.CurrentVolume != 50000 {
		t.Errorf("currentVolume = %v, want 50000", meta.CurrentVolume)
	}
	if meta.SpikeMultiplier < 4.9 || meta.SpikeMultiplier > 5.1 {
		t.Errorf("spikeMultiplier = %v, want ~5.0", meta.SpikeMultiplier)
	}
	if spike.Confidence <= 0.5 {
		t.Errorf("confidence = %v, want > 0.5", spike.Confidence)
	}

	// The approved alert flows through delivery: webhook called, signal
	// persisted, history recorded.
	h.drainAndDeliver(ctx)
	if len(h.webhook.Sent()) == 0 {
		t.Fatal("expected at least one webhook delivery")
	}
	persisted := h.store.Signals()
	var sawSpike bool
	for _, s := range persisted {
		if s.Type == domain.SignalVolumeSpike {
			sawSpike = true
		}
	}
	if !sawSpike {
		t.Error("volume_spike signal was not persisted")
	}
	if len(h.orch.AlertHistory("mkt-pres")) == 0 {
		t.Error("expected alert history for the spiking market")
	}
}

func TestScanTickIdempotentOnUnchangedInput(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	endDate := base.Add(14 * 24 * time.Hour)

	h := newTestHarness(t, []*domain.Market{testMarket(10000, endDate)})

	if err := h.orch.scanTick(ctx, base); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	countAfterFirst := len(h.orch.RecentSignals())

	// Unchanged input inside the dedup window: no new signals.
	if err := h.orch.scanTick(ctx, base.Add(time.Minute)); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if got := len(h.orch.RecentSignals()); got != countAfterFirst {
		t.Errorf("signal count changed on unchanged input: %d -> %d", countAfterFirst, got)
	}
}

func TestBlacklistedMarketNeverSignals(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	m := &domain.Market{
		MarketID:      "mkt-btc",
		Question:      "Will Bitcoin hit $100,000 in 2025?",
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.4, 0.6},
		Volume:        500000,
		Active:        true,
		EndDate:       base.Add(30 * 24 * time.Hour),
	}
	h := newTestHarness(t, []*domain.Market{m})

	for i := 0; i < 5; i++ {
		if err := h.orch.scanTick(ctx, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if got := len(h.orch.RecentSignals()); got != 0 {
		t.Fatalf("blacklisted market emitted %d signals, want 0", got)
	}
	if markets := h.orch.Markets(); len(markets) != 0 {
		t.Fatalf("blacklisted market survived the volume filter: %d tracked", len(markets))
	}
}

func TestHotConfigReloadPreservesRunningState(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	endDate := base.Add(14 * 24 * time.Hour)

	h := newTestHarness(t, []*domain.Market{testMarket(10000, endDate)})
	for i := 0; i < 3; i++ {
		if err := h.orch.scanTick(ctx, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	before := len(h.orch.RecentSignals())

	next := h.cfgMgr.Current()
	next.Scan.PeriodSecs = 120
	next.SignalDetect.VolumeSpikeMultiplier = 4.0
	if err := h.cfgMgr.Update(next); err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := h.orch.scanEvery.get(); got != 120*time.Second {
		t.Errorf("scan period not reloaded: %v", got)
	}
	// Snapshot history survives the reload: another tick still sees the
	// accumulated baseline rather than starting from empty.
	if err := h.orch.scanTick(ctx, base.Add(5*time.Minute)); err != nil {
		t.Fatalf("post-reload tick: %v", err)
	}
	if got := len(h.orch.RecentSignals()); got < before {
		t.Errorf("signal ledger reset on config reload: %d -> %d", before, got)
	}

	// Invalid updates are rejected wholesale and leave the running
	// config untouched.
	bad := h.cfgMgr.Current()
	bad.SignalDetect.VolumeSpikeMultiplier = 0.5
	if err := h.cfgMgr.Update(bad); err == nil {
		t.Fatal("expected invalid update to be rejected")
	}
	if got := h.cfgMgr.Current().SignalDetect.VolumeSpikeMultiplier; got != 4.0 {
		t.Errorf("rejected update mutated config: multiplier = %v", got)
	}
}

func TestStartStopIsClean(t *testing.T) {
	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	h := newTestHarness(t, []*domain.Market{testMarket(10000, base.Add(24*time.Hour))})

	ctx := context.Background()
	if err := h.orch.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.orch.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop is idempotent.
	if err := h.orch.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestHealthAggregation(t *testing.T) {
	base := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	h := newTestHarness(t, []*domain.Market{testMarket(10000, base.Add(24*time.Hour))})

	health := h.orch.Health(context.Background())
	if !health.CatalogHealthy || !health.StoreHealthy {
		t.Fatalf("in-memory ports reported unhealthy: %+v", health)
	}
	if health.Overall == metrics.LevelCritical {
		t.Fatalf("fresh orchestrator reports critical health: %+v", health)
	}
}
