// Package adapters implements the reference port adapters: an
// in-memory catalog and store for tests and local runs, a
// gorilla/websocket order-book stream, HTTP catalog and webhook
// clients, and an optional Redis-backed store. None of these are
// imported by the statistical/decision core; only main wires them in,
// keeping internal/ports the only contract the core depends on.
package adapters

import (
	"context"
	"sort"
	"sync"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/ports"
)

// MemoryCatalog is a seedable in-memory MarketCatalog for tests and
// local runs without a venue API key.
type MemoryCatalog struct {
	mu      sync.RWMutex
	markets map[string]*domain.Market
}

// NewMemoryCatalog builds a catalog seeded with markets.
func NewMemoryCatalog(markets []*domain.Market) *MemoryCatalog {
	c := &MemoryCatalog{markets: make(map[string]*domain.Market, len(markets))}
	for _, m := range markets {
		c.markets[m.MarketID] = m
	}
	return c
}

// Seed replaces the catalog's market set wholesale, letting a test or
// a poller refresh the fake's contents between scan ticks.
func (c *MemoryCatalog) Seed(markets []*domain.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets = make(map[string]*domain.Market, len(markets))
	for _, m := range markets {
		c.markets[m.MarketID] = m
	}
}

func (c *MemoryCatalog) GetMarketsWithMinVolume(ctx context.Context, minVolume float64, maxMarkets int) ([]*domain.Market, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*domain.Market
	for _, m := range c.markets {
		if m.Volume >= minVolume {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })
	if maxMarkets > 0 && len(out) > maxMarkets {
		out = out[:maxMarkets]
	}
	return out, nil
}

func (c *MemoryCatalog) GetMarketByID(ctx context.Context, id string) (*domain.Market, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[id]
	if !ok {
		return nil, ports.Wrap(ports.KindDataShape, "memory_catalog.get_market", errMarketNotFound(id))
	}
	return m.Clone(), nil
}

func (c *MemoryCatalog) HealthCheck(ctx context.Context) (bool, string) {
	return true, "in-memory catalog"
}

type notFoundErr string

func (e notFoundErr) Error() string { return "market not found: " + string(e) }

func errMarketNotFound(id string) error { return notFoundErr(id) }

// MemoryStore is an in-memory PersistentStore: signals and price
// history live in process memory only, cleared on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	signals   []domain.Signal
	history   map[string][]float64
	backtests []ports.BacktestResult
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{history: make(map[string][]float64)}
}

func (s *MemoryStore) SaveSignal(ctx context.Context, signal domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, signal)
	return nil
}

func (s *MemoryStore) GetPriceHistory(ctx context.Context, marketID string, hours int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[marketID]
	n := hours
	if n <= 0 || n > len(h) {
		n = len(h)
	}
	out := make([]float64, n)
	copy(out, h[len(h)-n:])
	return out, nil
}

// RecordPrice appends a price observation for marketID, letting a
// poller build up the history GetPriceHistory later serves.
func (s *MemoryStore) RecordPrice(marketID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[marketID] = append(s.history[marketID], price)
}

func (s *MemoryStore) SaveBacktestResults(ctx context.Context, result ports.BacktestResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backtests = append(s.backtests, result)
	return nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) (bool, string) {
	return true, "in-memory store"
}

// Signals returns every signal saved so far, oldest first. Intended
// for tests and the debug HTTP surface, not the hot path.
func (s *MemoryStore) Signals() []domain.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Signal, len(s.signals))
	copy(out, s.signals)
	return out
}

// LogWebhook is a Webhook that records payloads in memory instead of
// posting them anywhere. The default when no webhook URL is
// configured, and the delivery double in tests.
type LogWebhook struct {
	mu       sync.Mutex
	payloads []ports.NotificationPayload
}

// NewLogWebhook builds an empty LogWebhook.
func NewLogWebhook() *LogWebhook {
	return &LogWebhook{}
}

// Send implements ports.Webhook; it always succeeds.
func (w *LogWebhook) Send(ctx context.Context, payload ports.NotificationPayload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.payloads = append(w.payloads, payload)
	return nil
}

// Sent returns a copy of every payload received so far.
func (w *LogWebhook) Sent() []ports.NotificationPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ports.NotificationPayload, len(w.payloads))
	copy(out, w.payloads)
	return out
}
