package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marketsurveil/surveil/internal/adapters"
	"github.com/marketsurveil/surveil/internal/config"
	"github.com/marketsurveil/surveil/internal/metrics"
	"github.com/marketsurveil/surveil/internal/orchestrator"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfgMgr := config.NewManager(config.Balanced())
	collector := metrics.NewCollector()
	orch := orchestrator.New(orchestrator.Deps{
		Catalog:   adapters.NewMemoryCatalog(nil),
		Store:     adapters.NewMemoryStore(),
		Webhook:   adapters.NewLogWebhook(),
		ConfigMgr: cfgMgr,
		Metrics:   collector,
	})
	if err := orch.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	server := NewServer(config.ServerConfig{CORSOrigins: []string{"*"}}, orch, cfgMgr, collector, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestMarketsEndpointEmpty(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Count int `json:"count"`
	}
	if status := getJSON(t, ts.URL+"/api/v1/markets", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body.Count != 0 {
		t.Errorf("count = %d, want 0", body.Count)
	}
}

func TestMarketEndpointNotFound(t *testing.T) {
	ts := newTestServer(t)
	if status := getJSON(t, ts.URL+"/api/v1/markets/nope", nil); status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestConfigEndpointReturnsSnapshot(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Preset string `json:"Preset"`
	}
	if status := getJSON(t, ts.URL+"/api/v1/config", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body.Preset != "balanced" {
		t.Errorf("preset = %q, want balanced", body.Preset)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	if status := getJSON(t, ts.URL+"/api/v1/health", nil); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
