package config

import (
	"testing"
	"time"
)

func TestBalancedPresetValidates(t *testing.T) {
	if err := Validate(Balanced()); err != nil {
		t.Fatalf("balanced preset should validate: %v", err)
	}
	for _, name := range []string{"conservative", "aggressive", "development"} {
		if err := Validate(presets[name]()); err != nil {
			t.Fatalf("%s preset should validate: %v", name, err)
		}
	}
}

func TestValidateRejectsBadClusterThreshold(t *testing.T) {
	c := Balanced()
	c.Cluster.MovementThreshold = 1.5
	if err := Validate(c); err == nil {
		t.Fatalf("expected rejection for out-of-range movement threshold")
	}
}

func TestValidateRejectsBadPriorityOrdering(t *testing.T) {
	c := Balanced()
	c.Alerting.Priority = PriorityThresholds{Critical: 50, High: 60, Medium: 40}
	if err := Validate(c); err == nil {
		t.Fatalf("expected rejection for priority ordering violation")
	}
}

func TestValidateRejectsBadWeightSum(t *testing.T) {
	c := Balanced()
	c.Scoring.VolumeWeight = 0.9
	if err := Validate(c); err == nil {
		t.Fatalf("expected rejection for weight sum out of range")
	}
}

func TestValidateRejectsLowVolumeMultiplier(t *testing.T) {
	c := Balanced()
	c.SignalDetect.VolumeSpikeMultiplier = 1.0
	if err := Validate(c); err == nil {
		t.Fatalf("expected rejection for volume multiplier <= 1.0")
	}
}

func TestValidateRejectsShortSignalWindow(t *testing.T) {
	c := Balanced()
	c.SignalDetect.DedupWindowSecs = 10
	if err := Validate(c); err == nil {
		t.Fatalf("expected rejection for signal window under 60s")
	}
}

func TestManagerUpdateRejectsAndKeepsPrior(t *testing.T) {
	m := NewManager(Balanced())
	bad := Balanced()
	bad.Scan.MinMarkets = 0
	if err := m.Update(bad); err == nil {
		t.Fatalf("expected rejection for minMarkets < 2")
	}
	if m.Current().Scan.MinMarkets != 2 {
		t.Fatalf("prior snapshot should be untouched after a rejected update")
	}
}

func TestManagerApplyPresetNotifiesSubscribers(t *testing.T) {
	m := NewManager(Balanced())
	got := make(chan Config, 1)
	m.OnConfigChange("test", func(v any) {
		got <- v.(Config)
	})
	if err := m.ApplyPreset("aggressive"); err != nil {
		t.Fatalf("apply preset: %v", err)
	}
	select {
	case cfg := <-got:
		if cfg.Preset != "aggressive" {
			t.Fatalf("expected aggressive preset notification, got %q", cfg.Preset)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber was not notified")
	}
	m.OffConfigChange("test")
}

func TestManagerApplyPresetUnknownNameRejected(t *testing.T) {
	m := NewManager(Balanced())
	if err := m.ApplyPreset("not-a-preset"); err == nil {
		t.Fatalf("expected rejection for unknown preset name")
	}
}

func TestLoadTOMLOverrideMissingFileReturnsBase(t *testing.T) {
	base := Balanced()
	out, err := LoadTOMLOverride(base, "/nonexistent/path/surveil.toml")
	if err != nil {
		t.Fatalf("missing override file should not error: %v", err)
	}
	if out.Scan.PeriodSecs != base.Scan.PeriodSecs {
		t.Fatalf("expected base config unchanged when override is absent")
	}
}

func TestAlertManagerConfigProjection(t *testing.T) {
	c := Balanced()
	amc := c.AlertManagerConfig()
	if amc.MinOpportunityScore != c.Alerting.MinOpportunityScore {
		t.Fatalf("projection mismatch on MinOpportunityScore")
	}
	if len(amc.HourlyLimits) != len(c.Alerting.RateLimits.MaxPerHour) {
		t.Fatalf("projection mismatch on HourlyLimits size")
	}
}
