package metrics

import (
	"testing"
	"time"
)

func TestCheckThresholdLadders(t *testing.T) {
	if Check("error_rate_per_min", 1) != LevelOK {
		t.Fatalf("expected OK at low error rate")
	}
	if Check("error_rate_per_min", 10) != LevelWarn {
		t.Fatalf("expected WARN at 10/min")
	}
	if Check("error_rate_per_min", 25) != LevelCritical {
		t.Fatalf("expected CRITICAL at 25/min")
	}
}

func TestCheckInvertedMetric(t *testing.T) {
	if Check("health_score", 90) != LevelOK {
		t.Fatalf("expected OK at high health score")
	}
	if Check("health_score", 60) != LevelWarn {
		t.Fatalf("expected WARN at health score 60")
	}
	if Check("health_score", 40) != LevelCritical {
		t.Fatalf("expected CRITICAL at health score 40")
	}
}

func TestCheckUnknownMetricIsOK(t *testing.T) {
	if Check("not_a_real_metric", 1e9) != LevelOK {
		t.Fatalf("expected OK for unregistered metric")
	}
}

func TestErrorsPerMinuteSlidingWindow(t *testing.T) {
	c := NewCollector()
	base := time.Now()
	c.RecordError(base.Add(-90 * time.Second))
	c.RecordError(base.Add(-30 * time.Second))
	c.RecordError(base)
	if got := c.ErrorsPerMinute(); got != 2 {
		t.Fatalf("expected 2 errors in trailing minute, got %d", got)
	}
}
