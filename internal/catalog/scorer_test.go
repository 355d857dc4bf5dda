package catalog

import (
	"testing"
	"time"

	"github.com/marketsurveil/surveil/internal/domain"
)

func TestWeightsValid(t *testing.T) {
	cfg := DefaultScoringConfig()
	if !cfg.WeightsValid() {
		t.Fatalf("default weights should sum to ~1")
	}
	cfg.VolumeWeight = 0.8
	if cfg.WeightsValid() {
		t.Fatalf("expected invalid weights to be rejected")
	}
}

func TestScoreClampsToRange(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())
	m := &domain.Market{
		MarketID:  "m1",
		Category:  "politics_elections",
		Volume:    40000,
		Outcomes:  []string{"yes", "no"},
		EndDate:   time.Now().Add(14 * 24 * time.Hour),
		CategoryScore: 3,
	}
	now := time.Now()
	b := s.Score(m, func(string) float64 { return 10000 }, 0.48, 0.50, now.Add(-10*24*time.Hour), now)
	if b.TotalScore < 0 || b.TotalScore > 100 {
		t.Fatalf("total score out of range: %v", b.TotalScore)
	}
	if m.OpportunityScore != b.TotalScore {
		t.Fatalf("expected Score to mutate market opportunity score")
	}
}

func TestCatalystScoreZeroOutsideWindow(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())
	cfg := DefaultScoringConfig()
	if got := s.catalystScore(cfg, 400*24*time.Hour); got != 0 {
		t.Fatalf("expected 0 beyond maxDaysToClose, got %v", got)
	}
	if got := s.catalystScore(cfg, 0); got != 0 {
		t.Fatalf("expected 0 below minDaysToClose, got %v", got)
	}
}

func TestAssignTierLadders(t *testing.T) {
	m := &domain.Market{OpportunityScore: 85}
	AssignTier(m, 70, 40)
	if m.Tier != domain.TierActive {
		t.Fatalf("expected ACTIVE, got %v", m.Tier)
	}

	m2 := &domain.Market{OpportunityScore: 42}
	AssignTier(m2, 70, 40)
	if m2.Tier != domain.TierWatchlist {
		t.Fatalf("expected WATCHLIST, got %v", m2.Tier)
	}

	m3 := &domain.Market{OpportunityScore: 10, IsBlacklisted: true}
	AssignTier(m3, 70, 40)
	if m3.Tier != domain.TierIgnored {
		t.Fatalf("expected IGNORED for blacklisted, got %v", m3.Tier)
	}
}
