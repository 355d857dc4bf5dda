package catalog

import (
	"testing"

	"github.com/marketsurveil/surveil/internal/domain"
)

func TestCategorizeAssignsHighestScoringCategory(t *testing.T) {
	c := NewCategorizer()
	m := &domain.Market{
		MarketID: "m1",
		Question: "Will the Federal Reserve cut interest rates in March?",
	}
	a := c.Categorize(m)
	if a.Category != "fed_policy" {
		t.Fatalf("expected fed_policy, got %q (score %d)", a.Category, a.CategoryScore)
	}
	if a.Blacklisted {
		t.Fatalf("expected not blacklisted")
	}
}

func TestBlacklistCryptoPriceWithoutCatalyst(t *testing.T) {
	c := NewCategorizer()
	m := &domain.Market{
		MarketID: "m2",
		Question: "Will Bitcoin hit $100,000 in 2025?",
	}
	a := c.Categorize(m)
	if !a.Blacklisted {
		t.Fatalf("expected blacklisted")
	}
}

func TestCryptoWithCatalystNotBlacklisted(t *testing.T) {
	c := NewCategorizer()
	m := &domain.Market{
		MarketID: "m3",
		Question: "Will the SEC approve a spot Ethereum ETF by June?",
	}
	a := c.Categorize(m)
	if a.Blacklisted {
		t.Fatalf("expected not blacklisted, catalyst present")
	}
}

func TestFilterByVolumeExcludesBlacklistedAndThin(t *testing.T) {
	c := NewCategorizer()
	c.ApplyThresholds(map[string]float64{"sports": 2000}, 1000)

	markets := []*domain.Market{
		{MarketID: "thin", Category: "sports", Volume: 500},
		{MarketID: "ok", Category: "sports", Volume: 5000},
		{MarketID: "bl", Category: "sports", Volume: 5000, IsBlacklisted: true},
	}
	out := c.FilterByVolume(markets)
	if len(out) != 1 || out[0].MarketID != "ok" {
		t.Fatalf("expected only 'ok' to survive, got %+v", out)
	}
}

func TestApplyMutatesMarketInPlace(t *testing.T) {
	c := NewCategorizer()
	m := &domain.Market{MarketID: "m4", Question: "Will the Senate pass the budget bill?"}
	c.Apply(m)
	if m.Category == "" {
		t.Fatalf("expected a category to be assigned")
	}
}
