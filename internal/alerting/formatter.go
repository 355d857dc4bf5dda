package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/marketsurveil/surveil/internal/domain"
	"github.com/marketsurveil/surveil/internal/ports"
)

const maxTitleLen = 200

var priorityColor = map[Priority]int{
	PriorityCritical: 0xE02424,
	PriorityHigh:     0xE8770E,
	PriorityMedium:   0xE8C60E,
	PriorityLow:      0x2E6FE8,
}

var priorityMarker = map[Priority]string{
	PriorityCritical: "🔴",
	PriorityHigh:     "🟠",
	PriorityMedium:   "🟡",
	PriorityLow:      "🔵",
}

// interpretationFor turns a signal's type and metadata into a
// plain-English sentence.
func interpretationFor(signal domain.Signal) string {
	switch signal.Type {
	case domain.SignalVolumeSpike:
		if m := signal.Metadata.VolumeSpike; m != nil {
			return fmt.Sprintf("Volume is running %.1fx above its recent baseline (%.0f vs %.0f).", m.SpikeMultiplier, m.CurrentVolume, m.BaselineVolume)
		}
	case domain.SignalPriceMovement:
		if m := signal.Metadata.PriceMovement; m != nil {
			return fmt.Sprintf("Outcome %q moved %.1f%% against a %.1f%% baseline expectation.", m.Outcome, m.DeltaPct, m.BaselineExpected)
		}
	case domain.SignalNewMarket:
		if m := signal.Metadata.NewMarket; m != nil {
			return fmt.Sprintf("New market already showing %.0f volume and an activity score of %.0f.", m.Volume, m.ActivityScore)
		}
	case domain.SignalActivity:
		if m := signal.Metadata.Activity; m != nil {
			return fmt.Sprintf("Activity score of %.0f exceeds the monitoring threshold.", m.ActivityScore)
		}
	case domain.SignalMicrostructure:
		if m := signal.Metadata.Microstructure; m != nil {
			if m.LiquidityVacuum {
				return "Order-book depth evaporated without a corresponding spread widening."
			}
			return "Order-book depth, spread, or imbalance has moved outside its normal range."
		}
	case domain.SignalCoordinatedMovement:
		if m := signal.Metadata.CoordinatedMovement; m != nil {
			return fmt.Sprintf("%d related markets in cluster %q moved together by an average of %.1f%%.", len(m.Members), m.ClusterID, m.AvgDeltaPct*100)
		}
	case domain.SignalFrontRunning:
		if m := signal.Metadata.FrontRunning; m != nil {
			return fmt.Sprintf("Microstructure pattern consistent with informed trading ahead of news, estimated %.0f minutes out.", m.TimeToNewsMins)
		}
	}
	return "Signal metadata unavailable for interpretation."
}

func severityIndicator(confidence float64) string {
	switch {
	case confidence >= 0.85:
		return "very high confidence"
	case confidence >= 0.65:
		return "high confidence"
	case confidence >= 0.4:
		return "moderate confidence"
	default:
		return "low confidence"
	}
}

var watchGuidance = map[domain.SignalType][]string{
	domain.SignalVolumeSpike:         {"Confirm the spike against exchange-wide volume.", "Watch for a follow-through price move in the next few minutes."},
	domain.SignalPriceMovement:       {"Check for a public news catalyst before treating this as informed flow."},
	domain.SignalNewMarket:           {"New markets can be thin; size positions conservatively until depth builds."},
	domain.SignalActivity:            {"Activity alone is weak evidence; cross-check with volume and price signals."},
	domain.SignalMicrostructure:      {"Liquidity withdrawal can precede a real move or simply reflect a maker stepping away.", "Re-check depth before treating this as actionable."},
	domain.SignalCoordinatedMovement: {"Coordinated moves across unrelated accounts are stronger evidence than a single market signal."},
	domain.SignalFrontRunning:        {"Treat as advisory: leakProbability is a model estimate, not confirmed information.", "Validate against realized news once it breaks."},
}

// FormatAlert builds the full notification payload for an approved
// alert. tracker may be nil; when non-nil and priority is CRITICAL or
// HIGH, the historical signal-type performance block is appended.
func FormatAlert(ctx context.Context, market *domain.Market, signal domain.Signal, priority Priority, healthScore float64, tracker ports.PerformanceTracker) ports.NotificationPayload {
	title := fmt.Sprintf("%s %s — %s", priorityMarker[priority], string(signal.Type), market.Question)
	if len(title) > maxTitleLen {
		const ellipsis = "…"
		cut := maxTitleLen - len(ellipsis)
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut] + ellipsis
	}

	fields := []ports.NotificationField{
		{Name: "Priority", Value: string(priority), Inline: true},
		{Name: "Opportunity Score", Value: fmt.Sprintf("%.1f", market.OpportunityScore), Inline: true},
		{Name: "Category", Value: firstNonEmpty(market.Category, "uncategorized"), Inline: true},
		{Name: "Tier", Value: string(market.Tier), Inline: true},
		{Name: "Confidence", Value: fmt.Sprintf("%.0f%% (%s)", signal.Confidence*100, severityIndicator(signal.Confidence)), Inline: true},
		{Name: "Market Health", Value: fmt.Sprintf("%.0f/100", healthScore), Inline: true},
		{Name: "Prices", Value: pricesSummary(market), Inline: false},
		{Name: "Interpretation", Value: interpretationFor(signal), Inline: false},
		{Name: "What to Watch", Value: strings.Join(watchGuidance[signal.Type], " "), Inline: false},
	}

	if (priority == PriorityCritical || priority == PriorityHigh) && tracker != nil {
		if stats, err := tracker.GetSignalTypeStats(ctx, signal.Type); err == nil && stats.N > 0 {
			fields = append(fields, ports.NotificationField{
				Name: "Historical Performance",
				Value: fmt.Sprintf(
					"n=%d accuracy=%.0f%% winRate=%.0f%% avgPnL1h=%.2f avgPnL24h=%.2f sharpe=%.2f kelly=%.2f posterior=%.0f%%",
					stats.N, stats.Accuracy*100, stats.WinRate*100, stats.AvgPnL1h, stats.AvgPnL24h, stats.Sharpe, stats.KellyFraction, stats.PosteriorConfidence*100,
				),
				Inline: false,
			})
		}
	}

	return ports.NotificationPayload{
		Title:       title,
		Color:       priorityColor[priority],
		Fields:      fields,
		URL:         marketURL(market),
		GeneratedAt: time.Now(),
	}
}

func pricesSummary(market *domain.Market) string {
	n := len(market.Outcomes)
	if n > 5 {
		n = 5
	}
	var parts []string
	for i := 0; i < n; i++ {
		price := 0.0
		if i < len(market.OutcomePrices) {
			price = market.OutcomePrices[i]
		}
		parts = append(parts, fmt.Sprintf("%s: %.2f", market.Outcomes[i], price))
	}
	return strings.Join(parts, ", ")
}

func marketURL(market *domain.Market) string {
	return "https://market-venue.example/markets/" + market.MarketID
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// FormatTestAlert renders a synthetic alert for the given priority so
// operators can verify webhook wiring and styling without waiting for
// a real signal.
func FormatTestAlert(priority Priority) ports.NotificationPayload {
	market := &domain.Market{
		MarketID:         "test-market",
		Question:         "Test alert: is the notification channel wired correctly?",
		Outcomes:         []string{"Yes", "No"},
		OutcomePrices:    []float64{0.5, 0.5},
		Volume:           10000,
		Category:         "politics_elections",
		CategoryScore:    2,
		Tier:             domain.TierActive,
		OpportunityScore: 65,
	}
	sig, _ := domain.NewSignal(market.MarketID, market, domain.SignalActivity, 0.75, time.Now(), domain.Metadata{
		Severity: domain.SeverityLow,
		Activity: &domain.ActivityMeta{ActivityScore: 75},
	})
	return FormatAlert(context.Background(), market, sig, priority, 100, nil)
}
