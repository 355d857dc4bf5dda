package stats

import "math"

// VolatilityResult bundles the volatility-family estimators:
// historical (close-to-close), EWMA (RiskMetrics
// lambda=0.94), Parkinson and Garman-Klass range estimators when
// high/low/open data is available, vol-of-vol, and the ratio of EWMA
// to historical (a regime-shift indicator).
type VolatilityResult struct {
	Historical  float64
	EWMA        float64
	Parkinson   float64
	GarmanKlass float64
	VolOfVol    float64
	Ratio       float64 // EWMA / Historical, 0 when Historical is 0
}

const ewmaVolLambda = 0.94

// Volatility computes the volatility family for marketID from a price
// series, plus optional high/low/open series of the same length used
// by the range-based estimators. Missing optional series are passed as
// nil or empty and their estimators are left at zero.
func (k *Kernel) Volatility(marketID string, prices, highs, lows, opens []float64) VolatilityResult {
	return volatilityOf(prices, highs, lows, opens)
}

func volatilityOf(prices, highs, lows, opens []float64) VolatilityResult {
	if len(prices) < 2 {
		return VolatilityResult{}
	}
	returns := logReturns(prices)
	hist := Statistics(returns).StdDev

	ewma := ewmaVolatility(returns, ewmaVolLambda)

	var parkinson, gk float64
	if len(highs) == len(prices) && len(lows) == len(prices) && len(prices) > 0 {
		parkinson = parkinsonVol(highs, lows)
	}
	if len(opens) == len(prices) && len(highs) == len(prices) && len(lows) == len(prices) {
		gk = garmanKlassVol(opens, highs, lows, prices)
	}

	volOfVol := volOfVolatility(returns)

	ratio := 0.0
	if hist > 0 {
		ratio = ewma / hist
	}

	return VolatilityResult{
		Historical:  hist,
		EWMA:        ewma,
		Parkinson:   parkinson,
		GarmanKlass: gk,
		VolOfVol:    volOfVol,
		Ratio:       ratio,
	}
}

func logReturns(prices []float64) []float64 {
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}

// ewmaVolatility computes the RiskMetrics-style EWMA variance estimate
// and returns its square root.
func ewmaVolatility(returns []float64, lambda float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	variance := returns[0] * returns[0]
	for _, r := range returns[1:] {
		variance = lambda*variance + (1-lambda)*r*r
	}
	return math.Sqrt(variance)
}

// parkinsonVol estimates volatility from the high-low range, which
// uses more information per bar than close-to-close returns.
func parkinsonVol(highs, lows []float64) float64 {
	n := len(highs)
	if n == 0 {
		return 0
	}
	const factor = 1.0 / (4 * math.Ln2)
	var sum float64
	valid := 0
	for i := 0; i < n; i++ {
		if highs[i] <= 0 || lows[i] <= 0 || highs[i] < lows[i] {
			continue
		}
		lr := math.Log(highs[i] / lows[i])
		sum += factor * lr * lr
		valid++
	}
	if valid == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(valid))
}

// garmanKlassVol extends Parkinson with open/close information.
func garmanKlassVol(opens, highs, lows, closes []float64) float64 {
	n := len(opens)
	if n == 0 {
		return 0
	}
	var sum float64
	valid := 0
	for i := 0; i < n; i++ {
		if opens[i] <= 0 || closes[i] <= 0 || highs[i] <= 0 || lows[i] <= 0 || highs[i] < lows[i] {
			continue
		}
		hl := math.Log(highs[i] / lows[i])
		co := math.Log(closes[i] / opens[i])
		sum += 0.5*hl*hl - (2*math.Ln2-1)*co*co
		valid++
	}
	if valid == 0 {
		return 0
	}
	mean := sum / float64(valid)
	if mean < 0 {
		return 0
	}
	return math.Sqrt(mean)
}

// volOfVolatility computes the standard deviation of a rolling
// volatility-of-volatility series: the dispersion of local volatility
// estimates across short sub-windows.
func volOfVolatility(returns []float64) float64 {
	const sub = 10
	if len(returns) < sub*2 {
		return 0
	}
	var vols []float64
	for i := 0; i+sub <= len(returns); i += sub {
		window := returns[i : i+sub]
		vols = append(vols, Statistics(window).StdDev)
	}
	return Statistics(vols).StdDev
}
