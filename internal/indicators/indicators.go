// Package indicators implements the technical indicators the scanner caches
// and the playbook evaluators read (spec.md §4.1, §4.2). Grounded on the
// teacher's indicators.go (SMA/RSI/ZScore) and strategy.go (EMA/MACD/OBV/
// RollingStd), generalized from the teacher's single-product loop to the
// scanner's per-symbol candle slices.
package indicators

import (
	"math"

	"spotengine/internal/marketdata"
)

// SMA returns the n-period simple moving average of Close, aligned to c.
func SMA(c []marketdata.Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum float64
	for i := range c {
		sum += c[i].Close
		if i >= n {
			sum -= c[i-n].Close
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA returns the exponential moving average of a close-price series.
func EMA(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	if n <= 0 || len(closes) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	k := 2.0 / (float64(n) + 1.0)
	var prev float64
	for i := range closes {
		if i == 0 {
			prev = closes[0]
		} else {
			prev = closes[i]*k + prev*(1-k)
		}
		out[i] = prev
	}
	return out
}

// RSI returns the n-period Relative Strength Index using Wilder's smoothing.
func RSI(c []marketdata.Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		return out
	}
	var gain, loss float64
	for i := 1; i < len(c); i++ {
		d := c[i].Close - c[i-1].Close
		if i <= n {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
			if i == n {
				avgGain := gain / float64(n)
				avgLoss := loss / float64(n)
				out[i] = rsiFromAverages(avgGain, avgLoss)
			}
		} else {
			if d > 0 {
				gain = (gain*float64(n-1) + d) / float64(n)
				loss = (loss * float64(n-1)) / float64(n)
			} else {
				gain = (gain * float64(n-1)) / float64(n)
				loss = (loss*float64(n-1) - d) / float64(n)
			}
			out[i] = rsiFromAverages(gain, loss)
		}
	}
	return out
}

// rsiFromAverages converts average gain/loss into an RSI value, treating a
// zero average loss as maximally overbought (100) rather than dividing into
// a misleading rs of 0.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// ATR returns the n-period Average True Range using Wilder's smoothing.
func ATR(c []marketdata.Candle, n int) []float64 {
	out := make([]float64, len(c))
	if n <= 0 || len(c) == 0 {
		return out
	}
	tr := make([]float64, len(c))
	for i := range c {
		if i == 0 {
			tr[i] = c[i].High - c[i].Low
			continue
		}
		hl := c[i].High - c[i].Low
		hc := math.Abs(c[i].High - c[i-1].Close)
		lc := math.Abs(c[i].Low - c[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	var sum float64
	for i := range c {
		if i < n {
			sum += tr[i]
			if i == n-1 {
				out[i] = sum / float64(n)
			}
			continue
		}
		out[i] = (out[i-1]*float64(n-1) + tr[i]) / float64(n)
	}
	return out
}

// VWAP returns the session volume-weighted average price, aligned to c: the
// running VWAP from the start of the supplied candle slice (the caller is
// expected to pass only the current session's candles, spec.md §4.1).
func VWAP(c []marketdata.Candle) []float64 {
	out := make([]float64, len(c))
	var cumPV, cumV float64
	for i := range c {
		typical := (c[i].High + c[i].Low + c[i].Close) / 3
		cumPV += typical * c[i].Volume
		cumV += c[i].Volume
		if cumV > 0 {
			out[i] = cumPV / cumV
		} else {
			out[i] = c[i].Close
		}
	}
	return out
}

// RollingStd returns the rolling standard deviation of a float series over
// window n.
func RollingStd(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	if n <= 1 || len(vals) == 0 {
		return out
	}
	var sum, sumSq float64
	for i := range vals {
		x := vals[i]
		sum += x
		sumSq += x * x
		if i >= n {
			y := vals[i-n]
			sum -= y
			sumSq -= y * y
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := (sumSq / float64(n)) - (mean * mean)
			out[i] = math.Sqrt(math.Max(variance, 0))
		}
	}
	return out
}

// BollingerWidth returns (upper-lower)/mid for a 2-stddev Bollinger band
// over window n, a compact volatility-regime signal used by the scanner.
func BollingerWidth(c []marketdata.Candle, n int) []float64 {
	closes := make([]float64, len(c))
	for i := range c {
		closes[i] = c[i].Close
	}
	ma := SMA(c, n)
	std := RollingStd(closes, n)
	out := make([]float64, len(c))
	for i := range c {
		if math.IsNaN(ma[i]) || ma[i] == 0 {
			continue
		}
		upper := ma[i] + 2*std[i]
		lower := ma[i] - 2*std[i]
		out[i] = (upper - lower) / ma[i]
	}
	return out
}

// AverageVolume returns the arithmetic mean volume over the last n candles
// ending at idx (inclusive), used by Playbook A's breakout-volume gate.
func AverageVolume(c []marketdata.Candle, idx, n int) float64 {
	start := idx - n + 1
	if start < 0 {
		start = 0
	}
	if idx >= len(c) || idx < 0 {
		return 0
	}
	var sum float64
	count := 0
	for i := start; i <= idx; i++ {
		sum += c[i].Volume
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// ExtremeHigh returns the highest High over the lookback window ending
// immediately before idx (exclusive of idx itself), used by Playbook A's
// breakout trigger.
func ExtremeHigh(c []marketdata.Candle, idx, lookback int) float64 {
	start := idx - lookback
	if start < 0 {
		start = 0
	}
	max := math.Inf(-1)
	for i := start; i < idx; i++ {
		if c[i].High > max {
			max = c[i].High
		}
	}
	return max
}
