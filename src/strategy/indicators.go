package strategy

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"autotrader/src/model"
)

// The helpers below return series aligned with their input. Positions
// without enough history hold NaN.

func closes(bars []model.Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func volumes(bars []model.Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// masked hides the first lookback entries of a talib output, which talib
// leaves at zero.
func masked(series []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(series); i++ {
		series[i] = math.NaN()
	}
	return series
}

// SMA is the simple moving average over period.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nanSeries(len(values))
	}
	return masked(talib.Sma(values, period), period-1)
}

// RollingStd is the sample standard deviation (n-1) over period. talib.StdDev
// divides by n.
func RollingStd(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period < 2 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)
		ss := 0.0
		for _, v := range window {
			ss += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}

// Momentum is close minus close period bars earlier.
func Momentum(values []float64, period int) []float64 {
	if period <= 0 || len(values) <= period {
		return nanSeries(len(values))
	}
	return masked(talib.Mom(values, period), period)
}

// RSI uses simple rolling means of gains and losses, not the Wilder
// smoothing of talib.Rsi.
func RSI(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	for i := period; i < len(values); i++ {
		var g, l float64
		for j := i - period + 1; j <= i; j++ {
			g += gains[j]
			l += losses[j]
		}
		g /= float64(period)
		l /= float64(period)
		switch {
		case l == 0 && g == 0:
			out[i] = 50
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// WeightedAverageVolume weights the last period volumes linearly, oldest 1
// and newest period. The bar at index end is excluded.
func WeightedAverageVolume(vols []float64, end, period int) float64 {
	if period <= 0 || end < period || end > len(vols) {
		return math.NaN()
	}
	wma := talib.Wma(vols[end-period:end], period)
	return wma[period-1]
}

// midpoint is (highest high + lowest low) / 2 over period.
func midpoint(bars []model.Candle, period int) []float64 {
	if period <= 0 || len(bars) < period {
		return nanSeries(len(bars))
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}
	return masked(talib.MidPrice(highs, lows, period), period-1)
}

// ChaikinOscillator is SMA(short) - SMA(long) of the accumulation/distribution line.
func ChaikinOscillator(bars []model.Candle, short, long int) []float64 {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	cls := make([]float64, len(bars))
	vols := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], cls[i], vols[i] = b.High, b.Low, b.Close, b.Volume
	}
	ad := talib.Ad(highs, lows, cls, vols)
	s := SMA(ad, short)
	l := SMA(ad, long)
	out := nanSeries(len(bars))
	for i := range bars {
		out[i] = s[i] - l[i]
	}
	return out
}

// crossedAbove reports prev <= level < cur.
func crossedAbove(prev, cur, level float64) bool {
	return !math.IsNaN(prev) && !math.IsNaN(cur) && prev <= level && cur > level
}

// crossedBelow reports prev >= level > cur.
func crossedBelow(prev, cur, level float64) bool {
	return !math.IsNaN(prev) && !math.IsNaN(cur) && prev >= level && cur < level
}
