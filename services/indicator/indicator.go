// Package indicator computes rolling statistics over price windows.
//
// Every function is a pure function of the trailing window it is given.
// When fewer samples than the requested period are available the second
// return value is false and callers must treat the indicator as
// unavailable rather than zero.
package indicator

import "math"

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), true
}

// StdDev returns the population standard deviation of the last period values.
func StdDev(values []float64, period int) (float64, bool) {
	mean, ok := SMA(values, period)
	if !ok {
		return 0, false
	}
	variance := 0.0
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(period)), true
}

// Bands returns mean +/- mult standard deviations over the last period values.
func Bands(values []float64, period int, mult float64) (upper, lower float64, ok bool) {
	mean, ok := SMA(values, period)
	if !ok {
		return 0, 0, false
	}
	sd, _ := StdDev(values, period)
	return mean + mult*sd, mean - mult*sd, true
}

// RSI returns the Wilder-smoothed relative strength index over the last
// period price changes. Requires at least period+1 values: the first
// period changes seed the averages, the rest are smoothed.
func RSI(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period+1 {
		return 0, false
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// TrueRange is the greatest of high-low, |high-prevClose|, |low-prevClose|.
func TrueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if d := math.Abs(high - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// ATR returns the rolling average of the true range over the last period
// bars. Requires period+1 bars since the true range references the
// previous close.
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return 0, false
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		sum += TrueRange(highs[i], lows[i], closes[i-1])
	}
	return sum / float64(period), true
}

// Slope returns the fractional change of the series across the last
// period samples: (last - first) / first.
func Slope(values []float64, period int) (float64, bool) {
	if period <= 1 || len(values) < period {
		return 0, false
	}
	first := values[len(values)-period]
	last := values[len(values)-1]
	if first == 0 {
		return 0, false
	}
	return (last - first) / first, true
}
