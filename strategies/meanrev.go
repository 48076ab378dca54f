// Package strategies implements the signal-generation side of the bot.
//
// The many aggressive/intraday/debug variants of the original strategy
// collapse into one parameterized MeanReversion generator; the variants
// differ only in the parameter values fed to it.
package strategies

import (
	"meanrev-bot/services/indicator"
	"meanrev-bot/services/market"
)

// Direction is the discrete trading decision for one bar.
type Direction int

const (
	Hold Direction = iota
	Buy
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "hold"
	}
}

// Strength grades how far price deviated from the mean, informational only.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// Signal is the outcome of evaluating one bar. Produced fresh each bar,
// never mutated.
type Signal struct {
	Direction  Direction
	Confidence float64  // fraction of enabled filters that passed
	Reasons    []string // names of filters that passed
	Strength   Strength
	MA         float64 // moving average used for the decision, 0 if unavailable
	Deviation  float64 // |price-ma|/ma
}

// Filter names surfaced in Signal.Reasons.
const (
	FilterConfirmation = "confirmation"
	FilterVolatility   = "volatility"
	FilterTrend        = "trend"
	FilterMomentum     = "momentum"
	FilterSession      = "session"
)

// SessionWindow restricts signals to a daily trading window in UTC
// minutes-of-day. Start == End means the window covers the whole day.
// Windows may wrap midnight (Start > End).
type SessionWindow struct {
	Enabled     bool
	StartMinute int
	EndMinute   int
}

// Contains reports whether the bar timestamp falls inside the window.
func (w SessionWindow) Contains(ts int64) bool {
	if !w.Enabled || w.StartMinute == w.EndMinute {
		return true
	}
	t := market.Bar{Timestamp: ts}.Time()
	m := t.Hour()*60 + t.Minute()
	if w.StartMinute < w.EndMinute {
		return m >= w.StartMinute && m < w.EndMinute
	}
	return m >= w.StartMinute || m < w.EndMinute
}

// MeanReversion generates BUY/SELL/HOLD decisions from deviation of the
// close price against a rolling moving average, gated by a configurable
// filter chain. Signal evaluation uses the bar close price so backtests
// are deterministic; a live adapter may substitute its own quote.
type MeanReversion struct {
	LookbackWindow int     // moving-average period
	Threshold      float64 // fractional deviation that arms a candidate

	// Confirmation filter: the candidate direction must repeat for
	// ConfirmationBars consecutive bars. 1 disables confirmation.
	ConfirmationBars int

	// Volatility filter: ATR over AtrPeriod must exceed MinATR.
	VolatilityEnabled bool
	AtrPeriod         int
	MinATR            float64

	// Trend filter: reject candidates fighting a confirmed trend in the
	// longer moving average. A BUY is rejected when the long MA slope is
	// below -TrendSlopeLimit, symmetric for SELL.
	TrendEnabled    bool
	TrendPeriod     int
	TrendSlopeBars  int
	TrendSlopeLimit float64

	// Momentum filter: RSI must be oversold for BUY, overbought for SELL.
	MomentumEnabled bool
	RsiPeriod       int
	RsiOversold     float64
	RsiOverbought   float64

	Session SessionWindow

	// confirmation state, reset whenever direction changes or a HOLD
	// intervenes
	confirmDir   Direction
	confirmCount int
}

// NewMeanReversion returns a generator with the base parameter set.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{
		LookbackWindow:   20,
		Threshold:        0.01,
		ConfirmationBars: 1,
		AtrPeriod:        14,
		TrendPeriod:      50,
		TrendSlopeBars:   10,
		TrendSlopeLimit:  0.005,
		RsiPeriod:        14,
		RsiOversold:      30,
		RsiOverbought:    70,
	}
}

// Reset clears the confirmation state for a fresh run.
func (s *MeanReversion) Reset() {
	s.confirmDir = Hold
	s.confirmCount = 0
}

// Evaluate produces the signal for the latest bar in bars. It must be
// called exactly once per accepted bar; the engine deduplicates repeated
// timestamps before invoking it.
func (s *MeanReversion) Evaluate(bars []market.Bar) Signal {
	closes := market.Closes(bars)
	price := 0.0
	if len(closes) > 0 {
		price = closes[len(closes)-1]
	}

	ma, ok := indicator.SMA(closes, s.LookbackWindow)
	if !ok || ma == 0 {
		// insufficient history degrades to HOLD, not an error
		s.Reset()
		return Signal{Direction: Hold, Strength: StrengthWeak}
	}

	deviation := (price - ma) / ma
	candidate := Hold
	switch {
	case price < ma*(1-s.Threshold):
		candidate = Buy
	case price > ma*(1+s.Threshold):
		candidate = Sell
	}

	if candidate == Hold {
		s.Reset()
		return Signal{Direction: Hold, Strength: StrengthWeak, MA: ma, Deviation: absf(deviation)}
	}

	// advance the confirmation counter before gating so a K-bar streak
	// counts the current bar
	if candidate == s.confirmDir {
		s.confirmCount++
	} else {
		s.confirmDir = candidate
		s.confirmCount = 1
	}

	enabled, passed := 0, 0
	var reasons []string
	check := func(name string, on, pass bool) bool {
		if !on {
			return true
		}
		enabled++
		if pass {
			passed++
			reasons = append(reasons, name)
		}
		return pass
	}

	allPass := true
	allPass = check(FilterConfirmation, s.ConfirmationBars > 1, s.confirmCount >= s.ConfirmationBars) && allPass
	allPass = check(FilterVolatility, s.VolatilityEnabled, s.volatilityPass(bars)) && allPass
	allPass = check(FilterTrend, s.TrendEnabled, s.trendPass(closes, candidate)) && allPass
	allPass = check(FilterMomentum, s.MomentumEnabled, s.momentumPass(closes, candidate)) && allPass
	allPass = check(FilterSession, s.Session.Enabled, s.Session.Contains(bars[len(bars)-1].Timestamp)) && allPass

	sig := Signal{
		Direction:  Hold,
		MA:         ma,
		Deviation:  absf(deviation),
		Strength:   strengthFor(absf(deviation), s.Threshold),
		Reasons:    reasons,
		Confidence: 1,
	}
	if enabled > 0 {
		sig.Confidence = float64(passed) / float64(enabled)
	}
	if allPass {
		sig.Direction = candidate
	}
	return sig
}

func (s *MeanReversion) volatilityPass(bars []market.Bar) bool {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High.InexactFloat64()
		lows[i] = b.Low.InexactFloat64()
		closes[i] = b.Close.InexactFloat64()
	}
	atr, ok := indicator.ATR(highs, lows, closes, s.AtrPeriod)
	return ok && atr > s.MinATR
}

func (s *MeanReversion) trendPass(closes []float64, candidate Direction) bool {
	// need the long MA at several points to judge its slope
	n := len(closes)
	if n < s.TrendPeriod+s.TrendSlopeBars {
		// trend not measurable yet: treat as unavailable, equivalent to HOLD
		return false
	}
	mas := make([]float64, 0, s.TrendSlopeBars)
	for i := n - s.TrendSlopeBars; i < n; i++ {
		ma, ok := indicator.SMA(closes[:i+1], s.TrendPeriod)
		if !ok {
			return false
		}
		mas = append(mas, ma)
	}
	slope, ok := indicator.Slope(mas, len(mas))
	if !ok {
		return false
	}
	if candidate == Buy {
		return slope > -s.TrendSlopeLimit
	}
	return slope < s.TrendSlopeLimit
}

func (s *MeanReversion) momentumPass(closes []float64, candidate Direction) bool {
	rsi, ok := indicator.RSI(closes, s.RsiPeriod)
	if !ok {
		return false
	}
	if candidate == Buy {
		return rsi < s.RsiOversold
	}
	return rsi > s.RsiOverbought
}

func strengthFor(deviation, threshold float64) Strength {
	switch {
	case deviation > 2*threshold:
		return StrengthStrong
	case deviation > threshold:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
