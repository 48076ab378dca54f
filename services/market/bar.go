// Package market defines the core price data model shared by the
// signal, risk, position and engine layers.
package market

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or position.
type Side int

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "flat"
	}
}

// Sign returns +1 for long, -1 for short, 0 for flat.
func (s Side) Sign() int {
	switch s {
	case SideLong:
		return 1
	case SideShort:
		return -1
	default:
		return 0
	}
}

// Bar is a single OHLCV bar. Timestamps are Unix milliseconds UTC.
// Bars are immutable once produced.
type Bar struct {
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Time returns the bar open time in UTC.
func (b Bar) Time() time.Time { return time.UnixMilli(b.Timestamp).UTC() }

// Validate rejects malformed bars: non-positive prices, inverted ranges,
// or an open/close outside the high/low envelope.
func (b Bar) Validate() error {
	if b.Timestamp <= 0 {
		return fmt.Errorf("bar has non-positive timestamp %d", b.Timestamp)
	}
	for _, p := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close} {
		if p.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("bar %d has non-positive price", b.Timestamp)
		}
	}
	if b.High.LessThan(b.Low) {
		return fmt.Errorf("bar %d has high %s below low %s", b.Timestamp, b.High, b.Low)
	}
	if b.Open.GreaterThan(b.High) || b.Open.LessThan(b.Low) {
		return fmt.Errorf("bar %d open %s outside [low, high]", b.Timestamp, b.Open)
	}
	if b.Close.GreaterThan(b.High) || b.Close.LessThan(b.Low) {
		return fmt.Errorf("bar %d close %s outside [low, high]", b.Timestamp, b.Close)
	}
	if b.Volume.IsNegative() {
		return fmt.Errorf("bar %d has negative volume", b.Timestamp)
	}
	return nil
}

// SortDedup sorts bars by timestamp and drops duplicate timestamps,
// keeping the last occurrence of each (re-published bars overwrite).
func SortDedup(bars []Bar) []Bar {
	if len(bars) < 2 {
		return bars
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	uniq := bars[:0:0]
	var lastTs int64 = -1
	for _, b := range bars {
		if b.Timestamp == lastTs {
			uniq[len(uniq)-1] = b
			continue
		}
		uniq = append(uniq, b)
		lastTs = b.Timestamp
	}
	return uniq
}

// Closes extracts closing prices as float64 for indicator math.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}
