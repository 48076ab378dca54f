// Package feed provides the price-data sources the engine consumes:
// an in-memory replay feed, CSV files and a ClickHouse candle store.
package feed

import (
	"context"
	"errors"

	"meanrev-bot/services/market"
)

// ErrEndOfStream signals an exhausted feed.
var ErrEndOfStream = errors.New("end of stream")

// PriceFeed is an ordered source of bars for one symbol. Backtest feeds
// are replayable; live feeds advance with the market.
type PriceFeed interface {
	Next(ctx context.Context) (market.Bar, error)
}

// SliceFeed replays a fixed bar series. Bars are sorted and
// deduplicated up front so replays are deterministic.
type SliceFeed struct {
	bars []market.Bar
	pos  int
}

func NewSliceFeed(bars []market.Bar) *SliceFeed {
	return &SliceFeed{bars: market.SortDedup(bars)}
}

func (f *SliceFeed) Next(ctx context.Context) (market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return market.Bar{}, err
	}
	if f.pos >= len(f.bars) {
		return market.Bar{}, ErrEndOfStream
	}
	b := f.bars[f.pos]
	f.pos++
	return b, nil
}

// Reset rewinds the feed for another replay.
func (f *SliceFeed) Reset() { f.pos = 0 }

// Len returns the number of bars in the series.
func (f *SliceFeed) Len() int { return len(f.bars) }
