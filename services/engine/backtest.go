package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"meanrev-bot/services/feed"
)

// Run replays a feed through a session bar by bar and builds the final
// report. The context is checked between bars, so cancellation never
// leaves a position half-modified. annualization is the number of bars
// per year used for the risk-adjusted return ratio.
func Run(ctx context.Context, f feed.PriceFeed, s *Session, annualization float64) (*Report, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar, err := f.Next(ctx)
		if errors.Is(err, feed.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("price feed: %w", err)
		}
		s.Step(bar)
	}
	s.FinishBacktest()
	return BuildReport(s, annualization), nil
}

// SymbolRun pairs a session with its feed for multi-symbol backtests.
type SymbolRun struct {
	Feed    feed.PriceFeed
	Session *Session
}

// RunMany backtests several symbols in parallel. Each session carries
// its own independent RiskState and position slot, so there is no
// cross-symbol loss-limit interaction. The first error wins; remaining
// reports are still returned for the symbols that completed.
func RunMany(ctx context.Context, runs map[string]SymbolRun, annualization float64) (map[string]*Report, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		reports = make(map[string]*Report, len(runs))
		firstd  error
	)
	for sym, run := range runs {
		wg.Add(1)
		go func(sym string, run SymbolRun) {
			defer wg.Done()
			rep, err := Run(ctx, run.Feed, run.Session, annualization)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstd == nil {
					firstd = fmt.Errorf("%s: %w", sym, err)
				}
				return
			}
			reports[sym] = rep
		}(sym, run)
	}
	wg.Wait()
	return reports, firstd
}
