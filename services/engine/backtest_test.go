package engine

import (
	"context"
	"testing"

	"meanrev-bot/services/feed"
)

func TestRunConstantSeriesProducesNoTrades(t *testing.T) {
	s, _ := newTestSession(testRiskConfig(), SessionConfig{})
	rep, err := Run(context.Background(), feed.NewSliceFeed(flatBars(60, 100)), s, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.TotalTrades != 0 {
		t.Fatalf("%d trades on a constant series, want 0", rep.TotalTrades)
	}
	if !rep.FinalEquity.Equal(rep.InitialEquity) {
		t.Fatalf("equity drifted %s -> %s with no trades", rep.InitialEquity, rep.FinalEquity)
	}
	if rep.BarsProcessed != 60 {
		t.Fatalf("processed %d bars, want 60", rep.BarsProcessed)
	}
	if rep.MaxDrawdown != 0 || rep.SharpeRatio != 0 {
		t.Fatalf("flat run stats dd=%v sharpe=%v, want zeros", rep.MaxDrawdown, rep.SharpeRatio)
	}
}

func TestRunTakeProfitRoundTrip(t *testing.T) {
	s, _ := newTestSession(testRiskConfig(), SessionConfig{})
	bars := entrySetupBars()
	// rallies through the 104.5 take-profit, closing back near the mean
	bars = append(bars, bar(21*3_600_000, 96, 105, 95, 100.4))

	rep, err := Run(context.Background(), feed.NewSliceFeed(bars), s, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.TotalTrades != 1 || rep.WinningTrades != 1 {
		t.Fatalf("trades total=%d winning=%d, want 1/1", rep.TotalTrades, rep.WinningTrades)
	}
	tr := rep.Trades[0]
	if tr.ExitReason != "take_profit" {
		t.Fatalf("exit reason %s, want take_profit", tr.ExitReason)
	}
	// a 10% favorable move on a 1000 notional nets 100
	if tr.Pnl.Sub(d(100)).Abs().GreaterThan(d(1e-9)) {
		t.Fatalf("pnl %s, want 100", tr.Pnl)
	}
	if rep.FinalEquity.Sub(d(10_100)).Abs().GreaterThan(d(1e-9)) {
		t.Fatalf("final equity %s, want 10100", rep.FinalEquity)
	}
	if rep.WinRate != 1.0 {
		t.Fatalf("win rate %v, want 1.0", rep.WinRate)
	}
}

func TestRunClosesOpenPositionAtEnd(t *testing.T) {
	s, _ := newTestSession(testRiskConfig(), SessionConfig{})
	rep, err := Run(context.Background(), feed.NewSliceFeed(entrySetupBars()), s, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.TotalTrades != 1 {
		t.Fatalf("%d trades, want the end-of-run close", rep.TotalTrades)
	}
	tr := rep.Trades[0]
	if tr.ExitReason != "end_of_backtest" {
		t.Fatalf("exit reason %s, want end_of_backtest", tr.ExitReason)
	}
	// opened and force-closed at the same close: flat PnL
	if !tr.Pnl.IsZero() {
		t.Fatalf("pnl %s, want 0", tr.Pnl)
	}
	if s.Tracker().OpenCount() != 0 {
		t.Fatal("position left open after the run")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, _ := newTestSession(testRiskConfig(), SessionConfig{})
	if _, err := Run(ctx, feed.NewSliceFeed(flatBars(10, 100)), s, 0); err == nil {
		t.Fatal("run ignored the cancelled context")
	}
}

func TestRunCountsFeedDuplicates(t *testing.T) {
	bars := flatBars(10, 100)
	// SliceFeed dedups up front, so push the stale bar through the
	// session directly
	s, _ := newTestSession(testRiskConfig(), SessionConfig{})
	for _, b := range bars {
		s.Step(b)
	}
	s.Step(bars[4]) // stale redelivery
	rep := BuildReport(s, 0)
	if rep.SkippedBars != 1 {
		t.Fatalf("skipped=%d, want 1", rep.SkippedBars)
	}
	if rep.BarsProcessed != 10 {
		t.Fatalf("processed=%d, want 10", rep.BarsProcessed)
	}
}

func TestRunManyKeepsSymbolsIndependent(t *testing.T) {
	losing := testRiskConfig()
	losing.PositionSizeFraction = 1.0
	losing.MaxOverallLoss = 0.04

	// symbol A halts on its stop-out; symbol B trades a flat series
	sa, _ := newTestSession(losing, SessionConfig{Symbol: "EURUSD"})
	barsA := append(entrySetupBars(), bar(21*3_600_000, 94, 94, 88, 90))

	sb, _ := newTestSession(testRiskConfig(), SessionConfig{Symbol: "GBPUSD"})

	reports, err := RunMany(context.Background(), map[string]SymbolRun{
		"EURUSD": {Feed: feed.NewSliceFeed(barsA), Session: sa},
		"GBPUSD": {Feed: feed.NewSliceFeed(flatBars(30, 100)), Session: sb},
	}, 0)
	if err != nil {
		t.Fatalf("run many: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("%d reports, want 2", len(reports))
	}
	if !sa.Risk().State().TradingHalted {
		t.Fatal("losing symbol did not halt")
	}
	if sb.Risk().State().TradingHalted {
		t.Fatal("halt leaked across symbols")
	}
	if reports["GBPUSD"].TotalTrades != 0 {
		t.Fatalf("flat symbol traded %d times", reports["GBPUSD"].TotalTrades)
	}
}

func TestSliceFeedEndsCleanly(t *testing.T) {
	f := feed.NewSliceFeed(flatBars(2, 100))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := f.Next(ctx); err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
	}
	if _, err := f.Next(ctx); err != feed.ErrEndOfStream {
		t.Fatalf("err=%v, want ErrEndOfStream", err)
	}
	f.Reset()
	if b, err := f.Next(ctx); err != nil || b.Timestamp != 3_600_000 {
		t.Fatalf("reset replay got %v/%v", b.Timestamp, err)
	}
}
