package engine

import (
	"math"
	"testing"
)

func curveOf(equities ...float64) []EquityPoint {
	out := make([]EquityPoint, len(equities))
	for i, e := range equities {
		out[i] = EquityPoint{Ts: int64(i + 1), Equity: d(e)}
	}
	return out
}

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		name   string
		curve  []EquityPoint
		want   float64
		within float64
	}{
		{"empty", nil, 0, 0},
		{"monotone up", curveOf(100, 110, 120), 0, 0},
		{"single dip", curveOf(100, 120, 90, 110, 80), 1.0 / 3, 1e-12},
		{"dip then recovery", curveOf(100, 80, 130), 0.2, 1e-12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := maxDrawdown(tc.curve)
			if math.Abs(got-tc.want) > tc.within {
				t.Fatalf("maxDrawdown=%v, want %v", got, tc.want)
			}
		})
	}
}

func TestSharpeDegenerateCurves(t *testing.T) {
	if s := sharpe(curveOf(100), 252); s != 0 {
		t.Fatalf("single point sharpe=%v, want 0", s)
	}
	// constant per-bar return has zero volatility
	if s := sharpe(curveOf(100, 110, 121), 252); s != 0 {
		t.Fatalf("zero-volatility sharpe=%v, want 0", s)
	}
}

func TestSharpeSignTracksDrift(t *testing.T) {
	up := sharpe(curveOf(100, 102, 103, 106, 108, 111), 252)
	if up <= 0 {
		t.Fatalf("uptrending curve sharpe=%v, want > 0", up)
	}
	down := sharpe(curveOf(111, 108, 106, 103, 102, 100), 252)
	if down >= 0 {
		t.Fatalf("downtrending curve sharpe=%v, want < 0", down)
	}
	// annualization only scales magnitude
	raw := sharpe(curveOf(100, 102, 103, 106, 108, 111), 0)
	if math.Abs(up-raw*math.Sqrt(252)) > 1e-9 {
		t.Fatalf("annualized %v vs raw %v mismatch", up, raw)
	}
}

func TestBuildReportAggregates(t *testing.T) {
	s, _ := newTestSession(testRiskConfig(), SessionConfig{})
	bars := entrySetupBars()
	bars = append(bars, bar(21*3_600_000, 96, 105, 95, 100.4)) // take profit +100
	for _, b := range bars {
		s.Step(b)
	}
	rep := BuildReport(s, 252)
	if rep.RunID == "" {
		t.Fatal("missing run ID")
	}
	if rep.Symbol != "EURUSD" {
		t.Fatalf("symbol %s", rep.Symbol)
	}
	if !rep.BestTrade.Equal(rep.Trades[0].Pnl) || !rep.WorstTrade.Equal(rep.Trades[0].Pnl) {
		t.Fatal("best/worst must equal the only trade")
	}
	if rep.ProfitFactor != 0 {
		t.Fatalf("profit factor %v with no losers, want 0", rep.ProfitFactor)
	}
	if rep.AvgHoldingBars != 1 {
		t.Fatalf("avg holding %v, want 1 bar", rep.AvgHoldingBars)
	}
	if !rep.AvgWin.Equal(rep.Trades[0].Pnl) {
		t.Fatalf("avg win %s, want the single trade's pnl", rep.AvgWin)
	}
}

func TestBuildReportDetachesFromSession(t *testing.T) {
	s, _ := newTestSession(testRiskConfig(), SessionConfig{})
	bars := entrySetupBars()
	bars = append(bars, bar(21*3_600_000, 96, 105, 95, 100.4))
	for _, b := range bars {
		s.Step(b)
	}
	rep := BuildReport(s, 0)

	wantPnl := s.Tracker().Ledger()[0].Pnl
	wantEq := s.Curve()[0].Equity
	rep.Trades[0].Pnl = d(-1)
	rep.EquityCurve[0].Equity = d(-1)

	if !s.Tracker().Ledger()[0].Pnl.Equal(wantPnl) {
		t.Fatal("mutating the report reached the session ledger")
	}
	if !s.Curve()[0].Equity.Equal(wantEq) {
		t.Fatal("mutating the report reached the session curve")
	}
}
