package engine

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"meanrev-bot/services/position"
)

// Report aggregates a finished backtest.
type Report struct {
	RunID          string
	Symbol         string
	InitialEquity  decimal.Decimal
	FinalEquity    decimal.Decimal
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64
	AvgWin         decimal.Decimal
	AvgLoss        decimal.Decimal
	BestTrade      decimal.Decimal
	WorstTrade     decimal.Decimal
	ProfitFactor   float64
	MaxDrawdown    float64 // largest peak-to-trough equity decline, fraction of peak
	SharpeRatio    float64
	AvgHoldingBars float64
	BarsProcessed  int
	SkippedBars    int
	Trades         []position.Trade
	EquityCurve    []EquityPoint
}

// BuildReport computes the performance statistics for a session.
// annualization is the bar count per year for the Sharpe ratio.
func BuildReport(s *Session, annualization float64) *Report {
	st := s.risk.State()
	r := &Report{
		RunID:         uuid.New().String(),
		Symbol:        s.cfg.Symbol,
		InitialEquity: st.InitialEquity,
		FinalEquity:   st.CurrentEquity,
		BarsProcessed: len(s.curve),
		SkippedBars:   s.skipped,
		// copies: the report must stay stable if the session keeps running
		Trades:      append([]position.Trade(nil), s.tracker.Ledger()...),
		EquityCurve: append([]EquityPoint(nil), s.curve...),
	}

	var winSum, lossSum decimal.Decimal
	var holdingBars int
	for i, t := range r.Trades {
		holdingBars += t.Position.BarsHeld
		if i == 0 || t.Pnl.GreaterThan(r.BestTrade) {
			r.BestTrade = t.Pnl
		}
		if i == 0 || t.Pnl.LessThan(r.WorstTrade) {
			r.WorstTrade = t.Pnl
		}
		switch {
		case t.Pnl.IsPositive():
			r.WinningTrades++
			winSum = winSum.Add(t.Pnl)
		case t.Pnl.IsNegative():
			r.LosingTrades++
			lossSum = lossSum.Add(t.Pnl.Neg())
		}
	}
	r.TotalTrades = len(r.Trades)
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades)
		r.AvgHoldingBars = float64(holdingBars) / float64(r.TotalTrades)
	}
	if r.WinningTrades > 0 {
		r.AvgWin = winSum.Div(decimal.NewFromInt(int64(r.WinningTrades)))
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(r.LosingTrades)))
	}
	if lossSum.IsPositive() {
		r.ProfitFactor = winSum.Div(lossSum).InexactFloat64()
	}

	r.MaxDrawdown = maxDrawdown(s.curve)
	r.SharpeRatio = sharpe(s.curve, annualization)
	return r
}

// maxDrawdown walks the mark-to-market equity curve, so intrabar
// drawdowns of open positions count, not only realized ones.
func maxDrawdown(curve []EquityPoint) float64 {
	peak, maxDD := 0.0, 0.0
	for _, p := range curve {
		eq := p.Equity.InexactFloat64()
		if eq > peak {
			peak = eq
		}
		if peak > 0 {
			if dd := (peak - eq) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpe is mean per-bar return over its volatility, scaled by the
// square root of the annualization factor.
func sharpe(curve []EquityPoint, annualization float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	prev := curve[0].Equity.InexactFloat64()
	for _, p := range curve[1:] {
		eq := p.Equity.InexactFloat64()
		if prev > 0 {
			returns = append(returns, eq/prev-1)
		}
		prev = eq
	}
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	ratio := mean / std
	if annualization > 0 {
		ratio *= math.Sqrt(annualization)
	}
	return ratio
}
