// Package engine drives the signal, risk and position layers bar by
// bar. A Session is the per-symbol entry point shared by the backtest
// loop and a live scheduler: both call Step once per bar.
package engine

import (
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"meanrev-bot/services/execution"
	"meanrev-bot/services/market"
	"meanrev-bot/services/position"
	"meanrev-bot/services/risk"
	"meanrev-bot/strategies"
)

// SessionConfig carries the per-position exit parameters and history
// retention for one symbol session.
type SessionConfig struct {
	Symbol              string
	StopLossPct         float64
	TakeProfitPct       float64
	TrailingEnabled     bool
	TrailingPct         float64
	BreakevenEnabled    bool
	BreakevenTriggerPct float64
	MaxHistoryBars      int // indicator window retained, 0 = keep all
}

// EquityPoint is one sample of the mark-to-market equity curve.
type EquityPoint struct {
	Ts     int64
	Equity decimal.Decimal
}

// Session owns all mutable state for one symbol: bar history, the
// strategy's confirmation counter, risk state and open positions. It is
// single-threaded; callers invoke Step strictly in order.
type Session struct {
	cfg      SessionConfig
	strategy *strategies.MeanReversion
	risk     *risk.Manager
	tracker  *position.Tracker
	exec     execution.Executor
	log      *zap.Logger

	events  EventLog
	bars    []market.Bar
	curve   []EquityPoint
	lastTs  int64
	skipped int
}

// NewSession wires a session from its collaborators. A nil logger is
// replaced with a no-op one.
func NewSession(cfg SessionConfig, strat *strategies.MeanReversion, rm *risk.Manager, exec execution.Executor, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	strat.Reset()
	return &Session{
		cfg:      cfg,
		strategy: strat,
		risk:     rm,
		tracker:  position.NewTracker(),
		exec:     exec,
		log:      log.With(zap.String("symbol", cfg.Symbol)),
	}
}

// Events returns the accumulated event log.
func (s *Session) Events() *EventLog { return &s.events }

// Tracker exposes the position tracker for reporting.
func (s *Session) Tracker() *position.Tracker { return s.tracker }

// Risk exposes the risk manager for reporting and external resets.
func (s *Session) Risk() *risk.Manager { return s.risk }

// SkippedBars returns how many bars were rejected as malformed,
// out-of-order or duplicated.
func (s *Session) SkippedBars() int { return s.skipped }

// Curve returns the per-bar equity curve including unrealized PnL.
func (s *Session) Curve() []EquityPoint { return s.curve }

// Snapshot is the live-monitoring view of a session.
type Snapshot struct {
	Equity        decimal.Decimal
	OpenPosition  *position.Position
	Leverage      float64
	TradingHalted bool
	SkippedBars   int
	LastTs        int64
}

// GetState returns a monitoring snapshot. The open position is a copy.
func (s *Session) GetState() Snapshot {
	st := s.risk.State()
	snap := Snapshot{
		Equity:        st.CurrentEquity,
		Leverage:      st.CurrentLeverage,
		TradingHalted: st.TradingHalted,
		SkippedBars:   s.skipped,
		LastTs:        s.lastTs,
	}
	if p := s.tracker.Get(s.cfg.Symbol); p != nil {
		cp := *p
		snap.OpenPosition = &cp
		snap.Equity = snap.Equity.Add(p.Unrealized(s.lastClose()))
	}
	return snap
}

// Step processes one bar: exits before entries, so a position closed on
// this bar cannot be reopened from the same bar's signal unless the
// signal independently re-qualifies. Reprocessing an already-seen
// timestamp is a no-op, which makes live re-delivery safe.
func (s *Session) Step(bar market.Bar) []Event {
	start := len(s.events.Events)

	if err := bar.Validate(); err != nil {
		s.skipped++
		s.log.Warn("rejected bar", zap.Error(&DataError{Ts: bar.Timestamp, Reason: err.Error()}))
		return nil
	}
	if bar.Timestamp <= s.lastTs {
		s.skipped++
		s.log.Debug("rejected bar",
			zap.Error(&DataError{Ts: bar.Timestamp, Reason: "timestamp does not advance"}),
			zap.Int64("last_ts", s.lastTs))
		return nil
	}
	s.lastTs = bar.Timestamp
	s.bars = append(s.bars, bar)
	if s.cfg.MaxHistoryBars > 0 && len(s.bars) > s.cfg.MaxHistoryBars {
		s.bars = s.bars[len(s.bars)-s.cfg.MaxHistoryBars:]
	}

	s.risk.RollDay(bar.Timestamp)

	// exits first
	res := s.tracker.Step(s.cfg.Symbol, bar, s.exec)
	if res.ExecErr != nil {
		s.appendExecError(bar, "modify", res.ExecErr)
	}
	if res.Adjusted {
		p := s.tracker.Get(s.cfg.Symbol)
		s.events.Append(Event{Ts: bar.Timestamp, Type: EventPositionModified, Symbol: s.cfg.Symbol,
			Details: map[string]string{"stop_loss": p.StopLoss.String()}})
	}
	if res.Closed != nil {
		s.applyClose(bar, res.Closed)
	}

	// margin call: unrealized loss can breach the solvency buffer before
	// the stop price is ever touched when the bar gapped
	if p := s.tracker.Get(s.cfg.Symbol); p != nil {
		unreal := p.Unrealized(bar.Close)
		if s.risk.MarginCall(p.Notional(bar.Close), unreal) {
			trade := s.tracker.ForceClose(s.cfg.Symbol, bar.Close, position.ReasonMarginCall, bar.Timestamp)
			s.applyClose(bar, trade)
		}
	}

	// then entries
	sig := s.strategy.Evaluate(s.bars)
	if sig.Direction != strategies.Hold {
		s.events.Append(Event{Ts: bar.Timestamp, Type: EventSignal, Symbol: s.cfg.Symbol,
			Details: map[string]string{
				"direction":  sig.Direction.String(),
				"confidence": strconv.FormatFloat(sig.Confidence, 'f', 4, 64),
				"strength":   string(sig.Strength),
			}})
		s.tryEnter(bar, sig)
	}

	s.curve = append(s.curve, EquityPoint{Ts: bar.Timestamp, Equity: s.markedEquity(bar)})
	return s.events.Events[start:]
}

func (s *Session) tryEnter(bar market.Bar, sig strategies.Signal) {
	dec := s.risk.Authorize(s.tracker.OpenCount())
	if !dec.Approved {
		s.log.Debug("entry refused", zap.String("reason", dec.Reason))
		return
	}

	side := market.SideLong
	if sig.Direction == strategies.Sell {
		side = market.SideShort
	}
	req := position.OpenRequest{
		Symbol:              s.cfg.Symbol,
		Side:                side,
		EntryPrice:          bar.Close,
		SizeUSD:             dec.Size,
		StopLossPct:         s.cfg.StopLossPct,
		TakeProfitPct:       s.cfg.TakeProfitPct,
		OpenedAt:            bar.Timestamp,
		TrailingEnabled:     s.cfg.TrailingEnabled,
		TrailingPct:         s.cfg.TrailingPct,
		BreakevenEnabled:    s.cfg.BreakevenEnabled,
		BreakevenTriggerPct: s.cfg.BreakevenTriggerPct,
	}

	// the venue gets the protective levels with the entry, not only on
	// later adjustments
	sl, tp := position.ExitLevels(side, bar.Close, s.cfg.StopLossPct, s.cfg.TakeProfitPct)
	orderID, err := s.exec.PlaceOrder(execution.OrderRequest{
		Symbol:     s.cfg.Symbol,
		Side:       side,
		Size:       dec.Size,
		Price:      bar.Close,
		StopLoss:   sl,
		TakeProfit: tp,
	})
	if err != nil {
		// rolled back: no position is recorded
		s.appendExecError(bar, "place", err)
		return
	}
	req.OrderID = orderID

	p, err := s.tracker.Open(req)
	if err != nil {
		s.log.Error("open position", zap.Error(err))
		return
	}
	s.events.Append(Event{Ts: bar.Timestamp, Type: EventPositionOpened, Symbol: s.cfg.Symbol,
		Details: map[string]string{
			"id":       p.ID,
			"side":     p.Side.String(),
			"entry":    p.EntryPrice.String(),
			"size_usd": p.SizeUSD.String(),
			"leverage": strconv.FormatFloat(dec.Leverage, 'f', 2, 64),
		}})
}

func (s *Session) applyClose(bar market.Bar, trade *position.Trade) {
	halted := s.risk.OnTradeClosed(trade.Pnl)
	s.events.Append(Event{Ts: bar.Timestamp, Type: EventPositionClosed, Symbol: s.cfg.Symbol,
		Details: map[string]string{
			"id":     trade.Position.ID,
			"reason": string(trade.ExitReason),
			"exit":   trade.ExitPrice.String(),
			"pnl":    trade.Pnl.String(),
		}})
	if halted {
		s.events.Append(Event{Ts: bar.Timestamp, Type: EventTradingHalted, Symbol: s.cfg.Symbol,
			Details: map[string]string{
				"overall_loss": s.risk.State().OverallLossAccumulated.String(),
			}})
	}
}

func (s *Session) appendExecError(bar market.Bar, op string, err error) {
	execErr := &ExecutionError{Op: op, Err: err}
	s.log.Warn("execution failure", zap.Error(execErr))
	s.events.Append(Event{Ts: bar.Timestamp, Type: EventExecutionError, Symbol: s.cfg.Symbol,
		Details: map[string]string{"op": op, "error": err.Error()}})
}

// markedEquity is realized equity plus open unrealized PnL at the bar close.
func (s *Session) markedEquity(bar market.Bar) decimal.Decimal {
	eq := s.risk.State().CurrentEquity
	if p := s.tracker.Get(s.cfg.Symbol); p != nil {
		eq = eq.Add(p.Unrealized(bar.Close))
	}
	return eq
}

func (s *Session) lastClose() decimal.Decimal {
	if len(s.bars) == 0 {
		return decimal.Zero
	}
	return s.bars[len(s.bars)-1].Close
}

// FinishBacktest force-closes any still-open position at the final
// bar's close with the end_of_backtest reason.
func (s *Session) FinishBacktest() {
	if len(s.bars) == 0 {
		return
	}
	last := s.bars[len(s.bars)-1]
	if trade := s.tracker.ForceClose(s.cfg.Symbol, last.Close, position.ReasonEndOfBacktest, last.Timestamp); trade != nil {
		s.applyClose(last, trade)
	}
}
