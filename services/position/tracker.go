// Package position owns open positions and applies stop-loss,
// take-profit, trailing-stop and breakeven rules bar by bar.
package position

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"meanrev-bot/services/market"
)

// ExitReason labels the terminal transition of a position.
type ExitReason string

const (
	ReasonStopLoss      ExitReason = "stop_loss"
	ReasonTakeProfit    ExitReason = "take_profit"
	ReasonMarginCall    ExitReason = "margin_call"
	ReasonEndOfBacktest ExitReason = "end_of_backtest"
	ReasonForced        ExitReason = "forced"
)

// Position is an open trade. It is owned exclusively by the Tracker and
// mutated in place until closed.
type Position struct {
	ID         string
	Symbol     string
	Side       market.Side
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal // units of the instrument
	SizeUSD    decimal.Decimal // notional at entry
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	OpenedAt   int64
	BarsHeld   int

	TrailingEnabled     bool
	TrailingPct         float64
	BreakevenEnabled    bool
	BreakevenTriggerPct float64
	BreakevenTriggered  bool
}

// Notional is the current mark value of the position.
func (p *Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// Unrealized returns mark-to-market PnL at the given price.
func (p *Position) Unrealized(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Side == market.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity)
}

// Trade is a closed ledger entry, immutable once appended.
type Trade struct {
	Position   Position // snapshot at close
	ExitPrice  decimal.Decimal
	ExitReason ExitReason
	Pnl        decimal.Decimal
	ClosedAt   int64
}

// OrderModifier is the slice of the order-execution capability the
// tracker needs for stop adjustments.
type OrderModifier interface {
	ModifyOrder(orderID string, stopLoss, takeProfit decimal.Decimal) error
}

// OpenRequest describes a new position to record. OrderID carries the
// executor's order ID so later stop adjustments reference it; when empty
// a fresh ID is generated.
type OpenRequest struct {
	OrderID             string
	Symbol              string
	Side                market.Side
	EntryPrice          decimal.Decimal
	SizeUSD             decimal.Decimal
	StopLossPct         float64
	TakeProfitPct       float64
	OpenedAt            int64
	TrailingEnabled     bool
	TrailingPct         float64
	BreakevenEnabled    bool
	BreakevenTriggerPct float64
}

// StepResult reports what happened to a position during one bar.
type StepResult struct {
	Closed   *Trade // non-nil when the position closed this bar
	Adjusted bool   // stop moved (trailing or breakeven)
	ExecErr  error  // order modification failed; adjustment rolled back
}

// Tracker holds at most one open position per symbol plus the closed
// trade ledger. Owned by the simulation loop; not safe for concurrent use.
type Tracker struct {
	open   map[string]*Position
	ledger []Trade
}

func NewTracker() *Tracker {
	return &Tracker{open: make(map[string]*Position)}
}

// OpenCount returns the number of open positions.
func (t *Tracker) OpenCount() int { return len(t.open) }

// Get returns the open position for symbol, or nil.
func (t *Tracker) Get(symbol string) *Position { return t.open[symbol] }

// Ledger returns the closed trades in close order.
func (t *Tracker) Ledger() []Trade { return t.ledger }

// ExitLevels derives the protective stop-loss and take-profit prices
// from the entry price and the fractional distances, mirrored for
// shorts. Shared by the tracker and by order placement so the venue
// sees the same levels the tracker enforces.
func ExitLevels(side market.Side, entry decimal.Decimal, stopLossPct, takeProfitPct float64) (sl, tp decimal.Decimal) {
	slF := decimal.NewFromFloat(1 - stopLossPct)
	tpF := decimal.NewFromFloat(1 + takeProfitPct)
	if side == market.SideShort {
		slF = decimal.NewFromFloat(1 + stopLossPct)
		tpF = decimal.NewFromFloat(1 - takeProfitPct)
	}
	return entry.Mul(slF), entry.Mul(tpF)
}

// Open records a new position. The symbol's single-position slot must be
// free; the risk manager gates this upstream but the tracker re-checks.
func (t *Tracker) Open(req OpenRequest) (*Position, error) {
	if _, ok := t.open[req.Symbol]; ok {
		return nil, fmt.Errorf("position slot for %s already occupied", req.Symbol)
	}
	if req.Side != market.SideLong && req.Side != market.SideShort {
		return nil, fmt.Errorf("cannot open flat position for %s", req.Symbol)
	}
	sl, tp := ExitLevels(req.Side, req.EntryPrice, req.StopLossPct, req.TakeProfitPct)
	id := req.OrderID
	if id == "" {
		id = uuid.New().String()
	}
	p := &Position{
		ID:                  id,
		Symbol:              req.Symbol,
		Side:                req.Side,
		EntryPrice:          req.EntryPrice,
		SizeUSD:             req.SizeUSD,
		Quantity:            req.SizeUSD.Div(req.EntryPrice),
		StopLoss:            sl,
		TakeProfit:          tp,
		OpenedAt:            req.OpenedAt,
		TrailingEnabled:     req.TrailingEnabled,
		TrailingPct:         req.TrailingPct,
		BreakevenEnabled:    req.BreakevenEnabled,
		BreakevenTriggerPct: req.BreakevenTriggerPct,
	}
	t.open[req.Symbol] = p
	return p, nil
}

// Step advances the open position for symbol through one bar: trailing
// and breakeven adjustments first, then exit checks with stop-loss
// taking precedence over take-profit inside the same bar (bar-level data
// cannot determine the true intrabar order, so the conservative
// assumption wins).
func (t *Tracker) Step(symbol string, bar market.Bar, mod OrderModifier) StepResult {
	p, ok := t.open[symbol]
	if !ok {
		return StepResult{}
	}
	p.BarsHeld++

	var res StepResult
	if newSL, want := t.adjustedStop(p, bar.Close); want {
		if mod != nil {
			if err := mod.ModifyOrder(p.ID, newSL, p.TakeProfit); err != nil {
				// roll back: stop stays where it was
				res.ExecErr = fmt.Errorf("modify order %s: %w", p.ID, err)
				newSL = p.StopLoss
				want = false
			}
		}
		if want {
			p.StopLoss = newSL
			res.Adjusted = true
		}
	}

	if exit, reason, hit := t.exitTouched(p, bar); hit {
		res.Closed = t.close(p, exit, reason, bar.Timestamp)
	}
	return res
}

// adjustedStop computes the tightest stop the trailing and breakeven
// rules allow at the current price. Stops only ever move in the
// direction that reduces risk.
func (t *Tracker) adjustedStop(p *Position, price decimal.Decimal) (decimal.Decimal, bool) {
	sl := p.StopLoss
	moved := false
	tighter := func(candidate decimal.Decimal) bool {
		if p.Side == market.SideLong {
			return candidate.GreaterThan(sl)
		}
		return candidate.LessThan(sl)
	}

	if p.TrailingEnabled && p.TrailingPct > 0 {
		factor := decimal.NewFromFloat(1 - p.TrailingPct)
		if p.Side == market.SideShort {
			factor = decimal.NewFromFloat(1 + p.TrailingPct)
		}
		if c := price.Mul(factor); tighter(c) {
			sl = c
			moved = true
		}
	}

	if p.BreakevenEnabled && !p.BreakevenTriggered {
		trigger := decimal.NewFromFloat(p.BreakevenTriggerPct)
		profitPct := price.Sub(p.EntryPrice).Div(p.EntryPrice)
		if p.Side == market.SideShort {
			profitPct = profitPct.Neg()
		}
		if profitPct.GreaterThan(trigger) {
			p.BreakevenTriggered = true // exactly once, idempotent thereafter
			if tighter(p.EntryPrice) {
				sl = p.EntryPrice
				moved = true
			}
		}
	}
	return sl, moved
}

// exitTouched checks stop-loss then take-profit against the bar range.
// Fills honor gaps: a bar opening beyond the level fills at the open.
func (t *Tracker) exitTouched(p *Position, bar market.Bar) (decimal.Decimal, ExitReason, bool) {
	if p.Side == market.SideLong {
		if bar.Low.LessThanOrEqual(p.StopLoss) {
			return fillThrough(bar.Open, p.StopLoss, true), ReasonStopLoss, true
		}
		if bar.High.GreaterThanOrEqual(p.TakeProfit) {
			return fillThrough(bar.Open, p.TakeProfit, false), ReasonTakeProfit, true
		}
		return decimal.Zero, "", false
	}
	if bar.High.GreaterThanOrEqual(p.StopLoss) {
		return fillThrough(bar.Open, p.StopLoss, false), ReasonStopLoss, true
	}
	if bar.Low.LessThanOrEqual(p.TakeProfit) {
		return fillThrough(bar.Open, p.TakeProfit, true), ReasonTakeProfit, true
	}
	return decimal.Zero, "", false
}

// fillThrough returns the level, or the open when the bar gapped through
// it (below when below is true).
func fillThrough(open, level decimal.Decimal, below bool) decimal.Decimal {
	if below && open.LessThanOrEqual(level) {
		return open
	}
	if !below && open.GreaterThanOrEqual(level) {
		return open
	}
	return level
}

// ForceClose closes the open position for symbol at the given price,
// e.g. on a margin call or at the end of a backtest.
func (t *Tracker) ForceClose(symbol string, price decimal.Decimal, reason ExitReason, ts int64) *Trade {
	p, ok := t.open[symbol]
	if !ok {
		return nil
	}
	return t.close(p, price, reason, ts)
}

func (t *Tracker) close(p *Position, exit decimal.Decimal, reason ExitReason, ts int64) *Trade {
	trade := Trade{
		Position:   *p,
		ExitPrice:  exit,
		ExitReason: reason,
		Pnl:        p.Unrealized(exit),
		ClosedAt:   ts,
	}
	delete(t.open, p.Symbol)
	t.ledger = append(t.ledger, trade)
	return &t.ledger[len(t.ledger)-1]
}
