// Package risk owns running equity, win/loss streaks, the dynamic
// leverage multiplier and the hard loss ceilings. One Manager serves one
// symbol session; multi-symbol runs get independent managers.
package risk

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the risk parameters for one session.
type Config struct {
	InitialEquity        decimal.Decimal
	PositionSizeFraction float64 // fraction of equity committed per trade
	BaseLeverage         float64
	MaxLeverage          float64
	LeverageStep         float64 // added per winning close at or past the streak threshold
	WinStreakThreshold   int
	LossStreakThreshold  int
	MaxDailyLoss         float64 // fraction of initial equity
	MaxOverallLoss       float64 // fraction of initial equity
	MarginCallFraction   float64 // equity floor as fraction of open notional
	SpreadCostPct        float64 // optional transaction-cost haircut on sizing, 0 = off
	MaxPositions         int     // concurrent position cap, default 1
}

// State is the mutable per-session risk state. It is reset at session
// start and survives across bars until the session is torn down.
type State struct {
	InitialEquity          decimal.Decimal
	CurrentEquity          decimal.Decimal
	DailyStartEquity       decimal.Decimal
	DailyLossAccumulated   decimal.Decimal
	OverallLossAccumulated decimal.Decimal
	CurrentLeverage        float64
	WinStreak              int
	LossStreak             int
	TradingHalted          bool
}

// Decision is the outcome of an entry authorization.
type Decision struct {
	Approved bool
	Reason   string // populated when refused
	Size     decimal.Decimal
	Leverage float64
}

// Refusal reasons surfaced in Decision.Reason.
const (
	RefuseSlotOccupied = "position_slot_occupied"
	RefuseDailyLoss    = "daily_loss_limit"
	RefuseOverallLoss  = "overall_loss_limit"
	RefuseHalted       = "trading_halted"
)

// Manager enforces sizing and gating rules. Not safe for concurrent use;
// ownership stays with the simulation loop.
type Manager struct {
	cfg        Config
	state      State
	currentDay int64 // UTC day number of the last bar seen
	log        *zap.Logger
}

// NewManager creates a manager with fresh state. A nil logger is
// replaced with a no-op one.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 1
	}
	return &Manager{
		cfg: cfg,
		state: State{
			InitialEquity:    cfg.InitialEquity,
			CurrentEquity:    cfg.InitialEquity,
			DailyStartEquity: cfg.InitialEquity,
			CurrentLeverage:  cfg.BaseLeverage,
		},
		currentDay: -1,
		log:        log,
	}
}

// State returns a copy of the current risk state.
func (m *Manager) State() State { return m.state }

// Config returns the manager's configuration.
func (m *Manager) Config() Config { return m.cfg }

// RollDay resets the daily loss accumulator when the bar's UTC date
// changes. Returns true on a rollover.
func (m *Manager) RollDay(ts int64) bool {
	day := ts / 86_400_000
	if day == m.currentDay {
		return false
	}
	first := m.currentDay == -1
	m.currentDay = day
	if first {
		return false
	}
	m.state.DailyLossAccumulated = decimal.Zero
	m.state.DailyStartEquity = m.state.CurrentEquity
	return true
}

// Authorize decides whether a new entry may open and, if so, its size
// and leverage. openCount is the number of positions currently held by
// the lifecycle tracker.
func (m *Manager) Authorize(openCount int) Decision {
	if m.state.TradingHalted {
		return Decision{Reason: RefuseHalted}
	}
	if openCount >= m.cfg.MaxPositions {
		return Decision{Reason: RefuseSlotOccupied}
	}
	// overall before daily: the overall ceiling never resets, so it is
	// the stronger refusal when one loss breaches both
	if m.state.OverallLossAccumulated.GreaterThanOrEqual(m.lossLimit(m.cfg.MaxOverallLoss)) {
		return Decision{Reason: RefuseOverallLoss}
	}
	if m.state.DailyLossAccumulated.GreaterThanOrEqual(m.lossLimit(m.cfg.MaxDailyLoss)) {
		return Decision{Reason: RefuseDailyLoss}
	}

	size := m.state.CurrentEquity.
		Mul(decimal.NewFromFloat(m.cfg.PositionSizeFraction)).
		Mul(decimal.NewFromFloat(m.state.CurrentLeverage))
	if m.cfg.SpreadCostPct > 0 {
		size = size.Mul(decimal.NewFromFloat(1 - m.cfg.SpreadCostPct))
	}
	return Decision{Approved: true, Size: size, Leverage: m.state.CurrentLeverage}
}

// OnTradeClosed applies a realized PnL: equity, loss accumulators,
// streaks and the leverage multiplier. Returns true when this close
// tripped the overall loss circuit breaker.
func (m *Manager) OnTradeClosed(pnl decimal.Decimal) (halted bool) {
	m.state.CurrentEquity = m.state.CurrentEquity.Add(pnl)

	switch {
	case pnl.IsPositive():
		m.state.WinStreak++
		m.state.LossStreak = 0
		if m.state.WinStreak >= m.cfg.WinStreakThreshold && m.cfg.WinStreakThreshold > 0 {
			next := m.state.CurrentLeverage + m.cfg.LeverageStep
			if next > m.cfg.MaxLeverage {
				next = m.cfg.MaxLeverage
			}
			m.state.CurrentLeverage = next
		} else {
			m.state.CurrentLeverage = m.cfg.BaseLeverage
		}
	case pnl.IsNegative():
		m.state.LossStreak++
		m.state.WinStreak = 0
		loss := pnl.Neg()
		m.state.DailyLossAccumulated = m.state.DailyLossAccumulated.Add(loss)
		m.state.OverallLossAccumulated = m.state.OverallLossAccumulated.Add(loss)
		if m.state.LossStreak >= m.cfg.LossStreakThreshold && m.cfg.LossStreakThreshold > 0 {
			// full reset, never a gradual step-down
			m.state.CurrentLeverage = m.cfg.BaseLeverage
		}
	default:
		// break-even trade: streaks neither extend nor reset
	}

	if !m.state.TradingHalted &&
		m.state.OverallLossAccumulated.GreaterThanOrEqual(m.lossLimit(m.cfg.MaxOverallLoss)) {
		m.state.TradingHalted = true
		m.log.Warn("overall loss limit breached, trading halted",
			zap.String("overall_loss", m.state.OverallLossAccumulated.String()),
			zap.String("equity", m.state.CurrentEquity.String()))
		return true
	}
	return false
}

// MarginCall reports whether an open position must be force-closed:
// equity including unrealized PnL has fallen below the configured
// fraction of the position's notional.
func (m *Manager) MarginCall(notional, unrealized decimal.Decimal) bool {
	if m.cfg.MarginCallFraction <= 0 || notional.IsZero() {
		return false
	}
	floor := notional.Mul(decimal.NewFromFloat(m.cfg.MarginCallFraction))
	return m.state.CurrentEquity.Add(unrealized).LessThan(floor)
}

// ResetHalt clears the overall-loss circuit breaker. The halt never
// clears on its own; an operator has to call this.
func (m *Manager) ResetHalt() {
	if m.state.TradingHalted {
		m.state.TradingHalted = false
		m.log.Info("trading halt cleared by external reset")
	}
}

func (m *Manager) lossLimit(fraction float64) decimal.Decimal {
	return m.state.InitialEquity.Mul(decimal.NewFromFloat(fraction))
}
