// Package config loads and validates the bot configuration. All the
// original aggressive/intraday/debug strategy variants are presets over
// one parameter set; invalid parameters fail at session start, never
// mid-run.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"meanrev-bot/services/engine"
	"meanrev-bot/services/feed"
	"meanrev-bot/services/risk"
	"meanrev-bot/strategies"
)

// StrategyConfig parameterizes the mean-reversion signal generator.
type StrategyConfig struct {
	LookbackWindow   int     `yaml:"lookback_window"`
	Threshold        float64 `yaml:"threshold"`
	ConfirmationBars int     `yaml:"confirmation_bars"`

	VolatilityFilter bool    `yaml:"volatility_filter"`
	AtrPeriod        int     `yaml:"atr_period"`
	MinAtr           float64 `yaml:"min_atr"`

	TrendFilter     bool    `yaml:"trend_filter"`
	TrendPeriod     int     `yaml:"trend_period"`
	TrendSlopeBars  int     `yaml:"trend_slope_bars"`
	TrendSlopeLimit float64 `yaml:"trend_slope_limit"`

	MomentumFilter bool    `yaml:"momentum_filter"`
	RsiPeriod      int     `yaml:"rsi_period"`
	RsiOversold    float64 `yaml:"rsi_oversold"`
	RsiOverbought  float64 `yaml:"rsi_overbought"`

	SessionFilter      bool `yaml:"session_filter"`
	SessionStartMinute int  `yaml:"session_start_minute"`
	SessionEndMinute   int  `yaml:"session_end_minute"`
}

// RiskConfig parameterizes sizing, leverage and the loss ceilings.
type RiskConfig struct {
	InitialEquity        float64 `yaml:"initial_equity"`
	PositionSizeFraction float64 `yaml:"position_size_fraction"`
	BaseLeverage         float64 `yaml:"base_leverage"`
	MaxLeverage          float64 `yaml:"max_leverage"`
	LeverageStep         float64 `yaml:"leverage_step"`
	WinStreakThreshold   int     `yaml:"winning_streak_threshold"`
	LossStreakThreshold  int     `yaml:"losing_streak_threshold"`
	MaxDailyLoss         float64 `yaml:"max_daily_loss"`
	MaxOverallLoss       float64 `yaml:"max_overall_loss"`
	MarginCallFraction   float64 `yaml:"margin_call_fraction"`
	SpreadCostPct        float64 `yaml:"spread_cost_pct"`
	MaxPositions         int     `yaml:"max_positions"`
}

// PositionConfig parameterizes the per-position exit rules.
type PositionConfig struct {
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	TrailingStop        bool    `yaml:"trailing_stop"`
	TrailingPct         float64 `yaml:"trailing_pct"`
	Breakeven           bool    `yaml:"breakeven"`
	BreakevenTriggerPct float64 `yaml:"breakeven_trigger_pct"`
}

// BacktestConfig parameterizes the simulation loop.
type BacktestConfig struct {
	AnnualizationBars float64 `yaml:"annualization_bars"`
	MaxHistoryBars    int     `yaml:"max_history_bars"`
}

// Config is the full bot configuration.
type Config struct {
	Symbols    []string              `yaml:"symbols"`
	Strategy   StrategyConfig        `yaml:"strategy"`
	Risk       RiskConfig            `yaml:"risk"`
	Position   PositionConfig        `yaml:"position"`
	Backtest   BacktestConfig        `yaml:"backtest"`
	ClickHouse feed.ClickHouseConfig `yaml:"clickhouse"`
}

// Default returns the base parameter set.
func Default() Config {
	return Config{
		Symbols: []string{"EURUSD"},
		Strategy: StrategyConfig{
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
		},
		Risk: RiskConfig{
			InitialEquity:        10_000,
			PositionSizeFraction: 0.10,
			BaseLeverage:         1.0,
			MaxLeverage:          5.0,
			LeverageStep:         1.0,
			WinStreakThreshold:   3,
			LossStreakThreshold:  2,
			MaxDailyLoss:         0.02,
			MaxOverallLoss:       0.04,
			MarginCallFraction:   0.5,
			MaxPositions:         1,
		},
		Position: PositionConfig{
			StopLossPct:   0.05,
			TakeProfitPct: 0.10,
		},
		Backtest: BacktestConfig{
			AnnualizationBars: 252 * 24, // hourly bars
		},
		ClickHouse: feed.ClickHouseConfig{
			Addr:     "localhost:9000",
			Database: "backtest",
			Table:    "data",
		},
	}
}

// Preset returns a named parameter variant. The variants replace the
// old copy-pasted strategy files, which differed only in constants.
func Preset(name string) (Config, error) {
	cfg := Default()
	switch strings.ToLower(name) {
	case "", "base":
	case "aggressive":
		cfg.Strategy.Threshold = 0.005
		cfg.Risk.PositionSizeFraction = 0.20
		cfg.Risk.MaxLeverage = 10
	case "intraday":
		cfg.Strategy.LookbackWindow = 12
		cfg.Strategy.SessionFilter = true
		cfg.Strategy.SessionStartMinute = 7 * 60
		cfg.Strategy.SessionEndMinute = 17 * 60
		cfg.Position.StopLossPct = 0.02
		cfg.Position.TakeProfitPct = 0.04
	case "debug":
		cfg.Strategy.Threshold = 0.001
		cfg.Risk.MaxDailyLoss = 1
		cfg.Risk.MaxOverallLoss = 1
	default:
		return cfg, fmt.Errorf("unknown preset %q", name)
	}
	return cfg, nil
}

// Load reads a YAML file over the defaults and applies env overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadDotenv merges a .env file into the process environment, ignoring
// a missing file.
func LoadDotenv(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		c.ClickHouse.Addr = v
	}
	if v := os.Getenv("CH_DATABASE"); v != "" {
		c.ClickHouse.Database = v
	}
	if v := os.Getenv("CH_TABLE"); v != "" {
		c.ClickHouse.Table = v
	}
	if v := os.Getenv("CH_USER"); v != "" {
		c.ClickHouse.User = v
	}
	if v := os.Getenv("CH_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
}

// ValidationError reports every invalid parameter found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate fails fast on invalid parameter ranges, before any bar is
// processed.
func (c *Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Symbols) == 0 {
		bad("at least one symbol is required")
	}
	if c.Strategy.LookbackWindow <= 0 {
		bad("strategy.lookback_window must be positive, got %d", c.Strategy.LookbackWindow)
	}
	if c.Strategy.Threshold <= 0 || c.Strategy.Threshold >= 1 {
		bad("strategy.threshold must be in (0,1), got %g", c.Strategy.Threshold)
	}
	if c.Strategy.ConfirmationBars < 1 {
		bad("strategy.confirmation_bars must be >= 1, got %d", c.Strategy.ConfirmationBars)
	}
	if c.Strategy.VolatilityFilter && c.Strategy.AtrPeriod <= 0 {
		bad("strategy.atr_period must be positive when the volatility filter is on")
	}
	if c.Strategy.MomentumFilter && (c.Strategy.RsiOversold >= c.Strategy.RsiOverbought) {
		bad("strategy.rsi_oversold must be below rsi_overbought")
	}
	if c.Strategy.SessionFilter {
		for _, m := range []int{c.Strategy.SessionStartMinute, c.Strategy.SessionEndMinute} {
			if m < 0 || m >= 24*60 {
				bad("session minutes must be within [0,1440), got %d", m)
			}
		}
	}
	if c.Risk.InitialEquity <= 0 {
		bad("risk.initial_equity must be positive, got %g", c.Risk.InitialEquity)
	}
	if c.Risk.PositionSizeFraction <= 0 || c.Risk.PositionSizeFraction > 1 {
		bad("risk.position_size_fraction must be in (0,1], got %g", c.Risk.PositionSizeFraction)
	}
	if c.Risk.BaseLeverage < 1 {
		bad("risk.base_leverage must be >= 1, got %g", c.Risk.BaseLeverage)
	}
	if c.Risk.MaxLeverage < c.Risk.BaseLeverage {
		bad("risk.max_leverage must be >= base_leverage")
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDailyLoss > 1 {
		bad("risk.max_daily_loss must be in (0,1], got %g", c.Risk.MaxDailyLoss)
	}
	if c.Risk.MaxOverallLoss <= 0 || c.Risk.MaxOverallLoss > 1 {
		bad("risk.max_overall_loss must be in (0,1], got %g", c.Risk.MaxOverallLoss)
	}
	if c.Risk.MaxOverallLoss < c.Risk.MaxDailyLoss {
		bad("risk.max_overall_loss must be >= max_daily_loss")
	}
	if c.Risk.MarginCallFraction < 0 || c.Risk.MarginCallFraction >= 1 {
		bad("risk.margin_call_fraction must be in [0,1), got %g", c.Risk.MarginCallFraction)
	}
	if c.Position.StopLossPct <= 0 || c.Position.StopLossPct >= 1 {
		bad("position.stop_loss_pct must be in (0,1), got %g", c.Position.StopLossPct)
	}
	if c.Position.TakeProfitPct <= 0 {
		bad("position.take_profit_pct must be positive, got %g", c.Position.TakeProfitPct)
	}
	if c.Position.TrailingStop && (c.Position.TrailingPct <= 0 || c.Position.TrailingPct >= 1) {
		bad("position.trailing_pct must be in (0,1) when trailing is on")
	}
	if c.Backtest.MaxHistoryBars > 0 {
		if need := c.minHistoryBars(); c.Backtest.MaxHistoryBars < need {
			bad("backtest.max_history_bars %d retains less history than the enabled indicator windows need (%d)",
				c.Backtest.MaxHistoryBars, need)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// minHistoryBars is the largest trailing window any enabled indicator
// reads; trimming history below it silently starves the filters.
func (c *Config) minHistoryBars() int {
	need := c.Strategy.LookbackWindow
	if c.Strategy.VolatilityFilter && c.Strategy.AtrPeriod+1 > need {
		need = c.Strategy.AtrPeriod + 1
	}
	if c.Strategy.TrendFilter && c.Strategy.TrendPeriod+c.Strategy.TrendSlopeBars > need {
		need = c.Strategy.TrendPeriod + c.Strategy.TrendSlopeBars
	}
	if c.Strategy.MomentumFilter && c.Strategy.RsiPeriod+1 > need {
		need = c.Strategy.RsiPeriod + 1
	}
	return need
}

// BuildStrategy maps the configuration onto a signal generator.
func (c *Config) BuildStrategy() *strategies.MeanReversion {
	s := strategies.NewMeanReversion()
	s.LookbackWindow = c.Strategy.LookbackWindow
	s.Threshold = c.Strategy.Threshold
	s.ConfirmationBars = c.Strategy.ConfirmationBars
	s.VolatilityEnabled = c.Strategy.VolatilityFilter
	s.AtrPeriod = c.Strategy.AtrPeriod
	s.MinATR = c.Strategy.MinAtr
	s.TrendEnabled = c.Strategy.TrendFilter
	s.TrendPeriod = c.Strategy.TrendPeriod
	s.TrendSlopeBars = c.Strategy.TrendSlopeBars
	s.TrendSlopeLimit = c.Strategy.TrendSlopeLimit
	s.MomentumEnabled = c.Strategy.MomentumFilter
	s.RsiPeriod = c.Strategy.RsiPeriod
	s.RsiOversold = c.Strategy.RsiOversold
	s.RsiOverbought = c.Strategy.RsiOverbought
	s.Session = strategies.SessionWindow{
		Enabled:     c.Strategy.SessionFilter,
		StartMinute: c.Strategy.SessionStartMinute,
		EndMinute:   c.Strategy.SessionEndMinute,
	}
	return s
}

// BuildRisk maps the configuration onto a risk manager config.
func (c *Config) BuildRisk() risk.Config {
	return risk.Config{
		InitialEquity:        decimal.NewFromFloat(c.Risk.InitialEquity),
		PositionSizeFraction: c.Risk.PositionSizeFraction,
		BaseLeverage:         c.Risk.BaseLeverage,
		MaxLeverage:          c.Risk.MaxLeverage,
		LeverageStep:         c.Risk.LeverageStep,
		WinStreakThreshold:   c.Risk.WinStreakThreshold,
		LossStreakThreshold:  c.Risk.LossStreakThreshold,
		MaxDailyLoss:         c.Risk.MaxDailyLoss,
		MaxOverallLoss:       c.Risk.MaxOverallLoss,
		MarginCallFraction:   c.Risk.MarginCallFraction,
		SpreadCostPct:        c.Risk.SpreadCostPct,
		MaxPositions:         c.Risk.MaxPositions,
	}
}

// BuildSession maps the configuration onto a per-symbol session config.
func (c *Config) BuildSession(symbol string) engine.SessionConfig {
	return engine.SessionConfig{
		Symbol:              symbol,
		StopLossPct:         c.Position.StopLossPct,
		TakeProfitPct:       c.Position.TakeProfitPct,
		TrailingEnabled:     c.Position.TrailingStop,
		TrailingPct:         c.Position.TrailingPct,
		BreakevenEnabled:    c.Position.Breakeven,
		BreakevenTriggerPct: c.Position.BreakevenTriggerPct,
		MaxHistoryBars:      c.Backtest.MaxHistoryBars,
	}
}
