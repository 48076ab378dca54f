// Command run_backtest replays a historical bar series through the
// mean-reversion engine and prints the performance report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"meanrev-bot/services/barcache"
	"meanrev-bot/services/config"
	"meanrev-bot/services/engine"
	"meanrev-bot/services/execution"
	"meanrev-bot/services/feed"
	"meanrev-bot/services/market"
	"meanrev-bot/services/risk"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config path (defaults applied when empty)")
	preset := flag.String("preset", "", "parameter preset: base, aggressive, intraday, debug")
	csvPath := flag.String("csv", "", "load bars from a CSV file")
	cachePath := flag.String("cache", "", "load bars from an Arrow cache file")
	symbol := flag.String("symbol", "", "symbol to backtest (default: first configured)")
	interval := flag.String("interval", "1h", "bar interval for ClickHouse loads")
	from := flag.String("from", "2023-01-01 00:00:00", "start UTC (YYYY-MM-DD HH:MM:SS)")
	to := flag.String("to", "2024-01-01 00:00:00", "end UTC (YYYY-MM-DD HH:MM:SS)")
	envFile := flag.String("env", "", "optional .env file with store credentials")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config.LoadDotenv(*envFile)

	cfg, err := loadConfig(*cfgPath, *preset)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	sym := *symbol
	if sym == "" {
		sym = cfg.Symbols[0]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bars, err := loadBars(ctx, cfg, sym, *interval, *csvPath, *cachePath, *from, *to, logger)
	if err != nil {
		logger.Fatal("load bars", zap.Error(err))
	}
	if len(bars) == 0 {
		logger.Fatal("no bars to replay", zap.String("symbol", sym))
	}
	logger.Info("loaded bars",
		zap.String("symbol", sym),
		zap.Int("count", len(bars)),
		zap.Time("first", bars[0].Time()),
		zap.Time("last", bars[len(bars)-1].Time()))

	session := engine.NewSession(
		cfg.BuildSession(sym),
		cfg.BuildStrategy(),
		risk.NewManager(cfg.BuildRisk(), logger),
		execution.NewSimulator(),
		logger,
	)

	report, err := engine.Run(ctx, feed.NewSliceFeed(bars), session, cfg.Backtest.AnnualizationBars)
	if err != nil {
		logger.Fatal("backtest", zap.Error(err))
	}

	logger.Info("backtest finished",
		zap.String("run_id", report.RunID),
		zap.String("symbol", report.Symbol),
		zap.String("initial_equity", report.InitialEquity.String()),
		zap.String("final_equity", report.FinalEquity.String()),
		zap.Int("trades", report.TotalTrades),
		zap.Int("wins", report.WinningTrades),
		zap.Int("losses", report.LosingTrades),
		zap.Float64("win_rate", report.WinRate),
		zap.String("avg_win", report.AvgWin.String()),
		zap.String("avg_loss", report.AvgLoss.String()),
		zap.Float64("profit_factor", report.ProfitFactor),
		zap.Float64("max_drawdown", report.MaxDrawdown),
		zap.Float64("sharpe", report.SharpeRatio),
		zap.Int("bars", report.BarsProcessed),
		zap.Int("skipped_bars", report.SkippedBars))

	for _, e := range session.Events().ByType(engine.EventTradingHalted) {
		logger.Warn("trading halted during run", zap.Time("at", time.UnixMilli(e.Ts).UTC()))
	}
}

func loadConfig(path, preset string) (config.Config, error) {
	if preset != "" {
		return config.Preset(preset)
	}
	return config.Load(path)
}

func loadBars(ctx context.Context, cfg config.Config, sym, interval, csvPath, cachePath, from, to string, logger *zap.Logger) ([]market.Bar, error) {
	switch {
	case csvPath != "":
		bars, dropped, err := feed.LoadCSV(csvPath)
		if dropped > 0 {
			logger.Warn("dropped malformed csv rows", zap.Int("count", dropped))
		}
		return bars, err
	case cachePath != "":
		return barcache.Read(cachePath)
	default:
		fromMs, toMs, err := parseRange(from, to)
		if err != nil {
			return nil, err
		}
		store, err := feed.OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.FetchBars(ctx, sym, interval, fromMs, toMs)
	}
}

func parseRange(from, to string) (int64, int64, error) {
	const layout = "2006-01-02 15:04:05"
	f, err := time.ParseInLocation(layout, from, time.UTC)
	if err != nil {
		return 0, 0, fmt.Errorf("parse -from: %w", err)
	}
	t, err := time.ParseInLocation(layout, to, time.UTC)
	if err != nil {
		return 0, 0, fmt.Errorf("parse -to: %w", err)
	}
	if !t.After(f) {
		return 0, 0, fmt.Errorf("-to must be after -from")
	}
	return f.UnixMilli(), t.UnixMilli(), nil
}
