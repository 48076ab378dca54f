// Command fetch_candles exports a bar series from the ClickHouse candle
// store into a local Arrow cache (or CSV) for offline backtests.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"meanrev-bot/services/barcache"
	"meanrev-bot/services/config"
	"meanrev-bot/services/feed"
	"meanrev-bot/services/market"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config path")
	symbol := flag.String("symbol", "EURUSD", "symbol to export")
	interval := flag.String("interval", "1h", "bar interval")
	from := flag.String("from", "2023-01-01 00:00:00", "start UTC (YYYY-MM-DD HH:MM:SS)")
	to := flag.String("to", "2024-01-01 00:00:00", "end UTC (YYYY-MM-DD HH:MM:SS)")
	out := flag.String("out", "./candles.arrow", "output path (.arrow or .csv)")
	asCSV := flag.Bool("csv", false, "write CSV instead of an Arrow cache")
	envFile := flag.String("env", "", "optional .env file with store credentials")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config.LoadDotenv(*envFile)
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fromMs, err := parseUTC(*from)
	if err != nil {
		logger.Fatal("parse -from", zap.Error(err))
	}
	toMs, err := parseUTC(*to)
	if err != nil {
		logger.Fatal("parse -to", zap.Error(err))
	}

	store, err := feed.OpenClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	bars, err := store.FetchBars(ctx, *symbol, *interval, fromMs, toMs)
	if err != nil {
		logger.Fatal("fetch bars", zap.Error(err))
	}
	logger.Info("fetched bars", zap.String("symbol", *symbol), zap.Int("count", len(bars)))

	if *asCSV {
		err = writeCSV(*out, bars)
	} else {
		err = barcache.Write(*out, bars)
	}
	if err != nil {
		logger.Fatal("write output", zap.Error(err))
	}
	logger.Info("wrote output", zap.String("path", *out))
}

func parseUTC(s string) (int64, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func writeCSV(path string, bars []market.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp_ms", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			fmt.Sprintf("%d", b.Timestamp),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
