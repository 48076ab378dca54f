// Command resample_csv aggregates a bar CSV into a coarser interval,
// e.g. 5m candles into 1h, so one export can feed backtests at several
// timeframes.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"meanrev-bot/services/feed"
	"meanrev-bot/services/market"
)

func main() {
	in := flag.String("in", "", "input CSV (timestamp_ms,open,high,low,close,volume)")
	out := flag.String("out", "", "output CSV path")
	dst := flag.String("dst", "1h", "target interval, e.g. 15m, 1h, 4h, 1d")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *in == "" || *out == "" {
		logger.Fatal("-in and -out are required")
	}
	bucketMs, err := parseIntervalMs(*dst)
	if err != nil {
		logger.Fatal("parse -dst", zap.Error(err))
	}

	bars, dropped, err := feed.LoadCSV(*in)
	if err != nil {
		logger.Fatal("load csv", zap.Error(err))
	}
	if dropped > 0 {
		logger.Warn("dropped malformed csv rows", zap.Int("count", dropped))
	}
	if len(bars) == 0 {
		logger.Fatal("no input bars parsed", zap.String("path", *in))
	}

	resampled := market.Resample(bars, bucketMs)
	if err := writeCSV(*out, resampled); err != nil {
		logger.Fatal("write output", zap.Error(err))
	}
	logger.Info("resampled",
		zap.Int("in_bars", len(bars)),
		zap.Int("out_bars", len(resampled)),
		zap.String("interval", *dst),
		zap.String("path", *out))
}

// parseIntervalMs accepts Nm, Nh and Nd suffixes; a bare number means
// minutes.
func parseIntervalMs(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	mult := int64(60_000)
	switch {
	case strings.HasSuffix(s, "min"):
		s = strings.TrimSuffix(s, "min")
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "h"):
		s = strings.TrimSuffix(s, "h")
		mult = 3_600_000
	case strings.HasSuffix(s, "d"):
		s = strings.TrimSuffix(s, "d")
		mult = 86_400_000
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported interval %q", s)
	}
	return int64(n) * mult, nil
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
			strconv.FormatInt(b.Timestamp, 10),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
