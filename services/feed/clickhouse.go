package feed

import (
	"context"
	"fmt"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	"meanrev-bot/services/market"
)

// ClickHouseConfig locates the candle store.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ClickHouseStore reads OHLCV candles from the schema the ingest
// tooling maintains: (symbol, interval, open_time_ms) ordered rows.
type ClickHouseStore struct {
	conn clickhouse.Conn
	cfg  ClickHouseConfig
}

// OpenClickHouse connects and pings the candle store.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 300,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &ClickHouseStore{conn: conn, cfg: cfg}, nil
}

// Close releases the connection.
func (s *ClickHouseStore) Close() error { return s.conn.Close() }

// FetchBars loads the bar series for one symbol and interval within
// [fromMs, toMs). Prices are exported as strings so decimal parsing is
// exact. The FINAL modifier collapses ReplacingMergeTree duplicates.
func (s *ClickHouseStore) FetchBars(ctx context.Context, symbol, interval string, fromMs, toMs int64) ([]market.Bar, error) {
	q := fmt.Sprintf(`
		SELECT open_time_ms,
		       toString(open), toString(high), toString(low), toString(close), toString(volume)
		FROM %s.%s FINAL
		WHERE symbol = ? AND interval = ?
		  AND open_time_ms >= ? AND open_time_ms < ?
		ORDER BY open_time_ms`, s.cfg.Database, s.cfg.Table)

	rows, err := s.conn.Query(ctx, q, symbol, interval, uint64(fromMs), uint64(toMs))
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var ts uint64
		var o, h, l, c, v string
		if err := rows.Scan(&ts, &o, &h, &l, &c, &v); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		bar, err := parseBar(int64(ts), o, h, l, c, v)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows: %w", err)
	}
	return market.SortDedup(bars), nil
}

// Feed fetches the series and wraps it in a replayable SliceFeed.
func (s *ClickHouseStore) Feed(ctx context.Context, symbol, interval string, fromMs, toMs int64) (*SliceFeed, error) {
	bars, err := s.FetchBars(ctx, symbol, interval, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	return NewSliceFeed(bars), nil
}

func parseBar(ts int64, o, h, l, c, v string) (market.Bar, error) {
	var bar market.Bar
	var err error
	bar.Timestamp = ts
	if bar.Open, err = decimal.NewFromString(o); err != nil {
		return bar, fmt.Errorf("bar %d open: %w", ts, err)
	}
	if bar.High, err = decimal.NewFromString(h); err != nil {
		return bar, fmt.Errorf("bar %d high: %w", ts, err)
	}
	if bar.Low, err = decimal.NewFromString(l); err != nil {
		return bar, fmt.Errorf("bar %d low: %w", ts, err)
	}
	if bar.Close, err = decimal.NewFromString(c); err != nil {
		return bar, fmt.Errorf("bar %d close: %w", ts, err)
	}
	if bar.Volume, err = decimal.NewFromString(v); err != nil {
		return bar, fmt.Errorf("bar %d volume: %w", ts, err)
	}
	return bar, nil
}
