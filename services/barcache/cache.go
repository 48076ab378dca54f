// Package barcache persists bar series as Arrow IPC streams so a
// ClickHouse export can be replayed locally without re-querying the
// store. Prices are stored as decimal strings, which keeps the cache
// bit-exact with the source.
package barcache

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"

	"meanrev-bot/services/market"
)

var schema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.BinaryTypes.String},
	{Name: "high", Type: arrow.BinaryTypes.String},
	{Name: "low", Type: arrow.BinaryTypes.String},
	{Name: "close", Type: arrow.BinaryTypes.String},
	{Name: "volume", Type: arrow.BinaryTypes.String},
}, nil)

// Write stores bars at path in Arrow IPC stream format.
func Write(path string, bars []market.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	defer f.Close()

	pool := memory.NewGoAllocator()
	tsB := array.NewInt64Builder(pool)
	defer tsB.Release()
	strBuilders := make([]*array.StringBuilder, 5)
	for i := range strBuilders {
		strBuilders[i] = array.NewStringBuilder(pool)
		defer strBuilders[i].Release()
	}

	for _, b := range bars {
		tsB.Append(b.Timestamp)
		for i, d := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close, b.Volume} {
			strBuilders[i].Append(d.String())
		}
	}

	cols := make([]arrow.Array, 0, 6)
	cols = append(cols, tsB.NewArray())
	for _, sb := range strBuilders {
		cols = append(cols, sb.NewArray())
	}
	rec := array.NewRecord(schema, cols, int64(len(bars)))
	defer rec.Release()
	for _, c := range cols {
		defer c.Release()
	}

	w := ipc.NewWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(pool))
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("write record: %w", err)
	}
	return w.Close()
}

// Read loads a bar series written by Write.
func Read(path string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("open ipc stream: %w", err)
	}
	defer r.Release()

	var bars []market.Bar
	for r.Next() {
		rec := r.Record()
		ts := rec.Column(0).(*array.Int64)
		prices := make([]*array.String, 5)
		for i := range prices {
			prices[i] = rec.Column(i + 1).(*array.String)
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			vals := make([]decimal.Decimal, 5)
			for i, col := range prices {
				vals[i], err = decimal.NewFromString(col.Value(row))
				if err != nil {
					return nil, fmt.Errorf("row %d field %d: %w", row, i, err)
				}
			}
			bars = append(bars, market.Bar{
				Timestamp: ts.Value(row),
				Open:      vals[0],
				High:      vals[1],
				Low:       vals[2],
				Close:     vals[3],
				Volume:    vals[4],
			})
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read ipc stream: %w", err)
	}
	return bars, nil
}
