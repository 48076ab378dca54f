package feed

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"meanrev-bot/services/market"
)

// LoadCSV reads bars from a CSV file with columns
// timestamp_ms,open,high,low,close,volume. An optional header row is
// skipped, malformed rows are dropped (their count is returned), and
// the result is sorted and deduplicated by timestamp. UTF-16 exports
// (for example from spreadsheet tools) are decoded transparently.
func LoadCSV(path string) ([]market.Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(decodedReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	bars := make([]market.Bar, 0, 1024)
	dropped := 0
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			dropped++
			continue
		}
		line++
		if len(rec) < 6 {
			dropped++
			continue
		}
		tsStr := strings.TrimPrefix(strings.TrimSpace(rec[0]), "\ufeff")
		if line == 1 && (strings.EqualFold(tsStr, "timestamp") || strings.EqualFold(tsStr, "timestamp_ms")) {
			continue
		}
		ts, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			dropped++
			continue
		}
		fields := make([]decimal.Decimal, 5)
		bad := false
		for i := 0; i < 5; i++ {
			fields[i], err = decimal.NewFromString(strings.TrimSpace(rec[i+1]))
			if err != nil {
				if i == 4 { // missing volume is tolerated
					fields[i] = decimal.Zero
					err = nil
					continue
				}
				bad = true
				break
			}
		}
		if bad {
			dropped++
			continue
		}
		bars = append(bars, market.Bar{
			Timestamp: ts,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}
	return market.SortDedup(bars), dropped, nil
}

// decodedReader sniffs a UTF-16 byte order mark and, when present,
// wraps the reader with the matching decoder.
func decodedReader(f io.Reader) io.Reader {
	br := bufio.NewReader(f)
	bom, err := br.Peek(2)
	if err != nil {
		return br
	}
	if bytes.Equal(bom, []byte{0xFF, 0xFE}) {
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	if bytes.Equal(bom, []byte{0xFE, 0xFF}) {
		return transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}
