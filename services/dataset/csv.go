// Package dataset loads candle series from CSV exports. Exchange exports
// come in two timestamp flavors (ms epoch or RFC3339-ish) and sometimes as
// UTF-16 files; the loader normalizes all of them into a clean, strictly
// ordered series.
package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"reversal-backtest/services/engine"
)

// LoadCSV reads candles from a CSV file with columns
// timestamp,open,high,low,close,volume (header optional). Rows are sorted by
// timestamp, exact-duplicate timestamps are deduplicated keeping the last
// occurrence, and the resulting series is validated.
func LoadCSV(path string) ([]engine.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	// Detect UTF-16 BOM; if present, decode to UTF-8.
	if b, _ := br.Peek(2); len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
		tr := transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
		br = bufio.NewReader(tr)
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var candles []engine.Candle
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 6 {
			continue
		}
		// Skip header row.
		if line == 1 && !isNumericStart(rec[0]) && parseTimestamp(rec[0]) == 0 {
			continue
		}
		ts := parseTimestamp(rec[0])
		if ts == 0 {
			continue
		}
		c, err := parseCandle(ts, rec[1:6])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	candles = dedupKeepLast(candles)
	if err := engine.ValidateSeries(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

func isNumericStart(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

// parseTimestamp accepts epoch milliseconds, epoch seconds, or RFC3339.
// Returns 0 when the field is not a timestamp.
func parseTimestamp(s string) int64 {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 10_000_000_000 {
			return n
		}
		return n * 1000
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli()
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC().UnixMilli()
	}
	return 0
}

func parseCandle(ts int64, fields []string) (engine.Candle, error) {
	vals := make([]decimal.Decimal, 5)
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i, f := range fields {
		d, err := decimal.NewFromString(strings.TrimSpace(f))
		if err != nil {
			return engine.Candle{}, fmt.Errorf("parse %s %q: %w", names[i], f, err)
		}
		vals[i] = d
	}
	c := engine.Candle{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}
	return c, c.Validate()
}

// dedupKeepLast assumes sorted input. Exports sometimes repeat the trailing
// partial candle; the last occurrence is the corrected one.
func dedupKeepLast(candles []engine.Candle) []engine.Candle {
	if len(candles) < 2 {
		return candles
	}
	out := candles[:0]
	for i, c := range candles {
		if i+1 < len(candles) && candles[i+1].Timestamp == c.Timestamp {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Gap is a hole in an otherwise fixed-interval series.
type Gap struct {
	FromTs  int64
	ToTs    int64
	Missing int
}

// DetectGaps reports holes assuming the given candle interval. Gaps do not
// fail a run, but callers usually want to log them.
func DetectGaps(candles []engine.Candle, interval time.Duration) []Gap {
	ms := interval.Milliseconds()
	if ms <= 0 || len(candles) < 2 {
		return nil
	}
	var gaps []Gap
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Timestamp - candles[i-1].Timestamp
		if delta > ms {
			gaps = append(gaps, Gap{
				FromTs:  candles[i-1].Timestamp,
				ToTs:    candles[i].Timestamp,
				Missing: int(delta/ms) - 1,
			})
		}
	}
	return gaps
}
