package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"reversal-backtest/services/engine"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSVWithHeader(t *testing.T) {
	csv := "timestamp,open,high,low,close,volume\n" +
		"1700000000000,100,101,99,100.5,1200\n" +
		"1700000300000,100.5,102,100,101,900\n"
	path := writeTemp(t, "candles.csv", []byte(csv))

	candles, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[0].Timestamp != 1700000000000 {
		t.Fatalf("first ts = %d", candles[0].Timestamp)
	}
	if candles[1].Close.InexactFloat64() != 101 {
		t.Fatalf("second close = %s", candles[1].Close)
	}
}

func TestLoadCSVSortsAndDedups(t *testing.T) {
	// Out of order, with the middle row repeated; the later copy wins.
	csv := "1700000600000,102,103,101,102,800\n" +
		"1700000000000,100,101,99,100,1200\n" +
		"1700000300000,100,102,100,101,900\n" +
		"1700000300000,100,102,100,101.5,950\n"
	path := writeTemp(t, "unordered.csv", []byte(csv))

	candles, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 3 {
		t.Fatalf("candles = %d, want 3 after dedup", len(candles))
	}
	if candles[1].Close.InexactFloat64() != 101.5 {
		t.Fatalf("dedup kept %s, want the last occurrence 101.5", candles[1].Close)
	}
	if err := engine.ValidateSeries(candles); err != nil {
		t.Fatalf("loaded series must be strictly ordered: %v", err)
	}
}

func TestLoadCSVUTF16BOM(t *testing.T) {
	csv := "1700000000000,100,101,99,100,1200\n" +
		"1700000300000,100,102,100,101,900\n"
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, _, err := transform.Bytes(enc, []byte(csv))
	if err != nil {
		t.Fatal(err)
	}
	path := writeTemp(t, "utf16.csv", encoded)

	candles, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
}

func TestLoadCSVRejectsBrokenOHLC(t *testing.T) {
	// High below close.
	csv := "1700000000000,100,99,98,100,1200\n"
	path := writeTemp(t, "broken.csv", []byte(csv))

	if _, err := LoadCSV(path); err == nil {
		t.Fatal("expected OHLC validation failure")
	}
}

func TestLoadCSVSecondsAndRFC3339(t *testing.T) {
	csv := "1700000000,100,101,99,100,1200\n" +
		"2023-11-14T22:18:20Z,100,102,100,101,900\n"
	path := writeTemp(t, "mixed.csv", []byte(csv))

	candles, err := LoadCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[0].Timestamp != 1700000000000 {
		t.Fatalf("seconds not scaled to ms: %d", candles[0].Timestamp)
	}
}

func TestDetectGaps(t *testing.T) {
	mk := func(ts int64) engine.Candle {
		return engine.Candle{Timestamp: ts}
	}
	step := (5 * time.Minute).Milliseconds()
	candles := []engine.Candle{mk(0), mk(step), mk(4 * step), mk(5 * step)}

	gaps := DetectGaps(candles, 5*time.Minute)
	if len(gaps) != 1 {
		t.Fatalf("gaps = %d, want 1", len(gaps))
	}
	if gaps[0].Missing != 2 {
		t.Fatalf("missing = %d, want 2", gaps[0].Missing)
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("got %v, want not-exist", err)
	}
}
