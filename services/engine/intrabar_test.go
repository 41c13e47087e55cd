package engine

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestResolveTouchLongTakeProfitWinsTies(t *testing.T) {
	// Range spans both levels: TP at 108, stop at 95.
	c := mkCandle(1, 100, 110, 90, 105, 0)
	if got := ResolveTouchLong(c, decimal.NewFromInt(108), decimal.NewFromInt(95)); got != TouchTakeProfit {
		t.Fatalf("got %v, want take-profit on a double touch", got)
	}
}

func TestResolveTouchLongStopOnly(t *testing.T) {
	c := mkCandle(1, 100, 101, 94, 96, 0)
	if got := ResolveTouchLong(c, decimal.NewFromInt(108), decimal.NewFromInt(95)); got != TouchTrailingStop {
		t.Fatalf("got %v, want trailing stop", got)
	}
}

func TestResolveTouchLongNone(t *testing.T) {
	c := mkCandle(1, 100, 101, 99, 100, 0)
	if got := ResolveTouchLong(c, decimal.NewFromInt(108), decimal.NewFromInt(95)); got != TouchNone {
		t.Fatalf("got %v, want none", got)
	}
}

func TestResolveTouchShortTakeProfitWinsTies(t *testing.T) {
	// Short: TP below at 92, stop above at 105, both touched.
	c := mkCandle(1, 100, 110, 90, 95, 0)
	if got := ResolveTouchShort(c, decimal.NewFromInt(92), decimal.NewFromInt(105)); got != TouchTakeProfit {
		t.Fatalf("got %v, want take-profit on a double touch", got)
	}
}

func TestTrailCandidates(t *testing.T) {
	long := TrailLong(decimal.NewFromInt(200), 1.5)
	if !long.Equal(decimal.NewFromInt(197)) {
		t.Fatalf("long trail = %s, want 197", long)
	}
	short := TrailShort(decimal.NewFromInt(200), 1.5)
	if !short.Equal(decimal.NewFromInt(203)) {
		t.Fatalf("short trail = %s, want 203", short)
	}
}
