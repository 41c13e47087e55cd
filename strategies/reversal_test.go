package strategies

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"reversal-backtest/services/engine"
)

func mkCandle(ts int64, open, high, low, closePx, volume float64) engine.Candle {
	return engine.Candle{
		Timestamp: ts,
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(closePx),
		Volume:    decimal.NewFromFloat(volume),
	}
}

func snapWith(rsi, roc, vol, avgVolume float64) engine.IndicatorSnapshot {
	return engine.IndicatorSnapshot{RSI: rsi, ROC: roc, Volatility: vol, AvgVolume: avgVolume}
}

// Ten monotonically rising closes never confirm an oversold reversal: RSI
// stays high and the warmup windows are not even filled. Zero trades, flat
// equity.
func TestRisingTapeProducesNoTrades(t *testing.T) {
	candles := make([]engine.Candle, 10)
	for i := range candles {
		px := 100.0 + float64(i)
		candles[i] = mkCandle(int64(i+1)*60000, px, px, px, px, 1000)
	}

	params := engine.DefaultParameters()
	replay := engine.NewReplay(NewReversalTrailingStop(params), engine.NewExecution(0.001, 0.0005), nil)
	res, err := replay.Run(context.Background(), candles, params, decimal.NewFromInt(10000))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("trades = %d, want 0", len(res.Trades))
	}
	if res.Report.ROI != 0 {
		t.Fatalf("roi = %v, want 0", res.Report.ROI)
	}
	for _, pt := range res.EquityCurve {
		if !pt.Equity.Equal(decimal.NewFromInt(10000)) {
			t.Fatalf("equity moved to %s without trades", pt.Equity)
		}
	}
}

func TestLongEntryNeedsOversoldCrossing(t *testing.T) {
	s := NewReversalTrailingStop(engine.DefaultParameters())
	flat := &engine.Position{}
	c := mkCandle(1, 100, 100, 100, 100, 1500)

	// First ready candle only records the RSI reference.
	dec, err := s.Evaluate(c, snapWith(25, 1.0, 2.0, 1000), true, flat)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != engine.ActionHold {
		t.Fatalf("first ready candle: %s, want hold", dec.Action)
	}

	// RSI crossed 30 from below, momentum and volume confirm.
	dec, err = s.Evaluate(c, snapWith(35, 1.0, 2.0, 1000), true, flat)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != engine.ActionOpenLong {
		t.Fatalf("got %s, want open long", dec.Action)
	}
	if !dec.Price.Equal(c.Close) {
		t.Fatalf("entry intent = %s, want close %s", dec.Price, c.Close)
	}
}

func TestEntryBlockedWithoutConfirmation(t *testing.T) {
	params := engine.DefaultParameters()

	// Weak momentum.
	s := NewReversalTrailingStop(params)
	flat := &engine.Position{}
	c := mkCandle(1, 100, 100, 100, 100, 1500)
	s.Evaluate(c, snapWith(25, 0.1, 2.0, 1000), true, flat)
	dec, _ := s.Evaluate(c, snapWith(35, 0.1, 2.0, 1000), true, flat)
	if dec.Action != engine.ActionHold {
		t.Fatalf("weak momentum: %s, want hold", dec.Action)
	}

	// Thin volume.
	s = NewReversalTrailingStop(params)
	thin := mkCandle(1, 100, 100, 100, 100, 400)
	s.Evaluate(thin, snapWith(25, 1.0, 2.0, 1000), true, flat)
	dec, _ = s.Evaluate(thin, snapWith(35, 1.0, 2.0, 1000), true, flat)
	if dec.Action != engine.ActionHold {
		t.Fatalf("thin volume: %s, want hold", dec.Action)
	}

	// RSI was never below the band, so there is no crossing.
	s = NewReversalTrailingStop(params)
	s.Evaluate(c, snapWith(45, 1.0, 2.0, 1000), true, flat)
	dec, _ = s.Evaluate(c, snapWith(50, 1.0, 2.0, 1000), true, flat)
	if dec.Action != engine.ActionHold {
		t.Fatalf("no crossing: %s, want hold", dec.Action)
	}
}

func TestShortEntryMirrors(t *testing.T) {
	s := NewReversalTrailingStop(engine.DefaultParameters())
	flat := &engine.Position{}
	c := mkCandle(1, 100, 100, 100, 100, 1500)

	s.Evaluate(c, snapWith(78, -1.0, 2.0, 1000), true, flat)
	dec, err := s.Evaluate(c, snapWith(65, -1.0, 2.0, 1000), true, flat)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != engine.ActionOpenShort {
		t.Fatalf("got %s, want open short", dec.Action)
	}
}

// A volatility spike mid-trade widens only future ratchet candidates; the
// locked-in stop and take-profit from entry never move.
func TestHighVolWidensRatchetOnly(t *testing.T) {
	s := NewReversalTrailingStop(engine.DefaultParameters())
	pos := &engine.Position{
		Side:         engine.SideLong,
		EntryPrice:   decimal.NewFromInt(190),
		Quantity:     decimal.NewFromInt(1),
		StopLoss:     decimal.NewFromFloat(186.2),
		TakeProfit:   decimal.NewFromInt(300),
		TrailingStop: decimal.NewFromInt(190),
	}
	c := mkCandle(1, 200, 201, 199, 200, 1000)

	// Volatility 5 is above the default high threshold 3: width 1.5% * 1.5.
	dec, err := s.Evaluate(c, snapWith(55, 0, 5.0, 1000), true, pos)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != engine.ActionHold {
		t.Fatalf("got %s, want hold", dec.Action)
	}
	wantStop := decimal.NewFromFloat(195.5) // 200 * (1 - 2.25/100)
	if !pos.TrailingStop.Equal(wantStop) {
		t.Fatalf("trailing stop = %s, want %s", pos.TrailingStop, wantStop)
	}
	if !pos.StopLoss.Equal(decimal.NewFromFloat(186.2)) || !pos.TakeProfit.Equal(decimal.NewFromInt(300)) {
		t.Fatal("entry-locked levels must not move on a volatility change")
	}
}

func TestTrailingStopNeverLoosens(t *testing.T) {
	s := NewReversalTrailingStop(engine.DefaultParameters())
	pos := &engine.Position{
		Side:         engine.SideLong,
		EntryPrice:   decimal.NewFromInt(95),
		Quantity:     decimal.NewFromInt(1),
		StopLoss:     decimal.NewFromInt(93),
		TakeProfit:   decimal.NewFromInt(120),
		TrailingStop: decimal.NewFromInt(93),
	}

	// Ratchet up on a rally.
	if _, err := s.Evaluate(mkCandle(1, 100, 100, 100, 100, 1000), snapWith(55, 0, 2, 1000), true, pos); err != nil {
		t.Fatal(err)
	}
	raised := pos.TrailingStop // 98.5
	if !raised.Equal(decimal.NewFromFloat(98.5)) {
		t.Fatalf("ratcheted stop = %s, want 98.5", raised)
	}

	// A lower close produces a lower candidate; the stop must hold.
	if _, err := s.Evaluate(mkCandle(2, 99.4, 99.4, 99.2, 99.4, 1000), snapWith(54, 0, 2, 1000), true, pos); err != nil {
		t.Fatal(err)
	}
	if !pos.TrailingStop.Equal(raised) {
		t.Fatalf("trailing stop loosened to %s", pos.TrailingStop)
	}
}

// Both levels touched within one candle resolves to the take-profit close,
// never the reversal.
func TestDoubleTouchPrefersTakeProfit(t *testing.T) {
	s := NewReversalTrailingStop(engine.DefaultParameters())
	pos := &engine.Position{
		Side:         engine.SideLong,
		EntryPrice:   decimal.NewFromInt(100),
		Quantity:     decimal.NewFromInt(1),
		StopLoss:     decimal.NewFromInt(95),
		TakeProfit:   decimal.NewFromInt(108),
		TrailingStop: decimal.NewFromInt(95),
	}
	c := mkCandle(1, 100, 110, 90, 105, 1000)

	dec, err := s.Evaluate(c, snapWith(55, 0, 2, 1000), true, pos)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != engine.ActionClose {
		t.Fatalf("got %s, want close on a double touch", dec.Action)
	}
	if !dec.Price.Equal(pos.TakeProfit) {
		t.Fatalf("exit intent = %s, want the take-profit level %s", dec.Price, pos.TakeProfit)
	}
}

func TestTrailingTouchReverses(t *testing.T) {
	s := NewReversalTrailingStop(engine.DefaultParameters())
	pos := &engine.Position{
		Side:         engine.SideLong,
		EntryPrice:   decimal.NewFromInt(100),
		Quantity:     decimal.NewFromInt(1),
		StopLoss:     decimal.NewFromInt(98),
		TakeProfit:   decimal.NewFromInt(120),
		TrailingStop: decimal.NewFromInt(98),
	}
	// No new high, low pierces the stop.
	c := mkCandle(1, 99, 99, 97, 97.5, 1000)

	dec, err := s.Evaluate(c, snapWith(45, 0, 2, 1000), true, pos)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != engine.ActionReverse {
		t.Fatalf("got %s, want reverse", dec.Action)
	}
	if !dec.Price.Equal(decimal.NewFromInt(98)) {
		t.Fatalf("reverse intent = %s, want the stop level 98", dec.Price)
	}
}

// A reused Replay must give back-to-back runs identical results. The series
// rises through warm-up and then falls hard, so a crossing reference leaking
// from the first run's tail would fake an oversold reversal at the second
// run's first ready candle.
func TestRepeatedRunsOnOneReplayMatch(t *testing.T) {
	params := engine.DefaultParameters()
	params.RSIPeriod = 2
	params.ROCPeriod = 2
	params.ATRPeriod = 2
	params.VolatilityWindow = 2
	params.VolumeAvgPeriod = 2

	closes := []float64{100, 101, 103, 90, 80, 70, 60}
	candles := make([]engine.Candle, len(closes))
	for i, px := range closes {
		candles[i] = mkCandle(int64(i+1)*60000, px, px, px, px, 1000)
	}

	replay := engine.NewReplay(NewReversalTrailingStop(params), engine.NewExecution(0.001, 0.0005), nil)
	run := func() *engine.Result {
		res, err := replay.Run(context.Background(), candles, params, decimal.NewFromInt(10000))
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	first, second := run(), run()
	if len(first.Trades) != len(second.Trades) {
		t.Fatalf("trades diverged across runs: %d vs %d", len(first.Trades), len(second.Trades))
	}
	for i := range first.Trades {
		if !first.Trades[i].PnL.Equal(second.Trades[i].PnL) || first.Trades[i].EntryTime != second.Trades[i].EntryTime {
			t.Fatalf("trade %d diverged: %+v vs %+v", i, first.Trades[i], second.Trades[i])
		}
	}
	for i := range first.EquityCurve {
		if !first.EquityCurve[i].Equity.Equal(second.EquityCurve[i].Equity) {
			t.Fatalf("equity diverged at %d: %s vs %s", i, first.EquityCurve[i].Equity, second.EquityCurve[i].Equity)
		}
	}
	if first.Manifest.DataChecksum != second.Manifest.DataChecksum || first.Manifest.ParamsHash != second.Manifest.ParamsHash {
		t.Fatal("manifest hashes diverged for identical inputs")
	}
}

func TestWarmupHolds(t *testing.T) {
	s := NewReversalTrailingStop(engine.DefaultParameters())
	dec, err := s.Evaluate(mkCandle(1, 100, 100, 100, 100, 1000), engine.IndicatorSnapshot{}, false, &engine.Position{})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action != engine.ActionHold {
		t.Fatalf("got %s, want hold during warmup", dec.Action)
	}
}
