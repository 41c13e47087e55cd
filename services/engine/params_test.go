package engine

import "testing"

func TestEffectiveMultipliers(t *testing.T) {
	base := DefaultParameters() // thresholds 1.0 / 3.0

	high := Effective(base, 3.5)
	if high.TrailingStopPct != base.BaseTrailingStopPct*1.5 {
		t.Fatalf("high-vol trailing = %v, want 1.5x", high.TrailingStopPct)
	}
	low := Effective(base, 0.5)
	if low.StopLossPct != base.BaseStopLossPct*0.75 {
		t.Fatalf("low-vol stop = %v, want 0.75x", low.StopLossPct)
	}
	mid := Effective(base, 2.0)
	if mid.TakeProfitPct != base.BaseTakeProfitPct {
		t.Fatalf("mid-vol take-profit = %v, want unchanged", mid.TakeProfitPct)
	}
	// Thresholds are exclusive bounds.
	if Effective(base, base.HighVolThreshold).StopLossPct != base.BaseStopLossPct {
		t.Fatal("volatility equal to high threshold must not widen")
	}
}

func TestParameterValidation(t *testing.T) {
	if err := DefaultParameters().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	p := DefaultParameters()
	p.RSIOversold = 80 // above overbought
	if err := p.Validate(); err == nil {
		t.Fatal("inverted RSI bands must fail")
	}

	p = DefaultParameters()
	p.BaseTakeProfitPct = 0
	if err := p.Validate(); err == nil {
		t.Fatal("zero take-profit distance must fail")
	}

	p = DefaultParameters()
	p.PositionSizeFrac = 1.5
	if err := p.Validate(); err == nil {
		t.Fatal("size fraction above 1 must fail")
	}
}
