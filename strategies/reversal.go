// Package strategies contains the trading rules evaluated by the replay
// loop. Strategies see one candle at a time plus the indicator snapshot and
// never the future.
package strategies

import (
	"reversal-backtest/services/engine"
)

// ReversalTrailingStop enters on RSI reversals out of extreme zones, confirmed
// by momentum and volume, and manages the position with a volatility-adjusted
// trailing stop. A trailing-stop touch does not flatten: it reverses into the
// opposite side in the same candle. Take-profit wins when both levels are
// touched intrabar.
type ReversalTrailingStop struct {
	params  engine.StrategyParameters
	prevRSI float64
	hasPrev bool
}

func NewReversalTrailingStop(params engine.StrategyParameters) *ReversalTrailingStop {
	return &ReversalTrailingStop{params: params}
}

func (s *ReversalTrailingStop) Name() string { return "reversal_trailing_stop" }

// Reset drops the RSI crossing reference so a reused instance starts the
// next run with a clean slate.
func (s *ReversalTrailingStop) Reset() {
	s.prevRSI = 0
	s.hasPrev = false
}

func (s *ReversalTrailingStop) Evaluate(c engine.Candle, snap engine.IndicatorSnapshot, ready bool, pos *engine.Position) (engine.Decision, error) {
	if !ready {
		// Warming up. prevRSI stays untouched so the first ready candle
		// has no crossing reference yet.
		return engine.Decision{Action: engine.ActionHold, Reason: "insufficient_data"}, nil
	}

	eff := engine.Effective(s.params, snap.Volatility)
	if err := eff.Validate(); err != nil {
		return engine.Decision{}, err
	}

	var dec engine.Decision
	switch pos.Side {
	case engine.SideFlat:
		dec = s.evaluateFlat(c, snap, eff)
	case engine.SideLong:
		dec = s.manageLong(c, eff, pos)
	case engine.SideShort:
		dec = s.manageShort(c, eff, pos)
	}

	s.prevRSI = snap.RSI
	s.hasPrev = true
	return dec, nil
}

// evaluateFlat looks for an entry. Long: RSI crossed up out of the oversold
// zone this candle, momentum positive, volume above its average. Short is the
// mirror image.
func (s *ReversalTrailingStop) evaluateFlat(c engine.Candle, snap engine.IndicatorSnapshot, eff engine.EffectiveParameters) engine.Decision {
	if !s.hasPrev {
		return engine.Decision{Action: engine.ActionHold, Reason: "no_prior_rsi"}
	}
	volume := c.Volume.InexactFloat64()
	volumeOK := volume >= s.params.VolumeMult*snap.AvgVolume

	crossedUp := s.prevRSI < s.params.RSIOversold && snap.RSI > s.params.RSIOversold
	if crossedUp && snap.ROC >= s.params.ROCThreshold && volumeOK {
		return engine.Decision{
			Action: engine.ActionOpenLong,
			Price:  c.Close,
			Params: eff,
			Reason: "rsi_reversal_up",
		}
	}

	crossedDown := s.prevRSI > s.params.RSIOverbought && snap.RSI < s.params.RSIOverbought
	if crossedDown && snap.ROC <= -s.params.ROCThreshold && volumeOK {
		return engine.Decision{
			Action: engine.ActionOpenShort,
			Price:  c.Close,
			Params: eff,
			Reason: "rsi_reversal_down",
		}
	}
	return engine.Decision{Action: engine.ActionHold, Reason: "no_signal"}
}

// manageLong ratchets the trailing stop upward, then checks the candle range
// against the locked-in levels. The ratchet uses the current effective width,
// so a volatility regime change affects new candidates only; the stop itself
// never moves down.
func (s *ReversalTrailingStop) manageLong(c engine.Candle, eff engine.EffectiveParameters, pos *engine.Position) engine.Decision {
	candidate := engine.TrailLong(c.Close, eff.TrailingStopPct)
	if candidate.GreaterThan(pos.TrailingStop) {
		pos.TrailingStop = candidate
	}

	switch engine.ResolveTouchLong(c, pos.TakeProfit, pos.TrailingStop) {
	case engine.TouchTakeProfit:
		return engine.Decision{
			Action: engine.ActionClose,
			Price:  pos.TakeProfit,
			Params: eff,
			Reason: "take_profit",
		}
	case engine.TouchTrailingStop:
		return engine.Decision{
			Action: engine.ActionReverse,
			Price:  pos.TrailingStop,
			Params: eff,
			Reason: "trailing_stop",
		}
	}
	return engine.Decision{Action: engine.ActionHold, Reason: "in_position"}
}

func (s *ReversalTrailingStop) manageShort(c engine.Candle, eff engine.EffectiveParameters, pos *engine.Position) engine.Decision {
	candidate := engine.TrailShort(c.Close, eff.TrailingStopPct)
	if candidate.LessThan(pos.TrailingStop) {
		pos.TrailingStop = candidate
	}

	switch engine.ResolveTouchShort(c, pos.TakeProfit, pos.TrailingStop) {
	case engine.TouchTakeProfit:
		return engine.Decision{
			Action: engine.ActionClose,
			Price:  pos.TakeProfit,
			Params: eff,
			Reason: "take_profit",
		}
	case engine.TouchTrailingStop:
		return engine.Decision{
			Action: engine.ActionReverse,
			Price:  pos.TrailingStop,
			Params: eff,
			Reason: "trailing_stop",
		}
	}
	return engine.Decision{Action: engine.ActionHold, Reason: "in_position"}
}
