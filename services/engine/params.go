package engine

// StrategyParameters are the base, run-scoped inputs of the reversal
// strategy. They never change during a run; volatility-adjusted widths are
// derived fresh each candle via Effective.
type StrategyParameters struct {
	RSIPeriod     int     `yaml:"rsi_period" json:"rsi_period"`
	RSIOversold   float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
	RSIOverbought float64 `yaml:"rsi_overbought" json:"rsi_overbought"`

	ROCPeriod    int     `yaml:"roc_period" json:"roc_period"`
	ROCThreshold float64 `yaml:"roc_threshold" json:"roc_threshold"`

	ATRPeriod int `yaml:"atr_period" json:"atr_period"`

	// Percent distances from the entry price, e.g. 2.0 means 2%.
	BaseStopLossPct     float64 `yaml:"base_stop_loss_pct" json:"base_stop_loss_pct"`
	BaseTakeProfitPct   float64 `yaml:"base_take_profit_pct" json:"base_take_profit_pct"`
	BaseTrailingStopPct float64 `yaml:"base_trailing_stop_pct" json:"base_trailing_stop_pct"`

	VolatilityWindow int     `yaml:"volatility_window" json:"volatility_window"`
	HighVolThreshold float64 `yaml:"high_vol_threshold" json:"high_vol_threshold"`
	LowVolThreshold  float64 `yaml:"low_vol_threshold" json:"low_vol_threshold"`

	VolumeMult      float64 `yaml:"volume_mult" json:"volume_mult"`
	VolumeAvgPeriod int     `yaml:"volume_avg_period" json:"volume_avg_period"`

	// Fraction of available cash committed per entry.
	PositionSizeFrac float64 `yaml:"position_size_frac" json:"position_size_frac"`
}

// DefaultParameters returns the strategy defaults.
func DefaultParameters() StrategyParameters {
	return StrategyParameters{
		RSIPeriod:     14,
		RSIOversold:   30,
		RSIOverbought: 70,

		ROCPeriod:    10,
		ROCThreshold: 0.5,

		ATRPeriod: 14,

		BaseStopLossPct:     2.0,
		BaseTakeProfitPct:   4.0,
		BaseTrailingStopPct: 1.5,

		VolatilityWindow: 20,
		HighVolThreshold: 3.0,
		LowVolThreshold:  1.0,

		VolumeMult:      1.0,
		VolumeAvgPeriod: 20,

		PositionSizeFrac: 1.0,
	}
}

// Validate rejects parameter sets that could never produce a meaningful run.
func (p StrategyParameters) Validate() error {
	switch {
	case p.RSIPeriod < 2:
		return &InvalidParameterError{Name: "rsi_period", Value: float64(p.RSIPeriod)}
	case p.RSIOversold <= 0 || p.RSIOversold >= p.RSIOverbought:
		return &InvalidParameterError{Name: "rsi_oversold", Value: p.RSIOversold}
	case p.RSIOverbought >= 100:
		return &InvalidParameterError{Name: "rsi_overbought", Value: p.RSIOverbought}
	case p.ROCPeriod < 1:
		return &InvalidParameterError{Name: "roc_period", Value: float64(p.ROCPeriod)}
	case p.ATRPeriod < 1:
		return &InvalidParameterError{Name: "atr_period", Value: float64(p.ATRPeriod)}
	case p.BaseStopLossPct <= 0:
		return &InvalidParameterError{Name: "base_stop_loss_pct", Value: p.BaseStopLossPct}
	case p.BaseTakeProfitPct <= 0:
		return &InvalidParameterError{Name: "base_take_profit_pct", Value: p.BaseTakeProfitPct}
	case p.BaseTrailingStopPct <= 0:
		return &InvalidParameterError{Name: "base_trailing_stop_pct", Value: p.BaseTrailingStopPct}
	case p.VolatilityWindow < 2:
		return &InvalidParameterError{Name: "volatility_window", Value: float64(p.VolatilityWindow)}
	case p.LowVolThreshold < 0 || p.LowVolThreshold >= p.HighVolThreshold:
		return &InvalidParameterError{Name: "low_vol_threshold", Value: p.LowVolThreshold}
	case p.VolumeMult < 0:
		return &InvalidParameterError{Name: "volume_mult", Value: p.VolumeMult}
	case p.VolumeAvgPeriod < 1:
		return &InvalidParameterError{Name: "volume_avg_period", Value: float64(p.VolumeAvgPeriod)}
	case p.PositionSizeFrac <= 0 || p.PositionSizeFrac > 1:
		return &InvalidParameterError{Name: "position_size_frac", Value: p.PositionSizeFrac}
	}
	return nil
}

// EffectiveParameters are the volatility-adjusted percent widths used for a
// single candle. They are derived, never stored across candles.
type EffectiveParameters struct {
	StopLossPct     float64
	TakeProfitPct   float64
	TrailingStopPct float64
}

// Effective derives the widths for the current volatility reading: 1.5x in
// high-volatility regimes, 0.75x in low, 1.0x otherwise. Pure function; the
// base values are never mutated.
func Effective(base StrategyParameters, volatility float64) EffectiveParameters {
	mult := 1.0
	if volatility > base.HighVolThreshold {
		mult = 1.5
	} else if volatility < base.LowVolThreshold {
		mult = 0.75
	}
	return EffectiveParameters{
		StopLossPct:     base.BaseStopLossPct * mult,
		TakeProfitPct:   base.BaseTakeProfitPct * mult,
		TrailingStopPct: base.BaseTrailingStopPct * mult,
	}
}

// Validate fails fast on non-positive distances instead of silently
// disabling the stop.
func (e EffectiveParameters) Validate() error {
	switch {
	case e.StopLossPct <= 0:
		return &InvalidParameterError{Name: "stop_loss_pct", Value: e.StopLossPct}
	case e.TakeProfitPct <= 0:
		return &InvalidParameterError{Name: "take_profit_pct", Value: e.TakeProfitPct}
	case e.TrailingStopPct <= 0:
		return &InvalidParameterError{Name: "trailing_stop_pct", Value: e.TrailingStopPct}
	}
	return nil
}
