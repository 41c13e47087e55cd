package engine

import "github.com/shopspring/decimal"

// TouchResult indicates which exit level a candle touched first.
type TouchResult int

const (
	TouchNone TouchResult = iota
	TouchTakeProfit
	TouchTrailingStop
)

// ResolveTouchLong checks a long position's levels against the candle's
// high/low, so an intrabar touch counts, not just the close. When both
// levels are touched within one candle the take-profit wins: OHLC data
// cannot order the touches, and the favorable exit is preferred over the
// reversal path.
func ResolveTouchLong(c Candle, takeProfit, trailingStop decimal.Decimal) TouchResult {
	if c.High.GreaterThanOrEqual(takeProfit) {
		return TouchTakeProfit
	}
	if c.Low.LessThanOrEqual(trailingStop) {
		return TouchTrailingStop
	}
	return TouchNone
}

// ResolveTouchShort mirrors the long logic: take-profit below, stop above.
func ResolveTouchShort(c Candle, takeProfit, trailingStop decimal.Decimal) TouchResult {
	if c.Low.LessThanOrEqual(takeProfit) {
		return TouchTakeProfit
	}
	if c.High.GreaterThanOrEqual(trailingStop) {
		return TouchTrailingStop
	}
	return TouchNone
}

// TrailLong is the trailing-stop candidate for a long at the given close.
// Callers ratchet: the candidate replaces the stop only when it is higher.
func TrailLong(close decimal.Decimal, trailingStopPct float64) decimal.Decimal {
	return close.Mul(decimal.NewFromFloat(1 - trailingStopPct/100))
}

// TrailShort is the short-side candidate; it only ever replaces a higher stop.
func TrailShort(close decimal.Decimal, trailingStopPct float64) decimal.Decimal {
	return close.Mul(decimal.NewFromFloat(1 + trailingStopPct/100))
}
