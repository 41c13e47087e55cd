package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Candle is a single OHLCV bar. Timestamps are Unix milliseconds and must be
// strictly increasing within a series. Candles are immutable once ingested.
type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Validate checks the OHLC sanity invariants of a single candle.
func (c Candle) Validate() error {
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
		return fmt.Errorf("candle %d: high %s below open/close", c.Timestamp, c.High)
	}
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
		return fmt.Errorf("candle %d: low %s above open/close", c.Timestamp, c.Low)
	}
	if c.Volume.IsNegative() {
		return fmt.Errorf("candle %d: negative volume %s", c.Timestamp, c.Volume)
	}
	return nil
}

// ValidateSeries checks per-candle invariants and strict timestamp ordering.
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && c.Timestamp <= candles[i-1].Timestamp {
			return &DataOrderError{Index: i, PrevTs: candles[i-1].Timestamp, Ts: c.Timestamp}
		}
	}
	return nil
}
