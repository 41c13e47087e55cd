package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DataOrderError aborts a run: a feed that is not strictly increasing in
// time must not silently produce a biased backtest.
type DataOrderError struct {
	Index  int
	PrevTs int64
	Ts     int64
}

func (e *DataOrderError) Error() string {
	return fmt.Sprintf("candle %d out of order: timestamp %d <= previous %d", e.Index, e.Ts, e.PrevTs)
}

// InvalidParameterError aborts a run: a non-positive stop or take-profit
// distance would silently disable the exit logic.
type InvalidParameterError struct {
	Name  string
	Value float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %v", e.Name, e.Value)
}

// InvalidOrderError aborts a run: the execution model never silently drops
// or clamps quantity.
type InvalidOrderError struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Reason   string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order (price=%s qty=%s): %s", e.Price, e.Quantity, e.Reason)
}
