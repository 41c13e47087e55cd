package engine

import "github.com/shopspring/decimal"

// OrderSide is the direction of a single fill (not of the position).
type OrderSide int

const (
	OrderBuy OrderSide = iota
	OrderSell
)

func (s OrderSide) String() string {
	if s == OrderBuy {
		return "buy"
	}
	return "sell"
}

// FeeModel prices the commission of a fill.
type FeeModel interface {
	Compute(price, qty decimal.Decimal) decimal.Decimal
}

// PercentFeeModel charges a fraction of notional value regardless of side.
type PercentFeeModel struct {
	Rate decimal.Decimal // e.g. 0.001 for 0.1%
}

func (m PercentFeeModel) Compute(price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty).Mul(m.Rate)
}

// SlippageModel moves the intent price against the trader.
type SlippageModel interface {
	Apply(side OrderSide, price decimal.Decimal) decimal.Decimal
}

// PercentSlippage fills buys higher and sells lower by a fixed fraction.
type PercentSlippage struct {
	Rate decimal.Decimal // e.g. 0.0001 for 0.01%
}

func (m PercentSlippage) Apply(side OrderSide, price decimal.Decimal) decimal.Decimal {
	adj := price.Mul(m.Rate)
	if side == OrderBuy {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

// FilledOrder is the result of pricing one trade intent. IntentPrice is the
// pre-slippage price; Price is what the cash account actually moves at.
type FilledOrder struct {
	Side         OrderSide
	IntentPrice  decimal.Decimal
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Fees         decimal.Decimal
	SlippageCost decimal.Decimal
}

// Execution converts trade intents into fills with itemized costs.
type Execution struct {
	fees FeeModel
	slip SlippageModel
}

// NewExecution builds the default percentage models. Rates are fractions:
// feeRate 0.001 charges 0.1% of notional per side.
func NewExecution(feeRate, slippageRate float64) *Execution {
	return &Execution{
		fees: PercentFeeModel{Rate: decimal.NewFromFloat(feeRate)},
		slip: PercentSlippage{Rate: decimal.NewFromFloat(slippageRate)},
	}
}

// NewExecutionWithModels injects custom models (tests zero them out).
func NewExecutionWithModels(fees FeeModel, slip SlippageModel) *Execution {
	return &Execution{fees: fees, slip: slip}
}

// Fill prices an order. Zero or negative price/quantity is a precondition
// violation, never a silent drop.
func (x *Execution) Fill(side OrderSide, intentPrice, qty decimal.Decimal) (FilledOrder, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return FilledOrder{}, &InvalidOrderError{Price: intentPrice, Quantity: qty, Reason: "non-positive quantity"}
	}
	if intentPrice.LessThanOrEqual(decimal.Zero) {
		return FilledOrder{}, &InvalidOrderError{Price: intentPrice, Quantity: qty, Reason: "non-positive price"}
	}
	fill := x.slip.Apply(side, intentPrice)
	return FilledOrder{
		Side:         side,
		IntentPrice:  intentPrice,
		Price:        fill,
		Quantity:     qty,
		Fees:         x.fees.Compute(fill, qty),
		SlippageCost: fill.Sub(intentPrice).Abs().Mul(qty),
	}, nil
}
