package engine

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result is everything one run produces. Trades and the equity curve are the
// primary outputs; events and the manifest exist for forensics and
// reproducibility.
type Result struct {
	Trades        []Trade           `json:"trades"`
	EquityCurve   []EquityPoint     `json:"equity_curve"`
	Events        []Event           `json:"-"`
	Report        PerformanceReport `json:"report"`
	Manifest      RunManifest       `json:"manifest"`
	FinalPosition Position          `json:"-"`
}

// Replay drives the candle-by-candle loop. It holds no trading state itself;
// every Run resets the strategy and constructs a fresh, isolated runState,
// so identical inputs replay identically on a reused Replay, and parameter
// sweeps can run one Replay per goroutine safely.
type Replay struct {
	strat  Strategy
	exec   *Execution
	logger *zap.Logger

	// Analyzer settings; defaults assume 5m candles.
	RiskFreeRate   float64
	PeriodsPerYear float64
}

func NewReplay(strat Strategy, exec *Execution, logger *zap.Logger) *Replay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replay{
		strat:          strat,
		exec:           exec,
		logger:         logger,
		PeriodsPerYear: 365 * 24 * 12,
	}
}

// runState is the mutable state of exactly one run. Never shared, never a
// package-level singleton.
type runState struct {
	params    StrategyParameters
	ind       *IndicatorEngine
	led       *Ledger
	events    *EventLog
	manifest  RunManifest
	lastClose decimal.Decimal
}

// Run replays the candles in order and returns the trade ledger, the equity
// curve and the performance report. Candles must be strictly increasing in
// time; nothing from candle i+1.. is visible while processing candle i.
//
// A cancelled context stops the iteration and returns the consistent partial
// result together with ctx.Err(). A terminal open position is left open and
// reported as unrealized PnL.
func (r *Replay) Run(ctx context.Context, candles []Candle, params StrategyParameters, initialCapital decimal.Decimal) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if initialCapital.LessThanOrEqual(decimal.Zero) {
		return nil, &InvalidParameterError{Name: "initial_capital", Value: initialCapital.InexactFloat64()}
	}
	r.strat.Reset()

	st := &runState{
		params:   params,
		ind:      NewIndicatorEngine(params),
		led:      NewLedger(initialCapital),
		events:   &EventLog{},
		manifest: NewRunManifest(r.strat.Name(), params, candles),
	}

	r.logger.Info("backtest run started",
		zap.String("run_id", st.manifest.RunID),
		zap.String("strategy", r.strat.Name()),
		zap.Int("candles", len(candles)),
		zap.String("initial_capital", initialCapital.String()))

	// Opening equity point: initial capital, flat position.
	startTs := int64(0)
	if len(candles) > 0 {
		startTs = candles[0].Timestamp
	}
	st.led.MarkToMarket(startTs, decimal.Zero)

	var prevTs int64
	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("backtest run cancelled", zap.String("run_id", st.manifest.RunID), zap.Int("candle", i))
			return r.finish(st, initialCapital), err
		}
		if i > 0 && c.Timestamp <= prevTs {
			return nil, &DataOrderError{Index: i, PrevTs: prevTs, Ts: c.Timestamp}
		}
		prevTs = c.Timestamp

		snap := st.ind.Update(c)
		pos := st.led.PositionRef()
		prevSide, prevTrail := pos.Side, pos.TrailingStop

		dec, err := r.strat.Evaluate(c, snap, st.ind.Ready(), pos)
		if err != nil {
			return nil, err
		}
		if prevSide != SideFlat && pos.Side == prevSide && !pos.TrailingStop.Equal(prevTrail) {
			st.events.Append(Event{Ts: c.Timestamp, Type: EventTrailingRatchet, Details: map[string]string{
				"from": prevTrail.String(),
				"to":   pos.TrailingStop.String(),
			}})
		}

		if dec.Action != ActionHold {
			if err := r.apply(c, dec, st); err != nil {
				return nil, err
			}
		}

		st.lastClose = c.Close
		st.led.MarkToMarket(c.Timestamp, c.Close)
	}

	st.events.Append(Event{Ts: prevTs, Type: EventRunEnd})
	res := r.finish(st, initialCapital)

	r.logger.Info("backtest run finished",
		zap.String("run_id", st.manifest.RunID),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("roi_pct", res.Report.ROI),
		zap.Bool("open_position", res.Report.OpenPosition))
	return res, nil
}

func (r *Replay) finish(st *runState, initialCapital decimal.Decimal) *Result {
	pos := *st.led.PositionRef()
	open := pos.Side != SideFlat
	unrealized := decimal.Zero
	if open {
		unrealized = st.led.UnrealizedPnL(st.lastClose)
	}
	return &Result{
		Trades:      st.led.Trades(),
		EquityCurve: st.led.EquityCurve(),
		Events:      st.events.Events,
		Report: Analyze(st.led.Trades(), st.led.EquityCurve(), initialCapital,
			r.RiskFreeRate, r.PeriodsPerYear, unrealized, open),
		Manifest:      st.manifest,
		FinalPosition: pos,
	}
}

func (r *Replay) apply(c Candle, dec Decision, st *runState) error {
	switch dec.Action {
	case ActionOpenLong, ActionOpenShort:
		side := SideLong
		order := OrderBuy
		if dec.Action == ActionOpenShort {
			side, order = SideShort, OrderSell
		}
		qty := positionQuantity(st.led.Cash(), st.params.PositionSizeFrac, dec.Price)
		fill, err := r.exec.Fill(order, dec.Price, qty)
		if err != nil {
			return err
		}
		stop, takeProfit := stopLevels(side, fill.Price, dec.Params)
		if err := st.led.Open(c.Timestamp, side, fill, stop, takeProfit); err != nil {
			return err
		}
		st.events.Append(Event{Ts: c.Timestamp, Type: EventEntryFill, Details: map[string]string{
			"side":  side.String(),
			"price": fill.Price.String(),
			"qty":   fill.Quantity.String(),
		}})
		r.logger.Debug("entry fill",
			zap.Int64("ts", c.Timestamp),
			zap.String("side", side.String()),
			zap.String("price", fill.Price.String()),
			zap.String("qty", fill.Quantity.String()))
		return nil

	case ActionClose:
		pos := st.led.PositionRef()
		fill, err := r.exec.Fill(closingSide(pos.Side), dec.Price, pos.Quantity)
		if err != nil {
			return err
		}
		tr, err := st.led.Close(c.Timestamp, fill, dec.Reason)
		if err != nil {
			return err
		}
		st.events.Append(Event{Ts: c.Timestamp, Type: EventTakeProfitHit, Details: map[string]string{
			"price": fill.Price.String(),
			"pnl":   tr.PnL.String(),
		}})
		r.logger.Debug("position closed",
			zap.Int64("ts", c.Timestamp),
			zap.String("reason", dec.Reason),
			zap.String("pnl", tr.PnL.String()))
		return nil

	case ActionReverse:
		pos := st.led.PositionRef()
		closeFill, err := r.exec.Fill(closingSide(pos.Side), dec.Price, pos.Quantity)
		if err != nil {
			return err
		}
		newSide := SideLong
		openOrder := OrderBuy
		if pos.Side == SideLong {
			newSide, openOrder = SideShort, OrderSell
		}
		qty := positionQuantity(st.led.CashAfterClose(closeFill), st.params.PositionSizeFrac, dec.Price)
		openFill, err := r.exec.Fill(openOrder, dec.Price, qty)
		if err != nil {
			return err
		}
		stop, takeProfit := stopLevels(newSide, openFill.Price, dec.Params)
		tr, err := st.led.Reverse(c.Timestamp, closeFill, openFill, stop, takeProfit)
		if err != nil {
			return err
		}
		st.events.Append(Event{Ts: c.Timestamp, Type: EventReversal, Details: map[string]string{
			"closed": tr.Side.String(),
			"opened": newSide.String(),
			"price":  dec.Price.String(),
			"pnl":    tr.PnL.String(),
		}})
		r.logger.Debug("position reversed",
			zap.Int64("ts", c.Timestamp),
			zap.String("closed", tr.Side.String()),
			zap.String("opened", newSide.String()),
			zap.String("pnl", tr.PnL.String()))
		return nil
	}
	return nil
}

func closingSide(side PositionSide) OrderSide {
	if side == SideLong {
		return OrderSell
	}
	return OrderBuy
}

// positionQuantity sizes an entry as a fraction of available cash at the
// intent price. Deterministic: no rounding beyond decimal division.
func positionQuantity(cash decimal.Decimal, frac float64, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return cash.Mul(decimal.NewFromFloat(frac)).Div(price)
}

// stopLevels derives the initial stop-loss and take-profit prices from the
// fill price and the effective widths at entry time.
func stopLevels(side PositionSide, fillPrice decimal.Decimal, eff EffectiveParameters) (stop, takeProfit decimal.Decimal) {
	slDist := fillPrice.Mul(decimal.NewFromFloat(eff.StopLossPct / 100))
	tpDist := fillPrice.Mul(decimal.NewFromFloat(eff.TakeProfitPct / 100))
	if side == SideLong {
		return fillPrice.Sub(slDist), fillPrice.Add(tpDist)
	}
	return fillPrice.Add(slDist), fillPrice.Sub(tpDist)
}
