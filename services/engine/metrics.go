package engine

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceReport is the flat, read-only summary of one finished run.
// Realized metrics come from closed trades only; an open terminal position
// is surfaced separately as unrealized PnL rather than guessed closed.
type PerformanceReport struct {
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalEquity    decimal.Decimal `json:"final_equity"`
	ROI            float64         `json:"roi_pct"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate_pct"`

	GrossProfit  decimal.Decimal `json:"gross_profit"`
	GrossLoss    decimal.Decimal `json:"gross_loss"`
	ProfitFactor float64         `json:"profit_factor"`

	MaxDrawdown    float64 `json:"max_drawdown_pct"` // negative
	DrawdownPeak   int     `json:"drawdown_peak_idx"`
	DrawdownTrough int     `json:"drawdown_trough_idx"`

	Sharpe     float64 `json:"sharpe"`
	Sortino    float64 `json:"sortino"`
	Calmar     float64 `json:"calmar"`
	Volatility float64 `json:"volatility"`

	AvgTradeDuration time.Duration `json:"avg_trade_duration_ns"`

	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenPosition  bool            `json:"open_position"`
}

// Analyze is a pure function over the finalized ledger outputs. It never
// mutates its inputs and can run on a partial (cancelled) ledger.
func Analyze(trades []Trade, curve []EquityPoint, initialCapital decimal.Decimal,
	riskFreeRate, periodsPerYear float64, unrealized decimal.Decimal, openPosition bool) PerformanceReport {

	rep := PerformanceReport{
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		UnrealizedPnL:  unrealized,
		OpenPosition:   openPosition,
		GrossProfit:    decimal.Zero,
		GrossLoss:      decimal.Zero,
		RealizedPnL:    decimal.Zero,
	}
	if len(curve) > 0 {
		rep.FinalEquity = curve[len(curve)-1].Equity
	}
	if cap0 := initialCapital.InexactFloat64(); cap0 != 0 {
		rep.ROI = 100 * rep.FinalEquity.Sub(initialCapital).InexactFloat64() / cap0
	}

	var durationMs int64
	for _, t := range trades {
		rep.RealizedPnL = rep.RealizedPnL.Add(t.PnL)
		if t.PnL.IsPositive() {
			rep.WinningTrades++
			rep.GrossProfit = rep.GrossProfit.Add(t.PnL)
		} else if t.PnL.IsNegative() {
			rep.LosingTrades++
			rep.GrossLoss = rep.GrossLoss.Add(t.PnL.Neg())
		}
		durationMs += t.ExitTime - t.EntryTime
	}
	rep.TotalTrades = len(trades)
	if rep.TotalTrades > 0 {
		rep.WinRate = 100 * float64(rep.WinningTrades) / float64(rep.TotalTrades)
		rep.AvgTradeDuration = time.Duration(durationMs/int64(rep.TotalTrades)) * time.Millisecond
	}

	switch {
	case rep.GrossLoss.IsZero() && rep.GrossProfit.IsPositive():
		rep.ProfitFactor = math.Inf(1)
	case rep.GrossLoss.IsZero():
		rep.ProfitFactor = 0
	default:
		rep.ProfitFactor = rep.GrossProfit.InexactFloat64() / rep.GrossLoss.InexactFloat64()
	}

	rep.MaxDrawdown, rep.DrawdownPeak, rep.DrawdownTrough = maxDrawdown(curve)

	returns := periodReturns(curve)
	rep.Volatility = stddev(returns) * math.Sqrt(periodsPerYear)

	rfPerPeriod := riskFreeRate / periodsPerYear
	excess := make([]float64, len(returns))
	var downside []float64
	for i, r := range returns {
		excess[i] = r - rfPerPeriod
		if excess[i] < 0 {
			downside = append(downside, excess[i])
		}
	}
	if sd := stddev(excess); sd > 0 {
		rep.Sharpe = math.Sqrt(periodsPerYear) * mean(excess) / sd
	}
	if len(excess) > 0 {
		if len(downside) == 0 {
			rep.Sortino = math.Inf(1)
		} else if sd := stddev(downside); sd > 0 {
			rep.Sortino = math.Sqrt(periodsPerYear) * mean(excess) / sd
		}
	}
	if dd := rep.MaxDrawdown / 100; dd != 0 {
		rep.Calmar = mean(returns) * periodsPerYear / math.Abs(dd)
	}

	return rep
}

// periodReturns are simple per-point returns of the equity curve.
func periodReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity.InexactFloat64()
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, curve[i].Equity.InexactFloat64()/prev-1)
	}
	return out
}

// maxDrawdown returns the deepest peak-to-trough decline as a negative
// percentage, with the indices of the peak and the trough.
func maxDrawdown(curve []EquityPoint) (ddPct float64, peak, trough int) {
	if len(curve) == 0 {
		return 0, 0, 0
	}
	runningMax := curve[0].Equity.InexactFloat64()
	runningPeak := 0
	worst := 0.0
	for i, pt := range curve {
		e := pt.Equity.InexactFloat64()
		if e > runningMax {
			runningMax = e
			runningPeak = i
		}
		if runningMax == 0 {
			continue
		}
		dd := (e - runningMax) / runningMax
		if dd < worst {
			worst = dd
			peak = runningPeak
			trough = i
		}
	}
	return 100 * worst, peak, trough
}
