package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type PositionSide int

const (
	SideFlat PositionSide = iota
	SideLong
	SideShort
)

func (s PositionSide) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "flat"
	}
}

// sign returns +1 for long, -1 for short, 0 for flat.
func (s PositionSide) sign() decimal.Decimal {
	switch s {
	case SideLong:
		return decimal.NewFromInt(1)
	case SideShort:
		return decimal.NewFromInt(-1)
	default:
		return decimal.Zero
	}
}

// Position is the single open position of a run. Entry fields and the stop
// levels are set on open; only TrailingStop moves afterward, and only in the
// position's favor.
type Position struct {
	Side         PositionSide
	EntryTime    int64
	EntryPrice   decimal.Decimal // fill price, basis for the stop levels
	EntryIntent  decimal.Decimal // pre-slippage price, recorded on the Trade
	Quantity     decimal.Decimal
	StopLoss     decimal.Decimal
	TakeProfit   decimal.Decimal
	TrailingStop decimal.Decimal

	entryFees     decimal.Decimal
	entrySlippage decimal.Decimal
}

// Trade is the immutable record of one closed position.
// PnL = sideSign*(ExitPrice-EntryPrice)*Quantity - Fees - SlippageCost, with
// entry/exit prices being the intent prices and slippage itemized.
type Trade struct {
	EntryTime    int64           `json:"entry_time"`
	ExitTime     int64           `json:"exit_time"`
	Side         PositionSide    `json:"side"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	ExitPrice    decimal.Decimal `json:"exit_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Fees         decimal.Decimal `json:"fees"`
	SlippageCost decimal.Decimal `json:"slippage_cost"`
	PnL          decimal.Decimal `json:"pnl"`
	ExitReason   string          `json:"exit_reason"`
}

type EquityPoint struct {
	Timestamp int64           `json:"ts"`
	Equity    decimal.Decimal `json:"equity"`
}

// Ledger owns cash, the open position, the closed trades and the equity
// series of exactly one run.
type Ledger struct {
	cash     decimal.Decimal
	position Position
	trades   []Trade
	curve    []EquityPoint
}

func NewLedger(initialCapital decimal.Decimal) *Ledger {
	return &Ledger{cash: initialCapital}
}

func (l *Ledger) Cash() decimal.Decimal      { return l.cash }
func (l *Ledger) Trades() []Trade            { return l.trades }
func (l *Ledger) EquityCurve() []EquityPoint { return l.curve }

// PositionRef exposes the open position to the strategy; the trailing-stop
// ratchet is the only mutation allowed through it.
func (l *Ledger) PositionRef() *Position { return &l.position }

// Open applies an entry fill. Long entries spend cash, short entries bank
// the proceeds; fees are always paid from cash.
func (l *Ledger) Open(ts int64, side PositionSide, fill FilledOrder, stopLoss, takeProfit decimal.Decimal) error {
	if l.position.Side != SideFlat {
		return fmt.Errorf("open: position already %s", l.position.Side)
	}
	if side != SideLong && side != SideShort {
		return fmt.Errorf("open: invalid side %d", side)
	}
	notional := fill.Price.Mul(fill.Quantity)
	if side == SideLong {
		l.cash = l.cash.Sub(notional).Sub(fill.Fees)
	} else {
		l.cash = l.cash.Add(notional).Sub(fill.Fees)
	}
	l.position = Position{
		Side:          side,
		EntryTime:     ts,
		EntryPrice:    fill.Price,
		EntryIntent:   fill.IntentPrice,
		Quantity:      fill.Quantity,
		StopLoss:      stopLoss,
		TakeProfit:    takeProfit,
		TrailingStop:  stopLoss,
		entryFees:     fill.Fees,
		entrySlippage: fill.SlippageCost,
	}
	return nil
}

// Close applies an exit fill, producing exactly one immutable Trade and
// returning the position to flat.
func (l *Ledger) Close(ts int64, fill FilledOrder, reason string) (Trade, error) {
	if l.position.Side == SideFlat {
		return Trade{}, fmt.Errorf("close: no open position")
	}
	pos := l.position
	notional := fill.Price.Mul(fill.Quantity)
	if pos.Side == SideLong {
		l.cash = l.cash.Add(notional).Sub(fill.Fees)
	} else {
		l.cash = l.cash.Sub(notional).Sub(fill.Fees)
	}
	fees := pos.entryFees.Add(fill.Fees)
	slip := pos.entrySlippage.Add(fill.SlippageCost)
	tr := Trade{
		EntryTime:    pos.EntryTime,
		ExitTime:     ts,
		Side:         pos.Side,
		EntryPrice:   pos.EntryIntent,
		ExitPrice:    fill.IntentPrice,
		Quantity:     pos.Quantity,
		Fees:         fees,
		SlippageCost: slip,
		PnL: pos.Side.sign().
			Mul(fill.IntentPrice.Sub(pos.EntryIntent)).
			Mul(pos.Quantity).
			Sub(fees).
			Sub(slip),
		ExitReason: reason,
	}
	l.trades = append(l.trades, tr)
	l.position = Position{}
	return tr, nil
}

// CashAfterClose previews the cash balance a close fill would leave, without
// mutating anything. Used to size the reopened side of a reversal.
func (l *Ledger) CashAfterClose(fill FilledOrder) decimal.Decimal {
	notional := fill.Price.Mul(fill.Quantity)
	if l.position.Side == SideLong {
		return l.cash.Add(notional).Sub(fill.Fees)
	}
	return l.cash.Sub(notional).Sub(fill.Fees)
}

// Reverse closes the open position and opens the opposite side in one
// transaction: one Trade out, one new Position in, never a half-applied
// state in between. Both fills must already be priced.
func (l *Ledger) Reverse(ts int64, closeFill, openFill FilledOrder, stopLoss, takeProfit decimal.Decimal) (Trade, error) {
	if l.position.Side == SideFlat {
		return Trade{}, fmt.Errorf("reverse: no open position")
	}
	newSide := SideLong
	if l.position.Side == SideLong {
		newSide = SideShort
	}
	tr, err := l.Close(ts, closeFill, "reverse")
	if err != nil {
		return Trade{}, err
	}
	if err := l.Open(ts, newSide, openFill, stopLoss, takeProfit); err != nil {
		return Trade{}, err
	}
	return tr, nil
}

// UnrealizedPnL marks the open position against a price; zero when flat.
func (l *Ledger) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if l.position.Side == SideFlat {
		return decimal.Zero
	}
	return l.position.Side.sign().
		Mul(price.Sub(l.position.EntryPrice)).
		Mul(l.position.Quantity)
}

// MarkToMarket appends one equity point. Equity is always recomputed from
// state: cash plus the market value of the open position (negative for a
// short's buyback liability), never accumulated incrementally.
func (l *Ledger) MarkToMarket(ts int64, price decimal.Decimal) EquityPoint {
	equity := l.cash
	if l.position.Side != SideFlat {
		equity = equity.Add(l.position.Side.sign().Mul(price).Mul(l.position.Quantity))
	}
	pt := EquityPoint{Timestamp: ts, Equity: equity}
	l.curve = append(l.curve, pt)
	return pt
}
