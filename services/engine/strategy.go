package engine

import "github.com/shopspring/decimal"

// Action is what the strategy wants done after seeing one candle.
type Action int

const (
	ActionHold Action = iota
	ActionOpenLong
	ActionOpenShort
	ActionClose
	ActionReverse
)

func (a Action) String() string {
	switch a {
	case ActionOpenLong:
		return "open_long"
	case ActionOpenShort:
		return "open_short"
	case ActionClose:
		return "close"
	case ActionReverse:
		return "reverse"
	default:
		return "hold"
	}
}

// Decision carries the action, the intent price to execute at, and the
// effective widths to derive new stop levels from (opens and reversals).
type Decision struct {
	Action Action
	Price  decimal.Decimal
	Params EffectiveParameters
	Reason string
}

// Strategy is evaluated once per candle. pos is the run's single open
// position; the trailing-stop ratchet is the only mutation a strategy may
// perform on it. While ready is false the strategy must hold.
//
// Reset clears any state the strategy carries between candles. Run calls it
// before the first candle, so a strategy instance can be reused across runs
// without one run's tail leaking into the next.
type Strategy interface {
	Name() string
	Reset()
	Evaluate(c Candle, snap IndicatorSnapshot, ready bool, pos *Position) (Decision, error)
}
