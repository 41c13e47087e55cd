package engine

type EventType int

const (
	EventEntryFill EventType = iota
	EventTakeProfitHit
	EventReversal
	EventTrailingRatchet
	EventRunEnd
)

func (t EventType) String() string {
	switch t {
	case EventEntryFill:
		return "entry_fill"
	case EventTakeProfitHit:
		return "take_profit_hit"
	case EventReversal:
		return "reversal"
	case EventTrailingRatchet:
		return "trailing_ratchet"
	case EventRunEnd:
		return "run_end"
	default:
		return "unknown"
	}
}

// Event is one forensic record of the replay loop. Events are outputs only;
// decisions never read them back.
type Event struct {
	Ts      int64
	Type    EventType
	Details map[string]string
}

type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }
