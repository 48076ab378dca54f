package engine

// Structured event stream consumed by logging/dashboard/API layers.
// Replaces the original bot's print-every-N-ticks diagnostics.

type EventType int

const (
	EventSignal EventType = iota
	EventPositionOpened
	EventPositionModified
	EventPositionClosed
	EventTradingHalted
	EventExecutionError
)

func (t EventType) String() string {
	switch t {
	case EventSignal:
		return "signal"
	case EventPositionOpened:
		return "position_opened"
	case EventPositionModified:
		return "position_modified"
	case EventPositionClosed:
		return "position_closed"
	case EventTradingHalted:
		return "trading_halted"
	case EventExecutionError:
		return "execution_error"
	default:
		return "unknown"
	}
}

type Event struct {
	Ts      int64
	Type    EventType
	Symbol  string
	Details map[string]string
}

type EventLog struct {
	Events []Event
}

func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }

// ByType returns the logged events of one type, in order.
func (l *EventLog) ByType(t EventType) []Event {
	var out []Event
	for _, e := range l.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
