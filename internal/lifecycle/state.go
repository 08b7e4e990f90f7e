package lifecycle

// State is the per-instrument trade lifecycle position.
type State int

const (
	// NotInPosition means the instrument holds nothing and may scan for entries.
	NotInPosition State = iota
	// Pending means an entry order was submitted and awaits confirmation.
	Pending
	// InPosition means account sync confirmed the option leg exists.
	InPosition
)

func (s State) String() string {
	switch s {
	case NotInPosition:
		return "not in position"
	case Pending:
		return "pending"
	case InPosition:
		return "in position"
	default:
		return "unknown"
	}
}

// Event drives lifecycle transitions.
type Event int

const (
	// EntrySubmitted fires when a new short-option limit order goes out.
	EntrySubmitted Event = iota
	// LegConfirmed fires when account sync shows the option leg.
	LegConfirmed
	// EntryCanceled fires when the resting entry was swept with no fill.
	EntryCanceled
	// PositionClosed fires when the exit policy reports the position gone.
	PositionClosed
)

func (e Event) String() string {
	switch e {
	case EntrySubmitted:
		return "entry submitted"
	case LegConfirmed:
		return "leg confirmed"
	case EntryCanceled:
		return "entry canceled"
	case PositionClosed:
		return "position closed"
	default:
		return "unknown"
	}
}

var transitions = map[State]map[Event]State{
	NotInPosition: {EntrySubmitted: Pending},
	Pending:       {LegConfirmed: InPosition, EntryCanceled: NotInPosition},
	InPosition:    {PositionClosed: NotInPosition},
}

// Transition returns the successor state for an event, reporting false for
// any pair the lifecycle does not allow.
func Transition(s State, e Event) (State, bool) {
	next, ok := transitions[s][e]
	if !ok {
		return s, false
	}
	return next, true
}
