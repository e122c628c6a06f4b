package poller

// State is the poll loop's lifecycle position. A cycle moves
// IDLE, FETCHING, EVALUATING, PERSISTING (new signals only), SLEEPING and
// back to IDLE once the delay elapses or a trigger arrives.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateEvaluating
	StatePersisting
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateEvaluating:
		return "EVALUATING"
	case StatePersisting:
		return "PERSISTING"
	case StateSleeping:
		return "SLEEPING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
