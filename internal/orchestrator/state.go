package orchestrator

type State int

const (
	Idle State = iota
	Probing
	Ready
	Converting
	Converted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Probing:
		return "probing"
	case Ready:
		return "ready"
	case Converting:
		return "converting"
	case Converted:
		return "converted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// TopicState is the bus topic every transition is published on. Subscribers
// receive a single StateChange argument.
const TopicState = "orchestrator:state"

type StateChange struct {
	From    State
	To      State
	Message string
}
