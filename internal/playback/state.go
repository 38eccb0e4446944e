package playback

// State is the lifecycle state of a session's decode loop.
type State int32

const (
	StateOpening State = iota
	StateSteady
	StateSeeking
	StateDraining
	StateErroring
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateSteady:
		return "steady"
	case StateSeeking:
		return "seeking"
	case StateDraining:
		return "draining"
	case StateErroring:
		return "erroring"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
