package session

// State is the lifecycle state of the controller.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
