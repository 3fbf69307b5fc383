package model

// LivenessState is a state transition published by an external
// liveness-detection session (e.g. a BFD-style peer), used as an
// alternate health source that bypasses probe-based scoring.
type LivenessState int32

const (
	LivenessDown LivenessState = iota
	LivenessInit
	LivenessUp
	LivenessAdminDown
)

func (s LivenessState) String() string {
	switch s {
	case LivenessUp:
		return "up"
	case LivenessInit:
		return "init"
	case LivenessAdminDown:
		return "admin_down"
	default:
		return "down"
	}
}

// LivenessEvent is one asynchronous state transition for a path
type LivenessEvent struct {
	PathID PathID        `json:"path_id"`
	State  LivenessState `json:"state"`
}
