package backend

// State is the lifecycle state of the inference backend.
type State int

const (
	StateNotInitialized State = iota
	StateDiscovering
	StateLaunching
	StateHealthy
	StateUnhealthy
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotInitialized:
		return "not_initialized"
	case StateDiscovering:
		return "discovering"
	case StateLaunching:
		return "launching"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// allStates is used to reset the state gauge.
var allStates = []State{StateNotInitialized, StateDiscovering, StateLaunching, StateHealthy, StateUnhealthy, StateStopped}
