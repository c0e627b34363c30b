package launcher

// State is the lifecycle position of a Launcher.
type State int32

const (
	StateIdle State = iota
	StatePreparing
	StateLaunching
	StateRunning
	StateExited
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
