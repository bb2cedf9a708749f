package recording

// State is a RecordingSession lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopping
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Active reports whether the recorder is capturing or paused.
func (s State) Active() bool {
	return s == StateRecording || s == StatePaused
}
