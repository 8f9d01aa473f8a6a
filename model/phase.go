package model

// ConnectionPhase is the transient state of the live-stream connection.
// It is never persisted.
type ConnectionPhase int

const (
	PhaseIdle ConnectionPhase = iota
	PhaseConnecting
	PhasePlaying
	PhaseReconnecting
	PhaseFailed
)

// String returns a short label for logs and the status line.
func (p ConnectionPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhasePlaying:
		return "playing"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
