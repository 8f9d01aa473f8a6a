package player

// EventKind identifies a playback primitive signal.
type EventKind int

const (
	// EventPlaying fires once audio is actually flowing after Play.
	EventPlaying EventKind = iota
	// EventProgress fires as stream data keeps arriving; its absence is
	// how a silently stalled connection is detected upstream.
	EventProgress
	// EventEnded fires when the source terminates cleanly (EOF, close).
	EventEnded
	// EventError fires on any transport or decode failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPlaying:
		return "playing"
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered by a Primitive to the callback it was built with.
type Event struct {
	Kind EventKind
	Err  error // set for EventError
}

// Primitive is one playback attempt against the live stream. It is
// disposable: the connection manager builds a fresh one per attempt and
// fully closes the old one first, so a Primitive never reconnects on
// its own.
type Primitive interface {
	// Load sets the source URL. It does no I/O.
	Load(url string)
	// Play opens the source and starts audible output. A nil return only
	// means the connection was established; later trouble arrives as events.
	Play() error
	// Pause silences output without tearing the primitive down.
	Pause()
	// Paused reports whether output is currently silenced.
	Paused() bool
	// SetVolume sets output gain in [0, 1].
	SetVolume(level float64)
	// Close tears everything down. No events are emitted after Close.
	Close()
}

// EventFunc receives primitive events. Callbacks may arrive from the
// primitive's internal goroutines.
type EventFunc func(Event)

// Factory builds a primitive wired to the given callback.
type Factory func(onEvent EventFunc) Primitive
