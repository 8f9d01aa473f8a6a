package session

import "errors"

// Contract and backend errors surfaced by the controller. Callers are
// expected to check these with errors.Is and translate them into
// user-facing messages.
var (
	// ErrAlreadyRecording rejects a second start while a session is
	// active. No backend call is made.
	ErrAlreadyRecording = errors.New("a recording is already in progress")

	// ErrNoActiveSession rejects a stop with nothing to stop.
	ErrNoActiveSession = errors.New("no active recording session")

	// ErrURLsNotReady means the backend has no chunks available yet; an
	// expected transient condition while the upload is in flight.
	ErrURLsNotReady = errors.New("download URLs are not ready yet")

	// ErrBackendUnavailable wraps a failed backend call; the catalog is
	// left untouched and the caller may retry.
	ErrBackendUnavailable = errors.New("recording backend unavailable")

	// ErrStartFailed wraps a rejected start request.
	ErrStartFailed = errors.New("failed to start recording")

	// ErrStopFailed wraps a rejected stop request; the session stays
	// active and stop may be retried.
	ErrStopFailed = errors.New("failed to stop recording")
)
