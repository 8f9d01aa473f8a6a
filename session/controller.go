package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"radiorec-tui/config"
	"radiorec-tui/model"
	"radiorec-tui/store"
)

// Phase is the lifecycle state of the controller's current session.
type Phase int

const (
	PhaseNotRecording Phase = iota
	PhaseStarting
	PhaseRecording
	PhaseStopping
	PhasePendingUpload
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseNotRecording:
		return "not-recording"
	case PhaseStarting:
		return "starting"
	case PhaseRecording:
		return "recording"
	case PhaseStopping:
		return "stopping"
	case PhasePendingUpload:
		return "pending-upload"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Controller drives exactly one recording session end-to-end and
// reconciles the catalog once the backend confirms durable storage.
type Controller struct {
	backend  Backend
	catalog  *store.Catalog
	deviceID string
	cfg      config.Config
	logger   *zap.Logger

	mu       sync.Mutex
	phase    Phase
	active   *model.RecordingEntry
	tickStop chan struct{}

	// entryMu serializes catalog writes for the active entry. A tick
	// holds it across its phase check and write, so a stop that acquires
	// it afterwards always lands its freeze after any in-flight tick.
	entryMu sync.Mutex

	now func() time.Time
}

// NewController creates a session controller for one device.
func NewController(backend Backend, catalog *store.Catalog, deviceID string, cfg config.Config, logger *zap.Logger) *Controller {
	return &Controller{
		backend:  backend,
		catalog:  catalog,
		deviceID: deviceID,
		cfg:      cfg,
		logger:   logger,
		phase:    PhaseNotRecording,
		now:      time.Now,
	}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Active reports whether a session is running, and if so its id and
// elapsed seconds. Used by the UI for the live recording timer.
func (c *Controller) Active() (sessionID string, elapsedSeconds int, recording bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.phase != PhaseRecording {
		return "", 0, false
	}
	return c.active.ID, int(c.now().Sub(c.active.StartTime).Seconds()), true
}

// Recordings returns the device's catalog, expiry-swept and sorted
// newest-first for display.
func (c *Controller) Recordings() ([]model.RecordingEntry, error) {
	entries, err := c.catalog.Load()
	if err != nil {
		return nil, err
	}
	return model.SortedByRecency(entries), nil
}

// StartRecording begins a new session. A second start while one is
// active is rejected with ErrAlreadyRecording before any backend call.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseStarting, PhaseRecording, PhaseStopping:
		c.mu.Unlock()
		return ErrAlreadyRecording
	}
	c.phase = PhaseStarting
	c.mu.Unlock()

	sessionID, err := c.backend.StartRecording(ctx, c.deviceID)
	if err != nil {
		c.mu.Lock()
		c.phase = PhaseNotRecording
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrStartFailed, err)
	}

	start := c.now()
	entry := model.RecordingEntry{
		ID:         sessionID,
		StartTime:  start,
		Duration:   0,
		Expiry:     start.Add(c.cfg.Retention()),
		ChunkCount: 1,
		Uploaded:   false,
	}

	c.mu.Lock()
	c.active = &entry
	c.phase = PhaseRecording
	c.tickStop = make(chan struct{})
	go c.tickLoop(c.tickStop)
	c.mu.Unlock()

	c.entryMu.Lock()
	if err := c.catalog.Upsert(entry); err != nil {
		c.logger.Warn("persist new recording entry", zap.Error(err))
	}
	c.entryMu.Unlock()

	c.logger.Info("recording started",
		zap.String("session_id", sessionID),
		zap.String("device_id", c.deviceID))
	return nil
}

// tickLoop advances the active entry once per second. Every tick is
// written through to the catalog so a crash loses at most one second.
func (c *Controller) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) tick() {
	c.entryMu.Lock()
	defer c.entryMu.Unlock()

	c.mu.Lock()
	if c.phase != PhaseRecording || c.active == nil {
		c.mu.Unlock()
		return
	}
	c.active.Duration = int(c.now().Sub(c.active.StartTime).Seconds())
	c.active.ChunkCount = model.ChunkCountFor(c.active.Duration, c.cfg.ChunkSeconds)
	entry := *c.active
	c.mu.Unlock()

	if err := c.catalog.Upsert(entry); err != nil {
		c.logger.Warn("persist recording tick", zap.Error(err))
	}
}

// StopRecording ends the active session, freezes its duration and
// immediately asks the backend to finalize chunk storage. A finalize
// failure is not an error here: the entry simply stays un-uploaded
// until a download request re-attempts URL retrieval.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseRecording || c.active == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	// Closing tickStop cancels future ticks; entryMu below fences any
	// tick already in flight, so tick and finalize never interleave on
	// the entry.
	close(c.tickStop)
	c.tickStop = nil
	c.phase = PhaseStopping
	sessionID := c.active.ID
	c.mu.Unlock()

	durationSeconds, err := c.backend.StopRecording(ctx, c.deviceID, sessionID)
	if err != nil {
		// Conceptually still recording; the caller may retry the stop
		c.mu.Lock()
		c.phase = PhaseRecording
		c.tickStop = make(chan struct{})
		go c.tickLoop(c.tickStop)
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrStopFailed, err)
	}

	// A tick that passed its phase check before the stop began may still
	// be writing a pre-stop copy of the entry; taking entryMu here makes
	// that write land before the freeze, never after it.
	c.entryMu.Lock()
	defer c.entryMu.Unlock()

	c.mu.Lock()
	if durationSeconds <= 0 {
		durationSeconds = int(c.now().Sub(c.active.StartTime).Seconds())
	}
	c.active.Duration = durationSeconds
	c.active.ChunkCount = model.ChunkCountFor(durationSeconds, c.cfg.ChunkSeconds)
	entry := *c.active
	c.active = nil
	c.phase = PhasePendingUpload
	c.mu.Unlock()

	if err := c.catalog.Upsert(entry); err != nil {
		c.logger.Warn("persist stopped recording", zap.Error(err))
	}
	c.logger.Info("recording stopped",
		zap.String("session_id", sessionID),
		zap.Int("duration_s", entry.Duration),
		zap.Int("chunks", entry.ChunkCount))

	c.finalize(ctx, entry)
	return nil
}

// finalize asks the backend for the per-chunk download URLs and marks
// the entry uploaded on success. There is no automatic retry.
func (c *Controller) finalize(ctx context.Context, entry model.RecordingEntry) {
	urls, err := c.backend.Finalize(ctx, c.deviceID, entry.ID)
	if err != nil || len(urls) == 0 {
		c.logger.Warn("finalize did not produce download urls",
			zap.String("session_id", entry.ID),
			zap.Error(err))
		c.setPhase(PhaseNotRecording)
		return
	}

	c.markUploaded(entry.ID, urls)
	c.setPhase(PhaseReady)
}

// markUploaded records the backend-confirmed URL list on the entry.
// The backend owns chunking, so its URL count is authoritative.
// Callers hold entryMu.
func (c *Controller) markUploaded(sessionID string, urls []string) {
	entries, err := c.catalog.Load()
	if err != nil {
		c.logger.Warn("load catalog for upload result", zap.Error(err))
		return
	}
	for i := range entries {
		if entries[i].ID == sessionID {
			entries[i].Uploaded = true
			entries[i].DownloadURLs = urls
			entries[i].ChunkCount = len(urls)
			break
		}
	}
	if err := c.catalog.Save(entries); err != nil {
		c.logger.Warn("persist upload result", zap.Error(err))
	}
}

// RequestDownloadURLs returns the chunk URLs for a recording, fetching
// them from the backend when they are not cached yet.
func (c *Controller) RequestDownloadURLs(ctx context.Context, sessionID string) ([]string, error) {
	entries, err := c.catalog.Load()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == sessionID && e.Uploaded {
			return e.DownloadURLs, nil
		}
	}

	urls, err := c.backend.RecordingURLs(ctx, c.deviceID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if len(urls) == 0 {
		return nil, ErrURLsNotReady
	}

	c.entryMu.Lock()
	c.markUploaded(sessionID, urls)
	c.entryMu.Unlock()
	return urls, nil
}

// DeleteRecording removes a recording backend-first. The catalog entry
// is only dropped once the backend confirms, never optimistically.
func (c *Controller) DeleteRecording(ctx context.Context, sessionID string) error {
	if err := c.backend.DeleteRecording(ctx, c.deviceID, sessionID); err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	c.entryMu.Lock()
	err := c.catalog.Remove(sessionID)
	c.entryMu.Unlock()
	if err != nil {
		return err
	}
	c.logger.Info("recording deleted", zap.String("session_id", sessionID))
	return nil
}

// Close stops the tick loop. An in-flight stop or finalize request is
// simply no longer observed; the backend side proceeds on its own.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A new session may already be starting; never regress its phase
	if c.phase == PhasePendingUpload {
		c.phase = p
	}
}
