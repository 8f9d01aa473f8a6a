package stream

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"radiorec-tui/config"
	"radiorec-tui/model"
	"radiorec-tui/player"
)

// Status is a point-in-time summary of the connection, delivered to the
// status callback once per actual phase transition.
type Status struct {
	Phase      model.ConnectionPhase
	Attempt    int           // reconnection attempts so far
	RetryDelay time.Duration // wait before the next attempt, while reconnecting
	Message    string
}

// Manager keeps the live stream audible, recovering from drops without
// disturbing an explicit user pause. It owns the playback primitive:
// at most one instance exists at a time, and a fresh one is built for
// every connection attempt. Individual connection errors never reach
// the caller, only phase changes do.
type Manager struct {
	cfg     config.Config
	factory player.Factory
	logger  *zap.Logger

	mu           sync.Mutex
	phase        model.ConnectionPhase
	retryCount   int
	currentDelay time.Duration
	pendingDelay time.Duration // delay of the scheduled attempt, for status display
	userPaused   bool
	volume       float64

	primitive    player.Primitive
	generation   int // bumps on every teardown so stale events are discarded
	lastProgress time.Time

	retryTimer *time.Timer
	graceTimer *time.Timer

	healthOnce sync.Once
	healthStop chan struct{}

	onStatus func(Status)

	// replaceable in tests
	now   func() time.Time
	after func(d time.Duration, f func()) *time.Timer
}

// NewManager creates a connection manager. Nothing connects until
// Start or TogglePlayback is called.
func NewManager(cfg config.Config, factory player.Factory, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		factory:      factory,
		logger:       logger,
		phase:        model.PhaseIdle,
		currentDelay: cfg.InitialRetryDelay(),
		volume:       cfg.Volume,
		healthStop:   make(chan struct{}),
		now:          time.Now,
		after:        time.AfterFunc,
	}
}

// OnStatusChange registers the observer for phase transitions. Must be
// called before Start. The callback is invoked without internal locks
// held and at most once per transition.
func (m *Manager) OnStatusChange(cb func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = cb
}

// Start begins the connect sequence if not already connecting or
// playing. It is idempotent and also recovers from the Failed phase.
func (m *Manager) Start() {
	m.startHealthCheck()

	m.mu.Lock()
	if m.phase != model.PhaseIdle && m.phase != model.PhaseFailed {
		m.mu.Unlock()
		return
	}
	m.clearUserPauseLocked()
	m.resetBackoffLocked()
	old, st := m.connectLocked()
	m.mu.Unlock()

	closePrimitive(old)
	m.emitStatus(st)
}

// TogglePlayback flips the user's playback intent. While connected or
// reconnecting it pauses; while idle or failed it starts. It never
// fails and always leaves the machine in a valid phase.
func (m *Manager) TogglePlayback() {
	m.startHealthCheck()

	m.mu.Lock()
	var (
		old player.Primitive
		st  *Status
	)
	switch m.phase {
	case model.PhaseIdle, model.PhaseFailed:
		m.clearUserPauseLocked()
		m.resetBackoffLocked()
		old, st = m.connectLocked()
	default:
		old, st = m.pauseLocked()
	}
	m.mu.Unlock()

	closePrimitive(old)
	m.emitStatus(st)
}

// SetVolume forwards the level to the active primitive if one exists
// and remembers it for future attempts.
func (m *Manager) SetVolume(level float64) {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}

	m.mu.Lock()
	m.volume = level
	p := m.primitive
	m.mu.Unlock()

	if p != nil {
		p.SetVolume(level)
	}
}

// Volume returns the current output level.
func (m *Manager) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Snapshot returns the current status without waiting for a transition.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// Close tears down any active primitive and stops the health checker
// for good. It is terminal: a closed manager must not be restarted, as
// liveness probing will not resume. Build a new Manager instead.
func (m *Manager) Close() {
	m.mu.Lock()
	old := m.teardownLocked()
	m.cancelRetryLocked()
	m.phase = model.PhaseIdle
	m.mu.Unlock()

	closePrimitive(old)

	select {
	case <-m.healthStop:
	default:
		close(m.healthStop)
	}
}

// --- transitions (all *Locked helpers require m.mu) ---

// connectLocked moves to Connecting with a fresh primitive. The old
// primitive, if any, is returned for the caller to close outside the
// lock; its generation is already superseded so its events are inert.
func (m *Manager) connectLocked() (old player.Primitive, st *Status) {
	old = m.teardownLocked()
	m.cancelRetryLocked()

	m.phase = model.PhaseConnecting
	m.generation++
	gen := m.generation

	p := m.factory(func(ev player.Event) { m.handleEvent(gen, ev) })
	p.Load(m.cfg.StreamURL)
	p.SetVolume(m.volume)
	m.primitive = p

	m.logger.Info("connecting to stream",
		zap.String("url", m.cfg.StreamURL),
		zap.Int("attempt", m.retryCount))

	// Play blocks on the network; run it off the caller's goroutine
	go func() {
		if err := p.Play(); err != nil {
			m.logger.Warn("playback start rejected", zap.Error(err))
			m.failure(gen)
		}
	}()

	return old, m.statusPtrLocked()
}

// pauseLocked records a deliberate pause and fully tears down. The
// grace window keeps the resulting pause/ended signals from being
// misread as a stream failure.
func (m *Manager) pauseLocked() (old player.Primitive, st *Status) {
	old = m.teardownLocked()
	m.cancelRetryLocked()

	m.userPaused = true
	if m.graceTimer != nil {
		m.graceTimer.Stop()
	}
	m.graceTimer = m.after(m.cfg.PauseGrace(), func() {
		m.mu.Lock()
		m.userPaused = false
		m.mu.Unlock()
	})

	m.phase = model.PhaseIdle
	m.logger.Info("playback paused by user")
	return old, m.statusPtrLocked()
}

// failureLocked is the single failure-handling path for every trigger:
// error events, rejected playback starts, ended signals and health
// check detections all converge here.
func (m *Manager) failureLocked(gen int) (old player.Primitive, st *Status) {
	if gen != m.generation {
		return nil, nil // superseded primitive
	}
	if m.userPaused {
		return nil, nil // deliberate pause, not a drop
	}
	if m.phase != model.PhaseConnecting && m.phase != model.PhasePlaying {
		return nil, nil
	}

	old = m.teardownLocked()

	if m.cfg.MaxRetries > 0 && m.retryCount >= m.cfg.MaxRetries {
		m.phase = model.PhaseFailed
		m.logger.Error("reconnection attempts exhausted",
			zap.Int("attempts", m.retryCount))
		return old, m.statusPtrLocked()
	}

	m.retryCount++
	delay := m.currentDelay
	m.pendingDelay = delay
	m.phase = model.PhaseReconnecting

	m.logger.Warn("stream dropped, scheduling reconnect",
		zap.Int("attempt", m.retryCount),
		zap.Duration("delay", delay))

	m.retryTimer = m.after(delay, m.retryFire)

	// Double the delay for the retry after this one, capped
	m.currentDelay *= 2
	if maxDelay := m.cfg.MaxRetryDelay(); m.currentDelay > maxDelay {
		m.currentDelay = maxDelay
	}

	return old, m.statusPtrLocked()
}

func (m *Manager) retryFire() {
	m.mu.Lock()
	if m.phase != model.PhaseReconnecting {
		m.mu.Unlock()
		return // cancelled in the meantime
	}
	old, st := m.connectLocked()
	m.mu.Unlock()

	closePrimitive(old)
	m.emitStatus(st)
}

func (m *Manager) failure(gen int) {
	m.mu.Lock()
	old, st := m.failureLocked(gen)
	m.mu.Unlock()

	closePrimitive(old)
	m.emitStatus(st)
}

// handleEvent receives primitive events; gen identifies the primitive
// that produced them so superseded instances cannot disturb the state.
func (m *Manager) handleEvent(gen int, ev player.Event) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}

	var (
		old player.Primitive
		st  *Status
	)
	switch ev.Kind {
	case player.EventPlaying:
		if m.phase == model.PhaseConnecting {
			m.phase = model.PhasePlaying
			m.resetBackoffLocked()
			m.lastProgress = m.now()
			m.logger.Info("stream playing")
			st = m.statusPtrLocked()
		}
	case player.EventProgress:
		m.lastProgress = m.now()
	case player.EventError:
		m.logger.Warn("stream error", zap.Error(ev.Err))
		old, st = m.failureLocked(gen)
	case player.EventEnded:
		old, st = m.failureLocked(gen)
	}
	m.mu.Unlock()

	closePrimitive(old)
	m.emitStatus(st)
}

// --- health check ---

func (m *Manager) startHealthCheck() {
	m.healthOnce.Do(func() {
		go m.healthLoop()
	})
}

// healthLoop probes stream liveness while playing. It never changes
// phase itself; a detection funnels into the same failure path as an
// error event.
func (m *Manager) healthLoop() {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.healthStop:
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Manager) checkHealth() {
	m.mu.Lock()
	if m.phase != model.PhasePlaying || m.userPaused {
		m.mu.Unlock()
		return
	}
	gen := m.generation
	silent := m.now().Sub(m.lastProgress) > m.cfg.SilenceTimeout()
	stalled := m.primitive != nil && m.primitive.Paused()
	m.mu.Unlock()

	if silent {
		m.logger.Warn("no stream progress within silence timeout")
		m.failure(gen)
	} else if stalled {
		m.logger.Warn("primitive paused without user intent")
		m.failure(gen)
	}
}

// --- bookkeeping ---

func (m *Manager) teardownLocked() player.Primitive {
	old := m.primitive
	m.primitive = nil
	if old != nil {
		m.generation++
	}
	return old
}

func (m *Manager) cancelRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) clearUserPauseLocked() {
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	m.userPaused = false
}

func (m *Manager) resetBackoffLocked() {
	m.retryCount = 0
	m.currentDelay = m.cfg.InitialRetryDelay()
}

func (m *Manager) statusLocked() Status {
	st := Status{
		Phase:   m.phase,
		Attempt: m.retryCount,
	}
	switch m.phase {
	case model.PhaseIdle:
		st.Message = "Paused"
	case model.PhaseConnecting:
		st.Message = "Connecting..."
	case model.PhasePlaying:
		st.Message = "Live"
	case model.PhaseReconnecting:
		st.RetryDelay = m.pendingDelay
		st.Message = fmt.Sprintf("Reconnecting in %s (attempt %d)", st.RetryDelay, m.retryCount)
	case model.PhaseFailed:
		st.Message = "Connection failed"
	}
	return st
}

func (m *Manager) statusPtrLocked() *Status {
	st := m.statusLocked()
	return &st
}

func (m *Manager) emitStatus(st *Status) {
	if st == nil {
		return
	}
	m.mu.Lock()
	cb := m.onStatus
	m.mu.Unlock()
	if cb != nil {
		cb(*st)
	}
}

func closePrimitive(p player.Primitive) {
	if p != nil {
		p.Close()
	}
}
