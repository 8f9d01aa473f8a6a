package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"radiorec-tui/config"
	"radiorec-tui/model"
	"radiorec-tui/session"
	"radiorec-tui/stream"
)

// KeyMap defines the shortcut keys.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Play     key.Binding
	Record   key.Binding
	Library  key.Binding
	Download key.Binding
	Delete   key.Binding
	VolUp    key.Binding
	VolDown  key.Binding
	Mute     key.Binding
	Quit     key.Binding
}

// ShortHelp returns the condensed help line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Record, k.Library, k.VolUp, k.VolDown, k.Quit}
}

// FullHelp returns the expanded help.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Record, k.Library, k.Up, k.Down},
		{k.Download, k.Delete, k.VolUp, k.VolDown, k.Mute, k.Quit},
	}
}

// DefaultKeyMap holds the default bindings.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓", "down"),
	),
	Play: key.NewBinding(
		key.WithKeys(" ", "p"),
		key.WithHelp("Space", "play/pause"),
	),
	Record: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "record"),
	),
	Library: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "library"),
	),
	Download: key.NewBinding(
		key.WithKeys("enter", "o"),
		key.WithHelp("Enter", "download"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d", "x"),
		key.WithHelp("d", "delete"),
	),
	VolUp: key.NewBinding(
		key.WithKeys("+", "="),
		key.WithHelp("+", "vol+"),
	),
	VolDown: key.NewBinding(
		key.WithKeys("-", "_"),
		key.WithHelp("-", "vol-"),
	),
	Mute: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "mute"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc", "q"),
		key.WithHelp("Esc", "quit"),
	),
}

// Styles
var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	accentColor    = lipgloss.Color("#F59E0B")
	textColor      = lipgloss.Color("#CDD6F4")
	dimTextColor   = lipgloss.Color("#6C7086")
	liveColor      = lipgloss.Color("#A6E3A1")
	recordColor    = lipgloss.Color("#F38BA8")

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	liveStyle = lipgloss.NewStyle().
			Foreground(liveColor).
			Bold(true)

	recordingStyle = lipgloss.NewStyle().
			Foreground(recordColor).
			Bold(true)

	itemStyle = lipgloss.NewStyle().
			Foreground(textColor)

	itemSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#1E1E2E")).
				Background(primaryColor).
				Bold(true).
				Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(dimTextColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(recordColor)

	readyStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	volumeStyle = lipgloss.NewStyle().
			Foreground(accentColor)
)

// Model is the TUI model. It is glue only: every state transition it
// renders lives in the stream manager or the session controller.
type Model struct {
	manager    *stream.Manager
	controller *session.Controller
	backend    session.Backend
	logger     *zap.Logger
	keys       KeyMap

	statusCh chan stream.Status
	status   stream.Status

	recordings  []model.RecordingEntry
	cursor      int
	showLibrary bool

	volume     float64
	muted      bool
	savedVol   float64
	listeners  int
	elapsedSec int

	statusMessage string
	errorMessage  string
	width, height int
	autoPlay      bool
}

// NewModel builds the TUI model and hooks the manager's status stream.
func NewModel(manager *stream.Manager, controller *session.Controller, backend session.Backend, logger *zap.Logger, volume float64) Model {
	statusCh := make(chan stream.Status, 16)
	manager.OnStatusChange(func(st stream.Status) {
		select {
		case statusCh <- st:
		default:
		}
	})

	return Model{
		manager:       manager,
		controller:    controller,
		backend:       backend,
		logger:        logger,
		keys:          DefaultKeyMap,
		statusCh:      statusCh,
		status:        manager.Snapshot(),
		volume:        volume,
		savedVol:      volume,
		autoPlay:      true,
		statusMessage: "Connecting...",
	}
}

// Messages
type autoPlayMsg struct{}
type statusMsg stream.Status
type uiTickMsg time.Time
type listenersMsg struct {
	count int
	err   error
}
type recordingsMsg struct {
	entries []model.RecordingEntry
	err     error
}
type actionMsg struct {
	info string
	err  error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return autoPlayMsg{} },
		m.waitStatus(),
		m.uiTick(),
		m.pollListeners(),
		m.loadRecordings(),
	)
}

func (m Model) waitStatus() tea.Cmd {
	ch := m.statusCh
	return func() tea.Msg {
		return statusMsg(<-ch)
	}
}

func (m Model) uiTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return uiTickMsg(t)
	})
}

func (m Model) pollListeners() tea.Cmd {
	backend := m.backend
	return tea.Tick(10*time.Second, func(time.Time) tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		count, err := backend.ListenerCount(ctx)
		return listenersMsg{count: count, err: err}
	})
}

func (m Model) loadRecordings() tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		entries, err := controller.Recordings()
		return recordingsMsg{entries: entries, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case autoPlayMsg:
		if m.autoPlay {
			m.autoPlay = false
			m.manager.Start()
		}
		return m, nil

	case statusMsg:
		m.status = stream.Status(msg)
		m.statusMessage = m.status.Message
		return m, m.waitStatus()

	case uiTickMsg:
		if _, elapsed, recording := m.controller.Active(); recording {
			m.elapsedSec = elapsed
		} else {
			m.elapsedSec = 0
		}
		return m, m.uiTick()

	case listenersMsg:
		if msg.err == nil {
			m.listeners = msg.count
		}
		return m, m.pollListeners()

	case recordingsMsg:
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("load recordings: %v", msg.err)
		} else {
			m.recordings = msg.entries
			if m.cursor >= len(m.recordings) {
				m.cursor = max(0, len(m.recordings)-1)
			}
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.errorMessage = userMessage(msg.err)
			m.statusMessage = ""
		} else {
			m.errorMessage = ""
			m.statusMessage = msg.info
		}
		return m, m.loadRecordings()

	case tea.KeyMsg:
		m.errorMessage = ""
		return m.handleKeys(msg)
	}

	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Play):
		m.manager.TogglePlayback()
		return m, nil

	case key.Matches(msg, m.keys.Record):
		return m, m.toggleRecording()

	case key.Matches(msg, m.keys.Library):
		m.showLibrary = !m.showLibrary
		if m.showLibrary {
			return m, m.loadRecordings()
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.showLibrary && m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.showLibrary && m.cursor < len(m.recordings)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Download):
		if m.showLibrary && m.cursor < len(m.recordings) {
			return m, m.download(m.recordings[m.cursor].ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if m.showLibrary && m.cursor < len(m.recordings) {
			return m, m.delete(m.recordings[m.cursor].ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.VolUp):
		return m.setVolume(m.volume+0.05, false), nil

	case key.Matches(msg, m.keys.VolDown):
		return m.setVolume(m.volume-0.05, false), nil

	case key.Matches(msg, m.keys.Mute):
		if m.muted {
			m = m.setVolume(m.savedVol, false)
			m.muted = false
		} else {
			m.savedVol = m.volume
			m = m.setVolume(0, true)
			m.muted = true
		}
		return m, nil

	case key.Matches(msg, m.keys.Quit):
		go config.SaveVolume(m.volume)
		return m, tea.Quit

	// Digit keys jump straight to a volume level
	case msg.String() >= "0" && msg.String() <= "9":
		vol := float64(msg.String()[0]-'0') / 10.0
		return m.setVolume(vol, false), nil
	}

	return m, nil
}

func (m Model) setVolume(vol float64, mutedSet bool) Model {
	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	m.manager.SetVolume(vol)
	if !mutedSet {
		m.volume = vol
		m.muted = false
		go config.SaveVolume(vol)
	}
	return m
}

func (m Model) toggleRecording() tea.Cmd {
	controller := m.controller
	recording := controller.Phase() == session.PhaseRecording

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if recording {
			if err := controller.StopRecording(ctx); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{info: "Recording stopped"}
		}
		if err := controller.StartRecording(ctx); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{info: "Recording..."}
	}
}

func (m Model) download(sessionID string) tea.Cmd {
	controller := m.controller
	logger := m.logger

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		urls, err := controller.RequestDownloadURLs(ctx, sessionID)
		if err != nil {
			return actionMsg{err: err}
		}
		for i, u := range urls {
			logger.Info("download url",
				zap.String("session_id", sessionID),
				zap.Int("chunk", i+1),
				zap.String("url", u))
		}
		return actionMsg{info: fmt.Sprintf("%d download link(s) ready, see log", len(urls))}
	}
}

func (m Model) delete(sessionID string) tea.Cmd {
	controller := m.controller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := controller.DeleteRecording(ctx, sessionID); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{info: "Recording deleted"}
	}
}

// userMessage translates controller errors into short display text.
func userMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrAlreadyRecording):
		return "Already recording"
	case errors.Is(err, session.ErrNoActiveSession):
		return "Nothing is being recorded"
	case errors.Is(err, session.ErrURLsNotReady):
		return "Still uploading, try again shortly"
	case errors.Is(err, session.ErrBackendUnavailable):
		return "Backend unreachable, check the recording is stopped and retry"
	default:
		return err.Error()
	}
}

// View renders the interface.
func (m Model) View() string {
	var b strings.Builder

	title := titleStyle.Render("📻 Radio")
	vol := m.renderVolume()
	listeners := statusStyle.Render(fmt.Sprintf("👥 %d", m.listeners))
	b.WriteString(fmt.Sprintf("%s  %s  %s\n", title, vol, listeners))

	b.WriteString(strings.Repeat("─", 44) + "\n")

	b.WriteString(m.renderStream() + "\n")
	b.WriteString(m.renderRecorder() + "\n")

	if m.showLibrary {
		b.WriteString(strings.Repeat("─", 44) + "\n")
		b.WriteString(m.renderLibrary())
	}

	if m.errorMessage != "" {
		b.WriteString(errorStyle.Render("✗ "+m.errorMessage) + "\n")
	} else if m.statusMessage != "" {
		b.WriteString(statusStyle.Render(m.statusMessage) + "\n")
	}

	if m.showLibrary {
		b.WriteString(statusStyle.Render("↑↓ select  Enter download  d delete  l close  Esc quit"))
	} else {
		b.WriteString(statusStyle.Render("Space play  r record  l library  +- volume  Esc quit"))
	}

	return b.String()
}

func (m Model) renderStream() string {
	switch m.status.Phase {
	case model.PhasePlaying:
		return liveStyle.Render("▶ LIVE")
	case model.PhaseConnecting:
		return statusStyle.Render("⏳ " + m.status.Message)
	case model.PhaseReconnecting:
		return errorStyle.Render("↻ " + m.status.Message)
	case model.PhaseFailed:
		return errorStyle.Render("✗ " + m.status.Message)
	default:
		return statusStyle.Render("⏸ Paused")
	}
}

func (m Model) renderRecorder() string {
	if _, _, recording := m.controller.Active(); recording {
		return recordingStyle.Render(fmt.Sprintf("● REC %s", model.FormatTime(m.elapsedSec)))
	}
	return statusStyle.Render("○ not recording")
}

func (m Model) renderVolume() string {
	vol := int(m.volume * 100)
	if m.muted {
		return statusStyle.Render("🔇 muted")
	}
	return volumeStyle.Render(fmt.Sprintf("🔊 %d%%", vol))
}

func (m Model) renderLibrary() string {
	if len(m.recordings) == 0 {
		return statusStyle.Render("  no recordings yet") + "\n"
	}

	maxVisible := 8
	if m.height > 0 {
		maxVisible = m.height - 10
		if maxVisible < 4 {
			maxVisible = 4
		}
	}
	if maxVisible > len(m.recordings) {
		maxVisible = len(m.recordings)
	}

	startIdx := 0
	if m.cursor >= maxVisible {
		startIdx = m.cursor - maxVisible + 1
	}
	endIdx := startIdx + maxVisible
	if endIdx > len(m.recordings) {
		endIdx = len(m.recordings)
	}

	var lines []string
	if startIdx > 0 {
		lines = append(lines, statusStyle.Render("  ↑ more"))
	}

	for i := startIdx; i < endIdx; i++ {
		rec := m.recordings[i]

		state := "uploading"
		if rec.Uploaded {
			state = fmt.Sprintf("%d chunk(s)", rec.ChunkCount)
		}
		text := fmt.Sprintf("%s  %s  %s  expires %s",
			rec.StartTime.Format("Jan 02 15:04"),
			model.FormatTime(rec.Duration),
			state,
			rec.Expiry.Format("15:04"))

		if i == m.cursor {
			lines = append(lines, itemSelectedStyle.Render(text))
		} else if rec.Uploaded {
			lines = append(lines, readyStyle.Render("  "+text))
		} else {
			lines = append(lines, itemStyle.Render("  "+text))
		}
	}

	if endIdx < len(m.recordings) {
		lines = append(lines, statusStyle.Render("  ↓ more"))
	}

	return strings.Join(lines, "\n") + "\n"
}

// Run starts the TUI and blocks until quit.
func Run(manager *stream.Manager, controller *session.Controller, backend session.Backend, logger *zap.Logger, cfg config.Config) error {
	m := NewModel(manager, controller, backend, logger, cfg.Volume)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()

	manager.Close()
	controller.Close()
	return err
}
