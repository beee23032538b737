package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tracklab/gatelink/internal/device"
	"github.com/tracklab/gatelink/internal/wire"
)

// View represents different screens in the TUI.
type View int

const (
	ViewGates View = iota
	ViewBrowser
	ViewTimer
)

// Model is the main Bubbletea model for the TUI.
type Model struct {
	// State
	view          View
	cursor        int
	cursorHistory map[View]int
	width         int
	height        int

	// Controller
	ctrl   *device.Controller
	events <-chan device.Event

	// Gate registry
	gates       []device.DeviceRecord
	scanning    bool
	connecting  bool
	connectedID string
	ready       bool

	// Remote directory
	path    string
	entries []wire.DirEntry

	// Download
	download  ProgressState
	saving    savingFunc
	lastSaved string

	// Timer
	timerState  device.TimingState
	timerResult time.Time

	errorMsg  string
	statusMsg string

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
}

// savingFunc persists a finished download; injected so the model stays
// testable without a filesystem.
type savingFunc func(name string, data []byte) (string, error)

// --- Custom messages for async operations ---

// gateEventMsg wraps one controller event.
type gateEventMsg struct {
	event device.Event
}

// eventStreamClosedMsg signals the controller shut down.
type eventStreamClosedMsg struct{}

// scanStartedMsg signals the scan kicked off (or failed to).
type scanStartedMsg struct {
	err error
}

// NewModel creates a new TUI model around a running controller.
func NewModel(ctrl *device.Controller, events <-chan device.Event, save savingFunc) Model {
	h := help.New()
	h.ShowAll = false

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return Model{
		view:          ViewGates,
		cursorHistory: make(map[View]int),
		ctrl:          ctrl,
		events:        events,
		saving:        save,
		path:          "/",
		download:      NewProgressState(),
		keys:          DefaultKeyMap(),
		help:          h,
		spinner:       s,
		styles:        DefaultStyles(),
	}
}

// Init starts scanning and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.startScanCmd(), m.waitForEventCmd(), m.spinner.Tick)
}

func (m Model) startScanCmd() tea.Cmd {
	return func() tea.Msg {
		return scanStartedMsg{err: m.ctrl.StartScan()}
	}
}

// waitForEventCmd blocks on the controller's event stream and feeds one
// event back into the update loop. Re-issued after every event.
func (m Model) waitForEventCmd() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return eventStreamClosedMsg{}
		}
		return gateEventMsg{event: e}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case scanStartedMsg:
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Scan failed: %v", msg.err)
			return m, nil
		}
		m.scanning = true
		m.statusMsg = "Scanning for gates..."
		return m, nil

	case gateEventMsg:
		return m.handleEvent(msg.event)

	case eventStreamClosedMsg:
		return m, tea.Quit
	}

	return m, nil
}

// handleEvent applies one controller event and re-arms the pump.
func (m Model) handleEvent(e device.Event) (tea.Model, tea.Cmd) {
	switch e.Type {
	case device.EventDeviceUpdated, device.EventDeviceRemoved:
		m.refreshGates()

	case device.EventConnection:
		if u, ok := e.Data.(device.ConnectionUpdate); ok {
			if u.Connected {
				m.connecting = false
				m.connectedID = u.ID
				m.statusMsg = "Connected, reading directory..."
			} else if u.ID == m.connectedID {
				m.connectedID = ""
				m.ready = false
				m.download.Stop()
				m.view = ViewGates
				m.statusMsg = "Disconnected"
			}
			m.refreshGates()
		}

	case device.EventListing:
		if u, ok := e.Data.(device.ListingUpdate); ok {
			m.path = u.Path
			m.entries = u.Entries
			if !m.ready {
				m.ready = true
				m.view = ViewBrowser
				m.cursor = 0
				m.statusMsg = ""
			}
			if max := m.maxCursor(); m.cursor > max {
				m.cursor = max
			}
		}

	case device.EventTransferProgress:
		if p, ok := e.Data.(device.TransferProgress); ok {
			if !m.download.IsActive() {
				m.download.Start("Downloading " + p.Name)
			}
			m.download.Update(p.Fraction)
		}

	case device.EventTransferDone:
		if r, ok := e.Data.(device.TransferResult); ok {
			m.download.Stop()
			switch r.Outcome {
			case device.TransferSuccess:
				if path, err := m.saving(r.Name, r.Data); err != nil {
					m.errorMsg = fmt.Sprintf("Save failed: %v", err)
				} else {
					m.lastSaved = path
					m.statusMsg = fmt.Sprintf("Saved %s (%d bytes)", path, len(r.Data))
				}
			case device.TransferCancelled:
				m.statusMsg = "Download cancelled"
			default:
				m.errorMsg = fmt.Sprintf("Download failed: %v", r.Err)
			}
		}

	case device.EventTimer:
		if u, ok := e.Data.(device.TimerUpdate); ok {
			m.timerState = u.State
			if !u.Result.IsZero() {
				m.timerResult = u.Result
				m.statusMsg = "Crossing at " + u.Result.Format("15:04:05.000")
			}
		}
	}

	return m, m.waitForEventCmd()
}

func (m *Model) refreshGates() {
	gates := m.ctrl.Devices()
	sort.Slice(gates, func(i, j int) bool {
		return gates[i].ID < gates[j].ID
	})
	m.gates = gates
	if m.view == ViewGates {
		if max := m.maxCursor(); m.cursor > max {
			m.cursor = max
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit

	case key.Matches(msg, k.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, k.Down):
		if m.cursor < m.maxCursor() {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, k.Select), key.Matches(msg, k.Right):
		return m.handleSelect()

	case key.Matches(msg, k.Back), key.Matches(msg, k.Left):
		return m.goBack()

	case key.Matches(msg, k.Refresh):
		return m.handleRefresh()

	case key.Matches(msg, k.Connect):
		if m.view == ViewGates {
			return m.handleSelect()
		}
		return m, nil

	case key.Matches(msg, k.Timer):
		if m.connectedID == "" {
			m.errorMsg = "Not connected"
			return m, nil
		}
		m.view = ViewTimer
		if m.timerState == device.TimingIdle {
			if err := m.ctrl.StartTimer(); err != nil {
				m.errorMsg = fmt.Sprintf("Timer failed: %v", err)
			}
		}
		return m, nil

	case key.Matches(msg, k.Cancel):
		switch {
		case m.download.IsActive():
			m.ctrl.CancelDownload()
		case m.view == ViewTimer && m.timerState == device.TimingCounting:
			if err := m.ctrl.CancelTimer(); err != nil {
				m.errorMsg = fmt.Sprintf("Cancel failed: %v", err)
			}
		}
		return m, nil

	case key.Matches(msg, k.Unbond):
		if m.view == ViewGates && m.cursor < len(m.gates) {
			rec := m.gates[m.cursor]
			if rec.Bonded && !rec.Connected {
				if err := m.ctrl.Unbond(rec.ID); err != nil {
					m.errorMsg = fmt.Sprintf("Unbond failed: %v", err)
				} else {
					m.refreshGates()
				}
			}
		}
		return m, nil

	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	return m, nil
}

func (m Model) handleSelect() (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewGates:
		if m.cursor >= len(m.gates) {
			return m, nil
		}
		rec := m.gates[m.cursor]
		if rec.Connected {
			m.view = ViewBrowser
			m.cursor = m.cursorHistory[ViewBrowser]
			return m, nil
		}
		m.connecting = true
		m.statusMsg = "Connecting to " + rec.ID + "..."
		m.errorMsg = ""
		if err := m.ctrl.Connect(rec.ID); err != nil {
			m.connecting = false
			m.errorMsg = fmt.Sprintf("Connect failed: %v", err)
		}
		return m, nil

	case ViewBrowser:
		if m.cursor >= len(m.entries) {
			return m, nil
		}
		entry := m.entries[m.cursor]
		if entry.IsDir() {
			if err := m.ctrl.ChangeDirectory(entry.Name); err != nil {
				m.errorMsg = fmt.Sprintf("cd failed: %v", err)
			} else {
				m.cursor = 0
				m.errorMsg = ""
			}
			return m, nil
		}
		if m.download.IsActive() {
			m.errorMsg = "A download is already running"
			return m, nil
		}
		if err := m.ctrl.Download(entry.Name, nil); err != nil {
			m.errorMsg = fmt.Sprintf("Download failed: %v", err)
			return m, nil
		}
		m.download.Start("Downloading " + entry.Name)
		m.errorMsg = ""
		return m, nil
	}

	return m, nil
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewBrowser:
		if m.path == "/" {
			m.cursorHistory[ViewBrowser] = m.cursor
			m.view = ViewGates
			m.cursor = m.cursorHistory[ViewGates]
			return m, nil
		}
		if err := m.ctrl.GoUp(); err != nil {
			m.errorMsg = fmt.Sprintf("cd failed: %v", err)
		} else {
			m.cursor = 0
			m.errorMsg = ""
		}
		return m, nil

	case ViewTimer:
		m.view = ViewBrowser
		m.cursor = m.cursorHistory[ViewBrowser]
		return m, nil
	}

	return m, nil
}

func (m Model) handleRefresh() (tea.Model, tea.Cmd) {
	switch m.view {
	case ViewGates:
		if !m.scanning {
			return m, m.startScanCmd()
		}
	case ViewBrowser:
		if err := m.ctrl.Refresh(); err != nil {
			m.errorMsg = fmt.Sprintf("Refresh failed: %v", err)
		}
	}
	return m, nil
}

func (m Model) maxCursor() int {
	var n int
	switch m.view {
	case ViewGates:
		n = len(m.gates)
	case ViewBrowser:
		n = len(m.entries)
	}
	if n == 0 {
		return 0
	}
	return n - 1
}

// View renders the current screen.
func (m Model) View() string {
	var content string
	switch m.view {
	case ViewGates:
		content = m.viewGates()
	case ViewBrowser:
		content = m.viewBrowser()
	case ViewTimer:
		content = m.viewTimer()
	default:
		content = "Unknown view"
	}

	if m.download.IsActive() {
		content += "\n\n" + m.download.View()
	}

	content += "\n" + m.renderStatusBar()
	helpView := m.styles.Help.Render(m.help.View(m.keys))

	return m.styles.App.Render(content + "\n" + helpView)
}

func (m Model) viewGates() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Timing Gates"))
	b.WriteString("\n\n")

	if len(m.gates) == 0 {
		if m.scanning {
			b.WriteString(m.spinner.View() + " " + m.styles.Muted.Render("Scanning..."))
		} else {
			b.WriteString(m.styles.Muted.Render("No gates found. Press r to scan."))
		}
		return b.String()
	}

	for i, rec := range m.gates {
		name := rec.Name
		if name == "" {
			name = "(unnamed)"
		}
		var flags []string
		if rec.Bonded {
			flags = append(flags, "bonded")
		}
		if rec.Connected {
			flags = append(flags, "connected")
		}
		line := fmt.Sprintf("%-20s %-24s %4d dBm", rec.ID, name, rec.RSSI)
		if len(flags) > 0 {
			line += "  " + m.styles.Muted.Render("["+strings.Join(flags, ", ")+"]")
		}
		if i == m.cursor {
			b.WriteString(m.styles.ListItemSelected.Render("> " + line))
		} else {
			b.WriteString(m.styles.ListItem.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if m.connecting {
		b.WriteString("\n" + m.spinner.View() + " " + m.styles.Muted.Render("Connecting..."))
	}
	return b.String()
}

func (m Model) viewBrowser() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Files"))
	b.WriteString(" ")
	b.WriteString(m.styles.Subtitle.Render(m.path))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(m.styles.Muted.Render("(empty)"))
		return b.String()
	}

	for i, e := range m.entries {
		var line string
		if e.IsDir() {
			line = fmt.Sprintf("%-26s %10s", e.Name+"/", "")
		} else {
			line = fmt.Sprintf("%-26s %10d  %s", e.Name, e.Size,
				e.Modified.Format("2006-01-02 15:04"))
		}
		if i == m.cursor {
			b.WriteString(m.styles.ListItemSelected.Render("> " + line))
		} else if e.IsDir() {
			b.WriteString(m.styles.Highlight.Render("  " + line))
		} else {
			b.WriteString(m.styles.ListItem.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewTimer() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Timer"))
	b.WriteString("\n\n")

	if m.timerState == device.TimingCounting {
		b.WriteString(m.spinner.View() + " " + m.styles.Highlight.Render("Armed, waiting for crossing..."))
		b.WriteString("\n\n" + m.styles.Muted.Render("x to cancel"))
	} else {
		b.WriteString(m.styles.Label.Render("State") + m.styles.Value.Render("idle"))
		b.WriteString("\n\n" + m.styles.Muted.Render("t to arm the timer"))
	}

	if !m.timerResult.IsZero() {
		b.WriteString("\n\n")
		b.WriteString(m.styles.Label.Render("Last crossing"))
		b.WriteString(m.styles.Success.Render(m.timerResult.Format("2006-01-02 15:04:05.000")))
	}
	return b.String()
}

func (m Model) renderStatusBar() string {
	var conn string
	if m.connectedID != "" {
		conn = m.styles.StatusOnline.Render("● " + m.connectedID)
	} else {
		conn = m.styles.StatusOffline.Render("○ offline")
	}

	parts := []string{conn}
	if m.errorMsg != "" {
		parts = append(parts, m.styles.Error.Render(m.errorMsg))
	} else if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	}
	return m.styles.StatusBar.Render(strings.Join(parts, "  "))
}
