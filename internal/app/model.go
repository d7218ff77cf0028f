package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/daemon"
	"github.com/filipezaidan/google-meet-captions/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusSessions PanelFocus = iota
	FocusTranscript
)

// Model is the root bubbletea model for the captions TUI.
type Model struct {
	socketPath string
	now        func() time.Time

	// Connection state
	client    *daemon.Client // command connection
	evClient  *daemon.Client // event subscription connection
	connected bool
	connError string

	// Recording state
	recording bool
	sessionID string
	live      []caption.Record

	// Saved sessions
	sessions []caption.Summary
	selected int
	detail   *caption.Session

	// UI state
	focusedPanel     PanelFocus
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool

	// Errors and notices
	errorMessage   string
	errorTransient bool
	notice         string

	// Status
	statusText string

	// Reconnect
	reconnecting     bool
	reconnectAttempt int
}

// New creates a new Model talking to the daemon at socketPath.
func New(socketPath string) Model {
	return Model{
		socketPath:     socketPath,
		now:            time.Now,
		statusText:     "Connecting to captions daemon...",
		transcriptLive: true,
		focusedPanel:   FocusSessions,
	}
}

// Init returns the initial command: connect to the daemon.
func (m Model) Init() tea.Cmd {
	return connectCmd(m.socketPath)
}

// connectCmd attempts to connect to the daemon with two connections:
// one for commands, one for event subscription.
func connectCmd(sockPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := daemon.Connect(sockPath)
		if err != nil {
			return DaemonConnectErrorMsg{Err: err}
		}
		evClient, err := daemon.Connect(sockPath)
		if err != nil {
			client.Close()
			return DaemonConnectErrorMsg{Err: err}
		}
		return DaemonConnectedMsg{Client: client, EvClient: evClient}
	}
}

// subscribeCmd subscribes the event client and starts reading events.
func subscribeCmd(evClient *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		if err := evClient.Subscribe(); err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return readEventCmd(evClient)()
	}
}

// readEventCmd reads the next event from the event client.
func readEventCmd(evClient *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		ev, err := evClient.ReadEvent()
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return DaemonEventMsg{Event: ev}
	}
}

func statusCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.Status()
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StatusResponseMsg{Response: resp}
	}
}

func sessionsCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		sums, err := client.ListSessions()
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return SessionsLoadedMsg{Sessions: sums}
	}
}

func sessionCmd(client *daemon.Client, id string) tea.Cmd {
	return func() tea.Msg {
		s, err := client.GetSession(id)
		if err != nil && !errors.Is(err, caption.ErrSessionNotFound) {
			return DaemonEventErrorMsg{Err: err}
		}
		return SessionLoadedMsg{SessionID: id, Session: s}
	}
}

func startCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.Start()
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StartResponseMsg{Response: resp}
	}
}

func stopCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.Stop()
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StopResponseMsg{Response: resp}
	}
}

func exportCmd(client *daemon.Client, id string) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.DownloadSession(id)
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return ExportResponseMsg{Response: resp}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// reconnectCmd schedules a reconnection attempt with exponential backoff.
func reconnectCmd(attempt int) tea.Cmd {
	return tea.Tick(reconnectDelay(attempt), func(time.Time) tea.Msg {
		return ReconnectTickMsg{}
	})
}

// reconnectDelay is 1s, 2s, 4s, 8s, then 16s.
func reconnectDelay(attempt int) time.Duration {
	return time.Duration(1<<min(attempt, 4)) * time.Second
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case DaemonConnectedMsg:
		m.client = msg.Client
		m.evClient = msg.EvClient
		m.connected = true
		m.connError = ""
		m.reconnecting = false
		m.reconnectAttempt = 0
		m.statusText = "Connected"
		return m, tea.Batch(
			subscribeCmd(m.evClient),
			statusCmd(m.client),
			sessionsCmd(m.client),
		)

	case DaemonConnectErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.reconnecting = true
		m.statusText = "Daemon not running. Reconnecting..."
		return m, reconnectCmd(m.reconnectAttempt)

	case StatusResponseMsg:
		r := msg.Response
		m.recording = r.IsRecording
		if r.Session != nil {
			m.adoptSession(r.Session.SessionID)
		}
		m.statusText = idleOrRecording(m.recording)
		if m.recording && m.client != nil {
			return m, sessionCmd(m.client, m.sessionID)
		}
		return m, nil

	case StartResponseMsg:
		r := msg.Response
		if !r.Success {
			m.errorMessage = r.Message
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		m.recording = true
		m.adoptSession(r.SessionID)
		m.detail = nil
		m.transcriptLive = true
		m.statusText = idleOrRecording(true)
		return m, nil

	case StopResponseMsg:
		r := msg.Response
		if !r.Success {
			m.errorMessage = r.Message
			return m, nil
		}
		m.recording = false
		m.statusText = idleOrRecording(false)
		m.notice = fmt.Sprintf("%s (%s records)", r.Message, humanize.Comma(int64(r.RecordCount)))
		var cmds []tea.Cmd
		cmds = append(cmds, clearTransientErrorCmd())
		if m.client != nil {
			cmds = append(cmds, sessionsCmd(m.client))
		}
		return m, tea.Batch(cmds...)

	case SessionsLoadedMsg:
		m.sessions = msg.Sessions
		if m.selected >= len(m.sessions) {
			m.selected = max(0, len(m.sessions)-1)
		}
		return m, nil

	case SessionLoadedMsg:
		if msg.Session == nil {
			m.errorMessage = "Session not found"
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		if m.recording && msg.SessionID == m.sessionID {
			// Backfill captions recorded before this client subscribed.
			for _, rec := range msg.Session.Records {
				m.upsertLive(rec)
			}
			return m, nil
		}
		m.detail = msg.Session
		m.focusedPanel = FocusTranscript
		m.transcriptLive = false
		m.transcriptScroll = 0
		return m, nil

	case ExportResponseMsg:
		r := msg.Response
		if !r.Success {
			m.errorMessage = r.Message
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		m.notice = "Exported " + r.Path
		return m, clearTransientErrorCmd()

	case DaemonEventMsg:
		cmd := m.handleEvent(msg.Event)
		// Continue reading events on event client
		return m, tea.Batch(cmd, readEventCmd(m.evClient))

	case DaemonEventErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.statusText = "Disconnected. Reconnecting..."
		m.reconnecting = true
		if m.client != nil {
			m.client.Close()
			m.client = nil
		}
		if m.evClient != nil {
			m.evClient.Close()
			m.evClient = nil
		}
		return m, reconnectCmd(m.reconnectAttempt)

	case ReconnectTickMsg:
		m.reconnectAttempt++
		return m, connectCmd(m.socketPath)

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		m.notice = ""
		return m, nil
	}

	return m, nil
}

// handleEvent processes a daemon event and returns any resulting command.
func (m *Model) handleEvent(ev daemon.Event) tea.Cmd {
	switch ev.Event {
	case daemon.EventCaption:
		if ev.Record == nil {
			return nil
		}
		m.adoptSession(ev.SessionID)
		m.upsertLive(*ev.Record)
		if m.transcriptLive && m.detail == nil {
			m.scrollToBottom()
		}

	case daemon.EventStatus:
		if ev.IsRecording == nil {
			return nil
		}
		wasRecording := m.recording
		m.recording = *ev.IsRecording
		m.statusText = idleOrRecording(m.recording)
		if m.recording {
			m.adoptSession(ev.SessionID)
		}
		if wasRecording && !m.recording && m.client != nil {
			return sessionsCmd(m.client)
		}
	}

	return nil
}

// adoptSession switches the live transcript to id, dropping captions of any
// previous session.
func (m *Model) adoptSession(id string) {
	if id == "" || id == m.sessionID {
		return
	}
	m.sessionID = id
	m.live = nil
	m.transcriptScroll = 0
}

// upsertLive applies a caption record to the live transcript, keeping it in
// id order.
func (m *Model) upsertLive(rec caption.Record) {
	i := sort.Search(len(m.live), func(i int) bool { return m.live[i].ID >= rec.ID })
	if i < len(m.live) && m.live[i].ID == rec.ID {
		m.live[i] = rec
		return
	}
	m.live = append(m.live, caption.Record{})
	copy(m.live[i+1:], m.live[i:])
	m.live[i] = rec
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.client != nil {
			m.client.Close()
		}
		if m.evClient != nil {
			m.evClient.Close()
		}
		return m, tea.Quit

	case KeySpace:
		if !m.connected {
			return m, nil
		}
		if m.recording {
			return m, stopCmd(m.client)
		}
		return m, startCmd(m.client)

	case KeyTab:
		if m.focusedPanel == FocusSessions {
			m.focusedPanel = FocusTranscript
		} else {
			m.focusedPanel = FocusSessions
		}
		return m, nil

	case KeyJ:
		if m.focusedPanel == FocusSessions && m.selected < len(m.sessions)-1 {
			m.selected++
		}
		return m, nil

	case KeyK:
		if m.focusedPanel == FocusSessions && m.selected > 0 {
			m.selected--
		}
		return m, nil

	case KeyEnter:
		if !m.connected || m.focusedPanel != FocusSessions || m.selected >= len(m.sessions) {
			return m, nil
		}
		return m, sessionCmd(m.client, m.sessions[m.selected].SessionID)

	case KeyEsc:
		if m.detail != nil {
			m.detail = nil
			m.transcriptLive = true
			m.scrollToBottom()
		}
		return m, nil

	case KeyExport:
		if !m.connected {
			return m, nil
		}
		if id := m.exportTarget(); id != "" {
			return m, exportCmd(m.client, id)
		}
		return m, nil

	case KeyRefresh:
		if !m.connected {
			return m, nil
		}
		return m, sessionsCmd(m.client)

	case KeyUp:
		if m.focusedPanel == FocusTranscript {
			m.transcriptLive = false
			if m.transcriptScroll > 0 {
				m.transcriptScroll--
			}
		}
		return m, nil

	case KeyDown:
		if m.focusedPanel == FocusTranscript {
			maxScroll := m.maxTranscriptScroll()
			m.transcriptScroll++
			if m.transcriptScroll >= maxScroll {
				m.transcriptScroll = maxScroll
				if m.detail == nil {
					m.transcriptLive = true
				}
			}
		}
		return m, nil
	}

	return m, nil
}

// exportTarget is the open session, else the selected one.
func (m Model) exportTarget() string {
	if m.detail != nil {
		return m.detail.SessionID
	}
	if m.selected < len(m.sessions) {
		return m.sessions[m.selected].SessionID
	}
	return ""
}

// transcript returns the records the transcript panel shows.
func (m Model) transcript() []caption.Record {
	if m.detail != nil {
		return m.detail.Records
	}
	return m.live
}

func (m *Model) scrollToBottom() {
	m.transcriptScroll = m.maxTranscriptScroll()
}

func (m Model) maxTranscriptScroll() int {
	totalLines := len(m.transcriptLines(m.transcriptPanelWidth()))
	visible := m.transcriptVisibleLines() - 1
	if totalLines <= visible {
		return 0
	}
	return totalLines - visible
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + divider(1) + divider(1) + error(1) + footer(1) + padding
	reserved := 7
	return max(5, m.height-reserved)
}

func (m Model) sessionPanelWidth() int {
	if m.width == 0 {
		return 36
	}
	return max(24, m.width*35/100)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.sessionPanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Main content: sessions | transcript
	sections = append(sections, m.renderMainContent())

	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	} else if m.notice != "" {
		sections = append(sections, ui.NoticeStyle.Render(m.notice))
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("MEET CAPTIONS")
	if m.sessionID != "" {
		title += ui.MutedStyle.Render("  " + m.sessionID)
	}
	return title
}

func (m Model) renderStatusBar() string {
	var dot string
	if m.recording {
		dot = ui.RecordingDotStyle.Render("● REC")
	} else {
		dot = ui.MutedStyle.Render("○ IDLE")
	}

	var count string
	if m.sessionID != "" {
		count = "  " + ui.CountStyle.Render(humanize.Comma(int64(len(m.live)))) + ui.MutedStyle.Render(" records")
	}

	return dot + count + "  " + ui.MutedStyle.Render(m.statusText)
}

func (m Model) renderMainContent() string {
	sessionW := m.sessionPanelWidth()
	transcriptW := m.transcriptPanelWidth()
	contentH := m.transcriptVisibleLines()

	sessionLines := strings.Split(m.renderSessionPanel(sessionW, contentH), "\n")
	transcriptLines := strings.Split(m.renderTranscriptPanel(transcriptW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")

	for len(sessionLines) < contentH {
		sessionLines = append(sessionLines, strings.Repeat(" ", sessionW))
	}

	var rows []string
	for i := 0; i < contentH; i++ {
		tr := ""
		if i < len(transcriptLines) {
			tr = transcriptLines[i]
		}
		rows = append(rows, sessionLines[i]+divider+tr)
	}

	return strings.Join(rows, "\n")
}

func (m Model) renderSessionPanel(width, height int) string {
	title := fmt.Sprintf("SESSIONS (%d)", len(m.sessions))
	var header string
	if m.focusedPanel == FocusSessions {
		header = ui.ActivePanelStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{padRight(header, width)}

	if len(m.sessions) == 0 {
		lines = append(lines, ui.MutedStyle.Render("  No saved sessions"))
	} else {
		now := m.now()
		// Two lines per session; keep the selection in view.
		perPage := max(1, (height-1)/2)
		start := 0
		if m.selected >= perPage {
			start = m.selected - perPage + 1
		}
		for i := start; i < len(m.sessions) && i < start+perPage; i++ {
			s := m.sessions[i]
			name := truncateToWidth(s.SessionID, width-2)
			if i == m.selected && m.focusedPanel == FocusSessions {
				lines = append(lines, ui.SelectedStyle.Render("> "+name))
			} else {
				lines = append(lines, "  "+name)
			}
			meta := fmt.Sprintf("    %s rec · %s", humanize.Comma(int64(s.RecordCount)),
				humanize.RelTime(s.Updated, now, "ago", "from now"))
			lines = append(lines, ui.MutedStyle.Render(truncateToWidth(meta, width)))
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}

	return strings.Join(lines, "\n")
}

// transcriptLines renders the visible transcript as wrapped display lines.
func (m Model) transcriptLines(width int) []string {
	// Prefix: "[HH:MM:SS] " = 11 chars visible
	prefixWidth := 11
	textWidth := max(10, width-prefixWidth-2)
	indentStr := strings.Repeat(" ", prefixWidth)

	var out []string
	for _, r := range m.transcript() {
		ts := ui.MutedStyle.Render(r.Timestamp.Local().Format("[15:04:05]"))
		wrapped := wrapText(r.Speaker+": "+r.Text, textWidth)
		first := wrapped[0]
		if strings.HasPrefix(first, r.Speaker+":") {
			first = ui.SpeakerStyle.Render(r.Speaker+":") + strings.TrimPrefix(first, r.Speaker+":")
		}
		out = append(out, ts+" "+first)
		for _, wl := range wrapped[1:] {
			out = append(out, indentStr+wl)
		}
	}
	return out
}

func (m Model) renderTranscriptPanel(width, height int) string {
	var badge, title string
	if m.detail != nil {
		title = "TRANSCRIPT"
		badge = ui.SavedBadgeStyle.Render(" SAVED")
	} else {
		title = "LIVE"
		if m.transcriptLive {
			badge = ui.LiveBadgeStyle.Render(" ●")
		}
	}

	var header string
	if m.focusedPanel == FocusTranscript {
		header = ui.ActivePanelStyle.Render(title) + badge
	} else {
		header = ui.PanelTitleStyle.Render(title) + badge
	}

	lines := []string{header}
	contentHeight := height - 1

	switch {
	case !m.connected && m.reconnecting:
		lines = append(lines, "", ui.ErrorTextStyle.Render("  Daemon disconnected. Reconnecting..."))
		lines = append(lines, ui.MutedStyle.Render("  Start with: captions daemon"))
	case !m.connected:
		lines = append(lines, ui.MutedStyle.Render("  Connecting to captions daemon..."))
	case len(m.transcript()) == 0 && m.detail == nil:
		lines = append(lines, "")
		if m.recording {
			lines = append(lines, ui.MutedStyle.Render("  Waiting for captions..."))
		} else {
			lines = append(lines, ui.MutedStyle.Render("  Enable captions in the meeting, then press Space"))
		}
	default:
		display := m.transcriptLines(width)

		start := 0
		if m.transcriptLive && m.detail == nil {
			if len(display) > contentHeight {
				start = len(display) - contentHeight
			}
		} else {
			start = m.transcriptScroll
		}
		start = max(0, min(start, len(display)))

		end := min(start+contentHeight, len(display))
		for i := start; i < end; i++ {
			lines = append(lines, " "+display[i])
		}
	}

	if len(lines) > height {
		lines = lines[:height]
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.MutedStyle.Render(" "+desc)
	}

	if m.connected {
		if m.recording {
			parts = append(parts, key("Space", "Stop"))
		} else {
			parts = append(parts, key("Space", "Record"))
		}
		parts = append(parts, key("Enter", "Open"))
		if m.detail != nil {
			parts = append(parts, key("Esc", "Live"))
		}
		parts = append(parts, key("d", "Export"))
		parts = append(parts, key("r", "Refresh"))
		parts = append(parts, key("Tab", "Focus"))
		parts = append(parts, key("j/k", "Nav"))
		parts = append(parts, key("↑↓", "Scroll"))
	}

	parts = append(parts, key("q", "Quit"))

	return strings.Join(parts, "  ")
}

func idleOrRecording(recording bool) string {
	if recording {
		return "Recording"
	}
	return "Idle"
}

// Helpers

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	// Simple truncation for non-styled strings
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
