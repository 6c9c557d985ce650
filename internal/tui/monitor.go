// Package tui is the terminal monitor for a running parcel server.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/parcel/internal/events"
)

const (
	maxDownloads = 100
	maxEventLog  = 50
)

// Download status values shown in the table.
const (
	statusStarted   = "started"
	statusCompleted = "completed"
	statusFallback  = "fallback"
	statusFailed    = "failed"
)

// DownloadRow is the monitor's view of one request.
type DownloadRow struct {
	RequestID string
	Platform  string
	Mode      string
	Artifact  string
	Filename  string
	Status    string
	Bytes     int64
	Duration  time.Duration
	Error     string
	At        time.Time
}

// Totals are running counters since the monitor started.
type Totals struct {
	Started   int
	Completed int
	Fallback  int
	Failed    int
	Bytes     int64
}

// Model is the bubbletea model behind `parcel watch`.
type Model struct {
	apiURL string
	token  string

	width  int
	height int

	downloads map[string]*DownloadRow
	order     []string
	totals    Totals
	eventLog  []events.Event
	lastID    int64

	health    healthMsg
	connected bool
	lastError string

	table    table.Model
	theme    Theme
	activity Activity

	hubEvents chan events.Event
	onConnect chan struct{}
	now       func() time.Time
}

// NewMonitor creates a monitor for the server at apiURL. token is sent as a
// bearer token when the server guards its event stream.
func NewMonitor(apiURL, token string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Time", Width: 8},
			{Title: "Platform", Width: 10},
			{Title: "Mode", Width: 9},
			{Title: "File", Width: 24},
			{Title: "Bytes", Width: 10},
			{Title: "Took", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:    strings.TrimRight(apiURL, "/"),
		token:     token,
		downloads: make(map[string]*DownloadRow),
		table:     t,
		theme:     NewDefaultTheme(),
		hubEvents: make(chan events.Event, 100),
		onConnect: make(chan struct{}, 1),
		now:       time.Now,
	}
}

// Run starts the monitor in the alternate screen and blocks until quit.
func Run(apiURL, token string) error {
	_, err := tea.NewProgram(NewMonitor(apiURL, token), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.apiURL, m.token, 0, m.hubEvents, m.onConnect),
		waitConnected(m.onConnect),
		receiveNextEvent(m.hubEvents),
		m.pollHealth(),
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) pollHealth() tea.Cmd {
	url := m.apiURL
	return func() tea.Msg { return fetchHealth(url) }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width - 6)
		if h := m.height/2 - 4; h > 3 {
			m.table.SetHeight(h)
		}

	case eventMsg:
		m.applyEvent(events.Event(msg))
		m.refreshTable()
		return m, receiveNextEvent(m.hubEvents)

	case connectedMsg:
		m.connected = true
		m.lastError = ""
		return m, nil

	case disconnectedMsg:
		m.connected = false
		if msg.err != nil {
			m.lastError = msg.err.Error()
		}
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, tea.Batch(
			subscribe(m.apiURL, m.token, m.lastID, m.hubEvents, m.onConnect),
			waitConnected(m.onConnect),
		)

	case healthMsg:
		m.health = msg
		url := m.apiURL
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg { return fetchHealth(url) })

	case errMsg:
		m.lastError = msg.Error()
		m.health.Status = ""
		url := m.apiURL
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg { return fetchHealth(url) })

	case tickMsg:
		m.activity.Decay(time.Time(msg))
		return m, tick()
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// applyEvent folds one download.* event into the monitor state.
func (m *Model) applyEvent(e events.Event) {
	if e.ID > m.lastID {
		m.lastID = e.ID
	}
	m.activity.OnEvent(m.now())
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}

	var d events.Download
	if err := e.Decode(&d); err != nil {
		return
	}
	key := d.RequestID
	if key == "" {
		key = fmt.Sprintf("event-%d", e.ID)
	}

	row, ok := m.downloads[key]
	if !ok {
		row = &DownloadRow{RequestID: key, At: e.At}
		m.track(key, row)
	}
	row.Platform = d.Platform
	if d.Mode != "" {
		row.Mode = d.Mode
	}
	if d.Artifact != "" {
		row.Artifact = d.Artifact
	}

	switch e.Type {
	case events.DownloadStarted:
		row.Status = statusStarted
		m.totals.Started++
	case events.DownloadFallback:
		row.Status = statusFallback
		row.Error = d.Error
		m.totals.Fallback++
	case events.DownloadCompleted:
		if row.Status != statusFallback {
			row.Status = statusCompleted
		}
		row.Filename = d.Filename
		row.Bytes = d.Bytes
		row.Duration = time.Duration(d.Duration) * time.Millisecond
		m.totals.Completed++
		m.totals.Bytes += d.Bytes
	case events.DownloadFailed:
		row.Status = statusFailed
		row.Filename = d.Filename
		row.Bytes = d.Bytes
		row.Duration = time.Duration(d.Duration) * time.Millisecond
		row.Error = d.Error
		m.totals.Failed++
	}
}

// track inserts a new row at the top and evicts the oldest past the cap.
func (m *Model) track(key string, row *DownloadRow) {
	m.downloads[key] = row
	m.order = append([]string{key}, m.order...)
	if len(m.order) > maxDownloads {
		for _, old := range m.order[maxDownloads:] {
			delete(m.downloads, old)
		}
		m.order = m.order[:maxDownloads]
	}
}

func (m *Model) refreshTable() {
	rows := make([]table.Row, 0, len(m.order))
	for _, key := range m.order {
		d := m.downloads[key]
		took := "-"
		if d.Duration > 0 {
			took = d.Duration.Round(time.Millisecond).String()
		}
		file := d.Filename
		if file == "" {
			file = d.Artifact
		}
		rows = append(rows, table.Row{
			m.statusSymbol(d.Status),
			d.At.Local().Format("15:04:05"),
			d.Platform,
			d.Mode,
			file,
			humanBytes(d.Bytes),
			took,
		})
	}
	m.table.SetRows(rows)
}

func (m Model) statusSymbol(status string) string {
	switch status {
	case statusStarted:
		return m.theme.StatusRunning.Render("◉")
	case statusCompleted:
		return m.theme.StatusOK.Render("●")
	case statusFallback:
		return m.theme.StatusWarn.Render("◑")
	case statusFailed:
		return m.theme.StatusFailed.Render("∅")
	default:
		return "○"
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	downloads := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Downloads"),
			m.table.View(),
		),
	)
	stream := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Event Stream"),
			m.renderEvents(),
		),
	)
	help := m.theme.Help.Render(" [q] Quit • [↑/↓] Scroll")

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			downloads,
			stream,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	status := m.theme.StatusOK.Render("SERVING")
	switch {
	case m.health.Status == "":
		status = m.theme.StatusFailed.Render("UNREACHABLE")
	case m.health.Status != "ok":
		status = m.theme.StatusFailed.Render("DEGRADED")
	}
	stream := m.theme.StatusOK.Render("live")
	if !m.connected {
		stream = m.theme.StatusWarn.Render("reconnecting")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second
	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime),
		fmt.Sprintf("Stream: %s %s", stream, m.activity.Render(m.theme)),
		fmt.Sprintf("OK %d  Raw %d  Fail %d  %s",
			m.totals.Completed, m.totals.Fallback, m.totals.Failed, humanBytes(m.totals.Bytes)),
	}

	cols := make([]string, len(items))
	for i, it := range items {
		cols[i] = lipgloss.NewStyle().Width((m.width - 4) / len(items)).Render(it)
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	if m.lastError != "" {
		header = lipgloss.JoinVertical(lipgloss.Left, header, m.theme.Dim.Render(m.lastError))
	}
	return m.theme.Border.Width(m.width - 4).Render(header)
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		ts := e.At.Local().Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-18s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No downloads yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}
