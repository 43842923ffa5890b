// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/parhelion/pkg/pus"
	"github.com/Thermoquad/parhelion/pkg/session"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxTableRows  = 50 // finished commands shown below the open ones
	maxLogEntries = 100
)

// Focus states
const (
	focusInput = iota
	focusTable
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// eventLogEntry is one line of the event log
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	st       *station
	connInfo string

	// Commands
	commands []session.Command
	table    table.Model
	input    textinput.Model
	focused  int

	// Monitoring
	stats    pus.Snapshot
	lastTM   *pus.Packet
	eventLog []eventLogEntry

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type monitorBatchMsg struct {
	events []session.Event
}

type submitResultMsg struct {
	service    uint8
	subservice uint8
	seq        uint16
	err        error
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(st *station) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "17 1"
	ti.Prompt = "TC> "
	ti.CharLimit = 128
	ti.Width = 40
	ti.Focus()

	columns := []table.Column{
		{Title: "APID", Width: 6},
		{Title: "Seq", Width: 6},
		{Title: "TC", Width: 9},
		{Title: "Ack", Width: 5},
		{Title: "Stage", Width: 28},
		{Title: "Age", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(8),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12"))
	t.SetStyles(styles)

	return monitorModel{
		st:       st,
		connInfo: st.Info(),
		table:    t,
		input:    ti,
		focused:  focusInput,
		eventLog: make([]eventLogEntry, 0),
		width:    80,
		height:   24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, monitorTickCmd())
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeTable()

	case monitorTickMsg:
		m.refresh()
		return m, monitorTickCmd()

	case monitorBatchMsg:
		for _, ev := range msg.events {
			m.processEvent(ev)
		}
		m.refresh()

	case submitResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("TC(%d,%d) not sent: %v", msg.service, msg.subservice, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Sent TC(%d,%d) %s seq=%d", msg.service, msg.subservice,
				pus.FormatSubservice(msg.service, msg.subservice), msg.seq), false)
		}
		m.refresh()

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil
	}

	var cmd tea.Cmd
	if m.focused == focusInput {
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "c":
		m.cancelSelected()
		m.refresh()
		return m, nil
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *monitorModel) toggleFocus() {
	if m.focused == focusInput {
		m.focused = focusTable
		m.input.Blur()
		m.table.Focus()
	} else {
		m.focused = focusInput
		m.table.Blur()
		m.input.Focus()
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("PARHELION MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Esc=quit Tab=switch", connStatus)))
	s.WriteString("\n\n")

	// Command entry
	inputStyle := boxStyle
	if m.focused == focusInput {
		inputStyle = focusedBoxStyle
	}
	s.WriteString(inputStyle.Width(m.width - 4).Render(m.input.View()))
	s.WriteString("\n")

	// Command table
	tableStyle := boxStyle
	if m.focused == focusTable {
		tableStyle = focusedBoxStyle
	}
	s.WriteString(tableStyle.Width(m.width - 4).Render(m.table.View()))
	s.WriteString("\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n")

	// Latest telemetry
	s.WriteString(m.renderTelemetry(statsLabelStyle, headerStyle, boxStyle))
	s.WriteString("\n")

	// Event log
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, errorStyle, headerStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m monitorModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	var validPercent, errorPercent float64
	if m.stats.TotalPackets > 0 {
		validPercent = float64(m.stats.ValidPackets) * 100.0 / float64(m.stats.TotalPackets)
		errorPercent = float64(m.stats.Errors) * 100.0 / float64(m.stats.TotalPackets)
	}

	errText := statsValueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}
	lost := statsValueStyle.Render("0")
	if m.stats.LostPackets > 0 {
		lost = errorStyle.Render(fmt.Sprintf("%d", m.stats.LostPackets))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Errors:"), errText,
		statsLabelStyle.Render("Lost:"), lost,
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkt/s", m.stats.PacketRate)),
		statsLabelStyle.Render("Open:"), statsValueStyle.Render(fmt.Sprintf("%d", m.openCount())),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m monitorModel) renderTelemetry(statsLabelStyle, headerStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(statsLabelStyle.Render("LAST TM"))
	content.WriteString(" | ")

	if m.lastTM == nil {
		content.WriteString(headerStyle.Render("No telemetry data"))
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	content.WriteString(summarizeEvent(session.Event{Kind: session.EventTelemetry, Packet: m.lastTM}))
	if data := pus.FormatData(m.lastTM); data != "" {
		content.WriteString("\n")
		content.WriteString(strings.TrimRight(data, "\n"))
	}
	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m monitorModel) renderEventLog(statsLabelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	// Whatever is left of the screen, at least three lines
	logHeight := m.height - 30
	if logHeight < 3 {
		logHeight = 3
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) processEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventTelemetry:
		m.lastTM = ev.Packet
		// Events get a line, routine telemetry only updates the panel
		if ev.Packet.Service() == pus.ServiceEvent {
			m.addLogEntry(summarizeEvent(ev), ev.Packet.Subservice() >= pus.SubEventMediumSeverity)
		}
	case session.EventVerification:
		m.addLogEntry(summarizeEvent(ev), ev.Report != nil && !ev.Report.Success())
	case session.EventAnomaly, session.EventTimeout:
		m.addLogEntry(summarizeEvent(ev), true)
	}
	m.st.log.Printf("%s", summarizeEvent(ev))
}

// refresh copies the session state into the view
func (m *monitorModel) refresh() {
	m.stats = m.st.session.Stats().Snapshot()

	pending := m.st.session.Pending()
	archived := m.st.session.Archived()
	if len(archived) > maxTableRows {
		archived = archived[len(archived)-maxTableRows:]
	}

	// Open commands first, then finished ones newest first
	commands := make([]session.Command, 0, len(pending)+len(archived))
	commands = append(commands, pending...)
	for i := len(archived) - 1; i >= 0; i-- {
		commands = append(commands, archived[i])
	}
	m.commands = commands

	now := time.Now()
	rows := make([]table.Row, len(commands))
	for i, c := range commands {
		rows[i] = table.Row{
			fmt.Sprintf("0x%03X", c.APID),
			strconv.Itoa(int(c.SequenceCount)),
			fmt.Sprintf("(%d,%d)", c.Service, c.Subservice),
			c.Ack.String(),
			c.Stage.String(),
			formatAge(now.Sub(c.SubmittedAt)),
		}
	}
	m.table.SetRows(rows)
}

func (m *monitorModel) openCount() int {
	n := 0
	for _, c := range m.commands {
		if !c.Stage.Finished() {
			n++
		}
	}
	return n
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// submit parses the command entry and sends it in the background
func (m monitorModel) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		line = m.input.Placeholder
	}

	service, subservice, data, err := parseCommandLine(line)
	if err != nil {
		m.addLogEntry(err.Error(), true)
		return m, nil
	}
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	m.input.SetValue("")
	s := m.st.session
	return m, func() tea.Msg {
		seq, err := s.Submit(service, subservice, data, pus.AckAll)
		return submitResultMsg{service: service, subservice: subservice, seq: seq, err: err}
	}
}

func (m *monitorModel) cancelSelected() {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.commands) {
		return
	}
	c := m.commands[idx]
	if c.Stage.Finished() {
		m.addLogEntry(fmt.Sprintf("seq %d already finished", c.SequenceCount), true)
		return
	}
	if err := m.st.session.Cancel(c.SequenceCount); err != nil {
		m.addLogEntry(fmt.Sprintf("Cancel failed: %v", err), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("Stopped tracking seq %d", c.SequenceCount), false)
}

// parseCommandLine parses "SERVICE SUBSERVICE [HEXDATA]"
func parseCommandLine(line string) (uint8, uint8, []byte, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, nil, fmt.Errorf("usage: SERVICE SUBSERVICE [HEXDATA]")
	}
	service, err := parseTypeArg("service", fields[0])
	if err != nil {
		return 0, 0, nil, err
	}
	subservice, err := parseTypeArg("subservice", fields[1])
	if err != nil {
		return 0, 0, nil, err
	}
	var data []byte
	if len(fields) > 2 {
		if data, err = parseHexData(strings.Join(fields[2:], "")); err != nil {
			return 0, 0, nil, err
		}
	}
	return service, subservice, data, nil
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m *monitorModel) resizeTable() {
	m.table.SetWidth(m.width - 8)
	h := m.height / 3
	if h < 5 {
		h = 5
	}
	m.table.SetHeight(h)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
