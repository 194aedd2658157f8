// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/hubctl/pkg/hub"
	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxSpeed      = 1.0
	minSpeed      = -1.0
	maxLogEntries = 100
)

// Focus states
const (
	focusPeripheralList = iota
	focusSpeedInput
)

// ledCycle is the order the l key steps through
var ledCycle = []hub.Color{
	hub.ColorBlue, hub.ColorCyan, hub.ColorGreen, hub.ColorYellow,
	hub.ColorOrange, hub.ColorRed, hub.ColorPink, hub.ColorPurple,
	hub.ColorWhite, hub.ColorBlack,
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// peripheralItem is one row of the peripheral list
type peripheralItem struct {
	port    lpf2.Port
	device  string
	kind    hub.Kind
	virtual string
	value   string
	updated time.Time
}

func newPeripheralItem(p hub.Peripheral) peripheralItem {
	item := peripheralItem{
		port:   p.Port(),
		device: lpf2.FormatDeviceType(p.DeviceType()),
		kind:   p.Kind(),
	}
	if vp, ok := p.VirtualPorts(); ok {
		item.virtual = fmt.Sprintf("%s+%s", portLabel(vp[0]), portLabel(vp[1]))
	}
	return item
}

// Implement list.Item interface
func (p peripheralItem) Title() string { return fmt.Sprintf("%-4s %s", portLabel(p.port), p.device) }
func (p peripheralItem) Description() string {
	if p.value == "" {
		return p.kind.String()
	}
	return p.value
}
func (p peripheralItem) FilterValue() string { return portLabel(p.port) }

func (p peripheralItem) isMotor() bool {
	return p.kind == hub.KindMotor || p.kind == hub.KindEncodedMotor
}

type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Hub state
	connected      bool
	connectionLost bool
	status         hub.Status
	buttonPressed  bool
	ledIndex       int
	stats          hub.Statistics
	hasStats       bool

	// Peripherals
	peripherals    []peripheralItem
	peripheralList list.Model

	// Control
	speedInput   textinput.Model
	focusedField int

	eventLog []eventLogEntry

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlBatchMsg struct {
	readings []hub.Reading
	events   []controlEvent
}

type sessionReadyMsg struct {
	connInfo    string
	status      hub.Status
	peripherals []peripheralItem
}

type statusMsg struct {
	status hub.Status
}

type connectFailedMsg struct {
	err     error
	retryIn time.Duration
}

type connectionLostMsg struct {
	err error
}

type commandResultMsg struct {
	text string
	err  error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager) controlModel {
	// Initialize text input for motor speed
	ti := textinput.New()
	ti.Placeholder = "0.5"
	ti.CharLimit = 5
	ti.Width = 8

	// Initialize peripheral list with empty items
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	peripheralList := list.New([]list.Item{}, delegate, 34, 10)
	peripheralList.Title = "Peripherals"
	peripheralList.SetShowStatusBar(false)
	peripheralList.SetShowHelp(false)
	peripheralList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:        connMgr,
		connInfo:       "connecting...",
		ledIndex:       -1,
		peripherals:    make([]peripheralItem, 0),
		peripheralList: peripheralList,
		speedInput:     ti,
		focusedField:   focusPeripheralList,
		eventLog:       make([]eventLogEntry, 0),
		width:          80,
		height:         24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
			m.peripheralList, _ = m.peripheralList.Update(msg)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		if m.connMgr != nil {
			m.stats, m.hasStats = m.connMgr.statistics()
		}
		return m, controlTickCmd()

	case sessionReadyMsg:
		m.connected = true
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.status = msg.status
		m.peripherals = msg.peripherals
		m.updatePeripheralList()
		m.addLogEntry(fmt.Sprintf("Connected to %s (%d peripherals)", msg.status.Name, len(msg.peripherals)), false)
		if msg.status.LowVoltage {
			m.addLogEntry("Low voltage - check power source", true)
		}

	case statusMsg:
		m.status = msg.status
		m.addLogEntry(fmt.Sprintf("Status: %s battery %d%%", msg.status.Name, msg.status.BatteryPercent), false)

	case connectFailedMsg:
		m.addLogEntry(fmt.Sprintf("Connect failed: %v (retry in %s)", msg.err, msg.retryIn), true)

	case connectionLostMsg:
		m.connected = false
		m.connectionLost = true
		m.hasStats = false
		m.peripherals = m.peripherals[:0]
		m.updatePeripheralList()
		m.addLogEntry(fmt.Sprintf("Connection lost: %v - reconnecting...", msg.err), true)

	case controlBatchMsg:
		m.processBatch(msg)

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.text, msg.err), true)
		} else {
			m.addLogEntry(msg.text, false)
		}
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusSpeedInput {
		m.speedInput, cmd = m.speedInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focusedField == focusPeripheralList {
		m.peripheralList, cmd = m.peripheralList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		if m.focusedField == focusSpeedInput {
			return m.sendSpeed()
		}
		return m, nil
	}

	if m.focusedField == focusSpeedInput {
		var cmd tea.Cmd
		m.speedInput, cmd = m.speedInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "s":
		return m.sendStop()

	case "l":
		return m.sendNextLED()

	case "i":
		if m.connected {
			return m, m.connMgr.refreshStatus()
		}
		return m, nil

	case "up", "k", "down", "j":
		m.peripheralList, _ = m.peripheralList.Update(msg)
	}

	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	selected := m.getSelectedPeripheral()
	if selected == nil || !selected.isMotor() {
		m.focusedField = focusPeripheralList
		m.speedInput.Blur()
		return m
	}

	m.focusedField = (m.focusedField + delta + 2) % 2

	if m.focusedField == focusSpeedInput {
		m.speedInput.Focus()
	} else {
		m.speedInput.Blur()
	}
	return m
}

func (m controlModel) View() string {
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
	s.WriteString(titleStyle.Render("HUBCTL CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch s=stop l=light i=status", connStatus)))
	s.WriteString("\n")

	if m.connected {
		s.WriteString(m.renderStatusLine(statsLabelStyle, statsValueStyle, errorStyle))
	}
	s.WriteString("\n\n")

	if !m.connected {
		s.WriteString(warningStyle.Render("Waiting for hub..."))
		s.WriteString("\n\n")
		s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))
		return s.String()
	}

	// Layout: left panel (peripherals) | right panel (control)
	leftWidth := 34
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusPeripheralList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	listPanel := listStyle.Render(m.peripheralList.View())

	controlStyle := boxStyle.Width(rightWidth)
	if m.focusedField == focusSpeedInput {
		controlStyle = focusedBoxStyle.Width(rightWidth)
	}
	controlPanel := controlStyle.Render(m.renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, listPanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderStatusLine(statsLabelStyle, statsValueStyle, errorStyle lipgloss.Style) string {
	battery := statsValueStyle.Render(fmt.Sprintf("%d%%", m.status.BatteryPercent))
	if m.status.LowVoltage {
		battery = errorStyle.Render(fmt.Sprintf("%d%% LOW", m.status.BatteryPercent))
	}
	button := "released"
	if m.buttonPressed {
		button = "pressed"
	}
	return fmt.Sprintf(" %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Hub:"), statsValueStyle.Render(m.status.Name),
		statsLabelStyle.Render("MAC:"), statsValueStyle.Render(m.status.MAC.String()),
		statsLabelStyle.Render("Battery:"), battery,
		statsLabelStyle.Render("Button:"), statsValueStyle.Render(button))
}

func (m controlModel) renderControlPanel(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	selected := m.getSelectedPeripheral()
	if selected == nil {
		s.WriteString(headerStyle.Render("No peripheral selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Port:"), portLabel(selected.port)))
	if selected.virtual != "" {
		s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Combines:"), selected.virtual))
	}
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Device:"), selected.device))
	s.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Class:"), selected.kind))

	value := selected.value
	if value == "" {
		value = "-"
	}
	s.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Value:"), statsValueStyle.Render(value)))
	if !selected.updated.IsZero() {
		s.WriteString(headerStyle.Render(fmt.Sprintf(" (%s ago)", time.Since(selected.updated).Truncate(100*time.Millisecond))))
	}
	s.WriteString("\n\n")

	if selected.isMotor() {
		s.WriteString(statsLabelStyle.Render("Speed: "))
		if m.focusedField == focusSpeedInput {
			s.WriteString(m.speedInput.View())
		} else {
			val := m.speedInput.Value()
			if val == "" {
				val = m.speedInput.Placeholder
			}
			s.WriteString(fmt.Sprintf("[%s]", val))
		}
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("Enter=run s=stop"))
	} else if m.ledIndex >= 0 {
		s.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Light:"), colorName(ledCycle[m.ledIndex])))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	st := m.stats
	var decodedPercent, errorPercent float64
	if st.TotalFrames > 0 {
		decodedPercent = float64(st.DecodedFrames) * 100.0 / float64(st.TotalFrames)
		totalErrors := st.MalformedFrames + st.CommandErrors + st.ReplyTimeouts + st.OrphanValues
		errorPercent = float64(totalErrors) * 100.0 / float64(st.TotalFrames)
	}

	errText := statsValueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Decoded:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", decodedPercent)),
		statsLabelStyle.Render("Errors:"), errText,
		statsLabelStyle.Render("Sent:"), statsValueStyle.Render(fmt.Sprintf("%d", st.FramesSent)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frame/s", st.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processBatch(batch controlBatchMsg) {
	for _, ev := range batch.events {
		m.processEvent(ev)
	}

	changed := false
	for _, r := range batch.readings {
		if i := m.peripheralIndex(r.Port); i >= 0 {
			m.peripherals[i].value = formatReading(r)
			m.peripherals[i].updated = time.Now()
			changed = true
		}
	}
	if changed || len(batch.events) > 0 {
		m.updatePeripheralList()
	}
}

func (m *controlModel) processEvent(ev controlEvent) {
	switch ev.kind {
	case eventAttach:
		if i := m.peripheralIndex(ev.item.port); i >= 0 {
			m.peripherals[i] = ev.item
		} else {
			m.peripherals = append(m.peripherals, ev.item)
			sort.Slice(m.peripherals, func(i, j int) bool { return m.peripherals[i].port < m.peripherals[j].port })
		}
		m.addLogEntry(fmt.Sprintf("Attached: %s %s", portLabel(ev.item.port), ev.item.device), false)

	case eventDetach:
		if i := m.peripheralIndex(ev.item.port); i >= 0 {
			m.peripherals = append(m.peripherals[:i], m.peripherals[i+1:]...)
		}
		m.addLogEntry(fmt.Sprintf("Detached: %s %s", portLabel(ev.item.port), ev.item.device), false)

	case eventButton:
		m.buttonPressed = ev.pressed
		if ev.pressed {
			m.addLogEntry("Button pressed", false)
		} else {
			m.addLogEntry("Button released", false)
		}

	case eventDiagnostic:
		m.addLogEntry(ev.err.Error(), true)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) sendSpeed() (tea.Model, tea.Cmd) {
	if m.connectionLost || !m.connected {
		m.addLogEntry("Cannot send command: not connected", true)
		return m, nil
	}

	selected := m.getSelectedPeripheral()
	if selected == nil || !selected.isMotor() {
		m.addLogEntry("Select a motor first", true)
		return m, nil
	}

	speedStr := m.speedInput.Value()
	if speedStr == "" {
		speedStr = m.speedInput.Placeholder
	}
	speed, err := strconv.ParseFloat(speedStr, 64)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid speed value: %s", speedStr), true)
		return m, nil
	}
	if speed < minSpeed || speed > maxSpeed {
		m.addLogEntry(fmt.Sprintf("Speed must be between %.0f and %.0f", minSpeed, maxSpeed), true)
		return m, nil
	}

	return m, m.connMgr.setSpeed(selected.port, speed)
}

func (m *controlModel) sendStop() (tea.Model, tea.Cmd) {
	selected := m.getSelectedPeripheral()
	if !m.connected || selected == nil || !selected.isMotor() {
		return m, nil
	}
	return m, m.connMgr.stopMotor(selected.port)
}

func (m *controlModel) sendNextLED() (tea.Model, tea.Cmd) {
	if !m.connected {
		return m, nil
	}
	m.ledIndex = (m.ledIndex + 1) % len(ledCycle)
	return m, m.connMgr.setLED(ledCycle[m.ledIndex])
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m *controlModel) peripheralIndex(port lpf2.Port) int {
	for i := range m.peripherals {
		if m.peripherals[i].port == port {
			return i
		}
	}
	return -1
}

func (m *controlModel) getSelectedPeripheral() *peripheralItem {
	idx := m.peripheralList.Index()
	if idx < 0 || idx >= len(m.peripherals) {
		return nil
	}
	return &m.peripherals[idx]
}

func (m *controlModel) updatePeripheralList() {
	items := make([]list.Item, len(m.peripherals))
	for i, p := range m.peripherals {
		items[i] = p
	}
	m.peripheralList.SetItems(items)
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.peripheralList.SetSize(32, listHeight)
}
