// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/hubctl/pkg/hub"
	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for driving a hub",
	Long: `Drive and monitor a hub via an interactive terminal UI.

Features:
  - Live peripheral list with the latest value of each sensor and motor
  - Motor speed control and stop for the selected motor
  - Hub light color cycling
  - Hub status, button state and frame statistics
  - Event logging (attach, detach, diagnostics)
  - Automatic reconnection on connection loss

Tab switches between the peripheral list and the speed input. Arrow keys
navigate the list. In the list, s stops the selected motor, l cycles the hub
light and i refreshes the hub status.

Supports native BLE, serial bridge and WebSocket bridge connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

var errNoSession = errors.New("not connected")

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	batchInterval  = 50 * time.Millisecond
)

// controlEventKind classifies events raised by the hub outside of replies
type controlEventKind int

const (
	eventAttach controlEventKind = iota
	eventDetach
	eventButton
	eventDiagnostic
)

// controlEvent is a hub event queued for the TUI
type controlEvent struct {
	kind    controlEventKind
	item    peripheralItem
	pressed bool
	err     error
}

// connectionManager owns the hub session and its reconnection
type connectionManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	session    *Session
	subscribed map[lpf2.Port]bool

	p        *tea.Program
	readings chan hub.Reading
	events   chan controlEvent
	done     chan struct{}
}

func newConnectionManager() *connectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &connectionManager{
		ctx:        ctx,
		cancel:     cancel,
		subscribed: make(map[lpf2.Port]bool),
		readings:   make(chan hub.Reading, 256),
		events:     make(chan controlEvent, 100),
		done:       make(chan struct{}),
	}
}

func (cm *connectionManager) getSession() *Session {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.session
}

func (cm *connectionManager) setSession(s *Session) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.session = s
	cm.subscribed = make(map[lpf2.Port]bool)
}

func runControl(cmd *cobra.Command, args []string) error {
	cm := newConnectionManager()

	m := initialControlModel(cm)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.connectLoop()
	go cm.batchLoop()

	_, err := p.Run()
	cm.shutdown()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// shutdown stops the background goroutines and disconnects the hub
func (cm *connectionManager) shutdown() {
	close(cm.done)
	cm.cancel()
	if s := cm.getSession(); s != nil {
		closeSession(s)
	}
}

// connectLoop opens a session, waits for it to end and reconnects with
// exponential backoff until shutdown
func (cm *connectionManager) connectLoop() {
	backoff := initialBackoff

	for {
		s, st, err := cm.open()
		if err != nil {
			cm.p.Send(connectFailedMsg{err: err, retryIn: backoff})
			select {
			case <-cm.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		cm.p.Send(sessionReadyMsg{
			connInfo:    s.Conn.Info,
			status:      st,
			peripherals: peripheralItems(s.Hub.Peripherals()),
		})

		select {
		case <-cm.done:
			return
		case <-s.Hub.Done():
		}

		cm.setSession(nil)
		s.Conn.Close()
		cm.p.Send(connectionLostMsg{err: s.Hub.Err()})
	}
}

// open starts a session and wires its events to the TUI
func (cm *connectionManager) open() (*Session, hub.Status, error) {
	s, err := OpenSession(cm.ctx, cm.diagnostic)
	if err != nil {
		return nil, hub.Status{}, err
	}

	st, err := s.Status(cm.ctx)
	if err != nil {
		closeSession(s)
		return nil, hub.Status{}, err
	}

	cm.setSession(s)
	s.Hub.OnAttach(func(p hub.Peripheral) {
		cm.post(controlEvent{kind: eventAttach, item: newPeripheralItem(p)})
		go cm.subscribe(s, p)
	})
	s.Hub.OnDetach(func(p hub.Peripheral) {
		cm.post(controlEvent{kind: eventDetach, item: newPeripheralItem(p)})
		cm.mu.Lock()
		delete(cm.subscribed, p.Port())
		cm.mu.Unlock()
	})

	if _, err := s.Button().Subscribe(cm.ctx, func(pressed bool) {
		cm.post(controlEvent{kind: eventButton, pressed: pressed})
	}); err != nil {
		cm.diagnostic(fmt.Errorf("button: %w", err))
	}

	for _, p := range s.Hub.Peripherals() {
		go cm.subscribe(s, p)
	}
	return s, st, nil
}

// subscribe streams the default mode of p to the TUI. Each port is
// subscribed once per session.
func (cm *connectionManager) subscribe(s *Session, p hub.Peripheral) {
	if p.Kind() == hub.KindLED {
		return
	}

	cm.mu.Lock()
	if cm.session != s || cm.subscribed[p.Port()] {
		cm.mu.Unlock()
		return
	}
	cm.subscribed[p.Port()] = true
	cm.mu.Unlock()

	_, err := p.Subscribe(cm.ctx, defaultMode(p.Kind()), 1, func(r hub.Reading) {
		select {
		case cm.readings <- r:
		default:
		}
	})
	if err != nil {
		cm.diagnostic(fmt.Errorf("subscribe %s: %w", portLabel(p.Port()), err))
	}
}

func (cm *connectionManager) diagnostic(err error) {
	cm.post(controlEvent{kind: eventDiagnostic, err: err})
}

func (cm *connectionManager) post(ev controlEvent) {
	select {
	case cm.events <- ev:
	default:
	}
}

// batchLoop sends queued readings and events to the TUI at a fixed rate
func (cm *connectionManager) batchLoop() {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return
		case <-ticker.C:
			var batch controlBatchMsg

		drainLoop:
			for {
				select {
				case r := <-cm.readings:
					batch.readings = append(batch.readings, r)
				case ev := <-cm.events:
					batch.events = append(batch.events, ev)
				default:
					break drainLoop
				}
			}

			if len(batch.readings) > 0 || len(batch.events) > 0 {
				cm.p.Send(batch)
			}
		}
	}
}

// statistics returns the counters of the current session
func (cm *connectionManager) statistics() (hub.Statistics, bool) {
	s := cm.getSession()
	if s == nil {
		return hub.Statistics{}, false
	}
	return s.Hub.Statistics(), true
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// command runs fn against the current session off the UI goroutine
func (cm *connectionManager) command(done string, fn func(ctx context.Context, s *Session) error) tea.Cmd {
	return func() tea.Msg {
		s := cm.getSession()
		if s == nil {
			return commandResultMsg{text: done, err: errNoSession}
		}
		return commandResultMsg{text: done, err: fn(cm.ctx, s)}
	}
}

func (cm *connectionManager) setSpeed(port lpf2.Port, speed float64) tea.Cmd {
	return cm.command(fmt.Sprintf("%s speed %.2f", portLabel(port), speed), func(ctx context.Context, s *Session) error {
		m, err := sessionMotor(s, port)
		if err != nil {
			return err
		}
		return m.StartSpeed(ctx, speed, speed)
	})
}

func (cm *connectionManager) stopMotor(port lpf2.Port) tea.Cmd {
	return cm.command(fmt.Sprintf("%s stopped", portLabel(port)), func(ctx context.Context, s *Session) error {
		m, err := sessionMotor(s, port)
		if err != nil {
			return err
		}
		return m.Stop(ctx)
	})
}

func (cm *connectionManager) setLED(c hub.Color) tea.Cmd {
	return cm.command(fmt.Sprintf("LED %s", colorName(c)), func(ctx context.Context, s *Session) error {
		led, ok := s.LED()
		if !ok {
			return errors.New("hub light is not attached")
		}
		return led.SetColorIndex(ctx, c)
	})
}

func (cm *connectionManager) refreshStatus() tea.Cmd {
	return func() tea.Msg {
		s := cm.getSession()
		if s == nil {
			return commandResultMsg{text: "status", err: errNoSession}
		}
		st, err := s.Hub.ReadStatus(cm.ctx)
		if err != nil {
			return commandResultMsg{text: "status", err: err}
		}
		return statusMsg{status: st}
	}
}

// sessionMotor returns the motor attached at port
func sessionMotor(s *Session, port lpf2.Port) (*hub.Motor, error) {
	p, ok := s.Hub.Peripheral(port)
	if !ok {
		return nil, fmt.Errorf("nothing attached to port %s", portLabel(port))
	}
	switch v := p.(type) {
	case *hub.EncodedMotor:
		return &v.Motor, nil
	case *hub.Motor:
		return v, nil
	}
	return nil, fmt.Errorf("port %s is not a motor", portLabel(port))
}

// peripheralItems converts peripherals to list items ordered by port
func peripheralItems(ps []hub.Peripheral) []peripheralItem {
	items := make([]peripheralItem, len(ps))
	for i, p := range ps {
		items[i] = newPeripheralItem(p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].port < items[j].port })
	return items
}
