// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// ============================================================
// Fake Transport
// ============================================================

// fakeTransport records writes and delivers notifications from a pump
// goroutine, the way a BLE adapter calls back on its own goroutine.
type fakeTransport struct {
	mu        sync.Mutex
	handler   NotifyHandler
	onDisc    func(error)
	written   [][]byte
	alive     bool
	notifying bool
	connects  int
	writeErr  error
	respond   func(data []byte) [][]byte
	onEnable  [][]byte

	inbox chan []byte
	stop  chan struct{}
}

func newFakeTransport(t *testing.T) *fakeTransport {
	f := &fakeTransport{
		alive: true,
		inbox: make(chan []byte, 256),
		stop:  make(chan struct{}),
	}
	go f.pump()
	t.Cleanup(func() { close(f.stop) })
	return f
}

func (f *fakeTransport) pump() {
	for {
		select {
		case <-f.stop:
			return
		case data := <-f.inbox:
			f.deliver(data)
		}
	}
}

// deliver calls the notify handler on the calling goroutine
func (f *fakeTransport) deliver(data []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(lpf2.HardwareHandle, data)
	}
}

// push queues frames for the pump goroutine
func (f *fakeTransport) push(frames ...[]byte) {
	for _, data := range frames {
		f.inbox <- data
	}
}

func (f *fakeTransport) Connect(ctx context.Context, mac, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.alive = true
	return nil
}

func (f *fakeTransport) Write(handle uint16, data []byte) error {
	f.mu.Lock()
	if f.writeErr != nil {
		err := f.writeErr
		f.mu.Unlock()
		return err
	}
	f.written = append(f.written, append([]byte(nil), data...))
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		f.push(respond(data)...)
	}
	return nil
}

func (f *fakeTransport) SetNotifyHandler(fn NotifyHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
}

func (f *fakeTransport) SetDisconnectHandler(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisc = fn
}

func (f *fakeTransport) EnableNotifications() error {
	f.mu.Lock()
	f.notifying = true
	frames := f.onEnable
	f.mu.Unlock()
	f.push(frames...)
	return nil
}

func (f *fakeTransport) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	return nil
}

// fail simulates link loss reported by the adapter
func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	f.alive = false
	fn := f.onDisc
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (f *fakeTransport) setResponder(fn func(data []byte) [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

func (f *fakeTransport) writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func (f *fakeTransport) lastWrite() []byte {
	w := f.writes()
	if len(w) == 0 {
		return nil
	}
	return w[len(w)-1]
}

// ============================================================
// Scripted Hub
// ============================================================

// fakeHub answers downstream frames the way a move hub does
type fakeHub struct {
	mu         sync.Mutex
	name       string
	mac        []byte
	battery    uint8
	lowVoltage bool
	values     map[lpf2.Port][]byte
	reject     map[lpf2.MessageType]lpf2.ErrorCode
	silent     map[lpf2.MessageType]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		name:    "MoveHub",
		mac:     []byte{0x00, 0x16, 0x53, 0xA4, 0xCD, 0x7E},
		battery: 90,
		values:  make(map[lpf2.Port][]byte),
		reject:  make(map[lpf2.MessageType]lpf2.ErrorCode),
		silent:  make(map[lpf2.MessageType]bool),
	}
}

func (s *fakeHub) respond(data []byte) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgType := lpf2.MessageType(data[2])
	body := data[lpf2.HeaderSize:]
	if s.silent[msgType] {
		return nil
	}
	if code, ok := s.reject[msgType]; ok {
		return [][]byte{errorFrame(msgType, code)}
	}

	switch msgType {
	case lpf2.MsgHubProperties:
		prop, op := lpf2.HubProperty(body[0]), lpf2.PropertyOp(body[1])
		if op != lpf2.PropOpUpdateRequest {
			return nil
		}
		switch prop {
		case lpf2.PropAdvertiseName:
			return [][]byte{propertyFrame(prop, append([]byte(s.name), 0)...)}
		case lpf2.PropPrimaryMAC:
			return [][]byte{propertyFrame(prop, s.mac...)}
		case lpf2.PropBatteryPercent:
			return [][]byte{propertyFrame(prop, s.battery)}
		}
	case lpf2.MsgHubAlert:
		var status byte
		if s.lowVoltage {
			status = 0xFF
		}
		return [][]byte{frame(lpf2.MsgHubAlert, body[0], byte(lpf2.AlertOpUpstreamUpdate), status)}
	case lpf2.MsgHubAction:
		switch lpf2.Action(body[0]) {
		case lpf2.ActionDisconnect:
			return [][]byte{frame(lpf2.MsgHubAction, byte(lpf2.ActionUpstreamDisconnect))}
		case lpf2.ActionSwitchOff:
			return [][]byte{frame(lpf2.MsgHubAction, byte(lpf2.ActionUpstreamShutdown))}
		}
	case lpf2.MsgPortInfoRequest:
		if lpf2.PortInfoType(body[1]) == lpf2.PortInfoValue {
			port := lpf2.Port(body[0])
			return [][]byte{valueFrame(port, s.values[port]...)}
		}
	case lpf2.MsgPortInputFmtSetup:
		return [][]byte{frame(lpf2.MsgPortInputFmtSingle, body...)}
	case lpf2.MsgVirtualPortSetup:
		if body[0] == 0x01 {
			return [][]byte{virtualAttachFrame(0x10, lpf2.DevMotorInternalTacho, lpf2.Port(body[1]), lpf2.Port(body[2]))}
		}
		return [][]byte{detachFrame(lpf2.Port(body[1]))}
	case lpf2.MsgPortOutput:
		if body[1]&lpf2.CompletionFeedback != 0 {
			status := lpf2.FeedbackCompleted | lpf2.FeedbackIdle
			return [][]byte{frame(lpf2.MsgPortOutputFeedback, body[0], byte(status))}
		}
	}
	return nil
}

// ============================================================
// Frame Helpers
// ============================================================

func frame(msgType lpf2.MessageType, body ...byte) []byte {
	data := []byte{byte(lpf2.HeaderSize + len(body)), lpf2.HubID, byte(msgType)}
	return append(data, body...)
}

func propertyFrame(prop lpf2.HubProperty, params ...byte) []byte {
	return frame(lpf2.MsgHubProperties, append([]byte{byte(prop), byte(lpf2.PropOpUpstreamUpdate)}, params...)...)
}

func attachFrame(port lpf2.Port, dev lpf2.DeviceType) []byte {
	body := []byte{byte(port), byte(lpf2.EventAttached), 0, 0}
	binary.LittleEndian.PutUint16(body[2:], uint16(dev))
	body = append(body, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10)
	return frame(lpf2.MsgHubAttachedIO, body...)
}

func virtualAttachFrame(port lpf2.Port, dev lpf2.DeviceType, a, b lpf2.Port) []byte {
	body := []byte{byte(port), byte(lpf2.EventAttachedVirtual), 0, 0, byte(a), byte(b)}
	binary.LittleEndian.PutUint16(body[2:], uint16(dev))
	return frame(lpf2.MsgHubAttachedIO, body...)
}

func detachFrame(port lpf2.Port) []byte {
	return frame(lpf2.MsgHubAttachedIO, byte(port), byte(lpf2.EventDetached))
}

func valueFrame(port lpf2.Port, payload ...byte) []byte {
	return frame(lpf2.MsgPortValueSingle, append([]byte{byte(port)}, payload...)...)
}

func errorFrame(cmd lpf2.MessageType, code lpf2.ErrorCode) []byte {
	return frame(lpf2.MsgGenericError, byte(cmd), byte(code))
}

// ============================================================
// Test Helpers
// ============================================================

// diagnostics collects errors from the diagnostics hook
type diagnostics struct {
	mu   sync.Mutex
	errs []error
}

func (d *diagnostics) record(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
}

func (d *diagnostics) has(target error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, err := range d.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func testLogger() Option {
	return WithLogger(NewLogger(io.Discard, LogFormatText))
}

// newTestHub creates a started hub on f that is torn down with the test
func newTestHub(t *testing.T, f *fakeTransport, opts ...Option) *Hub {
	t.Helper()
	base := []Option{testLogger(), WithReplyTimeout(time.Second)}
	h := New(f, append(base, opts...)...)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() { h.teardown(ErrHubClosed) })
	return h
}

// eventually polls cond until it holds or a second passes
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
