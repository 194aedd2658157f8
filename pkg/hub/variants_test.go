// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// moveHubAttaches are the attach events a move hub sends once
// notifications are enabled
func moveHubAttaches() [][]byte {
	return [][]byte{
		attachFrame(MoveHubPortA, lpf2.DevMotorInternalTacho),
		attachFrame(MoveHubPortB, lpf2.DevMotorInternalTacho),
		virtualAttachFrame(MoveHubPortAB, lpf2.DevMotorInternalTacho, MoveHubPortA, MoveHubPortB),
		attachFrame(MoveHubPortLED, lpf2.DevRGBLight),
		attachFrame(MoveHubPortTilt, lpf2.DevTiltInternal),
		attachFrame(MoveHubPortCurrent, lpf2.DevCurrent),
		attachFrame(MoveHubPortVoltage, lpf2.DevVoltage),
	}
}

func newTestMoveHub(t *testing.T, f *fakeTransport, opts ...Option) *MoveHub {
	t.Helper()
	base := []Option{testLogger(), WithReplyTimeout(time.Second), WithAttachPoll(time.Millisecond, 500)}
	m, err := NewMoveHub(context.Background(), f, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewMoveHub error: %v", err)
	}
	t.Cleanup(func() { m.teardown(ErrHubClosed) })
	return m
}

// ============================================================
// Move Hub Tests
// ============================================================

func TestMoveHub_Startup(t *testing.T) {
	f := newFakeTransport(t)
	f.onEnable = moveHubAttaches()
	f.setResponder(newFakeHub().respond)

	m := newTestMoveHub(t, f)

	if !f.notifying {
		t.Error("notifications not enabled")
	}
	st := m.Status()
	if st.Name != "MoveHub" {
		t.Errorf("Name = %q, want MoveHub", st.Name)
	}
	if st.MAC.String() != "00:16:53:a4:cd:7e" {
		t.Errorf("MAC = %s", st.MAC)
	}
	if st.BatteryPercent != 90 {
		t.Errorf("BatteryPercent = %d, want 90", st.BatteryPercent)
	}
	if st.LowVoltage {
		t.Error("LowVoltage = true, want false")
	}

	if motor, ok := m.MotorA(); !ok || motor.Port() != MoveHubPortA {
		t.Errorf("MotorA = %v %v", motor, ok)
	}
	if _, ok := m.MotorB(); !ok {
		t.Error("MotorB empty")
	}
	ab, ok := m.MotorAB()
	if !ok {
		t.Fatal("MotorAB empty")
	}
	if _, virtual := ab.VirtualPorts(); !virtual {
		t.Error("MotorAB is not a virtual port")
	}
	if _, ok := m.LED(); !ok {
		t.Error("LED empty")
	}
	if _, ok := m.Tilt(); !ok {
		t.Error("Tilt empty")
	}
	if _, ok := m.Current(); !ok {
		t.Error("Current empty")
	}
	if _, ok := m.Voltage(); !ok {
		t.Error("Voltage empty")
	}
	if _, ok := m.MotorExternal(); ok {
		t.Error("built-in motors bound as external")
	}
}

func TestMoveHub_ConnectsTransport(t *testing.T) {
	f := newFakeTransport(t)
	f.alive = false
	f.setResponder(newFakeHub().respond)

	newTestMoveHub(t, f, WithAttachPoll(time.Millisecond, 1))

	if f.connects != 1 {
		t.Errorf("connects = %d, want 1", f.connects)
	}
}

func TestMoveHub_MissingPeripheralsNotFatal(t *testing.T) {
	f := newFakeTransport(t)
	f.onEnable = [][]byte{attachFrame(MoveHubPortLED, lpf2.DevRGBLight)}
	f.setResponder(newFakeHub().respond)

	m := newTestMoveHub(t, f, WithAttachPoll(time.Millisecond, 5))

	if _, ok := m.LED(); !ok {
		t.Error("LED empty")
	}
	if _, ok := m.MotorA(); ok {
		t.Error("MotorA bound without attach")
	}
	if m.Status().Name != "MoveHub" {
		t.Error("handshake skipped after missing peripherals")
	}
}

func TestMoveHub_LowVoltageIsDiagnostic(t *testing.T) {
	f := newFakeTransport(t)
	fh := newFakeHub()
	fh.lowVoltage = true
	f.setResponder(fh.respond)
	diag := &diagnostics{}

	m := newTestMoveHub(t, f, WithAttachPoll(time.Millisecond, 1), WithDiagnostics(diag.record))

	if !m.Status().LowVoltage {
		t.Error("LowVoltage = false, want true")
	}
	if !diag.has(ErrLowVoltage) {
		t.Error("low voltage not reported to diagnostics")
	}
}

func TestMoveHub_HandshakeFailure(t *testing.T) {
	f := newFakeTransport(t)
	fh := newFakeHub()
	fh.silent[lpf2.MsgHubProperties] = true
	f.setResponder(fh.respond)

	_, err := NewMoveHub(context.Background(), f,
		testLogger(), WithReplyTimeout(20*time.Millisecond), WithAttachPoll(time.Millisecond, 1))
	if !errors.Is(err, ErrReplyTimeout) {
		t.Fatalf("NewMoveHub error = %v, want ErrReplyTimeout", err)
	}
	if f.IsAlive() {
		t.Error("transport left connected after failed handshake")
	}
}

func TestMoveHub_ExternalPeripherals(t *testing.T) {
	f := newFakeTransport(t)
	f.setResponder(newFakeHub().respond)
	m := newTestMoveHub(t, f, WithAttachPoll(time.Millisecond, 1))

	f.deliver(attachFrame(MoveHubPortC, lpf2.DevVisionSensor))
	f.deliver(attachFrame(MoveHubPortD, lpf2.DevMotorExternalTacho))

	if v, ok := m.Vision(); !ok || v.Port() != MoveHubPortC {
		t.Errorf("Vision = %v %v, want port C", v, ok)
	}
	if p, ok := m.PortC(); !ok || p.Kind() != KindVisionSensor {
		t.Errorf("PortC = %v %v", p, ok)
	}
	if motor, ok := m.MotorExternal(); !ok || motor.Port() != MoveHubPortD {
		t.Errorf("MotorExternal = %v %v, want port D", motor, ok)
	}

	f.deliver(detachFrame(MoveHubPortD))
	if _, ok := m.MotorExternal(); ok {
		t.Error("MotorExternal still bound after detach")
	}
	if _, ok := m.PortD(); ok {
		t.Error("PortD still bound after detach")
	}
	if _, ok := m.Vision(); !ok {
		t.Error("Vision unbound by unrelated detach")
	}
}

func TestMoveHub_WrongKindOnMotorPort(t *testing.T) {
	f := newFakeTransport(t)
	f.setResponder(newFakeHub().respond)
	m := newTestMoveHub(t, f, WithAttachPoll(time.Millisecond, 1))

	f.deliver(attachFrame(MoveHubPortA, lpf2.DevRGBLight))

	if _, ok := m.MotorA(); ok {
		t.Error("MotorA returned a non-motor peripheral")
	}
	if p, ok := m.Slot(SlotMotorA); !ok || p.Kind() != KindLED {
		t.Errorf("Slot(SlotMotorA) = %v %v", p, ok)
	}
}

// ============================================================
// Train Hub Tests
// ============================================================

func TestTrainHub(t *testing.T) {
	f := newFakeTransport(t)
	fh := newFakeHub()
	fh.name = "City Train"
	fh.battery = 64
	f.setResponder(fh.respond)
	f.onEnable = [][]byte{
		attachFrame(TrainHubPortA, lpf2.DevMotor),
		attachFrame(TrainHubPortB, lpf2.DevMotorExternalTacho),
	}
	th, err := NewTrainHub(context.Background(), f, testLogger())
	if err != nil {
		t.Fatalf("NewTrainHub error: %v", err)
	}
	defer th.teardown(ErrHubClosed)

	if th.Config().Name != TrainHubName {
		t.Errorf("Name = %q, want %q", th.Config().Name, TrainHubName)
	}
	st := th.Status()
	if st.Name != "City Train" {
		t.Errorf("Status.Name = %q, want %q", st.Name, "City Train")
	}
	if st.MAC.String() != "00:16:53:a4:cd:7e" {
		t.Errorf("Status.MAC = %s, want 00:16:53:a4:cd:7e", st.MAC)
	}
	if st.BatteryPercent != 64 {
		t.Errorf("Status.BatteryPercent = %d, want 64", st.BatteryPercent)
	}
	if st.LowVoltage {
		t.Error("Status.LowVoltage = true, want false")
	}

	eventually(t, "motor A", func() bool { _, ok := th.MotorA(); return ok })
	eventually(t, "motor B", func() bool { _, ok := th.MotorB(); return ok })
}

func TestTrainHub_LowVoltageIsDiagnostic(t *testing.T) {
	f := newFakeTransport(t)
	fh := newFakeHub()
	fh.lowVoltage = true
	f.setResponder(fh.respond)

	diag := &diagnostics{}
	th, err := NewTrainHub(context.Background(), f, testLogger(), WithDiagnostics(diag.record))
	if err != nil {
		t.Fatalf("NewTrainHub error: %v", err)
	}
	defer th.teardown(ErrHubClosed)

	if !th.Status().LowVoltage {
		t.Error("Status.LowVoltage = false, want true")
	}
	if !diag.has(ErrLowVoltage) {
		t.Error("low voltage not reported as a diagnostic")
	}
}

func TestTrainHub_HandshakeFailure(t *testing.T) {
	f := newFakeTransport(t)
	fh := newFakeHub()
	fh.reject[lpf2.MsgHubProperties] = lpf2.ErrCodeWrongCommand
	f.setResponder(fh.respond)

	_, err := NewTrainHub(context.Background(), f, testLogger())
	var cerr *CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("NewTrainHub error = %v, want *CommandError", err)
	}
	if f.IsAlive() {
		t.Error("transport left connected after failed handshake")
	}
}

func TestSlotTable_ByTypeSkipsBuiltinPorts(t *testing.T) {
	f := newFakeTransport(t)
	h := newTestHub(t, f)
	slots := newSlotTable(moveHubLayout)
	h.OnAttach(slots.bind)

	f.deliver(attachFrame(MoveHubPortB, lpf2.DevMotorExternalTacho))
	if _, ok := slots.get(SlotMotorExternal); ok {
		t.Error("motor on port B bound as external")
	}
	if missing := slots.missing(); len(missing) != len(moveHubLayout.baseline)-1 {
		t.Errorf("missing = %v", missing)
	}
}
