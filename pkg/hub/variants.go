// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// Default advertised names used to find each hub variant
const (
	MoveHubName  = "LEGO Move Hub"
	TrainHubName = "TrainHub"
)

// Move hub ports
const (
	MoveHubPortA       lpf2.Port = 0x00
	MoveHubPortB       lpf2.Port = 0x01
	MoveHubPortC       lpf2.Port = 0x02
	MoveHubPortD       lpf2.Port = 0x03
	MoveHubPortAB      lpf2.Port = 0x10
	MoveHubPortLED     lpf2.Port = 0x32
	MoveHubPortTilt    lpf2.Port = 0x3A
	MoveHubPortCurrent lpf2.Port = 0x3B
	MoveHubPortVoltage lpf2.Port = 0x3C
)

// Train hub ports
const (
	TrainHubPortA       lpf2.Port = 0x00
	TrainHubPortB       lpf2.Port = 0x01
	TrainHubPortLED     lpf2.Port = 0x32
	TrainHubPortCurrent lpf2.Port = 0x3B
	TrainHubPortVoltage lpf2.Port = 0x3C
)

// Slot is a well-known peripheral position on a hub variant
type Slot int

// Slots
const (
	SlotMotorA Slot = iota
	SlotMotorB
	SlotMotorAB
	SlotPortC
	SlotPortD
	SlotLED
	SlotTilt
	SlotCurrent
	SlotVoltage
	SlotVision
	SlotMotorExternal
)

func (s Slot) String() string {
	switch s {
	case SlotMotorA:
		return "motor A"
	case SlotMotorB:
		return "motor B"
	case SlotMotorAB:
		return "motor AB"
	case SlotPortC:
		return "port C"
	case SlotPortD:
		return "port D"
	case SlotLED:
		return "led"
	case SlotTilt:
		return "tilt sensor"
	case SlotCurrent:
		return "current"
	case SlotVoltage:
		return "voltage"
	case SlotVision:
		return "vision sensor"
	case SlotMotorExternal:
		return "external motor"
	default:
		return fmt.Sprintf("slot %d", int(s))
	}
}

// layout is the fixed binding table of a hub variant
type layout struct {
	name     string
	ports    map[lpf2.Port]Slot
	byType   func(p Peripheral) (Slot, bool)
	baseline []Slot
}

var moveHubLayout = layout{
	name: MoveHubName,
	ports: map[lpf2.Port]Slot{
		MoveHubPortA:       SlotMotorA,
		MoveHubPortB:       SlotMotorB,
		MoveHubPortAB:      SlotMotorAB,
		MoveHubPortC:       SlotPortC,
		MoveHubPortD:       SlotPortD,
		MoveHubPortLED:     SlotLED,
		MoveHubPortTilt:    SlotTilt,
		MoveHubPortCurrent: SlotCurrent,
		MoveHubPortVoltage: SlotVoltage,
	},
	byType: func(p Peripheral) (Slot, bool) {
		switch p.Kind() {
		case KindVisionSensor:
			return SlotVision, true
		case KindEncodedMotor:
			switch p.Port() {
			case MoveHubPortA, MoveHubPortB, MoveHubPortAB:
				return 0, false
			}
			return SlotMotorExternal, true
		}
		return 0, false
	},
	baseline: []Slot{SlotMotorA, SlotMotorB, SlotMotorAB, SlotLED, SlotTilt, SlotCurrent, SlotVoltage},
}

var trainHubLayout = layout{
	name: TrainHubName,
	ports: map[lpf2.Port]Slot{
		TrainHubPortA:       SlotMotorA,
		TrainHubPortB:       SlotMotorB,
		TrainHubPortLED:     SlotLED,
		TrainHubPortCurrent: SlotCurrent,
		TrainHubPortVoltage: SlotVoltage,
	},
}

// slotTable holds the peripherals bound to a variant's slots. It is fed
// by attach and detach notifications.
type slotTable struct {
	layout layout

	mu    sync.RWMutex
	slots map[Slot]Peripheral
}

func newSlotTable(l layout) *slotTable {
	return &slotTable{layout: l, slots: make(map[Slot]Peripheral)}
}

func (t *slotTable) bind(p Peripheral) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot, ok := t.layout.ports[p.Port()]; ok {
		t.slots[slot] = p
	}
	if t.layout.byType != nil {
		if slot, ok := t.layout.byType(p); ok {
			t.slots[slot] = p
		}
	}
}

func (t *slotTable) unbind(p Peripheral) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for slot, bound := range t.slots {
		if bound == p {
			delete(t.slots, slot)
		}
	}
}

func (t *slotTable) get(s Slot) (Peripheral, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.slots[s]
	return p, ok
}

// missing returns the baseline slots that are still empty
func (t *slotTable) missing() []Slot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Slot
	for _, s := range t.layout.baseline {
		if _, ok := t.slots[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// slotAs returns the peripheral in slot s if it is a T
func slotAs[T Peripheral](t *slotTable, s Slot) (T, bool) {
	var zero T
	p, ok := t.get(s)
	if !ok {
		return zero, false
	}
	v, ok := p.(T)
	return v, ok
}

// PeripheralAs returns the peripheral on port as a T
func PeripheralAs[T Peripheral](h *Hub, port lpf2.Port) (T, error) {
	var zero T
	p, ok := h.Peripheral(port)
	if !ok {
		return zero, fmt.Errorf("%w: 0x%02X", ErrNoPeripheralOnPort, byte(port))
	}
	v, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrWrongPeripheral, p)
	}
	return v, nil
}

// Status is the result of the startup handshake
type Status struct {
	Name           string
	MAC            net.HardwareAddr
	BatteryPercent uint8
	LowVoltage     bool
}

// openVariant connects the transport if needed and starts a hub whose
// slots follow l. Slot hooks are registered before notifications are
// enabled so no attach event is missed.
func openVariant(ctx context.Context, t Transport, l layout, opts []Option) (*Hub, *slotTable, error) {
	h := New(t, append([]Option{WithName(l.name)}, opts...)...)

	if !t.IsAlive() {
		if err := t.Connect(ctx, h.cfg.MAC, h.cfg.Name); err != nil {
			h.teardown(fmt.Errorf("%w: connect: %v", ErrTransportFailure, err))
			return nil, nil, h.closeErr
		}
	}

	slots := newSlotTable(l)
	h.OnAttach(slots.bind)
	h.OnDetach(slots.unbind)

	if err := h.Start(ctx); err != nil {
		h.teardown(err)
		return nil, nil, err
	}
	return h, slots, nil
}

// ReadStatus performs the status handshake: name, hardware address, battery
// level and the low voltage alert. A raised alert is reported through the
// diagnostics hook and in the result, never as an error.
func (h *Hub) ReadStatus(ctx context.Context) (Status, error) {
	var st Status
	var err error

	if st.Name, err = h.Name(ctx); err != nil {
		return st, fmt.Errorf("read name: %w", err)
	}
	if st.MAC, err = h.MAC(ctx); err != nil {
		return st, fmt.Errorf("read mac: %w", err)
	}
	if st.BatteryPercent, err = h.BatteryPercent(ctx); err != nil {
		return st, fmt.Errorf("read battery: %w", err)
	}
	if st.LowVoltage, err = h.LowVoltage(ctx); err != nil {
		return st, fmt.Errorf("read low voltage alert: %w", err)
	}

	if st.LowVoltage {
		h.log.Warn("low voltage, check power source", "battery", st.BatteryPercent)
		h.diagnose(fmt.Errorf("%w: battery at %d%%", ErrLowVoltage, st.BatteryPercent))
	}
	h.log.Info("hub status", "name", st.Name, "mac", st.MAC.String(), "battery", st.BatteryPercent)
	return st, nil
}

// MoveHub is the BOOST move hub with its built-in motors and sensors bound
// to slots as they attach
type MoveHub struct {
	*Hub
	Button *Button

	slots  *slotTable
	status Status
}

// NewMoveHub connects t if it is not connected yet, waits for the built-in
// peripherals to attach and reads the hub status. Missing peripherals are
// logged once the poll budget runs out; the hub is usable regardless.
func NewMoveHub(ctx context.Context, t Transport, opts ...Option) (*MoveHub, error) {
	h, slots, err := openVariant(ctx, t, moveHubLayout, opts)
	if err != nil {
		return nil, err
	}
	m := &MoveHub{Hub: h, Button: NewButton(h), slots: slots}

	if err := m.waitForBaseline(ctx); err != nil {
		h.teardown(ErrHubClosed)
		return nil, err
	}

	m.status, err = h.ReadStatus(ctx)
	if err != nil {
		h.teardown(ErrHubClosed)
		return nil, err
	}
	return m, nil
}

// waitForBaseline polls until the baseline slots are bound or the budget
// is spent. Only cancellation is an error.
func (m *MoveHub) waitForBaseline(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.AttachPollInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		missing := m.slots.missing()
		if len(missing) == 0 {
			m.log.Debug("all built-in peripherals present")
			return nil
		}
		if i >= m.cfg.AttachPollBudget {
			m.log.Warn("built-in peripherals missing", "slots", fmt.Sprint(missing))
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		case <-m.Done():
			return m.Err()
		}
	}
}

// Status returns the handshake result from construction
func (m *MoveHub) Status() Status { return m.status }

// Slot returns the peripheral bound to s
func (m *MoveHub) Slot(s Slot) (Peripheral, bool) { return m.slots.get(s) }

// MotorA returns the built-in motor on port A
func (m *MoveHub) MotorA() (*EncodedMotor, bool) { return slotAs[*EncodedMotor](m.slots, SlotMotorA) }

// MotorB returns the built-in motor on port B
func (m *MoveHub) MotorB() (*EncodedMotor, bool) { return slotAs[*EncodedMotor](m.slots, SlotMotorB) }

// MotorAB returns the virtual port driving both built-in motors
func (m *MoveHub) MotorAB() (*EncodedMotor, bool) { return slotAs[*EncodedMotor](m.slots, SlotMotorAB) }

// MotorExternal returns an encoded motor attached to port C or D
func (m *MoveHub) MotorExternal() (*EncodedMotor, bool) {
	return slotAs[*EncodedMotor](m.slots, SlotMotorExternal)
}

// PortC returns whatever is attached to port C
func (m *MoveHub) PortC() (Peripheral, bool) { return m.slots.get(SlotPortC) }

// PortD returns whatever is attached to port D
func (m *MoveHub) PortD() (Peripheral, bool) { return m.slots.get(SlotPortD) }

// LED returns the hub light
func (m *MoveHub) LED() (*LED, bool) { return slotAs[*LED](m.slots, SlotLED) }

// Tilt returns the built-in tilt sensor
func (m *MoveHub) Tilt() (*TiltSensor, bool) { return slotAs[*TiltSensor](m.slots, SlotTilt) }

// Current returns the current sensor
func (m *MoveHub) Current() (*CurrentSensor, bool) { return slotAs[*CurrentSensor](m.slots, SlotCurrent) }

// Voltage returns the voltage sensor
func (m *MoveHub) Voltage() (*VoltageSensor, bool) { return slotAs[*VoltageSensor](m.slots, SlotVoltage) }

// Vision returns a vision sensor on any port
func (m *MoveHub) Vision() (*VisionSensor, bool) { return slotAs[*VisionSensor](m.slots, SlotVision) }

// TrainHub is the Powered Up train hub. It has no built-in peripherals to
// wait for.
type TrainHub struct {
	*Hub
	Button *Button

	slots  *slotTable
	status Status
}

// NewTrainHub connects t if it is not connected yet, starts the hub and
// reads the hub status
func NewTrainHub(ctx context.Context, t Transport, opts ...Option) (*TrainHub, error) {
	h, slots, err := openVariant(ctx, t, trainHubLayout, opts)
	if err != nil {
		return nil, err
	}
	th := &TrainHub{Hub: h, Button: NewButton(h), slots: slots}

	th.status, err = h.ReadStatus(ctx)
	if err != nil {
		h.teardown(ErrHubClosed)
		return nil, err
	}
	return th, nil
}

// Status returns the handshake result from construction
func (t *TrainHub) Status() Status { return t.status }

// Slot returns the peripheral bound to s
func (t *TrainHub) Slot(s Slot) (Peripheral, bool) { return t.slots.get(s) }

// MotorA returns the motor on port A, encoded or not
func (t *TrainHub) MotorA() (*Motor, bool) { return trainMotor(t.slots, SlotMotorA) }

// MotorB returns the motor on port B, encoded or not
func (t *TrainHub) MotorB() (*Motor, bool) { return trainMotor(t.slots, SlotMotorB) }

// LED returns the hub light
func (t *TrainHub) LED() (*LED, bool) { return slotAs[*LED](t.slots, SlotLED) }

func trainMotor(slots *slotTable, s Slot) (*Motor, bool) {
	p, ok := slots.get(s)
	if !ok {
		return nil, false
	}
	switch m := p.(type) {
	case *Motor:
		return m, true
	case *EncodedMotor:
		return &m.Motor, true
	}
	return nil, false
}
