// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// defaultDelta is the notification delta used when a port has no
// confirmed input format yet
const defaultDelta = 1

// Kind is the peripheral variant
type Kind int

// Peripheral kinds
const (
	KindGeneric Kind = iota
	KindMotor
	KindEncodedMotor
	KindLED
	KindTiltSensor
	KindVisionSensor
	KindCurrentSensor
	KindVoltageSensor
)

func (k Kind) String() string {
	switch k {
	case KindMotor:
		return "motor"
	case KindEncodedMotor:
		return "encoded motor"
	case KindLED:
		return "led"
	case KindTiltSensor:
		return "tilt sensor"
	case KindVisionSensor:
		return "vision sensor"
	case KindCurrentSensor:
		return "current sensor"
	case KindVoltageSensor:
		return "voltage sensor"
	default:
		return "generic"
	}
}

// Peripheral is a device attached to a hub port. The concrete type is one
// of *Generic, *Motor, *EncodedMotor, *LED, *TiltSensor, *VisionSensor,
// *CurrentSensor or *VoltageSensor.
type Peripheral interface {
	Port() lpf2.Port
	DeviceType() lpf2.DeviceType
	Kind() Kind

	// VirtualPorts returns the constituent ports of a virtual port
	VirtualPorts() ([2]lpf2.Port, bool)

	// Mode returns the input mode last confirmed by the hub
	Mode() (uint8, bool)

	SetPortMode(ctx context.Context, mode uint8, notify bool, delta uint32) error
	Subscribe(ctx context.Context, mode uint8, granularity uint32, fn func(Reading)) (*Subscription, error)
	Unsubscribe(ctx context.Context, sub *Subscription) error
	ReadValue(ctx context.Context, mode uint8) (Reading, error)

	String() string

	base() *device
}

// Reading is one sensor value delivered to subscribers. Values holds the
// decoded quantities for the mode; Raw is the payload as received.
// Readings are shared between subscribers and must not be modified.
type Reading struct {
	Port     lpf2.Port
	Mode     uint8
	Values   []float64
	Raw      []byte
	Combined bool
}

// Subscription is a registered value callback
type Subscription struct {
	mode        uint8
	granularity uint32
	fn          func(Reading)
}

// Mode returns the subscribed mode
func (s *Subscription) Mode() uint8 { return s.mode }

// decodeFunc turns a value payload into the quantities for a mode
type decodeFunc func(mode uint8, payload []byte) ([]float64, error)

// variant builds one kind of peripheral
type variant struct {
	kind   Kind
	decode decodeFunc
	build  func(d *device) Peripheral
}

var genericVariant = variant{
	kind:  KindGeneric,
	build: func(d *device) Peripheral { return &Generic{device: d} },
}

// variants maps attach device types to peripheral variants. Types not
// listed attach as Generic.
var variants = map[lpf2.DeviceType]variant{
	lpf2.DevMotor: {
		kind:   KindMotor,
		decode: decodeMotor,
		build:  func(d *device) Peripheral { return &Motor{device: d} },
	},
	lpf2.DevMotorExternalTacho: encodedMotorVariant,
	lpf2.DevMotorInternalTacho: encodedMotorVariant,
	lpf2.DevVisionSensor: {
		kind:   KindVisionSensor,
		decode: decodeVision,
		build:  func(d *device) Peripheral { return &VisionSensor{device: d} },
	},
	lpf2.DevRGBLight: {
		kind:   KindLED,
		decode: decodeLED,
		build:  func(d *device) Peripheral { return &LED{device: d} },
	},
	lpf2.DevTiltExternal: tiltVariant,
	lpf2.DevTiltInternal: tiltVariant,
	lpf2.DevCurrent: {
		kind:   KindCurrentSensor,
		decode: decodeCurrent,
		build:  func(d *device) Peripheral { return &CurrentSensor{device: d} },
	},
	lpf2.DevVoltage: {
		kind:   KindVoltageSensor,
		decode: decodeVoltage,
		build:  func(d *device) Peripheral { return &VoltageSensor{device: d} },
	},
}

var encodedMotorVariant = variant{
	kind:   KindEncodedMotor,
	decode: decodeEncodedMotor,
	build:  func(d *device) Peripheral { return &EncodedMotor{Motor: Motor{device: d}} },
}

var tiltVariant = variant{
	kind:   KindTiltSensor,
	decode: decodeTilt,
	build:  func(d *device) Peripheral { return &TiltSensor{device: d} },
}

// device is the state shared by every peripheral variant
type device struct {
	hub     *Hub
	port    lpf2.Port
	devType lpf2.DeviceType
	kind    Kind
	decode  decodeFunc
	log     *slog.Logger
	queue   *dispatcher

	virtual   [2]lpf2.Port
	isVirtual bool

	mu          sync.Mutex
	format      lpf2.PortInputFmtSingle
	formatKnown bool
	subs        []*Subscription
	detached    bool
}

func newDevice(h *Hub, port lpf2.Port, devType lpf2.DeviceType, v variant) *device {
	return &device{
		hub:     h,
		port:    port,
		devType: devType,
		kind:    v.kind,
		decode:  v.decode,
		log:     ComponentLogger(h.cfg.Logger, ComponentPeripheral).With("port", port),
		queue:   newDispatcher(h.cfg.QueueDepth),
	}
}

func (d *device) base() *device { return d }

// Port returns the hub port
func (d *device) Port() lpf2.Port { return d.port }

// DeviceType returns the device type from the attach event
func (d *device) DeviceType() lpf2.DeviceType { return d.devType }

// Kind returns the peripheral variant
func (d *device) Kind() Kind { return d.kind }

// VirtualPorts returns the constituent ports of a virtual port
func (d *device) VirtualPorts() ([2]lpf2.Port, bool) { return d.virtual, d.isVirtual }

func (d *device) String() string {
	if d.isVirtual {
		return fmt.Sprintf("%s on port 0x%02X (0x%02X+0x%02X)", d.kind, byte(d.port), byte(d.virtual[0]), byte(d.virtual[1]))
	}
	return fmt.Sprintf("%s on port 0x%02X", d.kind, byte(d.port))
}

// Mode returns the input mode last confirmed by the hub
func (d *device) Mode() (uint8, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format.Mode, d.formatKnown
}

func (d *device) checkAttached() error {
	if d.detached {
		return fmt.Errorf("%w: 0x%02X", ErrNoPeripheralOnPort, byte(d.port))
	}
	return nil
}

// SetPortMode selects the input mode and notification settings of the
// port. Nothing is sent when the hub already confirmed the same settings.
// A port with live subscriptions keeps their mode.
func (d *device) SetPortMode(ctx context.Context, mode uint8, notify bool, delta uint32) error {
	d.mu.Lock()
	if err := d.checkAttached(); err != nil {
		d.mu.Unlock()
		return err
	}
	if len(d.subs) > 0 && d.subs[0].mode != mode {
		current := d.subs[0].mode
		d.mu.Unlock()
		return fmt.Errorf("%w: port 0x%02X subscribed in mode %d", ErrModeBusy, byte(d.port), current)
	}
	same := d.formatKnown && d.format.Mode == mode && d.format.UpdateEnabled == notify && d.format.Delta == delta
	d.mu.Unlock()
	if same {
		return nil
	}

	reply, err := d.hub.Send(ctx, lpf2.NewPortInputFmtSetup(d.port, mode, delta, notify))
	if err != nil {
		return fmt.Errorf("set port 0x%02X mode %d: %w", byte(d.port), mode, err)
	}
	d.confirmFormat(reply.(*lpf2.PortInputFmtSingle))
	return nil
}

// ensureMode switches the input mode for an output command, keeping the
// notification settings
func (d *device) ensureMode(ctx context.Context, mode uint8) error {
	d.mu.Lock()
	notify, delta := d.format.UpdateEnabled, d.format.Delta
	if !d.formatKnown {
		delta = defaultDelta
	}
	d.mu.Unlock()

	return d.SetPortMode(ctx, mode, notify, delta)
}

func (d *device) confirmFormat(f *lpf2.PortInputFmtSingle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.format = *f
	d.formatKnown = true
}

// Subscribe registers fn for values in mode. The first subscription turns
// on port notifications with granularity as the delta; later ones must use
// the same mode.
func (d *device) Subscribe(ctx context.Context, mode uint8, granularity uint32, fn func(Reading)) (*Subscription, error) {
	sub := &Subscription{mode: mode, granularity: granularity, fn: fn}

	d.mu.Lock()
	if err := d.checkAttached(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if len(d.subs) > 0 && d.subs[0].mode != mode {
		current := d.subs[0].mode
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: port 0x%02X subscribed in mode %d", ErrModeBusy, byte(d.port), current)
	}
	first := len(d.subs) == 0
	d.subs = append(d.subs, sub)
	d.mu.Unlock()

	if first {
		if err := d.SetPortMode(ctx, mode, true, granularity); err != nil {
			d.removeSub(sub)
			return nil, err
		}
	}
	d.log.Debug("subscribed", "mode", mode, "granularity", granularity)
	return sub, nil
}

// Unsubscribe removes sub. Port notifications are turned off when the last
// subscription goes.
func (d *device) Unsubscribe(ctx context.Context, sub *Subscription) error {
	found, last := d.removeSub(sub)
	if !found {
		return nil
	}
	d.log.Debug("unsubscribed", "mode", sub.mode)
	if !last {
		return nil
	}

	d.mu.Lock()
	detached := d.detached
	d.mu.Unlock()
	if detached {
		return nil
	}
	return d.SetPortMode(ctx, sub.mode, false, sub.granularity)
}

func (d *device) removeSub(sub *Subscription) (found, last bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s == sub {
			d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
			return true, len(d.subs) == 0
		}
	}
	return false, false
}

// ReadValue reads the current value of the port in mode
func (d *device) ReadValue(ctx context.Context, mode uint8) (Reading, error) {
	if err := d.ensureMode(ctx, mode); err != nil {
		return Reading{}, err
	}
	reply, err := d.hub.Send(ctx, lpf2.NewPortValueRequest(d.port))
	if err != nil {
		return Reading{}, err
	}
	return d.reading(mode, reply.(*lpf2.PortValueSingle).Payload, false), nil
}

// sendOutput sends an output command and waits for the hub to report it done
func (d *device) sendOutput(ctx context.Context, msg *lpf2.PortOutput, extra time.Duration) error {
	d.mu.Lock()
	err := d.checkAttached()
	d.mu.Unlock()
	if err != nil {
		return err
	}
	_, err = d.hub.SendWithin(ctx, msg, extra)
	return err
}

// writeModeData sends WriteDirectModeData after selecting mode
func (d *device) writeModeData(ctx context.Context, mode uint8, data []byte) error {
	if err := d.ensureMode(ctx, mode); err != nil {
		return err
	}
	return d.sendOutput(ctx, lpf2.NewWriteDirectModeData(d.port, mode, data), 0)
}

// enqueue queues a value for delivery. The value is tagged with the mode
// confirmed when it arrived; it runs on the notification goroutine, in
// order with input format confirmations.
func (d *device) enqueue(payload []byte, combined bool) bool {
	d.mu.Lock()
	mode := d.format.Mode
	d.mu.Unlock()
	return d.queue.post(func() { d.deliver(mode, payload, combined) })
}

// deliver hands a value to the subscribers of mode. Values left over from
// an earlier subscription in another mode are dropped.
func (d *device) deliver(mode uint8, payload []byte, combined bool) {
	d.mu.Lock()
	if len(d.subs) == 0 || d.subs[0].mode != mode {
		d.mu.Unlock()
		return
	}
	subs := append([]*Subscription(nil), d.subs...)
	d.mu.Unlock()

	r := d.reading(mode, payload, combined)
	for _, sub := range subs {
		d.invoke(sub, r)
	}
}

func (d *device) reading(mode uint8, payload []byte, combined bool) Reading {
	r := Reading{Port: d.port, Mode: mode, Raw: payload, Combined: combined}
	if combined || d.decode == nil {
		return r
	}
	values, err := d.decode(mode, payload)
	if err != nil {
		d.log.Debug("cannot decode value", "mode", mode, "data", fmt.Sprintf("% X", payload), "error", err)
		return r
	}
	r.Values = values
	return r
}

func (d *device) invoke(sub *Subscription, r Reading) {
	defer func() {
		if rec := recover(); rec != nil {
			d.hub.stats.update(func(s *Statistics) { s.CallbackFailures++ })
			d.log.Error("subscriber callback panic", "panic", rec)
			d.hub.diagnose(fmt.Errorf("callback on port 0x%02X panicked: %v", byte(d.port), rec))
		}
	}()
	sub.fn(r)
}

func (d *device) stop() {
	d.mu.Lock()
	d.detached = true
	d.subs = nil
	d.mu.Unlock()
	d.queue.stop()
}

// Generic is a peripheral without a dedicated variant. Its readings carry
// the raw payload only.
type Generic struct {
	*device
}
