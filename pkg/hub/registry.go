// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// registry maps ports to attached peripherals. It is mutated only from the
// notification goroutine and read from both sides.
type registry struct {
	hub *Hub
	log *slog.Logger

	mu          sync.RWMutex
	peripherals map[lpf2.Port]Peripheral
}

func newRegistry(h *Hub) *registry {
	return &registry{
		hub:         h,
		log:         ComponentLogger(h.cfg.Logger, ComponentRegistry),
		peripherals: make(map[lpf2.Port]Peripheral),
	}
}

func (r *registry) get(port lpf2.Port) (Peripheral, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peripherals[port]
	return p, ok
}

func (r *registry) list() []Peripheral {
	r.mu.RLock()
	list := make([]Peripheral, 0, len(r.peripherals))
	for _, p := range r.peripherals {
		list = append(list, p)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Port() < list[j].Port() })
	return list
}

func (r *registry) handleAttachedIO(msg lpf2.Upstream) {
	io := msg.(*lpf2.AttachedIO)
	if io.Event == lpf2.EventDetached {
		r.detach(io.Port)
		return
	}
	r.attach(io)
}

func (r *registry) attach(io *lpf2.AttachedIO) {
	v, known := variants[io.DeviceType]
	if !known {
		v = genericVariant
		r.log.Info("no dedicated variant for device type", "type", fmt.Sprintf("0x%04X", uint16(io.DeviceType)), "port", io.Port)
		r.hub.diagnose(fmt.Errorf("%w: 0x%04X on port 0x%02X", ErrUnknownDeviceType, uint16(io.DeviceType), byte(io.Port)))
	}

	d := newDevice(r.hub, io.Port, io.DeviceType, v)
	if io.Event == lpf2.EventAttachedVirtual {
		d.virtual = io.VirtualPorts
		d.isVirtual = true
	}
	p := v.build(d)

	r.mu.Lock()
	old, replaced := r.peripherals[io.Port]
	r.peripherals[io.Port] = p
	r.mu.Unlock()

	if replaced {
		r.log.Warn("port attached twice, replacing peripheral", "port", io.Port)
		old.base().stop()
		r.hub.notifyDetach(old)
	}

	r.hub.stats.update(func(s *Statistics) { s.Attaches++ })
	r.log.Info("attached peripheral", "port", io.Port, "kind", v.kind, "type", lpf2.FormatDeviceType(io.DeviceType), "virtual", d.isVirtual)
	r.hub.notifyAttach(p)
}

func (r *registry) detach(port lpf2.Port) {
	r.mu.Lock()
	p, ok := r.peripherals[port]
	delete(r.peripherals, port)
	r.mu.Unlock()

	if !ok {
		r.log.Warn("detach for port with no peripheral", "port", port)
		return
	}

	p.base().stop()
	r.hub.stats.update(func(s *Statistics) { s.Detaches++ })
	r.log.Info("detached peripheral", "port", port, "kind", p.Kind())
	r.hub.notifyDetach(p)
}

// clear removes and stops every peripheral, returning them
func (r *registry) clear() []Peripheral {
	r.mu.Lock()
	removed := make([]Peripheral, 0, len(r.peripherals))
	for port, p := range r.peripherals {
		removed = append(removed, p)
		delete(r.peripherals, port)
	}
	r.mu.Unlock()

	for _, p := range removed {
		p.base().stop()
	}
	return removed
}

func (r *registry) handleValue(msg lpf2.Upstream) {
	var (
		port     lpf2.Port
		payload  []byte
		combined bool
	)
	switch m := msg.(type) {
	case *lpf2.PortValueSingle:
		port, payload = m.Port, m.Payload
	case *lpf2.PortValueCombined:
		port, payload, combined = m.Port, m.Payload, true
	default:
		return
	}

	p, ok := r.get(port)
	if !ok {
		r.hub.stats.update(func(s *Statistics) { s.OrphanValues++ })
		r.log.Debug("value for port with no peripheral", "port", port)
		r.hub.diagnose(fmt.Errorf("%w: value on port 0x%02X", ErrNoPeripheralOnPort, byte(port)))
		return
	}

	r.hub.stats.update(func(s *Statistics) { s.SensorValues++ })
	if !p.base().enqueue(payload, combined) {
		r.hub.stats.update(func(s *Statistics) { s.DroppedValues++ })
		r.log.Debug("value queue full, dropping", "port", port)
	}
}

func (r *registry) handleInputFormat(msg lpf2.Upstream) {
	f := msg.(*lpf2.PortInputFmtSingle)
	p, ok := r.get(f.Port)
	if !ok {
		r.log.Debug("input format for port with no peripheral", "port", f.Port)
		return
	}
	p.base().confirmFormat(f)
}
