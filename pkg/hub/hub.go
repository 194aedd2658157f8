// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hub implements the LPF2 hub orchestrator: it owns a Transport,
// keeps the registry of attached peripherals, correlates synchronous
// requests with their replies and routes sensor values to subscribers.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// closeTimeout bounds the disconnect request sent by Close
const closeTimeout = time.Second

// Handler receives upstream messages of one type
type Handler func(msg lpf2.Upstream)

type handlerEntry struct {
	msgType lpf2.MessageType
	fn      Handler
}

// Hub is a connection to one physical hub
type Hub struct {
	cfg       Config
	transport Transport
	log       *slog.Logger
	registry  *registry
	corr      correlator
	stats     *stats

	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   []handlerEntry

	listenersMu     sync.RWMutex
	attachListeners []func(Peripheral)
	detachListeners []func(Peripheral)

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// New creates a hub on a connected transport and registers the baseline
// message handlers. Call Start to enable notifications.
func New(t Transport, opts ...Option) *Hub {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()

	h := &Hub{
		cfg:       cfg,
		transport: t,
		log:       ComponentLogger(cfg.Logger, ComponentHub),
		stats:     newStats(),
		closed:    make(chan struct{}),
	}
	h.registry = newRegistry(h)

	h.Handle(lpf2.MsgHubAttachedIO, h.registry.handleAttachedIO)
	h.Handle(lpf2.MsgPortValueSingle, h.registry.handleValue)
	h.Handle(lpf2.MsgPortValueCombined, h.registry.handleValue)
	h.Handle(lpf2.MsgPortInputFmtSingle, h.registry.handleInputFormat)
	h.Handle(lpf2.MsgGenericError, h.handleError)
	h.Handle(lpf2.MsgHubAction, h.handleAction)

	t.SetNotifyHandler(h.onNotification)
	if dn, ok := t.(DisconnectNotifier); ok {
		dn.SetDisconnectHandler(func(err error) {
			go h.teardown(fmt.Errorf("%w: %v", ErrTransportFailure, err))
		})
	}

	return h
}

// Start enables hub notifications after the configured settle delay
func (h *Hub) Start(ctx context.Context) error {
	if h.cfg.SettleDelay > 0 {
		select {
		case <-time.After(h.cfg.SettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := h.transport.EnableNotifications(); err != nil {
		return fmt.Errorf("%w: enable notifications: %v", ErrTransportFailure, err)
	}
	h.log.Debug("notifications enabled")
	return nil
}

// Config returns the hub configuration
func (h *Hub) Config() Config { return h.cfg }

// Handle registers fn for messages of type t. Handlers run on the
// notification goroutine in registration order and must not block.
func (h *Hub) Handle(t lpf2.MessageType, fn Handler) {
	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers = append(h.handlers, handlerEntry{msgType: t, fn: fn})
}

// OnAttach registers fn to be called after a peripheral is registered
func (h *Hub) OnAttach(fn func(Peripheral)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.attachListeners = append(h.attachListeners, fn)
}

// OnDetach registers fn to be called after a peripheral is removed
func (h *Hub) OnDetach(fn func(Peripheral)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.detachListeners = append(h.detachListeners, fn)
}

// Send writes msg to the hub. Messages that need a reply block until the
// reply arrives, the reply timeout passes or ctx is done; others return a
// nil reply as soon as they are written.
func (h *Hub) Send(ctx context.Context, msg lpf2.Downstream) (lpf2.Upstream, error) {
	return h.SendWithin(ctx, msg, 0)
}

// SendWithin is Send with the reply bound extended by extra, for commands
// whose reply only comes once a physical movement completes
func (h *Hub) SendWithin(ctx context.Context, msg lpf2.Downstream, extra time.Duration) (lpf2.Upstream, error) {
	if h.isClosed() {
		return nil, h.closeErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := lpf2.Encode(msg)
	if err != nil {
		return nil, err
	}

	if !msg.NeedsReply() {
		return nil, h.write(data)
	}

	p, err := h.corr.arm(msg)
	if err != nil {
		return nil, err
	}
	if err := h.write(data); err != nil {
		h.corr.disarm(p)
		return nil, err
	}

	timer := time.NewTimer(h.cfg.ReplyTimeout + extra)
	defer timer.Stop()

	select {
	case r := <-p.done:
		return h.finish(msg, r)
	case <-timer.C:
		if !h.corr.disarm(p) {
			return h.finish(msg, <-p.done)
		}
		h.stats.update(func(s *Statistics) { s.ReplyTimeouts++ })
		h.log.Warn("reply timeout", "request", lpf2.FormatMessageType(msg.Type()))
		return nil, fmt.Errorf("%w: %s", ErrReplyTimeout, lpf2.FormatMessageType(msg.Type()))
	case <-ctx.Done():
		if !h.corr.disarm(p) {
			return h.finish(msg, <-p.done)
		}
		return nil, ctx.Err()
	}
}

func (h *Hub) finish(msg lpf2.Downstream, r result) (lpf2.Upstream, error) {
	if r.err != nil {
		var cerr *CommandError
		if errors.As(r.err, &cerr) {
			h.stats.update(func(s *Statistics) { s.CommandErrors++ })
			h.log.Warn("command rejected", "request", lpf2.FormatMessageType(msg.Type()), "code", lpf2.FormatErrorCode(cerr.Code()))
		}
		return nil, r.err
	}
	h.stats.update(func(s *Statistics) { s.Replies++ })
	return r.reply, nil
}

func (h *Hub) write(data []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if err := h.transport.Write(lpf2.HardwareHandle, data); err != nil {
		return fmt.Errorf("%w: write: %v", ErrTransportFailure, err)
	}
	h.stats.update(func(s *Statistics) { s.FramesSent++ })
	h.log.Debug("frame sent", "data", fmt.Sprintf("% X", data))
	return nil
}

// onNotification is the transport's notify handler
func (h *Hub) onNotification(handle uint16, data []byte) {
	if h.isClosed() {
		return
	}
	h.stats.update(func(s *Statistics) { s.TotalFrames++ })

	msg, err := lpf2.Decode(data)
	if err != nil {
		h.stats.update(func(s *Statistics) { s.MalformedFrames++ })
		h.log.Warn("dropping frame", "handle", handle, "data", fmt.Sprintf("% X", data), "error", err)
		h.diagnose(err)
		return
	}
	h.stats.update(func(s *Statistics) { s.DecodedFrames++ })

	// The waiter is woken after dispatch so registry changes carried by
	// the reply are visible when Send returns.
	p := h.corr.claim(msg)
	h.dispatch(msg)
	if p != nil {
		p.resolve(msg)
		return
	}

	if gerr, ok := msg.(*lpf2.GenericError); ok {
		h.stats.update(func(s *Statistics) { s.CommandErrors++ })
		h.diagnose(&CommandError{Request: gerr.Command, Reply: gerr})
	}
}

func (h *Hub) dispatch(msg lpf2.Upstream) {
	h.handlersMu.RLock()
	handlers := make([]Handler, 0, len(h.handlers))
	for _, e := range h.handlers {
		if e.msgType == msg.Type() {
			handlers = append(handlers, e.fn)
		}
	}
	h.handlersMu.RUnlock()

	for _, fn := range handlers {
		h.callHandler(fn, msg)
	}
}

func (h *Hub) callHandler(fn Handler, msg lpf2.Upstream) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("message handler panic", "type", lpf2.FormatMessageType(msg.Type()), "panic", r)
		}
	}()
	fn(msg)
}

func (h *Hub) handleError(msg lpf2.Upstream) {
	gerr := msg.(*lpf2.GenericError)
	h.log.Debug("generic error", "message", gerr.Message())
}

func (h *Hub) handleAction(msg lpf2.Upstream) {
	action := msg.(*lpf2.HubAction)
	switch action.Action {
	case lpf2.ActionUpstreamDisconnect:
		h.log.Warn("hub disconnects")
		go h.teardown(fmt.Errorf("%w: hub disconnected", ErrHubClosed))
	case lpf2.ActionUpstreamShutdown:
		h.log.Warn("hub switches off")
		go h.teardown(fmt.Errorf("%w: hub switched off", ErrHubClosed))
	}
}

func (h *Hub) diagnose(err error) {
	if h.cfg.Diagnostics != nil {
		h.cfg.Diagnostics(err)
	}
}

func (h *Hub) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

// Done is closed when the hub is torn down
func (h *Hub) Done() <-chan struct{} { return h.closed }

// Err returns the teardown reason, or nil while the hub is running
func (h *Hub) Err() error {
	if !h.isClosed() {
		return nil
	}
	return h.closeErr
}

// teardown releases waiters, detaches every peripheral and drops the
// transport. Only the first call has an effect.
func (h *Hub) teardown(reason error) {
	h.closeOnce.Do(func() {
		h.closeErr = reason
		close(h.closed)

		h.corr.close(reason)
		for _, p := range h.registry.clear() {
			h.notifyDetach(p)
		}

		h.transport.SetNotifyHandler(func(uint16, []byte) {})
		if h.transport.IsAlive() {
			if err := h.transport.Disconnect(); err != nil {
				h.log.Warn("transport disconnect failed", "error", err)
			}
		}
		h.log.Info("hub closed", "reason", reason)
	})
}

// Close asks the hub to disconnect, then tears down. It is safe to call
// more than once.
func (h *Hub) Close(ctx context.Context) error {
	if h.isClosed() {
		return nil
	}

	if h.transport.IsAlive() && !h.corr.armed() {
		ctx, cancel := context.WithTimeout(ctx, closeTimeout)
		_, err := h.Send(ctx, lpf2.NewHubAction(lpf2.ActionDisconnect))
		cancel()
		if err != nil && !errors.Is(err, ErrHubClosed) {
			h.log.Debug("disconnect request failed", "error", err)
		}
	}

	h.teardown(ErrHubClosed)
	return nil
}

// Disconnect asks the hub to drop the connection and waits for it to confirm
func (h *Hub) Disconnect(ctx context.Context) error {
	_, err := h.Send(ctx, lpf2.NewHubAction(lpf2.ActionDisconnect))
	return err
}

// SwitchOff asks the hub to power down and waits for it to confirm
func (h *Hub) SwitchOff(ctx context.Context) error {
	_, err := h.Send(ctx, lpf2.NewHubAction(lpf2.ActionSwitchOff))
	return err
}

// Statistics returns a snapshot of the hub counters
func (h *Hub) Statistics() Statistics { return h.stats.snapshot() }

// ResetStatistics zeroes the hub counters
func (h *Hub) ResetStatistics() { h.stats.reset() }

// Property requests a hub property
func (h *Hub) Property(ctx context.Context, prop lpf2.HubProperty) (*lpf2.HubProperties, error) {
	reply, err := h.Send(ctx, lpf2.NewPropertyRequest(prop))
	if err != nil {
		return nil, err
	}
	return reply.(*lpf2.HubProperties), nil
}

// Name returns the hub's advertised name
func (h *Hub) Name(ctx context.Context) (string, error) {
	p, err := h.Property(ctx, lpf2.PropAdvertiseName)
	if err != nil {
		return "", err
	}
	return p.Name(), nil
}

// MAC returns the hub's primary hardware address
func (h *Hub) MAC(ctx context.Context) (net.HardwareAddr, error) {
	p, err := h.Property(ctx, lpf2.PropPrimaryMAC)
	if err != nil {
		return nil, err
	}
	return p.MAC(), nil
}

// BatteryPercent returns the battery charge level
func (h *Hub) BatteryPercent(ctx context.Context) (uint8, error) {
	p, err := h.Property(ctx, lpf2.PropBatteryPercent)
	if err != nil {
		return 0, err
	}
	v, ok := p.Uint8()
	if !ok {
		return 0, fmt.Errorf("%w: empty battery update", lpf2.ErrMalformedMessage)
	}
	return v, nil
}

// LowVoltage reports whether the hub raises its low voltage alert
func (h *Hub) LowVoltage(ctx context.Context) (bool, error) {
	reply, err := h.Send(ctx, lpf2.NewAlertRequest(lpf2.AlertLowVoltage))
	if err != nil {
		return false, err
	}
	return !reply.(*lpf2.HubAlert).OK(), nil
}

// CombinePorts joins two ports into a virtual port and returns the
// peripheral registered for it
func (h *Hub) CombinePorts(ctx context.Context, a, b lpf2.Port) (Peripheral, error) {
	reply, err := h.Send(ctx, lpf2.NewVirtualPortConnect(a, b))
	if err != nil {
		return nil, err
	}
	port := reply.(*lpf2.AttachedIO).Port
	p, ok := h.Peripheral(port)
	if !ok {
		return nil, fmt.Errorf("%w: virtual port 0x%02X", ErrNoPeripheralOnPort, byte(port))
	}
	return p, nil
}

// SplitPort dissolves a virtual port
func (h *Hub) SplitPort(ctx context.Context, port lpf2.Port) error {
	_, err := h.Send(ctx, lpf2.NewVirtualPortDisconnect(port))
	return err
}

// PortInfo requests mode or combination information for a port
func (h *Hub) PortInfo(ctx context.Context, port lpf2.Port, info lpf2.PortInfoType) (*lpf2.PortInfo, error) {
	if info == lpf2.PortInfoValue {
		return nil, fmt.Errorf("port value requests are answered by ReadValue")
	}
	reply, err := h.Send(ctx, &lpf2.PortInfoRequest{Port: port, InfoType: info})
	if err != nil {
		return nil, err
	}
	return reply.(*lpf2.PortInfo), nil
}

// PortModeInfo requests information about one mode of a port
func (h *Hub) PortModeInfo(ctx context.Context, port lpf2.Port, mode uint8, info lpf2.ModeInfoType) (*lpf2.PortModeInfo, error) {
	reply, err := h.Send(ctx, lpf2.NewPortModeInfoRequest(port, mode, info))
	if err != nil {
		return nil, err
	}
	return reply.(*lpf2.PortModeInfo), nil
}

// Peripheral returns the peripheral attached to port
func (h *Hub) Peripheral(port lpf2.Port) (Peripheral, bool) {
	return h.registry.get(port)
}

// Peripherals returns every attached peripheral ordered by port
func (h *Hub) Peripherals() []Peripheral {
	return h.registry.list()
}

func (h *Hub) notifyAttach(p Peripheral) {
	h.listenersMu.RLock()
	listeners := append([]func(Peripheral){}, h.attachListeners...)
	h.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(p)
	}
}

func (h *Hub) notifyDetach(p Peripheral) {
	h.listenersMu.RLock()
	listeners := append([]func(Peripheral){}, h.detachListeners...)
	h.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(p)
	}
}
