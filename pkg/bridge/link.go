// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Thermoquad/hubctl/pkg/hub"
	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// Link is a hub transport over a bridge connection. The bridge owns the BLE
// connection to the hub; the link relays GATT writes and notifications as
// envelopes.
type Link struct {
	conn Conn
	log  *slog.Logger

	mu           sync.Mutex
	handler      hub.NotifyHandler
	onDisconnect func(error)
	alive        bool
	closed       bool
	pending      chan ConnectStatus

	done chan struct{}
}

// LinkOption configures a Link
type LinkOption func(*Link)

// WithLogger sets the logger the link tags with the transport component
func WithLogger(logger *slog.Logger) LinkOption {
	return func(l *Link) {
		l.log = hub.ComponentLogger(logger, hub.ComponentTransport)
	}
}

// NewLink starts relaying over conn
func NewLink(conn Conn, opts ...LinkOption) *Link {
	l := &Link{
		conn: conn,
		log:  hub.ComponentLogger(hub.DefaultLogger(), hub.ComponentTransport),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.readLoop()
	return l
}

// Connect asks the bridge to connect to the hub selected by mac or name and
// waits for its answer.
func (l *Link) Connect(ctx context.Context, mac, name string) error {
	env, err := NewConnectEnvelope(ConnectParams{MAC: mac, Name: name})
	if err != nil {
		return err
	}

	pending := make(chan ConnectStatus, 1)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrConnectionClosed
	}
	l.pending = pending
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		if l.pending == pending {
			l.pending = nil
		}
		l.mu.Unlock()
	}()

	l.log.Debug("connecting", "mac", mac, "name", name)
	if err := l.send(env); err != nil {
		return err
	}

	select {
	case status := <-pending:
		if status != ConnectOK {
			return fmt.Errorf("bridge connect failed: %s", status)
		}
		l.mu.Lock()
		l.alive = true
		l.mu.Unlock()
		l.log.Info("connected")
		return nil
	case <-l.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Write relays a GATT write
func (l *Link) Write(handle uint16, data []byte) error {
	return l.send(NewWriteEnvelope(handle, data))
}

// SetNotifyHandler sets the callback for relayed notifications. It runs on
// the link's read goroutine.
func (l *Link) SetNotifyHandler(fn hub.NotifyHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = fn
}

// SetDisconnectHandler sets the callback for link or hub connection loss
func (l *Link) SetDisconnectHandler(fn func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDisconnect = fn
}

// EnableNotifications turns on hub notifications through the bridge
func (l *Link) EnableNotifications() error {
	return l.Write(lpf2.EnableNotificationsHandle, lpf2.EnableNotificationsValue)
}

// IsAlive reports whether the bridge holds a hub connection
func (l *Link) IsAlive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive && !l.closed
}

// Disconnect asks the bridge to drop the hub connection. The link itself
// stays open for another Connect.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	l.alive = false
	l.mu.Unlock()
	return l.send(Envelope{Op: OpDisconnect})
}

// Close closes the bridge connection and waits for the read loop to exit
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.alive = false
	l.mu.Unlock()

	err := l.conn.Close()
	<-l.done
	return err
}

// Done is closed when the read loop exits
func (l *Link) Done() <-chan struct{} {
	return l.done
}

func (l *Link) send(env Envelope) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}

	msg, err := MarshalEnvelope(env)
	if err != nil {
		return err
	}
	if err := l.conn.WriteMessage(msg); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

func (l *Link) readLoop() {
	defer close(l.done)

	for {
		msg, err := l.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, ErrFraming) {
				l.log.Debug("dropped frame", "error", err)
				continue
			}
			l.lost(err)
			return
		}

		env, err := UnmarshalEnvelope(msg)
		if err != nil {
			l.log.Debug("dropped envelope", "error", err)
			continue
		}
		l.dispatch(env)
	}
}

func (l *Link) dispatch(env Envelope) {
	switch env.Op {
	case OpNotify:
		l.mu.Lock()
		fn := l.handler
		l.mu.Unlock()
		if fn != nil {
			fn(env.Handle, env.Data)
		}

	case OpConnected:
		status, err := env.ConnectStatus()
		if err != nil {
			l.log.Debug("dropped envelope", "error", err)
			return
		}
		l.mu.Lock()
		pending := l.pending
		l.pending = nil
		l.mu.Unlock()
		if pending == nil {
			l.log.Debug("unsolicited connect status", "status", status)
			return
		}
		pending <- status

	case OpDisconnected:
		l.mu.Lock()
		wasAlive := l.alive
		l.alive = false
		fn := l.onDisconnect
		l.mu.Unlock()
		l.log.Info("hub disconnected")
		if wasAlive && fn != nil {
			fn(errors.New("hub disconnected from bridge"))
		}

	default:
		l.log.Debug("unexpected envelope", "op", env.Op)
	}
}

// lost handles a read error. An intentional Close is not reported.
func (l *Link) lost(err error) {
	l.mu.Lock()
	closed := l.closed
	wasAlive := l.alive
	l.alive = false
	fn := l.onDisconnect
	l.mu.Unlock()

	if closed {
		return
	}
	l.log.Warn("bridge connection lost", "error", err)
	if wasAlive && fn != nil {
		fn(err)
	}
}
