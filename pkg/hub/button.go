// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// Button is the hub's green button. It is backed by the BUTTON hub
// property rather than a port, so it never shows up in the registry.
type Button struct {
	hub   *Hub
	log   *slog.Logger
	queue *dispatcher

	mu   sync.Mutex
	subs []*ButtonSubscription
}

// ButtonSubscription is a registered button callback
type ButtonSubscription struct {
	fn func(pressed bool)
}

// NewButton attaches a button to h. Button updates are delivered to
// subscribers on their own goroutine until the hub closes.
func NewButton(h *Hub) *Button {
	b := &Button{
		hub:   h,
		log:   ComponentLogger(h.cfg.Logger, ComponentPeripheral).With("peripheral", "button"),
		queue: newDispatcher(h.cfg.QueueDepth),
	}
	h.Handle(lpf2.MsgHubProperties, b.handleProperty)
	go func() {
		<-h.Done()
		b.queue.stop()
	}()
	return b
}

// Subscribe registers fn for button presses and releases. The first
// subscription enables button updates on the hub.
func (b *Button) Subscribe(ctx context.Context, fn func(pressed bool)) (*ButtonSubscription, error) {
	sub := &ButtonSubscription{fn: fn}

	b.mu.Lock()
	first := len(b.subs) == 0
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	if first {
		if _, err := b.hub.Send(ctx, lpf2.NewPropertySubscribe(lpf2.PropButton, true)); err != nil {
			b.remove(sub)
			return nil, fmt.Errorf("enable button updates: %w", err)
		}
	}
	return sub, nil
}

// Unsubscribe removes sub. Button updates are disabled with the last one.
func (b *Button) Unsubscribe(ctx context.Context, sub *ButtonSubscription) error {
	found, last := b.remove(sub)
	if !found || !last {
		return nil
	}
	if _, err := b.hub.Send(ctx, lpf2.NewPropertySubscribe(lpf2.PropButton, false)); err != nil {
		return fmt.Errorf("disable button updates: %w", err)
	}
	return nil
}

func (b *Button) remove(sub *ButtonSubscription) (found, last bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true, len(b.subs) == 0
		}
	}
	return false, false
}

func (b *Button) handleProperty(msg lpf2.Upstream) {
	p := msg.(*lpf2.HubProperties)
	if p.Property != lpf2.PropButton || p.Operation != lpf2.PropOpUpstreamUpdate {
		return
	}
	v, ok := p.Uint8()
	if !ok {
		b.log.Debug("empty button update")
		return
	}
	pressed := v != 0
	if !b.queue.post(func() { b.deliver(pressed) }) {
		b.hub.stats.update(func(s *Statistics) { s.DroppedValues++ })
	}
}

func (b *Button) deliver(pressed bool) {
	b.mu.Lock()
	subs := append([]*ButtonSubscription(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		b.invoke(sub, pressed)
	}
}

func (b *Button) invoke(sub *ButtonSubscription, pressed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			b.hub.stats.update(func(s *Statistics) { s.CallbackFailures++ })
			b.log.Error("button callback panic", "panic", rec)
		}
	}()
	sub.fn(pressed)
}
