// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import "context"

// NotifyHandler receives one inbound notification frame. It is called on
// the transport's delivery goroutine.
type NotifyHandler func(handle uint16, data []byte)

// Transport is the link to a physical hub.
//
// The hub owns its transport: it is the only writer and registers the only
// notify handler. Implementations must deliver notifications in order.
type Transport interface {
	// Connect finds and connects to the hub by MAC or advertised name.
	// Either may be empty.
	Connect(ctx context.Context, mac, name string) error

	// Write sends data to a GATT handle. Delivery is best effort.
	Write(handle uint16, data []byte) error

	// SetNotifyHandler registers the notification callback, replacing any
	// previous one.
	SetNotifyHandler(fn NotifyHandler)

	// EnableNotifications turns on hub notifications.
	EnableNotifications() error

	IsAlive() bool
	Disconnect() error
}

// DisconnectNotifier is implemented by transports that can report link
// loss. The hub tears itself down when the handler fires.
type DisconnectNotifier interface {
	SetDisconnectHandler(fn func(err error))
}
