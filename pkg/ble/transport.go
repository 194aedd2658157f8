// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ble is a hub transport over the host's Bluetooth LE adapter. It
// scans for an LPF2 hub, connects, and relays the hub characteristic.
package ble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/Thermoquad/hubctl/pkg/hub"
	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// LPF2 GATT identifiers
const (
	HubServiceUUID        = "00001623-1212-efde-1623-785feabcd123"
	HubCharacteristicUUID = "00001624-1212-efde-1623-785feabcd123"
)

// ErrHubNotFound is returned when no matching hub advertises before the
// context ends
var ErrHubNotFound = errors.New("no matching hub found")

// ErrUnsupportedHandle is returned for writes to a handle other than the
// hub characteristic or its notification descriptor
var ErrUnsupportedHandle = errors.New("unsupported GATT handle")

// ErrUnsupportedValue is returned for a descriptor write other than the
// enable value
var ErrUnsupportedValue = errors.New("unsupported descriptor value")

var (
	hubService        = mustParseUUID(HubServiceUUID)
	hubCharacteristic = mustParseUUID(HubCharacteristicUUID)
)

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Transport implements hub.Transport and hub.DisconnectNotifier on a
// native adapter
type Transport struct {
	adapter *bluetooth.Adapter
	log     *slog.Logger

	mu           sync.Mutex
	device       bluetooth.Device
	address      string
	char         bluetooth.DeviceCharacteristic
	handler      hub.NotifyHandler
	onDisconnect func(error)
	alive        bool
}

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the logger the transport tags with the transport component
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.log = hub.ComponentLogger(logger, hub.ComponentTransport)
	}
}

// New enables the default adapter
func New(opts ...Option) (*Transport, error) {
	adapter := bluetooth.DefaultAdapter
	if adapter == nil {
		return nil, errors.New("no bluetooth adapter")
	}
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}

	t := &Transport{
		adapter: adapter,
		log:     hub.ComponentLogger(hub.DefaultLogger(), hub.ComponentTransport),
	}
	for _, opt := range opts {
		opt(t)
	}
	adapter.SetConnectHandler(t.connectionChanged)
	return t, nil
}

// matchHub reports whether an advertisement satisfies the mac and name
// filters. Empty filters match any hub.
func matchHub(mac, name, address, localName string) bool {
	if mac != "" && !strings.EqualFold(mac, address) {
		return false
	}
	if name != "" && name != localName {
		return false
	}
	return true
}

// scan returns the first LPF2 hub matching the filters
func (t *Transport) scan(ctx context.Context, mac, name string) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	errc := make(chan error, 1)

	go func() {
		errc <- t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !r.HasServiceUUID(hubService) {
				return
			}
			address := r.Address.String()
			if !matchHub(mac, name, address, r.LocalName()) {
				t.log.Debug("skipping hub", "address", address, "name", r.LocalName())
				return
			}
			select {
			case found <- r:
				a.StopScan()
			default:
			}
		})
	}()

	select {
	case r := <-found:
		<-errc
		return r, nil
	case err := <-errc:
		select {
		case r := <-found:
			return r, nil
		default:
		}
		if err != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("scan failed: %w", err)
		}
		return bluetooth.ScanResult{}, ErrHubNotFound
	case <-ctx.Done():
		t.adapter.StopScan()
		<-errc
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %v", ErrHubNotFound, ctx.Err())
	}
}

// Connect scans for a hub selected by mac or name, connects and discovers
// the hub characteristic
func (t *Transport) Connect(ctx context.Context, mac, name string) error {
	t.log.Info("scanning", "mac", mac, "name", name)
	r, err := t.scan(ctx, mac, name)
	if err != nil {
		return err
	}

	address := r.Address.String()
	t.log.Info("connecting", "address", address, "name", r.LocalName(), "rssi", r.RSSI)
	device, err := t.adapter.Connect(r.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{hubService})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return fmt.Errorf("hub service not found on %s: %v", address, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{hubCharacteristic})
	if err != nil || len(chars) == 0 {
		device.Disconnect()
		return fmt.Errorf("hub characteristic not found on %s: %v", address, err)
	}

	t.mu.Lock()
	t.device = device
	t.address = address
	t.char = chars[0]
	t.alive = true
	t.mu.Unlock()

	t.log.Info("connected", "address", address)
	return nil
}

// Write sends data to the hub characteristic. A write of the enable value
// to the notification descriptor handle enables notifications.
func (t *Transport) Write(handle uint16, data []byte) error {
	switch handle {
	case lpf2.HardwareHandle:
	case lpf2.EnableNotificationsHandle:
		if !bytes.Equal(data, lpf2.EnableNotificationsValue) {
			return fmt.Errorf("%w: % X", ErrUnsupportedValue, data)
		}
		return t.EnableNotifications()
	default:
		return fmt.Errorf("%w: 0x%02X", ErrUnsupportedHandle, handle)
	}

	t.mu.Lock()
	char, alive := t.char, t.alive
	t.mu.Unlock()
	if !alive {
		return errors.New("not connected")
	}

	if _, err := char.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("characteristic write: %w", err)
	}
	return nil
}

// SetNotifyHandler sets the callback for hub notifications. It runs on
// the adapter's callback goroutine.
func (t *Transport) SetNotifyHandler(fn hub.NotifyHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

// SetDisconnectHandler sets the callback for connection loss
func (t *Transport) SetDisconnectHandler(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = fn
}

// EnableNotifications subscribes to the hub characteristic
func (t *Transport) EnableNotifications() error {
	t.mu.Lock()
	char, alive := t.char, t.alive
	t.mu.Unlock()
	if !alive {
		return errors.New("not connected")
	}

	err := char.EnableNotifications(func(buf []byte) {
		data := append([]byte(nil), buf...)
		t.mu.Lock()
		fn := t.handler
		t.mu.Unlock()
		if fn != nil {
			fn(lpf2.HardwareHandle, data)
		}
	})
	if err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}
	return nil
}

// IsAlive reports whether the hub is connected
func (t *Transport) IsAlive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alive
}

// Disconnect drops the connection
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if !t.alive {
		t.mu.Unlock()
		return nil
	}
	t.alive = false
	device := t.device
	t.mu.Unlock()

	t.log.Info("disconnecting")
	return device.Disconnect()
}

// connectionChanged reports link loss for our device
func (t *Transport) connectionChanged(device bluetooth.Device, connected bool) {
	if connected {
		return
	}

	t.mu.Lock()
	ours := t.alive && device.Address.String() == t.address
	if ours {
		t.alive = false
	}
	fn := t.onDisconnect
	t.mu.Unlock()

	if ours {
		t.log.Warn("hub connection lost", "address", t.address)
		if fn != nil {
			fn(errors.New("hub connection lost"))
		}
	}
}
