// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// Hub errors. Decode and dispatch errors never reach callers directly; they
// are logged and reported through the diagnostics hook.
var (
	// ErrNoPeripheralOnPort is reported for values or commands that target
	// a port with nothing attached.
	ErrNoPeripheralOnPort = errors.New("no peripheral on port")

	// ErrUnknownDeviceType is a diagnostic for attach events naming a
	// device type without a dedicated variant. The generic variant is used.
	ErrUnknownDeviceType = errors.New("unknown device type")

	// ErrReplyTimeout is returned when a synchronous request is not answered
	// within its bound.
	ErrReplyTimeout = errors.New("reply timeout")

	// ErrConcurrentRequest is returned when a synchronous request is issued
	// while another is outstanding. Nothing is written.
	ErrConcurrentRequest = errors.New("synchronous request already outstanding")

	// ErrTransportFailure wraps errors reported by the transport.
	ErrTransportFailure = errors.New("transport failure")

	// ErrHubClosed is returned for requests on a hub that was torn down,
	// including requests that were waiting when it happened.
	ErrHubClosed = errors.New("hub closed")

	// ErrModeBusy is returned when subscribing in a mode other than the one
	// current subscribers use.
	ErrModeBusy = errors.New("port mode busy")

	// ErrWrongPeripheral is returned by typed accessors when the port holds
	// a different kind of peripheral.
	ErrWrongPeripheral = errors.New("unexpected peripheral kind")

	// ErrLowVoltage is a diagnostic raised by the status handshake when the
	// hub reports its low voltage alert.
	ErrLowVoltage = errors.New("hub battery voltage low")
)

// CommandError is the hub's rejection of a command
type CommandError struct {
	Request lpf2.MessageType
	Reply   *lpf2.GenericError
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected: %s", lpf2.FormatMessageType(e.Request), e.Reply.Message())
}

// Code returns the hub's error code
func (e *CommandError) Code() lpf2.ErrorCode { return e.Reply.Code }
