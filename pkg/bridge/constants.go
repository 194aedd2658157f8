// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge implements hub transports that reach the hub through a
// relay: a microcontroller acting as BLE central on a serial line, or a
// websocket bridge. Both carry the same CBOR link envelope; the serial link
// wraps each envelope in a byte-stuffed, CRC-checked frame.
package bridge

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxBodySize  = 255
	MaxFrameSize = 1 + MaxBodySize + 2 // length + body + CRC, before stuffing
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	stateBody
	stateCRC1
	stateCRC2
	stateEnd
)

// Op is the link envelope operation
type Op uint8

// Link operations
const (
	OpWrite        Op = 1 // host → bridge: write data to a GATT handle
	OpNotify       Op = 2 // bridge → host: notification from a GATT handle
	OpConnect      Op = 3 // host → bridge: connect to a hub, data = ConnectParams
	OpConnected    Op = 4 // bridge → host: connect result, data = [status]
	OpDisconnect   Op = 5 // host → bridge: drop the hub connection
	OpDisconnected Op = 6 // bridge → host: hub connection lost
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "WRITE"
	case OpNotify:
		return "NOTIFY"
	case OpConnect:
		return "CONNECT"
	case OpConnected:
		return "CONNECTED"
	case OpDisconnect:
		return "DISCONNECT"
	case OpDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ConnectStatus is the bridge's answer to OpConnect
type ConnectStatus uint8

// Connect status values
const (
	ConnectOK       ConnectStatus = 0x00
	ConnectNotFound ConnectStatus = 0x01
	ConnectFailed   ConnectStatus = 0x02
	ConnectBusy     ConnectStatus = 0x03
)

func (s ConnectStatus) String() string {
	switch s {
	case ConnectOK:
		return "OK"
	case ConnectNotFound:
		return "NOT_FOUND"
	case ConnectFailed:
		return "FAILED"
	case ConnectBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}
