// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpf2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// HubProperties reads, sets or subscribes to a hub property. The same type
// carries the hub's upstream property updates.
type HubProperties struct {
	Property   HubProperty
	Operation  PropertyOp
	Parameters []byte
}

// NewPropertyRequest creates a HubProperties update request
func NewPropertyRequest(prop HubProperty) *HubProperties {
	return &HubProperties{Property: prop, Operation: PropOpUpdateRequest}
}

// Type implements Message
func (m *HubProperties) Type() MessageType { return MsgHubProperties }

// NeedsReply reports true for update requests only
func (m *HubProperties) NeedsReply() bool { return m.Operation == PropOpUpdateRequest }

// IsReply matches an upstream update for the same property
func (m *HubProperties) IsReply(u Upstream) bool {
	r, ok := u.(*HubProperties)
	return ok && r.Operation == PropOpUpstreamUpdate && r.Property == m.Property
}

func (m *HubProperties) payload() []byte {
	return append([]byte{byte(m.Property), byte(m.Operation)}, m.Parameters...)
}

func (m *HubProperties) upstream() {}

// Name returns the parameters as a NUL-terminated string
func (m *HubProperties) Name() string {
	if i := bytes.IndexByte(m.Parameters, 0); i >= 0 {
		return string(m.Parameters[:i])
	}
	return string(m.Parameters)
}

// MAC returns the parameters as a hardware address
func (m *HubProperties) MAC() net.HardwareAddr {
	return net.HardwareAddr(m.Parameters)
}

// Uint8 returns the first parameter byte, used by battery and button updates
func (m *HubProperties) Uint8() (uint8, bool) {
	if len(m.Parameters) < 1 {
		return 0, false
	}
	return m.Parameters[0], true
}

func decodeHubProperties(body []byte) (Upstream, error) {
	return &HubProperties{
		Property:   HubProperty(body[0]),
		Operation:  PropertyOp(body[1]),
		Parameters: body[2:],
	}, nil
}

// HubAction requests or reports a hub-level action
type HubAction struct {
	Action Action
}

// Type implements Message
func (m *HubAction) Type() MessageType { return MsgHubAction }

// NeedsReply reports true for switch off and disconnect
func (m *HubAction) NeedsReply() bool {
	return m.Action == ActionSwitchOff || m.Action == ActionDisconnect
}

// IsReply matches the upstream shutdown/disconnect notice
func (m *HubAction) IsReply(u Upstream) bool {
	r, ok := u.(*HubAction)
	if !ok {
		return false
	}
	switch m.Action {
	case ActionSwitchOff:
		return r.Action == ActionUpstreamShutdown
	case ActionDisconnect:
		return r.Action == ActionUpstreamDisconnect
	}
	return false
}

func (m *HubAction) payload() []byte { return []byte{byte(m.Action)} }

func (m *HubAction) upstream() {}

func decodeHubAction(body []byte) (Upstream, error) {
	return &HubAction{Action: Action(body[0])}, nil
}

// HubAlert subscribes to or requests a hub alert state
type HubAlert struct {
	Alert     Alert
	Operation AlertOp
	Status    uint8
}

// NewAlertRequest creates a HubAlert update request
func NewAlertRequest(alert Alert) *HubAlert {
	return &HubAlert{Alert: alert, Operation: AlertOpUpdateRequest}
}

// Type implements Message
func (m *HubAlert) Type() MessageType { return MsgHubAlert }

// NeedsReply reports true for update requests only
func (m *HubAlert) NeedsReply() bool { return m.Operation == AlertOpUpdateRequest }

// IsReply matches an upstream update for the same alert
func (m *HubAlert) IsReply(u Upstream) bool {
	r, ok := u.(*HubAlert)
	return ok && r.Operation == AlertOpUpstreamUpdate && r.Alert == m.Alert
}

func (m *HubAlert) payload() []byte {
	if m.Operation == AlertOpUpstreamUpdate {
		return []byte{byte(m.Alert), byte(m.Operation), m.Status}
	}
	return []byte{byte(m.Alert), byte(m.Operation)}
}

func (m *HubAlert) upstream() {}

// OK reports whether the alert condition is clear
func (m *HubAlert) OK() bool { return m.Status == 0 }

func decodeHubAlert(body []byte) (Upstream, error) {
	m := &HubAlert{Alert: Alert(body[0]), Operation: AlertOp(body[1])}
	if len(body) > 2 {
		m.Status = body[2]
	}
	return m, nil
}

// AttachedIO reports a peripheral attaching to or detaching from a port
type AttachedIO struct {
	Port       Port
	Event      IOEvent
	DeviceType DeviceType

	// Physical attach only
	HardwareRevision uint32
	SoftwareRevision uint32

	// Virtual attach only
	VirtualPorts [2]Port
}

// Type implements Message
func (m *AttachedIO) Type() MessageType { return MsgHubAttachedIO }

func (m *AttachedIO) upstream() {}

func decodeAttachedIO(body []byte) (Upstream, error) {
	m := &AttachedIO{Port: Port(body[0]), Event: IOEvent(body[1])}
	rest := body[2:]

	switch m.Event {
	case EventDetached:
		return m, nil
	case EventAttached:
		if len(rest) < 10 {
			return nil, fmt.Errorf("attach payload %d bytes, need 10", len(rest))
		}
		m.DeviceType = DeviceType(binary.LittleEndian.Uint16(rest[0:2]))
		m.HardwareRevision = binary.LittleEndian.Uint32(rest[2:6])
		m.SoftwareRevision = binary.LittleEndian.Uint32(rest[6:10])
		return m, nil
	case EventAttachedVirtual:
		if len(rest) < 4 {
			return nil, fmt.Errorf("virtual attach payload %d bytes, need 4", len(rest))
		}
		m.DeviceType = DeviceType(binary.LittleEndian.Uint16(rest[0:2]))
		m.VirtualPorts = [2]Port{Port(rest[2]), Port(rest[3])}
		return m, nil
	}
	return nil, fmt.Errorf("unknown attach event 0x%02X", byte(m.Event))
}

// GenericError is the hub's rejection of a command
type GenericError struct {
	Command MessageType
	Code    ErrorCode
}

// Type implements Message
func (m *GenericError) Type() MessageType { return MsgGenericError }

func (m *GenericError) upstream() {}

// Message describes the failure
func (m *GenericError) Message() string {
	return fmt.Sprintf("command 0x%02X caused error 0x%02X: %s", byte(m.Command), byte(m.Code), FormatErrorCode(m.Code))
}

func decodeGenericError(body []byte) (Upstream, error) {
	return &GenericError{Command: MessageType(body[0]), Code: ErrorCode(body[1])}, nil
}
