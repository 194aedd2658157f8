// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpf2

// Command builder functions create downstream messages ready for encoding.
// These are convenience wrappers that fill in the operation codes the hub
// expects for the common requests.

// NewPropertySubscribe creates a HubProperties update enable (0x02) or
// update disable (0x03) request. Neither is answered by the hub.
func NewPropertySubscribe(prop HubProperty, enable bool) *HubProperties {
	op := PropOpUpdateDisable
	if enable {
		op = PropOpUpdateEnable
	}
	return &HubProperties{Property: prop, Operation: op}
}

// NewHubAction creates a HUB_ACTION message (0x02).
// Switch off and disconnect are answered by the matching upstream action.
func NewHubAction(action Action) *HubAction {
	return &HubAction{Action: action}
}

// NewPortValueRequest creates a PORT_INFO_REQUEST (0x21) for the port's
// current value. The hub answers with PORT_VALUE_SINGLE in the current mode.
func NewPortValueRequest(port Port) *PortInfoRequest {
	return &PortInfoRequest{Port: port, InfoType: PortInfoValue}
}

// NewPortModeInfoRequest creates a PORT_MODE_INFO_REQUEST (0x22).
func NewPortModeInfoRequest(port Port, mode uint8, info ModeInfoType) *PortModeInfoRequest {
	return &PortModeInfoRequest{Port: port, Mode: mode, InfoType: info}
}

// NewPortInputFmtSetup creates a PORT_INPUT_FMT_SETUP_SINGLE (0x41).
// Delta is the value change that triggers a notification when notify is set.
func NewPortInputFmtSetup(port Port, mode uint8, delta uint32, notify bool) *PortInputFmtSetup {
	return &PortInputFmtSetup{Port: port, Mode: mode, Delta: delta, UpdateEnable: notify}
}

// NewVirtualPortConnect creates a VIRTUAL_PORT_SETUP (0x61) joining two ports.
// The hub answers with an attach-virtual event naming both ports.
func NewVirtualPortConnect(a, b Port) *VirtualPortSetup {
	return &VirtualPortSetup{Connect: true, Ports: [2]Port{a, b}}
}

// NewVirtualPortDisconnect creates a VIRTUAL_PORT_SETUP (0x61) splitting a
// virtual port back into its constituents.
func NewVirtualPortDisconnect(port Port) *VirtualPortSetup {
	return &VirtualPortSetup{Port: port}
}
