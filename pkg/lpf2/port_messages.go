// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpf2

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PortInfoRequest asks for a port's value or mode capabilities
type PortInfoRequest struct {
	Port     Port
	InfoType PortInfoType
}

// Type implements Message
func (m *PortInfoRequest) Type() MessageType { return MsgPortInfoRequest }

// NeedsReply is always true
func (m *PortInfoRequest) NeedsReply() bool { return true }

// IsReply matches a port value for value requests and PortInfo otherwise
func (m *PortInfoRequest) IsReply(u Upstream) bool {
	if m.InfoType == PortInfoValue {
		r, ok := u.(*PortValueSingle)
		return ok && r.Port == m.Port
	}
	r, ok := u.(*PortInfo)
	return ok && r.Port == m.Port && r.InfoType == m.InfoType
}

func (m *PortInfoRequest) payload() []byte { return []byte{byte(m.Port), byte(m.InfoType)} }

// PortModeInfoRequest asks for information about one port mode
type PortModeInfoRequest struct {
	Port     Port
	Mode     uint8
	InfoType ModeInfoType
}

// Type implements Message
func (m *PortModeInfoRequest) Type() MessageType { return MsgPortModeInfoRequest }

// NeedsReply is always true
func (m *PortModeInfoRequest) NeedsReply() bool { return true }

// IsReply matches PortModeInfo for the same port, mode and info type
func (m *PortModeInfoRequest) IsReply(u Upstream) bool {
	r, ok := u.(*PortModeInfo)
	return ok && r.Port == m.Port && r.Mode == m.Mode && r.InfoType == m.InfoType
}

func (m *PortModeInfoRequest) payload() []byte {
	return []byte{byte(m.Port), m.Mode, byte(m.InfoType)}
}

// PortInputFmtSetup selects a port's input mode and notification settings
type PortInputFmtSetup struct {
	Port         Port
	Mode         uint8
	Delta        uint32
	UpdateEnable bool
}

// Type implements Message
func (m *PortInputFmtSetup) Type() MessageType { return MsgPortInputFmtSetup }

// NeedsReply is always true
func (m *PortInputFmtSetup) NeedsReply() bool { return true }

// IsReply matches the input format confirmation for the same port
func (m *PortInputFmtSetup) IsReply(u Upstream) bool {
	r, ok := u.(*PortInputFmtSingle)
	return ok && r.Port == m.Port
}

func (m *PortInputFmtSetup) payload() []byte {
	buf := make([]byte, 7)
	buf[0] = byte(m.Port)
	buf[1] = m.Mode
	binary.LittleEndian.PutUint32(buf[2:6], m.Delta)
	if m.UpdateEnable {
		buf[6] = 1
	}
	return buf
}

// VirtualPortSetup joins two ports into a virtual port or splits one
type VirtualPortSetup struct {
	Connect bool
	Port    Port    // port to split when Connect is false
	Ports   [2]Port // ports to join when Connect is true
}

// Type implements Message
func (m *VirtualPortSetup) Type() MessageType { return MsgVirtualPortSetup }

// NeedsReply is always true
func (m *VirtualPortSetup) NeedsReply() bool { return true }

// IsReply matches the attach event of the virtual port or the detach of the split port
func (m *VirtualPortSetup) IsReply(u Upstream) bool {
	r, ok := u.(*AttachedIO)
	if !ok {
		return false
	}
	if m.Connect {
		return r.Event == EventAttachedVirtual && r.VirtualPorts == m.Ports
	}
	return r.Event == EventDetached && r.Port == m.Port
}

func (m *VirtualPortSetup) payload() []byte {
	if m.Connect {
		return []byte{virtualPortConnect, byte(m.Ports[0]), byte(m.Ports[1])}
	}
	return []byte{virtualPortDisconnect, byte(m.Port)}
}

// PortOutput sends an output subcommand to a port
type PortOutput struct {
	Port       Port
	Buffered   bool
	Feedback   bool
	Subcommand uint8
	Params     []byte
}

// NewPortOutput creates an immediate port output command with completion feedback
func NewPortOutput(port Port, subcommand uint8, params []byte) *PortOutput {
	return &PortOutput{Port: port, Feedback: true, Subcommand: subcommand, Params: params}
}

// NewWriteDirectModeData creates a WriteDirectModeData output for the given mode
func NewWriteDirectModeData(port Port, mode uint8, data []byte) *PortOutput {
	return NewPortOutput(port, SubcmdWriteDirectModeData, append([]byte{mode}, data...))
}

// Type implements Message
func (m *PortOutput) Type() MessageType { return MsgPortOutput }

// NeedsReply reports true when command feedback is requested
func (m *PortOutput) NeedsReply() bool { return m.Feedback }

// IsReply matches feedback for the port that reports the command finished.
// Buffered commands accept any feedback for the port.
func (m *PortOutput) IsReply(u Upstream) bool {
	r, ok := u.(*PortOutputFeedback)
	if !ok {
		return false
	}
	status, ok := r.StatusFor(m.Port)
	if !ok {
		return false
	}
	return m.Buffered || status&(FeedbackCompleted|FeedbackDiscarded) != 0
}

// StartupCompletion returns the startup and completion information byte
func (m *PortOutput) StartupCompletion() byte {
	var b byte
	if !m.Buffered {
		b |= StartupImmediately
	}
	if m.Feedback {
		b |= CompletionFeedback
	}
	return b
}

func (m *PortOutput) payload() []byte {
	return append([]byte{byte(m.Port), m.StartupCompletion(), m.Subcommand}, m.Params...)
}

// PortInfo carries port capabilities
type PortInfo struct {
	Port     Port
	InfoType PortInfoType
	Payload  []byte
}

// Type implements Message
func (m *PortInfo) Type() MessageType { return MsgPortInfo }

func (m *PortInfo) upstream() {}

// ModeInfo returns the decoded mode summary of a mode-info reply
func (m *PortInfo) ModeInfo() (capabilities uint8, modeCount uint8, inputModes, outputModes uint16, ok bool) {
	if m.InfoType != PortInfoModeInfo || len(m.Payload) < 6 {
		return 0, 0, 0, 0, false
	}
	return m.Payload[0], m.Payload[1],
		binary.LittleEndian.Uint16(m.Payload[2:4]),
		binary.LittleEndian.Uint16(m.Payload[4:6]), true
}

func decodePortInfo(body []byte) (Upstream, error) {
	return &PortInfo{Port: Port(body[0]), InfoType: PortInfoType(body[1]), Payload: body[2:]}, nil
}

// PortModeInfo carries information about one port mode
type PortModeInfo struct {
	Port     Port
	Mode     uint8
	InfoType ModeInfoType
	Payload  []byte
}

// Type implements Message
func (m *PortModeInfo) Type() MessageType { return MsgPortModeInfo }

func (m *PortModeInfo) upstream() {}

// Text returns the payload of name and symbol replies as a string
func (m *PortModeInfo) Text() string {
	if i := bytes.IndexByte(m.Payload, 0); i >= 0 {
		return string(m.Payload[:i])
	}
	return string(m.Payload)
}

func decodePortModeInfo(body []byte) (Upstream, error) {
	return &PortModeInfo{
		Port:     Port(body[0]),
		Mode:     body[1],
		InfoType: ModeInfoType(body[2]),
		Payload:  body[3:],
	}, nil
}

// PortValueSingle is a sensor value from a single-mode port
type PortValueSingle struct {
	Port    Port
	Payload []byte
}

// Type implements Message
func (m *PortValueSingle) Type() MessageType { return MsgPortValueSingle }

func (m *PortValueSingle) upstream() {}

func decodePortValueSingle(body []byte) (Upstream, error) {
	return &PortValueSingle{Port: Port(body[0]), Payload: body[1:]}, nil
}

// PortValueCombined is a sensor value from a port in combined mode
type PortValueCombined struct {
	Port    Port
	Payload []byte
}

// Type implements Message
func (m *PortValueCombined) Type() MessageType { return MsgPortValueCombined }

func (m *PortValueCombined) upstream() {}

func decodePortValueCombined(body []byte) (Upstream, error) {
	return &PortValueCombined{Port: Port(body[0]), Payload: body[1:]}, nil
}

// PortInputFmtSingle confirms a port's input format
type PortInputFmtSingle struct {
	Port          Port
	Mode          uint8
	Delta         uint32
	UpdateEnabled bool
}

// Type implements Message
func (m *PortInputFmtSingle) Type() MessageType { return MsgPortInputFmtSingle }

func (m *PortInputFmtSingle) upstream() {}

func decodePortInputFmtSingle(body []byte) (Upstream, error) {
	return &PortInputFmtSingle{
		Port:          Port(body[0]),
		Mode:          body[1],
		Delta:         binary.LittleEndian.Uint32(body[2:6]),
		UpdateEnabled: body[6] != 0,
	}, nil
}

// PortInputFmtCombined confirms a combined-mode input format
type PortInputFmtCombined struct {
	Port    Port
	Payload []byte
}

// Type implements Message
func (m *PortInputFmtCombined) Type() MessageType { return MsgPortInputFmtCombo }

func (m *PortInputFmtCombined) upstream() {}

func decodePortInputFmtCombined(body []byte) (Upstream, error) {
	return &PortInputFmtCombined{Port: Port(body[0]), Payload: body[1:]}, nil
}

// FeedbackEntry is one port's status inside PortOutputFeedback
type FeedbackEntry struct {
	Port   Port
	Status FeedbackStatus
}

// PortOutputFeedback reports output command progress for one or more ports
type PortOutputFeedback struct {
	Entries []FeedbackEntry
}

// Type implements Message
func (m *PortOutputFeedback) Type() MessageType { return MsgPortOutputFeedback }

func (m *PortOutputFeedback) upstream() {}

// StatusFor returns the status reported for port
func (m *PortOutputFeedback) StatusFor(port Port) (FeedbackStatus, bool) {
	for _, e := range m.Entries {
		if e.Port == port {
			return e.Status, true
		}
	}
	return 0, false
}

func decodePortOutputFeedback(body []byte) (Upstream, error) {
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("odd feedback length %d", len(body))
	}
	m := &PortOutputFeedback{Entries: make([]FeedbackEntry, 0, len(body)/2)}
	for i := 0; i+1 < len(body); i += 2 {
		m.Entries = append(m.Entries, FeedbackEntry{Port: Port(body[i]), Status: FeedbackStatus(body[i+1])})
	}
	return m, nil
}
