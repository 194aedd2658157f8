// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpf2

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// frame builds a raw upstream frame with a correct length byte
func frame(msgType MessageType, body ...byte) []byte {
	data := []byte{byte(HeaderSize + len(body)), HubID, byte(msgType)}
	return append(data, body...)
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_Header(t *testing.T) {
	data, err := Encode(NewPropertyRequest(PropAdvertiseName))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	expected := []byte{0x05, 0x00, 0x01, 0x01, 0x05}
	if !bytes.Equal(data, expected) {
		t.Errorf("Encode = % X, want % X", data, expected)
	}
}

func TestEncode_Messages(t *testing.T) {
	tests := []struct {
		name     string
		msg      Downstream
		expected []byte
	}{
		{
			name:     "hub action disconnect",
			msg:      NewHubAction(ActionDisconnect),
			expected: []byte{0x04, 0x00, 0x02, 0x02},
		},
		{
			name:     "low voltage alert request",
			msg:      NewAlertRequest(AlertLowVoltage),
			expected: []byte{0x05, 0x00, 0x03, 0x01, 0x03},
		},
		{
			name:     "button subscribe",
			msg:      NewPropertySubscribe(PropButton, true),
			expected: []byte{0x05, 0x00, 0x01, 0x02, 0x02},
		},
		{
			name:     "input format setup",
			msg:      NewPortInputFmtSetup(0x3B, 0x00, 1, true),
			expected: []byte{0x0A, 0x00, 0x41, 0x3B, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01},
		},
		{
			name:     "port value request",
			msg:      NewPortValueRequest(0x3C),
			expected: []byte{0x05, 0x00, 0x21, 0x3C, 0x00},
		},
		{
			name:     "mode name request",
			msg:      NewPortModeInfoRequest(0x01, 0x02, ModeInfoName),
			expected: []byte{0x06, 0x00, 0x22, 0x01, 0x02, 0x00},
		},
		{
			name:     "virtual port connect",
			msg:      NewVirtualPortConnect(0x00, 0x01),
			expected: []byte{0x06, 0x00, 0x61, 0x01, 0x00, 0x01},
		},
		{
			name:     "virtual port disconnect",
			msg:      NewVirtualPortDisconnect(0x10),
			expected: []byte{0x05, 0x00, 0x61, 0x00, 0x10},
		},
		{
			name:     "port output with feedback",
			msg:      NewPortOutput(0x00, SubcmdStartSpeed, []byte{0x32, 0x64, 0x03}),
			expected: []byte{0x09, 0x00, 0x81, 0x00, 0x11, 0x07, 0x32, 0x64, 0x03},
		},
		{
			name:     "buffered output without feedback",
			msg:      &PortOutput{Port: 0x01, Buffered: true, Subcommand: SubcmdStartPower, Params: []byte{0x9C}},
			expected: []byte{0x07, 0x00, 0x81, 0x01, 0x00, 0x01, 0x9C},
		},
		{
			name:     "write direct mode data",
			msg:      NewWriteDirectModeData(0x32, 0x00, []byte{0x09}),
			expected: []byte{0x08, 0x00, 0x81, 0x32, 0x11, 0x51, 0x00, 0x09},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode error: %v", err)
			}
			if !bytes.Equal(data, tt.expected) {
				t.Errorf("Encode = % X, want % X", data, tt.expected)
			}
		})
	}
}

func TestEncode_FrameTooLong(t *testing.T) {
	msg := NewPortOutput(0x00, SubcmdWriteDirect, make([]byte, MaxFrameSize))
	_, err := Encode(msg)
	if !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("Expected ErrFrameTooLong, got %v", err)
	}
}

func TestMustEncode_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for oversized frame")
		}
	}()
	MustEncode(NewPortOutput(0x00, SubcmdWriteDirect, make([]byte, MaxFrameSize)))
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecode_AdvertiseName(t *testing.T) {
	data := frame(MsgHubProperties, byte(PropAdvertiseName), byte(PropOpUpstreamUpdate), 'M', 'o', 'v', 'e', 'H', 'u', 'b', 0x00)

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	props, ok := msg.(*HubProperties)
	if !ok {
		t.Fatalf("Expected *HubProperties, got %T", msg)
	}
	if props.Property != PropAdvertiseName {
		t.Errorf("Property = 0x%02X, want 0x%02X", props.Property, PropAdvertiseName)
	}
	if props.Name() != "MoveHub" {
		t.Errorf("Name() = %q, want %q", props.Name(), "MoveHub")
	}
	if !NewPropertyRequest(PropAdvertiseName).IsReply(props) {
		t.Error("Name update should answer the name request")
	}
}

func TestDecode_AttachedIO(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		event     IOEvent
		devType   DeviceType
		hwRev     uint32
		virtPorts [2]Port
	}{
		{
			name:    "physical attach",
			data:    frame(MsgHubAttachedIO, 0x00, 0x01, 0x27, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x10),
			event:   EventAttached,
			devType: DevMotorInternalTacho,
			hwRev:   0x10000000,
		},
		{
			name:      "virtual attach",
			data:      frame(MsgHubAttachedIO, 0x10, 0x02, 0x27, 0x00, 0x00, 0x01),
			event:     EventAttachedVirtual,
			devType:   DevMotorInternalTacho,
			virtPorts: [2]Port{0x00, 0x01},
		},
		{
			name:  "detach",
			data:  frame(MsgHubAttachedIO, 0x02, 0x00),
			event: EventDetached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			io, ok := msg.(*AttachedIO)
			if !ok {
				t.Fatalf("Expected *AttachedIO, got %T", msg)
			}
			if io.Event != tt.event {
				t.Errorf("Event = %d, want %d", io.Event, tt.event)
			}
			if io.DeviceType != tt.devType {
				t.Errorf("DeviceType = 0x%04X, want 0x%04X", io.DeviceType, tt.devType)
			}
			if io.HardwareRevision != tt.hwRev {
				t.Errorf("HardwareRevision = 0x%08X, want 0x%08X", io.HardwareRevision, tt.hwRev)
			}
			if io.VirtualPorts != tt.virtPorts {
				t.Errorf("VirtualPorts = %v, want %v", io.VirtualPorts, tt.virtPorts)
			}
		})
	}
}

func TestDecode_GenericError(t *testing.T) {
	msg, err := Decode(frame(MsgGenericError, byte(MsgPortOutput), byte(ErrCodeWrongParams)))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	gerr, ok := msg.(*GenericError)
	if !ok {
		t.Fatalf("Expected *GenericError, got %T", msg)
	}
	if gerr.Command != MsgPortOutput || gerr.Code != ErrCodeWrongParams {
		t.Errorf("Got command 0x%02X code 0x%02X", gerr.Command, gerr.Code)
	}
	if !strings.Contains(gerr.Message(), "WRONG_PARAMS") {
		t.Errorf("Message() = %q, should name the error code", gerr.Message())
	}
}

func TestDecode_PortMessages(t *testing.T) {
	t.Run("value single", func(t *testing.T) {
		msg, err := Decode(frame(MsgPortValueSingle, 0x3B, 0x10, 0x02))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		v := msg.(*PortValueSingle)
		if v.Port != 0x3B || !bytes.Equal(v.Payload, []byte{0x10, 0x02}) {
			t.Errorf("Got port 0x%02X payload % X", v.Port, v.Payload)
		}
	})

	t.Run("input format single", func(t *testing.T) {
		msg, err := Decode(frame(MsgPortInputFmtSingle, 0x3A, 0x04, 0x01, 0x00, 0x00, 0x00, 0x01))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		f := msg.(*PortInputFmtSingle)
		if f.Port != 0x3A || f.Mode != 0x04 || f.Delta != 1 || !f.UpdateEnabled {
			t.Errorf("Got %+v", f)
		}
	})

	t.Run("mode info name", func(t *testing.T) {
		msg, err := Decode(frame(MsgPortModeInfo, 0x00, 0x02, 0x00, 'P', 'O', 'S', 0x00, 0x00))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		info := msg.(*PortModeInfo)
		if info.Text() != "POS" {
			t.Errorf("Text() = %q, want %q", info.Text(), "POS")
		}
	})

	t.Run("port info mode summary", func(t *testing.T) {
		msg, err := Decode(frame(MsgPortInfo, 0x00, 0x01, 0x0F, 0x03, 0x06, 0x00, 0x01, 0x00))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		caps, count, in, out, ok := msg.(*PortInfo).ModeInfo()
		if !ok || caps != 0x0F || count != 3 || in != 0x0006 || out != 0x0001 {
			t.Errorf("ModeInfo() = %d %d %d %d %v", caps, count, in, out, ok)
		}
	})

	t.Run("output feedback", func(t *testing.T) {
		msg, err := Decode(frame(MsgPortOutputFeedback, 0x00, 0x0A, 0x01, 0x01))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		fb := msg.(*PortOutputFeedback)
		if len(fb.Entries) != 2 {
			t.Fatalf("Expected 2 entries, got %d", len(fb.Entries))
		}
		status, ok := fb.StatusFor(0x00)
		if !ok || status != FeedbackCompleted|FeedbackIdle {
			t.Errorf("StatusFor(0) = 0x%02X, %v", status, ok)
		}
		if _, ok := fb.StatusFor(0x02); ok {
			t.Error("StatusFor(2) should report missing port")
		}
	})
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"short header", []byte{0x02, 0x00}},
		{"length mismatch", []byte{0x09, 0x00, 0x02, 0x30}},
		{"wrong hub id", []byte{0x04, 0x01, 0x02, 0x30}},
		{"unknown type", []byte{0x04, 0x00, 0x99, 0x00}},
		{"downstream only type", []byte{0x05, 0x00, 0x21, 0x00, 0x00}},
		{"below kind minimum", []byte{0x04, 0x00, 0x01, 0x01}},
		{"truncated attach", frame(MsgHubAttachedIO, 0x00, 0x01, 0x27, 0x00)},
		{"unknown attach event", frame(MsgHubAttachedIO, 0x00, 0x07)},
		{"odd feedback", frame(MsgPortOutputFeedback, 0x00, 0x0A, 0x01)},
		{"short input format", frame(MsgPortInputFmtSingle, 0x00, 0x00, 0x01)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.data)
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("Expected ErrMalformedMessage, got %v", err)
			}
			if msg != nil {
				t.Errorf("Expected nil message, got %T", msg)
			}
		})
	}
}

func TestDecode_DoesNotRetainInput(t *testing.T) {
	data := frame(MsgHubProperties, byte(PropAdvertiseName), byte(PropOpUpstreamUpdate), 'H', 'u', 'b')
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	data[5] = 'X'
	if name := msg.(*HubProperties).Name(); name != "Hub" {
		t.Errorf("Name() = %q after input mutation, want %q", name, "Hub")
	}
}

func TestDecode_Idempotent(t *testing.T) {
	data := frame(MsgPortValueSingle, 0x01, 0x05)
	first, err1 := Decode(data)
	second, err2 := Decode(data)
	if err1 != nil || err2 != nil {
		t.Fatalf("Decode errors: %v, %v", err1, err2)
	}
	a, b := first.(*PortValueSingle), second.(*PortValueSingle)
	if a.Port != b.Port || !bytes.Equal(a.Payload, b.Payload) {
		t.Error("Decoding the same bytes twice should produce equal messages")
	}
}

// ============================================================
// Round-Trip Tests
// ============================================================

func TestRoundTrip_HubProperties(t *testing.T) {
	tests := []*HubProperties{
		NewPropertyRequest(PropBatteryPercent),
		NewPropertySubscribe(PropButton, false),
		{Property: PropAdvertiseName, Operation: PropOpSet, Parameters: []byte("Robot")},
	}

	for _, want := range tests {
		t.Run(FormatHubProperty(want.Property), func(t *testing.T) {
			msg, err := Decode(MustEncode(want))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			got := msg.(*HubProperties)
			if got.Property != want.Property || got.Operation != want.Operation || !bytes.Equal(got.Parameters, want.Parameters) {
				t.Errorf("Round trip = %+v, want %+v", got, want)
			}
		})
	}
}

func TestRoundTrip_HubAction(t *testing.T) {
	for _, action := range []Action{ActionSwitchOff, ActionDisconnect, ActionBusyIndicationOn} {
		t.Run(FormatAction(action), func(t *testing.T) {
			msg, err := Decode(MustEncode(NewHubAction(action)))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if got := msg.(*HubAction).Action; got != action {
				t.Errorf("Action = 0x%02X, want 0x%02X", got, action)
			}
		})
	}
}

func TestRoundTrip_HubAlert(t *testing.T) {
	tests := []*HubAlert{
		NewAlertRequest(AlertLowVoltage),
		{Alert: AlertHighCurrent, Operation: AlertOpUpdateEnable},
		{Alert: AlertLowVoltage, Operation: AlertOpUpstreamUpdate, Status: 0xFF},
	}

	for _, want := range tests {
		t.Run(FormatAlert(want.Alert), func(t *testing.T) {
			msg, err := Decode(MustEncode(want))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			got := msg.(*HubAlert)
			if *got != *want {
				t.Errorf("Round trip = %+v, want %+v", got, want)
			}
		})
	}
}

// ============================================================
// Reply Predicate Tests
// ============================================================

func TestIsReply(t *testing.T) {
	tests := []struct {
		name    string
		request Downstream
		reply   Upstream
		want    bool
	}{
		{
			name:    "property update same property",
			request: NewPropertyRequest(PropPrimaryMAC),
			reply:   &HubProperties{Property: PropPrimaryMAC, Operation: PropOpUpstreamUpdate},
			want:    true,
		},
		{
			name:    "property update other property",
			request: NewPropertyRequest(PropPrimaryMAC),
			reply:   &HubProperties{Property: PropBatteryPercent, Operation: PropOpUpstreamUpdate},
			want:    false,
		},
		{
			name:    "switch off answered by shutdown",
			request: NewHubAction(ActionSwitchOff),
			reply:   &HubAction{Action: ActionUpstreamShutdown},
			want:    true,
		},
		{
			name:    "disconnect not answered by shutdown",
			request: NewHubAction(ActionDisconnect),
			reply:   &HubAction{Action: ActionUpstreamShutdown},
			want:    false,
		},
		{
			name:    "alert update",
			request: NewAlertRequest(AlertLowVoltage),
			reply:   &HubAlert{Alert: AlertLowVoltage, Operation: AlertOpUpstreamUpdate},
			want:    true,
		},
		{
			name:    "value request answered by value",
			request: NewPortValueRequest(0x3C),
			reply:   &PortValueSingle{Port: 0x3C},
			want:    true,
		},
		{
			name:    "value request other port",
			request: NewPortValueRequest(0x3C),
			reply:   &PortValueSingle{Port: 0x3B},
			want:    false,
		},
		{
			name:    "mode info request",
			request: &PortInfoRequest{Port: 0x00, InfoType: PortInfoModeInfo},
			reply:   &PortInfo{Port: 0x00, InfoType: PortInfoModeInfo},
			want:    true,
		},
		{
			name:    "input format setup",
			request: NewPortInputFmtSetup(0x3A, 0x04, 1, true),
			reply:   &PortInputFmtSingle{Port: 0x3A, Mode: 0x04},
			want:    true,
		},
		{
			name:    "virtual connect",
			request: NewVirtualPortConnect(0x00, 0x01),
			reply:   &AttachedIO{Port: 0x10, Event: EventAttachedVirtual, VirtualPorts: [2]Port{0x00, 0x01}},
			want:    true,
		},
		{
			name:    "virtual disconnect",
			request: NewVirtualPortDisconnect(0x10),
			reply:   &AttachedIO{Port: 0x10, Event: EventDetached},
			want:    true,
		},
		{
			name:    "output completed",
			request: NewPortOutput(0x00, SubcmdStartSpeed, nil),
			reply:   &PortOutputFeedback{Entries: []FeedbackEntry{{Port: 0x00, Status: FeedbackCompleted | FeedbackIdle}}},
			want:    true,
		},
		{
			name:    "output still in progress",
			request: NewPortOutput(0x00, SubcmdStartSpeed, nil),
			reply:   &PortOutputFeedback{Entries: []FeedbackEntry{{Port: 0x00, Status: FeedbackInProgress}}},
			want:    false,
		},
		{
			name:    "buffered output any feedback",
			request: &PortOutput{Port: 0x00, Buffered: true, Feedback: true},
			reply:   &PortOutputFeedback{Entries: []FeedbackEntry{{Port: 0x00, Status: FeedbackInProgress}}},
			want:    true,
		},
		{
			name:    "generic error is not a kind match",
			request: NewPropertyRequest(PropAdvertiseName),
			reply:   &GenericError{Command: MsgHubProperties, Code: ErrCodeWrongCommand},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.request.IsReply(tt.reply); got != tt.want {
				t.Errorf("IsReply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeedsReply(t *testing.T) {
	tests := []struct {
		name string
		msg  Downstream
		want bool
	}{
		{"property request", NewPropertyRequest(PropAdvertiseName), true},
		{"property subscribe", NewPropertySubscribe(PropButton, true), false},
		{"switch off", NewHubAction(ActionSwitchOff), true},
		{"busy indication", NewHubAction(ActionBusyIndicationOn), false},
		{"alert request", NewAlertRequest(AlertLowVoltage), true},
		{"alert enable", &HubAlert{Alert: AlertLowVoltage, Operation: AlertOpUpdateEnable}, false},
		{"output with feedback", NewPortOutput(0x00, SubcmdStartPower, nil), true},
		{"output without feedback", &PortOutput{Port: 0x00}, false},
		{"input format setup", NewPortInputFmtSetup(0x00, 0x00, 1, false), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.NeedsReply(); got != tt.want {
				t.Errorf("NeedsReply() = %v, want %v", got, tt.want)
			}
		})
	}
}
