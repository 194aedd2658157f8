// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", []byte{}, 0xFFFF},
		{"check value", []byte("123456789"), 0x29B1},
		{"single zero", []byte{0x00}, 0xE1F0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateCRC(tt.data); got != tt.want {
				t.Errorf("CalculateCRC(%X) = 0x%04X, want 0x%04X", tt.data, got, tt.want)
			}
		})
	}
}

// ============================================================
// Byte Stuffing Tests
// ============================================================

func TestStuffBytes(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"plain", []byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{"start", []byte{StartByte}, []byte{EscByte, 0x5E}},
		{"end", []byte{EndByte}, []byte{EscByte, 0x5F}},
		{"esc", []byte{EscByte}, []byte{EscByte, 0x5D}},
		{"mixed", []byte{0x10, StartByte, 0x20}, []byte{0x10, EscByte, 0x5E, 0x20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stuffBytes(tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("stuffBytes(%X) = %X, want %X", tt.in, got, tt.want)
			}
			back, err := UnstuffBytes(got)
			if err != nil {
				t.Fatalf("UnstuffBytes error: %v", err)
			}
			if !bytes.Equal(back, tt.in) {
				t.Errorf("UnstuffBytes(%X) = %X, want %X", got, back, tt.in)
			}
		})
	}
}

func TestUnstuffBytesTrailingEscape(t *testing.T) {
	_, err := UnstuffBytes([]byte{0x01, EscByte})
	if !errors.Is(err, ErrFraming) {
		t.Errorf("error = %v, want ErrFraming", err)
	}
}

// ============================================================
// Frame Encoding Tests
// ============================================================

func TestEncodeFrame(t *testing.T) {
	body := []byte{0x83, 0x01, 0x0E, 0x41, 0x05}
	frame, err := EncodeFrame(body)
	if err != nil {
		t.Fatalf("EncodeFrame error: %v", err)
	}

	if frame[0] != StartByte || frame[len(frame)-1] != EndByte {
		t.Fatalf("frame not delimited: %X", frame)
	}

	inner, err := UnstuffBytes(frame[1 : len(frame)-1])
	if err != nil {
		t.Fatalf("UnstuffBytes error: %v", err)
	}
	if inner[0] != byte(len(body)) {
		t.Errorf("length byte = %d, want %d", inner[0], len(body))
	}
	if !bytes.Equal(inner[1:1+len(body)], body) {
		t.Errorf("body = %X, want %X", inner[1:1+len(body)], body)
	}

	crc := CalculateCRC(inner[:1+len(body)])
	if inner[len(inner)-2] != byte(crc>>8) || inner[len(inner)-1] != byte(crc) {
		t.Errorf("CRC bytes = %X, want big-endian 0x%04X", inner[len(inner)-2:], crc)
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(make([]byte, MaxBodySize+1))
	if !errors.Is(err, ErrFraming) {
		t.Errorf("error = %v, want ErrFraming", err)
	}
}

// ============================================================
// Decoder Tests
// ============================================================

// feed runs data through d and returns every body and error produced
func feed(d *Decoder, data []byte) ([][]byte, []error) {
	var bodies [][]byte
	var errs []error
	for _, b := range data {
		body, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if body != nil {
			bodies = append(bodies, body)
		}
	}
	return bodies, errs
}

func mustFrame(t *testing.T, body []byte) []byte {
	t.Helper()
	frame, err := EncodeFrame(body)
	if err != nil {
		t.Fatalf("EncodeFrame error: %v", err)
	}
	return frame
}

func TestDecoderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty", []byte{}},
		{"plain", []byte{0x01, 0x02, 0x03}},
		{"needs stuffing", []byte{StartByte, EndByte, EscByte, 0x00}},
		{"max size", bytes.Repeat([]byte{0x7E}, MaxBodySize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			bodies, errs := feed(d, mustFrame(t, tt.body))
			if len(errs) != 0 {
				t.Fatalf("errors: %v", errs)
			}
			if len(bodies) != 1 || !bytes.Equal(bodies[0], tt.body) {
				t.Errorf("bodies = %X, want [%X]", bodies, tt.body)
			}
		})
	}
}

func TestDecoderBackToBack(t *testing.T) {
	d := NewDecoder()
	stream := append(mustFrame(t, []byte{0x01}), mustFrame(t, []byte{0x02, 0x03})...)
	bodies, errs := feed(d, stream)
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(bodies) != 2 {
		t.Fatalf("got %d bodies, want 2", len(bodies))
	}
	if !bytes.Equal(bodies[1], []byte{0x02, 0x03}) {
		t.Errorf("second body = %X", bodies[1])
	}
}

func TestDecoderErrors(t *testing.T) {
	good := mustFrame(t, []byte{0x10, 0x20})

	corrupt := append([]byte(nil), good...)
	corrupt[3] ^= 0x01

	truncated := append([]byte{StartByte, 0x05, 0x01}, EndByte)

	overlong := append([]byte(nil), good[:len(good)-1]...)
	overlong = append(overlong, 0x00, EndByte)

	tests := []struct {
		name string
		data []byte
	}{
		{"crc mismatch", corrupt},
		{"end before body", truncated},
		{"extra byte before end", overlong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			bodies, errs := feed(d, tt.data)
			if len(bodies) != 0 {
				t.Errorf("bodies = %X, want none", bodies)
			}
			if len(errs) != 1 || !errors.Is(errs[0], ErrFraming) {
				t.Fatalf("errs = %v, want one ErrFraming", errs)
			}

			// The stream recovers on the next frame
			bodies, errs = feed(d, good)
			if len(errs) != 0 || len(bodies) != 1 {
				t.Errorf("after error: bodies = %X, errs = %v", bodies, errs)
			}
		})
	}
}

func TestDecoderSkipsNoiseAndResyncs(t *testing.T) {
	d := NewDecoder()

	// Noise, a frame cut short by a new START, then a whole frame
	stream := []byte{0x00, 0x55, EndByte, StartByte, 0x03, 0x01}
	stream = append(stream, mustFrame(t, []byte{0xAA})...)

	bodies, errs := feed(d, stream)
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(bodies) != 1 || !bytes.Equal(bodies[0], []byte{0xAA}) {
		t.Errorf("bodies = %X, want [AA]", bodies)
	}
}

func TestDecoderRawBytes(t *testing.T) {
	d := NewDecoder()
	frame := mustFrame(t, []byte{0x01})
	feed(d, frame[:len(frame)-1])
	if !bytes.Equal(d.RawBytes(), frame[:len(frame)-1]) {
		t.Errorf("RawBytes = %X, want %X", d.RawBytes(), frame[:len(frame)-1])
	}
}

// ============================================================
// Envelope Tests
// ============================================================

func TestEnvelopeWireFormat(t *testing.T) {
	data, err := MarshalEnvelope(NewWriteEnvelope(0x0E, []byte{0x05, 0x00, 0x01}))
	if err != nil {
		t.Fatalf("MarshalEnvelope error: %v", err)
	}

	// [1, 14, h'050001']
	want := []byte{0x83, 0x01, 0x0E, 0x43, 0x05, 0x00, 0x01}
	if !bytes.Equal(data, want) {
		t.Errorf("envelope = %X, want %X", data, want)
	}

	env, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope error: %v", err)
	}
	if env.Op != OpWrite || env.Handle != 0x0E || !bytes.Equal(env.Data, want[4:]) {
		t.Errorf("decoded = %+v", env)
	}
}

func TestConnectEnvelope(t *testing.T) {
	env, err := NewConnectEnvelope(ConnectParams{MAC: "00:16:53:A4:CD:7E", Name: "LEGO Move Hub"})
	if err != nil {
		t.Fatalf("NewConnectEnvelope error: %v", err)
	}

	data, err := MarshalEnvelope(env)
	if err != nil {
		t.Fatalf("MarshalEnvelope error: %v", err)
	}
	decoded, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope error: %v", err)
	}

	params, err := decoded.ConnectParams()
	if err != nil {
		t.Fatalf("ConnectParams error: %v", err)
	}
	if params.MAC != "00:16:53:A4:CD:7E" || params.Name != "LEGO Move Hub" {
		t.Errorf("params = %+v", params)
	}

	if _, err := decoded.ConnectStatus(); err == nil {
		t.Error("ConnectStatus on a connect envelope should fail")
	}
}

func TestConnectedEnvelope(t *testing.T) {
	for _, status := range []ConnectStatus{ConnectOK, ConnectNotFound, ConnectFailed, ConnectBusy} {
		t.Run(status.String(), func(t *testing.T) {
			env := NewConnectedEnvelope(status)
			got, err := env.ConnectStatus()
			if err != nil {
				t.Fatalf("ConnectStatus error: %v", err)
			}
			if got != status {
				t.Errorf("status = %s, want %s", got, status)
			}
		})
	}
}

func TestUnmarshalEnvelopeRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not an array", []byte{0x01}},
		{"unknown op", []byte{0x83, 0x09, 0x00, 0x40}},
		{"truncated", []byte{0x83, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalEnvelope(tt.data); err == nil {
				t.Errorf("UnmarshalEnvelope(%X) succeeded", tt.data)
			}
		})
	}
}
