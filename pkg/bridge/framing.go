// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
)

// ErrFraming wraps every serial framing error. Framing errors cost one
// frame; the stream stays usable.
var ErrFraming = errors.New("bridge framing error")

// EncodeFrame wraps body in a serial frame: START, stuffed length, body and
// big-endian CRC, END. The CRC covers the length byte and the body.
func EncodeFrame(body []byte) ([]byte, error) {
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: body too large: %d bytes (max %d)", ErrFraming, len(body), MaxBodySize)
	}

	data := make([]byte, 0, 1+len(body)+2)
	data = append(data, uint8(len(body)))
	data = append(data, body...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)
	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// stuffBytes escapes START, END and ESC as ESC + (byte XOR EscXor)
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("%w: incomplete escape sequence at end of data", ErrFraming)
	}
	return result, nil
}

// Decoder is the serial frame decoder state machine
type Decoder struct {
	state      int
	buffer     []byte // length byte and body, as covered by the CRC
	bodyLen    int
	crc        uint16
	escapeNext bool
	rawBuffer  []byte
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, 0, 1+MaxBodySize),
		rawBuffer: make([]byte, 0, MaxFrameSize*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.bodyLen = 0
	d.crc = 0
	d.escapeNext = false
	d.rawBuffer = d.rawBuffer[:0]
}

// RawBytes returns the wire bytes accumulated since the last frame started
func (d *Decoder) RawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte feeds one wire byte to the decoder. It returns the frame body
// once a frame with a valid CRC completes, nil while a frame is incomplete,
// and an error wrapping ErrFraming when a frame is dropped.
func (d *Decoder) DecodeByte(b byte) ([]byte, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	// Delimiters never appear stuffed, so they resync even mid-escape
	switch b {
	case StartByte:
		d.Reset()
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = stateLength
		return nil, nil
	case EndByte:
		d.escapeNext = false
		return d.finish()
	}

	if d.escapeNext {
		d.escapeNext = false
		return d.accept(b ^ EscXor)
	}
	if b == EscByte {
		d.escapeNext = true
		return nil, nil
	}
	return d.accept(b)
}

// accept handles one unstuffed byte
func (d *Decoder) accept(b byte) ([]byte, error) {
	switch d.state {
	case stateIdle:
		// Waiting for START byte
		return nil, nil

	case stateLength:
		d.buffer = append(d.buffer, b)
		d.bodyLen = int(b)
		if d.bodyLen == 0 {
			d.state = stateCRC1
		} else {
			d.state = stateBody
		}
		return nil, nil

	case stateBody:
		d.buffer = append(d.buffer, b)
		if len(d.buffer)-1 >= d.bodyLen {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("%w: frame longer than its length byte", ErrFraming)
	}

	state := d.state
	d.Reset()
	return nil, fmt.Errorf("%w: invalid state %d", ErrFraming, state)
}

// finish handles an END byte
func (d *Decoder) finish() ([]byte, error) {
	if d.state == stateIdle {
		// Tail of a frame we joined mid-way
		d.Reset()
		return nil, nil
	}
	if d.state != stateEnd {
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("%w: unexpected END byte in state %d", ErrFraming, state)
	}

	calculated := CalculateCRC(d.buffer)
	if d.crc != calculated {
		err := fmt.Errorf("%w: CRC mismatch: expected 0x%04X, got 0x%04X", ErrFraming, calculated, d.crc)
		d.Reset()
		return nil, err
	}

	body := make([]byte, d.bodyLen)
	copy(body, d.buffer[1:])
	d.Reset()
	return body, nil
}
