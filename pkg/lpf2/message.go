// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpf2

import (
	"errors"
	"fmt"
)

// Codec errors
var (
	// ErrMalformedMessage is returned for frames that cannot be decoded.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrFrameTooLong is returned when an encoded frame exceeds MaxFrameSize.
	ErrFrameTooLong = errors.New("frame too long")
)

// Message is any LPF2 message
type Message interface {
	Type() MessageType
}

// Downstream is a host to hub command.
//
// NeedsReply reports whether the hub answers the command with a correlated
// upstream message, and IsReply tests whether u is that answer.
type Downstream interface {
	Message
	NeedsReply() bool
	IsReply(u Upstream) bool
	payload() []byte
}

// Upstream is a hub to host message
type Upstream interface {
	Message
	upstream()
}

// Encode builds the wire frame for a downstream message
func Encode(m Downstream) ([]byte, error) {
	body := m.payload()
	length := HeaderSize + len(body)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLong, length, MaxFrameSize)
	}

	frame := make([]byte, 0, length)
	frame = append(frame, byte(length), HubID, byte(m.Type()))
	frame = append(frame, body...)
	return frame, nil
}

// MustEncode encodes a downstream message, panicking on error.
// Use Encode for error handling.
func MustEncode(m Downstream) []byte {
	data, err := Encode(m)
	if err != nil {
		panic(fmt.Sprintf("lpf2: encode error: %v", err))
	}
	return data
}

// upstreamKind describes how one upstream message type is decoded
type upstreamKind struct {
	msgType MessageType
	minLen  int
	decode  func(body []byte) (Upstream, error)
}

// upstreamKinds is searched in order; the first kind whose tag matches wins.
var upstreamKinds = []upstreamKind{
	{MsgHubProperties, HeaderSize + 2, decodeHubProperties},
	{MsgHubAction, HeaderSize + 1, decodeHubAction},
	{MsgHubAlert, HeaderSize + 2, decodeHubAlert},
	{MsgHubAttachedIO, HeaderSize + 2, decodeAttachedIO},
	{MsgGenericError, HeaderSize + 2, decodeGenericError},
	{MsgPortInfo, HeaderSize + 2, decodePortInfo},
	{MsgPortModeInfo, HeaderSize + 3, decodePortModeInfo},
	{MsgPortValueSingle, HeaderSize + 1, decodePortValueSingle},
	{MsgPortValueCombined, HeaderSize + 1, decodePortValueCombined},
	{MsgPortInputFmtSingle, HeaderSize + 7, decodePortInputFmtSingle},
	{MsgPortInputFmtCombo, HeaderSize + 1, decodePortInputFmtCombined},
	{MsgPortOutputFeedback, HeaderSize + 2, decodePortOutputFeedback},
}

// Decode parses a single notification frame into an upstream message.
// It never retains or modifies data.
func Decode(data []byte) (Upstream, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrMalformedMessage, len(data))
	}
	if int(data[offsetLength]) != len(data) {
		return nil, fmt.Errorf("%w: length byte %d, frame has %d bytes", ErrMalformedMessage, data[offsetLength], len(data))
	}
	if data[offsetHubID] != HubID {
		return nil, fmt.Errorf("%w: unexpected hub id 0x%02X", ErrMalformedMessage, data[offsetHubID])
	}

	msgType := MessageType(data[offsetType])
	for _, kind := range upstreamKinds {
		if kind.msgType != msgType {
			continue
		}
		if len(data) < kind.minLen {
			return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrMalformedMessage, FormatMessageType(msgType), kind.minLen, len(data))
		}
		body := make([]byte, len(data)-HeaderSize)
		copy(body, data[HeaderSize:])
		msg, err := kind.decode(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, FormatMessageType(msgType), err)
		}
		return msg, nil
	}

	return nil, fmt.Errorf("%w: unknown message type 0x%02X", ErrMalformedMessage, byte(msgType))
}
