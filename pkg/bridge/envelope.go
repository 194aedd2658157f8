// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Envelope is one link message: [op, handle, data]. Data is the raw GATT
// value for write and notify, and a nested CBOR item for connect and
// connected.
type Envelope struct {
	_      struct{} `cbor:",toarray"`
	Op     Op
	Handle uint16
	Data   []byte
}

// ConnectParams selects the hub the bridge should connect to. Empty fields
// let the bridge pick the first hub it sees.
type ConnectParams struct {
	MAC  string `cbor:"0,keyasint,omitempty"`
	Name string `cbor:"1,keyasint,omitempty"`
}

type connectedData struct {
	_      struct{} `cbor:",toarray"`
	Status ConnectStatus
}

// MarshalEnvelope encodes an envelope as CBOR
func MarshalEnvelope(env Envelope) ([]byte, error) {
	data, err := cbor.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", env.Op, err)
	}
	return data, nil
}

// UnmarshalEnvelope decodes a CBOR envelope
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return env, fmt.Errorf("empty CBOR payload")
	}
	if err := cbor.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Op < OpWrite || env.Op > OpDisconnected {
		return env, fmt.Errorf("unknown envelope op: %d", env.Op)
	}
	return env, nil
}

// NewWriteEnvelope wraps a GATT write
func NewWriteEnvelope(handle uint16, data []byte) Envelope {
	return Envelope{Op: OpWrite, Handle: handle, Data: data}
}

// NewNotifyEnvelope wraps a GATT notification
func NewNotifyEnvelope(handle uint16, data []byte) Envelope {
	return Envelope{Op: OpNotify, Handle: handle, Data: data}
}

// NewConnectEnvelope builds a connect request
func NewConnectEnvelope(params ConnectParams) (Envelope, error) {
	data, err := cbor.Marshal(params)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode connect params: %w", err)
	}
	return Envelope{Op: OpConnect, Data: data}, nil
}

// NewConnectedEnvelope builds a connect result
func NewConnectedEnvelope(status ConnectStatus) Envelope {
	// A one-element array of a small uint cannot fail to encode
	data, _ := cbor.Marshal(connectedData{Status: status})
	return Envelope{Op: OpConnected, Data: data}
}

// ConnectParams decodes the data of a connect request
func (e Envelope) ConnectParams() (ConnectParams, error) {
	var params ConnectParams
	if e.Op != OpConnect {
		return params, fmt.Errorf("not a connect envelope: %s", e.Op)
	}
	if len(e.Data) == 0 {
		return params, nil
	}
	if err := cbor.Unmarshal(e.Data, &params); err != nil {
		return params, fmt.Errorf("failed to decode connect params: %w", err)
	}
	return params, nil
}

// ConnectStatus decodes the data of a connect result
func (e Envelope) ConnectStatus() (ConnectStatus, error) {
	if e.Op != OpConnected {
		return 0, fmt.Errorf("not a connected envelope: %s", e.Op)
	}
	var cd connectedData
	if err := cbor.Unmarshal(e.Data, &cd); err != nil {
		return 0, fmt.Errorf("failed to decode connect status: %w", err)
	}
	return cd.Status, nil
}
