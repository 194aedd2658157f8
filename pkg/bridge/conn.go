// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed connection
var ErrConnectionClosed = errors.New("bridge connection closed")

// Conn carries whole link messages. ReadMessage returns an error wrapping
// ErrFraming for a dropped frame; the connection stays usable after it.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(msg []byte) error
	Close() error
}

// ============================================================
// Framed Byte Stream
// ============================================================

// streamConn frames messages over a byte stream such as a serial port
type streamConn struct {
	rwc     io.ReadWriteCloser
	reader  *bufio.Reader
	decoder *Decoder
	writeMu sync.Mutex
}

// NewStreamConn frames link messages over rwc
func NewStreamConn(rwc io.ReadWriteCloser) Conn {
	return &streamConn{
		rwc:     rwc,
		reader:  bufio.NewReader(rwc),
		decoder: NewDecoder(),
	}
}

func (s *streamConn) ReadMessage() ([]byte, error) {
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		body, err := s.decoder.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if body != nil {
			return body, nil
		}
	}
}

func (s *streamConn) WriteMessage(msg []byte) error {
	frame, err := EncodeFrame(msg)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.rwc.Write(frame); err != nil {
		return err
	}
	return nil
}

func (s *streamConn) Close() error {
	return s.rwc.Close()
}

// ============================================================
// WebSocket
// ============================================================

// wsConn carries one link message per binary websocket message
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool // set once a read fails
}

// NewWebSocketConn carries link messages over an established websocket
func NewWebSocketConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	if w.closed {
		return nil, ErrConnectionClosed
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return nil, err
		}

		// Text messages are bridge chatter, not link traffic
		if messageType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (w *wsConn) WriteMessage(msg []byte) error {
	if len(msg) > MaxBodySize {
		return fmt.Errorf("message too large: %d bytes (max %d)", len(msg), MaxBodySize)
	}

	// gorilla allows one concurrent writer
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (w *wsConn) Close() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteMessage(websocket.CloseMessage, msg)
	return w.conn.Close()
}
