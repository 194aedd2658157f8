// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/hubctl/pkg/ble"
	"github.com/Thermoquad/hubctl/pkg/bridge"
	"github.com/Thermoquad/hubctl/pkg/hub"
)

// Connection is an open transport and the means to release it
type Connection struct {
	Transport hub.Transport
	Info      string
	close     func() error
}

// Close releases the transport
func (c *Connection) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("HUBCTL_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens the transport selected by the connection flags.
// The hub itself is not connected yet.
func OpenConnection(ctx context.Context) (*Connection, error) {
	logger := hub.DefaultLogger()

	switch {
	case useBLE:
		t, err := ble.New(ble.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &Connection{Transport: t, Info: "BLE: host adapter", close: t.Disconnect}, nil

	case wsURL != "":
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, err
			}
		}

		link, err := bridge.DialWebSocket(ctx, wsURL, bridge.WebSocketOptions{
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
		}, bridge.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &Connection{Transport: link, Info: fmt.Sprintf("WebSocket: %s", wsURL), close: link.Close}, nil

	case portName != "":
		link, err := bridge.OpenSerial(portName, baudRate, bridge.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &Connection{Transport: link, Info: fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), close: link.Close}, nil
	}

	return nil, errors.New("one of --ble, --port or --url must be specified")
}

// connectTransport connects the hub on conn without starting the hub
// orchestrator. Without --mac or --name the default name of --hub is used.
func connectTransport(ctx context.Context, conn *Connection) error {
	if conn.Transport.IsAlive() {
		return nil
	}
	name := hubName
	if name == "" && hubMAC == "" {
		name = defaultHubName()
	}
	return conn.Transport.Connect(ctx, hubMAC, name)
}

// hubOptions builds hub options from the flags
func hubOptions(diagnostics func(error)) []hub.Option {
	opts := []hub.Option{
		hub.WithReplyTimeout(replyTimeout),
		hub.WithMAC(hubMAC),
	}
	if hubName != "" {
		opts = append(opts, hub.WithName(hubName))
	}
	if diagnostics != nil {
		opts = append(opts, hub.WithDiagnostics(diagnostics))
	}
	return opts
}

// Session is a started hub of the variant selected by --hub
type Session struct {
	Hub   *hub.Hub
	Move  *hub.MoveHub  // nil unless --hub=move
	Train *hub.TrainHub // nil unless --hub=train
	Conn  *Connection
}

// OpenSession opens the transport and starts the selected hub variant
func OpenSession(ctx context.Context, diagnostics func(error)) (*Session, error) {
	conn, err := OpenConnection(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{Conn: conn}
	opts := hubOptions(diagnostics)

	switch strings.ToLower(hubKind) {
	case "move":
		s.Move, err = hub.NewMoveHub(ctx, conn.Transport, opts...)
		if err == nil {
			s.Hub = s.Move.Hub
		}
	case "train":
		s.Train, err = hub.NewTrainHub(ctx, conn.Transport, opts...)
		if err == nil {
			s.Hub = s.Train.Hub
		}
	default:
		err = fmt.Errorf("unknown hub variant: %s (use move or train)", hubKind)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close disconnects the hub and releases the transport
func (s *Session) Close(ctx context.Context) {
	s.Hub.Close(ctx)
	s.Conn.Close()
}

// Status returns the handshake status read when the session opened
func (s *Session) Status(ctx context.Context) (hub.Status, error) {
	switch {
	case s.Move != nil:
		return s.Move.Status(), nil
	case s.Train != nil:
		return s.Train.Status(), nil
	}
	return s.Hub.ReadStatus(ctx)
}

// LED returns the hub light of either variant
func (s *Session) LED() (*hub.LED, bool) {
	if s.Move != nil {
		return s.Move.LED()
	}
	return s.Train.LED()
}

// Button returns the hub button of either variant
func (s *Session) Button() *hub.Button {
	if s.Move != nil {
		return s.Move.Button
	}
	return s.Train.Button
}
