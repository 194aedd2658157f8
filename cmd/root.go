// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hubctl/pkg/hub"
)

var (
	// Serial bridge flags
	portName string
	baudRate int

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Native adapter
	useBLE bool

	// Hub selection
	hubMAC  string
	hubName string
	hubKind string

	// Behaviour
	replyTimeout time.Duration
	logLevel     string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "hubctl",
	Short: "LEGO Powered Up hub controller",
	Long: `Hubctl - A CLI tool for driving and monitoring LEGO Powered Up hubs.

Talks the LPF2 wire protocol to a BOOST move hub or a train hub, either
through the host's Bluetooth adapter or through a bridge that holds the BLE
connection on the host's behalf.

Connection modes:
  Native:    --ble [--mac 00:16:53:..] [--name "LEGO Move Hub"]
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the HUBCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: configureLogging,
}

func init() {
	// Serial bridge flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial bridge device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket bridge flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket bridge URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Native adapter
	rootCmd.PersistentFlags().BoolVar(&useBLE, "ble", false, "Connect through the host Bluetooth adapter")

	// Hub selection
	rootCmd.PersistentFlags().StringVar(&hubMAC, "mac", "", "Hub hardware address")
	rootCmd.PersistentFlags().StringVar(&hubName, "name", "", "Hub advertised name (default depends on --hub)")
	rootCmd.PersistentFlags().StringVar(&hubKind, "hub", "move", "Hub variant: move or train")

	// Behaviour
	rootCmd.PersistentFlags().DurationVar(&replyTimeout, "timeout", hub.DefaultReplyTimeout, "Reply timeout for hub requests")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// parseLogLevel maps a flag value to a slog level
func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %s", s)
}

func configureLogging(cmd *cobra.Command, args []string) error {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}

	format, err := parseLogFormat(logFormat)
	if err != nil {
		return err
	}

	hub.SetLogFormat(format)
	hub.SetLogLevel(level)
	return nil
}

// parseLogFormat maps a flag value to a hub log format
func parseLogFormat(s string) (hub.LogFormat, error) {
	switch strings.ToLower(s) {
	case "text":
		return hub.LogFormatText, nil
	case "json":
		return hub.LogFormatJSON, nil
	}
	return 0, fmt.Errorf("unknown log format: %s", s)
}
