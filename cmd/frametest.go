// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

var (
	frameTestTimeout int
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid LPF2 frame",
	Long: `Wait for a valid LPF2 frame from the hub until timeout.

This command connects the transport, enables notifications and waits for any
frame that decodes. A hub announces its attached peripherals as soon as
notifications are enabled, so a healthy link answers immediately. Frames that
fail to decode are counted and skipped.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for testing connectivity through a serial or WebSocket bridge.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "wait", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(frameTestTimeout)*time.Second)
	defer cancel()

	conn, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Hubctl - Frame Test\n")
	fmt.Printf("Connection: %s\n", conn.Info)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)

	if err := connectTransport(ctx, conn); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	t := conn.Transport
	fmt.Printf("Waiting for valid LPF2 frame...\n\n")

	frames := make(chan lpf2.Upstream, 1)
	var invalid atomic.Int32
	t.SetNotifyHandler(func(handle uint16, data []byte) {
		msg, err := lpf2.Decode(data)
		if err != nil {
			invalid.Add(1)
			return
		}
		select {
		case frames <- msg:
		default:
		}
	})
	if err := t.EnableNotifications(); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	select {
	case msg := <-frames:
		if n := invalid.Load(); n > 0 {
			fmt.Printf("(skipped %d malformed frames)\n", n)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", lpf2.FormatMessageType(msg.Type()), byte(msg.Type()))
		fmt.Printf("  %s", lpf2.FormatMessage(msg))
		conn.Close()
		os.Exit(0)

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		conn.Close()
		os.Exit(1)
	}

	return nil
}
