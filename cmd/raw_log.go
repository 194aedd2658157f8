// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw hub messages in human-readable format",
	Long: `Connect to a hub, enable notifications and decode every upstream message
as it arrives, without starting the hub orchestrator.

Each message is shown with a timestamp, its message type and its decoded
fields. Frames that fail to decode are shown as [ERROR] lines.

Supports native BLE, serial bridge and WebSocket bridge connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := connectTransport(ctx, conn); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	t := conn.Transport

	fmt.Printf("Hubctl - Raw Message Log\n")
	fmt.Printf("Connection: %s\n", conn.Info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	t.SetNotifyHandler(func(handle uint16, data []byte) {
		stamp := time.Now().Format("15:04:05.000")
		msg, err := lpf2.Decode(data)
		if err != nil {
			fmt.Printf("[%s] [ERROR] %v: % X\n", stamp, err, data)
			return
		}
		fmt.Printf("[%s] %s", stamp, lpf2.FormatMessage(msg))
	})
	if err := t.EnableNotifications(); err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}

	<-ctx.Done()
	fmt.Println()
	return nil
}
