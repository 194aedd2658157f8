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

	"github.com/Thermoquad/hubctl/pkg/hub"
)

var (
	sensorMode        int
	sensorGranularity uint32
	sensorDuration    time.Duration
	sensorOnce        bool
)

var sensorCmd = &cobra.Command{
	Use:   "sensor <port>",
	Short: "Stream values from a peripheral",
	Long: `Subscribe to a peripheral in the given mode and print each value as it
arrives.

Without --mode the default mode of the peripheral class is used. The
granularity is the minimum change between reported values. With --once a
single value is requested and printed.

Examples:
  hubctl --ble sensor TILT --mode 0
  hubctl --ble sensor C --granularity 1 --duration 30s
  hubctl --ble sensor VOLTAGE --once`,
	Args: cobra.ExactArgs(1),
	RunE: runSensor,
}

func init() {
	sensorCmd.Flags().IntVar(&sensorMode, "mode", -1, "Input mode (default depends on the peripheral)")
	sensorCmd.Flags().Uint32Var(&sensorGranularity, "granularity", 1, "Minimum change between notifications")
	sensorCmd.Flags().DurationVar(&sensorDuration, "duration", 0, "Stop after this long (0 runs until Ctrl+C)")
	sensorCmd.Flags().BoolVar(&sensorOnce, "once", false, "Read a single value and exit")
	rootCmd.AddCommand(sensorCmd)
}

func runSensor(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	if sensorMode > 0xFF {
		return fmt.Errorf("invalid mode: %d", sensorMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := OpenSession(ctx, nil)
	if err != nil {
		return err
	}
	defer closeSession(s)

	p, ok := s.Hub.Peripheral(port)
	if !ok {
		return fmt.Errorf("nothing attached to port %s", portLabel(port))
	}
	mode := defaultMode(p.Kind())
	if sensorMode >= 0 {
		mode = uint8(sensorMode)
	}

	if sensorOnce {
		r, err := p.ReadValue(ctx, mode)
		if err != nil {
			return err
		}
		fmt.Println(formatReading(r))
		return nil
	}

	fmt.Printf("%s mode %d, press Ctrl+C to exit\n", p, mode)

	values := make(chan hub.Reading, 64)
	sub, err := p.Subscribe(ctx, mode, sensorGranularity, func(r hub.Reading) {
		select {
		case values <- r:
		default:
		}
	})
	if err != nil {
		return err
	}

	var deadline <-chan time.Time
	if sensorDuration > 0 {
		deadline = time.After(sensorDuration)
	}

	for {
		select {
		case r := <-values:
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), formatReading(r))
		case <-deadline:
			return unsubscribe(p, sub)
		case <-ctx.Done():
			return unsubscribe(p, sub)
		case <-s.Hub.Done():
			return s.Hub.Err()
		}
	}
}

func unsubscribe(p hub.Peripheral, sub *hub.Subscription) error {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	return p.Unsubscribe(ctx, sub)
}
