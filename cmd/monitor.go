// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hubctl/pkg/hub"
	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

var (
	showAll       bool
	statsInterval int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Detect and analyze hub errors and malformed frames",
	Long: `Track malformed frames, rejected commands and other hub diagnostics with
statistics.

This command subscribes to every attached peripheral and reports:
  - Malformed frames the decoder rejects
  - Commands the hub answers with a generic error
  - Values for ports with nothing attached
  - Unknown device types and low battery alerts
  - Statistics and trends (frame rate, error rate, decode rate)

By default, only diagnostics are displayed. Use --show-all to display
peripheral values and attach events too.

Diagnostics are highlighted as they happen, with periodic statistics
summaries displayed at configurable intervals.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show values and events (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// classifyDiagnostic returns a short label for a hub diagnostic
func classifyDiagnostic(err error) string {
	var cmdErr *hub.CommandError
	switch {
	case errors.As(err, &cmdErr):
		return "COMMAND REJECTED"
	case errors.Is(err, lpf2.ErrMalformedMessage):
		return "MALFORMED FRAME"
	case errors.Is(err, hub.ErrNoPeripheralOnPort):
		return "ORPHAN VALUE"
	case errors.Is(err, hub.ErrUnknownDeviceType):
		return "UNKNOWN DEVICE"
	case errors.Is(err, hub.ErrLowVoltage):
		return "LOW VOLTAGE"
	}
	return "DIAGNOSTIC"
}

// printDiagnostic prints a diagnostic in highlighted format
func printDiagnostic(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31m%s:\033[0m %v\n", timestamp, classifyDiagnostic(err), err)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	diagnostics := make(chan error, 64)
	s, err := OpenSession(ctx, func(err error) {
		select {
		case diagnostics <- err:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer closeSession(s)

	fmt.Printf("Hubctl - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", s.Conn.Info)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All events\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	readings := make(chan hub.Reading, 64)
	subscribe := func(p hub.Peripheral) {
		if p.Kind() == hub.KindLED {
			return
		}
		_, err := p.Subscribe(ctx, defaultMode(p.Kind()), 1, func(r hub.Reading) {
			select {
			case readings <- r:
			default:
			}
		})
		if err != nil {
			printDiagnostic(fmt.Errorf("subscribe %s: %w", portLabel(p.Port()), err))
		}
	}

	s.Hub.OnAttach(func(p hub.Peripheral) {
		if showAll {
			fmt.Printf("[%s] ATTACHED: %s\n", time.Now().Format("15:04:05.000"), p)
		}
		go subscribe(p)
	})
	s.Hub.OnDetach(func(p hub.Peripheral) {
		if showAll {
			fmt.Printf("[%s] DETACHED: %s\n", time.Now().Format("15:04:05.000"), p)
		}
	})
	for _, p := range s.Hub.Peripherals() {
		subscribe(p)
	}

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case err := <-diagnostics:
			printDiagnostic(err)

		case r := <-readings:
			if showAll {
				fmt.Printf("[%s] %s mode %d: %s\n", time.Now().Format("15:04:05.000"),
					portLabel(r.Port), r.Mode, formatReading(r))
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(s.Hub.Statistics().String())
			fmt.Println()

		case <-s.Hub.Done():
			fmt.Println()
			fmt.Print(s.Hub.Statistics().String())
			return s.Hub.Err()

		case <-ctx.Done():
			fmt.Println()
			fmt.Print(s.Hub.Statistics().String())
			return nil
		}
	}
}
