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

	"github.com/Thermoquad/hubctl/pkg/ble"
	"github.com/Thermoquad/hubctl/pkg/hub"
)

var (
	scanTimeout int
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover hubs through the host Bluetooth adapter",
	Long: `Scan for LPF2 hubs advertising the hub service and list their hardware
address, advertised name and signal strength.

The address or name of a listed hub can be passed to --mac or --name to pick
it when several hubs are in range.

Examples:
  hubctl scan
  hubctl scan --timeout 10

Exit codes:
  0 - Scan successful (at least one hub found)
  1 - Scan failed (no hubs found)
  2 - Adapter error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan duration in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	t, err := ble.New(ble.WithLogger(hub.DefaultLogger()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Adapter error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Hubctl - Hub Discovery\n")
	fmt.Printf("Timeout: %d seconds\n\n", scanTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(scanTimeout)*time.Second)
	defer cancel()

	hubs, err := t.Discover(ctx, func(ad ble.Advertisement) {
		fmt.Printf("Hub found: %s %q (RSSI %d dBm)\n", ad.Address, ad.Name, ad.RSSI)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan error: %v\n", err)
		os.Exit(2)
	}

	// Summary
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Hubs found: %d\n", len(hubs))
	if len(hubs) == 0 {
		fmt.Printf("No hubs discovered. Press the hub button so it advertises.\n")
		os.Exit(1)
	}

	fmt.Printf("\n%-20s %-6s %s\n", "ADDRESS", "RSSI", "NAME")
	for _, ad := range hubs {
		fmt.Printf("%-20s %-6d %s\n", ad.Address, ad.RSSI, ad.Name)
	}
	return nil
}
