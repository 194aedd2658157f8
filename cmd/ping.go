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
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure request round trips to the hub",
	Long: `Request the battery level repeatedly and report the round trip time of
each reply.

This command exercises the full request path: the transport (native, serial
bridge or WebSocket bridge), the hub's reply matching and the hub itself. The
per-request timeout is set by --timeout.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := OpenSession(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Hubctl - Ping Test\n")
	fmt.Printf("Connection: %s\n", s.Conn.Info)
	fmt.Printf("Timeout: %s per ping\n", replyTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	var total, best, worst time.Duration

	for i := 1; i <= pingCount && ctx.Err() == nil; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		battery, err := s.Hub.BatteryPercent(ctx)
		rtt := time.Since(start)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("battery=%d%%, rtt=%v\n", battery, rtt.Round(time.Millisecond))
			successCount++
			total += rtt
			if best == 0 || rtt < best {
				best = rtt
			}
			if rtt > worst {
				worst = rtt
			}
		}

		if i < pingCount {
			select {
			case <-time.After(pingInterval):
			case <-ctx.Done():
			}
		}
	}
	sent := successCount + failCount
	closeSession(s)

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	if sent > 0 {
		fmt.Printf("%d pings sent, %d replies received, %.0f%% loss\n",
			sent, successCount, float64(failCount)/float64(sent)*100)
	}
	if successCount > 0 {
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			best.Round(time.Millisecond),
			(total / time.Duration(successCount)).Round(time.Millisecond),
			worst.Round(time.Millisecond))
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
