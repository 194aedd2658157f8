// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hubctl/pkg/hub"
	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

var (
	statusShowStats bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hub status and attached peripherals",
	Long: `Connect to a hub, run the status handshake and list every attached
peripheral with its port, device type and class.

The status handshake reads the advertised name, the hardware address, the
battery level and the low voltage alert.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusShowStats, "stats", false, "Print frame statistics after the report")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := OpenSession(ctx, nil)
	if err != nil {
		return err
	}
	defer closeSession(s)

	st, err := s.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Connection: %s\n", s.Conn.Info)
	printStatus(st)
	fmt.Println()
	printPeripherals(s.Hub.Peripherals())

	if statusShowStats {
		fmt.Println()
		fmt.Print(s.Hub.Statistics().String())
	}
	return nil
}

// closeSession disconnects with a bounded wait
func closeSession(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Close(ctx)
}

func printStatus(st hub.Status) {
	fmt.Printf("Name:        %s\n", st.Name)
	fmt.Printf("MAC:         %s\n", st.MAC)
	fmt.Printf("Battery:     %d%%\n", st.BatteryPercent)
	if st.LowVoltage {
		fmt.Printf("Low voltage: YES - check power source\n")
	} else {
		fmt.Printf("Low voltage: no\n")
	}
}

func printPeripherals(ps []hub.Peripheral) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Port() < ps[j].Port() })

	fmt.Printf("%-8s %-24s %-16s %s\n", "PORT", "DEVICE", "CLASS", "MODE")
	for _, p := range ps {
		port := portLabel(p.Port())
		if vp, ok := p.VirtualPorts(); ok {
			port = fmt.Sprintf("%s (%s+%s)", port, portLabel(vp[0]), portLabel(vp[1]))
		}
		mode := "-"
		if m, ok := p.Mode(); ok {
			mode = fmt.Sprintf("%d", m)
		}
		fmt.Printf("%-8s %-24s %-16s %s\n", port, lpf2.FormatDeviceType(p.DeviceType()), p.Kind(), mode)
	}
	if len(ps) == 0 {
		fmt.Println("(no peripherals attached)")
	}
}
