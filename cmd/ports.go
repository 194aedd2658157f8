// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/hubctl/pkg/hub"
	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

var (
	portsShowInfo bool
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List attached peripherals and their modes",
	Long: `List the peripherals attached to the hub.

With --info, each port is queried for its mode summary and the name of every
mode it offers. Queries run one at a time; a port that rejects the query is
reported and skipped.`,
	RunE: runPorts,
}

func init() {
	portsCmd.Flags().BoolVar(&portsShowInfo, "info", false, "Query mode information for each port")
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := OpenSession(ctx, nil)
	if err != nil {
		return err
	}
	defer closeSession(s)

	ps := s.Hub.Peripherals()
	if !portsShowInfo {
		printPeripherals(ps)
		return nil
	}

	sort.Slice(ps, func(i, j int) bool { return ps[i].Port() < ps[j].Port() })
	for _, p := range ps {
		fmt.Printf("%s: %s (%s)\n", portLabel(p.Port()), lpf2.FormatDeviceType(p.DeviceType()), p.Kind())
		if err := printPortModes(ctx, s.Hub, p.Port()); err != nil {
			fmt.Printf("  [ERROR] %v\n", err)
		}
	}
	return nil
}

// printPortModes queries the mode summary of a port and names each mode
func printPortModes(ctx context.Context, h *hub.Hub, port lpf2.Port) error {
	info, err := h.PortInfo(ctx, port, lpf2.PortInfoModeInfo)
	if err != nil {
		return err
	}
	caps, count, in, out, ok := info.ModeInfo()
	if !ok {
		return fmt.Errorf("short mode info reply")
	}
	fmt.Printf("  capabilities 0x%02X, %d modes, input 0x%04X, output 0x%04X\n", caps, count, in, out)

	for mode := uint8(0); mode < count; mode++ {
		mi, err := h.PortModeInfo(ctx, port, mode, lpf2.ModeInfoName)
		if err != nil {
			return fmt.Errorf("mode %d: %w", mode, err)
		}
		dir := ""
		if in&(1<<mode) != 0 {
			dir += "in"
		}
		if out&(1<<mode) != 0 {
			if dir != "" {
				dir += "/"
			}
			dir += "out"
		}
		fmt.Printf("  %2d %-12s %s\n", mode, mi.Text(), dir)
	}
	return nil
}
