// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var ledCmd = &cobra.Command{
	Use:   "led <color|index|r,g,b>",
	Short: "Set the hub light",
	Long: `Set the hub light to a color index or an RGB triple.

Colors: black, pink, purple, blue, lightblue, cyan, green, yellow, orange,
red, white, none. An index 0-10 or 255 is accepted as well.

Examples:
  hubctl --ble led red
  hubctl --ble led 3
  hubctl --ble led 255,128,0`,
	Args: cobra.ExactArgs(1),
	RunE: runLED,
}

func init() {
	rootCmd.AddCommand(ledCmd)
}

func runLED(cmd *cobra.Command, args []string) error {
	arg, err := parseLEDArg(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := OpenSession(ctx, nil)
	if err != nil {
		return err
	}
	defer closeSession(s)

	led, ok := s.LED()
	if !ok {
		return errors.New("hub light is not attached")
	}

	if arg.isRGB {
		if err := led.SetRGB(ctx, arg.rgb[0], arg.rgb[1], arg.rgb[2]); err != nil {
			return err
		}
		fmt.Printf("LED set to RGB %d,%d,%d\n", arg.rgb[0], arg.rgb[1], arg.rgb[2])
		return nil
	}

	if err := led.SetColorIndex(ctx, arg.index); err != nil {
		return err
	}
	fmt.Printf("LED set to %s\n", colorName(arg.index))
	return nil
}
