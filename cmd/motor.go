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
)

var (
	motorSpeed     float64
	motorSecondary float64
	motorSeconds   float64
	motorDegrees   int
	motorPower     bool
)

var motorCmd = &cobra.Command{
	Use:   "motor <port>",
	Short: "Run a motor",
	Long: `Run the motor on a port for a time or by an angle.

The port is a label (A, B, C, D, AB) or a port number. Speeds range from -1
to 1. On the AB virtual port --secondary sets the speed of motor B.

Without --seconds or --degrees the motor is started and left running until
Ctrl+C, then stopped.

Examples:
  hubctl --ble motor A --speed 0.5 --seconds 2
  hubctl --ble motor AB --speed 0.5 --secondary -0.5 --degrees 360
  hubctl --ble --hub train motor A --speed 0.3 --power`,
	Args: cobra.ExactArgs(1),
	RunE: runMotor,
}

func init() {
	motorCmd.Flags().Float64Var(&motorSpeed, "speed", 0.5, "Speed of the primary motor (-1 to 1)")
	motorCmd.Flags().Float64Var(&motorSecondary, "secondary", 0, "Speed of the secondary motor (AB only, defaults to --speed)")
	motorCmd.Flags().Float64Var(&motorSeconds, "seconds", 0, "Run for this many seconds")
	motorCmd.Flags().IntVar(&motorDegrees, "degrees", 0, "Turn by this many degrees (tacho motors only)")
	motorCmd.Flags().BoolVar(&motorPower, "power", false, "Drive by power instead of regulated speed")
	rootCmd.AddCommand(motorCmd)
}

// motorPlan is a validated motor invocation
type motorPlan struct {
	primary   float64
	secondary float64
	duration  time.Duration
	degrees   int
}

func newMotorPlan(secondarySet bool) (motorPlan, error) {
	if motorSeconds != 0 && motorDegrees != 0 {
		return motorPlan{}, errors.New("--seconds and --degrees are mutually exclusive")
	}
	if motorSeconds < 0 {
		return motorPlan{}, errors.New("--seconds must be positive")
	}
	if motorSpeed < -1 || motorSpeed > 1 || motorSecondary < -1 || motorSecondary > 1 {
		return motorPlan{}, errors.New("speeds must be between -1 and 1")
	}

	plan := motorPlan{
		primary:   motorSpeed,
		secondary: motorSpeed,
		duration:  time.Duration(motorSeconds * float64(time.Second)),
		degrees:   motorDegrees,
	}
	if secondarySet {
		plan.secondary = motorSecondary
	}
	return plan, nil
}

func runMotor(cmd *cobra.Command, args []string) error {
	port, err := parsePort(args[0])
	if err != nil {
		return err
	}
	plan, err := newMotorPlan(cmd.Flags().Changed("secondary"))
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

	p, ok := s.Hub.Peripheral(port)
	if !ok {
		return fmt.Errorf("nothing attached to port %s", portLabel(port))
	}

	var m *hub.Motor
	var enc *hub.EncodedMotor
	switch v := p.(type) {
	case *hub.EncodedMotor:
		enc, m = v, &v.Motor
	case *hub.Motor:
		m = v
	default:
		return fmt.Errorf("port %s is not a motor: %s", portLabel(port), p)
	}

	switch {
	case plan.degrees != 0:
		if enc == nil {
			return fmt.Errorf("port %s has no tachometer", portLabel(port))
		}
		fmt.Printf("Turning %s by %d degrees\n", portLabel(port), plan.degrees)
		return enc.Angled(ctx, plan.degrees, plan.primary, plan.secondary)

	case plan.duration > 0 && !motorPower:
		fmt.Printf("Running %s for %s\n", portLabel(port), plan.duration)
		return m.Timed(ctx, plan.duration, plan.primary, plan.secondary)
	}

	if motorPower {
		err = m.StartPower(ctx, plan.primary, plan.secondary)
	} else {
		err = m.StartSpeed(ctx, plan.primary, plan.secondary)
	}
	if err != nil {
		return err
	}

	if plan.duration > 0 {
		fmt.Printf("Running %s for %s\n", portLabel(port), plan.duration)
		select {
		case <-time.After(plan.duration):
		case <-ctx.Done():
		case <-s.Hub.Done():
			return s.Hub.Err()
		}
	} else {
		fmt.Printf("Running %s, press Ctrl+C to stop\n", portLabel(port))
		select {
		case <-ctx.Done():
		case <-s.Hub.Done():
			return s.Hub.Err()
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	return m.Stop(stopCtx)
}
