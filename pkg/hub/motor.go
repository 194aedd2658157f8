// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// Motor sensor modes
const (
	MotorModePower uint8 = 0x00
	MotorModeSpeed uint8 = 0x01
	MotorModeAngle uint8 = 0x02
)

// EndState is what a motor does after a timed or angled run
type EndState uint8

// End states
const (
	EndFloat EndState = 0
	EndHold  EndState = 126
	EndBrake EndState = 127
)

// Profile selects which acceleration profiles a command uses
type Profile uint8

// Profile bits
const (
	ProfileNone         Profile = 0x00
	ProfileAcceleration Profile = 0x01
	ProfileDeceleration Profile = 0x02
	ProfileBoth                 = ProfileAcceleration | ProfileDeceleration
)

// degreesPerSecond is a conservative full-speed rate used to bound the
// wait for angled runs
const degreesPerSecond = 300.0

// RunOption adjusts a motor command
type RunOption func(*runParams)

type runParams struct {
	maxPower float64
	endState EndState
	profile  Profile
}

func defaultRunParams() runParams {
	return runParams{maxPower: 1.0, endState: EndBrake, profile: ProfileBoth}
}

// WithMaxPower limits motor power, as a fraction in [0, 1]
func WithMaxPower(p float64) RunOption {
	return func(r *runParams) { r.maxPower = p }
}

// WithEndState sets the state after the run
func WithEndState(s EndState) RunOption {
	return func(r *runParams) { r.endState = s }
}

// WithProfile selects the acceleration profiles
func WithProfile(p Profile) RunOption {
	return func(r *runParams) { r.profile = p }
}

func applyRunOptions(opts []RunOption) runParams {
	r := defaultRunParams()
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// speedByte maps a speed fraction in [-1, 1] to signed percent
func speedByte(v float64) byte {
	v = math.Max(-1, math.Min(1, v))
	return byte(int8(math.Ceil(v * 100)))
}

// powerByte maps a power fraction in [0, 1] to percent
func powerByte(v float64) byte {
	v = math.Max(0, math.Min(1, v))
	return byte(math.Round(v * 100))
}

func putUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func putUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// Motor is a motor without a rotation sensor. On a virtual port every
// command drives both constituent motors; the secondary value applies to
// the second one and is ignored otherwise.
type Motor struct {
	*device
}

// subcommand returns the grouped variant of sub on virtual ports
func (m *Motor) subcommand(sub uint8) uint8 {
	if m.isVirtual {
		return sub + 1
	}
	return sub
}

// speeds encodes one or two speed values depending on the port
func (m *Motor) speeds(primary, secondary float64) []byte {
	if m.isVirtual {
		return []byte{speedByte(primary), speedByte(secondary)}
	}
	return []byte{speedByte(primary)}
}

func (m *Motor) output(ctx context.Context, sub uint8, params []byte, extra time.Duration) error {
	return m.sendOutput(ctx, lpf2.NewPortOutput(m.port, m.subcommand(sub), params), extra)
}

// StartPower runs the motor at a power fraction without speed regulation
func (m *Motor) StartPower(ctx context.Context, primary, secondary float64) error {
	return m.output(ctx, lpf2.SubcmdStartPower, m.speeds(primary, secondary), 0)
}

// StartSpeed runs the motor at a regulated speed until told otherwise
func (m *Motor) StartSpeed(ctx context.Context, primary, secondary float64, opts ...RunOption) error {
	r := applyRunOptions(opts)
	params := append(m.speeds(primary, secondary), powerByte(r.maxPower), byte(r.profile))
	return m.output(ctx, lpf2.SubcmdStartSpeed, params, 0)
}

// Timed runs the motor for d, blocking until the hub reports the run done
func (m *Motor) Timed(ctx context.Context, d time.Duration, primary, secondary float64, opts ...RunOption) error {
	if d < 0 || d > math.MaxUint16*time.Millisecond {
		return fmt.Errorf("run time %s out of range", d)
	}
	r := applyRunOptions(opts)
	params := putUint16(uint16(d / time.Millisecond))
	params = append(params, m.speeds(primary, secondary)...)
	params = append(params, powerByte(r.maxPower), byte(r.endState), byte(r.profile))
	return m.output(ctx, lpf2.SubcmdStartSpeedForTime, params, d)
}

// Stop brakes the motor
func (m *Motor) Stop(ctx context.Context) error {
	return m.Timed(ctx, 0, 0, 0)
}

// SetAccelerationProfile sets the time to reach full speed for profile slot id
func (m *Motor) SetAccelerationProfile(ctx context.Context, d time.Duration, id uint8) error {
	params := append(putUint16(uint16(d/time.Millisecond)), id)
	return m.sendOutput(ctx, lpf2.NewPortOutput(m.port, lpf2.SubcmdSetAccTime, params), 0)
}

// SetDecelerationProfile sets the time to stop from full speed for profile slot id
func (m *Motor) SetDecelerationProfile(ctx context.Context, d time.Duration, id uint8) error {
	params := append(putUint16(uint16(d/time.Millisecond)), id)
	return m.sendOutput(ctx, lpf2.NewPortOutput(m.port, lpf2.SubcmdSetDecTime, params), 0)
}

// EncodedMotor is a motor with a tachometer
type EncodedMotor struct {
	Motor
}

// Angled turns the motor by degrees. A negative angle reverses the speeds.
func (m *EncodedMotor) Angled(ctx context.Context, degrees int, primary, secondary float64, opts ...RunOption) error {
	if degrees < 0 {
		degrees = -degrees
		primary, secondary = -primary, -secondary
	}
	r := applyRunOptions(opts)
	params := putUint32(uint32(degrees))
	params = append(params, m.speeds(primary, secondary)...)
	params = append(params, powerByte(r.maxPower), byte(r.endState), byte(r.profile))
	if !m.isVirtual {
		secondary = primary
	}
	return m.output(ctx, lpf2.SubcmdStartSpeedForDegrees, params, travelTime(degrees, primary, secondary))
}

// GotoPosition turns the motor to an absolute encoder position. The
// secondary position is used on virtual ports only.
func (m *EncodedMotor) GotoPosition(ctx context.Context, primary, secondary int32, speed float64, opts ...RunOption) error {
	r := applyRunOptions(opts)
	params := putUint32(uint32(primary))
	if m.isVirtual {
		params = append(params, putUint32(uint32(secondary))...)
	}
	params = append(params, speedByte(math.Abs(speed)), powerByte(r.maxPower), byte(r.endState), byte(r.profile))

	// The travel distance is unknown, so allow for a full turn beyond the target.
	travel := int(math.Max(math.Abs(float64(primary)), math.Abs(float64(secondary)))) + 360
	return m.output(ctx, lpf2.SubcmdGotoAbsolutePosition, params, travelTime(travel, speed, speed))
}

// PresetEncoder sets the current encoder position
func (m *EncodedMotor) PresetEncoder(ctx context.Context, primary, secondary int32) error {
	if m.isVirtual {
		params := append(putUint32(uint32(primary)), putUint32(uint32(secondary))...)
		return m.sendOutput(ctx, lpf2.NewPortOutput(m.port, lpf2.SubcmdPresetEncoder, params), 0)
	}
	return m.writeModeData(ctx, MotorModeAngle, putUint32(uint32(primary)))
}

// travelTime estimates how long a run of degrees takes at the slower speed
func travelTime(degrees int, primary, secondary float64) time.Duration {
	speed := math.Min(math.Abs(primary), math.Abs(secondary))
	if speed < 0.05 {
		speed = 0.05
	}
	return time.Duration(float64(degrees) / (degreesPerSecond * speed) * float64(time.Second))
}

func decodeMotor(mode uint8, payload []byte) ([]float64, error) {
	if mode != MotorModePower {
		return nil, fmt.Errorf("unsupported mode %d", mode)
	}
	if len(payload) < 1 {
		return nil, errShortPayload(1, payload)
	}
	return []float64{float64(int8(payload[0])) / 100}, nil
}

func decodeEncodedMotor(mode uint8, payload []byte) ([]float64, error) {
	switch mode {
	case MotorModePower, MotorModeSpeed:
		if len(payload) < 1 {
			return nil, errShortPayload(1, payload)
		}
		return []float64{float64(int8(payload[0])) / 100}, nil
	case MotorModeAngle:
		if len(payload) < 4 {
			return nil, errShortPayload(4, payload)
		}
		return []float64{float64(int32(binary.LittleEndian.Uint32(payload)))}, nil
	}
	return nil, fmt.Errorf("unsupported mode %d", mode)
}

func errShortPayload(need int, payload []byte) error {
	return fmt.Errorf("%w: payload %d bytes, need %d", lpf2.ErrMalformedMessage, len(payload), need)
}
