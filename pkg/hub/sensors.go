// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// Tilt sensor modes
const (
	TiltMode2AxisAngle  uint8 = 0x00
	TiltMode2AxisSimple uint8 = 0x01
	TiltMode3AxisSimple uint8 = 0x02
	TiltModeImpactCount uint8 = 0x03
	TiltMode3AxisAccel  uint8 = 0x04
	TiltModeOrientCF    uint8 = 0x05
	TiltModeImpactCF    uint8 = 0x06
	TiltModeCalibration uint8 = 0x07
)

// TiltSensor is the internal or external tilt sensor
type TiltSensor struct {
	*device
}

// decodeTilt returns roll and pitch for 2-axis angles; roll, pitch and yaw
// for acceleration and calibration; a count for impacts; a state otherwise
func decodeTilt(mode uint8, payload []byte) ([]float64, error) {
	switch mode {
	case TiltMode2AxisAngle:
		if len(payload) < 2 {
			return nil, errShortPayload(2, payload)
		}
		return []float64{float64(int8(payload[0])), float64(int8(payload[1]))}, nil
	case TiltMode2AxisSimple, TiltMode3AxisSimple, TiltModeOrientCF, TiltModeImpactCF:
		if len(payload) < 1 {
			return nil, errShortPayload(1, payload)
		}
		return []float64{float64(payload[0])}, nil
	case TiltModeImpactCount:
		if len(payload) < 4 {
			return nil, errShortPayload(4, payload)
		}
		return []float64{float64(binary.LittleEndian.Uint32(payload))}, nil
	case TiltMode3AxisAccel, TiltModeCalibration:
		if len(payload) < 3 {
			return nil, errShortPayload(3, payload)
		}
		return []float64{float64(int8(payload[0])), float64(int8(payload[1])), float64(int8(payload[2]))}, nil
	}
	return nil, fmt.Errorf("unsupported mode %d", mode)
}

// Vision sensor modes
const (
	VisionModeColorIndex     uint8 = 0x00
	VisionModeDistanceInches uint8 = 0x01
	VisionModeCount2Inch     uint8 = 0x02
	VisionModeReflected      uint8 = 0x03
	VisionModeAmbient        uint8 = 0x04
	VisionModeSetColor       uint8 = 0x05
	VisionModeColorRGB       uint8 = 0x06
	VisionModeSetIRTransmit  uint8 = 0x07
	VisionModeColorDistance  uint8 = 0x08
	VisionModeDebug          uint8 = 0x09
	VisionModeCalibrate      uint8 = 0x0A
)

// VisionSensor is the color and distance sensor
type VisionSensor struct {
	*device
}

// SetColor sets the sensor's light color
func (v *VisionSensor) SetColor(ctx context.Context, c Color) error {
	return v.writeModeData(ctx, VisionModeSetColor, []byte{byte(c)})
}

// SetIRTransmit sets the infrared transmitter level, as a fraction in [0, 1]
func (v *VisionSensor) SetIRTransmit(ctx context.Context, level float64) error {
	level = math.Max(0, math.Min(1, level))
	return v.writeModeData(ctx, VisionModeSetIRTransmit, putUint16(uint16(level*math.MaxUint16)))
}

// scale10bit maps a 10-bit channel to 0..255
func scale10bit(v uint16) float64 {
	return math.Floor(255 * float64(v) / 1023)
}

func decodeVision(mode uint8, payload []byte) ([]float64, error) {
	switch mode {
	case VisionModeColorIndex, VisionModeDistanceInches, VisionModeSetColor:
		if len(payload) < 1 {
			return nil, errShortPayload(1, payload)
		}
		return []float64{float64(payload[0])}, nil
	case VisionModeCount2Inch:
		if len(payload) < 4 {
			return nil, errShortPayload(4, payload)
		}
		return []float64{float64(binary.LittleEndian.Uint32(payload))}, nil
	case VisionModeReflected, VisionModeAmbient:
		if len(payload) < 1 {
			return nil, errShortPayload(1, payload)
		}
		return []float64{float64(payload[0]) / 100}, nil
	case VisionModeColorRGB:
		if len(payload) < 6 {
			return nil, errShortPayload(6, payload)
		}
		values := make([]float64, 3)
		for i := range values {
			values[i] = scale10bit(binary.LittleEndian.Uint16(payload[i*2:]))
		}
		return values, nil
	case VisionModeSetIRTransmit:
		if len(payload) < 2 {
			return nil, errShortPayload(2, payload)
		}
		return []float64{float64(binary.LittleEndian.Uint16(payload)) / math.MaxUint16}, nil
	case VisionModeColorDistance:
		if len(payload) < 4 {
			return nil, errShortPayload(4, payload)
		}
		distance := float64(payload[1])
		if partial := payload[3]; partial != 0 {
			distance += 1.0 / float64(partial)
		}
		return []float64{float64(payload[0]), distance}, nil
	case VisionModeDebug:
		if len(payload) < 4 {
			return nil, errShortPayload(4, payload)
		}
		return []float64{
			scale10bit(binary.LittleEndian.Uint16(payload[0:])),
			scale10bit(binary.LittleEndian.Uint16(payload[2:])),
		}, nil
	case VisionModeCalibrate:
		if len(payload) < 16 {
			return nil, errShortPayload(16, payload)
		}
		values := make([]float64, 8)
		for i := range values {
			values[i] = float64(binary.LittleEndian.Uint16(payload[i*2:]))
		}
		return values, nil
	}
	return nil, fmt.Errorf("unsupported mode %d", mode)
}

// Current and voltage sensor modes
const (
	CurrentModeL uint8 = 0x00
	CurrentModeS uint8 = 0x01
	VoltageModeL uint8 = 0x00
	VoltageModeS uint8 = 0x01
)

// CurrentSensor reports the hub's current draw in milliamps
type CurrentSensor struct {
	*device
}

func decodeCurrent(mode uint8, payload []byte) ([]float64, error) {
	if mode != CurrentModeL && mode != CurrentModeS {
		return nil, fmt.Errorf("unsupported mode %d", mode)
	}
	if len(payload) < 2 {
		return nil, errShortPayload(2, payload)
	}
	return []float64{2444 * float64(binary.LittleEndian.Uint16(payload)) / 4095}, nil
}

// VoltageSensor reports the battery voltage in volts
type VoltageSensor struct {
	*device
}

func decodeVoltage(mode uint8, payload []byte) ([]float64, error) {
	if mode != VoltageModeL && mode != VoltageModeS {
		return nil, fmt.Errorf("unsupported mode %d", mode)
	}
	if len(payload) < 2 {
		return nil, errShortPayload(2, payload)
	}
	return []float64{9600 * float64(binary.LittleEndian.Uint16(payload)) / 3893 / 1000}, nil
}
