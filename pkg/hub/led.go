// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"context"
	"fmt"
)

// LED modes
const (
	LEDModeIndex uint8 = 0x00
	LEDModeRGB   uint8 = 0x01
)

// Color is a hub color index, shared by the LED and the vision sensor
type Color uint8

// Color indexes
const (
	ColorBlack     Color = 0
	ColorPink      Color = 1
	ColorPurple    Color = 2
	ColorBlue      Color = 3
	ColorLightBlue Color = 4
	ColorCyan      Color = 5
	ColorGreen     Color = 6
	ColorYellow    Color = 7
	ColorOrange    Color = 8
	ColorRed       Color = 9
	ColorWhite     Color = 10
	ColorNone      Color = 255
)

// LED is the hub's RGB light
type LED struct {
	*device
}

// SetColorIndex sets the light to an indexed color
func (l *LED) SetColorIndex(ctx context.Context, c Color) error {
	return l.writeModeData(ctx, LEDModeIndex, []byte{byte(c)})
}

// SetRGB sets the light to an RGB color
func (l *LED) SetRGB(ctx context.Context, r, g, b uint8) error {
	return l.writeModeData(ctx, LEDModeRGB, []byte{r, g, b})
}

func decodeLED(mode uint8, payload []byte) ([]float64, error) {
	switch mode {
	case LEDModeIndex:
		if len(payload) < 1 {
			return nil, errShortPayload(1, payload)
		}
		return []float64{float64(payload[0])}, nil
	case LEDModeRGB:
		if len(payload) < 3 {
			return nil, errShortPayload(3, payload)
		}
		return []float64{float64(payload[0]), float64(payload[1]), float64(payload[2])}, nil
	}
	return nil, fmt.Errorf("unsupported mode %d", mode)
}
