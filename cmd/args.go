// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/hubctl/pkg/hub"
	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// portNames are the labels printed on the move hub
var portNames = map[string]lpf2.Port{
	"A":       hub.MoveHubPortA,
	"B":       hub.MoveHubPortB,
	"C":       hub.MoveHubPortC,
	"D":       hub.MoveHubPortD,
	"AB":      hub.MoveHubPortAB,
	"LED":     hub.MoveHubPortLED,
	"TILT":    hub.MoveHubPortTilt,
	"CURRENT": hub.MoveHubPortCurrent,
	"VOLTAGE": hub.MoveHubPortVoltage,
}

// defaultHubName is the advertised name searched for when neither --mac nor
// --name is given
func defaultHubName() string {
	if strings.EqualFold(hubKind, "train") {
		return hub.TrainHubName
	}
	return hub.MoveHubName
}

// parsePort accepts a port label (A, B, AB, ...) or a port number
func parsePort(s string) (lpf2.Port, error) {
	if p, ok := portNames[strings.ToUpper(s)]; ok {
		return p, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid port: %s", s)
	}
	return lpf2.Port(n), nil
}

// portLabel returns the label of a known port or its number
func portLabel(p lpf2.Port) string {
	for name, port := range portNames {
		if port == p {
			return name
		}
	}
	return fmt.Sprintf("0x%02X", uint8(p))
}

var colorNames = []struct {
	name  string
	color hub.Color
}{
	{"black", hub.ColorBlack},
	{"pink", hub.ColorPink},
	{"purple", hub.ColorPurple},
	{"blue", hub.ColorBlue},
	{"lightblue", hub.ColorLightBlue},
	{"cyan", hub.ColorCyan},
	{"green", hub.ColorGreen},
	{"yellow", hub.ColorYellow},
	{"orange", hub.ColorOrange},
	{"red", hub.ColorRed},
	{"white", hub.ColorWhite},
	{"none", hub.ColorNone},
}

// colorName returns the name of a color index
func colorName(c hub.Color) string {
	for _, cn := range colorNames {
		if cn.color == c {
			return cn.name
		}
	}
	return fmt.Sprintf("color %d", c)
}

// ledArg is a parsed LED argument: a color index or an RGB triple
type ledArg struct {
	index hub.Color
	rgb   [3]uint8
	isRGB bool
}

// parseLEDArg accepts a color name, a color index or "r,g,b"
func parseLEDArg(s string) (ledArg, error) {
	if parts := strings.Split(s, ","); len(parts) == 3 {
		var arg ledArg
		arg.isRGB = true
		for i, part := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(part), 0, 8)
			if err != nil {
				return ledArg{}, fmt.Errorf("invalid RGB component %q", part)
			}
			arg.rgb[i] = uint8(v)
		}
		return arg, nil
	}

	for _, cn := range colorNames {
		if strings.EqualFold(cn.name, s) {
			return ledArg{index: cn.color}, nil
		}
	}

	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || (hub.Color(n) > hub.ColorWhite && hub.Color(n) != hub.ColorNone) {
		return ledArg{}, fmt.Errorf("invalid color: %s", s)
	}
	return ledArg{index: hub.Color(n)}, nil
}

// defaultMode is the input mode live displays subscribe to per kind
func defaultMode(k hub.Kind) uint8 {
	switch k {
	case hub.KindEncodedMotor:
		return hub.MotorModeAngle
	case hub.KindMotor:
		return hub.MotorModePower
	case hub.KindTiltSensor:
		return hub.TiltMode2AxisAngle
	case hub.KindVisionSensor:
		return hub.VisionModeColorDistance
	case hub.KindCurrentSensor:
		return hub.CurrentModeL
	case hub.KindVoltageSensor:
		return hub.VoltageModeL
	case hub.KindLED:
		return hub.LEDModeIndex
	}
	return 0
}

// formatReading renders decoded values compactly
func formatReading(r hub.Reading) string {
	if len(r.Values) == 0 {
		return fmt.Sprintf("raw %X", r.Raw)
	}
	parts := make([]string, len(r.Values))
	for i, v := range r.Values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}
