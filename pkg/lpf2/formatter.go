// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lpf2

import (
	"fmt"
	"strings"
)

// FormatMessage formats an upstream message into a human-readable string
func FormatMessage(u Upstream) string {
	result := fmt.Sprintf("%s (0x%02X)\n", FormatMessageType(u.Type()), byte(u.Type()))
	return result + formatPayload(u)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType MessageType) string {
	switch msgType {
	// Hub related (0x01-0x0F)
	case MsgHubProperties:
		return "HUB_PROPERTIES"
	case MsgHubAction:
		return "HUB_ACTION"
	case MsgHubAlert:
		return "HUB_ALERT"
	case MsgHubAttachedIO:
		return "HUB_ATTACHED_IO"
	case MsgGenericError:
		return "GENERIC_ERROR"

	// Port information (0x21-0x48)
	case MsgPortInfoRequest:
		return "PORT_INFO_REQUEST"
	case MsgPortModeInfoRequest:
		return "PORT_MODE_INFO_REQUEST"
	case MsgPortInputFmtSetup:
		return "PORT_INPUT_FMT_SETUP_SINGLE"
	case MsgPortInfo:
		return "PORT_INFO"
	case MsgPortModeInfo:
		return "PORT_MODE_INFO"
	case MsgPortValueSingle:
		return "PORT_VALUE_SINGLE"
	case MsgPortValueCombined:
		return "PORT_VALUE_COMBINED"
	case MsgPortInputFmtSingle:
		return "PORT_INPUT_FMT_SINGLE"
	case MsgPortInputFmtCombo:
		return "PORT_INPUT_FMT_COMBINED"

	// Port output (0x61-0x82)
	case MsgVirtualPortSetup:
		return "VIRTUAL_PORT_SETUP"
	case MsgPortOutput:
		return "PORT_OUTPUT"
	case MsgPortOutputFeedback:
		return "PORT_OUTPUT_FEEDBACK"

	default:
		return "UNKNOWN"
	}
}

// formatPayload formats the decoded fields of an upstream message
func formatPayload(u Upstream) string {
	switch m := u.(type) {
	case *HubProperties:
		result := fmt.Sprintf("  Property: %s (0x%02X), Op: %d", FormatHubProperty(m.Property), byte(m.Property), m.Operation)
		switch m.Property {
		case PropAdvertiseName, PropManufacturer, PropRadioFirmware:
			result += fmt.Sprintf(", Value: %q", m.Name())
		case PropPrimaryMAC, PropSecondaryMAC:
			result += fmt.Sprintf(", Value: %s", m.MAC())
		case PropBatteryPercent:
			if v, ok := m.Uint8(); ok {
				result += fmt.Sprintf(", Value: %d%%", v)
			}
		case PropButton:
			if v, ok := m.Uint8(); ok {
				result += fmt.Sprintf(", Pressed: %t", v != 0)
			}
		default:
			if len(m.Parameters) > 0 {
				result += fmt.Sprintf(", Params: % X", m.Parameters)
			}
		}
		return result + "\n"

	case *HubAction:
		return fmt.Sprintf("  Action: %s (0x%02X)\n", FormatAction(m.Action), byte(m.Action))

	case *HubAlert:
		status := "OK"
		if !m.OK() {
			status = "ALERT"
		}
		return fmt.Sprintf("  Alert: %s (0x%02X), Op: %d, Status: %s\n", FormatAlert(m.Alert), byte(m.Alert), m.Operation, status)

	case *AttachedIO:
		switch m.Event {
		case EventDetached:
			return fmt.Sprintf("  Port 0x%02X: DETACHED\n", byte(m.Port))
		case EventAttachedVirtual:
			return fmt.Sprintf("  Port 0x%02X: ATTACHED_VIRTUAL %s (0x%04X), Ports=[0x%02X,0x%02X]\n",
				byte(m.Port), FormatDeviceType(m.DeviceType), uint16(m.DeviceType), byte(m.VirtualPorts[0]), byte(m.VirtualPorts[1]))
		default:
			return fmt.Sprintf("  Port 0x%02X: ATTACHED %s (0x%04X), HW=%s, SW=%s\n",
				byte(m.Port), FormatDeviceType(m.DeviceType), uint16(m.DeviceType),
				FormatVersion(m.HardwareRevision), FormatVersion(m.SoftwareRevision))
		}

	case *GenericError:
		return fmt.Sprintf("  Command: %s (0x%02X), Error: %s (0x%02X)\n",
			FormatMessageType(m.Command), byte(m.Command), FormatErrorCode(m.Code), byte(m.Code))

	case *PortInfo:
		if caps, count, in, out, ok := m.ModeInfo(); ok {
			return fmt.Sprintf("  Port 0x%02X: Capabilities=0x%02X, Modes=%d, Input=0x%04X, Output=0x%04X\n",
				byte(m.Port), caps, count, in, out)
		}
		return fmt.Sprintf("  Port 0x%02X: Info=%d, Payload: % X\n", byte(m.Port), m.InfoType, m.Payload)

	case *PortModeInfo:
		if m.InfoType == ModeInfoName || m.InfoType == ModeInfoSymbol {
			return fmt.Sprintf("  Port 0x%02X Mode %d: Info=0x%02X, Value: %q\n", byte(m.Port), m.Mode, byte(m.InfoType), m.Text())
		}
		return fmt.Sprintf("  Port 0x%02X Mode %d: Info=0x%02X, Payload: % X\n", byte(m.Port), m.Mode, byte(m.InfoType), m.Payload)

	case *PortValueSingle:
		return fmt.Sprintf("  Port 0x%02X: Value: % X\n", byte(m.Port), m.Payload)

	case *PortValueCombined:
		return fmt.Sprintf("  Port 0x%02X: Combined: % X\n", byte(m.Port), m.Payload)

	case *PortInputFmtSingle:
		return fmt.Sprintf("  Port 0x%02X: Mode=%d, Delta=%d, Notify=%t\n", byte(m.Port), m.Mode, m.Delta, m.UpdateEnabled)

	case *PortInputFmtCombined:
		return fmt.Sprintf("  Port 0x%02X: Combined format: % X\n", byte(m.Port), m.Payload)

	case *PortOutputFeedback:
		parts := make([]string, 0, len(m.Entries))
		for _, e := range m.Entries {
			parts = append(parts, fmt.Sprintf("0x%02X=%s", byte(e.Port), FormatFeedbackStatus(e.Status)))
		}
		return "  Feedback: " + strings.Join(parts, ", ") + "\n"
	}

	return "  (no payload)\n"
}

// FormatHubProperty returns the human-readable name for a hub property
func FormatHubProperty(prop HubProperty) string {
	names := []string{"", "ADVERTISE_NAME", "BUTTON", "FW_VERSION", "HW_VERSION", "RSSI",
		"BATTERY_PERCENT", "BATTERY_TYPE", "MANUFACTURER", "RADIO_FW_VERSION", "PROTOCOL_VERSION",
		"SYSTEM_TYPE_ID", "HW_NETWORK_ID", "PRIMARY_MAC", "SECONDARY_MAC", "HW_NETWORK_FAMILY"}
	if prop > 0 && int(prop) < len(names) {
		return names[prop]
	}
	return "UNKNOWN"
}

// FormatAction returns the human-readable name for a hub action
func FormatAction(action Action) string {
	switch action {
	case ActionSwitchOff:
		return "SWITCH_OFF"
	case ActionDisconnect:
		return "DISCONNECT"
	case ActionVCCPortControlOn:
		return "VCC_PORT_CONTROL_ON"
	case ActionVCCPortControlOff:
		return "VCC_PORT_CONTROL_OFF"
	case ActionBusyIndicationOn:
		return "BUSY_INDICATION_ON"
	case ActionBusyIndicationOff:
		return "BUSY_INDICATION_OFF"
	case ActionImmediateShutdown:
		return "IMMEDIATE_SHUTDOWN"
	case ActionUpstreamShutdown:
		return "UPSTREAM_SHUTDOWN"
	case ActionUpstreamDisconnect:
		return "UPSTREAM_DISCONNECT"
	case ActionUpstreamBootMode:
		return "UPSTREAM_BOOT_MODE"
	default:
		return "UNKNOWN"
	}
}

// FormatAlert returns the human-readable name for a hub alert
func FormatAlert(alert Alert) string {
	names := []string{"", "LOW_VOLTAGE", "HIGH_CURRENT", "LOW_SIGNAL", "OVER_POWER"}
	if alert > 0 && int(alert) < len(names) {
		return names[alert]
	}
	return "UNKNOWN"
}

// FormatErrorCode returns the human-readable name for a generic error code
func FormatErrorCode(code ErrorCode) string {
	names := []string{"", "ACK", "MACK", "BUFFER_OVERFLOW", "TIMEOUT", "WRONG_COMMAND", "WRONG_PARAMS", "OVERCURRENT", "INTERNAL"}
	if code > 0 && int(code) < len(names) {
		return names[code]
	}
	return "UNKNOWN"
}

// FormatDeviceType returns the human-readable name for a device type
func FormatDeviceType(dev DeviceType) string {
	switch dev {
	case DevMotor:
		return "MOTOR"
	case DevSystemTrainMotor:
		return "TRAIN_MOTOR"
	case DevButton:
		return "BUTTON"
	case DevLEDLight:
		return "LED_LIGHT"
	case DevVoltage:
		return "VOLTAGE"
	case DevCurrent:
		return "CURRENT"
	case DevPiezoSound:
		return "PIEZO_SOUND"
	case DevRGBLight:
		return "RGB_LIGHT"
	case DevTiltExternal:
		return "TILT_EXTERNAL"
	case DevMotionSensor:
		return "MOTION_SENSOR"
	case DevVisionSensor:
		return "VISION_SENSOR"
	case DevMotorExternalTacho:
		return "MOTOR_EXTERNAL_TACHO"
	case DevMotorInternalTacho:
		return "MOTOR_INTERNAL_TACHO"
	case DevTiltInternal:
		return "TILT_INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// FormatFeedbackStatus returns the set status bits joined with "|"
func FormatFeedbackStatus(status FeedbackStatus) string {
	bits := []struct {
		bit  FeedbackStatus
		name string
	}{
		{FeedbackInProgress, "IN_PROGRESS"},
		{FeedbackCompleted, "COMPLETED"},
		{FeedbackDiscarded, "DISCARDED"},
		{FeedbackIdle, "IDLE"},
		{FeedbackBufferFull, "BUFFER_FULL"},
	}

	var names []string
	for _, b := range bits {
		if status&b.bit != 0 {
			names = append(names, b.name)
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, "|")
}

// FormatVersion formats a packed BCD version number as major.minor.bugfix.build
func FormatVersion(v uint32) string {
	major := (v >> 28) & 0x07
	minor := (v >> 24) & 0x0F
	bugfix := (v >> 16) & 0xFF
	build := v & 0xFFFF
	return fmt.Sprintf("%x.%x.%02x.%04x", major, minor, bugfix, build)
}
