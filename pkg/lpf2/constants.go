// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lpf2 implements the wire codec for the LEGO Powered Up (LPF2)
// hub protocol as spoken over BLE by the Boost MoveHub family.
//
// The package is pure: it turns typed downstream commands into frames and
// frames into typed upstream messages. It holds no state and performs no I/O.
package lpf2

// GATT identifiers exposed by the hub
const (
	HubServiceUUID        = "00001623-1212-efde-1623-785feabcd123"
	HubCharacteristicUUID = "00001624-1212-efde-1623-785feabcd123"
)

// Fixed GATT handles
const (
	HardwareHandle            uint16 = 0x0E
	EnableNotificationsHandle uint16 = 0x0F
)

// EnableNotificationsValue is written to EnableNotificationsHandle to turn
// on hub notifications.
var EnableNotificationsValue = []byte{0x01, 0x00}

// Frame layout
const (
	HeaderSize   = 3
	MaxFrameSize = 127
	HubID        = 0x00

	offsetLength = 0
	offsetHubID  = 1
	offsetType   = 2
)

// MessageType is the frame type tag
type MessageType uint8

// Message types - hub related
const (
	MsgHubProperties MessageType = 0x01
	MsgHubAction     MessageType = 0x02
	MsgHubAlert      MessageType = 0x03
	MsgHubAttachedIO MessageType = 0x04
	MsgGenericError  MessageType = 0x05
)

// Message types - port information
const (
	MsgPortInfoRequest     MessageType = 0x21
	MsgPortModeInfoRequest MessageType = 0x22
	MsgPortInputFmtSetup   MessageType = 0x41
	MsgPortInfo            MessageType = 0x43
	MsgPortModeInfo        MessageType = 0x44
	MsgPortValueSingle     MessageType = 0x45
	MsgPortValueCombined   MessageType = 0x46
	MsgPortInputFmtSingle  MessageType = 0x47
	MsgPortInputFmtCombo   MessageType = 0x48
)

// Message types - port output
const (
	MsgVirtualPortSetup   MessageType = 0x61
	MsgPortOutput         MessageType = 0x81
	MsgPortOutputFeedback MessageType = 0x82
)

// Port identifies a physical or virtual hub connector
type Port uint8

// HubProperty selects a HubProperties property
type HubProperty uint8

// Hub properties
const (
	PropAdvertiseName      HubProperty = 0x01
	PropButton             HubProperty = 0x02
	PropFirmwareVersion    HubProperty = 0x03
	PropHardwareVersion    HubProperty = 0x04
	PropRSSI               HubProperty = 0x05
	PropBatteryPercent     HubProperty = 0x06
	PropBatteryType        HubProperty = 0x07
	PropManufacturer       HubProperty = 0x08
	PropRadioFirmware      HubProperty = 0x09
	PropProtocolVersion    HubProperty = 0x0A
	PropSystemTypeID       HubProperty = 0x0B
	PropHardwareNetworkID  HubProperty = 0x0C
	PropPrimaryMAC         HubProperty = 0x0D
	PropSecondaryMAC       HubProperty = 0x0E
	PropHardwareNetworkFam HubProperty = 0x0F
)

// PropertyOp is a HubProperties operation
type PropertyOp uint8

// Hub property operations
const (
	PropOpSet            PropertyOp = 0x01
	PropOpUpdateEnable   PropertyOp = 0x02
	PropOpUpdateDisable  PropertyOp = 0x03
	PropOpReset          PropertyOp = 0x04
	PropOpUpdateRequest  PropertyOp = 0x05
	PropOpUpstreamUpdate PropertyOp = 0x06
)

// Action is a HubAction code
type Action uint8

// Hub actions (downstream)
const (
	ActionSwitchOff         Action = 0x01
	ActionDisconnect        Action = 0x02
	ActionVCCPortControlOn  Action = 0x03
	ActionVCCPortControlOff Action = 0x04
	ActionBusyIndicationOn  Action = 0x05
	ActionBusyIndicationOff Action = 0x06
	ActionImmediateShutdown Action = 0x2F
)

// Hub actions (upstream)
const (
	ActionUpstreamShutdown   Action = 0x30
	ActionUpstreamDisconnect Action = 0x31
	ActionUpstreamBootMode   Action = 0x32
)

// Alert is a HubAlert kind
type Alert uint8

// Hub alerts
const (
	AlertLowVoltage  Alert = 0x01
	AlertHighCurrent Alert = 0x02
	AlertLowSignal   Alert = 0x03
	AlertOverPower   Alert = 0x04
)

// AlertOp is a HubAlert operation
type AlertOp uint8

// Hub alert operations
const (
	AlertOpUpdateEnable   AlertOp = 0x01
	AlertOpUpdateDisable  AlertOp = 0x02
	AlertOpUpdateRequest  AlertOp = 0x03
	AlertOpUpstreamUpdate AlertOp = 0x04
)

// IOEvent is the HubAttachedIO event code
type IOEvent uint8

// Attached I/O events
const (
	EventDetached        IOEvent = 0x00
	EventAttached        IOEvent = 0x01
	EventAttachedVirtual IOEvent = 0x02
)

// DeviceType is the 16-bit peripheral type code carried by attach events
type DeviceType uint16

// Device types
const (
	DevMotor              DeviceType = 0x0001
	DevSystemTrainMotor   DeviceType = 0x0002
	DevButton             DeviceType = 0x0005
	DevLEDLight           DeviceType = 0x0008
	DevVoltage            DeviceType = 0x0014
	DevCurrent            DeviceType = 0x0015
	DevPiezoSound         DeviceType = 0x0016
	DevRGBLight           DeviceType = 0x0017
	DevTiltExternal       DeviceType = 0x0022
	DevMotionSensor       DeviceType = 0x0023
	DevVisionSensor       DeviceType = 0x0025
	DevMotorExternalTacho DeviceType = 0x0026
	DevMotorInternalTacho DeviceType = 0x0027
	DevTiltInternal       DeviceType = 0x0028
)

// ErrorCode is the GenericError code
type ErrorCode uint8

// Generic error codes
const (
	ErrCodeACK            ErrorCode = 0x01
	ErrCodeMACK           ErrorCode = 0x02
	ErrCodeBufferOverflow ErrorCode = 0x03
	ErrCodeTimeout        ErrorCode = 0x04
	ErrCodeWrongCommand   ErrorCode = 0x05
	ErrCodeWrongParams    ErrorCode = 0x06
	ErrCodeOvercurrent    ErrorCode = 0x07
	ErrCodeInternal       ErrorCode = 0x08
)

// PortInfoType selects what a PortInfoRequest asks for
type PortInfoType uint8

// Port information types
const (
	PortInfoValue            PortInfoType = 0x00
	PortInfoModeInfo         PortInfoType = 0x01
	PortInfoModeCombinations PortInfoType = 0x02
)

// ModeInfoType selects what a PortModeInfoRequest asks for
type ModeInfoType uint8

// Port mode information types
const (
	ModeInfoName        ModeInfoType = 0x00
	ModeInfoRaw         ModeInfoType = 0x01
	ModeInfoPercent     ModeInfoType = 0x02
	ModeInfoSI          ModeInfoType = 0x03
	ModeInfoSymbol      ModeInfoType = 0x04
	ModeInfoMapping     ModeInfoType = 0x05
	ModeInfoMotorBias   ModeInfoType = 0x07
	ModeInfoCapability  ModeInfoType = 0x08
	ModeInfoValueFormat ModeInfoType = 0x80
)

// Port output subcommands
const (
	SubcmdStartPower                = 0x01
	SubcmdStartPowerGrouped         = 0x02
	SubcmdSetAccTime                = 0x05
	SubcmdSetDecTime                = 0x06
	SubcmdStartSpeed                = 0x07
	SubcmdStartSpeedGrouped         = 0x08
	SubcmdStartSpeedForTime         = 0x09
	SubcmdStartSpeedForTimeGrouped  = 0x0A
	SubcmdStartSpeedForDegrees      = 0x0B
	SubcmdStartSpeedForDegreesGroup = 0x0C
	SubcmdGotoAbsolutePosition      = 0x0D
	SubcmdGotoAbsolutePositionGroup = 0x0E
	SubcmdPresetEncoder             = 0x14
	SubcmdWriteDirect               = 0x50
	SubcmdWriteDirectModeData       = 0x51
)

// Port output startup/completion flags
const (
	StartupImmediately = 0x10
	CompletionFeedback = 0x01
)

// FeedbackStatus is a PortOutputFeedback status bit set
type FeedbackStatus uint8

// Port output feedback status bits
const (
	FeedbackInProgress FeedbackStatus = 0x01
	FeedbackCompleted  FeedbackStatus = 0x02
	FeedbackDiscarded  FeedbackStatus = 0x04
	FeedbackIdle       FeedbackStatus = 0x08
	FeedbackBufferFull FeedbackStatus = 0x10
)

// Virtual port setup subcommands
const (
	virtualPortDisconnect = 0x00
	virtualPortConnect    = 0x01
)
