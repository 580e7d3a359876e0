package comfoconnect

import "strconv"

// Port is the TCP and UDP port a ComfoConnect LAN C gateway listens on.
const Port = 56747

// DefaultLocalUUID is used to register with a gateway when no app uuid is known yet.
const DefaultLocalUUID = "00000000000000000000000000000001"

// DefaultPin is the factory pin of a ComfoConnect LAN C gateway.
const DefaultPin = 0

// OperationType identifies the message carried in a gateway frame.
type OperationType uint32

const (
	OperationNone                      OperationType = 0
	OperationSetAddressRequest         OperationType = 1
	OperationRegisterAppRequest        OperationType = 2
	OperationStartSessionRequest       OperationType = 3
	OperationCloseSessionRequest       OperationType = 4
	OperationListRegisteredAppsRequest OperationType = 5
	OperationDeregisterAppRequest      OperationType = 6
	OperationChangePinRequest          OperationType = 7
	OperationVersionRequest            OperationType = 18
	OperationCnTimeRequest             OperationType = 30
	OperationCnTimeConfirm             OperationType = 31
	OperationCnNodeNotification        OperationType = 32
	OperationCnRmiRequest              OperationType = 33
	OperationCnRmiResponse             OperationType = 34
	OperationCnRpdoRequest             OperationType = 38
	OperationCnRpdoConfirm             OperationType = 39
	OperationCnRpdoNotification        OperationType = 40
	OperationCnAlarmNotification       OperationType = 41
	OperationSetAddressConfirm         OperationType = 51
	OperationRegisterAppConfirm        OperationType = 52
	OperationStartSessionConfirm       OperationType = 53
	OperationCloseSessionConfirm       OperationType = 54
	OperationListRegisteredAppsConfirm OperationType = 55
	OperationDeregisterAppConfirm      OperationType = 56
	OperationChangePinConfirm          OperationType = 57
	OperationVersionConfirm            OperationType = 68
	OperationGatewayNotification       OperationType = 100
	OperationKeepAlive                 OperationType = 101
)

var operationNames = map[OperationType]string{
	OperationNone:                      "NoOperation",
	OperationSetAddressRequest:         "SetAddressRequest",
	OperationRegisterAppRequest:        "RegisterAppRequest",
	OperationStartSessionRequest:       "StartSessionRequest",
	OperationCloseSessionRequest:       "CloseSessionRequest",
	OperationListRegisteredAppsRequest: "ListRegisteredAppsRequest",
	OperationDeregisterAppRequest:      "DeregisterAppRequest",
	OperationChangePinRequest:          "ChangePinRequest",
	OperationVersionRequest:            "VersionRequest",
	OperationCnTimeRequest:             "CnTimeRequest",
	OperationCnTimeConfirm:             "CnTimeConfirm",
	OperationCnNodeNotification:        "CnNodeNotification",
	OperationCnRmiRequest:              "CnRmiRequest",
	OperationCnRmiResponse:             "CnRmiResponse",
	OperationCnRpdoRequest:             "CnRpdoRequest",
	OperationCnRpdoConfirm:             "CnRpdoConfirm",
	OperationCnRpdoNotification:        "CnRpdoNotification",
	OperationCnAlarmNotification:       "CnAlarmNotification",
	OperationSetAddressConfirm:         "SetAddressConfirm",
	OperationRegisterAppConfirm:        "RegisterAppConfirm",
	OperationStartSessionConfirm:       "StartSessionConfirm",
	OperationCloseSessionConfirm:       "CloseSessionConfirm",
	OperationListRegisteredAppsConfirm: "ListRegisteredAppsConfirm",
	OperationDeregisterAppConfirm:      "DeregisterAppConfirm",
	OperationChangePinConfirm:          "ChangePinConfirm",
	OperationVersionConfirm:            "VersionConfirm",
	OperationGatewayNotification:       "GatewayNotification",
	OperationKeepAlive:                 "KeepAlive",
}

func (o OperationType) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "Operation(" + strconv.FormatUint(uint64(o), 10) + ")"
}

// GatewayResult is the result code a gateway attaches to a reply.
type GatewayResult uint32

const (
	ResultOK            GatewayResult = 0
	ResultBadRequest    GatewayResult = 1
	ResultInternalError GatewayResult = 2
	ResultNotReachable  GatewayResult = 3
	ResultOtherSession  GatewayResult = 4
	ResultNotAllowed    GatewayResult = 5
	ResultNoResources   GatewayResult = 6
	ResultNotExist      GatewayResult = 7
	ResultRmiError      GatewayResult = 8
)

var resultNames = map[GatewayResult]string{
	ResultOK:            "OK",
	ResultBadRequest:    "BAD_REQUEST",
	ResultInternalError: "INTERNAL_ERROR",
	ResultNotReachable:  "NOT_REACHABLE",
	ResultOtherSession:  "OTHER_SESSION",
	ResultNotAllowed:    "NOT_ALLOWED",
	ResultNoResources:   "NO_RESOURCES",
	ResultNotExist:      "NOT_EXIST",
	ResultRmiError:      "RMI_ERROR",
}

func (r GatewayResult) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "Result(" + strconv.FormatUint(uint64(r), 10) + ")"
}

// PdoType describes how a sensor or property value is encoded.
type PdoType uint32

const (
	TypeBool    PdoType = 0x00
	TypeUint8   PdoType = 0x01
	TypeUint16  PdoType = 0x02
	TypeUint32  PdoType = 0x03
	TypeInt8    PdoType = 0x05
	TypeInt16   PdoType = 0x06
	TypeInt64   PdoType = 0x08
	TypeString  PdoType = 0x09
	TypeTime    PdoType = 0x10
	TypeVersion PdoType = 0x11
)

// RMI units.
const (
	unitNode     byte = 0x01
	unitError    byte = 0x03
	unitSchedule byte = 0x15
)

// Subunits of the schedule unit.
const (
	subunitSpeed              byte = 0x01
	subunitBypass             byte = 0x02
	subunitTemperatureProfile byte = 0x03
	subunitSupplyFan          byte = 0x06
	subunitExhaustFan         byte = 0x07
	subunitMode               byte = 0x08
)

// RMI opcodes.
const (
	rmiGetProperty    byte = 0x01
	rmiSetProperty    byte = 0x03
	rmiClear          byte = 0x82
	rmiGetSchedule    byte = 0x83
	rmiSetSchedule    byte = 0x84
	rmiDeleteSchedule byte = 0x85
)

// defaultNodeID is the node id of the ventilation unit on the ComfoNet bus.
const defaultNodeID = 1

// VentilationSpeed is a fan speed step.
type VentilationSpeed string

const (
	SpeedAway   VentilationSpeed = "away"
	SpeedLow    VentilationSpeed = "low"
	SpeedMedium VentilationSpeed = "medium"
	SpeedHigh   VentilationSpeed = "high"
)

// VentilationMode selects between the unit's schedule and a manual override.
type VentilationMode string

const (
	ModeAuto   VentilationMode = "auto"
	ModeManual VentilationMode = "manual"
)

// VentilationSetting is a tri-state override used by the bypass.
type VentilationSetting string

const (
	SettingAuto VentilationSetting = "auto"
	SettingOn   VentilationSetting = "on"
	SettingOff  VentilationSetting = "off"
)

// VentilationBalance selects which fans run.
type VentilationBalance string

const (
	BalanceBalance     VentilationBalance = "balance"
	BalanceSupplyOnly  VentilationBalance = "supply_only"
	BalanceExhaustOnly VentilationBalance = "exhaust_only"
)

// VentilationTemperatureProfile is the comfort temperature profile.
type VentilationTemperatureProfile string

const (
	ProfileWarm   VentilationTemperatureProfile = "warm"
	ProfileNormal VentilationTemperatureProfile = "normal"
	ProfileCool   VentilationTemperatureProfile = "cool"
)
