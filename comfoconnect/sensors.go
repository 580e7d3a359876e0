package comfoconnect

// Sensor is a process data object the unit can push.
type Sensor struct {
	ID   uint32
	Name string
	Unit string
	Type PdoType

	// ValueFn converts the decoded raw value, if set.
	ValueFn func(any) any
}

// Sensor ids.
const (
	SensorOperatingModeBis        uint32 = 49
	SensorOperatingMode           uint32 = 56
	SensorFanSpeedMode            uint32 = 65
	SensorBypassActivationState   uint32 = 66
	SensorProfileTemperature      uint32 = 67
	SensorFanModeSupply           uint32 = 70
	SensorFanModeExhaust          uint32 = 71
	SensorFanNextChange           uint32 = 81
	SensorBypassNextChange        uint32 = 82
	SensorFanExhaustDuty          uint32 = 117
	SensorFanSupplyDuty           uint32 = 118
	SensorFanExhaustFlow          uint32 = 119
	SensorFanSupplyFlow           uint32 = 120
	SensorFanExhaustSpeed         uint32 = 121
	SensorFanSupplySpeed          uint32 = 122
	SensorPowerUsage              uint32 = 128
	SensorPowerUsageTotalYear     uint32 = 129
	SensorPowerUsageTotal         uint32 = 130
	SensorPreheaterPowerTotalYear uint32 = 144
	SensorPreheaterPowerTotal     uint32 = 145
	SensorPreheaterPower          uint32 = 146
	SensorDaysToReplaceFilter     uint32 = 192
	SensorRmot                    uint32 = 209
	SensorSeasonHeatingActive     uint32 = 210
	SensorSeasonCoolingActive     uint32 = 211
	SensorTargetTemperature       uint32 = 212
	SensorTemperatureSupply       uint32 = 221
	SensorBypassState             uint32 = 227
	SensorAirflowConstraints      uint32 = 230
	SensorTemperatureExtract      uint32 = 274
	SensorTemperatureExhaust      uint32 = 275
	SensorTemperatureOutdoor      uint32 = 276
	SensorHumidityExtract         uint32 = 290
	SensorHumidityExhaust         uint32 = 291
	SensorHumidityOutdoor         uint32 = 292
	SensorHumiditySupply          uint32 = 294
	SensorAnalogInput1            uint32 = 369
	SensorAnalogInput2            uint32 = 370
	SensorAnalogInput3            uint32 = 371
	SensorAnalogInput4            uint32 = 372
	SensorComfoFondTempOutdoor    uint32 = 416
	SensorComfoFondTempGround     uint32 = 417
	SensorComfoFondGheState       uint32 = 418
	SensorComfoCoolCondensorTemp  uint32 = 802
)

func divideBy10(v any) any {
	if i, ok := v.(int64); ok {
		return float64(i) / 10
	}
	return v
}

func asBool(v any) any {
	switch x := v.(type) {
	case int64:
		return x != 0
	case bool:
		return x
	}
	return v
}

func asAirflowConstraints(v any) any {
	if i, ok := v.(int64); ok {
		return AirflowConstraints(i)
	}
	return v
}

// Sensors is the table of known sensors by id.
var Sensors = map[uint32]Sensor{}

func init() {
	for _, s := range []Sensor{
		{ID: SensorOperatingModeBis, Name: "Operating Mode (bis)", Type: TypeInt8},
		{ID: SensorOperatingMode, Name: "Operating Mode", Type: TypeInt8},
		{ID: SensorFanSpeedMode, Name: "Fan Speed", Type: TypeUint8},
		{ID: SensorBypassActivationState, Name: "Bypass Activation State", Type: TypeUint8},
		{ID: SensorProfileTemperature, Name: "Temperature Profile Mode", Type: TypeUint8},
		{ID: SensorFanModeSupply, Name: "Supply Fan Mode", Type: TypeUint8},
		{ID: SensorFanModeExhaust, Name: "Exhaust Fan Mode", Type: TypeUint8},
		{ID: SensorFanNextChange, Name: "Fan Speed Next Change", Unit: "s", Type: TypeUint32},
		{ID: SensorBypassNextChange, Name: "Bypass Next Change", Unit: "s", Type: TypeUint32},
		{ID: SensorFanExhaustDuty, Name: "Exhaust Fan Duty", Unit: "%", Type: TypeUint8},
		{ID: SensorFanSupplyDuty, Name: "Supply Fan Duty", Unit: "%", Type: TypeUint8},
		{ID: SensorFanExhaustFlow, Name: "Exhaust Fan Flow", Unit: "m³/h", Type: TypeUint16},
		{ID: SensorFanSupplyFlow, Name: "Supply Fan Flow", Unit: "m³/h", Type: TypeUint16},
		{ID: SensorFanExhaustSpeed, Name: "Exhaust Fan Speed", Unit: "rpm", Type: TypeUint16},
		{ID: SensorFanSupplySpeed, Name: "Supply Fan Speed", Unit: "rpm", Type: TypeUint16},
		{ID: SensorPowerUsage, Name: "Power Usage", Unit: "W", Type: TypeUint16},
		{ID: SensorPowerUsageTotalYear, Name: "Power Usage (year)", Unit: "kWh", Type: TypeUint16},
		{ID: SensorPowerUsageTotal, Name: "Power Usage (total)", Unit: "kWh", Type: TypeUint16},
		{ID: SensorPreheaterPowerTotalYear, Name: "Preheater Power Usage (year)", Unit: "kWh", Type: TypeUint16},
		{ID: SensorPreheaterPowerTotal, Name: "Preheater Power Usage (total)", Unit: "kWh", Type: TypeUint16},
		{ID: SensorPreheaterPower, Name: "Preheater Power Usage", Unit: "W", Type: TypeUint16},
		{ID: SensorDaysToReplaceFilter, Name: "Days remaining to replace the filter", Unit: "days", Type: TypeUint16},
		{ID: SensorRmot, Name: "Running Mean Outdoor Temperature (RMOT)", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
		{ID: SensorSeasonHeatingActive, Name: "Heating Season is active", Type: TypeBool, ValueFn: asBool},
		{ID: SensorSeasonCoolingActive, Name: "Cooling Season is active", Type: TypeBool, ValueFn: asBool},
		{ID: SensorTargetTemperature, Name: "Target Temperature", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
		{ID: SensorTemperatureSupply, Name: "Supply Air Temperature", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
		{ID: SensorBypassState, Name: "Bypass State", Unit: "%", Type: TypeUint8},
		{ID: SensorAirflowConstraints, Name: "Airflow Constraints", Type: TypeInt64, ValueFn: asAirflowConstraints},
		{ID: SensorTemperatureExtract, Name: "Extract Air Temperature", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
		{ID: SensorTemperatureExhaust, Name: "Exhaust Air Temperature", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
		{ID: SensorTemperatureOutdoor, Name: "Outdoor Air Temperature", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
		{ID: SensorHumidityExtract, Name: "Extract Air Humidity", Unit: "%", Type: TypeUint8},
		{ID: SensorHumidityExhaust, Name: "Exhaust Air Humidity", Unit: "%", Type: TypeUint8},
		{ID: SensorHumidityOutdoor, Name: "Outdoor Air Humidity", Unit: "%", Type: TypeUint8},
		{ID: SensorHumiditySupply, Name: "Supply Air Humidity", Unit: "%", Type: TypeUint8},
		{ID: SensorAnalogInput1, Name: "Analog Input 1", Unit: "V", Type: TypeUint8, ValueFn: divideBy10},
		{ID: SensorAnalogInput2, Name: "Analog Input 2", Unit: "V", Type: TypeUint8, ValueFn: divideBy10},
		{ID: SensorAnalogInput3, Name: "Analog Input 3", Unit: "V", Type: TypeUint8, ValueFn: divideBy10},
		{ID: SensorAnalogInput4, Name: "Analog Input 4", Unit: "V", Type: TypeUint8, ValueFn: divideBy10},
		{ID: SensorComfoFondTempOutdoor, Name: "ComfoFond Outdoor Air Temperature", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
		{ID: SensorComfoFondTempGround, Name: "ComfoFond Ground Temperature", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
		{ID: SensorComfoFondGheState, Name: "ComfoFond GHE State", Unit: "%", Type: TypeUint8},
		{ID: SensorComfoCoolCondensorTemp, Name: "ComfoCool Condensor Temperature", Unit: "°C", Type: TypeInt16, ValueFn: divideBy10},
	} {
		Sensors[s.ID] = s
	}
}

// Property is a value addressed by unit, subunit and property id over RMI.
type Property struct {
	Unit       byte
	Subunit    byte
	PropertyID byte
	Type       PdoType
}

var (
	PropertySerialNumber    = Property{Unit: unitNode, Subunit: 0x01, PropertyID: 0x04, Type: TypeString}
	PropertyFirmwareVersion = Property{Unit: unitNode, Subunit: 0x01, PropertyID: 0x06, Type: TypeUint32}
	PropertyModel           = Property{Unit: unitNode, Subunit: 0x01, PropertyID: 0x08, Type: TypeString}
	PropertyArticle         = Property{Unit: unitNode, Subunit: 0x01, PropertyID: 0x0b, Type: TypeString}
	PropertyCountry         = Property{Unit: unitNode, Subunit: 0x01, PropertyID: 0x0d, Type: TypeString}
	PropertyName            = Property{Unit: unitNode, Subunit: 0x01, PropertyID: 0x14, Type: TypeString}
)
