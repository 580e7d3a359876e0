package bridge

import (
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
)

type sensorDescription struct {
	key             uint32
	name            string
	deviceClass     string
	stateClass      string
	unit            string
	icon            string
	entityCategory  string
	disabledDefault bool
	throttle        bool
	mapping         func(value any) any
}

const (
	stateClassMeasurement     = "measurement"
	stateClassTotalIncreasing = "total_increasing"
)

var sensorDefinitions = [...]sensorDescription{
	{
		key:         comfoconnect.SensorTemperatureExtract,
		name:        "Inside temperature",
		deviceClass: "temperature",
		stateClass:  stateClassMeasurement,
		unit:        "°C",
	},
	{
		key:         comfoconnect.SensorHumidityExtract,
		name:        "Inside humidity",
		deviceClass: "humidity",
		stateClass:  stateClassMeasurement,
		unit:        "%",
	},
	{
		key:             comfoconnect.SensorRmot,
		name:            "Current RMOT",
		deviceClass:     "temperature",
		stateClass:      stateClassMeasurement,
		unit:            "°C",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
	},
	{
		key:         comfoconnect.SensorTemperatureOutdoor,
		name:        "Outside temperature",
		deviceClass: "temperature",
		stateClass:  stateClassMeasurement,
		unit:        "°C",
	},
	{
		key:         comfoconnect.SensorHumidityOutdoor,
		name:        "Outside humidity",
		deviceClass: "humidity",
		stateClass:  stateClassMeasurement,
		unit:        "%",
	},
	{
		key:         comfoconnect.SensorTemperatureSupply,
		name:        "Supply temperature",
		deviceClass: "temperature",
		stateClass:  stateClassMeasurement,
		unit:        "°C",
	},
	{
		key:         comfoconnect.SensorHumiditySupply,
		name:        "Supply humidity",
		deviceClass: "humidity",
		stateClass:  stateClassMeasurement,
		unit:        "%",
	},
	{
		key:             comfoconnect.SensorFanSupplySpeed,
		name:            "Supply fan speed",
		stateClass:      stateClassMeasurement,
		unit:            "rpm",
		icon:            "mdi:fan-plus",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:             comfoconnect.SensorFanSupplyDuty,
		name:            "Supply fan duty",
		stateClass:      stateClassMeasurement,
		unit:            "%",
		icon:            "mdi:fan-plus",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:             comfoconnect.SensorFanExhaustSpeed,
		name:            "Exhaust fan speed",
		stateClass:      stateClassMeasurement,
		unit:            "rpm",
		icon:            "mdi:fan-minus",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:             comfoconnect.SensorFanExhaustDuty,
		name:            "Exhaust fan duty",
		stateClass:      stateClassMeasurement,
		unit:            "%",
		icon:            "mdi:fan-minus",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:         comfoconnect.SensorTemperatureExhaust,
		name:        "Exhaust temperature",
		deviceClass: "temperature",
		stateClass:  stateClassMeasurement,
		unit:        "°C",
	},
	{
		key:         comfoconnect.SensorHumidityExhaust,
		name:        "Exhaust humidity",
		deviceClass: "humidity",
		stateClass:  stateClassMeasurement,
		unit:        "%",
	},
	{
		key:             comfoconnect.SensorFanSupplyFlow,
		name:            "Supply airflow",
		stateClass:      stateClassMeasurement,
		unit:            "m³/h",
		icon:            "mdi:fan-plus",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:             comfoconnect.SensorFanExhaustFlow,
		name:            "Exhaust airflow",
		stateClass:      stateClassMeasurement,
		unit:            "m³/h",
		icon:            "mdi:fan-minus",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:        comfoconnect.SensorBypassState,
		name:       "Bypass state",
		stateClass: stateClassMeasurement,
		unit:       "%",
		icon:       "mdi:camera-iris",
	},
	{
		key:            comfoconnect.SensorDaysToReplaceFilter,
		name:           "Days to replace filter",
		unit:           "d",
		icon:           "mdi:calendar",
		entityCategory: homeassistant.EntityCategoryDiagnostic,
	},
	{
		key:             comfoconnect.SensorPowerUsage,
		name:            "Ventilation current power usage",
		deviceClass:     "power",
		stateClass:      stateClassMeasurement,
		unit:            "W",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:             comfoconnect.SensorPowerUsageTotal,
		name:            "Ventilation total energy usage",
		deviceClass:     "energy",
		stateClass:      stateClassTotalIncreasing,
		unit:            "kWh",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:             comfoconnect.SensorPreheaterPower,
		name:            "Preheater current power usage",
		deviceClass:     "power",
		stateClass:      stateClassMeasurement,
		unit:            "W",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:             comfoconnect.SensorPreheaterPowerTotal,
		name:            "Preheater total energy usage",
		deviceClass:     "energy",
		stateClass:      stateClassTotalIncreasing,
		unit:            "kWh",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
		throttle:        true,
	},
	{
		key:            comfoconnect.SensorAnalogInput1,
		name:           "Analog Input 1",
		deviceClass:    "voltage",
		stateClass:     stateClassMeasurement,
		unit:           "V",
		entityCategory: homeassistant.EntityCategoryDiagnostic,
		throttle:       true,
	},
	{
		key:            comfoconnect.SensorAnalogInput2,
		name:           "Analog Input 2",
		deviceClass:    "voltage",
		stateClass:     stateClassMeasurement,
		unit:           "V",
		entityCategory: homeassistant.EntityCategoryDiagnostic,
		throttle:       true,
	},
	{
		key:            comfoconnect.SensorAnalogInput3,
		name:           "Analog Input 3",
		deviceClass:    "voltage",
		stateClass:     stateClassMeasurement,
		unit:           "V",
		entityCategory: homeassistant.EntityCategoryDiagnostic,
		throttle:       true,
	},
	{
		key:            comfoconnect.SensorAnalogInput4,
		name:           "Analog Input 4",
		deviceClass:    "voltage",
		stateClass:     stateClassMeasurement,
		unit:           "V",
		entityCategory: homeassistant.EntityCategoryDiagnostic,
		throttle:       true,
	},
	{
		key:            comfoconnect.SensorAirflowConstraints,
		name:           "Airflow Constraint",
		icon:           "mdi:fan-alert",
		entityCategory: homeassistant.EntityCategoryDiagnostic,
		mapping:        firstConstraint,
	},
	{
		key:             comfoconnect.SensorComfoFondGheState,
		name:            "ComfoFond GHE state",
		stateClass:      stateClassMeasurement,
		unit:            "%",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
	},
	{
		key:             comfoconnect.SensorComfoFondTempGround,
		name:            "ComfoFond ground temperature",
		deviceClass:     "temperature",
		stateClass:      stateClassMeasurement,
		unit:            "°C",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
	},
	{
		key:             comfoconnect.SensorComfoFondTempOutdoor,
		name:            "ComfoFond outdoor air temperature",
		deviceClass:     "temperature",
		stateClass:      stateClassMeasurement,
		unit:            "°C",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
	},
	{
		key:             comfoconnect.SensorComfoCoolCondensorTemp,
		name:            "ComfoCool condensor temperature",
		deviceClass:     "temperature",
		stateClass:      stateClassMeasurement,
		unit:            "°C",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
	},
}

func firstConstraint(value any) any {
	if constraints, ok := value.([]string); ok && len(constraints) > 0 {
		return constraints[0]
	}
	return ""
}
