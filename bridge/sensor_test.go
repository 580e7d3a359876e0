package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
)

func findSensorDescription(t *testing.T, key uint32) sensorDescription {
	t.Helper()
	for _, d := range sensorDefinitions {
		if d.key == key {
			return d
		}
	}
	t.Fatalf("no sensor description for %v", key)
	return sensorDescription{}
}

func TestSensorDefinitions(t *testing.T) {
	assert.Len(t, sensorDefinitions, 30)

	seen := map[uint32]bool{}
	for _, d := range sensorDefinitions {
		assert.False(t, seen[d.key], "duplicate sensor %v", d.key)
		seen[d.key] = true

		_, ok := comfoconnect.Sensors[d.key]
		assert.True(t, ok, "sensor %v is unknown", d.key)
	}
}

func TestSensorConfiguration(t *testing.T) {
	h := newTestHost(t)
	h.add(t, newSensor(newFakeController(), testNode, findSensorDescription(t, comfoconnect.SensorPowerUsage)))

	msg, ok := h.transport.Last("homeassistant/sensor/" + testNode + "/sensor_128/config")
	require.True(t, ok)

	var config map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &config))
	assert.Equal(t, testNode+"-128", config["unique_id"])
	assert.Equal(t, "power", config["device_class"])
	assert.Equal(t, "measurement", config["state_class"])
	assert.Equal(t, "W", config["unit_of_measurement"])
	assert.Equal(t, "diagnostic", config["entity_category"])
	assert.Equal(t, false, config["enabled_by_default"])
}

func TestSensorUpdate(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	sensor := newSensor(ccb, testNode, findSensorDescription(t, comfoconnect.SensorTemperatureExtract))
	h.add(t, sensor)

	assert.Equal(t, []uint32{comfoconnect.SensorTemperatureExtract}, ccb.registered)

	h.send(comfoconnect.SensorTemperatureExtract, 21.5)
	assert.Equal(t, 21.5, sensor.Value())
	assert.Equal(t, "21.5", h.state("sensor_274", "state"))

	h.send(comfoconnect.SensorTemperatureExtract, 21.6)
	assert.Equal(t, "21.6", h.state("sensor_274", "state"))
}

func TestSensorThrottle(t *testing.T) {
	h := newTestHost(t)
	sensor := newSensor(newFakeController(), testNode, findSensorDescription(t, comfoconnect.SensorFanSupplySpeed))
	require.NotNil(t, sensor.limiter)

	now := time.Unix(1700000000, 0)
	sensor.now = func() time.Time { return now }
	h.add(t, sensor)

	h.send(comfoconnect.SensorFanSupplySpeed, int64(1200))
	assert.Equal(t, int64(1200), sensor.Value())

	now = now.Add(5 * time.Second)
	h.send(comfoconnect.SensorFanSupplySpeed, int64(1300))
	assert.Equal(t, int64(1200), sensor.Value())
	assert.Equal(t, "1200", h.state("sensor_122", "state"))

	now = now.Add(MinTimeBetweenUpdates)
	h.send(comfoconnect.SensorFanSupplySpeed, int64(1400))
	assert.Equal(t, int64(1400), sensor.Value())
}

func TestSensorAirflowConstraint(t *testing.T) {
	h := newTestHost(t)
	sensor := newSensor(newFakeController(), testNode, findSensorDescription(t, comfoconnect.SensorAirflowConstraints))
	h.add(t, sensor)

	h.send(comfoconnect.SensorAirflowConstraints, []string{"MinRH", "MaxRH"})
	assert.Equal(t, "MinRH", sensor.Value())

	h.send(comfoconnect.SensorAirflowConstraints, []string{})
	assert.Equal(t, "", sensor.Value())
}
