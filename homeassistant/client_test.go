package homeassistant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	transport := NewFakeTransport()
	client := NewClient(transport, "homeassistant", "comfoconnect")

	enabled := false
	err := client.Register(PlatformSensor, "abc", "sensor_274", SensorConfiguration{
		EntityConfiguration: EntityConfiguration{
			UniqueId:         "abc-274",
			Name:             "Inside temperature",
			EnabledByDefault: &enabled,
			Device:           &Device{Identifiers: []string{"comfoconnect_abc"}},
			Availability:     []Availability{{Topic: client.StatusTopic()}, {Topic: client.AvailabilityTopic("abc")}},
			AvailabilityMode: "all",
		},
		StateTopic:        client.Topic("abc", "sensor_274", "state"),
		DeviceClass:       "temperature",
		UnitOfMeasurement: "°C",
	})
	require.NoError(t, err)

	msg, ok := transport.Last("homeassistant/sensor/abc/sensor_274/config")
	require.True(t, ok)
	assert.True(t, msg.Retained)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "abc-274", payload["unique_id"])
	assert.Equal(t, "comfoconnect/abc/sensor_274/state", payload["state_topic"])
	assert.Equal(t, false, payload["enabled_by_default"])
	assert.NotContains(t, payload, "state_class")
	assert.Len(t, payload["availability"], 2)
}

func TestUnregister(t *testing.T) {
	transport := NewFakeTransport()
	client := NewClient(transport, "homeassistant", "comfoconnect")

	require.NoError(t, client.Unregister(PlatformFan, "abc", "fan"))

	msg, ok := transport.Last("homeassistant/fan/abc/fan/config")
	require.True(t, ok)
	assert.True(t, msg.Retained)
	assert.Empty(t, msg.Payload)
}

func TestAvailability(t *testing.T) {
	transport := NewFakeTransport()
	client := NewClient(transport, "homeassistant", "comfoconnect")

	require.NoError(t, client.PublishAvailability("abc", false))
	require.NoError(t, client.PublishStatus(true))

	msg, _ := transport.Last("comfoconnect/abc/availability")
	assert.Equal(t, "offline", string(msg.Payload))
	msg, _ = transport.Last("comfoconnect/status")
	assert.Equal(t, "online", string(msg.Payload))
}

func TestSubscribe(t *testing.T) {
	transport := NewFakeTransport()
	client := NewClient(transport, "homeassistant", "comfoconnect")

	var got string
	require.NoError(t, client.Subscribe("comfoconnect/abc/fan/set", func(payload string) { got = payload }))

	transport.Deliver("comfoconnect/abc/fan/set", "ON")
	assert.Equal(t, "ON", got)

	require.NoError(t, client.Unsubscribe("comfoconnect/abc/fan/set"))
	transport.Deliver("comfoconnect/abc/fan/set", "OFF")
	assert.Equal(t, "ON", got)
}

func TestFormatState(t *testing.T) {
	assert.Equal(t, "None", FormatState(nil))
	assert.Equal(t, "ON", FormatState(true))
	assert.Equal(t, "OFF", FormatState(false))
	assert.Equal(t, "21.5", FormatState(21.5))
	assert.Equal(t, "-2", FormatState(float64(-2)))
	assert.Equal(t, "66", FormatState(66))
	assert.Equal(t, "42", FormatState(int64(42)))
	assert.Equal(t, "auto", FormatState("auto"))
	assert.Equal(t, `["Bypass"]`, FormatState([]string{"Bypass"}))
}
