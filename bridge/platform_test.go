package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
)

func TestButtonPress(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	h.add(t, newButton(ccb, testNode, buttonDefinitions[0]))

	msg, ok := h.transport.Last("homeassistant/button/" + testNode + "/reset_errors/config")
	require.True(t, ok)

	var config map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &config))
	assert.Equal(t, testNode+"-reset_errors", config["unique_id"])
	assert.Equal(t, "PRESS", config["payload_press"])
	assert.Equal(t, "diagnostic", config["entity_category"])

	h.command(t, "reset_errors", "press", "PRESS")
	h.command(t, "reset_errors", "press", "nope")
	assert.Equal(t, 1, ccb.cleared)
}

func TestEntities(t *testing.T) {
	entities := Entities(newFakeController(), testNode, testNode)

	counts := map[homeassistant.Platform]int{}
	ids := map[string]bool{}
	for _, e := range entities {
		counts[e.Platform()]++
		assert.False(t, ids[e.UniqueID()], "duplicate unique id %v", e.UniqueID())
		ids[e.UniqueID()] = true
	}

	assert.Equal(t, map[homeassistant.Platform]int{
		homeassistant.PlatformFan:          1,
		homeassistant.PlatformSensor:       30,
		homeassistant.PlatformBinarySensor: 2,
		homeassistant.PlatformSelect:       4,
		homeassistant.PlatformButton:       1,
	}, counts)
	assert.Equal(t, homeassistant.PlatformFan, entities[0].Platform())
}

func TestPlatformAdd(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	h.add(t, Entities(ccb, testNode, testNode)...)

	configs := h.transport.Published("homeassistant/")
	assert.Len(t, configs, 38)
	for _, c := range configs {
		assert.True(t, c.Retained)
		assert.True(t, strings.HasSuffix(c.Topic, "/config"))
	}

	// fan: set, percentage, preset; selects: 4; button: 1
	assert.Len(t, h.transport.Subscriptions(), 8)
	assert.Len(t, h.platform.Entities(), 38)
}

func TestPlatformStates(t *testing.T) {
	h := newTestHost(t)
	h.add(t, NewFan(newFakeController(), testNode))

	h.send(comfoconnect.SensorFanSpeedMode, int64(3))

	states := h.platform.States()
	assert.Equal(t, "3", states["fan"]["percentage"])

	states["fan"]["percentage"] = "0"
	assert.Equal(t, "3", h.platform.States()["fan"]["percentage"])
}

func TestPlatformRemove(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	fan := NewFan(ccb, testNode)
	h.add(t, fan)

	require.NoError(t, h.platform.Remove(false))

	assert.Empty(t, h.transport.Subscriptions())
	assert.Empty(t, h.platform.Entities())
	assert.Equal(t, []uint32{comfoconnect.SensorFanSpeedMode, comfoconnect.SensorOperatingMode}, ccb.deregistered)
	assert.Equal(t, "offline", h.transport.LastPayload(h.client.AvailabilityTopic(testNode)))

	msg, ok := h.transport.Last("homeassistant/fan/" + testNode + "/fan/config")
	require.True(t, ok)
	assert.NotEmpty(t, msg.Payload)

	// Updates no longer reach the entity.
	h.send(comfoconnect.SensorFanSpeedMode, int64(3))
	assert.Equal(t, 0, fan.Percentage())
}

func TestPlatformRemovePurge(t *testing.T) {
	h := newTestHost(t)
	h.add(t, NewFan(newFakeController(), testNode), NewConnectionSensor(testNode))

	require.NoError(t, h.platform.Remove(true))

	for _, topic := range []string{
		"homeassistant/fan/" + testNode + "/fan/config",
		"homeassistant/binary_sensor/" + testNode + "/connection/config",
	} {
		msg, ok := h.transport.Last(topic)
		require.True(t, ok)
		assert.Empty(t, msg.Payload, topic)
	}
}

func TestPlatformSetAvailable(t *testing.T) {
	h := newTestHost(t)

	require.NoError(t, h.platform.SetAvailable(true))
	assert.Equal(t, "online", h.transport.LastPayload(h.client.AvailabilityTopic(testNode)))
}

func TestPlatformRun(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	balance := findSelect(t, ccb, "balance_mode")
	h.add(t, balance)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.platform.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
