package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
)

func TestFanConfiguration(t *testing.T) {
	h := newTestHost(t)
	fan := NewFan(newFakeController(), testNode)
	h.add(t, fan)

	msg, ok := h.transport.Last("homeassistant/fan/" + testNode + "/fan/config")
	require.True(t, ok)
	assert.True(t, msg.Retained)

	var config map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &config))
	assert.Equal(t, testNode, config["unique_id"])
	assert.Equal(t, "ComfoAir Q", config["name"])
	assert.Equal(t, "comfoconnect/"+testNode+"/fan/percentage/set", config["percentage_command_topic"])
	assert.Equal(t, []any{"auto", "manual"}, config["preset_modes"])
	assert.Equal(t, "all", config["availability_mode"])
	assert.Equal(t, float64(1), config["speed_range_min"])
	assert.Equal(t, float64(3), config["speed_range_max"])

	device := config["device"].(map[string]any)
	assert.Equal(t, []any{"comfoconnect_" + testNode}, device["identifiers"])
}

func TestFanRegistersSensors(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	h.add(t, NewFan(ccb, testNode))

	assert.Equal(t, []uint32{comfoconnect.SensorFanSpeedMode, comfoconnect.SensorOperatingMode}, ccb.registered)
}

func TestFanSpeedUpdate(t *testing.T) {
	h := newTestHost(t)
	fan := NewFan(newFakeController(), testNode)
	h.add(t, fan)

	h.send(comfoconnect.SensorFanSpeedMode, int64(2))
	assert.Equal(t, 66, fan.Percentage())
	assert.True(t, fan.IsOn())
	assert.Equal(t, "2", h.state("fan", "percentage"))
	assert.Equal(t, "ON", h.state("fan", "state"))

	h.send(comfoconnect.SensorFanSpeedMode, int64(0))
	assert.Equal(t, 0, fan.Percentage())
	assert.False(t, fan.IsOn())
	assert.Equal(t, "0", h.state("fan", "percentage"))
	assert.Equal(t, "OFF", h.state("fan", "state"))
}

func TestFanModeUpdate(t *testing.T) {
	h := newTestHost(t)
	fan := NewFan(newFakeController(), testNode)
	h.add(t, fan)

	h.send(comfoconnect.SensorOperatingMode, int64(-1))
	assert.Equal(t, "auto", fan.PresetMode())
	assert.Equal(t, "auto", h.state("fan", "preset_mode"))

	h.send(comfoconnect.SensorOperatingMode, int64(1))
	assert.Equal(t, "manual", fan.PresetMode())
}

func TestFanTurnOn(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t)
	ccb := newFakeController()
	ccb.mode = comfoconnect.ModeManual
	fan := NewFan(ccb, testNode)
	h.add(t, fan)

	require.NoError(t, fan.TurnOn(ctx, nil, nil))
	high := 100
	require.NoError(t, fan.TurnOn(ctx, &high, nil))
	auto := "auto"
	require.NoError(t, fan.TurnOn(ctx, &high, &auto))
	require.NoError(t, fan.TurnOff(ctx))

	assert.Equal(t, []comfoconnect.VentilationSpeed{
		comfoconnect.SpeedLow,
		comfoconnect.SpeedHigh,
		comfoconnect.SpeedAway,
	}, ccb.speeds)
	assert.Equal(t, comfoconnect.ModeAuto, ccb.mode)
}

func TestFanCommands(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	h.add(t, NewFan(ccb, testNode))

	h.command(t, "fan", "percentage/set", "2")
	h.command(t, "fan", "set", "OFF")
	h.command(t, "fan", "percentage/set", "lots")
	h.command(t, "fan", "percentage/set", "9")
	h.command(t, "fan", "preset_mode/set", "manual")

	assert.Equal(t, []comfoconnect.VentilationSpeed{
		comfoconnect.SpeedMedium,
		comfoconnect.SpeedAway,
		comfoconnect.SpeedHigh,
	}, ccb.speedsSet())
	assert.Equal(t, comfoconnect.ModeManual, ccb.mode)
}

func TestFanOnCommandDefaultsToLow(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	fan := NewFan(ccb, testNode)
	fan.onDelay = time.Millisecond
	h.add(t, fan)

	h.command(t, "fan", "set", "ON")

	assert.Eventually(t, func() bool {
		return len(ccb.speedsSet()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []comfoconnect.VentilationSpeed{comfoconnect.SpeedLow}, ccb.speedsSet())
}

func TestFanOnCommandWithSpeed(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	fan := NewFan(ccb, testNode)
	fan.onDelay = time.Hour
	h.add(t, fan)

	h.command(t, "fan", "set", "ON")
	h.command(t, "fan", "percentage/set", "3")

	assert.Equal(t, []comfoconnect.VentilationSpeed{comfoconnect.SpeedHigh}, ccb.speedsSet())
	fan.mu.Lock()
	assert.Nil(t, fan.pendingOn)
	fan.mu.Unlock()
}

func TestFanOnCommandWithPreset(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	ccb.mode = comfoconnect.ModeManual
	fan := NewFan(ccb, testNode)
	fan.onDelay = time.Hour
	h.add(t, fan)

	h.command(t, "fan", "set", "ON")
	h.command(t, "fan", "preset_mode/set", "auto")

	assert.Empty(t, ccb.speedsSet())
	assert.Equal(t, comfoconnect.ModeAuto, ccb.mode)
	fan.mu.Lock()
	assert.Nil(t, fan.pendingOn)
	fan.mu.Unlock()
}

func TestFanOnCommandKeepsRunningSpeed(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	fan := NewFan(ccb, testNode)
	fan.onDelay = time.Millisecond
	h.add(t, fan)

	h.send(comfoconnect.SensorFanSpeedMode, int64(3))
	h.command(t, "fan", "set", "ON")

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, ccb.speedsSet())
}

func TestFanConcurrentUpdates(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	fan := NewFan(ccb, testNode)
	fan.onDelay = time.Millisecond
	h.add(t, fan)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.send(comfoconnect.SensorFanSpeedMode, int64(i%4))
			h.send(comfoconnect.SensorOperatingMode, int64(1))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.command(t, "fan", "set", "ON")
			h.command(t, "fan", "percentage/set", "1")
			_ = fan.IsOn()
			_ = fan.PresetMode()
		}
	}()
	wg.Wait()

	assert.Equal(t, "manual", fan.PresetMode())
}

func TestFanInvalidPresetMode(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	fan := NewFan(ccb, testNode)
	h.add(t, fan)

	assert.Error(t, fan.SetPresetMode(context.Background(), "turbo"))
	assert.Equal(t, comfoconnect.ModeAuto, ccb.mode)
}
