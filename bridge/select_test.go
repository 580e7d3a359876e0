package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
)

func findSelect(t *testing.T, ccb Controller, key string) *Select {
	t.Helper()
	for _, d := range selectDefinitions {
		if d.key == key {
			return newSelect(ccb, testNode, d)
		}
	}
	t.Fatalf("no select %v", key)
	return nil
}

func TestSelectConfiguration(t *testing.T) {
	h := newTestHost(t)
	h.add(t, findSelect(t, newFakeController(), "temperature_profile"))

	msg, ok := h.transport.Last("homeassistant/select/" + testNode + "/temperature_profile/config")
	require.True(t, ok)

	var config map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &config))
	assert.Equal(t, testNode+"-temperature_profile", config["unique_id"])
	assert.Equal(t, "config", config["entity_category"])
	assert.Equal(t, []any{"warm", "normal", "cool"}, config["options"])
}

func TestSelectInitialUpdate(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	ccb.bypass = comfoconnect.SettingOff
	bypass := findSelect(t, ccb, "bypass_mode")
	h.add(t, bypass)

	require.NotNil(t, bypass.CurrentOption())
	assert.Equal(t, "off", *bypass.CurrentOption())
	assert.Equal(t, "off", h.state("bypass_mode", "state"))
	assert.Equal(t, []uint32{comfoconnect.SensorBypassActivationState}, ccb.registered)
}

func TestSelectSensorUpdate(t *testing.T) {
	tests := []struct {
		key    string
		sensor uint32
		value  int64
		want   string
	}{
		{"select_mode", comfoconnect.SensorOperatingMode, -1, "auto"},
		{"select_mode", comfoconnect.SensorOperatingMode, 1, "manual"},
		{"bypass_mode", comfoconnect.SensorBypassActivationState, 0, "auto"},
		{"bypass_mode", comfoconnect.SensorBypassActivationState, 1, "on"},
		{"bypass_mode", comfoconnect.SensorBypassActivationState, 2, "off"},
		{"temperature_profile", comfoconnect.SensorProfileTemperature, 0, "normal"},
		{"temperature_profile", comfoconnect.SensorProfileTemperature, 1, "cool"},
		{"temperature_profile", comfoconnect.SensorProfileTemperature, 2, "warm"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.want, func(t *testing.T) {
			h := newTestHost(t)
			s := findSelect(t, newFakeController(), tt.key)
			h.add(t, s)

			h.send(tt.sensor, tt.value)
			require.NotNil(t, s.CurrentOption())
			assert.Equal(t, tt.want, *s.CurrentOption())
			assert.Equal(t, tt.want, h.state(tt.key, "state"))
		})
	}
}

func TestSelectUnknownSensorValue(t *testing.T) {
	h := newTestHost(t)
	s := findSelect(t, newFakeController(), "select_mode")
	h.add(t, s)

	h.send(comfoconnect.SensorOperatingMode, int64(5))
	assert.Nil(t, s.CurrentOption())
	assert.Equal(t, "None", h.state("select_mode", "state"))
}

func TestSelectBalanceIsPolled(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	balance := findSelect(t, ccb, "balance_mode")
	mode := findSelect(t, ccb, "select_mode")
	h.add(t, balance, mode)

	assert.True(t, balance.ShouldPoll())
	assert.False(t, mode.ShouldPoll())
	assert.Equal(t, "balance", *balance.CurrentOption())

	ccb.balance = comfoconnect.BalanceSupplyOnly
	ccb.mode = comfoconnect.ModeManual
	h.platform.Poll(context.Background())

	assert.Equal(t, "supply_only", *balance.CurrentOption())
	assert.Equal(t, "auto", *mode.CurrentOption())
}

func TestSelectOption(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	balance := findSelect(t, ccb, "balance_mode")
	profile := findSelect(t, ccb, "temperature_profile")
	h.add(t, balance, profile)

	h.command(t, "balance_mode", "set", "exhaust_only")
	h.command(t, "temperature_profile", "set", "warm")

	assert.Equal(t, comfoconnect.BalanceExhaustOnly, ccb.balance)
	assert.Equal(t, comfoconnect.ProfileWarm, ccb.profile)
	assert.Equal(t, "exhaust_only", h.state("balance_mode", "state"))
	assert.Equal(t, "warm", *profile.CurrentOption())
}

func TestSelectInvalidOption(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	s := findSelect(t, ccb, "bypass_mode")
	h.add(t, s)

	assert.Error(t, s.SelectOption(context.Background(), "sometimes"))
	assert.Equal(t, comfoconnect.SettingAuto, ccb.bypass)
}

func TestSelectOptionError(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	s := findSelect(t, ccb, "select_mode")
	h.add(t, s)

	ccb.err = errTest
	assert.ErrorIs(t, s.SelectOption(context.Background(), "manual"), errTest)
	assert.Equal(t, "auto", *s.CurrentOption())
}

func TestSelectConcurrentUpdates(t *testing.T) {
	h := newTestHost(t)
	ccb := newFakeController()
	s := findSelect(t, ccb, "bypass_mode")
	h.add(t, s)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.send(comfoconnect.SensorBypassActivationState, int64(i%3))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			assert.NoError(t, s.SelectOption(context.Background(), "on"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			assert.NoError(t, s.Update(context.Background()))
			_ = s.CurrentOption()
		}
	}()
	wg.Wait()

	require.NotNil(t, s.CurrentOption())
	assert.Contains(t, []string{"auto", "on", "off"}, *s.CurrentOption())
	assert.Equal(t, *s.CurrentOption(), h.state("bypass_mode", "state"))
}
