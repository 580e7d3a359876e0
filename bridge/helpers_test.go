package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
	"go.uber.org/zap"
)

const testNode = "00000000000000000000000000000001"

var errTest = errors.New("boom")

type fakeController struct {
	mu sync.Mutex

	registered   []uint32
	deregistered []uint32
	speeds       []comfoconnect.VentilationSpeed
	cleared      int

	mode    comfoconnect.VentilationMode
	bypass  comfoconnect.VentilationSetting
	balance comfoconnect.VentilationBalance
	profile comfoconnect.VentilationTemperatureProfile

	err error
}

func newFakeController() *fakeController {
	return &fakeController{
		mode:    comfoconnect.ModeAuto,
		bypass:  comfoconnect.SettingAuto,
		balance: comfoconnect.BalanceBalance,
		profile: comfoconnect.ProfileNormal,
	}
}

func (f *fakeController) RegisterSensor(_ context.Context, sensor comfoconnect.Sensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, sensor.ID)
	return nil
}

func (f *fakeController) DeregisterSensor(_ context.Context, sensor comfoconnect.Sensor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, sensor.ID)
	return nil
}

func (f *fakeController) speedsSet() []comfoconnect.VentilationSpeed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]comfoconnect.VentilationSpeed(nil), f.speeds...)
}

func (f *fakeController) SetSpeed(_ context.Context, speed comfoconnect.VentilationSpeed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speeds = append(f.speeds, speed)
	return f.err
}

func (f *fakeController) GetMode(context.Context) (comfoconnect.VentilationMode, error) {
	return f.mode, f.err
}

func (f *fakeController) SetMode(_ context.Context, mode comfoconnect.VentilationMode) error {
	if f.err != nil {
		return f.err
	}
	f.mode = mode
	return nil
}

func (f *fakeController) GetBypass(context.Context) (comfoconnect.VentilationSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bypass, f.err
}

func (f *fakeController) SetBypass(_ context.Context, setting comfoconnect.VentilationSetting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.bypass = setting
	return nil
}

func (f *fakeController) GetBalanceMode(context.Context) (comfoconnect.VentilationBalance, error) {
	return f.balance, f.err
}

func (f *fakeController) SetBalanceMode(_ context.Context, balance comfoconnect.VentilationBalance) error {
	if f.err != nil {
		return f.err
	}
	f.balance = balance
	return nil
}

func (f *fakeController) GetTemperatureProfile(context.Context) (comfoconnect.VentilationTemperatureProfile, error) {
	return f.profile, f.err
}

func (f *fakeController) SetTemperatureProfile(_ context.Context, profile comfoconnect.VentilationTemperatureProfile) error {
	if f.err != nil {
		return f.err
	}
	f.profile = profile
	return nil
}

func (f *fakeController) ClearErrors(context.Context) error {
	f.cleared++
	return f.err
}

type testHost struct {
	transport  *homeassistant.FakeTransport
	client     *homeassistant.Client
	dispatcher *Dispatcher
	platform   *Platform
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()

	transport := homeassistant.NewFakeTransport()
	client := homeassistant.NewClient(transport, "homeassistant", "comfoconnect")
	dispatcher := NewDispatcher()

	unit := homeassistant.Device{Identifiers: []string{"comfoconnect_" + testNode}, Name: "ComfoAirQ"}
	gateway := homeassistant.Device{Identifiers: []string{"comfoconnect_gateway_" + testNode}, Name: "ComfoConnect LAN C"}

	platform := NewPlatform(client, dispatcher, testNode, unit, gateway, zap.NewNop().Sugar())
	t.Cleanup(func() { _ = platform.Remove(false) })

	return &testHost{
		transport:  transport,
		client:     client,
		dispatcher: dispatcher,
		platform:   platform,
	}
}

func (h *testHost) add(t *testing.T, entities ...Entity) {
	t.Helper()
	require.NoError(t, h.platform.Add(context.Background(), entities...))
}

func (h *testHost) send(sensorID uint32, value any) {
	h.dispatcher.Send(UpdateSignal(testNode, sensorID), value)
}

func (h *testHost) state(object string, suffix string) string {
	return h.transport.LastPayload(h.client.Topic(testNode, object, suffix))
}

func (h *testHost) command(t *testing.T, object string, suffix string, payload string) {
	t.Helper()
	require.True(t, h.transport.Deliver(h.client.Topic(testNode, object, suffix), payload), "no subscription for %v/%v", object, suffix)
}
