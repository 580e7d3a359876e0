package homekit

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/victorjacobs/go-comfoconnect/bridge"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"go.uber.org/zap"
)

const (
	commandTimeout = 10 * time.Second

	filterOK     = 0
	changeFilter = 1
)

type fanService struct {
	*service.S

	Active        *characteristic.Active
	CurrentState  *characteristic.CurrentFanState
	TargetState   *characteristic.TargetFanState
	RotationSpeed *characteristic.RotationSpeed
}

func newFanService() *fanService {
	s := fanService{}
	s.S = service.New(service.TypeFanV2)

	s.Active = characteristic.NewActive()
	s.AddC(s.Active.C)

	s.CurrentState = characteristic.NewCurrentFanState()
	s.AddC(s.CurrentState.C)

	s.TargetState = characteristic.NewTargetFanState()
	s.AddC(s.TargetState.C)

	s.RotationSpeed = characteristic.NewRotationSpeed()
	s.RotationSpeed.SetStepValue(33)
	s.AddC(s.RotationSpeed.C)

	return &s
}

type filterService struct {
	*service.S

	FilterChangeIndication *characteristic.FilterChangeIndication
	FilterLifeLevel        *characteristic.FilterLifeLevel
}

func newFilterService() *filterService {
	s := filterService{}
	s.S = service.New(service.TypeFilterMaintenance)

	s.FilterChangeIndication = characteristic.NewFilterChangeIndication()
	s.AddC(s.FilterChangeIndication.C)

	s.FilterLifeLevel = characteristic.NewFilterLifeLevel()
	s.AddC(s.FilterLifeLevel.C)

	return &s
}

// Accessory is one ventilation unit in HomeKit.
type Accessory struct {
	*accessory.A

	Fan         *fanService
	Filter      *filterService
	Temperature *service.TemperatureSensor
	Humidity    *service.HumiditySensor

	ccb          bridge.Controller
	filterPeriod int
	logger       *zap.SugaredLogger

	mu          sync.Mutex
	disconnects []func()
}

func newAccessory(info accessory.Info, node string, ccb bridge.Controller, filterPeriod int, logger *zap.SugaredLogger) *Accessory {
	a := &Accessory{
		ccb:          ccb,
		filterPeriod: filterPeriod,
		logger:       logger,
	}

	a.A = accessory.New(info, accessory.TypeFan)
	a.A.Id = accessoryID(node)

	a.Fan = newFanService()
	a.AddS(a.Fan.S)

	a.Filter = newFilterService()
	a.AddS(a.Filter.S)

	a.Temperature = service.NewTemperatureSensor()
	a.Temperature.CurrentTemperature.SetMinValue(-40)
	a.AddS(a.Temperature.S)

	a.Humidity = service.NewHumiditySensor()
	a.AddS(a.Humidity.S)

	a.Fan.Active.OnValueRemoteUpdate(func(active int) {
		a.command("active", func(ctx context.Context) error { return a.setActive(ctx, active) })
	})
	a.Fan.RotationSpeed.OnValueRemoteUpdate(func(speed float64) {
		a.command("rotation speed", func(ctx context.Context) error { return a.setRotationSpeed(ctx, speed) })
	})
	a.Fan.TargetState.OnValueRemoteUpdate(func(state int) {
		a.command("target state", func(ctx context.Context) error { return a.setTargetState(ctx, state) })
	})

	return a
}

// accessoryID derives a stable id from the bridge uuid. 1 is taken by the HomeKit bridge.
func accessoryID(node string) uint64 {
	b, err := hex.DecodeString(node)
	if err != nil || len(b) < 8 {
		return 2
	}
	id := binary.BigEndian.Uint64(b[len(b)-8:])
	if id <= 1 {
		id += 2
	}
	return id
}

func (a *Accessory) command(name string, f func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := f(ctx); err != nil {
		a.logger.Warnf("Setting %v failed: %v", name, err)
	}
}

func (a *Accessory) subscriptions() map[uint32]func(value any) {
	return map[uint32]func(value any){
		comfoconnect.SensorFanSpeedMode:        a.handleSpeedUpdate,
		comfoconnect.SensorOperatingMode:       a.handleModeUpdate,
		comfoconnect.SensorDaysToReplaceFilter: a.handleFilterUpdate,
		comfoconnect.SensorTemperatureExtract:  a.handleTemperatureUpdate,
		comfoconnect.SensorHumidityExtract:     a.handleHumidityUpdate,
	}
}

// attach connects the accessory to the unit's sensor signals and registers the sensors.
func (a *Accessory) attach(ctx context.Context, dispatcher *bridge.Dispatcher, node string) error {
	subs := a.subscriptions()

	a.mu.Lock()
	for id, handler := range subs {
		a.disconnects = append(a.disconnects, dispatcher.Connect(bridge.UpdateSignal(node, id), handler))
	}
	a.mu.Unlock()

	for id := range subs {
		if err := a.ccb.RegisterSensor(ctx, comfoconnect.Sensors[id]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Accessory) detach() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, disconnect := range a.disconnects {
		disconnect()
	}
	a.disconnects = nil
}

func (a *Accessory) handleSpeedUpdate(value any) {
	percentage := bridge.FanSpeedPercentage(value)

	a.Fan.RotationSpeed.SetValue(float64(percentage))
	if percentage > 0 {
		a.Fan.Active.SetValue(characteristic.ActiveActive)
		a.Fan.CurrentState.SetValue(characteristic.CurrentFanStateBlowingAir)
	} else {
		a.Fan.Active.SetValue(characteristic.ActiveInactive)
		a.Fan.CurrentState.SetValue(characteristic.CurrentFanStateIdle)
	}
}

func (a *Accessory) handleModeUpdate(value any) {
	if v, ok := value.(int64); ok && v == -1 {
		a.Fan.TargetState.SetValue(characteristic.TargetFanStateAuto)
	} else {
		a.Fan.TargetState.SetValue(characteristic.TargetFanStateManual)
	}
}

func (a *Accessory) handleFilterUpdate(value any) {
	days, ok := value.(int64)
	if !ok {
		return
	}

	level := 100.0
	if a.filterPeriod > 0 {
		level = float64(days) * 100 / float64(a.filterPeriod)
	}
	level = min(max(level, 0), 100)

	a.Filter.FilterLifeLevel.SetValue(level)
	if days <= 0 {
		a.Filter.FilterChangeIndication.SetValue(changeFilter)
	} else {
		a.Filter.FilterChangeIndication.SetValue(filterOK)
	}
}

func (a *Accessory) handleTemperatureUpdate(value any) {
	if v, ok := value.(float64); ok {
		a.Temperature.CurrentTemperature.SetValue(v)
	}
}

func (a *Accessory) handleHumidityUpdate(value any) {
	if v, ok := value.(int64); ok {
		a.Humidity.CurrentRelativeHumidity.SetValue(float64(v))
	}
}

// setActive switches between away and low speed.
func (a *Accessory) setActive(ctx context.Context, active int) error {
	if active == characteristic.ActiveInactive {
		return a.ccb.SetSpeed(ctx, comfoconnect.SpeedAway)
	}
	if a.Fan.RotationSpeed.Value() > 0 {
		return nil
	}
	return a.ccb.SetSpeed(ctx, comfoconnect.SpeedLow)
}

func (a *Accessory) setRotationSpeed(ctx context.Context, speed float64) error {
	return a.ccb.SetSpeed(ctx, bridge.PercentageToSpeed(int(speed)))
}

func (a *Accessory) setTargetState(ctx context.Context, state int) error {
	if state == characteristic.TargetFanStateAuto {
		return a.ccb.SetMode(ctx, comfoconnect.ModeAuto)
	}
	return a.ccb.SetMode(ctx, comfoconnect.ModeManual)
}
