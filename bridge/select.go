package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
)

type selectDescription struct {
	key     string
	name    string
	icon    string
	options []string

	get func(ctx context.Context, ccb Controller) (string, error)
	set func(ctx context.Context, ccb Controller, option string) error

	// Selects with a sensor follow its updates, the others are polled.
	sensor      *comfoconnect.Sensor
	sensorValue map[int64]string
}

func sensorRef(id uint32) *comfoconnect.Sensor {
	s := comfoconnect.Sensors[id]
	return &s
}

var selectDefinitions = [...]selectDescription{
	{
		key:     "select_mode",
		name:    "Ventilation Mode",
		icon:    "mdi:fan-auto",
		options: []string{string(comfoconnect.ModeAuto), string(comfoconnect.ModeManual)},
		get: func(ctx context.Context, ccb Controller) (string, error) {
			mode, err := ccb.GetMode(ctx)
			return string(mode), err
		},
		set: func(ctx context.Context, ccb Controller, option string) error {
			return ccb.SetMode(ctx, comfoconnect.VentilationMode(option))
		},
		sensor: sensorRef(comfoconnect.SensorOperatingMode),
		sensorValue: map[int64]string{
			-1: string(comfoconnect.ModeAuto),
			1:  string(comfoconnect.ModeManual),
		},
	},
	{
		key:  "bypass_mode",
		name: "Bypass Mode",
		icon: "mdi:camera-iris",
		options: []string{
			string(comfoconnect.SettingAuto),
			string(comfoconnect.SettingOn),
			string(comfoconnect.SettingOff),
		},
		get: func(ctx context.Context, ccb Controller) (string, error) {
			setting, err := ccb.GetBypass(ctx)
			return string(setting), err
		},
		set: func(ctx context.Context, ccb Controller, option string) error {
			return ccb.SetBypass(ctx, comfoconnect.VentilationSetting(option))
		},
		sensor: sensorRef(comfoconnect.SensorBypassActivationState),
		sensorValue: map[int64]string{
			0: string(comfoconnect.SettingAuto),
			1: string(comfoconnect.SettingOn),
			2: string(comfoconnect.SettingOff),
		},
	},
	{
		key:  "balance_mode",
		name: "Balance Mode",
		options: []string{
			string(comfoconnect.BalanceBalance),
			string(comfoconnect.BalanceSupplyOnly),
			string(comfoconnect.BalanceExhaustOnly),
		},
		get: func(ctx context.Context, ccb Controller) (string, error) {
			balance, err := ccb.GetBalanceMode(ctx)
			return string(balance), err
		},
		set: func(ctx context.Context, ccb Controller, option string) error {
			return ccb.SetBalanceMode(ctx, comfoconnect.VentilationBalance(option))
		},
	},
	{
		key:  "temperature_profile",
		name: "Temperature Profile",
		icon: "mdi:thermometer-auto",
		options: []string{
			string(comfoconnect.ProfileWarm),
			string(comfoconnect.ProfileNormal),
			string(comfoconnect.ProfileCool),
		},
		get: func(ctx context.Context, ccb Controller) (string, error) {
			profile, err := ccb.GetTemperatureProfile(ctx)
			return string(profile), err
		},
		set: func(ctx context.Context, ccb Controller, option string) error {
			return ccb.SetTemperatureProfile(ctx, comfoconnect.VentilationTemperatureProfile(option))
		},
		sensor: sensorRef(comfoconnect.SensorProfileTemperature),
		sensorValue: map[int64]string{
			0: string(comfoconnect.ProfileNormal),
			1: string(comfoconnect.ProfileCool),
			2: string(comfoconnect.ProfileWarm),
		},
	},
}

type Select struct {
	entity

	ccb         Controller
	description selectDescription

	mu            sync.Mutex
	currentOption *string
}

func newSelect(ccb Controller, uniqueID string, description selectDescription) *Select {
	return &Select{
		entity: entity{
			platform:       homeassistant.PlatformSelect,
			objectID:       description.key,
			uniqueID:       fmt.Sprintf("%v-%v", uniqueID, description.key),
			name:           description.name,
			icon:           description.icon,
			entityCategory: homeassistant.EntityCategoryConfig,
		},
		ccb:         ccb,
		description: description,
	}
}

func (s *Select) Configuration() any {
	return homeassistant.SelectConfiguration{
		EntityConfiguration: s.baseConfiguration(),
		StateTopic:          s.topic("state"),
		CommandTopic:        s.topic("set"),
		Options:             s.description.options,
	}
}

func (s *Select) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		"set": s.SelectOption,
	}
}

func (s *Select) ShouldPoll() bool {
	return s.description.sensor == nil
}

func (s *Select) AddedToHass(ctx context.Context) error {
	if s.description.sensor == nil {
		return nil
	}

	sensor := *s.description.sensor
	s.host.logger.Debugf("Registering for sensor %v (%v)", sensor.Name, sensor.ID)

	return s.subscribe(ctx, s.ccb, sensor, s.handleUpdate)
}

func (s *Select) handleUpdate(value any) {
	s.host.logger.Debugf("Handle update for sensor %v (%v): %v", s.description.sensor.Name, s.description.sensor.ID, value)

	var option any
	if v, ok := value.(int64); ok {
		if o, ok := s.description.sensorValue[v]; ok {
			option = o
		}
	}
	s.setCurrentOption(option)
}

func (s *Select) Update(ctx context.Context) error {
	option, err := s.description.get(ctx, s.ccb)
	if err != nil {
		return err
	}
	s.setCurrentOption(option)
	return nil
}

func (s *Select) SelectOption(ctx context.Context, option string) error {
	valid := false
	for _, o := range s.description.options {
		if o == option {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("invalid option %q for %v", option, s.description.name)
	}

	if err := s.description.set(ctx, s.ccb, option); err != nil {
		return err
	}
	s.setCurrentOption(option)
	return nil
}

func (s *Select) CurrentOption() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentOption
}

// setCurrentOption stores and publishes an option. nil means unknown.
func (s *Select) setCurrentOption(option any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := option.(string); ok {
		s.currentOption = &o
	} else {
		s.currentOption = nil
	}
	s.writeState("state", option)
}
