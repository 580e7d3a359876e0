package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
)

var presetModes = []string{
	string(comfoconnect.ModeAuto),
	string(comfoconnect.ModeManual),
}

// TurnOnDelay is how long an ON command waits for a speed or preset command sent along with it
// before falling back to low speed.
const TurnOnDelay = 500 * time.Millisecond

// Fan controls the ventilation speed and whether the unit follows its schedule. The speed is
// published as a step in 1..SpeedCount, 0 being away.
type Fan struct {
	entity

	ccb     Controller
	onDelay time.Duration

	mu         sync.Mutex
	percentage int
	presetMode string
	pendingOn  *time.Timer
}

func NewFan(ccb Controller, uniqueID string) *Fan {
	return &Fan{
		entity: entity{
			platform: homeassistant.PlatformFan,
			objectID: "fan",
			uniqueID: uniqueID,
			name:     "ComfoAir Q",
			icon:     "mdi:air-conditioner",
		},
		ccb:     ccb,
		onDelay: TurnOnDelay,
	}
}

func (f *Fan) Configuration() any {
	return homeassistant.FanConfiguration{
		EntityConfiguration:    f.baseConfiguration(),
		StateTopic:             f.topic("state"),
		CommandTopic:           f.topic("set"),
		PercentageStateTopic:   f.topic("percentage"),
		PercentageCommandTopic: f.topic("percentage/set"),
		PresetModeStateTopic:   f.topic("preset_mode"),
		PresetModeCommandTopic: f.topic("preset_mode/set"),
		PresetModes:            presetModes,
		SpeedRangeMin:          1,
		SpeedRangeMax:          SpeedCount,
	}
}

func (f *Fan) Commands() map[string]CommandFunc {
	return map[string]CommandFunc{
		"set": func(ctx context.Context, payload string) error {
			if strings.EqualFold(payload, homeassistant.PayloadOff) {
				f.cancelPendingOn()
				return f.TurnOff(ctx)
			}
			f.turnOnLater(ctx)
			return nil
		},
		"percentage/set": func(ctx context.Context, payload string) error {
			step, err := strconv.Atoi(strings.TrimSpace(payload))
			if err != nil {
				return fmt.Errorf("invalid speed %q: %w", payload, err)
			}
			f.cancelPendingOn()

			f.host.logger.Debugf("Changing fan speed step to %v", step)
			return f.ccb.SetSpeed(ctx, StepToSpeed(step))
		},
		"preset_mode/set": func(ctx context.Context, payload string) error {
			f.cancelPendingOn()
			return f.SetPresetMode(ctx, payload)
		},
	}
}

// turnOnLater sets low speed after onDelay unless the fan is running already or another command
// for it arrives first.
func (f *Fan) turnOnLater(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.percentage > 0 || f.pendingOn != nil {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(f.onDelay, func() {
		f.mu.Lock()
		if f.pendingOn != t {
			f.mu.Unlock()
			return
		}
		f.pendingOn = nil
		f.mu.Unlock()

		if err := f.TurnOn(ctx, nil, nil); err != nil {
			f.host.logger.Errorf("Turning on fan failed: %v", err)
		}
	})
	f.pendingOn = t
}

func (f *Fan) cancelPendingOn() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pendingOn != nil {
		f.pendingOn.Stop()
		f.pendingOn = nil
	}
}

func (f *Fan) AddedToHass(ctx context.Context) error {
	f.host.logger.Debug("Registering for fan speed")
	if err := f.subscribe(ctx, f.ccb, comfoconnect.Sensors[comfoconnect.SensorFanSpeedMode], f.handleSpeedUpdate); err != nil {
		return err
	}

	f.host.logger.Debug("Registering for operating mode")
	return f.subscribe(ctx, f.ccb, comfoconnect.Sensors[comfoconnect.SensorOperatingMode], f.handleModeUpdate)
}

func (f *Fan) RemovedFromHass() {
	f.cancelPendingOn()
	f.entity.RemovedFromHass()
}

func (f *Fan) handleSpeedUpdate(value any) {
	f.host.logger.Debugf("Handle update for fan speed (%v): %v", comfoconnect.SensorFanSpeedMode, value)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.percentage = FanSpeedPercentage(value)
	f.writeState("percentage", FanSpeedStep(value))
	f.writeState("state", f.percentage > 0)
}

func (f *Fan) handleModeUpdate(value any) {
	f.host.logger.Debugf("Handle update for operating mode (%v): %v", comfoconnect.SensorOperatingMode, value)

	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := value.(int64); ok && v == -1 {
		f.presetMode = string(comfoconnect.ModeAuto)
	} else {
		f.presetMode = string(comfoconnect.ModeManual)
	}
	f.writeState("preset_mode", f.presetMode)
}

func (f *Fan) IsOn() bool {
	return f.Percentage() > 0
}

func (f *Fan) Percentage() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.percentage
}

func (f *Fan) PresetMode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presetMode
}

// TurnOn sets a preset if given, otherwise the percentage or low speed.
func (f *Fan) TurnOn(ctx context.Context, percentage *int, presetMode *string) error {
	if presetMode != nil && *presetMode != "" {
		return f.SetPresetMode(ctx, *presetMode)
	}

	if percentage == nil {
		return f.SetPercentage(ctx, 1)
	}
	return f.SetPercentage(ctx, *percentage)
}

// TurnOff sets the unit to away.
func (f *Fan) TurnOff(ctx context.Context) error {
	return f.SetPercentage(ctx, 0)
}

func (f *Fan) SetPercentage(ctx context.Context, percentage int) error {
	f.host.logger.Debugf("Changing fan speed percentage to %v", percentage)

	return f.ccb.SetSpeed(ctx, PercentageToSpeed(percentage))
}

func (f *Fan) SetPresetMode(ctx context.Context, presetMode string) error {
	valid := false
	for _, m := range presetModes {
		if m == presetMode {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("invalid preset mode: %v", presetMode)
	}

	f.host.logger.Debugf("Changing preset mode to %v", presetMode)
	return f.ccb.SetMode(ctx, comfoconnect.VentilationMode(presetMode))
}
