package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
	"golang.org/x/time/rate"
)

// MinTimeBetweenUpdates is the minimum time between two updates of a throttled sensor.
const MinTimeBetweenUpdates = 10 * time.Second

type Sensor struct {
	entity

	ccb         Controller
	description sensorDescription
	sensor      comfoconnect.Sensor

	limiter *rate.Limiter
	now     func() time.Time

	mu    sync.Mutex
	value any
}

func newSensor(ccb Controller, bridgeID string, description sensorDescription) *Sensor {
	s := &Sensor{
		entity: entity{
			platform:        homeassistant.PlatformSensor,
			objectID:        fmt.Sprintf("sensor_%v", description.key),
			uniqueID:        fmt.Sprintf("%v-%v", bridgeID, description.key),
			name:            description.name,
			icon:            description.icon,
			entityCategory:  description.entityCategory,
			disabledDefault: description.disabledDefault,
		},
		ccb:         ccb,
		description: description,
		sensor:      comfoconnect.Sensors[description.key],
		now:         time.Now,
	}

	if description.throttle {
		s.limiter = rate.NewLimiter(rate.Every(MinTimeBetweenUpdates), 1)
	}

	return s
}

func (s *Sensor) Configuration() any {
	return homeassistant.SensorConfiguration{
		EntityConfiguration: s.baseConfiguration(),
		StateTopic:          s.topic("state"),
		DeviceClass:         s.description.deviceClass,
		StateClass:          s.description.stateClass,
		UnitOfMeasurement:   s.description.unit,
	}
}

func (s *Sensor) AddedToHass(ctx context.Context) error {
	s.host.logger.Debugf("Registering for sensor %v (%v)", s.description.name, s.description.key)

	return s.subscribe(ctx, s.ccb, s.sensor, s.handleUpdate)
}

func (s *Sensor) handleUpdate(value any) {
	if s.limiter != nil && !s.limiter.AllowN(s.now(), 1) {
		return
	}

	s.host.logger.Debugf("Handle update for sensor %v (%v): %v", s.description.name, s.description.key, value)

	if s.description.mapping != nil {
		value = s.description.mapping(value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	s.writeState("state", value)
}

func (s *Sensor) Value() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}
