package bridge

import (
	"context"
	"time"

	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
)

// deregisterTimeout bounds how long removing an entity waits on the gateway per sensor.
const deregisterTimeout = 2 * time.Second

// CommandFunc handles a payload received on one of an entity's command topics.
type CommandFunc func(ctx context.Context, payload string) error

// Entity is one Home Assistant entity published over MQTT discovery.
type Entity interface {
	Platform() homeassistant.Platform
	ObjectID() string
	UniqueID() string

	// Configuration returns the discovery payload. It is called after the entity was attached to
	// its Platform.
	Configuration() any

	// Commands maps topic suffixes to their handlers.
	Commands() map[string]CommandFunc

	AddedToHass(ctx context.Context) error
	RemovedFromHass()

	ShouldPoll() bool
	Update(ctx context.Context) error

	attach(p *Platform)
}

type entity struct {
	platform homeassistant.Platform
	objectID string
	uniqueID string

	name            string
	icon            string
	entityCategory  string
	disabledDefault bool
	onGateway       bool
	alwaysAvailable bool

	host     *Platform
	removers []func()
}

func (e *entity) Platform() homeassistant.Platform { return e.platform }
func (e *entity) ObjectID() string                 { return e.objectID }
func (e *entity) UniqueID() string                 { return e.uniqueID }

func (e *entity) Commands() map[string]CommandFunc  { return nil }
func (e *entity) AddedToHass(context.Context) error { return nil }
func (e *entity) ShouldPoll() bool                  { return false }
func (e *entity) Update(context.Context) error      { return nil }

func (e *entity) RemovedFromHass() {
	for _, remove := range e.removers {
		remove()
	}
	e.removers = nil
}

func (e *entity) attach(p *Platform) {
	e.host = p
}

func (e *entity) onRemove(f func()) {
	e.removers = append(e.removers, f)
}

func (e *entity) topic(suffix string) string {
	return e.host.topic(e.objectID, suffix)
}

func (e *entity) writeState(suffix string, value any) {
	if e.host != nil {
		e.host.writeState(e.objectID, suffix, value)
	}
}

// connect subscribes handler to updates of a sensor of this entity's bridge.
func (e *entity) connect(sensorID uint32, handler func(value any)) {
	e.onRemove(e.host.dispatcher.Connect(UpdateSignal(e.host.node, sensorID), handler))
}

// subscribe connects handler to a sensor and registers the sensor with the unit. Removing the
// entity undoes both.
func (e *entity) subscribe(ctx context.Context, ccb Controller, sensor comfoconnect.Sensor, handler func(value any)) error {
	e.connect(sensor.ID, handler)
	e.onRemove(func() {
		ctx, cancel := context.WithTimeout(context.Background(), deregisterTimeout)
		defer cancel()
		if err := ccb.DeregisterSensor(ctx, sensor); err != nil {
			e.host.logger.Debugf("Deregistering sensor %v (%v) failed: %v", sensor.Name, sensor.ID, err)
		}
	})
	return ccb.RegisterSensor(ctx, sensor)
}

func (e *entity) baseConfiguration() homeassistant.EntityConfiguration {
	c := homeassistant.EntityConfiguration{
		UniqueId:       e.uniqueID,
		Name:           e.name,
		ObjectId:       e.host.node + "_" + e.objectID,
		Icon:           e.icon,
		EntityCategory: e.entityCategory,
		Availability:   []homeassistant.Availability{{Topic: e.host.client.StatusTopic()}},
	}

	if e.disabledDefault {
		enabled := false
		c.EnabledByDefault = &enabled
	}

	if e.onGateway {
		device := e.host.gateway
		c.Device = &device
	} else {
		device := e.host.unit
		c.Device = &device
	}

	// Entities of the unit go unavailable with the gateway connection, the ones describing the
	// connection itself do not.
	if !e.alwaysAvailable {
		c.Availability = append(c.Availability, homeassistant.Availability{Topic: e.host.client.AvailabilityTopic(e.host.node)})
		c.AvailabilityMode = "all"
	}

	return c
}
