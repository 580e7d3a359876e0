package bridge

import (
	"sync"

	"github.com/victorjacobs/go-comfoconnect/homeassistant"
)

// ConnectionSensor reports whether the gateway connection is up. It belongs to the gateway device
// and stays available while the unit is not.
type ConnectionSensor struct {
	entity

	mu   sync.Mutex
	isOn *bool
}

func NewConnectionSensor(uniqueID string) *ConnectionSensor {
	return &ConnectionSensor{
		entity: entity{
			platform:        homeassistant.PlatformBinarySensor,
			objectID:        "connection",
			uniqueID:        uniqueID + "-connection",
			name:            "Connection",
			entityCategory:  homeassistant.EntityCategoryDiagnostic,
			onGateway:       true,
			alwaysAvailable: true,
		},
	}
}

func (c *ConnectionSensor) Configuration() any {
	return homeassistant.BinarySensorConfiguration{
		EntityConfiguration: c.baseConfiguration(),
		StateTopic:          c.topic("state"),
		DeviceClass:         "connectivity",
	}
}

func (c *ConnectionSensor) RemovedFromHass() {
	c.entity.RemovedFromHass()

	c.mu.Lock()
	c.isOn = nil
	c.mu.Unlock()
}

func (c *ConnectionSensor) SetValue(connected bool) {
	c.mu.Lock()
	c.isOn = &connected
	c.mu.Unlock()

	c.host.logger.Debugf("Connection sensor update: %v", connected)
	c.writeState("state", connected)
}

func (c *ConnectionSensor) IsOn() *bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOn
}
