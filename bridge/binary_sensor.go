package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
)

type binarySensorDescription struct {
	key             uint32
	name            string
	entityCategory  string
	disabledDefault bool
}

var binarySensorDefinitions = [...]binarySensorDescription{
	{
		key:             comfoconnect.SensorSeasonHeatingActive,
		name:            "Heating Season Active",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
	},
	{
		key:             comfoconnect.SensorSeasonCoolingActive,
		name:            "Cooling Season Active",
		entityCategory:  homeassistant.EntityCategoryDiagnostic,
		disabledDefault: true,
	},
}

type BinarySensor struct {
	entity

	ccb         Controller
	description binarySensorDescription

	mu   sync.Mutex
	isOn *bool
}

func newBinarySensor(ccb Controller, uniqueID string, description binarySensorDescription) *BinarySensor {
	return &BinarySensor{
		entity: entity{
			platform:        homeassistant.PlatformBinarySensor,
			objectID:        fmt.Sprintf("binary_sensor_%v", description.key),
			uniqueID:        fmt.Sprintf("%v-%v", uniqueID, description.key),
			name:            description.name,
			entityCategory:  description.entityCategory,
			disabledDefault: description.disabledDefault,
		},
		ccb:         ccb,
		description: description,
	}
}

func (b *BinarySensor) Configuration() any {
	return homeassistant.BinarySensorConfiguration{
		EntityConfiguration: b.baseConfiguration(),
		StateTopic:          b.topic("state"),
	}
}

func (b *BinarySensor) AddedToHass(ctx context.Context) error {
	b.host.logger.Debugf("Registering for sensor %v (%v)", b.description.name, b.description.key)

	return b.subscribe(ctx, b.ccb, comfoconnect.Sensors[b.description.key], b.handleUpdate)
}

func (b *BinarySensor) handleUpdate(value any) {
	b.host.logger.Debugf("Handle update for sensor %v (%v): %v", b.description.name, b.description.key, value)

	on := truthy(value)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.isOn = &on
	b.writeState("state", on)
}

func (b *BinarySensor) IsOn() *bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isOn
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	}
	return true
}
