package bridge

// Entities returns every entity of a ventilation unit except the connection sensor, in platform
// order: fan, sensors, binary sensors, selects, buttons.
func Entities(ccb Controller, bridgeID string, uniqueID string) []Entity {
	entities := []Entity{NewFan(ccb, uniqueID)}

	for _, d := range sensorDefinitions {
		entities = append(entities, newSensor(ccb, bridgeID, d))
	}
	for _, d := range binarySensorDefinitions {
		entities = append(entities, newBinarySensor(ccb, uniqueID, d))
	}
	for _, d := range selectDefinitions {
		entities = append(entities, newSelect(ccb, uniqueID, d))
	}
	for _, d := range buttonDefinitions {
		entities = append(entities, newButton(ccb, bridgeID, d))
	}

	return entities
}
