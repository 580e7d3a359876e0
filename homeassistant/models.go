package homeassistant

type Platform string

const (
	PlatformFan          Platform = "fan"
	PlatformSensor       Platform = "sensor"
	PlatformBinarySensor Platform = "binary_sensor"
	PlatformSelect       Platform = "select"
	PlatformButton       Platform = "button"
)

const (
	EntityCategoryConfig     = "config"
	EntityCategoryDiagnostic = "diagnostic"
)

type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SwVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type Availability struct {
	Topic string `json:"topic"`
}

// EntityConfiguration holds the fields every discovery payload shares.
type EntityConfiguration struct {
	UniqueId         string         `json:"unique_id"`
	Name             string         `json:"name"`
	ObjectId         string         `json:"object_id,omitempty"`
	Icon             string         `json:"icon,omitempty"`
	EntityCategory   string         `json:"entity_category,omitempty"`
	EnabledByDefault *bool          `json:"enabled_by_default,omitempty"`
	Device           *Device        `json:"device,omitempty"`
	Availability     []Availability `json:"availability,omitempty"`
	AvailabilityMode string         `json:"availability_mode,omitempty"`
}

type FanConfiguration struct {
	EntityConfiguration
	StateTopic             string   `json:"state_topic"`
	CommandTopic           string   `json:"command_topic"`
	PercentageStateTopic   string   `json:"percentage_state_topic"`
	PercentageCommandTopic string   `json:"percentage_command_topic"`
	PresetModeStateTopic   string   `json:"preset_mode_state_topic"`
	PresetModeCommandTopic string   `json:"preset_mode_command_topic"`
	PresetModes            []string `json:"preset_modes"`
	SpeedRangeMin          int      `json:"speed_range_min,omitempty"`
	SpeedRangeMax          int      `json:"speed_range_max,omitempty"`
}

type SensorConfiguration struct {
	EntityConfiguration
	StateTopic        string `json:"state_topic"`
	DeviceClass       string `json:"device_class,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
}

type BinarySensorConfiguration struct {
	EntityConfiguration
	StateTopic  string `json:"state_topic"`
	DeviceClass string `json:"device_class,omitempty"`
}

type SelectConfiguration struct {
	EntityConfiguration
	StateTopic   string   `json:"state_topic"`
	CommandTopic string   `json:"command_topic"`
	Options      []string `json:"options"`
}

type ButtonConfiguration struct {
	EntityConfiguration
	CommandTopic string `json:"command_topic"`
	PayloadPress string `json:"payload_press,omitempty"`
}
