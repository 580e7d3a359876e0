package config

import (
	"fmt"
	"net/url"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/victorjacobs/go-comfoconnect/flow"
	"github.com/victorjacobs/go-comfoconnect/history"
	"github.com/victorjacobs/go-comfoconnect/homeassistant"
	"github.com/victorjacobs/go-comfoconnect/homekit"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultTopicPrefix     = "comfoconnect"
)

type Configuration struct {
	Mqtt         Mqtt           `yaml:"mqtt"`
	Http         Http           `yaml:"http"`
	Database     Database       `yaml:"database"`
	ComfoConnect ComfoConnect   `yaml:"comfoconnect"`
	InfluxDB     history.Config `yaml:"influxdb"`
	HomeKit      homekit.Config `yaml:"homekit"`
	Debug        bool           `yaml:"debug"`
}

type Mqtt struct {
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	TopicPrefix     string `yaml:"topic_prefix"`
}

type Http struct {
	Listen string `yaml:"listen"`
}

type Database struct {
	Path string `yaml:"path"`
}

type ComfoConnect struct {
	// Import is an optional bridge set up on start, the way a YAML configured bridge is imported.
	Import       *flow.ImportConfig `yaml:"import"`
	AppName      string             `yaml:"app_name"`
	LocationName string             `yaml:"location_name"`
}

func Default() *Configuration {
	return &Configuration{
		Mqtt: Mqtt{
			Broker:          "tcp://localhost:1883",
			ClientID:        "comfoconnect",
			DiscoveryPrefix: DefaultDiscoveryPrefix,
			TopicPrefix:     DefaultTopicPrefix,
		},
		Http: Http{
			Listen: ":8080",
		},
		Database: Database{
			Path: "comfoconnect.db",
		},
		ComfoConnect: ComfoConnect{
			AppName:      flow.DefaultAppName,
			LocationName: "Home",
		},
		HomeKit: homekit.Config{
			Dir:          "homekit",
			FilterPeriod: homekit.DefaultFilterPeriod,
		},
	}
}

// LoadConfiguration reads filename on top of the defaults. A missing file leaves the defaults.
func LoadConfiguration(filename string) (*Configuration, error) {
	configuration := Default()

	data, err := os.ReadFile(filename)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, configuration); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	applyEnvOverrides(configuration)

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	return configuration, nil
}

func applyEnvOverrides(c *Configuration) {
	for name, field := range map[string]*string{
		"COMFOCONNECT_MQTT_BROKER":           &c.Mqtt.Broker,
		"COMFOCONNECT_MQTT_USERNAME":         &c.Mqtt.Username,
		"COMFOCONNECT_MQTT_PASSWORD":         &c.Mqtt.Password,
		"COMFOCONNECT_MQTT_CLIENT_ID":        &c.Mqtt.ClientID,
		"COMFOCONNECT_MQTT_DISCOVERY_PREFIX": &c.Mqtt.DiscoveryPrefix,
		"COMFOCONNECT_MQTT_TOPIC_PREFIX":     &c.Mqtt.TopicPrefix,
		"COMFOCONNECT_INFLUXDB_TOKEN":        &c.InfluxDB.Token,
	} {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
}

var brokerSchemes = map[string]bool{
	"tcp": true, "ssl": true, "tls": true, "mqtt": true, "mqtts": true, "ws": true, "wss": true,
}

func (c *Configuration) Validate() error {
	if c.Mqtt.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if u, err := url.Parse(c.Mqtt.Broker); err != nil || !brokerSchemes[u.Scheme] {
		return fmt.Errorf("mqtt.broker %q is not a broker url like tcp://host:1883", c.Mqtt.Broker)
	}
	if c.Mqtt.DiscoveryPrefix == "" || c.Mqtt.TopicPrefix == "" {
		return fmt.Errorf("mqtt.discovery_prefix and mqtt.topic_prefix must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if i := c.ComfoConnect.Import; i != nil && i.Host == "" {
		return fmt.Errorf("comfoconnect.import.host is required")
	}
	return nil
}

// ClientOptions builds the broker connection. The daemon status topic is the last will, so Home Assistant
// sees every entity go unavailable when the daemon dies.
func (m *Mqtt) ClientOptions(statusTopic string, logger *zap.SugaredLogger) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(m.Broker).
		SetClientID(m.ClientID).
		SetUsername(m.Username).
		SetPassword(m.Password).
		SetAutoReconnect(true).
		SetWill(statusTopic, homeassistant.PayloadOffline, 1, true).
		SetConnectionLostHandler(func(client mqtt.Client, err error) {
			logger.Warnf("MQTT connection lost: %v", err)
		}).
		SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
			logger.Info("MQTT reconnecting")
		})
}
