package homeassistant

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	// payloadNone resets an MQTT entity to unknown.
	payloadNone = "None"
)

type Client struct {
	transport       Transport
	discoveryPrefix string
	topicPrefix     string
}

func NewClient(transport Transport, discoveryPrefix string, topicPrefix string) *Client {
	return &Client{
		transport:       transport,
		discoveryPrefix: discoveryPrefix,
		topicPrefix:     topicPrefix,
	}
}

func (h *Client) ConfigTopic(platform Platform, node string, object string) string {
	return fmt.Sprintf("%v/%v/%v/%v/config", h.discoveryPrefix, platform, node, object)
}

// Topic returns the state or command topic of an entity, e.g. comfoconnect/<node>/fan/percentage.
func (h *Client) Topic(node string, object string, suffix string) string {
	return fmt.Sprintf("%v/%v/%v/%v", h.topicPrefix, node, object, suffix)
}

// StatusTopic is where the daemon announces itself. It doubles as the MQTT last will.
func StatusTopic(topicPrefix string) string {
	return topicPrefix + "/status"
}

func (h *Client) StatusTopic() string {
	return StatusTopic(h.topicPrefix)
}

func (h *Client) AvailabilityTopic(node string) string {
	return fmt.Sprintf("%v/%v/availability", h.topicPrefix, node)
}

func (h *Client) Register(platform Platform, node string, object string, configuration any) error {
	payload, err := json.Marshal(configuration)
	if err != nil {
		return fmt.Errorf("marshaling %v/%v config: %w", platform, object, err)
	}

	return h.transport.Publish(h.ConfigTopic(platform, node, object), true, payload)
}

// Unregister removes an entity by clearing its retained config.
func (h *Client) Unregister(platform Platform, node string, object string) error {
	return h.transport.Publish(h.ConfigTopic(platform, node, object), true, []byte{})
}

func (h *Client) PublishState(topic string, value any) error {
	return h.transport.Publish(topic, true, []byte(FormatState(value)))
}

func (h *Client) PublishStatus(online bool) error {
	return h.transport.Publish(h.StatusTopic(), true, []byte(availabilityPayload(online)))
}

func (h *Client) PublishAvailability(node string, online bool) error {
	return h.transport.Publish(h.AvailabilityTopic(node), true, []byte(availabilityPayload(online)))
}

func (h *Client) Subscribe(topic string, handler func(payload string)) error {
	return h.transport.Subscribe(topic, func(_ string, payload []byte) {
		handler(string(payload))
	})
}

func (h *Client) Unsubscribe(topics ...string) error {
	return h.transport.Unsubscribe(topics...)
}

// FormatState renders a value the way MQTT entities expect it.
func FormatState(value any) string {
	switch v := value.(type) {
	case nil:
		return payloadNone
	case string:
		return v
	case bool:
		if v {
			return PayloadOn
		}
		return PayloadOff
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		b, _ := json.Marshal(v)
		return string(b)
	}

	return fmt.Sprintf("%v", value)
}

func availabilityPayload(online bool) string {
	if online {
		return PayloadOnline
	}
	return PayloadOffline
}
