package homeassistant

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

var ErrNotConnected = errors.New("mqtt not connected")

type MessageHandler func(topic string, payload []byte)

// Transport is the part of an MQTT client the discovery client needs.
type Transport interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MqttTransport is a Transport on top of paho. Subscriptions are remembered so Resubscribe can
// restore them after the broker connection was re-established.
type MqttTransport struct {
	client mqtt.Client
	logger *zap.SugaredLogger

	mu            sync.Mutex
	subscriptions map[string]MessageHandler
}

func NewTransport(client mqtt.Client, logger *zap.SugaredLogger) *MqttTransport {
	return &MqttTransport{
		client:        client,
		logger:        logger,
		subscriptions: map[string]MessageHandler{},
	}
}

func (t *MqttTransport) Publish(topic string, retained bool, payload []byte) error {
	if !t.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := t.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %v: timeout after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %v: %w", topic, err)
	}

	return nil
}

func (t *MqttTransport) Subscribe(topic string, handler MessageHandler) error {
	t.mu.Lock()
	t.subscriptions[topic] = handler
	t.mu.Unlock()

	// Not being connected is fine, Resubscribe picks it up.
	if !t.client.IsConnectionOpen() {
		return nil
	}

	return t.subscribe(t.client, topic, handler)
}

func (t *MqttTransport) Unsubscribe(topics ...string) error {
	t.mu.Lock()
	for _, topic := range topics {
		delete(t.subscriptions, topic)
	}
	t.mu.Unlock()

	if !t.client.IsConnectionOpen() || len(topics) == 0 {
		return nil
	}

	token := t.client.Unsubscribe(topics...)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("unsubscribing: timeout after %v", publishTimeout)
	}
	return token.Error()
}

// Resubscribe restores every subscription. Use it as the paho OnConnect handler.
func (t *MqttTransport) Resubscribe(client mqtt.Client) {
	t.mu.Lock()
	subscriptions := make(map[string]MessageHandler, len(t.subscriptions))
	for topic, handler := range t.subscriptions {
		subscriptions[topic] = handler
	}
	t.mu.Unlock()

	for topic, handler := range subscriptions {
		if err := t.subscribe(client, topic, handler); err != nil {
			t.logger.Warnf("Restoring subscription failed: %v", err)
		}
	}

	if len(subscriptions) > 0 {
		t.logger.Infof("Restored %d MQTT subscriptions", len(subscriptions))
	}
}

func (t *MqttTransport) subscribe(client mqtt.Client, topic string, handler MessageHandler) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		defer func() {
			if v := recover(); v != nil {
				t.logger.Errorf("Panic in handler for %v: %v", msg.Topic(), v)
			}
		}()

		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribing to %v: timeout after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribing to %v: %w", topic, err)
	}

	return nil
}
