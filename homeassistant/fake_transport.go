package homeassistant

import (
	"strings"
	"sync"
)

type Message struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// FakeTransport records publishes in memory and lets tests deliver messages to subscribers.
type FakeTransport struct {
	mu            sync.Mutex
	published     []Message
	subscriptions map[string]MessageHandler
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{subscriptions: map[string]MessageHandler{}}
}

func (f *FakeTransport) Publish(topic string, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.published = append(f.published, Message{Topic: topic, Retained: retained, Payload: append([]byte(nil), payload...)})
	return nil
}

func (f *FakeTransport) Subscribe(topic string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscriptions[topic] = handler
	return nil
}

func (f *FakeTransport) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, topic := range topics {
		delete(f.subscriptions, topic)
	}
	return nil
}

// Deliver calls the handler subscribed to topic, if any.
func (f *FakeTransport) Deliver(topic string, payload string) bool {
	f.mu.Lock()
	handler, ok := f.subscriptions[topic]
	f.mu.Unlock()

	if ok {
		handler(topic, []byte(payload))
	}
	return ok
}

// Last returns the most recent message published to topic.
func (f *FakeTransport) Last(topic string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].Topic == topic {
			return f.published[i], true
		}
	}
	return Message{}, false
}

// LastPayload is Last as a string, empty when nothing was published.
func (f *FakeTransport) LastPayload(topic string) string {
	msg, _ := f.Last(topic)
	return string(msg.Payload)
}

// Published returns every message whose topic starts with prefix.
func (f *FakeTransport) Published(prefix string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Message
	for _, m := range f.published {
		if strings.HasPrefix(m.Topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func (f *FakeTransport) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	topics := make([]string, 0, len(f.subscriptions))
	for topic := range f.subscriptions {
		topics = append(topics, topic)
	}
	return topics
}
