package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/victorjacobs/go-comfoconnect/homeassistant"
	"go.uber.org/zap"
)

// PollInterval is how often entities without push updates are refreshed.
const PollInterval = 30 * time.Second

// Platform hosts the entities of one bridge: it publishes their discovery configs, routes commands
// to them, polls the ones that need it and keeps the last published states.
type Platform struct {
	client     *homeassistant.Client
	dispatcher *Dispatcher
	logger     *zap.SugaredLogger

	node    string
	unit    homeassistant.Device
	gateway homeassistant.Device

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	entities []Entity
	states   map[string]map[string]string
}

func NewPlatform(client *homeassistant.Client, dispatcher *Dispatcher, node string, unit homeassistant.Device, gateway homeassistant.Device, logger *zap.SugaredLogger) *Platform {
	ctx, cancel := context.WithCancel(context.Background())

	return &Platform{
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
		node:       node,
		unit:       unit,
		gateway:    gateway,
		ctx:        ctx,
		cancel:     cancel,
		states:     map[string]map[string]string{},
	}
}

func (p *Platform) Node() string {
	return p.node
}

// Add publishes the entities, subscribes their command topics and runs a first update.
func (p *Platform) Add(ctx context.Context, entities ...Entity) error {
	for _, e := range entities {
		e.attach(p)

		if err := p.client.Register(e.Platform(), p.node, e.ObjectID(), e.Configuration()); err != nil {
			return fmt.Errorf("registering %v %v: %w", e.Platform(), e.ObjectID(), err)
		}

		for suffix, command := range e.Commands() {
			command := command
			topic := p.topic(e.ObjectID(), suffix)
			if err := p.client.Subscribe(topic, func(payload string) {
				p.logger.Debugf("Command on %v: %v", topic, payload)
				if err := command(p.ctx, payload); err != nil {
					p.logger.Errorf("Command on %v failed: %v", topic, err)
				}
			}); err != nil {
				return fmt.Errorf("subscribing to %v: %w", topic, err)
			}
		}

		p.mu.Lock()
		p.entities = append(p.entities, e)
		p.mu.Unlock()

		if err := e.AddedToHass(ctx); err != nil {
			return fmt.Errorf("adding %v %v: %w", e.Platform(), e.ObjectID(), err)
		}

		if err := e.Update(ctx); err != nil {
			p.logger.Warnf("Initial update of %v %v failed: %v", e.Platform(), e.ObjectID(), err)
		}

		p.logger.Debugf("Added %v %v", e.Platform(), e.ObjectID())
	}

	return nil
}

// Run polls entities until ctx is done or the platform is removed.
func (p *Platform) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll updates every entity that asks to be polled once.
func (p *Platform) Poll(ctx context.Context) {
	for _, e := range p.Entities() {
		if !e.ShouldPoll() {
			continue
		}
		if err := e.Update(ctx); err != nil {
			p.logger.Warnf("Updating %v %v failed: %v", e.Platform(), e.ObjectID(), err)
		}
	}
}

// Remove detaches every entity. With purge their discovery configs are deleted as well, which
// removes them from Home Assistant.
func (p *Platform) Remove(purge bool) error {
	p.cancel()

	p.mu.Lock()
	entities := p.entities
	p.entities = nil
	p.mu.Unlock()

	var firstErr error
	for _, e := range entities {
		e.RemovedFromHass()

		topics := make([]string, 0, len(e.Commands()))
		for suffix := range e.Commands() {
			topics = append(topics, p.topic(e.ObjectID(), suffix))
		}
		if err := p.client.Unsubscribe(topics...); err != nil && firstErr == nil {
			firstErr = err
		}

		if purge {
			if err := p.client.Unregister(e.Platform(), p.node, e.ObjectID()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := p.client.PublishAvailability(p.node, false); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// SetAvailable marks the entities of the unit (un)available.
func (p *Platform) SetAvailable(available bool) error {
	return p.client.PublishAvailability(p.node, available)
}

func (p *Platform) Entities() []Entity {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Entity(nil), p.entities...)
}

// States returns the last payload published per entity and topic suffix.
func (p *Platform) States() map[string]map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make(map[string]map[string]string, len(p.states))
	for object, values := range p.states {
		states[object] = make(map[string]string, len(values))
		for suffix, v := range values {
			states[object][suffix] = v
		}
	}
	return states
}

func (p *Platform) topic(object string, suffix string) string {
	return p.client.Topic(p.node, object, suffix)
}

func (p *Platform) writeState(object string, suffix string, value any) {
	payload := homeassistant.FormatState(value)

	p.mu.Lock()
	if p.states[object] == nil {
		p.states[object] = map[string]string{}
	}
	p.states[object][suffix] = payload
	p.mu.Unlock()

	if err := p.client.PublishState(p.topic(object, suffix), payload); err != nil {
		p.logger.Warnf("Publishing %v/%v failed: %v", object, suffix, err)
	}
}
