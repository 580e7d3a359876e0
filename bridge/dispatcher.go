package bridge

import (
	"fmt"
	"sync"
)

// UpdateSignal is the dispatcher signal carrying values of one sensor of one bridge.
func UpdateSignal(bridgeID string, sensorID uint32) string {
	return fmt.Sprintf("comfoconnect_update_%v_%v", bridgeID, sensorID)
}

// Dispatcher fans signals out to the handlers connected to them. Handlers run synchronously on the
// sender's goroutine.
type Dispatcher struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[string]map[uint64]func(value any)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: map[string]map[uint64]func(value any){},
	}
}

// Connect adds a handler for signal and returns the function that removes it again.
func (d *Dispatcher) Connect(signal string, handler func(value any)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	id := d.next
	if d.handlers[signal] == nil {
		d.handlers[signal] = map[uint64]func(value any){}
	}
	d.handlers[signal][id] = handler

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		delete(d.handlers[signal], id)
		if len(d.handlers[signal]) == 0 {
			delete(d.handlers, signal)
		}
	}
}

func (d *Dispatcher) Send(signal string, value any) {
	d.mu.RLock()
	handlers := make([]func(value any), 0, len(d.handlers[signal]))
	for _, h := range d.handlers[signal] {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	for _, h := range handlers {
		h(value)
	}
}
