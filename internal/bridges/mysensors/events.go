package mysensors

import (
	"sync"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// EventKind identifies one event channel of the bus.
type EventKind string

// Event kinds.
const (
	EventMessageReceived EventKind = "message.received"
	EventMessageSent     EventKind = "message.sent"
	EventNodeCreated     EventKind = "node.created"
	EventNodeUpdated     EventKind = "node.updated"
	EventNodeLastSeen    EventKind = "node.last_seen"
	EventNodeBattery     EventKind = "node.battery"
	EventNodeDeleted     EventKind = "node.deleted"
	EventSensorCreated   EventKind = "sensor.created"
	EventSensorUpdated   EventKind = "sensor.updated"
	EventRegistryCleared EventKind = "registry.cleared"
	EventConnected       EventKind = "gateway.connected"
	EventDisconnected    EventKind = "gateway.disconnected"
	EventTxRxTrace       EventKind = "trace.txrx"
	EventStateTrace      EventKind = "trace.state"
)

// Event is one notification. Only the fields relevant to Kind are set.
// Node, Sensor and Message are copies owned by the receiver. Data is the
// value that changed for sensor events caused by a SET.
type Event struct {
	Kind    EventKind        `json:"kind"`
	Time    time.Time        `json:"time"`
	Message *Message         `json:"message,omitempty"`
	Node    *node.Node       `json:"node,omitempty"`
	Sensor  *node.Sensor     `json:"sensor,omitempty"`
	Data    *node.SensorData `json:"data,omitempty"`
	NodeID  int              `json:"node_id,omitempty"`
	Text    string           `json:"text,omitempty"`
}

// Handler receives events. It runs on the publishing goroutine and must not
// block for long.
type Handler func(Event)

type subscription struct {
	id   uint64
	kind EventKind // empty means every kind
	fn   Handler
}

// EventBus is a synchronous in-process multicast. Handlers are called in
// registration order, across kinds as well as within one kind.
//
// Thread Safety: All methods are safe for concurrent use. Handlers may
// subscribe or unsubscribe from inside a callback; the change applies to the
// next Publish.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// SetLogger sets the logger used to report handler panics.
func (b *EventBus) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	defer b.loggerMu.Unlock()
	b.logger = logger
}

// Subscribe registers fn for one kind and returns a function that removes it.
func (b *EventBus) Subscribe(kind EventKind, fn Handler) func() {
	return b.add(kind, fn)
}

// SubscribeAll registers fn for every kind.
func (b *EventBus) SubscribeAll(fn Handler) func() {
	return b.add("", fn)
}

func (b *EventBus) add(kind EventKind, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *EventBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			// Copy so a Publish iterating the old slice is unaffected.
			subs := make([]subscription, 0, len(b.subs)-1)
			subs = append(subs, b.subs[:i]...)
			b.subs = append(subs, b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every matching handler before returning.
// A zero Time is set to now. A panicking handler is logged and skipped.
func (b *EventBus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if s.kind != "" && s.kind != ev.Kind {
			continue
		}
		b.call(s.fn, ev)
	}
}

// HandlerCount returns how many handlers would receive an event of kind.
func (b *EventBus) HandlerCount(kind EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, s := range b.subs {
		if s.kind == "" || s.kind == kind {
			n++
		}
	}
	return n
}

func (b *EventBus) call(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.loggerMu.RLock()
			logger := b.logger
			b.loggerMu.RUnlock()
			if logger != nil {
				logger.Error("event handler panicked", "kind", string(ev.Kind), "panic", r)
			}
		}
	}()
	fn(ev)
}
