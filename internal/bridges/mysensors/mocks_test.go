package mysensors

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/mqtt"
)

// MockTransport implements Transport for testing.
type MockTransport struct {
	mu           sync.Mutex
	connected    bool
	sent         []string
	sentAt       []time.Time
	sendError    error
	onLine       func(string)
	onDisconnect func()
}

func NewMockTransport() *MockTransport {
	return &MockTransport{connected: true}
}

func (m *MockTransport) Send(_ context.Context, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if m.sendError != nil {
		return m.sendError
	}
	m.sent = append(m.sent, line)
	m.sentAt = append(m.sentAt, time.Now())
	return nil
}

func (m *MockTransport) SetOnLine(fn func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLine = fn
}

func (m *MockTransport) SetOnDisconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = fn
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// SimulateLine delivers a line as the read loop would.
func (m *MockTransport) SimulateLine(line string) {
	m.mu.Lock()
	fn := m.onLine
	m.mu.Unlock()
	if fn != nil {
		fn(line)
	}
}

// SimulateDrop marks the link down and fires the disconnect callback.
func (m *MockTransport) SimulateDrop() {
	m.mu.Lock()
	m.connected = false
	fn := m.onDisconnect
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *MockTransport) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendError = err
}

func (m *MockTransport) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *MockTransport) SentTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.sentAt...)
}

func (m *MockTransport) ClearSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.sentAt = nil
}

func (m *MockTransport) hasCallbacks() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onLine != nil || m.onDisconnect != nil
}

// MockMQTTClient implements MQTTClient and HealthPublisher for testing.
type MockMQTTClient struct {
	mu        sync.Mutex
	published []mockPublish
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return errors.New("mock: not connected")
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// PublishedTo returns publishes whose topic starts with prefix.
func (m *MockMQTTClient) PublishedTo(prefix string) []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers payload to the handler subscribed with pattern.
func (m *MockMQTTClient) SimulateMessage(pattern, topic string, payload []byte) error {
	m.mu.Lock()
	handler, ok := m.handlers[pattern]
	m.mu.Unlock()
	if !ok {
		return errors.New("mock: no subscription for " + pattern)
	}
	return handler(topic, payload)
}

// eventRecorder collects events from a bus.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(bus *EventBus) *eventRecorder {
	r := &eventRecorder{}
	bus.SubscribeAll(func(ev Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// kinds returns the recorded kinds, leaving out trace events.
func (r *eventRecorder) kinds() []EventKind {
	var out []EventKind
	for _, ev := range r.all() {
		if ev.Kind == EventTxRxTrace || ev.Kind == EventStateTrace {
			continue
		}
		out = append(out, ev.Kind)
	}
	return out
}

func (r *eventRecorder) ofKind(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// newTestGateway returns a connected gateway on a mock transport.
func newTestGateway(t *testing.T, opts Options) (*Gateway, *MockTransport) {
	t.Helper()

	gw := New(opts)
	tr := NewMockTransport()
	if err := gw.Connect(tr); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(gw.Close)
	return gw, tr
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
