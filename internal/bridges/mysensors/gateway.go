package mysensors

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// Gateway operation constants.
const (
	// MinRebootInterval is the smallest pause between two reboot requests.
	MinRebootInterval = 10 * time.Millisecond

	// replyTimeout bounds replies the gateway sends on its own behalf.
	replyTimeout = 5 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a gateway.
type Options struct {
	// Registry is the node registry. A new empty one is created if nil.
	Registry *node.Registry

	// Bus receives gateway events. A new one is created if nil.
	Bus *EventBus

	// Metrics is optional.
	Metrics *Metrics

	// Logger is optional structured logger.
	Logger Logger

	// AutoAssignID answers ID requests from nodes without an id.
	AutoAssignID bool

	// TimeResponse answers time requests with the controller clock.
	TimeResponse bool

	// StoreMessages keeps a log of recent traffic, MessageLogSize entries long.
	StoreMessages  bool
	MessageLogSize int

	// RebootInterval paces RebootAllNodes. Values below MinRebootInterval
	// are raised to it.
	RebootInterval time.Duration
}

// Info is a summary of the gateway state.
type Info struct {
	Connected bool `json:"connected"`
	Nodes     int  `json:"nodes"`
	Sensors   int  `json:"sensors"`
}

// Stats holds operational statistics.
type Stats struct {
	MessagesRx   uint64    `json:"messages_rx"`
	MessagesTx   uint64    `json:"messages_tx"`
	InvalidRx    uint64    `json:"invalid_rx"`
	SendErrors   uint64    `json:"send_errors"`
	LastActivity time.Time `json:"last_activity"`
	Connected    bool      `json:"connected"`
}

// Gateway reconciles traffic from a MySensors network into a node registry
// and sends commands back to the network.
//
// Incoming messages are processed one at a time. Each message's registry
// changes are committed before any of its events are published, so
// handlers see the state after the message.
//
// Thread Safety: All methods are safe for concurrent use. Event handlers may
// call any method except Close.
type Gateway struct {
	registry *node.Registry
	bus      *EventBus
	metrics  *Metrics
	messages *MessageLog

	autoAssignID   atomic.Bool
	timeResponse   atomic.Bool
	storeMessages  atomic.Bool
	rebootInterval time.Duration

	// procMu serialises message processing with every registry write made
	// through the gateway.
	procMu sync.Mutex

	connMu    sync.Mutex
	transport Transport
	connected bool

	rebootMu     sync.Mutex
	rebootCancel context.CancelFunc

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex

	messagesRx   atomic.Uint64
	messagesTx   atomic.Uint64
	invalidRx    atomic.Uint64
	sendErrors   atomic.Uint64
	lastActivity atomic.Int64
}

// New creates a disconnected gateway. Call Connect to attach a transport.
func New(opts Options) *Gateway {
	ctx, ctxCancel := context.WithCancel(context.Background())

	g := &Gateway{
		registry:       opts.Registry,
		bus:            opts.Bus,
		metrics:        opts.Metrics,
		messages:       NewMessageLog(opts.MessageLogSize),
		rebootInterval: max(opts.RebootInterval, MinRebootInterval),
		ctx:            ctx,
		ctxCancel:      ctxCancel,
		logger:         opts.Logger,
	}
	if g.registry == nil {
		g.registry = node.NewRegistry()
	}
	if g.bus == nil {
		g.bus = NewEventBus()
	}
	if opts.Logger != nil {
		g.registry.SetLogger(opts.Logger)
		g.bus.SetLogger(opts.Logger)
	}

	g.autoAssignID.Store(opts.AutoAssignID)
	g.timeResponse.Store(opts.TimeResponse)
	g.storeMessages.Store(opts.StoreMessages)

	g.metrics.setRegistrySize(g.registry.Count())
	return g
}

// Close cancels a running reboot broadcast, waits for background work and
// disconnects. It does not close the transport. Safe to call multiple times.
func (g *Gateway) Close() {
	g.stopOnce.Do(func() {
		g.ctxCancel()
		g.wg.Wait()
		g.Disconnect()
		g.logInfo("gateway closed")
	})
}

// Events returns the event bus.
func (g *Gateway) Events() *EventBus {
	return g.bus
}

// SetLogger sets the logger for the gateway.
func (g *Gateway) SetLogger(logger Logger) {
	g.loggerMu.Lock()
	g.logger = logger
	g.loggerMu.Unlock()
}

// SetAutoAssignID enables or disables answering ID requests.
func (g *Gateway) SetAutoAssignID(enabled bool) {
	g.autoAssignID.Store(enabled)
}

// AutoAssignID reports whether ID requests are answered.
func (g *Gateway) AutoAssignID() bool {
	return g.autoAssignID.Load()
}

// SetStoreMessages enables or disables the message log.
func (g *Gateway) SetStoreMessages(enabled bool) {
	g.storeMessages.Store(enabled)
}

// StoreMessages reports whether the message log is recording.
func (g *Gateway) StoreMessages() bool {
	return g.storeMessages.Load()
}

// Node returns a copy of the node.
func (g *Gateway) Node(id int) (*node.Node, error) {
	return g.registry.GetNode(id)
}

// Nodes returns copies of all nodes ordered by id.
func (g *Gateway) Nodes() []*node.Node {
	return g.registry.Nodes()
}

// Sensor returns a copy of the sensor.
func (g *Gateway) Sensor(nodeID, sensorID int) (*node.Sensor, error) {
	return g.registry.GetSensor(nodeID, sensorID)
}

// FreeNodeID returns the id the next ID request would be given.
func (g *Gateway) FreeNodeID() int {
	return g.registry.FreeNodeID()
}

// AddNode loads a previously persisted node. It publishes nothing.
// Adding a known id returns node.ErrNodeExists.
//
// AddNode and the other registry-changing methods wait for the message
// being processed, if any; event handlers must not call them synchronously.
func (g *Gateway) AddNode(n *node.Node) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()

	if err := g.registry.AddNode(n); err != nil {
		return err
	}
	g.metrics.setRegistrySize(g.registry.Count())
	return nil
}

// DeleteNode removes a node and publishes EventNodeDeleted.
func (g *Gateway) DeleteNode(id int) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()

	if err := g.registry.DeleteNode(id); err != nil {
		return err
	}
	g.metrics.setRegistrySize(g.registry.Count())
	g.bus.Publish(Event{Kind: EventNodeDeleted, NodeID: id})
	return nil
}

// ClearNodes drops every node and publishes EventRegistryCleared.
func (g *Gateway) ClearNodes() int {
	g.procMu.Lock()
	defer g.procMu.Unlock()

	count := g.registry.Clear()
	g.metrics.setRegistrySize(0, 0)
	g.bus.Publish(Event{Kind: EventRegistryCleared})
	return count
}

// UpdateNodeSettings copies the user-editable fields of settings onto the
// node and publishes EventNodeUpdated.
func (g *Gateway) UpdateNodeSettings(settings *node.Node) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()

	if err := g.registry.UpdateSettings(settings); err != nil {
		return err
	}
	n, err := g.registry.GetNode(settings.ID)
	if err != nil {
		return err
	}
	g.bus.Publish(Event{Kind: EventNodeUpdated, Node: n, NodeID: n.ID})
	return nil
}

// SetNodeExternalID records the persistence key of a node.
func (g *Gateway) SetNodeExternalID(id int, externalID string) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()
	return g.registry.SetNodeExternalID(id, externalID)
}

// SetSensorExternalID records the persistence key of a sensor.
func (g *Gateway) SetSensorExternalID(nodeID, sensorID int, externalID string) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()
	return g.registry.SetSensorExternalID(nodeID, sensorID, externalID)
}

// Messages returns the message log, oldest first.
func (g *Gateway) Messages() []Message {
	return g.messages.List()
}

// ClearMessages empties the message log.
func (g *Gateway) ClearMessages() {
	g.messages.Clear()
}

// Info returns the connection state and registry size.
func (g *Gateway) Info() Info {
	nodes, sensors := g.registry.Count()
	return Info{
		Connected: g.IsConnected(),
		Nodes:     nodes,
		Sensors:   sensors,
	}
}

// Stats returns current operational statistics.
func (g *Gateway) Stats() Stats {
	var last time.Time
	if ts := g.lastActivity.Load(); ts != 0 {
		last = time.Unix(ts, 0)
	}
	return Stats{
		MessagesRx:   g.messagesRx.Load(),
		MessagesTx:   g.messagesTx.Load(),
		InvalidRx:    g.invalidRx.Load(),
		SendErrors:   g.sendErrors.Load(),
		LastActivity: last,
		Connected:    g.IsConnected(),
	}
}

func (g *Gateway) trace(kind EventKind, text string) {
	if g.bus.HandlerCount(kind) == 0 {
		return
	}
	g.bus.Publish(Event{Kind: kind, Text: text})
}

// logInfo logs an info message if logger is set.
func (g *Gateway) logInfo(msg string, keysAndValues ...any) {
	g.loggerMu.RLock()
	logger := g.logger
	g.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (g *Gateway) logWarn(msg string, keysAndValues ...any) {
	g.loggerMu.RLock()
	logger := g.logger
	g.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (g *Gateway) logError(msg string, err error, keysAndValues ...any) {
	g.loggerMu.RLock()
	logger := g.logger
	g.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// logDebug logs a debug message if logger is set.
func (g *Gateway) logDebug(msg string, keysAndValues ...any) {
	g.loggerMu.RLock()
	logger := g.logger
	g.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
