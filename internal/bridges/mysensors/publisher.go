package mysensors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// Publisher operation constants.
const (
	// commandTimeout is the timeout for sending a command to the network.
	commandTimeout = 5 * time.Second

	// defaultPublishQueueSize is the buffer between the event bus and MQTT.
	defaultPublishQueueSize = 256
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// PublisherOptions holds configuration for creating a publisher.
type PublisherOptions struct {
	Gateway *Gateway
	Client  MQTTClient
	Topics  mqtt.Topics
	QoS     byte

	// PublishMessages also publishes every raw message in both directions.
	PublishMessages bool

	// QueueSize bounds events waiting to be published. Events arriving
	// while the queue is full are dropped.
	QueueSize int

	Logger Logger
}

type outbound struct {
	topic    string
	payload  []byte
	retained bool
}

// Publisher mirrors gateway events to MQTT and executes commands received
// on {prefix}/command/{name}.
//
// Event handlers only enqueue; a single worker publishes in event order so
// a slow broker never stalls message processing.
type Publisher struct {
	gw              *Gateway
	client          MQTTClient
	topics          mqtt.Topics
	qos             byte
	publishMessages bool

	queue       chan outbound
	unsubscribe func()
	dropped     atomic.Uint64

	done     *closeOnce
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewPublisher creates a publisher. Call Start to begin.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultPublishQueueSize
	}

	return &Publisher{
		gw:              opts.Gateway,
		client:          opts.Client,
		topics:          opts.Topics,
		qos:             opts.QoS,
		publishMessages: opts.PublishMessages,
		queue:           make(chan outbound, size),
		done:            newCloseOnce(),
		logger:          opts.Logger,
	}, nil
}

// Start subscribes to gateway events and to the command topics.
func (p *Publisher) Start() error {
	if err := p.client.Subscribe(p.topics.AllCommands(), p.qos, p.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}

	p.wg.Add(1)
	go p.publishLoop()

	p.unsubscribe = p.gw.Events().SubscribeAll(p.handleEvent)
	p.logInfo("MQTT publisher started", "commands", p.topics.AllCommands())
	return nil
}

// Stop detaches from the gateway and flushes queued events.
// Safe to call multiple times.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
		p.done.Close()
		p.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was full.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	for {
		select {
		case out := <-p.queue:
			p.publish(out)
		case <-p.done.Done():
			for {
				select {
				case out := <-p.queue:
					p.publish(out)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) publish(out outbound) {
	if err := p.client.Publish(out.topic, out.payload, p.qos, out.retained); err != nil {
		p.logError("publish failed", err, "topic", out.topic)
	}
}

func (p *Publisher) enqueue(topic string, v any, retained bool) {
	var payload []byte
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			p.logError("encoding payload failed", err, "topic", topic)
			return
		}
		payload = b
	}

	select {
	case p.queue <- outbound{topic: topic, payload: payload, retained: retained}:
	default:
		if p.dropped.Add(1) == 1 {
			p.logWarn("MQTT publish queue full, dropping events", "topic", topic)
		}
	}
}

// handleEvent maps one gateway event onto its topics.
func (p *Publisher) handleEvent(ev Event) {
	switch ev.Kind {
	case EventMessageReceived, EventMessageSent:
		if p.publishMessages && ev.Message != nil {
			p.enqueue(p.topics.Message(string(ev.Message.Direction)), ev.Message, false)
		}

	case EventNodeCreated, EventNodeUpdated, EventNodeLastSeen, EventNodeBattery:
		if ev.Node != nil {
			p.enqueue(p.topics.Node(ev.Node.ID), NodeMessage{Event: ev.Kind, Timestamp: ev.Time.UTC(), Node: ev.Node}, true)
		}

	case EventSensorCreated, EventSensorUpdated:
		if ev.Node != nil {
			p.enqueue(p.topics.Node(ev.Node.ID), NodeMessage{Event: ev.Kind, Timestamp: ev.Time.UTC(), Node: ev.Node}, true)
		}
		if ev.Sensor != nil && ev.Data != nil {
			p.enqueue(p.topics.SensorState(ev.Sensor.NodeID, ev.Sensor.ID, ev.Data.DataType.String()),
				NewStateMessage(ev.Sensor, *ev.Data), true)
		}

	case EventNodeDeleted:
		// An empty retained payload removes the retained snapshot.
		p.enqueue(p.topics.Node(ev.NodeID), nil, true)

	case EventRegistryCleared, EventConnected, EventDisconnected:
		p.enqueue(p.topics.Event(string(ev.Kind)), ev, false)
	}
}

// handleCommand executes a command received over MQTT and publishes its
// acknowledgement.
func (p *Publisher) handleCommand(topic string, payload []byte) error {
	name := topic[strings.LastIndex(topic, "/")+1:]

	var cmd CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			p.publishAck(NewAckError(name, cmd, ErrCodeInvalidParameters, err.Error()))
			return fmt.Errorf("parsing command: %w", err)
		}
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	p.logInfo("received command", "command", name, "command_id", cmd.ID, "node_id", cmd.NodeID)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	p.publishAck(Execute(ctx, p.gw, name, &cmd))
	return nil
}

func (p *Publisher) publishAck(ack AckMessage) {
	if ack.CommandID == "" {
		return
	}
	p.enqueue(p.topics.Ack(ack.CommandID), ack, false)
}

// Execute runs one named command against the gateway. cmd.ID is filled in
// when empty.
func Execute(ctx context.Context, gw *Gateway, name string, cmd *CommandMessage) AckMessage {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	var err error
	switch name {
	case CommandSet:
		err = gw.SendSensorState(ctx, cmd.NodeID, cmd.SensorID, cmd.DataType, cmd.Value)

	case CommandRaw:
		msg := ParseMessage(cmd.Line)
		if msg.Invalid {
			return NewAckError(name, *cmd, ErrCodeInvalidParameters, fmt.Sprintf("malformed frame %q", cmd.Line))
		}
		err = gw.Send(ctx, msg)

	case CommandReboot:
		if !node.ValidNodeID(cmd.NodeID) {
			return NewAckError(name, *cmd, ErrCodeInvalidParameters, fmt.Sprintf("invalid node id %d", cmd.NodeID))
		}
		err = gw.SendReboot(ctx, cmd.NodeID)

	case CommandRebootAll:
		_, err = gw.RebootAllNodes(context.Background())

	case CommandCancel:
		gw.CancelReboot()

	default:
		return NewAckError(name, *cmd, ErrCodeInvalidCommand, fmt.Sprintf("unknown command %q", name))
	}

	if err != nil {
		return NewAckError(name, *cmd, errorCode(err), err.Error())
	}
	return NewAckMessage(name, *cmd)
}

// errorCode maps gateway errors to acknowledgement codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotConnected):
		return ErrCodeNotConnected
	case errors.Is(err, node.ErrNodeNotFound), errors.Is(err, node.ErrSensorNotFound):
		return ErrCodeUnknownSensor
	case errors.Is(err, ErrRebootInProgress):
		return ErrCodeBusy
	case errors.Is(err, ErrInvalidMessage):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeGatewayError
	}
}

func (p *Publisher) logInfo(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (p *Publisher) logWarn(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (p *Publisher) logError(msg string, err error, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
