package mysensors

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// pendingEvent is an event decided inside a registry transaction whose
// snapshot is taken once the transaction's changes are complete.
type pendingEvent struct {
	kind     EventKind
	sensorID int // NodeSensorID for node events
	data     *node.SensorData
}

// outcome collects what processing one message decided to do.
type outcome struct {
	replies  []Message
	pending  []pendingEvent
	events   []Event
	assigned bool
}

func (o *outcome) add(kind EventKind, sensorID int, data *node.SensorData) {
	o.pending = append(o.pending, pendingEvent{kind: kind, sensorID: sensorID, data: data})
}

// snapshot turns pending events into events carrying copies of the live node.
func (o *outcome) snapshot(n *node.Node) {
	for _, p := range o.pending {
		ev := Event{Kind: p.kind, NodeID: n.ID, Node: n.DeepCopy(), Data: p.data}
		if p.sensorID != node.NodeSensorID {
			if s, ok := n.Sensor(p.sensorID); ok {
				ev.Sensor = s.DeepCopy()
			}
		}
		o.events = append(o.events, ev)
	}
}

// HandleLine decodes one line from the transport and processes it.
func (g *Gateway) HandleLine(line string) error {
	return g.HandleMessage(ParseMessage(line))
}

// HandleMessage reconciles one incoming message into the registry, sends
// any replies it calls for and publishes the resulting events.
//
// The whole step runs under the processing lock, which the gateway's
// registry-changing methods also take, so no settings change or deletion
// lands between a message's commit and its events. Handlers must not call
// those methods synchronously.
//
// EventMessageReceived is published before the registry is touched. Invalid
// messages are published and otherwise ignored. A presentation naming an
// unknown sensor type returns ErrSensorTypeOutOfRange and leaves the
// registry untouched.
func (g *Gateway) HandleMessage(msg Message) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()

	msg.Direction = DirectionIncoming
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	g.messagesRx.Add(1)
	g.lastActivity.Store(msg.Timestamp.Unix())
	if !msg.Invalid {
		g.metrics.messageReceived(msg.Type)
	}

	if g.storeMessages.Load() {
		g.messages.Add(msg)
	}
	g.trace(EventTxRxTrace, "RX: "+msg.String())

	if msg.Type == MessageSet {
		msg = g.forwardTransform(msg)
	}

	received := msg
	g.bus.Publish(Event{Kind: EventMessageReceived, Message: &received, NodeID: msg.NodeID})

	if msg.Invalid {
		g.invalidRx.Add(1)
		g.metrics.invalidMessage()
		g.logDebug("invalid message", "line", msg.Payload)
		return nil
	}

	var out outcome
	if err := g.registry.Update(func(tx *node.Tx) error {
		return g.reconcile(tx, &msg, &out)
	}); err != nil {
		return err
	}

	if len(out.replies) > 0 {
		ctx, cancel := context.WithTimeout(g.ctx, replyTimeout)
		for _, reply := range out.replies {
			if err := g.sendMessage(ctx, reply); err != nil {
				g.logError("sending reply failed", err, "reply", reply.String())
				continue
			}
			if out.assigned {
				g.metrics.nodeIDAssigned()
				g.logInfo("node id assigned", "node_id", reply.Payload)
			}
		}
		cancel()
	}

	for _, ev := range out.events {
		g.bus.Publish(ev)
	}
	if len(out.events) > 0 {
		g.metrics.setRegistrySize(g.registry.Count())
	}
	return nil
}

// reconcile applies a valid msg to the registry. It runs inside a registry
// transaction; replies and events are only collected here.
func (g *Gateway) reconcile(tx *node.Tx, msg *Message, out *outcome) error {
	if msg.IsInternal(InternalGatewayReady) || msg.IsInternal(InternalLogMessage) {
		g.logDebug("gateway message", "type", msg.SubTypeName(), "payload", msg.Payload)
		return nil
	}

	if msg.NodeID == node.BroadcastID {
		if msg.IsInternal(InternalIDRequest) && g.autoAssignID.Load() {
			id := tx.FreeNodeID()
			out.replies = append(out.replies, NewInternalMessage(node.BroadcastID, node.BroadcastID,
				InternalIDResponse, strconv.Itoa(id)))
			out.assigned = true
		}
		return nil
	}

	if msg.Type == MessagePresentation && msg.SensorID != node.NodeSensorID &&
		!node.SensorType(msg.SubType).Valid() {
		return fmt.Errorf("%w: node %d sensor %d type %d",
			ErrSensorTypeOutOfRange, msg.NodeID, msg.SensorID, msg.SubType)
	}

	g.collectReplies(tx, msg, out)

	n, ok := tx.Node(msg.NodeID)
	if !ok {
		n = tx.CreateNode(msg.NodeID, msg.Timestamp)
		out.add(EventNodeCreated, node.NodeSensorID, nil)
		g.logInfo("new node", "node_id", msg.NodeID)
	}
	n.LastSeen = msg.Timestamp
	out.add(EventNodeLastSeen, node.NodeSensorID, nil)

	if msg.SensorID == node.NodeSensorID {
		if done := g.reconcileNode(n, msg, out); done {
			out.snapshot(n)
			return nil
		}
	}

	g.reconcileSensor(n, msg, out)
	out.snapshot(n)
	return nil
}

// collectReplies answers config, time and value requests.
func (g *Gateway) collectReplies(tx *node.Tx, msg *Message, out *outcome) {
	switch {
	case msg.IsInternal(InternalConfig):
		out.replies = append(out.replies, NewInternalMessage(msg.NodeID, node.NodeSensorID,
			InternalConfig, MetricSystem))

	case msg.IsInternal(InternalTime) && g.timeResponse.Load():
		out.replies = append(out.replies, NewInternalMessage(msg.NodeID, msg.SensorID,
			InternalTime, strconv.FormatInt(time.Now().Unix(), 10)))

	case msg.Type == MessageRequest:
		n, ok := tx.Node(msg.NodeID)
		if !ok {
			return
		}
		s, ok := n.Sensor(msg.SensorID)
		if !ok {
			return
		}
		d, ok := s.Latest(node.DataType(msg.SubType))
		if !ok {
			return
		}
		out.replies = append(out.replies, NewSetMessage(msg.NodeID, msg.SensorID, d.DataType, d.State))
	}
}

// reconcileNode handles node-level messages. It reports true when
// processing of the message ends here.
func (g *Gateway) reconcileNode(n *node.Node, msg *Message, out *outcome) bool {
	switch msg.Type {
	case MessagePresentation:
		// Only the node kinds say whether the node repeats.
		switch node.SensorType(msg.SubType) {
		case node.SensorArduinoNode:
			n.IsRepeatingNode = false
		case node.SensorArduinoRepeaterNode:
			n.IsRepeatingNode = true
		}
		out.add(EventNodeUpdated, node.NodeSensorID, nil)

	case MessageInternal:
		switch InternalType(msg.SubType) {
		case InternalSketchName:
			n.Name = msg.Payload
			out.add(EventNodeUpdated, node.NodeSensorID, nil)
		case InternalSketchVersion:
			n.FirmwareVersion = msg.Payload
			out.add(EventNodeUpdated, node.NodeSensorID, nil)
		case InternalBatteryLevel:
			level, err := strconv.Atoi(strings.TrimSpace(msg.Payload))
			if err != nil {
				g.logWarn("ignoring battery level", "node_id", n.ID, "payload", msg.Payload)
				return true
			}
			n.BatteryLevel = &level
			out.add(EventNodeBattery, node.NodeSensorID, nil)
			return true
		}
	}
	return false
}

// reconcileSensor creates or updates the sensor named by a SET or
// PRESENTATION message.
func (g *Gateway) reconcileSensor(n *node.Node, msg *Message, out *outcome) {
	if msg.SensorID == node.NodeSensorID {
		return
	}
	if msg.Type != MessagePresentation && msg.Type != MessageSet {
		return
	}

	s, exists := n.Sensor(msg.SensorID)
	if !exists {
		s = n.AddSensor(msg.SensorID)
	}

	var data *node.SensorData
	switch msg.Type {
	case MessageSet:
		d := node.SensorData{
			DataType:  node.DataType(msg.SubType),
			State:     msg.Payload,
			Timestamp: msg.Timestamp,
		}
		s.SetData(d)
		data = &d
	case MessagePresentation:
		s.Type = node.SensorType(msg.SubType)
		if msg.Payload != "" {
			s.Description = msg.Payload
		}
	}

	if exists {
		out.add(EventSensorUpdated, s.ID, data)
	} else {
		out.add(EventSensorCreated, s.ID, data)
		g.logInfo("new sensor", "node_id", n.ID, "sensor_id", s.ID, "type", s.Type.String())
	}
}
