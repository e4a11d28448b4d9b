package mysensors

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// Send writes msg to the network. SET payloads are given in consumer units
// and converted back to native units before they reach the wire. A SET to a
// known sensor also stores the value and publishes EventSensorUpdated.
//
// Send blocks until the transport accepts the frame or fails. It returns
// ErrNotConnected when no transport is connected. EventMessageSent is only
// published for frames the transport accepted.
//
// Send waits for the message being processed, if any, so event handlers
// must not call it synchronously.
func (g *Gateway) Send(ctx context.Context, msg Message) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()
	return g.sendMessage(ctx, msg)
}

// sendMessage writes msg. Callers hold procMu.

func (g *Gateway) sendMessage(ctx context.Context, msg Message) error {
	if msg.Invalid {
		return ErrInvalidMessage
	}
	t := g.activeTransport()
	if t == nil {
		return ErrNotConnected
	}

	msg.Direction = DirectionOutgoing
	msg.Timestamp = time.Now()
	wire := g.reverseTransform(msg)

	g.trace(EventTxRxTrace, "TX: "+wire.String())

	if err := t.Send(ctx, wire.Encode()); err != nil {
		g.sendErrors.Add(1)
		g.metrics.sendError()
		return fmt.Errorf("sending %s: %w", wire.String(), err)
	}

	g.messagesTx.Add(1)
	g.lastActivity.Store(msg.Timestamp.Unix())
	g.metrics.messageSent(msg.Type)

	if g.storeMessages.Load() {
		g.messages.Add(wire)
	}

	sent := msg
	g.bus.Publish(Event{Kind: EventMessageSent, Message: &sent, NodeID: msg.NodeID})

	if msg.Type == MessageSet {
		g.storeSentValue(msg)
	}
	return nil
}

// storeSentValue records the consumer-unit value of a SET sent to a known sensor.
func (g *Gateway) storeSentValue(msg Message) {
	var ev *Event
	_ = g.registry.Update(func(tx *node.Tx) error {
		n, ok := tx.Node(msg.NodeID)
		if !ok {
			return nil
		}
		s, ok := n.Sensor(msg.SensorID)
		if !ok {
			return nil
		}
		d := node.SensorData{
			DataType:  node.DataType(msg.SubType),
			State:     msg.Payload,
			Timestamp: msg.Timestamp,
		}
		s.SetData(d)
		ev = &Event{
			Kind:   EventSensorUpdated,
			NodeID: n.ID,
			Node:   n.DeepCopy(),
			Sensor: s.DeepCopy(),
			Data:   &d,
		}
		return nil
	})
	if ev != nil {
		g.bus.Publish(*ev)
	}
}

// SendSensorState sends value for one data type of a known sensor.
func (g *Gateway) SendSensorState(ctx context.Context, nodeID, sensorID int, dt node.DataType, value string) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()

	if _, err := g.registry.GetSensor(nodeID, sensorID); err != nil {
		return fmt.Errorf("node %d sensor %d: %w", nodeID, sensorID, err)
	}
	return g.sendMessage(ctx, NewSetMessage(nodeID, sensorID, dt, value))
}

// SendReboot asks one node to restart.
func (g *Gateway) SendReboot(ctx context.Context, nodeID int) error {
	g.procMu.Lock()
	defer g.procMu.Unlock()
	return g.sendMessage(ctx, NewInternalMessage(nodeID, 0, InternalReboot, "0"))
}

// RebootAllNodes sends a reboot request to every id from 1 to node.MaxNodeID
// in the background, pausing the configured interval between requests.
//
// The returned channel yields the broadcast's result once and is then
// closed. The broadcast stops early when ctx is done, when CancelReboot is
// called, when the gateway is closed or when a send fails. Only one
// broadcast runs at a time.
func (g *Gateway) RebootAllNodes(ctx context.Context) (<-chan error, error) {
	if !g.IsConnected() {
		return nil, ErrNotConnected
	}

	g.rebootMu.Lock()
	if g.rebootCancel != nil {
		g.rebootMu.Unlock()
		return nil, ErrRebootInProgress
	}
	rctx, cancel := context.WithCancel(g.ctx)
	stop := context.AfterFunc(ctx, cancel)
	g.rebootCancel = cancel
	g.rebootMu.Unlock()

	done := make(chan error, 1)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer close(done)

		err := g.rebootAll(rctx)

		stop()
		g.rebootMu.Lock()
		g.rebootCancel = nil
		g.rebootMu.Unlock()
		cancel()

		if err != nil {
			g.logError("reboot broadcast stopped", err)
		} else {
			g.logInfo("reboot broadcast complete", "nodes", node.MaxNodeID)
		}
		done <- err
	}()

	g.logInfo("reboot broadcast started", "interval", g.rebootInterval.String())
	return done, nil
}

// CancelReboot stops a running reboot broadcast. It is a no-op otherwise.
func (g *Gateway) CancelReboot() {
	g.rebootMu.Lock()
	defer g.rebootMu.Unlock()

	if g.rebootCancel != nil {
		g.rebootCancel()
	}
}

// RebootInProgress reports whether a reboot broadcast is running.
func (g *Gateway) RebootInProgress() bool {
	g.rebootMu.Lock()
	defer g.rebootMu.Unlock()
	return g.rebootCancel != nil
}

func (g *Gateway) rebootAll(ctx context.Context) error {
	timer := time.NewTimer(g.rebootInterval)
	timer.Stop()
	defer timer.Stop()

	for id := 1; id <= node.MaxNodeID; id++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.SendReboot(ctx, id); err != nil {
			return fmt.Errorf("rebooting node %d: %w", id, err)
		}
		g.metrics.rebootSent()

		if id == node.MaxNodeID {
			break
		}
		timer.Reset(g.rebootInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
