package mysensors

import (
	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// Transformed is the result of converting a message between native and
// consumer units. Applied is false when the message passed through unchanged:
// not a SET, unknown node or sensor, no transform configured, or a payload
// the transform cannot handle.
type Transformed struct {
	Message Message
	Applied bool
}

// ForwardTransform converts a SET payload from native units into consumer
// units using the settings of the addressed sensor.
func ForwardTransform(s *node.Sensor, msg Message) Transformed {
	return transformWith(s, msg, (*node.Sensor).Forward)
}

// ReverseTransform converts a SET payload from consumer units back into
// native units. It undoes ForwardTransform.
func ReverseTransform(s *node.Sensor, msg Message) Transformed {
	return transformWith(s, msg, (*node.Sensor).Reverse)
}

func transformWith(s *node.Sensor, msg Message, fn func(*node.Sensor, string) (string, bool)) Transformed {
	if s == nil || msg.Type != MessageSet || msg.Invalid {
		return Transformed{Message: msg}
	}
	out, ok := fn(s, msg.Payload)
	if !ok {
		return Transformed{Message: msg}
	}
	msg.Payload = out
	return Transformed{Message: msg, Applied: true}
}

// forwardTransform returns msg in consumer units.
func (g *Gateway) forwardTransform(msg Message) Message {
	s, err := g.registry.GetSensor(msg.NodeID, msg.SensorID)
	if err != nil {
		return msg
	}
	res := ForwardTransform(s, msg)
	if res.Applied {
		g.logDebug("value transformed", "node_id", msg.NodeID, "sensor_id", msg.SensorID,
			"native", msg.Payload, "value", res.Message.Payload)
	}
	return res.Message
}

// reverseTransform returns msg in native units for the wire.
func (g *Gateway) reverseTransform(msg Message) Message {
	if msg.Type != MessageSet {
		return msg
	}
	s, err := g.registry.GetSensor(msg.NodeID, msg.SensorID)
	if err != nil {
		return msg
	}
	return ReverseTransform(s, msg).Message
}
