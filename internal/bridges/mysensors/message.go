package mysensors

import (
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// MessageType is the command field of a frame.
type MessageType int

// Message types, numbered as on the wire.
const (
	MessagePresentation MessageType = iota
	MessageSet
	MessageRequest
	MessageInternal
	MessageStream
)

func (t MessageType) String() string {
	switch t {
	case MessagePresentation:
		return "PRESENTATION"
	case MessageSet:
		return "SET"
	case MessageRequest:
		return "REQ"
	case MessageInternal:
		return "INTERNAL"
	case MessageStream:
		return "STREAM"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
	}
}

// InternalType is the sub-type of an INTERNAL message.
type InternalType int

// Internal sub-types, numbered as on the wire.
const (
	InternalBatteryLevel InternalType = iota
	InternalTime
	InternalVersion
	InternalIDRequest
	InternalIDResponse
	InternalInclusionMode
	InternalConfig
	InternalFindParent
	InternalFindParentResponse
	InternalLogMessage
	InternalChildren
	InternalSketchName
	InternalSketchVersion
	InternalReboot
	InternalGatewayReady
	InternalRequestSigning
	InternalGetNonce
	InternalGetNonceResponse
)

var internalTypeNames = [...]string{
	"I_BATTERY_LEVEL", "I_TIME", "I_VERSION", "I_ID_REQUEST", "I_ID_RESPONSE",
	"I_INCLUSION_MODE", "I_CONFIG", "I_FIND_PARENT", "I_FIND_PARENT_RESPONSE",
	"I_LOG_MESSAGE", "I_CHILDREN", "I_SKETCH_NAME", "I_SKETCH_VERSION", "I_REBOOT",
	"I_GATEWAY_READY", "I_REQUEST_SIGNING", "I_GET_NONCE", "I_GET_NONCE_RESPONSE",
}

func (t InternalType) String() string {
	if t >= 0 && int(t) < len(internalTypeNames) {
		return internalTypeNames[t]
	}
	return "I_UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// MetricSystem is the config response payload announcing metric units.
const MetricSystem = "M"

// Direction tells whether a message came from the network or was sent to it.
type Direction string

// Message directions.
const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

const (
	fieldCount     = 6
	fieldSep       = ";"
	maxWireID      = 255
	ackFlag        = "1"
	noAckFlag      = "0"
	lineTerminator = "\n"
)

// Message is one frame of the serial protocol:
//
//	node-id;child-sensor-id;message-type;ack;sub-type;payload\n
//
// The zero value is a valid message. Invalid is set only by ParseMessage when
// a line cannot be decoded; the raw line is then kept in Payload.
type Message struct {
	NodeID    int         `json:"node_id"`
	SensorID  int         `json:"sensor_id"`
	Type      MessageType `json:"type"`
	Ack       bool        `json:"ack"`
	SubType   int         `json:"sub_type"`
	Payload   string      `json:"payload"`
	Direction Direction   `json:"direction,omitempty"`
	Invalid   bool        `json:"invalid,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// IsValid reports whether the message was decoded successfully.
func (m Message) IsValid() bool {
	return !m.Invalid
}

// ParseMessage decodes one line. It never fails: a line with fewer than six
// fields or a malformed numeric field yields a Message with Invalid set, zero
// numeric fields and the raw line as payload. One trailing "\n" or "\r\n" is
// stripped; the payload is the rest of the line verbatim and may contain ';'.
func ParseMessage(line string) Message {
	trimmed := strings.TrimSuffix(line, lineTerminator)
	trimmed = strings.TrimSuffix(trimmed, "\r")

	fields := strings.SplitN(trimmed, fieldSep, fieldCount)
	if len(fields) < fieldCount {
		return invalidMessage(line)
	}

	nodeID, ok := parseWireID(fields[0])
	if !ok {
		return invalidMessage(line)
	}
	sensorID, ok := parseWireID(fields[1])
	if !ok {
		return invalidMessage(line)
	}
	msgType, err := strconv.Atoi(fields[2])
	if err != nil {
		return invalidMessage(line)
	}
	subType, err := strconv.Atoi(fields[4])
	if err != nil {
		return invalidMessage(line)
	}

	return Message{
		NodeID:   nodeID,
		SensorID: sensorID,
		Type:     MessageType(msgType),
		Ack:      fields[3] == ackFlag,
		SubType:  subType,
		Payload:  fields[5],
	}
}

func parseWireID(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > maxWireID {
		return 0, false
	}
	return v, true
}

func invalidMessage(raw string) Message {
	return Message{Invalid: true, Payload: raw}
}

// Encode returns the wire form of m, terminated by "\n".
func (m Message) Encode() string {
	return m.frame() + lineTerminator
}

func (m Message) frame() string {
	ack := noAckFlag
	if m.Ack {
		ack = ackFlag
	}

	var b strings.Builder
	b.Grow(16 + len(m.Payload))
	b.WriteString(strconv.Itoa(m.NodeID))
	b.WriteString(fieldSep)
	b.WriteString(strconv.Itoa(m.SensorID))
	b.WriteString(fieldSep)
	b.WriteString(strconv.Itoa(int(m.Type)))
	b.WriteString(fieldSep)
	b.WriteString(ack)
	b.WriteString(fieldSep)
	b.WriteString(strconv.Itoa(m.SubType))
	b.WriteString(fieldSep)
	b.WriteString(m.Payload)
	return b.String()
}

// String returns the frame without its terminator, or the raw line for an
// invalid message.
func (m Message) String() string {
	if m.Invalid {
		return strings.TrimRight(m.Payload, "\r\n")
	}
	return m.frame()
}

// SubTypeName names the sub-type according to the message type, for logs.
func (m Message) SubTypeName() string {
	switch m.Type {
	case MessagePresentation:
		return node.SensorType(m.SubType).String()
	case MessageSet, MessageRequest:
		return node.DataType(m.SubType).String()
	case MessageInternal:
		return InternalType(m.SubType).String()
	default:
		return strconv.Itoa(m.SubType)
	}
}

// IsInternal reports whether m is an INTERNAL message of the given sub-type.
func (m Message) IsInternal(t InternalType) bool {
	return m.Type == MessageInternal && InternalType(m.SubType) == t
}

// NewSetMessage builds a SET carrying value for one data type.
func NewSetMessage(nodeID, sensorID int, dt node.DataType, value string) Message {
	return Message{
		NodeID:   nodeID,
		SensorID: sensorID,
		Type:     MessageSet,
		SubType:  int(dt),
		Payload:  value,
	}
}

// NewInternalMessage builds an INTERNAL message.
func NewInternalMessage(nodeID, sensorID int, t InternalType, payload string) Message {
	return Message{
		NodeID:   nodeID,
		SensorID: sensorID,
		Type:     MessageInternal,
		SubType:  int(t),
		Payload:  payload,
	}
}
