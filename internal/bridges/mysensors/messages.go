package mysensors

import (
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// MQTT payloads exchanged with consumers of the gateway.

// Command names accepted on {prefix}/command/{name}.
const (
	CommandSet       = "set"        // send a value to a sensor
	CommandRaw       = "raw"        // send a serialized frame as is
	CommandReboot    = "reboot"     // reboot one node
	CommandRebootAll = "reboot_all" // reboot every node
	CommandCancel    = "cancel_reboot"
)

// CommandMessage asks the gateway to send something to the network.
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. One is generated
	// when empty.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	NodeID   int           `json:"node_id"`
	SensorID int           `json:"sensor_id"`
	DataType node.DataType `json:"data_type"`
	Value    string        `json:"value"`

	// Line is the frame for CommandRaw, without its terminator.
	Line string `json:"line,omitempty"`

	// Source indicates where the command originated ("api", "mqtt", ...).
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was written to the network.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotConnected      = "NOT_CONNECTED"
	ErrCodeUnknownSensor     = "UNKNOWN_SENSOR"
	ErrCodeBusy              = "BUSY"
	ErrCodeGatewayError      = "GATEWAY_ERROR"
)

// AckMessage answers a CommandMessage on {prefix}/ack/{id}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage carries the latest value of one data type.
// Topic: {prefix}/state/{node}/{sensor}/{data_type}, QoS 1, retained.
type StateMessage struct {
	NodeID     int             `json:"node_id"`
	SensorID   int             `json:"sensor_id"`
	SensorType node.SensorType `json:"sensor_type"`
	DataType   node.DataType   `json:"data_type"`
	Value      string          `json:"value"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NodeMessage carries a node snapshot.
// Topic: {prefix}/node/{node}, QoS 1, retained.
type NodeMessage struct {
	Event     EventKind  `json:"event"`
	Timestamp time.Time  `json:"timestamp"`
	Node      *node.Node `json:"node"`
}

// HealthStatus represents the operational status of the gateway.
type HealthStatus string

const (
	// HealthHealthy indicates the gateway is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the sensor network link is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the gateway is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the gateway is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the gateway's operational status.
// Topic: {prefix}/health, QoS 1, retained.
type HealthMessage struct {
	Gateway       string             `json:"gateway"`
	Timestamp     time.Time          `json:"timestamp"`
	Status        HealthStatus       `json:"status"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Connection    *ConnectionStatus  `json:"connection,omitempty"`
	Statistics    *GatewayStatistics `json:"statistics,omitempty"`
	Nodes         int                `json:"nodes"`
	Sensors       int                `json:"sensors"`
	Reason        string             `json:"reason,omitempty"`
}

// ConnectionStatus describes the sensor network link.
type ConnectionStatus struct {
	Status       string     `json:"status"`
	Address      string     `json:"address,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// GatewayStatistics contains traffic counters.
type GatewayStatistics struct {
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	InvalidReceived  uint64 `json:"invalid_received"`
	Errors           uint64 `json:"errors"`
}

// NewAckMessage creates a successful acknowledgement.
func NewAckMessage(command string, cmd CommandMessage) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Command:   command,
		Timestamp: time.Now().UTC(),
		Status:    AckAccepted,
	}
}

// NewAckError creates a failed acknowledgement.
func NewAckError(command string, cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(command, cmd)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message from a sensor snapshot.
func NewStateMessage(s *node.Sensor, d node.SensorData) StateMessage {
	return StateMessage{
		NodeID:     s.NodeID,
		SensorID:   s.ID,
		SensorType: s.Type,
		DataType:   d.DataType,
		Value:      d.State,
		Timestamp:  d.Timestamp.UTC(),
	}
}

// NewHealthMessage creates a health message from gateway statistics.
func NewHealthMessage(gatewayID, version string, status HealthStatus, stats Stats, info Info, address string, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Gateway:       gatewayID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Nodes:         info.Nodes,
		Sensors:       info.Sensors,
		Connection:    &ConnectionStatus{Status: "disconnected", Address: address},
		Statistics: &GatewayStatistics{
			MessagesReceived: stats.MessagesRx,
			MessagesSent:     stats.MessagesTx,
			InvalidReceived:  stats.InvalidRx,
			Errors:           stats.SendErrors,
		},
	}
	if stats.Connected {
		msg.Connection.Status = "connected"
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		msg.Connection.LastActivity = &last
	}
	return msg
}
