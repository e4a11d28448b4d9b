package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultTopicPrefix is the root of every topic when none is configured.
const DefaultTopicPrefix = "sensorgw"

// Topics builds the MQTT topics of one gateway instance.
//
// Layout:
//
//	{prefix}/status                              client online/offline (retained)
//	{prefix}/health                              gateway health (retained)
//	{prefix}/node/{node}                         node snapshot (retained)
//	{prefix}/state/{node}/{sensor}/{data_type}   latest sensor value (retained)
//	{prefix}/message/{direction}                 raw traffic
//	{prefix}/event/{kind}                        other gateway events
//	{prefix}/command/{name}                      commands to the gateway
//	{prefix}/ack/{command_id}                    command acknowledgements
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders rooted at prefix, or at
// DefaultTopicPrefix when prefix is empty.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Status returns the client status topic used for the LWT.
//
// Example: sensorgw/status
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// Health returns the gateway health topic.
//
// Example: sensorgw/health
func (t Topics) Health() string {
	return t.prefix() + "/health"
}

// Node returns the topic carrying a node snapshot.
//
// Example: sensorgw/node/7
func (t Topics) Node(nodeID int) string {
	return fmt.Sprintf("%s/node/%d", t.prefix(), nodeID)
}

// SensorState returns the topic carrying the latest value of one data type.
//
// Example: sensorgw/state/7/2/V_TEMP
func (t Topics) SensorState(nodeID, sensorID int, dataType string) string {
	return fmt.Sprintf("%s/state/%d/%d/%s", t.prefix(), nodeID, sensorID, dataType)
}

// Message returns the raw traffic topic for a direction.
//
// Example: sensorgw/message/incoming
func (t Topics) Message(direction string) string {
	return fmt.Sprintf("%s/message/%s", t.prefix(), direction)
}

// Event returns the topic for gateway events without a dedicated topic.
//
// Example: sensorgw/event/gateway.connected
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", t.prefix(), kind)
}

// Command returns the topic for one command name.
//
// Example: sensorgw/command/set
func (t Topics) Command(name string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix(), name)
}

// Ack returns the acknowledgement topic for a command.
//
// Example: sensorgw/ack/0b4c...
func (t Topics) Ack(commandID string) string {
	return fmt.Sprintf("%s/ack/%s", t.prefix(), commandID)
}

// AllCommands returns the subscription pattern for every command.
//
// Example: sensorgw/command/+
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+"
}

// AllNodes returns the subscription pattern for every node snapshot.
func (t Topics) AllNodes() string {
	return t.prefix() + "/node/+"
}

// AllStates returns the subscription pattern for every sensor value.
func (t Topics) AllStates() string {
	return t.prefix() + "/state/+/+/+"
}

// AllTopics returns the subscription pattern for the whole tree.
func (t Topics) AllTopics() string {
	return t.prefix() + "/#"
}

// NodeIDFromTopic extracts the node id from a Node topic.
func (t Topics) NodeIDFromTopic(topic string) (int, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/node/")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}
