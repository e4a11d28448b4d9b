// Package mysensors implements the controller side of a MySensors serial
// gateway.
//
// A Gateway reads newline-terminated frames of the form
//
//	node-id;child-sensor-id;message-type;ack;sub-type;payload
//
// from a Transport, reconciles them into a node.Registry and publishes what
// changed on an EventBus. It also answers the protocol's control requests
// (id assignment, configuration, time, value requests) and sends commands
// back to the network.
//
// # Processing model
//
// Frames are handled one at a time. All registry changes caused by a frame
// are made under one registry transaction; events are published after the
// transaction commits, in a fixed order: message received, replies sent,
// node events, sensor events. Event handlers run on the processing
// goroutine and receive copies of nodes and sensors.
//
// # Values
//
// Sensors may invert logical values or linearly remap numeric ones. SET
// payloads are converted to consumer units on the way in and back to native
// units on the way out; a value that cannot be converted passes through
// unchanged.
//
// # Collaborators
//
// StreamTransport frames a serial port (github.com/goburrow/serial) or a TCP
// connection to an Ethernet gateway. Publisher mirrors events to MQTT and
// accepts commands; HealthReporter publishes a retained health message;
// Metrics exposes Prometheus counters.
package mysensors
