// Package history persists what the gateway learns about the sensor network.
//
// A Recorder subscribes to the gateway event bus. It mirrors nodes and
// sensors into the SQLite repository so they survive restarts, gives new
// nodes and sensors a persistence key, and writes sensor values to InfluxDB
// according to each sensor's history policy.
//
// At startup, Load puts the stored nodes back into the gateway registry
// before the transport is connected.
//
// Event handlers only enqueue. Database work happens on one worker
// goroutine in event order, so a slow disk never stalls message processing.
package history
