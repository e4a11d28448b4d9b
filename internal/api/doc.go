// Package api implements the HTTP admin API and WebSocket event stream of the
// sensor gateway.
//
// This package provides:
//   - REST endpoints to inspect and edit nodes and sensors, send values,
//     reboot nodes and read the message log
//   - WebSocket hub relaying gateway events to subscribed clients
//   - Prometheus exposition at /api/v1/metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a collaborator of the gateway core. Reads go to the node
// registry through the gateway, writes go out to the sensor network through
// the same command path the MQTT subscriber uses, and every event published
// on the gateway's bus is forwarded to WebSocket clients subscribed to its
// kind ("node.created", "sensor.updated", ...) or to "*".
//
// # Graceful Degradation
//
// The server operates without a connected sensor network. Reads and
// WebSocket connections work, only sends fail with 503.
package api
