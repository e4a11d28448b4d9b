// Package node holds the sensor-network entity model and the registry that
// owns it.
//
// A Node is a device on the network identified by a one-byte id; it owns an
// ordered list of Sensors, each keeping the latest SensorData per DataType.
// Id 255 is reserved: as a node id it means "broadcast / unassigned", as a
// sensor id it addresses the node itself, so it never names a Node or Sensor.
//
// The Registry is the single owner of live entities. Everything it hands out
// is a deep copy. Multi-step changes run inside Registry.Update, which holds
// the write lock so readers never observe a half-applied message.
//
// Sensor.Forward and Sensor.Reverse implement the per-sensor value transform
// (invert, then linear remap) and its exact inverse.
//
// SQLiteRepository stores node settings, sensor settings and the latest data
// so the registry can be reloaded after a restart.
package node
