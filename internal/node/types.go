package node

import (
	"slices"
	"time"
)

// Reserved identifiers.
const (
	// BroadcastID addresses every node, and marks a node that has no id yet.
	BroadcastID = 255

	// NodeSensorID is the sensor id used by messages about the node itself.
	NodeSensorID = 255

	// MaxNodeID is the highest id a registered node may have.
	MaxNodeID = 254

	// MaxAssignableID is the highest id handed out to nodes requesting one.
	MaxAssignableID = 253
)

// Node is a device on the sensor network.
type Node struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	FirmwareVersion string    `json:"firmware_version"`
	BatteryLevel    *int      `json:"battery_level,omitempty"`
	IsRepeatingNode bool      `json:"is_repeating_node"`
	LastSeen        time.Time `json:"last_seen"`
	ExternalID      string    `json:"external_id,omitempty"`
	Sensors         []*Sensor `json:"sensors"`
}

// Sensor is one channel of a node. Data keeps the latest value per data type.
type Sensor struct {
	NodeID      int                     `json:"node_id"`
	ID          int                     `json:"sensor_id"`
	Type        SensorType              `json:"type"`
	Description string                  `json:"description"`
	ExternalID  string                  `json:"external_id,omitempty"`
	Invert      bool                    `json:"invert"`
	Remap       Remap                   `json:"remap"`
	History     HistoryPolicy           `json:"history"`
	Data        map[DataType]SensorData `json:"data"`
}

// Remap linearly maps native values in [FromMin, FromMax] to [ToMin, ToMax].
type Remap struct {
	Enabled bool    `json:"enabled"`
	FromMin float64 `json:"from_min"`
	FromMax float64 `json:"from_max"`
	ToMin   float64 `json:"to_min"`
	ToMax   float64 `json:"to_max"`
}

// HistoryPolicy tells history collaborators how a sensor's values are recorded.
// The gateway core only stores and forwards it.
type HistoryPolicy struct {
	Enabled         bool `json:"enabled"`
	EveryChange     bool `json:"every_change"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// SensorData is the latest value of one data type.
type SensorData struct {
	DataType  DataType  `json:"data_type"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Sensor returns the sensor with the given id.
func (n *Node) Sensor(id int) (*Sensor, bool) {
	for _, s := range n.Sensors {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// AddSensor appends an empty sensor with the given id and returns it.
// The caller must have checked that the id is not taken.
func (n *Node) AddSensor(id int) *Sensor {
	s := &Sensor{
		NodeID: n.ID,
		ID:     id,
		Data:   make(map[DataType]SensorData),
	}
	n.Sensors = append(n.Sensors, s)
	return s
}

// DeepCopy returns a copy sharing no memory with n.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	cpy := *n
	if n.BatteryLevel != nil {
		level := *n.BatteryLevel
		cpy.BatteryLevel = &level
	}
	if n.Sensors != nil {
		cpy.Sensors = make([]*Sensor, len(n.Sensors))
		for i, s := range n.Sensors {
			cpy.Sensors[i] = s.DeepCopy()
		}
	}
	return &cpy
}

// DeepCopy returns a copy sharing no memory with s.
func (s *Sensor) DeepCopy() *Sensor {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Data != nil {
		cpy.Data = make(map[DataType]SensorData, len(s.Data))
		for k, v := range s.Data {
			cpy.Data[k] = v
		}
	}
	return &cpy
}

// Latest returns the stored value for a data type.
func (s *Sensor) Latest(dt DataType) (SensorData, bool) {
	d, ok := s.Data[dt]
	return d, ok
}

// SetData overwrites the slot for d.DataType.
func (s *Sensor) SetData(d SensorData) {
	if s.Data == nil {
		s.Data = make(map[DataType]SensorData)
	}
	s.Data[d.DataType] = d
}

// DataTypes returns the data types with a stored value, in ascending order.
func (s *Sensor) DataTypes() []DataType {
	types := make([]DataType, 0, len(s.Data))
	for dt := range s.Data {
		types = append(types, dt)
	}
	slices.Sort(types)
	return types
}

// ValidNodeID reports whether id may name a registered node.
func ValidNodeID(id int) bool {
	return id >= 0 && id <= MaxNodeID
}
