package influxdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SensorMeasurement is the measurement sensor values are written to.
const SensorMeasurement = "sensor_data"

// SensorPoint is one recorded sensor value.
type SensorPoint struct {
	NodeID     int
	SensorID   int
	SensorType string // S_* name
	DataType   string // V_* name
	Value      string
	Timestamp  time.Time

	// ExternalID is the persistence key of the sensor, if it has one.
	ExternalID string
}

// NewSensorPoint builds the line-protocol point for p.
//
// Numeric values are stored in the float field "value"; anything else goes
// to the string field "state" so a single series never mixes field types.
func NewSensorPoint(p SensorPoint) *write.Point {
	tags := map[string]string{
		"node_id":     strconv.Itoa(p.NodeID),
		"sensor_id":   strconv.Itoa(p.SensorID),
		"sensor_type": p.SensorType,
		"data_type":   p.DataType,
	}
	if p.ExternalID != "" {
		tags["external_id"] = p.ExternalID
	}

	fields := make(map[string]interface{}, 1)
	if v, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64); err == nil {
		fields["value"] = v
	} else {
		fields["state"] = p.Value
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(SensorMeasurement, tags, fields, ts)
}

// WriteSensorValue queues one sensor value. The write is non-blocking; the
// point is batched and sent asynchronously.
func (c *Client) WriteSensorValue(p SensorPoint) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(NewSensorPoint(p))
}
