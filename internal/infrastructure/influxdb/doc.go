// Package influxdb records sensor history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library: connection
// management, batched non-blocking writes and health checks.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorValue(influxdb.SensorPoint{
//	    NodeID: 7, SensorID: 2, SensorType: "S_TEMP", DataType: "V_TEMP", Value: "21.5",
//	})
//
// # Error Handling
//
// Writes are batched according to batch_size and flush_interval. Their
// errors arrive asynchronously through SetOnError. Connection and health
// check errors are returned directly.
package influxdb
