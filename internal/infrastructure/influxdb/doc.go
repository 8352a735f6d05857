// Package influxdb provides InfluxDB connectivity for fancontrold.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, point writing and health monitoring.
//
// # Purpose
//
// Sensor readings served to the peer and control mode changes are kept as
// history, so a fan curve can be reviewed after the fact:
//
//	sensor_reading,entry_id=...,kind=Fan,name=... value=1180i
//	control_event,entry_id=... mode="manual",value=55i
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading(entry.ID, string(entry.Kind), entry.Name, value)
//
// # Error Handling
//
// Writes are non-blocking and batch errors are delivered to the callback
// set with SetOnError. Connection and health check errors are returned directly.
package influxdb
