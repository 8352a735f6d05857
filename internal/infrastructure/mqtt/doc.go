// Package mqtt provides MQTT client connectivity for fancontrold telemetry.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Topic naming under a configurable prefix
//
// The daemon only publishes. Readings, control overrides and the retained
// hardware snapshot are mirrored so dashboards can follow the fan curve
// without speaking the peer protocol.
//
//	fancontrold → MQTT Broker → dashboards, home automation
//
// # Topics
//
//	<prefix>/state/<kind>/<entry>    sensor readings
//	<prefix>/control/<entry>         override changes
//	<prefix>/hardware                identity snapshot (retained)
//	<prefix>/system/status           online/offline (retained, LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishRetained(client.Topics().Hardware(), snapshot)
package mqtt
