// Package lifecycle coordinates daemon startup and shutdown.
//
// Start races two tasks: binding, accepting and handshaking the single peer,
// and building the hardware registry. The first failure cancels the other.
// Once both succeed it recovers overrides left by a crashed run, opens a
// journal session and sends the initial hardware snapshot.
//
// Coordinator is the single-shot teardown. Every exit path calls Trigger:
// the command loop returning, an interrupt signal, the session ending, or a
// fatal error. Only the first caller tears down, in a fixed order:
//
//  1. Close the protocol server, which unblocks any pending read
//  2. Shut down the hardware registry, returning every control to automatic
//  3. Run the registered sinks in order (telemetry drain, journal, MQTT, InfluxDB)
//
// Usage:
//
//	sess, err := lifecycle.Start(ctx, lifecycle.Deps{
//	    Protocol: protocol.Config{Address: "127.0.0.1", Port: 55555},
//	    Source:   source,
//	    Logger:   log,
//	})
//	if err != nil {
//	    return err
//	}
//	go sess.Shutdown.Watch(signals)
//	return sess.Run(ctx, dispatcher)
package lifecycle
