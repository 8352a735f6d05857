// Package api implements the loopback HTTP status endpoint.
//
// The endpoint is read-only. It reports the hardware inventory and which
// controls are overridden, the command loop counters, telemetry health and,
// when the journal is enabled, the override and audit history. It never
// reads live sensor values, so it never competes with the command loop for
// the hardware collaborator.
//
// Routes (all under /api/v1):
//   - GET /health
//   - GET /hardware
//   - GET /hardware/{index}
//   - GET /metrics
//   - GET /overrides
//   - GET /sessions
//   - GET /audit
//
// The server binds loopback only and is off unless status.enabled is set.
package api
