package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/fancontrol-core/internal/dispatch"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Commands      *dispatch.Stats  `json:"commands,omitempty"`
	Telemetry     TelemetryMetrics `json:"telemetry"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// TelemetryMetrics contains observer pipeline statistics.
type TelemetryMetrics struct {
	Dropped           uint64 `json:"dropped"`
	MQTTConnected     bool   `json:"mqtt_connected"`
	InfluxWriteErrors uint64 `json:"influx_write_errors"`
}

// DatabaseMetrics contains journal connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, command loop and telemetry metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.commands != nil {
		stats := s.commands.Stats()
		metrics.Commands = &stats
	}
	if s.telemetry != nil {
		metrics.Telemetry.Dropped = s.telemetry.Dropped()
	}
	if s.mqtt != nil {
		metrics.Telemetry.MQTTConnected = s.mqtt.IsConnected()
	}
	if s.influx != nil {
		metrics.Telemetry.InfluxWriteErrors = s.influx.WriteErrors()
	}
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
