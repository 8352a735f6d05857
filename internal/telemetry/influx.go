package telemetry

import (
	"context"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/influxdb"
)

// PointWriter is the subset of the InfluxDB client used by InfluxRecorder.
// Writes are batched by the client and never block.
type PointWriter interface {
	WriteReading(entryID, kind, name string, value int32)
	WriteControlEvent(entryID, mode string, value int32)
}

var _ PointWriter = (*influxdb.Client)(nil)

// InfluxRecorder keeps readings and control changes as history.
type InfluxRecorder struct {
	w PointWriter
}

var _ Recorder = (*InfluxRecorder)(nil)

// NewInflux creates a recorder writing through w.
func NewInflux(w PointWriter) *InfluxRecorder {
	return &InfluxRecorder{w: w}
}

func (r *InfluxRecorder) RecordReading(_ context.Context, entry hardware.EntryInfo, value int32) {
	r.w.WriteReading(entry.ID, string(entry.Kind), entry.Name, value)
}

func (r *InfluxRecorder) RecordControl(_ context.Context, entry hardware.EntryInfo, value int32) {
	r.w.WriteControlEvent(entry.ID, ModeManual, value)
}

func (r *InfluxRecorder) RecordAuto(_ context.Context, entry hardware.EntryInfo) {
	r.w.WriteControlEvent(entry.ID, ModeAuto, 0)
}
