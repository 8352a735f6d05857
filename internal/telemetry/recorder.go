// Package telemetry fans command-loop events out to optional sinks: the
// override journal, MQTT and InfluxDB.
//
// Recorders observe; they never fail the command loop. Each implementation
// logs its own errors.
package telemetry

import (
	"context"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
)

// Recorder receives command-loop events.
type Recorder interface {
	// RecordReading is called after every GetValue.
	RecordReading(ctx context.Context, entry hardware.EntryInfo, value int32)
	// RecordControl is called after a successful SetValue.
	RecordControl(ctx context.Context, entry hardware.EntryInfo, value int32)
	// RecordAuto is called after a SetAuto that returned a control to
	// automatic mode.
	RecordAuto(ctx context.Context, entry hardware.EntryInfo)
}

// Logger interface for optional logging.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Nop discards every event.
type Nop struct{}

func (Nop) RecordReading(context.Context, hardware.EntryInfo, int32) {}
func (Nop) RecordControl(context.Context, hardware.EntryInfo, int32) {}
func (Nop) RecordAuto(context.Context, hardware.EntryInfo)           {}

// Multi forwards every event to each recorder in order.
type Multi []Recorder

func (m Multi) RecordReading(ctx context.Context, entry hardware.EntryInfo, value int32) {
	for _, r := range m {
		r.RecordReading(ctx, entry, value)
	}
}

func (m Multi) RecordControl(ctx context.Context, entry hardware.EntryInfo, value int32) {
	for _, r := range m {
		r.RecordControl(ctx, entry, value)
	}
}

func (m Multi) RecordAuto(ctx context.Context, entry hardware.EntryInfo) {
	for _, r := range m {
		r.RecordAuto(ctx, entry)
	}
}
