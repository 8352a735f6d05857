// Package dispatch runs the command loop: it reads command codes from the
// peer, applies them to the hardware registry and writes responses.
//
// The loop is the only user of the connection and the registry while a
// session is live. Any error ends the session; the caller decides the
// shutdown reason from what Loop returns.
package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
	"github.com/nerrad567/fancontrol-core/internal/protocol"
	"github.com/nerrad567/fancontrol-core/internal/telemetry"
)

// Conn is the framed connection to the peer.
type Conn interface {
	RecvInt32() (int32, error)
	SendInt32(v int32) error
	SendJSON(v any) error
}

// Registry is the hardware registry as seen by the command loop.
type Registry interface {
	Snapshot() []hardware.EntryInfo
	Entry(index int) (hardware.EntryInfo, error)
	GetValue(index int) (int32, error)
	SetValue(index int, value int32) error
	SetAuto(index int) error
	IsOverridden(index int) bool
	RefreshLiveValues(ctx context.Context) error
}

var (
	_ Conn     = (*protocol.Server)(nil)
	_ Registry = (*hardware.Registry)(nil)
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// numCommands is the number of known command codes.
const numCommands = int(protocol.CmdUpdate) + 1

// Stats is a point-in-time copy of the loop counters.
type Stats struct {
	Commands map[string]uint64 `json:"commands"`
	Unknown  uint64            `json:"unknown"`
	Failures uint64            `json:"failures"`
	Since    time.Time         `json:"since"`
}

// Dispatcher executes peer commands against the registry.
type Dispatcher struct {
	conn     Conn
	registry Registry
	recorder telemetry.Recorder
	logger   Logger

	counts   [numCommands]atomic.Uint64
	unknown  atomic.Uint64
	failures atomic.Uint64
	since    time.Time
}

// New creates a dispatcher for one session.
func New(conn Conn, registry Registry) *Dispatcher {
	return &Dispatcher{
		conn:     conn,
		registry: registry,
		recorder: telemetry.Nop{},
		logger:   noopLogger{},
		since:    time.Now(),
	}
}

// SetRecorder sets the observer notified after successful operations.
func (d *Dispatcher) SetRecorder(r telemetry.Recorder) {
	if r == nil {
		r = telemetry.Nop{}
	}
	d.recorder = r
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// Loop reads and executes commands until the peer sends Shutdown, which
// returns nil, or until any error occurs.
//
// Errors:
//   - read or write failures from the connection
//   - ErrUnknownCommand for codes outside the protocol, negative ones included, with no reply
//   - ErrProtocolViolation for a negative index or value
//   - registry errors, wrapped with the command name
func (d *Dispatcher) Loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		code, err := d.conn.RecvInt32()
		if err != nil {
			return fmt.Errorf("reading command: %w", err)
		}

		cmd := protocol.Command(code)
		if code < 0 || int(code) >= numCommands {
			d.unknown.Add(1)
			d.logger.Error("unknown command", "code", code)
			return fmt.Errorf("%w: %d", ErrUnknownCommand, code)
		}
		d.counts[code].Add(1)
		d.logger.Debug("command received", "command", cmd.String())

		if cmd == protocol.CmdShutdown {
			return nil
		}

		if err := d.execute(ctx, cmd); err != nil {
			d.failures.Add(1)
			d.logger.Error("command failed", "command", cmd.String(), "error", err)
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, cmd protocol.Command) error {
	switch cmd {
	case protocol.CmdGetHardware:
		return d.conn.SendJSON(d.registry.Snapshot())

	case protocol.CmdSetAuto:
		index, err := d.recvArg("index")
		if err != nil {
			return err
		}
		wasOverridden := d.registry.IsOverridden(index)
		if err := d.registry.SetAuto(index); err != nil {
			return err
		}
		if wasOverridden {
			d.observe(index, func(e hardware.EntryInfo) { d.recorder.RecordAuto(ctx, e) })
		}
		return nil

	case protocol.CmdSetValue:
		index, err := d.recvArg("index")
		if err != nil {
			return err
		}
		value, err := d.recvArg("value")
		if err != nil {
			return err
		}
		if err := d.registry.SetValue(index, int32(value)); err != nil {
			return err
		}
		d.observe(index, func(e hardware.EntryInfo) { d.recorder.RecordControl(ctx, e, int32(value)) })
		return nil

	case protocol.CmdGetValue:
		index, err := d.recvArg("index")
		if err != nil {
			return err
		}
		value, err := d.registry.GetValue(index)
		if err != nil {
			return err
		}
		if err := d.conn.SendInt32(value); err != nil {
			return err
		}
		d.observe(index, func(e hardware.EntryInfo) { d.recorder.RecordReading(ctx, e, value) })
		return nil

	case protocol.CmdUpdate:
		return d.registry.RefreshLiveValues(ctx)
	}

	return fmt.Errorf("%w: %d", ErrUnknownCommand, int32(cmd))
}

// recvArg reads one non-negative integer argument.
func (d *Dispatcher) recvArg(name string) (int, error) {
	v, err := d.conn.RecvInt32()
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative %s %d", ErrProtocolViolation, name, v)
	}
	return int(v), nil
}

func (d *Dispatcher) observe(index int, fn func(hardware.EntryInfo)) {
	e, err := d.registry.Entry(index)
	if err != nil {
		return
	}
	fn(e)
}

// Stats returns a copy of the loop counters. Safe to call from any goroutine.
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Commands: make(map[string]uint64, numCommands),
		Unknown:  d.unknown.Load(),
		Failures: d.failures.Load(),
		Since:    d.since,
	}
	for i := range d.counts {
		s.Commands[protocol.Command(i).String()] = d.counts[i].Load()
	}
	return s
}
