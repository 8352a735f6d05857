package lifecycle

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// sinkTimeout bounds each sink during teardown.
const sinkTimeout = 5 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Releaser is the hardware registry's teardown.
type Releaser interface {
	Shutdown() error
}

// overrideLister is implemented by a Releaser that can report controls it
// failed to hand back to automatic mode.
type overrideLister interface {
	Overridden() []string
}

type unreleasedKey struct{}

// Unreleased returns the IDs of controls still overridden after the
// registry was released, as seen by a shutdown sink. It is empty when every
// control was restored.
func Unreleased(ctx context.Context) []string {
	ids, _ := ctx.Value(unreleasedKey{}).([]string)
	return ids
}

// SinkFunc releases one optional component during teardown.
type SinkFunc func(ctx context.Context, reason Reason) error

type sink struct {
	name string
	fn   SinkFunc
}

// Coordinator is the single-shot shutdown latch.
//
// Thread Safety:
//   - Trigger, Wait, Done and Reason are safe from any goroutine.
//   - Attach and AddSink should be called before the command loop starts.
type Coordinator struct {
	fired  atomic.Bool
	done   chan struct{}
	reason Reason // written by the winner before done is closed

	mu       sync.Mutex
	server   io.Closer
	registry Releaser
	sinks    []sink

	logger Logger
}

// NewCoordinator creates an untriggered coordinator.
func NewCoordinator(logger Logger) *Coordinator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Coordinator{
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Attach sets the server and registry to release. Either may be nil when
// startup failed before it existed.
func (c *Coordinator) Attach(server io.Closer, registry Releaser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.server = server
	c.registry = registry
}

// AddSink registers a component released after the registry, in
// registration order.
func (c *Coordinator) AddSink(name string, fn SinkFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sink{name: name, fn: fn})
}

// Trigger runs teardown if no other caller has. It returns true for the
// caller that won the latch; every other caller returns false at once
// without side effects.
func (c *Coordinator) Trigger(reason Reason) bool {
	if !c.fired.CompareAndSwap(false, true) {
		return false
	}
	c.reason = reason
	defer close(c.done)

	c.mu.Lock()
	server, registry := c.server, c.registry
	sinks := append([]sink(nil), c.sinks...)
	c.mu.Unlock()

	c.logger.Info("shutting down", "reason", string(reason))

	if server != nil {
		if err := server.Close(); err != nil {
			c.logger.Error("closing protocol server", "error", err)
		}
	}
	var unreleased []string
	if registry != nil {
		if err := registry.Shutdown(); err != nil {
			c.logger.Error("releasing hardware", "error", err)
		}
		if l, ok := registry.(overrideLister); ok {
			unreleased = l.Overridden()
		}
		if len(unreleased) > 0 {
			c.logger.Warn("controls left in manual mode", "ids", unreleased)
		}
	}
	for _, s := range sinks {
		c.runSink(s, reason, unreleased)
	}

	c.logger.Info("shutdown complete", "reason", string(reason))
	return true
}

func (c *Coordinator) runSink(s sink, reason Reason, unreleased []string) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if len(unreleased) > 0 {
		ctx = context.WithValue(ctx, unreleasedKey{}, unreleased)
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("shutdown sink panicked", "sink", s.name, "panic", r)
		}
	}()

	if err := s.fn(ctx, reason); err != nil {
		c.logger.Warn("shutdown sink failed", "sink", s.name, "error", err)
		return
	}
	c.logger.Debug("shutdown sink released", "sink", s.name)
}

// Wait blocks until the winning Trigger has finished teardown.
func (c *Coordinator) Wait() {
	<-c.done
}

// Done is closed once teardown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Triggered reports whether the latch has been taken.
func (c *Coordinator) Triggered() bool {
	return c.fired.Load()
}

// Reason returns the winning trigger once teardown has finished, and
// ReasonNone before that.
func (c *Coordinator) Reason() Reason {
	select {
	case <-c.done:
		return c.reason
	default:
		return ReasonNone
	}
}

// Watch triggers shutdown on the first signal received and returns once
// teardown is done, whoever triggered it.
func (c *Coordinator) Watch(signals <-chan os.Signal) {
	select {
	case sig := <-signals:
		c.logger.Info("signal received", "signal", sig.String())
		c.Trigger(ReasonForSignal(sig))
	case <-c.done:
	}
}
