package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
	"github.com/nerrad567/fancontrol-core/internal/journal"
	"github.com/nerrad567/fancontrol-core/internal/protocol"
)

// Journal is the override journal as used during startup.
type Journal interface {
	StaleOverrides(ctx context.Context) ([]journal.Override, error)
	ClearStale(ctx context.Context, stale []journal.Override) (int, error)
	BeginSession(ctx context.Context, port int, backend string) (string, error)
}

var _ Journal = (*journal.Journal)(nil)

// Deps holds everything Start needs.
type Deps struct {
	// Protocol is the listening configuration.
	Protocol protocol.Config

	// Source is the hardware collaborator.
	Source hardware.Source

	// Backend names the collaborator for the journal session.
	Backend string

	// Journal enables stale-override recovery and session records. Optional.
	Journal Journal

	// Sinks are released after the registry, in order.
	Sinks []NamedSink

	// Listening is called with the bound port before accepting. Optional.
	Listening func(port int)

	// Encode serialises the initial snapshot. Default: protocol.EncodeJSON.
	Encode func(v any) ([]byte, error)

	// Logger is used by startup, the server, the registry and the coordinator.
	Logger Logger
}

// NamedSink is a shutdown sink with a name for logging.
type NamedSink struct {
	Name string
	Fn   SinkFunc
}

// Session is a started daemon: a handshaken peer, a built registry and the
// coordinator that will tear both down.
type Session struct {
	Server    *protocol.Server
	Registry  *hardware.Registry
	Shutdown  *Coordinator
	SessionID string

	logger Logger
}

// Start brings up the peer connection and the hardware registry
// concurrently, then sends the initial snapshot.
//
// If either side fails, the other is cancelled and awaited, whatever was
// built is torn down through the coordinator, and the error is returned
// wrapped with ErrStartup. A cancelled ctx tears down with ReasonInterrupt.
//
// Parameters:
//   - ctx: Cancelled on an interrupt during startup
//   - deps: Startup dependencies
//
// Returns:
//   - *Session: Ready for the command loop
//   - error: Wraps ErrStartup, or ErrSnapshot when the snapshot fails
func Start(ctx context.Context, deps Deps) (*Session, error) {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	encode := deps.Encode
	if encode == nil {
		encode = protocol.EncodeJSON
	}

	coord := NewCoordinator(logger)
	for _, s := range deps.Sinks {
		coord.AddSink(s.Name, s.Fn)
	}

	var (
		srv *protocol.Server
		reg *hardware.Registry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := protocol.Listen(gctx, deps.Protocol)
		if err != nil {
			return err
		}
		s.SetLogger(logger)
		srv = s
		logger.Info("protocol server listening", "address", s.Addr())
		if deps.Listening != nil {
			deps.Listening(s.Port())
		}
		if err := s.Accept(gctx); err != nil {
			return err
		}
		// A failed registry build cancels gctx but leaves a connected peer's
		// handshake to finish; only an interrupt cuts it short.
		return s.Handshake(ctx)
	})
	g.Go(func() error {
		r, err := hardware.Build(gctx, deps.Source, logger)
		if err != nil {
			logger.Error("hardware registry build failed", "error", err)
			return err
		}
		reg = r
		logger.Info("hardware registry built", "entries", r.Len())
		return nil
	})

	err := g.Wait()
	attach(coord, srv, reg)
	if err != nil {
		reason := ReasonFailure
		if ctx.Err() != nil {
			reason = ReasonInterrupt
		}
		coord.Trigger(reason)
		return nil, fmt.Errorf("%w: %w", ErrStartup, err)
	}

	sess := &Session{
		Server:   srv,
		Registry: reg,
		Shutdown: coord,
		logger:   logger,
	}

	if deps.Journal != nil {
		sess.SessionID = recoverStale(ctx, deps.Journal, reg, srv.Port(), deps.Backend, logger)
	}

	payload, err := encode(reg.InitialSnapshot())
	if err != nil {
		coord.Trigger(ReasonFailure)
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	if err := srv.SendFrame(payload); err != nil {
		coord.Trigger(ReasonFailure)
		return nil, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	logger.Debug("initial snapshot sent", "bytes", len(payload))

	return sess, nil
}

// attach hands the coordinator whichever of server and registry exist.
func attach(coord *Coordinator, srv *protocol.Server, reg *hardware.Registry) {
	var (
		closer   io.Closer
		releaser Releaser
	)
	if srv != nil {
		closer = srv
	}
	if reg != nil {
		releaser = reg
	}
	coord.Attach(closer, releaser)
}

// recoverStale resets controls a crashed run left overridden, clears their
// journal rows and opens this run's session. Journal failures are logged;
// they never stop startup.
func recoverStale(ctx context.Context, j Journal, reg *hardware.Registry, port int, backend string, logger Logger) string {
	stale, err := j.StaleOverrides(ctx)
	if err != nil {
		logger.Warn("reading stale overrides failed", "error", err)
	}
	if len(stale) > 0 {
		ids := make([]string, len(stale))
		for i, o := range stale {
			ids[i] = o.EntryID
		}
		reset := reg.ResetStale(ids)
		logger.Info("reset stale overrides", "found", len(stale), "reset", reset)
	}

	sessionID, err := j.BeginSession(ctx, port, backend)
	if err != nil {
		logger.Warn("opening journal session failed", "error", err)
	}

	if len(stale) > 0 {
		if _, err := j.ClearStale(ctx, stale); err != nil {
			logger.Warn("clearing stale overrides failed", "error", err)
		}
	}
	return sessionID
}

// Loop is the command loop run by Session.Run.
type Loop interface {
	Loop(ctx context.Context) error
}

// Run drives loop until it returns, triggers shutdown and waits for
// teardown to finish.
//
// A loop that returns nil triggers ReasonCommand; an error triggers
// ReasonFailure. If a signal won the latch first, the loop's error is the
// expected result of the socket closing and Run returns nil.
func (s *Session) Run(ctx context.Context, loop Loop) error {
	loopErr := loop.Loop(ctx)

	reason := ReasonCommand
	if loopErr != nil {
		reason = ReasonFailure
	}
	if !s.Shutdown.Trigger(reason) {
		s.logger.Debug("shutdown already in progress", "loop_error", loopErr)
	}
	s.Shutdown.Wait()

	if s.Shutdown.Reason().Graceful() {
		return nil
	}
	if loopErr == nil {
		loopErr = errors.New("shutdown after failure")
	}
	return loopErr
}
