package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/fancontrol-core/internal/dispatch"
	"github.com/nerrad567/fancontrol-core/internal/hardware"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/logging"
	"github.com/nerrad567/fancontrol-core/internal/journal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// Hardware is the read-only view of the registry the endpoint serves.
type Hardware interface {
	Snapshot() []hardware.EntryInfo
	IsOverridden(index int) bool
}

// CommandStats reports the command loop counters.
type CommandStats interface {
	Stats() dispatch.Stats
}

// DropCounter reports telemetry events dropped under back-pressure.
type DropCounter interface {
	Dropped() uint64
}

// History is the journal as read by the endpoint.
type History interface {
	Overrides(ctx context.Context) ([]journal.Override, error)
	Sessions(ctx context.Context, limit int) ([]journal.Session, error)
	ListAudit(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// DBStats reports connection pool statistics.
type DBStats interface {
	Stats() sql.DBStats
}

// ConnState reports whether a client is connected.
type ConnState interface {
	IsConnected() bool
}

// WriteErrorCounter reports failed history writes.
type WriteErrorCounter interface {
	WriteErrors() uint64
}

// ShutdownState reports whether teardown has begun.
type ShutdownState interface {
	Triggered() bool
}

var (
	_ Hardware     = (*hardware.Registry)(nil)
	_ CommandStats = (*dispatch.Dispatcher)(nil)
	_ History      = (*journal.Journal)(nil)
)

// Deps holds the dependencies of the status server. Only Config, Logger and
// Hardware are required.
type Deps struct {
	Config    config.StatusConfig
	Logger    *logging.Logger
	Hardware  Hardware
	Commands  CommandStats
	Telemetry DropCounter
	Journal   History
	DB        DBStats
	MQTT      ConnState
	Influx    WriteErrorCounter
	Shutdown  ShutdownState
	SessionID string
	PeerPort  int
	Version   string
}

// Server is the HTTP status server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.StatusConfig
	logger    *logging.Logger
	hardware  Hardware
	commands  CommandStats
	telemetry DropCounter
	journal   History
	db        DBStats
	mqtt      ConnState
	influx    WriteErrorCounter
	shutdown  ShutdownState
	sessionID string
	peerPort  int
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a status server. It is not listening until Start is called.
//
// Parameters:
//   - deps: Server dependencies
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Hardware == nil {
		return nil, fmt.Errorf("hardware registry is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		hardware:  deps.Hardware,
		commands:  deps.Commands,
		telemetry: deps.Telemetry,
		journal:   deps.Journal,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.Influx,
		shutdown:  deps.Shutdown,
		sessionID: deps.SessionID,
		peerPort:  deps.PeerPort,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the configured address and serves in the background.
//
// Parameters:
//   - ctx: Context for the bind
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("binding status server %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("status server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the status server.
//
// Parameters:
//   - ctx: Bounds the wait for in-flight requests
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}
