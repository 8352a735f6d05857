package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the listening configuration.
type Config struct {
	// Address is the bind address. Default: DefaultAddress.
	Address string

	// Port is the first port tried. Default: DefaultPort.
	Port int

	// MaxPort is the last port tried. Default: MaxPort.
	MaxPort int
}

// Server owns the listening socket and the single peer connection.
//
// Thread Safety:
//   - Close may be called from any goroutine, including while another
//     goroutine is blocked in Accept or RecvInt32; it unblocks them.
//   - Frame operations are meant for a single goroutine.
type Server struct {
	cfg      Config
	listener net.Listener
	port     int

	mu     sync.Mutex
	conn   net.Conn
	closed bool

	logger Logger
}

// Listen binds the first free port starting at cfg.Port.
//
// A port that is already in use is skipped. Any other bind error is fatal.
//
// Parameters:
//   - ctx: Context for cancellation between bind attempts
//   - cfg: Listening configuration
//
// Returns:
//   - *Server: Bound server, not yet accepting
//   - error: ErrNoPortAvailable when the range is exhausted, ErrBindFailed otherwise
func Listen(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxPort == 0 {
		cfg.MaxPort = MaxPort
	}

	var lc net.ListenConfig
	for port := cfg.Port; port <= cfg.MaxPort; port++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		addr := net.JoinHostPort(cfg.Address, strconv.Itoa(port))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return &Server{
				cfg:      cfg,
				listener: ln,
				port:     ln.Addr().(*net.TCPAddr).Port,
				logger:   noopLogger{},
			}, nil
		}
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrBindFailed, addr, err)
		}
	}

	return nil, fmt.Errorf("%w: %s:%d-%d", ErrNoPortAvailable, cfg.Address, cfg.Port, cfg.MaxPort)
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.port))
}

// Accept waits for exactly one peer and then closes the listener so no
// second peer can connect.
//
// Cancelling ctx closes the listener and returns ctx.Err().
func (s *Server) Accept(ctx context.Context) error {
	s.logger.Info("waiting for peer", "address", s.Addr())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.listener.Close() //nolint:errcheck // unblocks Accept
		case <-stop:
		}
	}()

	conn, err := s.listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrAcceptFailed, err)
	}
	s.listener.Close() //nolint:errcheck // single peer only

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close() //nolint:errcheck // torn down while accepting
		return fmt.Errorf("%w: %w", ErrAcceptFailed, net.ErrClosed)
	}
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("peer connected", "remote", conn.RemoteAddr().String())
	return nil
}

// Handshake reads the peer's check message and answers with OkMessage.
//
// Reads continue until len(CheckMessage) bytes have arrived, so a message
// split across segments is accepted. Each read may take one byte more than
// the message: bytes that differ, bytes past the message in the same read,
// or EOF before the message is complete all fail with ErrHandshakeFailed.
//
// Cancelling ctx unblocks a peer that connected but never sent its check
// message; Handshake then returns ctx.Err().
func (s *Server) Handshake(ctx context.Context) error {
	conn, err := s.peer()
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Unix(1, 0)) //nolint:errcheck // unblocks the read
		case <-stop:
		}
	}()

	err = readCheck(conn)
	close(stop)
	<-exited
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return err
	}

	if err := s.SendFrame([]byte(OkMessage)); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	s.logger.Debug("handshake complete")
	return nil
}

// readCheck reads CheckMessage from r, failing on the first wrong byte.
func readCheck(r io.Reader) error {
	buf := make([]byte, len(CheckMessage)+1)
	got := 0
	for got < len(CheckMessage) {
		n, err := r.Read(buf[got:])
		got += n
		if got > len(CheckMessage) || string(buf[:got]) != CheckMessage[:got] {
			return fmt.Errorf("%w: received %q", ErrHandshakeFailed, buf[:got])
		}
		if err != nil {
			return fmt.Errorf("%w: after %d bytes: %w", ErrHandshakeFailed, got, err)
		}
	}
	return nil
}

// SendFrame writes b in full.
func (s *Server) SendFrame(b []byte) error {
	conn, err := s.peer()
	if err != nil {
		return err
	}

	n, err := conn.Write(b)
	if err != nil {
		return fmt.Errorf("%w: wrote %d of %d bytes: %w", ErrShortWrite, n, len(b), err)
	}
	if n != len(b) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(b))
	}
	return nil
}

// EncodeJSON marshals v into a newline-terminated frame.
func EncodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return append(data, FrameDelimiter), nil
}

// SendJSON marshals v and writes it as a newline-terminated frame.
func (s *Server) SendJSON(v any) error {
	frame, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	return s.SendFrame(frame)
}

// SendInt32 writes v as a 4-byte little-endian integer.
func (s *Server) SendInt32(v int32) error {
	return s.SendFrame(EncodeInt32(v))
}

// RecvInt32 blocks until exactly four bytes arrive. There is no timeout;
// Close unblocks a pending read.
func (s *Server) RecvInt32() (int32, error) {
	conn, err := s.peer()
	if err != nil {
		return 0, err
	}

	var buf [Int32Size]byte
	if _, err := io.ReadFull(conn, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	return DecodeInt32(buf[:]), nil
}

// Close closes the peer connection and the listener. It is safe to call
// more than once and from any goroutine.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	var errs []error
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("closing peer connection: %w", err))
		}
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("closing listener: %w", err))
	}

	s.logger.Info("protocol server closed")
	return errors.Join(errs...)
}

func (s *Server) peer() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
