package lifecycle

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
	"github.com/nerrad567/fancontrol-core/internal/hardware/fake"
	"github.com/nerrad567/fancontrol-core/internal/journal"
	"github.com/nerrad567/fancontrol-core/internal/protocol"
)

// freePort returns a loopback port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() //nolint:errcheck // only the port number is needed
	return port
}

// waitBuilt blocks until the registry build has polled the source, after
// which Build can no longer be cancelled.
func waitBuilt(t *testing.T, src *fake.Source) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for src.Polls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("registry build never polled the source")
		}
		time.Sleep(time.Millisecond)
	}
}

type startResult struct {
	sess *Session
	err  error
}

// startAsync runs Start in the background and returns the bound port once
// the server is listening.
func startAsync(t *testing.T, ctx context.Context, deps Deps) (<-chan startResult, <-chan int) {
	t.Helper()
	port := freePort(t)
	deps.Protocol = protocol.Config{Address: "127.0.0.1", Port: port, MaxPort: port}

	ports := make(chan int, 1)
	deps.Listening = func(p int) { ports <- p }

	results := make(chan startResult, 1)
	go func() {
		sess, err := Start(ctx, deps)
		results <- startResult{sess: sess, err: err}
	}()
	return results, ports
}

func dialPeer(t *testing.T, ports <-chan int) *protocol.Client {
	t.Helper()
	var port int
	select {
	case port = <-ports:
	case <-time.After(5 * time.Second):
		t.Fatal("server never started listening")
	}
	client, err := protocol.Dial(context.Background(), net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func waitResult(t *testing.T, results <-chan startResult) startResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return")
		return startResult{}
	}
}

// reasonSink records the reason it was released with.
type reasonSink struct {
	mu     sync.Mutex
	reason Reason
	calls  int
}

func (s *reasonSink) sink() NamedSink {
	return NamedSink{Name: "test", Fn: func(_ context.Context, r Reason) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.reason = r
		s.calls++
		return nil
	}}
}

func (s *reasonSink) get() (Reason, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason, s.calls
}

type loopFunc func(ctx context.Context) error

func (f loopFunc) Loop(ctx context.Context) error { return f(ctx) }

func TestStart_SendsSnapshotAndRuns(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	sink := &reasonSink{}
	results, ports := startAsync(t, context.Background(), Deps{Source: src, Sinks: []NamedSink{sink.sink()}})

	client := dialPeer(t, ports)
	if err := client.Handshake(); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	var entries []hardware.EntryInfo
	if err := client.ReadSnapshot(&entries); err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}

	r := waitResult(t, results)
	if r.err != nil {
		t.Fatalf("Start() error = %v", r.err)
	}

	if len(entries) != 6 {
		t.Fatalf("snapshot entries = %d, want 6", len(entries))
	}
	for i, e := range entries {
		if e.Index != i {
			t.Errorf("entry %d has index %d", i, e.Index)
		}
		if e.Value == nil {
			t.Errorf("entry %s has no value in the initial snapshot", e.ID)
		}
	}
	if entries[0].Kind != hardware.KindControl || *entries[0].Value != 40 {
		t.Errorf("entry 0 = %+v", entries[0])
	}

	err := r.sess.Run(context.Background(), loopFunc(func(context.Context) error { return nil }))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if r.sess.Shutdown.Reason() != ReasonCommand {
		t.Errorf("Reason() = %q, want command", r.sess.Shutdown.Reason())
	}
	if src.Closes() != 1 {
		t.Errorf("collaborator closes = %d, want 1", src.Closes())
	}
	if reason, calls := sink.get(); reason != ReasonCommand || calls != 1 {
		t.Errorf("sink released with %q %d times", reason, calls)
	}
	if _, err := client.ReadFrame(); err == nil {
		t.Error("connection still open after shutdown")
	}
}

func TestStart_BuildFailureCancelsAccept(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	src.OpenErr = errors.New("driver missing")
	sink := &reasonSink{}

	results, _ := startAsync(t, context.Background(), Deps{Source: src, Sinks: []NamedSink{sink.sink()}})

	// Nobody connects; the failed build must abort the pending accept.
	r := waitResult(t, results)
	if !errors.Is(r.err, ErrStartup) || !errors.Is(r.err, hardware.ErrRegistryBuild) {
		t.Fatalf("Start() error = %v, want ErrStartup wrapping ErrRegistryBuild", r.err)
	}
	if r.sess != nil {
		t.Error("Start() returned a session on failure")
	}
	if reason, calls := sink.get(); reason != ReasonFailure || calls != 1 {
		t.Errorf("sink released with %q %d times", reason, calls)
	}
}

func TestStart_HandshakeFailureReleasesRegistry(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	results, ports := startAsync(t, context.Background(), Deps{Source: src})

	client := dialPeer(t, ports)
	waitBuilt(t, src)
	if err := client.Send(0x7a7a7a7a); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	r := waitResult(t, results)
	if !errors.Is(r.err, ErrStartup) || !errors.Is(r.err, protocol.ErrHandshakeFailed) {
		t.Fatalf("Start() error = %v, want ErrStartup wrapping ErrHandshakeFailed", r.err)
	}
	if src.Closes() != 1 {
		t.Errorf("collaborator closes = %d, want 1", src.Closes())
	}
}

func TestStart_InterruptDuringStartup(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	sink := &reasonSink{}
	ctx, cancel := context.WithCancel(context.Background())

	results, ports := startAsync(t, ctx, Deps{Source: src, Sinks: []NamedSink{sink.sink()}})
	<-ports
	waitBuilt(t, src)
	cancel()

	r := waitResult(t, results)
	if !errors.Is(r.err, ErrStartup) || !errors.Is(r.err, context.Canceled) {
		t.Fatalf("Start() error = %v, want ErrStartup wrapping context.Canceled", r.err)
	}
	if reason, _ := sink.get(); reason != ReasonInterrupt {
		t.Errorf("sink reason = %q, want interrupt", reason)
	}
	if src.Closes() != 1 {
		t.Errorf("collaborator closes = %d, want 1", src.Closes())
	}
}

func TestStart_InterruptDuringHandshake(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	sink := &reasonSink{}
	ctx, cancel := context.WithCancel(context.Background())

	results, ports := startAsync(t, ctx, Deps{Source: src, Sinks: []NamedSink{sink.sink()}})

	// The peer connects but never sends its check message.
	client := dialPeer(t, ports)
	waitBuilt(t, src)
	time.Sleep(20 * time.Millisecond)
	cancel()

	r := waitResult(t, results)
	if !errors.Is(r.err, ErrStartup) || !errors.Is(r.err, context.Canceled) {
		t.Fatalf("Start() error = %v, want ErrStartup wrapping context.Canceled", r.err)
	}
	if reason, _ := sink.get(); reason != ReasonInterrupt {
		t.Errorf("sink reason = %q, want interrupt", reason)
	}

	client.Conn().SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // Test only
	if _, err := client.RecvInt32(); err == nil {
		t.Error("peer connection still open after an interrupted handshake")
	}
}

func TestStart_SnapshotFailureSendsNothing(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	sink := &reasonSink{}
	results, ports := startAsync(t, context.Background(), Deps{
		Source: src,
		Sinks:  []NamedSink{sink.sink()},
		Encode: func(any) ([]byte, error) { return nil, errors.New("unencodable") },
	})

	client := dialPeer(t, ports)
	if err := client.Handshake(); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}

	r := waitResult(t, results)
	if !errors.Is(r.err, ErrSnapshot) {
		t.Fatalf("Start() error = %v, want ErrSnapshot", r.err)
	}
	if _, err := client.ReadFrame(); err == nil {
		t.Error("received a frame after snapshot failure")
	}
	if reason, _ := sink.get(); reason != ReasonFailure {
		t.Errorf("sink reason = %q, want failure", reason)
	}
	if src.Closes() != 1 {
		t.Errorf("collaborator closes = %d, want 1", src.Closes())
	}
}

// mockJournal records the startup journal calls.
type mockJournal struct {
	stale      []journal.Override
	staleErr   error
	cleared    []journal.Override
	beginPort  int
	beginCalls int
}

func (m *mockJournal) StaleOverrides(context.Context) ([]journal.Override, error) {
	return m.stale, m.staleErr
}

func (m *mockJournal) ClearStale(_ context.Context, stale []journal.Override) (int, error) {
	m.cleared = stale
	return len(stale), nil
}

func (m *mockJournal) BeginSession(_ context.Context, port int, _ string) (string, error) {
	m.beginPort = port
	m.beginCalls++
	return "session-1", nil
}

func TestStart_ResetsStaleOverrides(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	j := &mockJournal{stale: []journal.Override{
		{EntryID: "/fake/sio/control/0", Value: 90, SessionID: "crashed"},
		{EntryID: "/gone/control/0", Value: 10, SessionID: "crashed"},
	}}

	results, ports := startAsync(t, context.Background(), Deps{Source: src, Journal: j, Backend: "fake"})
	client := dialPeer(t, ports)
	if err := client.Handshake(); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	var entries []hardware.EntryInfo
	if err := client.ReadSnapshot(&entries); err != nil {
		t.Fatalf("ReadSnapshot() error = %v", err)
	}

	r := waitResult(t, results)
	if r.err != nil {
		t.Fatalf("Start() error = %v", r.err)
	}
	defer r.sess.Shutdown.Trigger(ReasonCommand)

	if got := src.Sensor("/fake/sio/control/0").Defaults(); got != 1 {
		t.Errorf("stale control SetDefault calls = %d, want 1", got)
	}
	if got := src.Sensor("/fake/cpu/control/0").Defaults(); got != 0 {
		t.Errorf("untouched control SetDefault calls = %d, want 0", got)
	}
	if len(j.cleared) != 2 {
		t.Errorf("cleared = %+v, want both stale rows", j.cleared)
	}
	if j.beginCalls != 1 || j.beginPort != r.sess.Server.Port() || r.sess.SessionID != "session-1" {
		t.Errorf("BeginSession calls = %d port = %d session = %q", j.beginCalls, j.beginPort, r.sess.SessionID)
	}
}

func TestStart_JournalErrorsDoNotStopStartup(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	j := &mockJournal{staleErr: errors.New("database is locked")}

	results, ports := startAsync(t, context.Background(), Deps{Source: src, Journal: j})
	client := dialPeer(t, ports)
	if err := client.Handshake(); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}

	r := waitResult(t, results)
	if r.err != nil {
		t.Fatalf("Start() error = %v", r.err)
	}
	r.sess.Shutdown.Trigger(ReasonCommand)
	if j.beginCalls != 1 {
		t.Errorf("BeginSession calls = %d, want 1", j.beginCalls)
	}
}

func TestRun_LoopFailure(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	results, ports := startAsync(t, context.Background(), Deps{Source: src})
	client := dialPeer(t, ports)
	if err := client.Handshake(); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}

	r := waitResult(t, results)
	if r.err != nil {
		t.Fatalf("Start() error = %v", r.err)
	}

	loopErr := errors.New("unknown command")
	err := r.sess.Run(context.Background(), loopFunc(func(context.Context) error { return loopErr }))
	if !errors.Is(err, loopErr) {
		t.Fatalf("Run() error = %v, want %v", err, loopErr)
	}
	if r.sess.Shutdown.Reason() != ReasonFailure {
		t.Errorf("Reason() = %q, want failure", r.sess.Shutdown.Reason())
	}
}

func TestRun_SignalDuringLoopIsGraceful(t *testing.T) {
	src := fake.New(fake.DefaultLayout())
	results, ports := startAsync(t, context.Background(), Deps{Source: src})
	client := dialPeer(t, ports)
	if err := client.Handshake(); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}

	r := waitResult(t, results)
	if r.err != nil {
		t.Fatalf("Start() error = %v", r.err)
	}
	sess := r.sess

	// The loop blocks on a read until the interrupt closes the socket.
	loop := loopFunc(func(context.Context) error {
		go sess.Shutdown.Trigger(ReasonInterrupt)
		_, err := sess.Server.RecvInt32()
		return err
	})

	if err := sess.Run(context.Background(), loop); err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if sess.Shutdown.Reason() != ReasonInterrupt {
		t.Errorf("Reason() = %q, want interrupt", sess.Shutdown.Reason())
	}
	if src.Closes() != 1 {
		t.Errorf("collaborator closes = %d, want 1", src.Closes())
	}
}
