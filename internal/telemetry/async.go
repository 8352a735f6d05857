package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
)

// defaultQueueSize is the event buffer used when none is given.
const defaultQueueSize = 256

type eventKind int

const (
	eventReading eventKind = iota
	eventControl
	eventAuto
)

type event struct {
	kind  eventKind
	entry hardware.EntryInfo
	value int32
}

// Async decouples a slow Recorder (one that waits on the network) from the
// command loop. Events are queued and delivered by a single worker in
// order; when the queue is full the event is dropped and counted.
type Async struct {
	next   Recorder
	queue  chan event
	logger Logger

	dropped atomic.Uint64

	// mu guards closed and the close of queue against concurrent senders.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Ensure Async implements Recorder.
var _ Recorder = (*Async)(nil)

// NewAsync starts a worker delivering events to next.
func NewAsync(next Recorder, size int, logger Logger) *Async {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	a := &Async{
		next:   next,
		queue:  make(chan event, size),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	ctx := context.Background()
	for ev := range a.queue {
		a.deliver(ctx, ev)
	}
}

func (a *Async) deliver(ctx context.Context, ev event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("telemetry recorder panic recovered", "panic", r)
		}
	}()

	switch ev.kind {
	case eventReading:
		a.next.RecordReading(ctx, ev.entry, ev.value)
	case eventControl:
		a.next.RecordControl(ctx, ev.entry, ev.value)
	case eventAuto:
		a.next.RecordAuto(ctx, ev.entry)
	}
}

func (a *Async) enqueue(ev event) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- ev:
	default:
		if a.dropped.Add(1) == 1 {
			a.logger.Warn("telemetry queue full, dropping events")
		}
	}
}

func (a *Async) RecordReading(_ context.Context, entry hardware.EntryInfo, value int32) {
	a.enqueue(event{kind: eventReading, entry: entry, value: value})
}

func (a *Async) RecordControl(_ context.Context, entry hardware.EntryInfo, value int32) {
	a.enqueue(event{kind: eventControl, entry: entry, value: value})
}

func (a *Async) RecordAuto(_ context.Context, entry hardware.EntryInfo) {
	a.enqueue(event{kind: eventAuto, entry: entry})
}

// Dropped returns how many events were discarded, either because the queue
// was full or because they arrived after Close.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain. Teardown
// may run while the command loop is still recording; events recorded after
// Close are dropped and counted.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
