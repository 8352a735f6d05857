package hardware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry is a registry slot. Identity lives in info and never changes.
type entry struct {
	info       EntryInfo
	sensor     Sensor
	overridden bool
}

// Registry is the flattened, index-addressed view of the collaborator's
// sensors.
type Registry struct {
	src     Source
	entries []*entry
	logger  Logger

	mu     sync.Mutex
	closed bool
}

// Build opens the collaborator, polls it once and flattens its tree.
//
// Parameters:
//   - ctx: Context for cancellation while the collaborator opens
//   - src: Hardware collaborator
//   - logger: Optional logger (nil disables logging)
//
// Returns:
//   - *Registry: Registry with entries indexed 0..N-1
//   - error: Wraps ErrRegistryBuild if the collaborator cannot be opened
func Build(ctx context.Context, src Source, logger Logger) (*Registry, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if src == nil {
		return nil, fmt.Errorf("%w: no collaborator", ErrRegistryBuild)
	}

	tree, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryBuild, err)
	}
	if tree == nil {
		src.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: collaborator is not opened", ErrRegistryBuild)
	}

	if err := src.Update(ctx); err != nil {
		src.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: initial poll: %w", ErrRegistryBuild, err)
	}

	r := &Registry{
		src:    src,
		logger: logger,
	}
	r.flatten(tree)

	return r, nil
}

// flatten lists each top-level node's sensors followed by those of its
// direct children.
func (r *Registry) flatten(tree *Tree) {
	counts := make(map[Kind]int)

	add := func(s Sensor) {
		if s == nil {
			return
		}
		kind, ok := registryKind(s.Kind())
		if !ok {
			return
		}

		id := s.Identifier()
		if id == "" {
			id = fmt.Sprintf("%s%d", kind, counts[kind])
		}
		name := s.Name()
		if name == "" {
			name = string(kind)
		}

		r.entries = append(r.entries, &entry{
			info: EntryInfo{
				ID:    id,
				Name:  name,
				Info:  name,
				Index: len(r.entries),
				Kind:  kind,
			},
			sensor: s,
		})
		counts[kind]++
	}

	for _, node := range tree.Nodes {
		for _, s := range node.Sensors {
			add(s)
		}
		for _, child := range node.Children {
			for _, s := range child.Sensors {
				add(s)
			}
		}
	}

	r.logger.Info("hardware registry built",
		"controls", counts[KindControl],
		"fans", counts[KindFan],
		"temperatures", counts[KindTemperature],
	)
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entry returns the identity of the entry at index.
func (r *Registry) Entry(index int) (EntryInfo, error) {
	e, err := r.lookup(index)
	if err != nil {
		return EntryInfo{}, err
	}
	return e.info, nil
}

// Snapshot returns the identity of every entry in index order.
func (r *Registry) Snapshot() []EntryInfo {
	out := make([]EntryInfo, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.info
	}
	return out
}

// InitialSnapshot returns every entry with its current value attached.
// It is taken once, right after Build, for the startup payload.
func (r *Registry) InitialSnapshot() []EntryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EntryInfo, len(r.entries))
	for i, e := range r.entries {
		info := e.info
		v := readValue(e)
		info.Value = &v
		out[i] = info
	}
	return out
}

// RefreshLiveValues asks the collaborator to re-poll every sensor.
func (r *Registry) RefreshLiveValues(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if err := r.src.Update(ctx); err != nil {
		return fmt.Errorf("refreshing hardware: %w", err)
	}
	return nil
}

// GetValue returns the current integer value of an entry.
//
// Controls report their value rounded half to even; Fans and Temperatures
// are truncated toward zero. A sensor without a reading reports 0.
func (r *Registry) GetValue(index int) (int32, error) {
	e, err := r.lookup(index)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	return readValue(e), nil
}

// SetValue puts a Control under software command. The value is clamped to
// the control's bounds.
func (r *Registry) SetValue(index int, value int32) error {
	e, h, err := r.control(index)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	v := clamp(float64(value), h.Min(), h.Max())
	if err := h.SetSoftware(v); err != nil {
		return fmt.Errorf("setting %s: %w", e.info.ID, err)
	}
	e.overridden = true

	r.logger.Debug("set control", "id", e.info.ID, "name", e.info.Name, "value", v)
	return nil
}

// SetAuto hands a Control back to automatic mode. It is a no-op when the
// control was never overridden.
func (r *Registry) SetAuto(index int) error {
	e, err := r.lookup(index)
	if err != nil {
		return err
	}
	if e.info.Kind != KindControl {
		return fmt.Errorf("%w: entry %d is %s", ErrWrongKind, index, e.info.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.setAutoLocked(e)
}

// IsOverridden reports whether the Control at index is under software command.
func (r *Registry) IsOverridden(index int) bool {
	e, err := r.lookup(index)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.overridden
}

// Overridden returns the IDs of controls currently in manual mode, in
// index order. After Shutdown these are the controls that could not be
// restored.
func (r *Registry) Overridden() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, e := range r.entries {
		if e.overridden {
			ids = append(ids, e.info.ID)
		}
	}
	return ids
}

func (r *Registry) setAutoLocked(e *entry) error {
	if !e.overridden {
		return nil
	}

	h, ok := controlHandle(e.sensor)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoControlCapability, e.info.ID)
	}
	if err := h.SetDefault(); err != nil {
		return fmt.Errorf("restoring %s: %w", e.info.ID, err)
	}
	e.overridden = false

	r.logger.Debug("set control to auto", "id", e.info.ID, "name", e.info.Name)
	return nil
}

// ResetStale hands the listed controls back to automatic mode whether or
// not this process overrode them. It returns how many were reset.
func (r *Registry) ResetStale(ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	reset := 0
	for _, e := range r.entries {
		if e.info.Kind != KindControl || !want[e.info.ID] {
			continue
		}
		h, ok := controlHandle(e.sensor)
		if !ok {
			continue
		}
		if err := h.SetDefault(); err != nil {
			r.logger.Warn("failed to reset stale override", "id", e.info.ID, "error", err)
			continue
		}
		e.overridden = false
		reset++
	}
	return reset
}

// Shutdown returns every overridden Control to automatic mode and releases
// the collaborator. Failures on individual controls are logged and do not
// stop the sweep. Calling Shutdown again is a no-op.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, e := range r.entries {
		if e.info.Kind != KindControl {
			continue
		}
		if err := r.setAutoLocked(e); err != nil {
			r.logger.Error("failed to restore control", "id", e.info.ID, "error", err)
			errs = append(errs, err)
		}
	}

	if err := r.src.Close(); err != nil {
		r.logger.Error("failed to close hardware collaborator", "error", err)
		errs = append(errs, fmt.Errorf("closing collaborator: %w", err))
	}

	r.logger.Info("hardware registry shut down")
	return errors.Join(errs...)
}

func (r *Registry) lookup(index int) (*entry, error) {
	if index < 0 || index >= len(r.entries) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(r.entries))
	}
	return r.entries[index], nil
}

func (r *Registry) control(index int) (*entry, ControlHandle, error) {
	e, err := r.lookup(index)
	if err != nil {
		return nil, nil, err
	}
	if e.info.Kind != KindControl {
		return nil, nil, fmt.Errorf("%w: entry %d is %s", ErrWrongKind, index, e.info.Kind)
	}
	h, ok := controlHandle(e.sensor)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoControlCapability, e.info.ID)
	}
	return e, h, nil
}

func controlHandle(s Sensor) (ControlHandle, bool) {
	c, ok := s.(Controllable)
	if !ok {
		return nil, false
	}
	h, ok := c.ControlHandle()
	if !ok || h == nil {
		return nil, false
	}
	return h, true
}

func readValue(e *entry) int32 {
	v, ok := e.sensor.Value()
	if !ok || math.IsNaN(v) {
		return 0
	}
	if e.info.Kind == KindControl {
		v = math.RoundToEven(v)
	} else {
		v = math.Trunc(v)
	}
	return saturate(v)
}

func saturate(v float64) int32 {
	switch {
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}
