package hardware

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// mockSensor is a hand-written Sensor for registry tests.
type mockSensor struct {
	kind  SensorKind
	name  string
	id    string
	value float64
	has   bool
	ctl   *mockControl
}

func (m *mockSensor) Kind() SensorKind       { return m.kind }
func (m *mockSensor) Name() string           { return m.name }
func (m *mockSensor) Identifier() string     { return m.id }
func (m *mockSensor) Value() (float64, bool) { return m.value, m.has }

func (m *mockSensor) ControlHandle() (ControlHandle, bool) {
	if m.ctl == nil {
		return nil, false
	}
	return m.ctl, true
}

// mockControl records every call made against a control handle.
type mockControl struct {
	mu         sync.Mutex
	sensor     *mockSensor
	min, max   float64
	setCalls   []float64
	autoCalls  int
	setErr     error
	defaultErr error
}

func (c *mockControl) SetSoftware(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.setCalls = append(c.setCalls, v)
	c.sensor.value = v
	c.sensor.has = true
	return nil
}

func (c *mockControl) SetDefault() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.defaultErr != nil {
		return c.defaultErr
	}
	c.autoCalls++
	return nil
}

func (c *mockControl) Min() float64 { return c.min }
func (c *mockControl) Max() float64 { return c.max }

func (c *mockControl) defaults() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCalls
}

// mockSource is a hand-written Source with error injection.
type mockSource struct {
	tree      *Tree
	openErr   error
	updateErr error
	closeErr  error
	updates   int
	closes    int
}

func (m *mockSource) Open(ctx context.Context) (*Tree, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.tree, nil
}

func (m *mockSource) Update(ctx context.Context) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	return nil
}

func (m *mockSource) Close() error {
	m.closes++
	return m.closeErr
}

func newControl(id, name string, value float64) *mockSensor {
	s := &mockSensor{kind: SensorControl, id: id, name: name, value: value, has: true}
	s.ctl = &mockControl{sensor: s, min: 0, max: 100}
	return s
}

func newReading(kind SensorKind, id, name string, value float64) *mockSensor {
	return &mockSensor{kind: kind, id: id, name: name, value: value, has: true}
}

// standardTree is Control, Fan, Temperature in that order, plus a voltage
// sensor that must be dropped.
func standardTree() (*Tree, *mockSensor) {
	ctl := newControl("/lpc/nct6798d/control/0", "CPU Fan", 40)
	return &Tree{Nodes: []Node{{
		Name: "Nuvoton NCT6798D",
		Sensors: []Sensor{
			ctl,
			newReading(SensorVoltage, "/lpc/nct6798d/voltage/0", "Vcore", 1.1),
			newReading(SensorFan, "/lpc/nct6798d/fan/0", "CPU Fan", 1234.9),
			newReading(SensorTemperature, "/lpc/nct6798d/temperature/0", "CPU Core", 47.8),
		},
	}}}, ctl
}

func buildRegistry(t *testing.T, tree *Tree) (*Registry, *mockSource) {
	t.Helper()
	src := &mockSource{tree: tree}
	reg, err := Build(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return reg, src
}

func TestBuild_FlattenOrderAndFilter(t *testing.T) {
	tree := &Tree{Nodes: []Node{
		{
			Name: "Motherboard",
			Sensors: []Sensor{
				newReading(SensorTemperature, "mb-temp", "System", 30),
			},
			Children: []Node{
				{
					Name: "Super I/O",
					Sensors: []Sensor{
						newControl("sio-ctl", "Chassis", 50),
						newReading(SensorLoad, "sio-load", "Load", 3),
					},
					Children: []Node{
						{
							Name: "Too deep",
							Sensors: []Sensor{
								newReading(SensorFan, "deep-fan", "Deep", 900),
							},
						},
					},
				},
			},
		},
		{
			Name: "GPU",
			Sensors: []Sensor{
				newReading(SensorFan, "gpu-fan", "GPU Fan", 1500),
			},
		},
	}}

	reg, src := buildRegistry(t, tree)

	if src.updates != 1 {
		t.Errorf("collaborator polled %d times during Build, want 1", src.updates)
	}

	want := []struct {
		id   string
		kind Kind
	}{
		{"mb-temp", KindTemperature},
		{"sio-ctl", KindControl},
		{"gpu-fan", KindFan},
	}

	snap := reg.Snapshot()
	if len(snap) != len(want) {
		t.Fatalf("Snapshot() len = %d, want %d (%+v)", len(snap), len(want), snap)
	}
	for i, w := range want {
		if snap[i].Index != i {
			t.Errorf("entry %d: Index = %d", i, snap[i].Index)
		}
		if snap[i].ID != w.id {
			t.Errorf("entry %d: ID = %q, want %q", i, snap[i].ID, w.id)
		}
		if snap[i].Kind != w.kind {
			t.Errorf("entry %d: Kind = %q, want %q", i, snap[i].Kind, w.kind)
		}
		if snap[i].Info != snap[i].Name {
			t.Errorf("entry %d: Info = %q, want Name %q", i, snap[i].Info, snap[i].Name)
		}
		if snap[i].Value != nil {
			t.Errorf("entry %d: Snapshot carries a value", i)
		}
	}
}

func TestBuild_Fallbacks(t *testing.T) {
	tree := &Tree{Nodes: []Node{{
		Name: "Anonymous",
		Sensors: []Sensor{
			newControl("", "", 0),
			newReading(SensorFan, "", "", 0),
			newControl("", "Named", 0),
			newReading(SensorTemperature, "", "", 0),
		},
	}}}

	reg, _ := buildRegistry(t, tree)
	snap := reg.Snapshot()

	tests := []struct {
		index int
		id    string
		name  string
	}{
		{0, "Control0", "Control"},
		{1, "Fan0", "Fan"},
		{2, "Control1", "Named"},
		{3, "Temperature0", "Temperature"},
	}
	for _, tt := range tests {
		got := snap[tt.index]
		if got.ID != tt.id {
			t.Errorf("entry %d: ID = %q, want %q", tt.index, got.ID, tt.id)
		}
		if got.Name != tt.name {
			t.Errorf("entry %d: Name = %q, want %q", tt.index, got.Name, tt.name)
		}
	}
}

func TestBuild_Errors(t *testing.T) {
	openErr := errors.New("driver missing")

	tests := []struct {
		name string
		src  Source
	}{
		{name: "nil collaborator", src: nil},
		{name: "open fails", src: &mockSource{openErr: openErr}},
		{name: "not opened", src: &mockSource{}},
		{name: "initial poll fails", src: &mockSource{tree: &Tree{}, updateErr: errors.New("poll")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), tt.src, nil)
			if !errors.Is(err, ErrRegistryBuild) {
				t.Fatalf("Build() error = %v, want ErrRegistryBuild", err)
			}
		})
	}
}

func TestGetValue(t *testing.T) {
	tree, ctl := standardTree()
	reg, _ := buildRegistry(t, tree)

	tests := []struct {
		name    string
		index   int
		control float64
		want    int32
	}{
		{name: "control rounds half to even down", index: 0, control: 42.5, want: 42},
		{name: "control rounds half to even up", index: 0, control: 43.5, want: 44},
		{name: "control rounds", index: 0, control: 41.6, want: 42},
		{name: "fan truncates", index: 1, want: 1234},
		{name: "temperature truncates", index: 2, want: 47},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl.value = tt.control
			got, err := reg.GetValue(tt.index)
			if err != nil {
				t.Fatalf("GetValue(%d) error = %v", tt.index, err)
			}
			if got != tt.want {
				t.Errorf("GetValue(%d) = %d, want %d", tt.index, got, tt.want)
			}
		})
	}
}

func TestGetValue_AbsentReading(t *testing.T) {
	fan := &mockSensor{kind: SensorFan, id: "fan", name: "Fan"}
	reg, _ := buildRegistry(t, &Tree{Nodes: []Node{{Sensors: []Sensor{fan}}}})

	got, err := reg.GetValue(0)
	if err != nil {
		t.Fatalf("GetValue() error = %v", err)
	}
	if got != 0 {
		t.Errorf("GetValue() = %d, want 0", got)
	}
}

func TestAddressingErrors(t *testing.T) {
	tree, _ := standardTree()
	tree.Nodes[0].Sensors = append(tree.Nodes[0].Sensors,
		&mockSensor{kind: SensorControl, id: "no-handle", name: "Broken"})
	reg, _ := buildRegistry(t, tree)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"get negative", func() error { _, err := reg.GetValue(-1); return err }, ErrIndexOutOfRange},
		{"get past end", func() error { _, err := reg.GetValue(reg.Len()); return err }, ErrIndexOutOfRange},
		{"set past end", func() error { return reg.SetValue(99, 10) }, ErrIndexOutOfRange},
		{"auto past end", func() error { return reg.SetAuto(99) }, ErrIndexOutOfRange},
		{"set on fan", func() error { return reg.SetValue(1, 10) }, ErrWrongKind},
		{"set on temperature", func() error { return reg.SetValue(2, 10) }, ErrWrongKind},
		{"auto on temperature", func() error { return reg.SetAuto(2) }, ErrWrongKind},
		{"set without handle", func() error { return reg.SetValue(3, 10) }, ErrNoControlCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSetValue_RoundTripAndClamp(t *testing.T) {
	tree, ctl := standardTree()
	ctl.ctl.min = 20
	ctl.ctl.max = 80
	reg, _ := buildRegistry(t, tree)

	tests := []struct {
		set  int32
		want int32
	}{
		{50, 50},
		{10, 20},
		{95, 80},
	}
	for _, tt := range tests {
		if err := reg.SetValue(0, tt.set); err != nil {
			t.Fatalf("SetValue(0, %d) error = %v", tt.set, err)
		}
		got, err := reg.GetValue(0)
		if err != nil {
			t.Fatalf("GetValue(0) error = %v", err)
		}
		if got != tt.want {
			t.Errorf("SetValue(0, %d) then GetValue(0) = %d, want %d", tt.set, got, tt.want)
		}
	}
	if !reg.IsOverridden(0) {
		t.Error("control not marked overridden after SetValue")
	}
}

func TestSetValue_CollaboratorError(t *testing.T) {
	tree, ctl := standardTree()
	ctl.ctl.setErr = errors.New("EBUSY")
	reg, _ := buildRegistry(t, tree)

	if err := reg.SetValue(0, 30); err == nil {
		t.Fatal("SetValue() should fail when the collaborator rejects the write")
	}
	if reg.IsOverridden(0) {
		t.Error("failed write marked the control overridden")
	}
}

func TestSetAuto_Idempotent(t *testing.T) {
	tree, ctl := standardTree()
	reg, _ := buildRegistry(t, tree)

	// Never overridden: no restore call.
	if err := reg.SetAuto(0); err != nil {
		t.Fatalf("SetAuto() error = %v", err)
	}
	if n := ctl.ctl.defaults(); n != 0 {
		t.Fatalf("SetDefault called %d times on untouched control", n)
	}

	if err := reg.SetValue(0, 70); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if err := reg.SetAuto(0); err != nil {
		t.Fatalf("SetAuto() error = %v", err)
	}
	if err := reg.SetAuto(0); err != nil {
		t.Fatalf("second SetAuto() error = %v", err)
	}
	if n := ctl.ctl.defaults(); n != 1 {
		t.Errorf("SetDefault called %d times, want 1", n)
	}
}

func TestResetStale(t *testing.T) {
	tree, ctl := standardTree()
	reg, _ := buildRegistry(t, tree)

	n := reg.ResetStale([]string{"/lpc/nct6798d/control/0", "/lpc/nct6798d/fan/0", "gone"})
	if n != 1 {
		t.Errorf("ResetStale() = %d, want 1", n)
	}
	if ctl.ctl.defaults() != 1 {
		t.Errorf("SetDefault called %d times, want 1", ctl.ctl.defaults())
	}
	if reg.ResetStale(nil) != 0 {
		t.Error("ResetStale(nil) should reset nothing")
	}
}

func TestInitialSnapshot_CarriesValues(t *testing.T) {
	tree, _ := standardTree()
	reg, _ := buildRegistry(t, tree)

	snap := reg.InitialSnapshot()
	want := []int32{40, 1234, 47}
	for i, w := range want {
		if snap[i].Value == nil {
			t.Fatalf("entry %d has no value", i)
		}
		if *snap[i].Value != w {
			t.Errorf("entry %d value = %d, want %d", i, *snap[i].Value, w)
		}
	}
}

func TestShutdown(t *testing.T) {
	ctlA := newControl("a", "A", 10)
	ctlB := newControl("b", "B", 10)
	ctlB.ctl.defaultErr = errors.New("stuck")
	ctlC := newControl("c", "C", 10)
	tree := &Tree{Nodes: []Node{{Sensors: []Sensor{ctlA, ctlB, ctlC}}}}

	reg, src := buildRegistry(t, tree)
	for i := 0; i < 3; i++ {
		if err := reg.SetValue(i, 60); err != nil {
			t.Fatalf("SetValue(%d) error = %v", i, err)
		}
	}
	if got := reg.Overridden(); len(got) != 3 {
		t.Errorf("Overridden() = %v, want all three controls", got)
	}

	if err := reg.Shutdown(); err == nil {
		t.Error("Shutdown() should report the failed restore")
	}
	if ctlA.ctl.defaults() != 1 || ctlC.ctl.defaults() != 1 {
		t.Error("a failing control stopped the restore sweep")
	}
	if src.closes != 1 {
		t.Errorf("collaborator closed %d times, want 1", src.closes)
	}
	if got := reg.Overridden(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Overridden() after Shutdown = %v, want [b]", got)
	}

	if err := reg.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if src.closes != 1 {
		t.Errorf("second Shutdown closed the collaborator again")
	}

	if _, err := reg.GetValue(0); !errors.Is(err, ErrClosed) {
		t.Errorf("GetValue after Shutdown error = %v, want ErrClosed", err)
	}
}

func TestRefreshLiveValues(t *testing.T) {
	tree, _ := standardTree()
	reg, src := buildRegistry(t, tree)

	if err := reg.RefreshLiveValues(context.Background()); err != nil {
		t.Fatalf("RefreshLiveValues() error = %v", err)
	}
	if src.updates != 2 {
		t.Errorf("updates = %d, want 2", src.updates)
	}

	src.updateErr = errors.New("bus error")
	if err := reg.RefreshLiveValues(context.Background()); err == nil {
		t.Error("RefreshLiveValues() should surface collaborator errors")
	}
}
