// Package fake provides a deterministic in-memory hardware collaborator.
//
// It backs the "fake" hardware backend (useful on machines without hwmon
// controls) and the test suites of the packages above the registry.
package fake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
)

// ErrNotOpened is returned by Update before Open has succeeded.
var ErrNotOpened = errors.New("fake: source not opened")

// Layout describes the tree a Source reports.
type Layout struct {
	Nodes []NodeSpec `yaml:"nodes"`
}

// NodeSpec describes one node and its direct children.
type NodeSpec struct {
	Name     string       `yaml:"name"`
	Sensors  []SensorSpec `yaml:"sensors"`
	Children []NodeSpec   `yaml:"children"`
}

// SensorSpec describes one sensor.
type SensorSpec struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Kind  string   `yaml:"kind"` // control, fan, temperature, voltage, load, power
	Value *float64 `yaml:"value"`

	// Min and Max bound a control. Both zero means 0..100.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`

	// NoHandle makes a control report no write capability.
	NoHandle bool `yaml:"no_handle"`
}

// DefaultLayout is a small desktop: a CPU with a fan header and a Super I/O
// child with a chassis fan.
func DefaultLayout() Layout {
	return Layout{Nodes: []NodeSpec{
		{
			Name: "Fake CPU",
			Sensors: []SensorSpec{
				{ID: "/fake/cpu/control/0", Name: "CPU Fan", Kind: "control", Value: ptr(40)},
				{ID: "/fake/cpu/fan/0", Name: "CPU Fan", Kind: "fan", Value: ptr(1180)},
				{ID: "/fake/cpu/temperature/0", Name: "CPU Package", Kind: "temperature", Value: ptr(45.5)},
				{ID: "/fake/cpu/voltage/0", Name: "CPU Core", Kind: "voltage", Value: ptr(1.2)},
			},
			Children: []NodeSpec{
				{
					Name: "Fake Super I/O",
					Sensors: []SensorSpec{
						{ID: "/fake/sio/control/0", Name: "Chassis Fan", Kind: "control", Value: ptr(35)},
						{ID: "/fake/sio/fan/0", Name: "Chassis Fan", Kind: "fan", Value: ptr(860)},
						{ID: "/fake/sio/temperature/0", Name: "System", Kind: "temperature", Value: ptr(33)},
					},
				},
			},
		},
	}}
}

// LoadLayout reads a YAML layout file.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("reading layout file: %w", err)
	}
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("parsing layout file: %w", err)
	}
	for _, n := range l.Nodes {
		if err := validateNode(n); err != nil {
			return Layout{}, err
		}
	}
	return l, nil
}

func validateNode(n NodeSpec) error {
	for _, s := range n.Sensors {
		if _, ok := parseKind(s.Kind); !ok {
			return fmt.Errorf("node %q: unknown sensor kind %q", n.Name, s.Kind)
		}
	}
	for _, c := range n.Children {
		if err := validateNode(c); err != nil {
			return err
		}
	}
	return nil
}

// Source is an in-memory hardware.Source.
//
// The error fields let tests inject collaborator failures. Gate, when
// non-nil, makes Open block until it is closed or ctx is cancelled.
type Source struct {
	layout Layout

	OpenErr   error
	UpdateErr error
	CloseErr  error
	Gate      chan struct{}

	mu      sync.Mutex
	opened  bool
	polls   int
	closes  int
	sensors []*Sensor
}

// Ensure Source implements hardware.Source.
var _ hardware.Source = (*Source)(nil)

// New creates a Source reporting layout.
func New(layout Layout) *Source {
	return &Source{layout: layout}
}

// Open builds the sensor tree.
func (s *Source) Open(ctx context.Context) (*hardware.Tree, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sensors = nil
	tree := &hardware.Tree{}
	for _, n := range s.layout.Nodes {
		tree.Nodes = append(tree.Nodes, s.buildNode(n))
	}
	s.opened = true
	return tree, nil
}

func (s *Source) buildNode(spec NodeSpec) hardware.Node {
	node := hardware.Node{Name: spec.Name}
	for _, ss := range spec.Sensors {
		kind, _ := parseKind(ss.Kind)
		sensor := newSensor(ss, kind)
		s.sensors = append(s.sensors, sensor)
		node.Sensors = append(node.Sensors, sensor)
	}
	for _, c := range spec.Children {
		node.Children = append(node.Children, s.buildNode(c))
	}
	return node
}

// Update counts a poll. Readings stay where they are.
func (s *Source) Update(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrNotOpened
	}
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.polls++
	return nil
}

// Close releases the source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	s.closes++
	return s.CloseErr
}

// Polls returns how many successful Update calls were made.
func (s *Source) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Closes returns how many times Close was called.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Sensor returns the sensor with the given identifier, or nil.
func (s *Source) Sensor(id string) *Sensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sn := range s.sensors {
		if sn.id == id {
			return sn
		}
	}
	return nil
}

// Sensor is a fake reading. Control sensors double as their own handle.
type Sensor struct {
	id       string
	name     string
	kind     hardware.SensorKind
	min, max float64
	noHandle bool

	// SetErr, when set, fails SetSoftware and SetDefault.
	SetErr error

	mu        sync.Mutex
	value     float64
	hasValue  bool
	initial   float64
	software  bool
	sets      int
	defaults  int
	lastValue float64
}

func newSensor(spec SensorSpec, kind hardware.SensorKind) *Sensor {
	sn := &Sensor{
		id:       spec.ID,
		name:     spec.Name,
		kind:     kind,
		min:      spec.Min,
		max:      spec.Max,
		noHandle: spec.NoHandle,
	}
	if sn.min == 0 && sn.max == 0 {
		sn.max = 100
	}
	if spec.Value != nil {
		sn.value = *spec.Value
		sn.initial = *spec.Value
		sn.hasValue = true
	}
	return sn
}

func (s *Sensor) Kind() hardware.SensorKind { return s.kind }
func (s *Sensor) Name() string              { return s.name }
func (s *Sensor) Identifier() string        { return s.id }

// Value returns the current reading.
func (s *Sensor) Value() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// SetReading replaces the reading, as if the hardware had changed.
func (s *Sensor) SetReading(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.hasValue = true
}

// ControlHandle returns the sensor itself for controls.
func (s *Sensor) ControlHandle() (hardware.ControlHandle, bool) {
	if s.kind != hardware.SensorControl || s.noHandle {
		return nil, false
	}
	return s, true
}

// SetSoftware puts the control under software command.
func (s *Sensor) SetSoftware(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	s.software = true
	s.value = v
	s.hasValue = true
	s.lastValue = v
	s.sets++
	return nil
}

// SetDefault returns the control to automatic mode.
func (s *Sensor) SetDefault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	s.software = false
	s.value = s.initial
	s.defaults++
	return nil
}

func (s *Sensor) Min() float64 { return s.min }
func (s *Sensor) Max() float64 { return s.max }

// Software reports whether the control is under software command.
func (s *Sensor) Software() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.software
}

// Sets returns how many times SetSoftware succeeded.
func (s *Sensor) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

// Defaults returns how many times SetDefault succeeded.
func (s *Sensor) Defaults() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// LastSet returns the last value passed to SetSoftware.
func (s *Sensor) LastSet() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastValue
}

func parseKind(k string) (hardware.SensorKind, bool) {
	switch strings.ToLower(k) {
	case "control":
		return hardware.SensorControl, true
	case "fan":
		return hardware.SensorFan, true
	case "temperature", "temp":
		return hardware.SensorTemperature, true
	case "voltage":
		return hardware.SensorVoltage, true
	case "load":
		return hardware.SensorLoad, true
	case "power":
		return hardware.SensorPower, true
	default:
		return hardware.SensorOther, false
	}
}

func ptr(v float64) *float64 { return &v }

// Value is a helper for building layouts in code.
func Value(v float64) *float64 { return ptr(v) }
