package hardware

import "context"

// Kind classifies a registry entry.
type Kind string

// Registry entry kinds.
const (
	KindControl     Kind = "Control"
	KindFan         Kind = "Fan"
	KindTemperature Kind = "Temperature"
)

// SensorKind is the kind reported by the collaborator. Collaborators may
// report kinds the registry does not keep (voltages, loads, clocks).
type SensorKind int

// Sensor kinds known to collaborators.
const (
	SensorOther SensorKind = iota
	SensorControl
	SensorFan
	SensorTemperature
	SensorVoltage
	SensorLoad
	SensorPower
)

// registryKind maps a collaborator kind to the registry kind.
// ok is false for kinds the registry drops.
func registryKind(k SensorKind) (kind Kind, ok bool) {
	switch k {
	case SensorControl:
		return KindControl, true
	case SensorFan:
		return KindFan, true
	case SensorTemperature:
		return KindTemperature, true
	default:
		return "", false
	}
}

// Sensor is a single reading exposed by the collaborator.
type Sensor interface {
	Kind() SensorKind
	Name() string
	Identifier() string
	// Value returns the last polled reading. ok is false when the
	// collaborator has no reading for this sensor.
	Value() (v float64, ok bool)
}

// Controllable is implemented by Control sensors that can be written.
type Controllable interface {
	// ControlHandle returns the write side of the sensor. ok is false when
	// the sensor reports as a Control but cannot actually be driven.
	ControlHandle() (h ControlHandle, ok bool)
}

// ControlHandle drives a single fan control.
type ControlHandle interface {
	// SetSoftware puts the control under software command at value v.
	SetSoftware(v float64) error
	// SetDefault hands the control back to firmware/automatic mode.
	SetDefault() error
	Min() float64
	Max() float64
}

// Node is one piece of hardware in the collaborator's tree.
type Node struct {
	Name     string
	Sensors  []Sensor
	Children []Node
}

// Tree is the collaborator's view of the machine.
type Tree struct {
	Nodes []Node
}

// Source is the hardware collaborator contract.
type Source interface {
	// Open starts the collaborator and returns its sensor tree.
	Open(ctx context.Context) (*Tree, error)
	// Update re-polls every sensor.
	Update(ctx context.Context) error
	// Close releases the collaborator.
	Close() error
}

// EntryInfo is the identity of a registry entry as sent to the peer.
// Value is only populated for the initial snapshot.
type EntryInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Info  string `json:"info"`
	Index int    `json:"index"`
	Kind  Kind   `json:"kind"`
	Value *int32 `json:"value,omitempty"`
}
