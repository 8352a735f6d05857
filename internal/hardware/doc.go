// Package hardware provides the Hardware Registry for fancontrol-core.
//
// The Hardware Registry turns the sensor tree reported by a hardware
// collaborator (sysfs hwmon, or the in-memory fake) into a flat list of
// index-addressed entries that the peer protocol can refer to by number.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                         Hardware Registry                           │
//	│                                                                     │
//	│  ┌──────────────────┐        ┌──────────────────────────────────┐   │
//	│  │     Registry     │        │             Source               │   │
//	│  │  (registry.go)   │───────▶│  (types.go, implemented by       │   │
//	│  │                  │        │   hardware/hwmon, hardware/fake) │   │
//	│  │ • Build/flatten  │        │                                  │   │
//	│  │ • Get/Set/Auto   │        │ • Open → sensor tree             │   │
//	│  │ • Shutdown       │        │ • Update → re-poll readings      │   │
//	│  └──────────────────┘        │ • Close → release                │   │
//	│           │                  └──────────────────────────────────┘   │
//	└───────────│─────────────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐
//	│  dispatch.Dispatcher │
//	│  (command loop)      │
//	└──────────────────────┘
//
// # Flattening
//
// Build walks the top-level nodes of the tree in collaborator order. For each
// node it lists the node's own sensors and then the sensors of its direct
// children. Grandchildren are not visited. Only Control, Fan and Temperature
// sensors are kept; the index of an entry is its position in the resulting
// list and never changes for the lifetime of the registry.
//
// # Key Types
//
//   - Kind: Control, Fan or Temperature
//   - EntryInfo: the identity of an entry (id, name, info, index, kind)
//   - Source: the collaborator contract
//   - ControlHandle: the write side of a Control sensor
//
// # Usage
//
//	reg, err := hardware.Build(ctx, hwmon.New(hwmon.Config{}))
//	if err != nil {
//	    return err
//	}
//	defer reg.Shutdown()
//
//	if err := reg.SetValue(0, 60); err != nil {
//	    return err
//	}
//	v, _ := reg.GetValue(0)
//
// # Thread Safety
//
// The registry is meant to be driven by one goroutine (the command loop).
// Its methods are nevertheless guarded by a mutex so that Shutdown can run
// from the shutdown coordinator without racing a late command.
package hardware
