package device

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry is the in-memory store of known nodes and their values.
//
// Devices are created only by Upsert (driver node-added events) and removed
// only by Remove (node-removed events). Values are appended, replaced by id
// or removed in response to driver value events.
//
// All public methods are thread-safe. Lookups return deep copies so callers
// can inspect a device without holding any lock.
type Registry struct {
	devices map[Key]*Device
	mu      sync.RWMutex
	logger  Logger
	now     func() time.Time
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[Key]*Device),
		logger:  noopLogger{},
		now:     time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the time source used to stamp new devices.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}

// Upsert creates an empty device for the node if none exists.
// It reports whether a device was created. A duplicate add is logged and
// otherwise ignored.
func (r *Registry) Upsert(homeID uint32, nodeID uint8) bool {
	key := Key{HomeID: homeID, NodeID: nodeID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[key]; ok {
		r.logger.Warn("node already registered", "home_id", homeID, "node_id", nodeID)
		return false
	}
	r.devices[key] = &Device{HomeID: homeID, NodeID: nodeID, LastSeen: r.now()}
	return true
}

// Remove deletes the device and all its values.
// Returns ErrDeviceNotFound if the node is unknown; driver events can race
// with each other so callers treat this as informational.
func (r *Registry) Remove(homeID uint32, nodeID uint8) error {
	key := Key{HomeID: homeID, NodeID: nodeID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[key]; !ok {
		return fmt.Errorf("removing node %d: %w", nodeID, ErrDeviceNotFound)
	}
	delete(r.devices, key)
	return nil
}

// Find returns a copy of the device.
func (r *Registry) Find(homeID uint32, nodeID uint8) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[Key{HomeID: homeID, NodeID: nodeID}]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// Exists reports whether the node is registered.
func (r *Registry) Exists(homeID uint32, nodeID uint8) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[Key{HomeID: homeID, NodeID: nodeID}]
	return ok
}

// List returns copies of all devices ordered by home id then node id.
func (r *Registry) List() []Device {
	r.mu.RLock()
	devices := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		devices = append(devices, *d.DeepCopy())
	}
	r.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HomeID != devices[j].HomeID {
			return devices[i].HomeID < devices[j].HomeID
		}
		return devices[i].NodeID < devices[j].NodeID
	})
	return devices
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// AddOrReplaceValue stores v on the device, replacing any value with the
// same id and appending otherwise. Discovery order is preserved.
func (r *Registry) AddOrReplaceValue(homeID uint32, nodeID uint8, v CapabilityValue) error {
	return r.update(homeID, nodeID, func(d *Device) error {
		for i := range d.Values {
			if d.Values[i].ID == v.ID {
				d.Values[i] = v
				return nil
			}
		}
		d.Values = append(d.Values, v)
		return nil
	})
}

// RemoveValue deletes the value with the given id from the device.
func (r *Registry) RemoveValue(homeID uint32, nodeID uint8, valueID uint64) error {
	return r.update(homeID, nodeID, func(d *Device) error {
		for i := range d.Values {
			if d.Values[i].ID == valueID {
				d.Values = append(d.Values[:i], d.Values[i+1:]...)
				return nil
			}
		}
		return ErrValueNotFound
	})
}

// SetNodeInfo replaces the node metadata. The cached class mapping is kept
// unless the generic/specific pair changed.
func (r *Registry) SetNodeInfo(homeID uint32, nodeID uint8, info NodeInfo) error {
	return r.update(homeID, nodeID, func(d *Device) error {
		if d.Info.Generic != info.Generic || d.Info.Specific != info.Specific {
			d.BasicMapping = 0
		}
		d.Info = info
		return nil
	})
}

// SetName updates the node's name.
func (r *Registry) SetName(homeID uint32, nodeID uint8, name string) error {
	return r.update(homeID, nodeID, func(d *Device) error {
		d.Info.Name = name
		return nil
	})
}

// SetLocation updates the node's location.
func (r *Registry) SetLocation(homeID uint32, nodeID uint8, location string) error {
	return r.update(homeID, nodeID, func(d *Device) error {
		d.Info.Location = location
		return nil
	})
}

// Touch records that the node was heard from at t.
func (r *Registry) Touch(homeID uint32, nodeID uint8, t time.Time) error {
	return r.update(homeID, nodeID, func(d *Device) error {
		d.LastSeen = t
		return nil
	})
}

// SetPolled records whether the driver polls the node.
func (r *Registry) SetPolled(homeID uint32, nodeID uint8, polled bool) error {
	return r.update(homeID, nodeID, func(d *Device) error {
		d.Polled = polled
		return nil
	})
}

// SetNeedsClockSync flags a node whose clock drifted from the gateway's.
func (r *Registry) SetNeedsClockSync(homeID uint32, nodeID uint8, needs bool) error {
	return r.update(homeID, nodeID, func(d *Device) error {
		d.NeedsClockSync = needs
		return nil
	})
}

// ResolveMapping returns the command class carrying the node's primary
// function, resolving and caching it on first use.
// Returns ErrNoMapping when the node's class pair is not in the table.
func (r *Registry) ResolveMapping(homeID uint32, nodeID uint8) (uint8, error) {
	var class uint8
	err := r.update(homeID, nodeID, func(d *Device) error {
		if d.BasicMapping != 0 {
			class = d.BasicMapping
			return nil
		}
		c, ok := ResolveClass(d.Info.Generic, d.Info.Specific)
		if !ok {
			return ErrNoMapping
		}
		d.BasicMapping = c
		class = c
		return nil
	})
	return class, err
}

// Stats returns counts useful for health reporting.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{Devices: len(r.devices)}
	for _, d := range r.devices {
		stats.Values += len(d.Values)
		if d.Polled {
			stats.Polled++
		}
		if d.BasicMapping != 0 {
			stats.Mapped++
		}
	}
	return stats
}

// RegistryStats holds aggregate registry counters.
type RegistryStats struct {
	Devices int `json:"devices"`
	Values  int `json:"values"`
	Polled  int `json:"polled"`
	Mapped  int `json:"mapped"`
}

func (r *Registry) update(homeID uint32, nodeID uint8, fn func(*Device) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[Key{HomeID: homeID, NodeID: nodeID}]
	if !ok {
		return ErrDeviceNotFound
	}
	return fn(d)
}
