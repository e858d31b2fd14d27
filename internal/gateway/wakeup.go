package gateway

import (
	"math"
	"sync"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
)

// Wake-up bound labels reported alongside the interval itself.
const (
	labelDefaultWakeup = "Default Wake-up Interval"
	labelMinWakeup     = "Minimum Wake-up Interval"
	labelMaxWakeup     = "Maximum Wake-up Interval"
)

// WakeupEntry is the desired wake-up interval of one battery device.
// Devices fall back to their factory interval after a battery change; the
// gateway pushes Interval back when that happens.
type WakeupEntry struct {
	HomeID   uint32
	NodeID   uint8
	Interval int32
	Default  int32
	Min      int32
	Max      int32
}

// InBounds reports whether interval lies within the device's limits.
func (e WakeupEntry) InBounds(interval int32) bool {
	return interval >= e.Min && interval <= e.Max
}

// WakeupCache holds one entry per device exposing the wake-up class.
type WakeupCache struct {
	mu      sync.RWMutex
	entries map[device.Key]WakeupEntry
}

// NewWakeupCache creates an empty cache.
func NewWakeupCache() *WakeupCache {
	return &WakeupCache{entries: make(map[device.Key]WakeupEntry)}
}

// Rebuild replaces the cache with entries read from devices. Desired
// intervals of devices that remain are kept, so a device that reset itself
// is not mistaken for one the user reconfigured.
func (c *WakeupCache) Rebuild(devices []device.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := make(map[device.Key]WakeupEntry)
	for i := range devices {
		d := &devices[i]
		entry, ok := readWakeup(d)
		if !ok {
			continue
		}
		if old, had := c.entries[d.Key()]; had {
			entry.Interval = old.Interval
		}
		fresh[d.Key()] = entry
	}
	c.entries = fresh
}

func readWakeup(d *device.Device) (WakeupEntry, bool) {
	entry := WakeupEntry{HomeID: d.HomeID, NodeID: d.NodeID, Max: math.MaxInt32}
	found := false
	for _, v := range d.Values {
		if v.Class != device.ClassWakeUp {
			continue
		}
		found = true
		f, ok := device.Float(v.Value)
		if !ok {
			continue
		}
		switch v.Label {
		case device.LabelWakeupInterval:
			entry.Interval = int32(f)
		case labelDefaultWakeup:
			entry.Default = int32(f)
		case labelMinWakeup:
			entry.Min = int32(f)
		case labelMaxWakeup:
			entry.Max = int32(f)
		}
	}
	return entry, found
}

// Get returns the entry for a node.
func (c *WakeupCache) Get(homeID uint32, nodeID uint8) (WakeupEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[device.Key{HomeID: homeID, NodeID: nodeID}]
	return e, ok
}

// SetInterval records a new desired interval for a cached node.
func (c *WakeupCache) SetInterval(homeID uint32, nodeID uint8, interval int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := device.Key{HomeID: homeID, NodeID: nodeID}
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.Interval = interval
	c.entries[key] = e
	return true
}

// Len returns the number of cached entries.
func (c *WakeupCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
