package automation

import (
	"sync"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
)

// SetpointStep is the amount a single ROOM PLUS/MINUS moves a setpoint.
const SetpointStep = 0.5

// Room aggregates the devices sharing a location string.
type Room struct {
	Name        string
	Setpoint    float64
	CurrentTemp float64

	// Changed is set when the setpoint was adjusted locally and has not yet
	// been pushed to the room's thermostats.
	Changed bool
}

// Rooms is the list of known rooms, derived from device locations.
//
// Thread Safety: all methods are safe for concurrent use.
type Rooms struct {
	mu    sync.RWMutex
	rooms []Room
}

// NewRooms creates an empty room list.
func NewRooms() *Rooms {
	return &Rooms{}
}

// Rebuild merges the rooms found in devices into the list. A fresh reading
// of zero does not overwrite a known value, since thermostats often report
// zero before their first real measurement.
func (r *Rooms) Rebuild(devices []device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range devices {
		d := &devices[i]
		if d.Info.Location == "" {
			continue
		}
		setpoint, temp := readings(d)

		idx := r.indexLocked(d.Info.Location)
		if idx < 0 {
			r.rooms = append(r.rooms, Room{Name: d.Info.Location, Setpoint: setpoint, CurrentTemp: temp})
			continue
		}
		if setpoint != 0 {
			r.rooms[idx].Setpoint = setpoint
		}
		if temp != 0 {
			r.rooms[idx].CurrentTemp = temp
		}
	}
}

// Reset discards all rooms and rebuilds the list from devices.
func (r *Rooms) Reset(devices []device.Device) {
	r.mu.Lock()
	r.rooms = nil
	r.mu.Unlock()
	r.Rebuild(devices)
}

// readings returns the thermostat setpoint and ambient temperature of d.
func readings(d *device.Device) (setpoint, temp float64) {
	for _, v := range d.Values {
		switch {
		case v.Label == device.LabelSetpoint && d.Info.Type == device.NodeTypeThermostat:
			setpoint, _ = device.Float(v.Value)
		case v.Label == device.LabelTemperature:
			temp, _ = device.Float(v.Value)
		}
	}
	return setpoint, temp
}

// List returns a copy of all rooms.
func (r *Rooms) List() []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Room, len(r.rooms))
	copy(out, r.rooms)
	return out
}

// Get returns the named room.
func (r *Rooms) Get(name string) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx := r.indexLocked(name); idx >= 0 {
		return r.rooms[idx], true
	}
	return Room{}, false
}

// Adjust moves the room's setpoint by delta and marks it for pushing.
func (r *Rooms) Adjust(name string, delta float64) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(name)
	if idx < 0 {
		return Room{}, ErrRoomNotFound
	}
	r.rooms[idx].Setpoint += delta
	r.rooms[idx].Changed = true
	return r.rooms[idx], nil
}

// SetSetpoint records a setpoint reported by a device. It reports whether
// the stored value changed.
func (r *Rooms) SetSetpoint(name string, setpoint float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(name)
	if idx < 0 {
		return false, ErrRoomNotFound
	}
	if r.rooms[idx].Setpoint == setpoint {
		return false, nil
	}
	r.rooms[idx].Setpoint = setpoint
	return true, nil
}

// SetCurrentTemp records the room's ambient temperature.
func (r *Rooms) SetCurrentTemp(name string, temp float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(name)
	if idx < 0 {
		return ErrRoomNotFound
	}
	r.rooms[idx].CurrentTemp = temp
	return nil
}

// Changed returns the rooms whose setpoint awaits pushing.
func (r *Rooms) Changed() []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Room
	for _, room := range r.rooms {
		if room.Changed {
			out = append(out, room)
		}
	}
	return out
}

// MarkPushed clears the room's Changed flag.
func (r *Rooms) MarkPushed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexLocked(name); idx >= 0 {
		r.rooms[idx].Changed = false
	}
}

func (r *Rooms) indexLocked(name string) int {
	for i := range r.rooms {
		if r.rooms[i].Name == name {
			return i
		}
	}
	return -1
}
