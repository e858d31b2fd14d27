package device

import "time"

// Command class identifiers used by the gateway.
const (
	ClassBasic              uint8 = 0x20
	ClassSwitchBinary       uint8 = 0x25
	ClassSwitchMultilevel   uint8 = 0x26
	ClassSensorMultilevel   uint8 = 0x31
	ClassThermostatSetpoint uint8 = 0x43
	ClassConfiguration      uint8 = 0x70
	ClassClock              uint8 = 0x81
	ClassWakeUp             uint8 = 0x84
)

// Basic device types. Anything below BasicSlave is a controller.
const (
	BasicController       uint8 = 0x01
	BasicStaticController uint8 = 0x02
	BasicSlave            uint8 = 0x03
	BasicRoutingSlave     uint8 = 0x04
)

// Well-known capability labels.
const (
	LabelSwitch         = "Switch"
	LabelLevel          = "Level"
	LabelSetpoint       = "Heating 1"
	LabelTemperature    = "Temperature"
	LabelWakeupInterval = "Wake-up Interval"
	LabelBatteryReport  = "Send unsolicited battery report on wakeup"
)

// NodeTypeThermostat is the node type string of setpoint thermostats.
const NodeTypeThermostat = "Setpoint Thermostat"

// Key identifies a node within the installation.
type Key struct {
	HomeID uint32
	NodeID uint8
}

// CapabilityValue is one readable or controllable property of a device.
type CapabilityValue struct {
	ID       uint64    `json:"id"`
	Class    uint8     `json:"class"`
	Instance uint8     `json:"instance"`
	Index    uint8     `json:"index"`
	Label    string    `json:"label"`
	Units    string    `json:"units,omitempty"`
	Declared ValueType `json:"type"`
	Value    Value     `json:"-"`
	Items    []string  `json:"items,omitempty"`
	Min      int32     `json:"min,omitempty"`
	Max      int32     `json:"max,omitempty"`
	ReadOnly bool      `json:"read_only,omitempty"`
}

// IsPrimary reports whether v is a candidate for class-wide operations.
// Multilevel switches expose several values under one class; only index 0
// is the level itself.
func (v CapabilityValue) IsPrimary() bool {
	return v.Class != ClassSwitchMultilevel || v.Index == 0
}

// NodeInfo is the node metadata reported by the driver.
type NodeInfo struct {
	Name         string `json:"name"`
	Location     string `json:"location"`
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer"`
	ProductName  string `json:"product_name"`
	ProductID    string `json:"product_id"`
	Basic        uint8  `json:"basic"`
	Generic      uint8  `json:"generic"`
	Specific     uint8  `json:"specific"`
}

// IsController reports whether the node is a controller rather than a slave.
func (n NodeInfo) IsController() bool {
	return n.Basic != 0 && n.Basic < BasicSlave
}

// Device is one node on the mesh network together with its values.
type Device struct {
	HomeID         uint32
	NodeID         uint8
	Info           NodeInfo
	BasicMapping   uint8
	LastSeen       time.Time
	Polled         bool
	NeedsClockSync bool
	Values         []CapabilityValue
}

// Key returns the registry key of the device.
func (d *Device) Key() Key {
	return Key{HomeID: d.HomeID, NodeID: d.NodeID}
}

// FindValue returns the first value with the given class and label.
func (d *Device) FindValue(class uint8, label string) (CapabilityValue, bool) {
	for _, v := range d.Values {
		if v.Class == class && v.Label == label && v.IsPrimary() {
			return v, true
		}
	}
	return CapabilityValue{}, false
}

// FindLabel returns the first value with the given label in any class.
func (d *Device) FindLabel(label string) (CapabilityValue, bool) {
	for _, v := range d.Values {
		if v.Label == label {
			return v, true
		}
	}
	return CapabilityValue{}, false
}

// DeepCopy creates an independent copy of the Device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	if d.Values != nil {
		cpy.Values = make([]CapabilityValue, len(d.Values))
		for i, v := range d.Values {
			if v.Items != nil {
				v.Items = append([]string(nil), v.Items...)
			}
			cpy.Values[i] = v
		}
	}
	return &cpy
}
