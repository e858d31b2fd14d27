package gateway

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

// setCapabilityValueLocked converts text to the declared type of every
// primary value matching (class, label) on the node and writes it through
// the driver. The registry is not touched; the driver reports the new value
// as a ValueChanged event.
//
// Returns device.ErrDeviceNotFound, device.ErrCapabilityNotFound or
// device.ErrBadValue.
func (g *Gateway) setCapabilityValueLocked(ctx context.Context, homeID uint32, nodeID uint8, text string, class uint8, label string) error {
	d, err := g.devices.Find(homeID, nodeID)
	if err != nil {
		return fmt.Errorf("node %d: %w", nodeID, err)
	}

	matched := false
	for _, v := range d.Values {
		if v.Class != class || v.Label != label || !v.IsPrimary() {
			continue
		}
		matched = true

		val, err := device.Parse(v.Declared, text, v.Items)
		if err != nil {
			return fmt.Errorf("node %d %s: %w", nodeID, label, err)
		}
		ref := driver.ValueRef{HomeID: homeID, NodeID: nodeID, ValueID: v.ID}
		if err := g.driver.SetValue(ctx, ref, val); err != nil {
			return fmt.Errorf("node %d %s: setting value: %w", nodeID, label, err)
		}
		g.logger.Debug("value set", "node_id", nodeID, "label", label, "value", val.String())
	}

	if !matched {
		return fmt.Errorf("could not match node %d to class %#02x %q: %w", nodeID, class, label, device.ErrCapabilityNotFound)
	}
	return nil
}

// primaryValuesLocked returns the node's values in its mapped command class,
// keeping only index 0 of multilevel switches.
func (g *Gateway) primaryValuesLocked(homeID uint32, nodeID uint8) ([]device.CapabilityValue, error) {
	d, err := g.devices.Find(homeID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", nodeID, err)
	}
	class := g.classOrBasicLocked(homeID, nodeID)

	var out []device.CapabilityValue
	for _, v := range d.Values {
		if v.Class == class && v.IsPrimary() {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("node %d has no values in class %#02x: %w", nodeID, class, device.ErrCapabilityNotFound)
	}
	return out, nil
}
