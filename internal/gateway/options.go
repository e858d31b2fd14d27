package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

// SETNODE option errors.
var (
	ErrUnknownOption    = errors.New("unknown option")
	ErrNodeIsController = errors.New("node is a controller")
	ErrNoWakeup         = errors.New("this device does not have a wake-up interval")
	ErrWakeupBounds     = errors.New("the new interval is not within bounds of min and max interval for this device")
)

// optionTarget is the node a SETNODE command applies to.
type optionTarget struct {
	homeID uint32
	nodeID uint8
}

// nodeOption is one SETNODE option. apply runs with the gateway lock held.
type nodeOption interface {
	apply(ctx context.Context, g *Gateway, t optionTarget) error
}

// parseOption maps an option name to its variant.
func parseOption(name, value string) (nodeOption, error) {
	switch name {
	case "Name":
		return nameOption(value), nil
	case "Location":
		return locationOption(value), nil
	case "Switch":
		return valueOption{class: device.ClassSwitchBinary, label: device.LabelSwitch, text: value}, nil
	case "Level":
		return valueOption{class: device.ClassSwitchMultilevel, label: device.LabelLevel, text: value}, nil
	case "Thermostat Setpoint":
		return valueOption{class: device.ClassThermostatSetpoint, label: device.LabelSetpoint, text: value}, nil
	case "Battery report":
		return valueOption{class: device.ClassConfiguration, label: device.LabelBatteryReport, text: value}, nil
	case "Polling":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: polling intensity %q", ErrBadArgument, value)
		}
		return pollingOption(n), nil
	case "Wake-up Interval":
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: interval %q", ErrBadArgument, value)
		}
		return wakeupOption(int32(n)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOption, name)
}

type nameOption string

func (o nameOption) apply(ctx context.Context, g *Gateway, t optionTarget) error {
	if err := g.driver.SetNodeName(ctx, t.homeID, t.nodeID, string(o)); err != nil {
		return err
	}
	return g.devices.SetName(t.homeID, t.nodeID, string(o))
}

type locationOption string

func (o locationOption) apply(ctx context.Context, g *Gateway, t optionTarget) error {
	if err := g.driver.SetNodeLocation(ctx, t.homeID, t.nodeID, string(o)); err != nil {
		return err
	}
	if err := g.devices.SetLocation(t.homeID, t.nodeID, string(o)); err != nil {
		return err
	}
	g.rooms.Reset(g.devices.List())
	return nil
}

// valueOption writes one labelled capability value.
type valueOption struct {
	class uint8
	label string
	text  string
}

func (o valueOption) apply(ctx context.Context, g *Gateway, t optionTarget) error {
	return g.setCapabilityValueLocked(ctx, t.homeID, t.nodeID, o.text, o.class, o.label)
}

// pollingOption enables polling of the node's primary values: 0 disables,
// 1 polls at normal intensity, 2 and above at reduced intensity.
type pollingOption int

func (o pollingOption) apply(ctx context.Context, g *Gateway, t optionTarget) error {
	d, err := g.devices.Find(t.homeID, t.nodeID)
	if err != nil {
		return err
	}
	if d.Info.IsController() {
		return ErrNodeIsController
	}

	values, err := g.primaryValuesLocked(t.homeID, t.nodeID)
	if err != nil {
		return err
	}
	for _, v := range values {
		ref := driver.ValueRef{HomeID: t.homeID, NodeID: t.nodeID, ValueID: v.ID}
		switch {
		case o == 1:
			err = g.driver.EnablePoll(ctx, ref, driver.PollNormal)
		case o >= 2:
			err = g.driver.EnablePoll(ctx, ref, driver.PollReduced)
		default:
			err = g.driver.DisablePoll(ctx, ref)
		}
		if err != nil {
			return fmt.Errorf("could not change polling for value %d: %w", v.ID, err)
		}
	}
	return nil
}

// wakeupOption sets the wake-up interval and remembers it as the desired
// interval for the node.
type wakeupOption int32

func (o wakeupOption) apply(ctx context.Context, g *Gateway, t optionTarget) error {
	entry, ok := g.wakeups.Get(t.homeID, t.nodeID)
	if !ok {
		return ErrNoWakeup
	}
	if !entry.InBounds(int32(o)) {
		return fmt.Errorf("%w (%d..%d)", ErrWakeupBounds, entry.Min, entry.Max)
	}
	g.wakeups.SetInterval(t.homeID, t.nodeID, int32(o))
	return g.setCapabilityValueLocked(ctx, t.homeID, t.nodeID, strconv.Itoa(int(o)), device.ClassWakeUp, device.LabelWakeupInterval)
}
