package gateway

import (
	"context"
	"errors"
	"strconv"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

// HandleEvent applies one driver notification to the gateway state. Run
// calls it for every event; tests call it directly with synthetic events.
func (g *Gateway) HandleEvent(ctx context.Context, ev driver.Event) {
	g.metrics.EventHandled(string(ev.Type))

	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.reconcileLocked(ctx, ev)
	if ev.ReleasesStartup() {
		g.releaseStartup()
	}
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			g.logger.Debug("event for unknown node", "type", ev.Type, "node_id", ev.NodeID)
			return
		}
		g.logger.Warn("driver event not fully applied", "type", ev.Type, "node_id", ev.NodeID, "error", err)
	}
}

func (g *Gateway) reconcileLocked(ctx context.Context, ev driver.Event) error {
	switch ev.Type {
	case driver.EventValueAdded, driver.EventValueRefreshed:
		if ev.Value == nil {
			return nil
		}
		return g.devices.AddOrReplaceValue(ev.HomeID, ev.NodeID, *ev.Value)

	case driver.EventValueRemoved:
		return g.devices.RemoveValue(ev.HomeID, ev.NodeID, ev.ValueID)

	case driver.EventValueChanged:
		return g.valueChangedLocked(ctx, ev)

	case driver.EventNodeNew, driver.EventNodeAdded:
		created := g.devices.Upsert(ev.HomeID, ev.NodeID)
		if ev.Node != nil {
			if err := g.devices.SetNodeInfo(ev.HomeID, ev.NodeID, *ev.Node); err != nil {
				return err
			}
		}
		if created {
			g.wakeups.Rebuild(g.devices.List())
		}
		return nil

	case driver.EventNodeRemoved:
		err := g.devices.Remove(ev.HomeID, ev.NodeID)
		g.wakeups.Rebuild(g.devices.List())
		return err

	case driver.EventNodeProtocolInfo:
		if ev.Node != nil {
			if err := g.devices.SetNodeInfo(ev.HomeID, ev.NodeID, *ev.Node); err != nil {
				return err
			}
		}
		if _, err := g.devices.ResolveMapping(ev.HomeID, ev.NodeID); err != nil && !errors.Is(err, device.ErrNoMapping) {
			return err
		}
		return g.devices.Touch(ev.HomeID, ev.NodeID, g.now())

	case driver.EventNodeNaming:
		if ev.Node != nil {
			if err := g.renameLocked(ev); err != nil {
				return err
			}
		}
		return g.devices.Touch(ev.HomeID, ev.NodeID, g.now())

	case driver.EventNodeEvent, driver.EventDriverReset, driver.EventNodeQueriesComplete:
		return g.devices.Touch(ev.HomeID, ev.NodeID, g.now())

	case driver.EventPollingEnabled:
		return g.devices.SetPolled(ev.HomeID, ev.NodeID, true)

	case driver.EventPollingDisabled:
		return g.devices.SetPolled(ev.HomeID, ev.NodeID, false)

	case driver.EventDriverReady:
		g.homeID = ev.HomeID
		g.logger.Info("driver ready", "home_id", strconv.FormatUint(uint64(ev.HomeID), 16))
		return nil

	case driver.EventDriverFailed:
		g.initFailed = true
		g.logger.Error("driver failed to start")
		return nil

	case driver.EventAwakeNodesQueried, driver.EventAllNodesQueried, driver.EventAllNodesQueriedSomeDead:
		g.logger.Info("initial node queries finished", "type", ev.Type, "devices", g.devices.Count())
		return nil

	case driver.EventControllerCommand:
		g.logger.Info("controller state", "state", ev.ControllerState.String())
		return nil

	case driver.EventGroup:
		g.logger.Debug("association group changed", "node_id", ev.NodeID)
		return nil
	}

	g.logger.Debug("ignoring driver event", "type", ev.Type)
	return nil
}

// renameLocked stores new node metadata and rebuilds the room list when the
// node moved to another location.
func (g *Gateway) renameLocked(ev driver.Event) error {
	d, err := g.devices.Find(ev.HomeID, ev.NodeID)
	if err != nil {
		return err
	}
	if err := g.devices.SetNodeInfo(ev.HomeID, ev.NodeID, *ev.Node); err != nil {
		return err
	}
	if d.Info.Location != ev.Node.Location {
		g.rooms.Reset(g.devices.List())
	}
	return nil
}

// valueChangedLocked stores the new value and runs the follow-ups that
// depend on its label.
func (g *Gateway) valueChangedLocked(ctx context.Context, ev driver.Event) error {
	if ev.Value == nil {
		return nil
	}
	v := *ev.Value
	if err := g.devices.AddOrReplaceValue(ev.HomeID, ev.NodeID, v); err != nil {
		return err
	}
	if err := g.devices.Touch(ev.HomeID, ev.NodeID, g.now()); err != nil {
		return err
	}
	d, err := g.devices.Find(ev.HomeID, ev.NodeID)
	if err != nil {
		return err
	}

	f, numeric := device.Float(v.Value)
	if numeric {
		g.telemetry.WriteValueChange(ev.HomeID, ev.NodeID, v.Label, f)
	}

	var errs []error
	switch {
	case v.Label == device.LabelSetpoint && d.Info.Type == device.NodeTypeThermostat && numeric:
		errs = append(errs, g.syncRoomSetpointLocked(ctx, d, f))
	case v.Label == device.LabelTemperature && numeric:
		if err := g.rooms.SetCurrentTemp(d.Info.Location, f); err == nil {
			g.logger.Debug("room temperature changed", "room", d.Info.Location, "temperature", f)
		}
	case v.Label == device.LabelWakeupInterval && v.Class == device.ClassWakeUp:
		errs = append(errs, g.enforceWakeupLocked(ctx, d, v))
	}

	g.alarms.Reschedule(AlarmUpdate, g.opts.UpdateDelay)
	return errors.Join(errs...)
}

// syncRoomSetpointLocked records a thermostat's new setpoint on its room and
// copies it to the other thermostats in the same room.
func (g *Gateway) syncRoomSetpointLocked(ctx context.Context, src *device.Device, setpoint float64) error {
	location := src.Info.Location
	changed, err := g.rooms.SetSetpoint(location, setpoint)
	if err != nil || !changed {
		return nil
	}
	g.logger.Info("room setpoint changed on device", "room", location, "node_id", src.NodeID, "setpoint", setpoint)

	var errs []error
	for _, d := range g.devices.List() {
		if d.Key() == src.Key() || d.Info.Location != location || d.Info.Type != device.NodeTypeThermostat {
			continue
		}
		if err := g.setCapabilityValueLocked(ctx, d.HomeID, d.NodeID, formatFloat(setpoint), device.ClassThermostatSetpoint, device.LabelSetpoint); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// enforceWakeupLocked pushes the cached interval back to a device that
// reports a different one, typically after a battery change.
func (g *Gateway) enforceWakeupLocked(ctx context.Context, d *device.Device, v device.CapabilityValue) error {
	entry, ok := g.wakeups.Get(d.HomeID, d.NodeID)
	if !ok {
		g.alarms.ScheduleIn(AlarmCacheInit, g.opts.CacheInitDelay)
		return nil
	}
	reported, ok := device.Float(v.Value)
	if !ok || int32(reported) == entry.Interval {
		return nil
	}
	g.logger.Info("restoring wake-up interval", "node_id", d.NodeID, "reported", int32(reported), "desired", entry.Interval)
	return g.setCapabilityValueLocked(ctx, d.HomeID, d.NodeID, strconv.Itoa(int(entry.Interval)), device.ClassWakeUp, device.LabelWakeupInterval)
}
