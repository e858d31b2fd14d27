package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/alarm"
	"github.com/nerrad567/gray-logic-zwave/internal/automation"
	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/sun"
)

// handleAlarm runs the action of a fired alarm. It is the scheduler's
// handler and runs on the timer goroutine.
func (g *Gateway) handleAlarm(ctx context.Context, a alarm.Alarm) error {
	g.metrics.AlarmFired(a.Label)
	g.logger.Debug("alarm fired", "label", a.Label, "fires_at", a.FiresAt)

	if a.Label == AlarmUpdate {
		g.broadcaster.BroadcastUpdate()
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch a.Label {
	case AlarmSunrise:
		return g.atHomeSceneLocked(ctx, a.Label, g.opts.Scenes.Morning)
	case AlarmSunset:
		return g.atHomeSceneLocked(ctx, a.Label, g.opts.Scenes.Night)
	case AlarmThermostat:
		return g.pushThermostatsLocked(ctx)
	case AlarmCacheInit:
		g.wakeups.Rebuild(g.devices.List())
		g.logger.Info("wake-up cache rebuilt", "entries", g.wakeups.Len())
		return nil
	}

	if _, err := g.scenes.Activate(ctx, g.driver, a.Label); err != nil {
		return fmt.Errorf("alarm %q is neither a trigger nor a scene: %w", a.Label, err)
	}
	g.logger.Info("scene activated by alarm", "scene", a.Label)
	return nil
}

// atHomeSceneLocked activates scene for a sun trigger when someone is home.
func (g *Gateway) atHomeSceneLocked(ctx context.Context, trigger, scene string) error {
	if !g.atHome {
		return nil
	}
	if _, err := g.scenes.Activate(ctx, g.driver, scene); err != nil {
		return fmt.Errorf("%s trigger went off, but no usable scene is set: %w", trigger, err)
	}
	g.logger.Info("scene activated", "trigger", trigger, "scene", scene)
	return nil
}

// pushThermostatsLocked writes the setpoint of every changed room to each
// thermostat in it and clears the room's Changed flag.
func (g *Gateway) pushThermostatsLocked(ctx context.Context) error {
	devices := g.devices.List()
	var errs []error
	for _, room := range g.rooms.Changed() {
		g.logger.Info("sending setpoint to room", "room", room.Name, "setpoint", room.Setpoint)
		for i := range devices {
			d := &devices[i]
			if d.Info.Location != room.Name || d.Info.Type != device.NodeTypeThermostat {
				continue
			}
			err := g.setCapabilityValueLocked(ctx, d.HomeID, d.NodeID, formatFloat(room.Setpoint), device.ClassThermostatSetpoint, device.LabelSetpoint)
			if err != nil {
				errs = append(errs, err)
			}
		}
		g.rooms.MarkPushed(room.Name)
	}
	return errors.Join(errs...)
}

// sunTimesLocked returns the next sunrise/sunset pair: today's, or
// tomorrow's once today's sunset has passed.
func (g *Gateway) sunTimesLocked() (rise, set time.Time, err error) {
	now := g.now().In(g.opts.Location)
	rise, set, err = sun.Times(now, g.opts.Latitude, g.opts.Longitude)
	if err != nil {
		return rise, set, err
	}
	if set.Before(now) {
		return sun.Times(now.AddDate(0, 0, 1), g.opts.Latitude, g.opts.Longitude)
	}
	return rise, set, nil
}

// scheduleSunLocked queues the Sunrise and Sunset alarms. Times already in
// the past are skipped. Repeated calls on one day collapse in the queue.
func (g *Gateway) scheduleSunLocked() (string, error) {
	rise, set, err := g.sunTimesLocked()
	if err != nil {
		return "", err
	}
	now := g.now()
	if rise.After(now) {
		g.alarms.Schedule(AlarmSunrise, rise)
	}
	if set.After(now) {
		g.alarms.Schedule(AlarmSunset, set)
	}
	return fmt.Sprintf("Sunrise at %s, sunset at %s", rise.Format("15:04"), set.Format("15:04")), nil
}

// checkClocksLocked compares the clock of every device exposing the clock
// class with the gateway's local time and flags the ones that drifted.
func (g *Gateway) checkClocksLocked() (drifted, unreadable []uint8) {
	now := g.now().In(g.opts.Location)
	for _, d := range g.devices.List() {
		hasClock, drift, bad := false, false, false
		for _, v := range d.Values {
			if v.Class != device.ClassClock {
				continue
			}
			hasClock = true
			switch v.Index {
			case 0:
				day, ok := v.Value.(device.List)
				if !ok {
					bad = true
				} else if day.Selected != now.Weekday().String() {
					drift = true
				}
			case 1, 2:
				f, ok := device.Float(v.Value)
				want := now.Hour()
				if v.Index == 2 {
					want = now.Minute()
				}
				if !ok {
					bad = true
				} else if int(f) != want {
					drift = true
				}
			default:
				bad = true
			}
		}
		if !hasClock {
			continue
		}
		if err := g.devices.SetNeedsClockSync(d.HomeID, d.NodeID, drift); err != nil {
			g.logger.Debug("clock flag not stored", "node_id", d.NodeID, "error", err)
		}
		if drift {
			drifted = append(drifted, d.NodeID)
		}
		if bad {
			unreadable = append(unreadable, d.NodeID)
		}
	}
	return drifted, unreadable
}

// switchAtHome toggles the at-home flag and activates the scene that fits
// the new state and the time of day. Scene failures are reported in the
// returned text; the toggle itself stands.
func (g *Gateway) switchAtHome(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rise, set, err := g.sunTimesLocked()
	if err != nil {
		return "", &CommandError{Main: "Could not compute sunrise and sunset for the configured location", Err: err}
	}

	g.atHome = !g.atHome
	var out strings.Builder
	scene, setting := g.opts.Scenes.Away, "awayScene"
	if g.atHome {
		out.WriteString("Welcome home\n")
		scene, setting = g.opts.Scenes.Night, "nightScene"
		if sun.IsDaytime(g.now(), rise, set) {
			scene, setting = g.opts.Scenes.Day, "dayScene"
		}
	} else {
		out.WriteString("Bye bye\n")
	}
	g.logger.Info("at-home state switched", "at_home", g.atHome, "scene", scene)

	if sc, err := g.scenes.Activate(ctx, g.driver, scene); err != nil {
		fmt.Fprintf(&out, "ProtocolException: %s\n", sceneErrText(err))
		fmt.Fprintf(&out, "No %s is set, set it in the configuration\n", setting)
	} else {
		fmt.Fprintf(&out, "Activate scene %s\n", sc.Name)
	}
	return out.String(), nil
}

func sceneErrText(err error) string {
	switch {
	case errors.Is(err, automation.ErrNoScenes):
		return "No scenes created"
	case errors.Is(err, automation.ErrSceneNotFound), errors.Is(err, automation.ErrInvalidName):
		return "Scene not found"
	}
	return err.Error()
}
