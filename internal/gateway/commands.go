package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/automation"
	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

// Alarm labels with a built-in action. Any other label is activated as a
// scene of that name.
const (
	AlarmSunrise    = "Sunrise"
	AlarmSunset     = "Sunset"
	AlarmUpdate     = "Update"
	AlarmThermostat = "Thermostat"
	AlarmCacheInit  = "CacheInit"
)

// lastSeenLayout formats LastSeen in ALIST, e.g. "Tue 03 Mar 14:05".
const lastSeenLayout = "Mon 02 Jan 15:04"

func cmdAList(_ context.Context, g *Gateway, _ *Session, _ []string, resp *Response) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	devices := g.devices.List()
	resp.Nodes = make([]NodeRecord, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		if d.Info.IsController() {
			continue
		}
		resp.Nodes = append(resp.Nodes, g.nodeRecordLocked(d))
	}
	return nil
}

func (g *Gateway) nodeRecordLocked(d *device.Device) NodeRecord {
	name := d.Info.Name
	if name == "" {
		name = "Undefined"
	}
	rec := NodeRecord{
		Name:         name,
		ID:           d.NodeID,
		Location:     d.Info.Location,
		Type:         d.Info.Type,
		Manufacturer: d.Info.Manufacturer,
		ProductName:  d.Info.ProductName,
		ProductID:    d.Info.ProductID,
		Values:       make(Values, 0, len(d.Values)),
	}
	if !d.LastSeen.IsZero() {
		rec.LastSeen = d.LastSeen.In(g.opts.Location).Format(lastSeenLayout)
	}
	for _, v := range d.Values {
		text := ""
		if v.Value != nil {
			text = v.Value.String()
		}
		rec.Values = append(rec.Values, LabelValue{Label: v.Label, Value: text})
	}
	return rec
}

func cmdSetNode(ctx context.Context, g *Gateway, _ *Session, args []string, resp *Response) error {
	nodeID, err := parseNode(args[1])
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	target := optionTarget{homeID: g.homeID, nodeID: nodeID}
	var applied []string
	var failure error

	for _, raw := range strings.Split(args[2], "<>") {
		name, value, ok := strings.Cut(raw, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)

		opt, err := parseOption(name, value)
		if err == nil {
			err = opt.apply(ctx, g, target)
		}
		if err != nil {
			failure = &CommandError{Main: "Error while parsing option " + name, Err: err}
			break
		}
		applied = append(applied, name)
	}

	if len(applied) > 0 {
		if err := g.driver.WriteConfig(ctx, target.homeID); err != nil {
			g.logger.Error("writing driver config failed", "node_id", nodeID, "error", err)
		}
	}

	resp.Text = fmt.Sprintf("The following options have been set for Node %d: %s", nodeID, strings.Join(applied, ", "))
	return failure
}

func cmdRoomList(_ context.Context, g *Gateway, _ *Session, _ []string, resp *Response) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rooms := g.rooms.List()
	resp.Rooms = make([]RoomRecord, 0, len(rooms))
	for _, r := range rooms {
		resp.Rooms = append(resp.Rooms, roomRecord(r))
	}
	return nil
}

func cmdRoom(_ context.Context, g *Gateway, _ *Session, args []string, resp *Response) error {
	var delta float64
	switch args[1] {
	case "PLUS":
		delta = automation.SetpointStep
	case "MINUS":
		delta = -automation.SetpointStep
	default:
		return &ProtocolError{Code: CodeUnknownCommand, Message: "Unknown Room command"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	room, err := g.rooms.Adjust(args[2], delta)
	if err != nil {
		return &CommandError{Main: "Room not found", Err: fmt.Errorf("%w: %s", err, args[2])}
	}
	rec := roomRecord(room)
	resp.Room = &rec
	g.logger.Info("room setpoint adjusted", "room", room.Name, "setpoint", room.Setpoint)

	g.alarms.Reschedule(AlarmThermostat, g.opts.ThermostatDelay)
	g.alarms.Reschedule(AlarmUpdate, g.opts.ThermostatDelay+time.Second)
	return nil
}

func cmdSceneList(_ context.Context, g *Gateway, _ *Session, _ []string, resp *Response) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, sc := range g.scenes.List() {
		resp.Scenes = append(resp.Scenes, SceneRecord{Name: sc.Name, Active: sc.Active})
	}
	return nil
}

func cmdScene(ctx context.Context, g *Gateway, _ *Session, args []string, resp *Response) error {
	want := map[string]int{"CREATE": 3, "DELETE": 3, "ADD": 5, "REMOVE": 4, "ACTIVATE": 3}
	n, ok := want[args[1]]
	if !ok {
		return &ProtocolError{Code: CodeUnknownCommand, Message: "Unknown Scene command"}
	}
	if len(args) != n {
		return &ProtocolError{Code: CodeWrongArgCount, Message: "Wrong number of arguments"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	name := args[2]
	switch args[1] {
	case "CREATE":
		return g.createSceneLocked(ctx, name, resp)
	case "DELETE":
		return g.deleteSceneLocked(ctx, name, resp)
	case "ADD":
		return g.addSceneValueLocked(ctx, name, args[3], args[4], resp)
	case "REMOVE":
		return g.removeSceneValueLocked(ctx, name, args[3], resp)
	default:
		sc, err := g.scenes.Activate(ctx, g.driver, name)
		if err != nil {
			return err
		}
		resp.Text = "Activate scene " + sc.Name
		return nil
	}
}

func (g *Gateway) createSceneLocked(ctx context.Context, name string, resp *Response) error {
	if name == "" {
		return &CommandError{Main: "Could not create scene", Err: automation.ErrInvalidName}
	}
	id, err := g.driver.CreateScene(ctx, name)
	if err != nil {
		return &CommandError{Main: "Could not create scene " + name, Err: err}
	}
	g.writeConfigLocked(ctx)

	if err := g.scenes.Rebuild(ctx, g.driver); err != nil {
		resp.Text = "Scene created, but scenelist could not be refreshed"
		g.logger.Warn("scene list refresh failed", "error", err)
		return nil
	}
	g.alarms.Reschedule(AlarmUpdate, g.opts.UpdateDelay)
	resp.Text = fmt.Sprintf("Scene created with name %s and scene_id %d", name, id)
	return nil
}

func (g *Gateway) deleteSceneLocked(ctx context.Context, name string, resp *Response) error {
	info, err := automation.Lookup(ctx, g.driver, name)
	if err != nil {
		return err
	}
	if err := g.driver.RemoveScene(ctx, info.ID); err != nil {
		return &CommandError{Main: "Could not delete scene " + name, Err: err}
	}
	g.writeConfigLocked(ctx)

	if err := g.scenes.Rebuild(ctx, g.driver); err != nil {
		resp.Text = "Scene deleted, but scenelist could not be refreshed"
		g.logger.Warn("scene list refresh failed", "error", err)
		return nil
	}
	g.alarms.Reschedule(AlarmUpdate, g.opts.UpdateDelay)
	resp.Text = "Scene deleted with name " + name
	return nil
}

func (g *Gateway) addSceneValueLocked(ctx context.Context, name, nodeText, valueText string, resp *Response) error {
	info, err := automation.Lookup(ctx, g.driver, name)
	if err != nil {
		return err
	}
	nodeID, err := parseNode(nodeText)
	if err != nil {
		return err
	}
	f, err := strconv.ParseFloat(valueText, 64)
	if err != nil {
		return &CommandError{Main: "Invalid value", Err: fmt.Errorf("%w: %q", ErrBadArgument, valueText)}
	}

	values, err := g.primaryValuesLocked(g.homeID, nodeID)
	if err != nil {
		return &CommandError{Main: "Could not add valueid/value to scene " + name, Err: err}
	}
	for _, v := range values {
		val, err := device.FromFloat(v.Declared, f, v.Items)
		if err != nil {
			return &CommandError{Main: "Could not add valueid/value to scene " + name, Err: err}
		}
		ref := driver.ValueRef{HomeID: g.homeID, NodeID: nodeID, ValueID: v.ID}
		if err := g.driver.AddSceneValue(ctx, info.ID, ref, val); err != nil {
			return &CommandError{Main: "Could not add valueid/value to scene " + name, Err: err}
		}
	}
	g.writeConfigLocked(ctx)
	resp.Text = "Added valueid/value to scene " + name
	return nil
}

func (g *Gateway) removeSceneValueLocked(ctx context.Context, name, nodeText string, resp *Response) error {
	info, err := automation.Lookup(ctx, g.driver, name)
	if err != nil {
		return err
	}
	nodeID, err := parseNode(nodeText)
	if err != nil {
		return err
	}

	values, err := g.primaryValuesLocked(g.homeID, nodeID)
	if err != nil {
		return &CommandError{Main: "Could not remove valueid from scene " + name, Err: err}
	}
	for _, v := range values {
		ref := driver.ValueRef{HomeID: g.homeID, NodeID: nodeID, ValueID: v.ID}
		if err := g.driver.RemoveSceneValue(ctx, info.ID, ref); err != nil {
			return &CommandError{Main: "Could not remove valueid from scene " + name, Err: err}
		}
	}
	g.writeConfigLocked(ctx)
	resp.Text = "Removed valueid from scene " + name
	return nil
}

func (g *Gateway) writeConfigLocked(ctx context.Context) {
	if err := g.driver.WriteConfig(ctx, g.homeID); err != nil {
		g.logger.Error("writing driver config failed", "error", err)
	}
}

func cmdController(ctx context.Context, g *Gateway, _ *Session, args []string, resp *Response) error {
	g.mu.Lock()
	home := g.homeID
	g.mu.Unlock()

	switch args[1] {
	case "ADD":
		if len(args) != 3 {
			return &ProtocolError{Code: CodeWrongArgCount, Message: "Wrong number of arguments"}
		}
		secure, err := strconv.ParseBool(args[2])
		if err != nil {
			return &CommandError{Main: "Invalid secure flag", Err: fmt.Errorf("%w: %q", ErrBadArgument, args[2])}
		}
		if err := g.driver.AddNode(ctx, home, secure); err != nil {
			return &CommandError{Main: "Controller could not be set to inclusion mode, see the server console for more information", Err: err}
		}
		resp.Text = "Controller is now in inclusion mode, see the server console for more information"
	case "REMOVE":
		if err := g.driver.RemoveNode(ctx, home); err != nil {
			return &CommandError{Main: "Controller could not be set to exclusion mode, see the server console for more information", Err: err}
		}
		resp.Text = "Controller is now in exclusion mode, see the server console for more information"
	case "CANCEL":
		if err := g.driver.CancelControllerCommand(ctx, home); err != nil {
			return &CommandError{Main: "Controller is stuck in inclusion/exclusion mode, please check the server console", Err: err}
		}
		resp.Text = "Controller is now back to normal functioning"
	case "RESET":
		if err := g.driver.ResetController(ctx, home); err != nil {
			return &CommandError{Main: "Controller could not be reset", Err: err}
		}
		resp.Text = "The controller has been reset"
	default:
		return &ProtocolError{Code: CodeUnknownCommand, Message: "Unknown Controller command"}
	}
	return nil
}

func cmdCron(_ context.Context, g *Gateway, _ *Session, _ []string, resp *Response) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	text, err := g.scheduleSunLocked()
	if err != nil {
		return &CommandError{Main: "Could not compute sunrise and sunset", Err: err}
	}

	drifted, unreadable := g.checkClocksLocked()
	if len(drifted) > 0 {
		text += fmt.Sprintf("\nClock out of sync on node(s) %s", joinNodes(drifted))
	}
	resp.Text = text
	if len(unreadable) > 0 {
		return &CommandError{Main: "Could not read the time from node(s) " + joinNodes(unreadable)}
	}
	return nil
}

func cmdSwitch(ctx context.Context, g *Gateway, _ *Session, _ []string, resp *Response) error {
	text, err := g.switchAtHome(ctx)
	resp.Text = text
	g.alarms.Reschedule(AlarmUpdate, g.opts.UpdateDelay)
	return err
}

func cmdAtHome(_ context.Context, g *Gateway, _ *Session, _ []string, resp *Response) error {
	resp.AtHome = boolPtr(g.AtHome())
	return nil
}

func cmdPollInterval(ctx context.Context, g *Gateway, _ *Session, args []string, resp *Response) error {
	minutes, err := parseInt("interval", args[1])
	if err != nil {
		return err
	}
	if minutes <= 0 {
		return &CommandError{Main: "Invalid interval", Err: fmt.Errorf("%w: %d minutes", ErrBadArgument, minutes)}
	}
	if err := g.driver.SetPollInterval(ctx, time.Duration(minutes)*time.Minute); err != nil {
		return &CommandError{Main: "Could not set poll interval", Err: err}
	}
	resp.Text = fmt.Sprintf("Set poll interval to %d minutes", minutes)
	return nil
}

func cmdAlarmList(_ context.Context, g *Gateway, _ *Session, _ []string, resp *Response) error {
	for _, a := range g.alarms.Pending() {
		resp.Alarms = append(resp.Alarms, AlarmRecord{
			Description: a.Label,
			Time:        a.FiresAt.In(g.opts.Location).Format(time.ANSIC),
		})
	}
	return nil
}

func cmdTest(_ context.Context, _ *Gateway, _ *Session, _ []string, resp *Response) error {
	resp.Text = "TEST"
	return nil
}

func cmdExit(_ context.Context, g *Gateway, _ *Session, _ []string, resp *Response) error {
	g.logger.Info("exit requested by client")
	resp.Text = "Server is stopping"
	g.shutdown()
	return nil
}

func cmdAuth(ctx context.Context, g *Gateway, sess *Session, args []string, resp *Response) error {
	if g.validator == nil {
		sess.Authenticated = true
		resp.Auth = boolPtr(true)
		return nil
	}

	resp.Auth = boolPtr(false)
	id, err := g.validator.Validate(ctx, args[1])
	if err != nil {
		return &CommandError{Main: "Could not authenticate", Err: err}
	}
	sess.Authenticated = true
	resp.Auth = boolPtr(true)
	resp.Profile = id.Profile
	g.logger.Info("session authenticated", "session", sess.ID, "subject", id.Subject)
	return nil
}

func joinNodes(ids []uint8) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return strings.Join(parts, ", ")
}
