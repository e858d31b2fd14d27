package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/auth"
	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
	"github.com/nerrad567/gray-logic-zwave/internal/driver/drivertest"
)

const testHome uint32 = 0x00c0ffee

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingBroadcaster counts UPDATE broadcasts.
type countingBroadcaster struct {
	mu    sync.Mutex
	count int
}

func (b *countingBroadcaster) BroadcastUpdate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
}

func (b *countingBroadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// recordingTelemetry collects value change points.
type recordingTelemetry struct {
	mu     sync.Mutex
	points []string
}

func (r *recordingTelemetry) WriteValueChange(_ uint32, _ uint8, label string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, label)
}

// stubValidator accepts a single token.
type stubValidator struct {
	good string
}

var errBadToken = errors.New("token rejected")

func (v stubValidator) Validate(_ context.Context, token string) (*auth.Identity, error) {
	if token != v.good {
		return nil, errBadToken
	}
	return &auth.Identity{Subject: "user-1", Profile: []byte(`{"name":"Test User"}`)}, nil
}

type fixture struct {
	g     *Gateway
	drv   *drivertest.Fake
	clock *testClock
}

// newFixture creates a ready gateway located in Amsterdam with the clock at
// 2026-06-01 08:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	drv := drivertest.New(16)
	g := New(drv, Options{
		Latitude:  52.37,
		Longitude: 4.90,
		Location:  time.UTC,
		Scenes:    SceneNames{Morning: "Morning", Day: "Day", Night: "Night", Away: "Away"},
	})
	clock := &testClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	g.SetClock(clock.Now)

	f := &fixture{g: g, drv: drv, clock: clock}
	f.event(driver.Event{Type: driver.EventDriverReady, HomeID: testHome})
	return f
}

func (f *fixture) event(ev driver.Event) {
	f.g.HandleEvent(context.Background(), ev)
}

// addNode adds a node with the given metadata and values.
func (f *fixture) addNode(nodeID uint8, info device.NodeInfo, values ...device.CapabilityValue) {
	f.event(driver.Event{Type: driver.EventNodeAdded, HomeID: testHome, NodeID: nodeID, Node: &info})
	for i := range values {
		v := values[i]
		f.event(driver.Event{Type: driver.EventValueAdded, HomeID: testHome, NodeID: nodeID, Value: &v})
	}
}

func (f *fixture) dispatch(line string) *Response {
	return f.g.Dispatch(context.Background(), line, nil)
}

func slave(name, location, typ string) device.NodeInfo {
	return device.NodeInfo{Name: name, Location: location, Type: typ, Basic: device.BasicRoutingSlave}
}

func switchValue(id uint64, on bool) device.CapabilityValue {
	return device.CapabilityValue{ID: id, Class: device.ClassSwitchBinary, Label: device.LabelSwitch, Declared: device.TypeBool, Value: device.Bool(on)}
}

func setpointValue(id uint64, sp float32) device.CapabilityValue {
	return device.CapabilityValue{ID: id, Class: device.ClassThermostatSetpoint, Label: device.LabelSetpoint, Declared: device.TypeDecimal, Value: device.Decimal(sp)}
}

func tempValue(id uint64, temp float32) device.CapabilityValue {
	return device.CapabilityValue{ID: id, Class: device.ClassSensorMultilevel, Label: device.LabelTemperature, Declared: device.TypeDecimal, Value: device.Decimal(temp)}
}

func wakeupValues(base uint64, interval, lo, hi int32) []device.CapabilityValue {
	return []device.CapabilityValue{
		{ID: base, Class: device.ClassWakeUp, Label: device.LabelWakeupInterval, Declared: device.TypeInt, Value: device.Int(interval)},
		{ID: base + 1, Class: device.ClassWakeUp, Label: labelMinWakeup, Declared: device.TypeInt, Value: device.Int(lo), ReadOnly: true},
		{ID: base + 2, Class: device.ClassWakeUp, Label: labelMaxWakeup, Declared: device.TypeInt, Value: device.Int(hi), ReadOnly: true},
	}
}

func wantError(t *testing.T, resp *Response, main string, code int) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("response %+v has no error, want %q", resp, main)
	}
	if resp.Error.Main != main || resp.Error.Code != code {
		t.Errorf("error = %+v, want main %q code %d", resp.Error, main, code)
	}
}

func wantOK(t *testing.T, resp *Response) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}
