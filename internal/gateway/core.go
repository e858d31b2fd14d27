package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/alarm"
	"github.com/nerrad567/gray-logic-zwave/internal/auth"
	"github.com/nerrad567/gray-logic-zwave/internal/automation"
	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
)

// Default delays for deferred work.
const (
	DefaultUpdateDelay     = 10 * time.Second
	DefaultThermostatDelay = 10 * time.Second
	DefaultCacheInitDelay  = 5 * time.Second
)

// ErrDriverFailed is returned by WaitReady when the driver reported that it
// could not start.
var ErrDriverFailed = errors.New("gateway: driver failed to initialise")

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broadcaster pushes the UPDATE notification to subscribed clients.
// Implementations must not block.
type Broadcaster interface {
	BroadcastUpdate()
}

// Telemetry records numeric value changes.
type Telemetry interface {
	WriteValueChange(homeID uint32, nodeID uint8, label string, value float64)
}

// Metrics receives counters for commands, driver events and alarms.
type Metrics interface {
	CommandHandled(command string, err error)
	EventHandled(eventType string)
	AlarmFired(label string)
}

// TokenValidator checks the token carried by an AUTH command.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Identity, error)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastUpdate() {}

type noopTelemetry struct{}

func (noopTelemetry) WriteValueChange(uint32, uint8, string, float64) {}

type noopMetrics struct{}

func (noopMetrics) CommandHandled(string, error) {}
func (noopMetrics) EventHandled(string)          {}
func (noopMetrics) AlarmFired(string)            {}

// SceneNames are the scenes activated by the at-home automation.
type SceneNames struct {
	Morning string
	Day     string
	Night   string
	Away    string
}

// Options configures a Gateway.
type Options struct {
	Latitude  float64
	Longitude float64

	// Location is the time zone for sunrise/sunset and clock checks.
	// Defaults to time.Local.
	Location *time.Location

	Scenes SceneNames

	UpdateDelay     time.Duration
	ThermostatDelay time.Duration
	CacheInitDelay  time.Duration
}

func (o *Options) setDefaults() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.UpdateDelay <= 0 {
		o.UpdateDelay = DefaultUpdateDelay
	}
	if o.ThermostatDelay <= 0 {
		o.ThermostatDelay = DefaultThermostatDelay
	}
	if o.CacheInitDelay <= 0 {
		o.CacheInitDelay = DefaultCacheInitDelay
	}
}

// Gateway is the application context shared by the reconciler, the alarm
// handler and every transport session.
//
// Thread Safety: mu serialises every read-modify-write sequence across the
// registry, the room and scene lists and the wake-up cache. Exported methods
// take the lock; helpers with a Locked suffix expect it to be held. Driver
// calls made under the lock are fire-and-forget.
type Gateway struct {
	mu sync.Mutex

	devices *device.Registry
	rooms   *automation.Rooms
	scenes  *automation.Scenes
	wakeups *WakeupCache
	alarms  *alarm.Scheduler
	driver  driver.Driver
	opts    Options

	homeID uint32
	atHome bool

	ready      chan struct{}
	readyOnce  sync.Once
	initFailed bool

	shutdown func()
	now      func() time.Time

	logger      Logger
	broadcaster Broadcaster
	telemetry   Telemetry
	metrics     Metrics
	validator   TokenValidator
}

// New creates a gateway on top of drv. The gateway is idle until Run is
// called.
func New(drv driver.Driver, opts Options) *Gateway {
	opts.setDefaults()
	g := &Gateway{
		devices:     device.NewRegistry(),
		rooms:       automation.NewRooms(),
		scenes:      automation.NewScenes(),
		wakeups:     NewWakeupCache(),
		driver:      drv,
		opts:        opts,
		ready:       make(chan struct{}),
		shutdown:    func() {},
		now:         time.Now,
		logger:      noopLogger{},
		broadcaster: noopBroadcaster{},
		telemetry:   noopTelemetry{},
		metrics:     noopMetrics{},
	}
	g.alarms = alarm.New(g.handleAlarm)
	return g
}

// SetLogger sets the logger for the gateway and the components it owns.
func (g *Gateway) SetLogger(logger Logger) {
	g.logger = logger
	g.devices.SetLogger(logger)
	g.alarms.SetLogger(logger)
}

// SetBroadcaster sets the target of UPDATE notifications.
func (g *Gateway) SetBroadcaster(b Broadcaster) {
	g.broadcaster = b
}

// SetTelemetry sets the sink for numeric value changes.
func (g *Gateway) SetTelemetry(t Telemetry) {
	g.telemetry = t
}

// SetMetrics sets the metrics collector.
func (g *Gateway) SetMetrics(m Metrics) {
	g.metrics = m
}

// SetValidator enables AUTH gating of WebSocket sessions. With no validator
// every session is treated as authenticated.
func (g *Gateway) SetValidator(v TokenValidator) {
	g.validator = v
}

// SetShutdown sets the function the EXIT command calls.
func (g *Gateway) SetShutdown(fn func()) {
	g.shutdown = fn
}

// SetClock replaces the time source of the gateway and its scheduler.
// Intended for tests.
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
	g.alarms.SetClock(now)
	g.devices.SetClock(now)
}

// Registry returns the device registry.
func (g *Gateway) Registry() *device.Registry { return g.devices }

// Rooms returns the room list.
func (g *Gateway) Rooms() *automation.Rooms { return g.rooms }

// Scenes returns the scene cache.
func (g *Gateway) Scenes() *automation.Scenes { return g.scenes }

// Alarms returns the alarm scheduler.
func (g *Gateway) Alarms() *alarm.Scheduler { return g.alarms }

// Wakeups returns the wake-up interval cache.
func (g *Gateway) Wakeups() *WakeupCache { return g.wakeups }

// AuthRequired reports whether WebSocket sessions must AUTH first.
func (g *Gateway) AuthRequired() bool { return g.validator != nil }

// HomeID returns the network id reported by the driver.
func (g *Gateway) HomeID() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.homeID
}

// AtHome reports the at-home flag.
func (g *Gateway) AtHome() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.atHome
}

// Run consumes driver events and drives the alarm timer until ctx is
// cancelled or the driver closes its event channel.
func (g *Gateway) Run(ctx context.Context) {
	go g.alarms.Run(ctx)

	events := g.driver.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				g.logger.Warn("driver event stream closed")
				g.releaseStartup()
				return
			}
			g.HandleEvent(ctx, ev)
		}
	}
}

// WaitReady blocks until the driver finished its initial node queries or
// reported failure.
func (g *Gateway) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ready:
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initFailed {
		return ErrDriverFailed
	}
	return nil
}

// Snapshot builds the room list, the scene cache and the wake-up cache from
// the current registry contents. Call it once after WaitReady, before
// accepting client connections.
func (g *Gateway) Snapshot(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	devices := g.devices.List()
	g.rooms.Rebuild(devices)
	g.wakeups.Rebuild(devices)
	if err := g.scenes.Rebuild(ctx, g.driver); err != nil {
		return err
	}

	g.logger.Info("gateway state initialised",
		"devices", len(devices),
		"rooms", len(g.rooms.List()),
		"scenes", len(g.scenes.List()),
		"wakeup_entries", g.wakeups.Len(),
	)
	return nil
}

func (g *Gateway) releaseStartup() {
	g.readyOnce.Do(func() { close(g.ready) })
}

// classOrBasicLocked returns the node's mapped command class, falling back
// to the basic class when the node has no mapping.
func (g *Gateway) classOrBasicLocked(homeID uint32, nodeID uint8) uint8 {
	class, err := g.devices.ResolveMapping(homeID, nodeID)
	if err != nil {
		g.logger.Debug("node mapped to basic class", "node_id", nodeID, "reason", err)
		return device.ClassBasic
	}
	return class
}
