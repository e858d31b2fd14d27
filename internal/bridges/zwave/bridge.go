package zwave

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/nerrad567/gray-logic-zwave/internal/driver"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/mqtt"
)

const (
	// DefaultEventBuffer is the event channel capacity when none is set.
	DefaultEventBuffer = 256

	// DefaultResponseTimeout is how long a request id is remembered for
	// correlating the daemon's reply.
	DefaultResponseTimeout = 30 * time.Second

	commandQoS = 1
)

// MQTTClient is the broker surface the bridge needs. *mqtt.Client
// implements it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Metrics receives the bridge's drop counter.
type Metrics interface {
	EventDropped()
}

// Logger is the logging surface used by the bridge.
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

type nodeKey struct {
	homeID uint32
	nodeID uint8
}

// Options configures a Bridge.
type Options struct {
	// Topics names the daemon's topic tree.
	Topics mqtt.Topics

	// MQTT is the broker connection. Required.
	MQTT MQTTClient

	// Store persists node metadata and scenes. Required.
	Store *Store

	// EventBuffer is the event channel capacity. Zero means
	// DefaultEventBuffer.
	EventBuffer int

	// ResponseTimeout bounds the wait for the daemon's reply. Zero means
	// DefaultResponseTimeout.
	ResponseTimeout time.Duration

	// Metrics is optional.
	Metrics Metrics
}

// Bridge implements driver.Driver against a Z-Wave daemon reachable over
// MQTT.
//
// Notifications arrive on {prefix}/event/{type} and are decoded onto a
// bounded channel; when the consumer falls behind, new events are dropped
// with a warning rather than stalling the broker connection. Requests go
// out on {prefix}/command/{op}, each with a fresh request id; the daemon's
// reply on {prefix}/response/{id} is matched back and failures are logged.
//
// The daemon forgets node names, locations and scenes across restarts.
// The bridge owns them: scenes are written to the Store immediately, node
// metadata is staged and written by WriteConfig. Node events that arrive
// without a name or location are filled in from the staged or stored copy.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	topics  mqtt.Topics
	mqtt    MQTTClient
	store   *Store
	metrics Metrics
	logger  Logger
	now     func() time.Time

	events  chan driver.Event
	pending *ttlcache.Cache[string, string]

	mu      sync.Mutex
	started bool
	stopped bool
	nodes   map[nodeKey]NodeMeta
	dirty   map[nodeKey]bool

	stopOnce sync.Once
}

// New creates a bridge. Call Start to subscribe.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	timeout := opts.ResponseTimeout
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}

	b := &Bridge{
		topics:  opts.Topics,
		mqtt:    opts.MQTT,
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  noopLogger{},
		now:     time.Now,
		events:  make(chan driver.Event, buffer),
		pending: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](timeout),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		nodes: make(map[nodeKey]NodeMeta),
		dirty: make(map[nodeKey]bool),
	}
	b.pending.OnEviction(b.onRequestEvicted)
	return b, nil
}

// onRequestEvicted reports requests the daemon never answered.
func (b *Bridge) onRequestEvicted(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, string]) {
	if reason != ttlcache.EvictionReasonExpired {
		return
	}
	b.logger.Warn("command unanswered",
		"op", item.Value(), "id", item.Key(), "error", ErrCommandTimeout)
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start loads stored node metadata and subscribes to the daemon's event
// and response topics.
func (b *Bridge) Start(ctx context.Context) error {
	nodes, err := b.store.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("loading node metadata: %w", err)
	}
	b.mu.Lock()
	for _, n := range nodes {
		b.nodes[nodeKey{n.HomeID, n.NodeID}] = n
	}
	b.started = true
	b.mu.Unlock()

	go b.pending.Start()

	if err := b.mqtt.Subscribe(b.topics.AllEvents(), commandQoS, b.handleEvent); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}
	if err := b.mqtt.Subscribe(b.topics.AllResponses(), commandQoS, b.handleResponse); err != nil {
		return fmt.Errorf("subscribe to responses: %w", err)
	}

	b.logger.Info("zwave bridge started",
		"events", b.topics.AllEvents(),
		"known_nodes", len(nodes))
	return nil
}

// Stop closes the event channel. Messages arriving afterwards are ignored.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		close(b.events)
		started := b.started
		b.mu.Unlock()
		// The expiry loop only runs once Start has been called.
		if started {
			b.pending.Stop()
		}
		b.logger.Info("zwave bridge stopped")
	})
}

// Events returns the notification stream. It is closed by Stop.
func (b *Bridge) Events() <-chan driver.Event {
	return b.events
}

// handleEvent decodes one daemon notification and queues it.
func (b *Bridge) handleEvent(topic string, payload []byte) error {
	ev, err := decodeEvent(eventTypeFromTopic(topic), payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil
	}

	b.enrichLocked(&ev)

	select {
	case b.events <- ev:
	default:
		b.logger.Warn("event buffer full, dropping event",
			"type", ev.Type, "node_id", ev.NodeID, "capacity", cap(b.events))
		if b.metrics != nil {
			b.metrics.EventDropped()
		}
	}
	return nil
}

// enrichLocked fills in a node's name and location from the bridge's copy
// when the daemon reports them empty. Callers must hold b.mu.
func (b *Bridge) enrichLocked(ev *driver.Event) {
	if ev.Node == nil {
		return
	}
	meta, ok := b.nodes[nodeKey{ev.HomeID, ev.NodeID}]
	if !ok {
		return
	}
	info := *ev.Node
	if info.Name == "" {
		info.Name = meta.Name
	}
	if info.Location == "" {
		info.Location = meta.Location
	}
	ev.Node = &info
}

// handleResponse matches a daemon reply to the request that caused it.
func (b *Bridge) handleResponse(_ string, payload []byte) error {
	var resp responseMessage
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	item := b.pending.Get(resp.ID)
	if item == nil {
		b.logger.Debug("response for unknown request", "id", resp.ID, "status", resp.Status)
		return nil
	}
	b.pending.Delete(resp.ID)

	if resp.Status != "ok" {
		b.logger.Warn("driver rejected command",
			"op", item.Value(), "id", resp.ID, "error", resp.Error)
	}
	return nil
}

// publish sends one command and remembers its id for the reply.
func (b *Bridge) publish(op string, msg commandMessage) error {
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if !b.mqtt.IsConnected() {
		return fmt.Errorf("%s: %w", op, mqtt.ErrNotConnected)
	}

	msg.ID = uuid.NewString()
	msg.Timestamp = b.now().UTC()
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", op, err)
	}

	b.pending.Set(msg.ID, op, ttlcache.DefaultTTL)
	if err := b.mqtt.Publish(b.topics.Command(op), payload, commandQoS, false); err != nil {
		b.pending.Delete(msg.ID)
		return fmt.Errorf("%s: %w", op, err)
	}
	b.logger.Debug("command published", "op", op, "id", msg.ID)
	return nil
}

// PendingRequests returns the number of requests awaiting a reply.
func (b *Bridge) PendingRequests() int {
	return b.pending.Len()
}

var _ driver.Driver = (*Bridge)(nil)
