package zwave

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-zwave/internal/device"
	"github.com/nerrad567/gray-logic-zwave/internal/driver"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-zwave/migrations"
)

const testHome uint32 = 0x0184a2f1

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]mqtt.MessageHandler
	connected  bool
	publishErr error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{topic, payload, qos, retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = v
}

// SimulateMessage delivers payload to the subscription whose pattern
// matches topic.
func (m *MockMQTTClient) SimulateMessage(t *testing.T, topic string, payload []byte) error {
	t.Helper()
	m.mu.Lock()
	var handler mqtt.MessageHandler
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription matches %s", topic)
	}
	return handler(topic, payload)
}

func (m *MockMQTTClient) Published() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockMQTTClient) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

func topicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	s := strings.Split(topic, "/")
	for i, seg := range p {
		if seg == "#" {
			return true
		}
		if i >= len(s) || (seg != "+" && seg != s[i]) {
			return false
		}
	}
	return len(p) == len(s)
}

type countingMetrics struct {
	mu      sync.Mutex
	dropped int
}

func (c *countingMetrics) EventDropped() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "zwave.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db)
}

func createTestBridge(t *testing.T, buffer int) (*Bridge, *MockMQTTClient, *Store) {
	t.Helper()
	client := NewMockMQTTClient()
	store := openTestStore(t)
	b, err := New(Options{
		Topics:      mqtt.Topics{Prefix: "test/zwave"},
		MQTT:        client,
		Store:       store,
		EventBuffer: buffer,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, client, store
}

func lastCommand(t *testing.T, client *MockMQTTClient) (string, commandMessage) {
	t.Helper()
	pubs := client.Published()
	if len(pubs) == 0 {
		t.Fatal("nothing published")
	}
	p := pubs[len(pubs)-1]
	var msg commandMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("command payload: %v", err)
	}
	if p.Retained || p.QoS != 1 {
		t.Errorf("command published with qos=%d retained=%v", p.QoS, p.Retained)
	}
	return p.Topic, msg
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{Store: &Store{}}); err == nil {
		t.Error("New() without MQTT client succeeded")
	}
	if _, err := New(Options{MQTT: NewMockMQTTClient()}); err == nil {
		t.Error("New() without store succeeded")
	}
}

func TestStartSubscribes(t *testing.T) {
	_, client, _ := createTestBridge(t, 4)

	client.mu.Lock()
	defer client.mu.Unlock()
	for _, topic := range []string{"test/zwave/event/#", "test/zwave/response/+"} {
		if _, ok := client.handlers[topic]; !ok {
			t.Errorf("not subscribed to %s", topic)
		}
	}
}

func TestValueEventDecoded(t *testing.T) {
	b, client, _ := createTestBridge(t, 4)

	payload := `{"home_id":25469681,"node_id":5,"value":{"id":72057594126794752,"class":49,
		"label":"Temperature","units":"C","type":"decimal","value":"19.5"}}`
	if err := client.SimulateMessage(t, "test/zwave/event/value_changed", []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	ev := <-b.Events()
	if ev.Type != driver.EventValueChanged || ev.HomeID != testHome || ev.NodeID != 5 {
		t.Errorf("event = %+v", ev)
	}
	if ev.ValueID != 72057594126794752 || ev.Value == nil {
		t.Fatalf("value not decoded: %+v", ev)
	}
	if ev.Value.Value != device.Decimal(19.5) || ev.Value.Label != "Temperature" || ev.Value.Class != 49 {
		t.Errorf("value = %+v", ev.Value)
	}
}

func TestMalformedEventsRejected(t *testing.T) {
	b, client, _ := createTestBridge(t, 4)

	tests := []struct {
		name, topic, payload string
	}{
		{"not json", "test/zwave/event/value_added", "{"},
		{"value event without value", "test/zwave/event/value_changed", `{"home_id":1,"node_id":2}`},
		{"unparseable value", "test/zwave/event/value_changed",
			`{"home_id":1,"node_id":2,"value":{"id":9,"type":"byte","value":"loud"}}`},
		{"node event without node", "test/zwave/event/node_added", `{"home_id":1,"node_id":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.SimulateMessage(t, tt.topic, []byte(tt.payload)); err == nil {
				t.Error("handler accepted malformed event")
			}
		})
	}
	if len(b.Events()) != 0 {
		t.Errorf("%d events queued from malformed input", len(b.Events()))
	}
}

func TestFullBufferDropsEvents(t *testing.T) {
	client := NewMockMQTTClient()
	m := &countingMetrics{}
	b, err := New(Options{MQTT: client, Store: openTestStore(t), EventBuffer: 1, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	for i := 0; i < 3; i++ {
		if err := client.SimulateMessage(t, "graylogic/zwave/event/driver_ready", []byte(`{"home_id":1}`)); err != nil {
			t.Fatal(err)
		}
	}
	if len(b.Events()) != 1 {
		t.Errorf("queued %d events, want 1", len(b.Events()))
	}
	if m.dropped != 2 {
		t.Errorf("dropped = %d, want 2", m.dropped)
	}
}

func TestEventsAfterStopIgnored(t *testing.T) {
	b, client, _ := createTestBridge(t, 4)
	b.Stop()

	if err := client.SimulateMessage(t, "test/zwave/event/driver_ready", []byte(`{"home_id":1}`)); err != nil {
		t.Errorf("handler error after Stop = %v", err)
	}
	if _, open := <-b.Events(); open {
		t.Error("event channel still open after Stop")
	}
	if err := b.AddNode(context.Background(), 1, false); !errors.Is(err, ErrStopped) {
		t.Errorf("AddNode() after Stop = %v, want ErrStopped", err)
	}
}

func TestSetValueCommand(t *testing.T) {
	b, client, _ := createTestBridge(t, 4)
	ref := driver.ValueRef{HomeID: testHome, NodeID: 3, ValueID: 0x1234}

	if err := b.SetValue(context.Background(), ref, device.Decimal(21.5)); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	topic, msg := lastCommand(t, client)
	if topic != "test/zwave/command/set_value" {
		t.Errorf("topic = %s", topic)
	}
	if msg.ID == "" || msg.NodeID != 3 || msg.ValueID != 0x1234 || msg.Type != "decimal" || msg.Value != "21.5" {
		t.Errorf("command = %+v", msg)
	}
	if b.PendingRequests() != 1 {
		t.Errorf("PendingRequests() = %d, want 1", b.PendingRequests())
	}
}

func TestCommandWhileDisconnected(t *testing.T) {
	b, client, _ := createTestBridge(t, 4)
	client.SetConnected(false)

	err := b.SetPollInterval(context.Background(), 30*time.Second)
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("SetPollInterval() error = %v, want mqtt.ErrNotConnected", err)
	}
	if len(client.Published()) != 0 {
		t.Error("published while disconnected")
	}
}

func TestResponseCorrelation(t *testing.T) {
	b, client, _ := createTestBridge(t, 4)

	if err := b.AddNode(context.Background(), testHome, true); err != nil {
		t.Fatal(err)
	}
	_, msg := lastCommand(t, client)
	if !msg.Secure {
		t.Error("secure flag not sent")
	}

	reply := `{"id":"` + msg.ID + `","status":"error","error":"controller busy"}`
	if err := client.SimulateMessage(t, "test/zwave/response/"+msg.ID, []byte(reply)); err != nil {
		t.Fatalf("response handler error = %v", err)
	}
	if b.PendingRequests() != 0 {
		t.Errorf("PendingRequests() = %d after reply, want 0", b.PendingRequests())
	}

	if err := client.SimulateMessage(t, "test/zwave/response/unknown", []byte(`{"id":"unknown","status":"ok"}`)); err != nil {
		t.Errorf("unknown response error = %v", err)
	}
}

// warnLogger records warning messages with their "error" attribute.
type warnLogger struct {
	noopLogger
	mu    sync.Mutex
	warns []error
}

func (l *warnLogger) Warn(_ string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i+1 < len(args); i += 2 {
		if args[i] == "error" {
			if err, ok := args[i+1].(error); ok {
				l.warns = append(l.warns, err)
			}
		}
	}
}

func (l *warnLogger) recorded() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.warns...)
}

func TestUnansweredCommandTimesOut(t *testing.T) {
	client := NewMockMQTTClient()
	b, err := New(Options{
		Topics:          mqtt.Topics{Prefix: "test/zwave"},
		MQTT:            client,
		Store:           openTestStore(t),
		ResponseTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	logger := &warnLogger{}
	b.SetLogger(logger)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Stop)

	ref := driver.ValueRef{HomeID: testHome, NodeID: 3, ValueID: 0x1234}
	if err := b.SetValue(context.Background(), ref, device.Decimal(20)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(logger.recorded()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if b.PendingRequests() != 0 {
		t.Errorf("PendingRequests() = %d, want request expired", b.PendingRequests())
	}

	warns := logger.recorded()
	if len(warns) != 1 || !errors.Is(warns[0], ErrCommandTimeout) {
		t.Errorf("warnings = %v, want one ErrCommandTimeout", warns)
	}
}

func TestNodeMetadataStagedUntilWriteConfig(t *testing.T) {
	b, client, store := createTestBridge(t, 4)
	ctx := context.Background()

	if err := b.SetNodeName(ctx, testHome, 7, "Hall Lamp"); err != nil {
		t.Fatal(err)
	}
	if err := b.SetNodeLocation(ctx, testHome, 7, "Hall"); err != nil {
		t.Fatal(err)
	}

	nodes, err := store.Nodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Fatalf("metadata persisted before WriteConfig: %+v", nodes)
	}

	if err := b.WriteConfig(ctx, testHome); err != nil {
		t.Fatalf("WriteConfig() error = %v", err)
	}
	topic, _ := lastCommand(t, client)
	if topic != "test/zwave/command/write_config" {
		t.Errorf("last topic = %s", topic)
	}

	nodes, _ = store.Nodes(ctx)
	want := NodeMeta{HomeID: testHome, NodeID: 7, Name: "Hall Lamp", Location: "Hall"}
	if len(nodes) != 1 || nodes[0] != want {
		t.Errorf("stored nodes = %+v, want %+v", nodes, want)
	}
}

func TestNodeEventsEnrichedFromStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.SaveNodes(ctx, []NodeMeta{{HomeID: testHome, NodeID: 9, Name: "Radiator", Location: "Study"}}); err != nil {
		t.Fatal(err)
	}

	client := NewMockMQTTClient()
	b, err := New(Options{MQTT: client, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer b.Stop()

	payload := `{"home_id":25469681,"node_id":9,"node":{"name":"","location":"","generic":8,"specific":4}}`
	if err := client.SimulateMessage(t, "graylogic/zwave/event/node_added", []byte(payload)); err != nil {
		t.Fatal(err)
	}
	ev := <-b.Events()
	if ev.Node.Name != "Radiator" || ev.Node.Location != "Study" {
		t.Errorf("node = %+v, want stored name and location", ev.Node)
	}

	payload = `{"home_id":25469681,"node_id":9,"node":{"name":"TRV","location":""}}`
	if err := client.SimulateMessage(t, "graylogic/zwave/event/node_naming", []byte(payload)); err != nil {
		t.Fatal(err)
	}
	ev = <-b.Events()
	if ev.Node.Name != "TRV" || ev.Node.Location != "Study" {
		t.Errorf("node = %+v, daemon name should win", ev.Node)
	}
}

func TestSceneLifecycle(t *testing.T) {
	b, client, _ := createTestBridge(t, 4)
	ctx := context.Background()
	ref := driver.ValueRef{HomeID: testHome, NodeID: 4, ValueID: 0xabc}

	id, err := b.CreateScene(ctx, "Evening")
	if err != nil || id != 1 {
		t.Fatalf("CreateScene() = %d, %v; want 1", id, err)
	}
	if err := b.AddSceneValue(ctx, id, ref, device.Byte(40)); err != nil {
		t.Fatalf("AddSceneValue() error = %v", err)
	}

	scenes, err := b.Scenes(ctx)
	if err != nil || len(scenes) != 1 || scenes[0].Label != "Evening" {
		t.Fatalf("Scenes() = %+v, %v", scenes, err)
	}

	client.Clear()
	if err := b.ActivateScene(ctx, id); err != nil {
		t.Fatalf("ActivateScene() error = %v", err)
	}
	topic, msg := lastCommand(t, client)
	if topic != "test/zwave/command/activate_scene" {
		t.Errorf("topic = %s", topic)
	}
	if len(msg.Values) != 1 || msg.Values[0].ValueID != 0xabc || msg.Values[0].Value != "40" || msg.Values[0].Type != "byte" {
		t.Errorf("activation values = %+v", msg.Values)
	}

	if err := b.RemoveSceneValue(ctx, id, ref); err != nil {
		t.Fatal(err)
	}
	if err := b.RemoveScene(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := b.ActivateScene(ctx, id); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("ActivateScene() on removed scene = %v, want ErrSceneNotFound", err)
	}
}

func TestResetControllerForgetsNodes(t *testing.T) {
	b, _, store := createTestBridge(t, 4)
	ctx := context.Background()

	if err := store.SaveNodes(ctx, []NodeMeta{
		{HomeID: testHome, NodeID: 2, Name: "a"},
		{HomeID: 99, NodeID: 2, Name: "other network"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := b.ResetController(ctx, testHome); err != nil {
		t.Fatalf("ResetController() error = %v", err)
	}
	nodes, _ := store.Nodes(ctx)
	if len(nodes) != 1 || nodes[0].HomeID != 99 {
		t.Errorf("nodes after reset = %+v", nodes)
	}
}

func TestCommandTopics(t *testing.T) {
	b, client, _ := createTestBridge(t, 4)
	ctx := context.Background()
	ref := driver.ValueRef{HomeID: testHome, NodeID: 2, ValueID: 1}

	tests := []struct {
		op   string
		call func() error
	}{
		{"enable_poll", func() error { return b.EnablePoll(ctx, ref, driver.PollNormal) }},
		{"disable_poll", func() error { return b.DisablePoll(ctx, ref) }},
		{"set_poll_interval", func() error { return b.SetPollInterval(ctx, time.Minute) }},
		{"remove_node", func() error { return b.RemoveNode(ctx, testHome) }},
		{"cancel_controller_command", func() error { return b.CancelControllerCommand(ctx, testHome) }},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			if err := tt.call(); err != nil {
				t.Fatalf("error = %v", err)
			}
			topic, _ := lastCommand(t, client)
			if topic != "test/zwave/command/"+tt.op {
				t.Errorf("topic = %s", topic)
			}
		})
	}

	if err := b.SetPollInterval(ctx, 90*time.Second); err != nil {
		t.Fatal(err)
	}
	_, msg := lastCommand(t, client)
	if msg.IntervalMS != 90000 {
		t.Errorf("interval_ms = %d, want 90000", msg.IntervalMS)
	}
}
