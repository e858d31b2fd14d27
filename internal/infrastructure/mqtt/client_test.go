package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-zwave-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// recordingLogger implements Logger for testing.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Info(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func TestTopicBuilders(t *testing.T) {
	custom := Topics{Prefix: "site/zw"}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"event default prefix", Topics{}.Event("value_changed"), "graylogic/zwave/event/value_changed"},
		{"event", custom.Event("node_added"), "site/zw/event/node_added"},
		{"command", custom.Command("set_value"), "site/zw/command/set_value"},
		{"response", custom.Response("req-1"), "site/zw/response/req-1"},
		{"status", custom.Status(), "site/zw/status"},
		{"driver status", custom.DriverStatus(), "site/zw/driver/status"},
		{"all events", custom.AllEvents(), "site/zw/event/#"},
		{"all responses", custom.AllResponses(), "site/zw/response/+"},
		{"all commands", custom.AllCommands(), "site/zw/command/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "gateway"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "graylogic-zwave-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "gateway" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without TLS enabled")
	}

	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q with TLS, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS minimum version not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{}.Status(), "gw-1")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatal("LWT not enabled and retained")
	}
	if opts.WillTopic != "graylogic/zwave/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("LWT payload is not JSON: %v", err)
	}
	if p.Status != "offline" || p.ClientID != "gw-1" || p.Reason != "unexpected_disconnect" {
		t.Errorf("LWT payload = %+v", p)
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("gw"), "online", ""},
		{"offline", buildOfflinePayload("gw"), "offline", "graceful_shutdown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p statusPayload
			if err := json.Unmarshal([]byte(tt.raw), &p); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if p.Status != tt.wantStatus || p.Reason != tt.wantReason || p.Timestamp == "" {
				t.Errorf("payload = %+v", p)
			}
		})
	}
}

func TestValidationWithoutConnection(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("a", nil, 3, false), ErrInvalidQoS},
		{"publish oversize", c.Publish("a", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("a", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("a", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("a", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("a", 1, noop), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("a"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after rejected subscribes", c.SubscriptionCount())
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := &Client{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestDeliverRecoversAndLogs(t *testing.T) {
	log := &recordingLogger{}
	c := &Client{}
	c.SetLogger(log)

	c.deliver(func(string, []byte) error { panic("bad payload") }, "t", nil)
	c.deliver(func(string, []byte) error { return errors.New("decode failed") }, "t", nil)
	c.deliver(func(string, []byte) error { return nil }, "t", nil)

	if len(log.errors) != 1 {
		t.Errorf("errors logged = %v, want one panic report", log.errors)
	}
	if len(log.warns) != 1 {
		t.Errorf("warnings logged = %v, want one handler error", log.warns)
	}
}

func TestTrackUntrack(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	c.track(subscription{topic: "graylogic/zwave/event/#", qos: 1})

	if !c.HasSubscription("graylogic/zwave/event/#") {
		t.Error("HasSubscription() = false after track")
	}
	if c.HasSubscription("graylogic/zwave/event/value_changed") {
		t.Error("HasSubscription() matched a wildcard")
	}

	c.untrack("graylogic/zwave/event/#")
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after untrack", c.SubscriptionCount())
	}
}

// stalledToken never completes.
type stalledToken struct{}

func (stalledToken) Wait() bool                     { return false }
func (stalledToken) WaitTimeout(time.Duration) bool { return false }
func (stalledToken) Done() <-chan struct{}          { return make(chan struct{}) }
func (stalledToken) Error() error                   { return nil }

// stalledBroker accepts the connection but never acknowledges anything.
type stalledBroker struct {
	pahomqtt.Client
}

func (stalledBroker) IsConnected() bool { return true }

func (stalledBroker) Publish(string, byte, bool, any) pahomqtt.Token {
	return stalledToken{}
}

func (stalledBroker) Subscribe(string, byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return stalledToken{}
}

func (stalledBroker) Unsubscribe(...string) pahomqtt.Token {
	return stalledToken{}
}

func TestUnacknowledgedOperationsTimeOut(t *testing.T) {
	c := &Client{client: stalledBroker{}, connected: true, subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		op   error
	}{
		{"publish", c.Publish("zwave/command/set_value", []byte("{}"), 1, false), ErrPublishFailed},
		{"subscribe", c.Subscribe("zwave/event/#", 1, noop), ErrSubscribeFailed},
		{"unsubscribe", c.Unsubscribe("zwave/event/#"), ErrUnsubscribeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.op) || !errors.Is(tt.err, ErrAckTimeout) {
				t.Errorf("error = %v, want %v wrapping ErrAckTimeout", tt.err, tt.op)
			}
		})
	}
	if c.HasSubscription("zwave/event/#") {
		t.Error("unacknowledged subscription still tracked")
	}
}
