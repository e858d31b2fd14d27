package influxdb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-zwave/internal/infrastructure/config"
)

// fakeWriter records points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func (w *fakeWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.points))
	for i, p := range w.points {
		out[i] = write.PointToLineProtocol(p, time.Second)
	}
	return out
}

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	c := newClient(config.InfluxDBConfig{Enabled: true}, w)
	c.now = func() time.Time { return fixedNow }
	return c, w
}

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWriteValueChange(t *testing.T) {
	c, w := newTestClient()
	c.WriteValueChange(0x0184a2f1, 5, "Temperature", 19.5)

	lines := w.lines()
	if len(lines) != 1 {
		t.Fatalf("wrote %d points, want 1", len(lines))
	}
	line := lines[0]
	for _, want := range []string{
		"zwave_value,",
		"home_id=0184a2f1",
		"label=Temperature",
		"node_id=5",
		"value=19.5",
		" 1780315200",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteControllerState(t *testing.T) {
	c, w := newTestClient()
	c.WriteControllerState(1, 7, "Completed")

	line := w.lines()[0]
	if !strings.HasPrefix(line, "zwave_controller,home_id=00000001 ") {
		t.Errorf("line = %q", line)
	}
	if !strings.Contains(line, "state=7i") || !strings.Contains(line, `text="Completed"`) {
		t.Errorf("line = %q, missing fields", line)
	}
}

func TestWritesDroppedAfterClose(t *testing.T) {
	c, w := newTestClient()
	c.WritePoint("custom", nil, map[string]any{"v": 1.0})

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes on Close = %d, want 1", w.flushes)
	}

	c.WriteValueChange(1, 2, "Level", 50)
	c.Flush()
	if len(w.lines()) != 1 {
		t.Errorf("points = %d, want writes after Close dropped", len(w.lines()))
	}
	if w.flushes != 1 {
		t.Errorf("Flush after Close reached the writer")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	c, _ := newTestClient()

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- errors.New("bucket not found")
	close(errs)
	c.handleWriteErrors(errs)

	select {
	case err := <-got:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed wrapper", err)
		}
	default:
		t.Fatal("callback not invoked")
	}
}
