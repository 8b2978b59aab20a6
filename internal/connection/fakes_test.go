package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sadnxai/chatlink/internal/protocol"
)

// fakeClient is an in-memory transport driven by the test.
type fakeClient struct {
	url      string
	dialer   *fakeDialer
	index    int
	messages chan TimestampedMessage
	errors   chan error

	mu        sync.Mutex
	sent      [][]byte
	connected bool
	closed    bool
}

func (c *fakeClient) Connect(ctx context.Context) error {
	if c.dialer.gate != nil {
		select {
		case <-c.dialer.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := c.dialer.result(c.index); err != nil {
		return err
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.connected = false
	close(c.messages)
	return nil
}

func (c *fakeClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeClient) Messages() <-chan TimestampedMessage { return c.messages }
func (c *fakeClient) Errors() <-chan error                { return c.errors }

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// deliver simulates a frame arriving from the server.
func (c *fakeClient) deliver(data string) {
	c.messages <- TimestampedMessage{Data: []byte(data), ReceivedAt: time.Now()}
}

// drop simulates the server closing the channel with code.
func (c *fakeClient) drop(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.connected = false
	c.errors <- &websocket.CloseError{Code: code}
	close(c.messages)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type sentFrame struct {
	Type    protocol.OutboundType `json:"type"`
	Payload json.RawMessage       `json:"payload"`
	ID      string                `json:"id"`
}

func (c *fakeClient) frames(t *testing.T) []sentFrame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentFrame, 0, len(c.sent))
	for _, data := range c.sent {
		var f sentFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("client sent invalid JSON %q: %v", data, err)
		}
		out = append(out, f)
	}
	return out
}

func (c *fakeClient) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// fakeDialer hands out fakeClients and decides whether each dial succeeds.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	fail    func(index int) error // nil means every dial succeeds
	gate    chan struct{}         // when set, Connect blocks until closed
}

func (d *fakeDialer) newClient(cfg ClientConfig, _ *slog.Logger) Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &fakeClient{
		url:      cfg.URL,
		dialer:   d,
		index:    len(d.clients),
		messages: make(chan TimestampedMessage, 64),
		errors:   make(chan error, 1),
	}
	d.clients = append(d.clients, c)
	return c
}

func (d *fakeDialer) result(index int) error {
	d.mu.Lock()
	fail := d.fail
	d.mu.Unlock()
	if fail == nil {
		return nil
	}
	return fail(index)
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDialer) client(t *testing.T, i int) *fakeClient {
	t.Helper()
	eventually(t, fmt.Sprintf("dial #%d", i), func() bool { return d.count() > i })
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[i]
}

// fakeClock records scheduled callbacks; the test fires them by hand.
type fakeClock struct {
	timers chan *fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{timers: make(chan *fakeTimer, 256)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	t := &fakeTimer{d: d, f: f}
	c.timers <- t
	return t
}

// next returns the next scheduled timer whose duration is not skip.
func (c *fakeClock) next(t *testing.T, skip time.Duration) *fakeTimer {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case tm := <-c.timers:
			if tm.d == skip {
				continue
			}
			return tm
		case <-deadline:
			t.Fatal("timed out waiting for a scheduled timer")
			return nil
		}
	}
}

// none asserts nothing but skip-duration timers get scheduled within wait.
func (c *fakeClock) none(t *testing.T, skip, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case tm := <-c.timers:
			if tm.d != skip {
				t.Fatalf("unexpected timer scheduled: %v", tm.d)
			}
		case <-deadline:
			return
		}
	}
}

type fakeTimer struct {
	d time.Duration
	f func()

	mu      sync.Mutex
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fire runs the callback unless the timer was stopped.
func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.f()
}

// recorder collects callback invocations from the dispatch goroutine.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// frame builds an inbound JSON frame.
func frame(typ protocol.InboundType, id, payload string) string {
	if payload == "" {
		payload = "{}"
	}
	if id == "" {
		return fmt.Sprintf(`{"type":%q,"payload":%s,"timestamp":1700000000.5}`, typ, payload)
	}
	return fmt.Sprintf(`{"type":%q,"payload":%s,"id":%q,"timestamp":1700000000.5}`, typ, payload, id)
}

const testHeartbeat = time.Hour

type testManager struct {
	*manager
	dialer *fakeDialer
	clk    *fakeClock
}

// newTestManager starts a manager on fake transports. With a nil clk the
// real clock is used.
func newTestManager(t *testing.T, clk *fakeClock, tweak func(*ManagerConfig)) *testManager {
	t.Helper()

	cfg := ManagerConfig{
		URL:               "ws://chat.test/api/ws/",
		HeartbeatInterval: testHeartbeat,
		RequestTimeout:    testHeartbeat,
	}
	if tweak != nil {
		tweak(&cfg)
	}

	m := NewManager(cfg, discardLogger()).(*manager)
	d := &fakeDialer{}
	m.newClient = d.newClient
	if clk != nil {
		m.clock = clk
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Stop(ctx)
	})

	return &testManager{manager: m, dialer: d, clk: clk}
}
