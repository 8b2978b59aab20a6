package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sadnxai/chatlink/internal/connection"
	"github.com/sadnxai/chatlink/internal/protocol"
)

func dialSession(t *testing.T, baseURL, id string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/ws/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.InboundMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// openChannel dials a fresh session and consumes the connected/session greeting.
func openChannel(t *testing.T, cfg Config) (*Server, *websocket.Conn, string) {
	t.Helper()
	s, ts, _ := startServer(t, cfg)
	id := s.Store().Create().ID
	conn := dialSession(t, ts.URL, id)

	if msg := readFrame(t, conn); msg.Type != protocol.EventConnected {
		t.Fatalf("first frame = %q, want connected", msg.Type)
	}
	if msg := readFrame(t, conn); msg.Type != protocol.EventSession {
		t.Fatalf("second frame = %q, want session", msg.Type)
	}
	return s, conn, id
}

func TestWS_UnknownSessionClosed(t *testing.T) {
	_, ts, _ := startServer(t, testConfig())
	conn := dialSession(t, ts.URL, "missing")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()

	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("read error = %v, want close error", err)
	}
	if ce.Code != CloseSessionNotFound {
		t.Errorf("close code = %d, want %d", ce.Code, CloseSessionNotFound)
	}
}

func TestWS_Greeting(t *testing.T) {
	s, ts, _ := startServer(t, testConfig())
	id := s.Store().Create().ID
	conn := dialSession(t, ts.URL, id)

	connected := readFrame(t, conn)
	var p protocol.ConnectedPayload
	if err := connected.DecodePayload(&p); err != nil {
		t.Fatalf("decode connected: %v", err)
	}
	if p.SessionID != id {
		t.Errorf("connected session_id = %q, want %q", p.SessionID, id)
	}
	if connected.Timestamp == 0 {
		t.Error("timestamp not set")
	}

	snap := readFrame(t, conn)
	sess, err := snap.Session()
	if err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.ID != id {
		t.Errorf("session id = %q, want %q", sess.ID, id)
	}
}

func TestWS_PingPong(t *testing.T) {
	_, conn, _ := openChannel(t, testConfig())

	writeFrame(t, conn, protocol.OutboundMessage{Type: protocol.TypePing, Payload: struct{}{}, ID: "p1"})
	msg := readFrame(t, conn)
	if msg.Type != protocol.EventPong || msg.ID != "p1" {
		t.Errorf("got %q id=%q, want pong id=p1", msg.Type, msg.ID)
	}
}

func TestWS_GetSession(t *testing.T) {
	_, conn, id := openChannel(t, testConfig())

	writeFrame(t, conn, protocol.OutboundMessage{Type: protocol.TypeGetSession, Payload: struct{}{}, ID: "g1"})
	msg := readFrame(t, conn)
	if msg.Type != protocol.EventSession || msg.ID != "g1" {
		t.Fatalf("got %q id=%q, want session id=g1", msg.Type, msg.ID)
	}
	sess, err := msg.Session()
	if err != nil || sess.ID != id {
		t.Errorf("session = %+v err=%v", sess, err)
	}
}

func TestWS_ChatTurn(t *testing.T) {
	s, conn, id := openChannel(t, testConfig())

	writeFrame(t, conn, protocol.OutboundMessage{
		Type:    protocol.TypeChat,
		Payload: protocol.ChatPayload{Message: "mask the zip codes"},
		ID:      "c1",
	})

	var types []string
	var tokens strings.Builder
	for {
		msg := readFrame(t, conn)
		if msg.ID != "c1" {
			t.Errorf("frame %q id = %q, want c1", msg.Type, msg.ID)
		}
		if msg.Type == protocol.EventToken {
			var p protocol.TokenPayload
			msg.DecodePayload(&p)
			tokens.WriteString(p.Content)
			continue
		}
		types = append(types, string(msg.Type))
		if msg.Type == protocol.EventDone {
			break
		}
	}

	if got := strings.Join(types, ","); got != "thinking,message,session,done" {
		t.Errorf("sequence = %s", got)
	}
	if tokens.String() != "You said: mask the zip codes" {
		t.Errorf("tokens = %q", tokens.String())
	}

	sess, _ := s.Store().Get(id)
	if len(sess.Messages) != 2 {
		t.Fatalf("stored %d messages, want 2", len(sess.Messages))
	}
	if sess.Messages[0].Text() != "mask the zip codes" {
		t.Errorf("user message = %q", sess.Messages[0].Text())
	}
}

func TestWS_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame any
		id    string
		want  string
	}{
		{
			name:  "empty chat",
			frame: protocol.OutboundMessage{Type: protocol.TypeChat, Payload: protocol.ChatPayload{Message: "  "}, ID: "e1"},
			id:    "e1",
			want:  "Empty message",
		},
		{
			name:  "unknown type",
			frame: map[string]any{"type": "subscribe", "payload": map[string]any{}, "id": "e2"},
			id:    "e2",
			want:  "Unknown message type: subscribe",
		},
		{
			name:  "invalid json",
			frame: json.RawMessage(`"not an object"`),
			want:  "Invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conn, _ := openChannel(t, testConfig())
			writeFrame(t, conn, tt.frame)

			msg := readFrame(t, conn)
			if msg.Type != protocol.EventError || msg.ID != tt.id {
				t.Fatalf("got %q id=%q, want error id=%q", msg.Type, msg.ID, tt.id)
			}
			var p protocol.ErrorPayload
			msg.DecodePayload(&p)
			if p.Message != tt.want {
				t.Errorf("message = %q, want %q", p.Message, tt.want)
			}
		})
	}
}

func TestWS_IdlePing(t *testing.T) {
	cfg := testConfig()
	cfg.IdlePingInterval = 50 * time.Millisecond
	_, conn, _ := openChannel(t, cfg)

	start := time.Now()
	msg := readFrame(t, conn)
	if msg.Type != protocol.EventPing {
		t.Fatalf("got %q, want ping", msg.Type)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("ping after %v, want about 50ms", elapsed)
	}
}

// TestWS_ManagerRoundTrip drives the channel manager against the dev server.
func TestWS_ManagerRoundTrip(t *testing.T) {
	s, ts, _ := startServer(t, testConfig())
	id := s.Store().Create().ID

	cfg := connection.DefaultManagerConfig()
	cfg.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	cfg.RequestTimeout = 5 * time.Second
	m := connection.NewManager(cfg, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(context.Background())

	var mu sync.Mutex
	var seen []protocol.InboundType
	done := make(chan struct{})
	sub := connection.HandleAny(func(msg protocol.InboundMessage) {
		mu.Lock()
		seen = append(seen, msg.Type)
		mu.Unlock()
		if msg.Type == protocol.EventDone {
			close(done)
		}
	})

	if err := m.Connect(ctx, id, sub); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	reply, err := m.SendAndWait(ctx, protocol.GetSession(), 0)
	if err != nil {
		t.Fatalf("SendAndWait() error = %v", err)
	}
	sess, err := reply.Session()
	if err != nil || sess.ID != id {
		t.Fatalf("snapshot = %+v err=%v", sess, err)
	}

	if _, err := m.SendChat("hello there"); err != nil {
		t.Fatalf("SendChat() error = %v", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("chat turn did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 || seen[0] != protocol.EventConnected || seen[1] != protocol.EventSession {
		t.Errorf("seen = %v, want connected, session first", seen)
	}
}
