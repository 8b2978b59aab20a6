package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sadnxai/chatlink/internal/model"
	"github.com/sadnxai/chatlink/internal/protocol"
)

// CloseSessionNotFound is the close code sent when the session does not exist.
const CloseSessionNotFound = 4004

const writeWait = 5 * time.Second

// clientFrame is a command as received from a client.
type clientFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	ID      string          `json:"id"`
}

// serverFrame is an event sent to a client.
type serverFrame struct {
	Type      protocol.InboundType `json:"type"`
	Payload   any                  `json:"payload"`
	ID        string               `json:"id,omitempty"`
	Timestamp float64              `json:"timestamp"`
}

// channel is one accepted WebSocket.
type channel struct {
	conn      *websocket.Conn
	sessionID string
	logger    *slog.Logger

	writeMu  sync.Mutex
	lastRead atomic.Int64 // unix nanos
}

func (ch *channel) send(typ protocol.InboundType, payload any, id string) error {
	frame := serverFrame{
		Type:      typ,
		Payload:   payload,
		ID:        id,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return ch.conn.WriteJSON(frame)
}

func (ch *channel) sendError(msg, id string) error {
	return ch.send(protocol.EventError, protocol.ErrorPayload{Message: msg}, id)
}

func (s *Server) serveWS(c *gin.Context) {
	id := c.Param("id")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	sess, ok := s.store.Get(id)
	if !ok {
		msg := websocket.FormatCloseMessage(CloseSessionNotFound, "Session not found")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}

	ch := &channel{
		conn:      conn,
		sessionID: id,
		logger:    s.logger.With("session_id", id),
	}
	ch.lastRead.Store(time.Now().UnixNano())

	s.metrics.ChannelOpened()
	defer s.metrics.ChannelClosed()
	ch.logger.Info("channel opened")

	if err := ch.send(protocol.EventConnected, protocol.ConnectedPayload{SessionID: id}, ""); err != nil {
		return
	}
	if err := ch.send(protocol.EventSession, sess, ""); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go s.idlePinger(ch, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ch.logger.Warn("channel read failed", "error", err)
			}
			ch.logger.Info("channel closed")
			return
		}
		ch.lastRead.Store(time.Now().UnixNano())

		if err := s.handleFrame(ch, data); err != nil {
			ch.logger.Warn("channel write failed", "error", err)
			return
		}
	}
}

// idlePinger sends a server ping whenever the client has been silent for a
// full idle interval.
func (s *Server) idlePinger(ch *channel, done <-chan struct{}) {
	interval := s.cfg.IdlePingInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		case <-timer.C:
		}

		idle := time.Since(time.Unix(0, ch.lastRead.Load()))
		if idle < interval {
			timer.Reset(interval - idle)
			continue
		}
		if err := ch.send(protocol.EventPing, struct{}{}, ""); err != nil {
			return
		}
		ch.lastRead.Store(time.Now().UnixNano())
		timer.Reset(interval)
	}
}

func (s *Server) handleFrame(ch *channel, data []byte) error {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ch.sendError("Invalid JSON", "")
	}
	ch.logger.Debug("frame received", "type", f.Type, "id", f.ID)

	switch protocol.OutboundType(f.Type) {
	case protocol.TypePing:
		return ch.send(protocol.EventPong, struct{}{}, f.ID)

	case protocol.TypeGetSession:
		sess, ok := s.store.Get(ch.sessionID)
		if !ok {
			return ch.sendError("Session not found", f.ID)
		}
		return ch.send(protocol.EventSession, sess, f.ID)

	case protocol.TypeChat:
		var p protocol.ChatPayload
		if len(f.Payload) > 0 {
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return ch.sendError("Invalid chat payload", f.ID)
			}
		}
		if strings.TrimSpace(p.Message) == "" {
			return ch.sendError("Empty message", f.ID)
		}
		return s.chat(ch, p.Message, f.ID)

	default:
		return ch.sendError(fmt.Sprintf("Unknown message type: %s", f.Type), f.ID)
	}
}

// chat runs one scripted assistant turn: thinking, a token per word, the
// final message, the session snapshot and done, all tagged with id.
func (s *Server) chat(ch *channel, text, id string) error {
	reply := "You said: " + text
	user := text

	sess, ok := s.store.Update(ch.sessionID, func(sess *model.Session) {
		if sess.Status == model.StatusIdle {
			sess.Status = model.StatusDiscussing
		}
		sess.Messages = append(sess.Messages,
			model.ChatMessage{Role: model.RoleUser, Content: &user},
			model.ChatMessage{Role: model.RoleAssistant, Content: &reply},
		)
	})
	if !ok {
		return ch.sendError("Session not found", id)
	}

	if err := ch.send(protocol.EventThinking, protocol.ThinkingPayload{Iteration: 1}, id); err != nil {
		return err
	}
	words := strings.Fields(reply)
	for i, w := range words {
		if i < len(words)-1 {
			w += " "
		}
		if err := ch.send(protocol.EventToken, protocol.TokenPayload{Content: w}, id); err != nil {
			return err
		}
	}
	if err := ch.send(protocol.EventMessage, protocol.MessagePayload{Content: reply}, id); err != nil {
		return err
	}
	if err := ch.send(protocol.EventSession, sess, id); err != nil {
		return err
	}
	return ch.send(protocol.EventDone, protocol.DonePayload{
		Status:            sess.Status,
		HasClassification: sess.Classification != nil,
		HasValidation:     sess.ValidationResult != nil,
	}, id)
}
