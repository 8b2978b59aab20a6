package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/sadnxai/chatlink/internal/metrics"
	"github.com/sadnxai/chatlink/internal/protocol"
	"github.com/sadnxai/chatlink/internal/queue"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionClosed = errors.New("connection closed")
	ErrTimeout          = errors.New("request timeout")
	ErrManagerStopped   = errors.New("manager stopped")
	ErrEmptySessionID   = errors.New("empty session id")
	ErrDuplicateRequest = errors.New("duplicate request id")
)

// ServerError is returned by SendAndWait when the correlated reply is an
// error event.
type ServerError struct {
	ID      string
	Message string
}

func (e *ServerError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("server error: %s", e.Message)
	}
	return fmt.Sprintf("server error (request %s): %s", e.ID, e.Message)
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Handler receives inbound events.
type Handler func(msg protocol.InboundMessage)

// StateHandler receives transport state changes: true on open, false on close.
type StateHandler func(connected bool)

// Subscription is a handler registration passed to Connect. Connect registers
// it before the transport opens so the first server push is never missed.
type Subscription struct {
	eventType protocol.InboundType
	handler   Handler
	state     StateHandler
}

// Handle subscribes h to events of type t.
func Handle(t protocol.InboundType, h Handler) Subscription {
	return Subscription{eventType: t, handler: h}
}

// HandleAny subscribes h to every event.
func HandleAny(h Handler) Subscription {
	return Subscription{eventType: protocol.Wildcard, handler: h}
}

// HandleState subscribes h to connection state changes.
func HandleState(h StateHandler) Subscription {
	return Subscription{state: h}
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Full session URL (e.g., ws://localhost:8000/api/ws/<session>)
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration // Upper bound on the opening handshake
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	URL                  string        // Base WebSocket URL; the session id is appended as a path segment
	RequestTimeout       time.Duration // Default SendAndWait timeout
	HeartbeatInterval    time.Duration // Interval between liveness pings while open
	ReconnectBaseWait    time.Duration // Base wait time for reconnection
	ReconnectMaxWait     time.Duration // Max wait time for reconnection
	MaxReconnectAttempts int           // Reconnects scheduled before giving up
	WriteTimeout         time.Duration // Write deadline for sends
	HandshakeTimeout     time.Duration // Upper bound on the opening handshake
	MessageBufferSize    int           // Per-transport inbound buffer

	Metrics *metrics.Collector // Optional
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RequestTimeout:       30 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseWait:    1 * time.Second,
		ReconnectMaxWait:     30 * time.Second,
		MaxReconnectAttempts: 10,
		WriteTimeout:         5 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		MessageBufferSize:    256,
	}
}

// withDefaults fills zero fields from DefaultManagerConfig.
func (c ManagerConfig) withDefaults() ManagerConfig {
	d := DefaultManagerConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ReconnectBaseWait <= 0 {
		c.ReconnectBaseWait = d.ReconnectBaseWait
	}
	if c.ReconnectMaxWait <= 0 {
		c.ReconnectMaxWait = d.ReconnectMaxWait
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.MessageBufferSize <= 0 {
		c.MessageBufferSize = d.MessageBufferSize
	}
	return c
}

// ManagerStats provides statistics about the manager.
type ManagerStats struct {
	Connected         bool
	SessionID         string
	QueuedMessages    int
	Outbound          queue.Stats
	PendingRequests   int
	Subscribers       int
	ReconnectAttempts int
	ReconnectPending  bool
}
