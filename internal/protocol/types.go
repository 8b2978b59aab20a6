package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/sadnxai/chatlink/internal/model"
)

// ErrMalformed is returned by Decode for frames that are not valid messages.
var ErrMalformed = errors.New("malformed message")

// OutboundType is the command tag of a client → server message.
type OutboundType string

const (
	TypeChat       OutboundType = "chat"
	TypePing       OutboundType = "ping"
	TypeGetSession OutboundType = "get_session"
)

// Valid reports whether t is one of the known command tags.
func (t OutboundType) Valid() bool {
	switch t {
	case TypeChat, TypePing, TypeGetSession:
		return true
	}
	return false
}

// InboundType is the event tag of a server → client message.
type InboundType string

const (
	EventConnected        InboundType = "connected"
	EventSession          InboundType = "session"
	EventToken            InboundType = "token"
	EventThinking         InboundType = "thinking"
	EventToolStart        InboundType = "tool_start"
	EventToolEnd          InboundType = "tool_end"
	EventPipelineStart    InboundType = "pipeline_start"
	EventPipelineProgress InboundType = "pipeline_progress"
	EventMessage          InboundType = "message"
	EventDone             InboundType = "done"
	EventError            InboundType = "error"
	EventPong             InboundType = "pong"
	EventPing             InboundType = "ping"

	// Wildcard matches every event when used as a subscription tag.
	Wildcard InboundType = "*"
)

// Known reports whether t is one of the documented event tags.
func (t InboundType) Known() bool {
	switch t {
	case EventConnected, EventSession, EventToken, EventThinking,
		EventToolStart, EventToolEnd, EventPipelineStart, EventPipelineProgress,
		EventMessage, EventDone, EventError, EventPong, EventPing:
		return true
	}
	return false
}

// OutboundMessage is a command sent to the server.
type OutboundMessage struct {
	Type    OutboundType `json:"type"`
	Payload any          `json:"payload"`
	ID      string       `json:"id"`
}

// InboundMessage is an event received from the server.
type InboundMessage struct {
	Type      InboundType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	ID        string          `json:"id,omitempty"`
	Timestamp float64         `json:"timestamp"` // Unix seconds with fraction
}

// DecodePayload unmarshals the payload into v.
func (m InboundMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(m.Payload, v)
}

// Time converts the server timestamp to a time.Time.
func (m InboundMessage) Time() time.Time {
	sec, frac := math.Modf(m.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Session decodes the payload of a "session" snapshot.
func (m InboundMessage) Session() (model.Session, error) {
	var s model.Session
	err := m.DecodePayload(&s)
	return s, err
}

// -----------------------------------------------------------------------------
// Payloads
// -----------------------------------------------------------------------------

// ChatPayload is the payload of a "chat" command.
type ChatPayload struct {
	Message string `json:"message"`
}

// ConnectedPayload acknowledges a new channel.
type ConnectedPayload struct {
	SessionID string `json:"session_id"`
}

// TokenPayload is one streamed fragment of the assistant reply.
type TokenPayload struct {
	Content string `json:"content"`
}

// ThinkingPayload marks the start of an assistant iteration.
type ThinkingPayload struct {
	Iteration int `json:"iteration"`
}

// ToolStartPayload announces a tool invocation.
type ToolStartPayload struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolEndPayload reports a finished tool invocation.
type ToolEndPayload struct {
	Tool    string          `json:"tool"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

// PipelineStartPayload announces the anonymization pipeline.
type PipelineStartPayload struct {
	Message string `json:"message"`
}

// PipelineProgressPayload reports a pipeline stage.
type PipelineProgressPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// MessagePayload is the final assistant message of a turn.
type MessagePayload struct {
	Content string `json:"content"`
}

// DonePayload closes a turn.
type DonePayload struct {
	Status            model.SessionStatus `json:"status"`
	HasClassification bool                `json:"has_classification"`
	HasValidation     bool                `json:"has_validation"`
}

// ErrorPayload carries a server-reported error.
type ErrorPayload struct {
	Message string `json:"message"`
}
