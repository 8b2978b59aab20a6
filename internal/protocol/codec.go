package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a unique identifier for an outbound message.
func NewID() string {
	return uuid.NewString()
}

// Chat builds a chat command with a fresh id.
func Chat(text string) OutboundMessage {
	return OutboundMessage{Type: TypeChat, Payload: ChatPayload{Message: text}, ID: NewID()}
}

// Ping builds a liveness probe with a fresh id.
func Ping() OutboundMessage {
	return OutboundMessage{Type: TypePing, Payload: struct{}{}, ID: NewID()}
}

// GetSession builds a request for the current session snapshot.
func GetSession() OutboundMessage {
	return OutboundMessage{Type: TypeGetSession, Payload: struct{}{}, ID: NewID()}
}

// Encode serializes an outbound message.
func Encode(msg OutboundMessage) ([]byte, error) {
	if !msg.Type.Valid() {
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
	if msg.ID == "" {
		return nil, errors.New("message id is required")
	}
	if msg.Payload == nil {
		msg.Payload = struct{}{}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	return data, nil
}

// Decode parses a frame received from the server.
func Decode(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return InboundMessage{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if msg.Type == Wildcard {
		return InboundMessage{}, fmt.Errorf("%w: reserved type %q", ErrMalformed, msg.Type)
	}
	return msg, nil
}
