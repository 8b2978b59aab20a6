package api

import (
	"encoding/json"

	"github.com/sadnxai/chatlink/internal/model"
)

// CreateSessionResponse from POST /sessions
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// SessionsResponse from GET /sessions
type SessionsResponse struct {
	Sessions []model.SessionSummary `json:"sessions"`
}

// DeleteResponse from DELETE /sessions/{id}
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// HealthResponse from GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// UploadResponse from POST /sessions/{id}/upload when the server answers
// with a single JSON document.
type UploadResponse struct {
	Columns    []string          `json:"columns"`
	SampleData []json.RawMessage `json:"sample_data"`
	RowCount   int               `json:"row_count"`
	AIResponse string            `json:"ai_response"`
}

// StreamEventType names a server-sent progress event.
type StreamEventType string

const (
	StreamThinking        StreamEventType = "thinking"
	StreamToolCall        StreamEventType = "tool_call"
	StreamToolResult      StreamEventType = "tool_result"
	StreamMessage         StreamEventType = "message"
	StreamTextDelta       StreamEventType = "text_delta"
	StreamTerminalTool    StreamEventType = "terminal_tool"
	StreamPipelineStart   StreamEventType = "pipeline_start"
	StreamPipelineMasking StreamEventType = "pipeline_masking"
	StreamFileInfo        StreamEventType = "file_info"
	StreamDone            StreamEventType = "done"
)

// StreamEvent is one "data:" record of an upload progress stream. Fields
// are populated according to Type.
type StreamEvent struct {
	Type              StreamEventType `json:"type"`
	Content           string          `json:"content,omitempty"`
	Tool              string          `json:"tool,omitempty"`
	Args              json.RawMessage `json:"args,omitempty"`
	Success           *bool           `json:"success,omitempty"`
	Status            string          `json:"status,omitempty"`
	Message           string          `json:"message,omitempty"`
	HasClassification bool            `json:"has_classification,omitempty"`
	HasValidation     bool            `json:"has_validation,omitempty"`

	// file_info
	Columns  []string `json:"columns,omitempty"`
	RowCount int      `json:"row_count,omitempty"`
	Filename string   `json:"filename,omitempty"`
}
