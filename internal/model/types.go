package model

import "encoding/json"

// SessionStatus is the workflow state of an anonymization session.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusAnalyzing  SessionStatus = "analyzing"
	StatusProposed   SessionStatus = "proposed"
	StatusDiscussing SessionStatus = "discussing"
	StatusApproved   SessionStatus = "approved"
	StatusMasking    SessionStatus = "masking"
	StatusValidating SessionStatus = "validating"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// IsTerminal reports whether no further pipeline work happens in this status.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// -----------------------------------------------------------------------------
// Conversation
// -----------------------------------------------------------------------------

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function call requested by the assistant.
type ToolCall struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Function map[string]string `json:"function"` // {"name": ..., "arguments": ...}
}

// ChatMessage is one entry of the session transcript.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID *string    `json:"tool_call_id,omitempty"`
}

// Text returns the message content, or "" when the message carries none.
func (m ChatMessage) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// -----------------------------------------------------------------------------
// Classification and thresholds
// -----------------------------------------------------------------------------

// Classification is the column classification proposed by the assistant.
type Classification struct {
	DirectIdentifiers     []string          `json:"direct_identifiers"`
	QuasiIdentifiers      []string          `json:"quasi_identifiers"`
	LinkageIdentifiers    []string          `json:"linkage_identifiers"`
	DateColumns           []string          `json:"date_columns"`
	SensitiveAttributes   []string          `json:"sensitive_attributes"`
	RecommendedTechniques map[string]string `json:"recommended_techniques"` // column → SUPPRESS, GENERALIZE, ...
	Reasoning             map[string]string `json:"reasoning"`
}

// ThresholdRange is a minimum/target pair for one privacy metric.
type ThresholdRange struct {
	Minimum float64 `json:"minimum"`
	Target  float64 `json:"target"`
}

// PrivacyThresholds holds the acceptance thresholds used by validation.
type PrivacyThresholds struct {
	KAnonymity ThresholdRange `json:"k_anonymity"`
	LDiversity ThresholdRange `json:"l_diversity"`
	TCloseness ThresholdRange `json:"t_closeness"`
	RiskScore  ThresholdRange `json:"risk_score"`
}

// MetricResult is the outcome of one privacy metric.
type MetricResult struct {
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
}

// ValidationResult summarizes validation of the anonymized output.
type ValidationResult struct {
	Passed        bool                    `json:"passed"`
	Metrics       map[string]MetricResult `json:"metrics"`
	FailedMetrics []string                `json:"failed_metrics"`
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// Session is the full session state pushed in "session" snapshots.
type Session struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Status           SessionStatus     `json:"status"`
	FilePath         *string           `json:"file_path"`
	Columns          []string          `json:"columns"`
	SampleData       []json.RawMessage `json:"sample_data"`
	RowCount         int               `json:"row_count"`
	Classification   *Classification   `json:"classification"`
	Thresholds       PrivacyThresholds `json:"thresholds"`
	ValidationResult *ValidationResult `json:"validation_result"`
	Messages         []ChatMessage     `json:"messages"`
	OutputPath       *string           `json:"output_path"`
	ReportPath       *string           `json:"report_path"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

// Summary returns the listing row for this session.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		ID:                s.ID,
		Title:             s.Title,
		Status:            s.Status,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		RowCount:          s.RowCount,
		HasClassification: s.Classification != nil,
		HasValidation:     s.ValidationResult != nil,
	}
}

// SessionSummary is one row of the REST session listing.
type SessionSummary struct {
	ID                string        `json:"id"`
	Title             string        `json:"title"`
	Status            SessionStatus `json:"status"`
	CreatedAt         string        `json:"created_at"`
	UpdatedAt         string        `json:"updated_at"`
	RowCount          int           `json:"row_count"`
	HasClassification bool          `json:"has_classification"`
	HasValidation     bool          `json:"has_validation"`
}
