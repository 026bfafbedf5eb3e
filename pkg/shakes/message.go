// Package shakes holds the data model shared by every component of the
// agent session orchestrator: messages, tool-call intents, and the
// process-wide session state.
package shakes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Role discriminates the four message kinds the log may contain.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates the two kinds of user-message content parts.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part is one element of a user message's ordered content sequence.
type Part struct {
	Type PartType `json:"type"`
	// Text holds the part's text when Type == PartText.
	Text string `json:"text,omitempty"`
	// ImageURL holds a data: URL reference when Type == PartImage.
	ImageURL string `json:"imageUrl,omitempty"`
}

// ToolCallIntent is a tool invocation reconstructed from streaming deltas
// or attached directly to a committed assistant message.
type ToolCallIntent struct {
	ID       string           `json:"id"`
	Kind     string           `json:"kind"` // always "function" today
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the tool and carries its JSON-text arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Malformed reports whether this call is missing a usable function name,
// per I5 and the §7 MalformedToolCall taxonomy entry.
func (c ToolCallIntent) Malformed() bool {
	return trimmedEmpty(c.Function.Name)
}

func trimmedEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// Message is the closed sum type over the four roles. Exactly the fields
// meaningful for Role are populated; the rest are left zero. Validate (see
// validate.go) is the authority on well-formedness, not this struct.
type Message struct {
	Role Role `json:"role"`

	// Content holds plain text for system/assistant/tool messages. For
	// user messages with multiple parts, prefer Parts and leave Content
	// empty; a user message with only text may use Content directly.
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`

	// ReasoningContent is assistant-only private chain-of-thought text.
	ReasoningContent string `json:"reasoningContent,omitempty"`

	// ToolCalls is assistant-only: the ordered tool-call intents attached
	// to this message, per I5 always carrying non-empty arguments.
	ToolCalls []ToolCallIntent `json:"toolCalls,omitempty"`

	// ToolCallID is tool-only: the id of the assistant tool-call this
	// message answers.
	ToolCallID string `json:"toolCallId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// UserText builds a single-text user message, the common case.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text, CreatedAt: time.Now()}
}

// ToolResult builds a tool-result message for the given call id.
func ToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, CreatedAt: time.Now()}
}

// ToolCatalogueEntry is the model-facing declaration of a tool: its name,
// description, and optional JSON Schema for its arguments.
type ToolCatalogueEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// ToolExecutor invokes a tool given its validated/coerced argument value
// and returns an opaque textual result. Executors must not panic; a panic
// reaching the dispatcher is treated as a ToolError of type "panic".
type ToolExecutor func(ctx context.Context, args json.RawMessage) (string, error)

// Session is the process-wide state the orchestrator owns for a single
// projectId, matching §3.
type Session struct {
	ProjectID string

	Messages []Message

	Tools       []ToolCatalogueEntry
	CustomTools map[string]ToolExecutor

	MaxSteps int

	// StreamingMessage exists only while IsLoading, per I4.
	StreamingMessage *Message

	IsLoading bool
	// cancel is installed by startGeneration and invoked by stopGeneration.
	Cancel context.CancelFunc

	SessionName  string
	LastActivity time.Time

	TotalCost       decimal.Decimal
	LastInputTokens int64

	// LastUserMessageIndex is captured at the start of each generation:
	// the greatest index i with Messages[i].Role == RoleUser.
	LastUserMessageIndex int

	IsCompressing bool

	// ImagesNotSupported is sticky once a provider refuses an image part.
	ImagesNotSupported bool
}

// DefaultMaxSteps is used when a session is loaded without an explicit cap.
const DefaultMaxSteps = 50

// NewSession builds a fresh, empty session for projectID.
func NewSession(projectID string, tools []ToolCatalogueEntry, customTools map[string]ToolExecutor, maxSteps int) *Session {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Session{
		ProjectID:    projectID,
		Tools:        tools,
		CustomTools:  customTools,
		MaxSteps:     maxSteps,
		SessionName:  NewSessionName(),
		LastActivity: time.Now(),
		TotalCost:    decimal.Zero,
	}
}
