// Package shakeserr defines the orchestrator's error taxonomy (§7): one
// distinct Go type per kind, each participating in errors.Is/errors.As
// chains, mirroring the ancestor codebase's ToolError/LoopError shape.
package shakeserr

import (
	"errors"
	"fmt"
)

// ProtocolError wraps a shakes.ValidationError raised synchronously from
// the History Store before a write. Caller bug; fatal to the operation.
type ProtocolError struct {
	Cause error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Cause)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// MalformedToolCallError is raised when the assistant emits a tool-call
// intent with no usable function name. The diagnostic tool message is
// still committed before this error propagates.
type MalformedToolCallError struct {
	ToolCallID    string
	ProviderModel string
}

func (e *MalformedToolCallError) Error() string {
	return fmt.Sprintf("malformed tool call %q from %s: missing function name", e.ToolCallID, e.ProviderModel)
}

// ProviderError wraps any adapter/transport failure: bad credentials, rate
// limiting, non-2xx HTTP, malformed SSE. Propagated to the caller, never
// inserted as a message.
type ProviderError struct {
	Provider string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q error: %v", e.Provider, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// ToolErrorType classifies a ToolError for logging/metrics labels only;
// classification never changes containment (a ToolError is always
// contained in the tool-result message, per §7).
type ToolErrorType string

const (
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorPermission   ToolErrorType = "permission"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// ToolError is thrown inside a tool executor or during argument parsing/
// validation. It is always contained: serialized into the tool-result
// message by the dispatcher, never surfaced to startGeneration's caller.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

func (e *ToolError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("tool %q: %v", e.ToolName, e.Cause)
	}
	return fmt.Sprintf("tool %q: %s error", e.ToolName, e.Type)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError classifies cause using simple pattern matching, mirroring
// the ancestor codebase's classifyToolError. Classification is advisory.
func NewToolError(toolName, toolCallID string, cause error) *ToolError {
	return &ToolError{
		Type:       classifyToolError(cause),
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Cause:      cause,
	}
}

func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}
	s := err.Error()
	switch {
	case contains(s, "timeout", "deadline exceeded"):
		return ToolErrorTimeout
	case contains(s, "connection refused", "no such host", "network"):
		return ToolErrorNetwork
	case contains(s, "rate limit", "too many requests", "429"):
		return ToolErrorRateLimit
	case contains(s, "permission denied", "forbidden", "unauthorized"):
		return ToolErrorPermission
	case contains(s, "invalid", "malformed", "schema"):
		return ToolErrorInvalidInput
	case contains(s, "not found"):
		return ToolErrorNotFound
	default:
		return ToolErrorExecution
	}
}

func contains(s string, subs ...string) bool {
	low := toLower(s)
	for _, sub := range subs {
		if indexOf(low, sub) >= 0 {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// Classify maps a top-level generation error to a short label for
// metrics/logging, mirroring classifyToolError's pattern at the
// orchestrator level instead of the tool level.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errorsAs[*ProtocolError](err):
		return "protocol"
	case errorsAs[*MalformedToolCallError](err):
		return "malformed_tool_call"
	case errorsAs[*ProviderError](err):
		return "provider"
	case errorsAs[*PersistenceError](err):
		return "persistence"
	default:
		return "unknown"
	}
}

func errorsAs[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// Cancellation is the sentinel error surfaced internally when a generation
// is stopped mid-stream. It is always swallowed before reaching
// startGeneration's caller; terminal cleanup still runs.
var Cancellation = errors.New("generation cancelled")

// PersistenceError wraps a filesystem read/write failure. Swallowed with
// a warning at non-critical paths (session save, compression output,
// metadata files); never returned from validator-triggered failures.
type PersistenceError struct {
	Op    string
	Path  string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
