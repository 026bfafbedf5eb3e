package shakes

import "fmt"

// ValidationError reports a well-formedness violation in a message
// sequence, per I1. It is the payload of shakeserr.ProtocolError.
type ValidationError struct {
	Index      int
	ToolCallID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message %d (tool_call_id %q): %s", e.Index, e.ToolCallID, e.Reason)
}

// Validate checks I1: every tool message must be reachable, by scanning
// backwards and stopping at the first preceding assistant message, to an
// assistant message whose tool_calls contains a matching id. All other
// messages are accepted unconditionally.
func Validate(messages []Message) error {
	for i, msg := range messages {
		if msg.Role != RoleTool {
			continue
		}
		if err := validateToolMessage(messages, i); err != nil {
			return err
		}
	}
	return nil
}

func validateToolMessage(messages []Message, i int) error {
	callID := messages[i].ToolCallID
	for j := i - 1; j >= 0; j-- {
		if messages[j].Role != RoleAssistant {
			continue
		}
		for _, call := range messages[j].ToolCalls {
			if call.ID == callID {
				return nil
			}
		}
		return &ValidationError{
			Index:      i,
			ToolCallID: callID,
			Reason:     fmt.Sprintf("nearest preceding assistant message (%d) has no matching tool_call", j),
		}
	}
	return &ValidationError{
		Index:      i,
		ToolCallID: callID,
		Reason:     "no preceding assistant message found",
	}
}
