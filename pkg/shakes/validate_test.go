package shakes

import "testing"

func assistantWithCall(id string) Message {
	return Message{Role: RoleAssistant, ToolCalls: []ToolCallIntent{{ID: id, Function: ToolCallFunction{Name: "search", Arguments: "{}"}}}}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name     string
		messages []Message
		wantErr  bool
	}{
		{
			name: "no tool messages",
			messages: []Message{
				UserText("hi"),
				{Role: RoleAssistant, Content: "hello"},
			},
		},
		{
			name: "tool paired with immediately preceding assistant",
			messages: []Message{
				UserText("hi"),
				assistantWithCall("call_1"),
				ToolResult("call_1", "42"),
			},
		},
		{
			name: "tool paired with a non-adjacent preceding assistant, no intervening assistant",
			messages: []Message{
				assistantWithCall("call_1"),
				{Role: RoleUser, Content: "still waiting"},
				ToolResult("call_1", "42"),
			},
		},
		{
			name: "backward scan stops at the first preceding assistant even if an earlier one matches",
			messages: []Message{
				assistantWithCall("call_1"),
				assistantWithCall("call_2"),
				ToolResult("call_1", "42"),
			},
			wantErr: true,
		},
		{
			name: "tool with no preceding assistant message",
			messages: []Message{
				ToolResult("call_1", "42"),
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.messages)
			if tc.wantErr && err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
