package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

func call(id, name, args string) shakes.ToolCallIntent {
	return shakes.ToolCallIntent{ID: id, Kind: "function", Function: shakes.ToolCallFunction{Name: name, Arguments: args}}
}

func TestRunUnknownTool(t *testing.T) {
	d := New(0, nil)
	results := d.Run(context.Background(), []shakes.ToolCallIntent{call("c1", "missing", "{}")}, nil, nil)

	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].ToolCallID != "c1" {
		t.Errorf("ToolCallID = %q, want c1", results[0].ToolCallID)
	}
	if got := results[0].Content; got != `Tool "missing" not found` {
		t.Errorf("Content = %q", got)
	}
}

func TestRunSuccess(t *testing.T) {
	d := New(0, nil)
	executors := map[string]shakes.ToolExecutor{
		"echo": func(ctx context.Context, args json.RawMessage) (string, error) {
			return string(args), nil
		},
	}
	results := d.Run(context.Background(), []shakes.ToolCallIntent{call("c1", "echo", `{"x":1}`)}, nil, executors)

	if results[0].Content != `{"x":1}` {
		t.Errorf("Content = %q", results[0].Content)
	}
}

func TestRunExecutorError(t *testing.T) {
	d := New(0, nil)
	executors := map[string]shakes.ToolExecutor{
		"boom": func(ctx context.Context, args json.RawMessage) (string, error) {
			return "", errors.New("disk full")
		},
	}
	results := d.Run(context.Background(), []shakes.ToolCallIntent{call("c1", "boom", "{}")}, nil, executors)

	if results[0].Role != shakes.RoleTool {
		t.Errorf("Role = %q, want tool", results[0].Role)
	}
	if results[0].Content == "" {
		t.Error("expected a non-empty diagnostic message")
	}
}

func TestRunExecutorPanicIsContained(t *testing.T) {
	d := New(0, nil)
	executors := map[string]shakes.ToolExecutor{
		"panics": func(ctx context.Context, args json.RawMessage) (string, error) {
			panic("boom")
		},
	}
	results := d.Run(context.Background(), []shakes.ToolCallIntent{call("c1", "panics", "{}")}, nil, executors)

	if results[0].ToolCallID != "c1" {
		t.Fatalf("expected dispatch to recover from the panic and still emit a tool-result message")
	}
}

func TestRunPreservesOriginalOrder(t *testing.T) {
	d := New(4, nil)
	executors := map[string]shakes.ToolExecutor{
		"echo": func(ctx context.Context, args json.RawMessage) (string, error) {
			return string(args), nil
		},
	}
	calls := []shakes.ToolCallIntent{
		call("c1", "echo", `"a"`),
		call("c2", "echo", `"b"`),
		call("c3", "echo", `"c"`),
	}
	results := d.Run(context.Background(), calls, nil, executors)

	want := []string{"c1", "c2", "c3"}
	for i, id := range want {
		if results[i].ToolCallID != id {
			t.Errorf("results[%d].ToolCallID = %q, want %q", i, results[i].ToolCallID, id)
		}
	}
}

func TestRunEmptyArgumentsDefaultToEmptyObject(t *testing.T) {
	d := New(0, nil)
	var seen json.RawMessage
	executors := map[string]shakes.ToolExecutor{
		"echo": func(ctx context.Context, args json.RawMessage) (string, error) {
			seen = args
			return "ok", nil
		},
	}
	d.Run(context.Background(), []shakes.ToolCallIntent{call("c1", "echo", "")}, nil, executors)

	if string(seen) != "{}" {
		t.Errorf("args = %q, want {}", string(seen))
	}
}

func TestSchemaValidationRejectsInvalidArguments(t *testing.T) {
	d := New(0, nil)
	catalogue := []shakes.ToolCatalogueEntry{
		{Name: "search", Schema: json.RawMessage(`{"type":"object","required":["q"],"properties":{"q":{"type":"string"}}}`)},
	}
	executors := map[string]shakes.ToolExecutor{
		"search": func(ctx context.Context, args json.RawMessage) (string, error) {
			return "should not run", nil
		},
	}
	results := d.Run(context.Background(), []shakes.ToolCallIntent{call("c1", "search", `{}`)}, catalogue, executors)

	if results[0].Content == "should not run" {
		t.Fatal("expected schema validation to reject the call before the executor ran")
	}
}
