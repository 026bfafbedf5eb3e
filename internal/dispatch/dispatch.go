// Package dispatch implements the Tool Dispatcher (§4.4): resolves each
// tool-call intent against the session's executor table, validates its
// arguments against an optional JSON Schema, and runs it. Concurrency
// bounding is grounded on the ancestor codebase's ToolExecutor semaphore
// pattern; schema compilation caching is grounded on its plugin SDK's
// compileSchema.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/soapbox-pub/shakespeare-sub004/internal/observability"
	"github.com/soapbox-pub/shakespeare-sub004/internal/shakeserr"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// DefaultConcurrency bounds how many tool calls from one assistant message
// run at once.
const DefaultConcurrency = 4

// Dispatcher runs resolved tool-call intents against a session's tool
// catalogue and executor table.
type Dispatcher struct {
	concurrency int
	schemas     sync.Map // catalogue entry name -> *jsonschema.Schema
	metrics     *observability.Metrics
}

// New creates a Dispatcher. concurrency <= 0 uses DefaultConcurrency. A nil
// metrics disables per-call instrumentation.
func New(concurrency int, metrics *observability.Metrics) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Dispatcher{concurrency: concurrency, metrics: metrics}
}

// schemaFor compiles and caches the JSON Schema declared by entry, if any.
func (d *Dispatcher) schemaFor(entry shakes.ToolCatalogueEntry) (*jsonschema.Schema, error) {
	if len(entry.Schema) == 0 {
		return nil, nil
	}
	if cached, ok := d.schemas.Load(entry.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString(entry.Name+".schema.json", string(entry.Schema))
	if err != nil {
		return nil, err
	}
	d.schemas.Store(entry.Name, compiled)
	return compiled, nil
}

// Run dispatches every call in calls against tools/executors, in order,
// bounded by the dispatcher's concurrency, and returns one tool-result
// message per call in the same order regardless of completion order
// (§4.4's ordering guarantee).
func (d *Dispatcher) Run(ctx context.Context, calls []shakes.ToolCallIntent, catalogue []shakes.ToolCatalogueEntry, executors map[string]shakes.ToolExecutor) []shakes.Message {
	byName := make(map[string]shakes.ToolCatalogueEntry, len(catalogue))
	for _, e := range catalogue {
		byName[e.Name] = e
	}

	results := make([]shakes.Message, len(calls))
	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call shakes.ToolCallIntent) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.dispatchOne(ctx, call, byName, executors)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call shakes.ToolCallIntent, byName map[string]shakes.ToolCatalogueEntry, executors map[string]shakes.ToolExecutor) shakes.Message {
	start := time.Now()
	exec, ok := executors[call.Function.Name]
	if !ok {
		d.record(call.Function.Name, "error", start)
		return shakes.ToolResult(call.ID, fmt.Sprintf("Tool %q not found", call.Function.Name))
	}

	entry := byName[call.Function.Name]
	args, err := d.resolveArgs(entry, call.Function.Arguments)
	if err != nil {
		d.record(call.Function.Name, "error", start)
		return shakes.ToolResult(call.ID, fmt.Sprintf("Error with tool %s: %v", call.Function.Name, err))
	}

	out, err := d.safeExecute(ctx, exec, args)
	if err != nil {
		d.record(call.Function.Name, "error", start)
		toolErr := shakeserr.NewToolError(call.Function.Name, call.ID, err)
		return shakes.ToolResult(call.ID, fmt.Sprintf("Error with tool %s: %s", call.Function.Name, toolErr.Error()))
	}
	d.record(call.Function.Name, "success", start)
	return shakes.ToolResult(call.ID, out)
}

func (d *Dispatcher) record(toolName, status string, start time.Time) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordToolExecution(toolName, status, time.Since(start).Seconds())
}

// resolveArgs parses the call's raw argument text and, when the catalogue
// entry declares a schema, validates it (§4.4 steps 2-3).
func (d *Dispatcher) resolveArgs(entry shakes.ToolCatalogueEntry, raw string) (json.RawMessage, error) {
	if raw == "" {
		raw = "{}"
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	schema, err := d.schemaFor(entry)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if schema != nil {
		if err := schema.Validate(decoded); err != nil {
			return nil, fmt.Errorf("arguments invalid: %w", err)
		}
	}
	return json.RawMessage(raw), nil
}

// safeExecute runs exec, converting a panic into a *shakeserr.ToolError of
// type "panic" instead of crashing the dispatcher.
func (d *Dispatcher) safeExecute(ctx context.Context, exec shakes.ToolExecutor, args json.RawMessage) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &shakeserr.ToolError{Type: shakeserr.ToolErrorPanic, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return exec(ctx, args)
}
