// Package aggregator implements the Delta Aggregator (§4.3): a pure,
// stateful reducer that folds streaming completion chunks into an
// in-progress assistant message. It has no teacher analogue; it is
// written in the idiom of the rest of this tree (plain struct, no
// interfaces until a second implementation exists).
package aggregator

import "github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"

// Usage is the token/cost payload a provider may attach to a chunk or to
// the final chunk of a stream.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	// Cost is set only when the provider reports cost directly; nil
	// otherwise, signalling the caller to fall back to the model catalogue.
	Cost *string
}

// ToolCallDelta is one incremental update to a single tool-call slot,
// addressed by Index. Index is the provider's index when present; callers
// that receive an unindexed delta should pass the chunk's positional
// order instead (see Chunk.Index).
type ToolCallDelta struct {
	Index    int
	ID       string
	Name     string
	Arguments string // appended, not replaced
}

// Chunk is one unit of streamed output. Every field is optional; a single
// chunk may carry any combination.
type Chunk struct {
	ContentDelta   string
	ReasoningDelta string
	ToolCalls      []ToolCallDelta
	FinishReason   string
	Usage          *Usage
}

// Draft is the in-progress assistant message plus the metadata the
// orchestrator needs once the stream closes.
type Draft struct {
	Content          string
	ReasoningContent string
	ToolCalls        []shakes.ToolCallIntent
	FinishReason     string
	Usage            *Usage

	toolIndex map[int]int // provider/positional index -> slot in ToolCalls
}

// New seeds an empty draft, per §4.3.
func New() *Draft {
	return &Draft{toolIndex: make(map[int]int)}
}

// Feed folds one chunk into the draft. It reports whether any
// user-observable field changed (content, reasoning, or tool-call shape),
// so the caller knows whether a streamingUpdate is warranted.
func (d *Draft) Feed(c Chunk) (changed bool) {
	if c.ContentDelta != "" {
		d.Content += c.ContentDelta
		changed = true
	}
	if c.ReasoningDelta != "" {
		d.ReasoningContent += c.ReasoningDelta
		changed = true
	}
	for i, tc := range c.ToolCalls {
		idx := tc.Index
		if idx == 0 && len(c.ToolCalls) > 1 {
			// Providers that omit index entirely send exactly one delta per
			// chunk; a multi-delta chunk with every Index left at the zero
			// value falls back to positional order within this chunk.
			idx = i
		}
		slot, ok := d.toolIndex[idx]
		if !ok {
			slot = len(d.ToolCalls)
			d.toolIndex[idx] = slot
			d.ToolCalls = append(d.ToolCalls, shakes.ToolCallIntent{Kind: "function"})
		}
		call := &d.ToolCalls[slot]
		if tc.ID != "" {
			call.ID = tc.ID
		}
		if tc.Name != "" {
			call.Function.Name = tc.Name
		}
		if tc.Arguments != "" {
			call.Function.Arguments += tc.Arguments
		}
		changed = true
	}
	if c.FinishReason != "" {
		d.FinishReason = c.FinishReason
	}
	if c.Usage != nil {
		d.Usage = c.Usage
	}
	return changed
}

// Finalize closes the draft out: empty-argument tool-calls become "{}",
// per I5. Malformed calls (missing/whitespace-only function name) are
// retained; the orchestrator is responsible for handling them specially.
func (d *Draft) Finalize() {
	for i := range d.ToolCalls {
		if d.ToolCalls[i].Function.Arguments == "" {
			d.ToolCalls[i].Function.Arguments = "{}"
		}
	}
}

// Message builds the committed shakes.Message from the finalized draft,
// omitting ReasoningContent and ToolCalls when empty.
func (d *Draft) Message() shakes.Message {
	msg := shakes.Message{Role: shakes.RoleAssistant, Content: d.Content}
	if d.ReasoningContent != "" {
		msg.ReasoningContent = d.ReasoningContent
	}
	if len(d.ToolCalls) > 0 {
		msg.ToolCalls = d.ToolCalls
	}
	return msg
}
