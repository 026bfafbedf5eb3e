// Package compress implements the Context Compressor (§4.7): a
// background task, invoked at most once per generation, that summarizes
// the older half of a session's message log via a one-shot model call and
// rewrites the persisted log. Grounded on the ancestor codebase's
// internal/sessions.Compactor/Summarizer (StrategySummarize), narrowed
// from that file's five configurable strategies to this spec's single
// fixed procedure.
package compress

import (
	"context"
	"fmt"
	"strings"

	"github.com/soapbox-pub/shakespeare-sub004/internal/history"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// Summarizer issues a one-shot, non-streaming completion over the given
// transcript text and returns its plain-text summary. Implementations
// wrap a Provider Adapter Seam client at temperature 0.3, per §4.7 step 3.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Compressor runs the compaction procedure against a project's history.
type Compressor struct {
	store      *history.Store
	summarizer Summarizer
}

// New creates a Compressor backed by store and summarizer.
func New(store *history.Store, summarizer Summarizer) *Compressor {
	return &Compressor{store: store, summarizer: summarizer}
}

// Run executes the §4.7 procedure against a snapshot of messages taken by
// the caller at generation start. It never mutates messages and never
// returns an error to a caller expecting the foreground loop to react —
// failures are logged by the caller, per §4.7 step 6's "log and continue".
func (c *Compressor) Run(ctx context.Context, projectDir, sessionName string, messages []shakes.Message, lastUserMessageIndex int) error {
	toSummarize := messages[:lastUserMessageIndex]
	if len(toSummarize) == 0 {
		return nil
	}
	recent := messages[lastUserMessageIndex:]

	transcript := renderTranscript(toSummarize)
	summary, err := c.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	summaryMessage := shakes.Message{
		Role:    shakes.RoleSystem,
		Content: "Previous conversation summary:\n\n" + summary,
	}

	compacted := make([]shakes.Message, 0, 1+len(recent))
	compacted = append(compacted, summaryMessage)
	compacted = append(compacted, recent...)

	if err := c.store.WriteSession(projectDir, sessionName, compacted); err != nil {
		return fmt.Errorf("persist compacted session: %w", err)
	}
	return nil
}

// renderTranscript enumerates USER/ASSISTANT/TOOL turns textually, per
// §4.7 step 3.
func renderTranscript(messages []shakes.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case shakes.RoleUser:
			fmt.Fprintf(&b, "USER: %s\n\n", userContent(msg))
		case shakes.RoleAssistant:
			fmt.Fprintf(&b, "ASSISTANT: %s\n\n", msg.Content)
			for _, call := range msg.ToolCalls {
				fmt.Fprintf(&b, "  [called %s with %s]\n", call.Function.Name, call.Function.Arguments)
			}
		case shakes.RoleTool:
			fmt.Fprintf(&b, "TOOL(%s): %s\n\n", msg.ToolCallID, msg.Content)
		case shakes.RoleSystem:
			fmt.Fprintf(&b, "SYSTEM: %s\n\n", msg.Content)
		}
	}
	return b.String()
}

func userContent(msg shakes.Message) string {
	if msg.Content != "" || len(msg.Parts) == 0 {
		return msg.Content
	}
	var texts []string
	for _, p := range msg.Parts {
		if p.Type == shakes.PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, " ")
}

// SummaryPrompt is the fixed instruction prefixed to every transcript
// handed to the model, per §4.7 step 3.
const SummaryPrompt = "Summarize the conversation below comprehensively and factually. " +
	"Preserve file paths, package names, configuration changes, and any outstanding user intent.\n\n"
