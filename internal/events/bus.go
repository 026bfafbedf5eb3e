// Package events implements the Observer Bus (§4.8): a minimal typed
// multi-subscriber dispatcher. Listener panics are caught and logged;
// no event is retried; listeners never block the orchestrator.
package events

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// Kind names one of the seven events the orchestrator emits.
type Kind string

const (
	SessionCreated      Kind = "sessionCreated"
	SessionDeleted      Kind = "sessionDeleted"
	MessageAdded        Kind = "messageAdded"
	StreamingUpdate     Kind = "streamingUpdate"
	LoadingChanged      Kind = "loadingChanged"
	CostUpdated         Kind = "costUpdated"
	ContextUsageUpdated Kind = "contextUsageUpdated"
)

// Event is the payload delivered to listeners. Only the fields relevant
// to Kind are populated. ProjectID is always set, per §4.8.
type Event struct {
	Kind      Kind
	ProjectID string

	Message *shakes.Message // MessageAdded

	StreamContent          string                  // StreamingUpdate
	StreamReasoningContent string                  // StreamingUpdate
	StreamToolCalls        []shakes.ToolCallIntent // StreamingUpdate

	IsLoading bool // LoadingChanged

	TotalCost decimal.Decimal // CostUpdated

	InputTokens int64 // ContextUsageUpdated
}

// Listener receives bus events. Implementations must not block the
// orchestrator for long and must not panic; a panic is recovered by Bus
// and logged, but the listener should not rely on that as control flow.
type Listener func(Event)

// Bus fans out events to every registered listener, synchronously and in
// registration order, matching the teacher's MultiSink/CallbackSink shape
// adapted to this spec's seven named events instead of an open-ended
// AgentEvent union.
type Bus struct {
	listeners []Listener
	logger    *slog.Logger
}

// New creates an empty Bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// On registers a listener. Returns an index usable with Off.
func (b *Bus) On(l Listener) int {
	b.listeners = append(b.listeners, l)
	return len(b.listeners) - 1
}

// Off unregisters the listener at the given index. Safe to call with an
// out-of-range index (no-op).
func (b *Bus) Off(index int) {
	if index < 0 || index >= len(b.listeners) {
		return
	}
	b.listeners[index] = nil
}

// Emit dispatches ev to every live listener. Each listener is invoked
// under a recover guard so a throwing listener cannot prevent subsequent
// listeners from running nor affect orchestrator state (§9).
func (b *Bus) Emit(ev Event) {
	for _, l := range b.listeners {
		if l == nil {
			continue
		}
		b.safeCall(l, ev)
	}
}

func (b *Bus) safeCall(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("observer bus listener panicked",
				"event", ev.Kind, "project_id", ev.ProjectID, "panic", r)
		}
	}()
	l(ev)
}
