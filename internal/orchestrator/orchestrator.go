// Package orchestrator implements the Session Orchestrator (§4.6): the
// public surface every other component sits behind. It owns the
// project-keyed session table and drives the generation loop — building
// the outgoing request, folding stream chunks through the Delta
// Aggregator, committing messages via the History Store, dispatching
// tools, updating cost/context, and broadcasting observer events.
//
// Per-project single-flight (I3) is enforced by each Session's own
// isLoading latch under the table mutex, the same per-key exclusion idiom
// as the ancestor codebase's sessions.SessionLocker, adapted to guard
// startGeneration instead of write-lock CRUD.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/soapbox-pub/shakespeare-sub004/internal/aggregator"
	"github.com/soapbox-pub/shakespeare-sub004/internal/compress"
	"github.com/soapbox-pub/shakespeare-sub004/internal/cost"
	"github.com/soapbox-pub/shakespeare-sub004/internal/dispatch"
	"github.com/soapbox-pub/shakespeare-sub004/internal/events"
	"github.com/soapbox-pub/shakespeare-sub004/internal/history"
	"github.com/soapbox-pub/shakespeare-sub004/internal/observability"
	"github.com/soapbox-pub/shakespeare-sub004/internal/provider"
	"github.com/soapbox-pub/shakespeare-sub004/internal/shakeserr"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// PromptBuilder produces the system prompt for a generation, an opaque
// pure function over session configuration and the project's filesystem,
// per §4.6 step 4's "build the system prompt" note.
type PromptBuilder func(projectDir string, sess *shakes.Session) string

// CredentialResolver returns the credentials to use for a provider id.
type CredentialResolver func(providerID string) provider.Credentials

// Config wires the Orchestrator's collaborators.
type Config struct {
	Store         *history.Store
	Providers     *provider.Registry
	Credentials   CredentialResolver
	Catalogue     cost.Catalogue
	Dispatcher    *dispatch.Dispatcher
	Bus           *events.Bus
	PromptBuilder PromptBuilder
	Compressor    *compress.Compressor
	Logger        *slog.Logger
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
}

// Orchestrator owns sessions: Map<projectId, Session> and implements the
// public contract of §6.
type Orchestrator struct {
	cfg Config

	mu          sync.Mutex
	sessions    map[string]*shakes.Session
	projectDirs map[string]string
}

// New creates an Orchestrator from cfg. A nil Logger falls back to
// slog.Default().
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:         cfg,
		sessions:    make(map[string]*shakes.Session),
		projectDirs: make(map[string]string),
	}
}

// LoadSession rebinds an existing session's tools/customTools/maxSteps in
// place (preserving message state) or restores the most recent persisted
// log, or initializes empty. Emits sessionCreated only on first creation.
func (o *Orchestrator) LoadSession(projectDir, projectID string, tools []shakes.ToolCatalogueEntry, customTools map[string]shakes.ToolExecutor, maxSteps int) *shakes.Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.projectDirs[projectID] = projectDir

	if sess, ok := o.sessions[projectID]; ok {
		sess.Tools = tools
		sess.CustomTools = customTools
		if maxSteps > 0 {
			sess.MaxSteps = maxSteps
		}
		return sess
	}

	sess := shakes.NewSession(projectID, tools, customTools, maxSteps)
	if last, err := o.cfg.Store.ReadLastSession(projectDir); err != nil {
		o.cfg.Logger.Warn("failed to restore session history", "project_id", projectID, "error", err)
	} else if last != nil {
		sess.Messages = last.Messages
		sess.SessionName = last.SessionName
	}

	o.sessions[projectID] = sess
	o.cfg.Bus.Emit(events.Event{Kind: events.SessionCreated, ProjectID: projectID})
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.SessionStarted()
	}
	return sess
}

// GetSession returns the in-memory session for projectID, if any.
func (o *Orchestrator) GetSession(projectID string) (*shakes.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[projectID]
	return sess, ok
}

// GetAllSessions returns a snapshot of every loaded session.
func (o *Orchestrator) GetAllSessions() []*shakes.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*shakes.Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		out = append(out, s)
	}
	return out
}

// DeleteSession cancels any in-flight generation and drops the session's
// in-memory state, emitting sessionDeleted.
func (o *Orchestrator) DeleteSession(projectID string) {
	o.mu.Lock()
	sess, ok := o.sessions[projectID]
	if ok {
		if sess.Cancel != nil {
			sess.Cancel()
		}
		delete(o.sessions, projectID)
		delete(o.projectDirs, projectID)
	}
	o.mu.Unlock()

	if ok {
		o.cfg.Bus.Emit(events.Event{Kind: events.SessionDeleted, ProjectID: projectID})
		if o.cfg.Metrics != nil {
			o.cfg.Metrics.SessionEnded()
		}
	}
}

// AddMessage appends message to projectID's log, updates lastActivity,
// persists via the History Store, and emits messageAdded.
func (o *Orchestrator) AddMessage(projectID string, message shakes.Message) error {
	o.mu.Lock()
	sess, ok := o.sessions[projectID]
	projectDir := o.projectDirs[projectID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("orchestrator: no session for project %q", projectID)
	}

	o.mu.Lock()
	sess.Messages = append(sess.Messages, message)
	o.mu.Unlock()

	if err := o.cfg.Store.WriteSession(projectDir, sess.SessionName, sess.Messages); err != nil {
		o.cfg.Logger.Warn("failed to persist session", "project_id", projectID, "error", err)
	}
	o.cfg.Bus.Emit(events.Event{Kind: events.MessageAdded, ProjectID: projectID, Message: &message})
	return nil
}

// SendMessage is a no-op if the session is currently loading; otherwise it
// appends a user message and starts generation.
func (o *Orchestrator) SendMessage(ctx context.Context, projectID, content, providerModel string) error {
	sess, ok := o.GetSession(projectID)
	if !ok {
		return fmt.Errorf("orchestrator: no session for project %q", projectID)
	}
	if sess.IsLoading {
		return nil
	}
	if err := o.AddMessage(projectID, shakes.UserText(content)); err != nil {
		return err
	}
	return o.StartGeneration(ctx, projectID, providerModel)
}

// StopGeneration triggers cancellation and clears loading state. Safe to
// call repeatedly.
func (o *Orchestrator) StopGeneration(projectID string) {
	o.mu.Lock()
	sess, ok := o.sessions[projectID]
	if !ok || !sess.IsLoading {
		o.mu.Unlock()
		return
	}
	if sess.Cancel != nil {
		sess.Cancel()
	}
	sess.IsLoading = false
	sess.StreamingMessage = nil
	sess.Cancel = nil
	o.mu.Unlock()

	o.cfg.Bus.Emit(events.Event{Kind: events.LoadingChanged, ProjectID: projectID, IsLoading: false})
}

// StartNewSession cancels any in-flight generation, clears messages,
// streaming state, cost, and tokens, and regenerates sessionName.
func (o *Orchestrator) StartNewSession(projectID string) {
	o.mu.Lock()
	sess, ok := o.sessions[projectID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if sess.Cancel != nil {
		sess.Cancel()
	}
	sess.Messages = nil
	sess.StreamingMessage = nil
	sess.IsLoading = false
	sess.Cancel = nil
	sess.TotalCost = decimal.Zero
	sess.LastInputTokens = 0
	sess.SessionName = shakes.NewSessionName()
	o.mu.Unlock()

	o.cfg.Bus.Emit(events.Event{Kind: events.CostUpdated, ProjectID: projectID, TotalCost: decimal.Zero})
	o.cfg.Bus.Emit(events.Event{Kind: events.ContextUsageUpdated, ProjectID: projectID, InputTokens: 0})
}

// StartGeneration runs the hot-path generation loop for projectID against
// providerModel, per §4.6. Preconditions: the session exists and its
// message log is non-empty.
func (o *Orchestrator) StartGeneration(ctx context.Context, projectID, providerModel string) error {
	o.mu.Lock()
	sess, ok := o.sessions[projectID]
	projectDir := o.projectDirs[projectID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: no session for project %q", projectID)
	}
	if sess.IsLoading {
		o.mu.Unlock()
		return nil
	}
	if len(sess.Messages) == 0 {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: cannot start generation on an empty message log")
	}
	// Claim the single-flight latch (I3) before any further work, so a
	// concurrent StartGeneration on the same session observes IsLoading
	// and no-ops instead of racing to install its own Cancel handle.
	sess.IsLoading = true
	o.mu.Unlock()

	providerID, modelID, err := provider.ResolveProviderModel(providerModel)
	if err != nil {
		o.mu.Lock()
		sess.IsLoading = false
		o.mu.Unlock()
		return err
	}
	creds := provider.Credentials{}
	if o.cfg.Credentials != nil {
		creds = o.cfg.Credentials(providerID)
	}
	client, modelID, err := o.cfg.Providers.Client(providerModel, creds)
	if err != nil {
		o.mu.Lock()
		sess.IsLoading = false
		o.mu.Unlock()
		return err
	}

	genCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	sess.Cancel = cancel
	sess.LastUserMessageIndex = lastUserIndex(sess.Messages)
	o.mu.Unlock()
	o.cfg.Bus.Emit(events.Event{Kind: events.LoadingChanged, ProjectID: projectID, IsLoading: true})

	if o.cfg.Tracer != nil {
		var span trace.Span
		genCtx, span = o.cfg.Tracer.TraceGeneration(genCtx, projectID)
		defer span.End()
	}

	err = o.runLoop(genCtx, projectDir, sess, providerID, modelID, client)

	o.mu.Lock()
	sess.IsLoading = false
	sess.StreamingMessage = nil
	sess.Cancel = nil
	o.mu.Unlock()
	o.cfg.Bus.Emit(events.Event{Kind: events.LoadingChanged, ProjectID: projectID, IsLoading: false})

	if err == shakeserr.Cancellation {
		return nil
	}
	if err != nil && o.cfg.Metrics != nil {
		o.cfg.Metrics.RecordError("orchestrator", shakeserr.Classify(err))
	}
	return err
}

func lastUserIndex(messages []shakes.Message) int {
	idx := 0
	for i, m := range messages {
		if m.Role == shakes.RoleUser {
			idx = i
		}
	}
	return idx
}

func (o *Orchestrator) runLoop(ctx context.Context, projectDir string, sess *shakes.Session, providerID, modelID string, client provider.Client) error {
	isFirstResponse := true

	for step := 0; step < sess.MaxSteps && sess.IsLoading; step++ {
		draft := aggregator.New()
		sess.StreamingMessage = &shakes.Message{Role: shakes.RoleAssistant}

		system := ""
		if o.cfg.PromptBuilder != nil {
			system = o.cfg.PromptBuilder(projectDir, sess)
		}
		outgoing := sess.Messages
		if system != "" {
			outgoing = append([]shakes.Message{{Role: shakes.RoleSystem, Content: system}}, sess.Messages...)
		}

		stepStart := time.Now()
		chunks, err := client.OpenStream(ctx, outgoing, sess.Tools, provider.Options{
			IncludeUsage:      true,
			ImagesUnsupported: sess.ImagesNotSupported,
		})
		if err != nil {
			if ctx.Err() != nil {
				return shakeserr.Cancellation
			}
			if !sess.ImagesNotSupported && provider.IsImageRejectionError(err) {
				sess.ImagesNotSupported = true
				step-- // retry this step with images stripped, per §4.6
				continue
			}
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.RecordLLMRequest(providerID, modelID, "error", time.Since(stepStart).Seconds(), 0, 0)
			}
			return &shakeserr.ProviderError{Provider: providerID, Cause: err}
		}

		var usage *aggregator.Usage
		for chunk := range chunks {
			if !sess.IsLoading {
				break
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			if changed := draft.Feed(chunk); changed {
				o.cfg.Bus.Emit(events.Event{
					Kind:                   events.StreamingUpdate,
					ProjectID:              sess.ProjectID,
					StreamContent:          draft.Content,
					StreamReasoningContent: draft.ReasoningContent,
					StreamToolCalls:        draft.ToolCalls,
				})
			}
		}
		if ctx.Err() != nil {
			if o.cfg.Metrics != nil {
				o.cfg.Metrics.RecordLLMRequest(providerID, modelID, "cancelled", time.Since(stepStart).Seconds(), 0, 0)
			}
			return shakeserr.Cancellation
		}
		if o.cfg.Metrics != nil {
			promptTokens, completionTokens := int64(0), int64(0)
			if usage != nil {
				promptTokens, completionTokens = usage.PromptTokens, usage.CompletionTokens
			}
			o.cfg.Metrics.RecordLLMRequest(providerID, modelID, "success", time.Since(stepStart).Seconds(), promptTokens, completionTokens)
		}

		draft.Finalize()
		assistantMsg := draft.Message()
		if err := o.AddMessage(sess.ProjectID, assistantMsg); err != nil {
			o.cfg.Logger.Warn("failed to append assistant message", "project_id", sess.ProjectID, "error", err)
		}

		if usage != nil {
			o.applyCost(sess, providerID, modelID, *usage)
		}

		if isFirstResponse && len(assistantMsg.ToolCalls) > 0 && sess.LastUserMessageIndex != 0 && !sess.IsCompressing {
			o.spawnCompression(projectDir, sess)
		}
		isFirstResponse = false

		// Dispatch calls in order (§4.6); a malformed call is only raised
		// once reached, so well-formed calls preceding it still run.
		var malformed *shakes.ToolCallIntent
		wellFormed := make([]shakes.ToolCallIntent, 0, len(assistantMsg.ToolCalls))
		for i, call := range assistantMsg.ToolCalls {
			if call.Malformed() {
				malformed = &assistantMsg.ToolCalls[i]
				break
			}
			wellFormed = append(wellFormed, call)
		}

		if len(wellFormed) > 0 {
			results := o.cfg.Dispatcher.Run(ctx, wellFormed, sess.Tools, sess.CustomTools)
			for _, result := range results {
				if err := o.AddMessage(sess.ProjectID, result); err != nil {
					o.cfg.Logger.Warn("failed to append tool result", "project_id", sess.ProjectID, "error", err)
				}
			}
		}

		if malformed != nil {
			diag := shakes.ToolResult(malformed.ID, fmt.Sprintf("Malformed tool call %q: missing function name", malformed.ID))
			_ = o.AddMessage(sess.ProjectID, diag)
			return &shakeserr.MalformedToolCallError{ToolCallID: malformed.ID, ProviderModel: providerID + "/" + modelID}
		}

		if draft.FinishReason == "stop" {
			return nil
		}
	}
	return nil
}

func (o *Orchestrator) applyCost(sess *shakes.Session, providerID, modelID string, u aggregator.Usage) {
	var providerCost *decimal.Decimal
	if u.Cost != nil {
		if d, err := decimal.NewFromString(*u.Cost); err == nil {
			providerCost = &d
		}
	}
	delta := cost.Resolve(o.cfg.Catalogue, providerID, modelID, cost.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		ProviderCost:     providerCost,
	})

	o.mu.Lock()
	sess.TotalCost = sess.TotalCost.Add(delta)
	sess.LastInputTokens = u.PromptTokens
	total := sess.TotalCost
	o.mu.Unlock()

	o.cfg.Bus.Emit(events.Event{Kind: events.CostUpdated, ProjectID: sess.ProjectID, TotalCost: total})
	o.cfg.Bus.Emit(events.Event{Kind: events.ContextUsageUpdated, ProjectID: sess.ProjectID, InputTokens: u.PromptTokens})

	if o.cfg.Metrics != nil {
		costFloat, _ := delta.Float64()
		o.cfg.Metrics.RecordLLMCost(providerID, modelID, costFloat)
	}
}

// spawnCompression runs the Context Compressor detached from the
// foreground loop, on a snapshot of messages taken at this instant, per
// §4.6's compression trigger and §4.7's "uses a snapshot" tolerance for
// the race against further foreground appends.
func (o *Orchestrator) spawnCompression(projectDir string, sess *shakes.Session) {
	if o.cfg.Compressor == nil {
		return
	}
	o.mu.Lock()
	sess.IsCompressing = true
	snapshot := append([]shakes.Message(nil), sess.Messages...)
	lastUserIdx := sess.LastUserMessageIndex
	sessionName := sess.SessionName
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			sess.IsCompressing = false
			o.mu.Unlock()
		}()

		ctx := context.Background()
		if o.cfg.Tracer != nil {
			var span trace.Span
			ctx, span = o.cfg.Tracer.TraceCompression(ctx, sess.ProjectID)
			defer span.End()
		}

		err := o.cfg.Compressor.Run(ctx, projectDir, sessionName, snapshot, lastUserIdx)
		if err != nil {
			o.cfg.Logger.Warn("background compression failed", "project_id", sess.ProjectID, "error", err)
		}
		if o.cfg.Metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			o.cfg.Metrics.RecordCompression(status)
		}
	}()
}
