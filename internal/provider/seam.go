// Package provider defines the Provider Adapter Seam (§4.9): the
// abstract contract the Session Orchestrator depends on, plus concrete
// adapters. Adapters normalize dialect quirks (reasoning field name,
// missing tool-call index, usage arriving only in the final chunk,
// provider-reported cost) before chunks reach the Delta Aggregator.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/soapbox-pub/shakespeare-sub004/internal/aggregator"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// IsImageRejectionError reports whether err looks like a provider
// rejecting a request because it contained an image, the trigger for
// §4.6's sticky image-capability degradation. Neither the OpenAI nor the
// Anthropic SDK surfaces a typed error for this, so this matches on the
// returned error text the same way internal/shakeserr.classifyToolError
// classifies tool failures.
func IsImageRejectionError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	if !strings.Contains(s, "image") && !strings.Contains(s, "multimodal") {
		return false
	}
	return strings.Contains(s, "not support") ||
		strings.Contains(s, "unsupported") ||
		strings.Contains(s, "cannot process") ||
		strings.Contains(s, "multimodal")
}

// Options carries per-request knobs the orchestrator controls: sampling
// temperature for compression's one-shot summaries, and whether usage
// should be requested on every streamed chunk.
type Options struct {
	Temperature       float64
	IncludeUsage      bool
	ImagesUnsupported bool // strip image parts before sending, per §4.6
}

// Client is the seam the orchestrator depends on. A Client is scoped to
// one resolved (provider, model) pair.
type Client interface {
	// OpenStream starts a streaming completion, delivering aggregator
	// chunks on the returned channel until the stream closes or ctx is
	// canceled. The channel is closed when no more chunks will arrive.
	OpenStream(ctx context.Context, messages []shakes.Message, tools []shakes.ToolCatalogueEntry, opts Options) (<-chan aggregator.Chunk, error)

	// CompleteOnce issues a single non-streaming completion and returns
	// its text, used by the Context Compressor (§4.7).
	CompleteOnce(ctx context.Context, messages []shakes.Message, opts Options) (string, error)
}

// Factory constructs a Client for a given model id, scoped to one
// provider. Each adapter in this package implements Factory.
type Factory interface {
	NewClient(modelID string, credentials Credentials) (Client, error)
}

// Credentials holds whatever an adapter needs to authenticate: an API
// key for most providers, or adapter-specific fields (e.g. a Nostr
// NIP-98 signer) for others, per §4.9's "adapter concerns" note.
type Credentials struct {
	APIKey  string
	BaseURL string
}

// Registry resolves providerId to a Factory, the orchestrator's sole
// point of contact with concrete adapters.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the Factory for providerID.
func (r *Registry) Register(providerID string, f Factory) {
	r.factories[providerID] = f
}

// ResolveProviderModel splits a "<providerId>/<modelId>" identifier on the
// first '/'. Everything after the first '/' is the model id, which may
// itself contain further slashes (e.g. "openrouter/anthropic/claude-sonnet-4"
// resolves to provider "openrouter", model "anthropic/claude-sonnet-4"), per §6.
func ResolveProviderModel(providerModel string) (providerID, modelID string, err error) {
	idx := strings.IndexByte(providerModel, '/')
	if idx <= 0 || idx == len(providerModel)-1 {
		return "", "", fmt.Errorf("invalid provider/model identifier %q: expected \"<providerId>/<modelId>\"", providerModel)
	}
	return providerModel[:idx], providerModel[idx+1:], nil
}

// Client resolves providerModel and returns a ready Client. Unknown
// providers produce an error enumerating the known ones, per §6.
func (r *Registry) Client(providerModel string, credentials Credentials) (Client, string, error) {
	providerID, modelID, err := ResolveProviderModel(providerModel)
	if err != nil {
		return nil, "", err
	}
	f, ok := r.factories[providerID]
	if !ok {
		known := make([]string, 0, len(r.factories))
		for id := range r.factories {
			known = append(known, id)
		}
		return nil, "", fmt.Errorf("unknown provider %q: known providers are %v", providerID, known)
	}
	client, err := f.NewClient(modelID, credentials)
	if err != nil {
		return nil, "", err
	}
	return client, modelID, nil
}

// stripImages removes image parts from user messages, preserving text
// parts, for sessions where the provider has already rejected an image
// once (§4.6 "image-capability degradation"). The original messages slice
// is left untouched; a new slice is returned.
func stripImages(messages []shakes.Message) []shakes.Message {
	out := make([]shakes.Message, len(messages))
	for i, msg := range messages {
		if msg.Role != shakes.RoleUser || len(msg.Parts) == 0 {
			out[i] = msg
			continue
		}
		var kept []shakes.Part
		for _, p := range msg.Parts {
			if p.Type == shakes.PartText {
				kept = append(kept, p)
			}
		}
		cp := msg
		cp.Parts = kept
		out[i] = cp
	}
	return out
}
