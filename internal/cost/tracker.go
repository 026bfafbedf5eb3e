// Package cost implements the Cost & Context Tracker (§4.5): per-token
// pricing resolution and running totals, using arbitrary-precision
// decimals throughout so no binary-float drift reaches a displayed dollar
// amount. Grounded on the ancestor codebase's internal/usage.Cost/Tracker
// (replacing its float64 arithmetic) and internal/context.Window (for the
// context-window percentage side).
package cost

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Price is the per-token price for one (provider, model) pair, set from an
// injected model catalogue rather than fetched from a live provider
// billing API.
type Price struct {
	Prompt     decimal.Decimal
	Completion decimal.Decimal
}

// Catalogue resolves (provider, model) pairs to prices. Callers typically
// back this with a map loaded from configuration.
type Catalogue interface {
	Lookup(provider, model string) (Price, bool)
}

// MapCatalogue is the simplest Catalogue: an in-memory map keyed by
// "provider/model".
type MapCatalogue map[string]Price

func (c MapCatalogue) Lookup(provider, model string) (Price, bool) {
	p, ok := c[provider+"/"+model]
	return p, ok
}

// Usage is the token usage payload observed from one completion.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	// ProviderCost is set only when the provider reports cost directly; a
	// nil pointer means the model catalogue must be consulted instead.
	ProviderCost *decimal.Decimal
}

// tokenCost multiplies price by tokens, per §4.5's promptCost/completionCost
// formula.
func tokenCost(tokens int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(tokens))
}

// Resolve computes the cost delta for one completion's usage, per §4.5's
// two paths: provider-reported cost takes priority, otherwise the
// catalogue's per-token prices are applied.
func Resolve(catalogue Catalogue, provider, model string, u Usage) decimal.Decimal {
	if u.ProviderCost != nil {
		return *u.ProviderCost
	}
	price, ok := catalogue.Lookup(provider, model)
	if !ok {
		return decimal.Zero
	}
	promptCost := tokenCost(u.PromptTokens, price.Prompt)
	completionCost := tokenCost(u.CompletionTokens, price.Completion)
	return promptCost.Add(completionCost)
}

// Window tracks context-window usage for display and compression
// eligibility, mirroring the ancestor codebase's Window but driven purely
// by the prompt-token count the provider reports rather than a local
// character-based estimate.
type Window struct {
	totalTokens int64
	usedTokens  int64
	source      string
}

// DefaultContextWindow is used when a model's window size is unknown.
const DefaultContextWindow = 128_000

// NewWindow creates a Window sized totalTokens, falling back to
// DefaultContextWindow when totalTokens <= 0.
func NewWindow(totalTokens int64, source string) *Window {
	if totalTokens <= 0 {
		totalTokens, source = DefaultContextWindow, "default"
	}
	return &Window{totalTokens: totalTokens, source: source}
}

// SetUsed records the prompt-token count from the most recent completion.
func (w *Window) SetUsed(tokens int64) { w.usedTokens = tokens }

// Remaining returns the tokens left before the window is exhausted.
func (w *Window) Remaining() int64 {
	if r := w.totalTokens - w.usedTokens; r > 0 {
		return r
	}
	return 0
}

// UsedPercent returns the fraction of the window consumed, 0-100.
func (w *Window) UsedPercent() float64 {
	if w.totalTokens <= 0 {
		return 0
	}
	return float64(w.usedTokens) / float64(w.totalTokens) * 100
}

// modelWindows maps a model-id prefix to its context window size, used by
// NewWindowForModel's longest-prefix match.
var modelWindows = map[string]int64{
	"claude-3-opus":     200_000,
	"claude-3-5-sonnet": 200_000,
	"claude-3-5-haiku":  200_000,
	"claude-opus-4":     200_000,
	"gpt-4o":            128_000,
	"gpt-4-turbo":       128_000,
	"gpt-4":             8_192,
	"o1":                200_000,
	"o3-mini":           200_000,
	"gemini-1.5-pro":    2_097_152,
	"gemini-1.5-flash":  1_048_576,
	"gemini-2.0-flash":  1_048_576,
}

// NewWindowForModel resolves modelID against the built-in table by longest
// matching prefix, falling back to DefaultContextWindow.
func NewWindowForModel(modelID string) *Window {
	best, bestTokens := "", int64(0)
	for prefix, tokens := range modelWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(best) {
			best, bestTokens = prefix, tokens
		}
	}
	if best == "" {
		return NewWindow(0, "default")
	}
	return NewWindow(bestTokens, "model")
}
