package cost

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestResolvePrefersProviderReportedCost(t *testing.T) {
	reported := decimal.NewFromFloat(0.42)
	catalogue := MapCatalogue{"anthropic/claude-3-opus": {Prompt: decimal.NewFromInt(15), Completion: decimal.NewFromInt(75)}}

	got := Resolve(catalogue, "anthropic", "claude-3-opus", Usage{PromptTokens: 1000, CompletionTokens: 500, ProviderCost: &reported})
	if !got.Equal(reported) {
		t.Errorf("Resolve() = %s, want provider-reported %s", got, reported)
	}
}

func TestResolveFallsBackToCatalogue(t *testing.T) {
	catalogue := MapCatalogue{"openai/gpt-4o": {Prompt: decimal.NewFromFloat(0.000001), Completion: decimal.NewFromFloat(0.000002)}}

	got := Resolve(catalogue, "openai", "gpt-4o", Usage{PromptTokens: 1000, CompletionTokens: 500})
	want := decimal.NewFromFloat(0.002) // promptCost = 1e-6*1000 = 0.001, completionCost = 2e-6*500 = 0.001
	if !got.Equal(want) {
		t.Errorf("Resolve() = %s, want %s", got, want)
	}
}

func TestResolveUnknownModelIsZero(t *testing.T) {
	catalogue := MapCatalogue{}
	got := Resolve(catalogue, "openai", "unknown-model", Usage{PromptTokens: 1000, CompletionTokens: 1000})
	if !got.IsZero() {
		t.Errorf("Resolve() = %s, want zero", got)
	}
}

func TestWindowRemainingAndUsedPercent(t *testing.T) {
	w := NewWindow(1000, "test")
	w.SetUsed(250)
	if w.Remaining() != 750 {
		t.Errorf("Remaining() = %d, want 750", w.Remaining())
	}
	if got := w.UsedPercent(); got != 25 {
		t.Errorf("UsedPercent() = %v, want 25", got)
	}
}

func TestWindowRemainingNeverNegative(t *testing.T) {
	w := NewWindow(1000, "test")
	w.SetUsed(5000)
	if w.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", w.Remaining())
	}
}

func TestNewWindowFallsBackToDefault(t *testing.T) {
	w := NewWindow(0, "")
	if w.Remaining() != DefaultContextWindow {
		t.Errorf("Remaining() = %d, want %d", w.Remaining(), DefaultContextWindow)
	}
}

func TestNewWindowForModelLongestPrefixMatch(t *testing.T) {
	cases := []struct {
		model string
		want  int64
	}{
		{"gpt-4o-mini", 128_000},
		{"gpt-4-turbo-preview", 128_000},
		{"gpt-4", 8_192},
		{"claude-3-5-sonnet-20241022", 200_000},
		{"gemini-1.5-pro-latest", 2_097_152},
		{"some-unlisted-model", DefaultContextWindow},
	}
	for _, tc := range cases {
		t.Run(tc.model, func(t *testing.T) {
			w := NewWindowForModel(tc.model)
			if w.Remaining() != tc.want {
				t.Errorf("NewWindowForModel(%q).Remaining() = %d, want %d", tc.model, w.Remaining(), tc.want)
			}
		})
	}
}
