// Package config loads the orchestrator's static configuration: provider
// credentials, the cost model-table catalogue, and default session
// knobs. Loading is grounded on the ancestor codebase's $include-resolving
// YAML/JSON5 loader (loader.go, kept verbatim) and its version-check
// pattern (version.go, kept verbatim); only the Config struct this spec
// needs is new.
package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/soapbox-pub/shakespeare-sub004/internal/cost"
)

// ProviderCredentials is one provider's API key and optional base URL
// override, loaded from configuration rather than environment variables
// directly, so a single process can serve multiple projects with
// different provider accounts.
type ProviderCredentials struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ModelPrice is one (provider, model) pair's per-token prices, as decimal
// strings to avoid float parsing ambiguity in YAML.
type ModelPrice struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Prompt     string `yaml:"prompt"`
	Completion string `yaml:"completion"`
}

// Compression configures the Context Compressor's trigger and prompt.
type Compression struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the orchestrator's top-level configuration document.
type Config struct {
	Version int `yaml:"version"`

	DefaultMaxSteps int `yaml:"default_max_steps"`

	Providers map[string]ProviderCredentials `yaml:"providers"`
	Prices    []ModelPrice                   `yaml:"prices"`

	Compression Compression `yaml:"compression"`
}

// Load reads path (resolving $include directives) and decodes it into a
// validated Config.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}
	if cfg.DefaultMaxSteps <= 0 {
		cfg.DefaultMaxSteps = 50
	}
	return cfg, nil
}

// PriceCatalogue builds a cost.MapCatalogue from the configured price
// table, for injection into the Orchestrator per §4.5.
func (c *Config) PriceCatalogue() (cost.MapCatalogue, error) {
	out := make(cost.MapCatalogue, len(c.Prices))
	for _, p := range c.Prices {
		prompt, err := decimal.NewFromString(p.Prompt)
		if err != nil {
			return nil, fmt.Errorf("price for %s/%s: invalid prompt price %q: %w", p.Provider, p.Model, p.Prompt, err)
		}
		completion, err := decimal.NewFromString(p.Completion)
		if err != nil {
			return nil, fmt.Errorf("price for %s/%s: invalid completion price %q: %w", p.Provider, p.Model, p.Completion, err)
		}
		out[p.Provider+"/"+p.Model] = cost.Price{Prompt: prompt, Completion: completion}
	}
	return out, nil
}
