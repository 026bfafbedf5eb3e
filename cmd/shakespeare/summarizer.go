package main

import (
	"context"

	"github.com/soapbox-pub/shakespeare-sub004/internal/compress"
	"github.com/soapbox-pub/shakespeare-sub004/internal/provider"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// modelSummarizer adapts a provider.Client's one-shot completion into the
// Context Compressor's Summarizer contract, fixing temperature at 0.3 per
// §4.7 step 3.
type modelSummarizer struct {
	client provider.Client
}

func newModelSummarizer(registry *provider.Registry, credentialsFor func(string) provider.Credentials, providerModel string) (*modelSummarizer, error) {
	providerID, _, err := provider.ResolveProviderModel(providerModel)
	if err != nil {
		return nil, err
	}
	client, _, err := registry.Client(providerModel, credentialsFor(providerID))
	if err != nil {
		return nil, err
	}
	return &modelSummarizer{client: client}, nil
}

func (s *modelSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	messages := []shakes.Message{
		{Role: shakes.RoleUser, Content: compress.SummaryPrompt + transcript},
	}
	return s.client.CompleteOnce(ctx, messages, provider.Options{Temperature: 0.3})
}
