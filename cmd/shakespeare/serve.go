package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/soapbox-pub/shakespeare-sub004/internal/compress"
	"github.com/soapbox-pub/shakespeare-sub004/internal/config"
	"github.com/soapbox-pub/shakespeare-sub004/internal/dispatch"
	"github.com/soapbox-pub/shakespeare-sub004/internal/events"
	"github.com/soapbox-pub/shakespeare-sub004/internal/history"
	"github.com/soapbox-pub/shakespeare-sub004/internal/observability"
	"github.com/soapbox-pub/shakespeare-sub004/internal/orchestrator"
	"github.com/soapbox-pub/shakespeare-sub004/internal/provider"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

func newServeCmd(configPath *string) *cobra.Command {
	var projectDir, projectID, providerModel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Drive one orchestrator session from stdin/stdout, line by line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *configPath, projectDir, projectID, providerModel)
		},
	}
	cmd.Flags().StringVar(&projectDir, "project-dir", ".", "project working directory")
	cmd.Flags().StringVar(&projectID, "project-id", "local", "project identifier")
	cmd.Flags().StringVar(&providerModel, "model", "", "provider/model identifier, e.g. anthropic/claude-sonnet-4-20250514")
	cmd.MarkFlagRequired("model")
	return cmd
}

func runServe(cmd *cobra.Command, configPath, projectDir, projectID, providerModel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.Default()
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{ServiceName: "shakespeare"})
	defer func() { _ = shutdownTracer(context.Background()) }()
	store := history.New()
	catalogue, err := cfg.PriceCatalogue()
	if err != nil {
		return err
	}

	registry := provider.NewRegistry()
	registry.Register("anthropic", provider.AnthropicFactory{})
	registry.Register("openai", provider.OpenAIFactory{})

	bus := events.New(logger)
	bus.On(func(ev events.Event) {
		switch ev.Kind {
		case events.StreamingUpdate:
			fmt.Fprint(cmd.OutOrStdout(), "\r"+ev.StreamContent)
		case events.MessageAdded:
			if ev.Message != nil && ev.Message.Role == shakes.RoleAssistant {
				fmt.Fprintln(cmd.OutOrStdout())
			}
		case events.LoadingChanged:
			if !ev.IsLoading {
				fmt.Fprintln(cmd.OutOrStdout())
			}
		}
	})

	credentialsFor := func(providerID string) provider.Credentials {
		creds := cfg.Providers[providerID]
		return provider.Credentials{APIKey: creds.APIKey, BaseURL: creds.BaseURL}
	}

	summarizer, err := newModelSummarizer(registry, credentialsFor, providerModel)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:       store,
		Providers:   registry,
		Catalogue:   catalogue,
		Dispatcher:  dispatch.New(0, metrics),
		Bus:         bus,
		Logger:      logger,
		Credentials: credentialsFor,
		Compressor:  compress.New(store, summarizer),
		Metrics:     metrics,
		Tracer:      tracer,
	})

	orch.LoadSession(projectDir, projectID, nil, nil, cfg.DefaultMaxSteps)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	ctx := context.Background()
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := orch.SendMessage(ctx, projectID, line, providerModel); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
		}
	}
	return scanner.Err()
}
