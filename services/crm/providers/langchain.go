// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	chatTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "providers",
		Name:      "chat_total",
		Help:      "Chat completions by outcome: success, error, timeout",
	}, []string{"provider", "outcome"})

	chatLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crm",
		Subsystem: "providers",
		Name:      "chat_latency_seconds",
		Help:      "Latency of chat completion calls",
		Buckets:   []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"provider"})
)

var tracer = otel.Tracer("aleutiancrm.providers")

// Provider name constants understood by NewFromEnv.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// LangchainClient adapts a langchaingo model to the ChatClient interface.
//
// Description:
//
//	Wraps any llms.Model (OpenAI, Ollama) behind the minimal Chat interface
//	the planning components consume. Adds an OTel span and Prometheus
//	metrics per call.
//
// Thread Safety: Safe for concurrent use (llms.Model implementations are).
type LangchainClient struct {
	model    llms.Model
	provider string
	logger   *slog.Logger
}

// NewLangchainClient wraps an llms.Model.
//
// Inputs:
//   - model: The backing model. Must not be nil.
//   - provider: Provider label for logs/metrics ("openai", "ollama").
func NewLangchainClient(model llms.Model, provider string) (*LangchainClient, error) {
	if model == nil {
		return nil, fmt.Errorf("model must not be nil")
	}
	return &LangchainClient{
		model:    model,
		provider: provider,
		logger:   slog.Default(),
	}, nil
}

// NewFromEnv builds a ChatClient from environment variables.
//
// Description:
//
//	CRM_PROVIDER selects the backend ("openai" default, or "ollama").
//	CRM_MODEL overrides the default model. OpenAI reads OPENAI_API_KEY;
//	Ollama reads OLLAMA_BASE_URL (default http://localhost:11434).
//
// Outputs:
//   - ChatClient: The configured client.
//   - error: Non-nil if the provider is unknown or its SDK rejects the config.
func NewFromEnv() (ChatClient, error) {
	provider := strings.ToLower(os.Getenv("CRM_PROVIDER"))
	if provider == "" {
		provider = ProviderOpenAI
	}
	model := os.Getenv("CRM_MODEL")

	switch provider {
	case ProviderOpenAI:
		if model == "" {
			model = "gpt-4o-mini"
		}
		llm, err := openai.New(openai.WithModel(model))
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return NewLangchainClient(llm, ProviderOpenAI)

	case ProviderOllama:
		if model == "" {
			model = "llama3.1"
		}
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return NewLangchainClient(llm, ProviderOllama)

	default:
		return nil, fmt.Errorf("unknown provider %q (want openai or ollama)", provider)
	}
}

// Chat implements ChatClient.
func (c *LangchainClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	ctx, span := tracer.Start(ctx, "LangchainClient.Chat")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider", c.provider),
		attribute.Int("messages", len(messages)),
	)

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(roleToMessageType(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, content, callOpts...)
	duration := time.Since(start)
	chatLatency.WithLabelValues(c.provider).Observe(duration.Seconds())

	if err != nil {
		outcome := "error"
		if ctx.Err() == context.DeadlineExceeded {
			outcome = "timeout"
		}
		chatTotal.WithLabelValues(c.provider, outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		chatTotal.WithLabelValues(c.provider, "error").Inc()
		span.SetStatus(codes.Error, "empty response")
		return "", fmt.Errorf("chat completion returned no choices")
	}

	chatTotal.WithLabelValues(c.provider, "success").Inc()
	span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))

	c.logger.Debug("chat completion",
		slog.String("provider", c.provider),
		slog.Duration("duration", duration),
		slog.Int("response_len", len(resp.Choices[0].Content)),
	)

	return resp.Choices[0].Content, nil
}

func roleToMessageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
