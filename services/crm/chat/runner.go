// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chat runs the conversational loop: intent extraction, tool
// dispatch, chart shaping, and the final natural-language summary. It owns
// no domain logic — it composes the extractor, the dispatcher, and the
// chart heuristic into one request/response turn.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/intent"
	"github.com/AleutianAI/AleutianCRM/services/crm/providers"
	"github.com/AleutianAI/AleutianCRM/services/crm/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "chat",
		Name:      "turns_total",
		Help:      "Chat turns by outcome: conversational, tool, tool_error, error",
	}, []string{"outcome"})

	turnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crm",
		Subsystem: "chat",
		Name:      "turn_latency_seconds",
		Help:      "End-to-end latency of one chat turn",
		Buckets:   []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})
)

var tracer = otel.Tracer("aleutiancrm.chat")

// Request is one chat turn: the conversation so far plus the caller.
type Request struct {
	Messages []providers.Message
	Caller   tools.Caller
}

// Response is the assistant's turn.
type Response struct {
	// Text is the user-facing reply.
	Text string `json:"text"`

	// ToolName is set when a tool ran this turn.
	ToolName string `json:"toolName,omitempty"`

	// StructuredContent carries the tool result payload for rich clients.
	StructuredContent map[string]any `json:"structuredContent,omitempty"`

	// ChartData is set when the turn produced an inline chart.
	ChartData *ChartData `json:"chartData,omitempty"`

	// IsError marks a failed tool call; Text then explains the failure.
	IsError bool `json:"isError,omitempty"`
}

// Runner executes chat turns.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	extractor  *intent.Extractor
	dispatcher *tools.Dispatcher
	chat       providers.ChatClient
	logger     *slog.Logger
}

// NewRunner creates a Runner. The chat client writes the final summary; the
// extractor and dispatcher do everything else.
func NewRunner(ext *intent.Extractor, disp *tools.Dispatcher, chat providers.ChatClient) (*Runner, error) {
	if ext == nil {
		return nil, fmt.Errorf("extractor must not be nil")
	}
	if disp == nil {
		return nil, fmt.Errorf("dispatcher must not be nil")
	}
	if chat == nil {
		return nil, fmt.Errorf("chat client must not be nil")
	}
	return &Runner{
		extractor:  ext,
		dispatcher: disp,
		chat:       chat,
		logger:     slog.Default(),
	}, nil
}

// Run executes one chat turn.
//
// Description:
//
//	Extracts the intent of the last user message. Conversational intents
//	return directly. Tool intents dispatch, then the chart heuristic runs
//	over the tool result, then a second model call rewrites the result as
//	a natural reply. A failed summary call degrades to the tool result's
//	own text — the turn never fails because of the summarizer.
func (r *Runner) Run(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "Runner.Run")
	defer span.End()
	start := time.Now()
	defer func() { turnLatency.Observe(time.Since(start).Seconds()) }()

	if len(req.Messages) == 0 {
		turnsTotal.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("chat turn has no messages")
	}

	catalog := extractorCatalog()
	it, err := r.extractor.Extract(ctx, req.Messages, catalog)
	if err != nil {
		turnsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "intent extraction failed")
		return Response{}, err
	}

	if !it.NeedsTool {
		turnsTotal.WithLabelValues("conversational").Inc()
		return Response{Text: it.Response}, nil
	}

	span.SetAttributes(attribute.String("tool", it.ToolName))
	result := r.dispatcher.Dispatch(ctx, it.ToolName, it.Args, req.Caller)

	if result.IsError {
		turnsTotal.WithLabelValues("tool_error").Inc()
		return Response{
			Text:              result.Text(),
			ToolName:          it.ToolName,
			StructuredContent: result.StructuredContent,
			IsError:           true,
		}, nil
	}

	userMessage := lastUserMessage(req.Messages)
	chart := BuildChartData(userMessage, result.StructuredContent)

	text := r.summarize(ctx, userMessage, result.Text())

	turnsTotal.WithLabelValues("tool").Inc()
	return Response{
		Text:              text,
		ToolName:          it.ToolName,
		StructuredContent: result.StructuredContent,
		ChartData:         chart,
	}, nil
}

// summarize rewrites the tool result as a natural reply. Failure degrades
// to the raw result text.
func (r *Runner) summarize(ctx context.Context, userMessage, resultText string) string {
	summary, err := r.chat.Chat(ctx, []providers.Message{
		{
			Role: providers.RoleSystem,
			Content: "You are a CRM assistant. The user's request was handled; " +
				"restate the outcome below as one short, friendly reply. " +
				"Do not invent details beyond the outcome text.",
		},
		{
			Role:    providers.RoleUser,
			Content: fmt.Sprintf("Request: %s\nOutcome: %s", userMessage, resultText),
		},
	}, providers.ChatOptions{Temperature: 0.3, MaxTokens: 256})
	if err != nil || summary == "" {
		if err != nil {
			r.logger.Warn("summary call failed, returning tool result text",
				slog.String("error", err.Error()))
		}
		return resultText
	}
	return summary
}

func lastUserMessage(messages []providers.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == providers.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func extractorCatalog() []intent.Tool {
	infos := tools.Catalog()
	out := make([]intent.Tool, 0, len(infos))
	for _, info := range infos {
		out = append(out, intent.Tool{Name: info.Name, Description: info.Description})
	}
	return out
}
