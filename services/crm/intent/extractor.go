// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies whether the last user message in a conversation
// requires a CRM tool call and, when it does, extracts the tool name and
// arguments. A text-generation model does the classification; everything
// around the model call — prompt construction, JSON recovery, due-date
// post-processing — is deterministic and tested without a model.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/providers"
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
	extractionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "intent",
		Name:      "extraction_total",
		Help:      "Intent extractions by outcome: tool, conversational, recovered, error",
	}, []string{"outcome"})

	extractionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crm",
		Subsystem: "intent",
		Name:      "extraction_latency_seconds",
		Help:      "Latency of intent extraction model calls",
		Buckets:   []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})
)

var tracer = otel.Tracer("aleutiancrm.intent")

// =============================================================================
// Types
// =============================================================================

// Intent is the extractor's verdict on the last user message.
type Intent struct {
	// NeedsTool is true when the message maps to a CRM operation.
	NeedsTool bool `json:"needsTool"`

	// Response is the conversational reply when NeedsTool is false —
	// either an answer or a clarifying question.
	Response string `json:"response,omitempty"`

	// ToolName names the operation when NeedsTool is true.
	ToolName string `json:"toolName,omitempty"`

	// Args carries the extracted arguments, decoded by the dispatcher
	// against the tool's typed argument struct.
	Args json.RawMessage `json:"args,omitempty"`
}

// Tool is one catalog entry shown to the model.
type Tool struct {
	Name        string
	Description string
}

// Config tunes the extraction model call.
type Config struct {
	// Model overrides the provider default. Empty uses the default.
	Model string

	// Timeout bounds a single extraction call. Default 15s.
	Timeout time.Duration

	// MaxTokens limits the response. Default 1024.
	MaxTokens int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   15 * time.Second,
		MaxTokens: 1024,
	}
}

// Extractor turns a conversation into an Intent.
//
// Thread Safety: Safe for concurrent use.
type Extractor struct {
	chat   providers.ChatClient
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithClock injects the time source used for relative-date resolution.
// Tests pin it; production uses time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor creates an Extractor over the given chat client.
func NewExtractor(chat providers.ChatClient, cfg Config, opts ...Option) (*Extractor, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat client must not be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	e := &Extractor{
		chat:   chat,
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract classifies the conversation's last user message.
//
// Description:
//
//	Sends the conversation plus the extraction instruction to the model,
//	recovers the Intent from whatever the model returned, then applies the
//	deterministic post-passes: a tool call naming a tool outside the
//	catalog degrades to a conversational reply, an update_* call without a
//	record id degrades to a clarifying question, and a create_interaction
//	due_date still in relative-date language is resolved against the clock.
//
// Outputs:
//   - Intent: Always usable; malformed model output degrades to a
//     conversational Intent.
//   - error: Non-nil only when the model call itself fails.
func (e *Extractor) Extract(ctx context.Context, conversation []providers.Message, catalog []Tool) (Intent, error) {
	ctx, span := tracer.Start(ctx, "Extractor.Extract")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	now := e.now()
	messages := make([]providers.Message, 0, len(conversation)+1)
	messages = append(messages, providers.Message{
		Role:    providers.RoleSystem,
		Content: buildSystemPrompt(catalog, now),
	})
	messages = append(messages, conversation...)

	start := time.Now()
	raw, err := e.chat.Chat(ctx, messages, providers.ChatOptions{
		Temperature: 0,
		MaxTokens:   e.config.MaxTokens,
		Model:       e.config.Model,
	})
	extractionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		extractionTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat failed")
		return Intent{}, fmt.Errorf("intent extraction chat failed: %w", err)
	}

	it := RecoverIntent(raw)
	recovered := !strings.HasPrefix(strings.TrimSpace(raw), "{")

	it = e.postProcess(it, catalog, now)

	outcome := "conversational"
	if it.NeedsTool {
		outcome = "tool"
	} else if recovered {
		outcome = "recovered"
	}
	extractionTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(
		attribute.Bool("needs_tool", it.NeedsTool),
		attribute.String("tool", it.ToolName),
	)

	return it, nil
}

// postProcess applies the deterministic guard rails on top of whatever the
// model produced.
func (e *Extractor) postProcess(it Intent, catalog []Tool, now time.Time) Intent {
	if !it.NeedsTool {
		return it
	}

	if !inCatalog(it.ToolName, catalog) {
		e.logger.Warn("extractor produced unknown tool, degrading to conversational",
			slog.String("tool", it.ToolName))
		return Intent{
			NeedsTool: false,
			Response:  "I'm not sure how to do that yet. Could you rephrase the request?",
		}
	}

	if strings.HasPrefix(it.ToolName, "update_") && !argsHaveID(it.Args) {
		return Intent{
			NeedsTool: false,
			Response:  "Which record do you mean? Please tell me its name or id so I can update the right one.",
		}
	}

	if it.ToolName == "create_interaction" {
		it.Args = resolveInteractionDueDate(it.Args, now)
	}

	return it
}

func inCatalog(name string, catalog []Tool) bool {
	for _, t := range catalog {
		if t.Name == name {
			return true
		}
	}
	return false
}

func argsHaveID(args json.RawMessage) bool {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(args, &probe); err != nil {
		return false
	}
	return probe.ID != ""
}

// resolveInteractionDueDate replaces a relative-language due_date with an
// absolute ISO-8601 local timestamp. A due_date already in RFC 3339 passes
// through; a phrase outside the vocabulary is dropped (expected behavior
// for the fixed vocabulary, not a bug).
func resolveInteractionDueDate(args json.RawMessage, now time.Time) json.RawMessage {
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return args
	}
	raw, ok := m["due_date"].(string)
	if !ok || raw == "" {
		return args
	}
	if _, err := time.Parse(time.RFC3339, raw); err == nil {
		return args
	}
	if resolved, ok := ResolveDueDate(raw, now); ok {
		m["due_date"] = resolved.Format("2006-01-02T15:04:05")
	} else {
		delete(m, "due_date")
	}
	out, err := json.Marshal(m)
	if err != nil {
		return args
	}
	return out
}

// buildSystemPrompt constructs the extraction instruction: the tool
// catalog, the strict-JSON rule, the domain rules, and worked examples.
func buildSystemPrompt(catalog []Tool, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(`You are the intent extractor for a CRM assistant.

Decide whether the user's LAST message requires a CRM operation (a "tool
call"). Respond with ONLY a JSON object, no explanation, no markdown:

  {"needsTool": true, "toolName": "<tool>", "args": { ... }}
  {"needsTool": false, "response": "<conversational reply>"}

Available tools:
`)
	for _, t := range catalog {
		fmt.Fprintf(&sb, "  - %s: %s\n", t.Name, t.Description)
	}

	fmt.Fprintf(&sb, `
The current local time is %s.

Extraction rules:
- create_account requires a name. If the user did not give one, do NOT
  invent a tool call: return needsTool=false with a clarifying question.
- Any task, call, meeting, note, or reminder phrasing maps to
  create_interaction. Choose "type" from the wording: call->call,
  meeting/schedule->meeting, reminder/note->note, email->email.
- Resolve relative dates ("tomorrow", "next Monday", "in 3 days") into an
  absolute ISO-8601 local timestamp in "due_date". A day without a time of
  day means 09:00.
- Every update_* call must carry the record "id" in args. If the
  conversation does not identify which record, do NOT emit the tool call:
  ask the user to disambiguate, or suggest a search first.
- Never invent ids, emails, or amounts the user did not state.

Examples:
  User: "Add Acme Corp as a new account"
  -> {"needsTool": true, "toolName": "create_account", "args": {"name": "Acme Corp"}}

  User: "Create an account"
  -> {"needsTool": false, "response": "Sure — what is the account's name?"}

  User: "Remind me to call Dana tomorrow"
  -> {"needsTool": true, "toolName": "create_interaction", "args": {"type": "call", "summary": "Call Dana", "due_date": "%s"}}

  User: "What can you do?"
  -> {"needsTool": false, "response": "I can manage your accounts, contacts, deals, and tasks. Try asking me to create a contact or list open deals."}
`,
		now.Format("2006-01-02T15:04:05 (Monday)"),
		atTime(now.AddDate(0, 0, 1), defaultHour, 0).Format("2006-01-02T15:04:05"),
	)

	return sb.String()
}
