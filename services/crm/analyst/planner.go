// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/intent"
	"github.com/AleutianAI/AleutianCRM/services/crm/providers"
)

// Planner compiles a free-text question into a QueryPlan.
type Planner interface {
	Plan(ctx context.Context, question string, schema Schema) (QueryPlan, error)
}

// LLMPlanner plans with a text-generation model. The model sees only the
// schema catalog and the question; plans are recovered from its output with
// the same tolerance as intent extraction, then validated against the
// catalog before the engine runs them.
//
// Thread Safety: Safe for concurrent use.
type LLMPlanner struct {
	chat    providers.ChatClient
	model   string
	timeout time.Duration
}

// NewLLMPlanner creates a planner over the given chat client. Model may be
// empty to use the provider default.
func NewLLMPlanner(chat providers.ChatClient, model string) (*LLMPlanner, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat client must not be nil")
	}
	return &LLMPlanner{chat: chat, model: model, timeout: 15 * time.Second}, nil
}

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, question string, schema Schema) (QueryPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.chat.Chat(ctx, []providers.Message{
		{Role: providers.RoleSystem, Content: buildPlannerPrompt(schema)},
		{Role: providers.RoleUser, Content: question},
	}, providers.ChatOptions{
		Temperature: 0,
		MaxTokens:   512,
		Model:       p.model,
	})
	if err != nil {
		return QueryPlan{}, fmt.Errorf("query planning chat failed: %w", err)
	}

	text, ok := intent.RecoverJSONObject(raw)
	if !ok {
		return QueryPlan{}, fmt.Errorf("planner returned no JSON object")
	}
	var plan QueryPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return QueryPlan{}, fmt.Errorf("planner returned malformed plan: %w", err)
	}

	plan.normalize()
	if err := plan.validate(schema); err != nil {
		return QueryPlan{}, err
	}
	return plan, nil
}

func buildPlannerPrompt(schema Schema) string {
	return `You compile CRM analytics questions into a JSON query plan.
Respond with ONLY a JSON object, no explanation, no markdown:

  {
    "table": "<table>",
    "aggregation": "none|count|sum|avg",
    "groupBy": "<column or omit>",
    "valueColumn": "<numeric column for sum/avg>",
    "filters": [{"column": "...", "op": "eq|neq|gt|gte|lt|lte|ilike", "value": ...}],
    "dateFilter": {"column": "<timestamp column>", "period": "today|this week|this month|last month|this quarter|next 30 days"},
    "sort": {"column": "...", "descending": true},
    "limit": 0,
    "chartType": "bar|line|pie|number|table",
    "title": "<short chart title>"
  }

Schema:
` + schema.Prompt() + `
Rules:
- Pick exactly one table from the schema.
- "by X" means groupBy X. Revenue and value questions sum the amount column.
- "how many" is a count. A single-number answer uses chartType "number".
- Distribution or share questions use "pie"; time series use "line";
  grouped comparisons use "bar"; raw listings use "table".
- Use dateFilter with the period vocabulary for relative time phrases; never
  invent absolute dates.
- Omit fields you do not need. Never reference columns outside the schema.`
}
