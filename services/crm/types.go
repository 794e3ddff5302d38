// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crm

import (
	"encoding/json"

	"github.com/AleutianAI/AleutianCRM/services/crm/analyst"
)

// ErrorResponse is the uniform error body for every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ChatMessage is one conversation turn in a chat request.
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content" binding:"required"`
}

// ChatRequest is the body of POST /v1/crm/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" binding:"required,min=1,dive"`
}

// AnalyticsRequest is the body of POST /v1/crm/analytics. Either a free-text
// question (planned by the model) or a prebuilt plan (executed directly).
type AnalyticsRequest struct {
	Question string             `json:"question,omitempty"`
	Plan     *analyst.QueryPlan `json:"plan,omitempty"`
}

// ToolCallRequest is the body of POST /v1/crm/tools/call: a direct tool
// invocation bypassing intent extraction.
type ToolCallRequest struct {
	Name string          `json:"name" binding:"required"`
	Args json.RawMessage `json:"args,omitempty"`
}
