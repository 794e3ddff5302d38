// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers defines the provider-agnostic ChatClient used by the
// Intent Extractor, the Aggregation Engine's planner, and the chat summary
// step. All three treat the model call as a parsing/planning dependency, so
// the interface is deliberately minimal: messages in, text out. Tests
// substitute scripted fakes; production wires a langchaingo-backed adapter.
//
// Thread Safety:
//
//	All implementations must be safe for concurrent use.
package providers

import "context"

// Message is a single turn in a conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// ChatOptions holds provider-agnostic options for one chat request.
type ChatOptions struct {
	// Temperature controls randomness (0.0-1.0). The zero value is an
	// explicit "most deterministic" setting, which is what every planning
	// call in this codebase wants.
	Temperature float64

	// MaxTokens limits the response length. 0 uses the provider default.
	MaxTokens int

	// Model overrides the client's default model for this request.
	// Empty uses the client default.
	Model string
}

// ChatClient sends a conversation to a text-generation model and returns
// the assistant's response text.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
