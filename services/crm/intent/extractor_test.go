// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/providers"
)

// scriptedChat implements providers.ChatClient with a fixed reply.
type scriptedChat struct {
	reply    string
	err      error
	lastMsgs []providers.Message
	lastOpts providers.ChatOptions
}

func (s *scriptedChat) Chat(_ context.Context, messages []providers.Message, opts providers.ChatOptions) (string, error) {
	s.lastMsgs = messages
	s.lastOpts = opts
	return s.reply, s.err
}

var testCatalog = []Tool{
	{Name: "create_account", Description: "Create an account"},
	{Name: "update_deal", Description: "Update a deal"},
	{Name: "create_interaction", Description: "Log an activity"},
}

func newTestExtractor(t *testing.T, chat providers.ChatClient) *Extractor {
	t.Helper()
	e, err := NewExtractor(chat, DefaultConfig(), WithClock(func() time.Time { return wednesday }))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestExtractToolIntent(t *testing.T) {
	chat := &scriptedChat{reply: `{"needsTool": true, "toolName": "create_account", "args": {"name": "Acme"}}`}
	e := newTestExtractor(t, chat)

	it, err := e.Extract(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "Add Acme as an account"},
	}, testCatalog)
	if err != nil {
		t.Fatal(err)
	}
	if !it.NeedsTool || it.ToolName != "create_account" {
		t.Fatalf("intent = %+v", it)
	}

	// The model call is deterministic and carries the catalog.
	if chat.lastOpts.Temperature != 0 {
		t.Errorf("temperature = %v, want 0", chat.lastOpts.Temperature)
	}
	if chat.lastMsgs[0].Role != providers.RoleSystem ||
		!strings.Contains(chat.lastMsgs[0].Content, "create_account") {
		t.Error("system prompt must list the tool catalog")
	}
}

func TestExtractChatFailure(t *testing.T) {
	e := newTestExtractor(t, &scriptedChat{err: errors.New("provider down")})

	_, err := e.Extract(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "hi"},
	}, testCatalog)
	if err == nil {
		t.Fatal("expected error when the model call fails")
	}
}

func TestExtractUnknownToolDegrades(t *testing.T) {
	chat := &scriptedChat{reply: `{"needsTool": true, "toolName": "launch_rocket", "args": {}}`}
	e := newTestExtractor(t, chat)

	it, err := e.Extract(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "Launch the rocket"},
	}, testCatalog)
	if err != nil {
		t.Fatal(err)
	}
	if it.NeedsTool {
		t.Fatal("unknown tool must degrade to conversational")
	}
	if it.Response == "" {
		t.Error("degraded intent must carry a reply")
	}
}

func TestExtractUpdateWithoutIDAsksForClarification(t *testing.T) {
	chat := &scriptedChat{reply: `{"needsTool": true, "toolName": "update_deal", "args": {"stage": "Won"}}`}
	e := newTestExtractor(t, chat)

	it, err := e.Extract(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "Mark the deal as won"},
	}, testCatalog)
	if err != nil {
		t.Fatal(err)
	}
	if it.NeedsTool {
		t.Fatal("update without id must not dispatch")
	}
	if !strings.Contains(it.Response, "Which record") {
		t.Errorf("response = %q, want a clarifying question", it.Response)
	}
}

func TestExtractResolvesInteractionDueDate(t *testing.T) {
	chat := &scriptedChat{reply: `{"needsTool": true, "toolName": "create_interaction", "args": {"type": "call", "summary": "Call Dana", "due_date": "tomorrow at 3pm"}}`}
	e := newTestExtractor(t, chat)

	it, err := e.Extract(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "Remind me to call Dana tomorrow at 3pm"},
	}, testCatalog)
	if err != nil {
		t.Fatal(err)
	}

	var args map[string]any
	if err := json.Unmarshal(it.Args, &args); err != nil {
		t.Fatal(err)
	}
	if args["due_date"] != "2026-03-05T15:00:00" {
		t.Errorf("due_date = %v", args["due_date"])
	}
}

func TestExtractKeepsRFC3339DueDate(t *testing.T) {
	chat := &scriptedChat{reply: `{"needsTool": true, "toolName": "create_interaction", "args": {"type": "note", "due_date": "2026-06-01T09:00:00Z"}}`}
	e := newTestExtractor(t, chat)

	it, err := e.Extract(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "note for june 1st"},
	}, testCatalog)
	if err != nil {
		t.Fatal(err)
	}

	var args map[string]any
	_ = json.Unmarshal(it.Args, &args)
	if args["due_date"] != "2026-06-01T09:00:00Z" {
		t.Errorf("due_date = %v, want the original RFC 3339 value", args["due_date"])
	}
}

func TestExtractDropsUnresolvableDueDate(t *testing.T) {
	chat := &scriptedChat{reply: `{"needsTool": true, "toolName": "create_interaction", "args": {"type": "note", "due_date": "after the offsite"}}`}
	e := newTestExtractor(t, chat)

	it, err := e.Extract(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "note for after the offsite"},
	}, testCatalog)
	if err != nil {
		t.Fatal(err)
	}

	var args map[string]any
	_ = json.Unmarshal(it.Args, &args)
	if _, present := args["due_date"]; present {
		t.Error("unresolvable due_date must be dropped")
	}
}

func TestExtractConversational(t *testing.T) {
	chat := &scriptedChat{reply: `{"needsTool": false, "response": "I can manage accounts, contacts, and deals."}`}
	e := newTestExtractor(t, chat)

	it, err := e.Extract(context.Background(), []providers.Message{
		{Role: providers.RoleUser, Content: "What can you do?"},
	}, testCatalog)
	if err != nil {
		t.Fatal(err)
	}
	if it.NeedsTool || it.Response == "" {
		t.Fatalf("intent = %+v", it)
	}
}
