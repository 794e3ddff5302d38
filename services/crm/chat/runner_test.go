// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianCRM/services/crm/dedup"
	"github.com/AleutianAI/AleutianCRM/services/crm/intent"
	"github.com/AleutianAI/AleutianCRM/services/crm/providers"
	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/AleutianAI/AleutianCRM/services/crm/store/memstore"
	"github.com/AleutianAI/AleutianCRM/services/crm/tools"
)

// scriptedChat replies from a queue, one reply per call.
type scriptedChat struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedChat) Chat(context.Context, []providers.Message, providers.ChatOptions) (string, error) {
	i := s.calls
	s.calls++
	var reply string
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return reply, err
}

func newTestRunner(t *testing.T, st *memstore.Store, extractorChat, summaryChat providers.ChatClient) *Runner {
	t.Helper()
	ext, err := intent.NewExtractor(extractorChat, intent.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	det, err := dedup.NewDetector(st)
	if err != nil {
		t.Fatal(err)
	}
	resolver, err := tools.NewPrefsTenantResolver(st)
	if err != nil {
		t.Fatal(err)
	}
	disp, err := tools.NewDispatcher(st, det, resolver)
	if err != nil {
		t.Fatal(err)
	}
	runner, err := NewRunner(ext, disp, summaryChat)
	if err != nil {
		t.Fatal(err)
	}
	return runner
}

func TestRunConversationalTurn(t *testing.T) {
	extractorChat := &scriptedChat{replies: []string{
		`{"needsTool": false, "response": "I can manage your accounts and deals."}`,
	}}
	summaryChat := &scriptedChat{}
	runner := newTestRunner(t, memstore.New(), extractorChat, summaryChat)

	resp, err := runner.Run(context.Background(), Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "What can you do?"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ToolName != "" || resp.Text != "I can manage your accounts and deals." {
		t.Fatalf("resp = %+v", resp)
	}
	if summaryChat.calls != 0 {
		t.Error("conversational turns must not call the summarizer")
	}
}

func TestRunToolTurnWithSummary(t *testing.T) {
	extractorChat := &scriptedChat{replies: []string{
		`{"needsTool": true, "toolName": "create_account", "args": {"name": "Acme Corp"}}`,
	}}
	summaryChat := &scriptedChat{replies: []string{"Done! Acme Corp is now in your CRM."}}
	st := memstore.New()
	runner := newTestRunner(t, st, extractorChat, summaryChat)

	resp, err := runner.Run(context.Background(), Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "Add Acme Corp as an account"}},
		Caller:   tools.Caller{UserID: "u-1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ToolName != "create_account" {
		t.Errorf("toolName = %q", resp.ToolName)
	}
	if resp.Text != "Done! Acme Corp is now in your CRM." {
		t.Errorf("text = %q, want the summary", resp.Text)
	}
	if resp.IsError {
		t.Error("successful tool turn must not be an error")
	}

	recs, _ := st.Select(context.Background(), store.CollectionAccounts, store.Query{})
	if len(recs) != 1 {
		t.Errorf("accounts = %d, want 1", len(recs))
	}
}

func TestRunSummaryFailureDegradesToToolText(t *testing.T) {
	extractorChat := &scriptedChat{replies: []string{
		`{"needsTool": true, "toolName": "create_account", "args": {"name": "Acme Corp"}}`,
	}}
	summaryChat := &scriptedChat{errs: []error{errors.New("model down")}}
	runner := newTestRunner(t, memstore.New(), extractorChat, summaryChat)

	resp, err := runner.Run(context.Background(), Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "Add Acme Corp as an account"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Text, "Created account") {
		t.Errorf("text = %q, want the dispatcher's own text", resp.Text)
	}
}

func TestRunToolErrorSkipsSummary(t *testing.T) {
	// Missing required name: the dispatcher rejects, the summarizer never runs.
	extractorChat := &scriptedChat{replies: []string{
		`{"needsTool": true, "toolName": "create_account", "args": {}}`,
	}}
	summaryChat := &scriptedChat{}
	runner := newTestRunner(t, memstore.New(), extractorChat, summaryChat)

	resp, err := runner.Run(context.Background(), Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "Create an account"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsError {
		t.Fatal("expected a tool-level error response")
	}
	if summaryChat.calls != 0 {
		t.Error("failed tool turns must return the error text directly")
	}
}

func TestRunAttachesChartForChartableResults(t *testing.T) {
	extractorChat := &scriptedChat{replies: []string{
		`{"needsTool": true, "toolName": "list_deals", "args": {}}`,
	}}
	summaryChat := &scriptedChat{replies: []string{"Here's your pipeline."}}
	st := memstore.New()
	st.Seed(store.CollectionDeals,
		store.Record{"id": "d-1", "stage": "Discovery", "amount": float64(100)},
		store.Record{"id": "d-2", "stage": "Proposal", "amount": float64(500)},
	)
	runner := newTestRunner(t, st, extractorChat, summaryChat)

	resp, err := runner.Run(context.Background(), Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "Show me revenue by stage"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ChartData == nil {
		t.Fatal("expected chart data")
	}
	if resp.ChartData.Type != "bar" || len(resp.ChartData.Data) != 2 {
		t.Errorf("chart = %+v", resp.ChartData)
	}
}

func TestRunRejectsEmptyConversation(t *testing.T) {
	runner := newTestRunner(t, memstore.New(), &scriptedChat{}, &scriptedChat{})
	if _, err := runner.Run(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty conversation")
	}
}

func TestRunExtractionFailurePropagates(t *testing.T) {
	extractorChat := &scriptedChat{errs: []error{errors.New("provider down")}}
	runner := newTestRunner(t, memstore.New(), extractorChat, &scriptedChat{})

	if _, err := runner.Run(context.Background(), Request{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatal("expected extraction error to propagate")
	}
}
