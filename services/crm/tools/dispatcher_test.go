// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianCRM/services/crm/dedup"
	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/AleutianAI/AleutianCRM/services/crm/store/memstore"
)

func newTestDispatcher(t *testing.T, st store.RecordStore) *Dispatcher {
	t.Helper()
	det, err := dedup.NewDetector(st)
	if err != nil {
		t.Fatal(err)
	}
	res, err := NewPrefsTenantResolver(st)
	if err != nil {
		t.Fatal(err)
	}
	d, err := NewDispatcher(st, det, res)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func args(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestCreateAccount(t *testing.T) {
	st := memstore.New()
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolCreateAccount,
		args(t, map[string]any{"name": "Acme Corp", "industry": "Manufacturing"}),
		Caller{UserID: "u-1"})

	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text())
	}
	account, ok := res.StructuredContent["account"].(store.Record)
	if !ok {
		t.Fatalf("structuredContent = %+v", res.StructuredContent)
	}
	if account["name"] != "Acme Corp" || store.StringValue(account["id"]) == "" {
		t.Errorf("account = %+v", account)
	}
}

func TestCreateAccountMissingName(t *testing.T) {
	d := newTestDispatcher(t, memstore.New())

	res := d.Dispatch(context.Background(), ToolCreateAccount,
		args(t, map[string]any{"industry": "Retail"}), Caller{})

	if !res.IsError {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(res.Text(), "name") {
		t.Errorf("text = %q, want the missing field named", res.Text())
	}
}

func TestCreateContactBlockedByStrongDuplicate(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionContacts, store.Record{
		"id": "c-1", "first_name": "Dana", "last_name": "Reyes", "email": "dana@acme.test",
	})
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolCreateContact,
		args(t, map[string]any{"first_name": "Dana", "last_name": "Reyes", "email": "dana@acme.test"}),
		Caller{})

	if !res.IsError {
		t.Fatal("strong duplicate must block the create")
	}
	if !strings.Contains(res.Text(), "c-1") {
		t.Errorf("text = %q, want the existing record id", res.Text())
	}
	matches, ok := res.StructuredContent["duplicateMatches"].([]dedup.Match)
	if !ok || len(matches) != 1 || matches[0].RecordID != "c-1" {
		t.Fatalf("duplicateMatches = %+v", res.StructuredContent["duplicateMatches"])
	}

	// Nothing was inserted.
	recs, _ := st.Select(context.Background(), store.CollectionContacts, store.Query{})
	if len(recs) != 1 {
		t.Errorf("contacts = %d, want 1", len(recs))
	}
}

func TestCreateContactWeakDuplicateProceedsWithWarning(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionContacts, store.Record{
		"id": "c-1", "first_name": "Dana", "last_name": "Reyes", "account_id": "a-1",
	})
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolCreateContact,
		args(t, map[string]any{"first_name": "Dana", "last_name": "Reyes", "account_id": "a-1"}),
		Caller{})

	if res.IsError {
		t.Fatalf("weak duplicate must not block: %s", res.Text())
	}
	if !strings.Contains(res.Text(), "Possible duplicate detected") {
		t.Errorf("text = %q, want a duplicate warning prefix", res.Text())
	}

	recs, _ := st.Select(context.Background(), store.CollectionContacts, store.Query{})
	if len(recs) != 2 {
		t.Errorf("contacts = %d, want 2", len(recs))
	}
}

// raceStore makes every Insert lose a uniqueness race while reads still work.
type raceStore struct {
	*memstore.Store
}

func (r raceStore) Insert(context.Context, string, store.Record) (store.Record, error) {
	return nil, fmt.Errorf("contacts.email: %w", store.ErrUniqueViolation)
}

func TestCreateContactUniqueViolationReclassifiedAsDuplicate(t *testing.T) {
	inner := memstore.New()
	// The racing winner is already visible to reads.
	inner.Seed(store.CollectionContacts, store.Record{
		"id": "c-winner", "first_name": "Dana", "last_name": "Reyes", "email": "dana@acme.test",
	})
	d := newTestDispatcher(t, raceStore{inner})

	res := d.Dispatch(context.Background(), ToolCreateContact,
		args(t, map[string]any{"first_name": "Dana", "last_name": "Reyes", "email": "dana@other.test", "phone": "+1 555 010 2030"}),
		Caller{})

	if !res.IsError {
		t.Fatal("race-lost insert must surface as duplicate, not success")
	}
	if _, ok := res.StructuredContent["duplicateMatches"]; !ok {
		t.Errorf("structuredContent = %+v, want duplicateMatches", res.StructuredContent)
	}
	// Never a bare constraint error.
	if strings.Contains(res.Text(), "unique constraint") {
		t.Errorf("text = %q leaks the store error", res.Text())
	}
}

func TestListAccountsInjectsResolvedTenant(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionUserPrefs, store.Record{
		"id": "p-1", "user_id": "u-1", "current_team_id": "team-a",
	})
	st.Seed(store.CollectionAccounts,
		store.Record{"id": "a-1", "name": "Ours", "team_id": "team-a"},
		store.Record{"id": "a-2", "name": "Theirs", "team_id": "team-b"},
	)
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolListAccounts, nil, Caller{UserID: "u-1"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text())
	}
	accounts := res.StructuredContent["accounts"].([]store.Record)
	if len(accounts) != 1 || accounts[0]["id"] != "a-1" {
		t.Fatalf("accounts = %+v, want only team-a rows", accounts)
	}
}

func TestListAccountsCallerTeamShortCircuitsResolution(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionAccounts,
		store.Record{"id": "a-1", "team_id": "team-b", "name": "B"},
	)
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolListAccounts, nil,
		Caller{UserID: "u-1", TeamID: "team-b"})
	accounts := res.StructuredContent["accounts"].([]store.Record)
	if len(accounts) != 1 {
		t.Fatalf("accounts = %+v", accounts)
	}
}

func TestListAccountsUnscopedDegradesToUnscopedRows(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionAccounts,
		store.Record{"id": "a-1", "name": "Scoped", "team_id": "team-a"},
		store.Record{"id": "a-2", "name": "Global"},
	)
	d := newTestDispatcher(t, st)

	// No caller team, no preference record: the read proceeds, but only
	// rows that belong to no team are visible. Another team's rows never
	// leak through the degraded path.
	res := d.Dispatch(context.Background(), ToolListAccounts, nil, Caller{UserID: "u-unknown"})
	if res.IsError {
		t.Fatalf("unscoped list must still dispatch: %s", res.Text())
	}
	accounts := res.StructuredContent["accounts"].([]store.Record)
	if len(accounts) != 1 || accounts[0]["id"] != "a-2" {
		t.Fatalf("accounts = %+v, want only the globally-unscoped row", accounts)
	}
}

// brokenStore fails every Select with a distinctive message.
type brokenStore struct {
	*memstore.Store
}

func (b brokenStore) Select(context.Context, string, store.Query) ([]store.Record, error) {
	return nil, fmt.Errorf("badger: connection refused")
}

func TestListAccountsStoreErrorSurfacesMessage(t *testing.T) {
	d := newTestDispatcher(t, brokenStore{memstore.New()})

	res := d.Dispatch(context.Background(), ToolListAccounts, nil, Caller{TeamID: "team-a"})
	if !res.IsError {
		t.Fatal("store failure must be an error result")
	}
	if !strings.Contains(res.Text(), "connection refused") {
		t.Errorf("text = %q, want the store's message included", res.Text())
	}
}

func TestCreateDealDefaultsAndDuplicates(t *testing.T) {
	st := memstore.New()
	d := newTestDispatcher(t, st)
	ctx := context.Background()

	res := d.Dispatch(ctx, ToolCreateDeal,
		args(t, map[string]any{"name": "Acme Renewal", "account_id": "a-1", "amount": 5000}),
		Caller{})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text())
	}
	deal := res.StructuredContent["deal"].(store.Record)
	if deal["stage"] != "Lead" || deal["status"] != "open" {
		t.Errorf("deal defaults = stage %v status %v", deal["stage"], deal["status"])
	}

	// Same name and account again: merge-level duplicate, blocked.
	res = d.Dispatch(ctx, ToolCreateDeal,
		args(t, map[string]any{"name": "acme renewal", "account_id": "a-1"}),
		Caller{})
	if !res.IsError {
		t.Fatal("expected duplicate block")
	}
	if !strings.Contains(res.Text(), "Strong duplicate detected") {
		t.Errorf("text = %q", res.Text())
	}
}

func TestUpdateDeal(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionDeals, store.Record{"id": "d-1", "name": "Deal", "stage": "Lead"})
	d := newTestDispatcher(t, st)
	ctx := context.Background()

	t.Run("patches the named fields", func(t *testing.T) {
		res := d.Dispatch(ctx, ToolUpdateDeal,
			args(t, map[string]any{"id": "d-1", "stage": "Won", "amount": 1200}), Caller{})
		if res.IsError {
			t.Fatalf("unexpected error: %s", res.Text())
		}
		deal := res.StructuredContent["deal"].(store.Record)
		if deal["stage"] != "Won" {
			t.Errorf("stage = %v", deal["stage"])
		}
	})

	t.Run("empty patch is rejected", func(t *testing.T) {
		res := d.Dispatch(ctx, ToolUpdateDeal, args(t, map[string]any{"id": "d-1"}), Caller{})
		if !res.IsError {
			t.Fatal("expected error for empty patch")
		}
	})

	t.Run("unknown id is a user-facing not-found", func(t *testing.T) {
		res := d.Dispatch(ctx, ToolUpdateDeal,
			args(t, map[string]any{"id": "missing", "stage": "Won"}), Caller{})
		if !res.IsError || !strings.Contains(res.Text(), "missing") {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestCreateInteractionNormalizesType(t *testing.T) {
	st := memstore.New()
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolCreateInteraction,
		args(t, map[string]any{"type": "  Call ", "summary": "Call Dana", "due_date": "2026-03-05T15:00:00"}),
		Caller{})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text())
	}
	interaction := res.StructuredContent["interaction"].(store.Record)
	if interaction["type"] != "call" {
		t.Errorf("type = %v", interaction["type"])
	}
	if !strings.Contains(res.Text(), "due 2026-03-05T15:00:00") {
		t.Errorf("text = %q", res.Text())
	}
}

func TestCreateInteractionRejectsUnknownType(t *testing.T) {
	d := newTestDispatcher(t, memstore.New())
	res := d.Dispatch(context.Background(), ToolCreateInteraction,
		args(t, map[string]any{"type": "carrier pigeon"}), Caller{})
	if !res.IsError {
		t.Fatal("expected validation failure")
	}
}

func TestAttachTag(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionTags, store.Record{"id": "t-1", "tag_name": "vip", "usage_count": 2})
	st.Seed(store.CollectionAccounts, store.Record{"id": "a-1", "name": "Acme"})
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolAttachTag,
		args(t, map[string]any{"tag_id": "t-1", "entity_type": "account", "entity_id": "a-1"}),
		Caller{})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text())
	}

	tag := res.StructuredContent["tag"].(store.Record)
	if tag["usage_count"] != 3 {
		t.Errorf("usage_count = %v, want 3", tag["usage_count"])
	}

	accounts, _ := st.Select(context.Background(), store.CollectionAccounts, store.Query{})
	tagIDs, _ := accounts[0]["tag_ids"].([]string)
	if len(tagIDs) != 1 || tagIDs[0] != "t-1" {
		t.Errorf("tag_ids = %v", accounts[0]["tag_ids"])
	}
}

func TestMergeTags(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionTags,
		store.Record{"id": "t-src", "tag_name": "VIP", "usage_count": 3},
		store.Record{"id": "t-dst", "tag_name": "vip", "usage_count": 5},
	)
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolMergeTags,
		args(t, map[string]any{"source_tag_id": "t-src", "target_tag_id": "t-dst"}),
		Caller{})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text())
	}

	tag := res.StructuredContent["tag"].(store.Record)
	if tag["usage_count"] != 8 {
		t.Errorf("usage_count = %v, want 8", tag["usage_count"])
	}

	tags, _ := st.Select(context.Background(), store.CollectionTags, store.Query{})
	if len(tags) != 1 || tags[0]["id"] != "t-dst" {
		t.Errorf("tags = %+v, want only the target", tags)
	}
}

func TestMergeTagsRejectsSelfMerge(t *testing.T) {
	d := newTestDispatcher(t, memstore.New())
	res := d.Dispatch(context.Background(), ToolMergeTags,
		args(t, map[string]any{"source_tag_id": "t-1", "target_tag_id": "t-1"}), Caller{})
	if !res.IsError {
		t.Fatal("merging a tag into itself must fail validation")
	}
}

func TestSearchRecordsMatchesEitherNamePart(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionContacts,
		store.Record{"id": "c-1", "first_name": "Dana", "last_name": "Reyes"},
		store.Record{"id": "c-2", "first_name": "Sam", "last_name": "Danaher"},
		store.Record{"id": "c-3", "first_name": "Pat", "last_name": "Ortiz"},
	)
	d := newTestDispatcher(t, st)

	res := d.Dispatch(context.Background(), ToolSearchRecords,
		args(t, map[string]any{"collection": "contacts", "query": "dana"}), Caller{})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text())
	}
	records := res.StructuredContent["records"].([]store.Record)
	if len(records) != 2 {
		t.Fatalf("records = %+v, want c-1 and c-2", records)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, memstore.New())
	res := d.Dispatch(context.Background(), "teleport_contact", nil, Caller{})
	if !res.IsError {
		t.Fatal("unknown tool must be an error result")
	}
}

func TestDeleteAccount(t *testing.T) {
	st := memstore.New()
	st.Seed(store.CollectionAccounts, store.Record{"id": "a-1", "name": "Acme"})
	d := newTestDispatcher(t, st)
	ctx := context.Background()

	res := d.Dispatch(ctx, ToolDeleteAccount, args(t, map[string]any{"id": "a-1"}), Caller{})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Text())
	}

	res = d.Dispatch(ctx, ToolDeleteAccount, args(t, map[string]any{"id": "a-1"}), Caller{})
	if !res.IsError {
		t.Fatal("second delete must report not found")
	}
}
