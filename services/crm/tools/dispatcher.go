// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools dispatches named CRM operations. It is the only layer that
// turns an extracted intent into Record Store writes: arguments are decoded
// into typed structs and validated, the caller's tenant is resolved and
// injected, and contact/deal creates consult the duplicate detector before
// touching the store.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/dedup"
	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "tools",
		Name:      "dispatch_total",
		Help:      "Tool dispatches by tool and outcome: ok, invalid_args, duplicate, error",
	}, []string{"tool", "outcome"})

	dispatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crm",
		Subsystem: "tools",
		Name:      "dispatch_latency_seconds",
		Help:      "Latency of tool dispatches",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"tool"})

	tenantUnscopedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "tools",
		Name:      "tenant_unscoped_total",
		Help:      "Tenant-required tools dispatched without a resolved tenant",
	}, []string{"tool"})
)

var toolsTracer = otel.Tracer("aleutiancrm.tools")

// defaultListLimit bounds list_* reads when the caller gave no limit.
const defaultListLimit = 50

// Dispatcher routes tool calls to the Record Store.
//
// Thread Safety: Safe for concurrent use.
type Dispatcher struct {
	store    store.RecordStore
	detector *dedup.Detector
	resolver TenantResolver
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. The detector and resolver are
// required: creates without duplicate protection and tenant injection are
// exactly the bugs this layer exists to prevent.
func NewDispatcher(st store.RecordStore, det *dedup.Detector, res TenantResolver) (*Dispatcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if det == nil {
		return nil, fmt.Errorf("detector must not be nil")
	}
	if res == nil {
		return nil, fmt.Errorf("tenant resolver must not be nil")
	}
	return &Dispatcher{
		store:    st,
		detector: det,
		resolver: res,
		logger:   slog.Default(),
	}, nil
}

// Dispatch executes one named tool call on behalf of the caller.
//
// Description:
//
//	Decodes and validates the raw arguments for the named tool, resolves
//	and injects the caller's tenant on tenant-scoped operations, and runs
//	the operation. Every outcome — including validation failures and
//	blocked duplicate creates — is a Result, never a Go error: the chat
//	layer renders Results, it does not handle errors.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, rawArgs json.RawMessage, caller Caller) Result {
	ctx, span := toolsTracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("tool", name))

	start := time.Now()
	defer func() {
		dispatchLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	res, outcome := d.dispatch(ctx, name, rawArgs, caller)
	dispatchTotal.WithLabelValues(name, outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, rawArgs json.RawMessage, caller Caller) (Result, string) {
	tenant := d.resolveTenant(ctx, name, caller)

	switch name {
	case ToolCreateAccount:
		return d.createAccount(ctx, rawArgs, tenant)
	case ToolUpdateAccount:
		return d.updateAccount(ctx, rawArgs)
	case ToolListAccounts:
		return d.listAccounts(ctx, rawArgs, tenant)
	case ToolDeleteAccount:
		return d.deleteRecord(ctx, rawArgs, store.CollectionAccounts, "account")

	case ToolCreateContact:
		return d.createContact(ctx, rawArgs, tenant)
	case ToolUpdateContact:
		return d.updateContact(ctx, rawArgs)
	case ToolListContacts:
		return d.listContacts(ctx, rawArgs, tenant)
	case ToolDeleteContact:
		return d.deleteRecord(ctx, rawArgs, store.CollectionContacts, "contact")

	case ToolCreateDeal:
		return d.createDeal(ctx, rawArgs, tenant)
	case ToolUpdateDeal:
		return d.updateDeal(ctx, rawArgs)
	case ToolListDeals:
		return d.listDeals(ctx, rawArgs, tenant)
	case ToolDeleteDeal:
		return d.deleteRecord(ctx, rawArgs, store.CollectionDeals, "deal")

	case ToolCreateInteraction:
		return d.createInteraction(ctx, rawArgs, tenant)
	case ToolUpdateInteraction:
		return d.updateInteraction(ctx, rawArgs)
	case ToolListInteractions:
		return d.listInteractions(ctx, rawArgs, tenant)
	case ToolDeleteInteraction:
		return d.deleteRecord(ctx, rawArgs, store.CollectionInteractions, "interaction")

	case ToolCreateTag:
		return d.createTag(ctx, rawArgs, tenant)
	case ToolListTags:
		return d.listTags(ctx, rawArgs, tenant)
	case ToolAttachTag:
		return d.attachTag(ctx, rawArgs)
	case ToolMergeTags:
		return d.mergeTags(ctx, rawArgs)

	case ToolSearchRecords:
		return d.searchRecords(ctx, rawArgs, tenant)

	default:
		return ErrorResult(fmt.Sprintf("Unknown tool %q.", name), nil), "error"
	}
}

// =============================================================================
// Tenant Injection
// =============================================================================

// resolveTenant determines the tenant for this dispatch. A caller-supplied
// team id (token claims) wins; otherwise the resolver reads the user's
// preference. Resolution failure and missing preference both yield Unscoped;
// for tenant-required tools that degradation is counted and logged, and the
// dispatch proceeds against globally-unscoped rows only.
func (d *Dispatcher) resolveTenant(ctx context.Context, name string, caller Caller) TenantResolution {
	if !IsTenantScoped(name) {
		return Unscoped()
	}
	if caller.TeamID != "" {
		return Scoped(caller.TeamID)
	}

	tenant, err := d.resolver.ResolveTenant(ctx, caller.UserID)
	if err != nil {
		d.logger.Warn("tenant resolution failed, dispatching unscoped",
			slog.String("tool", name),
			slog.String("user_id", caller.UserID),
			slog.String("error", err.Error()))
		tenant = Unscoped()
	}
	if _, ok := tenant.TeamID(); !ok && IsTenantRequired(name) {
		tenantUnscopedTotal.WithLabelValues(name).Inc()
		d.logger.Warn("tenant-required tool dispatched unscoped",
			slog.String("tool", name),
			slog.String("user_id", caller.UserID))
	}
	return tenant
}

// injectTenant fills the args' team_id from the resolution unless the model
// already extracted one. Extracted ids are kept: the user may be acting on a
// team they named explicitly.
func injectTenant(args tenantCarrier, tenant TenantResolution) {
	if args.teamID() != "" {
		return
	}
	if teamID, ok := tenant.TeamID(); ok {
		args.setTeamID(teamID)
	}
}

// =============================================================================
// Accounts
// =============================================================================

func (d *Dispatcher) createAccount(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[CreateAccountArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	rec, err := d.store.Insert(ctx, store.CollectionAccounts, args.record())
	if err != nil {
		return storeFailure("create account", err)
	}
	return TextResult(
		fmt.Sprintf("Created account %q (id %s).", args.Name, store.StringValue(rec["id"])),
		map[string]any{"account": rec},
	), "ok"
}

func (d *Dispatcher) updateAccount(ctx context.Context, raw json.RawMessage) (Result, string) {
	args, err := decode[UpdateAccountArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	return d.applyPatch(ctx, store.CollectionAccounts, "account", args.ID, args.patch())
}

func (d *Dispatcher) listAccounts(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[ListAccountsArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	q := store.Query{Limit: listLimit(args.Limit)}
	addEq(&q, "industry", args.Industry)
	addEq(&q, "assigned_to", args.AssignedTo)
	scopeTenant(&q, args.TeamID)

	recs, err := d.store.Select(ctx, store.CollectionAccounts, q)
	if err != nil {
		return storeFailure("list accounts", err)
	}
	return TextResult(
		fmt.Sprintf("Found %d account(s).", len(recs)),
		map[string]any{"accounts": recs},
	), "ok"
}

// =============================================================================
// Contacts
// =============================================================================

func (d *Dispatcher) createContact(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[CreateContactArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	det := d.detector.DetectContact(ctx, dedup.ContactCandidate{
		FirstName: args.FirstName,
		LastName:  args.LastName,
		Email:     args.Email,
		Phone:     args.Phone,
		AccountID: args.AccountID,
		TeamID:    args.TeamID,
	})
	if det.SuggestedAction == dedup.ActionMerge {
		return duplicateBlocked(det), "duplicate"
	}

	rec, err := d.store.Insert(ctx, store.CollectionContacts, args.record())
	if errors.Is(err, store.ErrUniqueViolation) {
		// A concurrent create won the race between detection and insert.
		// Re-detect so the caller gets the existing record, not a bare
		// constraint error.
		det = d.detector.DetectContact(ctx, dedup.ContactCandidate{
			FirstName: args.FirstName,
			LastName:  args.LastName,
			Email:     args.Email,
			Phone:     args.Phone,
			AccountID: args.AccountID,
			TeamID:    args.TeamID,
		})
		return duplicateBlocked(det), "duplicate"
	}
	if err != nil {
		return storeFailure("create contact", err)
	}

	text := fmt.Sprintf("Created contact %s %s (id %s).",
		args.FirstName, args.LastName, store.StringValue(rec["id"]))
	if det.SuggestedAction == dedup.ActionUpdate {
		text = det.Message + " " + text
	}
	return TextResult(text, map[string]any{"contact": rec}), "ok"
}

func (d *Dispatcher) updateContact(ctx context.Context, raw json.RawMessage) (Result, string) {
	args, err := decode[UpdateContactArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	return d.applyPatch(ctx, store.CollectionContacts, "contact", args.ID, args.patch())
}

func (d *Dispatcher) listContacts(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[ListContactsArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	q := store.Query{Limit: listLimit(args.Limit)}
	addEq(&q, "account_id", args.AccountID)
	addEq(&q, "assigned_to", args.AssignedTo)
	scopeTenant(&q, args.TeamID)

	recs, err := d.store.Select(ctx, store.CollectionContacts, q)
	if err != nil {
		return storeFailure("list contacts", err)
	}
	return TextResult(
		fmt.Sprintf("Found %d contact(s).", len(recs)),
		map[string]any{"contacts": recs},
	), "ok"
}

// =============================================================================
// Deals
// =============================================================================

func (d *Dispatcher) createDeal(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[CreateDealArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	det := d.detector.DetectDeal(ctx, dedup.DealCandidate{
		Name:      args.Name,
		AccountID: args.AccountID,
		Stage:     args.Stage,
		TeamID:    args.TeamID,
	})
	if det.SuggestedAction == dedup.ActionMerge {
		return duplicateBlocked(det), "duplicate"
	}

	rec, err := d.store.Insert(ctx, store.CollectionDeals, args.record())
	if errors.Is(err, store.ErrUniqueViolation) {
		det = d.detector.DetectDeal(ctx, dedup.DealCandidate{
			Name:      args.Name,
			AccountID: args.AccountID,
			Stage:     args.Stage,
			TeamID:    args.TeamID,
		})
		return duplicateBlocked(det), "duplicate"
	}
	if err != nil {
		return storeFailure("create deal", err)
	}

	text := fmt.Sprintf("Created deal %q in stage %s (id %s).",
		args.Name, args.Stage, store.StringValue(rec["id"]))
	if det.SuggestedAction == dedup.ActionUpdate {
		text = det.Message + " " + text
	}
	return TextResult(text, map[string]any{"deal": rec}), "ok"
}

func (d *Dispatcher) updateDeal(ctx context.Context, raw json.RawMessage) (Result, string) {
	args, err := decode[UpdateDealArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	return d.applyPatch(ctx, store.CollectionDeals, "deal", args.ID, args.patch())
}

func (d *Dispatcher) listDeals(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[ListDealsArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	q := store.Query{Limit: listLimit(args.Limit)}
	addEq(&q, "stage", args.Stage)
	addEq(&q, "status", args.Status)
	addEq(&q, "account_id", args.AccountID)
	scopeTenant(&q, args.TeamID)

	recs, err := d.store.Select(ctx, store.CollectionDeals, q)
	if err != nil {
		return storeFailure("list deals", err)
	}
	return TextResult(
		fmt.Sprintf("Found %d deal(s).", len(recs)),
		map[string]any{"deals": recs},
	), "ok"
}

// =============================================================================
// Interactions
// =============================================================================

func (d *Dispatcher) createInteraction(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[CreateInteractionArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	rec, err := d.store.Insert(ctx, store.CollectionInteractions, args.record())
	if err != nil {
		return storeFailure("create interaction", err)
	}

	text := fmt.Sprintf("Logged %s (id %s).", args.Type, store.StringValue(rec["id"]))
	if args.DueDate != "" {
		text = fmt.Sprintf("Logged %s due %s (id %s).",
			args.Type, args.DueDate, store.StringValue(rec["id"]))
	}
	return TextResult(text, map[string]any{"interaction": rec}), "ok"
}

func (d *Dispatcher) updateInteraction(ctx context.Context, raw json.RawMessage) (Result, string) {
	args, err := decode[UpdateInteractionArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	return d.applyPatch(ctx, store.CollectionInteractions, "interaction", args.ID, args.patch())
}

func (d *Dispatcher) listInteractions(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[ListInteractionsArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	q := store.Query{
		Limit: listLimit(args.Limit),
		Sort:  &store.Sort{Column: "due_date", Descending: false},
	}
	addEq(&q, "type", args.Type)
	addEq(&q, "contact_id", args.ContactID)
	addEq(&q, "deal_id", args.DealID)
	scopeTenant(&q, args.TeamID)

	recs, err := d.store.Select(ctx, store.CollectionInteractions, q)
	if err != nil {
		return storeFailure("list interactions", err)
	}
	return TextResult(
		fmt.Sprintf("Found %d interaction(s).", len(recs)),
		map[string]any{"interactions": recs},
	), "ok"
}

// =============================================================================
// Tags
// =============================================================================

func (d *Dispatcher) createTag(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[CreateTagArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	rec, err := d.store.Insert(ctx, store.CollectionTags, args.record())
	if err != nil {
		return storeFailure("create tag", err)
	}
	return TextResult(
		fmt.Sprintf("Created tag %q (id %s).", args.TagName, store.StringValue(rec["id"])),
		map[string]any{"tag": rec},
	), "ok"
}

func (d *Dispatcher) listTags(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[ListTagsArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	q := store.Query{Sort: &store.Sort{Column: "usage_count", Descending: true}}
	addEq(&q, "entity_type", args.EntityType)
	scopeTenant(&q, args.TeamID)

	recs, err := d.store.Select(ctx, store.CollectionTags, q)
	if err != nil {
		return storeFailure("list tags", err)
	}
	return TextResult(
		fmt.Sprintf("Found %d tag(s).", len(recs)),
		map[string]any{"tags": recs},
	), "ok"
}

func (d *Dispatcher) attachTag(ctx context.Context, raw json.RawMessage) (Result, string) {
	args, err := decode[AttachTagArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}

	tag, res, outcome := d.getByID(ctx, store.CollectionTags, "tag", args.TagID)
	if outcome != "ok" {
		return res, outcome
	}

	collection, ok := entityCollection(args.EntityType)
	if !ok {
		return ErrorResult(fmt.Sprintf("Unknown entity type %q.", args.EntityType), nil), "invalid_args"
	}
	entity, res, outcome := d.getByID(ctx, collection, args.EntityType, args.EntityID)
	if outcome != "ok" {
		return res, outcome
	}

	tagIDs := appendUnique(stringSlice(entity["tag_ids"]), args.TagID)
	if _, err := d.store.Update(ctx, collection, args.EntityID, store.Record{"tag_ids": tagIDs}); err != nil {
		return storeFailure("attach tag", err)
	}

	usage := int(store.NumericValueOr(tag["usage_count"], 0)) + 1
	updated, err := d.store.Update(ctx, store.CollectionTags, args.TagID, store.Record{"usage_count": usage})
	if err != nil {
		return storeFailure("attach tag", err)
	}

	return TextResult(
		fmt.Sprintf("Attached tag %q to %s %s.",
			store.StringValue(tag["tag_name"]), args.EntityType, args.EntityID),
		map[string]any{"tag": updated},
	), "ok"
}

func (d *Dispatcher) mergeTags(ctx context.Context, raw json.RawMessage) (Result, string) {
	args, err := decode[MergeTagsArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}

	source, res, outcome := d.getByID(ctx, store.CollectionTags, "tag", args.SourceTagID)
	if outcome != "ok" {
		return res, outcome
	}
	target, res, outcome := d.getByID(ctx, store.CollectionTags, "tag", args.TargetTagID)
	if outcome != "ok" {
		return res, outcome
	}

	combined := int(store.NumericValueOr(source["usage_count"], 0)) +
		int(store.NumericValueOr(target["usage_count"], 0))
	updated, err := d.store.Update(ctx, store.CollectionTags, args.TargetTagID, store.Record{"usage_count": combined})
	if err != nil {
		return storeFailure("merge tags", err)
	}
	if err := d.store.Delete(ctx, store.CollectionTags, args.SourceTagID); err != nil {
		return storeFailure("merge tags", err)
	}

	return TextResult(
		fmt.Sprintf("Merged tag %q into %q (usage count %d).",
			store.StringValue(source["tag_name"]), store.StringValue(target["tag_name"]), combined),
		map[string]any{"tag": updated},
	), "ok"
}

// =============================================================================
// Search
// =============================================================================

func (d *Dispatcher) searchRecords(ctx context.Context, raw json.RawMessage, tenant TenantResolution) (Result, string) {
	args, err := decode[SearchRecordsArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	injectTenant(args, tenant)

	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}

	// Contacts match on either name part; filters AND together, so the two
	// columns are queried separately and merged by id.
	columns := []string{"name"}
	if args.Collection == store.CollectionContacts {
		columns = []string{"first_name", "last_name"}
	}

	seen := map[string]bool{}
	var recs []store.Record
	for _, col := range columns {
		q := store.Query{
			Filters: []store.Filter{{Column: col, Op: store.OpILike, Value: "%" + args.Query + "%"}},
			Limit:   limit,
		}
		scopeTenant(&q, args.TeamID)
		part, err := d.store.Select(ctx, args.Collection, q)
		if err != nil {
			return storeFailure("search records", err)
		}
		for _, rec := range part {
			id := store.StringValue(rec["id"])
			if seen[id] {
				continue
			}
			seen[id] = true
			recs = append(recs, rec)
		}
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}

	return TextResult(
		fmt.Sprintf("Found %d matching record(s) in %s.", len(recs), args.Collection),
		map[string]any{"records": recs, "collection": args.Collection},
	), "ok"
}

// =============================================================================
// Shared Helpers
// =============================================================================

// applyPatch is the shared update path: empty patches are rejected before
// the store sees them, unknown ids surface as a user-facing not-found.
func (d *Dispatcher) applyPatch(ctx context.Context, collection, noun, id string, patch store.Record) (Result, string) {
	if len(patch) == 0 {
		return ErrorResult(
			fmt.Sprintf("Nothing to update on the %s. Tell me which field to change.", noun),
			nil,
		), "invalid_args"
	}
	rec, err := d.store.Update(ctx, collection, id, patch)
	if errors.Is(err, store.ErrNotFound) {
		return ErrorResult(fmt.Sprintf("No %s found with id %s.", noun, id), nil), "error"
	}
	if err != nil {
		return storeFailure("update "+noun, err)
	}
	return TextResult(
		fmt.Sprintf("Updated %s %s.", noun, id),
		map[string]any{noun: rec},
	), "ok"
}

func (d *Dispatcher) deleteRecord(ctx context.Context, raw json.RawMessage, collection, noun string) (Result, string) {
	args, err := decode[DeleteArgs](raw)
	if err != nil {
		return invalidArgs(err)
	}
	err = d.store.Delete(ctx, collection, args.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrorResult(fmt.Sprintf("No %s found with id %s.", noun, args.ID), nil), "error"
	}
	if err != nil {
		return storeFailure("delete "+noun, err)
	}
	return TextResult(fmt.Sprintf("Deleted %s %s.", noun, args.ID), nil), "ok"
}

// getByID fetches one record or produces the not-found/error Result for it.
func (d *Dispatcher) getByID(ctx context.Context, collection, noun, id string) (store.Record, Result, string) {
	recs, err := d.store.Select(ctx, collection, store.Query{
		Filters: []store.Filter{store.Eq("id", id)},
		Limit:   1,
	})
	if err != nil {
		res, outcome := storeFailure("look up "+noun, err)
		return nil, res, outcome
	}
	if len(recs) == 0 {
		return nil, ErrorResult(fmt.Sprintf("No %s found with id %s.", noun, id), nil), "error"
	}
	return recs[0], Result{}, "ok"
}

// duplicateBlocked renders a blocked create. The matches ride in
// structuredContent so the client can offer a merge or update flow.
func duplicateBlocked(det dedup.Result) Result {
	top := ""
	if len(det.Matches) > 0 {
		top = det.Matches[0].RecordID
	}
	text := det.Message
	if top != "" {
		text = fmt.Sprintf("%s Existing record id: %s.", det.Message, top)
	}
	return ErrorResult(text, map[string]any{
		"duplicateMatches": det.Matches,
		"suggestedAction":  string(det.SuggestedAction),
	})
}

func invalidArgs(err error) (Result, string) {
	msg := strings.TrimPrefix(err.Error(), ErrInvalidArgs.Error()+": ")
	return ErrorResult("I can't run that yet: "+msg+".", nil), "invalid_args"
}

func storeFailure(op string, err error) (Result, string) {
	slog.Default().Error("store operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()))
	return ErrorResult(fmt.Sprintf("Sorry, I couldn't %s: %v.", op, err), nil), "error"
}

func addEq(q *store.Query, column, value string) {
	if value != "" {
		q.Filters = append(q.Filters, store.Eq(column, value))
	}
}

// scopeTenant constrains a read to the resolved tenant. An unscoped dispatch
// reads only rows that carry no team_id at all, so a caller whose tenant
// could not be resolved never sees another team's records.
func scopeTenant(q *store.Query, teamID string) {
	if teamID == "" {
		q.Filters = append(q.Filters, store.Null("team_id"))
		return
	}
	q.Filters = append(q.Filters, store.Eq("team_id", teamID))
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func entityCollection(entityType string) (string, bool) {
	switch entityType {
	case "account":
		return store.CollectionAccounts, true
	case "contact":
		return store.CollectionContacts, true
	case "deal":
		return store.CollectionDeals, true
	case "interaction":
		return store.CollectionInteractions, true
	}
	return "", false
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			out = append(out, store.StringValue(item))
		}
		return out
	}
	return nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
