// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dedup detects near-duplicate contacts and deals before the Tool
// Dispatcher inserts them. Detection is read-only: it scores candidate
// matches from the Record Store and recommends an action; the dispatcher
// decides whether to block, warn, or proceed.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	detectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "dedup",
		Name:      "detection_total",
		Help:      "Duplicate detections by entity and suggested action",
	}, []string{"entity", "action"})

	detectionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crm",
		Subsystem: "dedup",
		Name:      "detection_latency_seconds",
		Help:      "Latency of duplicate detection calls",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"entity"})

	strategyErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "dedup",
		Name:      "strategy_error_total",
		Help:      "Store read failures per matching strategy (degraded, not fatal)",
	}, []string{"strategy"})
)

var tracer = otel.Tracer("aleutiancrm.dedup")

// =============================================================================
// Types
// =============================================================================

// Action is the detector's recommendation to the dispatcher.
type Action string

const (
	ActionCreate Action = "create"
	ActionMerge  Action = "merge"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// Match is one scored candidate duplicate.
type Match struct {
	// RecordID is the existing record's id.
	RecordID string `json:"record_id"`

	// Similarity is in [0, 1]. 1.0 means the strongest signal matched.
	Similarity float64 `json:"similarity"`

	// Reason is the human-readable explanation ("Exact email match").
	Reason string `json:"reason"`

	// Record is the full existing record, for merge UIs.
	Record store.Record `json:"record"`
}

// Result is the outcome of one detection call.
type Result struct {
	IsDuplicate     bool    `json:"is_duplicate"`
	Matches         []Match `json:"matches"`
	SuggestedAction Action  `json:"suggested_action"`
	Message         string  `json:"message"`
}

// ContactCandidate is the incoming contact to check before creation.
type ContactCandidate struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	AccountID string
	TeamID    string
}

// DealCandidate is the incoming deal to check before creation.
type DealCandidate struct {
	Name      string
	AccountID string
	Stage     string
	TeamID    string
}

// Detector scores candidates against existing records.
//
// Thread Safety: Safe for concurrent use; holds no mutable state.
type Detector struct {
	store  store.RecordStore
	logger *slog.Logger
}

// NewDetector creates a Detector over the given store.
func NewDetector(st store.RecordStore) (*Detector, error) {
	if st == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	return &Detector{store: st, logger: slog.Default()}, nil
}

// =============================================================================
// Contact Detection
// =============================================================================

// DetectContact checks a contact candidate against existing contacts.
//
// Description:
//
//	Runs three matching strategies — exact email (similarity 1.0), exact
//	phone digits (0.9, only when the candidate phone has at least ten
//	digits), and name+account agreement (0.7) — and merges their results in
//	strength order, keeping the first hit per existing record. The store
//	reads are independent and issued concurrently; a failed read degrades
//	that one strategy to "no matches" and never fails the call.
//
// Outputs:
//   - Result: SuggestedAction merge (top >= 0.9), update (>= 0.7), or
//     create. Never returns a Go error; degraded reads are logged.
func (d *Detector) DetectContact(ctx context.Context, cand ContactCandidate) Result {
	ctx, span := tracer.Start(ctx, "Detector.DetectContact")
	defer span.End()
	start := time.Now()
	defer func() {
		detectionLatency.WithLabelValues("contact").Observe(time.Since(start).Seconds())
	}()

	var emailMatches, phoneMatches, nameMatches []Match

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		emailMatches = d.matchContactEmail(gctx, cand)
		return nil
	})
	g.Go(func() error {
		phoneMatches = d.matchContactPhone(gctx, cand)
		return nil
	})
	g.Go(func() error {
		nameMatches = d.matchContactName(gctx, cand)
		return nil
	})
	_ = g.Wait() // strategies never return errors; degraded reads are logged inline

	matches := mergeMatches(emailMatches, phoneMatches, nameMatches)
	result := classify(matches, 0.9, 0.7, "contact")

	span.SetAttributes(
		attribute.Int("matches", len(matches)),
		attribute.String("action", string(result.SuggestedAction)),
	)
	detectionTotal.WithLabelValues("contact", string(result.SuggestedAction)).Inc()
	return result
}

func (d *Detector) matchContactEmail(ctx context.Context, cand ContactCandidate) []Match {
	email := normalizeEmail(cand.Email)
	if email == "" {
		return nil
	}

	q := store.Query{Filters: []store.Filter{store.NotNull("email")}}
	if cand.TeamID != "" {
		q.Filters = append(q.Filters, store.Eq("team_id", cand.TeamID))
	}
	recs, err := d.store.Select(ctx, store.CollectionContacts, q)
	if err != nil {
		strategyErrorTotal.WithLabelValues("contact_email").Inc()
		d.logger.Warn("email duplicate lookup failed, strategy skipped",
			slog.String("error", err.Error()))
		return nil
	}

	var out []Match
	for _, rec := range recs {
		if normalizeEmail(store.StringValue(rec["email"])) == email {
			out = append(out, Match{
				RecordID:   store.StringValue(rec["id"]),
				Similarity: 1.0,
				Reason:     "Exact email match",
				Record:     rec,
			})
		}
	}
	return out
}

func (d *Detector) matchContactPhone(ctx context.Context, cand ContactCandidate) []Match {
	phone := normalizePhone(cand.Phone)
	if len(phone) < 10 {
		return nil
	}

	q := store.Query{Filters: []store.Filter{store.NotNull("phone")}}
	if cand.TeamID != "" {
		q.Filters = append(q.Filters, store.Eq("team_id", cand.TeamID))
	}
	recs, err := d.store.Select(ctx, store.CollectionContacts, q)
	if err != nil {
		strategyErrorTotal.WithLabelValues("contact_phone").Inc()
		d.logger.Warn("phone duplicate lookup failed, strategy skipped",
			slog.String("error", err.Error()))
		return nil
	}

	var out []Match
	for _, rec := range recs {
		if normalizePhone(store.StringValue(rec["phone"])) == phone {
			out = append(out, Match{
				RecordID:   store.StringValue(rec["id"]),
				Similarity: 0.9,
				Reason:     "Exact phone match",
				Record:     rec,
			})
		}
	}
	return out
}

func (d *Detector) matchContactName(ctx context.Context, cand ContactCandidate) []Match {
	first := normalizeName(cand.FirstName)
	last := normalizeName(cand.LastName)
	if first == "" || last == "" {
		return nil
	}

	q := store.Query{Filters: []store.Filter{
		{Column: "first_name", Op: store.OpILike, Value: strings.TrimSpace(cand.FirstName)},
		{Column: "last_name", Op: store.OpILike, Value: strings.TrimSpace(cand.LastName)},
	}}
	if cand.TeamID != "" {
		q.Filters = append(q.Filters, store.Eq("team_id", cand.TeamID))
	}
	recs, err := d.store.Select(ctx, store.CollectionContacts, q)
	if err != nil {
		strategyErrorTotal.WithLabelValues("contact_name").Inc()
		d.logger.Warn("name duplicate lookup failed, strategy skipped",
			slog.String("error", err.Error()))
		return nil
	}

	var out []Match
	for _, rec := range recs {
		// A name collision only counts when the account affiliation agrees:
		// both unset, or both the same account.
		recAccount := store.StringValue(rec["account_id"])
		if recAccount != cand.AccountID {
			continue
		}
		out = append(out, Match{
			RecordID:   store.StringValue(rec["id"]),
			Similarity: 0.7,
			Reason:     "Name and account match",
			Record:     rec,
		})
	}
	return out
}

// =============================================================================
// Deal Detection
// =============================================================================

// DetectDeal checks a deal candidate against existing deals.
//
// Description:
//
//	Deals match on case-insensitive exact name (0.8), raised to 0.95 when
//	the account also matches, plus 0.05 when the stage also matches, capped
//	at 1.0. Thresholds: merge at >= 0.9, update at >= 0.8.
func (d *Detector) DetectDeal(ctx context.Context, cand DealCandidate) Result {
	ctx, span := tracer.Start(ctx, "Detector.DetectDeal")
	defer span.End()
	start := time.Now()
	defer func() {
		detectionLatency.WithLabelValues("deal").Observe(time.Since(start).Seconds())
	}()

	name := normalizeName(cand.Name)
	if name == "" {
		result := noMatches()
		detectionTotal.WithLabelValues("deal", string(result.SuggestedAction)).Inc()
		return result
	}

	q := store.Query{Filters: []store.Filter{
		{Column: "name", Op: store.OpILike, Value: strings.TrimSpace(cand.Name)},
	}}
	if cand.AccountID != "" {
		q.Filters = append(q.Filters, store.Eq("account_id", cand.AccountID))
	}
	if cand.TeamID != "" {
		q.Filters = append(q.Filters, store.Eq("team_id", cand.TeamID))
	}

	recs, err := d.store.Select(ctx, store.CollectionDeals, q)
	if err != nil {
		strategyErrorTotal.WithLabelValues("deal_name").Inc()
		d.logger.Warn("deal duplicate lookup failed, strategy skipped",
			slog.String("error", err.Error()))
		recs = nil
	}

	var matches []Match
	for _, rec := range recs {
		similarity := 0.8
		reason := "Exact name match"

		if cand.AccountID != "" && store.StringValue(rec["account_id"]) == cand.AccountID {
			similarity = 0.95
			reason = "Exact name and account match"
		}
		if cand.Stage != "" && strings.EqualFold(store.StringValue(rec["stage"]), cand.Stage) {
			similarity = min(similarity+0.05, 1.0)
			reason += " with same stage"
		}

		matches = append(matches, Match{
			RecordID:   store.StringValue(rec["id"]),
			Similarity: similarity,
			Reason:     reason,
			Record:     rec,
		})
	}

	result := classify(sortBySimilarity(matches), 0.9, 0.8, "deal")

	span.SetAttributes(
		attribute.Int("matches", len(matches)),
		attribute.String("action", string(result.SuggestedAction)),
	)
	detectionTotal.WithLabelValues("deal", string(result.SuggestedAction)).Inc()
	return result
}

// =============================================================================
// Classification
// =============================================================================

// mergeMatches concatenates strategy results in strength order, dropping
// records already claimed by a stronger strategy, then sorts by similarity.
func mergeMatches(groups ...[]Match) []Match {
	seen := map[string]bool{}
	var out []Match
	for _, group := range groups {
		for _, m := range group {
			if seen[m.RecordID] {
				continue
			}
			seen[m.RecordID] = true
			out = append(out, m)
		}
	}
	return sortBySimilarity(out)
}

func sortBySimilarity(matches []Match) []Match {
	// Insertion sort keeps the first-seen order for equal scores; match
	// lists are tiny.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Similarity > matches[j-1].Similarity; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	return matches
}

func classify(matches []Match, mergeAt, updateAt float64, entity string) Result {
	if len(matches) == 0 {
		return noMatches()
	}

	top := matches[0]
	switch {
	case top.Similarity >= mergeAt:
		return Result{
			IsDuplicate:     true,
			Matches:         matches,
			SuggestedAction: ActionMerge,
			Message: fmt.Sprintf("Strong duplicate detected: %s. Consider merging or updating existing %s.",
				top.Reason, entity),
		}
	case top.Similarity >= updateAt:
		return Result{
			IsDuplicate:     true,
			Matches:         matches,
			SuggestedAction: ActionUpdate,
			Message: fmt.Sprintf("Possible duplicate detected: %s. Consider updating the existing %s instead.",
				top.Reason, entity),
		}
	default:
		return Result{
			IsDuplicate:     true,
			Matches:         matches,
			SuggestedAction: ActionCreate,
			Message: fmt.Sprintf("Potential duplicate detected: %s. Please verify before creating.",
				top.Reason),
		}
	}
}

func noMatches() Result {
	return Result{
		IsDuplicate:     false,
		Matches:         []Match{},
		SuggestedAction: ActionCreate,
		Message:         "No duplicates found",
	}
}

// =============================================================================
// Normalization
// =============================================================================

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone strips every non-digit character, so "+1 (555) 010-2030"
// and "15550102030" compare equal.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
