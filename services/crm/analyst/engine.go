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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/aggregate"
	"github.com/AleutianAI/AleutianCRM/services/crm/store"
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
	analysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crm",
		Subsystem: "analyst",
		Name:      "analysis_total",
		Help:      "Analytics questions by outcome: ok, plan_error, store_error",
	}, []string{"outcome"})

	analysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crm",
		Subsystem: "analyst",
		Name:      "analysis_latency_seconds",
		Help:      "End-to-end latency of analytics questions, planning included",
		Buckets:   []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})
)

var tracer = otel.Tracer("aleutiancrm.analyst")

// defaultRowLimit bounds unaggregated fetches when the plan gave no limit.
const defaultRowLimit = 100

// ChartConfig tells the frontend how to render an analysis.
type ChartConfig struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	XAxis string `json:"xAxis,omitempty"`
	YAxis string `json:"yAxis,omitempty"`
}

// Analysis is the answer to one analytics question: the reduced rows plus
// rendering hints.
type Analysis struct {
	Data   []store.Record `json:"data"`
	Config ChartConfig    `json:"config"`
}

// Engine executes analytics questions.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	store   store.RecordStore
	planner Planner
	schema  Schema
	logger  *slog.Logger
	now     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock injects the time source used to resolve date periods.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over the given store and planner.
func NewEngine(st store.RecordStore, planner Planner, schema Schema, opts ...EngineOption) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if planner == nil {
		return nil, fmt.Errorf("planner must not be nil")
	}
	e := &Engine{
		store:   st,
		planner: planner,
		schema:  schema,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AnalyzeAndFetch answers a free-text analytics question.
//
// Description:
//
//	Plans the question, runs the plan as a single Select (filters in plan
//	order, then the resolved date filter, then sort and limit), reduces the
//	rows per the plan's aggregation, and attaches the chart config. TeamID
//	scopes every read when non-empty.
func (e *Engine) AnalyzeAndFetch(ctx context.Context, question, teamID string) (Analysis, error) {
	ctx, span := tracer.Start(ctx, "Engine.AnalyzeAndFetch")
	defer span.End()
	start := time.Now()
	defer func() { analysisLatency.Observe(time.Since(start).Seconds()) }()

	plan, err := e.planner.Plan(ctx, question, e.schema)
	if err != nil {
		analysisTotal.WithLabelValues("plan_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "planning failed")
		return Analysis{}, fmt.Errorf("analyze %q: %w", question, err)
	}

	// Normalize and validate here rather than trusting the Planner: the
	// LLM-backed one does both, but the contract holds for any
	// implementation.
	plan.normalize()
	if err := plan.validate(e.schema); err != nil {
		analysisTotal.WithLabelValues("plan_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid plan")
		return Analysis{}, fmt.Errorf("analyze %q: %w", question, err)
	}
	span.SetAttributes(
		attribute.String("table", plan.Table),
		attribute.String("aggregation", plan.Aggregation),
		attribute.String("group_by", plan.GroupBy),
	)

	rows, err := e.fetch(ctx, plan, teamID)
	if err != nil {
		analysisTotal.WithLabelValues("store_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return Analysis{}, fmt.Errorf("analyze %q: %w", question, err)
	}

	data := aggregate.GroupReduce(rows, aggregate.Kind(plan.Aggregation), plan.GroupBy, plan.ValueColumn)

	analysisTotal.WithLabelValues("ok").Inc()
	return Analysis{
		Data:   data,
		Config: chartConfig(plan),
	}, nil
}

// Execute runs an already-built plan, bypassing the planner. The HTTP
// surface exposes it for clients that construct plans directly.
func (e *Engine) Execute(ctx context.Context, plan QueryPlan, teamID string) (Analysis, error) {
	plan.normalize()
	if err := plan.validate(e.schema); err != nil {
		return Analysis{}, err
	}
	rows, err := e.fetch(ctx, plan, teamID)
	if err != nil {
		return Analysis{}, err
	}
	data := aggregate.GroupReduce(rows, aggregate.Kind(plan.Aggregation), plan.GroupBy, plan.ValueColumn)
	return Analysis{Data: data, Config: chartConfig(plan)}, nil
}

func (e *Engine) fetch(ctx context.Context, plan QueryPlan, teamID string) ([]store.Record, error) {
	q := store.Query{}

	for _, f := range plan.Filters {
		op, ok := filterOp(f.Op)
		if !ok {
			e.logger.Warn("plan filter has unknown operator, skipped",
				slog.String("column", f.Column), slog.String("op", f.Op))
			continue
		}
		q.Filters = append(q.Filters, store.Filter{Column: f.Column, Op: op, Value: f.Value})
	}

	if df := plan.DateFilter; df != nil && df.Column != "" {
		if since, ok := resolvePeriod(df.Period, e.now()); ok {
			op := store.OpGte
			if parsed, okOp := filterOp(df.Op); okOp && df.Op != "" {
				op = parsed
			}
			q.Filters = append(q.Filters, store.Filter{
				Column: df.Column,
				Op:     op,
				Value:  since.Format(time.RFC3339),
			})
		} else {
			e.logger.Warn("plan date filter has unknown period, skipped",
				slog.String("period", df.Period))
		}
	}

	if plan.Sort != nil && plan.Sort.Column != "" {
		q.Sort = &store.Sort{Column: plan.Sort.Column, Descending: plan.Sort.Descending}
	}

	// Aggregations fold every matching row; only raw listings get the
	// default limit.
	q.Limit = plan.Limit
	if q.Limit <= 0 && plan.Aggregation == "none" {
		q.Limit = defaultRowLimit
	}

	if teamID != "" {
		q.Filters = append(q.Filters, store.Eq("team_id", teamID))
	}

	return e.store.Select(ctx, plan.Table, q)
}

// resolvePeriod turns a period phrase into the start of that period.
// The vocabulary is fixed; anything else reports false.
func resolvePeriod(period string, now time.Time) (time.Time, bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(strings.TrimSpace(period)) {
	case "today":
		return midnight, true
	case "this week":
		return now.AddDate(0, 0, -7), true
	case "this month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	case "last month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0), true
	case "this quarter":
		quarterStart := time.Month(((int(now.Month())-1)/3)*3 + 1)
		return time.Date(now.Year(), quarterStart, 1, 0, 0, 0, 0, now.Location()), true
	case "next 30 days", "soon":
		// Forward-looking periods lower-bound at now; the horizon is
		// advisory, the rows are upcoming either way.
		return now, true
	}
	return time.Time{}, false
}

func filterOp(op string) (store.FilterOp, bool) {
	switch store.FilterOp(strings.ToLower(strings.TrimSpace(op))) {
	case "", store.OpEq:
		return store.OpEq, true
	case store.OpNeq:
		return store.OpNeq, true
	case store.OpGt:
		return store.OpGt, true
	case store.OpGte:
		return store.OpGte, true
	case store.OpLt:
		return store.OpLt, true
	case store.OpLte:
		return store.OpLte, true
	case store.OpILike:
		return store.OpILike, true
	}
	return "", false
}

// chartConfig derives the rendering hints from the plan: x is the group
// column, y is the reducer's output column name.
func chartConfig(plan QueryPlan) ChartConfig {
	cfg := ChartConfig{
		Type:  plan.ChartType,
		Title: plan.Title,
		XAxis: plan.GroupBy,
	}
	switch plan.Aggregation {
	case "count":
		cfg.YAxis = "count"
	case "sum":
		cfg.YAxis = "total"
	case "avg":
		cfg.YAxis = "average"
	}
	return cfg
}
