// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyst answers free-text analytics questions. A planner model
// compiles the question into a QueryPlan against a fixed schema catalog;
// the engine executes the plan as one Record Store read plus an in-process
// group-and-summarize, and shapes the result for charting. The model never
// sees data, only the schema — all row access goes through the store.
package analyst

import (
	"fmt"
	"strings"
)

// Chart types the frontend can render.
const (
	ChartBar    = "bar"
	ChartLine   = "line"
	ChartPie    = "pie"
	ChartNumber = "number"
	ChartTable  = "table"
)

// PlanFilter is one column predicate in a plan. Op uses the store's
// operator names (eq, neq, gt, gte, lt, lte, ilike); empty means eq.
type PlanFilter struct {
	Column string `json:"column"`
	Op     string `json:"op,omitempty"`
	Value  any    `json:"value"`
}

// DateFilter restricts a timestamp column to a named period. Period uses
// the fixed vocabulary resolved by resolvePeriod; Op defaults to gte.
type DateFilter struct {
	Column string `json:"column"`
	Period string `json:"period"`
	Op     string `json:"op,omitempty"`
}

// PlanSort orders the fetched rows before aggregation.
type PlanSort struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// QueryPlan is the planner's compiled form of an analytics question.
type QueryPlan struct {
	Table       string       `json:"table"`
	Aggregation string       `json:"aggregation,omitempty"`
	GroupBy     string       `json:"groupBy,omitempty"`
	ValueColumn string       `json:"valueColumn,omitempty"`
	Filters     []PlanFilter `json:"filters,omitempty"`
	DateFilter  *DateFilter  `json:"dateFilter,omitempty"`
	Sort        *PlanSort    `json:"sort,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	ChartType   string       `json:"chartType,omitempty"`
	Title       string       `json:"title,omitempty"`
}

// normalize fills plan defaults so the engine never branches on absence:
// aggregation "none" when empty, sum/avg default to the amount column, and
// the chart type follows the aggregation shape when the planner omitted it.
func (p *QueryPlan) normalize() {
	p.Aggregation = strings.ToLower(strings.TrimSpace(p.Aggregation))
	if p.Aggregation == "" {
		p.Aggregation = "none"
	}
	if (p.Aggregation == "sum" || p.Aggregation == "avg") && p.ValueColumn == "" {
		p.ValueColumn = "amount"
	}
	if p.ChartType == "" {
		switch {
		case p.Aggregation == "none":
			p.ChartType = ChartTable
		case p.GroupBy == "":
			p.ChartType = ChartNumber
		default:
			p.ChartType = ChartBar
		}
	}
}

// validate rejects plans referencing tables or aggregations outside the
// catalog. Column names are not checked: an unknown column simply matches
// nothing (or buckets as Unknown), which is safe.
func (p *QueryPlan) validate(schema Schema) error {
	if p.Table == "" {
		return fmt.Errorf("plan has no table")
	}
	if !schema.HasTable(p.Table) {
		return fmt.Errorf("plan references unknown table %q", p.Table)
	}
	switch p.Aggregation {
	case "none", "count", "sum", "avg":
	default:
		return fmt.Errorf("plan has unknown aggregation %q", p.Aggregation)
	}
	switch p.ChartType {
	case ChartBar, ChartLine, ChartPie, ChartNumber, ChartTable:
	default:
		return fmt.Errorf("plan has unknown chart type %q", p.ChartType)
	}
	return nil
}
