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
	"strings"

	"github.com/AleutianAI/AleutianCRM/services/crm/aggregate"
	"github.com/AleutianAI/AleutianCRM/services/crm/store"
)

// ChartData is an inline chart payload attached to a chat response when the
// user's phrasing asks for a visual and the tool result has a chartable
// shape. It is a keyword heuristic on purpose: no extra model call, no
// latency, and a miss just means a text-only answer.
type ChartData struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Data     []ChartPoint `json:"data"`
	XAxisKey string       `json:"xAxisKey,omitempty"`
	YAxisKey string       `json:"yAxisKey,omitempty"`
}

// ChartPoint is one chart datum.
type ChartPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Count int     `json:"count,omitempty"`
}

// chartKeywords gate the heuristic: none present, no chart.
var chartKeywords = []string{
	"revenue", "chart", "graph", "by stage", "analytics", "breakdown", "distribution",
}

// BuildChartData derives a chart from a tool result.
//
// Description:
//
//	Fires only when the user message contains a chart keyword. Deal lists
//	become a revenue-by-stage bar chart (value = summed amount per stage,
//	count = deals per stage); account lists asked about by industry become
//	an accounts-by-industry pie. Everything else returns nil — callers
//	treat nil as "no chart", not an error.
func BuildChartData(message string, structured map[string]any) *ChartData {
	lower := strings.ToLower(message)
	if !containsAny(lower, chartKeywords) {
		return nil
	}

	if deals := recordsFrom(structured, "deals"); deals != nil &&
		(strings.Contains(lower, "revenue") || strings.Contains(lower, "stage")) {
		return dealsByStage(deals)
	}

	if accounts := recordsFrom(structured, "accounts"); accounts != nil &&
		strings.Contains(lower, "industry") {
		return accountsByIndustry(accounts)
	}

	return nil
}

func dealsByStage(deals []store.Record) *ChartData {
	revenue := map[string]float64{}
	counts := map[string]int{}
	var order []string
	for _, deal := range deals {
		stage := aggregate.BucketKey(deal, "stage")
		if _, seen := counts[stage]; !seen {
			order = append(order, stage)
		}
		revenue[stage] += aggregate.Value(deal, "amount")
		counts[stage]++
	}

	points := make([]ChartPoint, 0, len(order))
	for _, stage := range order {
		points = append(points, ChartPoint{
			Name:  stage,
			Value: revenue[stage],
			Count: counts[stage],
		})
	}
	return &ChartData{
		Type:     "bar",
		Title:    "Revenue by Stage",
		Data:     points,
		XAxisKey: "name",
		YAxisKey: "value",
	}
}

func accountsByIndustry(accounts []store.Record) *ChartData {
	counts := map[string]int{}
	var order []string
	for _, account := range accounts {
		industry := aggregate.BucketKey(account, "industry")
		if _, seen := counts[industry]; !seen {
			order = append(order, industry)
		}
		counts[industry]++
	}

	points := make([]ChartPoint, 0, len(order))
	for _, industry := range order {
		points = append(points, ChartPoint{
			Name:  industry,
			Value: float64(counts[industry]),
		})
	}
	return &ChartData{
		Type:  "pie",
		Title: "Accounts by Industry",
		Data:  points,
	}
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

// recordsFrom extracts a record slice from structured content, tolerating
// the []any shape a JSON round trip produces.
func recordsFrom(structured map[string]any, key string) []store.Record {
	if structured == nil {
		return nil
	}
	switch recs := structured[key].(type) {
	case []store.Record:
		return recs
	case []any:
		out := make([]store.Record, 0, len(recs))
		for _, item := range recs {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out
	}
	return nil
}
