// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate implements in-process group-and-summarize over store
// records. The Record Store has no native group-by, so both the Aggregation
// Engine and the conversational chart formatter reduce rows here. The two
// call sites stay separate on purpose — they trigger on different inputs and
// emit different shapes — but they share this reducer so the bucketing
// semantics (the literal "Unknown" bucket, zero-not-NaN on empty input)
// cannot drift apart.
package aggregate

import (
	"sort"

	"github.com/AleutianAI/AleutianCRM/services/crm/store"
)

// Kind enumerates the supported aggregations.
type Kind string

const (
	KindNone  Kind = "none"
	KindCount Kind = "count"
	KindSum   Kind = "sum"
	KindAvg   Kind = "avg"
)

// UnknownBucket is the literal key rows with a missing or empty group
// column land in. They are bucketed, never dropped.
const UnknownBucket = "Unknown"

// BucketKey returns the group key for a record: the column's string value,
// or UnknownBucket when the column is missing, nil, or empty.
func BucketKey(rec store.Record, column string) string {
	val, ok := rec[column]
	if !ok || val == nil {
		return UnknownBucket
	}
	s := store.StringValue(val)
	if s == "" {
		return UnknownBucket
	}
	return s
}

// Value coerces a record column to float64 for sum/avg accumulation.
// Missing and non-numeric values contribute 0.
func Value(rec store.Record, column string) float64 {
	f, ok := store.NumericValue(rec[column])
	if !ok {
		return 0
	}
	return f
}

// GroupReduce reduces rows according to the aggregation kind.
//
// Description:
//
//	KindNone returns rows unchanged. KindCount without a group column emits
//	a single {"count": n} row. With a group column, each output row carries
//	the group key under the group column's name plus "count". KindSum and
//	KindAvg accumulate the value column — ungrouped they emit a single
//	{"total"} or {"average"} row; grouped they emit one row per bucket.
//
//	Grouped output is sorted by bucket key so results are deterministic;
//	callers must not rely on any particular order beyond that.
//
// Edge cases:
//
//	Empty input never yields NaN: ungrouped sum/avg emit 0 and ungrouped
//	count emits 0. Average divides by row count, not bucket count.
func GroupReduce(rows []store.Record, kind Kind, groupCol, valueCol string) []store.Record {
	switch kind {
	case KindNone, "":
		return rows

	case KindCount:
		if groupCol == "" {
			return []store.Record{{"count": len(rows)}}
		}
		counts := map[string]int{}
		for _, row := range rows {
			counts[BucketKey(row, groupCol)]++
		}
		out := make([]store.Record, 0, len(counts))
		for _, key := range sortedKeys(counts) {
			out = append(out, store.Record{groupCol: key, "count": counts[key]})
		}
		return out

	case KindSum:
		if groupCol == "" {
			var total float64
			for _, row := range rows {
				total += Value(row, valueCol)
			}
			return []store.Record{{"total": total}}
		}
		sums := map[string]float64{}
		for _, row := range rows {
			sums[BucketKey(row, groupCol)] += Value(row, valueCol)
		}
		out := make([]store.Record, 0, len(sums))
		for _, key := range sortedFloatKeys(sums) {
			out = append(out, store.Record{groupCol: key, "total": sums[key]})
		}
		return out

	case KindAvg:
		if groupCol == "" {
			if len(rows) == 0 {
				return []store.Record{{"average": float64(0)}}
			}
			var total float64
			for _, row := range rows {
				total += Value(row, valueCol)
			}
			return []store.Record{{"average": total / float64(len(rows))}}
		}
		sums := map[string]float64{}
		counts := map[string]int{}
		for _, row := range rows {
			key := BucketKey(row, groupCol)
			sums[key] += Value(row, valueCol)
			counts[key]++
		}
		out := make([]store.Record, 0, len(sums))
		for _, key := range sortedFloatKeys(sums) {
			out = append(out, store.Record{groupCol: key, "average": sums[key] / float64(counts[key])})
		}
		return out
	}

	return rows
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
