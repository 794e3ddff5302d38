// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ApplyQuery evaluates q against recs in memory: filters in declaration
// order, then sort, then limit. Both bundled RecordStore implementations
// (memstore, badgerstore) filter in-process, so they share this evaluator
// to guarantee identical semantics.
func ApplyQuery(recs []Record, q Query) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		if MatchesAll(rec, q.Filters) {
			out = append(out, rec)
		}
	}

	if q.Sort != nil {
		col, desc := q.Sort.Column, q.Sort.Descending
		sort.SliceStable(out, func(i, j int) bool {
			c := CompareValues(out[i][col], out[j][col])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// MatchesAll reports whether rec satisfies every filter.
func MatchesAll(rec Record, filters []Filter) bool {
	for _, f := range filters {
		if !Matches(rec, f) {
			return false
		}
	}
	return true
}

// Matches evaluates a single filter against a record.
func Matches(rec Record, f Filter) bool {
	val, present := rec[f.Column]

	switch f.Op {
	case OpNotNull:
		return present && val != nil && StringValue(val) != ""
	case OpNull:
		return !present || val == nil || StringValue(val) == ""
	case OpEq:
		if !present {
			return f.Value == nil
		}
		return CompareValues(val, f.Value) == 0
	case OpNeq:
		if !present {
			return f.Value != nil
		}
		return CompareValues(val, f.Value) != 0
	case OpILike:
		pattern := strings.ToLower(StringValue(f.Value))
		target := strings.ToLower(StringValue(val))
		// Postgres-style ILIKE with leading/trailing % only.
		switch {
		case strings.HasPrefix(pattern, "%") && strings.HasSuffix(pattern, "%"):
			return strings.Contains(target, strings.Trim(pattern, "%"))
		case strings.HasPrefix(pattern, "%"):
			return strings.HasSuffix(target, strings.TrimPrefix(pattern, "%"))
		case strings.HasSuffix(pattern, "%"):
			return strings.HasPrefix(target, strings.TrimSuffix(pattern, "%"))
		default:
			return target == pattern
		}
	case OpGt:
		return present && CompareValues(val, f.Value) > 0
	case OpGte:
		return present && CompareValues(val, f.Value) >= 0
	case OpLt:
		return present && CompareValues(val, f.Value) < 0
	case OpLte:
		return present && CompareValues(val, f.Value) <= 0
	}
	return false
}

// CompareValues orders two column values. Numbers compare numerically,
// everything else compares as strings (ISO-8601 timestamps order correctly
// under string comparison).
func CompareValues(a, b any) int {
	af, aok := NumericValue(a)
	bf, bok := NumericValue(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(StringValue(a), StringValue(b))
}

// NumericValue coerces a column value to float64 when it is numeric or a
// numeric string. JSON round trips turn every number into float64, so this
// is the canonical numeric view of a record column.
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// NumericValueOr is NumericValue with a fallback for non-numeric values.
func NumericValueOr(v any, fallback float64) float64 {
	if f, ok := NumericValue(v); ok {
		return f
	}
	return fallback
}

// StringValue renders a column value for comparison and display.
// Nil becomes the empty string.
func StringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}

// CloneRecord returns a shallow copy so store internals never alias
// caller-held maps.
func CloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
