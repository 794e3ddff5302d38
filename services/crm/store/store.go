// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the Record Store boundary: a small select/insert/
// update/delete interface over named collections of schemaless records.
// The CRM core never talks to a database directly — every read and write
// goes through RecordStore, which keeps the core testable against the
// in-memory implementation and deployable against the Badger-backed one.
//
// Thread Safety:
//
//	All RecordStore implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
)

// Collection names used by the CRM core.
const (
	CollectionAccounts     = "accounts"
	CollectionContacts     = "contacts"
	CollectionDeals        = "deals"
	CollectionInteractions = "interactions"
	CollectionTags         = "tags"
	CollectionUserPrefs    = "user_preferences"
)

// Sentinel errors returned by RecordStore implementations.
//
// ErrUniqueViolation is load-bearing: the Tool Dispatcher matches it with
// errors.Is to reclassify a race-lost insert (two concurrent creates of the
// same contact) as a duplicate-detected result instead of a generic failure.
var (
	ErrNotFound        = errors.New("store: record not found")
	ErrUniqueViolation = errors.New("store: unique constraint violation")
)

// Record is a single row in a collection. Column values are whatever the
// store returned: string, float64, bool, nil. Callers that need typed views
// decode through encoding/json.
type Record = map[string]any

// FilterOp enumerates the comparison operators a Filter may carry.
type FilterOp string

const (
	OpEq      FilterOp = "eq"
	OpNeq     FilterOp = "neq"
	OpGt      FilterOp = "gt"
	OpGte     FilterOp = "gte"
	OpLt      FilterOp = "lt"
	OpLte     FilterOp = "lte"
	OpILike   FilterOp = "ilike"
	OpNotNull FilterOp = "not_null"
	OpNull    FilterOp = "null"
)

// Filter is a single column comparison applied during Select.
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Sort orders Select results by a single column.
type Sort struct {
	Column     string
	Descending bool
}

// Query describes a Select: filters applied in declaration order, optional
// sort, optional limit (0 = no limit).
type Query struct {
	Filters []Filter
	Sort    *Sort
	Limit   int
}

// RecordStore is the persistence collaborator for the CRM core.
//
// Description:
//
//	Select returns all records in the collection matching every filter, in
//	sort order, truncated to Limit. Insert stores a new record and returns
//	it with server-assigned columns (id, timestamps) filled in. Update
//	patches the named record with the non-nil columns of patch. Delete
//	removes it.
//
// Outputs:
//
//	Insert returns an error wrapping ErrUniqueViolation when a uniqueness
//	constraint rejects the row. Update and Delete return errors wrapping
//	ErrNotFound for unknown ids.
//
// Thread Safety: Implementations must be safe for concurrent use.
type RecordStore interface {
	Select(ctx context.Context, collection string, q Query) ([]Record, error)
	Insert(ctx context.Context, collection string, rec Record) (Record, error)
	Update(ctx context.Context, collection string, id string, patch Record) (Record, error)
	Delete(ctx context.Context, collection string, id string) error
}

// Eq is a convenience constructor for the most common filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// NotNull filters to records where the column is present and non-nil.
func NotNull(column string) Filter {
	return Filter{Column: column, Op: OpNotNull}
}

// Null filters to records where the column is absent, nil, or empty — the
// complement of NotNull. Tenant-required reads use it to restrict degraded
// unscoped dispatches to rows that belong to no team at all.
func Null(column string) Filter {
	return Filter{Column: column, Op: OpNull}
}
