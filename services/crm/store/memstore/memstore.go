// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memstore provides an in-memory RecordStore for tests and for the
// dev server when no Badger path is configured. It implements the same
// filter, sort, and uniqueness semantics as the Badger-backed store.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/google/uuid"
)

// Store is an in-memory RecordStore.
//
// Thread Safety: Safe for concurrent use via sync.RWMutex.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]store.Record

	// unique maps collection name to columns whose non-empty values must be
	// unique within the collection. Matches the constraint set the hosted
	// database enforces in production.
	unique map[string][]string
}

// Option configures a Store.
type Option func(*Store)

// WithUniqueColumn declares a per-collection uniqueness constraint. Empty
// and missing values are exempt (multiple contacts may have no email).
func WithUniqueColumn(collection, column string) Option {
	return func(s *Store) {
		s.unique[collection] = append(s.unique[collection], column)
	}
}

// New creates an empty Store. By default contacts carry a unique email
// constraint, mirroring the production schema the dispatcher's race
// fallback depends on.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string][]store.Record),
		unique: map[string][]string{
			store.CollectionContacts: {"email"},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts records without id/timestamp generation or constraint checks.
// Test helper; not part of the RecordStore interface.
func (s *Store) Seed(collection string, recs ...store.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.collections[collection] = append(s.collections[collection], store.CloneRecord(rec))
	}
}

// Select returns matching records. See store.RecordStore.
func (s *Store) Select(_ context.Context, collection string, q store.Query) ([]store.Record, error) {
	s.mu.RLock()
	recs := make([]store.Record, 0, len(s.collections[collection]))
	for _, rec := range s.collections[collection] {
		recs = append(recs, store.CloneRecord(rec))
	}
	s.mu.RUnlock()

	return store.ApplyQuery(recs, q), nil
}

// Insert stores a new record, assigning id and timestamps when absent.
func (s *Store) Insert(_ context.Context, collection string, rec store.Record) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := store.CloneRecord(rec)
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = now
	}
	stored["updated_at"] = now

	for _, col := range s.unique[collection] {
		val := store.StringValue(stored[col])
		if val == "" {
			continue
		}
		for _, existing := range s.collections[collection] {
			if strings.EqualFold(store.StringValue(existing[col]), val) {
				return nil, fmt.Errorf("%s.%s = %q: %w", collection, col, val, store.ErrUniqueViolation)
			}
		}
	}

	s.collections[collection] = append(s.collections[collection], stored)
	return store.CloneRecord(stored), nil
}

// Update patches the record with the given id.
func (s *Store) Update(_ context.Context, collection string, id string, patch store.Record) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.collections[collection] {
		if store.StringValue(rec["id"]) == id {
			for k, v := range patch {
				if k == "id" {
					continue
				}
				rec[k] = v
			}
			rec["updated_at"] = time.Now().UTC().Format(time.RFC3339)
			return store.CloneRecord(rec), nil
		}
	}
	return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
}

// Delete removes the record with the given id.
func (s *Store) Delete(_ context.Context, collection string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.collections[collection]
	for i, rec := range recs {
		if store.StringValue(rec["id"]) == id {
			s.collections[collection] = append(recs[:i], recs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
}
