// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore implements the RecordStore over an embedded BadgerDB,
// for single-node deployments that do not use a hosted database. Records are
// stored as JSON under rec:<collection>:<id> keys; uniqueness constraints
// are enforced transactionally through uniq:<collection>:<column>:<value>
// index keys, which is what makes the Tool Dispatcher's race fallback
// (ErrUniqueViolation on concurrent create) work without a SQL database.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Config controls how the Badger database is opened.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is true.
	Path string

	// InMemory opens a non-persistent database. Used by tests.
	InMemory bool
}

// DefaultConfig returns a persistent store rooted at the given path.
func DefaultConfig(path string) Config {
	return Config{Path: path}
}

// Store is a Badger-backed RecordStore.
//
// Thread Safety: Safe for concurrent use; Badger transactions provide
// isolation, and the unique index check and record write share a transaction.
type Store struct {
	db *badger.DB

	// unique maps collection name to columns with uniqueness constraints.
	unique map[string][]string
}

// Open opens (or creates) the database.
//
// Outputs:
//   - *Store: The ready store. Caller must Close it.
//   - error: Non-nil if Badger cannot open the directory.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}
	return &Store{
		db: db,
		unique: map[string][]string{
			store.CollectionContacts: {"email"},
		},
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recKey(collection, id string) []byte {
	return []byte("rec:" + collection + ":" + id)
}

func recPrefix(collection string) []byte {
	return []byte("rec:" + collection + ":")
}

func uniqKey(collection, column, value string) []byte {
	return []byte("uniq:" + collection + ":" + column + ":" + strings.ToLower(value))
}

// Select loads every record in the collection and evaluates the query
// in-process. Collections here are CRM-sized (thousands of rows), so a
// prefix scan per read is the deliberate trade against maintaining
// secondary indexes for every filterable column.
func (s *Store) Select(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	var recs []store.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recPrefix(collection)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var rec store.Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decode record %s: %w", it.Item().Key(), err)
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store.ApplyQuery(recs, q), nil
}

// Insert writes a new record and its unique index entries in one transaction.
func (s *Store) Insert(_ context.Context, collection string, rec store.Record) (store.Record, error) {
	stored := store.CloneRecord(rec)
	if _, ok := stored["id"]; !ok {
		stored["id"] = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = now
	}
	stored["updated_at"] = now
	id := store.StringValue(stored["id"])

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, col := range s.unique[collection] {
			val := store.StringValue(stored[col])
			if val == "" {
				continue
			}
			key := uniqKey(collection, col, val)
			if _, err := txn.Get(key); err == nil {
				return fmt.Errorf("%s.%s = %q: %w", collection, col, val, store.ErrUniqueViolation)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(key, []byte(id)); err != nil {
				return err
			}
		}

		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(recKey(collection, id), data)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Update patches the record, moving unique index entries when an indexed
// column changes.
func (s *Store) Update(_ context.Context, collection string, id string, patch store.Record) (store.Record, error) {
	var updated store.Record
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recKey(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var current store.Record
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return err
		}

		for _, col := range s.unique[collection] {
			newVal, changed := patch[col]
			if !changed {
				continue
			}
			oldStr := store.StringValue(current[col])
			newStr := store.StringValue(newVal)
			if strings.EqualFold(oldStr, newStr) {
				continue
			}
			if oldStr != "" {
				if err := txn.Delete(uniqKey(collection, col, oldStr)); err != nil {
					return err
				}
			}
			if newStr != "" {
				key := uniqKey(collection, col, newStr)
				if _, err := txn.Get(key); err == nil {
					return fmt.Errorf("%s.%s = %q: %w", collection, col, newStr, store.ErrUniqueViolation)
				} else if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				if err := txn.Set(key, []byte(id)); err != nil {
					return err
				}
			}
		}

		for k, v := range patch {
			if k == "id" {
				continue
			}
			current[k] = v
		}
		current["updated_at"] = time.Now().UTC().Format(time.RFC3339)

		data, err := json.Marshal(current)
		if err != nil {
			return err
		}
		if err := txn.Set(recKey(collection, id), data); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the record and its unique index entries.
func (s *Store) Delete(_ context.Context, collection string, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recKey(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var current store.Record
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return err
		}

		for _, col := range s.unique[collection] {
			if val := store.StringValue(current[col]); val != "" {
				if err := txn.Delete(uniqKey(collection, col, val)); err != nil {
					return err
				}
			}
		}
		return txn.Delete(recKey(collection, id))
	})
}
