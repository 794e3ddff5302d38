// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badgerstore

import (
	"context"
	"testing"

	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertSelectRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, store.CollectionDeals, store.Record{
		"name": "Acme Renewal", "stage": "Discovery", "amount": 5000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec["id"])

	recs, err := s.Select(ctx, store.CollectionDeals, store.Query{
		Filters: []store.Filter{store.Eq("stage", "Discovery")},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Acme Renewal", recs[0]["name"])
	// JSON round trip makes numbers float64.
	assert.Equal(t, float64(5000), recs[0]["amount"])
}

func TestUniqueIndexRejectsDuplicateEmail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, store.CollectionContacts, store.Record{
		"first_name": "Dana", "last_name": "Reyes", "email": "dana@acme.test",
	})
	require.NoError(t, err)

	_, err = s.Insert(ctx, store.CollectionContacts, store.Record{
		"first_name": "Other", "last_name": "Person", "email": "Dana@Acme.test",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUniqueViolation)
}

func TestUpdateMovesUniqueIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, store.CollectionContacts, store.Record{
		"first_name": "Dana", "last_name": "Reyes", "email": "dana@acme.test",
	})
	require.NoError(t, err)
	id := store.StringValue(rec["id"])

	_, err = s.Update(ctx, store.CollectionContacts, id, store.Record{"email": "dana@newco.test"})
	require.NoError(t, err)

	// The old address is free again; the new one is claimed.
	_, err = s.Insert(ctx, store.CollectionContacts, store.Record{
		"first_name": "A", "last_name": "B", "email": "dana@acme.test",
	})
	require.NoError(t, err)

	_, err = s.Insert(ctx, store.CollectionContacts, store.Record{
		"first_name": "C", "last_name": "D", "email": "dana@newco.test",
	})
	assert.ErrorIs(t, err, store.ErrUniqueViolation)
}

func TestDeleteFreesUniqueIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Insert(ctx, store.CollectionContacts, store.Record{
		"first_name": "Dana", "last_name": "Reyes", "email": "dana@acme.test",
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, store.CollectionContacts, store.StringValue(rec["id"])))

	_, err = s.Insert(ctx, store.CollectionContacts, store.Record{
		"first_name": "New", "last_name": "Owner", "email": "dana@acme.test",
	})
	require.NoError(t, err)
}

func TestDeleteUnknownID(t *testing.T) {
	s := openTestStore(t)
	err := s.Delete(context.Background(), store.CollectionAccounts, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
