// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"testing"

	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deals() []store.Record {
	return []store.Record{
		{"stage": "Discovery", "amount": float64(100)},
		{"stage": "Discovery", "amount": float64(300)},
		{"stage": "Proposal", "amount": float64(500)},
		{"amount": float64(50)}, // no stage
	}
}

func TestGroupReduceCount(t *testing.T) {
	t.Run("ungrouped count is a single row", func(t *testing.T) {
		out := GroupReduce(deals(), KindCount, "", "")
		require.Len(t, out, 1)
		assert.Equal(t, 4, out[0]["count"])
	})

	t.Run("grouped count buckets missing keys as Unknown", func(t *testing.T) {
		out := GroupReduce(deals(), KindCount, "stage", "")
		require.Len(t, out, 3)
		// Sorted by bucket key.
		assert.Equal(t, store.Record{"stage": "Discovery", "count": 2}, out[0])
		assert.Equal(t, store.Record{"stage": "Proposal", "count": 1}, out[1])
		assert.Equal(t, store.Record{"stage": UnknownBucket, "count": 1}, out[2])
	})
}

func TestGroupReduceSum(t *testing.T) {
	t.Run("ungrouped sum totals the value column", func(t *testing.T) {
		out := GroupReduce(deals(), KindSum, "", "amount")
		require.Len(t, out, 1)
		assert.Equal(t, 950.0, out[0]["total"])
	})

	t.Run("grouped sum accumulates per bucket", func(t *testing.T) {
		out := GroupReduce(deals(), KindSum, "stage", "amount")
		require.Len(t, out, 3)
		assert.Equal(t, 400.0, out[0]["total"])
		assert.Equal(t, 500.0, out[1]["total"])
		assert.Equal(t, 50.0, out[2]["total"])
	})

	t.Run("non-numeric values contribute zero", func(t *testing.T) {
		rows := []store.Record{{"amount": "n/a"}, {"amount": float64(10)}}
		out := GroupReduce(rows, KindSum, "", "amount")
		assert.Equal(t, 10.0, out[0]["total"])
	})
}

func TestGroupReduceAvg(t *testing.T) {
	t.Run("average divides by row count", func(t *testing.T) {
		out := GroupReduce(deals(), KindAvg, "", "amount")
		require.Len(t, out, 1)
		assert.Equal(t, 237.5, out[0]["average"])
	})

	t.Run("empty input yields zero, never NaN", func(t *testing.T) {
		out := GroupReduce(nil, KindAvg, "", "amount")
		require.Len(t, out, 1)
		assert.Equal(t, 0.0, out[0]["average"])
	})

	t.Run("grouped average divides per bucket", func(t *testing.T) {
		out := GroupReduce(deals(), KindAvg, "stage", "amount")
		require.Len(t, out, 3)
		assert.Equal(t, 200.0, out[0]["average"])
	})
}

func TestGroupReduceNone(t *testing.T) {
	rows := deals()
	out := GroupReduce(rows, KindNone, "", "")
	assert.Equal(t, rows, out)

	out = GroupReduce(rows, "", "", "")
	assert.Equal(t, rows, out)
}

func TestBucketKey(t *testing.T) {
	assert.Equal(t, "Discovery", BucketKey(store.Record{"stage": "Discovery"}, "stage"))
	assert.Equal(t, UnknownBucket, BucketKey(store.Record{}, "stage"))
	assert.Equal(t, UnknownBucket, BucketKey(store.Record{"stage": nil}, "stage"))
	assert.Equal(t, UnknownBucket, BucketKey(store.Record{"stage": ""}, "stage"))
}
