// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"testing"
	"time"
)

// Wednesday, 2026-03-04 14:30 local.
var wednesday = time.Date(2026, 3, 4, 14, 30, 0, 0, time.Local)

func TestResolveDueDate(t *testing.T) {
	tests := []struct {
		phrase string
		want   time.Time
		ok     bool
	}{
		{"today", time.Date(2026, 3, 4, 9, 0, 0, 0, time.Local), true},
		{"tomorrow", time.Date(2026, 3, 5, 9, 0, 0, 0, time.Local), true},
		{"Tomorrow at 3pm", time.Date(2026, 3, 5, 15, 0, 0, 0, time.Local), true},
		{"tomorrow at 9:15am", time.Date(2026, 3, 5, 9, 15, 0, 0, time.Local), true},
		{"friday", time.Date(2026, 3, 6, 9, 0, 0, 0, time.Local), true},
		{"next friday", time.Date(2026, 3, 6, 9, 0, 0, 0, time.Local), true},
		// Same weekday as today means next week, not today.
		{"next wednesday", time.Date(2026, 3, 11, 9, 0, 0, 0, time.Local), true},
		{"wednesday", time.Date(2026, 3, 11, 9, 0, 0, 0, time.Local), true},
		{"in 3 days", time.Date(2026, 3, 7, 9, 0, 0, 0, time.Local), true},
		{"in 1 day", time.Date(2026, 3, 5, 9, 0, 0, 0, time.Local), true},
		// Bare time of day means today.
		{"3pm", time.Date(2026, 3, 4, 15, 0, 0, 0, time.Local), true},
		{"15:00", time.Date(2026, 3, 4, 15, 0, 0, 0, time.Local), true},
		{"12am", time.Date(2026, 3, 4, 0, 0, 0, 0, time.Local), true},
		// Outside the vocabulary.
		{"whenever", time.Time{}, false},
		{"the day after the demo", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			got, ok := ResolveDueDate(tt.phrase, wednesday)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextWeekdayIsStrictlyAfterToday(t *testing.T) {
	got := nextWeekday(wednesday, time.Wednesday)
	if got.Day() != 11 {
		t.Errorf("next wednesday from a wednesday = day %d, want 11", got.Day())
	}
}
