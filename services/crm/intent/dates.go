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
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultHour is used when a phrase names a day but no time of day.
const defaultHour = 9

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var (
	inDaysRe  = regexp.MustCompile(`^in (\d+) days?$`)
	clockRe   = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	atClockRe = regexp.MustCompile(`\bat (\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
)

// ResolveDueDate resolves a relative date phrase against now.
//
// Description:
//
//	The vocabulary is deliberately fixed (see the design notes): today,
//	tomorrow, <weekday>, next <weekday>, "in N days", each with an optional
//	"at H[:MM] [am|pm]" suffix, plus a bare time of day ("3pm") meaning
//	today. A day without a time defaults to 09:00 local. Anything outside
//	the vocabulary resolves to false — callers treat that as "no due date",
//	not an error.
//
// Outputs:
//   - time.Time: The resolved local timestamp.
//   - bool: False when the phrase is not in the vocabulary.
func ResolveDueDate(phrase string, now time.Time) (time.Time, bool) {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return time.Time{}, false
	}

	hour, minute := defaultHour, 0
	if m := atClockRe.FindStringSubmatch(p); m != nil {
		hour, minute = clockFrom(m)
		p = strings.TrimSpace(strings.Replace(p, m[0], "", 1))
	}

	day := now
	switch {
	case p == "today":
		// day stays now
	case p == "tomorrow":
		day = now.AddDate(0, 0, 1)
	case strings.HasPrefix(p, "next "):
		wd, ok := weekdays[strings.TrimSpace(strings.TrimPrefix(p, "next "))]
		if !ok {
			return time.Time{}, false
		}
		day = nextWeekday(now, wd)
	default:
		if wd, ok := weekdays[p]; ok {
			day = nextWeekday(now, wd)
			break
		}
		if m := inDaysRe.FindStringSubmatch(p); m != nil {
			n, _ := strconv.Atoi(m[1])
			day = now.AddDate(0, 0, n)
			break
		}
		// Bare time of day ("3pm", "15:00") means today at that time.
		if m := clockRe.FindStringSubmatch(p); m != nil && m[0] == p {
			hour, minute = clockFrom(m)
			return atTime(now, hour, minute), true
		}
		return time.Time{}, false
	}

	return atTime(day, hour, minute), true
}

// nextWeekday returns the next occurrence of wd strictly after the day of t.
func nextWeekday(t time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, days)
}

func atTime(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func clockFrom(m []string) (hour, minute int) {
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch m[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute
}
