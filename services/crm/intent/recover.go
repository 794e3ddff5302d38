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
	"encoding/json"
	"strings"
)

// RecoverIntent parses a model response into an Intent, tolerating the
// wrappers models add despite strict-JSON instructions.
//
// Description:
//
//	Tries, in order: direct parse; the contents of the first fenced code
//	block; the first top-level {...} span. When everything fails, the raw
//	text becomes a conversational reply — this is the last line of defense
//	against malformed model output and must never fail.
//
// Outputs:
//   - Intent: Always valid. NeedsTool is false on total parse failure.
func RecoverIntent(raw string) Intent {
	trimmed := strings.TrimSpace(raw)

	if it, ok := parseIntent(trimmed); ok {
		return it
	}

	if fenced, ok := fencedBlock(trimmed); ok {
		if it, ok := parseIntent(fenced); ok {
			return it
		}
	}

	if span, ok := braceSpan(trimmed); ok {
		if it, ok := parseIntent(span); ok {
			return it
		}
	}

	return Intent{NeedsTool: false, Response: trimmed}
}

// RecoverJSONObject extracts the most plausible JSON object text from a
// model response, using the same ladder as RecoverIntent: the trimmed raw
// text when it already looks like an object, else the first fenced block,
// else the first top-level {...} span. Callers unmarshal and validate the
// returned text themselves.
func RecoverJSONObject(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, true
	}
	if fenced, ok := fencedBlock(trimmed); ok && json.Valid([]byte(fenced)) {
		return fenced, true
	}
	if span, ok := braceSpan(trimmed); ok && json.Valid([]byte(span)) {
		return span, true
	}
	return "", false
}

// parseIntent unmarshals candidate JSON and checks it is intent-shaped:
// either a tool call with a name, or a conversational response. A JSON
// object that is neither (e.g. the model echoing the tool arguments bare)
// is not accepted.
func parseIntent(s string) (Intent, bool) {
	var it Intent
	if err := json.Unmarshal([]byte(s), &it); err != nil {
		return Intent{}, false
	}
	if it.NeedsTool {
		return it, it.ToolName != ""
	}
	return it, it.Response != ""
}

// fencedBlock extracts the contents of the first ``` fence, tolerating an
// optional language tag ("```json").
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		// Drop the language tag line when present.
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || isLanguageTag(tag) {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

func isLanguageTag(tag string) bool {
	for _, r := range tag {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// braceSpan returns the first top-level {...} span.
func braceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
