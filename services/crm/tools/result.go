// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

// Content is one block of a tool result. Only text blocks exist today.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the uniform envelope every tool call resolves to, error or not.
//
// Description:
//
//	Content carries the user-facing text. StructuredContent carries the
//	machine-readable payload: listed records, the created record, or
//	duplicate matches when a create was blocked. IsError marks tool-level
//	failure — including the expected, recoverable duplicate-detected
//	outcome, which additionally populates
//	StructuredContent["duplicateMatches"] so the caller can offer a merge.
type Result struct {
	Content           []Content      `json:"content"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
}

// TextResult builds a success result with a single text block.
func TextResult(text string, structured map[string]any) Result {
	return Result{
		Content:           []Content{{Type: "text", Text: text}},
		StructuredContent: structured,
	}
}

// ErrorResult builds a failure result with a single text block.
func ErrorResult(text string, structured map[string]any) Result {
	return Result{
		Content:           []Content{{Type: "text", Text: text}},
		StructuredContent: structured,
		IsError:           true,
	}
}

// Text returns the concatenated text blocks.
func (r Result) Text() string {
	switch len(r.Content) {
	case 0:
		return ""
	case 1:
		return r.Content[0].Text
	}
	var out string
	for i, c := range r.Content {
		if i > 0 {
			out += "\n"
		}
		out += c.Text
	}
	return out
}
