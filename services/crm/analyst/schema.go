// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyst

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var schemaYAML []byte

// Schema is the catalog of tables the planner may query.
type Schema struct {
	Tables []Table `yaml:"tables"`
}

// Table is one queryable collection.
type Table struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Columns     []Column `yaml:"columns"`
}

// Column is one queryable column.
type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// LoadSchema parses the embedded catalog. Failure is a build defect, not a
// runtime condition, so callers treat an error as fatal at startup.
func LoadSchema() (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(schemaYAML, &s); err != nil {
		return Schema{}, fmt.Errorf("parse embedded schema catalog: %w", err)
	}
	if len(s.Tables) == 0 {
		return Schema{}, fmt.Errorf("embedded schema catalog has no tables")
	}
	return s, nil
}

// HasTable reports whether the catalog contains the named table.
func (s Schema) HasTable(name string) bool {
	for _, t := range s.Tables {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Prompt renders the catalog for the planner's system prompt.
func (s Schema) Prompt() string {
	var sb strings.Builder
	for _, t := range s.Tables {
		fmt.Fprintf(&sb, "Table %s: %s\n", t.Name, t.Description)
		for _, c := range t.Columns {
			fmt.Fprintf(&sb, "  - %s (%s): %s\n", c.Name, c.Type, c.Description)
		}
	}
	return sb.String()
}
