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

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/go-playground/validator/v10"
)

// The intent extractor hands the dispatcher untrusted argument bags. Each
// tool decodes into its own typed struct here and is validated before any
// store call, so a hallucinated or incomplete extraction surfaces as a
// clarification, never as a half-written record.

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrInvalidArgs wraps validation failures so the dispatcher can answer
// with a clarifying question instead of a hard error.
var ErrInvalidArgs = errors.New("invalid tool arguments")

// tenantCarrier is implemented by every tenant-scoped argument struct so
// the dispatcher can inject the resolved team id uniformly.
type tenantCarrier interface {
	teamID() string
	setTeamID(string)
}

// =============================================================================
// Accounts
// =============================================================================

type CreateAccountArgs struct {
	Name       string `json:"name" validate:"required"`
	Industry   string `json:"industry,omitempty"`
	Website    string `json:"website,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	TeamID     string `json:"team_id,omitempty"`
}

func (a *CreateAccountArgs) teamID() string { return a.TeamID }
func (a *CreateAccountArgs) setTeamID(id string) { a.TeamID = id }

func (a *CreateAccountArgs) record() store.Record {
	rec := store.Record{"name": a.Name}
	putNonEmpty(rec, "industry", a.Industry)
	putNonEmpty(rec, "website", a.Website)
	putNonEmpty(rec, "assigned_to", a.AssignedTo)
	putNonEmpty(rec, "team_id", a.TeamID)
	return rec
}

type UpdateAccountArgs struct {
	ID         string  `json:"id" validate:"required"`
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Industry   *string `json:"industry,omitempty"`
	Website    *string `json:"website,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
	TeamID     string  `json:"team_id,omitempty"`
}

func (a *UpdateAccountArgs) teamID() string { return a.TeamID }
func (a *UpdateAccountArgs) setTeamID(id string) { a.TeamID = id }

func (a *UpdateAccountArgs) patch() store.Record {
	rec := store.Record{}
	putPtr(rec, "name", a.Name)
	putPtr(rec, "industry", a.Industry)
	putPtr(rec, "website", a.Website)
	putPtr(rec, "assigned_to", a.AssignedTo)
	return rec
}

type ListAccountsArgs struct {
	Industry   string `json:"industry,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Limit      int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	TeamID     string `json:"team_id,omitempty"`
}

func (a *ListAccountsArgs) teamID() string { return a.TeamID }
func (a *ListAccountsArgs) setTeamID(id string) { a.TeamID = id }

// =============================================================================
// Contacts
// =============================================================================

type CreateContactArgs struct {
	FirstName  string `json:"first_name" validate:"required"`
	LastName   string `json:"last_name" validate:"required"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty"`
	Role       string `json:"role,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	TeamID     string `json:"team_id,omitempty"`
}

func (a *CreateContactArgs) teamID() string { return a.TeamID }
func (a *CreateContactArgs) setTeamID(id string) { a.TeamID = id }

func (a *CreateContactArgs) record() store.Record {
	rec := store.Record{
		"first_name": a.FirstName,
		"last_name":  a.LastName,
	}
	putNonEmpty(rec, "email", a.Email)
	putNonEmpty(rec, "phone", a.Phone)
	putNonEmpty(rec, "role", a.Role)
	putNonEmpty(rec, "account_id", a.AccountID)
	putNonEmpty(rec, "assigned_to", a.AssignedTo)
	putNonEmpty(rec, "team_id", a.TeamID)
	return rec
}

type UpdateContactArgs struct {
	ID         string  `json:"id" validate:"required"`
	FirstName  *string `json:"first_name,omitempty" validate:"omitempty,min=1"`
	LastName   *string `json:"last_name,omitempty" validate:"omitempty,min=1"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Role       *string `json:"role,omitempty"`
	AccountID  *string `json:"account_id,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
	TeamID     string  `json:"team_id,omitempty"`
}

func (a *UpdateContactArgs) teamID() string { return a.TeamID }
func (a *UpdateContactArgs) setTeamID(id string) { a.TeamID = id }

func (a *UpdateContactArgs) patch() store.Record {
	rec := store.Record{}
	putPtr(rec, "first_name", a.FirstName)
	putPtr(rec, "last_name", a.LastName)
	putPtr(rec, "email", a.Email)
	putPtr(rec, "phone", a.Phone)
	putPtr(rec, "role", a.Role)
	putPtr(rec, "account_id", a.AccountID)
	putPtr(rec, "assigned_to", a.AssignedTo)
	return rec
}

type ListContactsArgs struct {
	AccountID  string `json:"account_id,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Limit      int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	TeamID     string `json:"team_id,omitempty"`
}

func (a *ListContactsArgs) teamID() string { return a.TeamID }
func (a *ListContactsArgs) setTeamID(id string) { a.TeamID = id }

// =============================================================================
// Deals
// =============================================================================

type CreateDealArgs struct {
	Name       string   `json:"name" validate:"required"`
	Amount     *float64 `json:"amount,omitempty" validate:"omitempty,gte=0"`
	Stage      string   `json:"stage,omitempty"`
	Status     string   `json:"status,omitempty" validate:"omitempty,oneof=open won lost"`
	AccountID  string   `json:"account_id,omitempty"`
	PipelineID string   `json:"pipeline_id,omitempty"`
	CloseDate  string   `json:"close_date,omitempty"`
	AssignedTo string   `json:"assigned_to,omitempty"`
	TeamID     string   `json:"team_id,omitempty"`
}

func (a *CreateDealArgs) teamID() string { return a.TeamID }
func (a *CreateDealArgs) setTeamID(id string) { a.TeamID = id }

func (a *CreateDealArgs) normalize() {
	if a.Stage == "" {
		a.Stage = "Lead"
	}
	if a.Status == "" {
		a.Status = "open"
	}
}

func (a *CreateDealArgs) record() store.Record {
	rec := store.Record{
		"name":   a.Name,
		"stage":  a.Stage,
		"status": a.Status,
	}
	if a.Amount != nil {
		rec["amount"] = *a.Amount
	}
	putNonEmpty(rec, "account_id", a.AccountID)
	putNonEmpty(rec, "pipeline_id", a.PipelineID)
	putNonEmpty(rec, "close_date", a.CloseDate)
	putNonEmpty(rec, "assigned_to", a.AssignedTo)
	putNonEmpty(rec, "team_id", a.TeamID)
	return rec
}

type UpdateDealArgs struct {
	ID         string   `json:"id" validate:"required"`
	Name       *string  `json:"name,omitempty" validate:"omitempty,min=1"`
	Amount     *float64 `json:"amount,omitempty" validate:"omitempty,gte=0"`
	Stage      *string  `json:"stage,omitempty"`
	Status     *string  `json:"status,omitempty" validate:"omitempty,oneof=open won lost"`
	AccountID  *string  `json:"account_id,omitempty"`
	CloseDate  *string  `json:"close_date,omitempty"`
	AssignedTo *string  `json:"assigned_to,omitempty"`
	TeamID     string   `json:"team_id,omitempty"`
}

func (a *UpdateDealArgs) teamID() string { return a.TeamID }
func (a *UpdateDealArgs) setTeamID(id string) { a.TeamID = id }

func (a *UpdateDealArgs) patch() store.Record {
	rec := store.Record{}
	putPtr(rec, "name", a.Name)
	if a.Amount != nil {
		rec["amount"] = *a.Amount
	}
	putPtr(rec, "stage", a.Stage)
	putPtr(rec, "status", a.Status)
	putPtr(rec, "account_id", a.AccountID)
	putPtr(rec, "close_date", a.CloseDate)
	putPtr(rec, "assigned_to", a.AssignedTo)
	return rec
}

type ListDealsArgs struct {
	Stage     string `json:"stage,omitempty"`
	Status    string `json:"status,omitempty" validate:"omitempty,oneof=open won lost"`
	AccountID string `json:"account_id,omitempty"`
	Limit     int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	TeamID    string `json:"team_id,omitempty"`
}

func (a *ListDealsArgs) teamID() string { return a.TeamID }
func (a *ListDealsArgs) setTeamID(id string) { a.TeamID = id }

// =============================================================================
// Interactions
// =============================================================================

type CreateInteractionArgs struct {
	Type       string `json:"type" validate:"required,oneof=call meeting email note"`
	Summary    string `json:"summary,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Sentiment  string `json:"sentiment,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
	ContactID  string `json:"contact_id,omitempty"`
	DealID     string `json:"deal_id,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	TeamID     string `json:"team_id,omitempty"`
}

func (a *CreateInteractionArgs) teamID() string { return a.TeamID }
func (a *CreateInteractionArgs) setTeamID(id string) { a.TeamID = id }

func (a *CreateInteractionArgs) normalize() {
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))
}

func (a *CreateInteractionArgs) record() store.Record {
	rec := store.Record{"type": a.Type}
	putNonEmpty(rec, "summary", a.Summary)
	putNonEmpty(rec, "transcript", a.Transcript)
	putNonEmpty(rec, "sentiment", a.Sentiment)
	putNonEmpty(rec, "due_date", a.DueDate)
	putNonEmpty(rec, "contact_id", a.ContactID)
	putNonEmpty(rec, "deal_id", a.DealID)
	putNonEmpty(rec, "assigned_to", a.AssignedTo)
	putNonEmpty(rec, "team_id", a.TeamID)
	return rec
}

type UpdateInteractionArgs struct {
	ID         string  `json:"id" validate:"required"`
	Type       *string `json:"type,omitempty" validate:"omitempty,oneof=call meeting email note"`
	Summary    *string `json:"summary,omitempty"`
	Sentiment  *string `json:"sentiment,omitempty"`
	DueDate    *string `json:"due_date,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
	TeamID     string  `json:"team_id,omitempty"`
}

func (a *UpdateInteractionArgs) teamID() string { return a.TeamID }
func (a *UpdateInteractionArgs) setTeamID(id string) { a.TeamID = id }

func (a *UpdateInteractionArgs) patch() store.Record {
	rec := store.Record{}
	putPtr(rec, "type", a.Type)
	putPtr(rec, "summary", a.Summary)
	putPtr(rec, "sentiment", a.Sentiment)
	putPtr(rec, "due_date", a.DueDate)
	putPtr(rec, "assigned_to", a.AssignedTo)
	return rec
}

type ListInteractionsArgs struct {
	Type      string `json:"type,omitempty" validate:"omitempty,oneof=call meeting email note"`
	ContactID string `json:"contact_id,omitempty"`
	DealID    string `json:"deal_id,omitempty"`
	Limit     int    `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	TeamID    string `json:"team_id,omitempty"`
}

func (a *ListInteractionsArgs) teamID() string { return a.TeamID }
func (a *ListInteractionsArgs) setTeamID(id string) { a.TeamID = id }

// =============================================================================
// Tags
// =============================================================================

type CreateTagArgs struct {
	TagName    string `json:"tag_name" validate:"required"`
	Color      string `json:"color,omitempty"`
	EntityType string `json:"entity_type,omitempty" validate:"omitempty,oneof=all account contact deal interaction"`
	TeamID     string `json:"team_id,omitempty"`
}

func (a *CreateTagArgs) teamID() string { return a.TeamID }
func (a *CreateTagArgs) setTeamID(id string) { a.TeamID = id }

func (a *CreateTagArgs) normalize() {
	if a.EntityType == "" {
		a.EntityType = "all"
	}
	if a.Color == "" {
		a.Color = "#6b7280"
	}
}

func (a *CreateTagArgs) record() store.Record {
	rec := store.Record{
		"tag_name":    a.TagName,
		"color":       a.Color,
		"entity_type": a.EntityType,
		"usage_count": 0,
	}
	putNonEmpty(rec, "team_id", a.TeamID)
	return rec
}

type ListTagsArgs struct {
	EntityType string `json:"entity_type,omitempty"`
	TeamID     string `json:"team_id,omitempty"`
}

func (a *ListTagsArgs) teamID() string { return a.TeamID }
func (a *ListTagsArgs) setTeamID(id string) { a.TeamID = id }

type AttachTagArgs struct {
	TagID      string `json:"tag_id" validate:"required"`
	EntityType string `json:"entity_type" validate:"required,oneof=account contact deal interaction"`
	EntityID   string `json:"entity_id" validate:"required"`
}

type MergeTagsArgs struct {
	SourceTagID string `json:"source_tag_id" validate:"required"`
	TargetTagID string `json:"target_tag_id" validate:"required,nefield=SourceTagID"`
}

// =============================================================================
// Misc
// =============================================================================

// DeleteArgs is shared by every delete_* tool.
type DeleteArgs struct {
	ID string `json:"id" validate:"required"`
}

type SearchRecordsArgs struct {
	Collection string `json:"collection" validate:"required,oneof=accounts contacts deals"`
	Query      string `json:"query" validate:"required"`
	Limit      int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	TeamID     string `json:"team_id,omitempty"`
}

func (a *SearchRecordsArgs) teamID() string { return a.TeamID }
func (a *SearchRecordsArgs) setTeamID(id string) { a.TeamID = id }

// =============================================================================
// Decoding
// =============================================================================

// decode unmarshals raw arguments into T, applies defaults, and validates.
// Failures wrap ErrInvalidArgs with a user-facing description of what is
// missing or wrong.
func decode[T any](raw json.RawMessage) (*T, error) {
	v := new(T)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("%w: arguments are not valid JSON: %v", ErrInvalidArgs, err)
		}
	}
	if n, ok := any(v).(interface{ normalize() }); ok {
		n.normalize()
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidArgs, describeValidation(verrs))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return v, nil
}

// describeValidation renders validator errors as a clarifying sentence the
// assistant can show the user verbatim.
func describeValidation(verrs validator.ValidationErrors) string {
	var missing, invalid []string
	for _, fe := range verrs {
		field := jsonFieldName(fe)
		if fe.Tag() == "required" {
			missing = append(missing, field)
		} else {
			invalid = append(invalid, field)
		}
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required field(s): "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid value for: "+strings.Join(invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// jsonFieldName converts a Go field name to its snake_case JSON name.
// validator reports struct field names; users see JSON names.
func jsonFieldName(fe validator.FieldError) string {
	var b strings.Builder
	for i, r := range fe.Field() {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func putNonEmpty(rec store.Record, key, val string) {
	if val != "" {
		rec[key] = val
	}
}

func putPtr(rec store.Record, key string, val *string) {
	if val != nil {
		rec[key] = *val
	}
}
