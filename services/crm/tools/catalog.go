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

// Tool name constants. The set is closed: Dispatch rejects anything else,
// and decodeArgs maps each name to its typed argument struct.
const (
	ToolCreateAccount = "create_account"
	ToolUpdateAccount = "update_account"
	ToolListAccounts  = "list_accounts"
	ToolDeleteAccount = "delete_account"

	ToolCreateContact = "create_contact"
	ToolUpdateContact = "update_contact"
	ToolListContacts  = "list_contacts"
	ToolDeleteContact = "delete_contact"

	ToolCreateDeal = "create_deal"
	ToolUpdateDeal = "update_deal"
	ToolListDeals  = "list_deals"
	ToolDeleteDeal = "delete_deal"

	ToolCreateInteraction = "create_interaction"
	ToolUpdateInteraction = "update_interaction"
	ToolListInteractions  = "list_interactions"
	ToolDeleteInteraction = "delete_interaction"

	ToolCreateTag = "create_tag"
	ToolListTags  = "list_tags"
	ToolAttachTag = "attach_tag"
	ToolMergeTags = "merge_tags"

	ToolSearchRecords = "search_records"
)

// ToolInfo is one catalog entry, surfaced to clients and to the intent
// extractor's prompt.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog returns every dispatchable tool.
func Catalog() []ToolInfo {
	return []ToolInfo{
		{ToolCreateAccount, "Create a company/account. Requires name; optional industry, website, assigned_to."},
		{ToolUpdateAccount, "Update an account by id."},
		{ToolListAccounts, "List accounts, optionally filtered by industry or assigned_to."},
		{ToolDeleteAccount, "Delete an account by id."},
		{ToolCreateContact, "Create a person/contact. Requires first_name and last_name; optional email, phone, role, account_id."},
		{ToolUpdateContact, "Update a contact by id."},
		{ToolListContacts, "List contacts, optionally filtered by account_id or assigned_to."},
		{ToolDeleteContact, "Delete a contact by id."},
		{ToolCreateDeal, "Create a deal/opportunity. Requires name; optional amount, stage, status, account_id, close_date."},
		{ToolUpdateDeal, "Update a deal by id (stage, status, amount, close_date)."},
		{ToolListDeals, "List deals, optionally filtered by stage, status, or account_id."},
		{ToolDeleteDeal, "Delete a deal by id."},
		{ToolCreateInteraction, "Log a task or activity: call, meeting, email, or note. Optional due_date, contact_id, deal_id."},
		{ToolUpdateInteraction, "Update an interaction by id."},
		{ToolListInteractions, "List interactions, optionally filtered by type, contact_id, or deal_id."},
		{ToolDeleteInteraction, "Delete an interaction by id."},
		{ToolCreateTag, "Create a tag. Requires tag_name; optional color and entity_type."},
		{ToolListTags, "List tags."},
		{ToolAttachTag, "Attach a tag to a record by tag_id; increments the tag's usage count."},
		{ToolMergeTags, "Merge one tag into another, combining usage counts."},
		{ToolSearchRecords, "Search a collection by name text when the user refers to a record ambiguously."},
	}
}

// tenantScoped lists the operations eligible for automatic tenant-id
// injection: every create, update, and list on tenant-owned collections.
var tenantScoped = map[string]bool{
	ToolCreateAccount:     true,
	ToolUpdateAccount:     true,
	ToolListAccounts:      true,
	ToolCreateContact:     true,
	ToolUpdateContact:     true,
	ToolListContacts:      true,
	ToolCreateDeal:        true,
	ToolUpdateDeal:        true,
	ToolListDeals:         true,
	ToolCreateInteraction: true,
	ToolUpdateInteraction: true,
	ToolListInteractions:  true,
	ToolCreateTag:         true,
	ToolListTags:          true,
	ToolSearchRecords:     true,
}

// tenantRequired lists the list-style reads that leak cross-tenant data if
// dispatched unscoped. Resolution failure still dispatches them, but the
// dispatcher constrains the read to rows carrying no team_id at all
// (documented degraded behavior); the degradation is counted, logged, and
// surfaced via TenantResolution.
var tenantRequired = map[string]bool{
	ToolListAccounts:     true,
	ToolListContacts:     true,
	ToolListDeals:        true,
	ToolListInteractions: true,
	ToolListTags:         true,
	ToolSearchRecords:    true,
}

// IsTenantScoped reports whether a tool is eligible for tenant injection.
func IsTenantScoped(name string) bool { return tenantScoped[name] }

// IsTenantRequired reports whether a tool must be tenant-scoped to avoid
// cross-tenant reads.
func IsTenantRequired(name string) bool { return tenantRequired[name] }
