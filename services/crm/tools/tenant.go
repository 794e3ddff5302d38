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
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianCRM/services/crm/store"
)

// Caller identifies who is invoking a tool. UserID comes from the identity
// provider; TeamID is set only when the transport layer already knows the
// tenant (e.g. from token claims) and short-circuits resolution.
type Caller struct {
	UserID string
	TeamID string
}

// TenantResolution is the explicit outcome of tenant resolution: either
// scoped to a team, or unscoped. Unscoped is a documented degraded mode —
// list reads then return only globally-unscoped rows — so it is a typed
// value callers and tests can assert on, not a silent fallback.
type TenantResolution struct {
	teamID string
	scoped bool
}

// Scoped returns a resolution bound to the given team.
func Scoped(teamID string) TenantResolution {
	return TenantResolution{teamID: teamID, scoped: true}
}

// Unscoped returns the degraded no-tenant resolution.
func Unscoped() TenantResolution {
	return TenantResolution{}
}

// TeamID returns the team id and whether the resolution is scoped.
func (t TenantResolution) TeamID() (string, bool) {
	return t.teamID, t.scoped
}

// TenantResolver resolves a user's current tenant.
//
// Thread Safety: Implementations must be safe for concurrent use.
type TenantResolver interface {
	// ResolveTenant returns the caller's current tenant. A user without a
	// tenant preference resolves to Unscoped with a nil error; only
	// lookup failures return an error.
	ResolveTenant(ctx context.Context, userID string) (TenantResolution, error)
}

// PrefsTenantResolver resolves tenants from the per-user preference record
// in the Record Store. The dispatcher only ever reads this record; team
// switching is owned by the team-management surface, not the core.
type PrefsTenantResolver struct {
	store  store.RecordStore
	logger *slog.Logger
}

// NewPrefsTenantResolver creates a resolver over the given store.
func NewPrefsTenantResolver(st store.RecordStore) (*PrefsTenantResolver, error) {
	if st == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	return &PrefsTenantResolver{store: st, logger: slog.Default()}, nil
}

// ResolveTenant implements TenantResolver.
func (r *PrefsTenantResolver) ResolveTenant(ctx context.Context, userID string) (TenantResolution, error) {
	if userID == "" {
		return Unscoped(), nil
	}

	recs, err := r.store.Select(ctx, store.CollectionUserPrefs, store.Query{
		Filters: []store.Filter{store.Eq("user_id", userID)},
		Limit:   1,
	})
	if err != nil {
		return Unscoped(), fmt.Errorf("resolve tenant for user %s: %w", userID, err)
	}
	if len(recs) == 0 {
		return Unscoped(), nil
	}

	teamID := store.StringValue(recs[0]["current_team_id"])
	if teamID == "" {
		return Unscoped(), nil
	}
	return Scoped(teamID), nil
}
