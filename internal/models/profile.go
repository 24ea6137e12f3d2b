// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the data structures that map to database tables.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user usage record. Identity and credentials are owned
// by the account service; this table only tracks image generation allowance.
type Profile struct {
	ID                  uuid.UUID `json:"id"`
	Email               string    `json:"email"`
	FreeGenerationsUsed int       `json:"free_generations_used"`
	SubscriptionActive  bool      `json:"subscription_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// HasFreeGenerations reports whether the profile is still under the given
// free allowance. Subscribers are never limited.
func (p *Profile) HasFreeGenerations(allowance int) bool {
	if p == nil {
		return allowance > 0
	}
	if p.SubscriptionActive {
		return true
	}
	return p.FreeGenerationsUsed < allowance
}
