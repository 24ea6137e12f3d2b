// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationStatus is the outcome of one transform request.
type GenerationStatus string

const (
	GenerationSucceeded GenerationStatus = "succeeded"
	GenerationFailed    GenerationStatus = "failed"
)

// Generation is one row of the generation history.
type Generation struct {
	ID         uuid.UUID        `json:"id"`
	ProfileID  uuid.UUID        `json:"profile_id"`
	Provider   string           `json:"provider"`
	Status     GenerationStatus `json:"status"`
	ErrorKind  string           `json:"error_kind,omitempty"`
	UsedFree   bool             `json:"used_free"`
	DurationMS int64            `json:"duration_ms"`
	CreatedAt  time.Time        `json:"created_at"`
}
