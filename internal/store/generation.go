// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// generation.go keeps the per-profile history of transform requests. Writes
// are best-effort: a failed insert is logged and never surfaces to the caller.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"artshift/internal/models"
)

// GenerationStore handles generation history operations.
type GenerationStore struct {
	db *sql.DB
}

// NewGenerationStore creates a new GenerationStore.
func NewGenerationStore(db *sql.DB) *GenerationStore {
	return &GenerationStore{db: db}
}

// Record appends a generation outcome to the history.
func (s *GenerationStore) Record(ctx context.Context, g *models.Generation) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (id, profile_id, provider, status, error_kind, used_free, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.ProfileID, g.Provider, string(g.Status), g.ErrorKind, g.UsedFree, g.DurationMS)
	if err != nil {
		slog.Warn("failed to record generation",
			"profile_id", g.ProfileID,
			"provider", g.Provider,
			"status", g.Status,
			"error", err,
		)
		return
	}
	slog.Debug("generation recorded", "id", g.ID, "profile_id", g.ProfileID, "status", g.Status)
}

// Recent returns the latest generations for a profile, newest first.
func (s *GenerationStore) Recent(ctx context.Context, profileID uuid.UUID, limit int) ([]models.Generation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, provider, status, error_kind, used_free, duration_ms, created_at
		FROM generations
		WHERE profile_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	entries := []models.Generation{}
	for rows.Next() {
		var g models.Generation
		var status string
		if err := rows.Scan(&g.ID, &g.ProfileID, &g.Provider, &status, &g.ErrorKind,
			&g.UsedFree, &g.DurationMS, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		g.Status = models.GenerationStatus(status)
		entries = append(entries, g)
	}
	return entries, rows.Err()
}
