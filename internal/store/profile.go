// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store provides database access methods for artshift entities.
// Each store struct wraps a *sql.DB and exposes typed query methods.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"artshift/internal/models"
)

// ProfileStore handles usage-profile database operations.
type ProfileStore struct {
	db *sql.DB
}

// NewProfileStore creates a new ProfileStore with the given database connection.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// FindByID retrieves a profile by its UUID. Returns nil if not found.
func (s *ProfileStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p := &models.Profile{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, free_generations_used, subscription_active, created_at, updated_at
		FROM profiles WHERE id = $1
	`, id).Scan(
		&p.ID, &p.Email, &p.FreeGenerationsUsed, &p.SubscriptionActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile by id: %w", err)
	}
	return p, nil
}

// ReserveFreeGeneration takes one unit of the free allowance in a single
// statement, creating the profile row on first use. It reports false when
// the profile has already used allowance generations. Concurrent callers
// for the same profile can never reserve more than allowance in total.
func (s *ProfileStore) ReserveFreeGeneration(ctx context.Context, id uuid.UUID, allowance int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, free_generations_used)
		SELECT $1::uuid, 1 WHERE $2::int > 0
		ON CONFLICT (id) DO UPDATE
		SET free_generations_used = profiles.free_generations_used + 1, updated_at = NOW()
		WHERE profiles.free_generations_used < $2::int
	`, id, allowance)
	if err != nil {
		return false, fmt.Errorf("reserve free generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve free generation: %w", err)
	}
	return n == 1, nil
}

// ReleaseFreeGeneration gives back a unit taken by ReserveFreeGeneration
// when the generation it paid for did not succeed.
func (s *ProfileStore) ReleaseFreeGeneration(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET free_generations_used = free_generations_used - 1, updated_at = NOW()
		WHERE id = $1 AND free_generations_used > 0
	`, id)
	if err != nil {
		return fmt.Errorf("release free generation: %w", err)
	}
	return nil
}
