package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remitdesk/remitdesk/internal/shared"
)

// Repository persists onboarding results on the users table.
type Repository interface {
	Find(ctx context.Context, userID string) (*UserSummary, error)
	Complete(ctx context.Context, userID, name string, details Details) (*UserSummary, error)
	CountCompleted(ctx context.Context) (int, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Find loads the account summary.
func (r *PGRepository) Find(ctx context.Context, userID string) (*UserSummary, error) {
	var u UserSummary
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, email, COALESCE(name, ''), COALESCE(onboarding_status, 'PENDING')
		FROM users WHERE id::text = $1`, userID).Scan(&u.ID, &u.Email, &u.Name, &u.OnboardingStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("onboarding: find user: %w", err)
	}
	return &u, nil
}

// Complete stores the profile and marks onboarding done.
func (r *PGRepository) Complete(ctx context.Context, userID, name string, details Details) (*UserSummary, error) {
	data, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	var u UserSummary
	err = r.pool.QueryRow(ctx, `
		UPDATE users
		SET name = $2, onboarding_data = $3, onboarding_status = 'COMPLETED', updated_at = now()
		WHERE id::text = $1
		RETURNING id::text, email, COALESCE(name, ''), onboarding_status`, userID, name, data).
		Scan(&u.ID, &u.Email, &u.Name, &u.OnboardingStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("onboarding: complete: %w", err)
	}
	return &u, nil
}

// CountCompleted counts accounts that finished onboarding.
func (r *PGRepository) CountCompleted(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE onboarding_status = 'COMPLETED'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("onboarding: count completed: %w", err)
	}
	return n, nil
}

var _ Repository = (*PGRepository)(nil)
