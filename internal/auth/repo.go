package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remitdesk/remitdesk/internal/platform/db"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindInvitation(ctx context.Context, token string) (*PendingInvitation, error)
	CreateFromInvitation(ctx context.Context, reg Registration) (*User, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id::text, email, COALESCE(name, ''), COALESCE(password_hash, ''), role, status, created_at, updated_at`

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return user, nil
}

// FindInvitation loads a pending, unexpired invitation by token.
func (r *PGRepository) FindInvitation(ctx context.Context, token string) (*PendingInvitation, error) {
	var inv PendingInvitation
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT email, role, expires_at FROM invitations
		WHERE token = $1 AND status = 'PENDING' AND expires_at > now()`, token).Scan(&inv.Email, &role, &inv.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvitationInvalid
		}
		return nil, fmt.Errorf("auth: find invitation: %w", err)
	}
	inv.Role, _ = rbac.ParseRole(role)
	return &inv, nil
}

// CreateFromInvitation creates the invited user and consumes the invitation atomically.
func (r *PGRepository) CreateFromInvitation(ctx context.Context, reg Registration) (*User, error) {
	var user *User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			invID string
			email string
			role  string
		)
		err := tx.QueryRow(ctx, `
			SELECT id::text, email, role FROM invitations
			WHERE token = $1 AND status = 'PENDING' AND expires_at > now()
			FOR UPDATE`, reg.Token).Scan(&invID, &email, &role)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvitationInvalid
			}
			return err
		}

		now := time.Now().UTC()
		row := tx.QueryRow(ctx, `
			INSERT INTO users (email, name, password_hash, role, status, onboarding_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'PENDING', $6, $6)
			RETURNING `+userColumns, email, reg.Name, reg.PasswordHash, role, StatusActive, now)
		user, err = scanUser(row)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE invitations SET status = 'ACCEPTED', accepted_at = $2, updated_at = $2 WHERE id = $1`, invID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvitationInvalid) || errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("auth: create from invitation: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role, _ = rbac.ParseRole(role)
	return &u, nil
}

var _ Repository = (*PGRepository)(nil)
