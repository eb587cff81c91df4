package invitations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remitdesk/remitdesk/internal/platform/db"
	"github.com/remitdesk/remitdesk/internal/rbac"
	"github.com/remitdesk/remitdesk/internal/shared"
)

// Repository persists invitations.
type Repository interface {
	Create(ctx context.Context, in NewInvitation) (*Invitation, error)
	List(ctx context.Context) ([]Invitation, error)
	Get(ctx context.Context, id string) (*Invitation, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	CountPending(ctx context.Context) (int, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectInvitation = `
	SELECT i.id::text, i.email, i.role, i.token, COALESCE(i.invited_by::text, ''), i.status,
	       i.expires_at, i.created_at, COALESCE(u.name, ''), COALESCE(u.email, '')
	FROM invitations i
	LEFT JOIN users u ON u.id = i.invited_by`

// Create inserts a pending invitation. An existing account or pending invitation for the
// address is reported as a duplicate.
func (r *PGRepository) Create(ctx context.Context, in NewInvitation) (*Invitation, error) {
	var id string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, in.Email).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrAlreadyRegistered
		}
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM invitations
			WHERE lower(email) = lower($1) AND status = 'PENDING' AND expires_at > now())`, in.Email).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrAlreadyInvited
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO invitations (email, role, token, invited_by, status, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'PENDING', $5, now(), now())
			RETURNING id::text`, in.Email, string(in.Role), in.Token, in.InvitedBy, in.ExpiresAt).Scan(&id)
		if db.IsUniqueViolation(err) {
			return ErrAlreadyInvited
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyInvited) || errors.Is(err, ErrAlreadyRegistered) {
			return nil, err
		}
		return nil, fmt.Errorf("invitations: create: %w", err)
	}
	return r.Get(ctx, id)
}

// List returns every invitation, newest first.
func (r *PGRepository) List(ctx context.Context) ([]Invitation, error) {
	rows, err := r.pool.Query(ctx, selectInvitation+` ORDER BY i.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("invitations: list: %w", err)
	}
	defer rows.Close()
	var out []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// Get loads one invitation by id.
func (r *PGRepository) Get(ctx context.Context, id string) (*Invitation, error) {
	inv, err := scanInvitation(r.pool.QueryRow(ctx, selectInvitation+` WHERE i.id::text = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("invitations: get: %w", err)
	}
	return inv, nil
}

// Revoke cancels a pending invitation.
func (r *PGRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invitations SET status = 'REVOKED', updated_at = $2
		WHERE id::text = $1 AND status = 'PENDING'`, id, at)
	if err != nil {
		return fmt.Errorf("invitations: revoke: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// ExpireStale flips pending invitations whose deadline has passed.
func (r *PGRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invitations SET status = 'EXPIRED', updated_at = $1
		WHERE status = 'PENDING' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("invitations: expire: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountPending counts live pending invitations.
func (r *PGRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM invitations WHERE status = 'PENDING' AND expires_at > now()`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("invitations: count pending: %w", err)
	}
	return n, nil
}

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	var role, status string
	if err := row.Scan(&inv.ID, &inv.Email, &role, &inv.Token, &inv.InvitedBy, &status,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.InvitedByName, &inv.InvitedByEmail); err != nil {
		return nil, err
	}
	inv.Role, _ = rbac.ParseRole(role)
	inv.Status = Status(status)
	return &inv, nil
}

var _ Repository = (*PGRepository)(nil)
