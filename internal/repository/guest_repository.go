package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"artreview/internal/domain"
)

type GuestRepository struct {
	db *sqlx.DB
}

func NewGuestRepository(db *sqlx.DB) *GuestRepository {
	return &GuestRepository{db: db}
}

func (r *GuestRepository) GetByEmail(ctx context.Context, email string) (*domain.GuestIdentity, error) {
	var g domain.GuestIdentity
	query := `SELECT * FROM guest_identities WHERE lower(email) = lower($1)`
	if err := r.db.GetContext(ctx, &g, query, email); err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

// Insert reports false when another identity already owns the address.
func (r *GuestRepository) Insert(ctx context.Context, g *domain.GuestIdentity) (bool, error) {
	query := `
        INSERT INTO guest_identities (id, email, name)
        VALUES ($1, $2, $3)
        ON CONFLICT DO NOTHING
        RETURNING created_at`

	rows, err := r.db.QueryContext(ctx, query, g.ID, g.Email, g.Name)
	if err != nil {
		return false, fmt.Errorf("failed to insert guest: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}
	if err := rows.Scan(&g.CreatedAt); err != nil {
		return false, err
	}
	return true, nil
}
