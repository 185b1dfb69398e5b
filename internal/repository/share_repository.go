package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"artreview/internal/domain"
)

type ShareRepository struct {
	db *sqlx.DB
}

func NewShareRepository(db *sqlx.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

func (r *ShareRepository) Insert(ctx context.Context, link *domain.SharedLink) error {
	query := `
        INSERT INTO shared_links (
            id, token, subject_type, subject_id,
            read_only, can_comment, can_download, expires_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8
        ) RETURNING created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		link.ID,
		link.Token,
		link.SubjectType,
		link.SubjectID,
		link.ReadOnly,
		link.CanComment,
		link.CanDownload,
		link.ExpiresAt,
	).Scan(&link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert shared link: %w", translate(err))
	}
	return nil
}

// GetByToken returns the link regardless of expiry; the access gate decides
// whether it is still usable at request time.
func (r *ShareRepository) GetByToken(ctx context.Context, token string) (*domain.SharedLink, error) {
	var link domain.SharedLink
	if err := r.db.GetContext(ctx, &link, `SELECT * FROM shared_links WHERE token = $1`, token); err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (r *ShareRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM shared_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete shared link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ShareRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM shared_links WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired links: %w", err)
	}
	return result.RowsAffected()
}
