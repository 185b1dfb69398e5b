package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"artreview/internal/domain"
)

type ArtRepository struct {
	db *sqlx.DB
}

func NewArtRepository(db *sqlx.DB) *ArtRepository {
	return &ArtRepository{db: db}
}

func (r *ArtRepository) CreateArt(ctx context.Context, art *domain.Art) error {
	query := `
        INSERT INTO arts (id, name, kind, project_id, author_id, current_version_number, current_status)
        VALUES ($1, $2, $3, $4, $5, 0, $6)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		art.ID,
		art.Name,
		art.Kind,
		art.ProjectID,
		art.AuthorID,
		art.CurrentStatus,
	).Scan(&art.CreatedAt, &art.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert art: %w", translate(err))
	}
	return nil
}

func (r *ArtRepository) GetArt(ctx context.Context, id uuid.UUID) (*domain.Art, error) {
	var art domain.Art
	if err := r.db.GetContext(ctx, &art, `SELECT * FROM arts WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	return &art, nil
}

func (r *ArtRepository) GetVersion(ctx context.Context, artID uuid.UUID, number int) (*domain.ArtVersion, error) {
	var v domain.ArtVersion
	query := `SELECT * FROM art_versions WHERE art_id = $1 AND version_number = $2`
	if err := r.db.GetContext(ctx, &v, query, artID, number); err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *ArtRepository) GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.ArtVersion, error) {
	var v domain.ArtVersion
	if err := r.db.GetContext(ctx, &v, `SELECT * FROM art_versions WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *ArtRepository) ListVersions(ctx context.Context, artID uuid.UUID) ([]domain.ArtVersion, error) {
	versions := []domain.ArtVersion{}
	query := `SELECT * FROM art_versions WHERE art_id = $1 ORDER BY version_number`
	if err := r.db.SelectContext(ctx, &versions, query, artID); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// InsertVersion writes the version, its files and the art's denormalised pointer in
// one transaction. The art row only advances when its current number is exactly one
// below the new version; otherwise another writer got there first and ErrConflict
// is returned.
func (r *ArtRepository) InsertVersion(ctx context.Context, v *domain.ArtVersion, files []domain.ArtFile) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        UPDATE arts
        SET current_version_number = $1,
            current_status = $2,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $3 AND current_version_number = $4`,
		v.VersionNumber, v.Status, v.ArtID, v.VersionNumber-1)
	if err != nil {
		return fmt.Errorf("failed to advance art: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM arts WHERE id = $1)`, v.ArtID); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: version %d already taken", domain.ErrConflict, v.VersionNumber)
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO art_versions (id, art_id, version_number, status, source_file_ref, preview_file_ref)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at`,
		v.ID, v.ArtID, v.VersionNumber, v.Status, v.SourceFileRef, v.PreviewFileRef,
	).Scan(&v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", translate(err))
	}

	for i := range files {
		if err := insertFile(ctx, tx, &files[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *ArtRepository) InsertFile(ctx context.Context, f *domain.ArtFile) error {
	return insertFile(ctx, r.db, f)
}

func insertFile(ctx context.Context, q sqlx.QueryerContext, f *domain.ArtFile) error {
	query := `
        INSERT INTO art_files (id, art_id, version_number, kind, path, mime, size_bytes, width, height, duration_seconds)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at`

	err := q.QueryRowxContext(ctx, query,
		f.ID, f.ArtID, f.VersionNumber, f.Kind, f.Path, f.MIME, f.SizeBytes,
		f.Width, f.Height, f.DurationSeconds,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s file: %w", f.Kind, translate(err))
	}
	return nil
}

func (r *ArtRepository) ListFiles(ctx context.Context, artID uuid.UUID, number int) ([]domain.ArtFile, error) {
	files := []domain.ArtFile{}
	query := `
        SELECT * FROM art_files
        WHERE art_id = $1 AND version_number = $2
        ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &files, query, artID, number); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}
