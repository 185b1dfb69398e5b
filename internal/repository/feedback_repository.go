package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"artreview/internal/domain"
)

type feedbackRow struct {
	ID           uuid.UUID             `db:"id"`
	ArtVersionID uuid.UUID             `db:"art_version_id"`
	AuthorRef    string                `db:"author_ref"`
	Kind         domain.FeedbackKind   `db:"kind"`
	Content      *string               `db:"content"`
	AudioRef     *string               `db:"audio_ref"`
	RelX         *float64              `db:"rel_x"`
	RelY         *float64              `db:"rel_y"`
	AbsX         *float64              `db:"abs_x"`
	AbsY         *float64              `db:"abs_y"`
	Status       domain.FeedbackStatus `db:"status"`
	CreatedAt    time.Time             `db:"created_at"`
}

func (row feedbackRow) toDomain() domain.FeedbackItem {
	item := domain.FeedbackItem{
		ID:           row.ID,
		ArtVersionID: row.ArtVersionID,
		AuthorRef:    row.AuthorRef,
		Kind:         row.Kind,
		Content:      row.Content,
		AudioRef:     row.AudioRef,
		Status:       row.Status,
		CreatedAt:    row.CreatedAt,
	}
	if row.RelX != nil && row.RelY != nil && row.AbsX != nil && row.AbsY != nil {
		item.Position = &domain.Position{RelX: *row.RelX, RelY: *row.RelY, AbsX: *row.AbsX, AbsY: *row.AbsY}
	}
	return item
}

type FeedbackRepository struct {
	db *sqlx.DB
}

func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Insert(ctx context.Context, item *domain.FeedbackItem) error {
	var relX, relY, absX, absY *float64
	if p := item.Position; p != nil {
		relX, relY, absX, absY = &p.RelX, &p.RelY, &p.AbsX, &p.AbsY
	}

	query := `
        INSERT INTO feedback_items (
            id, art_version_id, author_ref, kind, content, audio_ref,
            rel_x, rel_y, abs_x, abs_y, status, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.ArtVersionID, item.AuthorRef, item.Kind, item.Content, item.AudioRef,
		relX, relY, absX, absY, item.Status, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", translate(err))
	}
	return nil
}

func (r *FeedbackRepository) Get(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error) {
	var row feedbackRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM feedback_items WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	item := row.toDomain()
	return &item, nil
}

func (r *FeedbackRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.FeedbackStatus) (*domain.FeedbackItem, error) {
	var row feedbackRow
	query := `UPDATE feedback_items SET status = $1 WHERE id = $2 RETURNING *`
	if err := r.db.GetContext(ctx, &row, query, status, id); err != nil {
		return nil, translate(err)
	}
	item := row.toDomain()
	return &item, nil
}

func (r *FeedbackRepository) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]domain.FeedbackItem, error) {
	var rows []feedbackRow
	query := `
        SELECT * FROM feedback_items
        WHERE art_version_id = $1
        ORDER BY created_at, id`
	if err := r.db.SelectContext(ctx, &rows, query, versionID); err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}

	items := make([]domain.FeedbackItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}
