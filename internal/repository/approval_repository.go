package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"artreview/internal/domain"
)

type approvalRequestRow struct {
	ID                  uuid.UUID      `db:"id"`
	ArtVersionID        uuid.UUID      `db:"art_version_id"`
	Rule                domain.Rule    `db:"rule"`
	RequiredApproverIDs pq.StringArray `db:"required_approver_ids"`
	OpenedAt            time.Time      `db:"opened_at"`
	ClosedAt            *time.Time     `db:"closed_at"`
	Outcome             *string        `db:"outcome"`
	OverriddenBy        *string        `db:"overridden_by"`
}

func (row approvalRequestRow) toDomain() domain.ApprovalRequest {
	req := domain.ApprovalRequest{
		ID:                  row.ID,
		ArtVersionID:        row.ArtVersionID,
		Rule:                row.Rule,
		RequiredApproverIDs: []string(row.RequiredApproverIDs),
		OpenedAt:            row.OpenedAt,
		ClosedAt:            row.ClosedAt,
		OverriddenBy:        row.OverriddenBy,
	}
	if row.Outcome != nil {
		o := domain.Outcome(*row.Outcome)
		req.Outcome = &o
	}
	return req
}

type ApprovalRepository struct {
	db *sqlx.DB
}

func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// OpenRequest inserts a request and moves its version to IN_REVIEW. The version row is
// locked so a concurrent opener or override observes the new status.
func (r *ApprovalRepository) OpenRequest(ctx context.Context, req *domain.ApprovalRequest) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var v domain.ArtVersion
	if err := tx.GetContext(ctx, &v, `SELECT * FROM art_versions WHERE id = $1 FOR UPDATE`, req.ArtVersionID); err != nil {
		return translate(err)
	}
	var open bool
	err = tx.GetContext(ctx, &open, `
        SELECT EXISTS (SELECT 1 FROM approval_requests WHERE art_version_id = $1 AND closed_at IS NULL)`,
		req.ArtVersionID)
	if err != nil {
		return fmt.Errorf("failed to check open requests: %w", err)
	}
	if open {
		return fmt.Errorf("%w: version already has an open approval request", domain.ErrConflict)
	}
	if !v.Status.Reviewable() {
		return fmt.Errorf("%w: version is %s", domain.ErrInvalidState, v.Status)
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO approval_requests (id, art_version_id, rule, required_approver_ids, opened_at)
        VALUES ($1, $2, $3, $4, $5)`,
		req.ID, req.ArtVersionID, req.Rule, pq.Array(req.RequiredApproverIDs), req.OpenedAt)
	if err != nil {
		return fmt.Errorf("failed to insert approval request: %w", translate(err))
	}

	if err := setVersionStatus(ctx, tx, v, domain.StatusInReview); err != nil {
		return err
	}
	return tx.Commit()
}

func setVersionStatus(ctx context.Context, tx *sqlx.Tx, v domain.ArtVersion, status domain.VersionStatus) error {
	if _, err := tx.ExecContext(ctx, `UPDATE art_versions SET status = $1 WHERE id = $2`, status, v.ID); err != nil {
		return fmt.Errorf("failed to update version status: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
        UPDATE arts
        SET current_status = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2 AND current_version_number = $3`,
		status, v.ArtID, v.VersionNumber)
	if err != nil {
		return fmt.Errorf("failed to update art status: %w", err)
	}
	return nil
}

func (r *ApprovalRepository) GetRequest(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	var row approvalRequestRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM approval_requests WHERE id = $1`, id); err != nil {
		return nil, translate(err)
	}
	req := row.toDomain()
	return &req, nil
}

func (r *ApprovalRepository) LatestRequestForVersion(ctx context.Context, versionID uuid.UUID) (*domain.ApprovalRequest, error) {
	var row approvalRequestRow
	query := `
        SELECT * FROM approval_requests
        WHERE art_version_id = $1
        ORDER BY opened_at DESC, id DESC
        LIMIT 1`
	if err := r.db.GetContext(ctx, &row, query, versionID); err != nil {
		return nil, translate(err)
	}
	req := row.toDomain()
	return &req, nil
}

func (r *ApprovalRepository) ListDecisions(ctx context.Context, requestID uuid.UUID) ([]domain.ApprovalDecision, error) {
	return listDecisions(ctx, r.db, requestID)
}

func listDecisions(ctx context.Context, q sqlx.QueryerContext, requestID uuid.UUID) ([]domain.ApprovalDecision, error) {
	decisions := []domain.ApprovalDecision{}
	query := `
        SELECT * FROM approval_decisions
        WHERE approval_request_id = $1
        ORDER BY decided_at, approver_ref`
	if err := sqlx.SelectContext(ctx, q, &decisions, query, requestID); err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return decisions, nil
}

// Decide upserts one approver's decision and resolves the request in the same
// transaction. The request row is locked first, so deciders on the same request
// are serialised and exactly one of them observes the terminal outcome.
func (r *ApprovalRepository) Decide(ctx context.Context, d domain.ApprovalDecision, resolve domain.Resolver) (*domain.DecisionResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row approvalRequestRow
	if err := tx.GetContext(ctx, &row, `SELECT * FROM approval_requests WHERE id = $1 FOR UPDATE`, d.ApprovalRequestID); err != nil {
		return nil, translate(err)
	}
	req := row.toDomain()
	if req.Closed() {
		return nil, domain.ErrRequestClosed
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO approval_decisions (id, approval_request_id, approver_ref, decision, comment, decided_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (approval_request_id, approver_ref)
        DO UPDATE SET decision = EXCLUDED.decision,
                      comment = EXCLUDED.comment,
                      decided_at = EXCLUDED.decided_at`,
		d.ID, d.ApprovalRequestID, d.ApproverRef, d.Decision, d.Comment, d.DecidedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert decision: %w", translate(err))
	}

	decisions, err := listDecisions(ctx, tx, req.ID)
	if err != nil {
		return nil, err
	}

	result := &domain.DecisionResult{Request: req, Decisions: decisions, Outcome: resolve(req, decisions)}
	if result.Outcome.Terminal() {
		if err := closeRequest(ctx, tx, &result.Request, result.Outcome, d.DecidedAt, nil); err != nil {
			return nil, err
		}
		var v domain.ArtVersion
		if err := tx.GetContext(ctx, &v, `SELECT * FROM art_versions WHERE id = $1 FOR UPDATE`, req.ArtVersionID); err != nil {
			return nil, translate(err)
		}
		if err := setVersionStatus(ctx, tx, v, result.Outcome.VersionStatus()); err != nil {
			return nil, err
		}
		result.Closed = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit decision: %w", err)
	}
	return result, nil
}

func closeRequest(ctx context.Context, tx *sqlx.Tx, req *domain.ApprovalRequest, outcome domain.Outcome, at time.Time, overriddenBy *string) error {
	_, err := tx.ExecContext(ctx, `
        UPDATE approval_requests
        SET closed_at = $1, outcome = $2, overridden_by = $3
        WHERE id = $4`,
		at, outcome, overriddenBy, req.ID)
	if err != nil {
		return fmt.Errorf("failed to close approval request: %w", err)
	}
	req.ClosedAt = &at
	req.Outcome = &outcome
	req.OverriddenBy = overriddenBy
	return nil
}

// Override forces the version to APPROVED, stamps the attribution and closes any
// open request with outcome APPROVED.
func (r *ApprovalRepository) Override(ctx context.Context, o domain.Override) (*domain.ArtVersion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var v domain.ArtVersion
	if err := tx.GetContext(ctx, &v, `SELECT * FROM art_versions WHERE id = $1 FOR UPDATE`, o.VersionID); err != nil {
		return nil, translate(err)
	}

	var open approvalRequestRow
	err = tx.GetContext(ctx, &open, `
        SELECT * FROM approval_requests
        WHERE art_version_id = $1 AND closed_at IS NULL
        FOR UPDATE`, v.ID)
	if err != nil && !errors.Is(translate(err), domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load open request: %w", err)
	}
	if err == nil {
		req := open.toDomain()
		actor := o.ActorRef
		if err := closeRequest(ctx, tx, &req, domain.OutcomeApproved, o.At, &actor); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE art_versions SET override_by = $1, override_at = $2 WHERE id = $3`,
		o.ActorRef, o.At, v.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record override: %w", err)
	}
	if err := setVersionStatus(ctx, tx, v, domain.StatusApproved); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit override: %w", err)
	}

	actor, at := o.ActorRef, o.At
	v.Status = domain.StatusApproved
	v.OverrideBy = &actor
	v.OverrideAt = &at
	return &v, nil
}
