package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"artreview/internal/domain"
)

const maxCommentLength = 4000

type DecideInput struct {
	RequestID uuid.UUID
	Actor     domain.Actor
	Decision  domain.Decision
	Comment   *string
}

// ApprovalSummary is the freshly aggregated state of a request.
type ApprovalSummary struct {
	Request   domain.ApprovalRequest `json:"request"`
	Outcome   domain.Outcome         `json:"outcome"`
	Approvers []domain.ApproverState `json:"approvers"`
}

type ApprovalService struct {
	arts      ArtStore
	approvals ApprovalStore
	clock     Clock
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

func NewApprovalService(arts ArtStore, approvals ApprovalStore, clock Clock, logger *slog.Logger) *ApprovalService {
	return &ApprovalService{
		arts:      arts,
		approvals: approvals,
		clock:     clock,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With(slog.String("component", "approval")),
	}
}

// OpenRequest starts the review cycle of a version. At most one request per
// version is open at a time.
func (s *ApprovalService) OpenRequest(ctx context.Context, versionID uuid.UUID, rule domain.Rule, approverIDs []string) (*domain.ApprovalRequest, error) {
	if !rule.Valid() {
		return nil, domain.Validationf("unknown rule %q", rule)
	}
	approvers := normalizeApprovers(approverIDs)
	if len(approvers) == 0 {
		return nil, fmt.Errorf("%w: at least one approver is required", domain.ErrInvalidState)
	}

	v, err := s.arts.GetVersionByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	// Checked before the status, which is always IN_REVIEW while a request is open.
	latest, err := s.approvals.LatestRequestForVersion(ctx, versionID)
	switch {
	case err == nil && !latest.Closed():
		return nil, fmt.Errorf("%w: version already has an open approval request", domain.ErrConflict)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	if !v.Status.Reviewable() {
		return nil, fmt.Errorf("%w: version is %s", domain.ErrInvalidState, v.Status)
	}

	req := &domain.ApprovalRequest{
		ID:                  uuid.New(),
		ArtVersionID:        versionID,
		Rule:                rule,
		RequiredApproverIDs: approvers,
		OpenedAt:            s.clock.Now(),
	}
	if err := s.approvals.OpenRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("approval request opened",
		slog.String("request_id", req.ID.String()),
		slog.String("version_id", versionID.String()),
		slog.String("rule", string(rule)),
		slog.Int("approvers", len(approvers)),
	)
	return req, nil
}

func normalizeApprovers(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Decide records or replaces the actor's decision. The outcome is recomputed in the
// same transaction; a terminal outcome closes the request and sets the version status.
func (s *ApprovalService) Decide(ctx context.Context, in DecideInput) (*domain.DecisionResult, error) {
	if in.Decision != domain.DecisionApproved && in.Decision != domain.DecisionRejected {
		return nil, domain.Validationf("decision must be APPROVED or REJECTED")
	}
	if in.Actor.Ref == "" {
		return nil, domain.ErrUnauthenticated
	}

	req, err := s.approvals.GetRequest(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Closed() {
		return nil, domain.ErrRequestClosed
	}
	if err := s.authorizeApprover(ctx, *req, in.Actor); err != nil {
		return nil, err
	}

	comment, err := s.cleanComment(in.Comment)
	if err != nil {
		return nil, err
	}

	result, err := s.approvals.Decide(ctx, domain.ApprovalDecision{
		ID:                uuid.New(),
		ApprovalRequestID: req.ID,
		ApproverRef:       in.Actor.Ref,
		Decision:          in.Decision,
		Comment:           comment,
		DecidedAt:         s.clock.Now(),
	}, domain.AggregateRequest)
	if err != nil {
		return nil, err
	}

	approver := "internal"
	if in.Actor.Guest {
		approver = "guest"
	}
	decisionsTotal.WithLabelValues(string(in.Decision), approver).Inc()

	if result.Closed {
		requestsClosedTotal.WithLabelValues(string(result.Outcome)).Inc()
		s.logger.Info("approval request closed",
			slog.String("request_id", req.ID.String()),
			slog.String("outcome", string(result.Outcome)),
			slog.String("closed_by", in.Actor.Ref),
		)
	}
	return result, nil
}

func (s *ApprovalService) authorizeApprover(ctx context.Context, req domain.ApprovalRequest, actor domain.Actor) error {
	if !actor.Guest {
		if !req.Requires(actor.Ref) {
			return domain.ErrNotAuthorizedApprover
		}
		return nil
	}

	if actor.Capability == nil {
		return domain.ErrNotAuthorizedApprover
	}
	v, err := s.arts.GetVersionByID(ctx, req.ArtVersionID)
	if err != nil {
		return err
	}
	if actor.Capability.SubjectID != v.ArtID {
		return domain.ErrNotAuthorizedApprover
	}
	if !actor.Capability.Allows(domain.ActionApprove) {
		return domain.ErrForbidden
	}
	return nil
}

func (s *ApprovalService) cleanComment(comment *string) (*string, error) {
	if comment == nil {
		return nil, nil
	}
	clean := strings.TrimSpace(s.sanitizer.Sanitize(*comment))
	if clean == "" {
		return nil, nil
	}
	if len(clean) > maxCommentLength {
		return nil, domain.Validationf("comment exceeds %d characters", maxCommentLength)
	}
	return &clean, nil
}

// Request returns the request together with the art it reviews.
func (s *ApprovalService) Request(ctx context.Context, requestID uuid.UUID) (*domain.ApprovalRequest, *domain.ArtVersion, error) {
	req, err := s.approvals.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.arts.GetVersionByID(ctx, req.ArtVersionID)
	if err != nil {
		return nil, nil, err
	}
	return req, v, nil
}

// Summary aggregates a request from its stored decisions.
func (s *ApprovalService) Summary(ctx context.Context, requestID uuid.UUID) (*ApprovalSummary, error) {
	req, err := s.approvals.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, *req)
}

// Breakdown reports the latest request of version n of an art.
func (s *ApprovalService) Breakdown(ctx context.Context, artID uuid.UUID, n int) (*ApprovalSummary, error) {
	v, err := s.arts.GetVersion(ctx, artID, n)
	if err != nil {
		return nil, err
	}
	req, err := s.approvals.LatestRequestForVersion(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, *req)
}

func (s *ApprovalService) summarize(ctx context.Context, req domain.ApprovalRequest) (*ApprovalSummary, error) {
	decisions, err := s.approvals.ListDecisions(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	outcome := domain.AggregateRequest(req, decisions)
	// An override closes the request as APPROVED whatever the decisions say.
	if req.Outcome != nil && req.OverriddenBy != nil {
		outcome = *req.Outcome
	}
	return &ApprovalSummary{
		Request:   req,
		Outcome:   outcome,
		Approvers: domain.Breakdown(req, decisions),
	}, nil
}

// Override approves version n administratively. Only project owners may do this.
func (s *ApprovalService) Override(ctx context.Context, artID uuid.UUID, n int, actor domain.InternalIdentity) (*domain.ArtVersion, error) {
	if !actor.ProjectOwner {
		return nil, domain.ErrForbidden
	}
	v, err := s.arts.GetVersion(ctx, artID, n)
	if err != nil {
		return nil, err
	}

	updated, err := s.approvals.Override(ctx, domain.Override{VersionID: v.ID, ActorRef: actor.UserID, At: s.clock.Now()})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("version approved by override",
		slog.String("art_id", artID.String()),
		slog.Int("version", n),
		slog.String("actor", actor.UserID),
	)
	return updated, nil
}
