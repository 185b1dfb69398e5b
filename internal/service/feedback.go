package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"artreview/internal/domain"
)

const maxFeedbackLength = 10000

type PostInput struct {
	VersionID uuid.UUID
	Author    domain.Actor
	Kind      domain.FeedbackKind
	Content   *string
	AudioRef  *string
	Position  *domain.PositionInput
}

type FeedbackService struct {
	feedback  FeedbackStore
	arts      ArtStore
	clock     Clock
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

func NewFeedbackService(feedback FeedbackStore, arts ArtStore, clock Clock, logger *slog.Logger) *FeedbackService {
	return &FeedbackService{
		feedback:  feedback,
		arts:      arts,
		clock:     clock,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With(slog.String("component", "feedback")),
	}
}

// Post appends an item to a version's thread. Guests need a comment capability
// scoped to the version's art.
func (s *FeedbackService) Post(ctx context.Context, in PostInput) (*domain.FeedbackItem, error) {
	if in.Author.Ref == "" {
		return nil, domain.ErrUnauthenticated
	}
	if !in.Kind.Valid() {
		return nil, domain.Validationf("unknown feedback kind %q", in.Kind)
	}

	v, err := s.arts.GetVersionByID(ctx, in.VersionID)
	if err != nil {
		return nil, err
	}
	if in.Author.Guest {
		capability := in.Author.Capability
		if capability == nil {
			return nil, domain.ErrForbidden
		}
		if capability.SubjectID != v.ArtID {
			return nil, domain.ErrScopeMismatch
		}
		if !capability.Allows(domain.ActionComment) {
			return nil, domain.ErrForbidden
		}
	}

	item := &domain.FeedbackItem{
		ID:           uuid.New(),
		ArtVersionID: v.ID,
		AuthorRef:    in.Author.Ref,
		Kind:         in.Kind,
		Status:       domain.FeedbackOpen,
		CreatedAt:    s.clock.Now(),
	}

	switch in.Kind {
	case domain.FeedbackText:
		if in.Content == nil {
			return nil, domain.Validationf("content is required for text feedback")
		}
		content := strings.TrimSpace(s.sanitizer.Sanitize(*in.Content))
		if content == "" {
			return nil, domain.Validationf("content is required for text feedback")
		}
		if len(content) > maxFeedbackLength {
			return nil, domain.Validationf("content exceeds %d characters", maxFeedbackLength)
		}
		item.Content = &content
	case domain.FeedbackAudio:
		if in.AudioRef == nil || strings.TrimSpace(*in.AudioRef) == "" {
			return nil, domain.Validationf("audio_ref is required for audio feedback")
		}
		ref := strings.TrimSpace(*in.AudioRef)
		if !strings.HasPrefix(ref, v.ArtID.String()+"/") {
			return nil, domain.Validationf("audio_ref does not belong to this art")
		}
		item.AudioRef = &ref
	}

	if in.Position != nil {
		pos, err := in.Position.Normalize()
		if err != nil {
			return nil, err
		}
		item.Position = &pos
	}

	if err := s.feedback.Insert(ctx, item); err != nil {
		return nil, err
	}
	s.logger.Debug("feedback posted",
		slog.String("feedback_id", item.ID.String()),
		slog.String("version_id", v.ID.String()),
		slog.Bool("guest", in.Author.Guest),
	)
	return item, nil
}

// SetStatus moves an item to any status; triage state has no ordering.
func (s *FeedbackService) SetStatus(ctx context.Context, id uuid.UUID, status domain.FeedbackStatus) (*domain.FeedbackItem, error) {
	if !status.Valid() {
		return nil, domain.Validationf("unknown feedback status %q", status)
	}
	return s.feedback.SetStatus(ctx, id, status)
}

func (s *FeedbackService) Get(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error) {
	return s.feedback.Get(ctx, id)
}

func (s *FeedbackService) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]domain.FeedbackItem, error) {
	if _, err := s.arts.GetVersionByID(ctx, versionID); err != nil {
		return nil, err
	}
	return s.feedback.ListByVersion(ctx, versionID)
}

// ListAllForArt groups every thread of an art by version, oldest version first.
func (s *FeedbackService) ListAllForArt(ctx context.Context, artID uuid.UUID) ([]domain.VersionFeedback, error) {
	if _, err := s.arts.GetArt(ctx, artID); err != nil {
		return nil, err
	}
	versions, err := s.arts.ListVersions(ctx, artID)
	if err != nil {
		return nil, err
	}

	groups := make([]domain.VersionFeedback, 0, len(versions))
	for _, v := range versions {
		items, err := s.feedback.ListByVersion(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, domain.VersionFeedback{VersionID: v.ID, VersionNumber: v.VersionNumber, Items: items})
	}
	return groups, nil
}
