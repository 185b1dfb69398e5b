package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"artreview/internal/domain"
	"artreview/internal/preview"
)

// ArtStore persists arts, versions and their files.
type ArtStore interface {
	CreateArt(ctx context.Context, art *domain.Art) error
	GetArt(ctx context.Context, id uuid.UUID) (*domain.Art, error)
	GetVersion(ctx context.Context, artID uuid.UUID, number int) (*domain.ArtVersion, error)
	GetVersionByID(ctx context.Context, id uuid.UUID) (*domain.ArtVersion, error)
	ListVersions(ctx context.Context, artID uuid.UUID) ([]domain.ArtVersion, error)
	// InsertVersion must fail with domain.ErrConflict when the number is not
	// exactly one past the art's current version.
	InsertVersion(ctx context.Context, v *domain.ArtVersion, files []domain.ArtFile) error
	InsertFile(ctx context.Context, f *domain.ArtFile) error
	ListFiles(ctx context.Context, artID uuid.UUID, number int) ([]domain.ArtFile, error)
}

type ApprovalStore interface {
	OpenRequest(ctx context.Context, req *domain.ApprovalRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error)
	LatestRequestForVersion(ctx context.Context, versionID uuid.UUID) (*domain.ApprovalRequest, error)
	ListDecisions(ctx context.Context, requestID uuid.UUID) ([]domain.ApprovalDecision, error)
	Decide(ctx context.Context, d domain.ApprovalDecision, resolve domain.Resolver) (*domain.DecisionResult, error)
	Override(ctx context.Context, o domain.Override) (*domain.ArtVersion, error)
}

type FeedbackStore interface {
	Insert(ctx context.Context, item *domain.FeedbackItem) error
	Get(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.FeedbackStatus) (*domain.FeedbackItem, error)
	ListByVersion(ctx context.Context, versionID uuid.UUID) ([]domain.FeedbackItem, error)
}

type ShareStore interface {
	Insert(ctx context.Context, link *domain.SharedLink) error
	GetByToken(ctx context.Context, token string) (*domain.SharedLink, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GuestStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.GuestIdentity, error)
	// Insert reports false when the address is already taken.
	Insert(ctx context.Context, g *domain.GuestIdentity) (bool, error)
}

type PreviewRenderer interface {
	Supports(mime string) bool
	Render(data []byte) (*preview.Result, error)
}

type AudioProber interface {
	Duration(ctx context.Context, data []byte, ext string) (float64, error)
}

// Clock is injected so expiry and timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
