package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"artreview/internal/domain"
)

type LinkOptions struct {
	ReadOnly    bool
	CanComment  bool
	CanDownload bool
	ExpiresIn   *time.Duration
}

type ShareService struct {
	links  ShareStore
	arts   ArtStore
	clock  Clock
	logger *slog.Logger
}

func NewShareService(links ShareStore, arts ArtStore, clock Clock, logger *slog.Logger) *ShareService {
	return &ShareService{
		links:  links,
		arts:   arts,
		clock:  clock,
		logger: logger.With(slog.String("component", "share")),
	}
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// CreateLink issues a share token for an art.
func (s *ShareService) CreateLink(ctx context.Context, artID uuid.UUID, opts LinkOptions) (*domain.SharedLink, error) {
	if _, err := s.arts.GetArt(ctx, artID); err != nil {
		return nil, err
	}
	if opts.ReadOnly && opts.CanComment {
		return nil, domain.Validationf("a read-only link cannot allow comments")
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	link := &domain.SharedLink{
		ID:          uuid.New(),
		Token:       token,
		SubjectType: domain.SubjectArt,
		SubjectID:   artID,
		ReadOnly:    opts.ReadOnly,
		CanComment:  opts.CanComment,
		CanDownload: opts.CanDownload,
	}
	if opts.ExpiresIn != nil {
		if *opts.ExpiresIn <= 0 {
			return nil, domain.Validationf("expires_in must be positive")
		}
		expiresAt := s.clock.Now().Add(*opts.ExpiresIn)
		link.ExpiresAt = &expiresAt
	}

	if err := s.links.Insert(ctx, link); err != nil {
		return nil, err
	}
	s.logger.Info("share link created",
		slog.String("link_id", link.ID.String()),
		slog.String("art_id", artID.String()),
		slog.Bool("can_comment", link.CanComment),
	)
	return link, nil
}

func (s *ShareService) Revoke(ctx context.Context, linkID uuid.UUID) error {
	if err := s.links.Delete(ctx, linkID); err != nil {
		return err
	}
	s.logger.Info("share link revoked", slog.String("link_id", linkID.String()))
	return nil
}

func (s *ShareService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.links.DeleteExpired(ctx, s.clock.Now())
}

// StartCleanupTask purges expired links every interval until ctx is done.
func (s *ShareService) StartCleanupTask(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.PurgeExpired(ctx)
				if err != nil {
					s.logger.Error("failed to purge expired links", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					s.logger.Info("expired links purged", slog.Int64("count", n))
				}
			}
		}
	}()
}
