package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"artreview/internal/domain"
)

const DefaultMaxVersionAttempts = 5

// VersionFiles are the file rows staged for one candidate version number.
type VersionFiles struct {
	Source  domain.ArtFile
	Preview *domain.ArtFile
}

// StageFunc prepares the files of version number n. When the ledger cannot record
// the version it calls abort with the cause so the caller can undo its side effects.
type StageFunc func(ctx context.Context, n int) (files VersionFiles, abort func(cause error), err error)

type LedgerService struct {
	arts        ArtStore
	maxAttempts int
	// newBackOff spaces out retries so a writer still uploading the candidate
	// number has time to commit it.
	newBackOff  func() backoff.BackOff
	logger      *slog.Logger
}

func conflictBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func NewLedgerService(arts ArtStore, maxAttempts int, logger *slog.Logger) *LedgerService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxVersionAttempts
	}
	return &LedgerService{
		arts:        arts,
		maxAttempts: maxAttempts,
		newBackOff:  conflictBackOff,
		logger:      logger.With(slog.String("component", "ledger")),
	}
}

func (s *LedgerService) CreateArt(ctx context.Context, name, kind, projectID, authorID string) (*domain.Art, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Validationf("name is required")
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, domain.Validationf("project_id is required")
	}

	art := &domain.Art{
		ID:            uuid.New(),
		Name:          name,
		Kind:          strings.TrimSpace(kind),
		ProjectID:     projectID,
		AuthorID:      authorID,
		CurrentStatus: domain.StatusDraft,
	}
	if err := s.arts.CreateArt(ctx, art); err != nil {
		return nil, err
	}
	return art, nil
}

func (s *LedgerService) GetArt(ctx context.Context, artID uuid.UUID) (*domain.Art, error) {
	return s.arts.GetArt(ctx, artID)
}

// NextVersionNumber reads the art's current number. The answer is only a
// candidate; InsertVersion decides who actually gets it.
func (s *LedgerService) NextVersionNumber(ctx context.Context, artID uuid.UUID) (int, error) {
	art, err := s.arts.GetArt(ctx, artID)
	if err != nil {
		return 0, err
	}
	return art.CurrentVersionNumber + 1, nil
}

// CreateVersion appends a version, retrying with a fresh number when another
// writer takes the candidate first.
func (s *LedgerService) CreateVersion(ctx context.Context, artID uuid.UUID, status domain.VersionStatus, stage StageFunc) (*domain.ArtVersion, error) {
	if status != domain.StatusDraft && status != domain.StatusPendingReview {
		return nil, fmt.Errorf("%w: new versions cannot start as %s", domain.ErrInvalidState, status)
	}

	var (
		lastErr error
		wait    = s.newBackOff()
	)
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, wait.NextBackOff()); err != nil {
				return nil, err
			}
		}

		n, err := s.NextVersionNumber(ctx, artID)
		if err != nil {
			return nil, err
		}

		files, abort, err := stage(ctx, n)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				lastErr = err
				s.onConflict(artID, n, attempt, err)
				continue
			}
			return nil, err
		}

		v, err := s.append(ctx, artID, n, status, files)
		if err == nil {
			return v, nil
		}
		if abort != nil {
			abort(err)
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		lastErr = err
		s.onConflict(artID, n, attempt, err)
	}
	return nil, fmt.Errorf("gave up after %d attempts: %w", s.maxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *LedgerService) onConflict(artID uuid.UUID, n, attempt int, err error) {
	versionConflictsTotal.Inc()
	s.logger.Warn("version number taken, retrying",
		slog.String("art_id", artID.String()),
		slog.Int("version", n),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

func (s *LedgerService) append(ctx context.Context, artID uuid.UUID, n int, status domain.VersionStatus, files VersionFiles) (*domain.ArtVersion, error) {
	v := &domain.ArtVersion{
		ID:            uuid.New(),
		ArtID:         artID,
		VersionNumber: n,
		Status:        status,
		SourceFileRef: files.Source.Path,
	}

	rows := []domain.ArtFile{files.Source}
	if files.Preview != nil {
		path := files.Preview.Path
		v.PreviewFileRef = &path
		rows = append(rows, *files.Preview)
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		rows[i].ArtID = artID
		rows[i].VersionNumber = n
	}

	if err := s.arts.InsertVersion(ctx, v, rows); err != nil {
		return nil, err
	}
	return v, nil
}

// GetVersion returns version number n, or the current version when n is nil.
func (s *LedgerService) GetVersion(ctx context.Context, artID uuid.UUID, n *int) (*domain.ArtVersion, error) {
	number := 0
	if n != nil {
		number = *n
	} else {
		art, err := s.arts.GetArt(ctx, artID)
		if err != nil {
			return nil, err
		}
		number = art.CurrentVersionNumber
	}
	if number < 1 {
		return nil, domain.ErrNotFound
	}
	return s.arts.GetVersion(ctx, artID, number)
}

func (s *LedgerService) GetVersionByID(ctx context.Context, versionID uuid.UUID) (*domain.ArtVersion, error) {
	return s.arts.GetVersionByID(ctx, versionID)
}

func (s *LedgerService) ListVersions(ctx context.Context, artID uuid.UUID) ([]domain.ArtVersion, error) {
	if _, err := s.arts.GetArt(ctx, artID); err != nil {
		return nil, err
	}
	return s.arts.ListVersions(ctx, artID)
}

func (s *LedgerService) Files(ctx context.Context, versionID uuid.UUID) ([]domain.ArtFile, error) {
	v, err := s.arts.GetVersionByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return s.arts.ListFiles(ctx, v.ArtID, v.VersionNumber)
}
