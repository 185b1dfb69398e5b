package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"artreview/internal/domain"
	"artreview/internal/media"
	"artreview/internal/preview"
	"artreview/internal/service/s3"
)

type IngestionConfig struct {
	// UploadTimeout bounds each blob put.
	UploadTimeout time.Duration
	// CleanupTimeout bounds the compensating deletes, which run even if the
	// caller's context is already cancelled.
	CleanupTimeout time.Duration
	// OrphanAge is how old an unrecorded blob must be before an upload may
	// delete it and take its path. It must exceed the time a live writer can
	// spend between its first put and its ledger insert.
	OrphanAge      time.Duration
	MaxSourceBytes int64
	MaxAudioBytes  int64
}

func (c IngestionConfig) withDefaults() IngestionConfig {
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 2 * time.Minute
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = 30 * time.Second
	}
	if c.OrphanAge <= 0 {
		c.OrphanAge = 2*c.UploadTimeout + c.CleanupTimeout
	}
	if c.MaxSourceBytes <= 0 {
		c.MaxSourceBytes = 200 << 20
	}
	if c.MaxAudioBytes <= 0 {
		c.MaxAudioBytes = 25 << 20
	}
	return c
}

type UploadInput struct {
	ArtID          uuid.UUID
	Filename       string
	Data           []byte
	ReadyForReview bool
}

type AttachmentInput struct {
	ArtID         uuid.UUID
	VersionNumber int
	Filename      string
	ContentType   string
	Data          []byte
}

type IngestionService struct {
	ledger    *LedgerService
	arts      ArtStore
	approvals *ApprovalService
	blobs     s3.Storage
	renderer  PreviewRenderer
	prober    AudioProber
	clock     Clock
	cfg       IngestionConfig
	logger    *slog.Logger
}

func NewIngestionService(
	ledger *LedgerService,
	arts ArtStore,
	approvals *ApprovalService,
	blobs s3.Storage,
	renderer PreviewRenderer,
	prober AudioProber,
	clock Clock,
	cfg IngestionConfig,
	logger *slog.Logger,
) *IngestionService {
	return &IngestionService{
		ledger:    ledger,
		arts:      arts,
		approvals: approvals,
		blobs:     blobs,
		renderer:  renderer,
		prober:    prober,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(slog.String("component", "ingestion")),
	}
}

// Upload stores the source and its preview, then records the version. Blobs put by
// a failed attempt are removed before the error is returned.
func (s *IngestionService) Upload(ctx context.Context, in UploadInput) (v *domain.ArtVersion, err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = ingestionResult(err)
		}
		ingestionTotal.WithLabelValues(result).Inc()
		ingestionDuration.Observe(time.Since(start).Seconds())
	}()

	if len(in.Data) == 0 {
		return nil, domain.Validationf("file is empty")
	}
	if int64(len(in.Data)) > s.cfg.MaxSourceBytes {
		return nil, domain.Validationf("file exceeds %d bytes", s.cfg.MaxSourceBytes)
	}

	contentType := detectContentType(in.Data, in.Filename)
	ext := sourceExtension(in.Filename, contentType)

	var rendered *preview.Result
	if s.renderer != nil && s.renderer.Supports(contentType) {
		rendered, err = s.renderer.Render(in.Data)
		if err != nil {
			return nil, domain.Validationf("cannot render preview: %v", err)
		}
	}

	status := domain.StatusDraft
	if in.ReadyForReview {
		status = domain.StatusPendingReview
	}

	stage := func(ctx context.Context, n int) (VersionFiles, func(error), error) {
		saga := s.newSaga(in.ArtID, n)

		source := domain.ArtFile{
			Kind:      domain.FileSource,
			Path:      blobPath(in.ArtID, n, "source."+ext),
			MIME:      contentType,
			SizeBytes: int64(len(in.Data)),
		}
		if rendered != nil {
			source.Width = intPtr(rendered.SourceWidth)
			source.Height = intPtr(rendered.SourceHeight)
		}
		if err := saga.put(ctx, source.Path, in.Data, contentType); err != nil {
			return VersionFiles{}, nil, saga.fail(ctx, "put source", err)
		}

		files := VersionFiles{Source: source}
		if rendered != nil {
			p := domain.ArtFile{
				Kind:      domain.FilePreview,
				Path:      blobPath(in.ArtID, n, "preview.jpg"),
				MIME:      preview.ContentType,
				SizeBytes: int64(len(rendered.Data)),
				Width:     intPtr(rendered.Width),
				Height:    intPtr(rendered.Height),
			}
			if err := saga.put(ctx, p.Path, rendered.Data, preview.ContentType); err != nil {
				return VersionFiles{}, nil, saga.fail(ctx, "put preview", err)
			}
			files.Preview = &p
		}

		return files, func(cause error) { saga.compensate(ctx, cause) }, nil
	}

	v, err = s.ledger.CreateVersion(ctx, in.ArtID, status, stage)
	if err != nil {
		return nil, err
	}

	s.logger.Info("version created",
		slog.String("art_id", in.ArtID.String()),
		slog.Int("version", v.VersionNumber),
		slog.String("status", string(v.Status)),
		slog.String("mime", contentType),
	)
	return v, nil
}

// CloseForApproval moves a DRAFT or PENDING_REVIEW version into review by
// opening its approval request.
func (s *IngestionService) CloseForApproval(ctx context.Context, versionID uuid.UUID, rule domain.Rule, approverIDs []string) (*domain.ApprovalRequest, error) {
	return s.approvals.OpenRequest(ctx, versionID, rule, approverIDs)
}

// AttachAudio stores an audio clip under the version's attachment namespace and
// records it as an ATTACHMENT file. Its path is the audio_ref for audio feedback.
func (s *IngestionService) AttachAudio(ctx context.Context, in AttachmentInput) (*domain.ArtFile, error) {
	if len(in.Data) == 0 {
		return nil, domain.Validationf("file is empty")
	}
	if int64(len(in.Data)) > s.cfg.MaxAudioBytes {
		return nil, domain.Validationf("audio exceeds %d bytes", s.cfg.MaxAudioBytes)
	}

	v, err := s.arts.GetVersion(ctx, in.ArtID, in.VersionNumber)
	if err != nil {
		return nil, err
	}

	contentType := in.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detectContentType(in.Data, in.Filename)
	}
	ext, err := media.Extension(contentType)
	if err != nil {
		return nil, domain.Validationf("%v", err)
	}

	duration, err := s.prober.Duration(ctx, in.Data, ext)
	if err != nil {
		return nil, domain.Validationf("cannot read audio duration: %v", err)
	}

	file := &domain.ArtFile{
		ID:              uuid.New(),
		ArtID:           v.ArtID,
		VersionNumber:   v.VersionNumber,
		Kind:            domain.FileAttachment,
		MIME:            contentType,
		SizeBytes:       int64(len(in.Data)),
		DurationSeconds: &duration,
	}
	file.Path = blobPath(v.ArtID, v.VersionNumber, "attachments/"+file.ID.String()+"."+ext)

	saga := s.newSaga(v.ArtID, v.VersionNumber)
	if err := saga.put(ctx, file.Path, in.Data, contentType); err != nil {
		return nil, saga.fail(ctx, "put attachment", err)
	}
	if err := s.arts.InsertFile(ctx, file); err != nil {
		saga.compensate(ctx, err)
		return nil, fmt.Errorf("failed to record attachment: %w", err)
	}
	return file, nil
}

// saga tracks the blobs written by one attempt so they can be removed again.
type saga struct {
	s      *IngestionService
	artID  uuid.UUID
	n      int
	puts   []string
	logger *slog.Logger
}

func (s *IngestionService) newSaga(artID uuid.UUID, n int) *saga {
	return &saga{
		s:      s,
		artID:  artID,
		n:      n,
		logger: s.logger.With(slog.String("art_id", artID.String()), slog.Int("version", n)),
	}
}

// put writes one blob. An occupied path left behind by an earlier failed upload
// is reclaimed once and the put retried.
func (g *saga) put(ctx context.Context, path string, data []byte, contentType string) error {
	err := g.tryPut(ctx, path, data, contentType)
	if !errors.Is(err, s3.ErrObjectExists) {
		return err
	}
	reclaimed, rerr := g.reclaim(ctx, path)
	if rerr != nil {
		return rerr
	}
	if !reclaimed {
		return err
	}
	return g.tryPut(ctx, path, data, contentType)
}

func (g *saga) tryPut(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	putCtx, cancel := context.WithTimeout(ctx, g.s.cfg.UploadTimeout)
	defer cancel()

	if err := g.s.blobs.Put(putCtx, path, data, contentType); err != nil {
		return err
	}
	g.puts = append(g.puts, path)
	return nil
}

// reclaim deletes the blob at path when no version row owns it and it is older
// than OrphanAge. A younger blob may belong to a writer that has not committed yet.
func (g *saga) reclaim(ctx context.Context, path string) (bool, error) {
	if _, err := g.s.arts.GetVersion(ctx, g.artID, g.n); err == nil {
		return false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}

	modified, err := g.s.blobs.Modified(ctx, path)
	switch {
	case errors.Is(err, s3.ErrObjectNotFound):
		return true, nil
	case err != nil:
		return false, err
	}
	age := g.s.clock.Now().Sub(modified)
	if age < g.s.cfg.OrphanAge {
		return false, nil
	}

	if err := g.s.blobs.Remove(ctx, []string{path}); err != nil {
		return false, err
	}
	orphansReclaimedTotal.Inc()
	g.logger.Warn("reclaimed orphaned blob",
		slog.String("path", path),
		slog.Duration("age", age),
	)
	return true, nil
}

// fail compensates and shapes the error returned for a failed put. An occupied
// path is reported as a version conflict so the ledger retries with a fresh number.
func (g *saga) fail(ctx context.Context, op string, err error) error {
	removed, leaked := g.compensate(ctx, err)
	if errors.Is(err, s3.ErrObjectExists) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return &domain.StorageError{Op: op, Err: err, Removed: removed, Leaked: leaked}
}

// compensate removes this attempt's blobs in reverse order. It runs on a context
// detached from the caller's cancellation and never fails; leaks are logged.
func (g *saga) compensate(ctx context.Context, cause error) (removed, leaked []string) {
	if len(g.puts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.s.cfg.CleanupTimeout)
	defer cancel()

	for i := len(g.puts) - 1; i >= 0; i-- {
		path := g.puts[i]
		if err := g.s.blobs.Remove(ctx, []string{path}); err != nil {
			leaked = append(leaked, path)
			compensationTotal.WithLabelValues("leaked").Inc()
			g.logger.Error("compensating delete failed",
				slog.String("path", path),
				slog.String("cause", cause.Error()),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed = append(removed, path)
		compensationTotal.WithLabelValues("removed").Inc()
	}
	g.puts = nil

	g.logger.Warn("upload compensated",
		slog.String("cause", cause.Error()),
		slog.Int("removed", len(removed)),
		slog.Int("leaked", len(leaked)),
	)
	return removed, leaked
}

func ingestionResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, domain.ErrStorage):
		return "storage_error"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "error"
}

func blobPath(artID uuid.UUID, n int, name string) string {
	return fmt.Sprintf("%s/v%d/%s", artID, n, name)
}

// detectContentType sniffs the first 512 bytes and falls back to the file extension.
func detectContentType(data []byte, filename string) string {
	detected := http.DetectContentType(data)
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	if detected != "application/octet-stream" && detected != "text/plain" {
		return detected
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		if i := strings.IndexByte(byExt, ';'); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	return detected
}

func sourceExtension(filename, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext != "" && isSafeExtension(ext) {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

func isSafeExtension(ext string) bool {
	if len(ext) > 10 {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func intPtr(v int) *int { return &v }
