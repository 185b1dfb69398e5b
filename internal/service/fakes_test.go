package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"artreview/internal/domain"
	"artreview/internal/preview"
	"artreview/internal/service/s3"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeArtStore enforces the same numbering rule as the database: a version is
// only accepted when it is exactly one past the art's current number.
type fakeArtStore struct {
	mu       sync.Mutex
	arts     map[uuid.UUID]*domain.Art
	versions map[uuid.UUID]*domain.ArtVersion
	files    []domain.ArtFile

	insertErr     error
	insertFileErr error
	// beforeInsert runs inside InsertVersion before the numbering check.
	beforeInsert func(s *fakeArtStore, v *domain.ArtVersion)
}

func newFakeArtStore() *fakeArtStore {
	return &fakeArtStore{
		arts:     make(map[uuid.UUID]*domain.Art),
		versions: make(map[uuid.UUID]*domain.ArtVersion),
	}
}

func (s *fakeArtStore) CreateArt(_ context.Context, art *domain.Art) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *art
	s.arts[art.ID] = &cp
	return nil
}

func (s *fakeArtStore) GetArt(_ context.Context, id uuid.UUID) (*domain.Art, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	art, ok := s.arts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *art
	return &cp, nil
}

func (s *fakeArtStore) GetVersion(_ context.Context, artID uuid.UUID, number int) (*domain.ArtVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.ArtID == artID && v.VersionNumber == number {
			cp := *v
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeArtStore) GetVersionByID(_ context.Context, id uuid.UUID) (*domain.ArtVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *fakeArtStore) ListVersions(_ context.Context, artID uuid.UUID) ([]domain.ArtVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.ArtVersion{}
	for _, v := range s.versions {
		if v.ArtID == artID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (s *fakeArtStore) InsertVersion(_ context.Context, v *domain.ArtVersion, files []domain.ArtFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeInsert != nil {
		s.beforeInsert(s, v)
	}
	if s.insertErr != nil {
		return s.insertErr
	}
	art, ok := s.arts[v.ArtID]
	if !ok {
		return domain.ErrNotFound
	}
	if art.CurrentVersionNumber+1 != v.VersionNumber {
		return fmt.Errorf("%w: version %d already taken", domain.ErrConflict, v.VersionNumber)
	}

	art.CurrentVersionNumber = v.VersionNumber
	art.CurrentStatus = v.Status
	cp := *v
	s.versions[v.ID] = &cp
	s.files = append(s.files, files...)
	return nil
}

// bumpLocked simulates a competing writer committing version n. Callers hold mu.
func (s *fakeArtStore) bumpLocked(artID uuid.UUID) {
	art := s.arts[artID]
	art.CurrentVersionNumber++
	v := &domain.ArtVersion{ID: uuid.New(), ArtID: artID, VersionNumber: art.CurrentVersionNumber, Status: domain.StatusDraft}
	s.versions[v.ID] = v
}

func (s *fakeArtStore) InsertFile(_ context.Context, f *domain.ArtFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertFileErr != nil {
		return s.insertFileErr
	}
	s.files = append(s.files, *f)
	return nil
}

func (s *fakeArtStore) ListFiles(_ context.Context, artID uuid.UUID, number int) ([]domain.ArtFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.ArtFile{}
	for _, f := range s.files {
		if f.ArtID == artID && f.VersionNumber == number {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeArtStore) setStatusLocked(versionID uuid.UUID, status domain.VersionStatus) {
	v := s.versions[versionID]
	v.Status = status
	if art := s.arts[v.ArtID]; art.CurrentVersionNumber == v.VersionNumber {
		art.CurrentStatus = status
	}
}

// fakeApprovalStore shares the art store's lock so status changes are atomic
// with the request update, as in the repository transaction.
type fakeApprovalStore struct {
	arts      *fakeArtStore
	requests  map[uuid.UUID]*domain.ApprovalRequest
	decisions map[uuid.UUID]map[string]domain.ApprovalDecision
}

func newFakeApprovalStore(arts *fakeArtStore) *fakeApprovalStore {
	return &fakeApprovalStore{
		arts:      arts,
		requests:  make(map[uuid.UUID]*domain.ApprovalRequest),
		decisions: make(map[uuid.UUID]map[string]domain.ApprovalDecision),
	}
}

func (s *fakeApprovalStore) OpenRequest(_ context.Context, req *domain.ApprovalRequest) error {
	s.arts.mu.Lock()
	defer s.arts.mu.Unlock()
	v, ok := s.arts.versions[req.ArtVersionID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, r := range s.requests {
		if r.ArtVersionID == req.ArtVersionID && !r.Closed() {
			return domain.ErrConflict
		}
	}
	if !v.Status.Reviewable() {
		return fmt.Errorf("%w: version is %s", domain.ErrInvalidState, v.Status)
	}
	cp := *req
	s.requests[req.ID] = &cp
	s.decisions[req.ID] = make(map[string]domain.ApprovalDecision)
	s.arts.setStatusLocked(v.ID, domain.StatusInReview)
	return nil
}

func (s *fakeApprovalStore) GetRequest(_ context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	s.arts.mu.Lock()
	defer s.arts.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeApprovalStore) LatestRequestForVersion(_ context.Context, versionID uuid.UUID) (*domain.ApprovalRequest, error) {
	s.arts.mu.Lock()
	defer s.arts.mu.Unlock()
	var latest *domain.ApprovalRequest
	for _, r := range s.requests {
		if r.ArtVersionID == versionID && (latest == nil || r.OpenedAt.After(latest.OpenedAt)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *fakeApprovalStore) ListDecisions(_ context.Context, requestID uuid.UUID) ([]domain.ApprovalDecision, error) {
	s.arts.mu.Lock()
	defer s.arts.mu.Unlock()
	return s.listLocked(requestID), nil
}

func (s *fakeApprovalStore) listLocked(requestID uuid.UUID) []domain.ApprovalDecision {
	out := []domain.ApprovalDecision{}
	for _, d := range s.decisions[requestID] {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApproverRef < out[j].ApproverRef })
	return out
}

func (s *fakeApprovalStore) Decide(_ context.Context, d domain.ApprovalDecision, resolve domain.Resolver) (*domain.DecisionResult, error) {
	s.arts.mu.Lock()
	defer s.arts.mu.Unlock()
	req, ok := s.requests[d.ApprovalRequestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if req.Closed() {
		return nil, domain.ErrRequestClosed
	}

	if prior, ok := s.decisions[req.ID][d.ApproverRef]; ok {
		d.ID = prior.ID
	}
	s.decisions[req.ID][d.ApproverRef] = d

	decisions := s.listLocked(req.ID)
	result := &domain.DecisionResult{Decisions: decisions, Outcome: resolve(*req, decisions)}
	if result.Outcome.Terminal() {
		at, outcome := d.DecidedAt, result.Outcome
		req.ClosedAt = &at
		req.Outcome = &outcome
		s.arts.setStatusLocked(req.ArtVersionID, outcome.VersionStatus())
		result.Closed = true
	}
	result.Request = *req
	return result, nil
}

func (s *fakeApprovalStore) Override(_ context.Context, o domain.Override) (*domain.ArtVersion, error) {
	s.arts.mu.Lock()
	defer s.arts.mu.Unlock()
	v, ok := s.arts.versions[o.VersionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, r := range s.requests {
		if r.ArtVersionID == o.VersionID && !r.Closed() {
			at, outcome, actor := o.At, domain.OutcomeApproved, o.ActorRef
			r.ClosedAt = &at
			r.Outcome = &outcome
			r.OverriddenBy = &actor
		}
	}
	actor, at := o.ActorRef, o.At
	v.OverrideBy = &actor
	v.OverrideAt = &at
	s.arts.setStatusLocked(v.ID, domain.StatusApproved)
	cp := *v
	return &cp, nil
}

type fakeFeedbackStore struct {
	mu    sync.Mutex
	items []domain.FeedbackItem
}

func (s *fakeFeedbackStore) Insert(_ context.Context, item *domain.FeedbackItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, *item)
	return nil
}

func (s *fakeFeedbackStore) Get(_ context.Context, id uuid.UUID) (*domain.FeedbackItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			cp := it
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeFeedbackStore) SetStatus(_ context.Context, id uuid.UUID, status domain.FeedbackStatus) (*domain.FeedbackItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = status
			cp := s.items[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeFeedbackStore) ListByVersion(_ context.Context, versionID uuid.UUID) ([]domain.FeedbackItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.FeedbackItem{}
	for _, it := range s.items {
		if it.ArtVersionID == versionID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakeShareStore struct {
	mu    sync.Mutex
	links map[uuid.UUID]domain.SharedLink
}

func newFakeShareStore() *fakeShareStore {
	return &fakeShareStore{links: make(map[uuid.UUID]domain.SharedLink)}
}

func (s *fakeShareStore) Insert(_ context.Context, link *domain.SharedLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.ID] = *link
	return nil
}

func (s *fakeShareStore) GetByToken(_ context.Context, token string) (*domain.SharedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.Token == token {
			cp := l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeShareStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.links, id)
	return nil
}

func (s *fakeShareStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.links {
		if l.ExpiredAt(now) {
			delete(s.links, id)
			n++
		}
	}
	return n, nil
}

type fakeGuestStore struct {
	mu      sync.Mutex
	byEmail map[string]domain.GuestIdentity
	inserts int
	// hideOnce makes the next lookup miss, as if another writer inserted concurrently.
	hideOnce bool
}

func newFakeGuestStore() *fakeGuestStore {
	return &fakeGuestStore{byEmail: make(map[string]domain.GuestIdentity)}
}

func (s *fakeGuestStore) GetByEmail(_ context.Context, email string) (*domain.GuestIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideOnce {
		s.hideOnce = false
		return nil, domain.ErrNotFound
	}
	g, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &g, nil
}

func (s *fakeGuestStore) Insert(_ context.Context, g *domain.GuestIdentity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(g.Email)
	if _, ok := s.byEmail[key]; ok {
		return false, nil
	}
	s.inserts++
	s.byEmail[key] = *g
	return true, nil
}

type fakeBlobStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	putErr   map[string]error
	rmErr    map[string]error
	now      func() time.Time
	// afterPut runs after every successful put.
	afterPut func(path string)
	removed  []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
		putErr:   make(map[string]error),
		rmErr:    make(map[string]error),
		now:      time.Now,
	}
}

func (s *fakeBlobStore) Put(ctx context.Context, path string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.putErr[path]; err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.objects[path]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", s3.ErrObjectExists, path)
	}
	s.objects[path] = append([]byte(nil), data...)
	s.modified[path] = s.now()
	hook := s.afterPut
	s.mu.Unlock()

	if hook != nil {
		hook(path)
	}
	return nil
}

func (s *fakeBlobStore) Remove(ctx context.Context, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		if err := s.rmErr[p]; err != nil {
			return err
		}
		delete(s.objects, p)
		delete(s.modified, p)
		s.removed = append(s.removed, p)
	}
	return nil
}

// Modified treats objects seeded directly into the map as just written.
func (s *fakeBlobStore) Modified(_ context.Context, path string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[path]; !ok {
		return time.Time{}, fmt.Errorf("%w: %s", s3.ErrObjectNotFound, path)
	}
	if t, ok := s.modified[path]; ok {
		return t, nil
	}
	return s.now(), nil
}

func (s *fakeBlobStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://blobs.test/%s?ttl=%d", path, int(ttl.Seconds())), nil
}

func (s *fakeBlobStore) PublicURL(path string) string {
	return "https://cdn.test/" + path
}

func (s *fakeBlobStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fakeRenderer struct {
	err error
}

func (r *fakeRenderer) Supports(mime string) bool { return strings.HasPrefix(mime, "image/") }

func (r *fakeRenderer) Render(data []byte) (*preview.Result, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &preview.Result{Data: []byte("jpeg:" + string(data[:4])), Width: 1280, Height: 720, SourceWidth: 3840, SourceHeight: 2160}, nil
}

type fakeProber struct {
	duration float64
	err      error
}

func (p *fakeProber) Duration(context.Context, []byte, string) (float64, error) {
	return p.duration, p.err
}

var errDBDown = errors.New("db down")

var pngData = append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake image payload")...)

// harness wires every service against in-memory fakes.
type harness struct {
	clock     *fakeClock
	arts      *fakeArtStore
	approvals *fakeApprovalStore
	feedbackS *fakeFeedbackStore
	shares    *fakeShareStore
	guests    *fakeGuestStore
	blobs     *fakeBlobStore
	prober    *fakeProber

	ledger    *LedgerService
	approval  *ApprovalService
	ingestion *IngestionService
	gate      *AccessGate
	share     *ShareService
	identity  *IdentityResolver
	feedback  *FeedbackService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := discardLogger()
	h := &harness{
		clock:     newFakeClock(),
		arts:      newFakeArtStore(),
		feedbackS: &fakeFeedbackStore{},
		shares:    newFakeShareStore(),
		guests:    newFakeGuestStore(),
		blobs:     newFakeBlobStore(),
		prober:    &fakeProber{duration: 12.5},
	}
	h.blobs.now = h.clock.Now
	h.approvals = newFakeApprovalStore(h.arts)

	h.ledger = NewLedgerService(h.arts, DefaultMaxVersionAttempts, logger)
	h.approval = NewApprovalService(h.arts, h.approvals, h.clock, logger)
	h.ingestion = NewIngestionService(h.ledger, h.arts, h.approval, h.blobs, &fakeRenderer{}, h.prober, h.clock,
		IngestionConfig{UploadTimeout: time.Second, CleanupTimeout: time.Second, OrphanAge: time.Minute}, logger)
	h.gate = NewAccessGate(h.shares, h.clock, logger)
	h.share = NewShareService(h.shares, h.arts, h.clock, logger)
	h.identity = NewIdentityResolver(h.guests, logger)
	h.feedback = NewFeedbackService(h.feedbackS, h.arts, h.clock, logger)
	return h
}

func (h *harness) createArt(t *testing.T) *domain.Art {
	t.Helper()
	art, err := h.ledger.CreateArt(context.Background(), "Key visual", "image", "proj-1", "author-1")
	if err != nil {
		t.Fatalf("create art: %v", err)
	}
	return art
}

func (h *harness) upload(t *testing.T, artID uuid.UUID, ready bool) *domain.ArtVersion {
	t.Helper()
	v, err := h.ingestion.Upload(context.Background(), UploadInput{ArtID: artID, Filename: "kv.png", Data: pngData, ReadyForReview: ready})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return v
}
