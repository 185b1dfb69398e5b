package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"artreview/internal/auth"
	"artreview/internal/domain"
	"artreview/internal/service"
	"artreview/internal/service/s3"
)

// SessionRevoker ends an internal session before its token expires.
type SessionRevoker interface {
	Revoke(ctx context.Context, p *auth.Principal) error
}

// Services groups what the HTTP layer calls into.
type Services struct {
	Ledger    *service.LedgerService
	Ingestion *service.IngestionService
	Approvals *service.ApprovalService
	Feedback  *service.FeedbackService
	Shares    *service.ShareService
	Gate      *service.AccessGate
	Identity  *service.IdentityResolver
	Sessions  SessionRevoker
}

type Options struct {
	SignedURLTTL   time.Duration
	MaxUploadBytes int64
	// Ping reports readiness of the backing database.
	Ping func(ctx context.Context) error
}

type Handler struct {
	ledger    *service.LedgerService
	ingestion *service.IngestionService
	approvals *service.ApprovalService
	feedback  *service.FeedbackService
	shares    *service.ShareService
	gate      *service.AccessGate
	identity  *service.IdentityResolver
	sessions  SessionRevoker
	blobs     s3.Storage
	opts      Options
	logger    *slog.Logger
}

func NewHandler(svc Services, blobs s3.Storage, opts Options, logger *slog.Logger) *Handler {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 15 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	return &Handler{
		ledger:    svc.Ledger,
		ingestion: svc.Ingestion,
		approvals: svc.Approvals,
		feedback:  svc.Feedback,
		shares:    svc.Shares,
		gate:      svc.Gate,
		identity:  svc.Identity,
		sessions:  svc.Sessions,
		blobs:     blobs,
		opts:      opts,
		logger:    logger.With(slog.String("component", "http")),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Logout revokes the caller's bearer token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if p == nil {
		h.fail(w, r, domain.ErrUnauthenticated)
		return
	}
	if err := h.sessions.Revoke(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("session revoked", slog.String("user_id", p.UserID))
	w.WriteHeader(http.StatusNoContent)
}

// internalUser returns the session identity or ErrUnauthenticated.
func (h *Handler) internalUser(r *http.Request) (*domain.InternalIdentity, error) {
	return h.identity.ResolveInternal(auth.FromContext(r.Context()))
}

// guestDetails are the optional identity fields a guest sends with a write.
type guestDetails struct {
	GuestEmail *string `json:"guestEmail,omitempty"`
	GuestName  *string `json:"guestName,omitempty"`
}

// access checks that the caller may perform action on artID. Internal users get a
// nil capability; guests get the one their share token grants.
func (h *Handler) access(r *http.Request, artID uuid.UUID, action domain.Action) (*domain.Capability, error) {
	if p := auth.FromContext(r.Context()); p != nil {
		if _, err := h.identity.ResolveInternal(p); err != nil {
			return nil, err
		}
		return nil, nil
	}

	token := r.Header.Get(shareTokenHeader)
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	capability, err := h.gate.Authorize(r.Context(), token, artID, action)
	if err != nil {
		return nil, err
	}
	return &capability, nil
}

// actor resolves who is writing on artID. A session wins over a share token; a
// guest also has to name an email address.
func (h *Handler) actor(r *http.Request, artID uuid.UUID, action domain.Action, guest guestDetails) (domain.Actor, error) {
	capability, err := h.access(r, artID, action)
	if err != nil {
		return domain.Actor{}, err
	}
	if capability == nil {
		id, err := h.internalUser(r)
		if err != nil {
			return domain.Actor{}, err
		}
		return domain.InternalActor(*id), nil
	}

	if guest.GuestEmail == nil {
		return domain.Actor{}, domain.Validationf("guestEmail is required when writing through a share link")
	}
	identity, err := h.identity.ResolveGuest(r.Context(), *guest.GuestEmail, guest.GuestName)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.GuestActor(*identity, *capability), nil
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

func versionParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 {
		return 0, domain.Validationf("invalid version number")
	}
	return n, nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}
