package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"artreview/internal/auth"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(h *Handler, verifier *auth.Verifier, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(Metrics)
	r.Use(RequestLogger(logger.With(slog.String("component", "http"))))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", shareTokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(Authenticate(verifier, logger))

		r.Post("/logout", h.Logout)
		r.Post("/arts", h.CreateArt)
		r.Route("/arts/{id}", func(r chi.Router) {
			r.Post("/versions", h.UploadVersion)
			r.Get("/versions", h.ListVersions)
			r.Get("/versions/current", h.GetCurrentVersion)
			r.Get("/versions/{n}", h.GetVersion)
			r.Get("/versions/{n}/approvals", h.GetApprovals)
			r.Post("/versions/{n}/override", h.Override)
			r.Post("/versions/{n}/attachments", h.AttachAudio)
			r.Post("/approval-requests", h.OpenApprovalRequest)
			r.Get("/feedback", h.ListArtFeedback)
			r.Post("/shares", h.CreateShare)
		})

		r.Patch("/approval-requests/{id}/decisions", h.Decide)

		r.Post("/feedback", h.PostFeedback)
		r.Get("/feedback/{id}", h.GetFeedback)
		r.Patch("/feedback/{id}/status", h.SetFeedbackStatus)
		r.Get("/versions/{id}/feedback", h.ListVersionFeedback)

		r.Delete("/shares/{id}", h.DeleteShare)
		r.Get("/shared/{token}", h.GetShared)
	})

	return r
}
