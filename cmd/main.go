package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"artreview/internal/auth"
	"artreview/internal/config"
	"artreview/internal/handler"
	"artreview/internal/media"
	"artreview/internal/preview"
	"artreview/internal/repository"
	"artreview/internal/service"
	"artreview/internal/service/s3"
)

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the optional config file")
	flag.Parse()

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := repository.Migrate(cfg.Database.DSN, cfg.Database.MigrationsDir, logger); err != nil {
		return err
	}
	db, err := repository.Connect(ctx, cfg.Database.DSN, cfg.Database.ConnectAttempts, cfg.Database.ConnectDelay, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	blobs, err := s3.NewClient(ctx, &cfg.S3)
	if err != nil {
		return err
	}

	revocations, err := auth.NewRedisRevocations(ctx, cfg.Auth.RedisURL)
	if err != nil {
		return err
	}
	defer revocations.Close()
	verifier := auth.NewVerifier(cfg.Auth, revocations)

	arts := repository.NewArtRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	shareRepo := repository.NewShareRepository(db)
	guestRepo := repository.NewGuestRepository(db)
	clock := service.SystemClock{}

	ledger := service.NewLedgerService(arts, cfg.Ingestion.MaxVersionAttempts, logger)
	approvals := service.NewApprovalService(arts, approvalRepo, clock, logger)
	ingestion := service.NewIngestionService(
		ledger,
		arts,
		approvals,
		blobs,
		preview.NewRenderer(cfg.Ingestion.PreviewMaxWidth),
		media.NewProber(cfg.Ingestion.TempDir),
		clock,
		service.IngestionConfig{
			UploadTimeout:  cfg.Ingestion.UploadTimeout,
			CleanupTimeout: cfg.Ingestion.CleanupTimeout,
			OrphanAge:      cfg.Ingestion.OrphanAge,
			MaxSourceBytes: cfg.Ingestion.MaxSourceBytes,
			MaxAudioBytes:  cfg.Ingestion.MaxAudioBytes,
		},
		logger,
	)
	shares := service.NewShareService(shareRepo, arts, clock, logger)
	shares.StartCleanupTask(ctx, cfg.Share.CleanupInterval)

	h := handler.NewHandler(handler.Services{
		Ledger:    ledger,
		Ingestion: ingestion,
		Approvals: approvals,
		Feedback:  service.NewFeedbackService(feedbackRepo, arts, clock, logger),
		Shares:    shares,
		Gate:      service.NewAccessGate(shareRepo, clock, logger),
		Identity:  service.NewIdentityResolver(guestRepo, logger),
		Sessions:  verifier,
	}, blobs, handler.Options{
		SignedURLTTL:   cfg.Share.SignedURLTTL,
		MaxUploadBytes: cfg.Ingestion.MaxSourceBytes,
		Ping:           db.PingContext,
	}, logger)

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: handler.NewRouter(h, verifier, handler.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.WriteTimeout,
		}, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", slog.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server exited properly")
	return nil
}
