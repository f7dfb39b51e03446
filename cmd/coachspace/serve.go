package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/handler"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/blob"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/cache"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/resilience"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/supabase"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmdContext(cmd))
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, logger := a.cfg, a.logger

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Bool("use_supabase", cfg.SupabaseEnabled()),
		zap.Bool("blob_storage", cfg.BlobEnabled()),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("portal_session_ttl", cfg.PortalSessionTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "coachspace-api")
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	checks := []handler.HealthCheck{
		{Name: "store-" + cfg.StoreDriver, Ping: a.store.Ping},
	}

	// --- Supabase ---
	var (
		remoteTasks port.RemoteTaskStore
		feedback    port.FeedbackStore
		remoteAuth  port.SessionVerifier
	)
	if cfg.SupabaseEnabled() {
		logger.Info("using Supabase for tasks, feedback and admin auth",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		sb := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilience.Config{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: cfg.InitialBackoff,
				MaxConcurrency: cfg.MaxConcurrency,
			},
			a.metrics,
			logger,
		)
		remoteTasks, feedback, remoteAuth = sb, sb, sb
		checks = append(checks, handler.HealthCheck{Name: "supabase", Ping: sb.Ping})
	} else {
		logger.Warn("supabase not configured, tasks stay local and feedback is only logged")
	}

	// --- Document blobs ---
	var blobs port.BlobStorage
	if cfg.BlobEnabled() {
		s3, err := blob.NewS3(ctx, blob.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
		}, logger)
		if err != nil {
			return fmt.Errorf("init blob storage: %w", err)
		}
		blobs = s3
		logger.Info("document bodies stored in bucket", zap.String("bucket", cfg.S3Bucket))
	}

	// --- Services ---
	portalSessions := cache.New[service.PortalSession](cfg.PortalSessionTTL)
	defer portalSessions.Close()

	portalSvc := service.NewPortalService(a.store, portalSessions, service.PortalConfig{
		AttemptsPerMinute: cfg.PortalAttemptsPerMinute,
	}, a.metrics, logger)
	taskSvc := service.NewTaskService(a.store, remoteTasks, cfg.MaxConcurrency, cfg.OwnerID, a.metrics, logger)
	docSvc := service.NewDocumentService(a.store, blobs, logger)
	feedbackSvc := service.NewFeedbackService(feedback, a.feed, logger)

	verifier := service.NewSessionVerifier(cfg.SupabaseJWTSecret, remoteAuth)
	if verifier == nil {
		logger.Warn("admin API is open: no JWT secret or Supabase configured", zap.String("owner_id", cfg.OwnerID))
	}

	// --- Scheduler ---
	scheduler, err := service.NewInvoiceScheduler(a.store, cfg.RecurringInvoiceSchedule, logger)
	if err != nil {
		return fmt.Errorf("invoice schedule %q: %w", cfg.RecurringInvoiceSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Store:              a.store,
		Portal:             portalSvc,
		Tasks:              taskSvc,
		Documents:          docSvc,
		Feedback:           feedbackSvc,
		Scheduler:          scheduler,
		Feed:               a.feed,
		Verifier:           verifier,
		OwnerID:            cfg.OwnerID,
		PortalBaseURL:      cfg.PortalBaseURL,
		Checks:             checks,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, a.metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
