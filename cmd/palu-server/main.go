package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/palu-ci/palu/internal/config"
	"github.com/palu-ci/palu/internal/domain/consultation"
	"github.com/palu-ci/palu/internal/domain/patient"
	"github.com/palu-ci/palu/internal/platform/auth"
	"github.com/palu-ci/palu/internal/platform/db"
	"github.com/palu-ci/palu/internal/platform/external"
	"github.com/palu-ci/palu/internal/platform/extraction"
	"github.com/palu-ci/palu/internal/platform/metrics"
	"github.com/palu-ci/palu/internal/platform/middleware"
	"github.com/palu-ci/palu/internal/platform/reporting"
	"github.com/palu-ci/palu/internal/platform/webhook"
)

const version = "0.3.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "palu-server",
		Short:         "Malaria consultation collection API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(importCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

// newConsultationService builds the intake service with whichever optional
// collaborators the configuration enables.
func newConsultationService(cfg *config.Config, repo consultation.Repository, logger zerolog.Logger) *consultation.Service {
	svc := consultation.NewService(repo, logger)
	svc.SetRecorder(metrics.Recorder{})
	if cfg.ExtractionEnabled() {
		svc.SetExtractor(extraction.NewClient(extraction.Config{
			APIKey: cfg.PerplexityAPIKey,
			URL:    cfg.PerplexityAPIURL,
			Model:  cfg.PerplexityModel,
		}))
	}
	if cfg.ExternalSourceURL != "" {
		svc.SetExternalSource(external.NewClient(cfg.ExternalSourceURL, nil))
	}
	return svc
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(1<<20, cfg.MaxUploadBytes, "/api/v1/imports"))
	e.Use(middleware.RequestTimeout(30*time.Second,
		"/api/v1/imports", "/api/v1/extractions", "/api/v1/notes", "/api/v1/external/sync"))

	if cfg.AuthEnabled() {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	} else {
		logger.Warn().Msg("authentication disabled, using development identity")
		e.Use(auth.DevAuthMiddleware())
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	dispatcher := newDispatcher(cfg, logger)
	webhook.NewHandler(dispatcher).RegisterRoutes(apiV1)

	consultationSvc := newConsultationService(cfg, consultation.NewRepo(pool), logger)
	if dispatcher.Endpoints() > 0 {
		consultationSvc.SetAlertPublisher(severeCaseAlerts{dispatcher: dispatcher, log: logger})
	}
	consultation.NewHandler(consultationSvc).RegisterRoutes(apiV1)

	patientSvc := patient.NewService(patient.NewRepo(pool), consultationSvc, pool, logger)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	reporting.NewHandler(reporting.NewRunner(pool)).RegisterRoutes(apiV1)

	servers := []*http.Server{{Addr: ":" + cfg.Port, Handler: e}}
	if cfg.MetricsPort != "" && cfg.MetricsPort != cfg.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux})
	} else {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	for _, srv := range servers {
		srv.ReadHeaderTimeout = 10 * time.Second
		g.Go(func() error {
			logger.Info().Str("addr", srv.Addr).Msg("starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []string
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("shutdown: %s", strings.Join(errs, "; "))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
