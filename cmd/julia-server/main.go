package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/julia/julia/internal/config"
	"github.com/julia/julia/internal/domain/conversation"
	"github.com/julia/julia/internal/domain/evaluation"
	"github.com/julia/julia/internal/domain/identity"
	"github.com/julia/julia/internal/domain/notification"
	"github.com/julia/julia/internal/domain/sessionnote"
	"github.com/julia/julia/internal/platform/ai"
	"github.com/julia/julia/internal/platform/auth"
	"github.com/julia/julia/internal/platform/blobstore"
	"github.com/julia/julia/internal/platform/db"
	"github.com/julia/julia/internal/platform/middleware"
	delivery "github.com/julia/julia/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "julia-server",
		Short: "Julia therapy-support API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s)\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "migrations", "migrations directory")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%4d  %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "migrations", "migrations directory")

	cmd.AddCommand(upCmd)
	cmd.AddCommand(statusCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// AI provider
	var provider ai.Provider
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init gemini provider")
		}
		defer gemini.Close()
		provider = gemini
	} else {
		logger.Warn().Msg("GEMINI_API_KEY not set, using the canned provider")
		provider = &ai.MockProvider{}
	}

	// Blob store
	var blobs blobstore.Store
	if cfg.S3Bucket != "" {
		s3store, err := blobstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init s3 store")
		}
		blobs = s3store
	} else {
		logger.Warn().Msg("S3_BUCKET not set, session-note files are kept in memory")
		blobs = blobstore.NewMemoryStore()
	}

	// Outbound delivery
	var email delivery.EmailSender
	if cfg.MailAPIKey != "" {
		email = delivery.NewMailjetSender(cfg.MailAPIKey, cfg.MailSecretKey, cfg.MailFrom, cfg.MailFromName, logger)
	} else {
		logger.Warn().Msg("MAIL_API_KEY not set, emails are recorded but not delivered")
		email = &delivery.MockEmailSender{}
	}
	push := delivery.NewExpoPushSender(logger)

	// Auth
	tokens := auth.NewManager(cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)

	// Repositories
	professionalRepo := identity.NewProfessionalRepoPG(pool)
	patientRepo := identity.NewPatientRepoPG(pool)
	consentRepo := identity.NewConsentRepoPG(pool)
	conversationRepo := conversation.NewRepoPG(pool)
	evaluationRepo := evaluation.NewRepoPG(pool)
	notificationRepo := notification.NewRepoPG(pool)
	sessionNoteRepo := sessionnote.NewRepoPG(pool)

	// Services
	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	identitySvc := identity.NewService(professionalRepo, patientRepo, consentRepo, conversationRepo, tokens, email, txRunner, cfg.FrontendURL, logger)
	notificationSvc := notification.NewService(notificationRepo, professionalRepo, push, logger)
	conversationSvc := conversation.NewService(conversationRepo, patientRepo, provider, notificationSvc, logger)
	evaluationSvc := evaluation.NewService(evaluationRepo, patientRepo, logger)
	sessionNoteSvc := sessionnote.NewService(sessionNoteRepo, patientRepo, blobs, provider, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M", "25M"))
	e.Use(middleware.RequestTimeout(60 * time.Second))

	e.Use(auth.Middleware(tokens,
		"/api/v1/auth/register",
		"/api/v1/auth/login",
		"/api/v1/auth/verify-magic-link",
		"/health",
		"/health/db",
	))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Routes
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	conversation.NewHandler(conversationSvc).RegisterRoutes(apiV1)
	evaluation.NewHandler(evaluationSvc).RegisterRoutes(apiV1)
	notification.NewHandler(notificationSvc).RegisterRoutes(apiV1)
	sessionnote.NewHandler(sessionNoteSvc).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// httpErrorHandler renders every error as {success:false, message}.
func httpErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, map[string]interface{}{
			"success": false,
			"message": message,
		})
	}
}
