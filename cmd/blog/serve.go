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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "github.com/xiaozining525-dotcom/bk/docs"
	"github.com/xiaozining525-dotcom/bk/internal/config"
	"github.com/xiaozining525-dotcom/bk/internal/handlers"
	"github.com/xiaozining525-dotcom/bk/internal/logger"
	"github.com/xiaozining525-dotcom/bk/internal/middleware"
	"github.com/xiaozining525-dotcom/bk/internal/migrations"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"github.com/xiaozining525-dotcom/bk/internal/repositories"
	"github.com/xiaozining525-dotcom/bk/internal/scheduler"
	"github.com/xiaozining525-dotcom/bk/internal/services"
	"github.com/xiaozining525-dotcom/bk/internal/tasks"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the blog HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(config.Load)
		if err != nil {
			return err
		}
		defer logger.Sync()
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) error {
	log := logger.Logger

	db, err := connectDB(cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		return err
	}
	log.Info("Migrations completed successfully")

	rdb, err := connectRedis(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db, log)
	postRepo := repositories.NewPostRepository(db, log)
	sessionRepo := repositories.NewSessionRepository(rdb, log)
	attemptRepo := repositories.NewLoginAttemptRepository(rdb, log)
	docRepo := repositories.NewDocumentRepository(rdb, log)

	// Background alerts
	taskClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer taskClient.Close()
	alerts := newAlertEnqueuer(taskClient, cfg, log)

	// Initialize services
	captcha := services.NewTurnstileVerifier(cfg.Captcha.Secret, cfg.Captcha.VerifyURL, log)
	authService := services.NewAuthService(userRepo, sessionRepo, attemptRepo, captcha, alerts, log)
	feedService := services.NewFeedService(postRepo, docRepo, services.SiteInfo{
		Title:       cfg.Site.Title,
		Description: cfg.Site.Description,
		Language:    cfg.Site.Language,
	}, log)
	postService := services.NewPostService(postRepo, feedService, log)
	userService := services.NewUserService(userRepo, log)

	// Initialize handlers
	siteHandler := handlers.NewSiteHandler(models.SiteConfig{
		VideoURL:        cfg.Site.VideoURL,
		MusicURL:        cfg.Site.MusicURL,
		AvatarURL:       cfg.Site.AvatarURL,
		EnableTurnstile: captcha.Enabled(),
	}, map[string]handlers.HealthCheck{
		"database": db.PingContext,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}, log)
	authHandler := handlers.NewAuthHandler(authService, log)
	postHandler := handlers.NewPostHandler(postService, log)
	userHandler := handlers.NewUserHandler(userService, log)
	feedHandler := handlers.NewFeedHandler(feedService, cfg.Site.URL, log)

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(middleware.RequestSizeLimitMiddleware(middleware.MaxRequestSize))
	r.Use(middleware.SessionMiddleware(authService, log))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://localhost:%d/swagger/doc.json", cfg.Server.Port)),
	))

	siteHandler.RegisterRoutes(r)
	authHandler.RegisterRoutes(r)
	postHandler.RegisterRoutes(r)
	userHandler.RegisterRoutes(r)
	feedHandler.RegisterRoutes(r)

	// Keep feed and sitemap warm when the public URL is known
	if cfg.Site.URL != "" {
		sched, err := scheduler.New(cfg.Feed.RefreshSchedule, cfg.Site.URL, feedService, log)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
		log.Info("Feed refresh scheduled",
			zap.String("schedule", cfg.Feed.RefreshSchedule),
			zap.Time("next_run", sched.NextRun()),
		)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

// newAlertEnqueuer wires lockout alerts to the task queue when a recipient is configured
func newAlertEnqueuer(client *asynq.Client, cfg *config.Config, log *zap.Logger) services.AlertEnqueuer {
	if cfg.Alerts.Email == "" {
		log.Info("Lockout alerts disabled")
	}
	return tasks.NewAlertEnqueuer(client, cfg.Alerts.Email != "", log)
}
