package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/quayside/gatehouse/internal/gatehouse/cache"
	httpapi "github.com/quayside/gatehouse/internal/gatehouse/http"
	"github.com/quayside/gatehouse/internal/gatehouse/mail"
	"github.com/quayside/gatehouse/internal/gatehouse/queue"
	"github.com/quayside/gatehouse/internal/gatehouse/service"
	"github.com/quayside/gatehouse/internal/gatehouse/store"
	"github.com/quayside/gatehouse/internal/gatehouse/store/drivers/sqlite"
	"github.com/quayside/gatehouse/pkg/cryptox"
	"github.com/quayside/gatehouse/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gatehouse service with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	redis   *redis.Client
	cache   cache.Cache
	mailbox queue.Queue

	// Services
	tokenService  *service.TokenService
	authenticator *service.Authenticator
	sessions      *service.Sessions
	accounts      *service.AccountService
	gatekeeper    service.Gatekeeper

	// Background mail delivery
	worker       *queue.Worker
	workerCancel context.CancelFunc
	workerDone   chan struct{}

	// HTTP server
	api    http.Handler
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
// api is the backend GraphQL executor mounted at POST /graphql; pass nil to
// run the authentication surface alone.
func New(cfg Config, api http.Handler) (*Application, error) {
	app := &Application{
		cfg: cfg,
		api: api,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.Domain == "" {
		return nil, fmt.Errorf("GATEHOUSE_DOMAIN is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("GATEHOUSE_ALLOWED_ORIGINS is required")
	}
	if cfg.MasterKey == "" {
		return nil, fmt.Errorf("GATEHOUSE_MASTER_KEY is required")
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initRedis()

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initWorker()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	if app.worker != nil {
		ctx, cancel := context.WithCancel(context.Background())
		app.workerCancel = cancel
		app.workerDone = make(chan struct{})
		go func() {
			defer close(app.workerDone)
			app.worker.Run(ctx)
		}()
	}

	app.logger.Info("gatehouse starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatehouse...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the mail worker and wait for the in-flight task
	if app.workerCancel != nil {
		app.workerCancel()
		select {
		case <-app.workerDone:
		case <-ctx.Done():
			app.logger.Warn("mail worker did not stop in time")
		}
	}

	if err := app.redis.Close(); err != nil {
		app.logger.Error("error closing redis client", "error", err)
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gatehouse stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initRedis wires the shared Redis client behind the cache and mail queue.
func (app *Application) initRedis() {
	app.redis = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	app.cache = cache.NewRedis(app.redis, "gatehouse")
	app.mailbox = queue.NewRedis(app.redis, app.cfg.MailQueueName)
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	accessCodec, err := buildCodec(app.cfg.AccessTokenAlgorithm, app.cfg.AccessTokenSecret, app.cfg.AccessTokenKeyFile)
	if err != nil {
		return fmt.Errorf("access token codec: %w", err)
	}

	refreshCodec, err := buildCodec(app.cfg.RefreshTokenAlgorithm, app.cfg.RefreshTokenSecret, app.cfg.RefreshTokenKeyFile)
	if err != nil {
		return fmt.Errorf("refresh token codec: %w", err)
	}

	binder, err := cryptox.NewBinder(app.cfg.FingerprintAlgorithm)
	if err != nil {
		return fmt.Errorf("fingerprint binder: %w", err)
	}

	secrets, err := cryptox.NewSecretCipher([]byte(app.cfg.MasterKey))
	if err != nil {
		return fmt.Errorf("secret cipher: %w", err)
	}

	app.tokenService = &service.TokenService{
		AccessCodec:  accessCodec,
		RefreshCodec: refreshCodec,
		Binder:       binder,
		Issuer:       app.cfg.Domain,
		AccessTTL:    app.cfg.AccessTokenTTL,
		RefreshTTL:   app.cfg.RefreshTokenTTL,
	}

	app.authenticator = &service.Authenticator{
		AccessCodec:    accessCodec,
		RefreshCodec:   refreshCodec,
		Binder:         binder,
		Secrets:        secrets,
		Store:          app.db,
		Issuer:         app.cfg.Domain,
		AllowedOrigins: app.cfg.AllowedOrigins,
		AccessTTL:      app.cfg.AccessTokenTTL,
		RefreshTTL:     app.cfg.RefreshTokenTTL,
	}

	app.sessions = &service.Sessions{
		Tokens: app.tokenService,
		Auth:   app.authenticator,
	}

	app.accounts = &service.AccountService{
		Store:   app.db,
		Secrets: secrets,
	}

	switch app.cfg.RateLimitStrategy {
	case "growing":
		app.gatekeeper = &service.GrowingWindowLimiter{
			Cache:        app.cache,
			Limit:        app.cfg.RateLimitRequests,
			BaseWindow:   app.cfg.RateLimitWindow,
			MaxDoublings: app.cfg.RateLimitMaxDoublings,
		}
		app.logger.Info("rate limiting with growing windows",
			"limit", app.cfg.RateLimitRequests,
			"base_window", app.cfg.RateLimitWindow,
		)
	case "sliding":
		fallthrough
	default:
		app.gatekeeper = &service.SlidingWindowLimiter{
			Cache:  app.cache,
			Limit:  app.cfg.RateLimitRequests,
			Window: app.cfg.RateLimitWindow,
		}
		app.logger.Info("rate limiting with sliding windows",
			"limit", app.cfg.RateLimitRequests,
			"window", app.cfg.RateLimitWindow,
		)
	}

	return nil
}

// initWorker starts mail delivery only when a relay is configured; queued
// tasks simply accumulate otherwise.
func (app *Application) initWorker() {
	if app.cfg.SMTPAddr == "" {
		app.logger.Warn("SMTP_ADDR unset, outbound mail disabled")
		return
	}

	app.worker = &queue.Worker{
		Queue: app.mailbox,
		Mailer: &mail.SMTP{
			Addr: app.cfg.SMTPAddr,
			From: app.cfg.SMTPFrom,
		},
		Throttle: rate.NewLimiter(rate.Limit(app.cfg.MailPerSecond), 1),
		Logger:   app.logger,
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.db, app.cache, app.logger)

	// Wire services to router
	router.Gatekeeper = app.gatekeeper
	router.Authenticator = app.authenticator
	router.Sessions = app.sessions
	router.Accounts = app.accounts
	router.Mail = app.mailbox
	router.API = app.api
	router.AllowedOrigins = app.cfg.AllowedOrigins
	router.RateLimitWindow = app.cfg.RateLimitWindow
	router.RefreshTTL = app.cfg.RefreshTokenTTL
	router.SecureCookies = app.cfg.SecureCookies
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// Handler exposes the configured router, mainly for tests.
func (app *Application) Handler() http.Handler {
	return app.router
}
