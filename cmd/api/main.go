package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/osnovci/internal/auth"
	"github.com/BradenHooton/osnovci/internal/background"
	"github.com/BradenHooton/osnovci/internal/cache"
	"github.com/BradenHooton/osnovci/internal/config"
	"github.com/BradenHooton/osnovci/internal/database"
	"github.com/BradenHooton/osnovci/internal/handlers"
	"github.com/BradenHooton/osnovci/internal/metrics"
	middlewareCustom "github.com/BradenHooton/osnovci/internal/middleware"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/BradenHooton/osnovci/internal/repositories"
	"github.com/BradenHooton/osnovci/internal/routes"
	"github.com/BradenHooton/osnovci/internal/services"
	pkgauth "github.com/BradenHooton/osnovci/pkg/auth"
	pkghttp "github.com/BradenHooton/osnovci/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("email_provider", cfg.Email.Provider))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	cacheClient, err := cache.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer cacheClient.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	linkRequestRepo := repositories.NewLinkRequestRepository(db)
	guardianLinkRepo := repositories.NewGuardianLinkRepository(db)
	parentalLockRepo := repositories.NewParentalLockRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(cacheClient)
	lockoutStore := repositories.NewRedisLockoutStore(cacheClient)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Links.QRTokenTTL)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	emailSender, err := newEmailSender(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}
	mailer := services.NewAsyncMailer(emailSender, cfg.Email.SendTimeout, logger)

	// Services
	auditService := services.NewAuditService(auditRepo, logger)

	lockoutService := services.NewLockoutService(lockoutStore, auditService, services.LockoutConfig{
		MaxAttempts:  cfg.Auth.LockoutMaxAttempts,
		LockDuration: cfg.Auth.LockoutDuration,
	}, logger)

	authService := services.NewAuthService(services.AuthServiceDeps{
		Users:           userRepo,
		Tokens:          tokenManager,
		Revocations:     revokeRepo,
		Lockout:         lockoutService,
		LoginAttempts:   loginAttemptRepo,
		Notifier:        mailer,
		Timing:          timingDelay,
		Audit:           auditService,
		LoginHistoryTTL: cfg.Auth.LoginHistoryTTL,
	}, logger)

	linkService := services.NewLinkService(services.LinkServiceDeps{
		Requests: linkRequestRepo,
		Links:    guardianLinkRepo,
		Users:    userRepo,
		Tokens:   tokenManager,
		Mailer:   mailer,
		Audit:    auditService,
	}, services.LinkServiceConfig{
		CodeTTL:             cfg.Links.CodeTTL,
		VerificationURLBase: cfg.Links.VerificationURLBase,
	}, logger)

	parentalLockService := services.NewParentalLockService(parentalLockRepo, linkService, lockoutService, auditService, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Client IPs come from ExtractClientIP with the trusted proxy list, so
	// middleware.RealIP is not installed.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		Auth:         handlers.NewAuthHandler(authService, ipConfig),
		Links:        handlers.NewLinkHandler(linkService),
		ParentalLock: handlers.NewParentalLockHandler(parentalLockService),
		Admin:        handlers.NewAdminHandler(lockoutService),
		Audit:        handlers.NewAuditHandler(auditService),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthChecker{
			"postgres": db,
			"redis":    cacheClient,
		}),
		Tokens:      tokenManager,
		Revocations: revokeRepo,
		Revocation:  auth.RevocationConfig{FailClosed: cfg.Server.Env == "production"},
		IPConfig:    ipConfig,
		Logger:      logger,
	})

	cleanupManager := background.NewCleanupManager(logger, cfg.Auth.CleanupInterval,
		background.LockoutJob(lockoutService),
		background.LinkJob(linkService),
		background.LoginHistoryJob(authService),
		background.AuditRetentionJob(auditService, cfg.Auth.AuditRetentionDays),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()
	cleanupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// let queued lockout notices and verification emails finish
	mailer.Wait()

	logger.Info("server stopped gracefully")
}

func newEmailSender(cfg *config.Config, logger *slog.Logger) (services.EmailService, error) {
	if cfg.Email.Provider == "log" {
		return services.NewLogEmailService(logger), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return services.NewAWSSESEmailService(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
}

func parseLogLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := services.NormalizeEmail(os.Getenv("ADMIN_EMAIL"))
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	_, err = userRepo.Create(ctx, &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         models.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
