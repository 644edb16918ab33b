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

	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/dangerclosesec/tenantkit/internal/config"
	"github.com/dangerclosesec/tenantkit/internal/database"
	"github.com/dangerclosesec/tenantkit/internal/email"
	"github.com/dangerclosesec/tenantkit/internal/email/mailer"
	"github.com/dangerclosesec/tenantkit/internal/handler"
	"github.com/dangerclosesec/tenantkit/internal/metrics"
	"github.com/dangerclosesec/tenantkit/internal/middleware"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/permsync"
	"github.com/dangerclosesec/tenantkit/internal/permsync/schema"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/dangerclosesec/tenantkit/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.SlogLevel(),
		AddSource: cfg.LogAddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   a.Key,
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.Version,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	// Initialize database
	db, err := database.Open(ctx, cfg.Database, logger, database.GormLevel(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("setting up database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.Gorm)
	orgRepo := repository.NewOrganizationRepository(db.Gorm)
	invitationRepo := repository.NewInvitationRepository(db.Gorm)
	activityRepo := repository.NewActivityLogRepository(db.Gorm)
	settingRepo := repository.NewSettingRepository(db.Gorm)

	m := metrics.NewDefault()

	// Initialize auth services
	passwordHasher := auth.NewPasswordHasher()
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpiryPeriod)

	// Initialize email service
	provider := email.ProviderFor(cfg)
	emailService, err := email.NewEmailService(cfg, provider)
	if err != nil {
		return fmt.Errorf("initializing email service: %w", err)
	}
	logger.Info("email provider selected", "provider", provider)
	appMailer := mailer.New(emailService, cfg.BaseURL, "TenantKit")

	mirror, err := setupMirror(cfg)
	if err != nil {
		return fmt.Errorf("initializing permission mirror: %w", err)
	}

	// Initialize cache service
	cacheService := service.NewCacheService(service.CacheConfig{
		Size: cfg.Cache.Size,
		TTL:  cfg.Cache.TTL,
	})
	m.RegisterGaugeFunc("settings_cache_entries", "Entries held in the settings cache", func() float64 {
		return float64(cacheService.Stats().Entries)
	})

	// Initialize services
	gate := service.NewAdminGate(userRepo)
	activityService := service.NewActivityLogService(activityRepo, gate, m)
	settingsService := service.NewSettingsService(settingRepo, cacheService, gate, activityService)
	accountService := service.NewAccountService(userRepo, orgRepo, settingsService, gate, passwordHasher, tokenManager, appMailer, activityService)
	onboardingService := service.NewOnboardingService(userRepo, passwordHasher, tokenManager, activityService, cfg.Auth.OnboardingToken)
	userService := service.NewUserAdminService(userRepo, gate, passwordHasher, activityService, cfg.Auth.ServiceRoleKey)
	orgService := service.NewOrganizationService(orgRepo, gate, settingsService, mirror, activityService)
	invitationService := service.NewInvitationService(invitationRepo, orgRepo, userRepo, gate, appMailer, mirror, activityService, m)

	health := handler.NewHealthChecker(cfg.Telemetry.Version).
		Require("database", db.Pool.Ping)

	redisClient, err := setupRedis(cfg)
	if err != nil {
		return fmt.Errorf("setting up redis: %w", err)
	}
	var limiter *middleware.RateLimiter
	if redisClient != nil {
		defer redisClient.Close()
		limiter = middleware.NewRateLimiter(redisClient, cfg.Redis.RateLimit, cfg.Redis.RateLimitSpan, m)
		health.Optional("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	} else {
		logger.Warn("REDIS_URL not set, rate limiting disabled")
	}

	router := handler.NewRouter(handler.RouterConfig{
		Logger:         logger,
		Tokens:         tokenManager,
		ServiceKey:     cfg.Auth.ServiceRoleKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustProxy:     cfg.Server.TrustProxyHeaders,
		Metrics:        m,
		RateLimiter:    limiter,
		Health:         health,
		Auth:           handler.NewAuthHandler(accountService),
		Onboarding:     handler.NewOnboardingHandler(onboardingService),
		Settings:       handler.NewSettingsHandler(settingsService),
		Invitations:    handler.NewInvitationHandler(invitationService),
		Organizations:  handler.NewOrganizationHandler(orgService),
		Users:          handler.NewUserAdminHandler(userService),
		ActivityLogs:   handler.NewActivityLogHandler(activityService),
	})

	sweeper := service.NewSweeper(invitationService, cfg.Invitations.SweepInterval, logger)
	if _, ok := mirror.(*permsync.Permify); ok {
		sweeper.WithReconciler(service.NewMembershipReconciler(orgRepo, mirror, logger))
	}
	sweeper.Start()

	// Create server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           otelhttp.NewHandler(router, "tenantkit-api"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Server error channel
	serverErrors := make(chan error, 1)

	// Start server
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "env", cfg.Env)
		serverErrors <- srv.ListenAndServe()
	}()

	// Shutdown channel
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown or error
	select {
	case err := <-serverErrors:
		sweeper.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutdown started", "signal", sig)

		// Give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		sweeper.Stop()

		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			// If shutdown times out, forcefully close
			srv.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// setupMirror dials Permify when PERMIFY_HOST is set; otherwise memberships
// are not mirrored anywhere.
func setupMirror(cfg *config.Config) (permsync.Mirror, error) {
	if cfg.Permify.Host == "" {
		return permsync.Noop{}, nil
	}
	s, err := schema.Default()
	if err != nil {
		return nil, err
	}
	if err := permsync.CheckSchema(s, permission.OrgRoleNames()...); err != nil {
		return nil, err
	}
	return permsync.NewPermify(cfg.Permify.Host,
		permsync.WithTenant(cfg.Permify.Tenant),
		permsync.WithSchemaVersion(cfg.Permify.SchemaVersion),
	)
}

func setupRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
