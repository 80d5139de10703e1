package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/tenantgate/pkg/api"
	"github.com/platinummonkey/tenantgate/pkg/audit"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/platinummonkey/tenantgate/pkg/kpis"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/tenancy"
	"github.com/platinummonkey/tenantgate/pkg/workspaces"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = observability.ShutdownTracing(shutdownCtx, tp, logger)
	}()

	registry := prometheus.NewRegistry()
	observability.RegisterMetrics(registry)

	conns, err := postgres.NewConnectionManager(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conns.Close()

	var redisClient *redis.Client
	if cfg.SessionsEnabled() {
		redisClient, err = postgres.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	binder, err := tenancy.NewBinder(conns.TenantPool(), logger,
		tenancy.WithTenantRole(cfg.Access.TenantRole),
		tenancy.WithClearTimeout(cfg.Access.ClearTimeout),
	)
	if err != nil {
		return err
	}

	store := workspaces.NewStore(conns.DB())
	resolver := workspaces.NewMembershipResolver(store, logger)

	validator, sessions, err := buildValidator(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}

	auditLogger, auditSearch, err := buildAudit(cfg, conns, binder, logger)
	if err != nil {
		return err
	}
	defer auditLogger.Close()

	var limiter middleware.Limiter
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Access.RateLimitRequests,
		WindowDuration:    cfg.Access.RateLimitWindow,
	}
	if redisClient != nil {
		limiter = middleware.NewDistributedRateLimiter(redisClient, limits, "")
	} else {
		local := middleware.NewRateLimiter(limits)
		local.StartCleanup(ctx)
		limiter = local
	}

	var rules []guard.Rule
	if cfg.Access.RoutesFile != "" {
		rules, err = guard.LoadRulesFile(cfg.Access.RoutesFile)
		if err != nil {
			return err
		}
	}

	health := observability.NewHealthChecker(conns.DB(), redisClient, version).
		RequireRowSecurity(postgres.IsolatedTables...)

	deps := api.Dependencies{
		Workspaces:    store,
		Lister:        binder,
		Resolver:      resolver,
		Validator:     validator,
		KPIs:          kpis.NewStore(binder),
		AuditLogger:   auditLogger,
		Limiter:       limiter,
		Rules:         rules,
		GuardOptions:  guardOptions(cfg),
		InvitationTTL: cfg.Invitations.TTL,
		Logger:        logger,
	}
	if sessions != nil {
		deps.Sessions = sessions
	}
	if auditSearch != nil {
		deps.AuditSearch = auditSearch
	}

	server, err := api.NewServer(deps)
	if err != nil {
		return err
	}

	if cfg.Invitations.CleanupSchedule != "" {
		scheduler, err := scheduleCleanup(cfg.Invitations.CleanupSchedule, store, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsMux := http.NewServeMux()
	opsMux.HandleFunc("/healthz", health.Liveness)
	opsMux.HandleFunc("/readyz", health.Readiness)
	opsMux.Handle("/metrics", observability.MetricsHandler(registry))
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Starting tenantgate API server")
		return listen(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", opsServer.Addr).Info("Starting health and metrics server")
		return listen(opsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), opsServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	}
	return nil
}

// guardOptions maps access and cookie settings onto the guard. The cookie
// codec is always set so a custom cookie name applies with or without
// signing keys.
func guardOptions(cfg *config.Config) []guard.Option {
	return []guard.Option{
		guard.WithStrictMembership(cfg.Access.StrictMembership),
		guard.WithCookieCodec(auth.NewCookieCodec(
			cfg.Auth.CookieName, cfg.Auth.CookieHashKey, cfg.Auth.CookieBlockKey, cfg.Auth.CookieSecure,
		)),
	}
}

// buildValidator assembles the credential validators the config enables. The
// session validator is returned separately because it also switches
// workspaces.
func buildValidator(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *observability.Logger) (auth.Validator, *auth.SessionValidator, error) {
	chain := &auth.ChainValidator{}

	if cfg.Auth.JWTEnabled() {
		jwtCfg := auth.JWTConfig{
			Issuer:   cfg.Auth.JWTIssuer,
			Audience: cfg.Auth.JWTAudience,
			JWKSURL:  cfg.Auth.JWTJWKSURL,
		}
		if cfg.Auth.JWTPublicKeyFile != "" {
			keys, err := auth.LoadPublicKeys(cfg.Auth.JWTPublicKeyFile)
			if err != nil {
				return nil, nil, err
			}
			jwtCfg.PublicKeys = keys
		}
		jwtValidator, err := auth.NewJWTValidator(ctx, jwtCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		chain.JWT = jwtValidator
	}

	var sessions *auth.SessionValidator
	if redisClient != nil {
		sessions = auth.NewSessionValidator(
			auth.NewSessionStore(redisClient, cfg.Auth.SessionTTL),
			cfg.Auth.SessionCacheSize,
			cfg.Auth.SessionCacheTTL,
			logger,
		)
		chain.Session = sessions
	}

	return chain, sessions, nil
}

// buildAudit returns the audit sink and, when the database trail is enabled,
// the searcher over it
func buildAudit(cfg *config.Config, conns *postgres.ConnectionManager, binder *tenancy.Binder, logger *observability.Logger) (*audit.MultiLogger, *audit.DBLogger, error) {
	loggers := []audit.Logger{audit.NewLogLogger(logger)}

	var dbLogger *audit.DBLogger
	if cfg.Observability.AuditDBEnabled {
		var err error
		dbLogger, err = audit.NewDBLogger(conns.DB(), binder)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, dbLogger)
	}

	multi := audit.NewMultiLogger(loggers...)
	multi.SetAsync(true)
	return multi, dbLogger, nil
}

func scheduleCleanup(schedule string, store *workspaces.Store, logger *observability.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		defer observability.RecoverPanic(logger, "invitation cleanup")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := store.CleanupExpiredInvitations(ctx)
		if err != nil {
			logger.WithError(err).Error("Expired invitation cleanup failed")
			return
		}
		logger.WithField("removed", n).Info("Expired invitations cleaned up")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid invitation cleanup schedule %q: %w", schedule, err)
	}
	return c, nil
}
