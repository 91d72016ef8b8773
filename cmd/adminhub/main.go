package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/adminhub/pkg/api"
	"github.com/platinummonkey/adminhub/pkg/audit"
	"github.com/platinummonkey/adminhub/pkg/auth"
	"github.com/platinummonkey/adminhub/pkg/cache"
	"github.com/platinummonkey/adminhub/pkg/config"
	"github.com/platinummonkey/adminhub/pkg/jobs"
	"github.com/platinummonkey/adminhub/pkg/mail"
	"github.com/platinummonkey/adminhub/pkg/menu"
	"github.com/platinummonkey/adminhub/pkg/middleware"
	"github.com/platinummonkey/adminhub/pkg/observability"
	"github.com/platinummonkey/adminhub/pkg/rbac"
	"github.com/platinummonkey/adminhub/pkg/storage"
	"github.com/platinummonkey/adminhub/pkg/users"
)

var version = "dev"

func main() {
	seedFile := flag.String("seed-menus", "", "menu seed file to apply at startup (overrides ADMINHUB_MENU_SEED_FILE)")
	watchSeed := flag.Bool("watch-seed", false, "reapply the menu seed file whenever it changes")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *seedFile != "" {
		cfg.Menu.SeedFile = *seedFile
	}
	if *watchSeed {
		cfg.Menu.WatchSeed = true
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger, *migrateOnly); err != nil {
		logger.WithError(err).Fatal("adminhub exited")
	}
}

func run(cfg *config.Config, logger *logrus.Logger, migrateOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.ShutdownOTel(shutdownCtx, providers, logger); err != nil {
			logger.WithError(err).Warn("failed to flush telemetry")
		}
	}()

	db, err := storage.Open(ctx, storage.Config{
		URL:         cfg.Database.PostgresURL,
		MaxConns:    cfg.Database.MaxOpenConns,
		MinConns:    cfg.Database.MaxIdleConns,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	if cfg.Database.AutoMigrate || migrateOnly {
		if err := storage.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	}
	if migrateOnly {
		return nil
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var (
		backend     cache.Cache
		cacheType   = "memory"
		redisClient *redis.Client
	)
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(cache.RedisOptions{
			URL:        cfg.Cache.RedisURL,
			Password:   cfg.Cache.RedisPassword,
			DB:         cfg.Cache.RedisDB,
			PoolSize:   cfg.Cache.RedisPoolSize,
			MaxRetries: cfg.Cache.RedisMaxRetries,
		})
		if err != nil {
			return err
		}
		defer rc.Close()
		backend, cacheType, redisClient = rc, "redis", rc.Client()
		logger.Info("connected to redis")
	} else {
		backend = cache.NewMemoryCache(cfg.Cache.MemoryCacheSize)
	}
	entityCache := cache.Instrumented(backend, cacheType, metrics)

	accounts := users.NewStore(db, entityCache, logger)
	menus := menu.NewStore(menu.Config{
		DB:      db,
		Cache:   entityCache,
		TreeTTL: cfg.Cache.MenuTreeTTL,
		Logger:  logger,
		Metrics: metrics,
	})
	groups := rbac.NewStore(rbac.Config{DB: db, Cache: entityCache, Menus: menus, Logger: logger})

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:     cfg.Auth.SecretKey,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		ResetTTL:   cfg.Auth.ResetTokenTTL,
		ConfirmTTL: cfg.Auth.ConfirmTokenTTL,
	})
	if err != nil {
		return err
	}
	resolver := auth.NewResolver(auth.ResolverConfig{
		Tokens:  tokens,
		Users:   accounts,
		Cache:   entityCache,
		TTL:     cfg.Cache.IdentityTTL,
		Logger:  logger,
		Metrics: metrics,
	})

	if cfg.Auth.SuperuserEmail != "" {
		if _, err := accounts.EnsureSuperuser(ctx, cfg.Auth.SuperuserEmail, cfg.Auth.SuperuserPassword); err != nil {
			return fmt.Errorf("failed to bootstrap superuser: %w", err)
		}
	}

	if cfg.Menu.SeedFile != "" {
		created, err := menus.SeedFromFile(ctx, cfg.Menu.SeedFile)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"seed": cfg.Menu.SeedFile, "created": created}).Info("menu seed applied")
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	limitCfg := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Auth.LoginRateLimit,
		WindowDuration:    cfg.Auth.LoginRateWindow,
	}
	var (
		limiter       middleware.Limiter
		memoryLimiter *middleware.MemoryRateLimiter
	)
	if redisClient != nil {
		limiter = middleware.NewRedisRateLimiter(redisClient, limitCfg, "adminhub:ratelimit")
	} else {
		memoryLimiter = middleware.NewMemoryRateLimiter(limitCfg)
		limiter = memoryLimiter
	}

	var (
		recorder audit.Logger
		trail    *audit.DBStore
	)
	if cfg.Audit.Enabled {
		if trail, err = audit.NewDBStore(db); err != nil {
			return err
		}
		recorder = trail
		if cfg.Audit.LogEvents {
			recorder = audit.MultiLogger{trail, audit.NewLogrusLogger(logger)}
		}
	}

	scheduler := jobs.NewScheduler(logger, metrics)
	if s := cfg.Jobs.TreeWarmSchedule; s != "" {
		if err := scheduler.Add(jobs.MenuTreeWarm(menus, s)); err != nil {
			return err
		}
	}
	if s := cfg.Jobs.LimiterCleanupSchedule; s != "" && memoryLimiter != nil {
		if err := scheduler.Add(jobs.LimiterCleanup(memoryLimiter, s)); err != nil {
			return err
		}
	}

	if s := cfg.Audit.RetentionSchedule; s != "" && trail != nil {
		if err := scheduler.Add(jobs.AuditRetention(trail, cfg.Audit.Retention, s)); err != nil {
			return err
		}
	}

	server := api.NewServer(api.Config{
		Users:          accounts,
		Menus:          menus,
		RBAC:           groups,
		Resolver:       resolver,
		Mailer:         mail.NewLogMailer(logger),
		LoginLimiter:   limiter,
		TrustedProxies: proxies,
		Audit:          recorder,
		AuditStore:     trail,
		Metrics:        metrics,
		Logger:         logger,
		PublicURL:      cfg.Server.PublicURL,
		EmailsFrom:     cfg.Auth.EmailsFrom,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:        ":" + cfg.Server.HealthPort,
		Handler:     healthMux,
		ReadTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("starting api server")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	if cfg.Menu.WatchSeed {
		g.Go(func() error {
			return menus.WatchSeed(gctx, cfg.Menu.SeedFile, cfg.Menu.SeedDebounce)
		})
	}

	scheduler.Start(gctx)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		scheduler.Stop()
		return errors.Join(apiServer.Shutdown(shutdownCtx), healthServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
