package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/asakaida/epiguard/internal/handlers"
	infracache "github.com/asakaida/epiguard/internal/infrastructure/cache"
	"github.com/asakaida/epiguard/internal/infrastructure/catalog"
	"github.com/asakaida/epiguard/internal/infrastructure/config"
	"github.com/asakaida/epiguard/internal/infrastructure/database"
	"github.com/asakaida/epiguard/internal/infrastructure/metrics"
	"github.com/asakaida/epiguard/internal/repositories/postgres"
	"github.com/asakaida/epiguard/internal/services"
	"github.com/asakaida/epiguard/internal/services/authorization"
	"github.com/asakaida/epiguard/pkg/cache"
	"github.com/asakaida/epiguard/pkg/cache/memorycache"
	"github.com/asakaida/epiguard/pkg/cache/rediscache"
)

const (
	defaultEnv            = "dev"
	shutdownTimeout       = 30 * time.Second
	metricsUpdateInterval = 10 * time.Second
	compiledCacheMaxBytes = 16 * 1024 * 1024
	compiledCacheTTL      = time.Hour
)

var (
	envFlag     string
	migrateFlag bool
)

var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "epiguard permission service",
	Long:         `Serves permission checks over gRPC and Prometheus metrics over HTTP.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}
	rootCmd.Flags().StringVarP(&envFlag, "env", "e", env, "Environment to use (dev, test, prod)")
	rootCmd.Flags().BoolVar(&migrateFlag, "migrate", false, "Apply pending migrations before serving")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newUserCache builds the cache for user snapshots from config. It returns nil when caching is disabled.
func newUserCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		client, err := rediscache.Connect(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return rediscache.New(client, &rediscache.Config{
			KeyPrefix:     cfg.Redis.KeyPrefix,
			DefaultTTL:    cfg.Cache.TTL(),
			EnableMetrics: cfg.Cache.Metrics,
		}), nil
	default:
		c, err := memorycache.New(&memorycache.Config{
			MaxSizeBytes:  cfg.Cache.MaxMemoryBytes,
			DefaultTTL:    cfg.Cache.TTL(),
			EnableMetrics: cfg.Cache.Metrics,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func run(ctx context.Context) error {
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(&cfg.Log)
	slog.SetDefault(logger)

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pg.Close()

	logger.Info("connected to database",
		"user", cfg.Database.User,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Database,
	)

	if migrateFlag {
		if err := pg.RunMigrations(""); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	// Permission catalog
	catalogs, err := catalog.NewProvider(cfg.Catalog.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to load permission catalog: %w", err)
	}
	expander := authorization.NewExpander(catalogs)

	// Caches
	userCache, err := newUserCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create user cache: %w", err)
	}
	if userCache != nil {
		defer userCache.Close()
		logger.Info("user cache enabled", "backend", cfg.Cache.Backend, "ttl", cfg.Cache.TTL())
	}

	compiledCache, err := memorycache.New(&memorycache.Config{
		MaxSizeBytes:  compiledCacheMaxBytes,
		DefaultTTL:    compiledCacheTTL,
		EnableMetrics: cfg.Cache.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create expression cache: %w", err)
	}

	// Initialize repositories
	userRepo := postgres.NewPostgresUserRepository(pg.DB)
	roleRepo := postgres.NewPostgresRoleRepository(pg.DB)

	// Initialize services
	userService := services.NewUserService(userRepo, roleRepo, expander, userCache, cfg.Cache.TTL(), logger)
	roleService := services.NewRoleService(roleRepo, userRepo, expander, userService, logger)

	celEngine, err := authorization.NewCELEngine()
	if err != nil {
		return fmt.Errorf("failed to create CEL engine: %w", err)
	}
	checker := authorization.NewCheckerWithCache(userService, celEngine, compiledCache, compiledCacheTTL)
	checker.SetLogger(logger)

	// Metrics
	collector := metrics.NewCollector()
	if userCache != nil {
		collector.SetCache(userCache)
	}
	exporter := metrics.NewPrometheusExporter(collector)
	checker.SetRecorder(collector)

	// Keep cached users consistent with role changes made by other instances
	watcher := infracache.NewRoleWatcher(cfg.Database.ConnectionString(), roleService, userService, logger)
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	// gRPC server
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(metrics.UnaryServerInterceptor(collector, exporter)),
	)
	handlers.RegisterAccessServiceServer(grpcServer, handlers.NewAccessHandler(checker, roleService, logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handlers.AccessServiceName, healthpb.HealthCheckResponse_SERVING)

	grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	// Metrics HTTP server
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", exporter.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.HealthCheck(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", "addr", grpcAddr)
		if err := grpcServer.Serve(listener); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				exporter.Update()
			}
		}
	})

	// SIGHUP reloads the catalog and drops every user expanded against the old one
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := catalogs.Reload(); err != nil {
					logger.Error("catalog reload failed", "error", err)
					continue
				}
				if err := userService.InvalidateAll(gctx); err != nil {
					logger.Error("failed to flush users after catalog reload", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}

		// Wait for graceful stop or timeout
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
			logger.Info("server stopped gracefully")
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timeout exceeded, forcing stop")
			grpcServer.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
