package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortener/internal/api"
	"shortener/internal/config"
	"shortener/internal/logger"
	"shortener/internal/models"
	"shortener/internal/observability"
	"shortener/internal/ratelimit"
	"shortener/internal/shortcode"
	"shortener/internal/shorten"
	"shortener/internal/storage"
	"shortener/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	writeConfig = flag.String("write-example-config", "", "Write an example configuration to this path and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver)
		return
	}

	if *writeConfig != "" {
		if err := config.SaveExample(*writeConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	if err := run(cfg, ver); err != nil {
		slog.Error("Shortener stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *models.Config, ver version.Info) error {
	ctx := context.Background()

	otelProvider, err := observability.Setup(cfg, ver)
	if err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	linkStorage, err := storage.NewFactory().Create(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer linkStorage.Close()

	if cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(linkStorage)
		if err != nil {
			return fmt.Errorf("instrument storage: %w", err)
		}
		linkStorage = instrumented
	}

	allocator := shortcode.NewAllocator(linkStorage, cfg.Codes)
	service := shorten.NewService(linkStorage, allocator)

	handlerOpts := []api.HandlerOption{
		api.WithStorage(linkStorage),
		api.WithShortURLBase(cfg.ShortURLBase()),
		api.WithVersion(ver.Version),
	}

	var routeOpts []api.RouteOption
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	if cfg.Admission.Enabled {
		counters, err := initializeCounterStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialize rate limit store: %w", err)
		}
		defer counters.Close()

		if cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled {
			instrumented, err := observability.NewInstrumentedCounterStore(counters)
			if err != nil {
				return fmt.Errorf("instrument rate limit store: %w", err)
			}
			counters = instrumented
		}

		limiter := ratelimit.NewMovingWindow(counters, cfg.Admission.StoreTimeout)
		admission := ratelimit.NewAdmission(limiter, cfg.Admission.ClientIPHeader, cfg.IsTrustedContext())
		guards, err := api.NewRouteGuards(admission, cfg.Admission.Routes)
		if err != nil {
			return fmt.Errorf("configure route limits: %w", err)
		}

		routeOpts = append(routeOpts, api.WithRouteGuards(guards))
		handlerOpts = append(handlerOpts, api.WithCounterStore(counters))

		slog.Info("Admission control enabled",
			"store", cfg.Admission.Store,
			"client_ip_header", cfg.Admission.ClientIPHeader,
			"trusted_context", cfg.IsTrustedContext(),
			"routes", cfg.Admission.Routes,
		)
	} else {
		slog.Warn("Admission control disabled; routes are not rate limited")
	}

	router := api.SetupRoutes(api.NewHandlers(service, handlerOpts...), routeOpts...)

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"environment", cfg.Environment,
			"short_url_base", cfg.ShortURLBase(),
			"tls", cfg.Server.TLSEnabled,
		)
		if cfg.Server.TLSEnabled {
			serverErr <- server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			serverErr <- server.ListenAndServe()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		slog.Info("Shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// initializeCounterStore opens the counter store. Redis must answer at
// startup; later outages reject requests with 503.
func initializeCounterStore(ctx context.Context, cfg *models.Config) (ratelimit.CounterStore, error) {
	switch cfg.Admission.Store {
	case models.CounterStoreRedis:
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout+time.Second)
		defer cancel()
		store, err := ratelimit.NewRedisStoreFromConfig(dialCtx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	case models.CounterStoreMemory:
		if cfg.Environment != models.EnvironmentDevelopment {
			slog.Warn("In-memory rate limit store is per process; replicas will not share limits")
		}
		return ratelimit.NewMemoryStore(cfg.Admission.CleanupInterval), nil
	default:
		return nil, fmt.Errorf("unsupported counter store: %s", cfg.Admission.Store)
	}
}
