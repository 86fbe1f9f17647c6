package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/seatalloc/internal/adapters/http/api"
	"github.com/okian/seatalloc/internal/adapters/http/swagger"
	"github.com/okian/seatalloc/internal/adapters/repository"
	app "github.com/okian/seatalloc/internal/app"
	"github.com/okian/seatalloc/internal/config"
	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/pkg/logger"
	"github.com/okian/seatalloc/pkg/metrics"
	"github.com/okian/seatalloc/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	storeConnectTimeout    = 10 * time.Second
	defaultMetricsInterval = 5 * time.Second
)

var version = "dev"

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(cfg.MetricsOptions()...)

	if cfg.TracingEnabled {
		provider, err := tracing.Init(cfg.ServiceName, version, cfg.TraceFile)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(sctx); err != nil {
				log.Error(ctx, "tracing shutdown failed", logger.Error(err))
			}
		}()
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	svc, err := newService(cfg, store, log)
	if err != nil {
		_ = store.Close(ctx)
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = store.Close(ctx)
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(sctx); err != nil {
			log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	go startMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore builds the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch strings.ToLower(cfg.Store) {
	case config.StoreMongo:
		cctx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		return repository.NewMongoStore(cctx, cfg.MongoURI, repository.WithDatabase(cfg.MongoDatabase))
	case config.StoreMemory, "":
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

// newService maps the configuration onto service options.
func newService(cfg *config.Config, store repository.Store, log logger.Logger) (*app.Service, error) {
	metric, err := allocation.ParseMeritMetric(cfg.MeritMetric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithMeritMetric(metric),
		app.WithWorkerCount(cfg.PassWorkerCount),
		app.WithQueueSize(cfg.PassQueueSize),
		app.WithMaxRetries(cfg.PassMaxRetries),
		app.WithSeedFile(cfg.SeedFile),
	), nil
}

// newMux registers the business API and its documentation.
func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux
}

// startMetricsUpdater refreshes gauges that are sampled rather than event driven.
func startMetricsUpdater(ctx context.Context, svc *app.Service) {
	interval := metrics.RefreshInterval()
	if interval <= 0 {
		interval = defaultMetricsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateMetrics(svc)
		}
	}
}

func updateMetrics(svc *app.Service) {
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	// GetStats refreshes the queue and worker gauges as a side effect.
	_ = svc.GetStats()
}
