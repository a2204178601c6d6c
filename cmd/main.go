package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/iamofff/kvn-scoring-system/internal/adapters/http/api"
	"github.com/iamofff/kvn-scoring-system/internal/adapters/http/swagger"
	"github.com/iamofff/kvn-scoring-system/internal/adapters/repository"
	"github.com/iamofff/kvn-scoring-system/internal/adapters/repository/sqlite"
	app "github.com/iamofff/kvn-scoring-system/internal/app"
	"github.com/iamofff/kvn-scoring-system/internal/config"
	"github.com/iamofff/kvn-scoring-system/internal/domain/roster"
	"github.com/iamofff/kvn-scoring-system/pkg/logger"
	"github.com/iamofff/kvn-scoring-system/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr since the logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "scoring service failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc := newService(cfg, store, log)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc),
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

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
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

// openStore returns the score store selected by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %q: %w", cfg.SQLitePath, err)
		}
		return store, nil
	case config.StoreMemory, "":
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func newService(cfg *config.Config, store repository.Store, log logger.Logger) *app.Service {
	return app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithSeed(roster.Seed{Teams: cfg.Teams, Judges: cfg.Judges, Rounds: cfg.Rounds}),
		app.WithScale(cfg.Scale()),
		app.WithScoringOptions(cfg.ScoringOptions()...),
	)
}

// newHandler registers the docs and the business API on a fresh mux.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithPasswords(cfg.JudgePassword, cfg.AdminPassword),
		api.WithSubmitLimit(cfg.SubmitRate, cfg.SubmitBurst),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
