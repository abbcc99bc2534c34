// Package cli provides the process setup shared by cmd/bilancio and
// cmd/bilancio-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/backend"
	"bilancio/internal/cache"
	"bilancio/internal/config"
	"bilancio/internal/export"
	applog "bilancio/internal/log"
	"bilancio/internal/metrics"
	"bilancio/internal/services"
	"bilancio/internal/sheets/google"
	"bilancio/internal/sources"
	"bilancio/internal/storage"
)

const cacheCleanupInterval = 10 * time.Minute

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger creates the process logger at the given level and installs it
// as the slog default.
func SetupLogger(level string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration from the environment and
// validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitSQLite opens the snapshot repository, running pending migrations.
func InitSQLite(logger *applog.Logger, dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite repository at %s: %w", dbPath, err)
	}
	logger.WithComponent(applog.ComponentStorage).Info("Snapshot repository ready", "path", dbPath)
	return repo, nil
}

// App holds the collaborators every command needs.
type App struct {
	Config  *config.Config
	Logger  *applog.Logger
	Store   sources.Store
	Reports *services.ReportService

	caches  *cache.Manager
	cleanup backend.CleanupFunc
}

// NewApp builds the data backend and the report service from cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	metrics.Init()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", backendCfg.Type, err)
	}

	buckets, err := config.LoadBuckets(cfg.CategoriesFile)
	if err != nil {
		return nil, err
	}

	reportCache := cache.NewLRUCache[any](cfg.CacheSize, cfg.CacheTTL)
	manager := cache.NewManager(logger)
	manager.Register(reportCache)
	manager.StartCleanup(cacheCleanupInterval)

	reports := services.NewReportService(result.Store, services.Options{
		Buckets: buckets,
		Upkeep:  cfg.Upkeep(),
		Cache:   reportCache,
		Logger:  logger,
	})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   result.Store,
		Reports: reports,
		caches:  manager,
		cleanup: result.Cleanup,
	}, nil
}

// SheetsExporter connects to the configured spreadsheet.
func (a *App) SheetsExporter(ctx context.Context) (*export.SheetsExporter, error) {
	if !a.Config.SheetsEnabled() {
		return nil, fmt.Errorf("sheets export needs GOOGLE_SPREADSHEET_ID")
	}
	client, err := google.New(ctx, a.Config.GoogleSpreadsheetID, google.Credentials{
		File: a.Config.GoogleServiceAccountFile,
		JSON: a.Config.GoogleServiceAccountJSON,
	})
	if err != nil {
		return nil, err
	}
	return export.NewSheetsExporter(client), nil
}

// Close stops background cleanup and releases the backend.
func (a *App) Close() error {
	a.caches.Stop()
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs with a context bounded by timeout before done is closed.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
