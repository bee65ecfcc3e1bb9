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

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"

	"github.com/okian/blindfold/internal/adapters/http/api"
	"github.com/okian/blindfold/internal/adapters/http/swagger"
	app "github.com/okian/blindfold/internal/app"
	"github.com/okian/blindfold/internal/config"
	"github.com/okian/blindfold/internal/domain/ledger"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/pkg/logger"
	"github.com/okian/blindfold/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "blindfold exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	log := logger.Get()
	metrics.Configure(metricsOptions(cfg)...)

	svc, err := newService(cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	if err := initializeOwner(ctx, svc, cfg.Owner, log); err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(cfg, svc, log),
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

	// Wait for shutdown signal
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

// newService maps configuration onto service options.
func newService(cfg *config.Config, log logger.Logger) (*app.Service, error) {
	minDeposit, err := sdkmath.ParseUint(cfg.MinDeposit)
	if err != nil {
		return nil, fmt.Errorf("min_deposit: %w", err)
	}
	relay, err := types.ParseAccountID(cfg.RelayID)
	if err != nil {
		return nil, fmt.Errorf("relay_id: %w", err)
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithRelay(relay),
		app.WithMinDeposit(minDeposit),
		app.WithWorkerCount(cfg.EventWorkers),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.IdempotencySize),
		app.WithRiskCache(cfg.RiskCacheTTL, cfg.RiskCacheCleanup),
	}
	if cfg.StoreDriver == config.StoreSQLite {
		opts = append(opts, app.WithSQLite(cfg.SQLitePath))
	}
	return app.New(opts...), nil
}

// initializeOwner initializes the ledger with the configured owner. A ledger
// restored from disk is already initialized; that is not an error.
func initializeOwner(ctx context.Context, svc *app.Service, owner string, log logger.Logger) error {
	if owner == "" {
		log.Info(ctx, "no owner configured; ledger waits for POST /init")
		return nil
	}
	id, err := types.ParseAccountID(owner)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	switch err := svc.Initialize(ctx, id); {
	case err == nil:
		log.Info(ctx, "ledger initialized", logger.String("owner", id.String()))
	case errors.Is(err, ledger.ErrAlreadyInitialized):
		log.Info(ctx, "ledger already initialized", logger.Error(err))
	default:
		return fmt.Errorf("initialize ledger: %w", err)
	}
	return nil
}

// metricsOptions maps the metrics keys of cfg onto manager options.
func metricsOptions(cfg *config.Config) []metrics.Option {
	opts := []metrics.Option{metrics.WithNamespace(cfg.MetricsNamespace)}
	if cfg.MetricsInstance != "" {
		opts = append(opts, metrics.WithConstLabels(map[string]string{"instance": cfg.MetricsInstance}))
	}
	return opts
}

// credentials pairs the configured bearer secrets with their accounts.
// Config validation has already checked the account ids.
func credentials(cfg *config.Config) []api.Credential {
	var creds []api.Credential
	if relay, err := types.ParseAccountID(cfg.RelayID); err == nil && cfg.RelayToken != "" {
		creds = append(creds, api.Credential{Account: relay, Token: cfg.RelayToken})
	}
	if owner, err := types.ParseAccountID(cfg.Owner); err == nil && cfg.OwnerToken != "" {
		creds = append(creds, api.Credential{Account: owner, Token: cfg.OwnerToken})
	}
	return creds
}

// newHandler builds the root router: API docs plus the business API.
func newHandler(cfg *config.Config, svc *app.Service, log logger.Logger) http.Handler {
	creds := credentials(cfg)
	if cfg.RelayToken == "" {
		log.Warn(context.Background(), "relay_token is not set; privileged routes reject the relay")
	}
	r := chi.NewRouter()
	apiServer := api.NewServer(svc, svc,
		api.WithMaxListLimit(cfg.MaxListLimit),
		api.WithCredentials(creds...),
		api.WithLogger(log.Named("http")),
	)
	apiServer.Register(r)
	swagger.Register(r)
	return r
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

// startServiceMetricsUpdater refreshes the ledger and event bus gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats updates the gauges as a side effect.
			_ = svc.GetStats()
			if _, err := svc.PendingRequests(ctx); err != nil && !errors.Is(err, ledger.ErrNotInitialized) {
				logger.Get().Debug(ctx, "pending gauge refresh failed", logger.Error(err))
			}
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
