package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/emperorhan/collection-scanner/internal/alert"
	"github.com/emperorhan/collection-scanner/internal/cache"
	"github.com/emperorhan/collection-scanner/internal/circuitbreaker"
	"github.com/emperorhan/collection-scanner/internal/config"
	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/marketplace"
	"github.com/emperorhan/collection-scanner/internal/marketplace/ratelimit"
	"github.com/emperorhan/collection-scanner/internal/metrics"
	"github.com/emperorhan/collection-scanner/internal/pipeline"
	"github.com/emperorhan/collection-scanner/internal/probe"
	"github.com/emperorhan/collection-scanner/internal/scanner"
	"github.com/emperorhan/collection-scanner/internal/store"
	"github.com/emperorhan/collection-scanner/internal/store/postgres"
	"github.com/emperorhan/collection-scanner/internal/tracing"
	"github.com/emperorhan/collection-scanner/internal/trigger"
	"github.com/emperorhan/collection-scanner/internal/view"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const serviceName = "collection-scanner"

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("scanner exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("scanner shut down gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, serviceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown failed", "error", err)
			}
		}()
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	// Marketplace client: every eth_call rate limited, fetches behind a
	// circuit breaker.
	chainLabel := cfg.Marketplace.Chain.String()
	limiter := ratelimit.NewLimiter(cfg.Marketplace.RPS, cfg.Marketplace.Burst, chainLabel)
	evm, closeEVM, err := marketplace.DialEVMProvider(ctx,
		cfg.Marketplace.RPCURL,
		cfg.Marketplace.Address,
		chainLabel,
		logger,
		marketplace.WithPageSize(cfg.Marketplace.PageSize),
		marketplace.WithRateLimiter(limiter),
	)
	if err != nil {
		return fmt.Errorf("dial marketplace: %w", err)
	}
	defer closeEVM()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.Marketplace.BreakerFailureThreshold,
		OpenTimeout:      cfg.Marketplace.BreakerOpenTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			metrics.MarketplaceCircuitState.WithLabelValues(chainLabel).Set(float64(to))
			logger.Warn("marketplace circuit breaker state changed", "chain", chainLabel, "from", from.String(), "to", to.String())
		},
	})
	provider := marketplace.NewGuardedProvider(evm, breaker)

	listingCache := cache.NewListingCache(cfg.Cache.Capacity, cfg.Cache.TTL)
	batchScanner := scanner.New(probe.New(provider, cfg.Scan.ProbeTimeout), listingCache, scanner.Config{
		BatchSize:  cfg.Scan.BatchSize,
		BatchDelay: cfg.Scan.BatchDelay,
	}, logger)

	alerter := buildAlerter(cfg.Alert, logger)
	grid := view.NewGrid(cfg.View.PageSize)
	var observer scanner.Observer = grid
	if cfg.Alert.Enabled() {
		observer = scanner.MultiObserver{grid, alert.NewScanObserver(alerter, cfg.Source.Owner, cfg.Alert.MinProbeFailures, logger)}
	}
	session := scanner.NewSession(batchScanner, observer, logger)

	g, gCtx := errgroup.WithContext(ctx)

	var db *postgres.DB
	if cfg.Source.Kind == model.CollectionSourceDB || (cfg.Trigger.Enabled && cfg.Trigger.Transport == config.TriggerTransportPostgres) {
		db, err = openDB(ctx, cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		postgres.StartPoolStatsPump(gCtx, db.DB, serviceName, cfg.DB.PoolStatsInterval, logger)
	}

	source, err := buildSource(cfg, db)
	if err != nil {
		return err
	}

	bus := trigger.NewBus()
	defer bus.Close()
	var events <-chan event.CollectionsChanged
	if cfg.Trigger.Enabled {
		ch, unsubscribe := bus.Subscribe(16)
		defer unsubscribe()
		events = ch

		runTrigger, err := buildTrigger(ctx, cfg, bus, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return runTrigger(gCtx) })
	}

	p := pipeline.New(pipeline.Config{Owner: cfg.Source.Owner, Debounce: cfg.Trigger.Debounce}, source, session, listingCache, events, logger, pipeline.WithAlerter(alerter))
	g.Go(func() error { return p.Run(gCtx) })

	rl := view.NewRateLimitMiddleware(logger)
	defer rl.Stop()
	handler := newHTTPHandler(p.Health(), view.NewHandler(grid, logger,
		view.WithRescanner(p),
		view.WithStateProvider(session),
	), rl, logger)
	g.Go(func() error { return runHTTPServer(gCtx, cfg.Server.HealthPort, handler, logger) })

	logger.Info("scanner started",
		"chain", chainLabel,
		"source", cfg.Source.Kind,
		"batch_size", cfg.Scan.BatchSize,
		"trigger_enabled", cfg.Trigger.Enabled,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openDB(ctx context.Context, cfg config.DBConfig) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		URL:                cfg.URL,
		MaxOpenConns:       cfg.MaxOpenConns,
		MaxIdleConns:       cfg.MaxIdleConns,
		ConnMaxLifetime:    cfg.ConnMaxLifetime,
		StatementTimeoutMS: int(cfg.StatementTimeout / time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if cfg.MigrationsDir != "" {
		if err := db.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return db, nil
}

func buildSource(cfg *config.Config, db *postgres.DB) (store.CollectionSource, error) {
	switch cfg.Source.Kind {
	case model.CollectionSourceEnv:
		return store.NewStaticSource(cfg.Source.Collections), nil
	case model.CollectionSourceDB:
		if db == nil {
			return nil, fmt.Errorf("collection source %q needs a database", cfg.Source.Kind)
		}
		var opts []postgres.CollectionRepoOption
		if cfg.Trigger.Enabled && cfg.Trigger.Transport == config.TriggerTransportPostgres {
			opts = append(opts, postgres.WithNotifyChannel(cfg.Trigger.PGChannel))
		}
		return store.NewOwnerSource(postgres.NewCollectionRepo(db, opts...), cfg.Source.Owner), nil
	default:
		return nil, fmt.Errorf("unsupported collection source %q", cfg.Source.Kind)
	}
}

func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Cooldown, logger, channels...)
}

// buildTrigger connects the configured transport and returns its run loop,
// which feeds bus.
func buildTrigger(ctx context.Context, cfg *config.Config, bus *trigger.Bus, logger *slog.Logger) (func(context.Context) error, error) {
	switch cfg.Trigger.Transport {
	case config.TriggerTransportRedis:
		client, err := trigger.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("connect trigger redis: %w", err)
		}
		sub := trigger.NewRedisSubscriber(client, cfg.Trigger.Channel, bus, logger)
		return func(ctx context.Context) error {
			defer client.Close()
			return sub.Run(ctx)
		}, nil
	case config.TriggerTransportPostgres:
		return trigger.NewPostgresListener(cfg.DB.URL, cfg.Trigger.PGChannel, bus, logger).Run, nil
	default:
		return nil, fmt.Errorf("unsupported trigger transport %q", cfg.Trigger.Transport)
	}
}

func newHTTPHandler(health *pipeline.Health, views *view.Handler, rl *view.RateLimitMiddleware, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := health.Snapshot()
		status := http.StatusOK
		if snap.Status == string(pipeline.HealthStatusUnhealthy) {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	views.Register(api)
	mux.Handle("/", view.RequestLog(logger, rl.Wrap(api)))
	return mux
}

func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("http server shutdown error", "error", err)
		}
	}()

	logger.Info("http server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
