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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contactdir/internal/contacts/duplicates"
	"contactdir/internal/contacts/handler"
	"contactdir/internal/directory"
	directorymetrics "contactdir/internal/directory/metrics"
	"contactdir/internal/platform/config"
	"contactdir/internal/platform/httpserver"
	"contactdir/internal/platform/logger"
	"contactdir/internal/platform/metrics"
	"contactdir/internal/platform/redis"
	"contactdir/internal/platform/serviceaccount"
	tokenmetrics "contactdir/internal/platform/serviceaccount/metrics"
	"contactdir/pkg/platform/middleware/admin"
	"contactdir/pkg/platform/middleware/metadata"
	"contactdir/pkg/platform/middleware/request"
)

const (
	shutdownTimeout = 10 * time.Second
	// Upper bound for a single API request, including a full duplicate scan.
	requestTimeout = 90 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Directory logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.New()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("redis token cache enabled")
	}

	transport, err := buildTransport(cfg, log, redisClient)
	if err != nil {
		return err
	}

	detectorCfg := duplicates.DefaultConfig()
	if cfg.Duplicates.Workers > 0 {
		detectorCfg.Workers = cfg.Duplicates.Workers
	}
	detector, err := duplicates.NewDetector(detectorCfg)
	if err != nil {
		return fmt.Errorf("duplicate detector: %w", err)
	}
	client, err := directory.NewClient(transport, directory.Config{
		BaseURL:  cfg.Directory.BaseURL,
		Domain:   cfg.Directory.Domain,
		PageSize: cfg.Directory.PageSize,
		MaxPages: cfg.Directory.MaxPages,
	},
		directory.WithLogger(log),
		directory.WithMetrics(directorymetrics.New()),
		directory.WithDetector(detector),
	)
	if err != nil {
		return fmt.Errorf("directory client: %w", err)
	}

	handlerOpts := []handler.Option{
		handler.WithDefaultThreshold(cfg.Duplicates.Threshold),
		handler.WithMutationGuard(admin.RequireAdminToken(cfg.AdminToken, log, httpMetrics)),
	}
	if redisClient != nil {
		handlerOpts = append(handlerOpts, handler.WithHealthProbe("redis", redisClient.Health))
	}
	contactsHandler := handler.New(client, log, handlerOpts...)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.RequestTime)
	r.Use(request.Logger(log, httpMetrics))
	r.Use(request.Recovery(log))
	r.Use(chimiddleware.Timeout(requestTimeout))
	contactsHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, r)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting contact directory",
			"addr", cfg.Addr,
			"domain", cfg.Directory.Domain,
			"backend", cfg.Directory.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// buildTransport returns the in-memory feed or the authenticated HTTP
// transport, depending on the configured backend.
func buildTransport(cfg config.Server, log *slog.Logger, redisClient *redis.Client) (directory.Transport, error) {
	if cfg.Directory.Backend == config.BackendMemory {
		baseURL := cfg.Directory.BaseURL
		if baseURL == "" {
			baseURL = directory.DefaultBaseURL
		}
		log.Warn("using in-memory contact backend; data is not persisted")
		return directory.NewMemoryTransport(directory.FeedURL(baseURL, cfg.Directory.Domain)), nil
	}

	key, err := serviceaccount.LoadKeyFile(cfg.Credentials.ServiceAccountFile)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	opts := []serviceaccount.Option{
		serviceaccount.WithHTTPClient(httpClient),
		serviceaccount.WithLogger(log),
		serviceaccount.WithMetrics(tokenmetrics.New()),
	}
	if redisClient != nil {
		opts = append(opts, serviceaccount.WithCache(serviceaccount.NewRedisCache(redisClient.Client)))
	}
	tokens, err := serviceaccount.NewTokenSource(key, serviceaccount.Config{
		Subject: cfg.Credentials.AdminEmail,
		Scope:   cfg.Credentials.Scope,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token source: %w", err)
	}
	return directory.NewHTTPTransport(httpClient, tokens), nil
}
