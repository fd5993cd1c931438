package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pricerelay/internal/broadcast"
	"pricerelay/internal/config"
	"pricerelay/internal/httpx"
	"pricerelay/internal/logging"
	"pricerelay/internal/poller"
	"pricerelay/internal/provider"
	"pricerelay/internal/provider/finnhub"
	"pricerelay/internal/provider/mock"
	"pricerelay/internal/provider/ratelimit"
	"pricerelay/internal/session"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("relay stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	fetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}

	// One window for the whole process: every session draws on it.
	budget := ratelimit.NewWindow(cfg.Relay.CallsPerMinute)
	p := poller.New(cfg.Relay.Symbols, fetcher, budget, logger)
	manager := session.NewManager(session.Config{Interval: cfg.PollingInterval()}, p, broadcast.NewSink(logger), logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(manager, cfg.Server.Origins, logger),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Strings("symbols", p.Symbols()),
			zap.Duration("interval", cfg.PollingInterval()),
			zap.Int("calls_per_minute", cfg.Relay.CallsPerMinute),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("session shutdown", zap.Error(err))
	}
	return nil
}

func newFetcher(cfg config.Config, logger *zap.Logger) (provider.Fetcher, error) {
	switch cfg.ProviderName() {
	case config.ProviderMock:
		if cfg.Relay.Provider == config.ProviderFinnhub {
			logger.Warn("FINNHUB_API_KEY not set; serving mock prices")
		}
		return mock.New(uint64(time.Now().UnixNano())), nil
	default:
		client, err := finnhub.NewClient(
			cfg.Finnhub.APIKey,
			finnhub.WithBaseURL(cfg.Finnhub.Endpoint),
			finnhub.WithHTTPClient(httpx.New(cfg.RequestTimeout())),
		)
		if err != nil {
			return nil, fmt.Errorf("finnhub client: %w", err)
		}
		return client, nil
	}
}
