package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
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
)

// fetch runs a single polling tick and prints the frame a client would
// receive.
func main() {
	var symbolsCSV string
	var providerName string
	var configPath string
	var timeout int

	flag.StringVar(&symbolsCSV, "symbols", "", "comma-separated symbols (default: configured symbols)")
	flag.StringVar(&providerName, "provider", "", "finnhub or mock (default: configured provider)")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a config file (optional)")
	flag.IntVar(&timeout, "timeout", 0, "request timeout seconds (default: configured timeout)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if symbolsCSV != "" {
		cfg.Relay.Symbols = splitCSV(symbolsCSV)
	}
	if providerName != "" {
		cfg.Relay.Provider = strings.ToLower(providerName)
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var fetcher provider.Fetcher
	if cfg.ProviderName() == config.ProviderMock {
		fetcher = mock.New(uint64(time.Now().UnixNano()))
	} else {
		fetcher, err = finnhub.NewClient(
			cfg.Finnhub.APIKey,
			finnhub.WithBaseURL(cfg.Finnhub.Endpoint),
			finnhub.WithHTTPClient(httpx.New(cfg.RequestTimeout())),
		)
		if err != nil {
			logger.Fatal("finnhub client", zap.Error(err))
		}
	}

	p := poller.New(cfg.Relay.Symbols, fetcher, ratelimit.NewWindow(cfg.Relay.CallsPerMinute), logger)
	batch, err := p.PollOnce(context.Background())
	if err != nil && !errors.Is(err, poller.ErrBudgetExhausted) {
		logger.Fatal("poll", zap.Error(err))
	}
	if len(batch) == 0 {
		fmt.Fprintln(os.Stderr, "no quotes retrieved")
		os.Exit(1)
	}

	frame, err := broadcast.Encode(batch)
	if err != nil {
		logger.Fatal("encode", zap.Error(err))
	}
	fmt.Println(string(frame))
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
