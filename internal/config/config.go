package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider names accepted by Relay.Provider.
const (
	ProviderFinnhub = "finnhub"
	ProviderMock    = "mock"
)

type Server struct {
	Host              string   `mapstructure:"host"`
	Port              string   `mapstructure:"port"`
	Origins           []string `mapstructure:"origins"`
	RequestTimeoutSec int      `mapstructure:"request_timeout_sec"`
}

type Finnhub struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

type Relay struct {
	Provider           string   `mapstructure:"provider"`
	Symbols            []string `mapstructure:"symbols"`
	PollingIntervalSec int      `mapstructure:"polling_interval_sec"`
	CallsPerMinute     int      `mapstructure:"calls_per_minute"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server  Server  `mapstructure:"server"`
	Finnhub Finnhub `mapstructure:"finnhub"`
	Relay   Relay   `mapstructure:"relay"`
	Log     Log     `mapstructure:"log"`
}

func Default() Config {
	return Config{
		Server: Server{
			Host:              "0.0.0.0",
			Port:              "4000",
			Origins:           []string{"*"},
			RequestTimeoutSec: 10,
		},
		Finnhub: Finnhub{Endpoint: "https://finnhub.io/api/v1"},
		Relay: Relay{
			Provider:           ProviderFinnhub,
			Symbols:            []string{"AAPL", "GOOG", "TSLA"},
			PollingIntervalSec: 15,
			CallsPerMinute:     55,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// envKeys maps config keys to the environment variables that override them.
var envKeys = map[string]string{
	"server.host":                "HOST",
	"server.port":                "PORT",
	"server.origins":             "CORS_ORIGIN",
	"server.request_timeout_sec": "REQUEST_TIMEOUT_SEC",
	"finnhub.api_key":            "FINNHUB_API_KEY",
	"finnhub.endpoint":           "FINNHUB_ENDPOINT",
	"relay.provider":             "PROVIDER",
	"relay.symbols":              "SYMBOLS",
	"relay.polling_interval_sec": "POLLING_INTERVAL_SEC",
	"relay.calls_per_minute":     "CALLS_PER_MINUTE_LIMIT",
	"log.level":                  "LOG_LEVEL",
	"log.format":                 "LOG_FORMAT",
}

// dotenvFiles are loaded in order; a variable already set is never
// overwritten, so earlier files and the real environment win.
var dotenvFiles = []string{".env.local", ".env"}

// Load builds the configuration from defaults, an optional config file
// (JSON or YAML), .env files and the environment, in increasing precedence.
// If path is empty, config.json or config.yaml in the working directory is
// used when present.
func Load(path string) (Config, error) {
	for _, f := range dotenvFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Default(), fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Default(), fmt.Errorf("read config: %w", err)
			}
		}
	}

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Default(), fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	cfg.Server.Origins = flatten(cfg.Server.Origins)
	cfg.Relay.Symbols = flatten(cfg.Relay.Symbols)
	cfg.Relay.Provider = strings.ToLower(strings.TrimSpace(cfg.Relay.Provider))
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.origins", d.Server.Origins)
	v.SetDefault("server.request_timeout_sec", d.Server.RequestTimeoutSec)
	v.SetDefault("finnhub.api_key", d.Finnhub.APIKey)
	v.SetDefault("finnhub.endpoint", d.Finnhub.Endpoint)
	v.SetDefault("relay.provider", d.Relay.Provider)
	v.SetDefault("relay.symbols", d.Relay.Symbols)
	v.SetDefault("relay.polling_interval_sec", d.Relay.PollingIntervalSec)
	v.SetDefault("relay.calls_per_minute", d.Relay.CallsPerMinute)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate reports the first setting the relay cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Server.Port == "":
		return errors.New("config: server port is empty")
	case len(c.Relay.Symbols) == 0:
		return errors.New("config: no symbols configured")
	case c.Relay.PollingIntervalSec <= 0:
		return fmt.Errorf("config: polling interval must be positive, got %d", c.Relay.PollingIntervalSec)
	case c.Relay.CallsPerMinute <= 0:
		return fmt.Errorf("config: calls per minute must be positive, got %d", c.Relay.CallsPerMinute)
	case len(c.Relay.Symbols) > c.Relay.CallsPerMinute:
		// A tick needs one call per symbol; it could never be admitted.
		return fmt.Errorf("config: %d symbols exceed the limit of %d calls per minute", len(c.Relay.Symbols), c.Relay.CallsPerMinute)
	}
	switch c.Relay.Provider {
	case ProviderFinnhub, ProviderMock:
	default:
		return fmt.Errorf("config: unknown provider %q", c.Relay.Provider)
	}
	return nil
}

// ProviderName is the provider the relay will actually use. Finnhub without
// an API key falls back to the mock provider.
func (c Config) ProviderName() string {
	if c.Relay.Provider == ProviderFinnhub && c.Finnhub.APIKey == "" {
		return ProviderMock
	}
	return c.Relay.Provider
}

func (c Config) Addr() string { return net.JoinHostPort(c.Server.Host, c.Server.Port) }

func (c Config) PollingInterval() time.Duration {
	return time.Duration(c.Relay.PollingIntervalSec) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// flatten splits comma-separated entries and drops blanks, so both
// SYMBOLS="AAPL, GOOG" and a list in a config file produce the same result.
func flatten(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, splitCSV(s)...)
	}
	return out
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
