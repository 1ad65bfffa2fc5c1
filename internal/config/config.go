package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

type Config struct {
	BatchSize        int
	RateLimit        time.Duration
	MaxID            int64
	HTTPAddr         string
	FetchMinLatency  time.Duration
	FetchMaxLatency  time.Duration
	FetchFailureRate float64
	FetchAttempts    uint
	FetchRetryDelay  time.Duration
	SubmitRPS        float64
	SubmitBurst      int
	ShutdownTimeout  time.Duration
	LogLevel         slog.Level
}

func Default() *Config {
	return &Config{
		BatchSize:        3,
		RateLimit:        5 * time.Second,
		MaxID:            1_000_000_007,
		HTTPAddr:         ":5000",
		FetchMinLatency:  500 * time.Millisecond,
		FetchMaxLatency:  1500 * time.Millisecond,
		FetchFailureRate: 0,
		FetchAttempts:    3,
		FetchRetryDelay:  200 * time.Millisecond,
		SubmitRPS:        5,
		SubmitBurst:      10,
		ShutdownTimeout:  10 * time.Second,
		LogLevel:         slog.LevelInfo,
	}
}

// LoadFromEnv starts from the defaults, applies a .env file in the working
// directory if one exists, then the process environment.
func LoadFromEnv() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "loading .env")
	}
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	var err error
	set := func(key string, apply func(string) error) {
		if err != nil {
			return
		}
		if v, ok := lookup(key); ok && v != "" {
			if applyErr := apply(v); applyErr != nil {
				err = errors.Wrapf(applyErr, "parsing %s=%q", key, v)
			}
		}
	}

	set("INGEST_BATCH_SIZE", func(v string) (e error) { cfg.BatchSize, e = cast.ToIntE(v); return })
	set("INGEST_RATE_LIMIT", func(v string) (e error) { cfg.RateLimit, e = cast.ToDurationE(v); return })
	set("INGEST_MAX_ID", func(v string) (e error) { cfg.MaxID, e = cast.ToInt64E(v); return })
	set("INGEST_HTTP_ADDR", func(v string) error { cfg.HTTPAddr = v; return nil })
	set("INGEST_FETCH_MIN_LATENCY", func(v string) (e error) { cfg.FetchMinLatency, e = cast.ToDurationE(v); return })
	set("INGEST_FETCH_MAX_LATENCY", func(v string) (e error) { cfg.FetchMaxLatency, e = cast.ToDurationE(v); return })
	set("INGEST_FETCH_FAILURE_RATE", func(v string) (e error) { cfg.FetchFailureRate, e = cast.ToFloat64E(v); return })
	set("INGEST_FETCH_ATTEMPTS", func(v string) (e error) { cfg.FetchAttempts, e = cast.ToUintE(v); return })
	set("INGEST_FETCH_RETRY_DELAY", func(v string) (e error) { cfg.FetchRetryDelay, e = cast.ToDurationE(v); return })
	set("INGEST_SUBMIT_RPS", func(v string) (e error) { cfg.SubmitRPS, e = cast.ToFloat64E(v); return })
	set("INGEST_SUBMIT_BURST", func(v string) (e error) { cfg.SubmitBurst, e = cast.ToIntE(v); return })
	set("INGEST_SHUTDOWN_TIMEOUT", func(v string) (e error) { cfg.ShutdownTimeout, e = cast.ToDurationE(v); return })
	set("LOG_LEVEL", func(v string) error { return cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))) })
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return errors.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.RateLimit < 0:
		return errors.Errorf("rate limit must not be negative, got %s", c.RateLimit)
	case c.MaxID < 1:
		return errors.Errorf("max id must be at least 1, got %d", c.MaxID)
	case c.FetchMinLatency < 0 || c.FetchMaxLatency < c.FetchMinLatency:
		return errors.Errorf("fetch latency range [%s, %s] is invalid", c.FetchMinLatency, c.FetchMaxLatency)
	case c.FetchFailureRate < 0 || c.FetchFailureRate > 1:
		return errors.Errorf("fetch failure rate must be within [0, 1], got %v", c.FetchFailureRate)
	case c.FetchAttempts == 0:
		return errors.New("fetch attempts must be at least 1")
	}
	return nil
}
