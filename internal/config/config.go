package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the command's configuration.
type Config struct {
	Endpoint string
	Headers  map[string]string
	Request  RequestConfig
	Feed     FeedConfig
	Breaker  BreakerConfig
	Log      LogConfig
	Otel     OtelConfig
}

// RequestConfig bounds single HTTP round trips.
type RequestConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// FeedConfig holds controller settings.
type FeedConfig struct {
	PageSize    int           `mapstructure:"page_size"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
}

// BreakerConfig enables the transport circuit breaker when MaxFailures > 0.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// OtelConfig holds telemetry settings. An empty endpoint disables export.
type OtelConfig struct {
	Endpoint string
	Service  string
}

// EnvConfigPath names the variable consulted when Load gets no path.
const EnvConfigPath = "GQLFEED_CONFIG"

// Load reads configuration from path (or $GQLFEED_CONFIG) and the
// environment. Env var overrides use prefix GQLFEED_, e.g.
// GQLFEED_FEED_PAGE_SIZE. A missing default config file is not an error; a
// missing explicit one is.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("endpoint", "http://localhost:4000/graphql")
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("request.timeout", 10*time.Second)
	v.SetDefault("request.max_body_bytes", int64(8<<20))
	v.SetDefault("feed.page_size", 20)
	v.SetDefault("feed.load_timeout", time.Duration(0))
	v.SetDefault("breaker.max_failures", 0)
	v.SetDefault("breaker.open_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.service", "gqlfeed")

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gqlfeed")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(dir + "/gqlfeed")
		}
	}

	v.SetEnvPrefix("GQLFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values viper cannot type-check.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("config: endpoint is required")
	}
	if c.Feed.PageSize <= 0 {
		return fmt.Errorf("config: feed.page_size must be positive, got %d", c.Feed.PageSize)
	}
	if c.Request.Timeout < 0 || c.Feed.LoadTimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	return nil
}
