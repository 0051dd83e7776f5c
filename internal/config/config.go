package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds service configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
	Gotham  GothamConfig  `mapstructure:"gotham"`
	Targets TargetsConfig `mapstructure:"targets"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GothamConfig describes the upstream API and the service user credentials.
type GothamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type TargetsConfig struct {
	DefaultBoard            string        `mapstructure:"default_board"`
	ObservationRefreshDelay time.Duration `mapstructure:"observation_refresh_delay"`
	CreateRefreshDelay      time.Duration `mapstructure:"create_refresh_delay"`
	// PollInterval re-fetches the selected board periodically. Zero disables it.
	PollInterval            time.Duration `mapstructure:"poll_interval"`
}

// Load reads configuration from an optional YAML file and the environment.
// Env var overrides use prefix VIEWER_, e.g. VIEWER_GOTHAM_BASE_URL. A .env
// file in the working directory is loaded first when present; variables
// already set in the environment win over it.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("http.addr", ":8081")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("gotham.base_url", "")
	v.SetDefault("gotham.client_id", "")
	v.SetDefault("gotham.client_secret", "")
	v.SetDefault("gotham.timeout", 15*time.Second)
	v.SetDefault("gotham.requests_per_second", 10.0)
	v.SetDefault("gotham.burst", 5)
	v.SetDefault("targets.default_board", "")
	v.SetDefault("targets.observation_refresh_delay", 3*time.Second)
	v.SetDefault("targets.create_refresh_delay", time.Duration(0))
	v.SetDefault("targets.poll_interval", time.Duration(0))

	v.SetConfigType("yaml")
	if path == "" {
		path = os.Getenv("VIEWER_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("VIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Validate reports configuration that would keep the service from reaching Gotham.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Gotham.BaseURL) == "" {
		problems = append(problems, "gotham.base_url is required")
	} else if u, err := url.Parse(c.Gotham.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "gotham.base_url must be an absolute URL")
	}
	if c.Gotham.ClientID == "" {
		problems = append(problems, "gotham.client_id is required")
	}
	if c.Gotham.ClientSecret == "" {
		problems = append(problems, "gotham.client_secret is required")
	}
	if c.Gotham.RequestsPerSecond < 0 {
		problems = append(problems, "gotham.requests_per_second must not be negative")
	}
	if c.Targets.ObservationRefreshDelay < 0 || c.Targets.CreateRefreshDelay < 0 {
		problems = append(problems, "targets refresh delays must not be negative")
	}
	if c.Targets.PollInterval < 0 {
		problems = append(problems, "targets.poll_interval must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
