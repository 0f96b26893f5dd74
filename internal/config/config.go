package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vigil/internal/database"
	"vigil/internal/logging"
	"vigil/internal/market"
	"vigil/internal/store"
)

// Config represents the application configuration.
type Config struct {
	App        AppConfig         `yaml:"app"`
	Server     ServerConfig      `yaml:"server"`
	Database   database.Config   `yaml:"database"`
	Redis      store.RedisConfig `yaml:"redis"`
	Broadcast  BroadcastConfig   `yaml:"broadcast"`
	ZScore     ZScoreConfig      `yaml:"zscore"`
	Universe   UniverseConfig    `yaml:"universe"`
	Subscribe  SubscribeDefaults `yaml:"subscribe_defaults"`
	CORS       CORSConfig        `yaml:"cors"`
	Static     StaticConfig      `yaml:"static"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    logging.Config    `yaml:"logging"`
}

// AppConfig represents application identity.
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// BroadcastConfig tunes the fan-out loop. Interval is the user-visible
// cadence knob; everything else rarely changes.
type BroadcastConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	DepthLevels  []int64       `yaml:"depth_levels"`
	WarmupMetric string        `yaml:"warmup_metric"`
}

// ZScoreConfig tunes the warmup gate.
type ZScoreConfig struct {
	MinSamples int     `yaml:"min_samples"`
	MinStd     float64 `yaml:"min_std"`
	WindowSize int     `yaml:"window_size"`
}

// UniverseConfig is the catalog of known exchanges and instruments used
// to expand wildcard subscriptions.
type UniverseConfig struct {
	Exchanges   []string `yaml:"exchanges"`
	Instruments []string `yaml:"instruments"`
}

// SubscribeDefaults are substituted for omitted subscribe fields.
type SubscribeDefaults struct {
	Channels    []string `yaml:"channels"`
	Exchanges   []string `yaml:"exchanges"`
	Instruments []string `yaml:"instruments"`
}

// CORSConfig represents CORS settings for the HTTP surface.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// StaticConfig represents dashboard bundle serving.
type StaticConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Route   string `yaml:"route"`
}

// MonitoringConfig represents Prometheus exposure.
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// Load reads configuration from a YAML file, applies environment
// overrides and fills defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Broadcast.Interval <= 0 {
		c.Broadcast.Interval = time.Second
	}
	if c.Broadcast.ReadTimeout <= 0 {
		c.Broadcast.ReadTimeout = 2 * time.Second
	}
	if len(c.Broadcast.DepthLevels) == 0 {
		c.Broadcast.DepthLevels = market.DefaultDepthLevels
	}
	if c.Broadcast.WarmupMetric == "" {
		c.Broadcast.WarmupMetric = "mid_price"
	}
	if c.ZScore.MinSamples <= 0 {
		c.ZScore.MinSamples = market.DefaultMinSamples
	}
	if c.ZScore.MinStd <= 0 {
		c.ZScore.MinStd = market.DefaultMinStd
	}
	if c.ZScore.WindowSize <= 0 {
		c.ZScore.WindowSize = market.DefaultWindowSize
	}
	if len(c.Universe.Exchanges) == 0 {
		c.Universe.Exchanges = []string{"binance", "okx"}
	}
	if len(c.Universe.Instruments) == 0 {
		c.Universe.Instruments = []string{"BTC-USDT-PERP"}
	}
	if c.Subscribe.Channels == nil {
		c.Subscribe.Channels = []string{"state"}
	}
	if c.Subscribe.Exchanges == nil {
		c.Subscribe.Exchanges = []string{"binance", "okx"}
	}
	if c.Subscribe.Instruments == nil {
		c.Subscribe.Instruments = []string{"BTC-USDT-PERP"}
	}
	if c.Monitoring.PrometheusPath == "" {
		c.Monitoring.PrometheusPath = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
