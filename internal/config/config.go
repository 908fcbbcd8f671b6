// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HARVEST_STORE_PATH.
const EnvPrefix = "HARVEST"

// ErrMissingCredential reports that a pass needs an API key that is not set.
var ErrMissingCredential = errors.New("missing credential")

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
	Zones    ZonesConfig    `mapstructure:"zones"`
	Sampler  SamplerConfig  `mapstructure:"sampler"`
	Search   SearchConfig   `mapstructure:"search"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Progress ProgressConfig `mapstructure:"progress"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects and tunes the task store backend.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	DSN           string `mapstructure:"dsn"`
	MaxConns      int    `mapstructure:"max_conns"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// ZonesConfig locates the zone boundary GeoJSON.
type ZonesConfig struct {
	Path         string `mapstructure:"path"`
	NameProperty string `mapstructure:"name_property"`
}

// SamplerConfig controls lattice generation.
type SamplerConfig struct {
	IntervalMeters  float64 `mapstructure:"interval_meters"`
	MetersPerDegree float64 `mapstructure:"meters_per_degree"`
	DedupePrecision int     `mapstructure:"dedupe_precision"`
	ChunkSize       int     `mapstructure:"chunk_size"`
	CheckpointEvery int     `mapstructure:"checkpoint_every"`
}

// SearchConfig controls the panorama search pass.
type SearchConfig struct {
	BatchSize            int           `mapstructure:"batch_size"`
	Workers              int           `mapstructure:"workers"`
	CountEmptyAsSearched bool          `mapstructure:"count_empty_as_searched"`
	IdlePoll             time.Duration `mapstructure:"idle_poll"`
	RPS                  float64       `mapstructure:"rps"`
	Burst                int           `mapstructure:"burst"`
	Endpoint             string        `mapstructure:"endpoint"`
	RadiusMeters         int           `mapstructure:"radius_meters"`
}

// EnrichConfig controls the metadata enrichment pass.
type EnrichConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	Workers   int           `mapstructure:"workers"`
	IdlePoll  time.Duration `mapstructure:"idle_poll"`
	RPS       float64       `mapstructure:"rps"`
	Burst     int           `mapstructure:"burst"`
	Endpoint  string        `mapstructure:"endpoint"`
	APIKey    string        `mapstructure:"api_key"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	UserAgent      string `mapstructure:"user_agent"`
}

// ProgressConfig enables optional progress sinks.
type ProgressConfig struct {
	CSVPath   string       `mapstructure:"csv_path"`
	JSONLPath string       `mapstructure:"jsonl_path"`
	PubSub    PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds the progress topic coordinates.
type PubSubConfig struct {
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	IncludeUnits bool   `mapstructure:"include_units"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// NewViper returns a Viper instance with defaults and environment bindings
// applied. Callers may bind flags onto it before LoadFromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("enrich.api_key", EnvPrefix+"_ENRICH_API_KEY", "GOOGLE_MAP_API_KEY")
	setDefaults(v)
	return v
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	return LoadFromViper(NewViper(), path)
}

// LoadFromViper reads path (when set) into v and decodes the result.
func LoadFromViper(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "gsv.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.busy_timeout_ms", 10000)
	v.SetDefault("zones.path", "geojson/BBMP_Zones.geojson")
	v.SetDefault("zones.name_property", "namecol")
	v.SetDefault("sampler.interval_meters", 25.0)
	v.SetDefault("sampler.meters_per_degree", 111000.0)
	v.SetDefault("sampler.dedupe_precision", 0)
	v.SetDefault("sampler.chunk_size", 5000)
	v.SetDefault("sampler.checkpoint_every", 100)
	v.SetDefault("search.batch_size", 100000)
	v.SetDefault("search.workers", 72)
	v.SetDefault("search.count_empty_as_searched", true)
	v.SetDefault("search.idle_poll", "30s")
	v.SetDefault("search.rps", 0.0)
	v.SetDefault("search.burst", 1)
	v.SetDefault("search.endpoint", "https://maps.googleapis.com/maps/api/js/GeoPhotoService.SingleImageSearch")
	v.SetDefault("search.radius_meters", 50)
	v.SetDefault("enrich.batch_size", 100000)
	v.SetDefault("enrich.workers", 72)
	v.SetDefault("enrich.idle_poll", "30s")
	v.SetDefault("enrich.rps", 0.0)
	v.SetDefault("enrich.burst", 1)
	v.SetDefault("enrich.endpoint", "https://maps.googleapis.com/maps/api/streetview/metadata")
	v.SetDefault("enrich.api_key", "")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.user_agent", "streetview-harvester/0.1")
	v.SetDefault("progress.csv_path", "")
	v.SetDefault("progress.jsonl_path", "")
	v.SetDefault("progress.pubsub.project_id", "")
	v.SetDefault("progress.pubsub.topic", "")
	v.SetDefault("progress.pubsub.include_units", false)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn must be set for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver %q is not one of sqlite, postgres, memory", c.Store.Driver)
	}
	if c.Store.MaxConns <= 0 {
		return errors.New("store.max_conns must be > 0")
	}
	if c.Sampler.IntervalMeters <= 0 {
		return errors.New("sampler.interval_meters must be > 0")
	}
	if c.Sampler.MetersPerDegree <= 0 {
		return errors.New("sampler.meters_per_degree must be > 0")
	}
	if c.Sampler.DedupePrecision < 0 || c.Sampler.DedupePrecision > 12 {
		return errors.New("sampler.dedupe_precision must be between 0 and 12")
	}
	if c.Search.BatchSize <= 0 || c.Enrich.BatchSize <= 0 {
		return errors.New("batch_size must be > 0")
	}
	if c.Search.Workers <= 0 || c.Enrich.Workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if c.Search.RPS < 0 || c.Enrich.RPS < 0 {
		return errors.New("rps must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return errors.New("server.port must be > 0 when the server is enabled")
	}
	if c.Progress.PubSub.Topic != "" && c.Progress.PubSub.ProjectID == "" {
		return errors.New("progress.pubsub.project_id must be set when a topic is configured")
	}
	return nil
}

// RequireAPIKey fails with ErrMissingCredential when the metadata key is unset.
func (c Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Enrich.APIKey) == "" {
		return fmt.Errorf("%w: set enrich.api_key or GOOGLE_MAP_API_KEY", ErrMissingCredential)
	}
	return nil
}

// HTTPTimeout converts http.timeout_seconds to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BusyTimeout converts store.busy_timeout_ms to a duration.
func (c Config) BusyTimeout() time.Duration {
	return time.Duration(c.Store.BusyTimeoutMs) * time.Millisecond
}
