// Package config loads and validates the pipeline configuration from a YAML
// file with environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

// Source formats recognized by the readers.
const (
	FormatCSV    = "csv"
	FormatNDJSON = "ndjson"
	FormatXLSX   = "xlsx"
)

// Config holds all pipeline settings.
type Config struct {
	Sources   []SourceConfig  `yaml:"sources" mapstructure:"sources"`
	Merge     MergeConfig     `yaml:"merge" mapstructure:"merge"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Geocoding GeocodingConfig `yaml:"geocoding" mapstructure:"geocoding"`
	Kafka     KafkaConfig     `yaml:"kafka" mapstructure:"kafka"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
}

// SourceConfig describes one raw input and how to map it onto the canonical
// schema.
type SourceConfig struct {
	ID     string `yaml:"id" mapstructure:"id"`
	Format string `yaml:"format" mapstructure:"format"`
	Path   string `yaml:"path" mapstructure:"path"`

	// Sheet selects the worksheet for xlsx sources. Empty means the first sheet.
	Sheet string `yaml:"sheet,omitempty" mapstructure:"sheet"`

	Mapping FieldMapping `yaml:"mapping" mapstructure:"mapping"`

	// AllowUnknownType maps unrecognized hazard-type values to the "unknown"
	// category instead of rejecting the record.
	AllowUnknownType bool `yaml:"allow_unknown_type" mapstructure:"allow_unknown_type"`
}

// FieldMapping names the source columns backing each canonical field.
// Empty entries mean the source does not carry that field.
type FieldMapping struct {
	Type        string `yaml:"type" mapstructure:"type"`
	Lat         string `yaml:"lat" mapstructure:"lat"`
	Lon         string `yaml:"lon" mapstructure:"lon"`
	ObservedAt  string `yaml:"observed_at" mapstructure:"observed_at"`
	Severity    string `yaml:"severity" mapstructure:"severity"`
	Magnitude   string `yaml:"magnitude" mapstructure:"magnitude"`
	Description string `yaml:"description" mapstructure:"description"`
	Address     string `yaml:"address" mapstructure:"address"`

	// TimestampLayout pins an explicit Go time layout for observed_at.
	// Empty means the normalizer tries the accepted layouts in order.
	TimestampLayout string `yaml:"timestamp_layout,omitempty" mapstructure:"timestamp_layout"`

	// MagnitudeScale multiplies raw magnitude values for unit conversion
	// (e.g. 0.01 for sources reporting in hundredths). Zero means 1.
	MagnitudeScale float64 `yaml:"magnitude_scale,omitempty" mapstructure:"magnitude_scale"`

	// Defaults supplies fixed raw values for canonical fields the source
	// omits, keyed by canonical field name ("type", "severity", ...).
	Defaults map[string]string `yaml:"defaults,omitempty" mapstructure:"defaults"`
}

// MergeConfig holds the deduplication window.
type MergeConfig struct {
	SpatialThresholdM float64       `yaml:"spatial_threshold_m" mapstructure:"spatial_threshold_m"`
	TemporalWindow    time.Duration `yaml:"temporal_window" mapstructure:"temporal_window"`
}

// StoreConfig configures the shared sqlite store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// GeocodingConfig configures the Mapbox geocoding collaborator.
type GeocodingConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Token     string        `yaml:"token" mapstructure:"token"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheSize int           `yaml:"cache_size" mapstructure:"cache_size"`
}

// KafkaConfig configures the optional committed-record publisher.
// Publishing is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// HTTPConfig configures the daemon-mode health/metrics endpoint.
type HTTPConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures run behavior.
type PipelineConfig struct {
	ResolverWorkers int           `yaml:"resolver_workers" mapstructure:"resolver_workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// Load reads configuration from the given file (or ./config.yaml when path is
// empty) and the HAZARD_* environment, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HAZARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("merge.spatial_threshold_m", 500.0)
	v.SetDefault("merge.temporal_window", "6h")
	v.SetDefault("store.path", "hazards.db")
	v.SetDefault("geocoding.timeout", "5s")
	v.SetDefault("geocoding.cache_size", 1000)
	v.SetDefault("kafka.topic", "hazard-records")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.resolver_workers", 8)
	v.SetDefault("pipeline.shutdown_timeout", "10s")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for internal consistency. Field mappings
// are validated here, at load time, so a bad mapping fails the process before
// any pipeline run starts.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return eris.New("config: at least one source is required")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if err := s.validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return eris.Errorf("config: duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
	}

	if c.Merge.SpatialThresholdM <= 0 {
		return eris.New("config: merge.spatial_threshold_m must be positive")
	}
	if c.Merge.TemporalWindow <= 0 {
		return eris.New("config: merge.temporal_window must be positive")
	}
	if c.Store.Path == "" {
		return eris.New("config: store.path is required")
	}
	if c.Geocoding.Enabled && c.Geocoding.Token == "" {
		return eris.New("config: geocoding.enabled is true but geocoding.token is not set")
	}
	if c.Geocoding.Timeout <= 0 {
		return eris.New("config: geocoding.timeout must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return eris.New("config: kafka.topic is required when brokers are set")
	}
	if c.Pipeline.ResolverWorkers <= 0 {
		return eris.New("config: pipeline.resolver_workers must be positive")
	}
	return nil
}

func (s *SourceConfig) validate() error {
	if s.ID == "" {
		return eris.New("config: source id is required")
	}
	switch s.Format {
	case FormatCSV, FormatNDJSON, FormatXLSX:
	default:
		return eris.Errorf("config: source %s: unrecognized format %q", s.ID, s.Format)
	}
	if s.Path == "" {
		return eris.Errorf("config: source %s: path is required", s.ID)
	}
	return s.Mapping.validate(s.ID)
}

// knownDefaults are the canonical fields that may carry a configured default.
var knownDefaults = map[string]bool{
	"type":        true,
	"severity":    true,
	"magnitude":   true,
	"description": true,
	"address":     true,
}

func (m *FieldMapping) validate(sourceID string) error {
	if m.ObservedAt == "" {
		return eris.Errorf("config: source %s: mapping.observed_at is required", sourceID)
	}
	if m.Type == "" && m.Defaults["type"] == "" {
		return eris.Errorf("config: source %s: mapping.type or defaults.type is required", sourceID)
	}
	if (m.Lat == "") != (m.Lon == "") {
		return eris.Errorf("config: source %s: lat and lon must be mapped together", sourceID)
	}
	hasCoords := m.Lat != "" && m.Lon != ""
	if !hasCoords && m.Address == "" && m.Defaults["address"] == "" {
		return eris.Errorf("config: source %s: mapping needs lat+lon columns or an address column", sourceID)
	}
	if m.MagnitudeScale < 0 {
		return eris.Errorf("config: source %s: magnitude_scale must not be negative", sourceID)
	}
	for field := range m.Defaults {
		if !knownDefaults[field] {
			return eris.Errorf("config: source %s: unknown default field %q", sourceID, field)
		}
	}
	if fixed := m.Defaults["type"]; fixed != "" && m.Type == "" {
		if _, ok := domain.ParseHazardType(fixed, false); !ok {
			return eris.Errorf("config: source %s: defaults.type %q is not a hazard type", sourceID, fixed)
		}
	}
	return nil
}

// SourceByID returns the source config with the given id, or an error.
func (c *Config) SourceByID(id string) (*SourceConfig, error) {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i], nil
		}
	}
	return nil, fmt.Errorf("unknown source %q", id)
}
