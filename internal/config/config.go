package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"crossbridge/internal/impact"
	"crossbridge/internal/paths"
	"crossbridge/internal/signals"
)

// CurrentVersion is the config schema version this build reads
const CurrentVersion = 1

// Config represents the complete crossbridge configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" validate:"eq=1"`

	Registry RegistryConfig `json:"registry" mapstructure:"registry"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Impact   ImpactConfig   `json:"impact" mapstructure:"impact"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
}

// RegistryConfig controls signal matching
type RegistryConfig struct {
	Matcher            string   `json:"matcher" mapstructure:"matcher" validate:"oneof=auto linear automaton"`
	AutomatonThreshold int      `json:"automatonThreshold" mapstructure:"automatonThreshold" validate:"gte=1"`
	Manifests          []string `json:"manifests" mapstructure:"manifests"`
}

// StorageConfig selects where mapping records live
type StorageConfig struct {
	Backend     string            `json:"backend" mapstructure:"backend" validate:"oneof=file sqlite postgres object"`
	Dir         string            `json:"dir" mapstructure:"dir"`
	PostgresURL string            `json:"postgresUrl" mapstructure:"postgresUrl"`
	Object      ObjectStoreConfig `json:"object" mapstructure:"object"`
}

// ObjectStoreConfig addresses an S3-compatible bucket
type ObjectStoreConfig struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"accessKey" mapstructure:"accessKey"`
	SecretKey string `json:"secretKey" mapstructure:"secretKey"`
	UseSSL    bool   `json:"useSsl" mapstructure:"useSsl"`
	Region    string `json:"region" mapstructure:"region"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Prefix    string `json:"prefix" mapstructure:"prefix"`
}

// ImpactConfig controls the impact index and its fact store
type ImpactConfig struct {
	FactStore     string             `json:"factStore" mapstructure:"factStore" validate:"oneof=memory sqlite postgres badger"`
	BadgerPath    string             `json:"badgerPath" mapstructure:"badgerPath"`
	MinConfidence float64            `json:"minConfidence" mapstructure:"minConfidence" validate:"gte=0,lte=1"`
	MappingSource string             `json:"mappingSource" mapstructure:"mappingSource" validate:"required"`
	Confidence    map[string]float64 `json:"confidence" mapstructure:"confidence"`
	TopN          int                `json:"topN" mapstructure:"topN" validate:"gte=0"`
	ScanTimeoutMs int                `json:"scanTimeoutMs" mapstructure:"scanTimeoutMs" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" mapstructure:"format" validate:"oneof=human json"`
	Level      string `json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	File       string `json:"file" mapstructure:"file"`
	MaxSizeMB  int    `json:"maxSizeMb" mapstructure:"maxSizeMb" validate:"gte=0"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups" validate:"gte=0"`
	MaxAgeDays int    `json:"maxAgeDays" mapstructure:"maxAgeDays" validate:"gte=0"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// MetricsConfig controls the end-of-pass metrics dump
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Textfile string `json:"textfile" mapstructure:"textfile"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	confidence := make(map[string]float64, len(impact.DefaultConfidence))
	for source, c := range impact.DefaultConfidence {
		confidence[string(source)] = c
	}
	return &Config{
		Version: CurrentVersion,
		Registry: RegistryConfig{
			Matcher:            "auto",
			AutomatonThreshold: signals.DefaultAutomatonThreshold,
			Manifests:          []string{},
		},
		Storage: StorageConfig{
			Backend: "file",
		},
		Impact: ImpactConfig{
			FactStore:     "sqlite",
			MinConfidence: 0.5,
			MappingSource: string(impact.SourceStaticAST),
			Confidence:    confidence,
			TopN:          10,
			ScanTimeoutMs: 30000,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// ConfigPath returns <repoRoot>/.crossbridge/config.json
func ConfigPath(repoRoot string) string {
	return filepath.Join(paths.StateDir(repoRoot), "config.json")
}

// LoadConfig loads .crossbridge/config.json over the defaults, then applies
// CROSSBRIDGE_* environment overrides (CROSSBRIDGE_STORAGE_BACKEND=sqlite).
// A missing file is not an error. The result is validated.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(paths.StateDir(repoRoot))
	v.SetEnvPrefix("CROSSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("version", cfg.Version)

	v.SetDefault("registry.matcher", cfg.Registry.Matcher)
	v.SetDefault("registry.automatonThreshold", cfg.Registry.AutomatonThreshold)
	v.SetDefault("registry.manifests", cfg.Registry.Manifests)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.dir", cfg.Storage.Dir)
	v.SetDefault("storage.postgresUrl", cfg.Storage.PostgresURL)
	v.SetDefault("storage.object.endpoint", cfg.Storage.Object.Endpoint)
	v.SetDefault("storage.object.accessKey", cfg.Storage.Object.AccessKey)
	v.SetDefault("storage.object.secretKey", cfg.Storage.Object.SecretKey)
	v.SetDefault("storage.object.useSsl", cfg.Storage.Object.UseSSL)
	v.SetDefault("storage.object.region", cfg.Storage.Object.Region)
	v.SetDefault("storage.object.bucket", cfg.Storage.Object.Bucket)
	v.SetDefault("storage.object.prefix", cfg.Storage.Object.Prefix)

	v.SetDefault("impact.factStore", cfg.Impact.FactStore)
	v.SetDefault("impact.badgerPath", cfg.Impact.BadgerPath)
	v.SetDefault("impact.minConfidence", cfg.Impact.MinConfidence)
	v.SetDefault("impact.mappingSource", cfg.Impact.MappingSource)
	v.SetDefault("impact.confidence", cfg.Impact.Confidence)
	v.SetDefault("impact.topN", cfg.Impact.TopN)
	v.SetDefault("impact.scanTimeoutMs", cfg.Impact.ScanTimeoutMs)

	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.maxSizeMb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.maxBackups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.maxAgeDays", cfg.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", cfg.Logging.Compress)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.textfile", cfg.Metrics.Textfile)
}

// Save writes the configuration to .crossbridge/config.json
func (c *Config) Save(repoRoot string) error {
	if _, err := paths.EnsureDir(paths.StateDir(repoRoot)); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(repoRoot), data, 0o644)
}

var validate = validator.New()

// Validate checks field constraints, then the rules that span fields
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{
				Field:   fieldPath(fe.Namespace()),
				Message: fmt.Sprintf("failed %q check (value %v)", fe.Tag(), fe.Value()),
			}
		}
		return &ConfigError{Field: "", Message: err.Error()}
	}

	switch c.Storage.Backend {
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return &ConfigError{Field: "storage.postgresUrl", Message: "required for the postgres backend"}
		}
	case "object":
		if c.Storage.Object.Endpoint == "" || c.Storage.Object.Bucket == "" {
			return &ConfigError{Field: "storage.object", Message: "endpoint and bucket are required for the object backend"}
		}
	}
	if c.Impact.FactStore == "postgres" && c.Storage.PostgresURL == "" {
		return &ConfigError{Field: "storage.postgresUrl", Message: "required for the postgres fact store"}
	}

	if _, err := impact.ParseSource(c.Impact.MappingSource); err != nil {
		return &ConfigError{Field: "impact.mappingSource", Message: err.Error()}
	}
	for name, conf := range c.Impact.Confidence {
		if _, err := impact.ParseSource(name); err != nil {
			return &ConfigError{Field: "impact.confidence." + name, Message: err.Error()}
		}
		if conf < 0 || conf > 1 {
			return &ConfigError{Field: "impact.confidence." + name, Message: fmt.Sprintf("%v is outside [0, 1]", conf)}
		}
	}
	return nil
}

// SourceConfidence returns the configured default confidence for source,
// falling back to the built-in table
func (c *Config) SourceConfidence(source impact.Source) float64 {
	if conf, ok := c.Impact.Confidence[string(source)]; ok {
		return conf
	}
	return impact.DefaultConfidence[source]
}

// fieldPath turns "Config.Impact.MinConfidence" into "impact.minConfidence"
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
