package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

const (
	// ConfigPathEnvVar points at an optional YAML config file.
	ConfigPathEnvVar = "CONFIG_FILE"

	DefaultJWTSecret = "local-dev-secret-change-me"

	EnvProduction = "production"
)

// DefaultConfigPaths are searched when CONFIG_FILE is unset.
var DefaultConfigPaths = []string{"config.yaml", "server/config.yaml"}

// Config is the full application configuration.
type Config struct {
	Environment string        `koanf:"environment" validate:"required"`
	Server      ServerConfig  `koanf:"server"`
	Auth        AuthConfig    `koanf:"auth"`
	Store       StoreConfig   `koanf:"store"`
	Seed        SeedConfig    `koanf:"seed"`
	Logging     LoggingConfig `koanf:"logging"`
	Metrics     MetricsConfig `koanf:"metrics"`
}

type ServerConfig struct {
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ClientOrigins     []string      `koanf:"client_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type AuthConfig struct {
	Provider  string `koanf:"provider" validate:"required"`
	JWTSecret string `koanf:"jwt_secret" validate:"required"`
}

type StoreConfig struct {
	Driver    string          `koanf:"driver" validate:"required"`
	FilePath  string          `koanf:"file_path"`
	Couchbase CouchbaseConfig `koanf:"couchbase"`
}

type CouchbaseConfig struct {
	URL      string `koanf:"url"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Bucket   string `koanf:"bucket"`
}

type SeedConfig struct {
	Enabled       bool          `koanf:"enabled"`
	BFROSource    string        `koanf:"bfro_source"`
	WoodapeSource string        `koanf:"woodape_source"`
	KilmurySource string        `koanf:"kilmury_source"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
}

type LoggingConfig struct {
	Level            string `koanf:"level"`
	ElasticsearchURL string `koanf:"elasticsearch_url"`
	Index            string `koanf:"index"`
}

type MetricsConfig struct {
	SystemEnabled  bool          `koanf:"system_enabled"`
	SystemInterval time.Duration `koanf:"system_interval" validate:"gt=0"`
}

func defaultConfig() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Port:              3001,
			ClientOrigins:     []string{"http://localhost:5173"},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
			ShutdownTimeout:   30 * time.Second,
		},
		Auth: AuthConfig{
			Provider:  "local-jwt",
			JWTSecret: DefaultJWTSecret,
		},
		Store: StoreConfig{
			Driver:   "file",
			FilePath: "server/storage/local-firestore.json",
			Couchbase: CouchbaseConfig{
				URL:      "couchbase://localhost",
				Username: "bigfoot_user",
				Bucket:   "bigfoot",
			},
		},
		Seed: SeedConfig{
			Enabled:       true,
			BFROSource:    "data/BFRO-reports-states-map.json",
			WoodapeSource: "data/woodape.org.json",
			KilmurySource: "data/Bobbie-Short-sightings-catalog.json",
			Timeout:       2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
			Index: "logs",
		},
		Metrics: MetricsConfig{
			SystemEnabled:  false,
			SystemInterval: 15 * time.Second,
		},
	}
}

// LoadDotEnv loads .env from the parent directory, then the current one.
// Missing files are not an error.
func LoadDotEnv() {
	err := godotenv.Load("../.env")
	if err != nil {
		log.Info().Msg("Not found .env file in parent directory, trying current directory")
		err = godotenv.Load(".env")
		if err != nil {
			log.Info().Msg("Not found .env file in current directory, assuming environment variables are set")
		}
	}
}

// Load layers defaults, an optional YAML file, and environment variables,
// then validates the result.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.Server.ClientOrigins = splitList(cfg.Server.ClientOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.IsProduction() && c.Auth.JWTSecret == DefaultJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Store.Driver == "file" && strings.TrimSpace(c.Store.FilePath) == "" {
		return errors.New("LOCAL_DB_FILE is required for the file store")
	}
	return nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		log.Warn().Str("path", envPath).Msg("Config file from CONFIG_FILE not found, ignoring")
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"node_env": "environment",
	"app_env":  "environment",

	"port":                "server.port",
	"client_origins":      "server.client_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"shutdown_timeout":    "server.shutdown_timeout",

	"auth_provider": "auth.provider",
	"jwt_secret":    "auth.jwt_secret",

	"store_driver":       "store.driver",
	"local_db_file":      "store.file_path",
	"couchbase_url":      "store.couchbase.url",
	"couchbase_username": "store.couchbase.username",
	"couchbase_password": "store.couchbase.password",
	"couchbase_bucket":   "store.couchbase.bucket",

	"seed_enabled":        "seed.enabled",
	"seed_bfro_source":    "seed.bfro_source",
	"seed_woodape_source": "seed.woodape_source",
	"seed_kilmury_source": "seed.kilmury_source",
	"seed_timeout":        "seed.timeout",

	"log_level":         "logging.level",
	"elasticsearch_url": "logging.elasticsearch_url",
	"log_index":         "logging.index",

	"enable_system_metrics":   "metrics.system_enabled",
	"system_metrics_interval": "metrics.system_interval",
}

// envTransformFunc maps known environment variables onto config paths and
// drops everything else.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
