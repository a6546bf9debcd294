package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/urban-analytics/simflow/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Fit      FitConfig      `yaml:"fit" mapstructure:"fit"`
	Scenario ScenarioConfig `yaml:"scenario" mapstructure:"scenario"`
	Zones    ZonesConfig    `yaml:"zones" mapstructure:"zones"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// FitConfig configures model fitting.
type FitConfig struct {
	Deterrence string  `yaml:"deterrence" mapstructure:"deterrence"`
	MarginTol  float64 `yaml:"margin_tol" mapstructure:"margin_tol"`
}

// ScenarioConfig configures scenario evaluation.
type ScenarioConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ZonesConfig configures shapefile zone loading.
type ZonesConfig struct {
	CodeField     string  `yaml:"code_field" mapstructure:"code_field"`
	NameField     string  `yaml:"name_field" mapstructure:"name_field"`
	MinDistanceKM float64 `yaml:"min_distance_km" mapstructure:"min_distance_km"`
}

// FetchConfig configures dataset downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SIMFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "simflow.db")
	v.SetDefault("fit.deterrence", "power")
	v.SetDefault("fit.margin_tol", 1e-6)
	v.SetDefault("scenario.concurrency", 4)
	v.SetDefault("zones.code_field", "GEOID")
	v.SetDefault("zones.name_field", "NAME")
	v.SetDefault("zones.min_distance_km", 1.0)
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.temp_dir", "/tmp/simflow")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
