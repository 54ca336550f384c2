package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const envPrefix = "HEALTHDECK_"

// Config is the process configuration. Runtime tunables such as retention live in
// the settings table instead.
type Config struct {
	Listen       string    `yaml:"listen"`
	DatabasePath string    `yaml:"databasePath"`
	ServicesFile string    `yaml:"servicesFile"`
	WatchSeed    bool      `yaml:"watchServicesFile"`
	SeedDefaults bool      `yaml:"seedDefaults"`
	AllowOrigins []string  `yaml:"allowOrigins"`
	Log          LogConfig `yaml:"log"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Listen:       ":3000",
		DatabasePath: "./data/healthdeck.db",
		ServicesFile: "./data/services.yaml",
		WatchSeed:    true,
		SeedDefaults: true,
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads .env, then the YAML file at path (if any) over DefaultConfig, then
// HEALTHDECK_* environment overrides.
func Load(fs afero.Fs, path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("[Config] No .env file found, relying on environment variables")
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := afero.ReadFile(fs, path)
		switch {
		case os.IsNotExist(err):
			log.Debug().Str("config_path", path).Msg("[Config] Configuration file not found")
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse YAML: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Listen = getEnvString("LISTEN", cfg.Listen)
	if port := os.Getenv("PORT"); port != "" && os.Getenv(envPrefix+"LISTEN") == "" {
		cfg.Listen = ":" + port
	}
	cfg.DatabasePath = getEnvString("DB_PATH", cfg.DatabasePath)
	cfg.ServicesFile = getEnvString("SERVICES_FILE", cfg.ServicesFile)
	cfg.WatchSeed = getEnvBool("WATCH_SERVICES_FILE", cfg.WatchSeed)
	cfg.SeedDefaults = getEnvBool("SEED_DEFAULTS", cfg.SeedDefaults)
	if origins := getEnvString("ALLOW_ORIGINS", ""); origins != "" {
		cfg.AllowOrigins = splitList(origins)
	}
	cfg.Log.Level = getEnvString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvString("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnvString("LOG_FILE", cfg.Log.File)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
