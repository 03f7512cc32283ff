package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "trajeval.yaml"

// Environment overrides, applied after the config file.
const (
	EnvTotalCost = "TRAJEVAL_TOTAL_COST"
	EnvWorkers   = "TRAJEVAL_WORKERS"
	EnvLogLevel  = "TRAJEVAL_LOG_LEVEL"
)

type Config struct {
	Results Results `yaml:"results"`
	Cost    Cost    `yaml:"cost"`
	Workers int     `yaml:"workers"`
	Log     Log     `yaml:"log"`
	Export  Export  `yaml:"export"`
	Secrets Secrets `yaml:"secrets"`
}

// Results locates a run's raw logs and evaluated output relative to the run
// directory.
type Results struct {
	InputSubdir  string `yaml:"input_subdir"`
	OutputSubdir string `yaml:"output_subdir"`
}

// Cost describes where a run's total cost comes from. TotalUSD, when set,
// wins over pricing the usage log.
type Cost struct {
	TotalUSD    *float64 `yaml:"total_usd"`
	PricingFile string   `yaml:"pricing_file"`
	UsageLog    string   `yaml:"usage_log"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Export struct {
	DuckDB string `yaml:"duckdb"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Results: Results{InputSubdir: "json_result", OutputSubdir: "result"},
		Workers: 1,
		Log:     Log{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	cfg = Default()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile exports the variables of a dotenv file. Variables already set
// in the environment are kept.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from TRAJEVAL_* variables.
func ApplyEnv(cfg *Config) error {
	if v, ok := lookup(EnvTotalCost); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTotalCost, err)
		}
		cfg.Cost.TotalUSD = &f
	}
	if v, ok := lookup(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Workers = n
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Validate checks cfg and fills the defaults of optional fields. Call it
// again after changing cfg, for example through ApplyEnv.
func Validate(cfg *Config) error {
	if cfg.Results.InputSubdir == "" {
		return fmt.Errorf("results.input_subdir is required")
	}
	if cfg.Results.OutputSubdir == "" {
		return fmt.Errorf("results.output_subdir is required")
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.Cost.TotalUSD != nil && *cfg.Cost.TotalUSD < 0 {
		return fmt.Errorf("cost.total_usd must not be negative")
	}
	if cfg.Cost.UsageLog != "" && cfg.Cost.PricingFile == "" {
		return fmt.Errorf("cost.usage_log requires cost.pricing_file")
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q is not console or json", cfg.Log.Format)
	}
	return nil
}
