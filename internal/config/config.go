package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/rs/zerolog"
)

const (
	BackendSimulated = "simulated"
	BackendSQLite    = "sqlite"
)

type Datadog struct {
	Enable    bool     `json:"enable" yaml:"enable" env:"DD_ENABLE" env-default:"false"`
	AgentAddr string   `json:"agent_addr" yaml:"agent_addr" env:"DD_AGENT_ADDR" env-default:"127.0.0.1:8125"`
	Namespace string   `json:"namespace" yaml:"namespace" env:"DD_NAMESPACE" env-default:"greenhouse."`
	Tags      []string `json:"tags" yaml:"tags" env:"DD_TAGS" env-separator:","`
}

type Ntfy struct {
	URL   string `json:"url" yaml:"url" env:"NTFY_URL" env-default:"https://ntfy.sh"`
	Topic string `json:"topic" yaml:"topic" env:"NTFY_TOPIC"`
}

type Config struct {
	ConfigFile string        `json:"-" yaml:"-"`
	LogLevel   zerolog.Level `json:"-" yaml:"-"`

	Backend             string  `json:"backend" yaml:"backend" env:"GREENHOUSE_BACKEND" env-default:"simulated"`
	DBPath              string  `json:"db_path" yaml:"db_path" env:"GREENHOUSE_DB_PATH" env-default:"data/greenhouse.db"`
	SettingsPath        string  `json:"settings_path" yaml:"settings_path" env:"GREENHOUSE_SETTINGS_PATH" env-default:"data/ventilation.json"`
	LogFile             string  `json:"log_file" yaml:"log_file" env:"GREENHOUSE_LOG_FILE"`
	PollIntervalSeconds int     `json:"poll_interval_seconds" yaml:"poll_interval_seconds" env:"GREENHOUSE_POLL_INTERVAL_SECONDS" env-default:"30"`
	APIPort             int     `json:"api_port" yaml:"api_port" env:"GREENHOUSE_API_PORT" env-default:"8080"`
	WarningMargin       float64 `json:"warning_margin" yaml:"warning_margin" env:"GREENHOUSE_WARNING_MARGIN" env-default:"0.1"`
	SimulatedLatencyMS  int     `json:"simulated_latency_ms" yaml:"simulated_latency_ms" env:"GREENHOUSE_SIMULATED_LATENCY_MS" env-default:"0"`
	HistoryFallback     bool    `json:"history_fallback" yaml:"history_fallback" env:"GREENHOUSE_HISTORY_FALLBACK" env-default:"true"`

	Ntfy    Ntfy    `json:"ntfy" yaml:"ntfy"`
	Datadog Datadog `json:"datadog" yaml:"datadog"`
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) SimulatedLatency() time.Duration {
	return time.Duration(c.SimulatedLatencyMS) * time.Millisecond
}

// Load parses flags, reads the config file (JSON or YAML, with environment
// overrides) and validates it. Invalid configuration panics.
func Load() Config {
	var configFile, logLevel string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to greenhouse config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := Read(configFile)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	cfg.LogLevel = parseLogLevel(logLevel)

	cfg.validate()
	return cfg
}

// Read loads path with cleanenv. A missing file is not an error: defaults
// and environment variables apply.
func Read(path string) (Config, error) {
	var cfg Config
	cfg.ConfigFile = path

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return cfg, fmt.Errorf("read environment: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var problems []string

	switch cfg.Backend {
	case BackendSimulated:
	case BackendSQLite:
		if cfg.DBPath == "" {
			problems = append(problems, "db_path is required for the sqlite backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown backend %q (simulated, sqlite)", cfg.Backend))
	}

	if cfg.PollIntervalSeconds <= 0 {
		problems = append(problems, fmt.Sprintf("poll_interval_seconds must be positive, got %d", cfg.PollIntervalSeconds))
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("api_port %d out of range", cfg.APIPort))
	}
	if cfg.WarningMargin < 0 || cfg.WarningMargin > 1 {
		problems = append(problems, fmt.Sprintf("warning_margin must be within 0-1, got %.2f", cfg.WarningMargin))
	}
	if cfg.SimulatedLatencyMS < 0 {
		problems = append(problems, "simulated_latency_ms must not be negative")
	}
	if cfg.SettingsPath == "" {
		problems = append(problems, "settings_path is required")
	}
	if cfg.Datadog.Enable && cfg.Datadog.AgentAddr == "" {
		problems = append(problems, "datadog.agent_addr is required when datadog is enabled")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}
