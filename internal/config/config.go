// Package config loads the layered runtime configuration: built-in
// defaults, an optional YAML profile file, then environment variables.
// Secrets only ever come from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/whisper/internal/budget"
	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/modules/scoring"
	"github.com/aristath/whisper/internal/modules/vrp"
	"github.com/aristath/whisper/internal/storage/s3blob"
)

// Threshold profile names.
const (
	ProfileStandard     = "standard"
	ProfileConservative = "conservative"
)

// ScanConfig tunes the orchestrator.
type ScanConfig struct {
	Concurrency  int64 `yaml:"concurrency"`
	WindowDays   int   `yaml:"window_days"`
	PositionSize int   `yaml:"position_size"`
	TopN         int   `yaml:"top_n"`
}

// SignalConfig tunes the analytic stages.
type SignalConfig struct {
	Profile     string `yaml:"profile"` // standard | conservative
	MinQuarters int    `yaml:"min_quarters"`
	Metric      string `yaml:"metric"` // close | intraday | gap
}

// ProviderConfig selects the active provider per concern.
type ProviderConfig struct {
	Market    string   `yaml:"market"`    // tradier
	Calendar  string   `yaml:"calendar"`  // yahoo
	Sentiment string   `yaml:"sentiment"` // llm, empty disables
	Universe  []string `yaml:"universe"`  // tickers for calendar walks
}

// ReliabilityConfig tunes the per-provider guard and retry policy.
type ReliabilityConfig struct {
	RateCapacity     int           `yaml:"rate_capacity"`
	RefillPerSecond  float64       `yaml:"refill_per_second"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
}

// SchedulerConfig tunes the dispatcher.
type SchedulerConfig struct {
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// Config is the process-wide configuration.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DevMode  bool   `yaml:"dev_mode"`

	Scan        ScanConfig        `yaml:"scan"`
	Signals     SignalConfig      `yaml:"signals"`
	Scoring     scoring.Weights   `yaml:"scoring"`
	Providers   ProviderConfig    `yaml:"providers"`
	Reliability ReliabilityConfig `yaml:"reliability"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`

	// Budget limits keyed by service name.
	Budget map[string]budget.Limits `yaml:"budget"`

	// Secrets, environment only.
	APIKey           string        `yaml:"-"` // HTTP surface
	TradierAPIKey    string        `yaml:"-"`
	TradierSandbox   bool          `yaml:"-"`
	PerplexityAPIKey string        `yaml:"-"`
	Replication      s3blob.Config `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:  "./data",
		Port:     8090,
		LogLevel: "info",
		Scan: ScanConfig{
			Concurrency:  10,
			WindowDays:   5,
			PositionSize: 100,
			TopN:         10,
		},
		Signals: SignalConfig{
			Profile:     ProfileStandard,
			MinQuarters: 4,
			Metric:      string(domain.MetricClose),
		},
		Scoring: scoring.DefaultWeights(),
		Providers: ProviderConfig{
			Market:    "tradier",
			Calendar:  "yahoo",
			Sentiment: "llm",
		},
		Reliability: ReliabilityConfig{
			RateCapacity:     10,
			RefillPerSecond:  2,
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			MaxRetries:       3,
			BaseDelay:        500 * time.Millisecond,
		},
		Scheduler: SchedulerConfig{JobTimeout: 30 * time.Minute},
		Budget: map[string]budget.Limits{
			"perplexity": {DailyCalls: 50, MonthlyBudget: domain.NewMoney(5)},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (or WHISPER_CONFIG; a missing file is fine), then the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("WHISPER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, domain.NewError(domain.ErrConfiguration, "config.load", err)
			}
		case !os.IsNotExist(err):
			return nil, domain.NewError(domain.ErrConfiguration, "config.load", err)
		}
	}

	cfg.applyEnv()

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, domain.NewError(domain.ErrConfiguration, "config.load", err)
	}
	cfg.DataDir = absDataDir
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, domain.NewError(domain.ErrConfiguration, "config.load", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv("WHISPER_DATA_DIR", c.DataDir)
	c.Port = getEnvAsInt("WHISPER_PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)

	c.APIKey = getEnv("WHISPER_API_KEY", c.APIKey)
	c.TradierAPIKey = getEnv("TRADIER_API_KEY", c.TradierAPIKey)
	c.TradierSandbox = getEnvAsBool("TRADIER_SANDBOX", c.TradierSandbox)
	c.PerplexityAPIKey = getEnv("PERPLEXITY_API_KEY", c.PerplexityAPIKey)

	c.Replication = s3blob.Config{
		AccountID:       getEnv("R2_ACCOUNT_ID", c.Replication.AccountID),
		AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", c.Replication.AccessKeyID),
		SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", c.Replication.SecretAccessKey),
		Bucket:          getEnv("R2_BUCKET", c.Replication.Bucket),
		Endpoint:        getEnv("R2_ENDPOINT", c.Replication.Endpoint),
	}

	if v := os.Getenv("WHISPER_UNIVERSE"); v != "" {
		var universe []string
		for _, ticker := range strings.Split(v, ",") {
			ticker = strings.ToUpper(strings.TrimSpace(ticker))
			if ticker != "" {
				universe = append(universe, ticker)
			}
		}
		c.Providers.Universe = universe
	}
}

// Validate fails fast on contradictory or out-of-range settings.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return domain.Errorf(domain.ErrConfiguration, "config", "port %d out of range", c.Port)
	}
	if c.Scan.Concurrency <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "config", "scan concurrency must be positive")
	}
	if c.Scan.WindowDays <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "config", "scan window must be positive")
	}
	if c.Scan.PositionSize <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "config", "position size must be positive")
	}
	if c.Signals.MinQuarters <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "config", "min quarters must be positive")
	}

	switch c.Signals.Profile {
	case ProfileStandard, ProfileConservative:
	default:
		return domain.Errorf(domain.ErrConfiguration, "config",
			"unknown threshold profile %q (standard|conservative)", c.Signals.Profile)
	}

	if err := c.Scoring.Validate(); err != nil {
		return err
	}

	switch domain.MoveMetric(c.Signals.Metric) {
	case domain.MetricClose, domain.MetricIntraday, domain.MetricGap:
	default:
		return domain.Errorf(domain.ErrConfiguration, "config",
			"unknown move metric %q (close|intraday|gap)", c.Signals.Metric)
	}

	for service, limits := range c.Budget {
		if limits.DailyCalls <= 0 || !limits.MonthlyBudget.IsPositive() {
			return domain.Errorf(domain.ErrConfiguration, "config",
				"budget for %s needs positive daily calls and monthly budget", service)
		}
	}
	return nil
}

// Thresholds returns the VRP tier thresholds for the active profile.
func (c *Config) Thresholds() vrp.Thresholds {
	if c.Signals.Profile == ProfileConservative {
		return vrp.ConservativeThresholds()
	}
	return vrp.StandardThresholds()
}

// MoveMetric returns the configured historical move metric.
func (c *Config) MoveMetric() domain.MoveMetric {
	return domain.MoveMetric(c.Signals.Metric)
}

// DatabasePath returns the path of a named database under the data dir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
