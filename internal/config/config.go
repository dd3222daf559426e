// Package config loads the harness configuration from UP_E2E_* environment
// variables and an optional upcheck.yaml file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key to form its
// environment variable name.
const EnvPrefix = "UP_E2E"

// Config is the fully resolved harness configuration.
type Config struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	APIToken string `mapstructure:"api_token"`

	HTTPBasicUsername string `mapstructure:"http_basic_username"`
	HTTPBasicPassword string `mapstructure:"http_basic_password"`

	TestRail TestRailConfig `mapstructure:",squash"`

	CI      bool `mapstructure:"ci"`
	Retries int  `mapstructure:"retries"`

	GlobalTimeout   time.Duration `mapstructure:"global_timeout"`
	ExpectTimeout   time.Duration `mapstructure:"expect_timeout"`
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout"`

	BaseTag      string `mapstructure:"base_tag"`
	LedgerPath   string `mapstructure:"ledger_path"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`

	Headless       bool `mapstructure:"headless"`
	ViewportWidth  int  `mapstructure:"viewport_width"`
	ViewportHeight int  `mapstructure:"viewport_height"`
}

// TestRailConfig holds the optional result-reporting settings.
type TestRailConfig struct {
	Enabled         bool   `mapstructure:"testrail_enabled"`
	Username        string `mapstructure:"testrail_username"`
	Password        string `mapstructure:"testrail_password"`
	Endpoint        string `mapstructure:"testrail_endpoint"`
	StagingRunID    string `mapstructure:"testrail_staging_run_id"`
	ProductionRunID string `mapstructure:"testrail_production_run_id"`
}

// HasBasicAuth reports whether the environment is behind HTTP basic auth.
func (c *Config) HasBasicAuth() bool {
	return c.HTTPBasicUsername != ""
}

// IsStaging reports whether the target is a staging deployment.
func (c *Config) IsStaging() bool {
	return strings.Contains(c.URL, "staging")
}

var keys = []string{
	"url", "username", "password", "api_token",
	"http_basic_username", "http_basic_password",
	"testrail_enabled", "testrail_username", "testrail_password", "testrail_endpoint",
	"testrail_staging_run_id", "testrail_production_run_id",
	"retries",
	"global_timeout", "expect_timeout", "scenario_timeout",
	"base_tag", "ledger_path", "artifacts_dir",
	"headless", "viewport_width", "viewport_height",
}

// EnvName returns the environment variable backing key.
func EnvName(key string) string {
	if key == "ci" {
		return "CI"
	}
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// Load resolves configuration with priority env > file > defaults.
// configFile may be empty, in which case ./upcheck.yaml is used if present.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("upcheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if err := v.BindEnv("ci", "CI"); err != nil {
		return nil, fmt.Errorf("bind ci: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if !v.IsSet("retries") && v.GetBool("ci") {
		v.Set("retries", 3)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ci", false)
	v.SetDefault("testrail_enabled", false)

	v.SetDefault("global_timeout", 10*time.Minute)
	v.SetDefault("expect_timeout", 10*time.Second)
	v.SetDefault("scenario_timeout", 3*time.Minute)

	v.SetDefault("base_tag", "playwright")
	v.SetDefault("artifacts_dir", "artifacts")

	v.SetDefault("headless", true)
	v.SetDefault("viewport_width", 1536)
	v.SetDefault("viewport_height", 824)
}

// validate returns the first problem found as a ConfigurationError.
func validate(cfg *Config) error {
	required := []struct {
		key   string
		value string
	}{
		{"url", cfg.URL},
		{"username", cfg.Username},
		{"password", cfg.Password},
		{"api_token", cfg.APIToken},
	}
	for _, r := range required {
		if r.value == "" {
			return missing(r.key)
		}
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigurationError{Key: "url", Message: fmt.Sprintf("%q is not an absolute http(s) URL", cfg.URL)}
	}

	if (cfg.HTTPBasicUsername == "") != (cfg.HTTPBasicPassword == "") {
		return &ConfigurationError{
			Key:     "http_basic_username",
			Message: "http basic username and password must be set together",
		}
	}

	if cfg.TestRail.Enabled {
		for _, r := range []struct {
			key   string
			value string
		}{
			{"testrail_username", cfg.TestRail.Username},
			{"testrail_password", cfg.TestRail.Password},
			{"testrail_endpoint", cfg.TestRail.Endpoint},
		} {
			if r.value == "" {
				return missing(r.key)
			}
		}
	}

	if cfg.Retries < 0 {
		return &ConfigurationError{Key: "retries", Message: "must not be negative"}
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"global_timeout", cfg.GlobalTimeout},
		{"expect_timeout", cfg.ExpectTimeout},
		{"scenario_timeout", cfg.ScenarioTimeout},
	} {
		if d.value <= 0 {
			return &ConfigurationError{Key: d.key, Message: "must be positive"}
		}
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		return &ConfigurationError{Key: "viewport_width", Message: "viewport must be positive"}
	}
	if cfg.BaseTag == "" {
		return missing("base_tag")
	}
	return nil
}

func missing(key string) error {
	return &ConfigurationError{Key: key, Message: "is required"}
}
