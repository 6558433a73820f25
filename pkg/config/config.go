// Package config holds the run configuration for uitest.
//
// Values are layered: DefaultConfig, then an optional YAML file, then the
// environment (BROWSER, HEADLESS, BASE_URL, TIMEOUT_MS, RESULTS_DIR,
// UITEST_IDENTITY). Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names read by ApplyEnv.
const (
	EnvBrowser    = "BROWSER"
	EnvHeadless   = "HEADLESS"
	EnvBaseURL    = "BASE_URL"
	EnvTimeout    = "TIMEOUT_MS"
	EnvResultsDir = "RESULTS_DIR"
	EnvIdentity   = "UITEST_IDENTITY"
	EnvConfigFile = "UITEST_CONFIG"
)

// Defaults
const (
	DefaultBrowser        = "chromium"
	DefaultTimeoutMs      = 30000.0
	DefaultViewportWidth  = 960
	DefaultViewportHeight = 1080
	DefaultHeadedSlowMoMs = 50.0
	DefaultResultsDir     = "TestResults"
	DefaultIdentity       = "default"
	DefaultLockTimeout    = 30 * time.Second
)

// Config represents the configuration for a uitest run
type Config struct {
	// Target application base URL; relative navigation resolves against it
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Browser family: chromium, firefox or webkit
	Browser string `yaml:"browser" json:"browser"`

	// Headless runs the browser without a window
	Headless bool `yaml:"headless" json:"headless"`

	// SlowMoMs is the delay between driver actions when running headed.
	// Headless runs always use zero.
	SlowMoMs float64 `yaml:"slow_mo_ms" json:"slow_mo_ms"`

	// TimeoutMs is the default timeout for waits and actions
	TimeoutMs float64 `yaml:"timeout_ms" json:"timeout_ms"`

	Viewport Viewport `yaml:"viewport" json:"viewport"`

	// ResultsDir receives screenshots, DOM snapshots and the run report
	ResultsDir string `yaml:"results_dir" json:"results_dir"`

	// InstallDriver downloads the playwright driver and browsers before the run
	InstallDriver bool `yaml:"install_driver" json:"install_driver"`

	Vault   VaultConfig   `yaml:"vault" json:"vault"`
	Runner  RunnerConfig  `yaml:"runner" json:"runner"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// Viewport is the fixed context viewport size
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// VaultConfig configures the credential state cache
type VaultConfig struct {
	// Disabled turns off credential caching entirely
	Disabled bool `yaml:"disabled" json:"disabled"`

	// Dir holds the encrypted blob, staging files and the identity lock.
	// Empty means <user cache dir>/uitest/auth.
	Dir string `yaml:"dir" json:"dir"`

	// Identity names the cached login; one blob per identity
	Identity string `yaml:"identity" json:"identity"`

	// LockTimeout bounds how long a session waits for the identity lock
	LockTimeout time.Duration `yaml:"lock_timeout" json:"lock_timeout"`
}

// RunnerConfig configures scenario selection and scheduling
type RunnerConfig struct {
	// Parallel is the number of scenarios run at once
	Parallel int `yaml:"parallel" json:"parallel"`

	// Filter is a glob matched against scenario titles
	Filter string `yaml:"filter" json:"filter"`

	// Tags selects scenarios carrying at least one matching tag glob
	Tags []string `yaml:"tags" json:"tags"`

	// Trace exports lifecycle spans to stdout
	Trace bool `yaml:"trace" json:"trace"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls console output: quiet, normal, verbose
	Verbosity string `yaml:"verbosity" json:"verbosity"`

	// Dir overrides the log file directory
	Dir string `yaml:"dir" json:"dir"`
}

// DefaultConfig returns a configuration suitable for a local headed run
func DefaultConfig() *Config {
	return &Config{
		Browser:   DefaultBrowser,
		Headless:  false,
		SlowMoMs:  DefaultHeadedSlowMoMs,
		TimeoutMs: DefaultTimeoutMs,
		Viewport: Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		},
		ResultsDir: DefaultResultsDir,
		Vault: VaultConfig{
			Identity:    DefaultIdentity,
			LockTimeout: DefaultLockTimeout,
		},
		Runner: RunnerConfig{
			Parallel: 1,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment values onto c. lookup is usually
// os.LookupEnv; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBrowser); ok && v != "" {
		c.Browser = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvHeadless); ok && v != "" {
		headless, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvHeadless, v, err)
		}
		c.Headless = headless
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		ms, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", EnvTimeout, v, err)
		}
		c.TimeoutMs = ms
	}
	if v, ok := lookup(EnvResultsDir); ok && v != "" {
		c.ResultsDir = v
	}
	if v, ok := lookup(EnvIdentity); ok && v != "" {
		c.Vault.Identity = strings.TrimSpace(v)
	}
	return nil
}

// Validate validates the configuration and fills derived defaults
func (c *Config) Validate() error {
	switch c.Browser {
	case "chromium", "firefox", "webkit":
	case "":
		c.Browser = DefaultBrowser
	default:
		return fmt.Errorf("invalid browser: %s (must be 'chromium', 'firefox', or 'webkit')", c.Browser)
	}

	if c.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms cannot be negative")
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}

	if c.SlowMoMs < 0 {
		return fmt.Errorf("slow_mo_ms cannot be negative")
	}

	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.Viewport.Width, c.Viewport.Height)
	}

	if c.ResultsDir == "" {
		c.ResultsDir = DefaultResultsDir
	}

	if c.Vault.Identity == "" {
		c.Vault.Identity = DefaultIdentity
	}
	if strings.ContainsAny(c.Vault.Identity, `/\:`) {
		return fmt.Errorf("vault identity %q must not contain path separators", c.Vault.Identity)
	}
	if c.Vault.LockTimeout < 0 {
		return fmt.Errorf("vault lock_timeout cannot be negative")
	}
	if c.Vault.LockTimeout == 0 {
		c.Vault.LockTimeout = DefaultLockTimeout
	}

	if c.Runner.Parallel < 0 {
		return fmt.Errorf("runner parallel cannot be negative")
	}
	if c.Runner.Parallel == 0 {
		c.Runner.Parallel = 1
	}

	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}
	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', or 'verbose')", c.Logging.Verbosity)
	}

	return nil
}

// EffectiveSlowMo returns the driver action delay: zero when headless.
func (c *Config) EffectiveSlowMo() float64 {
	if c.Headless {
		return 0
	}
	return c.SlowMoMs
}

// VaultDir returns the configured vault directory or the per-user default.
func (c *Config) VaultDir() (string, error) {
	if c.Vault.Dir != "" {
		return c.Vault.Dir, nil
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(cacheDir, "uitest", "auth"), nil
}
