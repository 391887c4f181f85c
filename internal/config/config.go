// Package config handles configuration loading and validation for crev.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/sprite-ai/crev/internal/model"
)

// EnvServiceURL overrides service.base_url when set.
const EnvServiceURL = "CREV_SERVICE_URL"

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Assignment AssignmentConfig `yaml:"assignment"`
	TestCases  []TestCase       `yaml:"testcases"`
	Review     ReviewConfig     `yaml:"review"`
	Server     ServerConfig     `yaml:"server"`
}

// ServiceConfig describes the remote review/run service.
type ServiceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst       int           `yaml:"burst"`
	CPUTime     int           `yaml:"cputime"`     // seconds per test case
	MemoryLimit int           `yaml:"memorylimit"` // bytes per test case
}

// AssignmentConfig is the exercise sent along with every submission.
type AssignmentConfig struct {
	Content  string `yaml:"content"`
	Language string `yaml:"language"`
}

// TestCase is one configured test case.
type TestCase struct {
	Name   string `yaml:"name"`
	Input  string `yaml:"input"`
	Expect string `yaml:"expect"`
}

// ReviewConfig controls when stale decorations are dropped.
type ReviewConfig struct {
	// ClearOnStart drops the previous decorations when a new review starts.
	ClearOnStart *bool `yaml:"clear_on_start"`
	// ClearOnEdit drops decorations whenever the buffer changes.
	ClearOnEdit bool `yaml:"clear_on_edit"`
}

// ServerConfig holds the API server listen address.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Port int    `yaml:"port"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	clearOnStart := true
	return Config{
		Service: ServiceConfig{
			BaseURL:     "http://localhost:8080",
			Timeout:     60 * time.Second,
			RateLimit:   2,
			Burst:       4,
			CPUTime:     10,
			MemoryLimit: 2000000,
		},
		Assignment: AssignmentConfig{
			Content:  "Collapse runs of spaces into one and trim both ends.",
			Language: "cpp",
		},
		TestCases: []TestCase{
			{Name: "Testcase 01", Input: "   Hello   world   ", Expect: "Hello world"},
			{Name: "Testcase 02", Input: "  OpenAI    GPT    5  ", Expect: "OpenAI GPT 5"},
			{Name: "Testcase 03", Input: "NoExtraSpace", Expect: "NoExtraSpace"},
		},
		Review: ReviewConfig{ClearOnStart: &clearOnStart},
		Server: ServerConfig{Addr: "127.0.0.1", Port: 6143},
	}
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "crev", "config.yaml")
}

// Load reads configuration from configPath. A missing or empty path yields
// the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if v := os.Getenv(EnvServiceURL); v != "" {
		cfg.Service.BaseURL = v
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Service.Timeout == 0 {
		c.Service.Timeout = defaults.Service.Timeout
	}
	if c.Service.Burst == 0 {
		c.Service.Burst = defaults.Service.Burst
	}
	if c.Service.CPUTime == 0 {
		c.Service.CPUTime = defaults.Service.CPUTime
	}
	if c.Service.MemoryLimit == 0 {
		c.Service.MemoryLimit = defaults.Service.MemoryLimit
	}
	if c.Assignment.Language == "" {
		c.Assignment.Language = defaults.Assignment.Language
	}
	if c.Review.ClearOnStart == nil {
		c.Review.ClearOnStart = defaults.Review.ClearOnStart
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("service.base_url", c.Service.BaseURL, validBaseURL),
		criterio.Run("service.timeout", c.Service.Timeout, positiveDuration),
		criterio.Run("service.rate_limit", c.Service.RateLimit, nonNegative),
		criterio.Run("server.port", c.Server.Port, validPort),
		c.validateTestCases(),
	)
}

func (c *Config) validateTestCases() error {
	var errs criterio.FieldErrorsBuilder
	seen := make(map[string]bool, len(c.TestCases))
	for i, tc := range c.TestCases {
		field := fmt.Sprintf("testcases[%d].name", i)
		if tc.Name == "" {
			errs = errs.Append(field, fmt.Errorf("name is required"))
			continue
		}
		if seen[tc.Name] {
			errs = errs.Append(field, fmt.Errorf("duplicate name %q", tc.Name))
		}
		seen[tc.Name] = true
	}
	return errs.ToError()
}

// ClearOnStart reports whether decorations are dropped when a review starts.
func (c *Config) ClearOnStart() bool {
	return c.Review.ClearOnStart == nil || *c.Review.ClearOnStart
}

// ListenAddr returns host:port for the API server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Addr, c.Server.Port)
}

// ModelAssignment converts the assignment section.
func (c *Config) ModelAssignment() model.Assignment {
	return model.Assignment{Content: c.Assignment.Content, Language: c.Assignment.Language}
}

// ModelTestCases converts the configured test cases.
func (c *Config) ModelTestCases() []model.TestCase {
	out := make([]model.TestCase, len(c.TestCases))
	for i, tc := range c.TestCases {
		out[i] = model.TestCase{Name: tc.Name, Input: tc.Input, Expect: tc.Expect}
	}
	return out
}

func validBaseURL(s string) error {
	if s == "" {
		return fmt.Errorf("cannot be empty")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func positiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func nonNegative(f float64) error {
	if f < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validPort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("must be between 1 and 65535")
	}
	return nil
}
