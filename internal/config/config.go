// Package config handles configuration loading, defaults and validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors. They abort a run before anything is fetched.
var (
	ErrNoYears           = errors.New("at least one assessment year must be configured")
	ErrNegativePrecision = errors.New("precision must be non-negative")
	ErrNegativeTolerance = errors.New("simplification tolerance must be non-negative")
	ErrInvalidTimeout    = errors.New("request timeout must be positive")
)

// Config represents the root configuration file structure.
type Config struct {
	DataDir       string `yaml:"data_dir"`
	CountriesFile string `yaml:"countries_file"`
	APIURL        string `yaml:"api_url"`
	// StateDB is the SQLite run-state file; empty disables it.
	StateDB string `yaml:"state_db,omitempty"`
	// MetricsFile receives Prometheus text metrics after a run; empty disables it.
	MetricsFile string `yaml:"metrics_file,omitempty"`
	CDNBase     string `yaml:"cdn_base"`
	OCHARegion  string `yaml:"ocha_region"`

	Years     []int    `yaml:"years,omitempty"`
	Countries []string `yaml:"countries,omitempty"`

	Publish Publish `yaml:"publish,omitempty"`
	Global  Global  `yaml:"global"`

	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RateLimitDelay    time.Duration `yaml:"rate_limit_delay"`
	SimplifyTolerance float64       `yaml:"simplify_tolerance"`
	Precision         int           `yaml:"precision"`

	BuildIndex     bool `yaml:"build_index"`
	WriteYearFiles bool `yaml:"write_year_files,omitempty"`
}

// Global controls the worldwide dataset.
type Global struct {
	SimplifyTolerance float64 `yaml:"simplify_tolerance"`
	Precision         int     `yaml:"precision"`
}

// Publish configures upload of artefacts to S3 compatible storage.
type Publish struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	// Concurrency limits parallel uploads.
	Concurrency int  `yaml:"concurrency,omitempty"`
	UseSSL      bool `yaml:"use_ssl,omitempty"`
}

// Enabled reports whether publishing is configured.
func (p Publish) Enabled() bool {
	return p.Endpoint != "" && p.Bucket != ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:           "data",
		CountriesFile:     "countries.csv",
		APIURL:            "https://api.ipcinfo.org/areas",
		CDNBase:           "https://cdn.jsdelivr.net/gh/im4sea/ipc-areas",
		OCHARegion:        "ROSEA",
		Precision:         2,
		SimplifyTolerance: 0.001,
		Global: Global{
			Precision:         2,
			SimplifyTolerance: 0.002,
		},
		RequestTimeout: 30 * time.Second,
		RetryDelay:     500 * time.Millisecond,
		RateLimitDelay: time.Second,
		BuildIndex:     true,
		Publish: Publish{
			Prefix:      "ipc-areas",
			Concurrency: 4,
			UseSSL:      true,
		},
	}
}

// Load reads the YAML configuration file at path on top of Default.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Normalize de-duplicates years and country codes keeping their order.
// Without years the current UTC year of now is used; non-positive years are dropped.
// Country codes are trimmed and upper-cased.
func (c *Config) Normalize(now time.Time) {
	if len(c.Years) == 0 {
		c.Years = []int{now.UTC().Year()}
	} else {
		years := make([]int, 0, len(c.Years))
		for _, y := range c.Years {
			if y > 0 && !slices.Contains(years, y) {
				years = append(years, y)
			}
		}
		c.Years = years
	}

	codes := make([]string, 0, len(c.Countries))
	for _, code := range c.Countries {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" && !slices.Contains(codes, code) {
			codes = append(codes, code)
		}
	}
	c.Countries = codes
}

// Validate checks the run parameters.
func (c *Config) Validate() error {
	switch {
	case len(c.Years) == 0:
		return ErrNoYears
	case c.Precision < 0 || c.Global.Precision < 0:
		return ErrNegativePrecision
	case c.SimplifyTolerance < 0 || c.Global.SimplifyTolerance < 0:
		return ErrNegativeTolerance
	case c.RequestTimeout <= 0:
		return ErrInvalidTimeout
	}
	return nil
}
