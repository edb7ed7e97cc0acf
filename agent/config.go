package agent

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all agent configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Describe DescribeConfig `yaml:"describe"`
	Cache    CacheConfig    `yaml:"cache"`
	Filter   FilterConfig   `yaml:"filter"`
	Panel    PanelConfig    `yaml:"panel"`
	Settings SettingsConfig `yaml:"settings"`
}

// BackendConfig points the agent at the model backend service. Timeout,
// retry, and backoff values pass through verbatim; the client defaults
// whatever is zero, and a negative max_retries disables retrying.
type BackendConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Model        string        `yaml:"model"`
}

// DescribeConfig controls the image description batch.
type DescribeConfig struct {
	Concurrency int           `yaml:"concurrency"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// CacheConfig bounds the derivation cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// FilterConfig tunes image relevance filtering. The pointer fields
// default to true when absent so that a config file only flips what it
// names.
type FilterConfig struct {
	MinSize    int   `yaml:"min_size"`
	Navigation bool  `yaml:"exclude_navigation"`
	Header     bool  `yaml:"exclude_header"`
	Footer     bool  `yaml:"exclude_footer"`
	Sidebar    bool  `yaml:"exclude_sidebar"`
	Logo       bool  `yaml:"exclude_logo"`
	Icons      *bool `yaml:"exclude_icons"`
	Decorative *bool `yaml:"exclude_decorative"`
}

// PanelConfig controls the local HTTP panel.
type PanelConfig struct {
	Addr string `yaml:"addr"`
}

// SettingsConfig locates the persistent settings store. An empty path
// leaves persistence off and the YAML filter toggles in charge.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

func (c *Config) defaults() {
	if c.Backend.URL == "" {
		c.Backend.URL = "http://127.0.0.1:5000"
	}
	if c.Describe.Concurrency <= 0 {
		c.Describe.Concurrency = 3
	}
	if c.Describe.CacheTTL <= 0 {
		c.Describe.CacheTTL = 2 * time.Hour
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 2048
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 30 * time.Minute
	}
	if c.Filter.MinSize <= 0 {
		c.Filter.MinSize = 50
	}
	if c.Panel.Addr == "" {
		c.Panel.Addr = "127.0.0.1:8090"
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
