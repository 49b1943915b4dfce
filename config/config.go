// Package config loads the updater configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const DefaultPath = "/etc/cloudflare-dns-updater/config.yaml"

// IPv6 address sources.
const (
	SourceNetlink = "netlink"
	SourceSTUN    = "stun"
)

// Environment variables consulted when a setup has no api_token.
var TokenEnv = []string{"CF_TOKEN", "cf_token"}

var (
	ErrNoSetups     = errors.New("no setups configured")
	ErrNoToken      = errors.New("no api token")
	ErrNoRecord     = errors.New("neither ipv4_record_name nor ipv6_record_name set")
	ErrMissingField = errors.New("missing required field")
	ErrBadSource    = errors.New("unknown ipv6_source")
	ErrBadInterval  = errors.New("check_interval must be positive")
)

type Log struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Setup is one zone/record pair to keep up to date.
type Setup struct {
	Domain         string `yaml:"domain"`
	ZoneID         string `yaml:"zone_id"`
	APIToken       string `yaml:"api_token"`
	IPv4RecordName string `yaml:"ipv4_record_name"`
	IPv6RecordName string `yaml:"ipv6_record_name"`
	TTL            int    `yaml:"ttl"`
	Proxied        bool   `yaml:"proxied"`
}

// RecordName returns the fully qualified, lower case name for record.
func (s Setup) RecordName(record string) string {
	return strings.ToLower(record) + "." + s.Domain
}

type Config struct {
	CheckInterval int     `yaml:"check_interval"`
	IPv6Source    string  `yaml:"ipv6_source"`
	STUNServer    string  `yaml:"stun_server"`
	Netns         string  `yaml:"netns"`
	Watch         bool    `yaml:"watch"`
	MetricsListen string  `yaml:"metrics_listen"`
	Log           Log     `yaml:"log"`
	Setups        []Setup `yaml:"setups"`
}

var DefaultConfig = Config{
	CheckInterval: 10,
	IPv6Source:    SourceNetlink,
	STUNServer:    "stun.cloudflare.com:3478",
	Watch:         true,
	Log: Log{
		Level:      "info",
		Output:     "stderr",
		MaxSizeMB:  10,
		MaxBackups: 3,
	},
}

func (c *Config) UnmarshalYAML(b []byte) error {
	// Needed to break recursive calls into UnmarshalYAML
	type config Config

	def := config(DefaultConfig)
	if err := yaml.Unmarshal(b, &def); err != nil {
		return err
	}
	*c = Config(def)
	return nil
}

// Interval is CheckInterval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

// NeedsIPv4 reports whether any setup publishes an A record.
func (c *Config) NeedsIPv4() bool {
	for _, s := range c.Setups {
		if s.IPv4RecordName != "" {
			return true
		}
	}
	return false
}

// NeedsIPv6 reports whether any setup publishes an AAAA record.
func (c *Config) NeedsIPv6() bool {
	for _, s := range c.Setups {
		if s.IPv6RecordName != "" {
			return true
		}
	}
	return false
}

// Load reads and validates the file at path. Setups without an api_token
// take it from the environment.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	token := envToken()
	for i := range c.Setups {
		if c.Setups[i].APIToken == "" {
			c.Setups[i].APIToken = token
		}
		if c.Setups[i].TTL == 0 {
			c.Setups[i].TTL = 1
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.CheckInterval <= 0 {
		return ErrBadInterval
	}
	switch c.IPv6Source {
	case SourceNetlink, SourceSTUN:
	default:
		return fmt.Errorf("%w: %q", ErrBadSource, c.IPv6Source)
	}
	if len(c.Setups) == 0 {
		return ErrNoSetups
	}
	for i, s := range c.Setups {
		switch {
		case s.Domain == "":
			return fmt.Errorf("setups[%d]: %w: domain", i, ErrMissingField)
		case s.ZoneID == "":
			return fmt.Errorf("setups[%d]: %w: zone_id", i, ErrMissingField)
		case s.APIToken == "":
			return fmt.Errorf("setups[%d]: %w", i, ErrNoToken)
		case s.IPv4RecordName == "" && s.IPv6RecordName == "":
			return fmt.Errorf("setups[%d]: %w", i, ErrNoRecord)
		}
	}
	return nil
}

func envToken() string {
	for _, k := range TokenEnv {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
