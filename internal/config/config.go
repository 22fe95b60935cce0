// Package config loads the server's YAML configuration document: listen
// addresses, worker pool sizes, resolve strategy, the collaborator file
// paths (zones, filter rules), and an on/off toggle for the built-in root
// hints.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Strategy selects how a query is answered once the authority database and
// cache have been consulted and come up empty.
type Strategy string

const (
	// StrategyRecursive walks the hierarchy from a root/cached referral.
	StrategyRecursive Strategy = "recursive"
	// StrategyForward sends every miss to a single configured upstream.
	StrategyForward Strategy = "forward"
)

const (
	DefaultUDPWorkers = 32
	DefaultTCPWorkers = 32
)

// Config is the top-level configuration document.
type Config struct {
	UDPAddr string `yaml:"udp_addr"`
	TCPAddr string `yaml:"tcp_addr"`

	UDPWorkers int `yaml:"udp_workers"`
	TCPWorkers int `yaml:"tcp_workers"`

	Strategy       Strategy `yaml:"strategy"`
	ForwardHost    string   `yaml:"forward_host"`
	ForwardPort    uint16   `yaml:"forward_port"`
	AllowRecursive bool     `yaml:"allow_recursive"`

	Authoritative bool     `yaml:"authoritative"`
	ZoneFiles     []string `yaml:"zone_files"`
	UseRootHints  bool     `yaml:"use_root_hints"`

	FilterFile string `yaml:"filter_file"`

	RRLEnabled bool `yaml:"rrl_enabled"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns a Config matching the server's built-in defaults: a
// recursive resolver listening on 5353/udp and 5353/tcp, 32 workers per
// transport, root hints loaded, filtering and RRL off.
func Default() Config {
	return Config{
		UDPAddr:        ":5353",
		TCPAddr:        ":5353",
		UDPWorkers:     DefaultUDPWorkers,
		TCPWorkers:     DefaultTCPWorkers,
		Strategy:       StrategyRecursive,
		AllowRecursive: true,
		UseRootHints:   true,
		RRLEnabled:     false,
		MetricsAddr:    ":9153",
	}
}

// Load reads and parses a YAML configuration document at path, applying
// Default() for any field the document leaves unset.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports whether cfg describes a startable server.
func (c Config) Validate() error {
	if c.UDPWorkers <= 0 {
		return fmt.Errorf("udp_workers must be positive, got %d", c.UDPWorkers)
	}
	if c.TCPWorkers <= 0 {
		return fmt.Errorf("tcp_workers must be positive, got %d", c.TCPWorkers)
	}
	switch c.Strategy {
	case StrategyRecursive, StrategyForward:
	default:
		return fmt.Errorf("strategy must be %q or %q, got %q", StrategyRecursive, StrategyForward, c.Strategy)
	}
	if c.Strategy == StrategyForward && c.ForwardHost == "" {
		return fmt.Errorf("forward strategy requires forward_host")
	}
	return nil
}
