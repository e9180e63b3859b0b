// Package config loads the daemon configuration file.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aetherless/aetherless/pkg/dataplane"
)

// Supported dataplane backends.
const (
	BackendSoftware = "software"
	BackendXDP      = "xdp"
)

// DefaultPath is where the daemon looks for its configuration when no
// -config flag is given.
const DefaultPath = "/etc/aetherless/aetherless.yaml"

// PortBinding is a statically configured redirect entry, installed at
// startup before traffic is processed.
type PortBinding struct {
	Port uint16 `yaml:"port"`
	PID  uint32 `yaml:"pid"`
	Addr string `yaml:"addr,omitempty"`
}

// TraceConfig controls the match trace file used by the permissive
// policy.
type TraceConfig struct {
	File      string `yaml:"file,omitempty"`
	FileSize  int64  `yaml:"file_size,omitempty"`
	FileCount int    `yaml:"file_count,omitempty"`
}

// XDPConfig holds settings specific to the XDP backend.
type XDPConfig struct {
	Object string `yaml:"object,omitempty"`
}

// Config is the top-level daemon configuration.
type Config struct {
	Interface string        `yaml:"interface"`
	Policy    string        `yaml:"policy,omitempty"`
	Backend   string        `yaml:"backend,omitempty"`
	Workers   int           `yaml:"workers,omitempty"`
	APIAddr   string        `yaml:"api_addr,omitempty"`
	XDP       XDPConfig     `yaml:"xdp,omitempty"`
	Trace     TraceConfig   `yaml:"trace,omitempty"`
	Ports     []PortBinding `yaml:"ports,omitempty"`
}

// Default returns a configuration with all defaults applied and no
// interface selected.
func Default() *Config {
	return &Config{
		Policy:  dataplane.PolicyPermissive.String(),
		Backend: BackendSoftware,
		APIAddr: "127.0.0.1:8080",
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency. Defaults are
// filled in for omitted optional fields.
func (c *Config) Validate() error {
	if c.Policy == "" {
		c.Policy = dataplane.PolicyPermissive.String()
	}
	if _, err := dataplane.ParsePolicy(c.Policy); err != nil {
		return err
	}

	switch c.Backend {
	case "":
		c.Backend = BackendSoftware
	case BackendSoftware, BackendXDP:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendXDP && c.XDP.Object == "" {
		return fmt.Errorf("xdp backend requires xdp.object")
	}

	if c.APIAddr == "" {
		c.APIAddr = "127.0.0.1:8080"
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}

	if len(c.Ports) > dataplane.MaxPortEntries {
		return fmt.Errorf("too many port bindings: %d (max %d)",
			len(c.Ports), dataplane.MaxPortEntries)
	}
	seen := make(map[uint16]bool, len(c.Ports))
	for _, pb := range c.Ports {
		if pb.Port == 0 {
			return fmt.Errorf("port 0 cannot be bound")
		}
		if seen[pb.Port] {
			return fmt.Errorf("duplicate port binding %d", pb.Port)
		}
		seen[pb.Port] = true
		if pb.Addr != "" {
			addr, err := netip.ParseAddr(pb.Addr)
			if err != nil {
				return fmt.Errorf("port %d: invalid addr %q: %w", pb.Port, pb.Addr, err)
			}
			if !addr.Is4() {
				return fmt.Errorf("port %d: addr %q is not IPv4", pb.Port, pb.Addr)
			}
		}
	}
	return nil
}
