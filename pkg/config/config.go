package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
	"github.com/techblue/jboss-controller-operation-executor/pkg/telemetry"
)

// Environment variables that override the selected server.
const (
	EnvHost     = "DSCTL_HOST"
	EnvPort     = "DSCTL_PORT"
	EnvUser     = "DSCTL_USER"
	EnvPassword = "DSCTL_PASSWORD"
)

// DefaultJournalPath is used when the journal is enabled without a path.
const DefaultJournalPath = "dsctl.db"

var validate = validator.New()

// DefaultConfig returns a configuration with no servers, the default
// telemetry settings and the journal and policies disabled.
func DefaultConfig() *Config {
	return &Config{
		Servers:   make(map[string]*session.ConnectionConfig),
		Telemetry: telemetry.DefaultConfig(),
		Journal: JournalConfig{
			Path: DefaultJournalPath,
		},
		Policy: PolicyConfig{
			Environment: "development",
		},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig. An
// empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Servers == nil {
		c.Servers = make(map[string]*session.ConnectionConfig)
	}
	for _, srv := range c.Servers {
		if srv == nil {
			continue
		}
		if srv.Port == 0 {
			srv.Port = session.DefaultPort
		}
		if srv.ConnectTimeout == 0 {
			srv.ConnectTimeout = session.DefaultConnectTimeout
		}
		if srv.Tunnel != nil && srv.Tunnel.Port == 0 {
			srv.Tunnel.Port = 22
		}
	}
	if c.Telemetry == nil {
		c.Telemetry = telemetry.DefaultConfig()
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		c.Journal.Path = DefaultJournalPath
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for name, srv := range c.Servers {
		if srv == nil {
			return fmt.Errorf("server %s is empty", name)
		}
		if err := srv.Validate(); err != nil {
			return fmt.Errorf("server %s: %w", name, err)
		}
	}
	if c.DefaultServer != "" {
		if _, ok := c.Servers[c.DefaultServer]; !ok {
			return fmt.Errorf("default server %s is not defined", c.DefaultServer)
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	return nil
}

// ServerNames returns the configured server names, sorted.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveServer returns a copy of the named server with the DSCTL_*
// environment overrides applied. An empty name selects the default server,
// or the only server when exactly one is configured. Without any configured
// server DSCTL_HOST must be set.
func (c *Config) ResolveServer(name string) (*session.ConnectionConfig, error) {
	if name == "" {
		name = c.DefaultServer
	}
	if name == "" && len(c.Servers) == 1 {
		name = c.ServerNames()[0]
	}

	var srv *session.ConnectionConfig
	switch {
	case name != "":
		configured, ok := c.Servers[name]
		if !ok {
			return nil, fmt.Errorf("server %s is not defined", name)
		}
		srv = cloneConnection(configured)
	case os.Getenv(EnvHost) != "":
		srv = session.DefaultConnectionConfig("")
	default:
		return nil, fmt.Errorf("no server selected: configure one or set %s", EnvHost)
	}

	if err := applyEnvOverrides(srv); err != nil {
		return nil, err
	}
	if err := srv.Validate(); err != nil {
		return nil, err
	}
	return srv, nil
}

func applyEnvOverrides(srv *session.ConnectionConfig) error {
	if host := strings.TrimSpace(os.Getenv(EnvHost)); host != "" {
		srv.Host = host
	}
	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		srv.Port = p
	}
	if user, ok := os.LookupEnv(EnvUser); ok {
		srv.Username = user
	}
	if password, ok := os.LookupEnv(EnvPassword); ok {
		srv.Password = password
	}
	return nil
}

func cloneConnection(c *session.ConnectionConfig) *session.ConnectionConfig {
	clone := *c
	clone.Options = make(map[string]string, len(c.Options))
	for k, v := range c.Options {
		clone.Options[k] = v
	}
	if c.TLS != nil {
		tlsCfg := *c.TLS
		clone.TLS = &tlsCfg
	}
	if c.Tunnel != nil {
		tunnel := *c.Tunnel
		clone.Tunnel = &tunnel
	}
	return &clone
}
