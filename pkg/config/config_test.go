package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/techblue/jboss-controller-operation-executor/pkg/session"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvHost, EnvPort, EnvUser, EnvPassword} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.Journal.Enabled || cfg.Policy.Enabled {
		t.Error("expected journal and policy disabled by default")
	}
	if cfg.Telemetry == nil || cfg.Telemetry.ServiceName != "dsctl" {
		t.Errorf("expected default telemetry, got %+v", cfg.Telemetry)
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "dsctl.yaml", `
default-server: dev
profiles: [full, full-ha]
servers:
  dev:
    host: 10.0.0.12
    username: admin
    password: secret
    connect-timeout: 2s
  prod:
    host: mgmt.example.com
    port: 19990
    options:
      scheme: https
journal:
  enabled: true
  retention: 24h
policy:
  enabled: true
  paths: [/etc/dsctl/policies]
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	dev := cfg.Servers["dev"]
	if dev.Port != session.DefaultPort {
		t.Errorf("expected default port %d, got %d", session.DefaultPort, dev.Port)
	}
	if dev.ConnectTimeout != 2*time.Second {
		t.Errorf("expected 2s timeout, got %v", dev.ConnectTimeout)
	}
	if cfg.Servers["prod"].ConnectTimeout != session.DefaultConnectTimeout {
		t.Errorf("expected default timeout, got %v", cfg.Servers["prod"].ConnectTimeout)
	}
	if cfg.Journal.Path != DefaultJournalPath {
		t.Errorf("expected journal path %s, got %s", DefaultJournalPath, cfg.Journal.Path)
	}
	if cfg.Journal.Retention != 24*time.Hour {
		t.Errorf("expected 24h retention, got %v", cfg.Journal.Retention)
	}
	if len(cfg.Profiles) != 2 {
		t.Errorf("expected 2 profiles, got %v", cfg.Profiles)
	}
	if names := cfg.ServerNames(); len(names) != 2 || names[0] != "dev" {
		t.Errorf("expected sorted server names, got %v", names)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "malformed yaml",
			content: "servers: [",
		},
		{
			name:    "unknown default server",
			content: "default-server: missing\n",
		},
		{
			name:    "server without host",
			content: "servers:\n  dev:\n    port: 9990\n",
		},
		{
			name:    "bad port",
			content: "servers:\n  dev:\n    host: localhost\n    port: 70000\n",
		},
		{
			name:    "bad log level",
			content: "telemetry:\n  service-name: dsctl\n  logging:\n    level: loud\n    format: console\n",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, fmt.Sprintf("case%d.yaml", i), tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Servers) != 0 {
		t.Errorf("expected no servers, got %d", len(cfg.Servers))
	}
}

func TestResolveServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Servers["dev"] = &session.ConnectionConfig{
		Host:           "10.0.0.12",
		Port:           9990,
		ConnectTimeout: time.Second,
		Username:       "admin",
		Options:        map[string]string{"path": "/management"},
	}
	cfg.Servers["prod"] = &session.ConnectionConfig{
		Host:           "mgmt.example.com",
		Port:           9990,
		ConnectTimeout: time.Second,
	}

	t.Run("named server", func(t *testing.T) {
		clearEnv(t)
		srv, err := cfg.ResolveServer("prod")
		if err != nil {
			t.Fatalf("ResolveServer failed: %v", err)
		}
		if srv.Host != "mgmt.example.com" {
			t.Errorf("expected prod host, got %s", srv.Host)
		}
	})

	t.Run("ambiguous without default", func(t *testing.T) {
		clearEnv(t)
		if _, err := cfg.ResolveServer(""); err == nil {
			t.Error("expected error when no server is selected")
		}
	})

	t.Run("unknown server", func(t *testing.T) {
		clearEnv(t)
		if _, err := cfg.ResolveServer("qa"); err == nil {
			t.Error("expected error for unknown server")
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvUser, "operator")
		t.Setenv(EnvPassword, "pw")
		t.Setenv(EnvPort, "19990")

		srv, err := cfg.ResolveServer("dev")
		if err != nil {
			t.Fatalf("ResolveServer failed: %v", err)
		}
		if srv.Username != "operator" || srv.Password != "pw" || srv.Port != 19990 {
			t.Errorf("expected overrides applied, got %+v", srv)
		}
		if cfg.Servers["dev"].Username != "admin" || cfg.Servers["dev"].Port != 9990 {
			t.Error("overrides must not modify the configured server")
		}

		srv.Options["path"] = "/changed"
		if cfg.Servers["dev"].Options["path"] != "/management" {
			t.Error("resolved server must not share options with the configured one")
		}
	})

	t.Run("invalid port override", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvPort, "nine")
		if _, err := cfg.ResolveServer("dev"); err == nil {
			t.Error("expected error for invalid port")
		}
	})
}

func TestResolveServerFromEnvironment(t *testing.T) {
	cfg := DefaultConfig()

	clearEnv(t)
	if _, err := cfg.ResolveServer(""); err == nil {
		t.Fatal("expected error without servers or DSCTL_HOST")
	}

	t.Setenv(EnvHost, "127.0.0.1")
	srv, err := cfg.ResolveServer("")
	if err != nil {
		t.Fatalf("ResolveServer failed: %v", err)
	}
	if srv.Host != "127.0.0.1" || srv.Port != session.DefaultPort {
		t.Errorf("expected 127.0.0.1:%d, got %s", session.DefaultPort, srv.Address())
	}
}

func TestResolveSingleServer(t *testing.T) {
	clearEnv(t)
	cfg := DefaultConfig()
	cfg.Servers["only"] = session.DefaultConnectionConfig("localhost")

	srv, err := cfg.ResolveServer("")
	if err != nil {
		t.Fatalf("ResolveServer failed: %v", err)
	}
	if srv.Host != "localhost" {
		t.Errorf("expected localhost, got %s", srv.Host)
	}
}
