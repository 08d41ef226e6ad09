package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8484 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server defaults = %s", cfg.Server.Address())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Search.Concurrency != 5 || cfg.Search.Timeout != 30*time.Second {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
	if cfg.Search.CacheTTL != 5*time.Minute || cfg.Search.CacheMaxSize != 500 {
		t.Errorf("cache defaults = %+v", cfg.Search)
	}
	if cfg.LiveTV.URLCacheHLSTTL != time.Hour || cfg.LiveTV.URLCacheDirectTTL != 30*time.Minute {
		t.Errorf("livetv defaults = %+v", cfg.LiveTV)
	}
	if cfg.LiveTV.AllowPrivateHosts {
		t.Error("AllowPrivateHosts defaults to true")
	}
	if cfg.Usenet.StrictCRC {
		t.Error("StrictCRC defaults to true")
	}
	if len(cfg.Usenet.Providers) != 0 {
		t.Errorf("providers default = %v, want none", cfg.Usenet.Providers)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
search:
  concurrency: 12
  timeout: 45s
usenet:
  strict_crc: true
  providers:
    - name: primary
      host: news.example.com
      port: 563
      tls: true
      max_connections: 8
      priority: 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want the default", cfg.Server.Host)
	}
	if cfg.Search.Concurrency != 12 || cfg.Search.Timeout != 45*time.Second {
		t.Errorf("search = %+v", cfg.Search)
	}
	if !cfg.Usenet.StrictCRC {
		t.Error("strict_crc not loaded")
	}
	if len(cfg.Usenet.Providers) != 1 {
		t.Fatalf("providers = %d, want 1", len(cfg.Usenet.Providers))
	}
	p := cfg.Usenet.Providers[0]
	if p.Name != "primary" || p.Host != "news.example.com" || p.Port != 563 || !p.TLS ||
		p.MaxConnections != 8 || p.Priority != 1 {
		t.Errorf("provider = %+v", p)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CINEPHAGE_SERVER_PORT", "7070")
	t.Setenv("CINEPHAGE_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want the env override 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want the env override", cfg.Logging.Level)
	}
}

func TestServerAddress(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if c.Address() != "127.0.0.1:8080" {
		t.Errorf("Address = %q", c.Address())
	}
}
