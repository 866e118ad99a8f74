package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" || cfg.API.Port != 7420 {
		t.Errorf("API defaults = %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.Governance.FounderID != "founder" || cfg.Governance.FounderTokens != 10 {
		t.Errorf("Governance defaults = %+v", cfg.Governance)
	}
	if cfg.Governance.SweepInterval != "1m" {
		t.Errorf("SweepInterval = %q", cfg.Governance.SweepInterval)
	}
	if !cfg.Telemetry.Prometheus {
		t.Error("Prometheus should default to enabled")
	}
}

func TestConfigSaveLoad(t *testing.T) {
	t.Setenv("JANUS_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.API.Port = 9000
	cfg.Governance.FounderTokens = 3
	cfg.Governance.SweepInterval = "30s"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if loaded.API.Port != 9000 {
		t.Errorf("Port = %d, want 9000", loaded.API.Port)
	}
	if loaded.Governance.FounderTokens != 3 {
		t.Errorf("FounderTokens = %d, want 3", loaded.Governance.FounderTokens)
	}
	if loaded.Governance.SweepInterval != "30s" {
		t.Errorf("SweepInterval = %q, want 30s", loaded.Governance.SweepInterval)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("JANUS_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("Port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JANUS_HOME", dir)

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("api = {{{"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadConfig(); err == nil {
		t.Error("malformed config accepted")
	}
}

func TestSweepIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1m", time.Minute},
		{"30s", 30 * time.Second},
		{"2h", 2 * time.Hour},
		{"", time.Minute},
		{"soon", time.Minute},
		{"-5s", time.Minute},
	}
	for _, c := range cases {
		g := GovernanceConfig{SweepInterval: c.in}
		if got := g.SweepIntervalDuration(); got != c.want {
			t.Errorf("SweepIntervalDuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestJanusHome_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JANUS_HOME", dir)
	if got := JanusHome(); got != dir {
		t.Errorf("JanusHome() = %q, want %q", got, dir)
	}
}
