package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/distask/internal/matrix"
	"github.com/danmuck/distask/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDriverConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
workers = 8
log_level = "debug"
partition_policy = "block"

[[libraries]]
name = " linalg "

[[libraries]]
name = "custom"
path = "plugins/custom.so"
`)
	cfg, err := LoadDriverConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Workers != 8 || cfg.LogLevel != zerolog.DebugLevel || cfg.Policy != matrix.PolicyBlock {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.LogDir != "logs" || cfg.ReplyTimeout != 0 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if len(cfg.Libraries) != 2 || cfg.Libraries[0].Name != "linalg" {
		t.Fatalf("libraries: %+v", cfg.Libraries)
	}
	want := filepath.Join(filepath.Dir(path), "plugins", "custom.so")
	if cfg.Libraries[1].Path != want {
		t.Fatalf("plugin path: %q want %q", cfg.Libraries[1].Path, want)
	}
}

func TestLoadDriverConfigRejects(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"workers":   "workers = 0\n",
		"policy":    "partition_policy = \"diagonal\"\n",
		"level":     "log_level = \"loud\"\n",
		"timeout":   "reply_timeout = \"soon\"\n",
		"unknown":   "worker = 3\n",
		"duplicate": "[[libraries]]\nname = \"a\"\n[[libraries]]\nname = \"a\"\n",
		"unnamed":   "[[libraries]]\npath = \"x.so\"\n",
	}
	for name, body := range cases {
		if _, err := LoadDriverConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestTemplateRoundTrips(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "driver.toml")
	if err := WriteTemplate(path, "driver", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "driver", false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected exists error, got %v", err)
	}
	cfg, err := LoadDriverConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Workers != 4 || len(cfg.Libraries) != 1 || cfg.ReplyTimeout != 30*time.Second {
		t.Fatalf("template config: %+v", cfg)
	}
	if _, err := Template("mirage"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
