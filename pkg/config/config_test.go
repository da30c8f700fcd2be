package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("KDSTEST", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got, _ := cfg.GetString("db.driver"); got != "mongo" {
		t.Errorf("db.driver = %q, want %q", got, "mongo")
	}
	if got, _ := cfg.GetDuration("tables.overdue.after"); got != 10*time.Minute {
		t.Errorf("tables.overdue.after = %v, want 10m", got)
	}
	if got, _ := cfg.GetInt("routing.rush.boost"); got != 10 {
		t.Errorf("routing.rush.boost = %d, want 10", got)
	}
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kds.yaml")
	content := []byte("db:\n  driver: postgres\nsync:\n  debounce: 40ms\nweb:\n  port: \":9000\"\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("cannot write config file: %v", err)
	}

	t.Setenv("KDSLAYER_SYNC_DEBOUNCE", "50ms")

	cfg, err := Load("KDSLAYER", []string{"--config", path, "--web.port", ":9100"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "fileOverridesDefault", key: "db.driver", want: "postgres"},
		{name: "envOverridesFile", key: "sync.debounce", want: "50ms"},
		{name: "flagOverridesFile", key: "web.port", want: ":9100"},
		{name: "untouchedDefault", key: "broker.kind", want: "nats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cfg.GetString(tt.key)
			if !ok {
				t.Fatalf("GetString(%q) not found", tt.key)
			}
			if got != tt.want {
				t.Errorf("GetString(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestFromMapAndDurationOr(t *testing.T) {
	cfg := FromMap(map[string]interface{}{
		"tables.retention": "90s",
		"sync.cache.ttl":   "0s",
	})

	if got := cfg.DurationOr("tables.retention", time.Minute); got != 90*time.Second {
		t.Errorf("DurationOr(tables.retention) = %v, want 90s", got)
	}
	if got := cfg.DurationOr("sync.cache.ttl", 3*time.Second); got != 3*time.Second {
		t.Errorf("DurationOr(sync.cache.ttl) = %v, want fallback 3s", got)
	}
	if _, ok := cfg.GetString("missing.key"); ok {
		t.Error("GetString(missing.key) reported found")
	}
}

func TestGetStringMap(t *testing.T) {
	cfg := FromMap(map[string]interface{}{
		"routing.aliases": map[string]interface{}{"steak": "grill", "fries": "fry"},
	})

	got, ok := cfg.GetStringMap("routing.aliases")
	if !ok {
		t.Fatal("GetStringMap(routing.aliases) not found")
	}
	if got["steak"] != "grill" || got["fries"] != "fry" || len(got) != 2 {
		t.Errorf("GetStringMap(routing.aliases) = %v", got)
	}
	if _, ok := cfg.GetStringMap("routing.missing"); ok {
		t.Error("GetStringMap(routing.missing) reported found")
	}
}
