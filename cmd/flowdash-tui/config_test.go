package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/flowdash/internal/model"
)

func TestLoadCLIConfigDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLOWDASH_SOCKET_PATH", "")
	t.Setenv("FLOWDASH_QUERY_TIMEOUT", "")

	cfg, err := loadCLIConfig("")
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if !cfg.RefreshOnStart {
		t.Error("refresh-on-start should default to true")
	}
	if cfg.QueryTimeout != model.DefaultQueryTimeout {
		t.Errorf("QueryTimeout = %s, want %s", cfg.QueryTimeout, model.DefaultQueryTimeout)
	}
	if cfg.SocketPath == "" {
		t.Error("socket path should have a default")
	}
}

func TestLoadCLIConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "socket-path: /tmp/flowdash-test.sock\nrefresh-on-start: false\nquery-timeout: 2s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadCLIConfig(path)
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if cfg.SocketPath != "/tmp/flowdash-test.sock" {
		t.Errorf("SocketPath = %q", cfg.SocketPath)
	}
	if cfg.RefreshOnStart {
		t.Error("refresh-on-start should be false")
	}
	if cfg.QueryTimeout != 2*time.Second {
		t.Errorf("QueryTimeout = %s, want 2s", cfg.QueryTimeout)
	}
}
