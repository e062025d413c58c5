package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/flowdash/internal/model"
)

func TestLoadConfig_Defaults(t *testing.T) {
	resetFlowdashEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.DataDir != model.DefaultDataDir {
		t.Fatalf("DataDir = %q, want %q", cfg.DataDir, model.DefaultDataDir)
	}
	if cfg.MaxLoadRows != model.DefaultMaxLoadRows {
		t.Fatalf("MaxLoadRows = %d, want %d", cfg.MaxLoadRows, model.DefaultMaxLoadRows)
	}
	if cfg.SampleSeed != model.DefaultSampleSeed {
		t.Fatalf("SampleSeed = %d, want %d", cfg.SampleSeed, model.DefaultSampleSeed)
	}
	if cfg.APIAddr != "127.0.0.1:8050" {
		t.Fatalf("APIAddr = %q, want %q", cfg.APIAddr, "127.0.0.1:8050")
	}
	if cfg.DBPath != "" {
		t.Fatalf("DBPath = %q, want in-memory", cfg.DBPath)
	}
	if cfg.ConfigPath != "" {
		t.Fatalf("ConfigPath = %q, want empty when no file exists", cfg.ConfigPath)
	}
	if !cfg.APIEnabled {
		t.Fatal("api should be enabled by default")
	}
}

func TestLoadConfig_FileAndValidation(t *testing.T) {
	resetFlowdashEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		wantErr      bool
		errSubstring string
		assert       func(t *testing.T, cfg appConfig)
	}{
		{
			name: "explicit values",
			configYAML: `
data-dir: /srv/cicids
max-load-rows: 5000
max-view-rows: 2000
sample-seed: 7
zero-fill-hours: true
api-port: 9000
query-timeout: 5s
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.DataDir != "/srv/cicids" {
					t.Fatalf("DataDir = %q", cfg.DataDir)
				}
				if cfg.MaxLoadRows != 5000 || cfg.MaxViewRows != 2000 {
					t.Fatalf("rows = %d/%d, want 5000/2000", cfg.MaxLoadRows, cfg.MaxViewRows)
				}
				if cfg.SampleSeed != 7 {
					t.Fatalf("SampleSeed = %d, want 7", cfg.SampleSeed)
				}
				if !cfg.ZeroFillHours {
					t.Fatal("zero-fill-hours should be set")
				}
				if cfg.APIAddr != "127.0.0.1:9000" {
					t.Fatalf("APIAddr = %q", cfg.APIAddr)
				}
				if cfg.QueryTimeout != 5*time.Second {
					t.Fatalf("QueryTimeout = %s", cfg.QueryTimeout)
				}
				if cfg.ConfigPath == "" {
					t.Fatal("ConfigPath should name the file used")
				}
			},
		},
		{
			name: "explicit api addr wins",
			configYAML: `
api-port: 9000
api-addr: 0.0.0.0:8050
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.APIAddr != "0.0.0.0:8050" {
					t.Fatalf("APIAddr = %q", cfg.APIAddr)
				}
			},
		},
		{
			name: "dataset url",
			configYAML: `
dataset-url: s3://datasets/cicids2017
s3-endpoint: localhost:9000
s3-use-ssl: false
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.DatasetURL != "s3://datasets/cicids2017" {
					t.Fatalf("DatasetURL = %q", cfg.DatasetURL)
				}
				if cfg.S3UseSSL {
					t.Fatal("s3-use-ssl should be false")
				}
				if cfg.S3Region != defaultS3Region {
					t.Fatalf("S3Region = %q", cfg.S3Region)
				}
			},
		},
		{
			name:         "invalid port rejected",
			configYAML:   `api-port: 70000`,
			wantErr:      true,
			errSubstring: "invalid api-port",
		},
		{
			name:         "invalid max-load-rows rejected",
			configYAML:   `max-load-rows: 0`,
			wantErr:      true,
			errSubstring: "invalid max-load-rows",
		},
		{
			name:         "invalid query-timeout rejected",
			configYAML:   `query-timeout: 0s`,
			wantErr:      true,
			errSubstring: "invalid query-timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeTempConfig(t, tt.configYAML)
			cfg, err := loadConfig(configPath)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstring != "" && !strings.Contains(err.Error(), tt.errSubstring) {
					t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
				}
				return
			}

			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if tt.assert != nil {
				tt.assert(t, cfg)
			}
		})
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	resetFlowdashEnv(t)

	configPath := writeTempConfig(t, `max-view-rows: 2000`)
	t.Setenv("FLOWDASH_MAX_VIEW_ROWS", "300")
	t.Setenv("FLOWDASH_API_ENABLED", "false")

	cfg, err := loadConfig(configPath)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.MaxViewRows != 300 {
		t.Fatalf("MaxViewRows = %d, want 300", cfg.MaxViewRows)
	}
	if cfg.APIEnabled {
		t.Fatal("api should be disabled by env")
	}
}

func TestLoadConfig_ExpandsHome(t *testing.T) {
	resetFlowdashEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	configPath := writeTempConfig(t, `
db-path: ~/flows.duckdb
data-dir: ~/cicids
`)
	cfg, err := loadConfig(configPath)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.DBPath != filepath.Join(home, "flows.duckdb") {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.DataDir != filepath.Join(home, "cicids") {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
}

func TestExportOptionsEnabled(t *testing.T) {
	t.Parallel()

	if (exportOptions{}).enabled() {
		t.Fatal("empty options should not enable export")
	}
	if !(exportOptions{ViewPath: "view.json"}).enabled() {
		t.Fatal("view path should enable export")
	}
	if !(exportOptions{FlowsPath: "flows.parquet"}).enabled() {
		t.Fatal("flows path should enable export")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetFlowdashEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "FLOWDASH_") {
			continue
		}
		original[key] = value
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
