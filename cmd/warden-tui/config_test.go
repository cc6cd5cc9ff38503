package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/warden/internal/model"
)

func TestLoadCLIConfig(t *testing.T) {
	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "WARDEN_") {
			t.Setenv(key, value)
			os.Unsetenv(key)
		}
	}

	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg cliConfig)
	}{
		{
			name: "defaults",
			yaml: "",
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.RefreshInterval != model.DefaultRefreshInterval {
					t.Fatalf("RefreshInterval = %s", cfg.RefreshInterval)
				}
				if cfg.PageSize != 0 {
					t.Fatalf("PageSize = %d, want 0 (fit to terminal)", cfg.PageSize)
				}
				if cfg.SocketPath == "" || cfg.LoadTimeout != 30*time.Second {
					t.Fatalf("unexpected defaults %+v", cfg)
				}
			},
		},
		{
			name: "shares service keys",
			yaml: "refresh-interval: 5s\npage-size: 25\nsocket-path: /tmp/w.sock\nuser: ops",
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.RefreshInterval != 5*time.Second || cfg.PageSize != 25 {
					t.Fatalf("unexpected %+v", cfg)
				}
				if cfg.SocketPath != "/tmp/w.sock" || cfg.User != "ops" {
					t.Fatalf("unexpected %+v", cfg)
				}
			},
		},
		{name: "zero refresh rejected", yaml: "refresh-interval: 0s", wantErr: true},
		{name: "negative page size rejected", yaml: "page-size: -2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			if err := os.WriteFile(path, []byte(tt.yaml+"\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			cfg, err := loadCLIConfig(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("loadCLIConfig: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}
