package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{" error ", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "warden.log")
	_, cleanup := Setup(Options{Path: path, Level: "info"})

	zap.S().Infof("hello %s", "file")
	zap.S().Debugf("filtered out")
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "hello file") {
		t.Errorf("log file missing entry: %s", out)
	}
	if strings.Contains(out, "filtered out") {
		t.Errorf("debug entry written at info level: %s", out)
	}
}

func TestDefaultPath(t *testing.T) {
	if p := DefaultPath("warden"); p != "" && !strings.HasSuffix(p, filepath.Join(".local", "state", "warden", "warden.log")) {
		t.Errorf("DefaultPath = %q", p)
	}
}
