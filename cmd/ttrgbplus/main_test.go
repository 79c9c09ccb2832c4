package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"ttrgbplus/internal/config"
)

func TestResolveConfigPath(t *testing.T) {
	if got, err := resolveConfigPath("/tmp/custom.yml"); err != nil || got != "/tmp/custom.yml" {
		t.Errorf("explicit = %q, %v", got, err)
	}
	if _, err := os.Stat(systemConfig); err == nil {
		t.Skip("system config present on this host")
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if _, err := resolveConfigPath(""); err == nil {
		t.Error("expected error with no config present")
	}
	if err := os.WriteFile(localConfig, []byte("controllers: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := resolveConfigPath(""); err != nil || got != localConfig {
		t.Errorf("fallback = %q, %v", got, err)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &config.Config{}
		cfg.Log.Level = tt.level
		logger := newLogger(cfg)
		if !logger.Enabled(context.Background(), tt.want) {
			t.Errorf("%q: level %v disabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
			t.Errorf("%q: level below %v enabled", tt.level, tt.want)
		}
	}
}
