package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vammperp/backend/internal/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		mode    string
		wantErr bool
	}{
		{"debug", config.LogConfig{Level: "info", Output: "stdout"}, "debug", false},
		{"json", config.LogConfig{Level: "warn", Format: "json"}, "release", false},
		{"console stderr", config.LogConfig{Level: "debug", Format: "console", Output: "stderr"}, "release", false},
		{"bad level", config.LogConfig{Level: "loud"}, "release", true},
		{"bad format", config.LogConfig{Level: "info", Format: "xml"}, "release", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg, tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && l == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	l, err := New(config.LogConfig{Level: "info", Format: "json", Output: path}, "release")
	if err != nil {
		t.Fatal(err)
	}
	l.Info("intent applied")
	_ = l.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"msg":"intent applied"`) {
		t.Errorf("log file missing entry: %s", b)
	}
}
